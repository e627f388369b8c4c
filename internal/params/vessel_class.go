package params

import "strings"

// vesselClasses is the catalogue of vessel classes found in the AIS
// ground-truth data, lower case
var vesselClasses = []string{
	"cargo",
	"diving",
	"fishing",
	"industrial vessel",
	"military",
	"offshore supply vessel",
	"oil recovery",
	"other",
	"passenger",
	"pilot vessel",
	"pleasure craft/sailing",
	"port tender",
	"public vessel, unclassified",
	"research vessel",
	"school ship",
	"search and rescue vessel",
	"tanker",
	"tug tow",
}

var vesselClassSet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(vesselClasses))
	for _, c := range vesselClasses {
		m[c] = struct{}{}
	}
	return m
}()

// VesselClasses returns the supported vessel classes
func VesselClasses() []string {
	out := make([]string, len(vesselClasses))
	copy(out, vesselClasses)
	return out
}

// NormalizeVesselClass trims and lower-cases a class name
func NormalizeVesselClass(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// IsVesselClass reports whether s names a catalogued class, ignoring case
// and surrounding space
func IsVesselClass(s string) bool {
	_, ok := vesselClassSet[NormalizeVesselClass(s)]
	return ok
}
