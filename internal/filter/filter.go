// Package filter narrows AIS record collections by vessel class, length,
// UTC timeframe and local time of day.
package filter

import (
	"fmt"
	"strings"

	"github.com/jengzang/ais-anomaly-go/internal/apperr"
	"github.com/jengzang/ais-anomaly-go/internal/models"
)

// Predicate decides whether a record is kept
type Predicate func(r models.AISRecord) bool

// VesselClass keeps records whose class is in classes, ignoring case and
// surrounding space
func VesselClass(classes []string) Predicate {
	set := make(map[string]struct{}, len(classes))
	for _, c := range classes {
		set[normalize(c)] = struct{}{}
	}
	return func(r models.AISRecord) bool {
		_, ok := set[normalize(r.VesselClass)]
		return ok
	}
}

// LengthRange keeps records with lo <= length <= hi
func LengthRange(lo, hi float64) Predicate {
	return func(r models.AISRecord) bool {
		return r.LengthM >= lo && r.LengthM <= hi
	}
}

// Timeframe keeps records whose UTC timestamp lies in [start, end]. Both
// bounds are compared as instants, so their location does not matter.
func Timeframe(c models.FilterCriteria) Predicate {
	start, end := c.Start.UTC(), c.End.UTC()
	return func(r models.AISRecord) bool {
		ts := r.TimestampUTC
		return !ts.Before(start) && !ts.After(end)
	}
}

// HourWindow keeps records whose local clock time lies in [start, end].
// The window does not wrap midnight; start > end keeps nothing.
func HourWindow(start, end models.TimeOfDay) Predicate {
	return func(r models.AISRecord) bool {
		clock := models.ClockOf(r.TimestampLocal)
		return clock >= start && clock <= end
	}
}

// Criteria builds the predicate chain for c
func Criteria(c models.FilterCriteria) []Predicate {
	return []Predicate{
		VesselClass(c.VesselClasses),
		LengthRange(c.LengthMin, c.LengthMax),
		Timeframe(c),
		HourWindow(c.HourStart, c.HourEnd),
	}
}

// Apply returns the records matching every criterion, in input order. The
// input slice is not modified. An empty result is reported as
// apperr.ErrEmptyResult alongside the (empty) slice.
func Apply(records []models.AISRecord, c models.FilterCriteria) ([]models.AISRecord, error) {
	out := Match(records, Criteria(c)...)
	if len(out) == 0 {
		return out, fmt.Errorf("filter kept 0 of %d records: %w", len(records), apperr.ErrEmptyResult)
	}
	return out, nil
}

// Match returns the records accepted by every predicate
func Match(records []models.AISRecord, preds ...Predicate) []models.AISRecord {
	out := make([]models.AISRecord, 0, len(records))
next:
	for _, r := range records {
		for _, p := range preds {
			if !p(r) {
				continue next
			}
		}
		out = append(out, r)
	}
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
