package models

import (
	"math"
	"time"
)

// Navigation status codes treated as stationary
const (
	NavStatusAtAnchor = 1
	NavStatusMoored   = 5
)

// AISRecord represents one AIS position report
type AISRecord struct {
	MMSI int64 `json:"mmsi" db:"mmsi"`

	// Temporal info, both timezone-qualified
	TimestampUTC   time.Time `json:"datetime_utc" db:"datetime_utc"`
	TimestampLocal time.Time `json:"datetime_local" db:"datetime_local"`

	// Position
	Latitude  float64 `json:"lat" db:"lat"`
	Longitude float64 `json:"lon" db:"lon"`

	// Speeds in knots; NaN when absent or not numeric
	ReportedSpeedKnots float64 `json:"speed_over_ground_knots" db:"speed_over_ground_knots"`
	ComputedSpeedKnots float64 `json:"computed_speed_knots" db:"computed_speed_knots"`

	NavigationStatus int     `json:"navigation_status" db:"navigation_status"`
	VesselClass      string  `json:"vessel_class" db:"vessel_class"`
	LengthM          float64 `json:"length_m" db:"length_m"`
}

// HasComputedSpeed reports whether the computed speed is a finite number
func (r AISRecord) HasComputedSpeed() bool {
	return isFinite(r.ComputedSpeedKnots)
}

// HasReportedSpeed reports whether the reported speed is a finite number
func (r AISRecord) HasReportedSpeed() bool {
	return isFinite(r.ReportedSpeedKnots)
}

// IsStationaryStatus reports whether the vessel declares itself at anchor or moored
func (r AISRecord) IsStationaryStatus() bool {
	return r.NavigationStatus == NavStatusAtAnchor || r.NavigationStatus == NavStatusMoored
}

// RecordKey is a comparable identity of every field of a record. Two records
// with equal keys are exact duplicates; NaN speeds compare equal.
type RecordKey struct {
	MMSI     int64
	UTC      int64
	Local    int64
	Lat      uint64
	Lon      uint64
	Reported uint64
	Computed uint64
	Status   int
	Class    string
	Length   uint64
}

// Key returns the duplicate-detection key of r
func (r AISRecord) Key() RecordKey {
	return RecordKey{
		MMSI:     r.MMSI,
		UTC:      r.TimestampUTC.UnixNano(),
		Local:    r.TimestampLocal.UnixNano(),
		Lat:      math.Float64bits(r.Latitude),
		Lon:      math.Float64bits(r.Longitude),
		Reported: floatKey(r.ReportedSpeedKnots),
		Computed: floatKey(r.ComputedSpeedKnots),
		Status:   r.NavigationStatus,
		Class:    r.VesselClass,
		Length:   floatKey(r.LengthM),
	}
}

func floatKey(v float64) uint64 {
	if math.IsNaN(v) {
		return math.Float64bits(math.NaN())
	}
	return math.Float64bits(v)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// TimeField selects which timestamp orders and segments records
type TimeField string

const (
	TimeFieldUTC   TimeField = "utc"
	TimeFieldLocal TimeField = "local"
)

// Of returns the selected timestamp of r
func (f TimeField) Of(r AISRecord) time.Time {
	if f == TimeFieldUTC {
		return r.TimestampUTC
	}
	return r.TimestampLocal
}

// Valid reports whether f names a known field
func (f TimeField) Valid() bool {
	return f == TimeFieldUTC || f == TimeFieldLocal
}

// VesselRecords is one vessel's records, sorted by the relevant time field
type VesselRecords struct {
	MMSI    int64
	Records []AISRecord
}

// GroupByVessel groups records per MMSI, preserving first-seen vessel order,
// and sorts each group by field (stable, so equal timestamps keep input order).
func GroupByVessel(records []AISRecord, field TimeField) []VesselRecords {
	index := make(map[int64]int)
	var groups []VesselRecords

	for _, r := range records {
		i, ok := index[r.MMSI]
		if !ok {
			i = len(groups)
			index[r.MMSI] = i
			groups = append(groups, VesselRecords{MMSI: r.MMSI})
		}
		groups[i].Records = append(groups[i].Records, r)
	}

	for i := range groups {
		SortByTime(groups[i].Records, field)
	}
	return groups
}
