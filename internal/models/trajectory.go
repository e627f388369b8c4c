package models

import (
	"math"
	"sort"
	"time"
)

// Trajectory is an immutable, time-contiguous run of one vessel's records.
// DistancesKm[i] is the great-circle distance from point i-1 to point i;
// DistancesKm[0] is NaN.
type Trajectory struct {
	mmsi        int64
	timeField   TimeField
	records     []AISRecord
	distancesKm []float64
	extent      float64
}

// NewTrajectory builds a trajectory from records already sorted by field.
// Inputs are copied so later changes to the caller's slices do not leak in.
// It panics if distancesKm does not have one entry per record.
func NewTrajectory(records []AISRecord, field TimeField, distancesKm []float64, extent float64) Trajectory {
	if len(records) != len(distancesKm) {
		panic("models: trajectory records and distances length mismatch")
	}

	t := Trajectory{
		timeField:   field,
		records:     make([]AISRecord, len(records)),
		distancesKm: make([]float64, len(distancesKm)),
		extent:      extent,
	}
	copy(t.records, records)
	copy(t.distancesKm, distancesKm)
	if len(records) > 0 {
		t.mmsi = records[0].MMSI
	}
	return t
}

// MMSI returns the vessel identifier
func (t Trajectory) MMSI() int64 { return t.mmsi }

// TimeField returns the field the trajectory was segmented on
func (t Trajectory) TimeField() TimeField { return t.timeField }

// Len returns the number of points
func (t Trajectory) Len() int { return len(t.records) }

// Extent returns the hull extent measured when the trajectory was accepted
func (t Trajectory) Extent() float64 { return t.extent }

// Record returns the i-th point
func (t Trajectory) Record(i int) AISRecord { return t.records[i] }

// Records returns a copy of the points
func (t Trajectory) Records() []AISRecord {
	out := make([]AISRecord, len(t.records))
	copy(out, t.records)
	return out
}

// DistanceKm returns the distance from point i-1 to point i
func (t Trajectory) DistanceKm(i int) float64 { return t.distancesKm[i] }

// DistancesKm returns a copy of the per-point distances
func (t Trajectory) DistancesKm() []float64 {
	out := make([]float64, len(t.distancesKm))
	copy(out, t.distancesKm)
	return out
}

// Time returns the timestamp of point i on the trajectory's time field
func (t Trajectory) Time(i int) time.Time { return t.timeField.Of(t.records[i]) }

// StartTime returns the first point's timestamp
func (t Trajectory) StartTime() time.Time {
	if len(t.records) == 0 {
		return time.Time{}
	}
	return t.Time(0)
}

// EndTime returns the final point's timestamp
func (t Trajectory) EndTime() time.Time {
	if len(t.records) == 0 {
		return time.Time{}
	}
	return t.Time(len(t.records) - 1)
}

// TotalDistanceKm sums the per-point distances, skipping the undefined first entry
func (t Trajectory) TotalDistanceKm() float64 {
	var total float64
	for _, d := range t.distancesKm {
		if !math.IsNaN(d) {
			total += d
		}
	}
	return total
}

// SortByTime stably sorts records in place by field
func SortByTime(records []AISRecord, field TimeField) {
	sort.SliceStable(records, func(i, j int) bool {
		return field.Of(records[i]).Before(field.Of(records[j]))
	})
}
