package models

import "time"

// Anomaly type selectors
const (
	AnomalyOverspeed        = "overspeed"
	AnomalySpeedAbnormality = "speed abnormality"
)

// AnomalyTypes lists every supported anomaly type selector
func AnomalyTypes() []string {
	return []string{AnomalyOverspeed, AnomalySpeedAbnormality}
}

// FlaggedRecord is a record that survived overspeed noise suppression
type FlaggedRecord struct {
	AISRecord
	OverspeedFlag bool `json:"overspeed_flag"`
}

// SpeedSummary describes the valid-speed population a threshold came from
type SpeedSummary struct {
	Count  int     `json:"count"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Median float64 `json:"median"`
}

// OverspeedResult is the output of the overspeed rule
type OverspeedResult struct {
	Records    []FlaggedRecord `json:"records"`
	Threshold  float64         `json:"threshold_knots"`
	Percentile float64         `json:"percentile"`

	// Population accounting
	InputCount        int `json:"input_count"`
	NonFiniteDropped  int `json:"non_finite_dropped"`
	StationaryDropped int `json:"stationary_dropped"`
	OutlierDropped    int `json:"outlier_dropped"`
	FlaggedCount      int `json:"flagged_count"`

	Summary SpeedSummary `json:"summary"`
}

// Flagged returns only the records above the threshold
func (r *OverspeedResult) Flagged() []FlaggedRecord {
	var out []FlaggedRecord
	for _, rec := range r.Records {
		if rec.OverspeedFlag {
			out = append(out, rec)
		}
	}
	return out
}

// TrajectoryAnomaly is the speed abnormality verdict for one trajectory
type TrajectoryAnomaly struct {
	MMSI            int64     `json:"mmsi"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	PointCount      int       `json:"point_count"`
	Anomalous       bool      `json:"anomalous"`
	AbnormalIndices []int     `json:"abnormal_indices,omitempty"`
}
