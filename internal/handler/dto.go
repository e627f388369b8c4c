package handler

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jengzang/ais-anomaly-go/internal/apperr"
	"github.com/jengzang/ais-anomaly-go/internal/analysis/trajectory"
	"github.com/jengzang/ais-anomaly-go/internal/models"
	"github.com/jengzang/ais-anomaly-go/internal/params"
	"github.com/jengzang/ais-anomaly-go/internal/service"
	"github.com/jengzang/ais-anomaly-go/internal/spatial"
)

// DetectionRequest is the body of the detection and trajectory endpoints.
// Records, when present, replace the configured record store for this call.
type DetectionRequest struct {
	params.Params
	Records []RecordInput `json:"records,omitempty"`
}

// RecordInput is one AIS report in a request body. Absent speeds and
// lengths are null.
type RecordInput struct {
	MMSI             int64      `json:"mmsi"`
	DatetimeUTC      time.Time  `json:"datetime_utc"`
	DatetimeLocal    *time.Time `json:"datetime_local,omitempty"` // defaults to datetime_utc in the data zone
	Lat              float64    `json:"lat" validate:"gte=-90,lte=90"`
	Lon              float64    `json:"lon" validate:"gte=-180,lte=180"`
	SpeedOverGround  *float64   `json:"speed_over_ground_knots"`
	ComputedSpeed    *float64   `json:"computed_speed_knots"`
	NavigationStatus int        `json:"navigation_status"`
	VesselClass      string     `json:"vessel_class"`
	LengthM          *float64   `json:"length_m"`
}

// validateRecords checks every inline record, naming fields records[i].<name>
func validateRecords(records []RecordInput) *apperr.ValidationErrors {
	errs := &apperr.ValidationErrors{}
	for i, r := range records {
		var verrs *apperr.ValidationErrors
		if errors.As(params.Check(fmt.Sprintf("records[%d]", i), r), &verrs) {
			errs.Errors = append(errs.Errors, verrs.Errors...)
		}
	}
	return errs
}

func (r RecordInput) toModel(loc *time.Location) models.AISRecord {
	local := r.DatetimeUTC.In(loc)
	if r.DatetimeLocal != nil {
		local = *r.DatetimeLocal
	}
	return models.AISRecord{
		MMSI:               r.MMSI,
		TimestampUTC:       r.DatetimeUTC.UTC(),
		TimestampLocal:     local,
		Latitude:           r.Lat,
		Longitude:          r.Lon,
		ReportedSpeedKnots: fromPtr(r.SpeedOverGround),
		ComputedSpeedKnots: fromPtr(r.ComputedSpeed),
		NavigationStatus:   r.NavigationStatus,
		VesselClass:        r.VesselClass,
		LengthM:            fromPtr(r.LengthM),
	}
}

func toRecords(in []RecordInput, loc *time.Location) []models.AISRecord {
	out := make([]models.AISRecord, len(in))
	for i, r := range in {
		out[i] = r.toModel(loc)
	}
	return out
}

// RecordOutput is one AIS report in a response
type RecordOutput struct {
	MMSI             int64     `json:"mmsi"`
	DatetimeUTC      time.Time `json:"datetime_utc"`
	DatetimeLocal    time.Time `json:"datetime_local"`
	Lat              float64   `json:"lat"`
	Lon              float64   `json:"lon"`
	SpeedOverGround  *float64  `json:"speed_over_ground_knots"`
	ComputedSpeed    *float64  `json:"computed_speed_knots"`
	NavigationStatus int       `json:"navigation_status"`
	VesselClass      string    `json:"vessel_class"`
	LengthM          *float64  `json:"length_m"`
	S2Cell           string    `json:"s2_cell"`
}

func newRecordOutput(r models.AISRecord) RecordOutput {
	return RecordOutput{
		MMSI:             r.MMSI,
		DatetimeUTC:      r.TimestampUTC,
		DatetimeLocal:    r.TimestampLocal,
		Lat:              r.Latitude,
		Lon:              r.Longitude,
		SpeedOverGround:  finite(r.ReportedSpeedKnots),
		ComputedSpeed:    finite(r.ComputedSpeedKnots),
		NavigationStatus: r.NavigationStatus,
		VesselClass:      r.VesselClass,
		LengthM:          finite(r.LengthM),
		S2Cell:           spatial.CellToken(r.Latitude, r.Longitude, spatial.CellLevel),
	}
}

// RunResponse describes a detection run
type RunResponse struct {
	RunID        string `json:"run_id"`
	AnomalyType  string `json:"anomaly_type"`
	LoadedRows   int    `json:"loaded_rows"`
	FilteredRows int    `json:"filtered_rows"`

	Skipped    bool   `json:"skipped"`
	SkipReason string `json:"skip_reason,omitempty"`
	Advisory   string `json:"advisory,omitempty"`

	Overspeed *OverspeedOutput `json:"overspeed,omitempty"`
	Anomalies []AnomalyOutput  `json:"anomalies,omitempty"`
}

// OverspeedOutput summarises an overspeed run; only flagged records are listed
type OverspeedOutput struct {
	Threshold         float64        `json:"threshold_knots"`
	Percentile        float64        `json:"percentile"`
	InputCount        int            `json:"input_count"`
	NonFiniteDropped  int            `json:"non_finite_dropped"`
	StationaryDropped int            `json:"stationary_dropped"`
	OutlierDropped    int            `json:"outlier_dropped"`
	FlaggedCount      int            `json:"flagged_count"`
	Summary           SummaryOutput  `json:"summary"`
	Flagged           []RecordOutput `json:"flagged"`
}

// SummaryOutput is the speed population summary
type SummaryOutput struct {
	Count  int      `json:"count"`
	Min    *float64 `json:"min"`
	Max    *float64 `json:"max"`
	Mean   *float64 `json:"mean"`
	StdDev *float64 `json:"std_dev"`
	Median *float64 `json:"median"`
}

// AnomalyOutput is the speed abnormality verdict of one trajectory
type AnomalyOutput struct {
	TrajectoryID int `json:"trajectory_id"`
	models.TrajectoryAnomaly
	ExtentKm2       *float64 `json:"extent_km2"`
	TotalDistanceKm *float64 `json:"total_distance_km"`
}

func newRunResponse(run *service.Run) RunResponse {
	resp := RunResponse{
		RunID:        run.ID,
		AnomalyType:  run.AnomalyType,
		LoadedRows:   run.LoadedRows,
		FilteredRows: run.FilteredRows,
		Skipped:      run.Skipped,
		SkipReason:   run.SkipReason,
		Advisory:     run.Advisory,
	}
	if run.Outcome == nil {
		return resp
	}

	if res := run.Outcome.Overspeed; res != nil {
		out := &OverspeedOutput{
			Threshold:         res.Threshold,
			Percentile:        res.Percentile,
			InputCount:        res.InputCount,
			NonFiniteDropped:  res.NonFiniteDropped,
			StationaryDropped: res.StationaryDropped,
			OutlierDropped:    res.OutlierDropped,
			FlaggedCount:      res.FlaggedCount,
			Summary: SummaryOutput{
				Count:  res.Summary.Count,
				Min:    finite(res.Summary.Min),
				Max:    finite(res.Summary.Max),
				Mean:   finite(res.Summary.Mean),
				StdDev: finite(res.Summary.StdDev),
				Median: finite(res.Summary.Median),
			},
			Flagged: []RecordOutput{},
		}
		for _, r := range res.Flagged() {
			out.Flagged = append(out.Flagged, newRecordOutput(r.AISRecord))
		}
		resp.Overspeed = out
	}

	trajs := run.Outcome.Trajectories
	for i, a := range run.Outcome.Anomalies {
		out := AnomalyOutput{TrajectoryID: i, TrajectoryAnomaly: a}
		if i < len(trajs) {
			out.ExtentKm2 = finite(trajs[i].Extent())
			out.TotalDistanceKm = finite(trajs[i].TotalDistanceKm())
		}
		resp.Anomalies = append(resp.Anomalies, out)
	}
	return resp
}

// SegmentResponse describes a segmentation run
type SegmentResponse struct {
	RunID        string             `json:"run_id"`
	LoadedRows   int                `json:"loaded_rows"`
	FilteredRows int                `json:"filtered_rows"`
	Skipped      bool               `json:"skipped"`
	SkipReason   string             `json:"skip_reason,omitempty"`
	Stats        StatsOutput        `json:"stats"`
	Trajectories []TrajectoryOutput `json:"trajectories"`
}

// StatsOutput counts what segmentation did with each block
type StatsOutput struct {
	Vessels          int `json:"vessels"`
	Blocks           int `json:"blocks"`
	DuplicatesPruned int `json:"duplicates_pruned"`
	TooFewPoints     int `json:"too_few_points"`
	TooSmallExtent   int `json:"too_small_extent"`
	Accepted         int `json:"accepted"`
}

// TrajectoryOutput is one trajectory with its points
type TrajectoryOutput struct {
	ID              int           `json:"id"`
	MMSI            int64         `json:"mmsi"`
	StartTime       time.Time     `json:"start_time"`
	EndTime         time.Time     `json:"end_time"`
	PointCount      int           `json:"point_count"`
	ExtentKm2       *float64      `json:"extent_km2"`
	TotalDistanceKm *float64      `json:"total_distance_km"`
	Points          []PointOutput `json:"points"`
}

// PointOutput is a trajectory point with the distance from its predecessor
type PointOutput struct {
	RecordOutput
	DistanceKm *float64 `json:"distance_km"`
}

func newSegmentResponse(run *service.SegmentRun) SegmentResponse {
	resp := SegmentResponse{
		RunID:        run.ID,
		LoadedRows:   run.LoadedRows,
		FilteredRows: run.FilteredRows,
		Skipped:      run.Skipped,
		SkipReason:   run.SkipReason,
		Stats:        newStatsOutput(run.Stats),
		Trajectories: make([]TrajectoryOutput, 0, len(run.Trajectories)),
	}

	for i, t := range run.Trajectories {
		out := TrajectoryOutput{
			ID:              i,
			MMSI:            t.MMSI(),
			StartTime:       t.StartTime(),
			EndTime:         t.EndTime(),
			PointCount:      t.Len(),
			ExtentKm2:       finite(t.Extent()),
			TotalDistanceKm: finite(t.TotalDistanceKm()),
			Points:          make([]PointOutput, t.Len()),
		}
		for j := range out.Points {
			out.Points[j] = PointOutput{
				RecordOutput: newRecordOutput(t.Record(j)),
				DistanceKm:   finite(t.DistanceKm(j)),
			}
		}
		resp.Trajectories = append(resp.Trajectories, out)
	}
	return resp
}

func newStatsOutput(s trajectory.Stats) StatsOutput {
	return StatsOutput{
		Vessels:          s.Vessels,
		Blocks:           s.Blocks,
		DuplicatesPruned: s.DuplicatesPruned,
		TooFewPoints:     s.TooFewPoints,
		TooSmallExtent:   s.TooSmallExtent,
		Accepted:         s.Accepted,
	}
}

// finite returns nil for NaN and infinities, which JSON cannot carry
func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func fromPtr(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}
