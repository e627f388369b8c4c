// Package output writes detection results as CSV.
package output

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jengzang/ais-anomaly-go/internal/models"
	"github.com/jengzang/ais-anomaly-go/internal/spatial"
)

const timeLayout = "2006-01-02 15:04:05"

var recordHeader = []string{
	"MMSI",
	"datetime_utc",
	"datetime_hst",
	"lat",
	"lon",
	"speed_over_ground_knots",
	"computed_speed_knots",
	"navigation_status",
	"vessel_class",
	"length_m",
	"s2_cell",
}

// FileName returns the output file name of a run, e.g.
// overspeed_detection_<run-id>.csv
func FileName(anomalyType, runID string) string {
	return fmt.Sprintf("%s_detection_%s.csv", strings.ReplaceAll(anomalyType, " ", "_"), runID)
}

// Create opens dir/name for writing, creating dir if needed
func Create(dir, name string) (*os.File, string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, "", fmt.Errorf("failed to create output dir: %w", err)
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create %s: %w", path, err)
	}
	return f, path, nil
}

// WriteOverspeed writes every surviving record with its overspeed_flag
func WriteOverspeed(w io.Writer, res *models.OverspeedResult) error {
	cw := csv.NewWriter(w)

	header := append(append([]string{}, recordHeader...), "overspeed_flag")
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, r := range res.Records {
		row := append(recordFields(r.AISRecord), strconv.FormatBool(r.OverspeedFlag))
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteSpeedAbnormality writes one row per trajectory verdict
func WriteSpeedAbnormality(w io.Writer, anomalies []models.TrajectoryAnomaly) error {
	cw := csv.NewWriter(w)

	if err := cw.Write([]string{
		"trajectory_id", "MMSI", "start_time", "end_time", "point_count", "anomalous", "abnormal_indices",
	}); err != nil {
		return err
	}

	for i, a := range anomalies {
		if err := cw.Write([]string{
			strconv.Itoa(i),
			strconv.FormatInt(a.MMSI, 10),
			formatTime(a.StartTime),
			formatTime(a.EndTime),
			strconv.Itoa(a.PointCount),
			strconv.FormatBool(a.Anomalous),
			joinInts(a.AbnormalIndices),
		}); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteTrajectories writes one row per trajectory point, with the distance
// from the previous point in distances_km and the trajectory's abnormal
// indices repeated on each row when anomalies is index-aligned with trajs
func WriteTrajectories(w io.Writer, trajs []models.Trajectory, anomalies []models.TrajectoryAnomaly) error {
	cw := csv.NewWriter(w)

	header := append([]string{"trajectory_id", "point_index"}, recordHeader...)
	header = append(header, "distances_km", "extent_km2", "abnormal_indices")
	if err := cw.Write(header); err != nil {
		return err
	}

	for i, t := range trajs {
		var indices string
		if i < len(anomalies) {
			indices = joinInts(anomalies[i].AbnormalIndices)
		}
		extent := formatFloat(t.Extent())

		for j := 0; j < t.Len(); j++ {
			row := append([]string{strconv.Itoa(i), strconv.Itoa(j)}, recordFields(t.Record(j))...)
			row = append(row, formatFloat(t.DistanceKm(j)), extent, indices)
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}

	cw.Flush()
	return cw.Error()
}

func recordFields(r models.AISRecord) []string {
	return []string{
		strconv.FormatInt(r.MMSI, 10),
		formatTime(r.TimestampUTC),
		formatTime(r.TimestampLocal),
		formatFloat(r.Latitude),
		formatFloat(r.Longitude),
		formatFloat(r.ReportedSpeedKnots),
		formatFloat(r.ComputedSpeedKnots),
		strconv.Itoa(r.NavigationStatus),
		r.VesselClass,
		formatFloat(r.LengthM),
		spatial.CellToken(r.Latitude, r.Longitude, spatial.CellLevel),
	}
}

// formatFloat leaves non-finite values empty
func formatFloat(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(timeLayout)
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ";")
}
