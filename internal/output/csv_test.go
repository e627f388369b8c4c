package output

import (
	"bytes"
	"encoding/csv"
	"math"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jengzang/ais-anomaly-go/internal/models"
)

var t0 = time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC)

func readAll(t *testing.T, b *bytes.Buffer) [][]string {
	t.Helper()
	rows, err := csv.NewReader(b).ReadAll()
	require.NoError(t, err)
	return rows
}

func column(header []string, name string) int {
	for i, h := range header {
		if h == name {
			return i
		}
	}
	return -1
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "overspeed_detection_abc.csv", FileName(models.AnomalyOverspeed, "abc"))
	assert.Equal(t, "speed_abnormality_detection_abc.csv", FileName(models.AnomalySpeedAbnormality, "abc"))
}

func TestWriteOverspeed(t *testing.T) {
	res := &models.OverspeedResult{
		Records: []models.FlaggedRecord{
			{AISRecord: models.AISRecord{MMSI: 1, TimestampUTC: t0, TimestampLocal: t0, Latitude: 21.5, Longitude: -158, ComputedSpeedKnots: 12, ReportedSpeedKnots: math.NaN(), VesselClass: "cargo", LengthM: 80}},
			{AISRecord: models.AISRecord{MMSI: 2, TimestampUTC: t0, TimestampLocal: t0, ComputedSpeedKnots: 40, VesselClass: "tanker"}, OverspeedFlag: true},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteOverspeed(&buf, res))

	rows := readAll(t, &buf)
	require.Len(t, rows, 3)
	header := rows[0]

	flag := column(header, "overspeed_flag")
	require.NotEqual(t, -1, flag)
	assert.Equal(t, "false", rows[1][flag])
	assert.Equal(t, "true", rows[2][flag])

	assert.Equal(t, "2024-05-01 08:30:00", rows[1][column(header, "datetime_utc")])
	assert.Equal(t, "12", rows[1][column(header, "computed_speed_knots")])
	assert.Empty(t, rows[1][column(header, "speed_over_ground_knots")])
	assert.NotEmpty(t, rows[1][column(header, "s2_cell")])
}

func TestWriteSpeedAbnormality(t *testing.T) {
	anomalies := []models.TrajectoryAnomaly{
		{MMSI: 7, StartTime: t0, EndTime: t0.Add(time.Hour), PointCount: 6, Anomalous: true, AbnormalIndices: []int{1, 4}},
		{MMSI: 8, StartTime: t0, EndTime: t0.Add(time.Hour), PointCount: 5},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteSpeedAbnormality(&buf, anomalies))

	rows := readAll(t, &buf)
	require.Len(t, rows, 3)
	idx := column(rows[0], "abnormal_indices")
	assert.Equal(t, "1;4", rows[1][idx])
	assert.Equal(t, "", rows[2][idx])
	assert.Equal(t, "true", rows[1][column(rows[0], "anomalous")])
}

func TestWriteTrajectories(t *testing.T) {
	records := []models.AISRecord{
		{MMSI: 7, TimestampUTC: t0, TimestampLocal: t0, Latitude: 21, Longitude: -157},
		{MMSI: 7, TimestampUTC: t0.Add(time.Minute), TimestampLocal: t0.Add(time.Minute), Latitude: 21.01, Longitude: -157},
	}
	traj := models.NewTrajectory(records, models.TimeFieldLocal, []float64{math.NaN(), 1.11}, 0.5)
	anomalies := []models.TrajectoryAnomaly{{MMSI: 7, Anomalous: true, AbnormalIndices: []int{0}}}

	var buf bytes.Buffer
	require.NoError(t, WriteTrajectories(&buf, []models.Trajectory{traj}, anomalies))

	rows := readAll(t, &buf)
	require.Len(t, rows, 3)
	dist := column(rows[0], "distances_km")
	assert.Equal(t, "", rows[1][dist])
	assert.Equal(t, "1.11", rows[2][dist])
	assert.Equal(t, "0", rows[2][column(rows[0], "abnormal_indices")])
	assert.Equal(t, "1", rows[2][column(rows[0], "point_index")])
}

func TestCreate(t *testing.T) {
	dir := t.TempDir() + "/nested"
	f, path, err := Create(dir, FileName("overspeed", "run"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = os.Stat(path)
	assert.NoError(t, err)
}
