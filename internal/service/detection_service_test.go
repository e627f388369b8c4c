package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jengzang/ais-anomaly-go/internal/analysis/trajectory"
	"github.com/jengzang/ais-anomaly-go/internal/apperr"
	"github.com/jengzang/ais-anomaly-go/internal/database"
	"github.com/jengzang/ais-anomaly-go/internal/models"
	"github.com/jengzang/ais-anomaly-go/internal/params"
	"github.com/jengzang/ais-anomaly-go/internal/repository"
)

var (
	hst = time.FixedZone("HST", -10*60*60)
	t0  = time.Date(2024, 1, 10, 20, 0, 0, 0, time.UTC) // 10:00 HST
)

func ptr[T any](v T) *T { return &v }

func speedRecords(n int) []models.AISRecord {
	records := make([]models.AISRecord, n)
	for i := range records {
		ts := t0.Add(time.Duration(i) * time.Minute)
		records[i] = models.AISRecord{
			MMSI:               int64(100 + i),
			TimestampUTC:       ts,
			TimestampLocal:     ts.In(hst),
			Latitude:           21,
			Longitude:          -157,
			ReportedSpeedKnots: float64(i + 1),
			ComputedSpeedKnots: float64(i + 1),
			VesselClass:        "Cargo",
			LengthM:            100,
		}
	}
	return records
}

// movingVessel reports every 10 minutes while drifting north-east; the last
// report jumps far enough to look like an implausible speed.
func movingVessel(mmsi int64) []models.AISRecord {
	var records []models.AISRecord
	for i := 0; i < 6; i++ {
		ts := t0.Add(time.Duration(i) * 10 * time.Minute)
		lat := 21 + 0.01*float64(i)
		if i == 5 {
			lat = 22
		}
		records = append(records, models.AISRecord{
			MMSI:               mmsi,
			TimestampUTC:       ts,
			TimestampLocal:     ts.In(hst),
			Latitude:           lat,
			Longitude:          -157 + 0.01*float64(i%2),
			ReportedSpeedKnots: 5,
			ComputedSpeedKnots: 5,
			VesselClass:        "tanker",
			LengthM:            120,
		})
	}
	return records
}

func validated(t *testing.T, anomalyType string, mutate func(*params.Params)) params.Validated {
	t.Helper()
	p := params.Params{
		AnomalyType:   anomalyType,
		VesselClasses: []string{"cargo", "tanker"},
		LengthMin:     50,
		LengthMax:     150,
		DateStart:     "2024-01-01",
		DateEnd:       "2024-01-31",
	}
	if mutate != nil {
		mutate(&p)
	}
	v, err := params.Validate(p)
	require.NoError(t, err)
	return v
}

func newService(source RecordSource) *DetectionService {
	svc := NewDetectionService(source, Options{Segmentation: trajectory.DefaultOptions(), Workers: 2}, nil)
	svc.newID = func() string { return "run-1" }
	return svc
}

func TestRunOverspeed(t *testing.T) {
	records := append(speedRecords(100), models.AISRecord{
		MMSI: 1, TimestampUTC: t0, TimestampLocal: t0.In(hst),
		ComputedSpeedKnots: 500, VesselClass: "fishing", LengthM: 100,
	})
	svc := newService(MemorySource(records))

	v := validated(t, models.AnomalyOverspeed, func(p *params.Params) {
		p.Percentile = ptr(0.98)
		p.NoiseSuppression = ptr(false)
	})

	run, err := svc.RunOverspeed(context.Background(), v)
	require.NoError(t, err)

	assert.Equal(t, "run-1", run.ID)
	assert.Equal(t, models.AnomalyOverspeed, run.AnomalyType)
	assert.Equal(t, 100, run.LoadedRows)
	assert.Equal(t, 100, run.FilteredRows)
	assert.False(t, run.Skipped)
	require.NotNil(t, run.Outcome.Overspeed)
	assert.InDelta(t, 98.02, run.Outcome.Overspeed.Threshold, 1e-9)
	assert.Equal(t, 2, run.Outcome.Overspeed.FlaggedCount)
	assert.NotEmpty(t, run.Advisory)
}

func TestRunOverspeedLargeDatasetHasNoAdvisory(t *testing.T) {
	svc := NewDetectionService(MemorySource(speedRecords(20)), Options{SmallDatasetRows: 10}, nil)

	run, err := svc.RunOverspeed(context.Background(), validated(t, models.AnomalyOverspeed, nil))
	require.NoError(t, err)
	assert.Empty(t, run.Advisory)
	assert.Len(t, run.ID, 36)
}

func TestRunSkipsEmptySelection(t *testing.T) {
	svc := newService(MemorySource(speedRecords(10)))

	v := validated(t, models.AnomalyOverspeed, func(p *params.Params) {
		p.VesselClasses = []string{"fishing"}
	})

	run, err := svc.RunOverspeed(context.Background(), v)
	require.NoError(t, err)
	assert.True(t, run.Skipped)
	assert.NotEmpty(t, run.SkipReason)
	assert.Nil(t, run.Outcome)
}

func TestRunSkipsWhenSuppressionLeavesNothing(t *testing.T) {
	records := speedRecords(3)
	for i := range records {
		records[i].ComputedSpeedKnots = 90
	}
	svc := newService(MemorySource(records))

	run, err := svc.RunOverspeed(context.Background(), validated(t, models.AnomalyOverspeed, nil))
	require.NoError(t, err)
	assert.True(t, run.Skipped)
}

func TestRunSpeedAbnormality(t *testing.T) {
	records := append(movingVessel(7), speedRecords(5)...)
	svc := newService(MemorySource(records))

	run, err := svc.RunSpeedAbnormality(context.Background(), validated(t, models.AnomalySpeedAbnormality, nil))
	require.NoError(t, err)

	require.Len(t, run.Outcome.Trajectories, 1)
	require.Len(t, run.Outcome.Anomalies, 1)
	a := run.Outcome.Anomalies[0]
	assert.Equal(t, int64(7), a.MMSI)
	assert.True(t, a.Anomalous)
	assert.Equal(t, []int{4}, a.AbnormalIndices)
}

func TestDetectUnknownTypeIsConfigurationError(t *testing.T) {
	svc := newService(MemorySource(speedRecords(5)))

	v := validated(t, models.AnomalyOverspeed, nil)
	v.AnomalyType = "loitering"

	_, err := svc.Detect(context.Background(), v)
	require.Error(t, err)
	assert.True(t, apperr.IsConfiguration(err))
}

func TestSegment(t *testing.T) {
	records := append(movingVessel(7), movingVessel(8)...)
	svc := newService(MemorySource(records))

	run, err := svc.Segment(context.Background(), validated(t, models.AnomalySpeedAbnormality, nil))
	require.NoError(t, err)
	assert.Len(t, run.Trajectories, 2)
	assert.Equal(t, 2, run.Stats.Vessels)
	assert.Equal(t, 2, run.Stats.Accepted)
	assert.Equal(t, 12, run.FilteredRows)
}

func TestRunFromRepository(t *testing.T) {
	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{Path: ":memory:"}, nil)
	require.NoError(t, err)
	defer db.Close()

	repo := repository.NewRecordRepository(db)
	_, err = repo.InsertRecords(ctx, movingVessel(7))
	require.NoError(t, err)

	run, err := newService(repo).RunSpeedAbnormality(ctx, validated(t, models.AnomalySpeedAbnormality, nil))
	require.NoError(t, err)
	require.Len(t, run.Outcome.Anomalies, 1)
	assert.Equal(t, []int{4}, run.Outcome.Anomalies[0].AbnormalIndices)
}

func TestExport(t *testing.T) {
	svc := newService(MemorySource(speedRecords(10)))
	run, err := svc.RunOverspeed(context.Background(), validated(t, models.AnomalyOverspeed, nil))
	require.NoError(t, err)

	dir := t.TempDir()
	path, err := Export(dir, run)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "overspeed_detection_run-1.csv"), path)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 11)
	assert.Equal(t, "overspeed_flag", rows[0][len(rows[0])-1])
}

func TestWriteCSVTrajectories(t *testing.T) {
	svc := newService(MemorySource(movingVessel(7)))
	run, err := svc.RunSpeedAbnormality(context.Background(), validated(t, models.AnomalySpeedAbnormality, nil))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, run))
	assert.True(t, strings.Contains(buf.String(), "abnormal_indices"))
	assert.Equal(t, 7, strings.Count(buf.String(), "\n"))

	assert.Error(t, WriteCSV(&buf, &Run{ID: "x"}))
}

func TestMemorySourceAppliesQuery(t *testing.T) {
	src := MemorySource(append(speedRecords(3), movingVessel(7)...))

	got, err := src.LoadRecords(context.Background(), models.RecordQuery{VesselClasses: []string{"TANKER"}})
	require.NoError(t, err)
	assert.Len(t, got, 6)

	got, err = src.LoadRecords(context.Background(), models.RecordQuery{Start: t0.Add(time.Minute), MMSIs: []int64{100, 101, 102}})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestMonthlySourceNeedsBoundedQuery(t *testing.T) {
	_, err := MonthlySource{Dir: t.TempDir()}.LoadRecords(context.Background(), models.RecordQuery{})
	assert.True(t, apperr.IsConfiguration(err))
}

func TestMonthlySource(t *testing.T) {
	dir := t.TempDir()
	content := "MMSI,datetime_utc,datetime_hst,lat,lon,speed_over_ground_knots,comput_speed_knots,vessel_class,length_m\n" +
		"1,2024-01-10 20:00:00,2024-01-10 10:00:00,21,-157,5,5,cargo,100\n" +
		"2,2024-01-10 20:00:00,2024-01-10 10:00:00,21,-157,5,5,fishing,100\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Hawaii_2024_01.csv"), []byte(content), 0o644))

	src := MonthlySource{Dir: dir}
	got, err := src.LoadRecords(context.Background(), models.RecordQuery{
		Start:         time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:           time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
		VesselClasses: []string{"cargo"},
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(1), got[0].MMSI)
}

func TestDetectRejectsNonFinitePositionInCSV(t *testing.T) {
	var b strings.Builder
	b.WriteString("MMSI,datetime_utc,datetime_hst,lat,lon,speed_over_ground_knots,comput_speed_knots,vessel_class,length_m\n")
	for i := 0; i < 6; i++ {
		lat := fmt.Sprintf("%.2f", 21+0.01*float64(i))
		if i == 2 {
			lat = "nan"
		}
		fmt.Fprintf(&b, "1,2024-01-10 20:%d0:00,2024-01-10 10:%d0:00,%s,-157,5,5,tanker,120\n", i, i, lat)
	}
	path := filepath.Join(t.TempDir(), "ais.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))

	svc := newService(CSVSource{Path: path})
	_, err := svc.Detect(context.Background(), validated(t, models.AnomalySpeedAbnormality, nil))
	require.Error(t, err)
	assert.True(t, apperr.IsDataQuality(err))
}

func TestDetectSurvivesNonFinitePositionInMemory(t *testing.T) {
	records := movingVessel(7)
	records[2].Latitude = math.NaN()

	svc := newService(MemorySource(records))
	require.NotPanics(t, func() {
		_, err := svc.Detect(context.Background(), validated(t, models.AnomalySpeedAbnormality, nil))
		require.NoError(t, err)
	})
}
