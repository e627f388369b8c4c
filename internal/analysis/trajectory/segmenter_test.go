package trajectory

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jengzang/ais-anomaly-go/internal/models"
	"github.com/jengzang/ais-anomaly-go/internal/spatial"
)

var t0 = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

// track builds a zig-zag run for one vessel with a report at each offset
func track(mmsi int64, offsets ...time.Duration) []models.AISRecord {
	records := make([]models.AISRecord, len(offsets))
	for i, off := range offsets {
		ts := t0.Add(off)
		records[i] = models.AISRecord{
			MMSI:               mmsi,
			TimestampUTC:       ts,
			TimestampLocal:     ts,
			Latitude:           21.0 + 0.01*float64(i),
			Longitude:          -157.0 + 0.01*float64(i%2),
			ReportedSpeedKnots: 10,
			ComputedSpeedKnots: 10,
		}
	}
	return records
}

func minutes(ns ...int) []time.Duration {
	out := make([]time.Duration, len(ns))
	for i, n := range ns {
		out[i] = time.Duration(n) * time.Minute
	}
	return out
}

func constExtent(v float64) ExtentFunc {
	return func([]spatial.Point) float64 { return v }
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.TimeField = models.TimeFieldUTC
	opts.Extent = constExtent(1)
	return opts
}

func TestSplitOnGaps(t *testing.T) {
	records := track(1, minutes(0, 10, 40, 71, 80, 81)...)

	blocks := SplitOnGaps(records, models.TimeFieldUTC, 30*time.Minute)
	require.Len(t, blocks, 2)
	assert.Len(t, blocks[0], 3) // 0, 10, 40
	assert.Len(t, blocks[1], 3) // 71, 80, 81
}

func TestSplitOnGapsBoundaryIsInclusive(t *testing.T) {
	// a delta exactly equal to the threshold does not cut
	records := track(1, minutes(0, 30, 60)...)
	blocks := SplitOnGaps(records, models.TimeFieldUTC, 30*time.Minute)
	require.Len(t, blocks, 1)
	assert.Len(t, blocks[0], 3)
}

func TestSplitOnGapsEmptyAndSingle(t *testing.T) {
	assert.Nil(t, SplitOnGaps(nil, models.TimeFieldUTC, time.Minute))

	blocks := SplitOnGaps(track(1, 0), models.TimeFieldUTC, time.Minute)
	require.Len(t, blocks, 1)
	assert.Len(t, blocks[0], 1)
}

func TestDropDuplicates(t *testing.T) {
	records := track(1, minutes(0, 1, 2)...)
	withDup := []models.AISRecord{records[0], records[1], records[0], records[2], records[1]}

	got := DropDuplicates(withDup)
	assert.Equal(t, records, got)
}

func TestSegmentRespectsMinPointsAndGap(t *testing.T) {
	// block A: 6 points, block B: 3 points (dropped), block C: 5 points
	offsets := minutes(0, 5, 10, 15, 20, 25, 100, 105, 110, 200, 210, 220, 230, 240)
	vessels := []models.VesselRecords{{MMSI: 1, Records: track(1, offsets...)}}

	seg := NewSegmenter(testOptions(), nil)
	trajs, stats, err := seg.Segment(context.Background(), vessels)
	require.NoError(t, err)

	require.Len(t, trajs, 2)
	assert.Equal(t, 6, trajs[0].Len())
	assert.Equal(t, 5, trajs[1].Len())
	assert.Equal(t, 3, stats.Blocks)
	assert.Equal(t, 1, stats.TooFewPoints)
	assert.Equal(t, 2, stats.Accepted)

	for _, tr := range trajs {
		assert.GreaterOrEqual(t, tr.Len(), DefaultMinPoints)
		for i := 1; i < tr.Len(); i++ {
			assert.LessOrEqual(t, tr.Time(i).Sub(tr.Time(i-1)), DefaultGapThreshold)
		}
	}
}

func TestSegmentDuplicatesCountAgainstMinPoints(t *testing.T) {
	records := track(1, minutes(0, 1, 2, 3)...)
	records = append(records, records[3]) // five rows, four unique
	vessels := []models.VesselRecords{{MMSI: 1, Records: records}}

	trajs, stats, err := NewSegmenter(testOptions(), nil).Segment(context.Background(), vessels)
	require.NoError(t, err)
	assert.Empty(t, trajs)
	assert.Equal(t, 1, stats.DuplicatesPruned)
	assert.Equal(t, 1, stats.TooFewPoints)
}

func TestSegmentExtentGateIsStrict(t *testing.T) {
	vessels := []models.VesselRecords{{MMSI: 1, Records: track(1, minutes(0, 1, 2, 3, 4)...)}}

	opts := testOptions()
	opts.Extent = constExtent(DefaultMinExtent)
	trajs, stats, err := NewSegmenter(opts, nil).Segment(context.Background(), vessels)
	require.NoError(t, err)
	assert.Empty(t, trajs)
	assert.Equal(t, 1, stats.TooSmallExtent)

	opts.Extent = constExtent(DefaultMinExtent + 1e-9)
	trajs, _, err = NewSegmenter(opts, nil).Segment(context.Background(), vessels)
	require.NoError(t, err)
	assert.Len(t, trajs, 1)
}

func TestSegmentNegativeMinExtentDisablesGate(t *testing.T) {
	vessels := []models.VesselRecords{{MMSI: 1, Records: track(1, minutes(0, 1, 2, 3, 4)...)}}

	opts := testOptions()
	opts.MinExtent = -1
	opts.Extent = constExtent(0)
	trajs, stats, err := NewSegmenter(opts, nil).Segment(context.Background(), vessels)
	require.NoError(t, err)
	assert.Len(t, trajs, 1)
	assert.Zero(t, stats.TooSmallExtent)
}

func TestSegmentSurvivesNonFinitePosition(t *testing.T) {
	records := track(1, minutes(0, 1, 2, 3, 4, 5)...)
	records[2].Latitude = math.NaN()
	records[4].Longitude = math.Inf(1)
	vessels := []models.VesselRecords{{MMSI: 1, Records: records}}

	opts := DefaultOptions()
	opts.TimeField = models.TimeFieldUTC
	var trajs []models.Trajectory
	require.NotPanics(t, func() {
		var err error
		trajs, _, err = NewSegmenter(opts, nil).Segment(context.Background(), vessels)
		require.NoError(t, err)
	})
	require.Len(t, trajs, 1)
	assert.False(t, math.IsNaN(trajs[0].Extent()))
}

func TestSegmentWithConvexHullExtent(t *testing.T) {
	moving := track(1, minutes(0, 1, 2, 3, 4, 5)...)

	anchored := track(2, minutes(0, 1, 2, 3, 4, 5)...)
	for i := range anchored {
		anchored[i].Latitude, anchored[i].Longitude = 21.3, -157.86
	}

	vessels := []models.VesselRecords{
		{MMSI: 1, Records: moving},
		{MMSI: 2, Records: anchored},
	}

	opts := DefaultOptions()
	opts.TimeField = models.TimeFieldUTC
	trajs, stats, err := NewSegmenter(opts, nil).Segment(context.Background(), vessels)
	require.NoError(t, err)

	require.Len(t, trajs, 1)
	assert.Equal(t, int64(1), trajs[0].MMSI())
	assert.Greater(t, trajs[0].Extent(), DefaultMinExtent)
	assert.Equal(t, 1, stats.TooSmallExtent)
}

func TestSegmentOrdersByEndTimeStably(t *testing.T) {
	vessels := []models.VesselRecords{
		{MMSI: 1, Records: track(1, minutes(0, 10, 20, 30, 50)...)},  // ends at 50
		{MMSI: 2, Records: track(2, minutes(10, 11, 12, 13, 14)...)}, // ends at 14
		{MMSI: 3, Records: track(3, minutes(20, 30, 40, 45, 50)...)}, // ends at 50, ties with 1
	}

	trajs, _, err := NewSegmenter(testOptions(), nil).Segment(context.Background(), vessels)
	require.NoError(t, err)

	var got []int64
	for _, tr := range trajs {
		got = append(got, tr.MMSI())
	}
	assert.Equal(t, []int64{2, 1, 3}, got)
}

func TestSegmentComputesDistances(t *testing.T) {
	records := track(1, minutes(0, 1, 2, 3, 4)...)
	vessels := []models.VesselRecords{{MMSI: 1, Records: records}}

	trajs, _, err := NewSegmenter(testOptions(), nil).Segment(context.Background(), vessels)
	require.NoError(t, err)
	require.Len(t, trajs, 1)

	d := trajs[0].DistancesKm()
	require.Len(t, d, 5)
	assert.True(t, math.IsNaN(d[0]))
	want := spatial.DistanceKm(records[0].Latitude, records[0].Longitude, records[1].Latitude, records[1].Longitude)
	assert.InDelta(t, want, d[1], 1e-12)
}

func TestSegmentSingleRecordVessel(t *testing.T) {
	vessels := []models.VesselRecords{{MMSI: 1, Records: track(1, 0)}}

	opts := testOptions()
	opts.MinPoints = 1
	trajs, _, err := NewSegmenter(opts, nil).Segment(context.Background(), vessels)
	require.NoError(t, err)
	assert.Len(t, trajs, 1)

	trajs, _, err = NewSegmenter(testOptions(), nil).Segment(context.Background(), vessels)
	require.NoError(t, err)
	assert.Empty(t, trajs)
}

func TestSegmentHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	vessels := []models.VesselRecords{{MMSI: 1, Records: track(1, minutes(0, 1, 2, 3, 4)...)}}
	_, _, err := NewSegmenter(testOptions(), nil).Segment(ctx, vessels)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSegmentOnLocalTime(t *testing.T) {
	records := track(1, minutes(0, 1, 2, 3, 4)...)
	// UTC timestamps spread out, local ones contiguous
	for i := range records {
		records[i].TimestampUTC = t0.Add(time.Duration(i) * time.Hour)
	}
	vessels := []models.VesselRecords{{MMSI: 1, Records: records}}

	opts := testOptions()
	opts.TimeField = models.TimeFieldLocal
	trajs, _, err := NewSegmenter(opts, nil).Segment(context.Background(), vessels)
	require.NoError(t, err)
	assert.Len(t, trajs, 1)

	opts.TimeField = models.TimeFieldUTC
	trajs, _, err = NewSegmenter(opts, nil).Segment(context.Background(), vessels)
	require.NoError(t, err)
	assert.Empty(t, trajs)
}

func TestNewSegmenterFillsDefaults(t *testing.T) {
	seg := NewSegmenter(Options{}, nil)
	opts := seg.Options()
	assert.Equal(t, models.TimeFieldLocal, opts.TimeField)
	assert.Equal(t, DefaultGapThreshold, opts.GapThreshold)
	assert.Equal(t, DefaultMinPoints, opts.MinPoints)
	assert.Equal(t, DefaultMinExtent, opts.MinExtent)
	assert.NotNil(t, opts.Extent)
	assert.Positive(t, opts.Workers)
}
