// Package trajectory splits per-vessel AIS record runs into trajectories.
//
// A vessel's records (sorted by the configured time field) are cut wherever
// two consecutive reports are more than GapThreshold apart. Each block is
// de-duplicated and must then hold at least MinPoints records and cover an
// extent strictly greater than MinExtent to become a Trajectory. Accepted
// trajectories from all vessels are returned ordered by their final
// timestamp.
package trajectory

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jengzang/ais-anomaly-go/internal/models"
	"github.com/jengzang/ais-anomaly-go/internal/spatial"
	"github.com/jengzang/ais-anomaly-go/pkg/logger"
)

// Defaults
const (
	DefaultGapThreshold = 30 * time.Minute
	DefaultMinPoints    = 5
	DefaultMinExtent    = 0.2 // km², convex hull area
)

// ExtentFunc measures the spatial extent of a block of points
type ExtentFunc func(points []spatial.Point) float64

// Options controls segmentation
type Options struct {
	TimeField    models.TimeField
	GapThreshold time.Duration
	MinPoints    int
	MinExtent    float64 // km², 0 means DefaultMinExtent, negative disables the gate
	Extent       ExtentFunc
	Workers      int // 0 means GOMAXPROCS
}

// DefaultOptions returns the documented defaults, segmenting on local time
// and gating on convex hull area
func DefaultOptions() Options {
	return Options{
		TimeField:    models.TimeFieldLocal,
		GapThreshold: DefaultGapThreshold,
		MinPoints:    DefaultMinPoints,
		MinExtent:    DefaultMinExtent,
		Extent:       spatial.ConvexHullAreaKm2,
	}
}

// Stats counts what happened to the blocks of one Segment call
type Stats struct {
	Vessels          int
	Blocks           int
	DuplicatesPruned int
	TooFewPoints     int
	TooSmallExtent   int
	Accepted         int
}

func (s *Stats) add(o Stats) {
	s.Blocks += o.Blocks
	s.DuplicatesPruned += o.DuplicatesPruned
	s.TooFewPoints += o.TooFewPoints
	s.TooSmallExtent += o.TooSmallExtent
	s.Accepted += o.Accepted
}

// Segmenter builds trajectories
type Segmenter struct {
	opts Options
	log  *logger.Logger
}

// NewSegmenter creates a segmenter. Zero-valued options fall back to defaults.
func NewSegmenter(opts Options, log *logger.Logger) *Segmenter {
	def := DefaultOptions()
	if !opts.TimeField.Valid() {
		opts.TimeField = def.TimeField
	}
	if opts.GapThreshold <= 0 {
		opts.GapThreshold = def.GapThreshold
	}
	if opts.MinPoints <= 0 {
		opts.MinPoints = def.MinPoints
	}
	if opts.MinExtent == 0 {
		opts.MinExtent = def.MinExtent
	}
	if opts.Extent == nil {
		opts.Extent = def.Extent
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}

	return &Segmenter{
		opts: opts,
		log:  logger.OrNop(log).Named("segmenter"),
	}
}

// Options returns the effective options
func (s *Segmenter) Options() Options {
	return s.opts
}

type vesselResult struct {
	trajectories []models.Trajectory
	stats        Stats
}

// Segment splits every vessel's records into trajectories. Each vessel's
// records must already be sorted by the configured time field. Vessels are
// processed concurrently; the result is ordered by final timestamp, ties kept
// in input order.
func (s *Segmenter) Segment(ctx context.Context, vessels []models.VesselRecords) ([]models.Trajectory, Stats, error) {
	results := make([]vesselResult, len(vessels))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)

	for i := range vessels {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = s.segmentVessel(vessels[i])
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, Stats{}, fmt.Errorf("segmentation cancelled: %w", err)
	}

	stats := Stats{Vessels: len(vessels)}
	var out []models.Trajectory
	for _, r := range results {
		stats.add(r.stats)
		out = append(out, r.trajectories...)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].EndTime().Before(out[j].EndTime())
	})

	s.log.Info("Segmentation completed",
		logger.Int("vessels", stats.Vessels),
		logger.Int("blocks", stats.Blocks),
		logger.Int("too_few_points", stats.TooFewPoints),
		logger.Int("too_small_extent", stats.TooSmallExtent),
		logger.Int("trajectories", stats.Accepted),
	)

	return out, stats, nil
}

func (s *Segmenter) segmentVessel(v models.VesselRecords) vesselResult {
	var res vesselResult

	for _, block := range SplitOnGaps(v.Records, s.opts.TimeField, s.opts.GapThreshold) {
		res.stats.Blocks++

		unique := DropDuplicates(block)
		res.stats.DuplicatesPruned += len(block) - len(unique)

		if len(unique) < s.opts.MinPoints {
			res.stats.TooFewPoints++
			continue
		}

		points := toPoints(unique)
		extent := s.opts.Extent(points)
		if extent <= s.opts.MinExtent {
			res.stats.TooSmallExtent++
			s.log.Debug("Block rejected by extent gate",
				logger.Int64("mmsi", v.MMSI),
				logger.Int("points", len(unique)),
				logger.Float64("extent", extent),
			)
			continue
		}

		traj := models.NewTrajectory(unique, s.opts.TimeField, spatial.SegmentDistancesKm(points), extent)
		res.trajectories = append(res.trajectories, traj)
		res.stats.Accepted++
	}

	return res
}

// SplitOnGaps partitions time-sorted records into maximal blocks whose
// consecutive time deltas never exceed gap. The blocks share the backing
// array of records.
func SplitOnGaps(records []models.AISRecord, field models.TimeField, gap time.Duration) [][]models.AISRecord {
	if len(records) == 0 {
		return nil
	}

	var blocks [][]models.AISRecord
	start := 0
	for i := 1; i < len(records); i++ {
		if field.Of(records[i]).Sub(field.Of(records[i-1])) > gap {
			blocks = append(blocks, records[start:i])
			start = i
		}
	}
	return append(blocks, records[start:])
}

// DropDuplicates returns a new slice without exact-duplicate records,
// keeping the first occurrence of each
func DropDuplicates(records []models.AISRecord) []models.AISRecord {
	seen := make(map[models.RecordKey]struct{}, len(records))
	out := make([]models.AISRecord, 0, len(records))

	for _, r := range records {
		k := r.Key()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out
}

func toPoints(records []models.AISRecord) []spatial.Point {
	points := make([]spatial.Point, len(records))
	for i, r := range records {
		points[i] = spatial.Point{Lat: r.Latitude, Lon: r.Longitude}
	}
	return points
}
