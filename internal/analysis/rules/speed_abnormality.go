package rules

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/jengzang/ais-anomaly-go/internal/analysis"
	"github.com/jengzang/ais-anomaly-go/internal/analysis/trajectory"
	"github.com/jengzang/ais-anomaly-go/internal/models"
	"github.com/jengzang/ais-anomaly-go/internal/spatial"
	"github.com/jengzang/ais-anomaly-go/pkg/logger"
)

// ImpliedSpeedFactor is how far the implied speed between two reports may
// exceed the reported instantaneous speed before the pair is abnormal
const ImpliedSpeedFactor = 2.0

// DetectSpeedAbnormality compares, for each consecutive pair (j, j+1), the
// speed implied by distance over elapsed time against the reported speed at
// j. Index j is flagged when the implied speed is more than twice the
// reported one. Pairs with zero elapsed time are skipped and a NaN reported
// speed never flags. See Hu et al. (2022).
func DetectSpeedAbnormality(t models.Trajectory) models.TrajectoryAnomaly {
	res := models.TrajectoryAnomaly{
		MMSI:       t.MMSI(),
		PointCount: t.Len(),
	}
	if t.Len() == 0 {
		return res
	}
	res.StartTime = t.StartTime()
	res.EndTime = t.EndTime()

	for j := 0; j+1 < t.Len(); j++ {
		dtHours := t.Time(j + 1).Sub(t.Time(j)).Hours()
		if dtHours == 0 {
			continue
		}
		implied := spatial.KmhToKnots(t.DistanceKm(j+1) / dtHours)
		if implied > ImpliedSpeedFactor*t.Record(j).ReportedSpeedKnots {
			res.AbnormalIndices = append(res.AbnormalIndices, j)
		}
	}

	res.Anomalous = len(res.AbnormalIndices) > 0
	return res
}

// DetectSpeedAbnormalities runs DetectSpeedAbnormality over every trajectory
// on at most workers goroutines. The output is index-aligned with trajs.
func DetectSpeedAbnormalities(ctx context.Context, trajs []models.Trajectory, workers int) ([]models.TrajectoryAnomaly, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	out := make([]models.TrajectoryAnomaly, len(trajs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range trajs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out[i] = DetectSpeedAbnormality(trajs[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("speed abnormality cancelled: %w", err)
	}
	return out, nil
}

// SpeedAbnormalityRule groups a filtered batch by vessel, segments it and
// checks every trajectory
type SpeedAbnormalityRule struct {
	segmenter *trajectory.Segmenter
	workers   int
	log       *logger.Logger
}

// NewSpeedAbnormalityRule creates the rule
func NewSpeedAbnormalityRule(opts analysis.Options, log *logger.Logger) analysis.Rule {
	log = logger.OrNop(log)
	return &SpeedAbnormalityRule{
		segmenter: trajectory.NewSegmenter(opts.Segmentation, log),
		workers:   opts.Workers,
		log:       log.Named("speed_abnormality"),
	}
}

func (r *SpeedAbnormalityRule) Name() string { return models.AnomalySpeedAbnormality }

func (r *SpeedAbnormalityRule) Detect(ctx context.Context, records []models.AISRecord) (*analysis.Outcome, error) {
	vessels := models.GroupByVessel(records, r.segmenter.Options().TimeField)

	trajs, _, err := r.segmenter.Segment(ctx, vessels)
	if err != nil {
		return nil, err
	}

	anomalies, err := DetectSpeedAbnormalities(ctx, trajs, r.workers)
	if err != nil {
		return nil, err
	}

	var flagged int
	for _, a := range anomalies {
		if a.Anomalous {
			flagged++
		}
	}
	r.log.Info("Speed abnormality check completed",
		logger.Int("trajectories", len(trajs)),
		logger.Int("anomalous", flagged),
	)

	return &analysis.Outcome{
		Rule:         r.Name(),
		Trajectories: trajs,
		Anomalies:    anomalies,
	}, nil
}

func init() {
	analysis.RegisterRule(models.AnomalySpeedAbnormality, NewSpeedAbnormalityRule)
}
