package rules

import (
	"context"
	"fmt"

	"github.com/jengzang/ais-anomaly-go/internal/analysis"
	"github.com/jengzang/ais-anomaly-go/internal/apperr"
	"github.com/jengzang/ais-anomaly-go/internal/models"
	"github.com/jengzang/ais-anomaly-go/internal/stats"
	"github.com/jengzang/ais-anomaly-go/pkg/logger"
)

// Overspeed defaults and noise limits, in knots
const (
	DefaultPercentile      = 0.99
	LegacyPercentile       = 0.98
	StationarySpeedFloor   = 0.1
	MaxPlausibleSpeedKnots = 65.0
)

// OverspeedOptions configures DetectOverspeed
type OverspeedOptions struct {
	Percentile       float64 // in (0, 1]
	NoiseSuppression bool
}

// DefaultOverspeedOptions returns percentile 0.99 with noise suppression on
func DefaultOverspeedOptions() OverspeedOptions {
	return OverspeedOptions{Percentile: DefaultPercentile, NoiseSuppression: true}
}

// ValidatePercentile rejects percentiles outside (0, 1], NaN included
func ValidatePercentile(p float64) error {
	if !(p > 0 && p <= 1) {
		return apperr.Configf("percentile", "must be in (0, 1], got %v", p)
	}
	return nil
}

// DetectOverspeed flags records whose computed speed is strictly above the
// percentile threshold of the valid speed population. Records with a
// non-finite computed speed are dropped. With noise suppression, stationary
// records (anchored or moored below 0.1 kn) and implausible speeds (above
// 65 kn) are dropped before the threshold is computed.
func DetectOverspeed(records []models.AISRecord, opts OverspeedOptions, log *logger.Logger) (*models.OverspeedResult, error) {
	if err := ValidatePercentile(opts.Percentile); err != nil {
		return nil, err
	}
	log = logger.OrNop(log)

	result := &models.OverspeedResult{
		Percentile: opts.Percentile,
		InputCount: len(records),
	}

	survivors := make([]models.FlaggedRecord, 0, len(records))
	for _, r := range records {
		if !r.HasComputedSpeed() {
			result.NonFiniteDropped++
			continue
		}
		if opts.NoiseSuppression {
			if r.IsStationaryStatus() && r.ComputedSpeedKnots < StationarySpeedFloor {
				result.StationaryDropped++
				continue
			}
			if r.ComputedSpeedKnots > MaxPlausibleSpeedKnots {
				result.OutlierDropped++
				continue
			}
		}
		survivors = append(survivors, models.FlaggedRecord{AISRecord: r})
	}

	if len(survivors) == 0 {
		return nil, fmt.Errorf("overspeed: no valid speeds among %d records: %w", len(records), apperr.ErrEmptyResult)
	}

	speeds := make([]float64, len(survivors))
	for i, r := range survivors {
		speeds[i] = r.ComputedSpeedKnots
	}

	threshold := stats.Quantile(speeds, opts.Percentile)
	for i := range survivors {
		if survivors[i].ComputedSpeedKnots > threshold {
			survivors[i].OverspeedFlag = true
			result.FlaggedCount++
		}
	}

	summary := stats.Describe(speeds)
	result.Records = survivors
	result.Threshold = threshold
	result.Summary = models.SpeedSummary{
		Count:  summary.Count,
		Min:    summary.Min,
		Max:    summary.Max,
		Mean:   summary.Mean,
		StdDev: summary.StdDev,
		Median: summary.Median,
	}

	log.Info("Overspeed threshold computed",
		logger.Float64("percentile", opts.Percentile),
		logger.Float64("threshold_knots", threshold),
		logger.Int("valid", len(survivors)),
		logger.Int("flagged", result.FlaggedCount),
		logger.Int("stationary_dropped", result.StationaryDropped),
		logger.Int("outlier_dropped", result.OutlierDropped),
		logger.Int("non_finite_dropped", result.NonFiniteDropped),
	)

	return result, nil
}

// OverspeedRule runs DetectOverspeed on a filtered record batch
type OverspeedRule struct {
	opts OverspeedOptions
	log  *logger.Logger
}

// NewOverspeedRule creates the rule. A zero percentile means the default.
func NewOverspeedRule(opts analysis.Options, log *logger.Logger) analysis.Rule {
	p := opts.Percentile
	if p == 0 {
		p = DefaultPercentile
	}
	return &OverspeedRule{
		opts: OverspeedOptions{Percentile: p, NoiseSuppression: opts.NoiseSuppression},
		log:  logger.OrNop(log).Named("overspeed"),
	}
}

func (r *OverspeedRule) Name() string { return models.AnomalyOverspeed }

func (r *OverspeedRule) Detect(ctx context.Context, records []models.AISRecord) (*analysis.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res, err := DetectOverspeed(records, r.opts, r.log)
	if err != nil {
		return nil, err
	}
	return &analysis.Outcome{Rule: r.Name(), Overspeed: res}, nil
}

func init() {
	analysis.RegisterRule(models.AnomalyOverspeed, NewOverspeedRule)
}
