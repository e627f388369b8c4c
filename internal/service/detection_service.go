package service

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/jengzang/ais-anomaly-go/internal/analysis"
	_ "github.com/jengzang/ais-anomaly-go/internal/analysis/rules" // register anomaly rules
	"github.com/jengzang/ais-anomaly-go/internal/analysis/trajectory"
	"github.com/jengzang/ais-anomaly-go/internal/apperr"
	"github.com/jengzang/ais-anomaly-go/internal/filter"
	"github.com/jengzang/ais-anomaly-go/internal/models"
	"github.com/jengzang/ais-anomaly-go/internal/output"
	"github.com/jengzang/ais-anomaly-go/internal/params"
	"github.com/jengzang/ais-anomaly-go/pkg/logger"
)

// DefaultSmallDatasetRows is the output size below which results are
// flagged as possibly unreliable
const DefaultSmallDatasetRows = 50000

// SmallDatasetAdvisory is attached to runs with few output rows
const SmallDatasetAdvisory = "dataset may be unreliable: fewer than %d output rows"

// Options configures the detection service
type Options struct {
	Segmentation     trajectory.Options
	Workers          int
	SmallDatasetRows int
}

// Run is the result of one detection run
type Run struct {
	ID          string
	AnomalyType string

	LoadedRows   int
	FilteredRows int

	// Skipped is set when filtering or noise suppression left nothing to
	// analyse; SkipReason carries the cause
	Skipped    bool
	SkipReason string

	Advisory string
	Outcome  *analysis.Outcome
}

// SegmentRun is the result of a segmentation-only run
type SegmentRun struct {
	ID           string
	LoadedRows   int
	FilteredRows int
	Skipped      bool
	SkipReason   string
	Trajectories []models.Trajectory
	Stats        trajectory.Stats
}

// DetectionService handles anomaly detection business logic
type DetectionService struct {
	source RecordSource
	opts   Options
	log    *logger.Logger
	newID  func() string
}

// NewDetectionService creates a new detection service reading from source
func NewDetectionService(source RecordSource, opts Options, log *logger.Logger) *DetectionService {
	if opts.SmallDatasetRows <= 0 {
		opts.SmallDatasetRows = DefaultSmallDatasetRows
	}
	return &DetectionService{
		source: source,
		opts:   opts,
		log:    logger.OrNop(log).Named("detection"),
		newID:  uuid.NewString,
	}
}

// WithSource returns a copy of the service reading from source
func (s *DetectionService) WithSource(source RecordSource) *DetectionService {
	c := *s
	c.source = source
	return &c
}

// RunOverspeed runs the overspeed rule with the run configuration v
func (s *DetectionService) RunOverspeed(ctx context.Context, v params.Validated) (*Run, error) {
	return s.run(ctx, models.AnomalyOverspeed, v)
}

// RunSpeedAbnormality runs the trajectory speed abnormality rule
func (s *DetectionService) RunSpeedAbnormality(ctx context.Context, v params.Validated) (*Run, error) {
	return s.run(ctx, models.AnomalySpeedAbnormality, v)
}

// Detect runs the rule registered for v.AnomalyType
func (s *DetectionService) Detect(ctx context.Context, v params.Validated) (*Run, error) {
	return s.run(ctx, v.AnomalyType, v)
}

func (s *DetectionService) run(ctx context.Context, anomalyType string, v params.Validated) (*Run, error) {
	run := &Run{ID: s.newID(), AnomalyType: anomalyType}
	log := s.log.WithRunID(run.ID).With(logger.String("anomaly_type", anomalyType))

	rule, err := analysis.GetRule(anomalyType, v.AnalysisOptions(s.opts.Segmentation, s.opts.Workers), log)
	if err != nil {
		return nil, err
	}

	records, err := s.selectRecords(ctx, v, &run.LoadedRows)
	if err != nil {
		return s.skip(run, log, err)
	}
	run.FilteredRows = len(records)

	log.Info("Running detection",
		logger.Int("loaded", run.LoadedRows),
		logger.Int("filtered", run.FilteredRows),
	)

	outcome, err := rule.Detect(ctx, records)
	if err != nil {
		return s.skip(run, log, err)
	}
	run.Outcome = outcome

	if rows := outcome.Rows(); rows < s.opts.SmallDatasetRows {
		run.Advisory = fmt.Sprintf(SmallDatasetAdvisory, s.opts.SmallDatasetRows)
		log.Warn("Small dataset", logger.Int("rows", rows), logger.Int("threshold", s.opts.SmallDatasetRows))
	}

	log.Info("Detection completed", logger.Int("rows", outcome.Rows()))
	return run, nil
}

// Segment splits the selected records into trajectories without running a rule
func (s *DetectionService) Segment(ctx context.Context, v params.Validated) (*SegmentRun, error) {
	run := &SegmentRun{ID: s.newID()}
	log := s.log.WithRunID(run.ID)

	records, err := s.selectRecords(ctx, v, &run.LoadedRows)
	if errors.Is(err, apperr.ErrEmptyResult) {
		log.Warn("Segmentation skipped", logger.Error(err))
		run.Skipped, run.SkipReason = true, err.Error()
		return run, nil
	}
	if err != nil {
		return nil, err
	}
	run.FilteredRows = len(records)

	opts := v.AnalysisOptions(s.opts.Segmentation, s.opts.Workers).Segmentation
	seg := trajectory.NewSegmenter(opts, log)

	run.Trajectories, run.Stats, err = seg.Segment(ctx, models.GroupByVessel(records, seg.Options().TimeField))
	if err != nil {
		return nil, err
	}
	return run, nil
}

func (s *DetectionService) selectRecords(ctx context.Context, v params.Validated, loaded *int) ([]models.AISRecord, error) {
	records, err := s.source.LoadRecords(ctx, models.RecordQuery{
		Start:         v.Criteria.Start,
		End:           v.Criteria.End,
		VesselClasses: v.Criteria.VesselClasses,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load records: %w", err)
	}
	*loaded = len(records)

	return filter.Apply(records, v.Criteria)
}

// skip turns an empty result into a skipped run; other errors pass through
func (s *DetectionService) skip(run *Run, log *logger.Logger, err error) (*Run, error) {
	if !errors.Is(err, apperr.ErrEmptyResult) {
		return nil, err
	}
	log.Warn("Detection skipped", logger.Error(err))
	run.Skipped, run.SkipReason = true, err.Error()
	return run, nil
}

// WriteCSV serialises the outcome of run to w
func WriteCSV(w io.Writer, run *Run) error {
	switch {
	case run.Outcome == nil:
		return fmt.Errorf("run %s has no outcome", run.ID)
	case run.Outcome.Overspeed != nil:
		return output.WriteOverspeed(w, run.Outcome.Overspeed)
	default:
		return output.WriteTrajectories(w, run.Outcome.Trajectories, run.Outcome.Anomalies)
	}
}

// Export writes run into dir as <type>_detection_<run-id>.csv and returns
// the file path
func Export(dir string, run *Run) (string, error) {
	f, path, err := output.Create(dir, output.FileName(run.AnomalyType, run.ID))
	if err != nil {
		return "", err
	}

	if err := WriteCSV(f, run); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close %s: %w", path, err)
	}
	return path, nil
}
