package analysis

import (
	"context"
	"sort"
	"sync"

	"github.com/jengzang/ais-anomaly-go/internal/analysis/trajectory"
	"github.com/jengzang/ais-anomaly-go/internal/apperr"
	"github.com/jengzang/ais-anomaly-go/internal/models"
	"github.com/jengzang/ais-anomaly-go/pkg/logger"
)

// Rule is the interface that all anomaly rules must implement
type Rule interface {
	// Detect runs the rule over an already filtered record batch.
	// Implementations must not modify records.
	Detect(ctx context.Context, records []models.AISRecord) (*Outcome, error)

	// Name returns the anomaly type selector the rule is registered under
	Name() string
}

// Outcome is what a rule hands to the output sink
type Outcome struct {
	Rule string

	// Set by the overspeed rule
	Overspeed *models.OverspeedResult

	// Set by trajectory-based rules
	Trajectories []models.Trajectory
	Anomalies    []models.TrajectoryAnomaly
}

// Rows returns the number of output rows the outcome serialises to
func (o *Outcome) Rows() int {
	if o.Overspeed != nil {
		return len(o.Overspeed.Records)
	}
	return len(o.Anomalies)
}

// Options carries every tunable a rule may need
type Options struct {
	Percentile       float64
	NoiseSuppression bool
	Segmentation     trajectory.Options
	Workers          int
}

// RuleFactory is a function that creates a rule instance
type RuleFactory func(opts Options, log *logger.Logger) Rule

var (
	registryMu   sync.RWMutex
	ruleRegistry = make(map[string]RuleFactory)
)

// RegisterRule registers a rule factory for an anomaly type
func RegisterRule(anomalyType string, factory RuleFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	ruleRegistry[anomalyType] = factory
}

// GetRule builds the rule registered for anomalyType. An unknown selector is
// a configuration error.
func GetRule(anomalyType string, opts Options, log *logger.Logger) (Rule, error) {
	registryMu.RLock()
	factory, ok := ruleRegistry[anomalyType]
	registryMu.RUnlock()

	if !ok {
		return nil, apperr.Configf("anomaly_type", "unsupported anomaly type %q (supported: %v)", anomalyType, RegisteredRules())
	}
	return factory(opts, logger.OrNop(log)), nil
}

// RegisteredRules lists the registered anomaly types in sorted order
func RegisteredRules() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(ruleRegistry))
	for name := range ruleRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsRegistered reports whether anomalyType has a rule
func IsRegistered(anomalyType string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := ruleRegistry[anomalyType]
	return ok
}
