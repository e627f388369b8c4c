package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jengzang/ais-anomaly-go/internal/apperr"
	"github.com/jengzang/ais-anomaly-go/internal/filter"
	"github.com/jengzang/ais-anomaly-go/internal/loader"
	"github.com/jengzang/ais-anomaly-go/internal/models"
	"github.com/jengzang/ais-anomaly-go/pkg/logger"
)

// RecordSource supplies the raw records of a detection run. Sources may
// apply the query coarsely; the service filters again with the full criteria.
type RecordSource interface {
	LoadRecords(ctx context.Context, q models.RecordQuery) ([]models.AISRecord, error)
}

// MemorySource serves a fixed record set, e.g. an uploaded batch
type MemorySource []models.AISRecord

// LoadRecords returns the records matching q
func (m MemorySource) LoadRecords(ctx context.Context, q models.RecordQuery) ([]models.AISRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return filter.Match(m, queryPredicates(q)...), nil
}

// CSVSource reads a single AIS CSV file
type CSVSource struct {
	Path    string
	Options loader.Options
}

// LoadRecords parses the file and applies q
func (s CSVSource) LoadRecords(ctx context.Context, q models.RecordQuery) ([]models.AISRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	records, err := loader.LoadFile(s.Path, s.Options)
	if err != nil {
		return nil, err
	}
	return filter.Match(records, queryPredicates(q)...), nil
}

// MonthlySource reads the Hawaii ground-truth files, one per month of the
// queried timeframe, filtering each month before concatenation
type MonthlySource struct {
	Dir     string
	Options loader.Options
	Log     *logger.Logger
}

// LoadRecords loads every month touched by q. The query must be bounded.
func (s MonthlySource) LoadRecords(ctx context.Context, q models.RecordQuery) ([]models.AISRecord, error) {
	if q.Start.IsZero() || q.End.IsZero() {
		return nil, apperr.Configf("timeframe", "monthly files need both a start and an end date")
	}

	preds := queryPredicates(q)
	keep := func(records []models.AISRecord) ([]models.AISRecord, error) {
		out := filter.Match(records, preds...)
		if len(out) == 0 {
			return nil, fmt.Errorf("month kept 0 of %d records: %w", len(records), apperr.ErrEmptyResult)
		}
		return out, nil
	}

	return loader.LoadMonthly(ctx, s.Dir, q.Start, q.End, keep, s.Options, s.Log)
}

var maxTime = time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)

func queryPredicates(q models.RecordQuery) []filter.Predicate {
	var preds []filter.Predicate
	if !q.Start.IsZero() || !q.End.IsZero() {
		c := models.FilterCriteria{Start: q.Start, End: q.End}
		if c.End.IsZero() {
			c.End = maxTime
		}
		preds = append(preds, filter.Timeframe(c))
	}
	if len(q.VesselClasses) > 0 {
		preds = append(preds, filter.VesselClass(q.VesselClasses))
	}
	if len(q.MMSIs) > 0 {
		set := make(map[int64]struct{}, len(q.MMSIs))
		for _, m := range q.MMSIs {
			set[m] = struct{}{}
		}
		preds = append(preds, func(r models.AISRecord) bool {
			_, ok := set[r.MMSI]
			return ok
		})
	}
	return preds
}
