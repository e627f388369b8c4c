package loader

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/jengzang/ais-anomaly-go/internal/apperr"
	"github.com/jengzang/ais-anomaly-go/internal/models"
	"github.com/jengzang/ais-anomaly-go/pkg/logger"
)

// MonthFunc narrows one month of records before it joins the result. It may
// return apperr.ErrEmptyResult, which skips the month.
type MonthFunc func(records []models.AISRecord) ([]models.AISRecord, error)

// MonthlyFileName returns the Hawaii ground-truth file name for a month,
// e.g. Hawaii_2024_03.csv
func MonthlyFileName(year int, month time.Month) string {
	return fmt.Sprintf("Hawaii_%d_%02d.csv", year, int(month))
}

// Months lists the first day of every month touched by [start, end], in UTC
func Months(start, end time.Time) []time.Time {
	start, end = start.UTC(), end.UTC()
	if end.Before(start) {
		return nil
	}

	var out []time.Time
	m := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)
	for !m.After(end) {
		out = append(out, m)
		m = m.AddDate(0, 1, 0)
	}
	return out
}

// LoadMonthly reads the monthly Hawaii files in dir covering [start, end],
// passes each month through keep, and concatenates what survives. A missing
// month file is an error. If every month comes back empty the result is
// apperr.ErrEmptyResult.
func LoadMonthly(ctx context.Context, dir string, start, end time.Time, keep MonthFunc, opts Options, log *logger.Logger) ([]models.AISRecord, error) {
	log = logger.OrNop(log).Named("loader")

	months := Months(start, end)
	if len(months) == 0 {
		return nil, apperr.Configf("timeframe", "start %s is after end %s", start.Format(time.DateOnly), end.Format(time.DateOnly))
	}

	var out []models.AISRecord
	for _, m := range months {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		path := filepath.Join(dir, MonthlyFileName(m.Year(), m.Month()))
		log.Info("Loading monthly file", logger.String("path", path))

		records, err := LoadFile(path, opts)
		if err != nil {
			return nil, err
		}

		if keep != nil {
			records, err = keep(records)
			if errors.Is(err, apperr.ErrEmptyResult) {
				log.Warn("Month filtered out entirely", logger.String("path", path))
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("failed to filter %s: %w", path, err)
			}
		}

		out = append(out, records...)
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("no records in %d monthly files: %w", len(months), apperr.ErrEmptyResult)
	}
	return out, nil
}
