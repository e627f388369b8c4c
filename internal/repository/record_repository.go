package repository

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jengzang/ais-anomaly-go/internal/database"
	"github.com/jengzang/ais-anomaly-go/internal/models"
)

const insertBatchSize = 500

// RecordRepository handles database operations for AIS records
type RecordRepository struct {
	db *sql.DB
}

// NewRecordRepository creates a new record repository
func NewRecordRepository(db *sql.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

// LoadRecords returns the records matching q ordered by MMSI then UTC time.
// Zero time bounds and empty lists do not constrain the query.
func (r *RecordRepository) LoadRecords(ctx context.Context, q models.RecordQuery) ([]models.AISRecord, error) {
	query := `SELECT mmsi, datetime_utc, datetime_local, lat, lon, speed_over_ground_knots,
		computed_speed_knots, navigation_status, vessel_class, length_m
		FROM ais_records`

	var conditions []string
	var args []interface{}

	if !q.Start.IsZero() {
		conditions = append(conditions, "datetime_utc >= ?")
		args = append(args, q.Start.UnixNano())
	}
	if !q.End.IsZero() {
		conditions = append(conditions, "datetime_utc <= ?")
		args = append(args, q.End.UnixNano())
	}
	if len(q.VesselClasses) > 0 {
		conditions = append(conditions, "LOWER(TRIM(vessel_class)) IN ("+placeholders(len(q.VesselClasses))+")")
		for _, c := range q.VesselClasses {
			args = append(args, strings.ToLower(strings.TrimSpace(c)))
		}
	}
	if len(q.MMSIs) > 0 {
		conditions = append(conditions, "mmsi IN ("+placeholders(len(q.MMSIs))+")")
		for _, m := range q.MMSIs {
			args = append(args, m)
		}
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY mmsi, datetime_utc, id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var records []models.AISRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}

	return records, nil
}

func scanRecord(rows *sql.Rows) (models.AISRecord, error) {
	var (
		rec              models.AISRecord
		utcNanos         int64
		local            string
		reported, comput sql.NullFloat64
		length           sql.NullFloat64
	)

	err := rows.Scan(&rec.MMSI, &utcNanos, &local, &rec.Latitude, &rec.Longitude,
		&reported, &comput, &rec.NavigationStatus, &rec.VesselClass, &length)
	if err != nil {
		return rec, fmt.Errorf("failed to scan record: %w", err)
	}

	rec.TimestampUTC = time.Unix(0, utcNanos).UTC()
	if rec.TimestampLocal, err = time.Parse(time.RFC3339Nano, local); err != nil {
		return rec, fmt.Errorf("failed to parse datetime_local %q: %w", local, err)
	}
	rec.ReportedSpeedKnots = fromNull(reported)
	rec.ComputedSpeedKnots = fromNull(comput)
	rec.LengthM = fromNull(length)

	return rec, nil
}

// InsertRecords stores records in batches inside one transaction
func (r *RecordRepository) InsertRecords(ctx context.Context, records []models.AISRecord) (int, error) {
	const cols = 10

	inserted := 0
	err := database.Transaction(ctx, r.db, func(tx *sql.Tx) error {
		for start := 0; start < len(records); start += insertBatchSize {
			end := start + insertBatchSize
			if end > len(records) {
				end = len(records)
			}
			batch := records[start:end]

			var sb strings.Builder
			sb.WriteString(`INSERT INTO ais_records (mmsi, datetime_utc, datetime_local, lat, lon,
				speed_over_ground_knots, computed_speed_knots, navigation_status, vessel_class, length_m) VALUES `)
			args := make([]interface{}, 0, len(batch)*cols)
			for i, rec := range batch {
				if i > 0 {
					sb.WriteString(", ")
				}
				sb.WriteString("(" + placeholders(cols) + ")")
				args = append(args,
					rec.MMSI,
					rec.TimestampUTC.UnixNano(),
					rec.TimestampLocal.Format(time.RFC3339Nano),
					rec.Latitude,
					rec.Longitude,
					toNull(rec.ReportedSpeedKnots),
					toNull(rec.ComputedSpeedKnots),
					rec.NavigationStatus,
					rec.VesselClass,
					toNull(rec.LengthM),
				)
			}

			if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
				return fmt.Errorf("failed to insert records %d-%d: %w", start, end, err)
			}
			inserted += len(batch)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// CountRecords returns the number of stored records
func (r *RecordRepository) CountRecords(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM ais_records").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return n, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func toNull(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func fromNull(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
