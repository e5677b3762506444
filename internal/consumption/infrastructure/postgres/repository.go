package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"derivatio-energy/internal/auth"
	consumption "derivatio-energy/internal/consumption/domain"
)

const defaultConsumptionTable = "consumption_data"

// Repository reads and writes consumption_data rows.
type Repository struct {
	db      *sql.DB
	access  auth.PropertyAccessChecker
	table   string
	maxRows int
}

// Option configures the repository.
type Option func(*Repository)

// WithTable overrides the consumption table name.
func WithTable(table string) Option {
	return func(r *Repository) {
		if r != nil && table != "" {
			r.table = table
		}
	}
}

// WithMaxRows caps the rows returned by one read.
func WithMaxRows(n int) Option {
	return func(r *Repository) {
		if r != nil && n > 0 {
			r.maxRows = n
		}
	}
}

// NewRepository constructs a repository. access is consulted on every read.
func NewRepository(db *sql.DB, access auth.PropertyAccessChecker, opts ...Option) (*Repository, error) {
	if db == nil {
		return nil, errors.New("consumption repo: nil db")
	}
	if access == nil {
		return nil, errors.New("consumption repo: nil access checker")
	}
	r := &Repository{db: db, access: access, table: defaultConsumptionTable, maxRows: 200000}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// ListByProperty returns records in [from, to) ordered by timestamp.
func (r *Repository) ListByProperty(ctx context.Context, organizationID, propertyID string, from, to time.Time) ([]consumption.Record, error) {
	if propertyID == "" {
		return nil, consumption.ErrEmptyPropertyID
	}
	if !from.Before(to) {
		return nil, errors.New("consumption repo: invalid range")
	}
	if err := r.access.EnsurePropertyAccess(ctx, organizationID, propertyID); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
SELECT timestamp, kwh, kw_peak, COALESCE(source, '')
FROM %s
WHERE property_id::text = $1 AND timestamp >= $2 AND timestamp < $3
ORDER BY timestamp ASC
LIMIT $4`, r.table)

	rows, err := r.db.QueryContext(ctx, query, propertyID, from.UTC(), to.UTC(), r.maxRows+1)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []consumption.Record
	for rows.Next() {
		var (
			ts     time.Time
			kwh    float64
			kwPeak sql.NullFloat64
			source string
		)
		if err := rows.Scan(&ts, &kwh, &kwPeak, &source); err != nil {
			return nil, err
		}
		rec := consumption.Record{PropertyID: propertyID, Timestamp: ts.UTC(), KWh: kwh, Source: source}
		if kwPeak.Valid {
			v := kwPeak.Float64
			rec.KWPeak = &v
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(result) > r.maxRows {
		return nil, fmt.Errorf("consumption repo: more than %d rows for %s", r.maxRows, propertyID)
	}
	return result, nil
}

// SaveBatch upserts records in one transaction.
func (r *Repository) SaveBatch(ctx context.Context, records []consumption.Record) error {
	if len(records) == 0 {
		return nil
	}
	for _, rec := range records {
		if rec.PropertyID == "" {
			return consumption.ErrEmptyPropertyID
		}
		if err := rec.Validate(); err != nil {
			return err
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
INSERT INTO %s (property_id, timestamp, kwh, kw_peak, source)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (property_id, timestamp)
DO UPDATE SET kwh = EXCLUDED.kwh, kw_peak = EXCLUDED.kw_peak, source = EXCLUDED.source`, r.table))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, rec := range records {
		var kwPeak any
		if rec.KWPeak != nil {
			kwPeak = *rec.KWPeak
		}
		if _, err := stmt.ExecContext(ctx, rec.PropertyID, rec.Timestamp.UTC(), rec.KWh, kwPeak, rec.Source); err != nil {
			return err
		}
	}
	return tx.Commit()
}
