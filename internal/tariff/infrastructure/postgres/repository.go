package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"derivatio-energy/internal/calendar"
	tariff "derivatio-energy/internal/tariff/domain"
)

const defaultTariffsTable = "grid_tariffs"

// Repository reads and writes grid_tariffs rows.
type Repository struct {
	db    *sql.DB
	table string
}

// Option configures the repository.
type Option func(*Repository)

// WithTable overrides the tariffs table name.
func WithTable(table string) Option {
	return func(r *Repository) {
		if table != "" {
			r.table = table
		}
	}
}

// NewRepository constructs a repository.
func NewRepository(db *sql.DB, opts ...Option) *Repository {
	r := &Repository{db: db, table: defaultTariffsTable}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// ListByOperator returns every version of the operator's tariffs.
func (r *Repository) ListByOperator(ctx context.Context, operator string) ([]tariff.GridTariff, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("tariff repo: nil db")
	}
	return r.listByOperator(ctx, r.db, operator)
}

func (r *Repository) listByOperator(ctx context.Context, q queryer, operator string) ([]tariff.GridTariff, error) {
	if strings.TrimSpace(operator) == "" {
		return nil, tariff.ErrEmptyOperator
	}
	query := fmt.Sprintf(`
SELECT id::text, operator, tariff_name, valid_from, valid_to,
	base_monthly_fee, capacity_fee_kw, peak_fee_kw,
	peak_hours_start, peak_hours_end, peak_months::text, peak_weekdays_only,
	peak_calc_method, energy_fee_peak, energy_fee_offpeak
FROM %s
WHERE lower(operator) = lower($1)
ORDER BY tariff_name ASC, valid_from ASC`, r.table)

	rows, err := q.QueryContext(ctx, query, operator)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]tariff.GridTariff, 0)
	for rows.Next() {
		t, err := scanTariff(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListOperators returns distinct operators.
func (r *Repository) ListOperators(ctx context.Context) ([]string, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("tariff repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`SELECT DISTINCT lower(operator) FROM %s ORDER BY 1`, r.table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var op string
		if err := rows.Scan(&op); err != nil {
			return nil, err
		}
		out = append(out, op)
	}
	return out, rows.Err()
}

// Save inserts a tariff version after checking it against existing versions of the series.
// Saves of one series are serialized by a transaction-scoped advisory lock on the series key.
func (r *Repository) Save(ctx context.Context, t *tariff.GridTariff) (err error) {
	if r == nil || r.db == nil {
		return errors.New("tariff repo: nil db")
	}
	if t == nil {
		return tariff.ErrNilTariff
	}
	if err := t.Validate(); err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("tariff repo: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, t.Key()); err != nil {
		return fmt.Errorf("tariff repo: lock series: %w", err)
	}
	existing, err := r.listByOperator(ctx, tx, t.Operator)
	if err != nil {
		return err
	}
	for _, row := range existing {
		if row.Key() == t.Key() && row.Overlaps(*t) {
			return tariff.ErrOverlappingValidity
		}
	}

	var validTo any
	if t.ValidTo != nil {
		validTo = t.ValidTo.In(time.UTC)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	operator, tariff_name, valid_from, valid_to,
	base_monthly_fee, capacity_fee_kw, peak_fee_kw,
	peak_hours_start, peak_hours_end, peak_months, peak_weekdays_only,
	peak_calc_method, energy_fee_peak, energy_fee_offpeak
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10::int[],$11,$12,$13,$14)
RETURNING id::text`, r.table)
	var id string
	if err = tx.QueryRowContext(ctx, query,
		t.Operator, t.TariffName, t.ValidFrom.In(time.UTC), validTo,
		t.BaseMonthlyFee, t.CapacityFeeKW, t.PeakFeeKW,
		t.PeakHoursStart, t.PeakHoursEnd, formatMonths(t.PeakMonths), t.PeakWeekdaysOnly,
		t.PeakCalcMethod.String(), t.EnergyFeePeak, t.EnergyFeeOffpeak,
	).Scan(&id); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("tariff repo: commit: %w", err)
	}
	t.ID = id
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTariff(row rowScanner) (tariff.GridTariff, error) {
	var (
		t         tariff.GridTariff
		validFrom time.Time
		validTo   sql.NullTime
		months    string
		method    string
	)
	if err := row.Scan(
		&t.ID, &t.Operator, &t.TariffName, &validFrom, &validTo,
		&t.BaseMonthlyFee, &t.CapacityFeeKW, &t.PeakFeeKW,
		&t.PeakHoursStart, &t.PeakHoursEnd, &months, &t.PeakWeekdaysOnly,
		&method, &t.EnergyFeePeak, &t.EnergyFeeOffpeak,
	); err != nil {
		return tariff.GridTariff{}, err
	}
	t.ValidFrom = calendar.DateOf(validFrom.UTC())
	if validTo.Valid {
		d := calendar.DateOf(validTo.Time.UTC())
		t.ValidTo = &d
	}
	parsedMonths, err := parseMonths(months)
	if err != nil {
		return tariff.GridTariff{}, fmt.Errorf("tariff repo: row %s: %w", t.ID, err)
	}
	t.PeakMonths = parsedMonths
	if t.PeakCalcMethod, err = tariff.ParsePeakCalcMethod(method); err != nil {
		return tariff.GridTariff{}, fmt.Errorf("tariff repo: row %s: %w", t.ID, err)
	}
	return t, nil
}

// parseMonths parses the text form of an int[] such as {11,12,1}.
func parseMonths(value string) ([]time.Month, error) {
	value = strings.Trim(strings.TrimSpace(value), "{}")
	if value == "" {
		return nil, nil
	}
	parts := strings.Split(value, ",")
	out := make([]time.Month, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 1 || n > 12 {
			return nil, tariff.ErrInvalidPeakMonth
		}
		out = append(out, time.Month(n))
	}
	return out, nil
}

func formatMonths(months []time.Month) string {
	parts := make([]string, 0, len(months))
	for _, m := range months {
		parts = append(parts, strconv.Itoa(int(m)))
	}
	return "{" + strings.Join(parts, ",") + "}"
}
