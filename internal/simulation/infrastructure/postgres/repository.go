package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"derivatio-energy/internal/calendar"
	simulation "derivatio-energy/internal/simulation/domain"
)

const defaultTable = "simulations"

// Repository is a Postgres implementation of simulation.Repository.
type Repository struct {
	db    *sql.DB
	table string
}

// Option configures the repository.
type Option func(*Repository)

// WithTable overrides the default table name.
func WithTable(table string) Option {
	return func(r *Repository) {
		if table != "" {
			r.table = table
		}
	}
}

// NewRepository constructs a repository.
func NewRepository(db *sql.DB, opts ...Option) *Repository {
	r := &Repository{db: db, table: defaultTable}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

const columns = `id::text, organization_id::text, property_id::text, COALESCE(created_by, ''),
	period_start, period_end, status, input_params, result,
	cost_without, cost_with, savings_total, savings_pct, peak_kw_without, peak_kw_with,
	COALESCE(result_hash, ''), created_at, updated_at, completed_at`

// Create inserts a new simulation row.
func (r *Repository) Create(ctx context.Context, sim *simulation.Simulation) error {
	if r == nil || r.db == nil {
		return errors.New("simulation repo: nil db")
	}
	if sim == nil {
		return simulation.ErrNilSimulation
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id, organization_id, property_id, created_by, period_start, period_end,
	status, input_params, created_at, updated_at
) VALUES (
	$1, $2, $3, NULLIF($4, ''), $5::date, $6::date, $7, $8, $9, $10
)`, r.table)
	_, err := r.db.ExecContext(ctx, query,
		sim.ID, sim.OrganizationID, sim.PropertyID, sim.CreatedBy,
		sim.PeriodStart.String(), sim.PeriodEnd.String(),
		sim.Status, nullJSON(sim.InputParams), sim.CreatedAt, sim.UpdatedAt,
	)
	return err
}

// Update writes the status, result and cost columns.
func (r *Repository) Update(ctx context.Context, sim *simulation.Simulation) error {
	if r == nil || r.db == nil {
		return errors.New("simulation repo: nil db")
	}
	if sim == nil {
		return simulation.ErrNilSimulation
	}
	query := fmt.Sprintf(`
UPDATE %s SET
	status = $2,
	result = $3,
	cost_without = $4,
	cost_with = $5,
	savings_total = $6,
	savings_pct = $7,
	peak_kw_without = $8,
	peak_kw_with = $9,
	result_hash = NULLIF($10, ''),
	updated_at = $11,
	completed_at = $12
WHERE id = $1`, r.table)
	res, err := r.db.ExecContext(ctx, query,
		sim.ID, sim.Status, nullJSON(sim.Result),
		nullDecimal(sim.CostWithout), nullDecimal(sim.CostWith), nullDecimal(sim.SavingsTotal), nullDecimal(sim.SavingsPct),
		nullFloat(sim.PeakKWWithout), nullFloat(sim.PeakKWWith),
		sim.ResultHash, sim.UpdatedAt, nullTime(sim.CompletedAt),
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return simulation.ErrSimulationNotFound
	}
	return nil
}

// Get loads a simulation by id. A missing row returns (nil, nil).
func (r *Repository) Get(ctx context.Context, id string) (*simulation.Simulation, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("simulation repo: nil db")
	}
	if id == "" {
		return nil, simulation.ErrEmptyID
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id::text = $1 LIMIT 1`, columns, r.table)
	sim, err := scanSimulation(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return sim, nil
}

// ListByProperty returns a property's newest simulations first.
func (r *Repository) ListByProperty(ctx context.Context, organizationID, propertyID string, limit int) ([]simulation.Simulation, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("simulation repo: nil db")
	}
	if propertyID == "" {
		return nil, simulation.ErrEmptyPropertyID
	}
	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE property_id::text = $1 AND ($2 = '' OR organization_id::text = $2)
ORDER BY created_at DESC, id DESC
LIMIT $3`, columns, r.table)
	rows, err := r.db.QueryContext(ctx, query, propertyID, organizationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []simulation.Simulation
	for rows.Next() {
		sim, err := scanSimulation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sim)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSimulation(row rowScanner) (*simulation.Simulation, error) {
	var (
		sim                      simulation.Simulation
		periodStart, periodEnd   time.Time
		input, result            []byte
		costWithout, costWith    decimal.NullDecimal
		savingsTotal, savingsPct decimal.NullDecimal
		peakWithout, peakWith    sql.NullFloat64
		completedAt              sql.NullTime
	)
	if err := row.Scan(
		&sim.ID, &sim.OrganizationID, &sim.PropertyID, &sim.CreatedBy,
		&periodStart, &periodEnd, &sim.Status, &input, &result,
		&costWithout, &costWith, &savingsTotal, &savingsPct, &peakWithout, &peakWith,
		&sim.ResultHash, &sim.CreatedAt, &sim.UpdatedAt, &completedAt,
	); err != nil {
		return nil, err
	}
	sim.PeriodStart = calendar.DateOf(periodStart.UTC())
	sim.PeriodEnd = calendar.DateOf(periodEnd.UTC())
	sim.InputParams = input
	sim.Result = result
	sim.CostWithout = decimalPtr(costWithout)
	sim.CostWith = decimalPtr(costWith)
	sim.SavingsTotal = decimalPtr(savingsTotal)
	sim.SavingsPct = decimalPtr(savingsPct)
	sim.PeakKWWithout = floatPtr(peakWithout)
	sim.PeakKWWith = floatPtr(peakWith)
	sim.CreatedAt = sim.CreatedAt.UTC()
	sim.UpdatedAt = sim.UpdatedAt.UTC()
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		sim.CompletedAt = &t
	}
	return &sim, nil
}

func nullJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func nullDecimal(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func decimalPtr(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}

func floatPtr(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}
