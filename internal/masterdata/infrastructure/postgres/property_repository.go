package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	masterdata "derivatio-energy/internal/masterdata/domain"
)

const defaultPropertiesTable = "properties"

// PropertyRepository is a Postgres implementation for properties.
type PropertyRepository struct {
	db    DBTX
	table string
}

// NewPropertyRepository constructs a repository.
func NewPropertyRepository(db DBTX, opts ...PropertyOption) *PropertyRepository {
	repo := &PropertyRepository{db: db, table: defaultPropertiesTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// PropertyOption configures the repository.
type PropertyOption func(*PropertyRepository)

// WithPropertyTable overrides the default table name.
func WithPropertyTable(table string) PropertyOption {
	return func(repo *PropertyRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

const propertyColumns = `id::text, organization_id::text, name, COALESCE(address, ''), COALESCE(postal_code, ''),
	grid_operator, grid_area, subscription_kw, COALESCE(metering_id, ''), created_at, updated_at`

// Get loads a property by id. A missing row returns (nil, nil).
func (r *PropertyRepository) Get(ctx context.Context, id string) (*masterdata.Property, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("property repo: nil db")
	}
	if id == "" {
		return nil, errors.New("property repo: empty id")
	}

	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE id::text = $1
LIMIT 1`, propertyColumns, r.table)

	p, err := scanProperty(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

// ListByOrganization loads an organization's properties.
func (r *PropertyRepository) ListByOrganization(ctx context.Context, organizationID string) ([]masterdata.Property, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("property repo: nil db")
	}
	if organizationID == "" {
		return nil, errors.New("property repo: empty organization id")
	}

	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE organization_id::text = $1
ORDER BY name ASC`, propertyColumns, r.table)

	rows, err := r.db.QueryContext(ctx, query, organizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []masterdata.Property
	for rows.Next() {
		p, err := scanProperty(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Save upserts a property.
func (r *PropertyRepository) Save(ctx context.Context, property *masterdata.Property) error {
	if r == nil || r.db == nil {
		return errors.New("property repo: nil db")
	}
	if property == nil {
		return masterdata.ErrNilProperty
	}
	if err := property.Validate(); err != nil {
		return err
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	organization_id,
	name,
	address,
	postal_code,
	grid_operator,
	grid_area,
	subscription_kw,
	metering_id
) VALUES (
	$1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7, $8, NULLIF($9, '')
)
ON CONFLICT (id)
DO UPDATE SET
	organization_id = EXCLUDED.organization_id,
	name = EXCLUDED.name,
	address = EXCLUDED.address,
	postal_code = EXCLUDED.postal_code,
	grid_operator = EXCLUDED.grid_operator,
	grid_area = EXCLUDED.grid_area,
	subscription_kw = EXCLUDED.subscription_kw,
	metering_id = EXCLUDED.metering_id,
	updated_at = NOW()`, r.table)

	_, err := r.db.ExecContext(
		ctx,
		query,
		property.ID,
		property.OrganizationID,
		property.Name,
		property.Address,
		property.PostalCode,
		property.GridOperator,
		property.GridArea,
		property.SubscriptionKW,
		property.MeteringID,
	)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if property.CreatedAt.IsZero() {
		property.CreatedAt = now
	}
	property.UpdatedAt = now
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProperty(row rowScanner) (*masterdata.Property, error) {
	var p masterdata.Property
	if err := row.Scan(
		&p.ID,
		&p.OrganizationID,
		&p.Name,
		&p.Address,
		&p.PostalCode,
		&p.GridOperator,
		&p.GridArea,
		&p.SubscriptionKW,
		&p.MeteringID,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}
