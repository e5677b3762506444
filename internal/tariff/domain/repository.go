package tariff

import "context"

// Catalog reads grid tariff versions.
type Catalog interface {
	// ListByOperator returns every version of every tariff of the operator.
	ListByOperator(ctx context.Context, operator string) ([]GridTariff, error)
	// ListOperators returns distinct operators.
	ListOperators(ctx context.Context) ([]string, error)
}

// Repository persists grid tariff versions.
type Repository interface {
	Catalog
	Save(ctx context.Context, t *GridTariff) error
}
