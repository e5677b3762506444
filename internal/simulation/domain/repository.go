package simulation

import "context"

// Repository persists simulations.
type Repository interface {
	Create(ctx context.Context, sim *Simulation) error
	// Update writes status, result and cost fields.
	Update(ctx context.Context, sim *Simulation) error
	Get(ctx context.Context, id string) (*Simulation, error)
	ListByProperty(ctx context.Context, organizationID, propertyID string, limit int) ([]Simulation, error)
}
