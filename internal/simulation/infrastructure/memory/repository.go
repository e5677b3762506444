package memory

import (
	"context"
	"sort"
	"sync"

	simulation "derivatio-energy/internal/simulation/domain"
)

// Repository is an in-memory simulation store.
type Repository struct {
	mu   sync.RWMutex
	data map[string]simulation.Simulation
}

// NewRepository constructs a repository.
func NewRepository() *Repository {
	return &Repository{data: make(map[string]simulation.Simulation)}
}

// Create stores a new simulation.
func (r *Repository) Create(ctx context.Context, sim *simulation.Simulation) error {
	_ = ctx
	if sim == nil {
		return simulation.ErrNilSimulation
	}
	if sim.ID == "" {
		return simulation.ErrEmptyID
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[sim.ID] = *sim
	return nil
}

// Update overwrites a stored simulation.
func (r *Repository) Update(ctx context.Context, sim *simulation.Simulation) error {
	_ = ctx
	if sim == nil {
		return simulation.ErrNilSimulation
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[sim.ID]; !ok {
		return simulation.ErrSimulationNotFound
	}
	r.data[sim.ID] = *sim
	return nil
}

// Get returns a copy of the simulation or (nil, nil).
func (r *Repository) Get(ctx context.Context, id string) (*simulation.Simulation, error) {
	_ = ctx
	r.mu.RLock()
	sim, ok := r.data[id]
	r.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return &sim, nil
}

// ListByProperty returns the newest simulations first.
func (r *Repository) ListByProperty(ctx context.Context, organizationID, propertyID string, limit int) ([]simulation.Simulation, error) {
	_ = ctx
	r.mu.RLock()
	var out []simulation.Simulation
	for _, sim := range r.data {
		if sim.PropertyID != propertyID {
			continue
		}
		if organizationID != "" && sim.OrganizationID != organizationID {
			continue
		}
		out = append(out, sim)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
