package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	masterdata "derivatio-energy/internal/masterdata/domain"
)

// PropertyRepository is an in-memory property store.
type PropertyRepository struct {
	mu   sync.RWMutex
	data map[string]masterdata.Property
}

// NewPropertyRepository constructs a repository.
func NewPropertyRepository(seed ...masterdata.Property) *PropertyRepository {
	r := &PropertyRepository{data: make(map[string]masterdata.Property)}
	for _, p := range seed {
		r.data[p.ID] = p
	}
	return r
}

// Get returns a copy of the property or (nil, nil).
func (r *PropertyRepository) Get(ctx context.Context, id string) (*masterdata.Property, error) {
	_ = ctx
	r.mu.RLock()
	p, ok := r.data[id]
	r.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// ListByOrganization returns the organization's properties ordered by name.
func (r *PropertyRepository) ListByOrganization(ctx context.Context, organizationID string) ([]masterdata.Property, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []masterdata.Property
	for _, p := range r.data {
		if p.OrganizationID == organizationID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Save stores the property (overwrites existing).
func (r *PropertyRepository) Save(ctx context.Context, property *masterdata.Property) error {
	_ = ctx
	if property == nil {
		return masterdata.ErrNilProperty
	}
	if err := property.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	r.data[property.ID] = *property
	r.mu.Unlock()
	return nil
}

// FleetRepository is an in-memory fleet store.
type FleetRepository struct {
	mu   sync.RWMutex
	data map[string][]masterdata.Fleet
}

// NewFleetRepository constructs a repository.
func NewFleetRepository() *FleetRepository {
	return &FleetRepository{data: make(map[string][]masterdata.Fleet)}
}

// ListByProperty returns copies of the property's fleets.
func (r *FleetRepository) ListByProperty(ctx context.Context, propertyID string) ([]masterdata.Fleet, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]masterdata.Fleet(nil), r.data[propertyID]...), nil
}

// Save appends or replaces a fleet by id.
func (r *FleetRepository) Save(ctx context.Context, fleet *masterdata.Fleet) error {
	_ = ctx
	if fleet == nil || fleet.PropertyID == "" {
		return errors.New("fleet repo: fleet with property id required")
	}
	if err := fleet.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.data[fleet.PropertyID]
	for i := range list {
		if list[i].ID == fleet.ID {
			list[i] = *fleet
			return nil
		}
	}
	r.data[fleet.PropertyID] = append(list, *fleet)
	return nil
}
