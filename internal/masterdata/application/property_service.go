package application

import (
	"context"
	"errors"

	masterdata "derivatio-energy/internal/masterdata/domain"
)

// PropertyService provides property lookups and upserts.
type PropertyService struct {
	properties masterdata.PropertyRepository
	fleets     masterdata.FleetRepository
}

// NewPropertyService constructs a property service.
func NewPropertyService(properties masterdata.PropertyRepository, fleets masterdata.FleetRepository) (*PropertyService, error) {
	if properties == nil {
		return nil, errors.New("property service: nil property repository")
	}
	if fleets == nil {
		return nil, errors.New("property service: nil fleet repository")
	}
	return &PropertyService{properties: properties, fleets: fleets}, nil
}

// UpsertProperty validates and saves a property.
func (s *PropertyService) UpsertProperty(ctx context.Context, property *masterdata.Property) error {
	if property == nil {
		return masterdata.ErrNilProperty
	}
	if err := property.Validate(); err != nil {
		return err
	}
	return s.properties.Save(ctx, property)
}

// Property loads a property or returns ErrPropertyNotFound.
func (s *PropertyService) Property(ctx context.Context, id string) (*masterdata.Property, error) {
	p, err := s.properties.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, masterdata.ErrPropertyNotFound
	}
	return p, nil
}

// PrimaryFleet returns the property's first fleet, or a default single-vehicle fleet.
func (s *PropertyService) PrimaryFleet(ctx context.Context, propertyID string) (masterdata.Fleet, error) {
	fleets, err := s.fleets.ListByProperty(ctx, propertyID)
	if err != nil {
		return masterdata.Fleet{}, err
	}
	if len(fleets) == 0 {
		return masterdata.Fleet{PropertyID: propertyID, Name: "default"}.WithDefaults(), nil
	}
	return fleets[0].WithDefaults(), nil
}
