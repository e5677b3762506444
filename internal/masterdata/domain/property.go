package masterdata

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"
)

var (
	// ErrPropertyNotFound is returned when a property does not exist.
	ErrPropertyNotFound = errors.New("property: not found")
	// ErrNilProperty is returned when saving a nil property.
	ErrNilProperty = errors.New("property: nil property")
)

// Property is a metered site with a grid connection.
type Property struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Name           string    `json:"name"`
	Address        string    `json:"address,omitempty"`
	PostalCode     string    `json:"postal_code,omitempty"`
	GridOperator   string    `json:"grid_operator"`
	GridArea       string    `json:"grid_area"`
	SubscriptionKW float64   `json:"subscription_kw"`
	MeteringID     string    `json:"metering_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Validate checks property invariants.
func (p Property) Validate() error {
	if p.ID == "" {
		return errors.New("property: empty id")
	}
	if p.OrganizationID == "" {
		return errors.New("property: empty organization id")
	}
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("property: empty name")
	}
	if strings.TrimSpace(p.GridOperator) == "" {
		return errors.New("property: empty grid operator")
	}
	if strings.TrimSpace(p.GridArea) == "" {
		return errors.New("property: empty grid area")
	}
	if p.SubscriptionKW <= 0 || math.IsNaN(p.SubscriptionKW) || math.IsInf(p.SubscriptionKW, 0) {
		return errors.New("property: subscription_kw must be positive")
	}
	return nil
}

// PropertyRepository manages property persistence.
type PropertyRepository interface {
	Get(ctx context.Context, id string) (*Property, error)
	ListByOrganization(ctx context.Context, organizationID string) ([]Property, error)
	Save(ctx context.Context, property *Property) error
}
