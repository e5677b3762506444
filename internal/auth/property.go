package auth

import (
	"context"
	"errors"

	masterdata "derivatio-energy/internal/masterdata/domain"
)

var (
	// ErrOrganizationMismatch is returned when the property belongs to another organization.
	ErrOrganizationMismatch = errors.New("auth: property belongs to another organization")
	// ErrNotFound is returned when the property does not exist.
	ErrNotFound = errors.New("auth: property not found")
)

// PropertyAccessChecker decides whether an organization may read a property's data.
// Data-access layers take one explicitly instead of relying on database row policies.
type PropertyAccessChecker interface {
	EnsurePropertyAccess(ctx context.Context, organizationID, propertyID string) error
}

// PropertyChecker resolves ownership through the property repository.
type PropertyChecker struct {
	repo masterdata.PropertyRepository
}

// NewPropertyChecker constructs a PropertyChecker.
func NewPropertyChecker(repo masterdata.PropertyRepository) *PropertyChecker {
	if repo == nil {
		return nil
	}
	return &PropertyChecker{repo: repo}
}

// EnsurePropertyAccess verifies the property belongs to the organization.
func (c *PropertyChecker) EnsurePropertyAccess(ctx context.Context, organizationID, propertyID string) error {
	if c == nil || c.repo == nil {
		return nil
	}
	if organizationID == "" || propertyID == "" {
		return nil
	}
	property, err := c.repo.Get(ctx, propertyID)
	if err != nil {
		return err
	}
	if property == nil {
		return ErrNotFound
	}
	if property.OrganizationID != organizationID {
		return ErrOrganizationMismatch
	}
	return nil
}

// AllowAll grants access to every property. Used by offline runs without an organization.
type AllowAll struct{}

// EnsurePropertyAccess implements PropertyAccessChecker.
func (AllowAll) EnsurePropertyAccess(context.Context, string, string) error { return nil }
