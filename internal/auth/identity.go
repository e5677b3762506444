package auth

import (
	"context"
	"errors"
)

var (
	// ErrUnauthorized is returned when a request carries no valid token.
	ErrUnauthorized = errors.New("auth: unauthorized")
	// ErrForbidden is returned when the caller's role is below what the route needs.
	ErrForbidden = errors.New("auth: forbidden")
)

// Role is an organization member's permission level.
type Role string

const (
	// RoleViewer reads tariffs and stored simulations and may run previews.
	RoleViewer Role = "viewer"
	// RoleAnalyst also stores simulations and exports reports.
	RoleAnalyst Role = "analyst"
	// RoleAdmin also reads the audit log.
	RoleAdmin Role = "admin"
)

var roleRank = map[Role]int{RoleViewer: 1, RoleAnalyst: 2, RoleAdmin: 3}

// ParseRole accepts only known roles.
func ParseRole(value string) (Role, bool) {
	role := Role(value)
	_, ok := roleRank[role]
	return role, ok
}

// Satisfies reports whether r is at least required.
func (r Role) Satisfies(required Role) bool {
	return roleRank[r] > 0 && roleRank[r] >= roleRank[required]
}

// Identity is the authenticated caller. OrganizationID scopes every data access.
type Identity struct {
	OrganizationID string
	Role           Role
	Subject        string
}

type identityKey struct{}

// WithIdentity attaches the caller to ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the caller attached to ctx, or the zero Identity.
func IdentityFrom(ctx context.Context) Identity {
	if ctx == nil {
		return Identity{}
	}
	id, _ := ctx.Value(identityKey{}).(Identity)
	return id
}

// OrganizationID returns the caller's organization.
func OrganizationID(ctx context.Context) string {
	return IdentityFrom(ctx).OrganizationID
}
