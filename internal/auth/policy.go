package auth

import (
	"net/http"
	"strings"
)

// Rule grants access to requests whose path starts with Prefix (or equals it when Exact)
// and, when Contains is set, includes Contains. Safe methods need Read, everything else Write.
type Rule struct {
	Prefix   string
	Exact    bool
	Contains string
	Read     Role
	Write    Role
}

func (r Rule) matches(path string) bool {
	if r.Exact {
		return path == r.Prefix
	}
	return strings.HasPrefix(path, r.Prefix) && strings.Contains(path, r.Contains)
}

// Policy maps routes to required roles. The first matching rule wins.
type Policy struct {
	exempt map[string]struct{}
	rules  []Rule
}

// DefaultRules cover the public API.
func DefaultRules() []Rule {
	return []Rule{
		{Prefix: "/api/v1/audit-logs", Read: RoleAdmin, Write: RoleAdmin},
		{Prefix: "/api/v1/tariffs", Read: RoleViewer, Write: RoleAdmin},
		// previews store nothing
		{Prefix: "/api/v1/simulations/run", Exact: true, Read: RoleViewer, Write: RoleViewer},
		{Prefix: "/api/v1/simulations/", Contains: "/export.", Read: RoleAnalyst, Write: RoleAnalyst},
		{Prefix: "/api/v1/simulations/", Read: RoleViewer, Write: RoleAnalyst},
		{Prefix: "/api/v1/simulations", Exact: true, Read: RoleViewer, Write: RoleAnalyst},
		{Prefix: "/api/", Read: RoleViewer, Write: RoleAdmin},
	}
}

// NewPolicy builds a policy. Exempt paths skip authentication entirely.
func NewPolicy(exemptPaths []string, rules []Rule) Policy {
	set := make(map[string]struct{}, len(exemptPaths))
	for _, path := range exemptPaths {
		set[path] = struct{}{}
	}
	return Policy{exempt: set, rules: rules}
}

// NewDefaultPolicy is NewPolicy with DefaultRules.
func NewDefaultPolicy(exemptPaths ...string) Policy {
	return NewPolicy(exemptPaths, DefaultRules())
}

// IsExempt reports whether r skips authentication.
func (p Policy) IsExempt(r *http.Request) bool {
	if r == nil {
		return true
	}
	_, ok := p.exempt[r.URL.Path]
	return ok
}

// RequiredRole returns the role r needs, and false when no rule guards the path.
func (p Policy) RequiredRole(r *http.Request) (Role, bool) {
	if r == nil {
		return "", false
	}
	for _, rule := range p.rules {
		if !rule.matches(r.URL.Path) {
			continue
		}
		if isSafeMethod(r.Method) {
			return rule.Read, true
		}
		return rule.Write, true
	}
	return "", false
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}
