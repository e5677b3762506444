package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"derivatio-energy/internal/observability/logging"
)

// Middleware authenticates requests with a bearer JWT and enforces the policy's role for the route.
type Middleware struct {
	secret []byte
	policy Policy
	logger *zap.Logger
}

// NewMiddleware constructs a Middleware. A nil logger disables denial logs.
func NewMiddleware(secret []byte, policy Policy, logger *zap.Logger) *Middleware {
	return &Middleware{secret: secret, policy: policy, logger: logging.OrNop(logger)}
}

// Wrap guards next.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.policy.IsExempt(r) {
			next.ServeHTTP(w, r)
			return
		}
		required, guarded := m.policy.RequiredRole(r)
		if !guarded {
			next.ServeHTTP(w, r)
			return
		}

		id, err := ParseToken(bearerToken(r.Header.Get("Authorization")), m.secret)
		if err != nil {
			m.logger.Debug("auth rejected", zap.String("path", r.URL.Path), zap.Error(err))
			w.Header().Set("WWW-Authenticate", `Bearer realm="derivatio"`)
			writeDenied(w, http.StatusUnauthorized, ErrUnauthorized)
			return
		}
		if !id.Role.Satisfies(required) {
			m.logger.Info("auth forbidden",
				zap.String("path", r.URL.Path),
				zap.String("organization_id", id.OrganizationID),
				zap.String("role", string(id.Role)),
				zap.String("required", string(required)),
			)
			writeDenied(w, http.StatusForbidden, ErrForbidden)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

func writeDenied(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	msg := err.Error()
	if errors.Is(err, ErrUnauthorized) {
		msg = "unauthorized"
	} else if errors.Is(err, ErrForbidden) {
		msg = "forbidden"
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
