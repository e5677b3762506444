package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

func issue(t *testing.T, secret []byte, org string, role Role) string {
	t.Helper()
	token, err := IssueToken(Identity{OrganizationID: org, Role: role, Subject: "user-1"}, secret, time.Hour, time.Now())
	require.NoError(t, err)
	return token
}

func serve(t *testing.T, mw *Middleware, method, path, token string) (int, Identity) {
	t.Helper()
	var seen Identity
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = IdentityFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	return resp.Code, seen
}

func TestMiddleware_RoleMatrix(t *testing.T) {
	mw := NewMiddleware(testSecret, NewDefaultPolicy("/healthz", "/metrics"), nil)
	viewer := issue(t, testSecret, "org-a", RoleViewer)
	analyst := issue(t, testSecret, "org-a", RoleAnalyst)
	admin := issue(t, testSecret, "org-a", RoleAdmin)

	cases := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{"no token", http.MethodGet, "/api/v1/simulations/sim-1", "", http.StatusUnauthorized},
		{"exempt health", http.MethodGet, "/healthz", "", http.StatusOK},
		{"exempt metrics", http.MethodGet, "/metrics", "", http.StatusOK},
		{"viewer reads tariffs", http.MethodGet, "/api/v1/tariffs/operators", viewer, http.StatusOK},
		{"viewer previews", http.MethodPost, "/api/v1/simulations/run", viewer, http.StatusOK},
		{"viewer cannot store", http.MethodPost, "/api/v1/simulations", viewer, http.StatusForbidden},
		{"viewer cannot export", http.MethodGet, "/api/v1/simulations/sim-1/export.pdf", viewer, http.StatusForbidden},
		{"viewer cannot batch", http.MethodPost, "/api/v1/simulations/batch", viewer, http.StatusForbidden},
		{"analyst stores", http.MethodPost, "/api/v1/simulations", analyst, http.StatusOK},
		{"analyst exports", http.MethodGet, "/api/v1/simulations/sim-1/export.xlsx", analyst, http.StatusOK},
		{"analyst cannot read audit", http.MethodGet, "/api/v1/audit-logs", analyst, http.StatusForbidden},
		{"admin reads audit", http.MethodGet, "/api/v1/audit-logs", admin, http.StatusOK},
		{"unguarded path", http.MethodGet, "/favicon.ico", "", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, _ := serve(t, mw, tc.method, tc.path, tc.token)
			assert.Equal(t, tc.want, code)
		})
	}
}

func TestMiddleware_PropagatesIdentity(t *testing.T) {
	mw := NewMiddleware(testSecret, NewDefaultPolicy(), nil)
	code, id := serve(t, mw, http.MethodPost, "/api/v1/simulations/run", issue(t, testSecret, "org-a", RoleViewer))
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, Identity{OrganizationID: "org-a", Role: RoleViewer, Subject: "user-1"}, id)
	assert.Empty(t, OrganizationID(httptest.NewRequest(http.MethodGet, "/", nil).Context()))
}

func TestMiddleware_RejectsBadTokens(t *testing.T) {
	mw := NewMiddleware(testSecret, NewDefaultPolicy(), nil)

	code, _ := serve(t, mw, http.MethodGet, "/api/v1/tariffs/operators", issue(t, []byte("other-secret"), "org-a", RoleAdmin))
	assert.Equal(t, http.StatusUnauthorized, code)

	expired, err := IssueToken(Identity{OrganizationID: "org-a", Role: RoleAdmin}, testSecret, time.Minute, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	code, _ = serve(t, mw, http.MethodGet, "/api/v1/tariffs/operators", expired)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = serve(t, mw, http.MethodGet, "/api/v1/tariffs/operators", issue(t, testSecret, "org-a", Role("owner")))
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = serve(t, mw, http.MethodGet, "/api/v1/tariffs/operators", issue(t, testSecret, "", RoleAdmin))
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", bearerToken("Bearer abc"))
	assert.Equal(t, "abc", bearerToken("bearer   abc "))
	assert.Empty(t, bearerToken("Basic abc"))
	assert.Empty(t, bearerToken("abc"))
}

func TestRole_Satisfies(t *testing.T) {
	assert.True(t, RoleAdmin.Satisfies(RoleAnalyst))
	assert.True(t, RoleAnalyst.Satisfies(RoleAnalyst))
	assert.False(t, RoleViewer.Satisfies(RoleAnalyst))
	assert.False(t, Role("").Satisfies(""))
	_, ok := ParseRole("operator")
	assert.False(t, ok)
}
