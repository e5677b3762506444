package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLogger_Normalizes(t *testing.T) {
	var l MemoryLogger
	require.NoError(t, l.Log(context.Background(), Entry{OrganizationID: "org-1", Action: "simulation.run", Metadata: json.RawMessage(`{"a":1}`)}))

	entries := l.Entries()
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].ID, "audit-"))
	assert.False(t, entries[0].CreatedAt.IsZero())
	assert.Equal(t, DigestJSON([]byte(`{"a":1}`)), entries[0].PayloadDigest)
}

func TestMemoryLogger_ListFilters(t *testing.T) {
	var l MemoryLogger
	ctx := context.Background()
	for _, e := range []Entry{
		{OrganizationID: "org-1", PropertyID: "p-1", Action: "simulation.run"},
		{OrganizationID: "org-1", PropertyID: "p-2", Action: "simulation.export"},
		{OrganizationID: "org-2", PropertyID: "p-9", Action: "simulation.run"},
		{OrganizationID: "org-1", PropertyID: "p-1", Action: "simulation.export"},
	} {
		require.NoError(t, l.Log(ctx, e))
	}

	all, err := l.List(ctx, Filter{OrganizationID: "org-1"})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "simulation.export", all[0].Action)
	assert.Equal(t, "p-1", all[0].PropertyID)

	byProperty, err := l.List(ctx, Filter{OrganizationID: "org-1", PropertyID: "p-1"})
	require.NoError(t, err)
	assert.Len(t, byProperty, 2)

	exports, err := l.List(ctx, Filter{OrganizationID: "org-1", Action: "simulation.export", Limit: 1})
	require.NoError(t, err)
	require.Len(t, exports, 1)
	assert.Equal(t, "p-1", exports[0].PropertyID)
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")
	assert.Equal(t, "10.0.0.1", ClientIP(r))

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Real-IP", " 10.1.1.1 ")
	assert.Equal(t, "10.1.1.1", ClientIP(r))

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.168.1.5:4444"
	assert.Equal(t, "192.168.1.5", ClientIP(r))
}

type stubLister struct {
	got Filter
}

func (s *stubLister) List(_ context.Context, filter Filter) ([]Entry, error) {
	s.got = filter
	return []Entry{{ID: "audit-1", OrganizationID: filter.OrganizationID}}, nil
}

func TestHandler_ScopesToOrganization(t *testing.T) {
	lister := &stubLister{}
	org := ""
	h, err := NewHandler(lister, func(context.Context) string { return org })
	require.NoError(t, err)

	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/audit-logs", nil))
	assert.Equal(t, http.StatusForbidden, resp.Code)

	org = "org-1"
	resp = httptest.NewRecorder()
	h.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/audit-logs?limit=5&property_id=p-1&action=simulation.export", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, Filter{OrganizationID: "org-1", PropertyID: "p-1", Action: "simulation.export", Limit: 5}, lister.got)

	resp = httptest.NewRecorder()
	h.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/audit-logs", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, resp.Code)
}

func TestNewHandler_RejectsNil(t *testing.T) {
	_, err := NewHandler(nil, func(context.Context) string { return "" })
	assert.Error(t, err)
	_, err = NewHandler(&stubLister{}, nil)
	assert.Error(t, err)
}
