package audit

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
)

// ClientIP returns the first forwarded address, X-Real-IP, or the remote host.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// Filter narrows an organization's audit trail. Empty fields match everything.
type Filter struct {
	OrganizationID string
	PropertyID     string
	Action         string
	Limit          int
}

// Lister reads an organization's audit trail, newest first.
type Lister interface {
	List(ctx context.Context, filter Filter) ([]Entry, error)
}

// Handler serves GET /api/v1/audit-logs for the caller's organization.
type Handler struct {
	lister Lister
	orgOf  func(context.Context) string
}

// NewHandler constructs a handler. orgOf extracts the caller's organization.
func NewHandler(lister Lister, orgOf func(context.Context) string) (*Handler, error) {
	if lister == nil || orgOf == nil {
		return nil, errors.New("audit handler: nil dependency")
	}
	return &Handler{lister: lister, orgOf: orgOf}, nil
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	orgID := h.orgOf(r.Context())
	if orgID == "" {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	entries, err := h.lister.List(r.Context(), Filter{
		OrganizationID: orgID,
		PropertyID:     strings.TrimSpace(q.Get("property_id")),
		Action:         strings.TrimSpace(q.Get("action")),
		Limit:          limit,
	})
	if err != nil {
		http.Error(w, "list audit logs failed", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []Entry{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"entries": entries})
}
