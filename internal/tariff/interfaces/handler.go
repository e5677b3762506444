package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"derivatio-energy/internal/calendar"
	tariffapp "derivatio-energy/internal/tariff/application"
	tariff "derivatio-energy/internal/tariff/domain"
)

const basePath = "/api/v1/tariffs"

const maxTariffBody = 64 << 10

// Saver stores a new tariff version.
type Saver interface {
	Save(ctx context.Context, t *tariff.GridTariff) error
}

// Handler serves the tariff API under /api/v1/tariffs.
type Handler struct {
	resolver *tariffapp.Resolver
	store    Saver
	loc      *time.Location
	now      func() time.Time
}

// Option configures the handler.
type Option func(*Handler)

// WithStore enables POST /api/v1/tariffs.
func WithStore(store Saver) Option {
	return func(h *Handler) {
		h.store = store
	}
}

// NewHandler constructs a handler. loc decides "today" when no date is given.
func NewHandler(resolver *tariffapp.Resolver, loc *time.Location, opts ...Option) (*Handler, error) {
	if resolver == nil {
		return nil, errors.New("tariff handler: nil resolver")
	}
	if loc == nil {
		loc = time.UTC
	}
	h := &Handler{resolver: resolver, loc: loc, now: time.Now}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// ServeHTTP routes tariff requests.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, basePath), "/")
	if r.Method == http.MethodPost && rest == "" && h.store != nil {
		h.handleCreate(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	switch {
	case rest == "operators":
		h.handleOperators(w, r)
	case rest != "" && !strings.Contains(rest, "/"):
		h.handleResolve(w, r, rest)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleOperators(w http.ResponseWriter, r *http.Request) {
	ops, err := h.resolver.Operators(r.Context())
	if err != nil {
		http.Error(w, "list operators failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"operators": ops})
}

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request, operator string) {
	q := r.URL.Query()
	day := calendar.DateOf(h.now().In(h.loc))
	if raw := q.Get("date"); raw != "" {
		parsed, err := calendar.ParseDate(raw)
		if err != nil {
			http.Error(w, "invalid date", http.StatusBadRequest)
			return
		}
		day = parsed
	}

	res, err := h.resolver.Resolve(r.Context(), operator, q.Get("tariff_name"), day)
	if err != nil {
		switch {
		case errors.Is(err, tariff.ErrTariffNotFound):
			http.Error(w, "tariff not found", http.StatusNotFound)
		case errors.Is(err, tariff.ErrEmptyOperator), errors.Is(err, calendar.ErrInvalidDate):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			http.Error(w, "resolve tariff failed", http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var t tariff.GridTariff
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxTariffBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&t); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	t.ID = ""
	if err := h.store.Save(r.Context(), &t); err != nil {
		switch {
		case errors.Is(err, tariff.ErrOverlappingValidity):
			http.Error(w, err.Error(), http.StatusConflict)
		case errors.Is(err, tariff.ErrNilTariff), errors.Is(err, tariff.ErrEmptyOperator), errors.Is(err, tariff.ErrEmptyName),
			errors.Is(err, tariff.ErrInvalidValidity), errors.Is(err, tariff.ErrInvalidPeakHours),
			errors.Is(err, tariff.ErrInvalidPeakMonth), errors.Is(err, tariff.ErrInvalidCalcMethod),
			errors.Is(err, tariff.ErrNegativeFee):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			http.Error(w, "save tariff failed", http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
