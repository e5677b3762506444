package interfaces

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"derivatio-energy/internal/audit"
	"derivatio-energy/internal/auth"
	"derivatio-energy/internal/engine"
	masterdata "derivatio-energy/internal/masterdata/domain"
	"derivatio-energy/internal/observability/logging"
	"derivatio-energy/internal/observability/metrics"
	simapp "derivatio-energy/internal/simulation/application"
	simulation "derivatio-energy/internal/simulation/domain"
)

const basePath = "/api/v1/simulations"

const maxBatchSize = 100

// Handler handles simulation APIs.
type Handler struct {
	service     *simapp.Service
	batch       *simapp.BatchRunner
	auditLogger audit.Logger
	logger      *zap.Logger
}

// NewHandler constructs a handler. A nil batch runner disables the batch route.
func NewHandler(service *simapp.Service, batch *simapp.BatchRunner, auditLogger audit.Logger, logger *zap.Logger) (*Handler, error) {
	if service == nil {
		return nil, errors.New("simulation handler: nil service")
	}
	return &Handler{service: service, batch: batch, auditLogger: auditLogger, logger: logging.OrNop(logger)}, nil
}

// ServeHTTP handles simulation routes under /api/v1/simulations.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSuffix(r.URL.Path, "/")
	switch {
	case path == basePath+"/run" && r.Method == http.MethodPost:
		h.handlePreview(w, r)
		return
	case path == basePath+"/batch" && r.Method == http.MethodPost:
		h.handleBatch(w, r)
		return
	case path == basePath && r.Method == http.MethodPost:
		h.handleCreate(w, r)
		return
	case path == basePath && r.Method == http.MethodGet:
		h.handleList(w, r)
		return
	case strings.HasPrefix(path, basePath+"/"):
		h.handleByID(w, r, strings.TrimPrefix(path, basePath+"/"))
		return
	}
	w.WriteHeader(http.StatusNotFound)
}

type runRequest struct {
	OrganizationID string `json:"organization_id,omitempty"`
	simapp.Request
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (runRequest, string, bool) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return req, "", false
	}
	orgID := auth.OrganizationID(r.Context())
	if orgID != "" && req.OrganizationID != "" && req.OrganizationID != orgID {
		http.Error(w, "forbidden", http.StatusForbidden)
		return req, "", false
	}
	if orgID == "" {
		orgID = req.OrganizationID
	}
	return req, orgID, true
}

func (h *Handler) handlePreview(w http.ResponseWriter, r *http.Request) {
	req, orgID, ok := h.decode(w, r)
	if !ok {
		return
	}
	res, err := h.service.Run(r.Context(), orgID, req.Request)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	req, orgID, ok := h.decode(w, r)
	if !ok {
		return
	}
	sim, err := h.service.RunAndStore(r.Context(), orgID, auth.IdentityFrom(r.Context()).Subject, req.Request)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sim)
	h.logAudit(r, sim.PropertyID, sim.ID, "simulation.run", map[string]any{
		"period_start": sim.PeriodStart,
		"period_end":   sim.PeriodEnd,
		"status":       sim.Status,
	})
}

func (h *Handler) handleBatch(w http.ResponseWriter, r *http.Request) {
	if h.batch == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	var body struct {
		Requests []simapp.Request `json:"requests"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if len(body.Requests) == 0 || len(body.Requests) > maxBatchSize {
		http.Error(w, "requests must hold 1 to "+strconv.Itoa(maxBatchSize)+" items", http.StatusBadRequest)
		return
	}
	orgID := auth.OrganizationID(r.Context())
	items := h.batch.RunAll(r.Context(), orgID, auth.IdentityFrom(r.Context()).Subject, body.Requests)

	type batchResult struct {
		PropertyID string                 `json:"property_id"`
		Simulation *simulation.Simulation `json:"simulation,omitempty"`
		Error      string                 `json:"error,omitempty"`
	}
	out := make([]batchResult, 0, len(items))
	for _, item := range items {
		res := batchResult{PropertyID: item.Request.PropertyID, Simulation: item.Simulation}
		if item.Err != nil {
			res.Error = item.Err.Error()
		}
		if item.Simulation != nil {
			h.logAudit(r, item.Simulation.PropertyID, item.Simulation.ID, "simulation.run", map[string]any{
				"batch":  true,
				"status": item.Simulation.Status,
			})
		}
		out = append(out, res)
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	propertyID := q.Get("property_id")
	if propertyID == "" {
		http.Error(w, "property_id required", http.StatusBadRequest)
		return
	}
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	list, err := h.service.List(r.Context(), auth.OrganizationID(r.Context()), propertyID, limit)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if list == nil {
		list = []simulation.Simulation{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) handleByID(w http.ResponseWriter, r *http.Request, rest string) {
	if rest == "" || r.Method != http.MethodGet {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	parts := strings.Split(rest, "/")
	id := parts[0]
	switch {
	case len(parts) == 1:
		h.handleGet(w, r, id)
		return
	case len(parts) == 2 && parts[1] == "export.pdf":
		h.handleExport(w, r, id, formatPDF)
		return
	case len(parts) == 2 && parts[1] == "export.xlsx":
		h.handleExport(w, r, id, formatXLSX)
		return
	}
	w.WriteHeader(http.StatusNotFound)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request, id string) {
	sim, err := h.service.Get(r.Context(), auth.OrganizationID(r.Context()), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sim)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request, id, format string) {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveSimulationExport(format, result, time.Since(start))
	}()

	sim, res, err := h.service.Report(r.Context(), auth.OrganizationID(r.Context()), id)
	if err != nil {
		result = metrics.ResultError
		h.respondError(w, r, err)
		return
	}
	var (
		data        []byte
		contentType string
	)
	switch format {
	case formatPDF:
		data, err = BuildReportPDF(sim, res)
		contentType = "application/pdf"
	default:
		data, err = BuildReportXLSX(sim, res)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	if err != nil {
		result = metrics.ResultError
		h.logger.Error("simulation export failed",
			zap.String("event", "simulation_export_failed"),
			zap.String("simulation_id", id),
			zap.String("format", format),
			zap.Error(err),
		)
		http.Error(w, "export "+format+" error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="simulation-`+sim.ID+`.`+format+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
	h.logAudit(r, sim.PropertyID, sim.ID, "simulation.export", map[string]any{"format": format})
}

func (h *Handler) logAudit(r *http.Request, propertyID, simulationID, action string, meta map[string]any) {
	if h.auditLogger == nil {
		return
	}
	id := auth.IdentityFrom(r.Context())
	if id.OrganizationID == "" {
		return
	}
	payload, _ := json.Marshal(meta)
	_ = h.auditLogger.Log(r.Context(), audit.Entry{
		OrganizationID: id.OrganizationID,
		Actor:          id.Subject,
		Role:           string(id.Role),
		Action:         action,
		ResourceType:   "simulation",
		ResourceID:     simulationID,
		PropertyID:     propertyID,
		Metadata:       payload,
		IP:             audit.ClientIP(r),
		UserAgent:      r.UserAgent(),
	})
}

// respondError maps service failures to status codes.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, auth.ErrOrganizationMismatch):
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	case errors.Is(err, auth.ErrNotFound), errors.Is(err, masterdata.ErrPropertyNotFound):
		http.Error(w, "property not found", http.StatusNotFound)
		return
	case errors.Is(err, simulation.ErrSimulationNotFound):
		http.Error(w, "simulation not found", http.StatusNotFound)
		return
	case errors.Is(err, simulation.ErrNotReady):
		http.Error(w, "simulation not ready", http.StatusConflict)
		return
	case errors.Is(err, simulation.ErrEmptyPropertyID), errors.Is(err, simulation.ErrInvalidPeriod):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	switch engine.KindOf(err) {
	case engine.KindTariffNotFound:
		http.Error(w, err.Error(), http.StatusNotFound)
	case engine.KindInsufficientData:
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case engine.KindInvalidInput:
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.logger.Error("simulation request failed",
			zap.String("event", "simulation_request_failed"),
			zap.String("organization_id", auth.OrganizationID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		http.Error(w, "simulation failed", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
