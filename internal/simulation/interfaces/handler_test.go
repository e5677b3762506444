package interfaces

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"derivatio-energy/internal/audit"
	"derivatio-energy/internal/auth"
	"derivatio-energy/internal/calendar"
	consumption "derivatio-energy/internal/consumption/domain"
	consumptionmem "derivatio-energy/internal/consumption/infrastructure/memory"
	"derivatio-energy/internal/engine"
	masterdataapp "derivatio-energy/internal/masterdata/application"
	masterdata "derivatio-energy/internal/masterdata/domain"
	masterdatamem "derivatio-energy/internal/masterdata/infrastructure/memory"
	simapp "derivatio-energy/internal/simulation/application"
	simulation "derivatio-energy/internal/simulation/domain"
	simulationmem "derivatio-energy/internal/simulation/infrastructure/memory"
	tariffapp "derivatio-energy/internal/tariff/application"
	tariff "derivatio-energy/internal/tariff/domain"
	tariffmem "derivatio-energy/internal/tariff/infrastructure/memory"
)

func newTestHandler(t *testing.T) (*Handler, *audit.MemoryLogger) {
	t.Helper()
	properties := masterdatamem.NewPropertyRepository(
		masterdata.Property{ID: "p-1", OrganizationID: "org-a", Name: "Office", GridOperator: "ellevio", GridArea: "SE3", SubscriptionKW: 100},
		masterdata.Property{ID: "p-2", OrganizationID: "org-a", Name: "Depot", GridOperator: "nobody", GridArea: "SE3", SubscriptionKW: 100},
		masterdata.Property{ID: "p-9", OrganizationID: "org-b", Name: "Other", GridOperator: "ellevio", GridArea: "SE3", SubscriptionKW: 100},
	)
	props, err := masterdataapp.NewPropertyService(properties, masterdatamem.NewFleetRepository())
	require.NoError(t, err)
	resolver, err := tariffapp.NewResolver(tariffmem.NewCatalog(tariff.GridTariff{
		ID:               "t-1",
		Operator:         "ellevio",
		TariffName:       "Ellevio_Effekt",
		ValidFrom:        calendar.NewDate(2024, time.January, 1),
		BaseMonthlyFee:   400,
		CapacityFeeKW:    34,
		PeakFeeKW:        71,
		PeakHoursStart:   6,
		PeakHoursEnd:     22,
		PeakMonths:       []time.Month{time.November, time.December, time.January, time.February, time.March},
		PeakWeekdaysOnly: true,
		PeakCalcMethod:   tariff.PeakSingle,
		EnergyFeePeak:    0.06,
		EnergyFeeOffpeak: 0.02,
	}), nil)
	require.NoError(t, err)

	readings := consumptionmem.NewStore(auth.NewPropertyChecker(properties))
	start := time.Date(2025, time.January, 8, 0, 0, 0, 0, time.UTC)
	var records []consumption.Record
	for i := 0; i < 48; i++ {
		ts := start.Add(time.Duration(i) * time.Hour)
		kwh := 5.0
		if h := ts.Hour(); h >= 8 && h < 18 {
			kwh = 20
		}
		records = append(records,
			consumption.Record{PropertyID: "p-1", Timestamp: ts, KWh: kwh},
			consumption.Record{PropertyID: "p-2", Timestamp: ts, KWh: kwh},
		)
	}
	require.NoError(t, readings.SaveBatch(context.Background(), records))

	svc, err := simapp.NewService(simulationmem.NewRepository(), props, readings, resolver,
		engine.Options{Location: time.UTC},
		simapp.WithAccessChecker(auth.NewPropertyChecker(properties)),
	)
	require.NoError(t, err)
	batch, err := simapp.NewBatchRunner(svc, 2)
	require.NoError(t, err)
	logger := &audit.MemoryLogger{}
	h, err := NewHandler(svc, batch, logger, nil)
	require.NoError(t, err)
	return h, logger
}

func body(t *testing.T, propertyID string) *bytes.Reader {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"property_id":  propertyID,
		"period_start": "2025-01-08",
		"period_end":   "2025-01-09",
	})
	require.NoError(t, err)
	return bytes.NewReader(raw)
}

func serve(h http.Handler, org string, req *http.Request) *httptest.ResponseRecorder {
	if org != "" {
		req = req.WithContext(auth.WithIdentity(req.Context(), auth.Identity{OrganizationID: org, Role: auth.RoleAnalyst, Subject: "user-1"}))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func createSimulation(t *testing.T, h http.Handler, org, propertyID string) simulation.Simulation {
	t.Helper()
	rec := serve(h, org, httptest.NewRequest(http.MethodPost, "/api/v1/simulations", body(t, propertyID)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var sim simulation.Simulation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sim))
	return sim
}

func TestHandler_Preview(t *testing.T) {
	h, logger := newTestHandler(t)
	rec := serve(h, "org-a", httptest.NewRequest(http.MethodPost, "/api/v1/simulations/run", body(t, "p-1")))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Contains(t, res, "cost_without_derivatio")
	assert.Contains(t, res, "cost_with_derivatio")
	assert.Contains(t, res, "worst_days_avoided")
	assert.Empty(t, logger.Entries())
}

func TestHandler_CreateGetAndAudit(t *testing.T) {
	h, logger := newTestHandler(t)
	sim := createSimulation(t, h, "org-a", "p-1")
	assert.Equal(t, simulation.StatusDone, sim.Status)
	assert.Equal(t, "user-1", sim.CreatedBy)

	entries := logger.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "simulation.run", entries[0].Action)
	assert.Equal(t, "p-1", entries[0].PropertyID)
	assert.Equal(t, sim.ID, entries[0].ResourceID)

	rec := serve(h, "org-a", httptest.NewRequest(http.MethodGet, "/api/v1/simulations/"+sim.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(h, "org-b", httptest.NewRequest(http.MethodGet, "/api/v1/simulations/"+sim.ID, nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = serve(h, "org-a", httptest.NewRequest(http.MethodGet, "/api/v1/simulations/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(h, "org-a", httptest.NewRequest(http.MethodGet, "/api/v1/simulations?property_id=p-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list []simulation.Simulation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)
}

func TestHandler_ErrorStatuses(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := serve(h, "org-a", httptest.NewRequest(http.MethodPost, "/api/v1/simulations/run", body(t, "p-2")))
	assert.Equal(t, http.StatusNotFound, rec.Code, "tariff not found")

	rec = serve(h, "org-a", httptest.NewRequest(http.MethodPost, "/api/v1/simulations/run", body(t, "p-9")))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = serve(h, "org-a", httptest.NewRequest(http.MethodPost, "/api/v1/simulations/run", body(t, "")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(h, "org-a", httptest.NewRequest(http.MethodPost, "/api/v1/simulations/run", bytes.NewReader([]byte("{"))))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	raw, _ := json.Marshal(map[string]any{"organization_id": "org-b", "property_id": "p-1", "period_start": "2025-01-08", "period_end": "2025-01-09"})
	rec = serve(h, "org-a", httptest.NewRequest(http.MethodPost, "/api/v1/simulations", bytes.NewReader(raw)))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	raw, _ = json.Marshal(map[string]any{"property_id": "p-1", "period_start": "2025-02-08", "period_end": "2025-02-09"})
	rec = serve(h, "org-a", httptest.NewRequest(http.MethodPost, "/api/v1/simulations/run", bytes.NewReader(raw)))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, "no consumption in February")

	rec = serve(h, "org-a", httptest.NewRequest(http.MethodGet, "/api/v1/simulations", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(h, "org-a", httptest.NewRequest(http.MethodDelete, "/api/v1/simulations/abc", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_ExportRequiresDoneSimulation(t *testing.T) {
	h, _ := newTestHandler(t)
	failed := createSimulation(t, h, "org-a", "p-2")
	require.Equal(t, simulation.StatusError, failed.Status)

	rec := serve(h, "org-a", httptest.NewRequest(http.MethodGet, "/api/v1/simulations/"+failed.ID+"/export.pdf", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandler_ExportPDFAndXLSX(t *testing.T) {
	h, logger := newTestHandler(t)
	sim := createSimulation(t, h, "org-a", "p-1")

	rec := serve(h, "org-a", httptest.NewRequest(http.MethodGet, "/api/v1/simulations/"+sim.ID+"/export.pdf", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))

	rec = serve(h, "org-a", httptest.NewRequest(http.MethodGet, "/api/v1/simulations/"+sim.ID+"/export.xlsx", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	month, err := f.GetCellValue("months", "A2")
	require.NoError(t, err)
	assert.Equal(t, "2025-01", month)

	var exports int
	for _, e := range logger.Entries() {
		if e.Action == "simulation.export" {
			exports++
		}
	}
	assert.Equal(t, 2, exports)
}

func TestHandler_Batch(t *testing.T) {
	h, _ := newTestHandler(t)
	raw, _ := json.Marshal(map[string]any{"requests": []map[string]any{
		{"property_id": "p-1", "period_start": "2025-01-08", "period_end": "2025-01-09"},
		{"property_id": "p-9", "period_start": "2025-01-08", "period_end": "2025-01-09"},
	}})
	rec := serve(h, "org-a", httptest.NewRequest(http.MethodPost, "/api/v1/simulations/batch", bytes.NewReader(raw)))
	require.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		Items []struct {
			PropertyID string                 `json:"property_id"`
			Simulation *simulation.Simulation `json:"simulation"`
			Error      string                 `json:"error"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out.Items, 2)
	assert.Equal(t, simulation.StatusDone, out.Items[0].Simulation.Status)
	assert.Nil(t, out.Items[1].Simulation)
	assert.NotEmpty(t, out.Items[1].Error)

	rec = serve(h, "org-a", httptest.NewRequest(http.MethodPost, "/api/v1/simulations/batch", bytes.NewReader([]byte(`{"requests":[]}`))))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
