package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"derivatio-energy/internal/auth"
	"derivatio-energy/internal/calendar"
	consumption "derivatio-energy/internal/consumption/domain"
	consumptionmem "derivatio-energy/internal/consumption/infrastructure/memory"
	"derivatio-energy/internal/engine"
	"derivatio-energy/internal/loadshift"
	masterdataapp "derivatio-energy/internal/masterdata/application"
	masterdata "derivatio-energy/internal/masterdata/domain"
	masterdatamem "derivatio-energy/internal/masterdata/infrastructure/memory"
	simulation "derivatio-energy/internal/simulation/domain"
	simulationmem "derivatio-energy/internal/simulation/infrastructure/memory"
	"derivatio-energy/internal/simulation/notify"
	tariffapp "derivatio-energy/internal/tariff/application"
	tariff "derivatio-energy/internal/tariff/domain"
	tariffmem "derivatio-energy/internal/tariff/infrastructure/memory"
)

const (
	orgA = "org-a"
	orgB = "org-b"
)

type fixture struct {
	service  *Service
	repo     *simulationmem.Repository
	readings *consumptionmem.Store
}

func ellevioTariff() tariff.GridTariff {
	return tariff.GridTariff{
		ID:               "t-ellevio",
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
	}
}

func property(id, org, operator string) masterdata.Property {
	return masterdata.Property{
		ID:             id,
		OrganizationID: org,
		Name:           "Property " + id,
		GridOperator:   operator,
		GridArea:       "SE3",
		SubscriptionKW: 100,
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	properties := masterdatamem.NewPropertyRepository(
		property("p-1", orgA, "ellevio"),
		property("p-2", orgA, "unknown_operator"),
		property("p-3", orgB, "ellevio"),
	)
	props, err := masterdataapp.NewPropertyService(properties, masterdatamem.NewFleetRepository())
	require.NoError(t, err)
	resolver, err := tariffapp.NewResolver(tariffmem.NewCatalog(ellevioTariff()), nil)
	require.NoError(t, err)

	readings := consumptionmem.NewStore(auth.NewPropertyChecker(properties))
	repo := simulationmem.NewRepository()

	var seq int
	var mu sync.Mutex
	clock := time.Date(2025, time.February, 1, 6, 0, 0, 0, time.UTC)
	svc, err := NewService(repo, props, readings, resolver,
		engine.Options{Location: time.UTC},
		WithClock(func() time.Time { return clock }),
		WithIDGenerator(func() string {
			mu.Lock()
			defer mu.Unlock()
			seq++
			return fmt.Sprintf("sim-%02d", seq)
		}),
		WithAccessChecker(auth.NewPropertyChecker(properties)),
	)
	require.NoError(t, err)
	return &fixture{service: svc, repo: repo, readings: readings}
}

// seedFlatBase stores a flat 5 kW base load for 2025-01-08 and 2025-01-09.
func (f *fixture) seedFlatBase(t *testing.T, propertyID string) {
	t.Helper()
	start := time.Date(2025, time.January, 8, 0, 0, 0, 0, time.UTC)
	records := make([]consumption.Record, 0, 48)
	for i := 0; i < 48; i++ {
		records = append(records, consumption.Record{
			PropertyID: propertyID,
			Timestamp:  start.Add(time.Duration(i) * time.Hour),
			KWh:        5,
			Source:     consumption.SourceMeter,
		})
	}
	require.NoError(t, f.readings.SaveBatch(context.Background(), records))
}

func twoDayRequest(propertyID string) Request {
	start := time.Date(2025, time.January, 8, 0, 0, 0, 0, time.UTC)
	prices := make([]SpotPrice, 0, 48)
	for i := 0; i < 48; i++ {
		ts := start.Add(time.Duration(i) * time.Hour)
		price := 100.0
		if h := ts.Hour(); h >= 18 && h < 22 {
			price = 10
		}
		prices = append(prices, SpotPrice{Timestamp: ts, PriceOreKWh: price})
	}
	return Request{
		PropertyID:  propertyID,
		PeriodStart: calendar.NewDate(2025, time.January, 8),
		PeriodEnd:   calendar.NewDate(2025, time.January, 9),
		Fleet: &masterdata.Fleet{
			Name: "pool", VehicleCount: 1, ChargerKW: 10, BatteryKWh: 40, AvgSOCOnArrival: 0.5, ArrivalHour: 18, DepartureHour: 2,
		},
		SpotPrices: prices,
	}
}

func TestService_RunPreview(t *testing.T) {
	f := newFixture(t)
	f.seedFlatBase(t, "p-1")

	res, err := f.service.Run(context.Background(), orgA, twoDayRequest("p-1"))
	require.NoError(t, err)

	assert.Equal(t, "p-1", res.PropertyID)
	assert.Equal(t, "Ellevio_Effekt", res.Tariff.TariffName)
	assert.Equal(t, loadshift.QualityOK, res.DataQuality())
	assert.Equal(t, 15.0, res.PeakKWWithout)
	assert.Equal(t, 5.0, res.PeakKWWith)
	assert.True(t, res.SavingsTotal.Equal(decimal.RequireFromString("1051.6")), "savings %s", res.SavingsTotal)
	assert.Nil(t, res.Plan.Hours)

	list, err := f.repo.ListByProperty(context.Background(), orgA, "p-1", 10)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestService_RunUsesMeteredPeakDemand(t *testing.T) {
	f := newFixture(t)
	f.seedFlatBase(t, "p-1")
	spike := 60.0
	require.NoError(t, f.readings.SaveBatch(context.Background(), []consumption.Record{{
		PropertyID: "p-1",
		Timestamp:  time.Date(2025, time.January, 8, 10, 0, 0, 0, time.UTC),
		KWh:        5,
		KWPeak:     &spike,
		Source:     consumption.SourceMeter,
	}}))

	res, err := f.service.Run(context.Background(), orgA, twoDayRequest("p-1"))
	require.NoError(t, err)
	assert.Equal(t, 60.0, res.PeakKWWithout)
	assert.Equal(t, 60.0, res.PeakKWWith)
}

func TestService_RunKeepsQuarterHourSpike(t *testing.T) {
	f := newFixture(t)
	start := time.Date(2025, time.January, 8, 0, 0, 0, 0, time.UTC)
	records := make([]consumption.Record, 0, 48*4)
	for i := 0; i < 48*4; i++ {
		ts := start.Add(time.Duration(i) * 15 * time.Minute)
		kwh := 1.25
		if ts.Equal(start.Add(10 * time.Hour)) {
			kwh = 20
		}
		records = append(records, consumption.Record{PropertyID: "p-1", Timestamp: ts, KWh: kwh, Source: consumption.SourceMeter})
	}
	require.NoError(t, f.readings.SaveBatch(context.Background(), records))

	res, err := f.service.Run(context.Background(), orgA, twoDayRequest("p-1"))
	require.NoError(t, err)
	assert.InDelta(t, 80.0, res.PeakKWWithout, 1e-9)
}

func TestService_RunRejectsUnmeteredBilledMonth(t *testing.T) {
	f := newFixture(t)
	f.seedFlatBase(t, "p-1")
	req := twoDayRequest("p-1")
	req.PeriodEnd = calendar.NewDate(2025, time.February, 28)

	_, err := f.service.Run(context.Background(), orgA, req)
	require.Error(t, err)
	assert.Equal(t, engine.KindInsufficientData, engine.KindOf(err))
}

func TestService_RunIncludesHourlyDetailOnRequest(t *testing.T) {
	f := newFixture(t)
	f.seedFlatBase(t, "p-1")
	req := twoDayRequest("p-1")
	req.IncludeHourly = true

	res, err := f.service.Run(context.Background(), orgA, req)
	require.NoError(t, err)
	assert.Len(t, res.Plan.Hours, 48)
}

func TestService_RunAndStoreDone(t *testing.T) {
	f := newFixture(t)
	f.seedFlatBase(t, "p-1")

	sim, err := f.service.RunAndStore(context.Background(), orgA, "user-1", twoDayRequest("p-1"))
	require.NoError(t, err)
	assert.Equal(t, "sim-01", sim.ID)
	assert.Equal(t, simulation.StatusDone, sim.Status)
	assert.Equal(t, "user-1", sim.CreatedBy)
	require.NotNil(t, sim.SavingsTotal)
	assert.True(t, sim.SavingsTotal.Equal(decimal.RequireFromString("1051.6")))
	require.NotNil(t, sim.CompletedAt)
	assert.Len(t, sim.ResultHash, 64)

	var params Request
	require.NoError(t, json.Unmarshal(sim.InputParams, &params))
	assert.Equal(t, "p-1", params.PropertyID)

	stored, res, err := f.service.Report(context.Background(), orgA, sim.ID)
	require.NoError(t, err)
	assert.Equal(t, simulation.StatusDone, stored.Status)
	assert.True(t, res.CostWithout.Equal(*sim.CostWithout))
	assert.Equal(t, loadshift.QualityOK, res.DataQuality())
}

func TestService_RunAndStoreIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.seedFlatBase(t, "p-1")

	first, err := f.service.RunAndStore(context.Background(), orgA, "user-1", twoDayRequest("p-1"))
	require.NoError(t, err)
	second, err := f.service.RunAndStore(context.Background(), orgA, "user-1", twoDayRequest("p-1"))
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, first.ResultHash, second.ResultHash)
}

func TestService_RunAndStoreRecordsTariffNotFound(t *testing.T) {
	f := newFixture(t)
	f.seedFlatBase(t, "p-2")

	sim, err := f.service.RunAndStore(context.Background(), orgA, "user-1", twoDayRequest("p-2"))
	require.NoError(t, err)
	assert.Equal(t, simulation.StatusError, sim.Status)
	assert.Contains(t, sim.FailureMessage(), "tariff")

	var payload map[string]string
	require.NoError(t, json.Unmarshal(sim.Result, &payload))
	assert.Equal(t, string(engine.KindTariffNotFound), payload["kind"])
	assert.Nil(t, sim.SavingsTotal)

	_, _, err = f.service.Report(context.Background(), orgA, sim.ID)
	assert.ErrorIs(t, err, simulation.ErrNotReady)
}

func TestService_RunAndStoreRecordsMissingBaseLoad(t *testing.T) {
	f := newFixture(t)

	sim, err := f.service.RunAndStore(context.Background(), orgA, "user-1", twoDayRequest("p-1"))
	require.NoError(t, err)
	assert.Equal(t, simulation.StatusError, sim.Status)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(sim.Result, &payload))
	assert.Equal(t, string(engine.KindInsufficientData), payload["kind"])
}

func TestService_SyntheticBaseLoadFallback(t *testing.T) {
	f := newFixture(t)
	req := twoDayRequest("p-1")
	req.SpotPrices = nil
	req.AllowSyntheticBaseLoad = true

	res, err := f.service.Run(context.Background(), orgA, req)
	require.NoError(t, err)
	assert.Equal(t, loadshift.QualityFallback, res.DataQuality())
	assert.Equal(t, 0.10, res.Plan.SafetyMargin)
}

func TestService_OrganizationIsolation(t *testing.T) {
	f := newFixture(t)
	f.seedFlatBase(t, "p-3")

	_, err := f.service.Run(context.Background(), orgA, twoDayRequest("p-3"))
	assert.True(t, errors.Is(err, auth.ErrOrganizationMismatch), "got %v", err)

	sim, err := f.service.RunAndStore(context.Background(), orgB, "user-2", twoDayRequest("p-3"))
	require.NoError(t, err)

	_, err = f.service.Get(context.Background(), orgA, sim.ID)
	assert.ErrorIs(t, err, auth.ErrOrganizationMismatch)

	got, err := f.service.Get(context.Background(), orgB, sim.ID)
	require.NoError(t, err)
	assert.Equal(t, sim.ID, got.ID)

	_, err = f.service.List(context.Background(), orgA, "p-3", 10)
	assert.ErrorIs(t, err, auth.ErrOrganizationMismatch)
}

func TestService_InvalidRequests(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Run(context.Background(), orgA, Request{})
	assert.Equal(t, engine.KindInvalidInput, engine.KindOf(err))

	req := twoDayRequest("p-1")
	req.PeriodStart, req.PeriodEnd = req.PeriodEnd, req.PeriodStart
	_, err = f.service.RunAndStore(context.Background(), orgA, "user-1", req)
	assert.ErrorIs(t, err, engine.ErrInvalidInput)

	_, err = f.service.Run(context.Background(), orgA, twoDayRequest("missing"))
	assert.Error(t, err)

	_, err = f.service.Get(context.Background(), orgA, "nope")
	assert.ErrorIs(t, err, simulation.ErrSimulationNotFound)
}

func TestService_ListNewestFirst(t *testing.T) {
	f := newFixture(t)
	f.seedFlatBase(t, "p-1")
	for i := 0; i < 3; i++ {
		_, err := f.service.RunAndStore(context.Background(), orgA, "user-1", twoDayRequest("p-1"))
		require.NoError(t, err)
	}

	list, err := f.service.List(context.Background(), orgA, "p-1", 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "sim-03", list[0].ID)
	assert.Equal(t, "sim-02", list[1].ID)
}

func TestNewService_NilDependencies(t *testing.T) {
	_, err := NewService(nil, nil, nil, nil, engine.Options{})
	assert.Error(t, err)
}

func TestBatchRunner_KeepsRequestOrder(t *testing.T) {
	f := newFixture(t)
	f.seedFlatBase(t, "p-1")
	batch, err := NewBatchRunner(f.service, 2)
	require.NoError(t, err)

	reqs := []Request{twoDayRequest("p-1"), twoDayRequest("missing"), twoDayRequest("p-2"), twoDayRequest("p-1")}
	items := batch.RunAll(context.Background(), orgA, "user-1", reqs)
	require.Len(t, items, 4)

	assert.Equal(t, simulation.StatusDone, items[0].Simulation.Status)
	assert.ErrorIs(t, items[1].Err, auth.ErrNotFound)
	assert.Equal(t, simulation.StatusError, items[2].Simulation.Status)
	assert.Equal(t, simulation.StatusDone, items[3].Simulation.Status)
	for i, item := range items {
		assert.Equal(t, reqs[i].PropertyID, item.Request.PropertyID)
	}
	assert.True(t, items[0].Simulation.SavingsTotal.Equal(*items[3].Simulation.SavingsTotal))
}

func TestBatchRunner_CanceledContext(t *testing.T) {
	f := newFixture(t)
	batch, err := NewBatchRunner(f.service, 0)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	items := batch.RunAll(ctx, orgA, "user-1", []Request{twoDayRequest("p-1")})
	require.Len(t, items, 1)
	assert.ErrorIs(t, items[0].Err, context.Canceled)
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []notify.Notice
}

func (r *recordingNotifier) Notify(_ context.Context, n notify.Notice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
	return nil
}

func TestScheduler_RunOncePreviousMonth(t *testing.T) {
	f := newFixture(t)
	batch, err := NewBatchRunner(f.service, 2)
	require.NoError(t, err)
	notifier := &recordingNotifier{}
	jobs := []Job{
		{PropertyID: "p-1", AllowSyntheticBaseLoad: true},
		{PropertyID: "missing"},
		{PropertyID: ""},
	}
	s := NewScheduler(batch, jobs, "06:00", time.UTC, notifier, nil)

	items := s.RunOnce(context.Background(), time.Date(2025, time.February, 1, 6, 0, 0, 0, time.UTC))
	require.Len(t, items, 2)

	done := items[0].Simulation
	require.NotNil(t, done)
	assert.Equal(t, simulation.StatusDone, done.Status)
	assert.Equal(t, calendar.NewDate(2025, time.January, 1), done.PeriodStart)
	assert.Equal(t, calendar.NewDate(2025, time.January, 31), done.PeriodEnd)
	assert.Equal(t, orgA, done.OrganizationID)
	assert.Equal(t, "scheduler", done.CreatedBy)
	assert.Error(t, items[1].Err)

	require.Len(t, notifier.notices, 2)
	assert.Equal(t, "2025-01", notifier.notices[0].Period)
	assert.Equal(t, simulation.StatusDone, notifier.notices[0].Status)
	assert.Equal(t, done.ID, notifier.notices[0].SimulationID)
	assert.NotEmpty(t, notifier.notices[0].SavingsTotal)
	assert.Equal(t, simulation.StatusError, notifier.notices[1].Status)
	assert.NotEmpty(t, notifier.notices[1].Error)
}

func TestScheduler_ShouldRun(t *testing.T) {
	s := NewScheduler(nil, nil, "06:30", time.UTC, nil, nil)
	assert.True(t, s.shouldRun(time.Date(2025, time.March, 3, 6, 30, 10, 0, time.UTC)))
	assert.False(t, s.shouldRun(time.Date(2025, time.March, 3, 6, 31, 0, 0, time.UTC)))

	bad := NewScheduler(nil, nil, "6pm", time.UTC, nil, nil)
	assert.False(t, bad.shouldRun(time.Date(2025, time.March, 3, 18, 0, 0, 0, time.UTC)))
	assert.Nil(t, bad.RunOnce(context.Background(), time.Now()))
}
