package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"derivatio-energy/internal/auth"
	"derivatio-energy/internal/calendar"
	consumption "derivatio-energy/internal/consumption/domain"
	"derivatio-energy/internal/engine"
	"derivatio-energy/internal/loadshift"
	masterdata "derivatio-energy/internal/masterdata/domain"
	"derivatio-energy/internal/observability/logging"
	"derivatio-energy/internal/observability/metrics"
	simulation "derivatio-energy/internal/simulation/domain"
	tariffapp "derivatio-energy/internal/tariff/application"
	tariff "derivatio-energy/internal/tariff/domain"
)

const defaultListLimit = 50

// PropertySource looks up properties and their fleets.
type PropertySource interface {
	Property(ctx context.Context, id string) (*masterdata.Property, error)
	PrimaryFleet(ctx context.Context, propertyID string) (masterdata.Fleet, error)
}

// TariffResolver picks the tariff in force on a date.
type TariffResolver interface {
	Resolve(ctx context.Context, operator, tariffName string, day calendar.Date) (*tariffapp.Resolution, error)
}

// Service runs simulations and manages their lifecycle.
type Service struct {
	repo       simulation.Repository
	properties PropertySource
	readings   consumption.Reader
	resolver   TariffResolver
	access     auth.PropertyAccessChecker
	planner    *loadshift.Planner
	comparator *engine.Comparator
	loc        *time.Location
	logger     *zap.Logger
	now        func() time.Time
	newID      func() string
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) { s.logger = logging.OrNop(logger) }
}

// WithAccessChecker sets the organization access check applied before reading a property.
func WithAccessChecker(access auth.PropertyAccessChecker) Option {
	return func(s *Service) {
		if access != nil {
			s.access = access
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides simulation id generation.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// NewService constructs a simulation service. Engine options set the local zone and the
// insufficient data policy shared by planning and aggregation.
func NewService(repo simulation.Repository, properties PropertySource, readings consumption.Reader, resolver TariffResolver, opts engine.Options, options ...Option) (*Service, error) {
	if repo == nil {
		return nil, errors.New("simulation service: nil repo")
	}
	if properties == nil {
		return nil, errors.New("simulation service: nil property source")
	}
	if readings == nil {
		return nil, errors.New("simulation service: nil consumption reader")
	}
	if resolver == nil {
		return nil, errors.New("simulation service: nil tariff resolver")
	}
	agg := engine.NewAggregator(opts)
	s := &Service{
		repo:       repo,
		properties: properties,
		readings:   readings,
		resolver:   resolver,
		access:     auth.AllowAll{},
		comparator: engine.NewComparator(agg),
		loc:        agg.Location(),
		logger:     zap.NewNop(),
		now:        func() time.Time { return time.Now().UTC() },
		newID:      uuid.NewString,
	}
	for _, opt := range options {
		opt(s)
	}
	s.planner = loadshift.NewPlanner(s.loc, s.logger)
	return s, nil
}

// Run computes a simulation without storing it.
func (s *Service) Run(ctx context.Context, organizationID string, req Request) (*Result, error) {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveSimulationRun(metrics.ModePreview, result, time.Since(start))
	}()

	prop, err := s.property(ctx, organizationID, req.PropertyID)
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}
	res, err := s.compute(ctx, organizationID, prop, req)
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}
	return res, nil
}

// RunAndStore creates a pending simulation, runs it and stores the terminal state.
// A failed run is recorded on the simulation; the returned error covers storage failures only.
func (s *Service) RunAndStore(ctx context.Context, organizationID, actor string, req Request) (*simulation.Simulation, error) {
	return s.runAndStore(ctx, organizationID, actor, req, metrics.ModeStored)
}

func (s *Service) runAndStore(ctx context.Context, organizationID, actor string, req Request, mode string) (*simulation.Simulation, error) {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveSimulationRun(mode, result, time.Since(start))
	}()

	if _, err := req.Period(); err != nil {
		result = metrics.ResultError
		return nil, err
	}
	prop, err := s.property(ctx, organizationID, req.PropertyID)
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}
	if organizationID == "" {
		organizationID = prop.OrganizationID
	}

	params, err := json.Marshal(req)
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}
	sim, err := simulation.New(s.newID(), organizationID, prop.ID, actor, req.PeriodStart, req.PeriodEnd, params, s.now())
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}
	if err := s.repo.Create(ctx, sim); err != nil {
		result = metrics.ResultError
		return nil, err
	}
	if err := sim.Start(s.now()); err != nil {
		result = metrics.ResultError
		return nil, err
	}
	if err := s.repo.Update(ctx, sim); err != nil {
		result = metrics.ResultError
		return nil, err
	}

	res, runErr := s.compute(ctx, organizationID, prop, req)
	// The terminal state is written even when the caller has gone away.
	storeCtx := context.WithoutCancel(ctx)
	if runErr != nil {
		result = metrics.ResultError
		if err := sim.Fail(string(engine.KindOf(runErr)), runErr.Error(), s.now()); err != nil {
			return nil, err
		}
		s.logger.Error("simulation failed",
			zap.String("event", "simulation_failed"),
			zap.String("organization_id", organizationID),
			zap.String("property_id", prop.ID),
			zap.String("simulation_id", sim.ID),
			zap.String("kind", string(engine.KindOf(runErr))),
			zap.Error(runErr),
		)
		if err := s.repo.Update(storeCtx, sim); err != nil {
			return nil, err
		}
		return sim, nil
	}

	raw, hash, err := encodeResult(res)
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}
	if err := sim.Complete(outcomeOf(res, raw, hash), s.now()); err != nil {
		result = metrics.ResultError
		return nil, err
	}
	if err := s.repo.Update(storeCtx, sim); err != nil {
		result = metrics.ResultError
		return nil, err
	}
	s.logger.Info("simulation done",
		zap.String("event", "simulation_done"),
		zap.String("organization_id", organizationID),
		zap.String("property_id", prop.ID),
		zap.String("simulation_id", sim.ID),
		zap.Stringer("savings_total", res.SavingsTotal),
		zap.String("data_quality", string(res.DataQuality())),
	)
	return sim, nil
}

// Get returns a simulation visible to the organization.
func (s *Service) Get(ctx context.Context, organizationID, id string) (*simulation.Simulation, error) {
	sim, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sim == nil {
		return nil, simulation.ErrSimulationNotFound
	}
	if organizationID != "" && sim.OrganizationID != organizationID {
		return nil, auth.ErrOrganizationMismatch
	}
	return sim, nil
}

// Report returns a done simulation with its decoded result.
func (s *Service) Report(ctx context.Context, organizationID, id string) (*simulation.Simulation, *Result, error) {
	sim, err := s.Get(ctx, organizationID, id)
	if err != nil {
		return nil, nil, err
	}
	res, err := DecodeResult(sim)
	if err != nil {
		return nil, nil, err
	}
	return sim, res, nil
}

// List returns the latest simulations of a property.
func (s *Service) List(ctx context.Context, organizationID, propertyID string, limit int) ([]simulation.Simulation, error) {
	if propertyID == "" {
		return nil, simulation.ErrEmptyPropertyID
	}
	if limit <= 0 || limit > 500 {
		limit = defaultListLimit
	}
	if err := s.ensureAccess(ctx, organizationID, propertyID); err != nil {
		return nil, err
	}
	return s.repo.ListByProperty(ctx, organizationID, propertyID, limit)
}

func (s *Service) property(ctx context.Context, organizationID, propertyID string) (*masterdata.Property, error) {
	if propertyID == "" {
		return nil, fmt.Errorf("%w: property_id required", engine.ErrInvalidInput)
	}
	if err := s.ensureAccess(ctx, organizationID, propertyID); err != nil {
		return nil, err
	}
	prop, err := s.properties.Property(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	if organizationID != "" && prop.OrganizationID != organizationID {
		return nil, auth.ErrOrganizationMismatch
	}
	return prop, nil
}

func (s *Service) ensureAccess(ctx context.Context, organizationID, propertyID string) error {
	if organizationID == "" {
		return nil
	}
	return s.access.EnsurePropertyAccess(ctx, organizationID, propertyID)
}

// compute is the pipeline: resolve tariff, load consumption, plan charging, compare.
func (s *Service) compute(ctx context.Context, organizationID string, prop *masterdata.Property, req Request) (*Result, error) {
	period, err := req.Period()
	if err != nil {
		return nil, err
	}

	var fleet masterdata.Fleet
	if req.Fleet != nil {
		fleet = req.Fleet.WithDefaults()
	} else {
		fleet, err = s.properties.PrimaryFleet(ctx, prop.ID)
		if err != nil {
			return nil, err
		}
	}

	resolution, err := s.resolver.Resolve(ctx, prop.GridOperator, req.TariffName, period.Start)
	if err != nil {
		if errors.Is(err, tariff.ErrTariffNotFound) {
			return nil, engine.TariffNotFound("resolve", err)
		}
		return nil, err
	}

	from, to := period.Bounds(s.loc)
	records, err := s.readings.ListByProperty(ctx, organizationID, prop.ID, from, to)
	if err != nil {
		return nil, err
	}

	plan, err := s.planner.Plan(ctx, loadshift.Input{
		PropertyID:             prop.ID,
		Period:                 period,
		Tariff:                 resolution.Tariff,
		Fleet:                  fleet,
		SubscriptionKW:         prop.SubscriptionKW,
		Base:                   consumption.Series{PropertyID: prop.ID, Records: records},
		SpotPrices:             req.priceMap(),
		AllowSyntheticBaseLoad: req.AllowSyntheticBaseLoad,
	})
	if err != nil {
		return nil, err
	}

	cmp, err := s.comparator.Simulate(ctx, plan.Baseline, plan.Shifted, resolution.Tariff, period)
	if err != nil {
		return nil, err
	}
	if !req.IncludeHourly {
		plan.Hours = nil
	}
	return &Result{
		PropertyID: prop.ID,
		Tariff:     resolution.Tariff,
		Warnings:   resolution.Warnings,
		Plan:       plan,
		Comparison: *cmp,
	}, nil
}
