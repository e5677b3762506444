package application

import (
	"context"
	"time"

	"go.uber.org/zap"

	"derivatio-energy/internal/calendar"
	masterdata "derivatio-energy/internal/masterdata/domain"
	"derivatio-energy/internal/observability/logging"
	"derivatio-energy/internal/observability/metrics"
	simulation "derivatio-energy/internal/simulation/domain"
	"derivatio-energy/internal/simulation/notify"
)

const schedulerActor = "scheduler"

// Job is a property simulated every day for the previous calendar month.
type Job struct {
	PropertyID             string
	TariffName             string
	Fleet                  *masterdata.Fleet
	AllowSyntheticBaseLoad bool
}

// Scheduler runs the configured jobs once a day at dailyAt (HH:MM, local time).
type Scheduler struct {
	batch    *BatchRunner
	jobs     []Job
	dailyAt  string
	loc      *time.Location
	notifier notify.Notifier
	logger   *zap.Logger
}

// NewScheduler constructs a Scheduler. A nil notifier disables notices.
func NewScheduler(batch *BatchRunner, jobs []Job, dailyAt string, loc *time.Location, notifier notify.Notifier, logger *zap.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		batch:    batch,
		jobs:     jobs,
		dailyAt:  dailyAt,
		loc:      loc,
		notifier: notifier,
		logger:   logging.OrNop(logger),
	}
}

// Start blocks, checking the clock every minute until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	if s == nil || s.batch == nil {
		return
	}
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if !s.shouldRun(now.In(s.loc)) {
				continue
			}
			s.RunOnce(ctx, now)
		}
	}
}

func (s *Scheduler) shouldRun(local time.Time) bool {
	hour, minute, err := parseDailyAt(s.dailyAt)
	if err != nil {
		return false
	}
	return local.Hour() == hour && local.Minute() == minute
}

// RunOnce simulates every job for the calendar month before now.
func (s *Scheduler) RunOnce(ctx context.Context, now time.Time) []BatchItem {
	if len(s.jobs) == 0 {
		return nil
	}
	started := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveSchedulerRun(result, time.Since(started))
	}()

	month := calendar.MonthOf(now.In(s.loc)).Prev()
	reqs := make([]Request, 0, len(s.jobs))
	for _, job := range s.jobs {
		if job.PropertyID == "" {
			continue
		}
		reqs = append(reqs, Request{
			PropertyID:             job.PropertyID,
			PeriodStart:            month.FirstDay(),
			PeriodEnd:              month.LastDay(),
			TariffName:             job.TariffName,
			Fleet:                  job.Fleet,
			AllowSyntheticBaseLoad: job.AllowSyntheticBaseLoad,
		})
	}

	items := s.batch.runAll(ctx, "", schedulerActor, reqs, metrics.ModeScheduled)
	for _, item := range items {
		notice := notify.Notice{PropertyID: item.Request.PropertyID, Period: month.String()}
		switch {
		case item.Err != nil:
			result = metrics.ResultError
			notice.Status = simulation.StatusError
			notice.Error = item.Err.Error()
			s.logger.Error("scheduled simulation error",
				zap.String("event", "scheduled_simulation_error"),
				zap.String("property_id", item.Request.PropertyID),
				zap.Stringer("month", month),
				zap.Error(item.Err),
			)
		default:
			sim := item.Simulation
			notice.OrganizationID = sim.OrganizationID
			notice.SimulationID = sim.ID
			notice.Status = sim.Status
			if sim.Status == simulation.StatusError {
				result = metrics.ResultError
				notice.Error = sim.FailureMessage()
			}
			if sim.SavingsTotal != nil {
				notice.SavingsTotal = sim.SavingsTotal.StringFixed(2)
			}
		}
		s.notify(ctx, notice)
	}
	return items
}

func (s *Scheduler) notify(ctx context.Context, notice notify.Notice) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, notice); err != nil {
		s.logger.Warn("simulation notice failed",
			zap.String("event", "simulation_notice_failed"),
			zap.String("property_id", notice.PropertyID),
			zap.Error(err),
		)
	}
}

func parseDailyAt(value string) (int, int, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, 0, err
	}
	return t.Hour(), t.Minute(), nil
}
