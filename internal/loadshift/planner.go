// Package loadshift schedules fleet EV charging on top of a property's base load and
// produces the baseline and peak-aware consumption series a simulation compares.
package loadshift

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	consumption "derivatio-energy/internal/consumption/domain"
	"derivatio-energy/internal/engine"
	masterdata "derivatio-energy/internal/masterdata/domain"
	"derivatio-energy/internal/observability/logging"
	tariff "derivatio-energy/internal/tariff/domain"
)

// peakPenalty is added to the score of peak-window hours.
const peakPenalty = 2.0

// ErrNoBaseLoad is returned when a property has no consumption and synthetic base load is not allowed.
var ErrNoBaseLoad = fmt.Errorf("%w: no consumption in period and synthetic base load not allowed", engine.ErrInsufficientData)

// Input is everything a plan needs.
type Input struct {
	PropertyID     string
	Period         engine.Period
	Tariff         tariff.GridTariff
	Fleet          masterdata.Fleet
	SubscriptionKW float64
	// Base is the metered consumption; an empty series falls back to the synthetic curve when allowed.
	Base consumption.Series
	// SpotPrices are öre/kWh keyed by hour start. Missing hours use synthetic prices.
	SpotPrices             map[time.Time]float64
	AllowSyntheticBaseLoad bool
}

// Hour is one planned hour. BaseKW is the hour's mean base load and BasePeakKW its highest
// base demand, which differ when the meter reports kw_peak or sub-hourly intervals.
type Hour struct {
	Start       time.Time `json:"timestamp"`
	BaseKW      float64   `json:"base_kw"`
	BasePeakKW  float64   `json:"base_peak_kw"`
	EVKWWithout float64   `json:"ev_kw_without"`
	EVKWWith    float64   `json:"ev_kw_with"`
	SpotPrice   float64   `json:"spot_price"`
	PeakHour    bool      `json:"is_peak_hour"`
	// Unmetered hours carry no base load reading; they get no charging and no records.
	Unmetered bool `json:"unmetered,omitempty"`
}

// Plan is the outcome of scheduling charging across a period.
type Plan struct {
	Baseline     consumption.Series `json:"-"`
	Shifted      consumption.Series `json:"-"`
	Hours        []Hour             `json:"hourly,omitempty"`
	Quality      DataQuality        `json:"data_quality"`
	// Coverage is the share of the period's hours with a base load reading.
	Coverage     float64            `json:"metered_coverage"`
	SafetyMargin float64            `json:"safety_margin"`
	Sessions     int                `json:"sessions"`
	// SessionKWh is the energy each charging session must deliver.
	SessionKWh       float64 `json:"session_kwh"`
	UnservedKWhNaive float64 `json:"unserved_kwh_without"`
	UnservedKWh      float64 `json:"unserved_kwh_with"`
}

// Planner builds charging plans in one local time zone.
type Planner struct {
	loc    *time.Location
	logger *zap.Logger
}

// NewPlanner constructs a planner. A nil location means UTC.
func NewPlanner(loc *time.Location, logger *zap.Logger) *Planner {
	if loc == nil {
		loc = time.UTC
	}
	return &Planner{loc: loc, logger: logging.OrNop(logger)}
}

// Plan schedules one charging session per day of the period twice: cheapest-price first
// without regard to the tariff, and peak-aware within the subscription headroom.
func (p *Planner) Plan(ctx context.Context, in Input) (*Plan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := in.Period.Validate(); err != nil {
		return nil, err
	}
	if err := in.Tariff.Validate(); err != nil {
		return nil, invalid("tariff: %v", err)
	}
	fleet := in.Fleet.WithDefaults()
	if err := fleet.Validate(); err != nil {
		return nil, invalid("%v", err)
	}
	if in.SubscriptionKW <= 0 || math.IsNaN(in.SubscriptionKW) || math.IsInf(in.SubscriptionKW, 0) {
		return nil, invalid("subscription_kw must be positive")
	}

	metered := len(in.Base.Records) > 0
	if !metered && !in.AllowSyntheticBaseLoad {
		return nil, ErrNoBaseLoad
	}
	hours, index, covered, err := p.timeline(in, metered)
	if err != nil {
		return nil, err
	}
	coverage := 1.0
	if len(hours) > 0 {
		coverage = float64(covered) / float64(len(hours))
	}
	quality := QualityOf(metered && covered == len(hours), len(in.SpotPrices) > 0)

	plan := &Plan{
		Hours:        hours,
		Quality:      quality,
		Coverage:     coverage,
		SafetyMargin: quality.SafetyMargin(),
		SessionKWh:   fleet.EnergyNeededKWh(),
	}
	ceiling := in.SubscriptionKW * (1 - plan.SafetyMargin)
	powerKW := fleet.PowerKW()

	for day := in.Period.Start; !day.After(in.Period.End); day = day.AddDays(1) {
		window := p.session(day.In(p.loc), fleet, hours, index)
		if len(window) == 0 {
			continue
		}
		plan.Sessions++
		plan.UnservedKWhNaive += chargeNaive(hours, window, powerKW, plan.SessionKWh)
		plan.UnservedKWh += chargePeakAware(hours, window, powerKW, plan.SessionKWh, ceiling, in.SubscriptionKW)
	}

	baseSource := consumption.SourceMeter
	if !metered {
		baseSource = consumption.SourceSynthetic
	}
	plan.Baseline = consumption.Series{PropertyID: in.PropertyID, Resolution: time.Hour, Records: make([]consumption.Record, 0, covered)}
	plan.Shifted = consumption.Series{PropertyID: in.PropertyID, Resolution: time.Hour, Records: make([]consumption.Record, 0, covered)}
	for _, h := range hours {
		if h.Unmetered {
			continue
		}
		plan.Baseline.Records = append(plan.Baseline.Records, hourRecord(in.PropertyID, h, h.EVKWWithout, baseSource))
		plan.Shifted.Records = append(plan.Shifted.Records, hourRecord(in.PropertyID, h, h.EVKWWith, consumption.SourceShifted))
	}

	fields := []zap.Field{
		zap.String("property_id", in.PropertyID),
		zap.String("data_quality", string(quality)),
		zap.Float64("metered_coverage", coverage),
		zap.Float64("safety_margin", plan.SafetyMargin),
		zap.Int("sessions", plan.Sessions),
	}
	if quality != QualityOK {
		p.logger.Warn("load shift planned on synthetic or incomplete input", append(fields, zap.String("event", "loadshift_degraded_input"))...)
	}
	if plan.UnservedKWh > 0 {
		p.logger.Warn("charging demand exceeds headroom",
			append(fields, zap.String("event", "loadshift_unserved"), zap.Float64("unserved_kwh", plan.UnservedKWh))...)
	}
	return plan, nil
}

// timeline lays out every hour of the period with its base load and price, and counts the
// hours that carry base load.
func (p *Planner) timeline(in Input, metered bool) ([]Hour, map[time.Time]int, int, error) {
	prices := make(map[time.Time]float64, len(in.SpotPrices))
	for ts, price := range in.SpotPrices {
		prices[ts.UTC().Truncate(time.Hour)] = price
	}

	from, to := in.Period.Bounds(p.loc)
	var hours []Hour
	index := make(map[time.Time]int)
	for t := from; t.Before(to); t = t.Add(time.Hour) {
		local := t.In(p.loc)
		h := Hour{Start: t.UTC(), PeakHour: in.Tariff.IsPeakHour(local), Unmetered: metered}
		if price, ok := prices[h.Start]; ok {
			if math.IsNaN(price) || math.IsInf(price, 0) {
				return nil, nil, 0, invalid("spot price at %s not finite", h.Start.Format(time.RFC3339))
			}
			h.SpotPrice = price
		} else {
			h.SpotPrice = SyntheticSpotPrice(local.Hour())
		}
		if !metered {
			h.BaseKW = SyntheticBaseKW(local.Hour(), in.SubscriptionKW)
			h.BasePeakKW = h.BaseKW
		}
		index[h.Start] = len(hours)
		hours = append(hours, h)
	}
	if !metered {
		return hours, index, len(hours), nil
	}

	sorted := in.Base.Sorted()
	intervalHours := engine.IntervalHours(in.Base.Resolution, sorted)
	covered := 0
	for _, r := range sorted {
		if err := r.Validate(); err != nil {
			return nil, nil, 0, invalid("base load at %s: %v", r.Timestamp.Format(time.RFC3339), err)
		}
		i, ok := index[r.Timestamp.UTC().Truncate(time.Hour)]
		if !ok {
			continue
		}
		h := &hours[i]
		if h.Unmetered {
			h.Unmetered = false
			covered++
		}
		// A record's kWh within one hour adds up to that hour's mean kW.
		h.BaseKW += r.KWh
		h.BasePeakKW = math.Max(h.BasePeakKW, engine.DemandKW(r, intervalHours))
	}
	for i := range hours {
		hours[i].BasePeakKW = math.Max(hours[i].BasePeakKW, hours[i].BaseKW)
	}
	return hours, index, covered, nil
}

// hourRecord turns a planned hour into a consumption record; kw_peak carries the base peak plus charging.
func hourRecord(propertyID string, h Hour, evKW float64, source string) consumption.Record {
	peak := h.BasePeakKW + evKW
	return consumption.Record{
		PropertyID: propertyID,
		Timestamp:  h.Start,
		KWh:        h.BaseKW + evKW,
		KWPeak:     &peak,
		Source:     source,
	}
}

// session returns the timeline indices of the charging window opening on day.
func (p *Planner) session(day time.Time, fleet masterdata.Fleet, hours []Hour, index map[time.Time]int) []int {
	open := time.Date(day.Year(), day.Month(), day.Day(), fleet.ArrivalHour, 0, 0, 0, p.loc)
	shut := time.Date(day.Year(), day.Month(), day.Day(), fleet.DepartureHour, 0, 0, 0, p.loc)
	if fleet.DepartureHour < fleet.ArrivalHour {
		shut = time.Date(day.Year(), day.Month(), day.Day()+1, fleet.DepartureHour, 0, 0, 0, p.loc)
	}
	var window []int
	for t := open; t.Before(shut); t = t.Add(time.Hour) {
		if i, ok := index[t.UTC()]; ok && !hours[i].Unmetered {
			window = append(window, i)
		}
	}
	return window
}

// chargeNaive fills the cheapest hours at full fleet power and returns the energy left over.
func chargeNaive(hours []Hour, window []int, powerKW, needKWh float64) float64 {
	ranked := append([]int(nil), window...)
	sort.SliceStable(ranked, func(a, b int) bool {
		return hours[ranked[a]].SpotPrice < hours[ranked[b]].SpotPrice
	})
	remaining := needKWh
	for _, i := range ranked {
		if remaining <= 0 {
			break
		}
		charge := math.Min(powerKW, remaining)
		hours[i].EVKWWithout += charge
		remaining -= charge
	}
	return math.Max(remaining, 0)
}

// chargePeakAware fills the best-scoring hours without pushing the hour's peak demand over the ceiling and returns the energy left over.
func chargePeakAware(hours []Hour, window []int, powerKW, needKWh, ceilingKW, subscriptionKW float64) float64 {
	score := func(i int) float64 {
		s := hours[i].SpotPrice/100 + hours[i].BasePeakKW/subscriptionKW
		if hours[i].PeakHour {
			s += peakPenalty
		}
		return s
	}
	ranked := append([]int(nil), window...)
	sort.SliceStable(ranked, func(a, b int) bool { return score(ranked[a]) < score(ranked[b]) })

	remaining := needKWh
	for _, i := range ranked {
		if remaining <= 0 {
			break
		}
		headroom := math.Max(0, ceilingKW-hours[i].BasePeakKW-hours[i].EVKWWith)
		charge := math.Min(math.Min(powerKW, headroom), remaining)
		if charge <= 0 {
			continue
		}
		hours[i].EVKWWith += charge
		remaining -= charge
	}
	return math.Max(remaining, 0)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("loadshift: %w: "+format, append([]any{engine.ErrInvalidInput}, args...)...)
}
