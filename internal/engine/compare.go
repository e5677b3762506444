package engine

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"derivatio-energy/internal/calendar"
	consumption "derivatio-energy/internal/consumption/domain"
	tariff "derivatio-energy/internal/tariff/domain"
)

const worstDaysLimit = 5

// DayReduction is how much a day's highest demand dropped with load shifting.
type DayReduction struct {
	Day         calendar.Date `json:"day"`
	KWWithout   float64       `json:"kw_without"`
	KWWith      float64       `json:"kw_with"`
	ReductionKW float64       `json:"reduction_kw"`
}

// Scenario is one priced series.
type Scenario struct {
	Months  []MonthProfile `json:"months"`
	Cost    *CostBreakdown `json:"cost"`
	PeakKW  float64        `json:"peak_kw"`
	profile *LoadProfile
}

// Comparison is the outcome of pricing a baseline and a shifted series under one tariff.
type Comparison struct {
	Period       Period          `json:"period"`
	CostWithout  decimal.Decimal `json:"cost_without_derivatio"`
	CostWith     decimal.Decimal `json:"cost_with_derivatio"`
	SavingsTotal decimal.Decimal `json:"savings_total"`

	// SavingsPct is a fraction of CostWithout; nil when CostWithout is zero.
	SavingsPct       *decimal.Decimal `json:"savings_pct"`
	PeakKWWithout    float64          `json:"peak_kw_without"`
	PeakKWWith       float64          `json:"peak_kw_with"`
	Without          Scenario         `json:"without"`
	With             Scenario         `json:"with"`
	WorstDaysAvoided []DayReduction   `json:"worst_days_avoided"`
}

// Comparator prices two series against the same tariff and period.
type Comparator struct {
	agg *Aggregator
}

// NewComparator constructs a comparator.
func NewComparator(agg *Aggregator) *Comparator {
	if agg == nil {
		agg = NewAggregator(Options{})
	}
	return &Comparator{agg: agg}
}

// Simulate aggregates and prices both series. Either failing fails the comparison.
func (c *Comparator) Simulate(ctx context.Context, baseline, shifted consumption.Series, t tariff.GridTariff, p Period) (*Comparison, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	var without, with Scenario
	var g errgroup.Group
	g.Go(func() error {
		s, err := c.price(baseline, t, p)
		without = s
		return err
	})
	g.Go(func() error {
		s, err := c.price(shifted, t, p)
		with = s
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &Comparison{
		Period:           p,
		CostWithout:      without.Cost.Total,
		CostWith:         with.Cost.Total,
		PeakKWWithout:    without.PeakKW,
		PeakKWWith:       with.PeakKW,
		Without:          without,
		With:             with,
		WorstDaysAvoided: worstDays(without.profile.DailyMaxKW, with.profile.DailyMaxKW),
	}
	out.SavingsTotal = out.CostWithout.Sub(out.CostWith)
	out.SavingsPct = SavingsPct(out.CostWithout, out.CostWith)
	return out, nil
}

func (c *Comparator) price(series consumption.Series, t tariff.GridTariff, p Period) (Scenario, error) {
	profile, err := c.agg.Profile(series, t, p)
	if err != nil {
		return Scenario{}, err
	}
	cost, err := ComputeProfile(t, profile)
	if err != nil {
		return Scenario{}, err
	}
	return Scenario{Months: profile.Months, Cost: cost, PeakKW: profile.MaxPeakKW(), profile: profile}, nil
}

// SavingsPct returns (without-with)/without rounded to six places, or nil when without is zero.
func SavingsPct(without, with decimal.Decimal) *decimal.Decimal {
	if without.IsZero() {
		return nil
	}
	pct := without.Sub(with).DivRound(without, 6)
	return &pct
}

// worstDays lists up to five days with the largest positive drop in daily peak-window demand.
func worstDays(without, with map[calendar.Date]float64) []DayReduction {
	out := make([]DayReduction, 0, len(without))
	for day, before := range without {
		after := with[day]
		if before-after <= 0 {
			continue
		}
		out = append(out, DayReduction{Day: day, KWWithout: before, KWWith: after, ReductionKW: before - after})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ReductionKW != out[j].ReductionKW {
			return out[i].ReductionKW > out[j].ReductionKW
		}
		return out[i].Day.Before(out[j].Day)
	})
	if len(out) > worstDaysLimit {
		out = out[:worstDaysLimit]
	}
	return out
}
