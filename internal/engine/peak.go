package engine

import (
	"sort"
	"time"

	"derivatio-energy/internal/calendar"
	consumption "derivatio-energy/internal/consumption/domain"
	tariff "derivatio-energy/internal/tariff/domain"
)

// DayPeak is a day's highest peak-window demand.
type DayPeak struct {
	Day calendar.Date `json:"day"`
	KW  float64       `json:"kw"`
}

// MonthProfile is the aggregated load of one calendar month.
type MonthProfile struct {
	Month  calendar.Month `json:"month"`
	Billed bool           `json:"billed"`
	// PeakKW is the billable peak demand after the tariff's reduction.
	PeakKW            float64   `json:"peak_kw"`
	PeakWindowRecords int       `json:"peak_window_records"`
	PeakKWh           float64   `json:"peak_kwh"`
	OffpeakKWh        float64   `json:"offpeak_kwh"`
	TopDays           []DayPeak `json:"top_days,omitempty"`
	// MissingData marks a billed month billed at zero under PolicyZero.
	MissingData bool `json:"missing_data,omitempty"`
}

// LoadProfile is a series aggregated against one tariff and period.
type LoadProfile struct {
	Months []MonthProfile `json:"months"`
	// DailyMaxKW holds each day's highest peak-window demand.
	DailyMaxKW map[calendar.Date]float64 `json:"-"`
}

// PeakKWByMonth returns the billable peak of each month.
func (lp *LoadProfile) PeakKWByMonth() map[calendar.Month]float64 {
	out := make(map[calendar.Month]float64, len(lp.Months))
	for _, m := range lp.Months {
		out[m.Month] = m.PeakKW
	}
	return out
}

// EnergyByMonth returns each month's energy split by window.
func (lp *LoadProfile) EnergyByMonth() map[calendar.Month]EnergyByWindow {
	out := make(map[calendar.Month]EnergyByWindow, len(lp.Months))
	for _, m := range lp.Months {
		out[m.Month] = EnergyByWindow{PeakKWh: m.PeakKWh, OffpeakKWh: m.OffpeakKWh}
	}
	return out
}

// MaxPeakKW is the period maximum of the monthly billable peaks.
func (lp *LoadProfile) MaxPeakKW() float64 {
	var peak float64
	for _, m := range lp.Months {
		if m.PeakKW > peak {
			peak = m.PeakKW
		}
	}
	return peak
}

// MonthList returns the months in period order.
func (lp *LoadProfile) MonthList() []calendar.Month {
	out := make([]calendar.Month, 0, len(lp.Months))
	for _, m := range lp.Months {
		out = append(out, m.Month)
	}
	return out
}

// Aggregator reduces consumption series to monthly billable peak demand.
type Aggregator struct {
	opts Options
}

// NewAggregator constructs an aggregator.
func NewAggregator(opts Options) *Aggregator {
	return &Aggregator{opts: opts.normalized()}
}

// Location is the zone timestamps are classified in.
func (a *Aggregator) Location() *time.Location { return a.opts.Location }

// Aggregate returns the billable peak kW of each month of the period.
func (a *Aggregator) Aggregate(series consumption.Series, t tariff.GridTariff, p Period) (map[calendar.Month]float64, error) {
	profile, err := a.Profile(series, t, p)
	if err != nil {
		return nil, err
	}
	return profile.PeakKWByMonth(), nil
}

// Profile aggregates series into per-month peaks and window energy.
func (a *Aggregator) Profile(series consumption.Series, t tariff.GridTariff, p Period) (*LoadProfile, error) {
	const op = "aggregate"
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := t.Validate(); err != nil {
		return nil, invalidInput(op, "tariff: %v", err)
	}
	intervals, err := classify(op, series, t, p, a.opts.Location)
	if err != nil {
		return nil, err
	}

	months := p.Months()
	index := make(map[calendar.Month]int, len(months))
	profile := &LoadProfile{
		Months:     make([]MonthProfile, len(months)),
		DailyMaxKW: make(map[calendar.Date]float64),
	}
	dayPeaks := make([]map[calendar.Date]float64, len(months))
	for i, m := range months {
		index[m] = i
		profile.Months[i] = MonthProfile{Month: m}
		dayPeaks[i] = make(map[calendar.Date]float64)
	}

	for _, iv := range intervals {
		i := index[iv.month]
		mp := &profile.Months[i]
		if !iv.peak {
			mp.OffpeakKWh += iv.kwh
			continue
		}
		mp.PeakKWh += iv.kwh
		mp.PeakWindowRecords++
		if cur, ok := dayPeaks[i][iv.day]; !ok || iv.kw > cur {
			dayPeaks[i][iv.day] = iv.kw
			profile.DailyMaxKW[iv.day] = iv.kw
		}
	}

	for i := range profile.Months {
		mp := &profile.Months[i]
		mp.Billed = mp.PeakWindowRecords > 0 || hasPeakHours(t, p, mp.Month)
		if mp.PeakWindowRecords == 0 {
			if mp.Billed {
				if a.opts.InsufficientData != PolicyZero {
					return nil, insufficientData(op, mp.Month)
				}
				mp.MissingData = true
			}
			continue
		}
		if mp.PeakKW, mp.TopDays, err = reduce(t.PeakCalcMethod, dayPeaks[i]); err != nil {
			return nil, err
		}
	}
	return profile, nil
}

// reduce applies the calc method to a month's distinct-day peaks.
func reduce(method tariff.PeakCalcMethod, byDay map[calendar.Date]float64) (float64, []DayPeak, error) {
	days := make([]DayPeak, 0, len(byDay))
	for d, kw := range byDay {
		days = append(days, DayPeak{Day: d, KW: kw})
	}
	sort.Slice(days, func(i, j int) bool {
		if days[i].KW != days[j].KW {
			return days[i].KW > days[j].KW
		}
		return days[i].Day.Before(days[j].Day)
	})
	switch method {
	case tariff.PeakSingle:
		if len(days) == 0 {
			return 0, nil, nil
		}
		return days[0].KW, days[:1], nil
	case tariff.PeakAvg3, tariff.PeakAvg5:
		n := method.TopDays()
		if n > len(days) {
			n = len(days)
		}
		if n == 0 {
			return 0, nil, nil
		}
		var sum float64
		for _, d := range days[:n] {
			sum += d.KW
		}
		return sum / float64(n), days[:n], nil
	default:
		return 0, nil, invalidInput("aggregate", "unknown peak calc method %d", uint8(method))
	}
}

// hasPeakHours reports whether any hour of month m inside the period can be in the peak window.
func hasPeakHours(t tariff.GridTariff, p Period, m calendar.Month) bool {
	if !t.IsPeakMonth(m.Month) || t.PeakHoursStart == t.PeakHoursEnd {
		return false
	}
	from, to := p.clip(m)
	for d := from; !d.After(to); d = d.AddDays(1) {
		if !t.PeakWeekdaysOnly {
			return true
		}
		switch d.In(time.UTC).Weekday() {
		case time.Saturday, time.Sunday:
		default:
			return true
		}
	}
	return false
}
