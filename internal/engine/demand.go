package engine

import (
	"math"
	"time"

	"derivatio-energy/internal/calendar"
	consumption "derivatio-energy/internal/consumption/domain"
	tariff "derivatio-energy/internal/tariff/domain"
)

// interval is one record classified in the tariff's local time.
type interval struct {
	local time.Time
	day   calendar.Date
	month calendar.Month
	kw    float64
	kwh   float64
	peak  bool
}

// IntervalHours is the record length used to turn kWh into kW.
// A positive resolution wins; otherwise the smallest positive gap between records; otherwise one hour.
func IntervalHours(resolution time.Duration, sorted []consumption.Record) float64 {
	if resolution > 0 {
		return resolution.Hours()
	}
	var gap time.Duration
	for i := 1; i < len(sorted); i++ {
		d := sorted[i].Timestamp.Sub(sorted[i-1].Timestamp)
		if d > 0 && (gap == 0 || d < gap) {
			gap = d
		}
	}
	if gap == 0 {
		return 1
	}
	return gap.Hours()
}

// DemandKW is the demand a record represents: kw_peak when metered, else average power.
func DemandKW(r consumption.Record, hours float64) float64 {
	if r.KWPeak != nil {
		return *r.KWPeak
	}
	if hours <= 0 {
		hours = 1
	}
	return r.KWh / hours
}

// classify validates the series against the period and tags each record.
func classify(op string, series consumption.Series, t tariff.GridTariff, p Period, loc *time.Location) ([]interval, error) {
	if series.Resolution < 0 {
		return nil, invalidInput(op, "negative resolution")
	}
	sorted := series.Sorted()
	from, to := p.Bounds(loc)
	hours := IntervalHours(series.Resolution, sorted)

	out := make([]interval, 0, len(sorted))
	for i, r := range sorted {
		if err := r.Validate(); err != nil {
			return nil, invalidInput(op, "record at %s: kwh and kw_peak must be finite and non-negative", r.Timestamp.Format(time.RFC3339))
		}
		if i > 0 && r.Timestamp.Equal(sorted[i-1].Timestamp) {
			return nil, invalidInput(op, "duplicate timestamp %s", r.Timestamp.Format(time.RFC3339))
		}
		if r.Timestamp.Before(from) || !r.Timestamp.Before(to) {
			return nil, invalidInput(op, "record at %s outside period %s..%s", r.Timestamp.Format(time.RFC3339), p.Start, p.End)
		}
		kw := DemandKW(r, hours)
		if math.IsNaN(kw) || math.IsInf(kw, 0) {
			return nil, invalidInput(op, "record at %s: demand not finite", r.Timestamp.Format(time.RFC3339))
		}
		local := r.Timestamp.In(loc)
		day := calendar.DateOf(local)
		out = append(out, interval{
			local: local,
			day:   day,
			month: day.MonthKey(),
			kw:    kw,
			kwh:   r.KWh,
			peak:  t.IsPeakHour(local),
		})
	}
	return out, nil
}
