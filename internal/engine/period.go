package engine

import (
	"time"

	"derivatio-energy/internal/calendar"
)

// Period is an inclusive range of calendar days.
type Period struct {
	Start calendar.Date `json:"start" yaml:"start"`
	End   calendar.Date `json:"end" yaml:"end"`
}

// NewPeriod validates and returns a period.
func NewPeriod(start, end calendar.Date) (Period, error) {
	p := Period{Start: start, End: end}
	return p, p.Validate()
}

// MonthPeriod covers one whole calendar month.
func MonthPeriod(m calendar.Month) Period {
	return Period{Start: m.FirstDay(), End: m.LastDay()}
}

// Validate rejects zero dates and reversed ranges.
func (p Period) Validate() error {
	if p.Start.IsZero() || p.End.IsZero() {
		return invalidInput("period", "start and end required")
	}
	if p.End.Before(p.Start) {
		return invalidInput("period", "end %s before start %s", p.End, p.Start)
	}
	return nil
}

// Months lists the calendar months the period touches.
func (p Period) Months() []calendar.Month {
	return calendar.MonthsBetween(p.Start, p.End)
}

// Bounds returns the half-open instant range [start 00:00, end+1 00:00) in loc.
func (p Period) Bounds(loc *time.Location) (time.Time, time.Time) {
	return p.Start.In(loc), p.End.AddDays(1).In(loc)
}

// Contains reports whether day lies within the period.
func (p Period) Contains(day calendar.Date) bool {
	return !day.Before(p.Start) && !day.After(p.End)
}

// clip returns the part of month m inside the period.
func (p Period) clip(m calendar.Month) (calendar.Date, calendar.Date) {
	from, to := m.FirstDay(), m.LastDay()
	if from.Before(p.Start) {
		from = p.Start
	}
	if to.After(p.End) {
		to = p.End
	}
	return from, to
}
