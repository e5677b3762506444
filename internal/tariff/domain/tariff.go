package tariff

import (
	"math"
	"strings"
	"time"

	"derivatio-energy/internal/calendar"
)

// GridTariff is one version of a grid operator's power tariff.
// Validity is the half-open date interval [ValidFrom, ValidTo); a nil ValidTo is open-ended.
type GridTariff struct {
	ID               string         `json:"id,omitempty" yaml:"id,omitempty"`
	Operator         string         `json:"operator" yaml:"operator"`
	TariffName       string         `json:"tariff_name" yaml:"tariff_name"`
	ValidFrom        calendar.Date  `json:"valid_from" yaml:"valid_from"`
	ValidTo          *calendar.Date `json:"valid_to,omitempty" yaml:"valid_to,omitempty"`
	BaseMonthlyFee   float64        `json:"base_monthly_fee" yaml:"base_monthly_fee"`
	CapacityFeeKW    float64        `json:"capacity_fee_kw" yaml:"capacity_fee_kw"`
	PeakFeeKW        float64        `json:"peak_fee_kw" yaml:"peak_fee_kw"`
	PeakHoursStart   int            `json:"peak_hours_start" yaml:"peak_hours_start"`
	PeakHoursEnd     int            `json:"peak_hours_end" yaml:"peak_hours_end"`
	PeakMonths       []time.Month   `json:"peak_months" yaml:"peak_months"`
	PeakWeekdaysOnly bool           `json:"peak_weekdays_only" yaml:"peak_weekdays_only"`
	PeakCalcMethod   PeakCalcMethod `json:"peak_calc_method" yaml:"peak_calc_method"`
	EnergyFeePeak    float64        `json:"energy_fee_peak" yaml:"energy_fee_peak"`
	EnergyFeeOffpeak float64        `json:"energy_fee_offpeak" yaml:"energy_fee_offpeak"`
}

// Validate checks tariff invariants.
func (t GridTariff) Validate() error {
	if strings.TrimSpace(t.Operator) == "" {
		return ErrEmptyOperator
	}
	if strings.TrimSpace(t.TariffName) == "" {
		return ErrEmptyName
	}
	if t.ValidFrom.IsZero() {
		return ErrInvalidValidity
	}
	if t.ValidTo != nil && !t.ValidTo.After(t.ValidFrom) {
		return ErrInvalidValidity
	}
	if t.PeakHoursStart < 0 || t.PeakHoursStart > 23 || t.PeakHoursEnd < 0 || t.PeakHoursEnd > 24 {
		return ErrInvalidPeakHours
	}
	for _, m := range t.PeakMonths {
		if m < time.January || m > time.December {
			return ErrInvalidPeakMonth
		}
	}
	if !t.PeakCalcMethod.Valid() {
		return ErrInvalidCalcMethod
	}
	for _, fee := range []float64{t.BaseMonthlyFee, t.CapacityFeeKW, t.PeakFeeKW, t.EnergyFeePeak, t.EnergyFeeOffpeak} {
		if fee < 0 || math.IsNaN(fee) || math.IsInf(fee, 0) {
			return ErrNegativeFee
		}
	}
	return nil
}

// ValidOn reports whether the tariff version applies on the given day.
func (t GridTariff) ValidOn(day calendar.Date) bool {
	if day.Before(t.ValidFrom) {
		return false
	}
	return t.ValidTo == nil || day.Before(*t.ValidTo)
}

// Overlaps reports whether two versions share at least one valid day.
func (t GridTariff) Overlaps(other GridTariff) bool {
	if t.ValidTo != nil && !other.ValidFrom.Before(*t.ValidTo) {
		return false
	}
	if other.ValidTo != nil && !t.ValidFrom.Before(*other.ValidTo) {
		return false
	}
	return true
}

// IsPeakMonth reports whether m is in the high-load months.
func (t GridTariff) IsPeakMonth(m time.Month) bool {
	for _, pm := range t.PeakMonths {
		if pm == m {
			return true
		}
	}
	return false
}

// IsPeakHour reports whether local wall-clock time ts falls in the peak window.
// Callers convert ts to the tariff's zone first.
func (t GridTariff) IsPeakHour(ts time.Time) bool {
	if t.PeakWeekdaysOnly {
		if wd := ts.Weekday(); wd == time.Saturday || wd == time.Sunday {
			return false
		}
	}
	if !t.IsPeakMonth(ts.Month()) {
		return false
	}
	return t.inPeakHours(ts.Hour())
}

// end <= start wraps midnight; start == end is an empty window.
func (t GridTariff) inPeakHours(hour int) bool {
	start, end := t.PeakHoursStart, t.PeakHoursEnd
	switch {
	case start < end:
		return hour >= start && hour < end
	case start > end:
		return hour >= start || hour < end
	default:
		return false
	}
}

// Key identifies the version series a tariff belongs to.
func (t GridTariff) Key() string {
	return strings.ToLower(t.Operator) + "|" + t.TariffName
}
