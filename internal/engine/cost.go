package engine

import (
	"math"

	"github.com/shopspring/decimal"

	"derivatio-energy/internal/calendar"
	tariff "derivatio-energy/internal/tariff/domain"
)

// EnergyByWindow is a month's energy split by tariff window.
type EnergyByWindow struct {
	PeakKWh    float64 `json:"peak_kwh"`
	OffpeakKWh float64 `json:"offpeak_kwh"`
}

// MonthCost is the itemized cost of one month.
type MonthCost struct {
	Month             calendar.Month  `json:"month"`
	PeakKW            decimal.Decimal `json:"peak_kw"`
	PeakKWh           decimal.Decimal `json:"peak_kwh"`
	OffpeakKWh        decimal.Decimal `json:"offpeak_kwh"`
	BaseFee           decimal.Decimal `json:"base_fee"`
	CapacityCost      decimal.Decimal `json:"capacity_cost"`
	PeakCost          decimal.Decimal `json:"peak_cost"`
	EnergyPeakCost    decimal.Decimal `json:"energy_peak_cost"`
	EnergyOffpeakCost decimal.Decimal `json:"energy_offpeak_cost"`
	Total             decimal.Decimal `json:"total"`
}

// CostBreakdown is the period cost with per-month detail.
type CostBreakdown struct {
	Months       []MonthCost     `json:"months"`
	BaseFee      decimal.Decimal `json:"base_fee"`
	CapacityCost decimal.Decimal `json:"capacity_cost"`
	PeakCost     decimal.Decimal `json:"peak_cost"`
	EnergyCost   decimal.Decimal `json:"energy_cost"`
	Total        decimal.Decimal `json:"total"`
}

// Compute prices each month of the period:
//
//	base + capacity_fee*peak_kw + peak_fee*peak_kw + energy_fee_peak*peak_kwh + energy_fee_offpeak*offpeak_kwh
//
// Months missing from peakKW or energy count as zero.
func Compute(t tariff.GridTariff, peakKW map[calendar.Month]float64, energy map[calendar.Month]EnergyByWindow, months []calendar.Month) (*CostBreakdown, error) {
	const op = "compute"
	if len(months) == 0 {
		return nil, invalidInput(op, "no months")
	}
	fees := map[string]float64{
		"base_monthly_fee":   t.BaseMonthlyFee,
		"capacity_fee_kw":    t.CapacityFeeKW,
		"peak_fee_kw":        t.PeakFeeKW,
		"energy_fee_peak":    t.EnergyFeePeak,
		"energy_fee_offpeak": t.EnergyFeeOffpeak,
	}
	for name, v := range fees {
		if !nonNegative(v) {
			return nil, invalidInput(op, "%s=%v", name, v)
		}
	}

	base := decimal.NewFromFloat(t.BaseMonthlyFee)
	capacityFee := decimal.NewFromFloat(t.CapacityFeeKW)
	peakFee := decimal.NewFromFloat(t.PeakFeeKW)
	energyPeakFee := decimal.NewFromFloat(t.EnergyFeePeak)
	energyOffpeakFee := decimal.NewFromFloat(t.EnergyFeeOffpeak)

	out := &CostBreakdown{Months: make([]MonthCost, 0, len(months))}
	seen := make(map[calendar.Month]struct{}, len(months))
	for _, m := range months {
		if _, dup := seen[m]; dup {
			return nil, invalidInput(op, "month %s listed twice", m)
		}
		seen[m] = struct{}{}

		kw := peakKW[m]
		e := energy[m]
		for name, v := range map[string]float64{"peak_kw": kw, "peak_kwh": e.PeakKWh, "offpeak_kwh": e.OffpeakKWh} {
			if !nonNegative(v) {
				return nil, invalidInput(op, "%s %s=%v", m, name, v)
			}
		}

		mc := MonthCost{
			Month:      m,
			PeakKW:     decimal.NewFromFloat(kw),
			PeakKWh:    decimal.NewFromFloat(e.PeakKWh),
			OffpeakKWh: decimal.NewFromFloat(e.OffpeakKWh),
			BaseFee:    base,
		}
		mc.CapacityCost = capacityFee.Mul(mc.PeakKW)
		mc.PeakCost = peakFee.Mul(mc.PeakKW)
		mc.EnergyPeakCost = energyPeakFee.Mul(mc.PeakKWh)
		mc.EnergyOffpeakCost = energyOffpeakFee.Mul(mc.OffpeakKWh)
		mc.Total = mc.BaseFee.Add(mc.CapacityCost).Add(mc.PeakCost).Add(mc.EnergyPeakCost).Add(mc.EnergyOffpeakCost)

		out.Months = append(out.Months, mc)
		out.BaseFee = out.BaseFee.Add(mc.BaseFee)
		out.CapacityCost = out.CapacityCost.Add(mc.CapacityCost)
		out.PeakCost = out.PeakCost.Add(mc.PeakCost)
		out.EnergyCost = out.EnergyCost.Add(mc.EnergyPeakCost).Add(mc.EnergyOffpeakCost)
		out.Total = out.Total.Add(mc.Total)
	}
	return out, nil
}

// ComputeProfile prices an aggregated load profile.
func ComputeProfile(t tariff.GridTariff, profile *LoadProfile) (*CostBreakdown, error) {
	if profile == nil {
		return nil, invalidInput("compute", "nil profile")
	}
	return Compute(t, profile.PeakKWByMonth(), profile.EnergyByMonth(), profile.MonthList())
}

func nonNegative(v float64) bool {
	return v >= 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}
