package application

import (
	"fmt"
	"strings"
	"time"

	"derivatio-energy/internal/calendar"
	"derivatio-energy/internal/engine"
	masterdata "derivatio-energy/internal/masterdata/domain"
)

// SpotPrice is a day-ahead price for the hour starting at Timestamp.
type SpotPrice struct {
	Timestamp   time.Time `json:"timestamp" yaml:"timestamp"`
	PriceOreKWh float64   `json:"price_ore_kwh" yaml:"price_ore_kwh"`
}

// Request describes one simulation. It is stored verbatim as the simulation's input params.
type Request struct {
	PropertyID  string        `json:"property_id" yaml:"property_id"`
	PeriodStart calendar.Date `json:"period_start" yaml:"period_start"`
	PeriodEnd   calendar.Date `json:"period_end" yaml:"period_end"`
	// TariffName narrows resolution when an operator publishes several tariffs.
	TariffName string `json:"tariff_name,omitempty" yaml:"tariff_name,omitempty"`
	// Fleet overrides the property's registered fleet.
	Fleet                  *masterdata.Fleet `json:"fleet,omitempty" yaml:"fleet,omitempty"`
	SpotPrices             []SpotPrice       `json:"spot_prices,omitempty" yaml:"spot_prices,omitempty"`
	AllowSyntheticBaseLoad bool              `json:"allow_synthetic_base_load,omitempty" yaml:"allow_synthetic_base_load,omitempty"`
	IncludeHourly          bool              `json:"include_hourly,omitempty" yaml:"include_hourly,omitempty"`
}

// Period validates the requested date range.
func (r Request) Period() (engine.Period, error) {
	if strings.TrimSpace(r.PropertyID) == "" {
		return engine.Period{}, fmt.Errorf("%w: property_id required", engine.ErrInvalidInput)
	}
	return engine.NewPeriod(r.PeriodStart, r.PeriodEnd)
}

func (r Request) priceMap() map[time.Time]float64 {
	if len(r.SpotPrices) == 0 {
		return nil
	}
	out := make(map[time.Time]float64, len(r.SpotPrices))
	for _, p := range r.SpotPrices {
		out[p.Timestamp] = p.PriceOreKWh
	}
	return out
}
