package masterdata

import (
	"context"
	"errors"
)

// Fleet defaults for vehicles whose parameters are unknown.
const (
	DefaultChargerKW     = 22.0
	DefaultArrivalHour   = 17
	DefaultDepartureHour = 7
	DefaultSOCOnArrival  = 0.20
	DefaultBatteryKWh    = 77.0
	DefaultVehicleCount  = 1
)

// Fleet is a group of electric vehicles charging at a property overnight.
type Fleet struct {
	ID              string  `json:"id,omitempty" yaml:"id,omitempty"`
	PropertyID      string  `json:"property_id,omitempty" yaml:"property_id,omitempty"`
	Name            string  `json:"name" yaml:"name"`
	VehicleCount    int     `json:"vehicle_count" yaml:"vehicle_count"`
	ChargerKW       float64 `json:"charger_kw" yaml:"charger_kw"`
	ArrivalHour     int     `json:"avg_arrival_hour" yaml:"avg_arrival_hour"`
	DepartureHour   int     `json:"avg_departure_hour" yaml:"avg_departure_hour"`
	AvgSOCOnArrival float64 `json:"avg_soc_on_arrival" yaml:"avg_soc_on_arrival"`
	BatteryKWh      float64 `json:"battery_kwh" yaml:"battery_kwh"`
}

// WithDefaults fills zero-valued charging parameters.
func (f Fleet) WithDefaults() Fleet {
	if f.VehicleCount == 0 {
		f.VehicleCount = DefaultVehicleCount
	}
	if f.ChargerKW == 0 {
		f.ChargerKW = DefaultChargerKW
	}
	if f.ArrivalHour == 0 && f.DepartureHour == 0 {
		f.ArrivalHour = DefaultArrivalHour
		f.DepartureHour = DefaultDepartureHour
	}
	if f.AvgSOCOnArrival == 0 {
		f.AvgSOCOnArrival = DefaultSOCOnArrival
	}
	if f.BatteryKWh == 0 {
		f.BatteryKWh = DefaultBatteryKWh
	}
	return f
}

// Validate checks fleet invariants.
func (f Fleet) Validate() error {
	if f.VehicleCount <= 0 {
		return errors.New("fleet: vehicle_count must be positive")
	}
	if f.ChargerKW <= 0 {
		return errors.New("fleet: charger_kw must be positive")
	}
	if f.BatteryKWh <= 0 {
		return errors.New("fleet: battery_kwh must be positive")
	}
	if f.AvgSOCOnArrival < 0 || f.AvgSOCOnArrival > 1 {
		return errors.New("fleet: avg_soc_on_arrival must be within [0,1]")
	}
	if f.ArrivalHour < 0 || f.ArrivalHour > 23 || f.DepartureHour < 0 || f.DepartureHour > 23 {
		return errors.New("fleet: hours must be within 0-23")
	}
	if f.ArrivalHour == f.DepartureHour {
		return errors.New("fleet: arrival and departure hour must differ")
	}
	return nil
}

// EnergyNeededKWh is the energy the whole fleet draws per charging session.
func (f Fleet) EnergyNeededKWh() float64 {
	return float64(f.VehicleCount) * f.BatteryKWh * (1 - f.AvgSOCOnArrival)
}

// PowerKW is the fleet's combined charging power.
func (f Fleet) PowerKW() float64 {
	return float64(f.VehicleCount) * f.ChargerKW
}

// FleetRepository manages fleet persistence.
type FleetRepository interface {
	ListByProperty(ctx context.Context, propertyID string) ([]Fleet, error)
	Save(ctx context.Context, fleet *Fleet) error
}
