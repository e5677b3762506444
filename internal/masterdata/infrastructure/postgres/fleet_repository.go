package postgres

import (
	"context"
	"errors"
	"fmt"

	masterdata "derivatio-energy/internal/masterdata/domain"
)

const defaultFleetsTable = "fleets"

// FleetRepository is a Postgres implementation for fleets.
type FleetRepository struct {
	db    DBTX
	table string
}

// NewFleetRepository constructs a repository.
func NewFleetRepository(db DBTX) *FleetRepository {
	return &FleetRepository{db: db, table: defaultFleetsTable}
}

// ListByProperty loads the fleets charging at a property.
func (r *FleetRepository) ListByProperty(ctx context.Context, propertyID string) ([]masterdata.Fleet, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("fleet repo: nil db")
	}
	if propertyID == "" {
		return nil, errors.New("fleet repo: empty property id")
	}

	query := fmt.Sprintf(`
SELECT id::text, property_id::text, name, vehicle_count, charger_kw,
	avg_arrival_hour, avg_departure_hour, avg_soc_on_arrival, battery_kwh
FROM %s
WHERE property_id::text = $1
ORDER BY name ASC`, r.table)

	rows, err := r.db.QueryContext(ctx, query, propertyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []masterdata.Fleet
	for rows.Next() {
		var f masterdata.Fleet
		if err := rows.Scan(
			&f.ID,
			&f.PropertyID,
			&f.Name,
			&f.VehicleCount,
			&f.ChargerKW,
			&f.ArrivalHour,
			&f.DepartureHour,
			&f.AvgSOCOnArrival,
			&f.BatteryKWh,
		); err != nil {
			return nil, err
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Save upserts a fleet. ID must be set.
func (r *FleetRepository) Save(ctx context.Context, fleet *masterdata.Fleet) error {
	if r == nil || r.db == nil {
		return errors.New("fleet repo: nil db")
	}
	if fleet == nil {
		return errors.New("fleet repo: nil fleet")
	}
	if fleet.ID == "" || fleet.PropertyID == "" {
		return errors.New("fleet repo: id and property id required")
	}
	if err := fleet.Validate(); err != nil {
		return err
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	id, property_id, name, vehicle_count, charger_kw,
	avg_arrival_hour, avg_departure_hour, avg_soc_on_arrival, battery_kwh
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id)
DO UPDATE SET
	name = EXCLUDED.name,
	vehicle_count = EXCLUDED.vehicle_count,
	charger_kw = EXCLUDED.charger_kw,
	avg_arrival_hour = EXCLUDED.avg_arrival_hour,
	avg_departure_hour = EXCLUDED.avg_departure_hour,
	avg_soc_on_arrival = EXCLUDED.avg_soc_on_arrival,
	battery_kwh = EXCLUDED.battery_kwh`, r.table)

	_, err := r.db.ExecContext(ctx, query,
		fleet.ID, fleet.PropertyID, fleet.Name, fleet.VehicleCount, fleet.ChargerKW,
		fleet.ArrivalHour, fleet.DepartureHour, fleet.AvgSOCOnArrival, fleet.BatteryKWh,
	)
	return err
}
