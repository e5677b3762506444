package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	masterdata "derivatio-energy/internal/masterdata/domain"
	"derivatio-energy/internal/masterdata/infrastructure/memory"
)

func TestPropertyService_UpsertAndGet(t *testing.T) {
	svc, err := NewPropertyService(memory.NewPropertyRepository(), memory.NewFleetRepository())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = svc.Property(ctx, "p-1")
	assert.ErrorIs(t, err, masterdata.ErrPropertyNotFound)

	p := &masterdata.Property{
		ID: "p-1", OrganizationID: "org-1", Name: "Kontoret",
		GridOperator: "ellevio", GridArea: "SE3", SubscriptionKW: 80,
	}
	require.NoError(t, svc.UpsertProperty(ctx, p))

	got, err := svc.Property(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, "ellevio", got.GridOperator)

	bad := *p
	bad.SubscriptionKW = 0
	assert.Error(t, svc.UpsertProperty(ctx, &bad))
}

func TestPropertyService_PrimaryFleetDefaults(t *testing.T) {
	fleets := memory.NewFleetRepository()
	svc, err := NewPropertyService(memory.NewPropertyRepository(), fleets)
	require.NoError(t, err)
	ctx := context.Background()

	f, err := svc.PrimaryFleet(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, 1, f.VehicleCount)
	assert.Equal(t, 22.0, f.ChargerKW)
	assert.Equal(t, 17, f.ArrivalHour)
	assert.Equal(t, 7, f.DepartureHour)
	assert.InDelta(t, 61.6, f.EnergyNeededKWh(), 1e-9)

	require.NoError(t, fleets.Save(ctx, &masterdata.Fleet{
		ID: "f-1", PropertyID: "p-1", Name: "Servicebilar",
		VehicleCount: 4, ChargerKW: 11, ArrivalHour: 18, DepartureHour: 6,
		AvgSOCOnArrival: 0.5, BatteryKWh: 60,
	}))
	f, err = svc.PrimaryFleet(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, 44.0, f.PowerKW())
	assert.InDelta(t, 120.0, f.EnergyNeededKWh(), 1e-9)
}
