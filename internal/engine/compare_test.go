package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	consumption "derivatio-energy/internal/consumption/domain"
	tariff "derivatio-energy/internal/tariff/domain"
)

func TestSimulate_SavingsFromLowerPeak(t *testing.T) {
	baseline := hourly(at(8, 18, 50), at(8, 2, 10), at(9, 18, 40))
	shifted := hourly(at(8, 18, 30), at(8, 2, 30), at(9, 18, 40))

	c := NewComparator(utcAggregator(PolicyFail))
	got, err := c.Simulate(context.Background(), baseline, shifted, ellevio(), january())
	require.NoError(t, err)

	// Peak drops 50 -> 40 kW; 20 kWh moves from peak to off-peak.
	want := decimal.NewFromInt(105 * 10).Add(decimal.NewFromFloat(0.8))
	assert.True(t, got.SavingsTotal.Equal(want), "savings %s", got.SavingsTotal)
	assert.True(t, got.CostWithout.Sub(got.CostWith).Equal(got.SavingsTotal))
	assert.Equal(t, 50.0, got.PeakKWWithout)
	assert.Equal(t, 40.0, got.PeakKWWith)
	require.NotNil(t, got.SavingsPct)
	assert.True(t, got.SavingsPct.GreaterThan(decimal.Zero))

	require.Len(t, got.WorstDaysAvoided, 1)
	assert.Equal(t, 8, got.WorstDaysAvoided[0].Day.Day)
	assert.Equal(t, 20.0, got.WorstDaysAvoided[0].ReductionKW)
}

func TestSimulate_IdenticalSeriesSaveNothing(t *testing.T) {
	series := hourly(at(8, 18, 50), at(9, 3, 20))
	c := NewComparator(utcAggregator(PolicyFail))

	a, err := c.Simulate(context.Background(), series, series, ellevio(), january())
	require.NoError(t, err)
	b, err := c.Simulate(context.Background(), series, series, ellevio(), january())
	require.NoError(t, err)

	assert.True(t, a.SavingsTotal.IsZero())
	assert.Empty(t, a.WorstDaysAvoided)
	assert.True(t, a.CostWithout.Equal(b.CostWithout))
	assert.True(t, a.CostWith.Equal(b.CostWith))
}

func TestSimulate_FailsWhenEitherSideFails(t *testing.T) {
	good := hourly(at(8, 18, 50))
	bad := hourly(at(8, 18, -1))
	c := NewComparator(utcAggregator(PolicyFail))

	_, err := c.Simulate(context.Background(), good, bad, ellevio(), january())
	assert.Equal(t, KindInvalidInput, KindOf(err))

	_, err = c.Simulate(context.Background(), hourly(at(8, 2, 1)), good, ellevio(), january())
	assert.Equal(t, KindInsufficientData, KindOf(err))
}

func TestSimulate_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewComparator(nil).Simulate(ctx, consumption.Series{}, consumption.Series{}, ellevio(), january())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSavingsPct(t *testing.T) {
	assert.Nil(t, SavingsPct(decimal.Zero, decimal.Zero))

	pct := SavingsPct(decimal.NewFromInt(1000), decimal.NewFromInt(750))
	require.NotNil(t, pct)
	assert.True(t, pct.Equal(decimal.RequireFromString("0.25")))

	neg := SavingsPct(decimal.NewFromInt(100), decimal.NewFromInt(110))
	require.NotNil(t, neg)
	assert.True(t, neg.IsNegative())
}

func TestWorstDays_TopFivePositive(t *testing.T) {
	without := hourly()
	with := hourly()
	for day := 6; day <= 15; day++ {
		without.Records = append(without.Records, at(day, 10, float64(10+day)))
		with.Records = append(with.Records, at(day, 10, 10))
	}
	// Day 6 got worse and must not be listed; 11 and 12 are a weekend.
	with.Records[0].KWh = 30

	c := NewComparator(utcAggregator(PolicyFail))
	got, err := c.Simulate(context.Background(), without, with, ellevio(), january())
	require.NoError(t, err)
	want := []int{15, 14, 13, 10, 9}
	require.Len(t, got.WorstDaysAvoided, len(want))
	for i, d := range got.WorstDaysAvoided {
		assert.Equal(t, want[i], d.Day.Day, fmt.Sprintf("rank %d", i))
	}
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(nil))
	assert.Equal(t, Kind(""), KindOf(errors.New("boom")))
	assert.Equal(t, KindTariffNotFound, KindOf(fmt.Errorf("wrap: %w", tariff.ErrTariffNotFound)))
	assert.Equal(t, KindTariffNotFound, KindOf(TariffNotFound("resolve", nil)))
	assert.ErrorIs(t, TariffNotFound("resolve", nil), tariff.ErrTariffNotFound)
	assert.Equal(t, KindInvalidInput, KindOf(fmt.Errorf("x: %w", ErrInvalidInput)))
}
