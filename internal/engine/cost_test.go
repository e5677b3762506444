package engine

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"derivatio-energy/internal/calendar"
	consumption "derivatio-energy/internal/consumption/domain"
)

var jan2025 = calendar.Month{Year: 2025, Month: time.January}

func TestCompute_WinterMonth(t *testing.T) {
	got, err := Compute(ellevio(),
		map[calendar.Month]float64{jan2025: 50},
		map[calendar.Month]EnergyByWindow{jan2025: {PeakKWh: 2000, OffpeakKWh: 3000}},
		[]calendar.Month{jan2025},
	)
	require.NoError(t, err)
	assert.True(t, got.Total.Equal(decimal.NewFromInt(5830)), "total %s", got.Total)
	require.Len(t, got.Months, 1)
	m := got.Months[0]
	assert.True(t, m.BaseFee.Equal(decimal.NewFromInt(400)))
	assert.True(t, m.CapacityCost.Equal(decimal.NewFromInt(1700)))
	assert.True(t, m.PeakCost.Equal(decimal.NewFromInt(3550)))
	assert.True(t, m.EnergyPeakCost.Equal(decimal.NewFromInt(120)))
	assert.True(t, m.EnergyOffpeakCost.Equal(decimal.NewFromInt(60)))
	assert.True(t, got.EnergyCost.Equal(decimal.NewFromInt(180)))
}

func TestCompute_WinterMonthFromRecords(t *testing.T) {
	var records []consumption.Record
	peak, offpeak := 0, 0
	for day := 2; day <= 31 && (peak < 40 || offpeak < 60); day++ {
		wd := time.Date(2025, time.January, day, 0, 0, 0, 0, time.UTC).Weekday()
		for hour := 0; hour < 24; hour++ {
			inWindow := wd != time.Saturday && wd != time.Sunday && hour >= 6 && hour < 22
			switch {
			case inWindow && peak < 40:
				peak++
			case !inWindow && offpeak < 60:
				offpeak++
			default:
				continue
			}
			records = append(records, at(day, hour, 50))
		}
	}
	require.Equal(t, 40, peak)
	require.Equal(t, 60, offpeak)

	profile, err := utcAggregator(PolicyFail).Profile(hourly(records...), ellevio(), january())
	require.NoError(t, err)
	got, err := ComputeProfile(ellevio(), profile)
	require.NoError(t, err)
	assert.True(t, got.Total.Equal(decimal.NewFromInt(5830)), "total %s", got.Total)
}

func TestCompute_ZeroMonthCostsBaseFee(t *testing.T) {
	june := calendar.Month{Year: 2025, Month: time.June}
	got, err := Compute(ellevio(), nil, nil, []calendar.Month{june})
	require.NoError(t, err)
	assert.True(t, got.Total.Equal(decimal.NewFromInt(400)))
}

func TestCompute_Idempotent(t *testing.T) {
	peakKW := map[calendar.Month]float64{jan2025: 42.5}
	energy := map[calendar.Month]EnergyByWindow{jan2025: {PeakKWh: 1234.5, OffpeakKWh: 987.25}}
	a, err := Compute(ellevio(), peakKW, energy, []calendar.Month{jan2025})
	require.NoError(t, err)
	b, err := Compute(ellevio(), peakKW, energy, []calendar.Month{jan2025})
	require.NoError(t, err)
	assert.True(t, a.Total.Equal(b.Total))
}

func TestCompute_SumsMonths(t *testing.T) {
	feb := jan2025.Next()
	got, err := Compute(ellevio(),
		map[calendar.Month]float64{jan2025: 10, feb: 20},
		nil,
		[]calendar.Month{jan2025, feb},
	)
	require.NoError(t, err)
	// 2*400 + (34+71)*(10+20)
	assert.True(t, got.Total.Equal(decimal.NewFromInt(3950)), "total %s", got.Total)
	assert.True(t, got.BaseFee.Equal(decimal.NewFromInt(800)))
}

func TestCompute_InvalidInput(t *testing.T) {
	months := []calendar.Month{jan2025}

	tr := ellevio()
	tr.PeakFeeKW = -1
	_, err := Compute(tr, nil, nil, months)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = Compute(ellevio(), map[calendar.Month]float64{jan2025: math.NaN()}, nil, months)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = Compute(ellevio(), nil, map[calendar.Month]EnergyByWindow{jan2025: {OffpeakKWh: -3}}, months)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = Compute(ellevio(), nil, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = Compute(ellevio(), nil, nil, []calendar.Month{jan2025, jan2025})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = ComputeProfile(ellevio(), nil)
	assert.Equal(t, KindInvalidInput, KindOf(err))
}
