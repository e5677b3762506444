package tariff

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"derivatio-energy/internal/calendar"
)

func winterTariff() GridTariff {
	return GridTariff{
		Operator:         "ellevio",
		TariffName:       "Ellevio_Effekt",
		ValidFrom:        calendar.NewDate(2024, time.January, 1),
		BaseMonthlyFee:   400,
		CapacityFeeKW:    34,
		PeakFeeKW:        71,
		PeakHoursStart:   6,
		PeakHoursEnd:     22,
		PeakMonths:       []time.Month{time.November, time.December, time.January, time.February, time.March},
		PeakWeekdaysOnly: true,
		PeakCalcMethod:   PeakSingle,
		EnergyFeePeak:    0.06,
		EnergyFeeOffpeak: 0.02,
	}
}

func TestIsPeakHour(t *testing.T) {
	tr := winterTariff()
	cases := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"weekday inside window", time.Date(2025, time.January, 15, 6, 0, 0, 0, time.UTC), true},
		{"end hour excluded", time.Date(2025, time.January, 15, 22, 0, 0, 0, time.UTC), false},
		{"last peak hour", time.Date(2025, time.January, 15, 21, 59, 0, 0, time.UTC), true},
		{"saturday", time.Date(2025, time.January, 18, 12, 0, 0, 0, time.UTC), false},
		{"summer month", time.Date(2025, time.July, 15, 12, 0, 0, 0, time.UTC), false},
		{"wrapped december", time.Date(2024, time.December, 2, 8, 0, 0, 0, time.UTC), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tr.IsPeakHour(tc.at))
		})
	}
}

func TestIsPeakHour_WeekendsWhenNotWeekdaysOnly(t *testing.T) {
	tr := winterTariff()
	tr.PeakWeekdaysOnly = false
	assert.True(t, tr.IsPeakHour(time.Date(2025, time.January, 18, 12, 0, 0, 0, time.UTC)))
}

func TestIsPeakHour_WindowWrapsMidnight(t *testing.T) {
	tr := winterTariff()
	tr.PeakHoursStart, tr.PeakHoursEnd = 22, 2
	assert.True(t, tr.IsPeakHour(time.Date(2025, time.January, 15, 23, 0, 0, 0, time.UTC)))
	assert.True(t, tr.IsPeakHour(time.Date(2025, time.January, 15, 1, 0, 0, 0, time.UTC)))
	assert.False(t, tr.IsPeakHour(time.Date(2025, time.January, 15, 2, 0, 0, 0, time.UTC)))
}

func TestValidOn_HalfOpen(t *testing.T) {
	tr := winterTariff()
	end := calendar.NewDate(2025, time.January, 1)
	tr.ValidTo = &end

	assert.False(t, tr.ValidOn(calendar.NewDate(2023, time.December, 31)))
	assert.True(t, tr.ValidOn(calendar.NewDate(2024, time.January, 1)))
	assert.True(t, tr.ValidOn(calendar.NewDate(2024, time.December, 31)))
	assert.False(t, tr.ValidOn(end))
}

func TestOverlaps(t *testing.T) {
	a := winterTariff()
	aEnd := calendar.NewDate(2025, time.January, 1)
	a.ValidTo = &aEnd

	b := winterTariff()
	b.ValidFrom = aEnd
	assert.False(t, a.Overlaps(b), "adjacent intervals do not overlap")

	c := winterTariff()
	c.ValidFrom = calendar.NewDate(2024, time.June, 1)
	assert.True(t, a.Overlaps(c))
	assert.True(t, c.Overlaps(a))
}

func TestValidate(t *testing.T) {
	require.NoError(t, winterTariff().Validate())

	bad := winterTariff()
	bad.PeakMonths = []time.Month{13}
	assert.ErrorIs(t, bad.Validate(), ErrInvalidPeakMonth)

	bad = winterTariff()
	bad.CapacityFeeKW = -1
	assert.ErrorIs(t, bad.Validate(), ErrNegativeFee)

	bad = winterTariff()
	bad.PeakCalcMethod = 0
	assert.ErrorIs(t, bad.Validate(), ErrInvalidCalcMethod)

	bad = winterTariff()
	end := bad.ValidFrom
	bad.ValidTo = &end
	assert.ErrorIs(t, bad.Validate(), ErrInvalidValidity)
}

func TestPeakCalcMethod_JSON(t *testing.T) {
	var tr GridTariff
	require.NoError(t, json.Unmarshal([]byte(`{"operator":"eon","tariff_name":"E.ON_Effekt","valid_from":"2024-01-01","peak_calc_method":"avg3","peak_months":[11,12,1]}`), &tr))
	assert.Equal(t, PeakAvg3, tr.PeakCalcMethod)
	assert.Equal(t, 3, tr.PeakCalcMethod.TopDays())
	assert.Equal(t, []time.Month{time.November, time.December, time.January}, tr.PeakMonths)

	err := json.Unmarshal([]byte(`{"peak_calc_method":"median"}`), &tr)
	assert.ErrorIs(t, err, ErrInvalidCalcMethod)
}
