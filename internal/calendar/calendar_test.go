package calendar

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonthsBetween_WrapsYear(t *testing.T) {
	months := MonthsBetween(NewDate(2024, time.November, 15), NewDate(2025, time.February, 1))
	require.Len(t, months, 4)
	assert.Equal(t, "2024-11", months[0].String())
	assert.Equal(t, "2025-02", months[3].String())
}

func TestMonthsBetween_Reversed(t *testing.T) {
	assert.Empty(t, MonthsBetween(NewDate(2025, time.March, 2), NewDate(2025, time.March, 1)))
}

func TestDate_JSONRoundTripsAsPlainDay(t *testing.T) {
	var payload struct {
		From Date `json:"from"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"from":"2025-01-31"}`), &payload))
	assert.Equal(t, NewDate(2025, time.January, 31), payload.From)
	assert.Equal(t, NewDate(2025, time.February, 1), payload.From.AddDays(1))

	err := json.Unmarshal([]byte(`{"from":"31/01/2025"}`), &payload)
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestMonth_LastDay(t *testing.T) {
	assert.Equal(t, NewDate(2024, time.February, 29), Month{Year: 2024, Month: time.February}.LastDay())
}
