package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tariff "derivatio-energy/internal/tariff/domain"
)

func TestParseMonths(t *testing.T) {
	months, err := parseMonths("{11,12,1,2,3}")
	require.NoError(t, err)
	assert.Equal(t, []time.Month{11, 12, 1, 2, 3}, months)

	months, err = parseMonths("{}")
	require.NoError(t, err)
	assert.Empty(t, months)

	_, err = parseMonths("{0,13}")
	assert.ErrorIs(t, err, tariff.ErrInvalidPeakMonth)

	assert.Equal(t, "{11,12,1}", formatMonths([]time.Month{11, 12, 1}))
}
