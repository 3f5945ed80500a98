package historical

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var priceTable = &PriceTable{
	Timestamps: []int64{100, 200, 300},
	Columns:    []string{"BONK-SOL", "USDC"},
	Rows: [][]float64{
		{2.0, 1},
		{2.2, 1},
		{1.1, 1},
	},
}

func TestRelatives_Ratio(t *testing.T) {
	table, err := Relatives(priceTable, RelativesRatio)
	require.NoError(t, err)

	assert.Equal(t, []int64{200, 300}, table.Timestamps)
	assert.Equal(t, priceTable.Columns, table.Columns)
	require.Len(t, table.Rows, 2)
	assert.InDeltaSlice(t, []float64{1.1, 1}, table.Rows[0], 1e-12)
	assert.InDeltaSlice(t, []float64{0.5, 1}, table.Rows[1], 1e-12)
}

func TestRelatives_LegacyPercent(t *testing.T) {
	table, err := Relatives(priceTable, RelativesLegacyPercent)
	require.NoError(t, err)

	assert.InDeltaSlice(t, []float64{1.001, 1}, table.Rows[0], 1e-12)
	assert.InDeltaSlice(t, []float64{0.995, 1}, table.Rows[1], 1e-12)
}

func TestRelatives_DefaultsToRatio(t *testing.T) {
	table, err := Relatives(priceTable, "")
	require.NoError(t, err)
	assert.InDelta(t, 1.1, table.Rows[0][0], 1e-12)
}

func TestRelatives_ShortTables(t *testing.T) {
	single := &PriceTable{Timestamps: []int64{1}, Columns: []string{"A"}, Rows: [][]float64{{3}}}

	table, err := Relatives(single, RelativesRatio)
	require.NoError(t, err)
	assert.Empty(t, table.Rows)
	assert.Equal(t, []string{"A"}, table.Columns)

	_, err = Relatives(nil, RelativesRatio)
	assert.ErrorIs(t, err, ErrNoData)
}

func TestRelatives_RejectsInvalidPrices(t *testing.T) {
	for _, bad := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		table := &PriceTable{
			Timestamps: []int64{0, 3600},
			Columns:    []string{"A"},
			Rows:       [][]float64{{1}, {bad}},
		}
		_, err := Relatives(table, RelativesRatio)
		assert.ErrorIs(t, err, ErrInvalidPrice, "price %g", bad)
	}

	_, err := Relatives(priceTable, "log")
	assert.Error(t, err)
}

func TestParseRelativesMode(t *testing.T) {
	mode, err := ParseRelativesMode("legacy_percent")
	require.NoError(t, err)
	assert.Equal(t, RelativesLegacyPercent, mode)

	mode, err = ParseRelativesMode("")
	require.NoError(t, err)
	assert.Equal(t, RelativesRatio, mode)

	_, err = ParseRelativesMode("percent")
	assert.Error(t, err)
}

func TestPeriod(t *testing.T) {
	d, err := Period("hour", 1)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, d)

	d, err = Period("minute", 15)
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, d)

	d, err = Period("day", 0)
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, d)

	_, err = Period("week", 1)
	assert.Error(t, err)
}
