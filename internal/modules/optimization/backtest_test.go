package optimization

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBacktest(t *testing.T) {
	relatives := [][]float64{
		{1.1, 1.0},
		{0.9, 1.0},
	}
	weights := [][]float64{
		{0.5, 0.5},
		{1.0, 0.0},
		{0.5, 0.5},
	}

	report, err := Backtest(relatives, weights)
	require.NoError(t, err)

	assert.InDeltaSlice(t, []float64{1.05, 0.945}, report.Wealth, 1e-12)
	assert.InDelta(t, 0.945, report.FinalWealth, 1e-12)
	assert.InDelta(t, math.Log(1.05)+math.Log(0.9), report.LogWealth, 1e-12)
	assert.InDelta(t, 0.1, report.MaxDrawdown, 1e-12)

	assert.InDelta(t, 0.995, report.BaselineFinalWealth, 1e-12)
	assert.InDelta(t, math.Log(0.995), report.BaselineLogWealth, 1e-12)
	assert.InDelta(t, 1-0.995/1.05, report.BaselineMaxDrawdown, 1e-12)
}

func TestBacktest_EmptyHorizon(t *testing.T) {
	report, err := Backtest(nil, [][]float64{{1}})
	require.NoError(t, err)
	assert.Equal(t, 1.0, report.FinalWealth)
	assert.Equal(t, 1.0, report.BaselineFinalWealth)
	assert.Empty(t, report.Wealth)
}

func TestBacktest_Errors(t *testing.T) {
	_, err := Backtest([][]float64{{1, 1}, {1, 1}}, [][]float64{{0.5, 0.5}})
	assert.Error(t, err)

	_, err = Backtest([][]float64{{1, 1}}, [][]float64{{1}})
	assert.Error(t, err)

	_, err = Backtest([][]float64{{0, 1}}, [][]float64{{1, 0}})
	assert.ErrorIs(t, err, ErrDegenerateGrowth)
}

func TestBacktest_EngineOutput(t *testing.T) {
	weights, err := newTestEngine().Weights(context.Background(), 2, exampleRelatives, 0)
	require.NoError(t, err)

	report, err := Backtest(exampleRelatives, weights)
	require.NoError(t, err)
	require.Len(t, report.Wealth, len(exampleRelatives))
	assert.Greater(t, report.FinalWealth, 0.0)
	assert.GreaterOrEqual(t, report.MaxDrawdown, 0.0)
	assert.Less(t, report.MaxDrawdown, 1.0)
}
