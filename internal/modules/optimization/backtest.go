package optimization

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// BacktestReport summarises the wealth the in-sample decisions would have produced,
// next to a uniform buy-and-hold baseline over the same relatives.
type BacktestReport struct {
	Wealth              []float64 `json:"wealth"`
	FinalWealth         float64   `json:"final_wealth"`
	LogWealth           float64   `json:"log_wealth"`
	MaxDrawdown         float64   `json:"max_drawdown"`
	BaselineFinalWealth float64   `json:"baseline_final_wealth"`
	BaselineLogWealth   float64   `json:"baseline_log_wealth"`
	BaselineMaxDrawdown float64   `json:"baseline_max_drawdown"`
}

// Backtest replays relatives against the first len(relatives) rows of weights.
// Wealth[t] is the wealth after step t starting from 1.
func Backtest(relatives, weights [][]float64) (*BacktestReport, error) {
	if len(weights) < len(relatives) {
		return nil, fmt.Errorf("backtest needs %d weight rows, got %d", len(relatives), len(weights))
	}

	report := &BacktestReport{
		Wealth:              make([]float64, len(relatives)),
		FinalWealth:         1,
		BaselineFinalWealth: 1,
	}
	if len(relatives) == 0 {
		return report, nil
	}

	n := len(relatives[0])
	held := Uniform(n) // buy-and-hold value per asset
	baseline := make([]float64, len(relatives))

	wealth := 1.0
	for t, r := range relatives {
		if len(weights[t]) != len(r) {
			return nil, fmt.Errorf("row %d: %d weights for %d relatives", t, len(weights[t]), len(r))
		}
		growth := floats.Dot(r, weights[t])
		if !(growth > 0) {
			return nil, fmt.Errorf("row %d: %w", t, ErrDegenerateGrowth)
		}
		wealth *= growth
		report.Wealth[t] = wealth
		report.LogWealth += math.Log(growth)

		floats.Mul(held, r)
		baseline[t] = floats.Sum(held)
	}

	report.FinalWealth = wealth
	report.MaxDrawdown = maxDrawdown(report.Wealth)
	report.BaselineFinalWealth = baseline[len(baseline)-1]
	report.BaselineLogWealth = math.Log(report.BaselineFinalWealth)
	report.BaselineMaxDrawdown = maxDrawdown(baseline)

	return report, nil
}

// maxDrawdown returns the largest relative fall from a running peak, starting from 1.
func maxDrawdown(path []float64) float64 {
	peak, worst := 1.0, 0.0
	for _, v := range path {
		peak = math.Max(peak, v)
		worst = math.Max(worst, 1-v/peak)
	}
	return worst
}
