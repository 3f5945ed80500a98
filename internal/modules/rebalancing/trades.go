// Package rebalancing turns consecutive weight rows into rounded buy and sell
// instructions.
package rebalancing

import (
	"errors"
	"fmt"

	"github.com/aristath/ftql/internal/modules/historical"
	"github.com/shopspring/decimal"
)

// WeightPlaces is the precision weights are reported and traded at.
const WeightPlaces int32 = 3

// ErrInsufficientHistory is returned when fewer than two weight rows exist.
var ErrInsufficientHistory = errors.New("at least two weight rows are required to compute trades")

// TradeInstruction is one entry of buy.json or sell.json.
type TradeInstruction struct {
	Symbol string  `json:"symbol"`
	Weight float64 `json:"weight"`
}

// TradePlan holds the weight shifts between two allocations.
type TradePlan struct {
	Buy  []TradeInstruction `json:"buy"`
	Sell []TradeInstruction `json:"sell"`
}

// Round rounds w half away from zero to places and drops the sign.
func Round(w float64, places int32) float64 {
	f, _ := decimal.NewFromFloat(w).Round(places).Abs().Float64()
	return f
}

// RoundWeights rounds every weight of the table to places decimals.
func RoundWeights(table [][]float64, places int32) [][]float64 {
	out := make([][]float64, len(table))
	for i, row := range table {
		out[i] = make([]float64, len(row))
		for j, w := range row {
			out[i][j] = Round(w, places)
		}
	}
	return out
}

// ComputeTrades diffs two rows of weights. Positive shifts become buys,
// negative ones sells, and zero shifts are left out. Instructions follow
// column order and carry the column's display name.
func ComputeTrades(columns []string, prev, next []float64) (*TradePlan, error) {
	if len(prev) != len(columns) || len(next) != len(columns) {
		return nil, fmt.Errorf("weight rows have %d and %d entries for %d columns", len(prev), len(next), len(columns))
	}

	plan := &TradePlan{Buy: []TradeInstruction{}, Sell: []TradeInstruction{}}
	for i, column := range columns {
		delta := decimal.NewFromFloat(next[i]).Sub(decimal.NewFromFloat(prev[i])).Round(WeightPlaces)
		if delta.IsZero() {
			continue
		}

		weight, _ := delta.Abs().Float64()
		instruction := TradeInstruction{Symbol: historical.DisplayName(column), Weight: weight}
		if delta.IsPositive() {
			plan.Buy = append(plan.Buy, instruction)
		} else {
			plan.Sell = append(plan.Sell, instruction)
		}
	}
	return plan, nil
}

// LatestTrades computes the trades between the last two rows of a weight table.
func LatestTrades(columns []string, table [][]float64) (*TradePlan, error) {
	if len(table) < 2 {
		return nil, ErrInsufficientHistory
	}
	return ComputeTrades(columns, table[len(table)-2], table[len(table)-1])
}
