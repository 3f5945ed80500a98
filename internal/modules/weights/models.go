// Package weights runs the allocation pipeline end to end: market data,
// return relatives, the quadratized-leader engine, trades and reports.
package weights

import (
	"time"

	"github.com/aristath/ftql/internal/modules/historical"
	"github.com/aristath/ftql/internal/modules/optimization"
	"github.com/aristath/ftql/internal/modules/rebalancing"
)

// Run is one completed pass of the pipeline.
type Run struct {
	ID        string    `json:"id" msgpack:"-"`
	CreatedAt time.Time `json:"created_at" msgpack:"-"`
	Epsilon   float64   `json:"epsilon" msgpack:"-"`
	Solver    string    `json:"solver" msgpack:"-"`
	Relatives string    `json:"relatives" msgpack:"-"`

	Columns []string `json:"columns" msgpack:"columns"`
	// Timestamps labels each weight row with the period it is held over. The
	// last row is labelled one period after the last observed candle.
	Timestamps []int64                      `json:"timestamps" msgpack:"timestamps"`
	Weights    [][]float64                  `json:"weights" msgpack:"weights"`
	Trades     *rebalancing.TradePlan       `json:"trades,omitempty" msgpack:"trades"`
	Backtest   *optimization.BacktestReport `json:"backtest,omitempty" msgpack:"backtest"`
	Refresh    *historical.RefreshResult    `json:"refresh,omitempty" msgpack:"refresh"`
}

// Steps is the number of observed relatives the run learned from.
func (r *Run) Steps() int {
	if len(r.Weights) == 0 {
		return 0
	}
	return len(r.Weights) - 1
}

// Assets is the number of columns, cash included.
func (r *Run) Assets() int {
	return len(r.Columns)
}

// Latest returns the most recent allocation keyed by display name, rounded the
// way reports show it.
func (r *Run) Latest() map[string]float64 {
	if len(r.Weights) == 0 {
		return map[string]float64{}
	}
	row := r.Weights[len(r.Weights)-1]
	out := make(map[string]float64, len(row))
	for i, column := range r.Columns {
		out[historical.DisplayName(column)] = rebalancing.Round(row[i], rebalancing.WeightPlaces)
	}
	return out
}

// LatestTime is the label of the most recent allocation.
func (r *Run) LatestTime() time.Time {
	if len(r.Timestamps) == 0 {
		return r.CreatedAt
	}
	return time.Unix(r.Timestamps[len(r.Timestamps)-1], 0).UTC()
}

// RunSummary is a run without its weight matrix.
type RunSummary struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Epsilon   float64   `json:"epsilon"`
	Solver    string    `json:"solver"`
	Relatives string    `json:"relatives"`
	Steps     int       `json:"steps"`
	Assets    int       `json:"assets"`
}
