package historical

import (
	"fmt"
	"sort"
)

// PriceTable holds close prices aligned on common timestamps. Rows[t][i] is the
// close of Columns[i] at Timestamps[t].
type PriceTable struct {
	Timestamps []int64
	Columns    []string
	Rows       [][]float64
}

// MergeCloses aligns the close prices of every series on the timestamps they all
// share, in ascending order, and appends a constant 1.0 column named cash. An
// empty cash name skips the cash column.
func MergeCloses(series []Series, cash string) (*PriceTable, error) {
	if len(series) == 0 {
		return nil, fmt.Errorf("merge closes: %w", ErrNoData)
	}

	columns := make([]string, 0, len(series)+1)
	seen := make(map[string]bool, len(series)+1)
	closes := make([]map[int64]float64, len(series))
	for i, s := range series {
		name := ColumnName(s.Pair)
		if name == "" {
			name = s.Symbol
		}
		if seen[name] {
			return nil, fmt.Errorf("merge closes: duplicate column %s", name)
		}
		seen[name] = true
		columns = append(columns, name)

		closes[i] = make(map[int64]float64, len(s.Candles))
		for _, c := range s.Candles {
			closes[i][c.Timestamp] = c.Close
		}
	}
	if cash != "" {
		if seen[cash] {
			return nil, fmt.Errorf("merge closes: cash column %s collides with a series", cash)
		}
		columns = append(columns, cash)
	}

	// Timestamps present in every series; iterate the first to keep the result deterministic
	timestamps := make([]int64, 0, len(closes[0]))
	for ts := range closes[0] {
		shared := true
		for _, other := range closes[1:] {
			if _, ok := other[ts]; !ok {
				shared = false
				break
			}
		}
		if shared {
			timestamps = append(timestamps, ts)
		}
	}
	sort.Slice(timestamps, func(i, j int) bool { return timestamps[i] < timestamps[j] })

	rows := make([][]float64, len(timestamps))
	for t, ts := range timestamps {
		row := make([]float64, len(columns))
		for i := range series {
			row[i] = closes[i][ts]
		}
		if cash != "" {
			row[len(row)-1] = 1.0
		}
		rows[t] = row
	}

	return &PriceTable{
		Timestamps: timestamps,
		Columns:    columns,
		Rows:       rows,
	}, nil
}
