package historical

import (
	"fmt"
	"math"
	"time"
)

// RelativesMode selects how consecutive prices become return relatives.
type RelativesMode string

const (
	// RelativesRatio is p[t] / p[t-1].
	RelativesRatio RelativesMode = "ratio"
	// RelativesLegacyPercent is 1 + (p[t]/p[t-1] - 1) / 100, which shrinks every
	// move a hundredfold. Kept to reproduce historical reports.
	RelativesLegacyPercent RelativesMode = "legacy_percent"
)

// ParseRelativesMode validates a mode name.
func ParseRelativesMode(name string) (RelativesMode, error) {
	switch mode := RelativesMode(name); mode {
	case RelativesRatio, RelativesLegacyPercent:
		return mode, nil
	case "":
		return RelativesRatio, nil
	default:
		return "", fmt.Errorf("unknown relatives mode: %s", name)
	}
}

// ReturnTable holds return relatives. Rows[t] is the relative observed at
// Timestamps[t], from the previous price row to this one.
type ReturnTable struct {
	Timestamps []int64
	Columns    []string
	Rows       [][]float64
}

// Relatives converts a price table into return relatives, dropping the first row.
func Relatives(table *PriceTable, mode RelativesMode) (*ReturnTable, error) {
	if table == nil {
		return nil, fmt.Errorf("relatives: %w", ErrNoData)
	}
	if mode == "" {
		mode = RelativesRatio
	}
	if mode != RelativesRatio && mode != RelativesLegacyPercent {
		return nil, fmt.Errorf("unknown relatives mode: %s", mode)
	}

	for t, row := range table.Rows {
		for i, p := range row {
			if !(p > 0) || math.IsInf(p, 0) {
				return nil, fmt.Errorf("%w: %s at %s is %g", ErrInvalidPrice,
					table.Columns[i], time.Unix(table.Timestamps[t], 0).UTC().Format(time.RFC3339), p)
			}
		}
	}

	out := &ReturnTable{Columns: table.Columns}
	if len(table.Rows) < 2 {
		return out, nil
	}

	out.Timestamps = append([]int64(nil), table.Timestamps[1:]...)
	out.Rows = make([][]float64, len(table.Rows)-1)
	for t := 1; t < len(table.Rows); t++ {
		prev, cur := table.Rows[t-1], table.Rows[t]
		row := make([]float64, len(cur))
		for i := range cur {
			ratio := cur[i] / prev[i]
			if mode == RelativesLegacyPercent {
				ratio = 1 + (ratio-1)/100
			}
			row[i] = ratio
		}
		out.Rows[t-1] = row
	}
	return out, nil
}
