// Package historical stores market candles and turns them into the price and
// return-relative tables the allocation engine consumes.
package historical

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNoData is returned when no candles are available to build a table.
	ErrNoData = errors.New("no market data")
	// ErrInvalidPrice is returned when a price is zero, negative or not finite.
	ErrInvalidPrice = errors.New("invalid price")
)

// Candle is one OHLCV bar. Timestamp is Unix seconds, UTC.
type Candle struct {
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// Series is the candle history of one symbol, sorted by ascending timestamp.
type Series struct {
	Symbol  string   `json:"symbol"`
	Pair    string   `json:"pair"` // Pool name, e.g. "BONK / SOL"
	Candles []Candle `json:"candles"`
}

// ColumnName derives the table column of a pool name: spaces are removed and
// "/" becomes "-", so "BONK / SOL" becomes "BONK-SOL".
func ColumnName(pair string) string {
	return strings.ReplaceAll(strings.ReplaceAll(pair, " ", ""), "/", "-")
}

// DisplayName is the part of a column name before the first "-".
func DisplayName(column string) string {
	if i := strings.Index(column, "-"); i >= 0 {
		return column[:i]
	}
	return column
}

// Period returns the spacing between candles of a timeframe and aggregate.
func Period(timeframe string, aggregate int) (time.Duration, error) {
	if aggregate <= 0 {
		aggregate = 1
	}
	var unit time.Duration
	switch timeframe {
	case "day":
		unit = 24 * time.Hour
	case "hour":
		unit = time.Hour
	case "minute":
		unit = time.Minute
	default:
		return 0, fmt.Errorf("unknown timeframe: %s", timeframe)
	}
	return time.Duration(aggregate) * unit, nil
}
