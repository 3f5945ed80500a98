package historical

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/ftql/internal/database"
	"github.com/rs/zerolog"
)

// SymbolSummary describes the stored history of one symbol.
type SymbolSummary struct {
	Symbol  string `json:"symbol"`
	Pair    string `json:"pair"`
	Candles int    `json:"candles"`
	First   int64  `json:"first"`
	Last    int64  `json:"last"`
}

// HistoryRepository stores candles in history.db.
type HistoryRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewHistoryRepository creates a new candle repository.
func NewHistoryRepository(db *sql.DB, log zerolog.Logger) *HistoryRepository {
	return &HistoryRepository{
		db:  db,
		log: log.With().Str("repo", "history").Logger(),
	}
}

// SaveSeries upserts the candles of a series for a timeframe.
func (r *HistoryRepository) SaveSeries(series Series, timeframe string) error {
	fetchedAt := time.Now().Unix()

	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT OR REPLACE INTO candles
			(symbol, timeframe, ts, pair, open, high, low, close, volume, fetched_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, c := range series.Candles {
			if _, err := stmt.Exec(series.Symbol, timeframe, c.Timestamp, series.Pair,
				c.Open, c.High, c.Low, c.Close, c.Volume, fetchedAt); err != nil {
				return fmt.Errorf("failed to insert candle %d for %s: %w", c.Timestamp, series.Symbol, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.log.Debug().Str("symbol", series.Symbol).Int("candles", len(series.Candles)).Msg("Candles saved")
	return nil
}

// GetSeries returns the most recent limit candles of a symbol in ascending order.
// A symbol without candles yields a series with no candles.
func (r *HistoryRepository) GetSeries(symbol, timeframe string, limit int) (*Series, error) {
	rows, err := r.db.Query(`
		SELECT ts, pair, open, high, low, close, volume
		FROM candles
		WHERE symbol = ? AND timeframe = ?
		ORDER BY ts DESC
		LIMIT ?
	`, symbol, timeframe, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query candles: %w", err)
	}
	defer rows.Close()

	series := &Series{Symbol: symbol}
	for rows.Next() {
		var c Candle
		var pair string
		if err := rows.Scan(&c.Timestamp, &pair, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan candle: %w", err)
		}
		if series.Pair == "" {
			series.Pair = pair
		}
		series.Candles = append(series.Candles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating candles: %w", err)
	}

	// Reverse into ascending order
	for i, j := 0, len(series.Candles)-1; i < j; i, j = i+1, j-1 {
		series.Candles[i], series.Candles[j] = series.Candles[j], series.Candles[i]
	}
	return series, nil
}

// Symbols summarises every symbol stored for a timeframe.
func (r *HistoryRepository) Symbols(timeframe string) ([]SymbolSummary, error) {
	rows, err := r.db.Query(`
		SELECT symbol, MAX(pair), COUNT(*), MIN(ts), MAX(ts)
		FROM candles
		WHERE timeframe = ?
		GROUP BY symbol
		ORDER BY symbol
	`, timeframe)
	if err != nil {
		return nil, fmt.Errorf("failed to query symbols: %w", err)
	}
	defer rows.Close()

	summaries := make([]SymbolSummary, 0)
	for rows.Next() {
		var s SymbolSummary
		if err := rows.Scan(&s.Symbol, &s.Pair, &s.Candles, &s.First, &s.Last); err != nil {
			return nil, fmt.Errorf("failed to scan symbol summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating symbols: %w", err)
	}
	return summaries, nil
}

// DeleteBefore removes candles older than cutoff (Unix seconds) and returns the count.
func (r *HistoryRepository) DeleteBefore(cutoff int64) (int64, error) {
	result, err := r.db.Exec("DELETE FROM candles WHERE ts < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old candles: %w", err)
	}
	return result.RowsAffected()
}
