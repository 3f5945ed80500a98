package weights

import (
	"database/sql"
	"testing"
	"time"

	"github.com/aristath/ftql/internal/database"
	"github.com/aristath/ftql/internal/modules/optimization"
	"github.com/aristath/ftql/internal/modules/rebalancing"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRepository(t *testing.T) *RunRepository {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.ApplySchema(db, database.NameRuns))
	return NewRunRepository(db, zerolog.Nop())
}

func sampleRun(id string, createdAt time.Time) *Run {
	return &Run{
		ID:         id,
		CreatedAt:  createdAt,
		Epsilon:    0.1,
		Solver:     "active_set",
		Relatives:  "ratio",
		Columns:    []string{"BONK-SOL", "USDC"},
		Timestamps: []int64{7200, 10800},
		Weights:    [][]float64{{0.5, 0.5}, {0.7, 0.3}},
		Trades: &rebalancing.TradePlan{
			Buy:  []rebalancing.TradeInstruction{{Symbol: "BONK", Weight: 0.2}},
			Sell: []rebalancing.TradeInstruction{{Symbol: "USDC", Weight: 0.2}},
		},
		Backtest: &optimization.BacktestReport{Wealth: []float64{1.1}, FinalWealth: 1.1},
	}
}

func TestRunRepository_SaveAndGet(t *testing.T) {
	repo := setupTestRepository(t)
	run := sampleRun("run-1", time.Unix(1700000000, 0).UTC())

	require.NoError(t, repo.Save(run))

	got, err := repo.Get("run-1")
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.True(t, run.CreatedAt.Equal(got.CreatedAt))
	assert.Equal(t, run.Epsilon, got.Epsilon)
	assert.Equal(t, run.Solver, got.Solver)
	assert.Equal(t, run.Relatives, got.Relatives)
	assert.Equal(t, run.Columns, got.Columns)
	assert.Equal(t, run.Timestamps, got.Timestamps)
	assert.Equal(t, run.Weights, got.Weights)
	assert.Equal(t, run.Trades.Buy, got.Trades.Buy)
	assert.Equal(t, run.Trades.Sell, got.Trades.Sell)
	assert.Equal(t, run.Backtest.FinalWealth, got.Backtest.FinalWealth)
	assert.Nil(t, got.Refresh)
}

func TestRunRepository_GetMissing(t *testing.T) {
	repo := setupTestRepository(t)

	_, err := repo.Get("nope")
	assert.ErrorIs(t, err, ErrRunNotFound)

	_, err = repo.Latest()
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestRunRepository_SaveRejectsDuplicateID(t *testing.T) {
	repo := setupTestRepository(t)
	run := sampleRun("run-1", time.Unix(1700000000, 0))

	require.NoError(t, repo.Save(run))
	assert.Error(t, repo.Save(run))
}

func TestRunRepository_LatestAndList(t *testing.T) {
	repo := setupTestRepository(t)
	base := time.Unix(1700000000, 0)

	require.NoError(t, repo.Save(sampleRun("old", base)))
	require.NoError(t, repo.Save(sampleRun("new", base.Add(time.Hour))))
	require.NoError(t, repo.Save(sampleRun("mid", base.Add(time.Minute))))

	latest, err := repo.Latest()
	require.NoError(t, err)
	assert.Equal(t, "new", latest.ID)

	summaries, err := repo.List(2)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, "new", summaries[0].ID)
	assert.Equal(t, "mid", summaries[1].ID)
	assert.Equal(t, 1, summaries[0].Steps)
	assert.Equal(t, 2, summaries[0].Assets)
	assert.Equal(t, time.UTC, summaries[0].CreatedAt.Location())

	all, err := repo.List(0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
