package weights

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aristath/ftql/internal/events"
	"github.com/aristath/ftql/internal/modules/historical"
	"github.com/aristath/ftql/internal/modules/optimization"
	"github.com/aristath/ftql/internal/modules/universe"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
)

type fakeFeed struct {
	mu           sync.Mutex
	series       []historical.Series
	refreshErr   error
	loadErr      error
	refreshCalls int
	block        chan struct{}
	failed       map[string]string
	loaded       []string
}

func (f *fakeFeed) Refresh(ctx context.Context, symbols []string) (*historical.RefreshResult, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	f.refreshCalls++
	f.mu.Unlock()
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	result := &historical.RefreshResult{Failed: map[string]string{}}
	for _, symbol := range symbols {
		if reason, ok := f.failed[symbol]; ok {
			result.Failed[symbol] = reason
			continue
		}
		result.Refreshed = append(result.Refreshed, symbol)
	}
	return result, nil
}

func (f *fakeFeed) LoadSeries(symbols []string) ([]historical.Series, error) {
	f.mu.Lock()
	f.loaded = append([]string(nil), symbols...)
	f.mu.Unlock()
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	wanted := make(map[string]bool, len(symbols))
	for _, symbol := range symbols {
		wanted[symbol] = true
	}
	var out []historical.Series
	for _, s := range f.series {
		if wanted[s.Symbol] {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil, historical.ErrNoData
	}
	return out, nil
}

type fakePublisher struct {
	runID string
	files []string
	err   error
}

func (p *fakePublisher) Publish(_ context.Context, runID string, files []string) error {
	p.runID = runID
	p.files = files
	return p.err
}

func hourlySeries(symbol, pair string, closes ...float64) historical.Series {
	s := historical.Series{Symbol: symbol, Pair: pair}
	for i, c := range closes {
		s.Candles = append(s.Candles, historical.Candle{Timestamp: int64(i+1) * 3600, Close: c})
	}
	return s
}

type testHarness struct {
	service   *Service
	feed      *fakeFeed
	repo      *RunRepository
	bus       *events.Bus
	reportDir string
	received  []events.EventType
	mu        sync.Mutex
}

func newTestHarness(t *testing.T, settings Settings) *testHarness {
	t.Helper()
	h := &testHarness{
		feed: &fakeFeed{series: []historical.Series{
			hourlySeries("BONK", "BONK / SOL", 1, 2, 1, 2),
			hourlySeries("WIF", "WIF / SOL", 1, 1.1, 1.2, 1.1),
		}},
		repo:      setupTestRepository(t),
		bus:       events.NewBus(zerolog.Nop()),
		reportDir: filepath.Join(t.TempDir(), "weightResults"),
	}
	h.bus.Subscribe(func(e *events.Event) {
		h.mu.Lock()
		h.received = append(h.received, e.Type)
		h.mu.Unlock()
	})

	if settings.CashSymbol == "" {
		settings.CashSymbol = "USDC"
	}
	if settings.Period == 0 {
		settings.Period = time.Hour
	}

	engine := optimization.NewEngine(optimization.NewActiveSetSolver(), zerolog.Nop())
	h.service = NewService(
		universe.Source{Inline: []string{"BONK", "WIF", "USDC"}, Exclude: []string{"USDC"}},
		h.feed,
		engine,
		h.repo,
		NewExporter(h.reportDir, time.UTC, zerolog.Nop()),
		settings,
		zerolog.Nop(),
	)
	h.service.SetEventEmitter(h.bus)
	return h
}

func (h *testHarness) receivedEvents() []events.EventType {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]events.EventType(nil), h.received...)
}

func TestService_Run(t *testing.T) {
	h := newTestHarness(t, Settings{Epsilon: 0.01})
	publisher := &fakePublisher{}
	h.service.SetPublisher(publisher)

	run, err := h.service.Run(context.Background(), TriggerCLI)
	require.NoError(t, err)

	assert.NotEmpty(t, run.ID)
	assert.Equal(t, "active_set", run.Solver)
	assert.Equal(t, "ratio", run.Relatives)
	assert.Equal(t, 0.01, run.Epsilon)
	assert.Equal(t, []string{"BONK-SOL", "WIF-SOL", "USDC"}, run.Columns)
	assert.Equal(t, []int64{7200, 10800, 14400, 18000}, run.Timestamps)
	require.Len(t, run.Weights, 4)
	assert.Equal(t, []float64{1.0 / 3, 1.0 / 3, 1.0 / 3}, run.Weights[0])
	for _, row := range run.Weights {
		assert.InDelta(t, 1.0, floats.Sum(row), 1e-9)
	}
	assert.Equal(t, 3, run.Steps())
	require.NotNil(t, run.Trades)
	require.NotNil(t, run.Backtest)
	assert.Len(t, run.Backtest.Wealth, 3)
	assert.Equal(t, []string{"BONK", "WIF"}, run.Refresh.Refreshed)

	stored, err := h.repo.Latest()
	require.NoError(t, err)
	assert.Equal(t, run.ID, stored.ID)
	assert.Equal(t, run.Weights, stored.Weights)

	for _, name := range []string{BuyFile, SellFile, RecentWeightsFile} {
		_, err := os.Stat(filepath.Join(h.reportDir, name))
		assert.NoError(t, err, name)
	}
	assert.Equal(t, run.ID, publisher.runID)
	assert.Len(t, publisher.files, 3)

	assert.Equal(t, []events.EventType{events.RunStarted, events.CandlesRefreshed, events.RunCompleted}, h.receivedEvents())
}

func TestService_RunSkipRefresh(t *testing.T) {
	h := newTestHarness(t, Settings{SkipRefresh: true})

	run, err := h.service.Run(context.Background(), TriggerCLI)
	require.NoError(t, err)
	assert.Nil(t, run.Refresh)
	assert.Equal(t, 0, h.feed.refreshCalls)
}

func TestService_RunLeavesOutSymbolsThatFailedToRefresh(t *testing.T) {
	h := newTestHarness(t, Settings{})
	h.service.universe = universe.Source{Inline: []string{"BONK", "WIF", "JUP"}}
	h.feed.failed = map[string]string{"JUP": "ohlcv fetch: status 500"}
	h.feed.series = append(h.feed.series, historical.Series{
		Symbol: "JUP",
		Pair:   "JUP / SOL",
		Candles: []historical.Candle{
			{Timestamp: 10, Close: 1},
			{Timestamp: 20, Close: 1.1},
		},
	})

	run, err := h.service.Run(context.Background(), TriggerSchedule)
	require.NoError(t, err)

	assert.Equal(t, []string{"BONK", "WIF"}, h.feed.loaded)
	assert.Equal(t, []string{"BONK-SOL", "WIF-SOL", "USDC"}, run.Columns)
	assert.Equal(t, int64(18000), run.LatestTime().Unix())
	assert.Equal(t, map[string]string{"JUP": "ohlcv fetch: status 500"}, run.Refresh.Failed)
}

func TestService_RunSkipRefreshLoadsWholeUniverse(t *testing.T) {
	h := newTestHarness(t, Settings{SkipRefresh: true})

	_, err := h.service.Run(context.Background(), TriggerCLI)
	require.NoError(t, err)
	assert.Equal(t, []string{"BONK", "WIF"}, h.feed.loaded)
}

func TestService_RunSinglePriceRow(t *testing.T) {
	h := newTestHarness(t, Settings{})
	h.feed.series = []historical.Series{hourlySeries("BONK", "BONK / SOL", 2)}

	run, err := h.service.Run(context.Background(), TriggerCLI)
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{0.5, 0.5}}, run.Weights)
	assert.Equal(t, []int64{7200}, run.Timestamps)
	assert.Nil(t, run.Trades)

	_, err = os.Stat(filepath.Join(h.reportDir, BuyFile))
	assert.True(t, os.IsNotExist(err))
}

func TestService_RunFailures(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *fakeFeed)
		stage string
		is    error
	}{
		{
			name:  "refresh",
			setup: func(f *fakeFeed) { f.refreshErr = context.Canceled },
			stage: "refresh",
			is:    context.Canceled,
		},
		{
			name:  "no stored candles",
			setup: func(f *fakeFeed) { f.loadErr = historical.ErrNoData },
			stage: "load",
			is:    historical.ErrNoData,
		},
		{
			name: "no shared timestamps",
			setup: func(f *fakeFeed) {
				f.series = []historical.Series{
					hourlySeries("BONK", "BONK / SOL", 1, 2),
					{Symbol: "WIF", Pair: "WIF / SOL", Candles: []historical.Candle{{Timestamp: 99, Close: 1}}},
				}
			},
			stage: "merge",
			is:    historical.ErrNoData,
		},
		{
			name: "bad price",
			setup: func(f *fakeFeed) {
				f.series = []historical.Series{hourlySeries("BONK", "BONK / SOL", 1, 0, 2)}
			},
			stage: "relatives",
			is:    historical.ErrInvalidPrice,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHarness(t, Settings{})
			tt.setup(h.feed)

			run, err := h.service.Run(context.Background(), TriggerCLI)
			assert.Nil(t, run)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.is)
			assert.Contains(t, err.Error(), tt.stage+":")

			summaries, err := h.repo.List(10)
			require.NoError(t, err)
			assert.Empty(t, summaries)

			received := h.receivedEvents()
			require.NotEmpty(t, received)
			assert.Equal(t, events.RunFailed, received[len(received)-1])
		})
	}
}

func TestService_StartStopsWithBaseContext(t *testing.T) {
	h := newTestHarness(t, Settings{})
	ctx, cancel := context.WithCancel(context.Background())
	h.service.SetBaseContext(ctx)
	h.feed.block = make(chan struct{})

	done := make(chan error, 1)
	require.NoError(t, h.service.Start(TriggerAPI, func(run *Run, err error) { done <- err }))
	cancel()
	close(h.feed.block)

	select {
	case err := <-done:
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Contains(t, err.Error(), "engine:")
	case <-time.After(10 * time.Second):
		t.Fatal("run did not finish")
	}

	summaries, err := h.repo.List(10)
	require.NoError(t, err)
	assert.Empty(t, summaries)
}

func TestJob_RunUsesBaseContext(t *testing.T) {
	h := newTestHarness(t, Settings{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h.service.SetBaseContext(ctx)

	err := NewJob(h.service, time.Minute, zerolog.Nop()).Run()
	assert.ErrorIs(t, err, context.Canceled)
}

func TestService_PublishFailureDoesNotFailRun(t *testing.T) {
	h := newTestHarness(t, Settings{})
	h.service.SetPublisher(&fakePublisher{err: errors.New("bucket unavailable")})

	run, err := h.service.Run(context.Background(), TriggerCLI)
	require.NoError(t, err)
	assert.NotNil(t, run)
}

func TestService_RunsAreSerialised(t *testing.T) {
	h := newTestHarness(t, Settings{})
	h.feed.block = make(chan struct{})

	done := make(chan error, 1)
	require.NoError(t, h.service.Start(TriggerAPI, func(run *Run, err error) { done <- err }))

	_, err := h.service.Run(context.Background(), TriggerCLI)
	assert.ErrorIs(t, err, ErrRunInProgress)
	assert.ErrorIs(t, h.service.Start(TriggerAPI, nil), ErrRunInProgress)

	close(h.feed.block)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("background run did not finish")
	}

	_, err = h.service.Run(context.Background(), TriggerCLI)
	assert.NoError(t, err)
}

func TestJob_Run(t *testing.T) {
	h := newTestHarness(t, Settings{})
	job := NewJob(h.service, time.Minute, zerolog.Nop())

	assert.Equal(t, "ftql_weights", job.Name())
	require.NoError(t, job.Run())

	summaries, err := h.repo.List(10)
	require.NoError(t, err)
	assert.Len(t, summaries, 1)
}

func TestJob_RunSkipsWhileBusy(t *testing.T) {
	h := newTestHarness(t, Settings{})
	h.feed.block = make(chan struct{})

	done := make(chan struct{})
	require.NoError(t, h.service.Start(TriggerAPI, func(*Run, error) { close(done) }))

	assert.NoError(t, NewJob(h.service, 0, zerolog.Nop()).Run())

	close(h.feed.block)
	<-done
}
