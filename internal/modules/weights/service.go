package weights

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aristath/ftql/internal/events"
	"github.com/aristath/ftql/internal/metrics"
	"github.com/aristath/ftql/internal/modules/historical"
	"github.com/aristath/ftql/internal/modules/optimization"
	"github.com/aristath/ftql/internal/modules/rebalancing"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Run triggers.
const (
	TriggerCLI      = "cli"
	TriggerSchedule = "schedule"
	TriggerAPI      = "api"
)

// ErrRunInProgress is returned when a run is requested while another is executing.
var ErrRunInProgress = errors.New("a weight run is already in progress")

// UniverseSource resolves the symbols to trade.
type UniverseSource interface {
	Symbols() ([]string, error)
}

// MarketFeed refreshes and loads candle history.
type MarketFeed interface {
	Refresh(ctx context.Context, symbols []string) (*historical.RefreshResult, error)
	LoadSeries(symbols []string) ([]historical.Series, error)
}

// Publisher uploads report files of a run.
type Publisher interface {
	Publish(ctx context.Context, runID string, files []string) error
}

// EventEmitter publishes run lifecycle events.
type EventEmitter interface {
	Emit(module string, data events.EventData)
}

// Settings are the learner and table parameters of a run.
type Settings struct {
	Epsilon    float64
	Relatives  historical.RelativesMode
	CashSymbol string
	// Period is the candle spacing, used to label the final allocation.
	Period time.Duration
	// SkipRefresh runs on stored candles without calling the market data API.
	SkipRefresh bool
}

// Service executes weight runs. Runs are serialised.
type Service struct {
	universe  UniverseSource
	feed      MarketFeed
	engine    *optimization.Engine
	repo      *RunRepository
	exporter  *Exporter
	publisher Publisher
	emitter   EventEmitter
	settings  Settings
	running   sync.Mutex
	baseCtx   context.Context
	now       func() time.Time
	log       zerolog.Logger
}

// NewService creates a new weights service.
func NewService(
	universe UniverseSource,
	feed MarketFeed,
	engine *optimization.Engine,
	repo *RunRepository,
	exporter *Exporter,
	settings Settings,
	log zerolog.Logger,
) *Service {
	return &Service{
		universe: universe,
		feed:     feed,
		engine:   engine,
		repo:     repo,
		exporter: exporter,
		settings: settings,
		baseCtx:  context.Background(),
		now:      time.Now,
		log:      log.With().Str("service", "weights").Logger(),
	}
}

// SetPublisher enables report uploads after each run.
func (s *Service) SetPublisher(p Publisher) {
	s.publisher = p
}

// SetEventEmitter enables lifecycle events.
func (s *Service) SetEventEmitter(e EventEmitter) {
	s.emitter = e
}

// SetBaseContext bounds background and scheduled runs by ctx, typically the
// process lifetime.
func (s *Service) SetBaseContext(ctx context.Context) {
	s.baseCtx = ctx
}

// Exporter returns the report exporter.
func (s *Service) Exporter() *Exporter {
	return s.exporter
}

// Run refreshes market data, learns the allocation sequence and stores, exports
// and publishes the result.
func (s *Service) Run(ctx context.Context, trigger string) (*Run, error) {
	if !s.running.TryLock() {
		return nil, ErrRunInProgress
	}
	defer s.running.Unlock()
	return s.execute(ctx, trigger)
}

// Start begins a run in the background and returns once it is accepted.
// done, when not nil, receives the outcome.
func (s *Service) Start(trigger string, done func(*Run, error)) error {
	if !s.running.TryLock() {
		return ErrRunInProgress
	}
	go func() {
		run, err := s.execute(s.baseCtx, trigger)
		s.running.Unlock()
		if done != nil {
			done(run, err)
		}
	}()
	return nil
}

func (s *Service) execute(ctx context.Context, trigger string) (*Run, error) {
	start := s.now()
	run := &Run{
		ID:        uuid.NewString(),
		CreatedAt: start.UTC(),
		Epsilon:   s.settings.Epsilon,
		Solver:    s.engine.SolverName(),
		Relatives: string(s.settings.Relatives),
	}
	if run.Relatives == "" {
		run.Relatives = string(historical.RelativesRatio)
	}
	log := s.log.With().Str("run_id", run.ID).Str("trigger", trigger).Logger()

	fail := func(stage string, err error) (*Run, error) {
		metrics.RunsTotal.WithLabelValues("failed").Inc()
		s.emit(&events.RunFailedData{RunID: run.ID, Stage: stage, Error: err.Error()})
		log.Error().Err(err).Str("stage", stage).Msg("Weight run failed")
		return nil, fmt.Errorf("%s: %w", stage, err)
	}

	symbols, err := s.universe.Symbols()
	if err != nil {
		return fail("universe", err)
	}
	s.emit(&events.RunStartedData{RunID: run.ID, Symbols: symbols, Trigger: trigger})
	log.Info().Strs("symbols", symbols).Msg("Starting weight run")

	load := symbols
	if !s.settings.SkipRefresh {
		refresh, err := s.feed.Refresh(ctx, symbols)
		if err != nil {
			return fail("refresh", err)
		}
		run.Refresh = refresh
		s.emit(&events.CandlesRefreshedData{Refreshed: refresh.Refreshed, Failed: refresh.Failed})

		// Stored candles of a symbol that failed to refresh would pin the join to old timestamps
		load = refresh.Refreshed
		if len(refresh.Failed) > 0 {
			log.Warn().Interface("failed", refresh.Failed).Msg("Leaving symbols that failed to refresh out of the run")
		}
	}

	series, err := s.feed.LoadSeries(load)
	if err != nil {
		return fail("load", err)
	}
	prices, err := historical.MergeCloses(series, s.settings.CashSymbol)
	if err != nil {
		return fail("merge", err)
	}
	if len(prices.Rows) == 0 {
		return fail("merge", fmt.Errorf("no timestamp shared by every series: %w", historical.ErrNoData))
	}
	returns, err := historical.Relatives(prices, s.settings.Relatives)
	if err != nil {
		return fail("relatives", err)
	}

	table, err := s.engine.Weights(ctx, len(returns.Columns), returns.Rows, s.settings.Epsilon)
	if err != nil {
		return fail("engine", err)
	}
	run.Columns = returns.Columns
	run.Weights = table
	run.Timestamps = weightTimestamps(returns.Timestamps, prices.Timestamps[len(prices.Timestamps)-1], s.settings.Period)

	run.Backtest, err = optimization.Backtest(returns.Rows, table)
	if err != nil {
		return fail("backtest", err)
	}

	trades, err := rebalancing.LatestTrades(run.Columns, rebalancing.RoundWeights(table, rebalancing.WeightPlaces))
	switch {
	case errors.Is(err, rebalancing.ErrInsufficientHistory):
		log.Warn().Msg("Only one weight row, no trades computed")
	case err != nil:
		return fail("trades", err)
	default:
		run.Trades = trades
	}

	if err := s.repo.Save(run); err != nil {
		return fail("persist", err)
	}

	files, err := s.exporter.Export(run)
	if err != nil {
		return fail("export", err)
	}
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, run.ID, files); err != nil {
			log.Warn().Err(err).Msg("Failed to publish reports")
		}
	}

	duration := s.now().Sub(start).Seconds()
	metrics.RunsTotal.WithLabelValues("success").Inc()
	metrics.RunDuration.Observe(duration)
	metrics.LastRunSteps.Set(float64(run.Steps()))
	metrics.LastRunAssets.Set(float64(run.Assets()))

	s.emit(&events.RunCompletedData{
		RunID:       run.ID,
		Steps:       run.Steps(),
		Assets:      run.Assets(),
		Solver:      run.Solver,
		Latest:      run.Latest(),
		FinalWealth: run.Backtest.FinalWealth,
		Duration:    duration,
	})
	log.Info().
		Int("steps", run.Steps()).
		Int("assets", run.Assets()).
		Float64("final_wealth", run.Backtest.FinalWealth).
		Float64("duration_s", duration).
		Msg("Weight run completed")

	return run, nil
}

func (s *Service) emit(data events.EventData) {
	if s.emitter != nil {
		s.emitter.Emit("weights", data)
	}
}

// weightTimestamps labels T+1 weight rows: row t < T with the timestamp of the
// relative it is applied to, the last row with one period after lastPrice.
func weightTimestamps(relatives []int64, lastPrice int64, period time.Duration) []int64 {
	out := make([]int64, 0, len(relatives)+1)
	out = append(out, relatives...)
	return append(out, lastPrice+int64(period/time.Second))
}
