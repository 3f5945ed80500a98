package historical

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aristath/ftql/internal/clients/geckoterminal"
	"github.com/aristath/ftql/internal/metrics"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// FeedConfig selects the market data a feed refreshes.
type FeedConfig struct {
	Network     string
	Timeframe   string
	Aggregate   int
	Limit       int
	Parallelism int
}

// RefreshResult reports which symbols were refreshed and why the others failed.
type RefreshResult struct {
	Refreshed []string          `json:"refreshed"`
	Failed    map[string]string `json:"failed"`
}

// FeedService pulls candles for a universe of symbols and stores them.
type FeedService struct {
	client MarketDataClient
	repo   *HistoryRepository
	cfg    FeedConfig
	log    zerolog.Logger
}

// NewFeedService creates a new feed service.
func NewFeedService(client MarketDataClient, repo *HistoryRepository, cfg FeedConfig, log zerolog.Logger) *FeedService {
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 1
	}
	return &FeedService{
		client: client,
		repo:   repo,
		cfg:    cfg,
		log:    log.With().Str("service", "feed").Logger(),
	}
}

// Timeframe returns the candle timeframe the feed stores.
func (s *FeedService) Timeframe() string {
	return s.cfg.Timeframe
}

// Refresh fetches and stores candles for every symbol. A symbol whose pool lookup
// or candle fetch fails is logged and skipped; only cancellation aborts the refresh.
func (s *FeedService) Refresh(ctx context.Context, symbols []string) (*RefreshResult, error) {
	result := &RefreshResult{Failed: make(map[string]string)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Parallelism)

	for _, symbol := range symbols {
		symbol := symbol
		g.Go(func() error {
			err := s.refreshSymbol(gctx, symbol)
			if ctxErr := gctx.Err(); ctxErr != nil {
				return ctxErr
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.log.Warn().Err(err).Str("symbol", symbol).Msg("Skipping symbol")
				metrics.FetchErrors.WithLabelValues(symbol).Inc()
				result.Failed[symbol] = err.Error()
				return nil
			}
			result.Refreshed = append(result.Refreshed, symbol)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("market data refresh aborted: %w", err)
	}

	sort.Strings(result.Refreshed)
	s.log.Info().
		Int("refreshed", len(result.Refreshed)).
		Int("failed", len(result.Failed)).
		Msg("Market data refreshed")
	return result, nil
}

func (s *FeedService) refreshSymbol(ctx context.Context, symbol string) error {
	pools, err := s.client.SearchPools(ctx, symbol, s.cfg.Network)
	if err != nil {
		return fmt.Errorf("pool search: %w", err)
	}
	if len(pools) == 0 {
		return fmt.Errorf("no pool found for %s on %s", symbol, s.cfg.Network)
	}
	pool := pools[0]

	raw, err := s.client.FetchOHLCV(ctx, geckoterminal.OHLCVRequest{
		Network:     s.cfg.Network,
		PoolAddress: pool.Address,
		Timeframe:   s.cfg.Timeframe,
		Aggregate:   s.cfg.Aggregate,
		Limit:       s.cfg.Limit,
	})
	if err != nil {
		return fmt.Errorf("ohlcv fetch: %w", err)
	}
	if len(raw) == 0 {
		return fmt.Errorf("pool %s returned no candles", pool.Address)
	}

	series := Series{Symbol: symbol, Pair: pool.Name, Candles: make([]Candle, len(raw))}
	for i, c := range raw {
		series.Candles[i] = Candle(c)
	}
	if err := s.repo.SaveSeries(series, s.cfg.Timeframe); err != nil {
		return err
	}
	metrics.CandlesStored.Add(float64(len(series.Candles)))
	return nil
}

// LoadSeries reads the stored history of each symbol, skipping symbols without candles.
func (s *FeedService) LoadSeries(symbols []string) ([]Series, error) {
	out := make([]Series, 0, len(symbols))
	for _, symbol := range symbols {
		series, err := s.repo.GetSeries(symbol, s.cfg.Timeframe, s.cfg.Limit)
		if err != nil {
			return nil, err
		}
		if len(series.Candles) == 0 {
			s.log.Warn().Str("symbol", symbol).Msg("No stored candles, leaving symbol out")
			continue
		}
		out = append(out, *series)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("load series: %w", ErrNoData)
	}
	return out, nil
}
