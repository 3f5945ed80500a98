package historical

import (
	"context"

	"github.com/aristath/ftql/internal/clients/geckoterminal"
)

// MarketDataClient is the subset of the market data API the feed needs.
type MarketDataClient interface {
	SearchPools(ctx context.Context, query, network string) ([]geckoterminal.Pool, error)
	FetchOHLCV(ctx context.Context, req geckoterminal.OHLCVRequest) ([]geckoterminal.Candle, error)
}
