package geckoterminal

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aristath/ftql/internal/clientdata"
	"github.com/aristath/ftql/internal/database"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const searchBody = `{
  "data": [
    {
      "id": "solana_8sLbNZoA1cfnvMJLPfp98ZLAnFSYCFApfJKMbiXNLwxj",
      "type": "pool",
      "attributes": {
        "address": "8sLbNZoA1cfnvMJLPfp98ZLAnFSYCFApfJKMbiXNLwxj",
        "name": "BONK / SOL",
        "fdv_usd": "1523456789.12",
        "market_cap_usd": null
      }
    },
    {
      "id": "solana_second",
      "type": "pool",
      "attributes": {
        "address": "second",
        "name": "BONK / USDC",
        "fdv_usd": "1523456789.12",
        "market_cap_usd": "1200000000"
      }
    }
  ]
}`

const ohlcvBody = `{
  "data": {
    "id": "x",
    "type": "ohlcv_request_response",
    "attributes": {
      "ohlcv_list": [
        [1700007200, 1.2, 1.3, 1.1, 1.25, 5000],
        [1700003600, 1.1, 1.2, 1.0, 1.2, 4000],
        [1700000000, 1.0, 1.1, 0.9, 1.1, 3000]
      ]
    }
  }
}`

func newTestClient(t *testing.T, handler http.HandlerFunc, cache *clientdata.Repository) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(server.URL, 60000, cache, zerolog.Nop())
}

func newTestCache(t *testing.T) *clientdata.Repository {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.ApplySchema(db, database.NameClientData))
	return clientdata.NewRepository(db)
}

func TestSearchPools_Success(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/search/pools", r.URL.Path)
		assert.Equal(t, "BONK", r.URL.Query().Get("query"))
		assert.Equal(t, "solana", r.URL.Query().Get("network"))
		assert.Equal(t, "base_token,quote_token", r.URL.Query().Get("include"))
		assert.Equal(t, "1", r.URL.Query().Get("page"))
		w.Write([]byte(searchBody))
	}, nil)

	pools, err := client.SearchPools(context.Background(), "BONK", "solana")
	require.NoError(t, err)
	require.Len(t, pools, 2)

	assert.Equal(t, "8sLbNZoA1cfnvMJLPfp98ZLAnFSYCFApfJKMbiXNLwxj", pools[0].Address)
	assert.Equal(t, "BONK / SOL", pools[0].Name)
	assert.InDelta(t, 1523456789.12, pools[0].FDVUSD, 1e-3)
	assert.Equal(t, 0.0, pools[0].MarketCapUSD)
	assert.Equal(t, 1.2e9, pools[1].MarketCapUSD)
}

func TestSearchPools_UsesCache(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(searchBody))
	}, newTestCache(t))

	first, err := client.SearchPools(context.Background(), "BONK", "solana")
	require.NoError(t, err)
	second, err := client.SearchPools(context.Background(), "BONK", "solana")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestSearchPools_StaleFallback(t *testing.T) {
	cache := newTestCache(t)
	stale := []Pool{{Address: "cached", Name: "WIF / SOL"}}
	require.NoError(t, cache.Store(clientdata.TableGeckoTerminalPools, "solana:WIF", stale, -time.Hour))

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}, cache)

	pools, err := client.SearchPools(context.Background(), "WIF", "solana")
	require.NoError(t, err)
	assert.Equal(t, stale, pools)
}

func TestSearchPools_APIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("upstream down"))
	}, nil)

	_, err := client.SearchPools(context.Background(), "BONK", "solana")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
	assert.Contains(t, err.Error(), "upstream down")
}

func TestFetchOHLCV_SortsAscending(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/networks/solana/pools/8sLb/ohlcv/hour", r.URL.Path)
		assert.Equal(t, "1", r.URL.Query().Get("aggregate"))
		assert.Equal(t, "1000", r.URL.Query().Get("limit"))
		assert.Empty(t, r.URL.Query().Get("before_timestamp"))
		w.Write([]byte(ohlcvBody))
	}, nil)

	candles, err := client.FetchOHLCV(context.Background(), OHLCVRequest{
		Network:     "solana",
		PoolAddress: "8sLb",
		Timeframe:   "hour",
	})
	require.NoError(t, err)
	require.Len(t, candles, 3)

	assert.Equal(t, int64(1700000000), candles[0].Timestamp)
	assert.Equal(t, int64(1700007200), candles[2].Timestamp)
	assert.Equal(t, Candle{Timestamp: 1700003600, Open: 1.1, High: 1.2, Low: 1.0, Close: 1.2, Volume: 4000}, candles[1])
}

func TestFetchOHLCV_BeforeTimestamp(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1699999999", r.URL.Query().Get("before_timestamp"))
		assert.Equal(t, "4", r.URL.Query().Get("aggregate"))
		assert.Equal(t, "50", r.URL.Query().Get("limit"))
		w.Write([]byte(`{"data":{"attributes":{"ohlcv_list":[]}}}`))
	}, nil)

	candles, err := client.FetchOHLCV(context.Background(), OHLCVRequest{
		Network:         "solana",
		PoolAddress:     "pool",
		Timeframe:       "minute",
		Aggregate:       4,
		BeforeTimestamp: 1699999999,
		Limit:           50,
	})
	require.NoError(t, err)
	assert.Empty(t, candles)
}

func TestFetchOHLCV_MalformedRow(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"attributes":{"ohlcv_list":[[1700000000, 1.0]]}}}`))
	}, nil)

	_, err := client.FetchOHLCV(context.Background(), OHLCVRequest{Network: "solana", PoolAddress: "p", Timeframe: "hour"})
	assert.Error(t, err)
}

func TestClient_CancelledContext(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(searchBody))
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.SearchPools(ctx, "BONK", "solana")
	assert.ErrorIs(t, err, context.Canceled)
}
