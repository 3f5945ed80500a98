// Package geckoterminal provides a client for the GeckoTerminal public DEX API.
// It resolves a token symbol to its most relevant liquidity pool and fetches
// OHLCV candles for that pool.
package geckoterminal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/aristath/ftql/internal/clientdata"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://api.geckoterminal.com/api/v2"
	// Free tier allows 30 calls per minute
	defaultRequestsPerMinute = 30
)

// Pool is a liquidity pool returned by the pool search endpoint.
type Pool struct {
	ID           string  `json:"id"`
	Address      string  `json:"address"`
	Name         string  `json:"name"` // e.g. "BONK / SOL"
	FDVUSD       float64 `json:"fdv_usd"`
	MarketCapUSD float64 `json:"market_cap_usd"`
}

// Candle is one OHLCV bar. Timestamp is Unix seconds.
type Candle struct {
	Timestamp int64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// OHLCVRequest selects the candles to fetch for a pool.
type OHLCVRequest struct {
	Network         string
	PoolAddress     string
	Timeframe       string // day, hour or minute
	Aggregate       int
	BeforeTimestamp int64 // zero means now
	Limit           int
}

// nullableFloat decodes the API's numeric strings, which may also be null.
type nullableFloat float64

func (f *nullableFloat) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case nil:
		*f = 0
	case float64:
		*f = nullableFloat(v)
	case string:
		if v == "" {
			*f = 0
			return nil
		}
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid number %q: %w", v, err)
		}
		*f = nullableFloat(parsed)
	default:
		return fmt.Errorf("unexpected numeric value %s", string(data))
	}
	return nil
}

type searchResponse struct {
	Data []struct {
		ID         string `json:"id"`
		Attributes struct {
			Address      string        `json:"address"`
			Name         string        `json:"name"`
			FDVUSD       nullableFloat `json:"fdv_usd"`
			MarketCapUSD nullableFloat `json:"market_cap_usd"`
		} `json:"attributes"`
	} `json:"data"`
}

type ohlcvResponse struct {
	Data struct {
		Attributes struct {
			OHLCVList [][]float64 `json:"ohlcv_list"`
		} `json:"attributes"`
	} `json:"data"`
}

// Client is the GeckoTerminal API client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        zerolog.Logger
	cacheRepo  *clientdata.Repository
}

// NewClient creates a new GeckoTerminal client.
// cacheRepo is optional - if nil, pool lookups are not cached.
func NewClient(baseURL string, requestsPerMinute int, cacheRepo *clientdata.Repository, log zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if requestsPerMinute <= 0 {
		requestsPerMinute = defaultRequestsPerMinute
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter:   rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), 1),
		log:       log.With().Str("component", "geckoterminal").Logger(),
		cacheRepo: cacheRepo,
	}
}

// SearchPools returns the pools matching query on network, most relevant first.
// Results are cached; if the API fails, stale cached data is returned when available.
func (c *Client) SearchPools(ctx context.Context, query, network string) ([]Pool, error) {
	cacheKey := network + ":" + query
	if pools, ok := c.loadPools(cacheKey, false); ok {
		c.log.Debug().Str("query", query).Msg("Pool search cache hit")
		return pools, nil
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("network", network)
	params.Set("include", "base_token,quote_token")
	params.Set("page", "1")

	var resp searchResponse
	if err := c.get(ctx, "/search/pools", params, &resp); err != nil {
		if stale, ok := c.loadPools(cacheKey, true); ok {
			c.log.Warn().Err(err).Str("query", query).Msg("API failed, using stale cached pools")
			return stale, nil
		}
		return nil, err
	}

	pools := make([]Pool, 0, len(resp.Data))
	for _, item := range resp.Data {
		pools = append(pools, Pool{
			ID:           item.ID,
			Address:      item.Attributes.Address,
			Name:         item.Attributes.Name,
			FDVUSD:       float64(item.Attributes.FDVUSD),
			MarketCapUSD: float64(item.Attributes.MarketCapUSD),
		})
	}

	if c.cacheRepo != nil && len(pools) > 0 {
		if err := c.cacheRepo.Store(clientdata.TableGeckoTerminalPools, cacheKey, pools, clientdata.TTLPoolSearch); err != nil {
			c.log.Warn().Err(err).Str("query", query).Msg("Failed to cache pool search")
		}
	}

	return pools, nil
}

// FetchOHLCV returns the candles of a pool sorted by ascending timestamp.
func (c *Client) FetchOHLCV(ctx context.Context, req OHLCVRequest) ([]Candle, error) {
	if req.Aggregate <= 0 {
		req.Aggregate = 1
	}
	if req.Limit <= 0 {
		req.Limit = 1000
	}

	params := url.Values{}
	params.Set("aggregate", strconv.Itoa(req.Aggregate))
	params.Set("limit", strconv.Itoa(req.Limit))
	if req.BeforeTimestamp > 0 {
		params.Set("before_timestamp", strconv.FormatInt(req.BeforeTimestamp, 10))
	}

	path := fmt.Sprintf("/networks/%s/pools/%s/ohlcv/%s",
		url.PathEscape(req.Network), url.PathEscape(req.PoolAddress), url.PathEscape(req.Timeframe))

	var resp ohlcvResponse
	if err := c.get(ctx, path, params, &resp); err != nil {
		return nil, err
	}

	candles := make([]Candle, 0, len(resp.Data.Attributes.OHLCVList))
	for i, row := range resp.Data.Attributes.OHLCVList {
		if len(row) < 6 {
			return nil, fmt.Errorf("ohlcv row %d has %d fields, expected 6", i, len(row))
		}
		candles = append(candles, Candle{
			Timestamp: int64(row[0]),
			Open:      row[1],
			High:      row[2],
			Low:       row[3],
			Close:     row[4],
			Volume:    row[5],
		})
	}

	// The API returns newest first
	sort.Slice(candles, func(i, j int) bool {
		return candles[i].Timestamp < candles[j].Timestamp
	})

	return candles, nil
}

// get performs a rate-limited GET request and decodes the JSON body into out.
func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	c.log.Debug().Str("path", path).Msg("Making GeckoTerminal request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("GeckoTerminal API error: status %d, body: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) loadPools(key string, allowStale bool) ([]Pool, bool) {
	if c.cacheRepo == nil {
		return nil, false
	}
	var pools []Pool
	found, err := c.cacheRepo.Load(clientdata.TableGeckoTerminalPools, key, &pools, allowStale)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("Failed to read pool cache")
		return nil, false
	}
	return pools, found
}
