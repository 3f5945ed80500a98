// Package birdeye provides a client for the Birdeye token list API.
package birdeye

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/aristath/ftql/internal/clientdata"
	"github.com/rs/zerolog"
)

const defaultBaseURL = "https://public-api.birdeye.so"

// Sort keys accepted by the token list endpoint.
const (
	SortByPriceChange = "v24hChangePercent"
	SortByVolume      = "v24hUSD"
	SortByMarketCap   = "mc"
)

// Token is a token list entry.
type Token struct {
	Address  string `json:"address"`
	Decimals int    `json:"decimals"`
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
}

type tokenListResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Tokens []Token `json:"tokens"`
	} `json:"data"`
}

// Client is the Birdeye API client.
type Client struct {
	baseURL    string
	apiKey     string
	chain      string
	httpClient *http.Client
	log        zerolog.Logger
	cacheRepo  *clientdata.Repository
}

// NewClient creates a new Birdeye client for the Solana chain.
// cacheRepo is optional - if nil, caching is disabled.
func NewClient(baseURL, apiKey string, cacheRepo *clientdata.Repository, log zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		chain:   "solana",
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log:       log.With().Str("component", "birdeye").Logger(),
		cacheRepo: cacheRepo,
	}
}

// TokenList returns the token list ordered by sortBy, descending.
// If the API fails, returns stale cached data if available.
func (c *Client) TokenList(ctx context.Context, sortBy string) ([]Token, error) {
	if tokens, ok := c.load(sortBy, false); ok {
		return tokens, nil
	}

	tokens, err := c.fetch(ctx, sortBy)
	if err != nil {
		if stale, ok := c.load(sortBy, true); ok {
			c.log.Warn().Err(err).Str("sort_by", sortBy).Msg("API failed, using stale token list")
			return stale, nil
		}
		return nil, err
	}

	if c.cacheRepo != nil {
		if err := c.cacheRepo.Store(clientdata.TableBirdeyeTokenList, sortBy, tokens, clientdata.TTLTokenList); err != nil {
			c.log.Warn().Err(err).Str("sort_by", sortBy).Msg("Failed to cache token list")
		}
	}
	return tokens, nil
}

func (c *Client) fetch(ctx context.Context, sortBy string) ([]Token, error) {
	params := url.Values{}
	params.Set("sort_by", sortBy)
	params.Set("sort_type", "desc")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/public/tokenlist?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("x-chain", c.chain)
	req.Header.Set("X-API-KEY", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("Birdeye API error: status %d, body: %s", resp.StatusCode, string(body))
	}

	var payload tokenListResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	c.log.Debug().Str("sort_by", sortBy).Int("tokens", len(payload.Data.Tokens)).Msg("Fetched token list")
	return payload.Data.Tokens, nil
}

func (c *Client) load(sortBy string, allowStale bool) ([]Token, bool) {
	if c.cacheRepo == nil {
		return nil, false
	}
	var tokens []Token
	found, err := c.cacheRepo.Load(clientdata.TableBirdeyeTokenList, sortBy, &tokens, allowStale)
	if err != nil {
		c.log.Warn().Err(err).Str("sort_by", sortBy).Msg("Failed to read token list cache")
		return nil, false
	}
	return tokens, found
}
