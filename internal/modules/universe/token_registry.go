package universe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aristath/ftql/internal/clients/birdeye"
	"github.com/rs/zerolog"
)

// TokenListSortKeys are the rankings merged into the registry, in order.
var TokenListSortKeys = []string{
	birdeye.SortByPriceChange,
	birdeye.SortByVolume,
	birdeye.SortByMarketCap,
}

// TokenLister returns a ranked token list.
type TokenLister interface {
	TokenList(ctx context.Context, sortBy string) ([]birdeye.Token, error)
}

// Token is a tokens.json entry. Manual entries are maintained by hand and are
// never overwritten by a refresh.
type Token struct {
	Address  string `json:"address"`
	Decimals int    `json:"decimals"`
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Manual   bool   `json:"manual"`
}

// RegistryReport summarises a registry refresh.
type RegistryReport struct {
	Tokens  int      `json:"tokens"`
	Added   []string `json:"added"`
	Updated []string `json:"updated"`
	Missing []string `json:"missing"` // Whitelisted symbols still absent from the registry
}

// TokenRegistry maintains tokens.json.
type TokenRegistry struct {
	lister TokenLister
	path   string
	log    zerolog.Logger
}

// NewTokenRegistry creates a registry persisted at path.
func NewTokenRegistry(lister TokenLister, path string, log zerolog.Logger) *TokenRegistry {
	return &TokenRegistry{
		lister: lister,
		path:   path,
		log:    log.With().Str("service", "token_registry").Logger(),
	}
}

// Load reads the registry. A missing file is an empty registry.
func (r *TokenRegistry) Load() ([]Token, error) {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token registry: %w", err)
	}

	var tokens []Token
	if err := json.Unmarshal(data, &tokens); err != nil {
		return nil, fmt.Errorf("failed to parse token registry %s: %w", r.path, err)
	}
	return tokens, nil
}

// Refresh pulls every ranking, keeps the whitelisted tokens and merges them into
// the registry file.
func (r *TokenRegistry) Refresh(ctx context.Context, whitelist []string) (*RegistryReport, error) {
	allowed := make(map[string]bool, len(whitelist))
	for _, s := range whitelist {
		allowed[strings.ToUpper(s)] = true
	}

	var fetched []Token
	for _, sortBy := range TokenListSortKeys {
		tokens, err := r.lister.TokenList(ctx, sortBy)
		if err != nil {
			return nil, fmt.Errorf("token list %s: %w", sortBy, err)
		}
		for _, t := range tokens {
			if t.Symbol == "" || !allowed[strings.ToUpper(t.Symbol)] {
				continue
			}
			fetched = append(fetched, Token{
				Address:  t.Address,
				Decimals: t.Decimals,
				Name:     t.Name,
				Symbol:   t.Symbol,
			})
		}
	}

	existing, err := r.Load()
	if err != nil {
		return nil, err
	}

	merged, report := MergeTokens(existing, fetched)
	report.Missing = MissingSymbols(merged, whitelist)

	if err := r.save(merged); err != nil {
		return nil, err
	}

	if len(report.Missing) > 0 {
		r.log.Warn().
			Strs("missing", report.Missing).
			Msg("Whitelisted symbols missing from the token registry; add them by hand with manual=true")
	}
	r.log.Info().
		Int("tokens", report.Tokens).
		Int("added", len(report.Added)).
		Int("updated", len(report.Updated)).
		Msg("Token registry updated")

	return report, nil
}

// MergeTokens folds fetched tokens into existing ones by exact symbol: manual
// entries are kept, other matches replaced and unknown symbols appended. The
// result lists manual entries first, otherwise keeping order.
func MergeTokens(existing, fetched []Token) ([]Token, *RegistryReport) {
	merged := append([]Token(nil), existing...)
	index := make(map[string]int, len(merged))
	for i, t := range merged {
		if _, ok := index[t.Symbol]; !ok {
			index[t.Symbol] = i
		}
	}

	report := &RegistryReport{Added: []string{}, Updated: []string{}}
	updated := make(map[string]bool)
	for _, t := range fetched {
		i, ok := index[t.Symbol]
		if !ok {
			index[t.Symbol] = len(merged)
			merged = append(merged, t)
			report.Added = append(report.Added, t.Symbol)
			continue
		}
		if merged[i].Manual {
			continue
		}
		merged[i] = t
		if !updated[t.Symbol] && !contains(report.Added, t.Symbol) {
			updated[t.Symbol] = true
			report.Updated = append(report.Updated, t.Symbol)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Manual && !merged[j].Manual
	})
	report.Tokens = len(merged)
	return merged, report
}

// MissingSymbols lists whitelisted symbols with no registry entry.
func MissingSymbols(tokens []Token, whitelist []string) []string {
	present := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		present[strings.ToUpper(t.Symbol)] = true
	}

	missing := []string{}
	for _, s := range whitelist {
		if !present[strings.ToUpper(s)] {
			missing = append(missing, s)
		}
	}
	return missing
}

func (r *TokenRegistry) save(tokens []Token) error {
	if tokens == nil {
		tokens = []Token{}
	}
	data, err := json.MarshalIndent(tokens, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode token registry: %w", err)
	}
	if dir := filepath.Dir(r.path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create token registry directory: %w", err)
		}
	}

	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write token registry: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("failed to replace token registry: %w", err)
	}
	return nil
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
