package universe

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/aristath/ftql/internal/clients/birdeye"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLister struct {
	lists map[string][]birdeye.Token
	err   error
	calls []string
}

func (f *fakeLister) TokenList(_ context.Context, sortBy string) ([]birdeye.Token, error) {
	f.calls = append(f.calls, sortBy)
	if f.err != nil {
		return nil, f.err
	}
	return f.lists[sortBy], nil
}

func readRegistry(t *testing.T, path string) []Token {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var tokens []Token
	require.NoError(t, json.Unmarshal(data, &tokens))
	return tokens
}

func TestMergeTokens(t *testing.T) {
	existing := []Token{
		{Address: "old-bonk", Symbol: "BONK", Decimals: 5},
		{Address: "hand-wif", Symbol: "WIF", Decimals: 6, Manual: true},
	}
	fetched := []Token{
		{Address: "new-bonk", Symbol: "BONK", Decimals: 5},
		{Address: "api-wif", Symbol: "WIF", Decimals: 6},
		{Address: "jup", Symbol: "JUP", Decimals: 6},
	}

	merged, report := MergeTokens(existing, fetched)

	require.Len(t, merged, 3)
	assert.Equal(t, "hand-wif", merged[0].Address)
	assert.True(t, merged[0].Manual)
	assert.Equal(t, "new-bonk", merged[1].Address)
	assert.Equal(t, "jup", merged[2].Address)

	assert.Equal(t, 3, report.Tokens)
	assert.Equal(t, []string{"JUP"}, report.Added)
	assert.Equal(t, []string{"BONK"}, report.Updated)
}

func TestMergeTokens_ManualFirstIsStable(t *testing.T) {
	existing := []Token{
		{Symbol: "A"},
		{Symbol: "B", Manual: true},
		{Symbol: "C"},
		{Symbol: "D", Manual: true},
	}

	merged, _ := MergeTokens(existing, nil)

	symbols := make([]string, len(merged))
	for i, t := range merged {
		symbols[i] = t.Symbol
	}
	assert.Equal(t, []string{"B", "D", "A", "C"}, symbols)
}

func TestMissingSymbols(t *testing.T) {
	tokens := []Token{{Symbol: "Bonk"}, {Symbol: "WIF"}}
	assert.Equal(t, []string{"JUP"}, MissingSymbols(tokens, []string{"BONK", "WIF", "JUP"}))
	assert.Empty(t, MissingSymbols(tokens, []string{"BONK"}))
}

func TestTokenRegistry_Refresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")
	manual := []Token{{Address: "hand-wif", Symbol: "WIF", Decimals: 6, Manual: true}}
	data, err := json.Marshal(manual)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))

	lister := &fakeLister{lists: map[string][]birdeye.Token{
		birdeye.SortByPriceChange: {
			{Address: "bonk", Symbol: "Bonk", Decimals: 5, Name: "Bonk"},
			{Address: "scam", Symbol: "SCAM", Decimals: 9},
		},
		birdeye.SortByVolume: {
			{Address: "api-wif", Symbol: "WIF", Decimals: 6},
			{Address: "nosymbol", Symbol: ""},
		},
		birdeye.SortByMarketCap: {
			{Address: "bonk-2", Symbol: "Bonk", Decimals: 5, Name: "Bonk"},
		},
	}}

	registry := NewTokenRegistry(lister, path, zerolog.Nop())
	report, err := registry.Refresh(context.Background(), []string{"BONK", "WIF", "JUP"})
	require.NoError(t, err)

	assert.Equal(t, TokenListSortKeys, lister.calls)
	assert.Equal(t, 2, report.Tokens)
	assert.Equal(t, []string{"Bonk"}, report.Added)
	assert.Empty(t, report.Updated)
	assert.Equal(t, []string{"JUP"}, report.Missing)

	tokens := readRegistry(t, path)
	require.Len(t, tokens, 2)
	assert.Equal(t, Token{Address: "hand-wif", Symbol: "WIF", Decimals: 6, Manual: true}, tokens[0])
	assert.Equal(t, Token{Address: "bonk-2", Symbol: "Bonk", Decimals: 5, Name: "Bonk"}, tokens[1])

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "\n  {")
}

func TestTokenRegistry_RefreshCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "tokens.json")
	lister := &fakeLister{lists: map[string][]birdeye.Token{}}

	report, err := NewTokenRegistry(lister, path, zerolog.Nop()).Refresh(context.Background(), []string{"BONK"})
	require.NoError(t, err)
	assert.Equal(t, []string{"BONK"}, report.Missing)
	assert.Empty(t, readRegistry(t, path))
}

func TestTokenRegistry_RefreshListerError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")
	lister := &fakeLister{err: errors.New("boom")}

	_, err := NewTokenRegistry(lister, path, zerolog.Nop()).Refresh(context.Background(), []string{"BONK"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), birdeye.SortByPriceChange)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestTokenRegistry_LoadRejectsCorruptFile(t *testing.T) {
	path := writeFile(t, "tokens.json", "not json")
	_, err := NewTokenRegistry(&fakeLister{}, path, zerolog.Nop()).Load()
	assert.Error(t, err)
}
