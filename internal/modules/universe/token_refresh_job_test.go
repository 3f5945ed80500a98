package universe

import (
	"path/filepath"
	"testing"

	"github.com/aristath/ftql/internal/clients/birdeye"
	"github.com/aristath/ftql/internal/events"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRefreshJob_Run(t *testing.T) {
	lister := &fakeLister{lists: map[string][]birdeye.Token{
		birdeye.SortByVolume: {{Address: "bonk", Symbol: "BONK", Decimals: 5}},
	}}
	registry := NewTokenRegistry(lister, filepath.Join(t.TempDir(), "tokens.json"), zerolog.Nop())

	bus := events.NewBus(zerolog.Nop())
	var received []*events.Event
	bus.Subscribe(func(e *events.Event) { received = append(received, e) }, events.TokensRefreshed)

	job := NewTokenRefreshJob(registry, Source{Inline: []string{"BONK", "WIF", "USDC"}, Exclude: []string{"USDC"}}, bus)
	assert.Equal(t, "token_registry_refresh", job.Name())
	require.NoError(t, job.Run())

	require.Len(t, received, 1)
	data := received[0].Data.(*events.TokensRefreshedData)
	assert.Equal(t, 1, data.Tokens)
	assert.Equal(t, []string{"WIF", "USDC"}, data.Missing)

	tokens, err := registry.Load()
	require.NoError(t, err)
	assert.Len(t, tokens, 1)
}

func TestTokenRefreshJob_MissingWhitelist(t *testing.T) {
	registry := NewTokenRegistry(&fakeLister{}, filepath.Join(t.TempDir(), "tokens.json"), zerolog.Nop())
	job := NewTokenRefreshJob(registry, Source{Path: filepath.Join(t.TempDir(), "none.json")}, nil)
	assert.Error(t, job.Run())
}
