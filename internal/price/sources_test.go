package price

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/diemark/dmd/backend/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fetcherConfig() config.PriceConfig {
	return config.PriceConfig{
		SourceTimeout: 2 * time.Second,
		CacheTTL:      20 * time.Second,
	}
}

func parseUSD(data []byte) (float64, error) {
	var payload struct {
		USD float64 `json:"USD"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return 0, err
	}
	return payload.USD, nil
}

func serverSource(t *testing.T, name string, handler http.HandlerFunc) solUsdSource {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return solUsdSource{
		name:    name,
		enabled: func(config.PriceConfig) bool { return true },
		url:     func(config.PriceConfig) string { return server.URL },
		parse:   parseUSD,
	}
}

func staticSource(t *testing.T, name, body string) solUsdSource {
	return serverSource(t, name, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(body))
	})
}

func TestSolUsdFirstPlausibleWins(t *testing.T) {
	f := NewFetcher(fetcherConfig(), testLogger())
	f.sources = []solUsdSource{staticSource(t, "good", `{"USD": 150.25}`)}

	value, source, err := f.SolUsd(context.Background())
	require.NoError(t, err)
	require.Equal(t, 150.25, value)
	require.Equal(t, "good", source)
}

func TestSolUsdSkipsImplausibleValues(t *testing.T) {
	f := NewFetcher(fetcherConfig(), testLogger())
	f.sources = []solUsdSource{
		staticSource(t, "too-low", `{"USD": 0.01}`),
		staticSource(t, "too-high", `{"USD": 99999}`),
		staticSource(t, "sane", `{"USD": 142.5}`),
	}

	value, source, err := f.SolUsd(context.Background())
	require.NoError(t, err)
	require.Equal(t, 142.5, value)
	require.Equal(t, "sane", source)
}

func TestSolUsdAllSourcesExhausted(t *testing.T) {
	f := NewFetcher(fetcherConfig(), testLogger())
	f.sources = []solUsdSource{staticSource(t, "bad", `{"USD": 0}`)}

	_, _, err := f.SolUsd(context.Background())
	require.ErrorIs(t, err, ErrAllSourcesExhausted)
}

func TestSolUsdDevFallbackAfterAllFail(t *testing.T) {
	cfg := fetcherConfig()
	cfg.DevSolUsd = 123.4
	f := NewFetcher(cfg, testLogger())
	f.sources = []solUsdSource{staticSource(t, "bad", `not json`)}

	value, source, err := f.SolUsd(context.Background())
	require.NoError(t, err)
	require.Equal(t, 123.4, value)
	require.Equal(t, "dev-fallback", source)
}

func TestSolUsdServesFreshCacheWithoutRefetch(t *testing.T) {
	var hits atomic.Int64
	f := NewFetcher(fetcherConfig(), testLogger())
	f.sources = []solUsdSource{serverSource(t, "counted", func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"USD": 150}`))
	})}

	for i := 0; i < 5; i++ {
		value, _, err := f.SolUsd(context.Background())
		require.NoError(t, err)
		require.Equal(t, 150.0, value)
	}
	require.Equal(t, int64(1), hits.Load())
}

func TestSolUsdUsesLastKnownGoodWhenSourcesDropOut(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	cfg := fetcherConfig()
	f := NewFetcher(cfg, testLogger())
	f.sources = []solUsdSource{serverSource(t, "flaky", func(w http.ResponseWriter, _ *http.Request) {
		if healthy.Load() {
			_, _ = w.Write([]byte(`{"USD": 150}`))
			return
		}
		w.WriteHeader(http.StatusBadGateway)
	})}

	_, _, err := f.SolUsd(context.Background())
	require.NoError(t, err)

	// Expire the anti-spam window but stay within the staleness bound.
	f.mu.Lock()
	f.cachedAt = time.Now().Add(-cfg.CacheTTL / 2)
	f.mu.Unlock()
	healthy.Store(false)

	value, source, err := f.SolUsd(context.Background())
	require.NoError(t, err)
	require.Equal(t, 150.0, value)
	require.Contains(t, source, "cached")

	// Beyond the staleness bound the cached value is no longer served.
	f.mu.Lock()
	f.cachedAt = time.Now().Add(-2 * cfg.CacheTTL)
	f.mu.Unlock()
	_, _, err = f.SolUsd(context.Background())
	require.ErrorIs(t, err, ErrAllSourcesExhausted)
}

func TestProviderParsers(t *testing.T) {
	byName := map[string]solUsdSource{}
	for _, src := range solUsdSources {
		byName[src.name] = src
	}

	v, err := byName["cryptocompare"].parse([]byte(`{"USD": 151.2}`))
	require.NoError(t, err)
	require.Equal(t, 151.2, v)

	v, err = byName["jupiter-v6"].parse([]byte(`{"data":{"SOL":{"price":149.9}}}`))
	require.NoError(t, err)
	require.Equal(t, 149.9, v)

	v, err = byName["pyth-hermes"].parse([]byte(`{"parsed":[{"price":{"price":"15012345678","expo":-8}}]}`))
	require.NoError(t, err)
	require.InDelta(t, 150.12345678, v, 1e-9)

	v, err = byName["coingecko"].parse([]byte(`{"solana":{"usd":148.7}}`))
	require.NoError(t, err)
	require.Equal(t, 148.7, v)
}

func TestSourceGates(t *testing.T) {
	byName := map[string]solUsdSource{}
	for _, src := range solUsdSources {
		byName[src.name] = src
	}
	require.False(t, byName["pyth-hermes"].enabled(config.PriceConfig{}))
	require.True(t, byName["pyth-hermes"].enabled(config.PriceConfig{PythFeedID: "abc"}))
	require.False(t, byName["coingecko"].enabled(config.PriceConfig{}))
	require.True(t, byName["coingecko"].enabled(config.PriceConfig{AllowCoinGecko: true}))
}
