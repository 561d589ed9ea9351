// Package price resolves a SOL/USD spot rate from independent public
// sources and blends it with on-chain vault data into one advisory
// USD-per-DMD figure. The figure is display-only, the program enforces all
// real monetary invariants on-chain.
package price

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/diemark/dmd/backend/internal/config"
)

// Plausibility window for a SOL/USD quote. Anything outside is treated as a
// failed source, not a price.
const (
	minPlausibleSolUsd = 0.5
	maxPlausibleSolUsd = 10_000
)

func plausibleSolUsd(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > minPlausibleSolUsd && v < maxPlausibleSolUsd
}

func plausibleTokenUsd(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0 && v < maxPlausibleSolUsd
}

// solUsdSource describes one provider declaratively. Adding or reordering a
// provider is a data change.
type solUsdSource struct {
	name    string
	enabled func(cfg config.PriceConfig) bool
	url     func(cfg config.PriceConfig) string
	parse   func(body []byte) (float64, error)
}

var solUsdSources = []solUsdSource{
	{
		name:    "cryptocompare",
		enabled: func(config.PriceConfig) bool { return true },
		url: func(config.PriceConfig) string {
			return "https://min-api.cryptocompare.com/data/price?fsym=SOL&tsyms=USD"
		},
		parse: func(body []byte) (float64, error) {
			var payload struct {
				USD float64 `json:"USD"`
			}
			if err := json.Unmarshal(body, &payload); err != nil {
				return 0, err
			}
			return payload.USD, nil
		},
	},
	{
		name:    "jupiter-v6",
		enabled: func(config.PriceConfig) bool { return true },
		url: func(config.PriceConfig) string {
			return "https://price.jup.ag/v6/price?ids=SOL"
		},
		parse: parseJupiterPrice,
	},
	{
		name:    "jupiter-v4",
		enabled: func(config.PriceConfig) bool { return true },
		url: func(config.PriceConfig) string {
			return "https://price.jup.ag/v4/price?ids=SOL"
		},
		parse: parseJupiterPrice,
	},
	{
		name:    "pyth-hermes",
		enabled: func(cfg config.PriceConfig) bool { return cfg.PythFeedID != "" },
		url: func(cfg config.PriceConfig) string {
			return "https://hermes.pyth.network/v2/updates/price/latest?ids[]=" + url.QueryEscape(cfg.PythFeedID)
		},
		parse: func(body []byte) (float64, error) {
			// Hermes serializes the integer price as a string.
			var payload struct {
				Parsed []struct {
					Price struct {
						Price string `json:"price"`
						Expo  int32  `json:"expo"`
					} `json:"price"`
				} `json:"parsed"`
			}
			if err := json.Unmarshal(body, &payload); err != nil {
				return 0, err
			}
			if len(payload.Parsed) == 0 {
				return 0, fmt.Errorf("no parsed price updates")
			}
			raw, err := strconv.ParseFloat(payload.Parsed[0].Price.Price, 64)
			if err != nil {
				return 0, err
			}
			return raw * math.Pow10(int(payload.Parsed[0].Price.Expo)), nil
		},
	},
	{
		name:    "coingecko",
		enabled: func(cfg config.PriceConfig) bool { return cfg.AllowCoinGecko },
		url: func(config.PriceConfig) string {
			return "https://api.coingecko.com/api/v3/simple/price?ids=solana&vs_currencies=usd"
		},
		parse: func(body []byte) (float64, error) {
			var payload struct {
				Solana struct {
					USD float64 `json:"usd"`
				} `json:"solana"`
			}
			if err := json.Unmarshal(body, &payload); err != nil {
				return 0, err
			}
			return payload.Solana.USD, nil
		},
	},
}

func parseJupiterPrice(body []byte) (float64, error) {
	var payload struct {
		Data struct {
			SOL struct {
				Price float64 `json:"price"`
			} `json:"SOL"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0, err
	}
	return payload.Data.SOL.Price, nil
}

// Fetcher races the enabled sources and caches the last plausible answer.
// The cache has two horizons: freshFor is the anti-spam window where the
// cached value is served without touching the network, CacheTTL is the
// staleness bound up to which a cached value may still backstop a round
// where every source failed.
type Fetcher struct {
	cfg      config.PriceConfig
	client   *http.Client
	logger   *slog.Logger
	sources  []solUsdSource
	freshFor time.Duration

	mu        sync.Mutex
	cached    float64
	cachedSrc string
	cachedAt  time.Time
	inFlight  bool
	waiters   []chan solUsdResult
}

type solUsdResult struct {
	value  float64
	source string
	err    error
}

func NewFetcher(cfg config.PriceConfig, logger *slog.Logger) *Fetcher {
	return &Fetcher{
		cfg:      cfg,
		client:   &http.Client{Timeout: cfg.SourceTimeout},
		logger:   logger,
		sources:  solUsdSources,
		freshFor: cfg.CacheTTL / 4,
	}
}

// SolUsd returns the current SOL/USD rate and the source that supplied it.
// Concurrent callers share one in-flight round; a freshly fetched value
// short circuits the network entirely, and a value older than that but
// within the staleness bound still backstops a round where every source
// failed. When the sources fail and the cache is stale the caller gets
// ErrAllSourcesExhausted, never a zero price.
func (f *Fetcher) SolUsd(ctx context.Context) (float64, string, error) {
	f.mu.Lock()
	if f.cachedAt != (time.Time{}) && time.Since(f.cachedAt) < f.freshFor && plausibleSolUsd(f.cached) {
		value, source := f.cached, f.cachedSrc
		f.mu.Unlock()
		return value, source, nil
	}
	if f.inFlight {
		waiter := make(chan solUsdResult, 1)
		f.waiters = append(f.waiters, waiter)
		f.mu.Unlock()
		select {
		case <-ctx.Done():
			return 0, "", ctx.Err()
		case res := <-waiter:
			return res.value, res.source, res.err
		}
	}
	f.inFlight = true
	f.mu.Unlock()

	value, source, err := f.race(ctx)

	f.mu.Lock()
	f.inFlight = false
	if err == nil {
		f.cached = value
		f.cachedSrc = source
		f.cachedAt = time.Now()
	} else if f.cachedAt != (time.Time{}) && time.Since(f.cachedAt) < f.cfg.CacheTTL && plausibleSolUsd(f.cached) {
		value, source, err = f.cached, f.cachedSrc+" (cached)", nil
	}
	waiters := f.waiters
	f.waiters = nil
	f.mu.Unlock()

	for _, waiter := range waiters {
		waiter <- solUsdResult{value: value, source: source, err: err}
	}
	return value, source, err
}

// race launches every enabled source concurrently; the first plausible value
// wins and cancels the rest. The static dev fallback is consulted only after
// every network source has failed.
func (f *Fetcher) race(ctx context.Context) (float64, string, error) {
	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	enabled := make([]solUsdSource, 0, len(f.sources))
	for _, src := range f.sources {
		if src.enabled(f.cfg) {
			enabled = append(enabled, src)
		}
	}

	results := make(chan solUsdResult, len(enabled))
	for _, src := range enabled {
		src := src
		go func() {
			value, err := f.fetchOne(raceCtx, src)
			results <- solUsdResult{value: value, source: src.name, err: err}
		}()
	}

	for pending := len(enabled); pending > 0; pending-- {
		select {
		case <-ctx.Done():
			return 0, "", ctx.Err()
		case res := <-results:
			if res.err != nil {
				f.logger.Debug("price source miss", "source", res.source, "err", res.err)
				continue
			}
			return res.value, res.source, nil
		}
	}

	if f.cfg.DevSolUsd > 0 && plausibleSolUsd(f.cfg.DevSolUsd) {
		f.logger.Warn("all price sources failed, using dev fallback", "sol_usd", f.cfg.DevSolUsd)
		return f.cfg.DevSolUsd, "dev-fallback", nil
	}
	return 0, "", ErrAllSourcesExhausted
}

func (f *Fetcher) fetchOne(ctx context.Context, src solUsdSource) (float64, error) {
	reqCtx, cancel := context.WithTimeout(ctx, f.cfg.SourceTimeout)
	defer cancel()

	body, err := f.getJSON(reqCtx, src.url(f.cfg))
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, src.name, err)
	}
	value, err := src.parse(body)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: parse: %v", ErrSourceUnavailable, src.name, err)
	}
	if !plausibleSolUsd(value) {
		return 0, fmt.Errorf("%w: %s: implausible value %v", ErrSourceUnavailable, src.name, value)
	}
	return value, nil
}

func (f *Fetcher) getJSON(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 1<<20))
}

// PairPrice is a per-token market quote from the configured DEX pair.
type PairPrice struct {
	TokenUsd    float64
	TokenPerSol float64
}

// FetchDexPair returns the market quote for the configured Dexscreener pair,
// or nil values for fields that fail the token plausibility check.
func (f *Fetcher) FetchDexPair(ctx context.Context, pair string) (*PairPrice, error) {
	reqCtx, cancel := context.WithTimeout(ctx, f.cfg.SourceTimeout)
	defer cancel()

	body, err := f.getJSON(reqCtx, "https://api.dexscreener.com/latest/dex/pairs/solana/"+url.PathEscape(pair))
	if err != nil {
		return nil, fmt.Errorf("%w: dexscreener: %v", ErrSourceUnavailable, err)
	}

	// Dexscreener serializes both prices as strings.
	var payload struct {
		Pairs []struct {
			PriceUsd    string `json:"priceUsd"`
			PriceNative string `json:"priceNative"`
		} `json:"pairs"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: dexscreener: parse: %v", ErrSourceUnavailable, err)
	}
	if len(payload.Pairs) == 0 {
		return nil, fmt.Errorf("%w: dexscreener: pair %s not listed", ErrSourceUnavailable, pair)
	}

	out := &PairPrice{}
	if v, err := strconv.ParseFloat(payload.Pairs[0].PriceUsd, 64); err == nil && plausibleTokenUsd(v) {
		out.TokenUsd = v
	}
	if v, err := strconv.ParseFloat(payload.Pairs[0].PriceNative, 64); err == nil && plausibleTokenUsd(v) {
		out.TokenPerSol = v
	}
	return out, nil
}
