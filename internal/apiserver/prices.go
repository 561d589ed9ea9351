package apiserver

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	"golang.org/x/sync/errgroup"

	"github.com/diemark/dmd/backend/internal/dmd"
	"github.com/diemark/dmd/backend/internal/price"
	"github.com/diemark/dmd/backend/internal/relay"
	"github.com/diemark/dmd/backend/internal/vaultprog"
)

// priceResponse is the advisory pricing snapshot served on /api/price and
// pushed on the websocket price channel. DmdUsd is null until at least one
// candidate price could be computed.
type priceResponse struct {
	SolUsd       float64  `json:"solUsd"`
	SolUsdSource string   `json:"solUsdSource"`
	DmdPerSol    *float64 `json:"dmdPerSol"`
	DmdUsd       *float64 `json:"dmdUsd"`
	Display      string   `json:"display"`
	ManualUsd    *float64 `json:"manualUsd"`
	BackingUsd   *float64 `json:"backingUsd"`
	MarketUsd    *float64 `json:"marketUsd"`
	HolderFactor float64  `json:"holderFactor"`
	Circulating  uint64   `json:"circulating"`
	Holders      int      `json:"holders"`
	Notes        []string `json:"notes"`
	UpdatedAt    int64    `json:"updatedAt"`
}

type priceCache struct {
	mu     sync.RWMutex
	latest *priceResponse
}

func (c *priceCache) get() *priceResponse {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.latest
}

func (c *priceCache) set(resp *priceResponse) {
	c.mu.Lock()
	c.latest = resp
	c.mu.Unlock()
}

func (s *Service) priceRefreshLoop(ctx context.Context) {
	interval := s.cfg.Price.RefreshInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.refreshPrice(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refreshPrice(ctx)
		}
	}
}

// refreshPrice gathers every pricing input it can reach and recomputes the
// blend. Inputs that fail are skipped, they resolve to absent candidates
// rather than zeros.
func (s *Service) refreshPrice(ctx context.Context) {
	var (
		input      price.BlendInput
		holderRows []relay.Holder
	)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		solUsd, source, err := s.fetcher.SolUsd(groupCtx)
		if err != nil {
			s.logger.Warn("sol/usd unavailable", "err", err)
			return nil
		}
		input.SolUsd = solUsd
		input.SolUsdSource = source
		return nil
	})
	group.Go(func() error {
		resp, err := s.rpc.GetAccountInfoWithOpts(groupCtx, s.vault, &rpc.GetAccountInfoOpts{Commitment: s.cfg.Commitment})
		if err != nil || resp == nil || resp.Value == nil {
			s.logger.Warn("vault account unavailable for pricing", "err", err)
			return nil
		}
		vault, err := vaultprog.ParseVault(resp.Value.Data.GetBinary())
		if err != nil {
			s.logger.Warn("vault account parse failed", "err", err)
			return nil
		}
		input.LamportsPer10k = vault.ManualPriceLamportsPer10k
		return nil
	})
	group.Go(func() error {
		resp, err := s.rpc.GetBalance(groupCtx, s.cfg.Program.Treasury, s.cfg.Commitment)
		if err != nil {
			s.logger.Warn("treasury balance unavailable", "err", err)
			return nil
		}
		input.TreasuryLamports = resp.Value
		return nil
	})
	group.Go(func() error {
		pool, err := s.presalePoolTokens(groupCtx)
		if err != nil {
			s.logger.Warn("presale pool unavailable", "err", err)
			return nil
		}
		input.PresalePool = pool
		return nil
	})
	group.Go(func() error {
		rows, err := s.holders.TopHolders(groupCtx, s.cfg.Program.Mint, 0)
		if err != nil {
			s.logger.Debug("holder listing unavailable", "err", err)
			return nil
		}
		holderRows = rows
		return nil
	})
	if s.cfg.Price.DexPair != "" {
		group.Go(func() error {
			pair, err := s.fetcher.FetchDexPair(groupCtx, s.cfg.Price.DexPair)
			if err != nil {
				s.logger.Debug("dex pair unavailable", "err", err)
				return nil
			}
			input.MarketUsd = pair.TokenUsd
			return nil
		})
	}
	_ = group.Wait()

	input.Holders = len(holderRows)
	blend := price.ComputeBlend(s.cfg.Price, input)

	resp := &priceResponse{
		SolUsd:       blend.SolUsd,
		SolUsdSource: input.SolUsdSource,
		DmdUsd:       blend.FinalUsd,
		Display:      price.RenderUSD(blend.FinalUsd),
		ManualUsd:    blend.ManualUsd,
		BackingUsd:   blend.BackingUsd,
		MarketUsd:    blend.MarketUsd,
		HolderFactor: blend.HolderFactor,
		Circulating:  blend.Circulating,
		Holders:      input.Holders,
		Notes:        blend.Notes,
		UpdatedAt:    time.Now().UnixMilli(),
	}
	if blend.FinalUsd != nil && *blend.FinalUsd > 0 && blend.SolUsd > 0 {
		perSol := blend.SolUsd / *blend.FinalUsd
		resp.DmdPerSol = &perSol
	}
	s.priceCache.set(resp)
}

// presalePoolTokens reads the vault's token account balance, scaled to
// whole tokens with the decimals the RPC node reports.
func (s *Service) presalePoolTokens(ctx context.Context) (uint64, error) {
	ata, err := dmd.AssociatedTokenAddress(s.vault, s.cfg.Program.Mint)
	if err != nil {
		return 0, err
	}
	resp, err := s.rpc.GetTokenAccountBalance(ctx, ata, s.cfg.Commitment)
	if err != nil {
		return 0, err
	}
	if resp == nil || resp.Value == nil {
		return 0, nil
	}
	if resp.Value.UiAmount != nil {
		return uint64(math.Floor(*resp.Value.UiAmount)), nil
	}
	return 0, nil
}

func (s *Service) deviationWatchLoop(ctx context.Context) {
	if !s.notifier.Enabled() || s.cfg.Telegram.DeviationPct <= 0 {
		return
	}
	interval := s.cfg.Telegram.WatchInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var alerted bool
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snapshot := s.priceCache.get()
			if snapshot == nil || snapshot.DmdUsd == nil || snapshot.MarketUsd == nil {
				continue
			}
			pct := relay.DeviationPct(*snapshot.DmdUsd, *snapshot.MarketUsd)
			if pct < s.cfg.Telegram.DeviationPct {
				alerted = false
				continue
			}
			if alerted {
				continue
			}
			alerted = true
			s.logger.Warn("price deviation above threshold", "pct", pct)
			s.notifier.Send(ctx, relay.DeviationAlert(*snapshot.DmdUsd, *snapshot.MarketUsd, pct))
		}
	}
}
