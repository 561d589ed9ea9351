package price

import (
	"fmt"
	"math"

	"github.com/gagliardetto/solana-go"

	"github.com/diemark/dmd/backend/internal/config"
)

// BlendInput carries the on-chain and market observations for one pricing
// cycle. Pointer-free zero values mean "absent": a zero LamportsPer10k or
// SolUsd simply skips that candidate and records a note.
type BlendInput struct {
	SolUsd           float64
	SolUsdSource     string
	LamportsPer10k   uint64
	TreasuryLamports uint64
	PresalePool      uint64
	Holders          int
	MarketUsd        float64
}

// Blend is the advisory pricing result. Nil pointers mean the value could
// not be computed this cycle; render them as "…", never as zero.
type Blend struct {
	SolUsd          float64
	ManualUsd       *float64
	BackingUsd      *float64
	WeightedBacking *float64
	MarketUsd       *float64
	FinalUsd        *float64
	HolderFactor    float64
	Circulating     uint64
	Notes           []string
}

// ComputeBlend reconciles floor, manual anchor, treasury backing and market
// price into one advisory figure: max of the present candidates, scaled by
// the holder factor.
func ComputeBlend(cfg config.PriceConfig, in BlendInput) Blend {
	out := Blend{SolUsd: in.SolUsd}

	out.HolderFactor = holderFactor(in.Holders)
	if in.Holders > 0 {
		out.Notes = append(out.Notes, fmt.Sprintf("holders=%d factor=%.4f", in.Holders, out.HolderFactor))
	}

	if in.LamportsPer10k > 0 && in.SolUsd > 0 {
		solPer10k := float64(in.LamportsPer10k) / float64(solana.LAMPORTS_PER_SOL)
		manual := solPer10k * in.SolUsd / float64(config.ManualPriceTokenLot)
		out.ManualUsd = &manual
		out.Notes = append(out.Notes, fmt.Sprintf("manual=%.8f (sol_usd=%.2f via %s)", manual, in.SolUsd, in.SolUsdSource))
	} else {
		out.Notes = append(out.Notes, "manual price not computed")
	}

	out.Circulating = circulatingSupply(cfg, in.PresalePool)
	out.Notes = append(out.Notes, fmt.Sprintf("circulating=%d", out.Circulating))

	if in.TreasuryLamports > 0 && in.SolUsd > 0 {
		treasuryUsd := float64(in.TreasuryLamports) / float64(solana.LAMPORTS_PER_SOL) * in.SolUsd
		backing := treasuryUsd / float64(out.Circulating)
		weighted := backing * cfg.TreasuryWeight
		out.BackingUsd = &backing
		out.WeightedBacking = &weighted
		out.Notes = append(out.Notes, fmt.Sprintf("backing=%.10f weight=%.2f weighted=%.10f", backing, cfg.TreasuryWeight, weighted))
	} else {
		out.Notes = append(out.Notes, "backing not computed")
	}

	if plausibleTokenUsd(in.MarketUsd) {
		market := in.MarketUsd
		out.MarketUsd = &market
		out.Notes = append(out.Notes, fmt.Sprintf("market=%.8f", market))
	}

	candidates := make([]float64, 0, 4)
	if cfg.FloorUsd > 0 {
		candidates = append(candidates, cfg.FloorUsd)
	}
	if out.ManualUsd != nil {
		candidates = append(candidates, *out.ManualUsd)
	}
	if out.WeightedBacking != nil {
		candidates = append(candidates, *out.WeightedBacking)
	}
	if out.MarketUsd != nil {
		candidates = append(candidates, *out.MarketUsd)
	}

	if len(candidates) == 0 {
		out.Notes = append(out.Notes, "no final price, all candidates absent")
		return out
	}

	base := candidates[0]
	for _, c := range candidates[1:] {
		if c > base {
			base = c
		}
	}
	final := base * out.HolderFactor
	out.FinalUsd = &final
	out.Notes = append(out.Notes, fmt.Sprintf("final=%.8f (base=%.8f)", final, base))
	return out
}

// holderFactor rewards a broader holder base: 0.98 + 0.02·log10(holders+1),
// clamped to [0.98, 1.08].
func holderFactor(holders int) float64 {
	if holders < 0 {
		holders = 0
	}
	raw := 0.98 + 0.02*math.Log10(float64(holders)+1)
	return math.Max(0.98, math.Min(1.08, raw))
}

func circulatingSupply(cfg config.PriceConfig, presalePool uint64) uint64 {
	if cfg.CirculatingOverride > 0 {
		return cfg.CirculatingOverride
	}
	if presalePool >= cfg.MaxSupply {
		return 1
	}
	circulating := cfg.MaxSupply - presalePool
	if circulating == 0 {
		return 1
	}
	return circulating
}

// RenderUSD formats a possibly-absent USD value for display. Absent is the
// literal ellipsis, never $0.00.
func RenderUSD(v *float64) string {
	if v == nil {
		return "…"
	}
	return fmt.Sprintf("$%.8f", *v)
}
