package client

import (
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/gagliardetto/solana-go"

	"github.com/diemark/dmd/backend/internal/config"
)

const (
	// Slippage applied when the user gives none; min-out must never be zero.
	defaultSlippagePct = 0.5
	maxSlippagePct     = 50.0
	bpsDenom           = uint64(10_000)
)

// ParseSolAmount converts a user-entered SOL amount to lamports. Rejects
// anything that is not a positive finite number.
func ParseSolAmount(raw string) (uint64, error) {
	return parseDecimalAmount(raw, 9)
}

// ParseTokenAmount converts a user-entered DMD amount to base units at the
// given mint decimals.
func ParseTokenAmount(raw string, decimals uint8) (uint64, error) {
	return parseDecimalAmount(raw, int(decimals))
}

// parseDecimalAmount scales a decimal string by 10^decimals without going
// through a float, so large amounts do not lose precision.
func parseDecimalAmount(raw string, decimals int) (uint64, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, fmt.Errorf("%w: empty amount", ErrInvalidAmount)
	}
	if strings.HasPrefix(trimmed, "-") || strings.HasPrefix(trimmed, "+") {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}

	whole, frac, _ := strings.Cut(trimmed, ".")
	if whole == "" {
		whole = "0"
	}
	if len(frac) > decimals {
		return 0, fmt.Errorf("%w: %q has more than %d decimal places", ErrInvalidAmount, raw, decimals)
	}
	digits := whole + frac + strings.Repeat("0", decimals-len(frac))

	value, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	if value.Sign() <= 0 {
		return 0, fmt.Errorf("%w: amount must be positive", ErrInvalidAmount)
	}
	if !value.IsUint64() {
		return 0, fmt.Errorf("%w: %q overflows u64", ErrInvalidAmount, raw)
	}
	return value.Uint64(), nil
}

// ClampSlippagePct normalizes a user-supplied slippage percentage. Values
// outside [0, 50] are clamped, non-numeric input falls back to the default.
// Zero is allowed in, but min-out computation still floors at one base unit.
func ClampSlippagePct(pct float64) float64 {
	if math.IsNaN(pct) || math.IsInf(pct, 0) || pct < 0 {
		return defaultSlippagePct
	}
	if pct > maxSlippagePct {
		return maxSlippagePct
	}
	return pct
}

// MinOutWithSlippage computes expected × (1 − slippage), floored, never zero.
func MinOutWithSlippage(expectedOut uint64, slippagePct float64) (uint64, error) {
	if expectedOut == 0 {
		return 0, fmt.Errorf("%w: expected output is zero", ErrInvalidAmount)
	}
	bps := uint64(ClampSlippagePct(slippagePct) * 100)
	out := mulDivFloor(expectedOut, bpsDenom-bps, bpsDenom)
	if out == 0 {
		out = 1
	}
	return out, nil
}

// ExpectedDMDOut prices lamports into DMD base units at the on-chain manual
// anchor (lamports per 10k base units).
func ExpectedDMDOut(lamportsIn, manualPriceLamportsPer10k uint64) (uint64, error) {
	if manualPriceLamportsPer10k == 0 {
		return 0, fmt.Errorf("%w: manual price not set", ErrInvalidAmount)
	}
	return mulDivFloor(lamportsIn, config.ManualPriceTokenLot, manualPriceLamportsPer10k), nil
}

// ExpectedLamportsOut prices DMD base units into lamports at the manual anchor.
func ExpectedLamportsOut(dmdIn, manualPriceLamportsPer10k uint64) (uint64, error) {
	if manualPriceLamportsPer10k == 0 {
		return 0, fmt.Errorf("%w: manual price not set", ErrInvalidAmount)
	}
	return mulDivFloor(dmdIn, manualPriceLamportsPer10k, config.ManualPriceTokenLot), nil
}

func mulDivFloor(value, numerator, denominator uint64) uint64 {
	out := new(big.Int).SetUint64(value)
	out.Mul(out, new(big.Int).SetUint64(numerator))
	out.Div(out, new(big.Int).SetUint64(denominator))
	if !out.IsUint64() {
		return math.MaxUint64
	}
	return out.Uint64()
}

// FormatTokenAmount renders base units at the given decimals for display.
func FormatTokenAmount(units uint64, decimals uint8) string {
	if decimals == 0 {
		return fmt.Sprintf("%d", units)
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	value := new(big.Int).SetUint64(units)
	whole, frac := new(big.Int).QuoRem(value, scale, new(big.Int))
	fracText := strings.TrimRight(fmt.Sprintf("%0*d", decimals, frac), "0")
	if fracText == "" {
		return whole.String()
	}
	return whole.String() + "." + fracText
}

// LamportsToSol renders lamports for display only; monetary math stays u64.
func LamportsToSol(lamports uint64) float64 {
	return float64(lamports) / float64(solana.LAMPORTS_PER_SOL)
}
