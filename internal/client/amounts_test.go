package client

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseSolAmount(t *testing.T) {
	lamports, err := ParseSolAmount("1.5")
	require.NoError(t, err)
	require.Equal(t, uint64(1_500_000_000), lamports)

	lamports, err = ParseSolAmount("0.000000001")
	require.NoError(t, err)
	require.Equal(t, uint64(1), lamports)
}

func TestParseSolAmountRejectsInvalidInput(t *testing.T) {
	for _, raw := range []string{"", "0", "-1", "abc", "1e5", "NaN", "0.0000000001", "1.2.3"} {
		_, err := ParseSolAmount(raw)
		require.ErrorIs(t, err, ErrInvalidAmount, "input %q", raw)
	}
}

func TestParseTokenAmountScalesByDecimals(t *testing.T) {
	units, err := ParseTokenAmount("2500.25", 6)
	require.NoError(t, err)
	require.Equal(t, uint64(2_500_250_000), units)

	units, err = ParseTokenAmount("7", 0)
	require.NoError(t, err)
	require.Equal(t, uint64(7), units)
}

func TestClampSlippagePct(t *testing.T) {
	require.Equal(t, 1.5, ClampSlippagePct(1.5))
	require.Equal(t, 0.0, ClampSlippagePct(0))
	require.Equal(t, 50.0, ClampSlippagePct(99))
	require.Equal(t, defaultSlippagePct, ClampSlippagePct(-3))
	require.Equal(t, defaultSlippagePct, ClampSlippagePct(math.NaN()))
	require.Equal(t, defaultSlippagePct, ClampSlippagePct(math.Inf(1)))
}

func TestMinOutWithSlippageNeverZero(t *testing.T) {
	minOut, err := MinOutWithSlippage(10_000, 1)
	require.NoError(t, err)
	require.Equal(t, uint64(9_900), minOut)

	// 50% of 1 floors to 0 and must be raised to the smallest nonzero bound.
	minOut, err = MinOutWithSlippage(1, 50)
	require.NoError(t, err)
	require.Equal(t, uint64(1), minOut)

	// Zero slippage still yields a nonzero bound.
	minOut, err = MinOutWithSlippage(5, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(5), minOut)

	_, err = MinOutWithSlippage(0, 1)
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestExpectedSwapOutputs(t *testing.T) {
	// 1 SOL at 50_000_000 lamports per 10k units buys 200_000 units.
	out, err := ExpectedDMDOut(1_000_000_000, 50_000_000)
	require.NoError(t, err)
	require.Equal(t, uint64(200_000), out)

	back, err := ExpectedLamportsOut(out, 50_000_000)
	require.NoError(t, err)
	require.Equal(t, uint64(1_000_000_000), back)

	_, err = ExpectedDMDOut(1, 0)
	require.ErrorIs(t, err, ErrInvalidAmount)
	_, err = ExpectedLamportsOut(1, 0)
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestFormatTokenAmount(t *testing.T) {
	require.Equal(t, "2500.25", FormatTokenAmount(2_500_250_000, 6))
	require.Equal(t, "0.000001", FormatTokenAmount(1, 6))
	require.Equal(t, "42", FormatTokenAmount(42, 0))
	require.Equal(t, "1", FormatTokenAmount(1_000_000, 6))
}
