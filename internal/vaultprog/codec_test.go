package vaultprog

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeBuyDMDInstructionData(t *testing.T) {
	data, err := EncodeInstructionData("buy_dmd", map[string]any{
		"sol_contribution": uint64(1_500_000_000),
	})
	require.NoError(t, err)

	// sha256("global:buy_dmd")[:8]
	require.Equal(t, []byte{118, 112, 238, 202, 214, 39, 149, 203}, data[:8])
	require.Len(t, data, 16)
	require.Equal(t, uint64(1_500_000_000), binary.LittleEndian.Uint64(data[8:16]))
}

func TestEncodeSwapArgsOrderedBySchema(t *testing.T) {
	data, err := EncodeInstructionData("swap_exact_sol_for_dmd", map[string]any{
		"min_out_dmd":        uint64(9_500),
		"amount_in_lamports": uint64(1_000_000),
	})
	require.NoError(t, err)

	// amount_in_lamports precedes min_out_dmd regardless of map iteration.
	require.Equal(t, []byte{64, 104, 47, 179, 12, 0, 23, 147}, data[:8])
	require.Equal(t, uint64(1_000_000), binary.LittleEndian.Uint64(data[8:16]))
	require.Equal(t, uint64(9_500), binary.LittleEndian.Uint64(data[16:24]))
}

func TestEncodeBoolArg(t *testing.T) {
	data, err := EncodeInstructionData("toggle_public_sale", map[string]any{"active": true})
	require.NoError(t, err)
	require.Len(t, data, 9)
	require.Equal(t, byte(1), data[8])
}

func TestEncodeNoArgOperations(t *testing.T) {
	for _, op := range []string{"auto_whitelist_self", "claim_reward_v2"} {
		data, err := EncodeInstructionData(op, nil)
		require.NoError(t, err)
		require.Len(t, data, 8)
	}
}

func TestDecodeRoundTripsEveryOperation(t *testing.T) {
	cases := map[string]map[string]any{
		"buy_dmd":                {"sol_contribution": uint64(1_500_000_000)},
		"swap_exact_sol_for_dmd": {"amount_in_lamports": uint64(1_000_000), "min_out_dmd": uint64(9_500)},
		"toggle_public_sale":     {"active": true},
		"whitelist_add":          {"status": false},
		"set_manual_price":       {"lamports_per_10k": uint64(50_000_000)},
		"claim_reward_v2":        {},
	}
	for operation, args := range cases {
		data, err := EncodeInstructionData(operation, args)
		require.NoError(t, err, operation)

		gotOp, gotArgs, err := DecodeInstructionData(data)
		require.NoError(t, err, operation)
		require.Equal(t, operation, gotOp)
		require.Equal(t, args, gotArgs)
	}
}

func TestDecodeRejectsMalformedData(t *testing.T) {
	_, _, err := DecodeInstructionData([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrTruncatedData)

	_, _, err = DecodeInstructionData(make([]byte, 8))
	require.ErrorIs(t, err, ErrUnknownOperation)

	buy, err := EncodeInstructionData("buy_dmd", map[string]any{"sol_contribution": uint64(7)})
	require.NoError(t, err)

	// Args cut short.
	_, _, err = DecodeInstructionData(buy[:12])
	require.ErrorIs(t, err, ErrTruncatedData)

	// Trailing bytes beyond the schema.
	_, _, err = DecodeInstructionData(append(buy, 0xff))
	require.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestEncodeRejectsUnknownOperation(t *testing.T) {
	_, err := EncodeInstructionData("drain_vault", nil)
	require.ErrorIs(t, err, ErrUnknownOperation)
}

func TestEncodeRejectsSchemaMismatch(t *testing.T) {
	_, err := EncodeInstructionData("buy_dmd", nil)
	require.ErrorIs(t, err, ErrSchemaMismatch)

	_, err = EncodeInstructionData("buy_dmd", map[string]any{"sol_contribution": 1.5})
	require.ErrorIs(t, err, ErrSchemaMismatch)

	_, err = EncodeInstructionData("buy_dmd", map[string]any{"lamports": uint64(1)})
	require.ErrorIs(t, err, ErrSchemaMismatch)

	_, err = EncodeInstructionData("buy_dmd", map[string]any{
		"sol_contribution": uint64(1),
		"extra":            uint64(2),
	})
	require.ErrorIs(t, err, ErrSchemaMismatch)
}
