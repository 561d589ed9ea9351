package relay

import (
	"fmt"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
)

var (
	testNow      = time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	testFounder  = solana.MustPublicKeyFromBase58("AqPFb5LWQuzKiyoKTX9XgUwsYWoFvpeE8E8uzQvnDTzT")
	testTreasury = solana.MustPublicKeyFromBase58("CEUmazdgtbUCcQyLq6NCm4BuQbvCsYFzKsS5wdRvZehV")
)

func TestParsePayloadSingleObjectAndArray(t *testing.T) {
	body := []byte(`{
		"signature": "5vY1nZbLKzmBNhSYPPKyZFvTPkWhpaVbSJkeXzFLZrQxUz8FgAGprqhiVYatRyEdGGN5kNBenGgMz51vuCwKGdSQ",
		"timestamp": 1760000000,
		"feePayer": "` + testFounder.String() + `",
		"logs": ["Program log: Instruction: buy_dmd"],
		"nativeTransfers": [{"amount": 2500000000}],
		"metadata": {"dmd": 500000}
	}`)

	events, err := ParsePayload(body, testFounder, testTreasury, testNow)
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	require.Equal(t, EventBuy, ev.Type)
	require.Equal(t, testFounder.String(), ev.Wallet)
	require.Equal(t, 2.5, ev.AmountSol)
	require.Equal(t, 500000.0, ev.AmountDMD)
	require.Equal(t, int64(1760000000_000), ev.Ts)
	require.True(t, ev.IsFounder)
	require.False(t, ev.IsTreasury)

	wrapped := []byte("[" + string(body) + "]")
	arrayEvents, err := ParsePayload(wrapped, testFounder, testTreasury, testNow)
	require.NoError(t, err)
	require.Equal(t, events, arrayEvents)
}

func TestParsePayloadSkipsEntriesWithoutSignature(t *testing.T) {
	body := []byte(`[
		{"timestamp": 1760000000},
		{"signature": "not-base58-!!", "timestamp": 1760000000},
		{"signature": "3yZe7d", "timestamp": 1760000000}
	]`)
	events, err := ParsePayload(body, testFounder, testTreasury, testNow)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "3yZe7d", events[0].Sig)
}

func TestParsePayloadRejectsMalformedBody(t *testing.T) {
	_, err := ParsePayload([]byte(`not json`), testFounder, testTreasury, testNow)
	require.ErrorIs(t, err, ErrInvalidEvent)
}

func TestParsePayloadFallbacks(t *testing.T) {
	body := []byte(`{"signature": "3yZe7d", "signer": "abc"}`)
	events, err := ParsePayload(body, testFounder, testTreasury, testNow)
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	require.Equal(t, "abc", ev.Wallet, "signer fills in when feePayer is absent")
	require.Equal(t, testNow.UnixMilli(), ev.Ts, "delivery time fills in when timestamp is absent")
	require.Equal(t, 0.0, ev.AmountSol)
	require.Equal(t, EventTransfer, ev.Type)
}

func TestDetectEventType(t *testing.T) {
	cases := []struct {
		log  string
		want EventType
	}{
		{"Program log: Instruction: buy_dmd", EventBuy},
		{"Program log: Instruction: sell_dmd_v2", EventSell},
		{"Program log: Instruction: claim_reward_v2", EventClaim},
		{"Program log: Instruction: transfer", EventTransfer},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, DetectEventType([]string{"noise", tc.log}), tc.log)
	}
	require.Equal(t, EventTransfer, DetectEventType(nil))

	// A buy log wins even when a later line mentions selling.
	require.Equal(t, EventBuy, DetectEventType([]string{"sell_dmd", "buy_dmd"}))
}

func TestEventFeedMembership(t *testing.T) {
	treasuryEv := Event{Sig: "a", IsTreasury: true}
	require.True(t, treasuryEv.InFeed(FeedPublic))
	require.True(t, treasuryEv.InFeed(FeedTreasury))
	require.False(t, treasuryEv.InFeed(FeedFounder))
	require.False(t, treasuryEv.InFeed(FeedKind("bogus")))
}

func TestParsePayloadNegativeTransferAmount(t *testing.T) {
	body := []byte(fmt.Sprintf(`{"signature": "3yZe7d", "nativeTransfers": [{"amount": %d}]}`, -1_000_000_000))
	events, err := ParsePayload(body, testFounder, testTreasury, testNow)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, 1.0, events[0].AmountSol)
}
