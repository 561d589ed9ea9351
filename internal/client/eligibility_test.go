package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/diemark/dmd/backend/internal/config"
	"github.com/diemark/dmd/backend/internal/vaultprog"
)

func TestClaimRejectedWhenNeverPurchased(t *testing.T) {
	st := vaultprog.BuyerState{
		Whitelisted:  true,
		TotalTokens:  100,
		HoldingSince: 0,
	}
	err := checkClaimEligibility(st, time.Now())
	require.ErrorIs(t, err, ErrNotEligible)
}

func TestClaimRejectedDuringHoldPeriod(t *testing.T) {
	now := time.Now()
	st := vaultprog.BuyerState{
		Whitelisted:  true,
		TotalTokens:  100,
		HoldingSince: now.Add(-config.HoldDuration / 2).Unix(),
	}
	require.ErrorIs(t, checkClaimEligibility(st, now), ErrNotEligible)
}

func TestClaimRejectedWithinRewardInterval(t *testing.T) {
	now := time.Now()
	st := vaultprog.BuyerState{
		Whitelisted:       true,
		TotalTokens:       100,
		HoldingSince:      now.Add(-2 * config.RewardInterval).Unix(),
		LastRewardClaimAt: now.Add(-config.RewardInterval / 2).Unix(),
	}
	require.ErrorIs(t, checkClaimEligibility(st, now), ErrNotEligible)
}

func TestClaimAllowedAfterHoldAndInterval(t *testing.T) {
	now := time.Now()
	st := vaultprog.BuyerState{
		Whitelisted:       true,
		TotalTokens:       100,
		HoldingSince:      now.Add(-2 * config.RewardInterval).Unix(),
		LastRewardClaimAt: now.Add(-config.RewardInterval - time.Hour).Unix(),
	}
	require.NoError(t, checkClaimEligibility(st, now))

	// A first claim has no previous claim timestamp.
	st.LastRewardClaimAt = 0
	require.NoError(t, checkClaimEligibility(st, now))
}

func TestClaimRejectedWithoutWhitelistOrBalance(t *testing.T) {
	now := time.Now()
	st := vaultprog.BuyerState{
		Whitelisted:  false,
		TotalTokens:  100,
		HoldingSince: now.Add(-config.RewardInterval).Unix(),
	}
	require.ErrorIs(t, checkClaimEligibility(st, now), ErrNotEligible)

	st.Whitelisted = true
	st.TotalTokens = 0
	require.ErrorIs(t, checkClaimEligibility(st, now), ErrNotEligible)
}

func TestSellEligibility(t *testing.T) {
	now := time.Now()
	st := vaultprog.BuyerState{
		Whitelisted:  true,
		TotalTokens:  1_000,
		HoldingSince: now.Add(-2 * config.HoldDuration).Unix(),
	}
	require.NoError(t, checkSellEligibility(st, 500, now))

	require.ErrorIs(t, checkSellEligibility(st, 5_000, now), ErrNotEligible)

	st.LastSellAt = now.Add(-time.Hour).Unix()
	require.ErrorIs(t, checkSellEligibility(st, 500, now), ErrNotEligible)

	st.LastSellAt = 0
	st.HoldingSince = 0
	require.ErrorIs(t, checkSellEligibility(st, 500, now), ErrNotEligible)
}
