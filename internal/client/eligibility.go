package client

import (
	"fmt"
	"time"

	"github.com/diemark/dmd/backend/internal/config"
	"github.com/diemark/dmd/backend/internal/vaultprog"
)

// Local eligibility checks mirror the program's own guards so an ineligible
// action is rejected before a transaction is ever constructed. The program
// remains the authority; these are advisory and always run against a fresh
// read.

func checkClaimEligibility(st vaultprog.BuyerState, now time.Time) error {
	if !st.Whitelisted {
		return fmt.Errorf("%w: wallet is not whitelisted", ErrNotEligible)
	}
	if st.TotalTokens == 0 {
		return fmt.Errorf("%w: no DMD held", ErrNotEligible)
	}
	if st.HoldingSince == 0 {
		return fmt.Errorf("%w: never purchased", ErrNotEligible)
	}
	held := now.Unix() - st.HoldingSince
	if held < int64(config.HoldDuration.Seconds()) {
		return fmt.Errorf("%w: hold period not met (%s required)", ErrNotEligible, config.HoldDuration)
	}
	if st.LastRewardClaimAt != 0 {
		sinceClaim := now.Unix() - st.LastRewardClaimAt
		if sinceClaim < int64(config.RewardInterval.Seconds()) {
			return fmt.Errorf("%w: reward already claimed within %s", ErrNotEligible, config.RewardInterval)
		}
	}
	return nil
}

func checkSellEligibility(st vaultprog.BuyerState, amountTokens uint64, now time.Time) error {
	if !st.Whitelisted {
		return fmt.Errorf("%w: wallet is not whitelisted", ErrNotEligible)
	}
	if st.HoldingSince == 0 {
		return fmt.Errorf("%w: never purchased", ErrNotEligible)
	}
	if st.TotalTokens < amountTokens {
		return fmt.Errorf("%w: holding %d base units, tried to sell %d", ErrNotEligible, st.TotalTokens, amountTokens)
	}
	sinceSell := now.Unix() - st.LastSellAt
	if sinceSell < int64(config.HoldDuration.Seconds()) {
		return fmt.Errorf("%w: sell lock active (%s between sells)", ErrNotEligible, config.HoldDuration)
	}
	return nil
}
