package relay

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// Holder is one resolved token account owner with its UI-scaled balance.
type Holder struct {
	Owner  string  `json:"owner"`
	Amount float64 `json:"amount"`
}

const (
	defaultHolderLimit = 25
	tokenAccountSize   = 165
)

// HolderLister resolves the largest token accounts of the mint to their
// owning wallets.
type HolderLister struct {
	rpc        *rpc.Client
	commitment rpc.CommitmentType
	logger     *slog.Logger
}

func NewHolderLister(rpcClient *rpc.Client, commitment rpc.CommitmentType, logger *slog.Logger) *HolderLister {
	return &HolderLister{rpc: rpcClient, commitment: commitment, logger: logger}
}

// TopHolders returns up to limit holders of the mint, largest first.
// Balances are scaled by the decimals the RPC node reports for each token
// account, never by a hardcoded exponent.
func (h *HolderLister) TopHolders(ctx context.Context, mint solana.PublicKey, limit int) ([]Holder, error) {
	if limit <= 0 || limit > defaultHolderLimit {
		limit = defaultHolderLimit
	}

	largest, err := h.rpc.GetTokenLargestAccounts(ctx, mint, h.commitment)
	if err != nil {
		return nil, fmt.Errorf("token largest accounts: %w", err)
	}
	if largest == nil {
		return []Holder{}, nil
	}
	entries := largest.Value
	if len(entries) > limit {
		entries = entries[:limit]
	}
	if len(entries) == 0 {
		return []Holder{}, nil
	}

	keys := make([]solana.PublicKey, len(entries))
	for i, entry := range entries {
		keys[i] = entry.Address
	}
	accounts, err := h.rpc.GetMultipleAccountsWithOpts(ctx, keys, &rpc.GetMultipleAccountsOpts{
		Commitment: h.commitment,
	})
	if err != nil {
		return nil, fmt.Errorf("resolve token account owners: %w", err)
	}

	holders := make([]Holder, 0, len(entries))
	for i, entry := range entries {
		if i >= len(accounts.Value) || accounts.Value[i] == nil {
			continue
		}
		data := accounts.Value[i].Data.GetBinary()
		if len(data) < tokenAccountSize {
			h.logger.Debug("skipping malformed token account", "address", entry.Address)
			continue
		}
		owner := solana.PublicKeyFromBytes(data[32:64])

		raw, err := strconv.ParseUint(entry.Amount, 10, 64)
		if err != nil {
			h.logger.Debug("skipping unparseable token balance", "address", entry.Address, "err", err)
			continue
		}
		holders = append(holders, Holder{
			Owner:  owner.String(),
			Amount: float64(raw) / math.Pow10(int(entry.Decimals)),
		})
	}
	return holders, nil
}
