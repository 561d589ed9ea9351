package relay

import (
	"context"
	"log/slog"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"golang.org/x/sync/errgroup"

	"github.com/diemark/dmd/backend/internal/vaultprog"
)

// Stats is the public balance snapshot of the program's key wallets.
type Stats struct {
	VaultSol         float64 `json:"vaultSOL"`
	TreasurySol      float64 `json:"treasurySOL"`
	FounderSol       float64 `json:"founderSOL"`
	PublicSaleActive bool    `json:"publicSaleActive"`
}

// StatsFetcher reads wallet balances and the vault sale flag in one round.
type StatsFetcher struct {
	rpc        *rpc.Client
	commitment rpc.CommitmentType
	logger     *slog.Logger

	vault    solana.PublicKey
	treasury solana.PublicKey
	founder  solana.PublicKey
}

func NewStatsFetcher(
	rpcClient *rpc.Client,
	commitment rpc.CommitmentType,
	vault, treasury, founder solana.PublicKey,
	logger *slog.Logger,
) *StatsFetcher {
	return &StatsFetcher{
		rpc:        rpcClient,
		commitment: commitment,
		logger:     logger,
		vault:      vault,
		treasury:   treasury,
		founder:    founder,
	}
}

// Fetch gathers the three lamport balances concurrently. The vault account
// parse only informs the sale flag, its failure does not fail the snapshot.
func (s *StatsFetcher) Fetch(ctx context.Context) (Stats, error) {
	var out Stats
	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		lamports, err := s.balance(groupCtx, s.vault)
		out.VaultSol = lamports
		return err
	})
	group.Go(func() error {
		lamports, err := s.balance(groupCtx, s.treasury)
		out.TreasurySol = lamports
		return err
	})
	group.Go(func() error {
		lamports, err := s.balance(groupCtx, s.founder)
		out.FounderSol = lamports
		return err
	})
	group.Go(func() error {
		resp, err := s.rpc.GetAccountInfoWithOpts(groupCtx, s.vault, &rpc.GetAccountInfoOpts{Commitment: s.commitment})
		if err != nil || resp == nil || resp.Value == nil {
			s.logger.Debug("vault account unavailable for sale flag", "err", err)
			return nil
		}
		vault, err := vaultprog.ParseVault(resp.Value.Data.GetBinary())
		if err != nil {
			s.logger.Debug("vault account parse failed", "err", err)
			return nil
		}
		out.PublicSaleActive = vault.PublicSaleActive
		return nil
	})

	if err := group.Wait(); err != nil {
		return Stats{}, err
	}
	return out, nil
}

func (s *StatsFetcher) balance(ctx context.Context, key solana.PublicKey) (float64, error) {
	resp, err := s.rpc.GetBalance(ctx, key, s.commitment)
	if err != nil {
		return 0, err
	}
	return float64(resp.Value) / float64(solana.LAMPORTS_PER_SOL), nil
}
