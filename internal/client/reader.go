package client

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"golang.org/x/sync/errgroup"

	"github.com/diemark/dmd/backend/internal/config"
	"github.com/diemark/dmd/backend/internal/vaultprog"
)

// Status is one consistent-enough snapshot for display. Fields are read
// concurrently; each is only consistent at the moment it was fetched.
type Status struct {
	Vault            vaultprog.Vault
	BuyerState       *vaultprog.BuyerState
	TreasuryLamports uint64
	VaultTokenUnits  uint64
	MintDecimals     uint8
}

func (c *Client) FetchVault(ctx context.Context) (vaultprog.Vault, error) {
	resp, err := c.rpc.GetAccountInfoWithOpts(ctx, c.vault, &rpc.GetAccountInfoOpts{Commitment: c.cfg.Commitment})
	if err != nil {
		return vaultprog.Vault{}, fmt.Errorf("fetch vault %s: %w", c.vault, err)
	}
	if resp == nil || resp.Value == nil {
		return vaultprog.Vault{}, fmt.Errorf("%w: vault %s (program not initialized on this cluster?)", ErrNotFound, c.vault)
	}
	vault, err := vaultprog.ParseVault(resp.Value.Data.GetBinary())
	if err != nil {
		return vaultprog.Vault{}, fmt.Errorf("decode vault %s: %w", c.vault, err)
	}
	return vault, nil
}

// FetchBuyerState returns ErrNotFound when the wallet has never interacted
// with the program; callers treat that as a state, not a failure.
func (c *Client) FetchBuyerState(ctx context.Context, wallet solana.PublicKey) (vaultprog.BuyerState, error) {
	buyerState, _, err := c.buyerAddresses(wallet)
	if err != nil {
		return vaultprog.BuyerState{}, err
	}

	resp, err := c.rpc.GetAccountInfoWithOpts(ctx, buyerState, &rpc.GetAccountInfoOpts{Commitment: c.cfg.Commitment})
	if err != nil {
		return vaultprog.BuyerState{}, fmt.Errorf("fetch buyer state %s: %w", buyerState, err)
	}
	if resp == nil || resp.Value == nil {
		return vaultprog.BuyerState{}, fmt.Errorf("%w: buyer state for %s", ErrNotFound, wallet)
	}
	st, err := vaultprog.ParseBuyerState(resp.Value.Data.GetBinary())
	if err != nil {
		return vaultprog.BuyerState{}, fmt.Errorf("decode buyer state %s: %w", buyerState, err)
	}
	return st, nil
}

func (c *Client) TreasuryBalance(ctx context.Context) (uint64, error) {
	resp, err := c.rpc.GetBalance(ctx, c.cfg.Program.Treasury, c.cfg.Commitment)
	if err != nil {
		return 0, fmt.Errorf("fetch treasury balance: %w", err)
	}
	return resp.Value, nil
}

// VaultTokenBalance returns the vault's DMD holding in token base units.
func (c *Client) VaultTokenBalance(ctx context.Context) (uint64, error) {
	resp, err := c.rpc.GetTokenAccountBalance(ctx, c.vaultToken, c.cfg.Commitment)
	if err != nil {
		return 0, fmt.Errorf("fetch vault token balance: %w", err)
	}
	if resp == nil || resp.Value == nil {
		return 0, nil
	}
	amount, err := strconv.ParseUint(resp.Value.Amount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse vault token balance %q: %w", resp.Value.Amount, err)
	}
	return amount, nil
}

// FetchStatus fans out the independent reads and joins them.
func (c *Client) FetchStatus(ctx context.Context, wallet solana.PublicKey) (*Status, error) {
	var status Status

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		vault, err := c.FetchVault(groupCtx)
		if err != nil {
			return err
		}
		status.Vault = vault
		return nil
	})
	group.Go(func() error {
		st, err := c.FetchBuyerState(groupCtx, wallet)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			return err
		}
		status.BuyerState = &st
		return nil
	})
	group.Go(func() error {
		lamports, err := c.TreasuryBalance(groupCtx)
		if err != nil {
			return err
		}
		status.TreasuryLamports = lamports
		return nil
	})
	group.Go(func() error {
		units, err := c.VaultTokenBalance(groupCtx)
		if err != nil {
			// The vault ATA may not exist yet on a fresh cluster.
			return nil
		}
		status.VaultTokenUnits = units
		return nil
	})

	if err := group.Wait(); err != nil {
		return nil, err
	}

	status.MintDecimals = c.mintDecimals(status.Vault)
	return &status, nil
}

func (c *Client) mintDecimals(vault vaultprog.Vault) uint8 {
	if vault.MintDecimalsKnown {
		return vault.MintDecimals
	}
	c.logger.Warn("vault account predates mint_decimals, using fallback",
		"fallback_decimals", config.FallbackMintDecimals,
	)
	return config.FallbackMintDecimals
}
