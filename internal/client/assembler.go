package client

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/diemark/dmd/backend/internal/vaultprog"
)

// tokenAccountSetup carries the conditional create-ATA prelude for one
// user intent. Creation order is buyer first, then vault, both paid by the
// acting wallet.
type tokenAccountSetup struct {
	instructions []solana.Instruction
	buyerToken   solana.PublicKey
	vaultToken   solana.PublicKey
}

// createTokenAccountInstructions is the pure half of ATA setup: given which
// accounts already exist, emit creates for the missing ones.
func createTokenAccountInstructions(
	payer solana.PublicKey,
	buyer solana.PublicKey,
	vault solana.PublicKey,
	mint solana.PublicKey,
	buyerToken solana.PublicKey,
	vaultToken solana.PublicKey,
	buyerTokenExists bool,
	vaultTokenExists bool,
) ([]solana.Instruction, error) {
	instructions := make([]solana.Instruction, 0, 2)
	if !buyerTokenExists {
		ix, err := vaultprog.NewCreateAssociatedTokenAccountInstruction(payer, buyerToken, buyer, mint)
		if err != nil {
			return nil, fmt.Errorf("build buyer ATA create: %w", err)
		}
		instructions = append(instructions, ix)
	}
	if !vaultTokenExists {
		ix, err := vaultprog.NewCreateAssociatedTokenAccountInstruction(payer, vaultToken, vault, mint)
		if err != nil {
			return nil, fmt.Errorf("build vault ATA create: %w", err)
		}
		instructions = append(instructions, ix)
	}
	return instructions, nil
}

func (c *Client) ensureTokenAccounts(ctx context.Context, wallet solana.PublicKey) (*tokenAccountSetup, error) {
	_, buyerToken, err := c.buyerAddresses(wallet)
	if err != nil {
		return nil, err
	}

	fetched, err := c.rpc.GetMultipleAccountsWithOpts(ctx,
		[]solana.PublicKey{buyerToken, c.vaultToken},
		&rpc.GetMultipleAccountsOpts{Commitment: c.cfg.Commitment},
	)
	if err != nil {
		return nil, fmt.Errorf("fetch token accounts: %w", err)
	}
	if len(fetched.Value) != 2 {
		return nil, fmt.Errorf("fetch token accounts: expected 2 results, got %d", len(fetched.Value))
	}

	instructions, err := createTokenAccountInstructions(
		wallet, wallet, c.vault, c.cfg.Program.Mint,
		buyerToken, c.vaultToken,
		fetched.Value[0] != nil, fetched.Value[1] != nil,
	)
	if err != nil {
		return nil, err
	}
	return &tokenAccountSetup{
		instructions: instructions,
		buyerToken:   buyerToken,
		vaultToken:   c.vaultToken,
	}, nil
}

// Buy purchases DMD with lamports during the presale.
func (c *Client) Buy(ctx context.Context, lamports uint64) (solana.Signature, error) {
	if lamports == 0 {
		return solana.Signature{}, fmt.Errorf("%w: zero lamports", ErrInvalidAmount)
	}

	wallet := c.Wallet()
	buyerState, _, err := c.buyerAddresses(wallet)
	if err != nil {
		return solana.Signature{}, err
	}
	setup, err := c.ensureTokenAccounts(ctx, wallet)
	if err != nil {
		return solana.Signature{}, err
	}

	buyIx, err := vaultprog.NewBuyDMDInstruction(
		c.cfg.Program.ProgramID, c.vault, buyerState,
		c.cfg.Program.Founder, c.cfg.Program.Treasury,
		setup.vaultToken, setup.buyerToken, wallet, lamports,
	)
	if err != nil {
		return solana.Signature{}, err
	}

	c.logger.Info("submitting buy", "lamports", lamports, "wallet", wallet)
	return c.sendAndConfirm(ctx, append(setup.instructions, buyIx))
}

// AutoWhitelistSelf opts the wallet into the whitelist.
func (c *Client) AutoWhitelistSelf(ctx context.Context) (solana.Signature, error) {
	wallet := c.Wallet()
	buyerState, _, err := c.buyerAddresses(wallet)
	if err != nil {
		return solana.Signature{}, err
	}
	ix, err := vaultprog.NewAutoWhitelistSelfInstruction(c.cfg.Program.ProgramID, c.vault, buyerState, wallet)
	if err != nil {
		return solana.Signature{}, err
	}
	c.logger.Info("submitting auto whitelist", "wallet", wallet)
	return c.sendAndConfirm(ctx, []solana.Instruction{ix})
}

// ClaimReward claims the holding reward after a fresh eligibility read.
func (c *Client) ClaimReward(ctx context.Context) (solana.Signature, error) {
	wallet := c.Wallet()
	st, err := c.FetchBuyerState(ctx, wallet)
	if err != nil {
		return solana.Signature{}, err
	}
	if err := checkClaimEligibility(st, time.Now()); err != nil {
		return solana.Signature{}, err
	}

	buyerState, _, err := c.buyerAddresses(wallet)
	if err != nil {
		return solana.Signature{}, err
	}
	setup, err := c.ensureTokenAccounts(ctx, wallet)
	if err != nil {
		return solana.Signature{}, err
	}

	claimIx, err := vaultprog.NewClaimRewardInstruction(
		c.cfg.Program.ProgramID, c.vault, buyerState,
		setup.vaultToken, setup.buyerToken, wallet,
	)
	if err != nil {
		return solana.Signature{}, err
	}

	c.logger.Info("submitting claim", "wallet", wallet)
	return c.sendAndConfirm(ctx, append(setup.instructions, claimIx))
}

// SwapSolForDMD swaps lamports into DMD with slippage protection derived
// from the on-chain manual price.
func (c *Client) SwapSolForDMD(ctx context.Context, lamports uint64, slippagePct float64) (solana.Signature, error) {
	if lamports == 0 {
		return solana.Signature{}, fmt.Errorf("%w: zero lamports", ErrInvalidAmount)
	}

	vault, err := c.FetchVault(ctx)
	if err != nil {
		return solana.Signature{}, err
	}
	expectedOut, err := ExpectedDMDOut(lamports, vault.ManualPriceLamportsPer10k)
	if err != nil {
		return solana.Signature{}, err
	}
	minOut, err := MinOutWithSlippage(expectedOut, slippagePct)
	if err != nil {
		return solana.Signature{}, err
	}

	wallet := c.Wallet()
	buyerState, _, err := c.buyerAddresses(wallet)
	if err != nil {
		return solana.Signature{}, err
	}
	setup, err := c.ensureTokenAccounts(ctx, wallet)
	if err != nil {
		return solana.Signature{}, err
	}

	swapIx, err := vaultprog.NewSwapExactSolForDMDInstruction(
		c.cfg.Program.ProgramID, c.vault, buyerState,
		setup.vaultToken, setup.buyerToken,
		c.cfg.Program.Founder, c.cfg.Program.Treasury,
		wallet, lamports, minOut,
	)
	if err != nil {
		return solana.Signature{}, err
	}

	c.logger.Info("submitting swap sol->dmd",
		"lamports_in", lamports,
		"min_out_dmd", minOut,
		"slippage_pct", ClampSlippagePct(slippagePct),
	)
	return c.sendAndConfirm(ctx, append(setup.instructions, swapIx))
}

// SwapDMDForSol swaps DMD base units into lamports with slippage protection.
func (c *Client) SwapDMDForSol(ctx context.Context, amountDMD uint64, slippagePct float64) (solana.Signature, error) {
	if amountDMD == 0 {
		return solana.Signature{}, fmt.Errorf("%w: zero DMD", ErrInvalidAmount)
	}

	vault, err := c.FetchVault(ctx)
	if err != nil {
		return solana.Signature{}, err
	}
	expectedOut, err := ExpectedLamportsOut(amountDMD, vault.ManualPriceLamportsPer10k)
	if err != nil {
		return solana.Signature{}, err
	}
	minOut, err := MinOutWithSlippage(expectedOut, slippagePct)
	if err != nil {
		return solana.Signature{}, err
	}

	wallet := c.Wallet()
	buyerState, _, err := c.buyerAddresses(wallet)
	if err != nil {
		return solana.Signature{}, err
	}
	setup, err := c.ensureTokenAccounts(ctx, wallet)
	if err != nil {
		return solana.Signature{}, err
	}

	swapIx, err := vaultprog.NewSwapExactDMDForSolInstruction(
		c.cfg.Program.ProgramID, c.vault, buyerState,
		setup.vaultToken, setup.buyerToken,
		c.cfg.Program.Treasury, c.cfg.Program.Founder,
		wallet, amountDMD, minOut,
	)
	if err != nil {
		return solana.Signature{}, err
	}

	c.logger.Info("submitting swap dmd->sol",
		"dmd_in", amountDMD,
		"min_out_lamports", minOut,
		"slippage_pct", ClampSlippagePct(slippagePct),
	)
	return c.sendAndConfirm(ctx, append(setup.instructions, swapIx))
}

// Sell sells DMD back to the treasury. The program requires the treasury to
// co-sign, so the caller must supply its keypair explicitly.
func (c *Client) Sell(ctx context.Context, amountTokens uint64, treasurySigner solana.PrivateKey) (solana.Signature, error) {
	if amountTokens == 0 {
		return solana.Signature{}, fmt.Errorf("%w: zero DMD", ErrInvalidAmount)
	}
	if !treasurySigner.PublicKey().Equals(c.cfg.Program.Treasury) {
		return solana.Signature{}, fmt.Errorf("%w: supplied keypair %s is not the treasury", ErrNotEligible, treasurySigner.PublicKey())
	}

	wallet := c.Wallet()
	st, err := c.FetchBuyerState(ctx, wallet)
	if err != nil {
		return solana.Signature{}, err
	}
	if err := checkSellEligibility(st, amountTokens, time.Now()); err != nil {
		return solana.Signature{}, err
	}

	buyerState, _, err := c.buyerAddresses(wallet)
	if err != nil {
		return solana.Signature{}, err
	}
	setup, err := c.ensureTokenAccounts(ctx, wallet)
	if err != nil {
		return solana.Signature{}, err
	}

	sellIx, err := vaultprog.NewSellDMDInstruction(
		c.cfg.Program.ProgramID, c.vault, buyerState,
		setup.vaultToken, setup.buyerToken,
		c.cfg.Program.Treasury, c.cfg.Program.Founder,
		wallet, amountTokens,
	)
	if err != nil {
		return solana.Signature{}, err
	}

	c.logger.Info("submitting sell", "dmd", amountTokens, "wallet", wallet)
	return c.sendAndConfirm(ctx, append(setup.instructions, sellIx), treasurySigner)
}

// Initialize bootstraps the vault. Signer must be the founder wallet.
func (c *Client) Initialize(ctx context.Context, initialPriceLamports uint64) (solana.Signature, error) {
	if initialPriceLamports == 0 {
		return solana.Signature{}, fmt.Errorf("%w: zero initial price", ErrInvalidAmount)
	}
	wallet := c.Wallet()
	founderBuyerState, founderToken, err := c.buyerAddresses(wallet)
	if err != nil {
		return solana.Signature{}, err
	}
	ix, err := vaultprog.NewInitializeInstruction(
		c.cfg.Program.ProgramID, c.vault, founderBuyerState,
		wallet, c.cfg.Program.Mint, founderToken, initialPriceLamports,
	)
	if err != nil {
		return solana.Signature{}, err
	}
	c.logger.Info("submitting initialize", "initial_price_lamports", initialPriceLamports)
	return c.sendAndConfirm(ctx, []solana.Instruction{ix})
}

// TogglePublicSale flips the public sale gate. Signer must be the founder.
func (c *Client) TogglePublicSale(ctx context.Context, active bool) (solana.Signature, error) {
	ix, err := vaultprog.NewTogglePublicSaleInstruction(c.cfg.Program.ProgramID, c.vault, c.Wallet(), active)
	if err != nil {
		return solana.Signature{}, err
	}
	c.logger.Info("submitting toggle public sale", "active", active)
	return c.sendAndConfirm(ctx, []solana.Instruction{ix})
}

// WhitelistAdd sets the whitelist flag for a wallet. Signer must be the founder.
func (c *Client) WhitelistAdd(ctx context.Context, buyer solana.PublicKey, status bool) (solana.Signature, error) {
	buyerState, _, err := c.buyerAddresses(buyer)
	if err != nil {
		return solana.Signature{}, err
	}
	ix, err := vaultprog.NewWhitelistAddInstruction(c.cfg.Program.ProgramID, c.vault, buyer, buyerState, c.Wallet(), status)
	if err != nil {
		return solana.Signature{}, err
	}
	c.logger.Info("submitting whitelist add", "buyer", buyer, "status", status)
	return c.sendAndConfirm(ctx, []solana.Instruction{ix})
}

// SetManualPrice updates the manual price anchor. Signer must be the founder.
func (c *Client) SetManualPrice(ctx context.Context, lamportsPer10k uint64) (solana.Signature, error) {
	if lamportsPer10k == 0 {
		return solana.Signature{}, fmt.Errorf("%w: zero price", ErrInvalidAmount)
	}
	ix, err := vaultprog.NewSetManualPriceInstruction(c.cfg.Program.ProgramID, c.vault, c.Wallet(), lamportsPer10k)
	if err != nil {
		return solana.Signature{}, err
	}
	c.logger.Info("submitting set manual price", "lamports_per_10k", lamportsPer10k)
	return c.sendAndConfirm(ctx, []solana.Instruction{ix})
}

// sendAndConfirm signs with the wallet (fee payer) plus any extra signers,
// submits once and polls for confirmation. RPC failures pass the node's
// message through verbatim; the caller must re-read state before retrying.
func (c *Client) sendAndConfirm(ctx context.Context, instructions []solana.Instruction, extraSigners ...solana.PrivateKey) (solana.Signature, error) {
	txCtx, cancel := context.WithTimeout(ctx, c.cfg.TxTimeout)
	defer cancel()

	prelude := make([]solana.Instruction, 0, 2)
	if c.cfg.ComputeUnitLimit > 0 {
		cuLimitIx, err := computebudget.NewSetComputeUnitLimitInstruction(c.cfg.ComputeUnitLimit).ValidateAndBuild()
		if err != nil {
			return solana.Signature{}, fmt.Errorf("build compute unit limit instruction: %w", err)
		}
		prelude = append(prelude, cuLimitIx)
	}
	if c.cfg.ComputeUnitPriceMicroLamports > 0 {
		cuPriceIx, err := computebudget.NewSetComputeUnitPriceInstruction(c.cfg.ComputeUnitPriceMicroLamports).ValidateAndBuild()
		if err != nil {
			return solana.Signature{}, fmt.Errorf("build compute unit price instruction: %w", err)
		}
		prelude = append(prelude, cuPriceIx)
	}
	instructions = append(prelude, instructions...)

	recent, err := c.rpc.GetLatestBlockhash(txCtx, c.cfg.Commitment)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("get latest blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(
		instructions,
		recent.Value.Blockhash,
		solana.TransactionPayer(c.signer.PublicKey()),
	)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("build transaction: %w", err)
	}

	signers := append([]solana.PrivateKey{c.signer}, extraSigners...)
	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		for i := range signers {
			if signers[i].PublicKey().Equals(key) {
				return &signers[i]
			}
		}
		return nil
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("sign transaction: %w", err)
	}

	opts := rpc.TransactionOpts{
		SkipPreflight:       c.cfg.SkipPreflight,
		PreflightCommitment: c.cfg.Commitment,
	}
	if c.cfg.MaxRetries != nil {
		retries := *c.cfg.MaxRetries
		opts.MaxRetries = &retries
	}

	sig, err := c.rpc.SendTransactionWithOpts(txCtx, tx, opts)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("%w: %s", ErrSubmissionFailed, err.Error())
	}

	if err := c.waitForConfirmation(txCtx, sig); err != nil {
		return sig, fmt.Errorf("confirm %s: %w", sig, err)
	}
	return sig, nil
}

func (c *Client) waitForConfirmation(ctx context.Context, sig solana.Signature) error {
	ticker := time.NewTicker(700 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			result, err := c.rpc.GetSignatureStatuses(ctx, true, sig)
			if err != nil {
				continue
			}
			if len(result.Value) == 0 || result.Value[0] == nil {
				continue
			}
			status := result.Value[0]
			if status.Err != nil {
				return fmt.Errorf("%w: %v", ErrSubmissionFailed, status.Err)
			}
			switch status.ConfirmationStatus {
			case rpc.ConfirmationStatusConfirmed, rpc.ConfirmationStatusFinalized:
				return nil
			}
		}
	}
}
