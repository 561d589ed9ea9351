package vaultprog

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Builders below take fully derived addresses; derivation lives in the dmd
// package. Account order and writability mirror the on-chain program's
// account structs exactly, the program rejects any deviation.

func NewInitializeInstruction(
	programID solana.PublicKey,
	vault solana.PublicKey,
	founderBuyerState solana.PublicKey,
	founder solana.PublicKey,
	mint solana.PublicKey,
	founderTokenAccount solana.PublicKey,
	initialPriceLamports uint64,
) (solana.Instruction, error) {
	data, err := EncodeInstructionData("initialize", map[string]any{
		"initial_price_sol": initialPriceLamports,
	})
	if err != nil {
		return nil, err
	}
	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(vault, true, false),
		solana.NewAccountMeta(founderBuyerState, true, false),
		solana.NewAccountMeta(founder, true, true),
		solana.NewAccountMeta(mint, true, false),
		solana.NewAccountMeta(founderTokenAccount, true, false),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
	}
	return solana.NewInstruction(programID, accounts, data), nil
}

func NewTogglePublicSaleInstruction(
	programID solana.PublicKey,
	vault solana.PublicKey,
	founder solana.PublicKey,
	active bool,
) (solana.Instruction, error) {
	data, err := EncodeInstructionData("toggle_public_sale", map[string]any{"active": active})
	if err != nil {
		return nil, err
	}
	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(vault, true, false),
		solana.NewAccountMeta(founder, true, true),
	}
	return solana.NewInstruction(programID, accounts, data), nil
}

func NewWhitelistAddInstruction(
	programID solana.PublicKey,
	vault solana.PublicKey,
	buyer solana.PublicKey,
	buyerState solana.PublicKey,
	founder solana.PublicKey,
	status bool,
) (solana.Instruction, error) {
	data, err := EncodeInstructionData("whitelist_add", map[string]any{"status": status})
	if err != nil {
		return nil, err
	}
	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(vault, true, false),
		solana.NewAccountMeta(buyer, false, false),
		solana.NewAccountMeta(buyerState, true, false),
		solana.NewAccountMeta(founder, true, true),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
	}
	return solana.NewInstruction(programID, accounts, data), nil
}

func NewSetManualPriceInstruction(
	programID solana.PublicKey,
	vault solana.PublicKey,
	founder solana.PublicKey,
	lamportsPer10k uint64,
) (solana.Instruction, error) {
	data, err := EncodeInstructionData("set_manual_price", map[string]any{
		"lamports_per_10k": lamportsPer10k,
	})
	if err != nil {
		return nil, err
	}
	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(vault, true, false),
		solana.NewAccountMeta(founder, false, true),
	}
	return solana.NewInstruction(programID, accounts, data), nil
}

func NewAutoWhitelistSelfInstruction(
	programID solana.PublicKey,
	vault solana.PublicKey,
	buyerState solana.PublicKey,
	buyer solana.PublicKey,
) (solana.Instruction, error) {
	data, err := EncodeInstructionData("auto_whitelist_self", nil)
	if err != nil {
		return nil, err
	}
	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(vault, true, false),
		solana.NewAccountMeta(buyerState, true, false),
		solana.NewAccountMeta(buyer, true, true),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
	}
	return solana.NewInstruction(programID, accounts, data), nil
}

func NewBuyDMDInstruction(
	programID solana.PublicKey,
	vault solana.PublicKey,
	buyerState solana.PublicKey,
	founder solana.PublicKey,
	treasury solana.PublicKey,
	vaultTokenAccount solana.PublicKey,
	buyerTokenAccount solana.PublicKey,
	buyer solana.PublicKey,
	solContributionLamports uint64,
) (solana.Instruction, error) {
	data, err := EncodeInstructionData("buy_dmd", map[string]any{
		"sol_contribution": solContributionLamports,
	})
	if err != nil {
		return nil, err
	}
	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(vault, true, false),
		solana.NewAccountMeta(buyerState, true, false),
		solana.NewAccountMeta(founder, true, false),
		solana.NewAccountMeta(treasury, true, false),
		solana.NewAccountMeta(vaultTokenAccount, true, false),
		solana.NewAccountMeta(buyerTokenAccount, true, false),
		solana.NewAccountMeta(buyer, true, true),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
	}
	return solana.NewInstruction(programID, accounts, data), nil
}

func NewClaimRewardInstruction(
	programID solana.PublicKey,
	vault solana.PublicKey,
	buyerState solana.PublicKey,
	vaultTokenAccount solana.PublicKey,
	buyerTokenAccount solana.PublicKey,
	buyer solana.PublicKey,
) (solana.Instruction, error) {
	data, err := EncodeInstructionData("claim_reward_v2", nil)
	if err != nil {
		return nil, err
	}
	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(vault, true, false),
		solana.NewAccountMeta(buyerState, true, false),
		solana.NewAccountMeta(vaultTokenAccount, true, false),
		solana.NewAccountMeta(buyerTokenAccount, true, false),
		solana.NewAccountMeta(buyer, false, true),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
	}
	return solana.NewInstruction(programID, accounts, data), nil
}

func NewSwapExactSolForDMDInstruction(
	programID solana.PublicKey,
	vault solana.PublicKey,
	buyerState solana.PublicKey,
	vaultTokenAccount solana.PublicKey,
	buyerTokenAccount solana.PublicKey,
	founder solana.PublicKey,
	treasury solana.PublicKey,
	buyer solana.PublicKey,
	amountInLamports uint64,
	minOutDMD uint64,
) (solana.Instruction, error) {
	data, err := EncodeInstructionData("swap_exact_sol_for_dmd", map[string]any{
		"amount_in_lamports": amountInLamports,
		"min_out_dmd":        minOutDMD,
	})
	if err != nil {
		return nil, err
	}
	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(vault, true, false),
		solana.NewAccountMeta(buyerState, true, false),
		solana.NewAccountMeta(vaultTokenAccount, true, false),
		solana.NewAccountMeta(buyerTokenAccount, true, false),
		solana.NewAccountMeta(founder, true, false),
		solana.NewAccountMeta(treasury, true, false),
		solana.NewAccountMeta(buyer, true, true),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
	}
	return solana.NewInstruction(programID, accounts, data), nil
}

func NewSwapExactDMDForSolInstruction(
	programID solana.PublicKey,
	vault solana.PublicKey,
	buyerState solana.PublicKey,
	vaultTokenAccount solana.PublicKey,
	buyerTokenAccount solana.PublicKey,
	treasury solana.PublicKey,
	founder solana.PublicKey,
	buyer solana.PublicKey,
	amountInDMD uint64,
	minOutLamports uint64,
) (solana.Instruction, error) {
	data, err := EncodeInstructionData("swap_exact_dmd_for_sol", map[string]any{
		"amount_in_dmd": amountInDMD,
		"min_out_sol":   minOutLamports,
	})
	if err != nil {
		return nil, err
	}
	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(vault, true, false),
		solana.NewAccountMeta(buyerState, true, false),
		solana.NewAccountMeta(vaultTokenAccount, true, false),
		solana.NewAccountMeta(buyerTokenAccount, true, false),
		solana.NewAccountMeta(treasury, true, false),
		solana.NewAccountMeta(founder, true, false),
		solana.NewAccountMeta(buyer, true, true),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
	}
	return solana.NewInstruction(programID, accounts, data), nil
}

// NewSellDMDInstruction requires the treasury to co-sign; a holder cannot
// submit it alone.
func NewSellDMDInstruction(
	programID solana.PublicKey,
	vault solana.PublicKey,
	buyerState solana.PublicKey,
	vaultTokenAccount solana.PublicKey,
	buyerTokenAccount solana.PublicKey,
	treasury solana.PublicKey,
	founder solana.PublicKey,
	buyer solana.PublicKey,
	amountTokens uint64,
) (solana.Instruction, error) {
	data, err := EncodeInstructionData("sell_dmd_v2", map[string]any{
		"amount_tokens": amountTokens,
	})
	if err != nil {
		return nil, err
	}
	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(vault, true, false),
		solana.NewAccountMeta(buyerState, true, false),
		solana.NewAccountMeta(vaultTokenAccount, true, false),
		solana.NewAccountMeta(buyerTokenAccount, true, false),
		solana.NewAccountMeta(treasury, true, true),
		solana.NewAccountMeta(founder, true, false),
		solana.NewAccountMeta(buyer, true, true),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
	}
	return solana.NewInstruction(programID, accounts, data), nil
}

// NewCreateAssociatedTokenAccountInstruction builds the idempotent create for
// an ATA ahead of an operation that transfers into it. Payer funds rent.
func NewCreateAssociatedTokenAccountInstruction(
	payer solana.PublicKey,
	ata solana.PublicKey,
	owner solana.PublicKey,
	mint solana.PublicKey,
) (solana.Instruction, error) {
	if payer.IsZero() || ata.IsZero() || owner.IsZero() || mint.IsZero() {
		return nil, fmt.Errorf("%w: create ATA with zero account", ErrSchemaMismatch)
	}
	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(payer, true, true),
		solana.NewAccountMeta(ata, true, false),
		solana.NewAccountMeta(owner, false, false),
		solana.NewAccountMeta(mint, false, false),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
	}
	return solana.NewInstruction(solana.SPLAssociatedTokenAccountProgramID, accounts, nil), nil
}
