// Package dmd derives the program-derived and associated-token addresses used
// by the DMD vault program. All derivations are pure functions of their
// inputs and never touch the network.
package dmd

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

var ErrInvalidAddress = errors.New("invalid address")

const (
	vaultSeed = "vault"
	buyerSeed = "buyer"
)

// DeriveVaultPDA returns the singleton vault account for the program.
func DeriveVaultPDA(programID solana.PublicKey) (solana.PublicKey, uint8, error) {
	if programID.IsZero() {
		return solana.PublicKey{}, 0, fmt.Errorf("%w: zero program id", ErrInvalidAddress)
	}
	return solana.FindProgramAddress([][]byte{[]byte(vaultSeed)}, programID)
}

// DeriveBuyerStatePDA returns the per-wallet buyer state account. The seeds
// bind the account to both the vault and the wallet, so a wallet has exactly
// one buyer state per vault.
func DeriveBuyerStatePDA(programID, vault, wallet solana.PublicKey) (solana.PublicKey, uint8, error) {
	if programID.IsZero() {
		return solana.PublicKey{}, 0, fmt.Errorf("%w: zero program id", ErrInvalidAddress)
	}
	if vault.IsZero() {
		return solana.PublicKey{}, 0, fmt.Errorf("%w: zero vault", ErrInvalidAddress)
	}
	if wallet.IsZero() {
		return solana.PublicKey{}, 0, fmt.Errorf("%w: zero wallet", ErrInvalidAddress)
	}
	return solana.FindProgramAddress([][]byte{[]byte(buyerSeed), vault.Bytes(), wallet.Bytes()}, programID)
}

// AssociatedTokenAddress returns the canonical ATA for owner/mint.
func AssociatedTokenAddress(owner, mint solana.PublicKey) (solana.PublicKey, error) {
	if owner.IsZero() {
		return solana.PublicKey{}, fmt.Errorf("%w: zero owner", ErrInvalidAddress)
	}
	if mint.IsZero() {
		return solana.PublicKey{}, fmt.Errorf("%w: zero mint", ErrInvalidAddress)
	}
	ata, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive associated token address: %w", err)
	}
	return ata, nil
}

func MustDeriveVaultPDA(programID solana.PublicKey) solana.PublicKey {
	pk, _, err := DeriveVaultPDA(programID)
	if err != nil {
		panic(fmt.Errorf("derive vault PDA: %w", err))
	}
	return pk
}
