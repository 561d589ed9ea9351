package dmd

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
)

var (
	testProgramID = solana.MustPublicKeyFromBase58("EDY4bp4fXWkAJpJhXUMZLL7fjpDhpKZQFPpygzsTMzro")
	testMint      = solana.MustPublicKeyFromBase58("3rCZT3Xw6jvU4JWatQPsivS8fQ7gV7GjUfJnbTk9Ssn5")
	testWallet    = solana.MustPublicKeyFromBase58("AqPFb5LWQuzKiyoKTX9XgUwsYWoFvpeE8E8uzQvnDTzT")
)

func TestDeriveVaultPDAKnownVector(t *testing.T) {
	vault, bump, err := DeriveVaultPDA(testProgramID)
	require.NoError(t, err)
	require.Equal(t, "AfbZG6WHh462YduimCUmAvVi3jSjGfkaQCyEnYPeXwPF", vault.String())
	require.Equal(t, uint8(254), bump)
}

func TestDeriveBuyerStatePDAKnownVector(t *testing.T) {
	vault, _, err := DeriveVaultPDA(testProgramID)
	require.NoError(t, err)

	buyer, bump, err := DeriveBuyerStatePDA(testProgramID, vault, testWallet)
	require.NoError(t, err)
	require.Equal(t, "9CNz6hGHZXkNkubnD9Z9deMVncq6neYgcYne3mYZpSWV", buyer.String())
	require.Equal(t, uint8(255), bump)
}

func TestAssociatedTokenAddressKnownVector(t *testing.T) {
	ata, err := AssociatedTokenAddress(testWallet, testMint)
	require.NoError(t, err)
	require.Equal(t, "6wKxwUEjWMV1CVwa73ea7689zqjZ5R1KbLafeUiXuM4j", ata.String())
}

func TestDerivationsAreDeterministic(t *testing.T) {
	first, firstBump, err := DeriveVaultPDA(testProgramID)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		again, againBump, err := DeriveVaultPDA(testProgramID)
		require.NoError(t, err)
		require.Equal(t, first, again)
		require.Equal(t, firstBump, againBump)
	}
}

func TestDeriveRejectsZeroInputs(t *testing.T) {
	_, _, err := DeriveVaultPDA(solana.PublicKey{})
	require.ErrorIs(t, err, ErrInvalidAddress)

	_, _, err = DeriveBuyerStatePDA(testProgramID, solana.PublicKey{}, testWallet)
	require.ErrorIs(t, err, ErrInvalidAddress)

	_, _, err = DeriveBuyerStatePDA(testProgramID, testMint, solana.PublicKey{})
	require.ErrorIs(t, err, ErrInvalidAddress)

	_, err = AssociatedTokenAddress(solana.PublicKey{}, testMint)
	require.ErrorIs(t, err, ErrInvalidAddress)
}
