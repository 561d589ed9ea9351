package client

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/diemark/dmd/backend/internal/dmd"
	"github.com/diemark/dmd/backend/internal/vaultprog"
)

func testAddresses(t *testing.T) (programID, mint, wallet, vault, buyerState, buyerToken, vaultToken solana.PublicKey) {
	t.Helper()
	programID = solana.MustPublicKeyFromBase58("EDY4bp4fXWkAJpJhXUMZLL7fjpDhpKZQFPpygzsTMzro")
	mint = solana.MustPublicKeyFromBase58("3rCZT3Xw6jvU4JWatQPsivS8fQ7gV7GjUfJnbTk9Ssn5")
	wallet = solana.NewWallet().PublicKey()

	var err error
	vault, _, err = dmd.DeriveVaultPDA(programID)
	require.NoError(t, err)
	buyerState, _, err = dmd.DeriveBuyerStatePDA(programID, vault, wallet)
	require.NoError(t, err)
	buyerToken, err = dmd.AssociatedTokenAddress(wallet, mint)
	require.NoError(t, err)
	vaultToken, err = dmd.AssociatedTokenAddress(vault, mint)
	require.NoError(t, err)
	return
}

func TestBuyWithBothTokenAccountsAbsent(t *testing.T) {
	programID, mint, wallet, vault, buyerState, buyerToken, vaultToken := testAddresses(t)

	creates, err := createTokenAccountInstructions(
		wallet, wallet, vault, mint,
		buyerToken, vaultToken,
		false, false,
	)
	require.NoError(t, err)
	require.Len(t, creates, 2)

	buyIx, err := vaultprog.NewBuyDMDInstruction(
		programID, vault, buyerState,
		solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey(),
		vaultToken, buyerToken, wallet, 1_500_000_000,
	)
	require.NoError(t, err)

	instructions := append(creates, buyIx)
	require.Len(t, instructions, 3)

	// Create buyer ATA, then vault ATA, then buy.
	first := instructions[0].Accounts()
	require.Equal(t, buyerToken, first[1].PublicKey)
	require.Equal(t, wallet, first[0].PublicKey)
	require.True(t, first[0].IsSigner)
	require.True(t, first[0].IsWritable)

	second := instructions[1].Accounts()
	require.Equal(t, vaultToken, second[1].PublicKey)
	require.Equal(t, wallet, second[0].PublicKey)

	// The acting wallet is the only signer across the whole list.
	for _, ix := range instructions {
		for _, meta := range ix.Accounts() {
			if meta.IsSigner {
				require.Equal(t, wallet, meta.PublicKey)
			}
		}
	}
}

func TestOnlyMissingTokenAccountsAreCreated(t *testing.T) {
	_, mint, wallet, vault, _, buyerToken, vaultToken := testAddresses(t)

	creates, err := createTokenAccountInstructions(wallet, wallet, vault, mint, buyerToken, vaultToken, true, true)
	require.NoError(t, err)
	require.Empty(t, creates)

	creates, err = createTokenAccountInstructions(wallet, wallet, vault, mint, buyerToken, vaultToken, true, false)
	require.NoError(t, err)
	require.Len(t, creates, 1)
	require.Equal(t, vaultToken, creates[0].Accounts()[1].PublicKey)

	creates, err = createTokenAccountInstructions(wallet, wallet, vault, mint, buyerToken, vaultToken, false, true)
	require.NoError(t, err)
	require.Len(t, creates, 1)
	require.Equal(t, buyerToken, creates[0].Accounts()[1].PublicKey)
}

func TestBuyInstructionAccountOrder(t *testing.T) {
	programID, _, wallet, vault, buyerState, buyerToken, vaultToken := testAddresses(t)
	founder := solana.NewWallet().PublicKey()
	treasury := solana.NewWallet().PublicKey()

	ix, err := vaultprog.NewBuyDMDInstruction(
		programID, vault, buyerState, founder, treasury,
		vaultToken, buyerToken, wallet, 42,
	)
	require.NoError(t, err)
	require.Equal(t, programID, ix.ProgramID())

	metas := ix.Accounts()
	want := []solana.PublicKey{
		vault, buyerState, founder, treasury,
		vaultToken, buyerToken, wallet,
		solana.TokenProgramID, solana.SystemProgramID,
	}
	require.Len(t, metas, len(want))
	for i, pk := range want {
		require.Equal(t, pk, metas[i].PublicKey, "account %d", i)
	}
	require.True(t, metas[6].IsSigner)
}
