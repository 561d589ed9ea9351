// Package client reads DMD vault state and assembles, signs and submits
// vault program transactions on behalf of a local keypair.
package client

import (
	"fmt"
	"log/slog"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/diemark/dmd/backend/internal/config"
	"github.com/diemark/dmd/backend/internal/dmd"
)

type Client struct {
	cfg    config.ClientConfig
	rpc    *rpc.Client
	signer solana.PrivateKey
	logger *slog.Logger

	vault      solana.PublicKey
	vaultToken solana.PublicKey
}

func New(cfg config.ClientConfig, logger *slog.Logger) (*Client, error) {
	signer, err := solana.PrivateKeyFromSolanaKeygenFile(cfg.KeypairPath)
	if err != nil {
		return nil, fmt.Errorf("load keypair %q: %w", cfg.KeypairPath, err)
	}

	vault, _, err := dmd.DeriveVaultPDA(cfg.Program.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("derive vault PDA: %w", err)
	}
	vaultToken, err := dmd.AssociatedTokenAddress(vault, cfg.Program.Mint)
	if err != nil {
		return nil, fmt.Errorf("derive vault token account: %w", err)
	}

	return &Client{
		cfg:        cfg,
		rpc:        rpc.New(cfg.RPCURL),
		signer:     signer,
		logger:     logger,
		vault:      vault,
		vaultToken: vaultToken,
	}, nil
}

func (c *Client) Wallet() solana.PublicKey {
	return c.signer.PublicKey()
}

func (c *Client) Vault() solana.PublicKey {
	return c.vault
}

func (c *Client) buyerAddresses(wallet solana.PublicKey) (buyerState, buyerToken solana.PublicKey, err error) {
	buyerState, _, err = dmd.DeriveBuyerStatePDA(c.cfg.Program.ProgramID, c.vault, wallet)
	if err != nil {
		return solana.PublicKey{}, solana.PublicKey{}, fmt.Errorf("derive buyer state PDA: %w", err)
	}
	buyerToken, err = dmd.AssociatedTokenAddress(wallet, c.cfg.Program.Mint)
	if err != nil {
		return solana.PublicKey{}, solana.PublicKey{}, fmt.Errorf("derive buyer token account: %w", err)
	}
	return buyerState, buyerToken, nil
}
