// Command dmd is the wallet-side companion of the token program: it reads
// vault and buyer state, quotes the advisory price and submits buy, claim,
// swap and administrative transactions.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"
	_ "github.com/joho/godotenv/autoload"

	"github.com/diemark/dmd/backend/internal/client"
	"github.com/diemark/dmd/backend/internal/config"
	"github.com/diemark/dmd/backend/internal/logging"
	"github.com/diemark/dmd/backend/internal/price"
)

const usage = `Usage: dmd <command> [flags]

Read commands:
  status          show vault, buyer state and treasury balances
  price           show the advisory USD price blend

Wallet commands:
  auto-whitelist  register the signer for the public sale
  buy             buy tokens with SOL        (--sol)
  claim           claim the periodic holder reward
  swap-in         swap SOL for tokens        (--sol, --slippage)
  swap-out        swap tokens for SOL        (--dmd, --slippage)
  sell            sell tokens back           (--dmd, --treasury-keypair)

Founder commands:
  initialize      create the vault           (--price-lamports)
  toggle-sale     open or close public sale  (--active)
  whitelist       set a wallet's status      (--wallet, --remove)
  set-price       set manual price           (--lamports-per-10k)
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	bootstrapLogger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.LoadClientConfig()
	if err != nil {
		bootstrapLogger.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	logger, closeLogger, err := logging.New("dmd", cfg.Log)
	if err != nil {
		bootstrapLogger.Error("failed to initialize logger", "err", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := closeLogger(); closeErr != nil {
			bootstrapLogger.Error("failed to close logger", "err", closeErr)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, os.Args[1], os.Args[2:]); err != nil {
		logger.Error("command failed", "command", os.Args[1], "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.ClientConfig, logger *slog.Logger, command string, args []string) error {
	switch command {
	case "status":
		return runStatus(ctx, cfg, logger, args)
	case "price":
		return runPrice(ctx, cfg, logger, args)
	case "auto-whitelist":
		return runAutoWhitelist(ctx, cfg, logger, args)
	case "buy":
		return runBuy(ctx, cfg, logger, args)
	case "claim":
		return runClaim(ctx, cfg, logger, args)
	case "swap-in":
		return runSwapIn(ctx, cfg, logger, args)
	case "swap-out":
		return runSwapOut(ctx, cfg, logger, args)
	case "sell":
		return runSell(ctx, cfg, logger, args)
	case "initialize":
		return runInitialize(ctx, cfg, logger, args)
	case "toggle-sale":
		return runToggleSale(ctx, cfg, logger, args)
	case "whitelist":
		return runWhitelist(ctx, cfg, logger, args)
	case "set-price":
		return runSetPrice(ctx, cfg, logger, args)
	case "help", "-h", "--help":
		fmt.Print(usage)
		return nil
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

func runStatus(ctx context.Context, cfg config.ClientConfig, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	walletFlag := fs.String("wallet", "", "inspect this wallet instead of the signer")
	if err := fs.Parse(args); err != nil {
		return err
	}

	c, err := client.New(cfg, logger)
	if err != nil {
		return err
	}

	wallet := c.Wallet()
	if *walletFlag != "" {
		wallet, err = solana.PublicKeyFromBase58(*walletFlag)
		if err != nil {
			return fmt.Errorf("invalid --wallet: %w", err)
		}
	}

	status, err := c.FetchStatus(ctx, wallet)
	if err != nil {
		return err
	}

	fmt.Printf("vault            %s\n", c.Vault())
	fmt.Printf("owner            %s\n", status.Vault.Owner)
	fmt.Printf("public sale      %t\n", status.Vault.PublicSaleActive)
	fmt.Printf("manual price     %d lamports / %d tokens\n", status.Vault.ManualPriceLamportsPer10k, config.ManualPriceTokenLot)
	fmt.Printf("total supply     %s\n", client.FormatTokenAmount(status.Vault.TotalSupply, 0))
	fmt.Printf("presale sold     %s\n", client.FormatTokenAmount(status.Vault.PresaleSold, 0))
	fmt.Printf("vault tokens     %s\n", client.FormatTokenAmount(status.VaultTokenUnits, status.MintDecimals))
	fmt.Printf("treasury         %.9f SOL\n", client.LamportsToSol(status.TreasuryLamports))

	if status.BuyerState == nil {
		fmt.Printf("buyer %s: not registered\n", wallet)
		return nil
	}
	bs := status.BuyerState
	fmt.Printf("buyer            %s\n", wallet)
	fmt.Printf("  whitelisted    %t\n", bs.Whitelisted)
	fmt.Printf("  balance        %s\n", client.FormatTokenAmount(bs.TotalTokens, status.MintDecimals))
	if bs.HoldingSince != 0 {
		fmt.Printf("  holding since  %s\n", time.Unix(bs.HoldingSince, 0).UTC().Format(time.RFC3339))
	}
	if bs.LastRewardClaimAt != 0 {
		fmt.Printf("  last claim     %s\n", time.Unix(bs.LastRewardClaimAt, 0).UTC().Format(time.RFC3339))
	}
	if bs.LastSellAt != 0 {
		fmt.Printf("  last sell      %s\n", time.Unix(bs.LastSellAt, 0).UTC().Format(time.RFC3339))
	}
	return nil
}

func runPrice(ctx context.Context, cfg config.ClientConfig, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("price", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	priceCfg, err := config.LoadPriceConfig()
	if err != nil {
		return err
	}
	c, err := client.New(cfg, logger)
	if err != nil {
		return err
	}

	status, err := c.FetchStatus(ctx, c.Wallet())
	if err != nil {
		return err
	}

	input := price.BlendInput{
		LamportsPer10k:   status.Vault.ManualPriceLamportsPer10k,
		TreasuryLamports: status.TreasuryLamports,
		PresalePool:      scaleToWholeTokens(status.VaultTokenUnits, status.MintDecimals),
	}

	fetcher := price.NewFetcher(priceCfg, logger)
	solUsd, source, err := fetcher.SolUsd(ctx)
	if err != nil {
		logger.Warn("sol/usd unavailable", "err", err)
	} else {
		input.SolUsd = solUsd
		input.SolUsdSource = source
	}
	if priceCfg.DexPair != "" {
		if pair, err := fetcher.FetchDexPair(ctx, priceCfg.DexPair); err == nil {
			input.MarketUsd = pair.TokenUsd
		} else {
			logger.Debug("dex pair unavailable", "err", err)
		}
	}

	blend := price.ComputeBlend(priceCfg, input)
	fmt.Printf("SOL/USD   %.2f (%s)\n", blend.SolUsd, input.SolUsdSource)
	fmt.Printf("manual    %s\n", price.RenderUSD(blend.ManualUsd))
	fmt.Printf("backing   %s\n", price.RenderUSD(blend.WeightedBacking))
	fmt.Printf("market    %s\n", price.RenderUSD(blend.MarketUsd))
	fmt.Printf("DMD/USD   %s\n", price.RenderUSD(blend.FinalUsd))
	for _, note := range blend.Notes {
		fmt.Printf("  %s\n", note)
	}
	return nil
}

func runAutoWhitelist(ctx context.Context, cfg config.ClientConfig, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("auto-whitelist", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	c, err := client.New(cfg, logger)
	if err != nil {
		return err
	}
	sig, err := c.AutoWhitelistSelf(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("auto-whitelist confirmed: %s\n", sig)
	return nil
}

func runBuy(ctx context.Context, cfg config.ClientConfig, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("buy", flag.ContinueOnError)
	solAmount := fs.String("sol", "", "SOL to contribute, e.g. 1.5")
	if err := fs.Parse(args); err != nil {
		return err
	}
	lamports, err := client.ParseSolAmount(*solAmount)
	if err != nil {
		return fmt.Errorf("--sol: %w", err)
	}
	c, err := client.New(cfg, logger)
	if err != nil {
		return err
	}
	sig, err := c.Buy(ctx, lamports)
	if err != nil {
		return err
	}
	fmt.Printf("buy confirmed: %s\n", sig)
	return nil
}

func runClaim(ctx context.Context, cfg config.ClientConfig, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("claim", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	c, err := client.New(cfg, logger)
	if err != nil {
		return err
	}
	sig, err := c.ClaimReward(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("claim confirmed: %s\n", sig)
	return nil
}

func runSwapIn(ctx context.Context, cfg config.ClientConfig, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("swap-in", flag.ContinueOnError)
	solAmount := fs.String("sol", "", "SOL to swap in, e.g. 0.25")
	slippage := fs.Float64("slippage", 0, "max slippage percent (default 0.5)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	lamports, err := client.ParseSolAmount(*solAmount)
	if err != nil {
		return fmt.Errorf("--sol: %w", err)
	}
	c, err := client.New(cfg, logger)
	if err != nil {
		return err
	}
	sig, err := c.SwapSolForDMD(ctx, lamports, *slippage)
	if err != nil {
		return err
	}
	fmt.Printf("swap confirmed: %s\n", sig)
	return nil
}

func runSwapOut(ctx context.Context, cfg config.ClientConfig, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("swap-out", flag.ContinueOnError)
	dmdAmount := fs.String("dmd", "", "tokens to swap out, e.g. 2500")
	slippage := fs.Float64("slippage", 0, "max slippage percent (default 0.5)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	c, err := client.New(cfg, logger)
	if err != nil {
		return err
	}
	units, err := parseTokenArg(ctx, c, *dmdAmount)
	if err != nil {
		return fmt.Errorf("--dmd: %w", err)
	}
	sig, err := c.SwapDMDForSol(ctx, units, *slippage)
	if err != nil {
		return err
	}
	fmt.Printf("swap confirmed: %s\n", sig)
	return nil
}

func runSell(ctx context.Context, cfg config.ClientConfig, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("sell", flag.ContinueOnError)
	dmdAmount := fs.String("dmd", "", "tokens to sell, e.g. 2500")
	treasuryKeypair := fs.String("treasury-keypair", "", "path to the treasury keypair (co-signer)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *treasuryKeypair == "" {
		return fmt.Errorf("sell requires --treasury-keypair, the treasury co-signs every sell")
	}
	treasurySigner, err := solana.PrivateKeyFromSolanaKeygenFile(*treasuryKeypair)
	if err != nil {
		return fmt.Errorf("--treasury-keypair: %w", err)
	}
	c, err := client.New(cfg, logger)
	if err != nil {
		return err
	}
	units, err := parseTokenArg(ctx, c, *dmdAmount)
	if err != nil {
		return fmt.Errorf("--dmd: %w", err)
	}
	sig, err := c.Sell(ctx, units, treasurySigner)
	if err != nil {
		return err
	}
	fmt.Printf("sell confirmed: %s\n", sig)
	return nil
}

func runInitialize(ctx context.Context, cfg config.ClientConfig, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("initialize", flag.ContinueOnError)
	priceLamports := fs.Uint64("price-lamports", 0, "initial price in lamports per token lot")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *priceLamports == 0 {
		return fmt.Errorf("initialize requires a nonzero --price-lamports")
	}
	c, err := client.New(cfg, logger)
	if err != nil {
		return err
	}
	sig, err := c.Initialize(ctx, *priceLamports)
	if err != nil {
		return err
	}
	fmt.Printf("initialize confirmed: %s\n", sig)
	return nil
}

func runToggleSale(ctx context.Context, cfg config.ClientConfig, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("toggle-sale", flag.ContinueOnError)
	active := fs.Bool("active", false, "desired public sale state")
	if err := fs.Parse(args); err != nil {
		return err
	}
	c, err := client.New(cfg, logger)
	if err != nil {
		return err
	}
	sig, err := c.TogglePublicSale(ctx, *active)
	if err != nil {
		return err
	}
	fmt.Printf("toggle-sale confirmed: %s\n", sig)
	return nil
}

func runWhitelist(ctx context.Context, cfg config.ClientConfig, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("whitelist", flag.ContinueOnError)
	walletFlag := fs.String("wallet", "", "wallet to whitelist")
	remove := fs.Bool("remove", false, "revoke instead of grant")
	if err := fs.Parse(args); err != nil {
		return err
	}
	wallet, err := solana.PublicKeyFromBase58(*walletFlag)
	if err != nil {
		return fmt.Errorf("invalid --wallet: %w", err)
	}
	c, err := client.New(cfg, logger)
	if err != nil {
		return err
	}
	sig, err := c.WhitelistAdd(ctx, wallet, !*remove)
	if err != nil {
		return err
	}
	fmt.Printf("whitelist update confirmed: %s\n", sig)
	return nil
}

func runSetPrice(ctx context.Context, cfg config.ClientConfig, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("set-price", flag.ContinueOnError)
	lamportsPer10k := fs.Uint64("lamports-per-10k", 0, "manual price in lamports per token lot")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *lamportsPer10k == 0 {
		return fmt.Errorf("set-price requires a nonzero --lamports-per-10k")
	}
	c, err := client.New(cfg, logger)
	if err != nil {
		return err
	}
	sig, err := c.SetManualPrice(ctx, *lamportsPer10k)
	if err != nil {
		return err
	}
	fmt.Printf("set-price confirmed: %s\n", sig)
	return nil
}

// parseTokenArg scales a human token amount to base units using the mint's
// on-chain decimals.
func parseTokenArg(ctx context.Context, c *client.Client, raw string) (uint64, error) {
	status, err := c.FetchStatus(ctx, c.Wallet())
	if err != nil {
		return 0, err
	}
	return client.ParseTokenAmount(raw, status.MintDecimals)
}

func scaleToWholeTokens(units uint64, decimals uint8) uint64 {
	scale := uint64(1)
	for i := uint8(0); i < decimals; i++ {
		scale *= 10
	}
	if scale == 0 {
		return units
	}
	return units / scale
}
