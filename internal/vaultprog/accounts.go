package vaultprog

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

var (
	vaultDiscriminator      = accountDiscriminator("Vault")
	buyerStateDiscriminator = accountDiscriminator("BuyerState")
)

// Vault is the program's singleton configuration account. Amounts are token
// base units, the price anchor is lamports per 10k base units.
type Vault struct {
	Owner                     solana.PublicKey
	TotalSupply               uint64
	PresaleSold               uint64
	ManualPriceLamportsPer10k uint64
	PublicSaleActive          bool
	Mint                      solana.PublicKey
	MintDecimals              uint8

	// False for account data written before the mint fields were added.
	// Callers fall back to a configured decimals constant, and log it.
	MintDecimalsKnown bool
}

// BuyerState is the per-wallet trading record. Timestamps are unix seconds,
// zero meaning never.
type BuyerState struct {
	Whitelisted       bool
	TotalTokens       uint64
	HoldingSince      int64
	LastSellAt        int64
	LastRewardClaimAt int64
}

// ParseVault decodes a Vault account. Fields appended in later program
// versions (mint, mint_decimals) may be absent from old accounts and default
// to zero rather than failing the decode.
func ParseVault(data []byte) (Vault, error) {
	offset, err := checkDiscriminator(data, vaultDiscriminator, "Vault")
	if err != nil {
		return Vault{}, err
	}

	owner, offset, err := readPubkey(data, offset, "Vault.owner")
	if err != nil {
		return Vault{}, err
	}
	totalSupply, offset, err := readU64(data, offset, "Vault.total_supply")
	if err != nil {
		return Vault{}, err
	}
	presaleSold, offset, err := readU64(data, offset, "Vault.presale_sold")
	if err != nil {
		return Vault{}, err
	}
	manualPrice, offset, err := readU64(data, offset, "Vault.initial_price_sol")
	if err != nil {
		return Vault{}, err
	}
	publicSaleActive, offset, err := readBool(data, offset, "Vault.public_sale_active")
	if err != nil {
		return Vault{}, err
	}

	out := Vault{
		Owner:                     owner,
		TotalSupply:               totalSupply,
		PresaleSold:               presaleSold,
		ManualPriceLamportsPer10k: manualPrice,
		PublicSaleActive:          publicSaleActive,
	}

	if len(data) < offset+32 {
		return out, nil
	}
	mint, offset, err := readPubkey(data, offset, "Vault.mint")
	if err != nil {
		return Vault{}, err
	}
	out.Mint = mint
	if len(data) < offset+1 {
		return out, nil
	}
	decimals, _, err := readU8(data, offset, "Vault.mint_decimals")
	if err != nil {
		return Vault{}, err
	}
	out.MintDecimals = decimals
	out.MintDecimalsKnown = true
	return out, nil
}

// ParseBuyerState decodes a BuyerState account. last_sell and
// last_reward_claim are later additions and default to zero when absent.
func ParseBuyerState(data []byte) (BuyerState, error) {
	offset, err := checkDiscriminator(data, buyerStateDiscriminator, "BuyerState")
	if err != nil {
		return BuyerState{}, err
	}

	whitelisted, offset, err := readBool(data, offset, "BuyerState.whitelisted")
	if err != nil {
		return BuyerState{}, err
	}
	totalTokens, offset, err := readU64(data, offset, "BuyerState.total_dmd")
	if err != nil {
		return BuyerState{}, err
	}
	holdingSince, offset, err := readI64(data, offset, "BuyerState.holding_since")
	if err != nil {
		return BuyerState{}, err
	}

	out := BuyerState{
		Whitelisted:  whitelisted,
		TotalTokens:  totalTokens,
		HoldingSince: holdingSince,
	}

	if len(data) < offset+8 {
		return out, nil
	}
	lastSell, offset, err := readI64(data, offset, "BuyerState.last_sell")
	if err != nil {
		return BuyerState{}, err
	}
	out.LastSellAt = lastSell
	if len(data) < offset+8 {
		return out, nil
	}
	lastClaim, _, err := readI64(data, offset, "BuyerState.last_reward_claim")
	if err != nil {
		return BuyerState{}, err
	}
	out.LastRewardClaimAt = lastClaim
	return out, nil
}

func checkDiscriminator(data []byte, want [8]byte, accountName string) (int, error) {
	if len(data) < len(want) {
		return 0, fmt.Errorf("%w: %s payload shorter than discriminator", ErrTruncatedData, accountName)
	}
	if !bytes.Equal(data[:8], want[:]) {
		return 0, fmt.Errorf("%w: not a %s account", ErrSchemaMismatch, accountName)
	}
	return 8, nil
}

func readPubkey(data []byte, offset int, field string) (solana.PublicKey, int, error) {
	if len(data) < offset+32 {
		return solana.PublicKey{}, offset, fmt.Errorf("%w: %s", ErrTruncatedData, field)
	}
	return solana.PublicKeyFromBytes(data[offset : offset+32]), offset + 32, nil
}

func readU64(data []byte, offset int, field string) (uint64, int, error) {
	if len(data) < offset+8 {
		return 0, offset, fmt.Errorf("%w: %s", ErrTruncatedData, field)
	}
	value := binary.LittleEndian.Uint64(data[offset : offset+8])
	return value, offset + 8, nil
}

func readI64(data []byte, offset int, field string) (int64, int, error) {
	u, next, err := readU64(data, offset, field)
	if err != nil {
		return 0, offset, err
	}
	return int64(u), next, nil
}

func readBool(data []byte, offset int, field string) (bool, int, error) {
	b, next, err := readU8(data, offset, field)
	if err != nil {
		return false, offset, err
	}
	return b != 0, next, nil
}

func readU8(data []byte, offset int, field string) (uint8, int, error) {
	if len(data) < offset+1 {
		return 0, offset, fmt.Errorf("%w: %s", ErrTruncatedData, field)
	}
	return data[offset], offset + 1, nil
}
