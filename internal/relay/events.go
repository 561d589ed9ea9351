// Package relay ingests enhanced-transaction webhook deliveries, fans the
// resulting chain events into queryable feeds and raises operator alerts.
package relay

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

// EventType classifies a confirmed transaction touching the program.
type EventType string

const (
	EventBuy      EventType = "buy"
	EventSell     EventType = "sell"
	EventClaim    EventType = "claim"
	EventTransfer EventType = "transfer"
)

// FeedKind selects one of the three event feeds.
type FeedKind string

const (
	FeedPublic   FeedKind = "public"
	FeedTreasury FeedKind = "treasury"
	FeedFounder  FeedKind = "founder"
)

// Event is one confirmed on-chain movement, shaped for feed consumers.
type Event struct {
	Sig        string    `json:"sig"`
	Type       EventType `json:"evt_type"`
	Wallet     string    `json:"wallet"`
	AmountDMD  float64   `json:"amount_dmd"`
	AmountSol  float64   `json:"amount_sol"`
	Ts         int64     `json:"ts"`
	IsFounder  bool      `json:"is_founder"`
	IsTreasury bool      `json:"is_treasury"`
}

// webhookTx mirrors the enhanced-transaction payload fields we consume.
type webhookTx struct {
	Signature string   `json:"signature"`
	Timestamp int64    `json:"timestamp"`
	FeePayer  string   `json:"feePayer"`
	Signer    string   `json:"signer"`
	Logs      []string `json:"logs"`

	NativeTransfers []struct {
		Amount int64 `json:"amount"`
	} `json:"nativeTransfers"`

	Metadata struct {
		DMD float64 `json:"dmd"`
	} `json:"metadata"`
}

// DetectEventType maps program log lines to an event class. Anything that is
// not a recognized program instruction is a plain transfer.
func DetectEventType(logs []string) EventType {
	for _, line := range logs {
		if strings.Contains(line, "buy_dmd") {
			return EventBuy
		}
	}
	for _, line := range logs {
		if strings.Contains(line, "sell_dmd") {
			return EventSell
		}
	}
	for _, line := range logs {
		if strings.Contains(line, "claim_reward") {
			return EventClaim
		}
	}
	return EventTransfer
}

// ParsePayload decodes one webhook delivery body. Deliveries may carry a
// single transaction object or an array of them; entries without a valid
// signature are skipped rather than failing the batch.
func ParsePayload(body []byte, founder, treasury solana.PublicKey, now time.Time) ([]Event, error) {
	var raw []webhookTx
	if err := json.Unmarshal(body, &raw); err != nil {
		var single webhookTx
		if err := json.Unmarshal(body, &single); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
		}
		raw = []webhookTx{single}
	}

	events := make([]Event, 0, len(raw))
	for _, tx := range raw {
		ev, ok := parseTx(tx, founder, treasury, now)
		if !ok {
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

func parseTx(tx webhookTx, founder, treasury solana.PublicKey, now time.Time) (Event, bool) {
	if tx.Signature == "" {
		return Event{}, false
	}
	if _, err := base58.Decode(tx.Signature); err != nil {
		return Event{}, false
	}

	wallet := tx.FeePayer
	if wallet == "" {
		wallet = tx.Signer
	}

	var lamports int64
	if len(tx.NativeTransfers) > 0 {
		lamports = tx.NativeTransfers[0].Amount
	}
	if lamports < 0 {
		lamports = -lamports
	}

	ts := now.UnixMilli()
	if tx.Timestamp > 0 {
		ts = tx.Timestamp * 1000
	}

	return Event{
		Sig:        tx.Signature,
		Type:       DetectEventType(tx.Logs),
		Wallet:     wallet,
		AmountDMD:  tx.Metadata.DMD,
		AmountSol:  float64(lamports) / float64(solana.LAMPORTS_PER_SOL),
		Ts:         ts,
		IsFounder:  wallet != "" && wallet == founder.String(),
		IsTreasury: wallet != "" && wallet == treasury.String(),
	}, true
}

// InFeed reports whether the event belongs in the given feed.
func (e Event) InFeed(kind FeedKind) bool {
	switch kind {
	case FeedPublic:
		return true
	case FeedTreasury:
		return e.IsTreasury
	case FeedFounder:
		return e.IsFounder
	default:
		return false
	}
}
