package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/diemark/dmd/backend/internal/config"
)

// Notifier pushes operator alerts to a Telegram chat. A notifier without a
// bot token is a no-op, alerts are strictly best effort.
type Notifier struct {
	cfg    config.TelegramConfig
	client *http.Client
	logger *slog.Logger

	// baseURL is overridable in tests.
	baseURL string
}

func NewNotifier(cfg config.TelegramConfig, logger *slog.Logger) *Notifier {
	return &Notifier{
		cfg:     cfg,
		client:  &http.Client{Timeout: 5 * time.Second},
		logger:  logger,
		baseURL: "https://api.telegram.org",
	}
}

func (n *Notifier) Enabled() bool {
	return n.cfg.BotToken != "" && n.cfg.AdminChatID != ""
}

// Send delivers one HTML-formatted message to the admin chat. Failures are
// logged and swallowed so an unreachable bot never stalls ingestion.
func (n *Notifier) Send(ctx context.Context, text string) {
	if !n.Enabled() {
		return
	}

	payload, err := json.Marshal(map[string]any{
		"chat_id":                  n.cfg.AdminChatID,
		"text":                     text,
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	})
	if err != nil {
		n.logger.Error("telegram payload encode failed", "err", err)
		return
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.cfg.BotToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		n.logger.Error("telegram request build failed", "err", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		n.logger.Warn("telegram send failed", "err", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		n.logger.Warn("telegram send rejected", "status", resp.StatusCode)
	}
}

// AlertsFor returns the messages an event should raise: a whale alert for
// large buys plus movement notices for the treasury and founder wallets.
func AlertsFor(ev Event, whaleThreshold float64) []string {
	var alerts []string
	if ev.Type == EventBuy && whaleThreshold > 0 && ev.AmountDMD >= whaleThreshold {
		alerts = append(alerts, fmt.Sprintf(
			"🟢 <b>Whale BUY</b>\n%d DMD (%.3f SOL)\nTx: https://solscan.io/tx/%s",
			int64(ev.AmountDMD), ev.AmountSol, ev.Sig,
		))
	}
	if ev.IsTreasury {
		alerts = append(alerts, fmt.Sprintf(
			"🏦 <b>Treasury</b> movement: %.3f SOL / %d DMD\nTx: https://solscan.io/tx/%s",
			ev.AmountSol, int64(ev.AmountDMD), ev.Sig,
		))
	}
	if ev.IsFounder {
		alerts = append(alerts, fmt.Sprintf(
			"👑 <b>Founder</b> event: %.3f SOL / %d DMD\nTx: https://solscan.io/tx/%s",
			ev.AmountSol, int64(ev.AmountDMD), ev.Sig,
		))
	}
	return alerts
}

// DeviationPct is the relative gap between the advisory blend price and the
// observed market price, in percent of the blend price.
func DeviationPct(blendUsd, marketUsd float64) float64 {
	if blendUsd <= 0 || marketUsd <= 0 {
		return 0
	}
	return math.Abs(blendUsd-marketUsd) / blendUsd * 100
}

// DeviationAlert renders the price-watch warning once the gap crosses the
// configured threshold.
func DeviationAlert(blendUsd, marketUsd, pct float64) string {
	return fmt.Sprintf(
		"⚠️ <b>Price deviation</b> %.2f%%\nblend: $%.8f\nmarket: $%.8f",
		pct, blendUsd, marketUsd,
	)
}
