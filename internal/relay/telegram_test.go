package relay

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/diemark/dmd/backend/internal/config"
)

func TestAlertsForWhaleBuy(t *testing.T) {
	alerts := AlertsFor(Event{Sig: "abc", Type: EventBuy, AmountDMD: 250_000, AmountSol: 12.5}, 100_000)
	require.Len(t, alerts, 1)
	require.Contains(t, alerts[0], "Whale BUY")
	require.Contains(t, alerts[0], "250000 DMD")
	require.Contains(t, alerts[0], "solscan.io/tx/abc")
}

func TestAlertsForBelowThresholdAndNonBuy(t *testing.T) {
	require.Empty(t, AlertsFor(Event{Type: EventBuy, AmountDMD: 50_000}, 100_000))
	require.Empty(t, AlertsFor(Event{Type: EventSell, AmountDMD: 250_000}, 100_000))
	require.Empty(t, AlertsFor(Event{Type: EventBuy, AmountDMD: 250_000}, 0), "zero threshold disables whale alerts")
}

func TestAlertsForTreasuryAndFounder(t *testing.T) {
	alerts := AlertsFor(Event{Sig: "xyz", Type: EventTransfer, IsTreasury: true, IsFounder: true, AmountSol: 1.25}, 100_000)
	require.Len(t, alerts, 2)
	require.Contains(t, alerts[0], "Treasury")
	require.Contains(t, alerts[1], "Founder")
}

func TestDeviationPct(t *testing.T) {
	require.InDelta(t, 10.0, DeviationPct(0.01, 0.009), 1e-9)
	require.InDelta(t, 10.0, DeviationPct(0.01, 0.011), 1e-9)
	require.Equal(t, 0.0, DeviationPct(0, 0.01))
	require.Equal(t, 0.0, DeviationPct(0.01, 0))
}

func TestNotifierSendPostsHTMLMessage(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	n := NewNotifier(config.TelegramConfig{BotToken: "tok", AdminChatID: "42"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	n.baseURL = server.URL
	n.Send(context.Background(), "<b>hello</b>")

	require.Equal(t, "/bottok/sendMessage", gotPath)
	require.Equal(t, "42", gotBody["chat_id"])
	require.Equal(t, "<b>hello</b>", gotBody["text"])
	require.Equal(t, "HTML", gotBody["parse_mode"])
}

func TestNotifierDisabledWithoutToken(t *testing.T) {
	n := NewNotifier(config.TelegramConfig{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.False(t, n.Enabled())
	// Must not panic or attempt network I/O.
	n.Send(context.Background(), "ignored")
}
