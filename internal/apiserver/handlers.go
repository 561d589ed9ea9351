package apiserver

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/diemark/dmd/backend/internal/relay"
)

type healthResponse struct {
	OK bool `json:"ok"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type webhookResponse struct {
	Accepted int `json:"accepted"`
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondMethodNotAllowed(w)
		return
	}
	s.respondJSON(w, http.StatusOK, healthResponse{OK: true})
}

// handleWebhook ingests one enhanced-transaction delivery. The raw body is
// authenticated with an HMAC before any parsing happens.
func (s *Service) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondMethodNotAllowed(w)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 2<<20))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	defer r.Body.Close()

	if !s.verifyWebhookSignature(body, r.Header.Get("X-Helius-Signature")) {
		s.respondError(w, http.StatusUnauthorized, "bad sig")
		return
	}

	events, err := relay.ParsePayload(body, s.cfg.Program.Founder, s.cfg.Program.Treasury, time.Now())
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	accepted := 0
	for _, ev := range events {
		if err := s.store.InsertEvent(r.Context(), ev); err != nil {
			s.logger.Error("event insert failed", "sig", ev.Sig, "err", err)
			continue
		}
		accepted++
		for _, alert := range relay.AlertsFor(ev, s.cfg.Telegram.WhaleTokenThreshold) {
			s.notifier.Send(r.Context(), alert)
		}
	}

	s.respondJSON(w, http.StatusOK, webhookResponse{Accepted: accepted})
}

// verifyWebhookSignature checks the hex HMAC-SHA256 of the raw body in
// constant time. An empty configured secret rejects every delivery.
func (s *Service) verifyWebhookSignature(body []byte, signature string) bool {
	if s.cfg.WebhookSecret == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(s.cfg.WebhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.TrimSpace(signature)))
}

func (s *Service) feedHandler(kind relay.FeedKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			s.respondMethodNotAllowed(w)
			return
		}
		limit, err := parseOptionalInt(r, "limit", 0)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}

		events, err := s.store.Feed(r.Context(), kind, limit)
		if err != nil {
			s.logger.Error("feed query failed", "feed", kind, "err", err)
			s.respondError(w, http.StatusInternalServerError, "failed to list events")
			return
		}
		if events == nil {
			events = []relay.Event{}
		}
		s.respondJSON(w, http.StatusOK, events)
	}
}

func (s *Service) handlePrice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondMethodNotAllowed(w)
		return
	}
	snapshot := s.priceCache.get()
	if snapshot == nil {
		s.respondError(w, http.StatusServiceUnavailable, "price not available yet")
		return
	}
	s.respondJSON(w, http.StatusOK, snapshot)
}

func (s *Service) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondMethodNotAllowed(w)
		return
	}
	stats, err := s.stats.Fetch(r.Context())
	if err != nil {
		s.logger.Error("stats fetch failed", "err", err)
		s.respondError(w, http.StatusInternalServerError, "stats_failed")
		return
	}
	s.respondJSON(w, http.StatusOK, stats)
}

func (s *Service) handleHolders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondMethodNotAllowed(w)
		return
	}
	limit, err := parseOptionalInt(r, "limit", 0)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	holders, err := s.holders.TopHolders(r.Context(), s.cfg.Program.Mint, limit)
	if err != nil {
		s.logger.Error("holder listing failed", "err", err)
		s.respondError(w, http.StatusInternalServerError, "failed to list holders")
		return
	}
	s.respondJSON(w, http.StatusOK, holders)
}

func parseOptionalInt(r *http.Request, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}

func (s *Service) respondMethodNotAllowed(w http.ResponseWriter) {
	s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (s *Service) respondError(w http.ResponseWriter, code int, message string) {
	s.respondJSON(w, code, errorResponse{Error: message})
}

func (s *Service) respondJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to write JSON response", "err", err)
	}
}
