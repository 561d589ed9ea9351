// Package apiserver exposes the investor-facing surface of the relay: the
// webhook ingress, the REST feeds and the websocket push channel.
package apiserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/diemark/dmd/backend/internal/config"
	"github.com/diemark/dmd/backend/internal/dmd"
	"github.com/diemark/dmd/backend/internal/price"
	"github.com/diemark/dmd/backend/internal/relay"
)

type Service struct {
	cfg    config.APIServerConfig
	logger *slog.Logger

	store    relay.EventStore
	rpc      *rpc.Client
	fetcher  *price.Fetcher
	notifier *relay.Notifier
	holders  *relay.HolderLister
	stats    *relay.StatsFetcher

	vault solana.PublicKey

	priceCache priceCache

	allowAllOrigins  bool
	allowedOriginSet map[string]struct{}
}

func New(cfg config.APIServerConfig, logger *slog.Logger) (*Service, error) {
	var store relay.EventStore
	if cfg.DBDSN != "" {
		pg, err := relay.NewStore(cfg.DBDSN)
		if err != nil {
			return nil, fmt.Errorf("init store: %w", err)
		}
		store = pg
	} else {
		logger.Warn("no database configured, event feeds are in-memory only")
		store = relay.NewMemStore(cfg.MaxKeepEvents)
	}

	vault, _, err := dmd.DeriveVaultPDA(cfg.Program.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("derive vault: %w", err)
	}

	rpcClient := rpc.New(cfg.RPCURL)

	allowAllOrigins := false
	allowedOriginSet := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, origin := range cfg.AllowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		if trimmed == "*" {
			allowAllOrigins = true
			continue
		}
		allowedOriginSet[trimmed] = struct{}{}
	}
	if len(allowedOriginSet) == 0 && !allowAllOrigins {
		allowAllOrigins = true
	}

	return &Service{
		cfg:              cfg,
		logger:           logger,
		store:            store,
		rpc:              rpcClient,
		fetcher:          price.NewFetcher(cfg.Price, logger),
		notifier:         relay.NewNotifier(cfg.Telegram, logger),
		holders:          relay.NewHolderLister(rpcClient, cfg.Commitment, logger),
		stats:            relay.NewStatsFetcher(rpcClient, cfg.Commitment, vault, cfg.Program.Treasury, cfg.Program.Founder, logger),
		vault:            vault,
		allowAllOrigins:  allowAllOrigins,
		allowedOriginSet: allowedOriginSet,
	}, nil
}

func (s *Service) Run(ctx context.Context) error {
	defer func() {
		if err := s.store.Close(); err != nil {
			s.logger.Error("failed to close store", "err", err)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/hel-wbhk", s.handleWebhook)
	mux.HandleFunc("/api/events", s.feedHandler(relay.FeedPublic))
	mux.HandleFunc("/api/treasury-events", s.feedHandler(relay.FeedTreasury))
	mux.HandleFunc("/api/founder-events", s.feedHandler(relay.FeedFounder))
	mux.HandleFunc("/api/price", s.handlePrice)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/api/holders", s.handleHolders)
	mux.HandleFunc("/ws", s.handleWebsocket)

	handler := s.withCORS(mux)
	server := &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      handler,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	go s.priceRefreshLoop(ctx)
	go s.deviationWatchLoop(ctx)

	errCh := make(chan error, 1)
	go func() {
		err := server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
			return
		}
		errCh <- err
	}()

	s.logger.Info("api-server started",
		"listen_addr", s.cfg.ListenAddr,
		"vault", s.vault,
		"persistent_store", s.cfg.DBDSN != "",
		"webhook_auth", s.cfg.WebhookSecret != "",
	)

	select {
	case <-ctx.Done():
		s.logger.Info("api-server stopping")
		if err := server.Shutdown(context.Background()); err != nil {
			return fmt.Errorf("shutdown api-server: %w", err)
		}
		return <-errCh
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen and serve: %w", err)
		}
		return nil
	}
}

func (s *Service) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := strings.TrimSpace(r.Header.Get("Origin"))
		if origin != "" {
			allowed := s.allowAllOrigins
			if !allowed {
				_, allowed = s.allowedOriginSet[origin]
			}

			if allowed {
				if s.allowAllOrigins {
					w.Header().Set("Access-Control-Allow-Origin", "*")
				} else {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Add("Vary", "Origin")
				}
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Helius-Signature")
				w.Header().Set("Access-Control-Max-Age", "300")
			}
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Service) isOriginAllowed(origin string) bool {
	if origin == "" {
		return true
	}
	if s.allowAllOrigins {
		return true
	}
	_, ok := s.allowedOriginSet[origin]
	return ok
}
