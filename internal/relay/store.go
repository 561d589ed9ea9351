package relay

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Store is the Postgres-backed event store. Feeds survive restarts and the
// unique signature index absorbs webhook redeliveries.
type Store struct {
	db *sql.DB
}

func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetConnMaxIdleTime(30 * time.Second)
	db.SetMaxIdleConns(4)
	db.SetMaxOpenConns(16)

	pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS chain_events (
			id BIGSERIAL PRIMARY KEY,
			sig TEXT NOT NULL UNIQUE,
			evt_type TEXT NOT NULL,
			wallet TEXT NOT NULL,
			amount_dmd DOUBLE PRECISION NOT NULL,
			amount_sol DOUBLE PRECISION NOT NULL,
			ts BIGINT NOT NULL,
			is_founder BOOLEAN NOT NULL,
			is_treasury BOOLEAN NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_chain_events_ts ON chain_events(ts DESC, id DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_chain_events_treasury_ts ON chain_events(ts DESC) WHERE is_treasury;`,
		`CREATE INDEX IF NOT EXISTS idx_chain_events_founder_ts ON chain_events(ts DESC) WHERE is_founder;`,
	}
	for _, query := range ddl {
		if _, err := s.execContext(ctx, query); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

func (s *Store) InsertEvent(ctx context.Context, ev Event) error {
	if ev.Sig == "" {
		return ErrInvalidEvent
	}
	_, err := s.execContext(ctx, `
		INSERT INTO chain_events (
			sig, evt_type, wallet, amount_dmd, amount_sol, ts, is_founder, is_treasury
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (sig) DO NOTHING
	`,
		ev.Sig,
		string(ev.Type),
		ev.Wallet,
		ev.AmountDMD,
		ev.AmountSol,
		ev.Ts,
		ev.IsFounder,
		ev.IsTreasury,
	)
	return err
}

func (s *Store) Feed(ctx context.Context, kind FeedKind, limit int) ([]Event, error) {
	query := `
		SELECT sig, evt_type, wallet, amount_dmd, amount_sol, ts, is_founder, is_treasury
		FROM chain_events`
	switch kind {
	case FeedPublic:
	case FeedTreasury:
		query += ` WHERE is_treasury`
	case FeedFounder:
		query += ` WHERE is_founder`
	default:
		return nil, ErrUnknownFeed
	}
	query += ` ORDER BY ts DESC, id DESC LIMIT ?`

	rows, err := s.queryContext(ctx, query, clampFeedLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var ev Event
		var evtType string
		if err := rows.Scan(
			&ev.Sig,
			&evtType,
			&ev.Wallet,
			&ev.AmountDMD,
			&ev.AmountSol,
			&ev.Ts,
			&ev.IsFounder,
			&ev.IsTreasury,
		); err != nil {
			return nil, err
		}
		ev.Type = EventType(evtType)
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *Store) execContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, rebindPostgresPlaceholders(query), args...)
}

func (s *Store) queryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, rebindPostgresPlaceholders(query), args...)
}

func rebindPostgresPlaceholders(query string) string {
	var out strings.Builder
	out.Grow(len(query) + 16)

	arg := 1
	inSingleQuote := false
	for i := 0; i < len(query); i++ {
		ch := query[i]
		if ch == '\'' {
			out.WriteByte(ch)
			if inSingleQuote {
				// SQL escape: two single quotes inside a string literal.
				if i+1 < len(query) && query[i+1] == '\'' {
					out.WriteByte(query[i+1])
					i++
					continue
				}
				inSingleQuote = false
			} else {
				inSingleQuote = true
			}
			continue
		}

		if ch == '?' && !inSingleQuote {
			out.WriteByte('$')
			out.WriteString(strconv.Itoa(arg))
			arg++
			continue
		}

		out.WriteByte(ch)
	}

	return out.String()
}
