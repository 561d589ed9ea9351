package relay

import (
	"context"
	"sync"
)

// EventStore persists chain events and serves the per-audience feeds,
// newest first.
type EventStore interface {
	InsertEvent(ctx context.Context, ev Event) error
	Feed(ctx context.Context, kind FeedKind, limit int) ([]Event, error)
	Close() error
}

// MemStore keeps a bounded window of recent events per feed. It backs the
// service when no database DSN is configured: the relay degrades to
// in-memory history instead of refusing to start.
type MemStore struct {
	mu      sync.RWMutex
	maxKeep int
	feeds   map[FeedKind][]Event
	seen    map[string]struct{}
}

func NewMemStore(maxKeep int) *MemStore {
	if maxKeep <= 0 {
		maxKeep = 500
	}
	return &MemStore{
		maxKeep: maxKeep,
		feeds: map[FeedKind][]Event{
			FeedPublic:   nil,
			FeedTreasury: nil,
			FeedFounder:  nil,
		},
		seen: make(map[string]struct{}),
	}
}

// InsertEvent prepends the event to every feed it belongs to. Redelivered
// signatures are dropped silently, webhooks retry.
func (s *MemStore) InsertEvent(_ context.Context, ev Event) error {
	if ev.Sig == "" {
		return ErrInvalidEvent
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.seen[ev.Sig]; dup {
		return nil
	}
	s.seen[ev.Sig] = struct{}{}

	for kind := range s.feeds {
		if !ev.InFeed(kind) {
			continue
		}
		feed := append([]Event{ev}, s.feeds[kind]...)
		if len(feed) > s.maxKeep {
			dropped := feed[len(feed)-1]
			feed = feed[:s.maxKeep]
			if kind == FeedPublic {
				delete(s.seen, dropped.Sig)
			}
		}
		s.feeds[kind] = feed
	}
	return nil
}

func (s *MemStore) Feed(_ context.Context, kind FeedKind, limit int) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	feed, ok := s.feeds[kind]
	if !ok {
		return nil, ErrUnknownFeed
	}
	limit = clampFeedLimit(limit)
	if limit > len(feed) {
		limit = len(feed)
	}
	out := make([]Event, limit)
	copy(out, feed[:limit])
	return out, nil
}

func (s *MemStore) Close() error { return nil }

const (
	defaultFeedLimit = 50
	maxFeedLimit     = 200
)

func clampFeedLimit(limit int) int {
	if limit <= 0 {
		return defaultFeedLimit
	}
	if limit > maxFeedLimit {
		return maxFeedLimit
	}
	return limit
}
