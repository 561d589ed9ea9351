package relay

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemStoreNewestFirstAndBounded(t *testing.T) {
	store := NewMemStore(3)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.InsertEvent(ctx, Event{Sig: fmt.Sprintf("sig-%d", i), Ts: int64(i)}))
	}

	feed, err := store.Feed(ctx, FeedPublic, 10)
	require.NoError(t, err)
	require.Len(t, feed, 3, "window stays bounded")
	require.Equal(t, "sig-4", feed[0].Sig, "newest first")
	require.Equal(t, "sig-2", feed[2].Sig)
}

func TestMemStoreDropsRedeliveredSignatures(t *testing.T) {
	store := NewMemStore(10)
	ctx := context.Background()

	require.NoError(t, store.InsertEvent(ctx, Event{Sig: "dup", AmountDMD: 1}))
	require.NoError(t, store.InsertEvent(ctx, Event{Sig: "dup", AmountDMD: 99}))

	feed, err := store.Feed(ctx, FeedPublic, 10)
	require.NoError(t, err)
	require.Len(t, feed, 1)
	require.Equal(t, 1.0, feed[0].AmountDMD, "first delivery wins")
}

func TestMemStoreFeedRouting(t *testing.T) {
	store := NewMemStore(10)
	ctx := context.Background()

	require.NoError(t, store.InsertEvent(ctx, Event{Sig: "plain"}))
	require.NoError(t, store.InsertEvent(ctx, Event{Sig: "tre", IsTreasury: true}))
	require.NoError(t, store.InsertEvent(ctx, Event{Sig: "fou", IsFounder: true}))

	public, err := store.Feed(ctx, FeedPublic, 10)
	require.NoError(t, err)
	require.Len(t, public, 3)

	treasury, err := store.Feed(ctx, FeedTreasury, 10)
	require.NoError(t, err)
	require.Len(t, treasury, 1)
	require.Equal(t, "tre", treasury[0].Sig)

	founder, err := store.Feed(ctx, FeedFounder, 10)
	require.NoError(t, err)
	require.Len(t, founder, 1)
	require.Equal(t, "fou", founder[0].Sig)

	_, err = store.Feed(ctx, FeedKind("bogus"), 10)
	require.ErrorIs(t, err, ErrUnknownFeed)
}

func TestMemStoreRejectsEmptySignature(t *testing.T) {
	store := NewMemStore(10)
	require.ErrorIs(t, store.InsertEvent(context.Background(), Event{}), ErrInvalidEvent)
}

func TestClampFeedLimit(t *testing.T) {
	require.Equal(t, defaultFeedLimit, clampFeedLimit(0))
	require.Equal(t, defaultFeedLimit, clampFeedLimit(-5))
	require.Equal(t, 7, clampFeedLimit(7))
	require.Equal(t, maxFeedLimit, clampFeedLimit(100_000))
}
