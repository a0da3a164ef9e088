package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lobbysync/internal/feed"
)

func TestSnapshots_FeedRoundTripRestoresTimestamps(t *testing.T) {
	ctx := context.Background()
	snaps := NewSnapshots(createTestStore(t), "")

	at := time.Date(2026, 10, 18, 8, 0, 0, 0, time.UTC)
	posts := []feed.Post{{
		ID:        "p1",
		Timestamp: at,
		ViewedBy:  []string{"a"},
		Replies:   []feed.Post{{ID: "r1", Timestamp: at.Add(time.Minute)}},
	}}
	require.NoError(t, snaps.SaveFeed(ctx, posts))

	got, ok, err := snaps.LoadFeed(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.True(t, at.Equal(got[0].Timestamp))
	assert.Equal(t, 1, got[0].Views)
	assert.Equal(t, "r1", got[0].Replies[0].ID)
	assert.NotNil(t, got[0].Replies[0].LikedBy)
}

func TestSnapshots_MalformedIsAbsent(t *testing.T) {
	ctx := context.Background()
	kv := NewMemory()
	snaps := NewSnapshots(kv, "")

	require.NoError(t, kv.Save(ctx, KeyFeed, []byte("{not json")))
	require.NoError(t, kv.Save(ctx, KeyMessages, []byte(`"a string"`)))
	require.NoError(t, kv.Save(ctx, KeyIdentity, []byte(`{"name":"no handle"}`)))

	posts, ok, err := snaps.LoadFeed(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, posts)
	assert.NotNil(t, posts)

	msgs, ok, err := snaps.LoadMessages(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, msgs)

	_, ok, err = snaps.LoadIdentity(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSnapshots_IdentityKeyIsolation(t *testing.T) {
	ctx := context.Background()
	kv := NewMemory()
	alice := NewSnapshots(kv, "identity.alice")
	bob := NewSnapshots(kv, "identity.bob")

	require.NoError(t, alice.SaveIdentity(ctx, feed.Profile{Handle: "alice"}))

	_, ok, err := bob.LoadIdentity(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	p, ok, err := alice.LoadIdentity(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "alice", p.Handle)
}

func TestSnapshots_Messages(t *testing.T) {
	ctx := context.Background()
	snaps := NewSnapshots(NewMemory(), "")

	log := []feed.DirectMessage{{ID: "m1", SenderHandle: "A", ReceiverHandle: "B", Content: "hi", Timestamp: 1}}
	require.NoError(t, snaps.SaveMessages(ctx, log))

	got, ok, err := snaps.LoadMessages(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, log, got)
}
