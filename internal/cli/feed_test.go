package cli

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lobbysync/internal/config"
	"github.com/roach88/lobbysync/internal/feed"
	"github.com/roach88/lobbysync/internal/store"
)

func seedDatabase(t *testing.T, path string) {
	t.Helper()
	st, err := store.Open(path)
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	snaps := store.NewSnapshots(st, config.Default().IdentityKey)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	author := feed.Profile{Handle: "Player_1"}
	require.NoError(t, snaps.SaveFeed(ctx, []feed.Post{{
		ID: "p1", Author: author, Content: "first drop", Timestamp: at, Likes: 2,
		Replies: []feed.Post{{ID: "r1", Author: feed.Profile{Handle: "Player_2"}, Content: "gg", Timestamp: at.Add(time.Second)}},
	}}))
	require.NoError(t, snaps.SaveMessages(ctx, []feed.DirectMessage{{
		ID: "m1", SenderHandle: "Player_2", ReceiverHandle: "Player_1", Content: "sup", Timestamp: at.UnixMilli(),
	}}))
}

func TestFeed_Text(t *testing.T) {
	db := filepath.Join(t.TempDir(), "feed.db")
	seedDatabase(t, db)

	out, err := execute(t, "feed", "--db", db)
	require.NoError(t, err)
	assert.Equal(t, "posts (2):\n"+
		"- [p1] @Player_1: first drop (likes 2, shares 0, views 0) 2026-03-01T12:00:00Z\n"+
		"  - [r1] @Player_2: gg (likes 0, shares 0, views 0) 2026-03-01T12:00:01Z\n"+
		"messages (1):\n"+
		"- [m1] Player_2 -> Player_1: sup 2026-03-01T12:00:00Z\n", out)
}

func TestFeed_JSON(t *testing.T) {
	db := filepath.Join(t.TempDir(), "feed.db")
	seedDatabase(t, db)

	out, err := execute(t, "feed", "--db", db, "--format", "json")
	require.NoError(t, err)

	var got FeedOutput
	assert.Equal(t, "ok", decodeData(t, out, &got))
	require.Len(t, got.Posts, 1)
	assert.Equal(t, []string{"p1", "r1"}, feed.IDs(got.Posts))
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "sup", got.Messages[0].Content)
}

func TestFeed_EmptyDatabase(t *testing.T) {
	db := filepath.Join(t.TempDir(), "feed.db")

	out, err := execute(t, "feed", "--db", db, "--format", "json")
	require.NoError(t, err)

	var got FeedOutput
	decodeData(t, out, &got)
	assert.NotNil(t, got.Posts)
	assert.Empty(t, got.Posts)
	assert.Empty(t, got.Messages)
}
