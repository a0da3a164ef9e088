package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lobbysync/internal/bus"
	"github.com/roach88/lobbysync/internal/clock"
	"github.com/roach88/lobbysync/internal/event"
	"github.com/roach88/lobbysync/internal/feed"
	"github.com/roach88/lobbysync/internal/identity"
	"github.com/roach88/lobbysync/internal/store"
)

// newIdle builds a replica without starting its loop, so tests can call
// handlers directly from the test goroutine.
func newIdle(t *testing.T) *Replica {
	t.Helper()
	clk := clock.Fake(epoch)
	snaps := store.NewSnapshots(store.NewMemory(), "")
	ident := identity.NewManager(snaps,
		identity.WithSeed(func() int { return 2 }),
		identity.WithNow(clk.Now),
	)
	r := New(bus.NewHub().Join(), snaps, WithClock(clk), WithOrigin("me"), WithIdentity(ident))
	r.hydrate(context.Background())
	r.profiles.Upsert(feed.Profile{Handle: "Player_1"})
	r.posts = []feed.Post{{ID: "root", Replies: []feed.Post{}}}
	return r
}

type replicaState struct {
	Posts    []feed.Post
	Messages []feed.DirectMessage
	Profiles feed.Directory
	Online   int
	Viewers  map[string]int
}

func stateOf(r *Replica) replicaState {
	return replicaState{
		Posts:    feed.CloneForest(r.posts),
		Messages: append([]feed.DirectMessage{}, r.messages...),
		Profiles: r.profiles.Clone(),
		Online:   r.roster.Len(),
		Viewers:  r.viewers.Counts(),
	}
}

func TestHandlers_ApplyingTwiceEqualsOnce(t *testing.T) {
	tests := []struct {
		name string
		ev   event.Event
		// refreshes marks events whose repeat still moves a timestamp.
		refreshes bool
	}{
		{name: "new post", ev: event.NewPost{Post: feed.Post{ID: "p1", Content: "hi"}}},
		{name: "new reply", ev: event.NewReply{ParentID: "root", Post: feed.Post{ID: "r1"}}},
		{name: "delete post", ev: event.DeletePost{PostID: "root"}},
		{name: "view metric", ev: event.MetricUpdate{PostID: "root", Metric: feed.MetricView, UserHandle: "Player_1"}},
		{name: "new message", ev: event.NewMessage{Message: feed.DirectMessage{ID: "m1", SenderHandle: "Player_1", ReceiverHandle: "Player_2"}}},
		{name: "profile uplink", ev: event.ProfileUplink{Profile: feed.Profile{Handle: "Player_7", Bio: "hey"}}},
		{name: "follow update", ev: event.FollowUpdate{FollowerHandle: "Player_1", FollowedHandle: "Player_2", Action: feed.Follow}},
		{name: "unfollow update", ev: event.FollowUpdate{FollowerHandle: "Player_1", FollowedHandle: "Player_2", Action: feed.Unfollow}},
		{name: "live view heartbeat", ev: event.LiveViewHeartbeat{PostID: "root"}},
		{name: "presence", ev: event.Presence{Profile: feed.Profile{Handle: "Player_1"}}, refreshes: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			r := newIdle(t)
			env := event.Envelope{Origin: "peer", Seq: 1, Event: tt.ev}

			r.apply(ctx, env)
			once := stateOf(r)

			changed := r.apply(ctx, env)
			if !tt.refreshes {
				assert.False(t, changed, "second application reports no change")
			}
			assert.Equal(t, once, stateOf(r))
		})
	}
}

func TestHandlers_NewReplyUnknownParentIsNoop(t *testing.T) {
	r := newIdle(t)
	before := stateOf(r)

	changed := r.apply(context.Background(), event.Envelope{Origin: "peer", Event: event.NewReply{
		ParentID: "ghost",
		Post:     feed.Post{ID: "r1"},
	}})

	assert.False(t, changed)
	assert.Equal(t, before, stateOf(r))
}

func TestHandlers_NewPostHydratesAndGuardsSubtree(t *testing.T) {
	ctx := context.Background()
	r := newIdle(t)

	require.True(t, r.apply(ctx, event.Envelope{Origin: "peer", Event: event.NewPost{Post: feed.Post{
		ID:       "p1",
		ViewedBy: []string{"x", "y"},
		Views:    99,
		Likes:    -3,
	}}}))
	p := feed.Find(r.posts, "p1")
	require.NotNil(t, p)
	assert.Equal(t, 2, p.Views)
	assert.Equal(t, 0, p.Likes)
	assert.NotNil(t, p.LikedBy)

	// A post whose reply reuses an existing id is rejected whole.
	assert.False(t, r.apply(ctx, event.Envelope{Origin: "peer", Event: event.NewPost{Post: feed.Post{
		ID:      "p2",
		Replies: []feed.Post{{ID: "root"}},
	}}}))
	assert.Equal(t, 2, feed.Size(r.posts))
}

func TestHandlers_FollowUpdatePersistsLocalIdentity(t *testing.T) {
	ctx := context.Background()
	r := newIdle(t)

	require.True(t, r.apply(ctx, event.Envelope{Origin: "peer", Event: event.FollowUpdate{
		FollowerHandle: "Player_1",
		FollowedHandle: "Player_2",
		Action:         feed.Follow,
	}}))

	me, err := r.ident.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Player_1"}, me.Followers)
	assert.Equal(t, []string{"Player_2"}, r.profiles["Player_1"].Following)
}

func TestHandlers_FollowUpdateUnknownSidesIgnored(t *testing.T) {
	r := newIdle(t)
	before := stateOf(r)

	assert.False(t, r.apply(context.Background(), event.Envelope{Origin: "peer", Event: event.FollowUpdate{
		FollowerHandle: "ghost1",
		FollowedHandle: "ghost2",
		Action:         feed.Follow,
	}}))
	assert.Equal(t, before, stateOf(r))
}

func TestHandlers_InvalidPayloadsIgnored(t *testing.T) {
	ctx := context.Background()
	r := newIdle(t)
	before := stateOf(r)

	for _, ev := range []event.Event{
		event.MetricUpdate{PostID: "root", Metric: "boost", UserHandle: "Player_1"},
		event.MetricUpdate{PostID: "root", Metric: feed.MetricLike},
		event.FollowUpdate{FollowerHandle: "Player_1", FollowedHandle: "Player_2", Action: "block"},
		event.NewPost{Post: feed.Post{}},
		event.NewMessage{},
		event.ProfileUplink{},
		event.Presence{},
		event.LiveViewHeartbeat{},
	} {
		assert.False(t, r.apply(ctx, event.Envelope{Origin: "peer", Event: ev}), "%T", ev)
	}
	assert.Equal(t, before, stateOf(r))
}

func TestHandlers_MetricToggleIsPerEvent(t *testing.T) {
	ctx := context.Background()
	r := newIdle(t)
	like := event.MetricUpdate{PostID: "root", Metric: feed.MetricLike, UserHandle: "Player_1"}

	r.apply(ctx, event.Envelope{Origin: "peer", Seq: 1, Event: like})
	assert.Equal(t, 1, feed.Find(r.posts, "root").Likes)

	r.apply(ctx, event.Envelope{Origin: "peer", Seq: 2, Event: like})
	assert.Equal(t, 0, feed.Find(r.posts, "root").Likes)

	r.apply(ctx, event.Envelope{Origin: "peer", Seq: 3, Event: like})
	r.apply(ctx, event.Envelope{Origin: "peer", Seq: 4, Event: like})
	r.apply(ctx, event.Envelope{Origin: "peer", Seq: 5, Event: like})
	p := feed.Find(r.posts, "root")
	assert.Equal(t, 1, p.Likes)
	assert.Equal(t, len(p.LikedBy), p.Likes)
}

func TestHandlers_PresenceRecordsSenderTime(t *testing.T) {
	r := newIdle(t)
	fake := r.clock.(*clock.FakeClock)
	fake.Advance(time.Second)

	r.apply(context.Background(), event.Envelope{Origin: "tab-9", Event: event.Presence{
		Profile: feed.Profile{Handle: "Player_9"},
	}})

	online := r.roster.List()
	require.Len(t, online, 1)
	assert.Equal(t, "tab-9", online[0].Origin)
	assert.Equal(t, epoch.Add(time.Second), online[0].LastSeen)
	assert.Contains(t, r.profiles, "Player_9")
}
