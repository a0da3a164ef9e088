package engine

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/roach88/lobbysync/internal/event"
	"github.com/roach88/lobbysync/internal/feed"
	"github.com/roach88/lobbysync/internal/metrics"
)

// ingest decodes a peer frame and applies it. Called only from the Run
// goroutine.
func (r *Replica) ingest(ctx context.Context, frame []byte) {
	start := time.Now()

	env, err := event.Decode(frame)
	if err != nil {
		if errors.Is(err, event.ErrUnknownKind) {
			slog.Debug("ignoring unknown event kind", "error", err)
		} else {
			slog.Warn("dropping malformed frame", "bytes", len(frame), "error", err)
		}
		r.metrics.FrameDropped(metrics.DropUndecodable)
		return
	}
	if env.Origin == r.origin {
		r.metrics.FrameDropped(metrics.DropSelfOrigin)
		return
	}
	if !r.trackSeq(env) {
		r.metrics.FrameDropped(metrics.DropDuplicate)
		return
	}

	kind := env.Event.Kind()
	changed := r.apply(ctx, env)
	r.metrics.EventApplied(string(kind), changed, time.Since(start))

	slog.Debug("event processed",
		"kind", kind,
		"origin", env.Origin,
		"seq", env.Seq,
		"changed", changed,
	)

	if changed {
		r.commit()
	}
}

// trackSeq records the frame's (origin, seq) and reports false for an exact
// redelivery. Frames that arrive behind their origin's high-water mark are
// counted but still applied.
func (r *Replica) trackSeq(env event.Envelope) bool {
	w, ok := r.lastSeq[env.Origin]
	if !ok {
		w = newSeqWindow()
		r.lastSeq[env.Origin] = w
	}
	dup, reordered := w.observe(env.Seq, r.clock.Now())
	if reordered {
		r.metrics.Reordered()
		slog.Debug("frame out of order", "origin", env.Origin, "seq", env.Seq, "high", w.high)
	}
	return !dup
}

// apply routes an event to its handler and reports whether visible state
// changed.
func (r *Replica) apply(ctx context.Context, env event.Envelope) bool {
	switch ev := env.Event.(type) {
	case event.SyncRequest:
		return r.onSyncRequest(ctx)
	case event.SyncResponse:
		return r.onSyncResponse(ctx, ev)
	case event.NewPost:
		return r.onNewPost(ctx, ev)
	case event.NewReply:
		return r.onNewReply(ctx, ev)
	case event.DeletePost:
		return r.onDeletePost(ctx, ev)
	case event.MetricUpdate:
		return r.onMetricUpdate(ctx, ev)
	case event.NewMessage:
		return r.onNewMessage(ctx, ev)
	case event.ProfileUplink:
		return r.onProfileUplink(ev)
	case event.FollowUpdate:
		return r.onFollowUpdate(ctx, ev)
	case event.LiveViewHeartbeat:
		return r.onLiveViewHeartbeat(env.Origin, ev)
	case event.Presence:
		return r.onPresence(env.Origin, ev)
	}
	slog.Warn("no handler for event", "kind", env.Event.Kind())
	return false
}

// onSyncRequest answers with the full local snapshot, if there is one.
func (r *Replica) onSyncRequest(ctx context.Context) bool {
	if len(r.posts) == 0 {
		return false
	}
	r.publish(ctx, event.SyncResponse{
		Posts:    feed.CloneForest(r.posts),
		Messages: slices.Clone(r.messages),
	})
	return false
}

// onSyncResponse replaces local state wholesale when still syncing and the
// offer has at least as many root posts as we do.
func (r *Replica) onSyncResponse(ctx context.Context, ev event.SyncResponse) bool {
	if r.state != StateSyncing {
		return false
	}
	if ev.Posts == nil || len(ev.Posts) < len(r.posts) {
		slog.Debug("sync response rejected", "offered", len(ev.Posts), "local", len(r.posts))
		return false
	}

	r.posts = feed.Hydrate(ev.Posts)
	r.persistFeed(ctx)
	if ev.Messages != nil {
		r.messages = feed.HydrateMessages(ev.Messages)
		r.persistMessages(ctx)
	}
	r.goLive("sync response")
	return true
}

func (r *Replica) onNewPost(ctx context.Context, ev event.NewPost) bool {
	post := hydrateOne(ev.Post)
	if post.ID == "" {
		return false
	}
	next, inserted := feed.Prepend(r.posts, post)
	if !inserted {
		return false
	}
	r.posts = next
	r.persistFeed(ctx)

	if me := r.me(ctx); feed.Mentions(post.Content, me.Handle) {
		r.notify(Notification{
			Kind:    NotifyMention,
			From:    post.Author.Handle,
			PostID:  post.ID,
			Content: post.Content,
		})
	}
	return true
}

func (r *Replica) onNewReply(ctx context.Context, ev event.NewReply) bool {
	reply := hydrateOne(ev.Post)
	if reply.ID == "" || !feed.InsertReply(r.posts, ev.ParentID, reply) {
		return false
	}
	r.persistFeed(ctx)
	return true
}

func (r *Replica) onDeletePost(ctx context.Context, ev event.DeletePost) bool {
	next, removed := feed.Remove(r.posts, ev.PostID)
	if !removed {
		return false
	}
	r.posts = next
	r.persistFeed(ctx)
	return true
}

func (r *Replica) onMetricUpdate(ctx context.Context, ev event.MetricUpdate) bool {
	if ev.UserHandle == "" {
		return false
	}
	if _, err := feed.ParseMetric(string(ev.Metric)); err != nil {
		slog.Debug("ignoring metric update", "error", err)
		return false
	}
	var changed bool
	feed.Update(r.posts, ev.PostID, func(p *feed.Post) {
		changed = p.ApplyMetric(ev.Metric, ev.UserHandle)
	})
	if !changed {
		return false
	}
	r.persistFeed(ctx)
	return true
}

func (r *Replica) onNewMessage(ctx context.Context, ev event.NewMessage) bool {
	if ev.Message.ID == "" {
		return false
	}
	next, appended := feed.AppendMessage(r.messages, ev.Message)
	if !appended {
		return false
	}
	r.messages = next
	r.persistMessages(ctx)

	if me := r.me(ctx); ev.Message.ReceiverHandle == me.Handle {
		r.notify(Notification{
			Kind:      NotifyDirectMessage,
			From:      ev.Message.SenderHandle,
			MessageID: ev.Message.ID,
			Content:   ev.Message.Content,
		})
	}
	return true
}

func (r *Replica) onProfileUplink(ev event.ProfileUplink) bool {
	return r.upsertProfile(ev.Profile)
}

// onFollowUpdate applies the edge to whichever sides are known locally and
// persists the local identity when it is one of them.
func (r *Replica) onFollowUpdate(ctx context.Context, ev event.FollowUpdate) bool {
	if _, err := feed.ParseFollowAction(string(ev.Action)); err != nil {
		slog.Debug("ignoring follow update", "error", err)
		return false
	}
	a, b := r.profiles.ApplyFollow(ev.FollowerHandle, ev.FollowedHandle, ev.Action)
	changed := a || b

	me := r.me(ctx)
	if ev.FollowerHandle == me.Handle || ev.FollowedHandle == me.Handle {
		mine := feed.Directory{me.Handle: me}
		if x, y := mine.ApplyFollow(ev.FollowerHandle, ev.FollowedHandle, ev.Action); x || y {
			r.persistIdentity(ctx, mine[me.Handle])
			changed = true
		}
	}
	return changed
}

func (r *Replica) onLiveViewHeartbeat(origin string, ev event.LiveViewHeartbeat) bool {
	if ev.PostID == "" {
		return false
	}
	return r.viewers.Touch(ev.PostID, origin, r.clock.Now())
}

func (r *Replica) onPresence(origin string, ev event.Presence) bool {
	if ev.Profile.Handle == "" {
		return false
	}
	r.roster.Touch(ev.Profile, origin, r.clock.Now())
	r.upsertProfile(ev.Profile)
	return true
}

// upsertProfile stores p unless an identical copy is already known.
func (r *Replica) upsertProfile(p feed.Profile) bool {
	if p.Handle == "" {
		return false
	}
	if cur, ok := r.profiles[p.Handle]; ok && sameProfile(cur, p) {
		return false
	}
	r.profiles.Upsert(p)
	return true
}

func sameProfile(a, b feed.Profile) bool {
	return a.Handle == b.Handle &&
		a.Name == b.Name &&
		a.Avatar == b.Avatar &&
		a.Banner == b.Banner &&
		a.Color == b.Color &&
		a.Bio == b.Bio &&
		a.JoinDate == b.JoinDate &&
		slices.Equal(a.Followers, b.Followers) &&
		slices.Equal(a.Following, b.Following)
}

func hydrateOne(p feed.Post) feed.Post {
	return feed.Hydrate([]feed.Post{p})[0]
}
