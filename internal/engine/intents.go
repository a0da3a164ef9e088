package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/lobbysync/internal/event"
	"github.com/roach88/lobbysync/internal/feed"
	"github.com/roach88/lobbysync/internal/identity"
)

// Local intents apply the same mutation a peer would apply on receipt,
// persist it, and then publish the event. The originator never receives
// its own echo.

// CreatePost publishes a new root post authored by the local identity.
func (r *Replica) CreatePost(ctx context.Context, content string, media *feed.Media) (feed.Post, error) {
	if err := r.checkContent(ctx, content, media); err != nil {
		return feed.Post{}, err
	}

	var post feed.Post
	err := r.submit(ctx, "create-post", func(ctx context.Context, at time.Time) error {
		post = r.newPost(ctx, content, media, at)
		next, inserted := feed.Prepend(r.posts, post)
		if !inserted {
			return fmt.Errorf("create post: duplicate id %q", post.ID)
		}
		r.posts = next
		r.persistFeed(ctx)
		r.publish(ctx, event.NewPost{Post: post.Clone()})
		r.commit()
		return nil
	})
	return post, err
}

// CreateReply publishes a reply under parentID.
func (r *Replica) CreateReply(ctx context.Context, parentID, content string, media *feed.Media) (feed.Post, error) {
	if err := r.checkContent(ctx, content, media); err != nil {
		return feed.Post{}, err
	}

	var reply feed.Post
	err := r.submit(ctx, "create-reply", func(ctx context.Context, at time.Time) error {
		if !feed.Contains(r.posts, parentID) {
			return fmt.Errorf("reply to %q: %w", parentID, ErrPostNotFound)
		}
		reply = r.newPost(ctx, content, media, at)
		if !feed.InsertReply(r.posts, parentID, reply) {
			return fmt.Errorf("create reply: duplicate id %q", reply.ID)
		}
		r.persistFeed(ctx)
		r.publish(ctx, event.NewReply{ParentID: parentID, Post: reply.Clone()})
		r.commit()
		return nil
	})
	return reply, err
}

// DeletePost removes a post and its replies everywhere.
func (r *Replica) DeletePost(ctx context.Context, postID string) error {
	return r.submit(ctx, "delete-post", func(ctx context.Context, _ time.Time) error {
		next, removed := feed.Remove(r.posts, postID)
		if !removed {
			return fmt.Errorf("delete %q: %w", postID, ErrPostNotFound)
		}
		r.posts = next
		r.persistFeed(ctx)
		r.publish(ctx, event.DeletePost{PostID: postID})
		r.commit()
		return nil
	})
}

// ToggleMetric records the local user's like, share, or view on a post.
// Likes and shares toggle; a repeated view changes nothing but is still
// announced.
func (r *Replica) ToggleMetric(ctx context.Context, postID string, m feed.Metric) error {
	if _, err := feed.ParseMetric(string(m)); err != nil {
		return err
	}
	return r.submit(ctx, "toggle-metric", func(ctx context.Context, _ time.Time) error {
		me := r.me(ctx)
		var changed bool
		if !feed.Update(r.posts, postID, func(p *feed.Post) {
			changed = p.ApplyMetric(m, me.Handle)
		}) {
			return fmt.Errorf("%s %q: %w", m, postID, ErrPostNotFound)
		}
		if changed {
			r.persistFeed(ctx)
		}
		r.publish(ctx, event.MetricUpdate{PostID: postID, Metric: m, UserHandle: me.Handle})
		if changed {
			r.commit()
		}
		return nil
	})
}

// SendMessage appends a direct message from the local user to receiver.
func (r *Replica) SendMessage(ctx context.Context, receiver, content string) (feed.DirectMessage, error) {
	if err := r.checkContent(ctx, content, nil); err != nil {
		return feed.DirectMessage{}, err
	}

	var msg feed.DirectMessage
	err := r.submit(ctx, "send-message", func(ctx context.Context, at time.Time) error {
		me := r.me(ctx)
		msg = feed.DirectMessage{
			ID:             r.ids.Generate(),
			SenderHandle:   me.Handle,
			ReceiverHandle: feed.NormalizeHandle(receiver),
			Content:        content,
			Timestamp:      at.UnixMilli(),
		}
		next, appended := feed.AppendMessage(r.messages, msg)
		if !appended {
			return fmt.Errorf("send message: duplicate id %q", msg.ID)
		}
		r.messages = next
		r.persistMessages(ctx)
		r.publish(ctx, event.NewMessage{Message: msg})
		r.commit()
		return nil
	})
	return msg, err
}

// ToggleFollow follows target, or unfollows it if already followed.
// Returns the action taken.
func (r *Replica) ToggleFollow(ctx context.Context, target string) (feed.FollowAction, error) {
	target = feed.NormalizeHandle(target)

	var action feed.FollowAction
	err := r.submit(ctx, "toggle-follow", func(ctx context.Context, _ time.Time) error {
		me := r.me(ctx)
		if target == me.Handle {
			return ErrSelfFollow
		}
		if _, ok := r.profiles[target]; !ok {
			return fmt.Errorf("follow %q: %w", target, ErrUnknownProfile)
		}

		action = feed.Follow
		if me.IsFollowing(target) {
			action = feed.Unfollow
		}
		r.publish(ctx, event.FollowUpdate{
			FollowerHandle: me.Handle,
			FollowedHandle: target,
			Action:         action,
		})

		mine := feed.Directory{me.Handle: me}
		mine.ApplyFollow(me.Handle, target, action)
		updated := mine[me.Handle]
		r.persistIdentity(ctx, updated)

		r.profiles.Upsert(updated)
		r.profiles.ApplyFollow(me.Handle, target, action)
		r.commit()
		return nil
	})
	return action, err
}

// UpdateProfile merges patch into the local identity, reindexes the
// directory when the handle changed, and announces the new profile.
func (r *Replica) UpdateProfile(ctx context.Context, patch identity.Patch) (feed.Profile, error) {
	var updated feed.Profile
	err := r.submit(ctx, "update-profile", func(ctx context.Context, _ time.Time) error {
		old, next, err := r.ident.Set(ctx, patch)
		if err != nil {
			return err
		}
		updated = next
		r.self = next.Clone()
		r.profiles.Rename(old.Handle, next)
		r.publish(ctx, event.ProfileUplink{Profile: next})
		r.commit()
		return nil
	})
	return updated, err
}

// HeartbeatView tells peers this process is looking at postID. It does not
// record a local viewer.
func (r *Replica) HeartbeatView(ctx context.Context, postID string) error {
	return r.submit(ctx, "heartbeat-view", func(ctx context.Context, _ time.Time) error {
		r.publish(ctx, event.LiveViewHeartbeat{PostID: postID})
		return nil
	})
}

// checkContent validates text and media and consults the moderation guard.
// It runs on the caller's goroutine so a slow oracle never stalls the loop.
func (r *Replica) checkContent(ctx context.Context, content string, media *feed.Media) error {
	if media != nil && (!media.Kind.Valid() || media.URL == "") {
		return ErrInvalidMedia
	}
	if strings.TrimSpace(content) == "" {
		if media == nil {
			return ErrEmptyContent
		}
		return nil
	}
	if !r.guard.Allow(ctx, content) {
		return ErrContentBlocked
	}
	return nil
}

func (r *Replica) newPost(ctx context.Context, content string, media *feed.Media, at time.Time) feed.Post {
	var m *feed.Media
	if media != nil {
		cp := *media
		m = &cp
	}
	return feed.Post{
		ID:        r.ids.Generate(),
		Author:    r.me(ctx),
		Content:   content,
		Media:     m,
		Timestamp: at.UTC(),
		LikedBy:   []string{},
		SharedBy:  []string{},
		ViewedBy:  []string{},
		Replies:   []feed.Post{},
	}
}
