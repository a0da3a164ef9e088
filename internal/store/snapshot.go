package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/roach88/lobbysync/internal/feed"
)

// Default storage keys.
const (
	KeyFeed     = "lobbysync.feed.v3"
	KeyMessages = "lobbysync.messages.v3"
	KeyIdentity = "lobbysync.identity.v4"
)

// Snapshots reads and writes the typed JSON snapshots a replica persists.
//
// Malformed stored data is never an error: it is logged and reported as
// absent so the caller falls back to empty or default state. Errors are
// returned only when the underlying KV itself fails.
type Snapshots struct {
	kv          KV
	identityKey string
}

// NewSnapshots wraps kv. An empty identityKey selects KeyIdentity.
func NewSnapshots(kv KV, identityKey string) *Snapshots {
	if identityKey == "" {
		identityKey = KeyIdentity
	}
	return &Snapshots{kv: kv, identityKey: identityKey}
}

// LoadFeed returns the persisted forest, hydrated.
func (s *Snapshots) LoadFeed(ctx context.Context) ([]feed.Post, bool, error) {
	var posts []feed.Post
	ok, err := s.load(ctx, KeyFeed, &posts)
	if err != nil || !ok {
		return []feed.Post{}, false, err
	}
	return feed.Hydrate(posts), true, nil
}

// SaveFeed persists the forest.
func (s *Snapshots) SaveFeed(ctx context.Context, posts []feed.Post) error {
	return s.save(ctx, KeyFeed, feed.Hydrate(posts))
}

// LoadMessages returns the persisted message log.
func (s *Snapshots) LoadMessages(ctx context.Context) ([]feed.DirectMessage, bool, error) {
	var log []feed.DirectMessage
	ok, err := s.load(ctx, KeyMessages, &log)
	if err != nil || !ok {
		return []feed.DirectMessage{}, false, err
	}
	return feed.HydrateMessages(log), true, nil
}

// SaveMessages persists the message log.
func (s *Snapshots) SaveMessages(ctx context.Context, log []feed.DirectMessage) error {
	return s.save(ctx, KeyMessages, feed.HydrateMessages(log))
}

// LoadIdentity returns the persisted local profile.
func (s *Snapshots) LoadIdentity(ctx context.Context) (feed.Profile, bool, error) {
	var p feed.Profile
	ok, err := s.load(ctx, s.identityKey, &p)
	if err != nil || !ok {
		return feed.Profile{}, false, err
	}
	if p.Handle == "" {
		slog.Warn("discarding stored identity without handle", "key", s.identityKey)
		return feed.Profile{}, false, nil
	}
	return p.Clone(), true, nil
}

// SaveIdentity persists the local profile.
func (s *Snapshots) SaveIdentity(ctx context.Context, p feed.Profile) error {
	return s.save(ctx, s.identityKey, p.Clone())
}

func (s *Snapshots) load(ctx context.Context, key string, v any) (bool, error) {
	data, ok, err := s.kv.Load(ctx, key)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		slog.Warn("discarding malformed snapshot", "key", key, "error", err)
		return false, nil
	}
	return true, nil
}

func (s *Snapshots) save(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	return s.kv.Save(ctx, key, data)
}
