// Package identity owns the local user's profile: created lazily once per
// origin, persisted in the Durable Store, and re-read by every consumer that
// needs "my handle".
package identity

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/roach88/lobbysync/internal/feed"
	"github.com/roach88/lobbysync/internal/store"
)

// Palette holds the color tags assigned to generated identities.
var Palette = []string{"#3b82f6", "#8b5cf6", "#ec4899", "#10b981", "#f59e0b"}

const (
	defaultBanner = "https://images.unsplash.com/photo-1614850523296-d8c1af93d400?q=80&w=1000&auto=format&fit=crop"
	defaultBio    = "Fortnite OG • Dropping bars on the local grid. 🏗️🔥"
)

// Generate builds the identity for a seed in [0, 10000).
func Generate(seed int, now time.Time) feed.Profile {
	return feed.Profile{
		Handle:    fmt.Sprintf("Player_%d", seed),
		Name:      fmt.Sprintf("LobbyMember_%d", seed),
		Avatar:    fmt.Sprintf("https://api.dicebear.com/7.x/avataaars/svg?seed=%d", seed),
		Banner:    defaultBanner,
		Color:     Palette[seed%len(Palette)],
		Bio:       defaultBio,
		JoinDate:  now.Format("January 2006"),
		Followers: []string{},
		Following: []string{},
	}
}

// Patch lists the profile fields to overwrite; nil fields are kept.
type Patch struct {
	Handle *string
	Name   *string
	Avatar *string
	Banner *string
	Color  *string
	Bio    *string
}

// Manager reads and writes the persisted identity.
type Manager struct {
	snaps *store.Snapshots
	seed  func() int
	now   func() time.Time

	mu       sync.Mutex
	fallback *feed.Profile
}

// Option configures a Manager.
type Option func(*Manager)

// WithSeed fixes the seed source for generated identities.
func WithSeed(seed func() int) Option {
	return func(m *Manager) { m.seed = seed }
}

// WithNow sets the clock used for join dates.
func WithNow(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager returns a Manager over snaps.
func NewManager(snaps *store.Snapshots, opts ...Option) *Manager {
	m := &Manager{
		snaps: snaps,
		seed:  func() int { return rand.IntN(10000) },
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get returns the persisted identity, generating and persisting one on
// first use. If the store cannot be read, a process-lifetime fallback
// identity is returned with the error so callers can keep going.
func (m *Manager) Get(ctx context.Context) (feed.Profile, error) {
	p, ok, err := m.snaps.LoadIdentity(ctx)
	if err != nil {
		return m.fallbackIdentity(), fmt.Errorf("load identity: %w", err)
	}
	if ok {
		return p, nil
	}

	p = m.fallbackIdentity()
	if err := m.snaps.SaveIdentity(ctx, p); err != nil {
		return p, fmt.Errorf("save new identity: %w", err)
	}
	slog.Info("created identity", "handle", p.Handle)
	return p, nil
}

// Set merges patch into the persisted identity and persists the result.
// Returns the identity before and after the change; a handle change is
// visible as old.Handle != updated.Handle and callers must reindex.
func (m *Manager) Set(ctx context.Context, patch Patch) (old, updated feed.Profile, err error) {
	old, err = m.Get(ctx)
	if err != nil {
		return feed.Profile{}, feed.Profile{}, err
	}

	updated = old.Clone()
	if patch.Handle != nil {
		h := feed.NormalizeHandle(*patch.Handle)
		if h == "" {
			return old, old, fmt.Errorf("set identity: empty handle")
		}
		updated.Handle = h
	}
	apply(&updated.Name, patch.Name)
	apply(&updated.Avatar, patch.Avatar)
	apply(&updated.Banner, patch.Banner)
	apply(&updated.Color, patch.Color)
	apply(&updated.Bio, patch.Bio)

	if err := m.snaps.SaveIdentity(ctx, updated); err != nil {
		return old, old, fmt.Errorf("save identity: %w", err)
	}
	return old, updated, nil
}

// Save persists p as the identity.
func (m *Manager) Save(ctx context.Context, p feed.Profile) error {
	if err := m.snaps.SaveIdentity(ctx, p); err != nil {
		return fmt.Errorf("save identity: %w", err)
	}
	return nil
}

func (m *Manager) fallbackIdentity() feed.Profile {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fallback == nil {
		p := Generate(m.seed(), m.now())
		m.fallback = &p
	}
	return m.fallback.Clone()
}

func apply(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
