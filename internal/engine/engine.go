package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/roach88/lobbysync/internal/bus"
	"github.com/roach88/lobbysync/internal/clock"
	"github.com/roach88/lobbysync/internal/event"
	"github.com/roach88/lobbysync/internal/feed"
	"github.com/roach88/lobbysync/internal/identity"
	"github.com/roach88/lobbysync/internal/metrics"
	"github.com/roach88/lobbysync/internal/moderation"
	"github.com/roach88/lobbysync/internal/presence"
	"github.com/roach88/lobbysync/internal/store"
)

// State is the replica's sync state.
type State int

const (
	// StateSyncing means the replica is still soliciting peer state.
	StateSyncing State = iota
	// StateLive means the replica has settled on its initial state.
	StateLive
)

func (s State) String() string {
	switch s {
	case StateSyncing:
		return "SYNCING"
	case StateLive:
		return "LIVE"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Timings are the replica's timer periods.
type Timings struct {
	SyncTimeout time.Duration
	Heartbeat   time.Duration
	Sweep       time.Duration
	Idle        time.Duration
}

// DefaultTimings returns the stock periods: a 1.5s sync timeout, a 2s
// heartbeat, a 3s sweep, and a 5s idle threshold.
func DefaultTimings() Timings {
	return Timings{
		SyncTimeout: 1500 * time.Millisecond,
		Heartbeat:   2 * time.Second,
		Sweep:       3 * time.Second,
		Idle:        5 * time.Second,
	}
}

// notificationBuffer bounds undelivered notifications; extras are dropped.
const notificationBuffer = 64

// Replica is one process's copy of the replicated state.
//
// Thread-safety model:
//   - Run: must be called exactly once, from one goroutine
//   - intents, Flush, View, Changes, Notifications: safe from any goroutine
type Replica struct {
	bus     bus.Bus
	snaps   *store.Snapshots
	ident   *identity.Manager
	guard   *moderation.Guard
	clock   clock.Clock
	ids     IDGenerator
	metrics *metrics.Collector
	timings Timings
	origin  string
	seq     *SeqClock

	queue   *taskQueue
	started atomic.Bool
	stopped chan struct{}

	view    atomic.Pointer[View]
	changes chan struct{}
	notes   chan Notification

	// Owned by the Run goroutine.
	state    State
	posts    []feed.Post
	messages []feed.DirectMessage
	profiles feed.Directory
	roster   *presence.Roster
	viewers  *presence.Viewers
	self     feed.Profile
	lastSeq  map[string]*seqWindow
}

// Option configures a Replica.
type Option func(*Replica)

// WithIdentity sets the identity manager. Defaults to a manager over the
// replica's snapshots.
func WithIdentity(m *identity.Manager) Option {
	return func(r *Replica) { r.ident = m }
}

// WithGuard sets the moderation guard. Without one all text is allowed.
func WithGuard(g *moderation.Guard) Option {
	return func(r *Replica) { r.guard = g }
}

// WithClock sets the clock driving timers and timestamps.
func WithClock(c clock.Clock) Option {
	return func(r *Replica) { r.clock = c }
}

// WithIDGenerator sets the generator for post and message identifiers.
func WithIDGenerator(g IDGenerator) Option {
	return func(r *Replica) { r.ids = g }
}

// WithOrigin fixes the process identifier carried on every envelope.
func WithOrigin(origin string) Option {
	return func(r *Replica) { r.origin = origin }
}

// WithMetrics attaches a metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(r *Replica) { r.metrics = c }
}

// WithTimings overrides the timer periods.
func WithTimings(t Timings) Option {
	return func(r *Replica) { r.timings = t }
}

// New creates a Replica publishing on b and persisting through snaps.
// The replica does nothing until Run is called.
func New(b bus.Bus, snaps *store.Snapshots, opts ...Option) *Replica {
	r := &Replica{
		bus:      b,
		snaps:    snaps,
		clock:    clock.Real(),
		ids:      UUIDv7Generator{},
		timings:  DefaultTimings(),
		seq:      NewSeqClock(),
		queue:    newTaskQueue(),
		stopped:  make(chan struct{}),
		changes:  make(chan struct{}, 1),
		notes:    make(chan Notification, notificationBuffer),
		state:    StateSyncing,
		posts:    []feed.Post{},
		messages: []feed.DirectMessage{},
		profiles: feed.Directory{},
		roster:   presence.NewRoster(),
		viewers:  presence.NewViewers(),
		lastSeq:  make(map[string]*seqWindow),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.ident == nil {
		r.ident = identity.NewManager(snaps, identity.WithNow(r.clock.Now))
	}
	if r.origin == "" {
		r.origin = UUIDv7Generator{}.Generate()
	}
	r.view.Store(&View{State: StateSyncing, Origin: r.origin})
	return r
}

// Origin returns the process identifier stamped on outbound events.
func (r *Replica) Origin() string { return r.origin }

// Run hydrates the replica and serves the event loop until ctx is
// cancelled. It returns ctx.Err() on cancellation.
//
// ERROR HANDLING: failures inside a task are logged with the task context
// and the loop continues. Nothing a peer sends can stop the loop.
func (r *Replica) Run(ctx context.Context) error {
	if !r.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(r.stopped)

	slog.Info("replica starting", "origin", r.origin)

	r.hydrate(ctx)

	unsubscribe := r.bus.Subscribe(func(frame []byte) {
		r.queue.Enqueue(task{kind: taskFrame, frame: frame})
	})
	defer unsubscribe()

	r.publish(ctx, event.SyncRequest{})

	timers := r.armTimers()
	defer timers.stop()

	r.commit()

	defer r.drain()

	for {
		t, ok := r.queue.TryDequeue()
		if ok {
			r.process(ctx, t)
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("replica stopping: context cancelled", "origin", r.origin)
			return ctx.Err()

		case <-r.queue.Wait():
		}
	}
}

// drain closes the queue and releases every intent still waiting on it.
func (r *Replica) drain() {
	for _, t := range r.queue.Close() {
		if t.done != nil {
			t.done <- ErrStopped
		}
	}
}

// process runs one task. Called only from the Run goroutine.
func (r *Replica) process(ctx context.Context, t task) {
	switch t.kind {
	case taskFrame:
		r.ingest(ctx, t.frame)

	case taskLocal:
		err := t.run(ctx, t.at)
		if err != nil && t.done == nil {
			slog.Error("task failed", "task", t.name, "error", err)
		}
		if t.done != nil {
			t.done <- err
		}

	default:
		slog.Error("unknown task kind", "kind", int(t.kind))
	}
}

// submit runs fn on the loop and waits for it. Work submitted before Run
// starts waits in the queue.
func (r *Replica) submit(ctx context.Context, name string, fn func(ctx context.Context, at time.Time) error) error {
	done := make(chan error, 1)
	if !r.queue.Enqueue(task{kind: taskLocal, name: name, at: r.clock.Now(), run: fn, done: done}) {
		return ErrStopped
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-r.stopped:
		// drain may have answered just before close.
		select {
		case err := <-done:
			return err
		default:
			return ErrStopped
		}
	}
}

// schedule enqueues fn without waiting. Used by timer callbacks.
func (r *Replica) schedule(name string, at time.Time, fn func(ctx context.Context, at time.Time) error) {
	r.queue.Enqueue(task{kind: taskLocal, name: name, at: at, run: fn})
}

// Flush returns once every task enqueued before it has been processed.
func (r *Replica) Flush(ctx context.Context) error {
	return r.submit(ctx, "flush", func(context.Context, time.Time) error { return nil })
}

// hydrate loads persisted state. Malformed or missing snapshots yield
// empty state; store errors are logged.
func (r *Replica) hydrate(ctx context.Context) {
	posts, _, err := r.snaps.LoadFeed(ctx)
	if err != nil {
		slog.Error("load feed failed", "error", err)
	}
	r.posts = posts

	messages, _, err := r.snaps.LoadMessages(ctx)
	if err != nil {
		slog.Error("load messages failed", "error", err)
	}
	r.messages = messages

	me := r.me(ctx)
	r.profiles.Upsert(me)

	slog.Info("replica hydrated",
		"origin", r.origin,
		"handle", me.Handle,
		"posts", feed.Size(r.posts),
		"messages", len(r.messages),
	)
}

// me re-reads the local identity from the store. On a store error the
// manager's fallback identity is used.
func (r *Replica) me(ctx context.Context) feed.Profile {
	p, err := r.ident.Get(ctx)
	if err != nil {
		slog.Warn("identity read failed, using fallback", "error", err)
	}
	r.self = p
	return p
}

// publish wraps ev in an envelope and hands it to the bus. Failures are
// logged; the bus is best effort.
func (r *Replica) publish(ctx context.Context, ev event.Event) {
	env := event.Envelope{Origin: r.origin, Seq: r.seq.Next(), Event: ev}
	data, err := event.Encode(env)
	if err != nil {
		slog.Error("encode event failed", "kind", ev.Kind(), "error", err)
		r.metrics.PublishResult(string(ev.Kind()), err)
		return
	}
	err = r.bus.Publish(ctx, data)
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Warn("publish failed", "kind", ev.Kind(), "seq", env.Seq, "error", err)
	}
	r.metrics.PublishResult(string(ev.Kind()), err)
}

func (r *Replica) persistFeed(ctx context.Context) {
	if err := r.snaps.SaveFeed(ctx, r.posts); err != nil {
		slog.Error("persist feed failed", "error", err)
		r.metrics.PersistFailed(store.KeyFeed)
	}
}

func (r *Replica) persistMessages(ctx context.Context) {
	if err := r.snaps.SaveMessages(ctx, r.messages); err != nil {
		slog.Error("persist messages failed", "error", err)
		r.metrics.PersistFailed(store.KeyMessages)
	}
}

func (r *Replica) persistIdentity(ctx context.Context, p feed.Profile) {
	if err := r.ident.Save(ctx, p); err != nil {
		slog.Error("persist identity failed", "handle", p.Handle, "error", err)
		r.metrics.PersistFailed("identity")
		return
	}
	r.self = p.Clone()
}

// goLive performs the one-way SYNCING -> LIVE transition.
func (r *Replica) goLive(reason string) bool {
	if r.state == StateLive {
		return false
	}
	r.state = StateLive
	slog.Info("replica live",
		"origin", r.origin,
		"reason", reason,
		"posts", feed.Size(r.posts),
		"messages", len(r.messages),
	)
	return true
}
