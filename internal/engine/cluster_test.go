package engine

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/lobbysync/internal/bus"
	"github.com/roach88/lobbysync/internal/clock"
	"github.com/roach88/lobbysync/internal/event"
	"github.com/roach88/lobbysync/internal/feed"
	"github.com/roach88/lobbysync/internal/identity"
	"github.com/roach88/lobbysync/internal/metrics"
	"github.com/roach88/lobbysync/internal/store"
	"github.com/roach88/lobbysync/internal/testutil"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// cluster runs several replicas over a manual hub and a shared fake clock,
// so every delivery and timer firing happens when the test says so.
type cluster struct {
	t     *testing.T
	ctx   context.Context
	hub   *bus.Hub
	clk   *clock.FakeClock
	nodes []*node
}

type node struct {
	name    string
	r       *Replica
	ep      *bus.Endpoint
	kv      store.KV
	met     *metrics.Collector
	cancel  context.CancelFunc
	done    chan error
	stopped bool
}

func newCluster(t *testing.T) *cluster {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return &cluster{
		t:   t,
		ctx: ctx,
		hub: bus.NewHub(bus.WithManualDelivery()),
		clk: clock.Fake(epoch),
	}
}

// start launches a replica named name whose generated identity is
// Player_<seed>. Its origin is name and its ids are "<name>-1", "<name>-2"...
func (c *cluster) start(name string, seed int, opts ...Option) *node {
	c.t.Helper()
	return c.startOn(name, seed, store.NewMemory(), opts...)
}

func (c *cluster) startOn(name string, seed int, kv store.KV, opts ...Option) *node {
	c.t.Helper()

	snaps := store.NewSnapshots(kv, "")
	ident := identity.NewManager(snaps,
		identity.WithSeed(func() int { return seed }),
		identity.WithNow(c.clk.Now),
	)
	ep := c.hub.Join()
	met := metrics.NewCollector("test")

	base := []Option{
		WithClock(c.clk),
		WithOrigin(name),
		WithIdentity(ident),
		WithIDGenerator(testutil.NewSequentialIDs(name + "-")),
		WithMetrics(met),
	}
	r := New(ep, snaps, append(base, opts...)...)

	ctx, cancel := context.WithCancel(c.ctx)
	n := &node{name: name, r: r, ep: ep, kv: kv, met: met, cancel: cancel, done: make(chan error, 1)}
	go func() { n.done <- r.Run(ctx) }()
	c.t.Cleanup(func() {
		n.stop()
		ep.Close()
	})

	require.NoError(c.t, r.Flush(c.ctx))
	c.nodes = append(c.nodes, n)
	return n
}

func (n *node) stop() {
	if n.stopped {
		return
	}
	n.stopped = true
	n.cancel()
	<-n.done
}

// settle alternates draining every replica's queue and delivering hub
// frames until nothing is in flight.
func (c *cluster) settle() {
	c.t.Helper()
	for i := 0; i < 100; i++ {
		for _, n := range c.nodes {
			if !n.stopped {
				require.NoError(c.t, n.r.Flush(c.ctx))
			}
		}
		if c.hub.Flush() == 0 {
			return
		}
	}
	c.t.Fatal("cluster did not settle")
}

// advance moves the shared clock and settles.
func (c *cluster) advance(d time.Duration) {
	c.t.Helper()
	c.clk.Advance(d)
	c.settle()
}

// live advances past the sync timeout.
func (c *cluster) live() {
	c.t.Helper()
	c.advance(DefaultTimings().SyncTimeout)
}

// tap joins a raw endpoint that records every frame it sees and can
// inject frames of its own.
type tap struct {
	ep     *bus.Endpoint
	mu     sync.Mutex
	frames [][]byte
}

func (c *cluster) tap() *tap {
	tp := &tap{ep: c.hub.Join()}
	tp.ep.Subscribe(func(frame []byte) {
		tp.mu.Lock()
		tp.frames = append(tp.frames, frame)
		tp.mu.Unlock()
	})
	c.t.Cleanup(func() { tp.ep.Close() })
	return tp
}

func (tp *tap) captured() [][]byte {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	return append([][]byte(nil), tp.frames...)
}

func (c *cluster) inject(tp *tap, frames ...[]byte) {
	c.t.Helper()
	for _, f := range frames {
		require.NoError(c.t, tp.ep.Publish(c.ctx, f))
	}
	c.settle()
}

func encode(t *testing.T, origin string, seq int64, ev event.Event) []byte {
	t.Helper()
	data, err := event.Encode(event.Envelope{Origin: origin, Seq: seq, Event: ev})
	require.NoError(t, err)
	return data
}

func sortedIDs(posts []feed.Post) []string {
	ids := feed.IDs(posts)
	sort.Strings(ids)
	return ids
}

func messageIDs(log []feed.DirectMessage) []string {
	ids := make([]string, 0, len(log))
	for _, m := range log {
		ids = append(ids, m.ID)
	}
	sort.Strings(ids)
	return ids
}

func drainChanges(r *Replica) {
	for {
		select {
		case <-r.Changes():
		default:
			return
		}
	}
}

func nextNotification(t *testing.T, r *Replica) Notification {
	t.Helper()
	select {
	case n := <-r.Notifications():
		return n
	default:
		t.Fatal("expected a notification")
		return Notification{}
	}
}

func noNotification(t *testing.T, r *Replica) {
	t.Helper()
	select {
	case n := <-r.Notifications():
		t.Fatalf("unexpected notification %+v", n)
	default:
	}
}
