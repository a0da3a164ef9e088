package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/roach88/lobbysync/internal/bus"
	"github.com/roach88/lobbysync/internal/clock"
	"github.com/roach88/lobbysync/internal/engine"
	"github.com/roach88/lobbysync/internal/feed"
	"github.com/roach88/lobbysync/internal/identity"
	"github.com/roach88/lobbysync/internal/moderation"
	"github.com/roach88/lobbysync/internal/store"
	"github.com/roach88/lobbysync/internal/testutil"
)

// Epoch is the fake clock's starting instant in every scenario.
var Epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// maxSettleRounds bounds settle so a replica that keeps answering itself
// fails the scenario instead of hanging it.
const maxSettleRounds = 100

// Harness executes one scenario. Every replica runs its real event loop;
// the harness only decides when frames are delivered and when time moves.
type Harness struct {
	ctx   context.Context
	hub   *bus.Hub
	clk   *clock.FakeClock
	specs map[string]ReplicaSpec
	order []string
	nodes map[string]*node

	tap      *bus.Endpoint
	mu       sync.Mutex
	captured [][]byte
}

type node struct {
	replica *engine.Replica
	ep      *bus.Endpoint
	cancel  context.CancelFunc
	done    chan error
	running bool
	notes   []engine.Notification
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs on a fresh hub, fake clock, and in-memory stores.
// Execution flow:
// 1. Seed stores and start every non-deferred replica
// 2. Execute steps, checking declared step errors
// 3. Settle the bus and evaluate assertions
// 4. Return result with pass/fail, trace, final views, and errors
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	h := &Harness{
		ctx:   ctx,
		hub:   bus.NewHub(bus.WithManualDelivery()),
		clk:   clock.Fake(Epoch),
		specs: make(map[string]ReplicaSpec, len(scenario.Replicas)),
		nodes: make(map[string]*node, len(scenario.Replicas)),
	}
	h.tap = h.hub.Join()
	h.tap.Subscribe(func(frame []byte) {
		h.mu.Lock()
		h.captured = append(h.captured, frame)
		h.mu.Unlock()
	})
	defer h.shutdown()

	result := NewResult()
	for _, spec := range scenario.Replicas {
		h.specs[spec.Name] = spec
		h.order = append(h.order, spec.Name)
		result.Replicas = append(result.Replicas, spec.Name)
		if spec.Deferred {
			continue
		}
		if err := h.start(spec.Name); err != nil {
			return nil, fmt.Errorf("start replica %s: %w", spec.Name, err)
		}
	}

	for i, step := range scenario.Steps {
		outcome, err := h.execute(step)
		h.collect()

		switch {
		case err != nil && errors.Is(err, errHarness):
			return nil, fmt.Errorf("step %d (%s): %w", i, step.Action, err)
		case step.Error != "" && err == nil:
			result.AddError(fmt.Sprintf("step %d (%s %s): expected error containing %q, got none",
				i, step.Action, step.Replica, step.Error))
			outcome = "ok, expected error"
		case step.Error != "" && !containsFold(err.Error(), step.Error):
			result.AddError(fmt.Sprintf("step %d (%s %s): expected error containing %q, got %q",
				i, step.Action, step.Replica, step.Error, err))
			outcome = "error: " + err.Error()
		case err != nil && step.Error == "":
			result.AddError(fmt.Sprintf("step %d (%s %s): %v", i, step.Action, step.Replica, err))
			outcome = "error: " + err.Error()
		case err != nil:
			outcome = "error: " + err.Error()
		}
		result.AddTrace(i+1, step.Action, step.Replica, outcome)

		slog.Debug("scenario step",
			"scenario", scenario.Name,
			"step", i+1,
			"action", step.Action,
			"replica", step.Replica,
			"outcome", outcome,
		)
	}

	if err := h.settle(); err != nil {
		return nil, err
	}
	h.collect()

	for name, n := range h.nodes {
		result.Views[name] = n.replica.View()
		result.Notifications[name] = n.notes
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// errHarness marks failures of the harness itself rather than of a step.
var errHarness = errors.New("harness")

func (h *Harness) start(name string) error {
	if n, ok := h.nodes[name]; ok && n.running {
		return fmt.Errorf("%w: replica %s already running", errHarness, name)
	}
	if _, ok := h.nodes[name]; ok {
		return fmt.Errorf("%w: replica %s cannot restart under the same origin", errHarness, name)
	}
	spec := h.specs[name]

	kv := store.NewMemory()
	snaps := store.NewSnapshots(kv, "")
	if len(spec.Posts) > 0 {
		if err := snaps.SaveFeed(h.ctx, seedForest(spec.Posts, h.clk.Now())); err != nil {
			return fmt.Errorf("%w: seed %s: %v", errHarness, name, err)
		}
	}

	seed := spec.Seed
	ident := identity.NewManager(snaps,
		identity.WithSeed(func() int { return seed }),
		identity.WithNow(h.clk.Now),
	)
	opts := []engine.Option{
		engine.WithClock(h.clk),
		engine.WithOrigin(name),
		engine.WithIdentity(ident),
		engine.WithIDGenerator(testutil.NewSequentialIDs(name + "-")),
	}
	if len(spec.Blocklist) > 0 {
		guard := moderation.NewGuard(moderation.NewBlocklist(spec.Blocklist...), moderation.DefaultBreakerConfig())
		opts = append(opts, engine.WithGuard(guard))
	}

	ep := h.hub.Join()
	r := engine.New(ep, snaps, opts...)
	ctx, cancel := context.WithCancel(h.ctx)
	n := &node{replica: r, ep: ep, cancel: cancel, done: make(chan error, 1), running: true}
	go func() { n.done <- r.Run(ctx) }()
	h.nodes[name] = n

	if err := r.Flush(h.ctx); err != nil {
		return fmt.Errorf("%w: flush %s: %v", errHarness, name, err)
	}
	return nil
}

func (h *Harness) stop(name string) error {
	n, ok := h.nodes[name]
	if !ok || !n.running {
		return fmt.Errorf("%w: replica %s is not running", errHarness, name)
	}
	n.running = false
	n.cancel()
	err := <-n.done
	n.ep.Close()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (h *Harness) shutdown() {
	for _, name := range h.order {
		if n, ok := h.nodes[name]; ok && n.running {
			if err := h.stop(name); err != nil {
				slog.Warn("replica stop failed", "replica", name, "error", err)
			}
		}
	}
	h.tap.Close()
}

// settle delivers frames one endpoint at a time, in declaration order,
// draining each replica before moving to the next, until nothing is in
// flight. Replicas react one after another, so frame order is the same on
// every run.
func (h *Harness) settle() error {
	for range maxSettleRounds {
		for _, name := range h.order {
			n, ok := h.nodes[name]
			if !ok || !n.running {
				continue
			}
			h.hub.Deliver(n.ep)
			if err := n.replica.Flush(h.ctx); err != nil {
				return fmt.Errorf("%w: flush %s: %v", errHarness, name, err)
			}
		}
		h.hub.Deliver(h.tap)
		if h.hub.Pending() == 0 {
			return nil
		}
	}
	return fmt.Errorf("%w: bus did not settle after %d rounds", errHarness, maxSettleRounds)
}

// redeliver replays every frame seen so far from the tap endpoint.
func (h *Harness) redeliver(reverse bool) (int, error) {
	if err := h.settle(); err != nil {
		return 0, err
	}
	h.mu.Lock()
	frames := slices.Clone(h.captured)
	h.mu.Unlock()
	if reverse {
		slices.Reverse(frames)
	}
	for _, f := range frames {
		if err := h.tap.Publish(h.ctx, f); err != nil {
			return 0, fmt.Errorf("%w: redeliver: %v", errHarness, err)
		}
	}
	return len(frames), h.settle()
}

// collect moves pending notifications off every running replica.
func (h *Harness) collect() {
	for _, n := range h.nodes {
		for drained := false; !drained; {
			select {
			case note := <-n.replica.Notifications():
				n.notes = append(n.notes, note)
			default:
				drained = true
			}
		}
	}
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func (h *Harness) replica(name string) (*engine.Replica, error) {
	n, ok := h.nodes[name]
	if !ok || !n.running {
		return nil, fmt.Errorf("%w: replica %s is not running", errHarness, name)
	}
	return n.replica, nil
}

// execute runs one step and describes its outcome. Intent rejections are
// returned as plain errors; harness failures wrap errHarness.
func (h *Harness) execute(st Step) (string, error) {
	switch st.Action {
	case ActSettle:
		return "ok", h.settle()
	case ActAdvance:
		d, err := time.ParseDuration(st.Duration)
		if err != nil {
			return "", fmt.Errorf("%w: %v", errHarness, err)
		}
		h.clk.Advance(d)
		return "now " + h.clk.Now().Format(time.RFC3339), h.settle()
	case ActStart:
		return "ok", h.start(st.Replica)
	case ActStop:
		return "ok", h.stop(st.Replica)
	case ActRedeliver:
		n, err := h.redeliver(st.Reverse)
		return fmt.Sprintf("%d frames", n), err
	}

	r, err := h.replica(st.Replica)
	if err != nil {
		return "", err
	}
	ctx := h.ctx

	switch st.Action {
	case ActPost:
		p, err := r.CreatePost(ctx, st.Content, mediaOf(st.Media))
		return p.ID, err
	case ActReply:
		p, err := r.CreateReply(ctx, st.Parent, st.Content, mediaOf(st.Media))
		return p.ID, err
	case ActDelete:
		return "ok", r.DeletePost(ctx, st.Post)
	case ActLike:
		return "ok", r.ToggleMetric(ctx, st.Post, feed.MetricLike)
	case ActShare:
		return "ok", r.ToggleMetric(ctx, st.Post, feed.MetricShare)
	case ActView:
		return "ok", r.ToggleMetric(ctx, st.Post, feed.MetricView)
	case ActWatch:
		return "ok", r.HeartbeatView(ctx, st.Post)
	case ActDM:
		m, err := r.SendMessage(ctx, st.To, st.Content)
		return m.ID, err
	case ActFollow:
		action, err := r.ToggleFollow(ctx, st.Handle)
		return string(action), err
	case ActRename:
		handle := st.Handle
		p, err := r.UpdateProfile(ctx, identity.Patch{Handle: &handle})
		return p.Handle, err
	case ActBio:
		bio := st.Content
		p, err := r.UpdateProfile(ctx, identity.Patch{Bio: &bio})
		return p.Handle, err
	}
	return "", fmt.Errorf("%w: unknown action %q", errHarness, st.Action)
}

func mediaOf(m *MediaSpec) *feed.Media {
	if m == nil {
		return nil
	}
	return &feed.Media{Kind: feed.MediaKind(m.Type), URL: m.URL}
}

// seedForest builds persisted posts; replies are stamped one second
// after their parent.
func seedForest(seeds []SeedPost, at time.Time) []feed.Post {
	out := make([]feed.Post, 0, len(seeds))
	for _, s := range seeds {
		out = append(out, feed.Post{
			ID:        s.ID,
			Author:    feed.Profile{Handle: s.Author, Followers: []string{}, Following: []string{}},
			Content:   s.Content,
			Timestamp: at,
			LikedBy:   []string{},
			SharedBy:  []string{},
			ViewedBy:  []string{},
			Replies:   seedForest(s.Replies, at.Add(time.Second)),
		})
	}
	return out
}
