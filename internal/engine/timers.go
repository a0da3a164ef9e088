package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/lobbysync/internal/clock"
	"github.com/roach88/lobbysync/internal/event"
)

// ticker re-arms a one-shot timer from inside its own callback, so a fake
// clock advanced past several periods fires every one of them.
type ticker struct {
	mu      sync.Mutex
	clk     clock.Clock
	period  time.Duration
	fire    func(at time.Time)
	timer   clock.Timer
	stopped bool
}

func startTicker(clk clock.Clock, period time.Duration, fire func(at time.Time)) *ticker {
	t := &ticker{clk: clk, period: period, fire: fire}
	t.arm()
	return t
}

func (t *ticker) arm() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.timer = t.clk.AfterFunc(t.period, t.tick)
}

func (t *ticker) tick() {
	t.fire(t.clk.Now())
	t.arm()
}

func (t *ticker) stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	if t.timer != nil {
		t.timer.Stop()
	}
}

// timerSet holds the replica's background timers.
type timerSet struct {
	syncTimeout clock.Timer
	heartbeat   *ticker
	sweep       *ticker
}

func (s *timerSet) stop() {
	s.syncTimeout.Stop()
	s.heartbeat.stop()
	s.sweep.stop()
}

// armTimers starts the sync timeout and the periodic heartbeat and sweep.
// Callbacks only enqueue; the work runs on the loop.
func (r *Replica) armTimers() *timerSet {
	return &timerSet{
		syncTimeout: r.clock.AfterFunc(r.timings.SyncTimeout, func() {
			r.schedule("sync-timeout", r.clock.Now(), r.syncTimeout)
		}),
		heartbeat: startTicker(r.clock, r.timings.Heartbeat, func(at time.Time) {
			r.schedule("heartbeat", at, r.heartbeat)
		}),
		sweep: startTicker(r.clock, r.timings.Sweep, func(at time.Time) {
			r.schedule("sweep", at, r.sweep)
		}),
	}
}

// syncTimeout forces LIVE when no acceptable SYNC_RESPONSE arrived.
func (r *Replica) syncTimeout(context.Context, time.Time) error {
	if r.goLive("sync timeout") {
		r.commit()
	}
	return nil
}

// heartbeat re-reads the local identity, announces it, and refreshes the
// local copy in the directory.
func (r *Replica) heartbeat(ctx context.Context, _ time.Time) error {
	me := r.me(ctx)
	r.publish(ctx, event.Presence{Profile: me})
	if r.upsertProfile(me) {
		r.commit()
	}
	return nil
}

// sweep expires presence and live-viewer entries older than the idle
// threshold. Nothing is signalled when nothing expired.
func (r *Replica) sweep(_ context.Context, at time.Time) error {
	n := r.roster.Sweep(at, r.timings.Idle) + r.viewers.Sweep(at, r.timings.Idle)
	if forgotten := r.forgetDepartedOrigins(at); forgotten > 0 {
		slog.Debug("forgot sequence windows of departed origins", "count", forgotten)
	}
	if n == 0 {
		return nil
	}
	slog.Debug("expired presence entries", "count", n)
	r.commit()
	return nil
}

// forgetDepartedOrigins drops the duplicate-detection window of every origin
// that is off the roster and has sent nothing for longer than the idle
// threshold.
func (r *Replica) forgetDepartedOrigins(at time.Time) int {
	n := 0
	for origin, w := range r.lastSeq {
		if r.roster.Online(origin) || at.Sub(w.last) <= r.timings.Idle {
			continue
		}
		delete(r.lastSeq, origin)
		n++
	}
	return n
}
