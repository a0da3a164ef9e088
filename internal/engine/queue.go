package engine

import (
	"context"
	"sync"
	"time"
)

// taskKind distinguishes work items on the replica queue.
type taskKind int

const (
	// taskFrame is a raw bus frame received from a peer.
	taskFrame taskKind = iota + 1
	// taskLocal is a closure submitted by a local intent or a timer.
	taskLocal
)

// task is one unit of work for the Run loop.
type task struct {
	kind  taskKind
	frame []byte

	name string
	at   time.Time
	run  func(ctx context.Context, at time.Time) error
	done chan error // buffered, size 1; nil for fire-and-forget work
}

// taskQueue is a thread-safe FIFO queue of tasks.
//
// The queue is unbounded so that bus handlers and timer callbacks never
// block on a busy replica. The Run loop is the only consumer.
//
// The queue uses a channel for signaling to enable context-aware waiting
// in the Run loop.
type taskQueue struct {
	mu     sync.Mutex
	tasks  []task
	closed bool
	signal chan struct{} // buffered, size 1
}

func newTaskQueue() *taskQueue {
	return &taskQueue{
		tasks:  make([]task, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds a task to the back of the queue.
// Thread-safe: may be called from any goroutine.
// Returns false if the queue is closed.
func (q *taskQueue) Enqueue(t task) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.tasks = append(q.tasks, t)

	// Non-blocking: the buffer of 1 coalesces signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes the front task without blocking.
func (q *taskQueue) TryDequeue() (task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 {
		return task{}, false
	}

	t := q.tasks[0]

	// Release the frame and closure for GC.
	q.tasks[0] = task{}

	if len(q.tasks) == 1 {
		q.tasks = q.tasks[:0]
	} else {
		q.tasks = q.tasks[1:]
	}

	return t, true
}

// Wait returns a channel that signals when tasks may be available. It is
// closed when the queue is closed.
func (q *taskQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *taskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Close rejects further tasks and returns whatever was still queued so the
// caller can release waiters.
func (q *taskQueue) Close() []task {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}

	q.closed = true
	close(q.signal)
	rest := q.tasks
	q.tasks = nil
	return rest
}
