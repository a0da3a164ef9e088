package bus

import (
	"context"
	"slices"
	"sync"
)

// Hub connects in-process endpoints. Each endpoint stands for one process.
type Hub struct {
	mu        sync.Mutex
	endpoints []*Endpoint
	manual    bool
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithManualDelivery buffers published frames until Flush is called, so a
// test decides exactly when (and whether) siblings see them.
func WithManualDelivery() HubOption {
	return func(h *Hub) { h.manual = true }
}

// NewHub creates an empty hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Join adds a new endpoint to the hub.
func (h *Hub) Join() *Endpoint {
	e := &Endpoint{hub: h, signal: make(chan struct{}, 1), done: make(chan struct{})}

	h.mu.Lock()
	h.endpoints = append(h.endpoints, e)
	h.mu.Unlock()

	if !h.manual {
		go e.dispatch()
	}
	return e
}

// Flush delivers every buffered frame, endpoint by endpoint in join order,
// on the calling goroutine. Returns the number of frames delivered. Only
// meaningful with WithManualDelivery.
func (h *Hub) Flush() int {
	h.mu.Lock()
	eps := slices.Clone(h.endpoints)
	h.mu.Unlock()

	n := 0
	for _, e := range eps {
		n += h.Deliver(e)
	}
	return n
}

// Deliver hands e's buffered frames to its handlers on the calling
// goroutine and returns how many there were. Only meaningful with
// WithManualDelivery.
func (h *Hub) Deliver(e *Endpoint) int {
	frames := e.take()
	for _, frame := range frames {
		e.deliver(frame)
	}
	return len(frames)
}

// Pending counts frames waiting for delivery across all endpoints.
func (h *Hub) Pending() int {
	h.mu.Lock()
	eps := slices.Clone(h.endpoints)
	h.mu.Unlock()

	n := 0
	for _, e := range eps {
		e.mu.Lock()
		n += len(e.inbox)
		e.mu.Unlock()
	}
	return n
}

func (h *Hub) broadcast(from *Endpoint, frame []byte) {
	h.mu.Lock()
	eps := slices.Clone(h.endpoints)
	h.mu.Unlock()

	for _, e := range eps {
		if e == from {
			continue
		}
		e.enqueue(slices.Clone(frame))
	}
}

func (h *Hub) leave(e *Endpoint) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.endpoints = slices.DeleteFunc(h.endpoints, func(x *Endpoint) bool { return x == e })
}

// Endpoint is one process's connection to a Hub.
type Endpoint struct {
	hub *Hub

	mu     sync.Mutex
	subs   handlers
	inbox  [][]byte
	closed bool
	signal chan struct{}
	done   chan struct{}
}

var _ Bus = (*Endpoint)(nil)

// Publish copies frame to every other endpoint's inbox.
func (e *Endpoint) Publish(_ context.Context, frame []byte) error {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return ErrClosed
	}
	e.hub.broadcast(e, frame)
	return nil
}

// Subscribe registers h.
func (e *Endpoint) Subscribe(h Handler) func() {
	e.mu.Lock()
	id := e.subs.add(h)
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		e.subs.remove(id)
		e.mu.Unlock()
	}
}

// Close detaches the endpoint from the hub and drops undelivered frames.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.inbox = nil
	close(e.done)
	e.mu.Unlock()

	e.hub.leave(e)
	return nil
}

func (e *Endpoint) enqueue(frame []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.inbox = append(e.inbox, frame)
	select {
	case e.signal <- struct{}{}:
	default:
	}
}

func (e *Endpoint) take() [][]byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	frames := e.inbox
	e.inbox = nil
	return frames
}

func (e *Endpoint) deliver(frame []byte) {
	e.mu.Lock()
	hs := e.subs.snapshot()
	e.mu.Unlock()

	deliverAll(hs, frame)
}

// dispatch delivers frames in arrival order until the endpoint closes.
func (e *Endpoint) dispatch() {
	for {
		select {
		case <-e.done:
			return
		case <-e.signal:
		}
		for _, frame := range e.take() {
			e.deliver(frame)
		}
	}
}
