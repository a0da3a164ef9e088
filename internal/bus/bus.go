// Package bus is the broadcast channel replicas use to reach each other.
//
// Delivery is best effort: a frame goes to every other live endpoint on the
// same channel, never back to the endpoint that published it. There is no
// acknowledgment, no redelivery, no persistence beyond what a transport
// needs to move the frame, and no ordering across publishers.
//
// Three transports implement Bus:
//
//   - Hub: in-process endpoints, optionally with manual delivery for
//     deterministic tests.
//   - SQLite: a shared database file; every process on the machine that
//     opens it is on the same origin.
//   - NATS: a subject on a NATS server, for replicas that span hosts.
package bus

import (
	"context"
	"errors"
	"slices"
)

// DefaultChannel is the channel name shared by every replica of the app.
const DefaultChannel = "lobbysync.cypher.v3"

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("bus: closed")

// Handler receives one frame. Handlers must not block; the engine's handler
// only enqueues. The frame is owned by the handler.
type Handler func(frame []byte)

// Bus is a publish/subscribe endpoint on one channel.
type Bus interface {
	// Publish sends frame to every other endpoint on the channel. It does
	// not wait for delivery.
	Publish(ctx context.Context, frame []byte) error

	// Subscribe registers h for frames published by other endpoints. The
	// returned function removes the subscription.
	Subscribe(h Handler) (cancel func())

	// Close releases the endpoint. Subscriptions stop receiving frames.
	Close() error
}

// handlers is the subscription registry shared by the transports.
type handlers struct {
	next int
	byID map[int]Handler
}

func (hs *handlers) add(h Handler) int {
	if hs.byID == nil {
		hs.byID = make(map[int]Handler)
	}
	hs.next++
	hs.byID[hs.next] = h
	return hs.next
}

func (hs *handlers) remove(id int) {
	delete(hs.byID, id)
}

// snapshot returns the handlers in subscription order.
func (hs *handlers) snapshot() []Handler {
	out := make([]Handler, 0, len(hs.byID))
	for id := 1; id <= hs.next; id++ {
		if h, ok := hs.byID[id]; ok {
			out = append(out, h)
		}
	}
	return out
}

// deliverAll hands each handler its own copy of frame.
func deliverAll(hs []Handler, frame []byte) {
	if len(hs) == 1 {
		hs[0](frame)
		return
	}
	for _, h := range hs {
		h(slices.Clone(frame))
	}
}
