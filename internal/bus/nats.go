package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// OriginHeader carries the publishing endpoint's id so an endpoint can drop
// its own frames, which NATS would otherwise echo back.
const OriginHeader = "Lobbysync-Origin"

// NATS is a Bus on a NATS subject. The connection belongs to the caller.
type NATS struct {
	conn    *nats.Conn
	subject string
	origin  string

	mu     sync.Mutex
	subs   handlers
	sub    *nats.Subscription
	closed bool
}

var _ Bus = (*NATS)(nil)

// NewNATS subscribes to subject on conn.
func NewNATS(conn *nats.Conn, subject string) (*NATS, error) {
	n := &NATS{
		conn:    conn,
		subject: subject,
		origin:  uuid.Must(uuid.NewV7()).String(),
	}
	sub, err := conn.Subscribe(subject, n.receive)
	if err != nil {
		return nil, fmt.Errorf("subscribe %q: %w", subject, err)
	}
	n.sub = sub
	return n, nil
}

// Publish sends frame with the origin header set.
func (n *NATS) Publish(_ context.Context, frame []byte) error {
	n.mu.Lock()
	closed := n.closed
	n.mu.Unlock()
	if closed {
		return ErrClosed
	}

	msg := nats.NewMsg(n.subject)
	msg.Header.Set(OriginHeader, n.origin)
	msg.Data = frame
	if err := n.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish to %q: %w", n.subject, err)
	}
	return nil
}

// Subscribe registers h. Handlers run on the NATS delivery goroutine.
func (n *NATS) Subscribe(h Handler) func() {
	n.mu.Lock()
	id := n.subs.add(h)
	n.mu.Unlock()

	return func() {
		n.mu.Lock()
		n.subs.remove(id)
		n.mu.Unlock()
	}
}

// Close unsubscribes from the subject.
func (n *NATS) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	n.mu.Unlock()
	return n.sub.Unsubscribe()
}

func (n *NATS) receive(m *nats.Msg) {
	if m.Header.Get(OriginHeader) == n.origin {
		return
	}
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	hs := n.subs.snapshot()
	n.mu.Unlock()

	deliverAll(hs, m.Data)
}
