package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collector records frames delivered to a handler.
type collector struct {
	mu     sync.Mutex
	frames []string
}

func (c *collector) handle(frame []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, string(frame))
}

func (c *collector) got() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.frames...)
}

func TestHub_ManualDeliveryNeverSelfDelivers(t *testing.T) {
	hub := NewHub(WithManualDelivery())
	a, b, c := hub.Join(), hub.Join(), hub.Join()

	var ga, gb, gc collector
	a.Subscribe(ga.handle)
	b.Subscribe(gb.handle)
	c.Subscribe(gc.handle)

	ctx := context.Background()
	require.NoError(t, a.Publish(ctx, []byte("from-a")))
	require.NoError(t, b.Publish(ctx, []byte("from-b")))

	assert.Equal(t, 4, hub.Pending())
	assert.Empty(t, gb.got(), "manual hub must not deliver before Flush")

	assert.Equal(t, 4, hub.Flush())
	assert.Equal(t, []string{"from-b"}, ga.got())
	assert.Equal(t, []string{"from-a"}, gb.got())
	assert.Equal(t, []string{"from-a", "from-b"}, gc.got())
	assert.Zero(t, hub.Pending())
}

func TestHub_DeliverSingleEndpoint(t *testing.T) {
	hub := NewHub(WithManualDelivery())
	a, b, c := hub.Join(), hub.Join(), hub.Join()

	var gb, gc collector
	b.Subscribe(gb.handle)
	c.Subscribe(gc.handle)

	require.NoError(t, a.Publish(context.Background(), []byte("x")))

	assert.Equal(t, 1, hub.Deliver(c))
	assert.Equal(t, []string{"x"}, gc.got())
	assert.Empty(t, gb.got(), "other inboxes stay buffered")
	assert.Equal(t, 1, hub.Pending())
	assert.Zero(t, hub.Deliver(c))
}

func TestHub_PerSenderOrder(t *testing.T) {
	hub := NewHub()
	a, b := hub.Join(), hub.Join()
	defer a.Close()
	defer b.Close()

	var gb collector
	b.Subscribe(gb.handle)

	ctx := context.Background()
	for _, s := range []string{"1", "2", "3", "4"} {
		require.NoError(t, a.Publish(ctx, []byte(s)))
	}

	require.Eventually(t, func() bool { return len(gb.got()) == 4 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"1", "2", "3", "4"}, gb.got())
}

func TestHub_PublishCopiesFrame(t *testing.T) {
	hub := NewHub(WithManualDelivery())
	a, b := hub.Join(), hub.Join()
	var gb collector
	b.Subscribe(gb.handle)

	frame := []byte("abc")
	require.NoError(t, a.Publish(context.Background(), frame))
	frame[0] = 'X'
	hub.Flush()

	assert.Equal(t, []string{"abc"}, gb.got())
}

func TestHub_UnsubscribeAndClose(t *testing.T) {
	hub := NewHub(WithManualDelivery())
	a, b := hub.Join(), hub.Join()
	var gb collector
	cancel := b.Subscribe(gb.handle)

	cancel()
	require.NoError(t, a.Publish(context.Background(), []byte("x")))
	hub.Flush()
	assert.Empty(t, gb.got())

	require.NoError(t, a.Close())
	assert.ErrorIs(t, a.Publish(context.Background(), []byte("y")), ErrClosed)
	require.NoError(t, a.Close(), "double close is a no-op")
}

func TestHub_PublishWithNoListenersIsSilent(t *testing.T) {
	hub := NewHub()
	a := hub.Join()
	defer a.Close()
	assert.NoError(t, a.Publish(context.Background(), []byte("lonely")))
}
