package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)

func TestFake_AdvanceFiresInDeadlineOrder(t *testing.T) {
	c := Fake(epoch)
	var order []string
	c.AfterFunc(3*time.Second, func() { order = append(order, "3s") })
	c.AfterFunc(1*time.Second, func() { order = append(order, "1s") })
	c.AfterFunc(5*time.Second, func() { order = append(order, "5s") })

	c.Advance(4 * time.Second)

	assert.Equal(t, []string{"1s", "3s"}, order)
	assert.Equal(t, epoch.Add(4*time.Second), c.Now())
	assert.Equal(t, 1, c.PendingCount())
}

func TestFake_ChainedTimersActLikeTicker(t *testing.T) {
	c := Fake(epoch)
	var fired []time.Time
	var arm func()
	arm = func() {
		c.AfterFunc(2*time.Second, func() {
			fired = append(fired, c.Now())
			arm()
		})
	}
	arm()

	c.Advance(7 * time.Second)

	require.Len(t, fired, 3)
	assert.Equal(t, epoch.Add(2*time.Second), fired[0])
	assert.Equal(t, epoch.Add(6*time.Second), fired[2])
	assert.Equal(t, 1, c.PendingCount())
}

func TestFake_Stop(t *testing.T) {
	c := Fake(epoch)
	called := false
	timer := c.AfterFunc(time.Second, func() { called = true })

	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())
	c.Advance(2 * time.Second)
	assert.False(t, called)
}

func TestFake_WaitForTimers(t *testing.T) {
	c := Fake(epoch)
	go c.AfterFunc(time.Second, func() {})
	c.WaitForTimers(1)
	assert.Equal(t, 1, c.PendingCount())
}
