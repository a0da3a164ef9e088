package moderation

import (
	"context"
	"errors"
	"testing"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
)

type countingChecker struct {
	calls int
	safe  bool
	err   error
}

func (c *countingChecker) CheckSafety(context.Context, string) (bool, error) {
	c.calls++
	return c.safe, c.err
}

func TestBypass(t *testing.T) {
	assert.True(t, Bypass("gg"))
	assert.True(t, Bypass("éééé"))
	assert.False(t, Bypass("hmm?"))
	assert.False(t, Bypass("hello"))
}

func TestGuard_ShortTextSkipsOracle(t *testing.T) {
	c := &countingChecker{safe: false}
	g := NewGuard(c, DefaultBreakerConfig())

	assert.True(t, g.Allow(context.Background(), "gg"))
	assert.Equal(t, 0, c.calls)

	assert.False(t, g.Allow(context.Background(), "what?"))
	assert.Equal(t, 1, c.calls)
}

func TestGuard_FailsOpen(t *testing.T) {
	c := &countingChecker{err: errors.New("oracle down")}
	g := NewGuard(c, DefaultBreakerConfig())

	for i := 0; i < 10; i++ {
		assert.True(t, g.Allow(context.Background(), "a long enough text"))
	}
	assert.Equal(t, gobreaker.StateOpen, g.State())
	// Open circuit short-circuits the oracle and still allows.
	assert.Equal(t, 5, c.calls)
}

func TestGuard_NilChecker(t *testing.T) {
	g := NewGuard(nil, DefaultBreakerConfig())
	assert.True(t, g.Allow(context.Background(), "anything at all?"))
	assert.Equal(t, gobreaker.StateClosed, g.State())

	var none *Guard
	assert.True(t, none.Allow(context.Background(), "still fine"))
}

func TestBlocklist(t *testing.T) {
	b := NewBlocklist("Spam", " ", "scam")
	g := NewGuard(b, DefaultBreakerConfig())

	assert.False(t, g.Allow(context.Background(), "buy SPAM now"))
	assert.True(t, g.Allow(context.Background(), "good vibes only"))

	ok, err := CheckerFunc(b.CheckSafety)(context.Background(), "a scam")
	assert.NoError(t, err)
	assert.False(t, ok)
}
