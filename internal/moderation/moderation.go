// Package moderation gates user-authored text behind a safety oracle.
//
// The oracle is advisory: when it errors, times out, or its circuit is open,
// text is allowed through. Only an explicit "unsafe" verdict blocks.
package moderation

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sony/gobreaker"
)

// MinCheckedLength is the rune count below which text without a '?' is
// considered safe without consulting the oracle.
const MinCheckedLength = 5

// Checker is a safety oracle.
type Checker interface {
	CheckSafety(ctx context.Context, text string) (bool, error)
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context, text string) (bool, error)

// CheckSafety calls f.
func (f CheckerFunc) CheckSafety(ctx context.Context, text string) (bool, error) {
	return f(ctx, text)
}

// Blocklist is a local Checker that rejects text containing any listed
// term, compared case-insensitively.
type Blocklist struct {
	terms []string
}

// NewBlocklist returns a Blocklist over terms. Empty terms are ignored.
func NewBlocklist(terms ...string) *Blocklist {
	b := &Blocklist{}
	for _, t := range terms {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			b.terms = append(b.terms, t)
		}
	}
	return b
}

// CheckSafety reports false when text contains a blocked term.
func (b *Blocklist) CheckSafety(_ context.Context, text string) (bool, error) {
	lower := strings.ToLower(text)
	for _, t := range b.terms {
		if strings.Contains(lower, t) {
			return false, nil
		}
	}
	return true, nil
}

// BreakerConfig tunes the circuit breaker around the oracle.
type BreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32
}

// DefaultBreakerConfig returns the breaker settings used when none are
// configured.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:             "moderation",
		MaxRequests:      1,
		Interval:         30 * time.Second,
		Timeout:          10 * time.Second,
		FailureThreshold: 0.5,
		MinRequests:      5,
	}
}

// Guard wraps a Checker with the short-text bypass and a circuit breaker.
type Guard struct {
	checker Checker
	cb      *gobreaker.CircuitBreaker
}

// NewGuard returns a Guard over checker. A nil checker allows everything.
func NewGuard(checker Checker, cfg BreakerConfig) *Guard {
	g := &Guard{checker: checker}
	if checker == nil {
		return g
	}
	g.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Info("moderation breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return g
}

// Allow reports whether text may be published.
func (g *Guard) Allow(ctx context.Context, text string) bool {
	if g == nil || g.checker == nil || Bypass(text) {
		return true
	}
	v, err := g.cb.Execute(func() (any, error) {
		return g.checker.CheckSafety(ctx, text)
	})
	if err != nil {
		slog.Warn("moderation check failed, allowing", "error", err)
		return true
	}
	return v.(bool)
}

// State returns the breaker state, or closed when there is no oracle.
func (g *Guard) State() gobreaker.State {
	if g == nil || g.cb == nil {
		return gobreaker.StateClosed
	}
	return g.cb.State()
}

// Bypass reports whether text is short enough to skip the oracle.
func Bypass(text string) bool {
	return utf8.RuneCountInString(text) < MinCheckedLength && !strings.Contains(text, "?")
}
