package engine

import "sync/atomic"

// SeqClock is the per-process logical clock stamped on outbound envelopes.
// Receivers use it to notice reordered or repeated frames from one origin.
//
// Thread-safety: safe for concurrent use, though only the Run loop calls
// Next in practice.
type SeqClock struct {
	seq atomic.Int64
}

// NewSeqClock creates a clock starting at 0.
func NewSeqClock() *SeqClock {
	return &SeqClock{}
}

// Next returns the next sequence number.
func (c *SeqClock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last issued sequence number.
func (c *SeqClock) Current() int64 {
	return c.seq.Load()
}
