package engine

import "time"

// seqWindowSize is how many recent sequence numbers per origin are
// remembered for duplicate detection.
const seqWindowSize = 1024

// seqWindow remembers the recent sequence numbers seen from one origin.
type seqWindow struct {
	high int64
	seen map[int64]struct{}
	last time.Time // when the latest frame from the origin arrived
}

func newSeqWindow() *seqWindow {
	return &seqWindow{seen: make(map[int64]struct{})}
}

// observe records seq. dup is true when seq was already seen; reordered is
// true when seq is new but not above the high-water mark. Sequence numbers
// older than the window are treated as new.
func (w *seqWindow) observe(seq int64, at time.Time) (dup, reordered bool) {
	w.last = at
	if _, ok := w.seen[seq]; ok {
		return true, false
	}
	reordered = seq <= w.high
	w.seen[seq] = struct{}{}
	if seq > w.high {
		w.high = seq
	}
	if len(w.seen) > 2*seqWindowSize {
		floor := w.high - seqWindowSize
		for s := range w.seen {
			if s <= floor {
				delete(w.seen, s)
			}
		}
	}
	return false, reordered
}
