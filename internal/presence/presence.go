// Package presence tracks which peers are online and which peers are
// watching each post. Both tables are soft state: entries expire when their
// owner stops heartbeating and nothing here is persisted.
package presence

import (
	"sort"
	"time"

	"github.com/roach88/lobbysync/internal/feed"
)

// Record is one peer in the roster.
type Record struct {
	Profile  feed.Profile
	Origin   string
	LastSeen time.Time
}

// Roster maps a peer process to the last presence announcement seen from
// it. Two processes acting as the same user are listed separately.
// It is not safe for concurrent use; the owning replica serializes access.
type Roster struct {
	peers map[string]Record
}

// NewRoster returns an empty roster.
func NewRoster() *Roster {
	return &Roster{peers: make(map[string]Record)}
}

// Touch records that p was announced by origin at now.
func (r *Roster) Touch(p feed.Profile, origin string, now time.Time) {
	r.peers[origin] = Record{Profile: p.Clone(), Origin: origin, LastSeen: now}
}

// Sweep drops every record whose age is strictly greater than idle and
// returns how many were dropped.
func (r *Roster) Sweep(now time.Time, idle time.Duration) int {
	n := 0
	for origin, rec := range r.peers {
		if now.Sub(rec.LastSeen) > idle {
			delete(r.peers, origin)
			n++
		}
	}
	return n
}

// Online reports whether origin has a live record.
func (r *Roster) Online(origin string) bool {
	_, ok := r.peers[origin]
	return ok
}

// Len returns the number of online peers.
func (r *Roster) Len() int { return len(r.peers) }

// List returns the online peers sorted by handle, then origin.
func (r *Roster) List() []Record {
	out := make([]Record, 0, len(r.peers))
	for _, rec := range r.peers {
		rec.Profile = rec.Profile.Clone()
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Profile.Handle != out[j].Profile.Handle {
			return out[i].Profile.Handle < out[j].Profile.Handle
		}
		return out[i].Origin < out[j].Origin
	})
	return out
}

// Viewers maps post id to the origins currently watching it.
type Viewers struct {
	posts map[string]map[string]time.Time
}

// NewViewers returns an empty viewer table.
func NewViewers() *Viewers {
	return &Viewers{posts: make(map[string]map[string]time.Time)}
}

// Touch records a heartbeat from origin for postID. Reports whether origin
// was not already watching it.
func (v *Viewers) Touch(postID, origin string, now time.Time) bool {
	m, ok := v.posts[postID]
	if !ok {
		m = make(map[string]time.Time)
		v.posts[postID] = m
	}
	_, seen := m[origin]
	m[origin] = now
	return !seen
}

// Sweep drops heartbeats older than idle, then drops posts left with no
// viewers. Returns the number of heartbeats dropped.
func (v *Viewers) Sweep(now time.Time, idle time.Duration) int {
	n := 0
	for postID, m := range v.posts {
		for origin, seen := range m {
			if now.Sub(seen) > idle {
				delete(m, origin)
				n++
			}
		}
		if len(m) == 0 {
			delete(v.posts, postID)
		}
	}
	return n
}

// Count returns how many origins are watching postID.
func (v *Viewers) Count(postID string) int {
	return len(v.posts[postID])
}

// Counts snapshots the viewer count of every watched post.
func (v *Viewers) Counts() map[string]int {
	out := make(map[string]int, len(v.posts))
	for id, m := range v.posts {
		out[id] = len(m)
	}
	return out
}
