package engine

import (
	"slices"

	"github.com/roach88/lobbysync/internal/feed"
	"github.com/roach88/lobbysync/internal/metrics"
	"github.com/roach88/lobbysync/internal/presence"
)

// View is an immutable snapshot of a replica's state. Callers may read it
// freely; it is never mutated after publication.
type View struct {
	State    State
	Origin   string
	Me       feed.Profile
	Posts    []feed.Post
	Messages []feed.DirectMessage
	Profiles feed.Directory
	Online   []presence.Record
	Viewers  map[string]int
}

// Post returns the post with the given id anywhere in the forest.
func (v *View) Post(id string) (feed.Post, bool) {
	p := feed.Find(v.Posts, id)
	if p == nil {
		return feed.Post{}, false
	}
	return *p, true
}

// Inbox returns the messages addressed to or sent by handle, in log order.
func (v *View) Inbox(handle string) []feed.DirectMessage {
	var out []feed.DirectMessage
	for _, m := range v.Messages {
		if m.SenderHandle == handle || m.ReceiverHandle == handle {
			out = append(out, m)
		}
	}
	return out
}

// View returns the latest snapshot.
func (r *Replica) View() *View {
	return r.view.Load()
}

// Changes fires after every state change. Signals coalesce: one pending
// signal stands for any number of changes since the last receive.
func (r *Replica) Changes() <-chan struct{} {
	return r.changes
}

// commit publishes a fresh snapshot and signals a change. Called only from
// the Run goroutine.
func (r *Replica) commit() {
	v := &View{
		State:    r.state,
		Origin:   r.origin,
		Me:       r.self.Clone(),
		Posts:    feed.CloneForest(r.posts),
		Messages: slices.Clone(r.messages),
		Profiles: r.profiles.Clone(),
		Online:   r.roster.List(),
		Viewers:  r.viewers.Counts(),
	}
	r.view.Store(v)

	r.metrics.SetSizes(metrics.Sizes{
		Posts:    feed.Size(r.posts),
		Messages: len(r.messages),
		Peers:    r.roster.Len(),
		Watched:  len(v.Viewers),
		Live:     r.state == StateLive,
	})

	select {
	case r.changes <- struct{}{}:
	default:
	}
}
