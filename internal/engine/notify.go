package engine

import "log/slog"

// NotificationKind identifies a transient user-facing notice.
type NotificationKind int

const (
	// NotifyMention fires when a new post tags the local handle.
	NotifyMention NotificationKind = iota + 1
	// NotifyDirectMessage fires when a message addressed to the local
	// handle arrives.
	NotifyDirectMessage
)

func (k NotificationKind) String() string {
	switch k {
	case NotifyMention:
		return "mention"
	case NotifyDirectMessage:
		return "message"
	}
	return "unknown"
}

// Notification is a transient notice. Only remote events raise them.
type Notification struct {
	Kind      NotificationKind
	From      string
	PostID    string
	MessageID string
	Content   string
}

// Notifications delivers notices. Undrained notices beyond the buffer are
// dropped.
func (r *Replica) Notifications() <-chan Notification {
	return r.notes
}

func (r *Replica) notify(n Notification) {
	select {
	case r.notes <- n:
	default:
		slog.Debug("notification dropped", "kind", n.Kind.String(), "from", n.From)
	}
}
