package feed

import (
	"slices"
	"time"
)

// MediaKind enumerates the attachment types a post can carry.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
	MediaGIF   MediaKind = "gif"
)

// Valid reports whether k is one of the known media kinds.
func (k MediaKind) Valid() bool {
	switch k {
	case MediaImage, MediaVideo, MediaGIF:
		return true
	}
	return false
}

// Media describes an optional post attachment.
type Media struct {
	Kind MediaKind `json:"type"`
	URL  string    `json:"url"`
}

// Profile is a user's public record. Posts embed a copy of the author's
// profile, so an embedded author goes stale once the author edits theirs.
type Profile struct {
	Handle    string   `json:"handle"`
	Name      string   `json:"name"`
	Avatar    string   `json:"avatar"`
	Banner    string   `json:"banner,omitempty"`
	Color     string   `json:"color"`
	Bio       string   `json:"bio"`
	JoinDate  string   `json:"joinDate"`
	Followers []string `json:"followers"`
	Following []string `json:"following"`
}

// Clone returns a copy of p that shares no slices with it.
func (p Profile) Clone() Profile {
	p.Followers = cloneSet(p.Followers)
	p.Following = cloneSet(p.Following)
	return p
}

// Post is a feed entry. Replies are themselves posts, newest first.
type Post struct {
	ID        string    `json:"id"`
	Author    Profile   `json:"author"`
	Content   string    `json:"content"`
	Media     *Media    `json:"media,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Likes     int       `json:"likes"`
	LikedBy   []string  `json:"likedBy"`
	Shares    int       `json:"shares"`
	SharedBy  []string  `json:"sharedBy"`
	Views     int       `json:"views"`
	ViewedBy  []string  `json:"viewedBy"`
	Replies   []Post    `json:"replies"`
}

// Clone deep-copies p including its whole reply subtree.
func (p Post) Clone() Post {
	p.Author = p.Author.Clone()
	if p.Media != nil {
		m := *p.Media
		p.Media = &m
	}
	p.LikedBy = cloneSet(p.LikedBy)
	p.SharedBy = cloneSet(p.SharedBy)
	p.ViewedBy = cloneSet(p.ViewedBy)
	p.Replies = CloneForest(p.Replies)
	return p
}

// CloneForest deep-copies a list of posts.
func CloneForest(posts []Post) []Post {
	out := make([]Post, len(posts))
	for i := range posts {
		out[i] = posts[i].Clone()
	}
	return out
}

// DirectMessage is an immutable, append-only message between two handles.
// Timestamp is milliseconds since the Unix epoch.
type DirectMessage struct {
	ID             string `json:"id"`
	SenderHandle   string `json:"senderHandle"`
	ReceiverHandle string `json:"receiverHandle"`
	Content        string `json:"content"`
	Timestamp      int64  `json:"timestamp"`
}

// AppendMessage appends m to the log unless a message with the same ID is
// already present.
func AppendMessage(log []DirectMessage, m DirectMessage) ([]DirectMessage, bool) {
	for _, existing := range log {
		if existing.ID == m.ID {
			return log, false
		}
	}
	return append(log, m), true
}

func cloneSet(s []string) []string {
	if s == nil {
		return []string{}
	}
	return slices.Clone(s)
}
