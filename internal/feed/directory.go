package feed

import (
	"fmt"
	"slices"
	"sort"
)

// FollowAction is the last recorded state of a follow edge.
type FollowAction string

const (
	Follow   FollowAction = "follow"
	Unfollow FollowAction = "unfollow"
)

// ParseFollowAction validates a follow action.
func ParseFollowAction(s string) (FollowAction, error) {
	switch a := FollowAction(s); a {
	case Follow, Unfollow:
		return a, nil
	}
	return "", fmt.Errorf("unknown follow action %q", s)
}

// Directory indexes known profiles by handle.
type Directory map[string]Profile

// Upsert stores p under its handle, replacing any previous copy.
func (d Directory) Upsert(p Profile) {
	d[p.Handle] = p.Clone()
}

// Rename moves the entry for oldHandle to p.Handle and stores p there.
func (d Directory) Rename(oldHandle string, p Profile) {
	if oldHandle != p.Handle {
		delete(d, oldHandle)
	}
	d.Upsert(p)
}

// ApplyFollow records a follow edge from follower to followed. Each side is
// updated independently and only if that profile is known. The returned
// flags report which sides changed.
func (d Directory) ApplyFollow(follower, followed string, action FollowAction) (followerChanged, followedChanged bool) {
	if p, ok := d[follower]; ok {
		next := edge(p.Following, followed, action)
		followerChanged = !slices.Equal(next, p.Following)
		p.Following = next
		d[follower] = p
	}
	if p, ok := d[followed]; ok {
		next := edge(p.Followers, follower, action)
		followedChanged = !slices.Equal(next, p.Followers)
		p.Followers = next
		d[followed] = p
	}
	return followerChanged, followedChanged
}

// Handles lists the known handles in sorted order.
func (d Directory) Handles() []string {
	handles := make([]string, 0, len(d))
	for h := range d {
		handles = append(handles, h)
	}
	sort.Strings(handles)
	return handles
}

// Clone deep-copies the directory.
func (d Directory) Clone() Directory {
	out := make(Directory, len(d))
	for h, p := range d {
		out[h] = p.Clone()
	}
	return out
}

// IsFollowing reports whether p follows handle.
func (p Profile) IsFollowing(handle string) bool {
	return slices.Contains(p.Following, handle)
}

func edge(set []string, handle string, action FollowAction) []string {
	if set == nil {
		set = []string{}
	}
	if action == Follow {
		return withUnique(set, handle)
	}
	return without(set, handle)
}
