package feed

// Hydrate normalizes a forest decoded from storage or the wire: membership
// sets are never nil, views are re-derived from viewedBy, and like/share
// counters never sit below zero. Replies are hydrated recursively.
func Hydrate(posts []Post) []Post {
	if posts == nil {
		return []Post{}
	}
	for i := range posts {
		hydratePost(&posts[i])
	}
	return posts
}

func hydratePost(p *Post) {
	if p.LikedBy == nil {
		p.LikedBy = []string{}
	}
	if p.SharedBy == nil {
		p.SharedBy = []string{}
	}
	if p.ViewedBy == nil {
		p.ViewedBy = []string{}
	}
	if p.Author.Followers == nil {
		p.Author.Followers = []string{}
	}
	if p.Author.Following == nil {
		p.Author.Following = []string{}
	}
	p.Views = len(p.ViewedBy)
	p.Likes = max(0, p.Likes)
	p.Shares = max(0, p.Shares)
	p.Replies = Hydrate(p.Replies)
}

// HydrateMessages returns a non-nil message log.
func HydrateMessages(log []DirectMessage) []DirectMessage {
	if log == nil {
		return []DirectMessage{}
	}
	return log
}
