package feed

// Find returns a pointer to the post with the given id anywhere in the
// forest, searching depth-first, or nil if it is absent. The pointer aliases
// the forest's backing storage and is invalidated by any insert or removal.
func Find(posts []Post, id string) *Post {
	for i := range posts {
		if posts[i].ID == id {
			return &posts[i]
		}
		if found := Find(posts[i].Replies, id); found != nil {
			return found
		}
	}
	return nil
}

// Contains reports whether id appears anywhere in the forest.
func Contains(posts []Post, id string) bool {
	return Find(posts, id) != nil
}

// Update applies fn to the post with the given id. Returns false if no such
// post exists.
func Update(posts []Post, id string, fn func(*Post)) bool {
	p := Find(posts, id)
	if p == nil {
		return false
	}
	fn(p)
	return true
}

// Prepend inserts p at the head of the root list. The forest is returned
// unchanged with inserted=false when p's id (or any id in its subtree) is
// already present.
func Prepend(posts []Post, p Post) (next []Post, inserted bool) {
	if collides(posts, p) {
		return posts, false
	}
	next = make([]Post, 0, len(posts)+1)
	next = append(next, p)
	next = append(next, posts...)
	return next, true
}

// InsertReply prepends reply to the children of parentID. Returns false when
// the parent is unknown or the reply's id is already in the forest.
func InsertReply(posts []Post, parentID string, reply Post) bool {
	if collides(posts, reply) {
		return false
	}
	return Update(posts, parentID, func(parent *Post) {
		parent.Replies, _ = Prepend(parent.Replies, reply)
	})
}

// Remove deletes the post with the given id together with its subtree,
// wherever it sits in the forest.
func Remove(posts []Post, id string) (next []Post, removed bool) {
	next = posts[:0:0]
	for _, p := range posts {
		if p.ID == id {
			removed = true
			continue
		}
		var childRemoved bool
		p.Replies, childRemoved = Remove(p.Replies, id)
		removed = removed || childRemoved
		next = append(next, p)
	}
	if !removed {
		return posts, false
	}
	return next, true
}

// Walk visits every post depth-first, parents before children. Returning
// false from fn stops the walk.
func Walk(posts []Post, fn func(p *Post, depth int) bool) {
	walk(posts, 0, fn)
}

func walk(posts []Post, depth int, fn func(*Post, int) bool) bool {
	for i := range posts {
		if !fn(&posts[i], depth) {
			return false
		}
		if !walk(posts[i].Replies, depth+1, fn) {
			return false
		}
	}
	return true
}

// Size counts every post in the forest, replies included.
func Size(posts []Post) int {
	n := 0
	Walk(posts, func(*Post, int) bool {
		n++
		return true
	})
	return n
}

// IDs lists every identifier in the forest in depth-first order.
func IDs(posts []Post) []string {
	var ids []string
	Walk(posts, func(p *Post, _ int) bool {
		ids = append(ids, p.ID)
		return true
	})
	return ids
}

// collides reports whether p or any of its replies already has an id in
// the forest.
func collides(posts []Post, p Post) bool {
	if Contains(posts, p.ID) {
		return true
	}
	for _, r := range p.Replies {
		if collides(posts, r) {
			return true
		}
	}
	return false
}
