package testutil

// FixedID returns the same identifier every time.
//
// Useful for provoking identifier collisions: every post or message a
// replica mints with it shares one id.
//
// Thread-safety: stateless and safe for concurrent use.
type FixedID struct {
	id string
}

// NewFixedID creates a generator that always returns id. An empty id
// becomes "fixed-id".
func NewFixedID(id string) *FixedID {
	if id == "" {
		id = "fixed-id"
	}
	return &FixedID{id: id}
}

// Generate returns the fixed id.
//
// Implements engine.IDGenerator.
func (g *FixedID) Generate() string {
	return g.id
}
