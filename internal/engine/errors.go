package engine

import "errors"

// Errors returned by local intents. Remote events never surface errors:
// a remote mutation with a missing target is a silent no-op.
var (
	// ErrStopped is returned when the replica is not running.
	ErrStopped = errors.New("replica stopped")

	// ErrAlreadyRunning is returned by a second call to Run.
	ErrAlreadyRunning = errors.New("replica already running")

	// ErrContentBlocked is returned when moderation rejects the text.
	ErrContentBlocked = errors.New("content blocked by moderation")

	// ErrPostNotFound is returned when the target post is not in the forest.
	ErrPostNotFound = errors.New("post not found")

	// ErrUnknownProfile is returned when following a handle that has never
	// been seen.
	ErrUnknownProfile = errors.New("unknown profile")

	// ErrSelfFollow is returned when following the local identity.
	ErrSelfFollow = errors.New("cannot follow yourself")

	// ErrInvalidMedia is returned for an attachment with an unknown kind or
	// an empty URL.
	ErrInvalidMedia = errors.New("invalid media attachment")

	// ErrEmptyContent is returned for a post or message with no text.
	ErrEmptyContent = errors.New("empty content")
)
