package bus

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Defaults for the SQLite transport.
const (
	DefaultPollInterval = 50 * time.Millisecond
	DefaultRetention    = time.Minute
	pollBatch           = 256
	pruneEvery          = 100
)

// SQLite is a Bus whose frames are rows in the bus_frames table of a
// database shared by every process on the machine. The table is created by
// store.Open.
//
// Each endpoint remembers the highest row it has seen and polls for newer
// rows written by other endpoints. Frames written before the endpoint
// opened are never delivered to it, and rows older than the retention
// window are pruned by whichever endpoint gets there first.
type SQLite struct {
	db        *sql.DB
	channel   string
	origin    string
	poll      time.Duration
	retention time.Duration
	now       func() time.Time

	mu     sync.Mutex
	subs   handlers
	cursor int64
	closed bool

	stop chan struct{}
	done chan struct{}
}

var _ Bus = (*SQLite)(nil)

// SQLiteOption configures a SQLite bus.
type SQLiteOption func(*SQLite)

// WithPollInterval sets how often the endpoint checks for new frames.
func WithPollInterval(d time.Duration) SQLiteOption {
	return func(s *SQLite) { s.poll = d }
}

// WithRetention sets how long frames stay in the table.
func WithRetention(d time.Duration) SQLiteOption {
	return func(s *SQLite) { s.retention = d }
}

// OpenSQLite joins channel on db and starts polling.
func OpenSQLite(ctx context.Context, db *sql.DB, channel string, opts ...SQLiteOption) (*SQLite, error) {
	s := &SQLite{
		db:        db,
		channel:   channel,
		origin:    uuid.Must(uuid.NewV7()).String(),
		poll:      DefaultPollInterval,
		retention: DefaultRetention,
		now:       time.Now,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	err := db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM bus_frames WHERE channel = ?`, channel,
	).Scan(&s.cursor)
	if err != nil {
		return nil, fmt.Errorf("open sqlite bus %q: %w", channel, err)
	}

	go s.run()
	return s, nil
}

// Publish appends frame to the shared table.
func (s *SQLite) Publish(ctx context.Context, frame []byte) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bus_frames (channel, origin, payload, created_at)
		VALUES (?, ?, ?, ?)
	`, s.channel, s.origin, frame, s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("publish to %q: %w", s.channel, err)
	}
	return nil
}

// Subscribe registers h. Handlers run on the polling goroutine.
func (s *SQLite) Subscribe(h Handler) func() {
	s.mu.Lock()
	id := s.subs.add(h)
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		s.subs.remove(id)
		s.mu.Unlock()
	}
}

// Close stops polling. The database handle stays open; it belongs to the
// caller.
func (s *SQLite) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.stop)
	<-s.done
	return nil
}

func (s *SQLite) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	polls := 0
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
		}

		if err := s.pollOnce(context.Background()); err != nil {
			slog.Warn("bus poll failed", "channel", s.channel, "error", err)
		}

		polls++
		if polls%pruneEvery == 0 {
			if err := s.prune(context.Background()); err != nil {
				slog.Warn("bus prune failed", "channel", s.channel, "error", err)
			}
		}
	}
}

// pollOnce delivers every frame newer than the cursor that another endpoint
// wrote.
func (s *SQLite) pollOnce(ctx context.Context) error {
	for {
		s.mu.Lock()
		cursor := s.cursor
		s.mu.Unlock()

		rows, err := s.db.QueryContext(ctx, `
			SELECT seq, origin, payload FROM bus_frames
			WHERE channel = ? AND seq > ?
			ORDER BY seq ASC
			LIMIT ?
		`, s.channel, cursor, pollBatch)
		if err != nil {
			return err
		}

		var frames [][]byte
		n := 0
		for rows.Next() {
			var (
				seq     int64
				origin  string
				payload []byte
			)
			if err := rows.Scan(&seq, &origin, &payload); err != nil {
				rows.Close()
				return err
			}
			n++
			cursor = seq
			if origin == s.origin {
				continue
			}
			frames = append(frames, payload)
		}
		if err := rows.Close(); err != nil {
			return err
		}
		if err := rows.Err(); err != nil {
			return err
		}

		s.mu.Lock()
		s.cursor = cursor
		hs := s.subs.snapshot()
		s.mu.Unlock()

		for _, frame := range frames {
			deliverAll(hs, frame)
		}

		if n < pollBatch {
			return nil
		}
	}
}

func (s *SQLite) prune(ctx context.Context) error {
	return s.pruneBefore(ctx, s.now().Add(-s.retention))
}

func (s *SQLite) pruneBefore(ctx context.Context, cutoff time.Time) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM bus_frames WHERE created_at < ?`, cutoff.UnixMilli())
	return err
}
