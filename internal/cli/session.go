package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/roach88/lobbysync/internal/bus"
	"github.com/roach88/lobbysync/internal/config"
	"github.com/roach88/lobbysync/internal/store"
)

// StoreOptions are the flags shared by every command that opens a replica's
// database.
type StoreOptions struct {
	Database    string
	ConfigPath  string
	IdentityKey string
}

func (o *StoreOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&o.ConfigPath, "config", "", "path to CUE config file")
	cmd.Flags().StringVar(&o.IdentityKey, "identity-key", "", "storage key of the local identity (overrides config)")
	_ = cmd.MarkFlagRequired("db")
}

// session is an opened database with its configuration.
type session struct {
	cfg   config.Config
	store *store.Store
	snaps *store.Snapshots
}

// openSession loads the config, applies flag overrides, and opens the store.
func openSession(o *StoreOptions) (*session, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err).WithKind(CodeConfig)
	}
	if o.IdentityKey != "" {
		cfg.IdentityKey = o.IdentityKey
	}

	slog.Debug("opening database", "path", o.Database)
	st, err := store.Open(o.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err).WithKind(CodeStore)
	}
	return &session{
		cfg:   cfg,
		store: st,
		snaps: store.NewSnapshots(st, cfg.IdentityKey),
	}, nil
}

func (s *session) Close() {
	if err := s.store.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}

// openBus connects the configured transport. Closing the returned bus also
// releases any connection it owns.
func (s *session) openBus(ctx context.Context) (bus.Bus, error) {
	switch s.cfg.Transport {
	case "sqlite":
		b, err := bus.OpenSQLite(ctx, s.store.DB(), s.cfg.Channel,
			bus.WithPollInterval(s.cfg.Bus.PollInterval()),
			bus.WithRetention(s.cfg.Bus.Retention()),
		)
		if err != nil {
			return nil, err
		}
		return b, nil
	case "nats":
		conn, err := nats.Connect(s.cfg.NATSURL, nats.Name("lobbysync"))
		if err != nil {
			return nil, fmt.Errorf("connect %s: %w", s.cfg.NATSURL, err)
		}
		b, err := bus.NewNATS(conn, s.cfg.Channel)
		if err != nil {
			conn.Close()
			return nil, err
		}
		return &natsBus{NATS: b, conn: conn}, nil
	}
	return nil, fmt.Errorf("unknown transport %q", s.cfg.Transport)
}

// natsBus closes the connection together with the subscription.
type natsBus struct {
	*bus.NATS
	conn *nats.Conn
}

func (n *natsBus) Close() error {
	err := n.NATS.Close()
	n.conn.Close()
	return err
}
