package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/lobbysync/internal/engine"
	"github.com/roach88/lobbysync/internal/metrics"
	"github.com/roach88/lobbysync/internal/moderation"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	StoreOptions
	Transport   string
	NATSURL     string
	Channel     string
	MetricsAddr string

	// Input overrides the console input (for testing). Defaults to the
	// command's stdin.
	Input io.Reader
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start a feed replica with an interactive console",
		Long: `Start a feed replica on the configured broadcast channel.

The replica hydrates from the SQLite database (creating it if it doesn't
exist), asks peers for their state, and then serves the event loop. Commands
are read line by line from stdin; type "help" for the list. Incoming
mentions and direct messages are printed as they arrive.

Every replica sharing a database file and channel stays in sync over the
SQLite transport. Use --transport nats to sync across machines.

Example:
  lobbysync run --db ./feed.db
  lobbysync run --db ./feed.db --transport nats --nats-url nats://localhost:4222
  lobbysync run --db ./feed.db --config ./lobbysync.cue --metrics-addr :9090`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplica(opts, cmd)
		},
	}

	opts.StoreOptions.bind(cmd)
	cmd.Flags().StringVar(&opts.Transport, "transport", "", "broadcast transport: sqlite|nats (overrides config)")
	cmd.Flags().StringVar(&opts.NATSURL, "nats-url", "", "NATS server URL (overrides config)")
	cmd.Flags().StringVar(&opts.Channel, "channel", "", "broadcast channel name (overrides config)")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	return cmd
}

func runReplica(opts *RunOptions, cmd *cobra.Command) error {
	setupLogging(cmd.ErrOrStderr(), opts.Verbose)

	sess, err := openSession(&opts.StoreOptions)
	if err != nil {
		return err
	}
	defer sess.Close()

	if opts.Transport != "" {
		sess.cfg.Transport = opts.Transport
	}
	if opts.NATSURL != "" {
		sess.cfg.NATSURL = opts.NATSURL
	}
	if opts.Channel != "" {
		sess.cfg.Channel = opts.Channel
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	b, err := sess.openBus(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open transport", err).WithKind(CodeTransport)
	}
	defer func() {
		if closeErr := b.Close(); closeErr != nil {
			slog.Error("error closing transport", "error", closeErr)
		}
	}()

	collector := metrics.NewCollector("lobbysync")
	replicaOpts := []engine.Option{
		engine.WithMetrics(collector),
		engine.WithTimings(engine.Timings{
			SyncTimeout: sess.cfg.Timers.SyncTimeout(),
			Heartbeat:   sess.cfg.Timers.Heartbeat(),
			Sweep:       sess.cfg.Timers.Sweep(),
			Idle:        sess.cfg.Timers.Idle(),
		}),
	}
	if len(sess.cfg.Moderation.Blocklist) > 0 {
		guard := moderation.NewGuard(
			moderation.NewBlocklist(sess.cfg.Moderation.Blocklist...),
			sess.cfg.Moderation.Breaker.BreakerConfig(),
		)
		replicaOpts = append(replicaOpts, engine.WithGuard(guard))
	}
	replica := engine.New(b, sess.snaps, replicaOpts...)

	if opts.MetricsAddr != "" {
		srv := serveMetrics(opts.MetricsAddr, collector)
		defer func() {
			shutdownCtx, stop := context.WithTimeout(context.Background(), 2*time.Second)
			defer stop()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	runErr := make(chan error, 1)
	go func() { runErr <- replica.Run(ctx) }()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Replica %s started on %s/%s. Type \"help\" for commands.\n",
		replica.Origin(), sess.cfg.Transport, sess.cfg.Channel)

	input := opts.Input
	if input == nil {
		input = cmd.InOrStdin()
	}
	con := newConsole(replica, out, sess.cfg.Timers.Heartbeat())
	go func() {
		con.serve(ctx, input)
		cancel()
	}()

	err = <-runErr
	con.wait()
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return WrapExitError(ExitFailure, "replica error", err).WithKind(CodeReplica)
	}

	slog.Info("replica stopped gracefully")
	return nil
}

// serveMetrics exposes the collector on addr under /metrics.
func serveMetrics(addr string, c *metrics.Collector) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		slog.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "addr", addr, "error", err)
		}
	}()
	return srv
}
