// Package config loads replica settings from an optional CUE file validated
// against an embedded schema. Every field has a default, so an absent file
// yields a usable Config.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"

	"github.com/roach88/lobbysync/internal/moderation"
)

//go:embed schema.cue
var schemaSource []byte

// Config is the decoded replica configuration.
type Config struct {
	Channel     string     `json:"channel"`
	Transport   string     `json:"transport"`
	NATSURL     string     `json:"nats_url"`
	IdentityKey string     `json:"identity_key"`
	Timers      Timers     `json:"timers"`
	Bus         Bus        `json:"bus"`
	Moderation  Moderation `json:"moderation"`
}

// Timers holds the engine's periodic intervals in milliseconds.
type Timers struct {
	SyncTimeoutMS int `json:"sync_timeout_ms"`
	HeartbeatMS   int `json:"heartbeat_ms"`
	SweepMS       int `json:"sweep_ms"`
	IdleMS        int `json:"idle_ms"`
}

func (t Timers) SyncTimeout() time.Duration { return ms(t.SyncTimeoutMS) }
func (t Timers) Heartbeat() time.Duration   { return ms(t.HeartbeatMS) }
func (t Timers) Sweep() time.Duration       { return ms(t.SweepMS) }
func (t Timers) Idle() time.Duration        { return ms(t.IdleMS) }

// Bus tunes the SQLite transport.
type Bus struct {
	PollMS      int `json:"poll_ms"`
	RetentionMS int `json:"retention_ms"`
}

func (b Bus) PollInterval() time.Duration { return ms(b.PollMS) }
func (b Bus) Retention() time.Duration    { return ms(b.RetentionMS) }

// Moderation configures the local safety checker.
type Moderation struct {
	Blocklist []string `json:"blocklist"`
	Breaker   Breaker  `json:"breaker"`
}

// Breaker mirrors moderation.BreakerConfig with millisecond durations.
type Breaker struct {
	MaxRequests      uint32  `json:"max_requests"`
	IntervalMS       int     `json:"interval_ms"`
	TimeoutMS        int     `json:"timeout_ms"`
	FailureThreshold float64 `json:"failure_threshold"`
	MinRequests      uint32  `json:"min_requests"`
}

// BreakerConfig converts b for the moderation guard.
func (b Breaker) BreakerConfig() moderation.BreakerConfig {
	return moderation.BreakerConfig{
		Name:             "moderation",
		MaxRequests:      b.MaxRequests,
		Interval:         ms(b.IntervalMS),
		Timeout:          ms(b.TimeoutMS),
		FailureThreshold: b.FailureThreshold,
		MinRequests:      b.MinRequests,
	}
}

// Default returns the configuration used when no file is given.
func Default() Config {
	cfg, err := Parse(nil, "")
	if err != nil {
		panic(fmt.Sprintf("embedded config schema is invalid: %v", err))
	}
	return cfg
}

// Load reads and validates the CUE file at path. An empty path returns
// Default().
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data, path)
}

// Parse validates src against the schema and decodes it. filename is used
// only in error positions.
func Parse(src []byte, filename string) (Config, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileBytes(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return Config{}, formatCUEError(err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	v := def
	if len(src) > 0 {
		user := ctx.CompileBytes(src, cue.Filename(filename))
		if err := user.Err(); err != nil {
			return Config{}, formatCUEError(err)
		}
		v = def.Unify(user)
	}

	if err := v.Validate(cue.Concrete(true)); err != nil {
		return Config{}, formatCUEError(err)
	}

	var cfg Config
	if err := v.Decode(&cfg); err != nil {
		return Config{}, formatCUEError(err)
	}
	if cfg.Moderation.Blocklist == nil {
		cfg.Moderation.Blocklist = []string{}
	}
	return cfg, nil
}

// formatCUEError flattens a CUE error list into one error with positions.
func formatCUEError(err error) error {
	return fmt.Errorf("invalid config: %s", cueerrors.Details(err, nil))
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }
