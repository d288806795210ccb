package runner

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/ggoodman/synf/relay"
	"github.com/ggoodman/synf/supervisor"
)

// Option configures a Runner.
type Option func(*newConfig)

type newConfig struct {
	r      io.Reader
	w      io.Writer
	stderr io.Writer
	logger *slog.Logger
	grace  time.Duration
	poll   time.Duration
	drain  time.Duration
	hook   func(Event)
}

func defaultConfig() newConfig {
	return newConfig{
		r:      os.Stdin,
		w:      os.Stdout,
		stderr: os.Stderr,
		logger: slog.New(slog.DiscardHandler),
		grace:  supervisor.DefaultGrace,
		poll:   relay.DefaultPollInterval,
		drain:  relay.DefaultDrainTimeout,
	}
}

// WithIO overrides the client streams. Defaults are os.Stdin and os.Stdout.
func WithIO(r io.Reader, w io.Writer) Option {
	return func(c *newConfig) {
		if r != nil {
			c.r = r
		}
		if w != nil {
			c.w = w
		}
	}
}

// WithStderr sets where build output and server stderr go. Defaults to
// os.Stderr.
func WithStderr(w io.Writer) Option {
	return func(c *newConfig) {
		if w != nil {
			c.stderr = w
		}
	}
}

// WithLogger sets the logger. If not provided, logs are discarded.
func WithLogger(l *slog.Logger) Option {
	return func(c *newConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithGrace sets how long a server gets to exit after its input is closed.
func WithGrace(d time.Duration) Option {
	return func(c *newConfig) {
		if d > 0 {
			c.grace = d
		}
	}
}

// WithPollInterval sets how often a generation without a server checks for
// one.
func WithPollInterval(d time.Duration) Option {
	return func(c *newConfig) {
		if d > 0 {
			c.poll = d
		}
	}
}

// WithDrainTimeout bounds how long a stopped generation keeps forwarding
// server output.
func WithDrainTimeout(d time.Duration) Option {
	return func(c *newConfig) {
		if d > 0 {
			c.drain = d
		}
	}
}

// WithEventHook registers fn to observe lifecycle events. fn is called from
// the runner's own goroutine and must not block.
func WithEventHook(fn func(Event)) Option {
	return func(c *newConfig) { c.hook = fn }
}
