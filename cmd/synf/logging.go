package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/ggoodman/synf/internal/logctx"
)

// newLogger builds the process logger. Logs always go to stderr: stdout
// carries the protocol.
func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var h slog.Handler
	switch strings.ToLower(format) {
	case "text":
		h = slog.NewTextHandler(w, opts)
	case "json":
		h = slog.NewJSONHandler(w, opts)
	default:
		return nil, fmt.Errorf("invalid log format %q: expected text or json", format)
	}
	return logctx.New(slog.New(h)), nil
}
