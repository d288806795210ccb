package stdio

import (
	"io"
	"log/slog"
)

type options struct {
	r io.Reader
	l *slog.Logger
}

// Option customizes an Ingest.
type Option func(*options)

// WithReader overrides the input stream.
func WithReader(r io.Reader) Option {
	return func(o *options) {
		if r != nil {
			o.r = r
		}
	}
}

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.l = l
		}
	}
}
