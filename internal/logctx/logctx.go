package logctx

import (
	"context"
	"log/slog"
)

// Handler decorates records with the run and generation stored in the
// record's context.
type Handler struct {
	slog.Handler
}

func (h Handler) Handle(ctx context.Context, r slog.Record) error {
	if rd, ok := ctx.Value(runDataKey{}).(*RunData); ok {
		r.AddAttrs(slog.Group("run",
			slog.String("id", rd.RunID),
			slog.String("root", rd.Root),
			slog.String("language", rd.Language),
		))
	}

	if gd, ok := ctx.Value(generationDataKey{}).(*GenerationData); ok {
		r.AddAttrs(slog.Group("gen",
			slog.Int("n", gd.Number),
			slog.Int("pid", gd.PID),
		))
	}

	return h.Handler.Handle(ctx, r)
}

func (h Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return Handler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h Handler) WithGroup(name string) slog.Handler {
	return Handler{Handler: h.Handler.WithGroup(name)}
}

// New wraps l's handler so that context data is attached to every record.
func New(l *slog.Logger) *slog.Logger {
	if _, ok := l.Handler().(Handler); ok {
		return l
	}
	return slog.New(Handler{Handler: l.Handler()})
}

type runDataKey struct{}

type RunData struct {
	RunID    string
	Root     string
	Language string
}

func WithRunData(ctx context.Context, data *RunData) context.Context {
	return context.WithValue(ctx, runDataKey{}, data)
}

type generationDataKey struct{}

type GenerationData struct {
	Number int
	PID    int
}

func WithGenerationData(ctx context.Context, data *GenerationData) context.Context {
	return context.WithValue(ctx, generationDataKey{}, data)
}
