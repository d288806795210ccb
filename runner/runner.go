package runner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/ggoodman/synf/config"
	"github.com/ggoodman/synf/internal/logctx"
	"github.com/ggoodman/synf/relay"
	"github.com/ggoodman/synf/stdio"
	"github.com/ggoodman/synf/supervisor"
	"github.com/google/uuid"
)

var (
	// ErrShutdown is returned by Trigger once the runner has stopped.
	ErrShutdown = errors.New("runner: shut down")
	// ErrAlreadyStarted is returned by a second call to Run.
	ErrAlreadyStarted = errors.New("runner: already started")
)

type command int

const (
	cmdTrigger command = iota
	cmdShutdown
)

// Runner coordinates restarts for one invocation. All mutable state (the
// current server, the current generation) is owned by the goroutine inside
// Run and changed only in response to commands, so overlapping triggers are
// applied one at a time in arrival order.
type Runner struct {
	cfg     *config.Resolved
	log     *slog.Logger
	in      *stdio.Ingest
	out     *stdio.Writer
	stderr  io.Writer
	grace   time.Duration
	poll    time.Duration
	drain   time.Duration
	hook    func(Event)
	session *relay.Session
	runID   string

	started  atomic.Bool
	commands chan command
	done     chan struct{}
}

// New creates a Runner for cfg. Nothing is built or spawned until Run.
func New(cfg *config.Resolved, opts ...Option) *Runner {
	c := defaultConfig()
	for _, opt := range opts {
		opt(&c)
	}

	log := logctx.New(c.logger)
	return &Runner{
		cfg:      cfg,
		log:      log,
		in:       stdio.NewIngest(stdio.WithReader(c.r), stdio.WithLogger(log)),
		out:      stdio.NewWriter(c.w),
		stderr:   c.stderr,
		grace:    c.grace,
		poll:     c.poll,
		drain:    c.drain,
		hook:     c.hook,
		session:  relay.NewSession(cfg.ResendSubscriptions),
		runID:    uuid.NewString(),
		commands: make(chan command),
		done:     make(chan struct{}),
	}
}

// RunID identifies this invocation in logs.
func (r *Runner) RunID() string { return r.runID }

// Done is closed when Run has returned.
func (r *Runner) Done() <-chan struct{} { return r.done }

// Trigger asks for a rebuild and restart. It blocks until the runner picks
// the request up, so a caller that triggers twice gets two restarts in order.
func (r *Runner) Trigger() error {
	select {
	case r.commands <- cmdTrigger:
		return nil
	case <-r.done:
		return ErrShutdown
	}
}

// Shutdown stops the current server and waits for Run to return. It must
// only be called once Run has been started.
func (r *Runner) Shutdown() {
	select {
	case r.commands <- cmdShutdown:
	case <-r.done:
	}
	<-r.done
}

// generation is the runner's handle on one relay generation and the server
// spawned for it.
type generation struct {
	n      int
	gen    *relay.Generation
	stop   context.CancelFunc
	child  *supervisor.Process
	result chan error

	finished bool
	stopped  bool
}

func (g *generation) relayChild() relay.Child {
	// A nil *Process must not become a non-nil interface.
	if g.child == nil {
		return nil
	}
	return g.child
}

func (g *generation) live() bool {
	if g.child == nil || g.finished {
		return false
	}
	select {
	case <-g.child.Exited():
		return false
	default:
		return true
	}
}

// Run performs the initial build and spawn, then serves triggers until ctx is
// canceled, Shutdown is called or the client closes its input. The live
// server is always stopped before Run returns.
func (r *Runner) Run(ctx context.Context) error {
	if !r.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	defer close(r.done)

	ctx = logctx.WithRunData(ctx, &logctx.RunData{
		RunID:    r.runID,
		Root:     r.cfg.Root,
		Language: r.cfg.Language.String(),
	})
	r.log.InfoContext(ctx, "runner.start",
		slog.String("run", r.cfg.Run.String()),
		slog.String("build", r.cfg.Build.String()),
		slog.Bool("resend", r.cfg.ResendSubscriptions),
	)
	r.in.Start()

	cur := r.restart(ctx, nil)
	for {
		var (
			ended      <-chan error
			clientGone <-chan struct{}
		)
		if !cur.finished {
			ended = cur.result
		} else {
			// Nothing is reading the client's input; notice its end here.
			clientGone = r.in.Closed()
		}

		select {
		case <-ctx.Done():
			r.log.InfoContext(ctx, "runner.signal")
			r.shutdown(ctx, cur)
			return nil
		case cmd := <-r.commands:
			switch cmd {
			case cmdTrigger:
				cur = r.restart(ctx, cur)
			case cmdShutdown:
				r.shutdown(ctx, cur)
				return nil
			}
		case <-clientGone:
			r.log.InfoContext(ctx, "runner.client.closed")
			r.shutdown(ctx, cur)
			return nil
		case err := <-ended:
			cur.finished = true
			r.emit(Event{Kind: EventGenerationEnded, Generation: cur.n, Err: err})
			if errors.Is(err, relay.ErrClientClosed) {
				r.log.InfoContext(ctx, "runner.client.closed")
				r.shutdown(ctx, cur)
				return nil
			}
			r.log.WarnContext(ctx, "runner.generation.ended", slog.Int("gen", cur.n), slog.String("err", errString(err)))
		}
	}
}

// restart runs one trigger: build, stop the previous generation and its
// server, spawn the next server and start its generation. The previous
// generation is signaled before anything new is spawned, and the new
// generation's first client write waits for the previous one to finish.
func (r *Runner) restart(ctx context.Context, prev *generation) *generation {
	n := 1
	if prev != nil {
		n = prev.n + 1
	}
	r.log.InfoContext(ctx, "runner.restart", slog.Int("gen", n))

	ran, err := supervisor.Build(ctx, r.log, r.cfg.Root, r.cfg.Build, r.stderr)
	switch {
	case !ran:
		r.emit(Event{Kind: EventBuildSkipped, Generation: n})
	case err != nil:
		r.emit(Event{Kind: EventBuildFailed, Generation: n, Err: err})
		if r.cfg.AbortOnBuildFailure && prev != nil && prev.live() {
			r.log.WarnContext(ctx, "runner.restart.abort", slog.Int("gen", n))
			r.emit(Event{Kind: EventRestartAborted, Generation: n, Err: err})
			return prev
		}
	default:
		r.emit(Event{Kind: EventBuildOK, Generation: n})
	}

	var after <-chan struct{}
	if prev != nil {
		prev.stop()
		after = prev.gen.Done()
		r.stopChild(ctx, prev)
	}

	child, err := supervisor.Start(ctx, supervisor.Spec{
		Dir:     r.cfg.Root,
		Command: r.cfg.Run,
		Stderr:  r.stderr,
		Grace:   r.grace,
		Logger:  r.log,
	})
	if err != nil {
		r.log.ErrorContext(ctx, "child.spawn.fail", slog.String("err", err.Error()))
		r.emit(Event{Kind: EventSpawnFailed, Generation: n, Err: err})
	} else {
		r.emit(Event{Kind: EventSpawnOK, Generation: n, PID: child.PID()})
	}

	next := &generation{n: n, child: child, result: make(chan error, 1)}
	genCtx, cancel := context.WithCancel(ctx)
	next.stop = cancel
	next.gen = relay.New(relay.Config{
		Number:       n,
		Session:      r.session,
		Input:        r.in,
		Output:       r.out,
		Child:        next.relayChild,
		After:        after,
		PollInterval: r.poll,
		DrainTimeout: r.drain,
		Logger:       r.log,
	})
	go func() { next.result <- next.gen.Run(genCtx) }()

	r.emit(Event{Kind: EventGenerationStarted, Generation: n, PID: pidOf(child)})
	return next
}

func (r *Runner) stopChild(ctx context.Context, g *generation) {
	if g.child == nil || g.stopped {
		return
	}
	g.stopped = true
	outcome := g.child.Stop()
	r.log.InfoContext(ctx, "child.stop", slog.Int("pid", g.child.PID()), slog.String("outcome", outcome.String()))
	r.emit(Event{Kind: EventChildStopped, Generation: g.n, PID: g.child.PID(), Outcome: outcome})
}

// shutdown stops the current generation and its server, then waits a bounded
// time for the generation to finish forwarding output.
func (r *Runner) shutdown(ctx context.Context, cur *generation) {
	ctx = context.WithoutCancel(ctx)
	r.log.InfoContext(ctx, "runner.shutdown", slog.Int("gen", cur.n))

	cur.stop()
	r.stopChild(ctx, cur)

	t := time.NewTimer(r.grace + r.drain)
	defer t.Stop()
	select {
	case <-cur.gen.Done():
	case <-t.C:
		r.log.WarnContext(ctx, "runner.shutdown.drain_timeout")
	}
}

func (r *Runner) emit(e Event) {
	if r.hook != nil {
		r.hook(e)
	}
}

func pidOf(p *supervisor.Process) int {
	if p == nil {
		return 0
	}
	return p.PID()
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
