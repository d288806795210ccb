package relay

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ggoodman/synf/internal/jsonrpc"
	"github.com/ggoodman/synf/internal/logctx"
	"github.com/ggoodman/synf/mcp"
	"github.com/ggoodman/synf/stdio"
	"github.com/ggoodman/synf/supervisor"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultPollInterval is how often a generation without a server checks
	// for one.
	DefaultPollInterval = time.Second
	// DefaultDrainTimeout bounds how long a stopped generation keeps
	// forwarding server output after the server has been stopped.
	DefaultDrainTimeout = supervisor.DefaultGrace
)

var (
	// ErrStopped is returned by Run when the generation was told to stop.
	ErrStopped = errors.New("relay: generation stopped")
	// ErrClientClosed is returned by Run when the client's input ended.
	ErrClientClosed = errors.New("relay: client input closed")
)

// Child is the server process a generation talks to.
type Child interface {
	PID() int
	Input() io.Writer
	Output() io.Reader
	CloseOutput() error
	Stop() supervisor.Outcome
}

// Source yields client lines. It is shared by every generation.
type Source interface {
	Next(ctx context.Context) (string, error)
	Unread(line string)
	Closed() <-chan struct{}
}

// LineWriter delivers whole lines to the client.
type LineWriter interface {
	WriteLine(line string) error
}

// State is the position of a generation in its lifecycle.
type State int32

const (
	StateWaitProcess State = iota
	StateHandshake
	StateRelay
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateWaitProcess:
		return "wait_process"
	case StateHandshake:
		return "handshake"
	case StateRelay:
		return "relay"
	case StateEnded:
		return "ended"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Config wires a generation to its collaborators.
type Config struct {
	// Number identifies the generation in logs.
	Number int
	// Session is shared by every generation of an invocation.
	Session *Session
	// Input is the shared client line queue.
	Input Source
	// Output is the client's output stream.
	Output LineWriter
	// Child returns the server for this generation, or nil while there is
	// none.
	Child func() Child
	// After is closed once the previous generation has stopped writing to
	// Output. A nil channel means there is no previous generation.
	After <-chan struct{}
	// PollInterval defaults to DefaultPollInterval.
	PollInterval time.Duration
	// DrainTimeout defaults to DefaultDrainTimeout.
	DrainTimeout time.Duration
	Logger       *slog.Logger
}

// Generation relays one server lifetime: it waits for the server, completes
// the initialize handshake with it, then copies lines in both directions
// until it is stopped.
type Generation struct {
	cfg   Config
	log   *slog.Logger
	state atomic.Int32
	done  chan struct{}

	ownsOutput bool
}

// New creates a generation. Nothing happens until Run is called.
func New(cfg Config) *Generation {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = DefaultDrainTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.After == nil {
		after := make(chan struct{})
		close(after)
		cfg.After = after
	}
	return &Generation{cfg: cfg, log: cfg.Logger, done: make(chan struct{})}
}

// Done is closed when Run has returned and the generation will never write
// to the client again.
func (g *Generation) Done() <-chan struct{} { return g.done }

// State returns the current lifecycle state.
func (g *Generation) State() State { return State(g.state.Load()) }

func (g *Generation) setState(ctx context.Context, s State) {
	g.state.Store(int32(s))
	g.log.DebugContext(ctx, "relay.state", slog.String("state", s.String()))
}

// Run drives the generation until ctx is canceled, the client's input ends,
// or a write fails. Canceling ctx is the stop signal.
func (g *Generation) Run(ctx context.Context) error {
	defer close(g.done)
	ctx = logctx.WithGenerationData(ctx, &logctx.GenerationData{Number: g.cfg.Number})

	g.setState(ctx, StateWaitProcess)
	child, err := g.waitProcess(ctx)
	if err != nil {
		g.setState(ctx, StateEnded)
		return err
	}
	ctx = logctx.WithGenerationData(ctx, &logctx.GenerationData{Number: g.cfg.Number, PID: child.PID()})
	out := bufio.NewReader(child.Output())

	g.setState(ctx, StateHandshake)
	if err := g.handshake(ctx, child, out); err != nil {
		g.setState(ctx, StateEnded)
		g.stopChild(ctx, child)
		_ = child.CloseOutput()
		return err
	}

	g.setState(ctx, StateRelay)
	return g.relay(ctx, child, out)
}

func (g *Generation) waitProcess(ctx context.Context) (Child, error) {
	for {
		if ctx.Err() != nil {
			return nil, ErrStopped
		}
		if c := g.cfg.Child(); c != nil {
			return c, nil
		}

		g.log.InfoContext(ctx, "relay.wait_process")
		t := time.NewTimer(g.cfg.PollInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ErrStopped
		case <-g.cfg.Input.Closed():
			t.Stop()
			return nil, ErrClientClosed
		case <-t.C:
		}
	}
}

// handshake brings a fresh server to the initialized state. The first server
// answers the client's real initialize request; every later server is
// initialized with the captured request and its answer is swallowed, since the
// client already holds one.
func (g *Generation) handshake(ctx context.Context, child Child, out *bufio.Reader) error {
	// A server that never answers would otherwise pin this goroutine after
	// the stop signal.
	release := context.AfterFunc(ctx, func() { _ = child.CloseOutput() })
	defer release()

	initLine, captured, delivered := g.cfg.Session.handshakeState()
	if !captured {
		g.log.InfoContext(ctx, "relay.handshake.wait_client")
		line, err := g.cfg.Input.Next(ctx)
		if err != nil {
			return g.inputErr(err)
		}
		g.cfg.Session.capture(line)
		initLine, _ = g.cfg.Session.InitializeLine()
	}

	if err := writeLine(child.Input(), initLine); err != nil {
		return fmt.Errorf("write initialize to server: %w", err)
	}

	if !delivered {
		if err := g.awaitResponse(ctx, out, initLine, true); err != nil {
			return err
		}
		g.cfg.Session.markDelivered()
		g.log.InfoContext(ctx, "relay.handshake.ok")
		return nil
	}

	if err := g.awaitResponse(ctx, out, initLine, false); err != nil {
		return err
	}
	if err := writeLine(child.Input(), mcp.InitializedNotificationMethod.Notification()); err != nil {
		return fmt.Errorf("write initialized to server: %w", err)
	}
	for _, m := range mcp.ListChangedNotifications {
		if err := g.emit(ctx, m.Notification()); err != nil {
			return err
		}
	}

	if g.cfg.Session.Resend() {
		subs := g.cfg.Session.Subscriptions()
		for _, sub := range subs {
			if err := writeLine(child.Input(), sub); err != nil {
				return fmt.Errorf("replay subscription to server: %w", err)
			}
			if err := g.awaitResponse(ctx, out, sub, false); err != nil {
				return err
			}
		}
		g.log.InfoContext(ctx, "relay.subscriptions.replayed", slog.Int("count", len(subs)))
	}

	g.log.InfoContext(ctx, "relay.handshake.replayed")
	return nil
}

// awaitResponse reads server lines until the response to request arrives.
// The response is delivered to the client only when deliver is set; any other
// server message seen meanwhile is passed through. When request has no id the
// first line read is taken as its response.
func (g *Generation) awaitResponse(ctx context.Context, out *bufio.Reader, request string, deliver bool) error {
	var id *jsonrpc.RequestID
	if env, err := jsonrpc.Peek(request); err == nil {
		id = env.ID
	}

	for {
		line, err := readLine(out)
		if err != nil {
			if ctx.Err() != nil {
				return ErrStopped
			}
			return fmt.Errorf("read response from server: %w", err)
		}

		matched := id.IsNil()
		if !matched {
			if env, err := jsonrpc.Peek(line); err == nil && env.IsResponseTo(id) {
				matched = true
			}
		}

		if !matched {
			if err := g.emit(ctx, line); err != nil {
				return err
			}
			continue
		}
		if deliver {
			return g.emit(ctx, line)
		}
		g.log.DebugContext(ctx, "relay.response.discarded", slog.String("id", id.String()))
		return nil
	}
}

// relay runs the steady state: server output to the client on one goroutine,
// client input to the server on this one. The output side ends silently when
// the server's output ends and leaves the input side running; the input side
// ends on the stop signal, end of client input, or a failed write.
func (g *Generation) relay(ctx context.Context, child Child, out *bufio.Reader) error {
	eg, egctx := errgroup.WithContext(ctx)
	outDone := make(chan struct{})
	eg.Go(func() error {
		defer close(outDone)
		return g.pumpOutput(ctx, out)
	})

	inErr := g.pumpInput(egctx, child)

	g.setState(ctx, StateEnded)
	g.stopChild(ctx, child)

	t := time.NewTimer(g.cfg.DrainTimeout)
	select {
	case <-outDone:
	case <-t.C:
		g.log.WarnContext(ctx, "relay.output.drain_timeout", slog.Duration("timeout", g.cfg.DrainTimeout))
		_ = child.CloseOutput()
	}
	t.Stop()

	outErr := eg.Wait()
	_ = child.CloseOutput()

	if outErr != nil {
		return outErr
	}
	return inErr
}

func (g *Generation) pumpOutput(ctx context.Context, out *bufio.Reader) error {
	for {
		line, err := readLine(out)
		if err != nil {
			if errors.Is(err, io.EOF) {
				g.log.InfoContext(ctx, "relay.server.eof")
			} else {
				g.log.DebugContext(ctx, "relay.server.read_end", slog.String("err", err.Error()))
			}
			return nil
		}
		if err := g.emit(context.WithoutCancel(ctx), line); err != nil {
			g.log.ErrorContext(ctx, "relay.client.write.fail", slog.String("err", err.Error()))
			return err
		}
	}
}

func (g *Generation) pumpInput(ctx context.Context, child Child) error {
	for {
		line, err := g.cfg.Input.Next(ctx)
		if err != nil {
			return g.inputErr(err)
		}

		g.cfg.Session.Observe(line)
		if err := writeLine(child.Input(), line); err != nil {
			// Hand the line to whichever generation comes next.
			g.cfg.Input.Unread(line)
			g.log.ErrorContext(ctx, "relay.server.write.fail", slog.String("err", err.Error()))
			return fmt.Errorf("write to server: %w", err)
		}
	}
}

func (g *Generation) inputErr(err error) error {
	if errors.Is(err, stdio.ErrClosed) {
		return ErrClientClosed
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrStopped
	}
	return err
}

// emit writes a line to the client. The first write waits until the previous
// generation has finished writing, so lines from two servers never mix.
func (g *Generation) emit(ctx context.Context, line string) error {
	if !g.ownsOutput {
		select {
		case <-g.cfg.After:
		case <-ctx.Done():
			return ErrStopped
		}
		g.ownsOutput = true
	}
	return g.cfg.Output.WriteLine(line)
}

func (g *Generation) stopChild(ctx context.Context, child Child) {
	outcome := child.Stop()
	g.log.InfoContext(ctx, "relay.server.stopped", slog.String("outcome", outcome.String()))
}

func writeLine(w io.Writer, line string) error {
	buf := make([]byte, 0, len(line)+1)
	buf = append(buf, line...)
	buf = append(buf, '\n')
	_, err := w.Write(buf)
	return err
}

// readLine returns the next line without its terminator. A final line
// without a newline is still returned; io.EOF follows on the next call.
func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if len(line) > 0 && (err == nil || errors.Is(err, io.EOF)) {
		line = strings.TrimSuffix(line, "\n")
		return strings.TrimSuffix(line, "\r"), nil
	}
	return "", err
}
