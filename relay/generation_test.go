package relay

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ggoodman/synf/stdio"
	"github.com/ggoodman/synf/supervisor"
)

const (
	initLine      = `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18","capabilities":{},"clientInfo":{"name":"client","version":"0.0.1"}}}`
	initResponse  = `{"jsonrpc":"2.0","id":1,"result":{"protocolVersion":"2025-06-18","capabilities":{},"serverInfo":{"name":"srv","version":"1"}}}`
	initialized   = `{"jsonrpc":"2.0","method":"notifications/initialized"}`
	listLine      = `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`
	listResponse  = `{"jsonrpc":"2.0","id":2,"result":{"tools":[]}}`
	logMessage    = `{"jsonrpc":"2.0","method":"notifications/message","params":{"level":"info","data":"booting"}}`
	syntheticInit = `{"method":"notifications/initialized","jsonrpc":"2.0"}`
)

var listChanged = []string{
	`{"method":"notifications/tools/list_changed","jsonrpc":"2.0"}`,
	`{"method":"notifications/prompts/list_changed","jsonrpc":"2.0"}`,
	`{"method":"notifications/resources/list_changed","jsonrpc":"2.0"}`,
}

const waitTimeout = time.Second

// fakeChild is an in-memory server. Lines written by the relay show up on
// received; lines passed to send are read by the relay.
type fakeChild struct {
	t   *testing.T
	pid int

	inR  *io.PipeReader
	inW  *io.PipeWriter
	outR *io.PipeReader
	outW *io.PipeWriter

	received chan string
	stopped  chan struct{}
	stopOnce sync.Once
}

func newFakeChild(t *testing.T, pid int) *fakeChild {
	t.Helper()
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	c := &fakeChild{
		t:        t,
		pid:      pid,
		inR:      inR,
		inW:      inW,
		outR:     outR,
		outW:     outW,
		received: make(chan string, 64),
		stopped:  make(chan struct{}),
	}
	go func() {
		sc := bufio.NewScanner(inR)
		for sc.Scan() {
			c.received <- sc.Text()
		}
	}()
	t.Cleanup(func() {
		c.Stop()
		_ = c.CloseOutput()
	})
	return c
}

func (c *fakeChild) PID() int { return c.pid }

func (c *fakeChild) Input() io.Writer { return c.inW }

func (c *fakeChild) Output() io.Reader { return c.outR }

func (c *fakeChild) CloseOutput() error { return c.outR.Close() }

func (c *fakeChild) Stop() supervisor.Outcome {
	c.stopOnce.Do(func() {
		close(c.stopped)
		_ = c.inW.Close()
		_ = c.outW.Close()
	})
	return supervisor.OutcomeExited
}

func (c *fakeChild) send(line string) {
	c.t.Helper()
	if _, err := io.WriteString(c.outW, line+"\n"); err != nil {
		c.t.Fatalf("child send: %v", err)
	}
}

func (c *fakeChild) expect(want string) {
	c.t.Helper()
	select {
	case got := <-c.received:
		if got != want {
			c.t.Fatalf("child received:\n got %s\nwant %s", got, want)
		}
	case <-time.After(waitTimeout):
		c.t.Fatalf("timeout waiting for child to receive %s", want)
	}
}

func (c *fakeChild) expectStopped() {
	c.t.Helper()
	select {
	case <-c.stopped:
	case <-time.After(waitTimeout):
		c.t.Fatal("child was not stopped")
	}
}

// clientSink collects lines written to the client.
type clientSink struct {
	mu    sync.Mutex
	lines []string
}

func (s *clientSink) WriteLine(line string) error {
	s.mu.Lock()
	s.lines = append(s.lines, line)
	s.mu.Unlock()
	return nil
}

func (s *clientSink) nextLine(timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		if len(s.lines) > 0 {
			line := s.lines[0]
			s.lines = s.lines[1:]
			s.mu.Unlock()
			return line, nil
		}
		s.mu.Unlock()
		time.Sleep(2 * time.Millisecond)
	}
	return "", fmt.Errorf("timeout waiting for output line")
}

type harness struct {
	t       *testing.T
	clientW *io.PipeWriter
	in      *stdio.Ingest
	out     *clientSink
	session *Session
}

func newHarness(t *testing.T, resend bool) *harness {
	t.Helper()
	r, w := io.Pipe()
	in := stdio.NewIngest(stdio.WithReader(r), stdio.WithLogger(slog.Default()))
	in.Start()
	t.Cleanup(func() { _ = w.Close() })
	return &harness{t: t, clientW: w, in: in, out: &clientSink{}, session: NewSession(resend)}
}

func (h *harness) send(line string) {
	h.t.Helper()
	if _, err := io.WriteString(h.clientW, line+"\n"); err != nil {
		h.t.Fatalf("client send: %v", err)
	}
}

func (h *harness) expectOut(want string) {
	h.t.Helper()
	got, err := h.out.nextLine(waitTimeout)
	if err != nil {
		h.t.Fatalf("expecting %s: %v", want, err)
	}
	if got != want {
		h.t.Fatalf("client received:\n got %s\nwant %s", got, want)
	}
}

func (h *harness) expectNoOut(d time.Duration) {
	h.t.Helper()
	if line, err := h.out.nextLine(d); err == nil {
		h.t.Fatalf("unexpected client line: %s", line)
	}
}

type running struct {
	gen    *Generation
	cancel context.CancelFunc
	errc   chan error
}

func (h *harness) start(n int, child func() Child, after <-chan struct{}) *running {
	h.t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	g := New(Config{
		Number:       n,
		Session:      h.session,
		Input:        h.in,
		Output:       h.out,
		Child:        child,
		After:        after,
		PollInterval: 10 * time.Millisecond,
		DrainTimeout: 200 * time.Millisecond,
		Logger:       slog.Default(),
	})
	r := &running{gen: g, cancel: cancel, errc: make(chan error, 1)}
	go func() { r.errc <- g.Run(ctx) }()
	h.t.Cleanup(cancel)
	return r
}

func fixed(c Child) func() Child { return func() Child { return c } }

func (r *running) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-r.errc:
		if !isClosed(r.gen.Done()) {
			t.Fatal("Done not closed after Run returned")
		}
		return err
	case <-time.After(waitTimeout):
		t.Fatal("generation did not end")
		return nil
	}
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func TestFirstGenerationForwardsInitialize(t *testing.T) {
	h := newHarness(t, false)
	child := newFakeChild(t, 101)
	r := h.start(1, fixed(child), nil)

	h.send(initLine)
	child.expect(initLine)
	child.send(initResponse)
	h.expectOut(initResponse)

	h.send(initialized)
	child.expect(initialized)
	h.send(listLine)
	child.expect(listLine)
	child.send(listResponse)
	h.expectOut(listResponse)

	if !h.session.Initialized() {
		t.Fatal("session not marked initialized")
	}
	if got := r.gen.State(); got != StateRelay {
		t.Fatalf("state: want %s, got %s", StateRelay, got)
	}

	r.cancel()
	if err := r.wait(t); !errors.Is(err, ErrStopped) {
		t.Fatalf("want ErrStopped, got %v", err)
	}
	child.expectStopped()
	if got := r.gen.State(); got != StateEnded {
		t.Fatalf("state: want %s, got %s", StateEnded, got)
	}
}

func TestRestartReplaysHandshakeSilently(t *testing.T) {
	h := newHarness(t, false)
	h.session.capture(initLine)
	h.session.markDelivered()

	child := newFakeChild(t, 202)
	r := h.start(2, fixed(child), nil)

	child.expect(initLine)
	child.send(initResponse)
	child.expect(syntheticInit)
	for _, want := range listChanged {
		h.expectOut(want)
	}

	h.send(listLine)
	child.expect(listLine)
	child.send(listResponse)
	// The replayed initialize response must not have reached the client.
	h.expectOut(listResponse)

	r.cancel()
	if err := r.wait(t); !errors.Is(err, ErrStopped) {
		t.Fatalf("want ErrStopped, got %v", err)
	}
}

func TestRestartForwardsServerMessagesDuringReplay(t *testing.T) {
	h := newHarness(t, false)
	h.session.capture(initLine)
	h.session.markDelivered()

	child := newFakeChild(t, 203)
	h.start(2, fixed(child), nil)

	child.expect(initLine)
	child.send(logMessage)
	child.send(initResponse)
	child.expect(syntheticInit)

	h.expectOut(logMessage)
	for _, want := range listChanged {
		h.expectOut(want)
	}
	h.expectNoOut(50 * time.Millisecond)
}

func TestRestartReplaysSubscriptions(t *testing.T) {
	h := newHarness(t, true)
	h.session.capture(initLine)
	h.session.markDelivered()
	h.session.Observe(subscribeA)
	h.session.Observe(unsubscribeA)
	h.session.Observe(subscribeB)

	child := newFakeChild(t, 204)
	h.start(2, fixed(child), nil)

	child.expect(initLine)
	child.send(initResponse)
	child.expect(syntheticInit)
	for _, want := range listChanged {
		h.expectOut(want)
	}
	child.expect(subscribeB)
	child.send(`{"jsonrpc":"2.0","id":5,"result":{}}`)

	// Nothing else is replayed: the next line the server sees is the client's.
	h.send(listLine)
	child.expect(listLine)
	child.send(listResponse)
	h.expectOut(listResponse)
}

func TestRelayTracksSubscriptionsWhenResendEnabled(t *testing.T) {
	h := newHarness(t, true)
	h.session.capture(initLine)
	h.session.markDelivered()

	child := newFakeChild(t, 205)
	h.start(2, fixed(child), nil)
	child.expect(initLine)
	child.send(initResponse)
	child.expect(syntheticInit)

	h.send(subscribeA)
	child.expect(subscribeA)
	if got := h.session.Subscriptions(); len(got) != 1 || got[0] != subscribeA {
		t.Fatalf("subscription not tracked: %v", got)
	}
}

func TestFirstWriteWaitsForPreviousGeneration(t *testing.T) {
	h := newHarness(t, false)
	h.session.capture(initLine)
	h.session.markDelivered()

	prev := make(chan struct{})
	child := newFakeChild(t, 206)
	h.start(2, fixed(child), prev)

	child.expect(initLine)
	child.send(initResponse)
	child.expect(syntheticInit)
	h.expectNoOut(100 * time.Millisecond)

	close(prev)
	for _, want := range listChanged {
		h.expectOut(want)
	}
}

func TestWriteFailurePushesLineBack(t *testing.T) {
	h := newHarness(t, false)
	child := newFakeChild(t, 207)
	r := h.start(1, fixed(child), nil)

	h.send(initLine)
	child.expect(initLine)
	child.send(initResponse)
	h.expectOut(initResponse)

	_ = child.inR.Close()
	h.send(listLine)

	if err := r.wait(t); !errors.Is(err, io.ErrClosedPipe) {
		t.Fatalf("want closed pipe error, got %v", err)
	}
	child.expectStopped()

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	line, err := h.in.Next(ctx)
	if err != nil || line != listLine {
		t.Fatalf("line not returned to queue: %q, %v", line, err)
	}
}

func TestClientCloseEndsGeneration(t *testing.T) {
	h := newHarness(t, false)
	child := newFakeChild(t, 208)
	r := h.start(1, fixed(child), nil)

	h.send(initLine)
	child.expect(initLine)
	child.send(initResponse)
	h.expectOut(initResponse)

	_ = h.clientW.Close()
	if err := r.wait(t); !errors.Is(err, ErrClientClosed) {
		t.Fatalf("want ErrClientClosed, got %v", err)
	}
	child.expectStopped()
}

func TestServerOutputDrainsAfterStop(t *testing.T) {
	h := newHarness(t, false)
	child := newFakeChild(t, 209)
	r := h.start(1, fixed(child), nil)

	h.send(initLine)
	child.expect(initLine)
	child.send(initResponse)
	h.expectOut(initResponse)

	// The server exits on its own: its output ends but the client side keeps
	// going until the generation is stopped.
	_ = child.outW.Close()
	time.Sleep(20 * time.Millisecond)
	if isClosed(r.gen.Done()) {
		t.Fatal("generation ended on server EOF")
	}

	r.cancel()
	if err := r.wait(t); !errors.Is(err, ErrStopped) {
		t.Fatalf("want ErrStopped, got %v", err)
	}
}

func TestWaitProcessPollsForChild(t *testing.T) {
	h := newHarness(t, false)
	child := newFakeChild(t, 210)

	var ready atomic.Bool
	r := h.start(1, func() Child {
		if ready.Load() {
			return child
		}
		return nil
	}, nil)

	time.Sleep(30 * time.Millisecond)
	if got := r.gen.State(); got != StateWaitProcess {
		t.Fatalf("state: want %s, got %s", StateWaitProcess, got)
	}

	h.send(initLine)
	ready.Store(true)
	child.expect(initLine)
}

func TestWaitProcessEndsOnStop(t *testing.T) {
	h := newHarness(t, false)
	r := h.start(1, fixed(nil), nil)

	time.Sleep(20 * time.Millisecond)
	r.cancel()
	if err := r.wait(t); !errors.Is(err, ErrStopped) {
		t.Fatalf("want ErrStopped, got %v", err)
	}
	if got := r.gen.State(); got != StateEnded {
		t.Fatalf("state: want %s, got %s", StateEnded, got)
	}
}

func TestWaitProcessEndsOnClientClose(t *testing.T) {
	h := newHarness(t, false)
	r := h.start(1, fixed(nil), nil)

	_ = h.clientW.Close()
	if err := r.wait(t); !errors.Is(err, ErrClientClosed) {
		t.Fatalf("want ErrClientClosed, got %v", err)
	}
}

func TestStopDuringHandshakeReleasesReader(t *testing.T) {
	h := newHarness(t, false)
	child := newFakeChild(t, 211)
	r := h.start(1, fixed(child), nil)

	h.send(initLine)
	child.expect(initLine)

	// The server never answers.
	r.cancel()
	if err := r.wait(t); !errors.Is(err, ErrStopped) {
		t.Fatalf("want ErrStopped, got %v", err)
	}
	child.expectStopped()

	// The client is still owed its initialize response: the next server
	// answers the captured request for real.
	next := newFakeChild(t, 212)
	h.start(2, fixed(next), r.gen.Done())
	next.expect(initLine)
	next.send(initResponse)
	h.expectOut(initResponse)
	h.expectNoOut(50 * time.Millisecond)
}
