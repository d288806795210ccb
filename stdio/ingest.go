package stdio

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// ErrClosed is returned by Ingest.Next once the input stream has ended and
// every queued line has been handed out.
var ErrClosed = errors.New("stdio: input closed")

// Ingest drains an input stream line by line into an ordered, unbounded
// queue. A single Ingest lives for the whole invocation and is shared by every
// relay generation: lines that arrive while no generation is consuming simply
// wait in the queue.
type Ingest struct {
	r io.Reader
	l *slog.Logger

	startOnce sync.Once

	mu      sync.Mutex
	lines   []string
	err     error
	changed chan struct{}
	closed  chan struct{}
}

// NewIngest constructs an Ingest reading from os.Stdin unless overridden. The
// reader goroutine is not started until Start is called.
func NewIngest(opts ...Option) *Ingest {
	cfg := options{r: os.Stdin, l: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Ingest{
		r:       cfg.r,
		l:       cfg.l,
		changed: make(chan struct{}),
		closed:  make(chan struct{}),
	}
}

// Start launches the reader goroutine. It is safe to call more than once.
func (in *Ingest) Start() {
	in.startOnce.Do(func() {
		go in.read()
	})
}

func (in *Ingest) read() {
	br := bufio.NewReader(in.r)
	for {
		line, err := br.ReadString('\n')
		if len(line) > 0 {
			in.push(trimEOL(line))
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				in.l.Error("stdin.read.fail", slog.String("err", err.Error()))
			} else {
				in.l.Info("stdin.eof")
			}
			in.finish(err)
			return
		}
	}
}

func trimEOL(line string) string {
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r")
}

func (in *Ingest) push(line string) {
	in.mu.Lock()
	in.lines = append(in.lines, line)
	in.broadcastLocked()
	in.mu.Unlock()
}

func (in *Ingest) finish(err error) {
	in.mu.Lock()
	in.err = err
	in.broadcastLocked()
	in.mu.Unlock()
	close(in.closed)
}

// broadcastLocked wakes every goroutine blocked in Next.
func (in *Ingest) broadcastLocked() {
	close(in.changed)
	in.changed = make(chan struct{})
}

// Next blocks until a line is available, the input is exhausted, or ctx is
// done. A canceled ctx never consumes a line, even when one is ready.
func (in *Ingest) Next(ctx context.Context) (string, error) {
	for {
		in.mu.Lock()
		if err := ctx.Err(); err != nil {
			in.mu.Unlock()
			return "", err
		}
		if len(in.lines) > 0 {
			line := in.lines[0]
			in.lines[0] = ""
			in.lines = in.lines[1:]
			in.mu.Unlock()
			return line, nil
		}
		if in.err != nil {
			err := in.err
			in.mu.Unlock()
			if errors.Is(err, io.EOF) {
				return "", ErrClosed
			}
			return "", errors.Join(ErrClosed, err)
		}
		changed := in.changed
		in.mu.Unlock()

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-changed:
		}
	}
}

// Unread puts line back at the front of the queue so that the next call to
// Next returns it. It is used when a line was taken but could not be
// delivered.
func (in *Ingest) Unread(line string) {
	in.mu.Lock()
	in.lines = append([]string{line}, in.lines...)
	in.broadcastLocked()
	in.mu.Unlock()
}

// Len returns the number of queued lines.
func (in *Ingest) Len() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.lines)
}

// Closed is closed once the input stream has ended. Lines read before the end
// may still be queued.
func (in *Ingest) Closed() <-chan struct{} {
	return in.closed
}
