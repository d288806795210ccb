package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/ggoodman/synf/config"
)

// DefaultGrace is how long a child gets to exit after its stdin is closed
// before it is killed.
const DefaultGrace = 2 * time.Second

// Outcome reports how a child ended when it was stopped.
type Outcome int

const (
	// OutcomeExited means the child exited cleanly within the grace period.
	OutcomeExited Outcome = iota
	// OutcomeExitedError means the child exited on its own with an error.
	OutcomeExitedError
	// OutcomeKilled means the child outlived the grace period and was killed.
	OutcomeKilled
	// OutcomeKillFailed means the child outlived the grace period and could
	// not be killed.
	OutcomeKillFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeExited:
		return "exited"
	case OutcomeExitedError:
		return "exited_error"
	case OutcomeKilled:
		return "killed"
	case OutcomeKillFailed:
		return "kill_failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Spec describes a child to start.
type Spec struct {
	// Dir is the working directory of the child.
	Dir string
	// Command is the executable and its arguments.
	Command config.Command
	// Stderr receives the child's standard error. It is not part of the
	// relayed protocol.
	Stderr io.Writer
	// Grace bounds how long Stop waits for a voluntary exit. Zero means
	// DefaultGrace.
	Grace time.Duration
	// Logger receives lifecycle events. Nil discards them.
	Logger *slog.Logger
}

// Process is a running child with piped standard input and output.
//
// The monitor goroutine started by Start is the only caller of cmd.Wait;
// everything else observes exit through the exited channel.
type Process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *os.File
	grace  time.Duration
	log    *slog.Logger
	ctx    context.Context

	exited  chan struct{}
	waitErr error

	inputOnce  sync.Once
	outputOnce sync.Once
	stopOnce   sync.Once
	outcome    Outcome
}

// Start spawns the child described by spec. ctx only scopes logging: the
// child is never tied to ctx's lifetime and must be ended with Stop.
func Start(ctx context.Context, spec Spec) (*Process, error) {
	if spec.Command.Empty() {
		return nil, errors.New("supervisor: empty command")
	}
	log := spec.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	grace := spec.Grace
	if grace <= 0 {
		grace = DefaultGrace
	}
	stderr := spec.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	cmd := exec.Command(spec.Command.Name, spec.Command.Args...)
	cmd.Dir = spec.Dir
	cmd.Stderr = stderr
	configureProcess(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	// The read end is owned here rather than by exec so that Wait does not
	// close it while output is still buffered in the pipe.
	outR, outW, err := os.Pipe()
	if err != nil {
		_ = stdin.Close()
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	cmd.Stdout = outW

	if err := cmd.Start(); err != nil {
		_ = outR.Close()
		_ = outW.Close()
		return nil, fmt.Errorf("failed to start %q: %w", spec.Command.String(), err)
	}
	_ = outW.Close()

	p := &Process{
		cmd:    cmd,
		stdin:  stdin,
		stdout: outR,
		grace:  grace,
		log:    log.With(slog.Int("pid", cmd.Process.Pid)),
		ctx:    ctx,
		exited: make(chan struct{}),
	}
	go p.monitor()

	p.log.InfoContext(ctx, "child.spawn.ok", slog.String("cmd", spec.Command.String()))
	return p, nil
}

func (p *Process) monitor() {
	p.waitErr = p.cmd.Wait()
	close(p.exited)
}

// PID returns the child's process id.
func (p *Process) PID() int { return p.cmd.Process.Pid }

// Input is the write end of the child's standard input.
func (p *Process) Input() io.Writer { return p.stdin }

// Output is the read end of the child's standard output.
func (p *Process) Output() io.Reader { return p.stdout }

// Exited is closed once the child has exited.
func (p *Process) Exited() <-chan struct{} { return p.exited }

// Err returns the child's exit error. It is only meaningful after Exited is
// closed.
func (p *Process) Err() error {
	select {
	case <-p.exited:
		return p.waitErr
	default:
		return nil
	}
}

// CloseInput closes the child's standard input, which well-behaved stdio
// servers treat as a request to exit. It is safe to call more than once.
func (p *Process) CloseInput() error {
	var err error
	p.inputOnce.Do(func() {
		p.log.DebugContext(p.ctx, "child.stdin.close")
		err = p.stdin.Close()
	})
	return err
}

// CloseOutput closes the read end of the child's standard output, releasing
// any goroutine blocked reading it. It is safe to call more than once.
func (p *Process) CloseOutput() error {
	var err error
	p.outputOnce.Do(func() {
		err = p.stdout.Close()
	})
	return err
}

// Stop ends the child: close its input, give it the grace period to exit,
// and kill it if it is still running. Concurrent and repeated calls share the
// first call's outcome.
func (p *Process) Stop() Outcome {
	p.stopOnce.Do(func() {
		p.outcome = p.stop()
	})
	return p.outcome
}

func (p *Process) stop() Outcome {
	_ = p.CloseInput()

	timer := time.NewTimer(p.grace)
	defer timer.Stop()
	select {
	case <-p.exited:
		return p.exitOutcome()
	case <-timer.C:
	}

	select {
	case <-p.exited:
		return p.exitOutcome()
	default:
	}

	p.log.InfoContext(p.ctx, "child.still_running", slog.Duration("grace", p.grace))
	if err := killProcess(p.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
		p.log.ErrorContext(p.ctx, "child.kill.fail", slog.String("err", err.Error()))
		return OutcomeKillFailed
	}
	p.log.InfoContext(p.ctx, "child.kill.ok")

	select {
	case <-p.exited:
	case <-time.After(p.grace):
		p.log.WarnContext(p.ctx, "child.kill.wait_timeout")
	}
	return OutcomeKilled
}

func (p *Process) exitOutcome() Outcome {
	if p.waitErr != nil {
		p.log.InfoContext(p.ctx, "child.exit.fail", slog.String("err", p.waitErr.Error()))
		return OutcomeExitedError
	}
	p.log.InfoContext(p.ctx, "child.exit.ok")
	return OutcomeExited
}
