package supervisor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/ggoodman/synf/config"
)

// Build runs cmd synchronously in dir, sending its stdout and stderr to
// output. It reports false without running anything when cmd is empty.
//
// The build never sees the tool's own standard input: that stream carries the
// client's protocol messages.
func Build(ctx context.Context, log *slog.Logger, dir string, cmd config.Command, output io.Writer) (bool, error) {
	if cmd.Empty() {
		log.DebugContext(ctx, "build.skip")
		return false, nil
	}
	if output == nil {
		output = os.Stderr
	}

	start := time.Now()
	log.InfoContext(ctx, "build.start", slog.String("cmd", cmd.String()))

	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = dir
	c.Stdout = output
	c.Stderr = output
	if err := c.Run(); err != nil {
		log.ErrorContext(ctx, "build.fail", slog.String("err", err.Error()), slog.Duration("dur", time.Since(start)))
		return true, fmt.Errorf("build %q: %w", cmd.String(), err)
	}

	log.InfoContext(ctx, "build.ok", slog.Duration("dur", time.Since(start)))
	return true, nil
}
