package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ggoodman/synf/config"
	"github.com/ggoodman/synf/runner"
	"github.com/ggoodman/synf/watcher"
	"github.com/spf13/cobra"
)

type devFlags struct {
	resend    bool
	logLevel  string
	logFormat string
}

func newDevCmd() *cobra.Command {
	var f devFlags
	cmd := &cobra.Command{
		Use:   "dev [path]",
		Short: "Run the server in path and restart it when its sources change",
		Long: `Run the MCP server described by path/synf.toml (default: the current
directory). The server's stdio is relayed to synf's own stdin and stdout;
logs, build output and the server's stderr go to stderr.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDev(cmd, args, &f)
		},
	}
	cmd.Flags().BoolVar(&f.resend, "resend", false, "replay resources/subscribe requests to the server after every restart")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error (default $SYNF_LOG_LEVEL or info)")
	cmd.Flags().StringVar(&f.logFormat, "log-format", "", "text or json (default $SYNF_LOG_FORMAT or text)")
	return cmd
}

func runDev(cmd *cobra.Command, args []string, f *devFlags) error {
	root := "."
	if len(args) == 1 {
		root = args[0]
	}

	env, err := config.LoadEnv()
	if err != nil {
		return err
	}
	level, format := env.LogLevel, env.LogFormat
	if f.logLevel != "" {
		level = f.logLevel
	}
	if f.logFormat != "" {
		format = f.logFormat
	}
	log, err := newLogger(cmd.ErrOrStderr(), level, format)
	if err != nil {
		return err
	}

	if err := config.ValidateRoot(root); err != nil {
		return err
	}
	file, err := config.Load(root)
	if err != nil {
		return err
	}
	resolved, err := config.Resolve(root, file, log)
	if err != nil {
		return err
	}
	env.Apply(resolved)
	if cmd.Flags().Changed("resend") {
		resolved.ResendSubscriptions = f.resend
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := runner.New(resolved,
		runner.WithIO(cmd.InOrStdin(), cmd.OutOrStdout()),
		runner.WithStderr(cmd.ErrOrStderr()),
		runner.WithLogger(log),
	)

	// The watch is established before the first build so that edits made
	// while it runs are not missed.
	w, err := watcher.New(resolved.WatchRoots, func(paths []string) {
		if err := r.Trigger(); err != nil {
			log.DebugContext(ctx, "watch.trigger.skip", slog.String("err", err.Error()))
		}
	}, watcher.WithLogger(log))
	if err != nil {
		return err
	}
	defer w.Close()
	go func() { _ = w.Run(ctx) }()

	return r.Run(ctx)
}
