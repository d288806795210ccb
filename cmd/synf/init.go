package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ggoodman/synf/config"
	"github.com/ggoodman/synf/internal/prompt"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

func newInitCmd() *cobra.Command {
	var (
		lang  string
		force bool
	)
	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a commented synf.toml for the project in path",
		Long: `Detect the project's language from its marker files and write a
synf.toml listing the defaults for that language. When stdin is a terminal
the detected language can be changed interactively.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) == 1 {
				root = args[0]
			}
			return runInit(cmd, root, lang, force)
		},
	}
	cmd.Flags().StringVar(&lang, "language", "", "skip detection and use this language")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing synf.toml")
	return cmd
}

func runInit(cmd *cobra.Command, root, lang string, force bool) error {
	if err := config.ValidateRoot(root); err != nil {
		return err
	}
	path := filepath.Join(root, config.FileName)
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}

	var l config.Language
	if lang != "" {
		if err := l.UnmarshalText([]byte(lang)); err != nil {
			return err
		}
	} else {
		var err error
		if l, err = chooseLanguage(cmd, config.Detect(root)); err != nil {
			return err
		}
	}

	if err := os.WriteFile(path, []byte(config.Render(l)), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s for %s\n", path, l)
	return nil
}

// chooseLanguage confirms the detected language with the user when stdin is
// a terminal, and accepts it as-is otherwise.
func chooseLanguage(cmd *cobra.Command, detected config.Language) (config.Language, error) {
	in, ok := cmd.InOrStdin().(*os.File)
	if !ok || !(isatty.IsTerminal(in.Fd()) || isatty.IsCygwinTerminal(in.Fd())) {
		return detected, nil
	}

	names := make([]string, len(config.Languages))
	initial := 0
	for i, l := range config.Languages {
		names[i] = l.String()
		if l == detected {
			initial = i
		}
	}
	idx, err := prompt.Select(in, cmd.OutOrStdout(), "Which language is this MCP server written in?", names, initial)
	if err != nil {
		return "", err
	}
	return config.Languages[idx], nil
}
