package config

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
)

// ErrNoRunCommand is returned when neither the configuration nor the
// language defaults provide a command to run the server.
var ErrNoRunCommand = errors.New("no run command configured")

// Command is an executable and its arguments.
type Command struct {
	Name string
	Args []string
}

// Empty reports whether the command has no executable.
func (c Command) Empty() bool { return c.Name == "" }

func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

func (c Command) clone() Command {
	return Command{Name: c.Name, Args: append([]string(nil), c.Args...)}
}

// Resolved is the configuration the runner executes: every override has been
// applied on top of the language defaults and every path is absolute.
type Resolved struct {
	Root                string
	Language            Language
	Build               Command
	Run                 Command
	WatchRoots          []string
	ResendSubscriptions bool
	AbortOnBuildFailure bool
}

// Resolve applies f on top of the defaults for f.Language. Precedence is
// explicit override, then language default; a missing run command is an
// error rather than a silent no-op.
func Resolve(root string, f *File, log *slog.Logger) (*Resolved, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	d, ok := DefaultsFor(f.Language)
	if !ok {
		return nil, fmt.Errorf("unknown language %q", f.Language)
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root %q: %w", root, err)
	}

	res := &Resolved{
		Root:                absRoot,
		Language:            f.Language,
		Build:               f.Build.Section.apply(d.Build),
		Run:                 f.Run.apply(d.Run),
		ResendSubscriptions: f.ResendResourceSubscriptions,
		AbortOnBuildFailure: f.Build.AbortOnFailure,
	}
	if res.Run.Empty() {
		return nil, ErrNoRunCommand
	}

	paths := d.WatchPaths
	if f.Watch.DefaultPaths != nil {
		paths = *f.Watch.DefaultPaths
	}
	paths = append(append([]string(nil), paths...), f.Watch.ExtraPaths...)
	if len(f.Watch.ExtraPaths) == 0 && f.Language == Golang {
		log.Warn("config.watch.golang_extra_paths",
			slog.String("hint", "only go.mod is watched by default for golang; add extra_paths such as internal/ or cmd/"))
	}

	seen := make(map[string]bool, len(paths))
	for _, p := range paths {
		if !filepath.IsAbs(p) {
			p = filepath.Join(absRoot, p)
		}
		p = filepath.Clean(p)
		if seen[p] {
			continue
		}
		seen[p] = true
		res.WatchRoots = append(res.WatchRoots, p)
	}

	return res, nil
}

func (s Section) apply(def Command) Command {
	out := def.clone()
	if s.Command != nil {
		out.Name = *s.Command
	}
	if s.Args != nil {
		out.Args = append([]string(nil), (*s.Args)...)
	}
	return out
}
