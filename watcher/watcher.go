package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the tree must be quiet before a batch of
// changes is reported.
const DefaultDebounce = time.Second

type options struct {
	log      *slog.Logger
	debounce time.Duration
}

// Option customizes a Watcher.
type Option func(*options)

// WithLogger sets the logger. If not provided, logs are discarded.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.debounce = d
		}
	}
}

type root struct {
	path string
	dir  bool
}

// Watcher reports settled batches of changes under a set of roots. A root
// may be a directory, watched recursively, or a single file, watched through
// its parent directory so that replace-on-save editors do not lose the watch.
type Watcher struct {
	fw       *fsnotify.Watcher
	roots    []root
	onChange func(paths []string)
	log      *slog.Logger
	debounce time.Duration
}

// New starts watching roots. Every root must exist: a missing root is an
// error naming it. onChange is called from Run's goroutine, once per settled
// batch, and never concurrently with itself.
func New(roots []string, onChange func(paths []string), opts ...Option) (*Watcher, error) {
	o := options{log: slog.New(slog.DiscardHandler), debounce: DefaultDebounce}
	for _, opt := range opts {
		opt(&o)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	w := &Watcher{fw: fw, onChange: onChange, log: o.log, debounce: o.debounce}

	for _, p := range roots {
		if err := w.add(p); err != nil {
			_ = fw.Close()
			return nil, err
		}
	}
	return w, nil
}

func (w *Watcher) add(p string) error {
	abs, err := filepath.Abs(p)
	if err != nil {
		return fmt.Errorf("watch root %q: %w", p, err)
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("watch root %q: %w", p, err)
	}

	if !fi.IsDir() {
		if err := w.fw.Add(filepath.Dir(abs)); err != nil {
			return fmt.Errorf("watch root %q: %w", p, err)
		}
		w.roots = append(w.roots, root{path: abs})
		w.log.Debug("watch.add", slog.String("path", abs), slog.Bool("dir", false))
		return nil
	}

	if err := w.addTree(abs); err != nil {
		return fmt.Errorf("watch root %q: %w", p, err)
	}
	w.roots = append(w.roots, root{path: abs, dir: true})
	w.log.Debug("watch.add", slog.String("path", abs), slog.Bool("dir", true))
	return nil
}

// addTree watches dir and every directory below it.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			// The root itself must be watchable; anything below it may
			// vanish while we walk.
			if p == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		return w.fw.Add(p)
	})
}

// relevant reports whether a change to name concerns one of the roots.
func (w *Watcher) relevant(name string) bool {
	for _, r := range w.roots {
		if !r.dir {
			if name == r.path {
				return true
			}
			continue
		}
		if within(name, r.path) {
			return true
		}
	}
	return false
}

func within(p, dir string) bool {
	rel, err := filepath.Rel(dir, p)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// Run delivers change batches until ctx is canceled or the watcher is
// closed.
func (w *Watcher) Run(ctx context.Context) error {
	var (
		timer   *time.Timer
		fire    <-chan time.Time
		pending = make(map[string]struct{})
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ev.Name) {
				continue
			}
			// Maintain watches on directories created after startup.
			if ev.Has(fsnotify.Create) {
				if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
					if err := w.addTree(ev.Name); err != nil {
						w.log.WarnContext(ctx, "watch.add.fail", slog.String("path", ev.Name), slog.String("err", err.Error()))
					}
				}
			}
			if ev.Op == fsnotify.Chmod {
				continue
			}

			pending[ev.Name] = struct{}{}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-w.fw.Errors:
			if !ok {
				return nil
			}
			w.log.ErrorContext(ctx, "watch.error", slog.String("err", err.Error()))
		case <-fire:
			fire = nil
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			clear(pending)
			sort.Strings(paths)

			w.log.InfoContext(ctx, "watch.change", slog.Int("count", len(paths)), slog.String("first", paths[0]))
			w.onChange(paths)
		}
	}
}

// Close stops watching. Run returns once the underlying channels close.
func (w *Watcher) Close() error {
	return w.fw.Close()
}
