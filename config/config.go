// Package config loads synf.toml and resolves it, together with the
// per-language defaults, into the commands and watch roots the runner uses.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// FileName is the configuration file looked up in the project root.
const FileName = "synf.toml"

// File models synf.toml. Pointer fields distinguish "not set" from "set to
// the empty value", which matters for overrides such as an empty build
// command that disables a language's default build step.
type File struct {
	Language                    Language     `toml:"language" json:"language" jsonschema:"enum=typescript,enum=python,enum=golang,enum=kotlin,description=Selects the default build/run commands and watch paths"`
	ResendResourceSubscriptions bool         `toml:"resend_resource_subscriptions" json:"resend_resource_subscriptions,omitempty" jsonschema:"description=Replay resources/subscribe requests to the server after every restart"`
	Build                       BuildSection `toml:"build" json:"build,omitempty"`
	Run                         Section      `toml:"run" json:"run,omitempty"`
	Watch                       WatchSection `toml:"watch" json:"watch,omitempty"`
}

// Section overrides a command and its arguments.
type Section struct {
	Command *string   `toml:"command" json:"command,omitempty" jsonschema:"description=Executable to run; an empty string disables the step"`
	Args    *[]string `toml:"args" json:"args,omitempty" jsonschema:"description=Arguments passed to the command"`
}

// BuildSection overrides the build step.
type BuildSection struct {
	Section
	AbortOnFailure bool `toml:"abort_on_failure" json:"abort_on_failure,omitempty" jsonschema:"description=Keep the previous server running when the build fails instead of restarting anyway"`
}

// WatchSection selects the paths whose changes trigger a rebuild.
type WatchSection struct {
	DefaultPaths *[]string `toml:"default_paths" json:"default_paths,omitempty" jsonschema:"description=Replaces the language's default watch paths"`
	ExtraPaths   []string  `toml:"extra_paths" json:"extra_paths,omitempty" jsonschema:"description=Watched in addition to the default paths"`
}

// Load reads FileName from root.
func Load(root string) (*File, error) {
	path := filepath.Join(root, FileName)
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s not found in %s (run `synf init` to create one): %w", FileName, root, err)
		}
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	cfg, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read config from %s: %w", path, err)
	}
	return cfg, nil
}

// Decode parses a configuration document. Unknown keys are an error so that
// typos do not silently fall back to defaults.
func Decode(r io.Reader) (*File, error) {
	var f File
	md, err := toml.NewDecoder(r).Decode(&f)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}
	if f.Language == "" {
		return nil, errors.New("language is required")
	}
	return &f, nil
}

// ValidateRoot checks that path exists and is a directory.
func ValidateRoot(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("path %q does not exist", path)
		}
		return fmt.Errorf("failed to stat %q: %w", path, err)
	}
	if !fi.IsDir() {
		kind := "something else"
		if fi.Mode().IsRegular() {
			kind = "a file"
		}
		return fmt.Errorf("path %q expected to be a directory, but was %s", path, kind)
	}
	return nil
}
