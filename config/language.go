package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Language selects the defaults used for building, running and watching a
// server.
type Language string

const (
	TypeScript Language = "typescript"
	Python     Language = "python"
	Golang     Language = "golang"
	Kotlin     Language = "kotlin"
)

// Languages lists every supported language in the order they are offered to
// the user.
var Languages = []Language{TypeScript, Python, Kotlin, Golang}

// Defaults are the per-language commands and watch paths used when the
// configuration does not override them. An empty Build.Name means there is
// no build step.
type Defaults struct {
	Build      Command
	Run        Command
	WatchPaths []string
}

var defaults = map[Language]Defaults{
	TypeScript: {
		Build:      Command{Name: "npm", Args: []string{"run", "build"}},
		Run:        Command{Name: "node", Args: []string{"build/index.js"}},
		WatchPaths: []string{"src", "package.json"},
	},
	Python: {
		Run:        Command{Name: "uv", Args: []string{"run"}},
		WatchPaths: []string{"src", "pyproject.toml"},
	},
	Golang: {
		Run:        Command{Name: "go", Args: []string{"run", "main.go"}},
		WatchPaths: []string{"go.mod"},
	},
	Kotlin: {
		Run:        Command{Name: "./gradlew", Args: []string{"run"}},
		WatchPaths: []string{"src", "build.gradle.kts", "gradle.properties"},
	},
}

// DefaultsFor returns a copy of the built-in defaults for l.
func DefaultsFor(l Language) (Defaults, bool) {
	d, ok := defaults[l]
	if !ok {
		return Defaults{}, false
	}
	return Defaults{
		Build:      d.Build.clone(),
		Run:        d.Run.clone(),
		WatchPaths: append([]string(nil), d.WatchPaths...),
	}, true
}

// Valid reports whether l is one of the supported languages.
func (l Language) Valid() bool {
	_, ok := defaults[l]
	return ok
}

func (l Language) String() string { return string(l) }

// UnmarshalText implements encoding.TextUnmarshaler and rejects unknown
// languages.
func (l *Language) UnmarshalText(text []byte) error {
	v := Language(strings.TrimSpace(string(text)))
	if !v.Valid() {
		names := make([]string, len(Languages))
		for i, lang := range Languages {
			names[i] = string(lang)
		}
		return fmt.Errorf("unknown language %q (expected one of %s)", string(text), strings.Join(names, ", "))
	}
	*l = v
	return nil
}

// markers are checked in order; the first marker file found decides.
var markers = []struct {
	files []string
	lang  Language
}{
	{[]string{"package.json"}, TypeScript},
	{[]string{"pyproject.toml"}, Python},
	{[]string{"build.gradle", "build.gradle.kts"}, Kotlin},
	{[]string{"go.mod"}, Golang},
}

// Detect guesses the language of the project in root from well-known marker
// files, falling back to TypeScript.
func Detect(root string) Language {
	for _, m := range markers {
		for _, f := range m.files {
			if _, err := os.Stat(filepath.Join(root, f)); err == nil {
				return m.lang
			}
		}
	}
	return TypeScript
}
