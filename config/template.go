package config

import (
	"fmt"
	"strings"
)

// Render returns a commented synf.toml for l. Every default is listed but
// commented out so that the file documents itself without pinning values.
func Render(l Language) string {
	d, _ := DefaultsFor(l)

	var b strings.Builder
	b.WriteString(`
# language is used to determine the default paths to watch for changes
# and the default command to run the server.
# Possible values are "typescript", "python", "kotlin" and "golang"
`)
	fmt.Fprintf(&b, "language = %q\n\n", string(l))

	b.WriteString(`# Set to true to replay resources/subscribe requests to the server after
# every restart.
# resend_resource_subscriptions = false

`)

	fmt.Fprintf(&b, `[build]
# command and args are used to specify the command to build the server after changes.
# These are the default values for %s:
`, l)
	writeCommand(&b, d.Build)
	b.WriteString(`
# Set to true to keep the previous server running when the build fails.
# abort_on_failure = false
`)

	fmt.Fprintf(&b, `
[run]
# command and args are used to specify the command to run the server
# during development after it has been rebuilt
# These are the default values for %s:
`, l)
	writeCommand(&b, d.Run)

	fmt.Fprintf(&b, `
[watch]
# Watch configurations are used to specify the files and directories to watch for changes
# when hot reloading the server during development

# default_paths are the paths that are watched by default
# and are defined by the language that is being used.
# You can override the default paths by specifying them here.
# These are the paths that are watched by default for %s:
`, l)
	fmt.Fprintf(&b, "\n# default_paths = %s\n", tomlList(d.WatchPaths))

	b.WriteString(`
# extra_paths are the paths that are watched in addition to the default paths.
# You can use it to add more paths to watch for changes besides the default paths.
# extra_paths = []
`)
	return b.String()
}

func writeCommand(b *strings.Builder, c Command) {
	fmt.Fprintf(b, "\n# command = %q\n# args = %s\n", c.Name, tomlList(c.Args))
}

func tomlList(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = fmt.Sprintf("%q", s)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
