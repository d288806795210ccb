// Command synf supervises a stdio MCP server during development: it rebuilds
// and restarts the server when its sources change while the connected client
// keeps a single, uninterrupted session.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "synf: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "synf",
		Short: "Hot-reload a stdio MCP server without dropping the client",
		Long: `synf runs your MCP server as a child process and relays the client's
stdio to it. When watched files change it rebuilds and restarts the server,
replays the initialize handshake to the new process and tells the client to
refetch its tools, prompts and resources.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newDevCmd(), newInitCmd(), newSchemaCmd())
	return root
}
