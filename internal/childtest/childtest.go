// Package childtest turns a test binary into a stand-in MCP server so that
// supervisor, relay and runner tests can spawn real child processes.
//
// A test package opts in from TestMain:
//
//	func TestMain(m *testing.M) { childtest.Main(m) }
//
// and then runs Command(...) as its server. When the binary is re-executed
// with a -childtest.* argument it behaves as the requested child instead of
// running tests.
package childtest

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ggoodman/synf/config"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	flagMode      = "-childtest.mode="
	flagExitCode  = "-childtest.exit="
	flagMarker    = "-childtest.marker="
	flagIgnoreEOF = "-childtest.ignore-eof"
	flagChatty    = "-childtest.chatty"
	flagTrace     = "-childtest.trace"
)

// Modes understood by Command.
const (
	// ModeEcho answers every request with the child's pid and the request
	// method, and answers debug/received with every line seen so far.
	ModeEcho = "echo"
	// ModeExit exits immediately with the configured exit code.
	ModeExit = "exit"
	// ModeSDK serves MCP over stdio using the reference Go SDK.
	ModeSDK = "sdk"
)

// ReceivedMethod asks an echo child for the lines it has received.
const ReceivedMethod = "debug/received"

// Options tune a child.
type Options struct {
	// ExitCode is used by ModeExit.
	ExitCode int
	// Marker, when set, is a file the child creates in its working
	// directory before doing anything else.
	Marker string
	// IgnoreEOF keeps the child alive after its stdin is closed.
	IgnoreEOF bool
	// Chatty makes an echo child emit a log notification before each
	// response.
	Chatty bool
	// Trace makes an echo child copy every received line to stderr,
	// prefixed with its pid.
	Trace bool
}

// Command returns the command that re-executes the current test binary as a
// child in the given mode.
func Command(mode string, opts Options) config.Command {
	args := []string{"-test.run=^$", flagMode + mode}
	if opts.ExitCode != 0 {
		args = append(args, flagExitCode+strconv.Itoa(opts.ExitCode))
	}
	if opts.Marker != "" {
		args = append(args, flagMarker+opts.Marker)
	}
	if opts.IgnoreEOF {
		args = append(args, flagIgnoreEOF)
	}
	if opts.Chatty {
		args = append(args, flagChatty)
	}
	if opts.Trace {
		args = append(args, flagTrace)
	}
	return config.Command{Name: os.Args[0], Args: args}
}

// Main runs the tests, or the child when the binary was re-executed by
// Command.
func Main(m *testing.M) {
	mode, opts, ok := parseArgs(os.Args[1:])
	if !ok {
		os.Exit(m.Run())
	}

	if opts.Marker != "" {
		if err := os.WriteFile(opts.Marker, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "childtest: marker: %v\n", err)
			os.Exit(1)
		}
	}

	switch mode {
	case ModeExit:
		os.Exit(opts.ExitCode)
	case ModeEcho:
		echo(opts)
	case ModeSDK:
		serveSDK()
	default:
		fmt.Fprintf(os.Stderr, "childtest: unknown mode %q\n", mode)
		os.Exit(2)
	}

	if opts.IgnoreEOF {
		time.Sleep(time.Hour)
	}
	os.Exit(0)
}

func parseArgs(args []string) (string, Options, bool) {
	var (
		mode string
		opts Options
	)
	for _, a := range args {
		switch {
		case strings.HasPrefix(a, flagMode):
			mode = strings.TrimPrefix(a, flagMode)
		case strings.HasPrefix(a, flagExitCode):
			opts.ExitCode, _ = strconv.Atoi(strings.TrimPrefix(a, flagExitCode))
		case strings.HasPrefix(a, flagMarker):
			opts.Marker = strings.TrimPrefix(a, flagMarker)
		case a == flagIgnoreEOF:
			opts.IgnoreEOF = true
		case a == flagChatty:
			opts.Chatty = true
		case a == flagTrace:
			opts.Trace = true
		}
	}
	return mode, opts, mode != ""
}

type message struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
}

// Result is what an echo child answers to every request.
type Result struct {
	PID    int      `json:"pid"`
	Method string   `json:"method"`
	Lines  []string `json:"lines,omitempty"`
}

func echo(opts Options) {
	in := bufio.NewScanner(os.Stdin)
	in.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	out := bufio.NewWriter(os.Stdout)

	var received []string
	for in.Scan() {
		line := in.Text()
		if opts.Trace {
			fmt.Fprintf(os.Stderr, "%d %s\n", os.Getpid(), line)
		}

		var msg message
		if err := json.Unmarshal([]byte(line), &msg); err != nil || msg.Method == "" || len(msg.ID) == 0 {
			received = append(received, line)
			continue
		}

		res := Result{PID: os.Getpid(), Method: msg.Method}
		if msg.Method == ReceivedMethod {
			res.Lines = append([]string(nil), received...)
		}
		received = append(received, line)

		if opts.Chatty {
			fmt.Fprintf(out, `{"jsonrpc":"2.0","method":"notifications/message","params":{"level":"info","data":"handling %s"}}`+"\n", msg.Method)
		}
		body, _ := json.Marshal(res)
		fmt.Fprintf(out, `{"jsonrpc":"2.0","id":%s,"result":%s}`+"\n", msg.ID, body)
		_ = out.Flush()
	}
}

func serveSDK() {
	server := sdk.NewServer(&sdk.Implementation{Name: "childtest", Version: strconv.Itoa(os.Getpid())}, nil)
	if err := server.Run(context.Background(), &sdk.StdioTransport{}); err != nil {
		fmt.Fprintf(os.Stderr, "childtest: sdk server: %v\n", err)
	}
}
