// Package stdio frames the line-delimited JSON-RPC streams that synf relays.
//
// Ingest owns the tool's own standard input for the whole invocation. It
// reads lines into an unbounded, ordered queue that outlives any single
// server process, so input that arrives while a server is being rebuilt is
// held rather than dropped. Writer serializes whole lines onto an output
// stream.
//
// Characteristics
//
//	Connection model : 1 client <-> 1 server at a time
//	Framing          : newline-delimited, passed through byte-for-byte
//	Queue            : unbounded, FIFO, with Unread for undeliverable lines
//
// Example:
//
//	in := stdio.NewIngest(stdio.WithLogger(log))
//	in.Start()
//	line, err := in.Next(ctx)
package stdio
