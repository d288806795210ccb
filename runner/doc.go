// Package runner is the restart coordinator behind `synf dev`.
//
// A Runner owns one invocation: the client's standard streams, the session
// state that survives restarts and at most one live server. Each Trigger
// rebuilds the server, stops the old one and starts a fresh relay generation
// against the new one. Triggers are commands on a channel consumed by a single
// goroutine, so they never overlap.
//
// Example:
//
//	r := runner.New(resolved, runner.WithLogger(log))
//	go func() { _ = r.Run(ctx) }()
//	...
//	_ = r.Trigger()
package runner
