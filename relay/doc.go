// Package relay connects the client to one server lifetime at a time.
//
// A Generation walks WaitProcess -> Handshake -> Relay -> Ended. The first
// generation performs the real initialize round trip; every later generation
// replays the captured initialize request to its fresh server, swallows the
// answer, completes the server's handshake with notifications/initialized and
// tells the client to refetch tools, prompts and resources. The client never
// sees a second initialize response.
//
// Session holds what must survive a restart: the initialize request and,
// when enabled, the client's resource subscriptions.
//
// Generations hand the client output to each other like a baton: a
// generation's first write waits for the previous generation's Done channel,
// so lines from two servers are never interleaved.
package relay
