// Package mcp names the handful of Model Context Protocol messages that synf
// needs to recognize while relaying a session between a client and a
// restarting server.
//
// synf treats MCP payloads as opaque lines. The only protocol knowledge it
// carries is:
//
//   - the initialize / notifications/initialized handshake, which is performed
//     once with the client and replayed silently to every restarted server;
//   - the three list_changed notifications that stand in for a reconnect;
//   - resources/subscribe and resources/unsubscribe, which are tracked so that
//     subscriptions can be replayed to a restarted server.
//
// # Method Names
//
// JSON-RPC method and notification names are enumerated as Method constants
// (e.g. ResourcesSubscribeMethod). Method.Notification renders the exact line
// synf writes for a parameterless notification.
package mcp
