package mcp

import (
	"encoding/json"

	"github.com/ggoodman/synf/internal/jsonrpc"
)

// Method is an MCP method identifier used in JSON-RPC messages.
type Method string

// MCP method names that synf recognizes. Everything else is relayed without
// being looked at.
const (
	// Initialization
	InitializeMethod              Method = "initialize"
	InitializedNotificationMethod Method = "notifications/initialized"

	// Capability list changes
	ToolsListChangedNotificationMethod     Method = "notifications/tools/list_changed"
	PromptsListChangedNotificationMethod   Method = "notifications/prompts/list_changed"
	ResourcesListChangedNotificationMethod Method = "notifications/resources/list_changed"

	// Resource subscriptions
	ResourcesSubscribeMethod   Method = "resources/subscribe"
	ResourcesUnsubscribeMethod Method = "resources/unsubscribe"
)

// ListChangedNotifications are sent to the client, in this order, after every
// server restart so that it refetches its capability lists.
var ListChangedNotifications = []Method{
	ToolsListChangedNotificationMethod,
	PromptsListChangedNotificationMethod,
	ResourcesListChangedNotificationMethod,
}

// Notification renders the parameterless notification line for m.
func (m Method) Notification() string {
	return jsonrpc.Notification(string(m))
}

// SubscribeRequest subscribes to updates for the given URI.
type SubscribeRequest struct {
	URI string `json:"uri"`
}

// UnsubscribeRequest ends a subscription for the given URI.
type UnsubscribeRequest struct {
	URI string `json:"uri"`
}

// SubscriptionChange describes a client line that subscribes to or
// unsubscribes from a resource.
type SubscriptionChange struct {
	Method Method
	URI    string
}

// ParseSubscriptionChange reports whether line is a resources/subscribe or
// resources/unsubscribe message carrying a string params.uri.
func ParseSubscriptionChange(line string) (SubscriptionChange, bool) {
	env, err := jsonrpc.Peek(line)
	if err != nil {
		return SubscriptionChange{}, false
	}
	m := Method(env.Method)
	if m != ResourcesSubscribeMethod && m != ResourcesUnsubscribeMethod {
		return SubscriptionChange{}, false
	}

	// Both request shapes carry the same field; decode through one of them.
	var params SubscribeRequest
	if len(env.Params) == 0 || json.Unmarshal(env.Params, &params) != nil || params.URI == "" {
		return SubscriptionChange{}, false
	}
	return SubscriptionChange{Method: m, URI: params.URI}, true
}
