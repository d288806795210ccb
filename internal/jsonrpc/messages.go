package jsonrpc

import (
	"encoding/json"
	"fmt"
)

// ProtocolVersion is the supported JSON-RPC protocol version.
const ProtocolVersion = "2.0"

// Envelope is the subset of a JSON-RPC message that the relay looks at. It is
// decoded leniently: lines are forwarded byte-for-byte regardless of whether
// they are valid JSON-RPC, so nothing here rejects a message for its shape.
type Envelope struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	Method         string          `json:"method,omitempty"`
	Params         json.RawMessage `json:"params,omitempty"`
	ID             *RequestID      `json:"id,omitempty"`
}

// Peek decodes the envelope of a single line.
func Peek(line string) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal([]byte(line), &env); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return &env, nil
}

// Type returns "request" if the message is a request, "response" if it's a
// response, or "notification" if it's a notification.
func (e *Envelope) Type() string {
	if e.Method != "" {
		if e.ID.IsNil() {
			return "notification"
		}
		return "request"
	}
	return "response"
}

// IsResponseTo reports whether e is a response carrying the given request id.
func (e *Envelope) IsResponseTo(id *RequestID) bool {
	return e.Type() == "response" && e.ID.Equal(id)
}

// notification keeps method ahead of jsonrpc so synthetic notifications are
// byte-identical to the ones MCP clients and servers are known to accept.
type notification struct {
	Method         string `json:"method"`
	JSONRPCVersion string `json:"jsonrpc"`
}

// Notification renders a parameterless notification line (without the
// trailing newline).
func Notification(method string) string {
	b, err := json.Marshal(notification{Method: method, JSONRPCVersion: ProtocolVersion})
	if err != nil {
		// Two plain strings always marshal.
		panic(err)
	}
	return string(b)
}
