package jsonrpc

import (
	"encoding/json"
	"testing"
)

func TestPeekClassifiesMessages(t *testing.T) {
	cases := []struct {
		line string
		want string
	}{
		{`{"jsonrpc":"2.0","id":1,"method":"initialize"}`, "request"},
		{`{"jsonrpc":"2.0","method":"notifications/initialized"}`, "notification"},
		{`{"jsonrpc":"2.0","id":1,"result":{}}`, "response"},
		{`{"jsonrpc":"2.0","id":"a","error":{"code":-32601,"message":"nope"}}`, "response"},
	}
	for _, tc := range cases {
		env, err := Peek(tc.line)
		if err != nil {
			t.Fatalf("peek %s: %v", tc.line, err)
		}
		if got := env.Type(); got != tc.want {
			t.Errorf("%s: want %s, got %s", tc.line, tc.want, got)
		}
	}

	if _, err := Peek("not json"); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestIsResponseToMatchesIDType(t *testing.T) {
	num, _ := Peek(`{"jsonrpc":"2.0","id":7,"result":{}}`)
	str, _ := Peek(`{"jsonrpc":"2.0","id":"7","result":{}}`)
	req, _ := Peek(`{"jsonrpc":"2.0","id":7,"method":"ping"}`)

	if !num.IsResponseTo(NewRequestID(7)) {
		t.Error("numeric response should match numeric id")
	}
	if str.IsResponseTo(NewRequestID(7)) {
		t.Error("string id must not match numeric id")
	}
	if !str.IsResponseTo(NewRequestID("7")) {
		t.Error("string response should match string id")
	}
	if req.IsResponseTo(NewRequestID(7)) {
		t.Error("a request is not a response")
	}
	if num.IsResponseTo(nil) {
		t.Error("nothing matches a nil id")
	}
}

func TestNotificationLine(t *testing.T) {
	got := Notification("notifications/tools/list_changed")
	want := `{"method":"notifications/tools/list_changed","jsonrpc":"2.0"}`
	if got != want {
		t.Fatalf("want %s, got %s", want, got)
	}
}

func TestRequestIDRoundTrip(t *testing.T) {
	for _, raw := range []string{`1`, `"abc"`, `null`, `2.5`} {
		var id RequestID
		if err := json.Unmarshal([]byte(raw), &id); err != nil {
			t.Fatalf("unmarshal %s: %v", raw, err)
		}
		b, err := json.Marshal(&id)
		if err != nil {
			t.Fatalf("marshal %s: %v", raw, err)
		}
		if string(b) != raw {
			t.Errorf("round trip: want %s, got %s", raw, b)
		}
	}

	var id RequestID
	if err := json.Unmarshal([]byte(`{}`), &id); err == nil {
		t.Fatal("expected error for object id")
	}
}
