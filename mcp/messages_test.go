package mcp

import "testing"

func TestParseSubscriptionChange(t *testing.T) {
	cases := []struct {
		name string
		line string
		want SubscriptionChange
		ok   bool
	}{
		{
			name: "subscribe",
			line: `{"jsonrpc":"2.0","id":1,"method":"resources/subscribe","params":{"uri":"file:///a"}}`,
			want: SubscriptionChange{Method: ResourcesSubscribeMethod, URI: "file:///a"},
			ok:   true,
		},
		{
			name: "unsubscribe",
			line: `{"jsonrpc":"2.0","id":2,"method":"resources/unsubscribe","params":{"uri":"file:///a"}}`,
			want: SubscriptionChange{Method: ResourcesUnsubscribeMethod, URI: "file:///a"},
			ok:   true,
		},
		{name: "other method", line: `{"jsonrpc":"2.0","id":3,"method":"resources/read","params":{"uri":"file:///a"}}`},
		{name: "missing params", line: `{"jsonrpc":"2.0","id":4,"method":"resources/subscribe"}`},
		{name: "non-string uri", line: `{"jsonrpc":"2.0","id":5,"method":"resources/subscribe","params":{"uri":5}}`},
		{name: "invalid json", line: `resources/subscribe`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ParseSubscriptionChange(tc.line)
			if ok != tc.ok || got != tc.want {
				t.Fatalf("want %+v (%v), got %+v (%v)", tc.want, tc.ok, got, ok)
			}
		})
	}
}

func TestListChangedNotificationsOrder(t *testing.T) {
	want := []string{
		`{"method":"notifications/tools/list_changed","jsonrpc":"2.0"}`,
		`{"method":"notifications/prompts/list_changed","jsonrpc":"2.0"}`,
		`{"method":"notifications/resources/list_changed","jsonrpc":"2.0"}`,
	}
	if len(ListChangedNotifications) != len(want) {
		t.Fatalf("want %d notifications, got %d", len(want), len(ListChangedNotifications))
	}
	for i, m := range ListChangedNotifications {
		if got := m.Notification(); got != want[i] {
			t.Errorf("notification %d: want %s, got %s", i, want[i], got)
		}
	}
}
