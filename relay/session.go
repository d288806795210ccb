package relay

import (
	"sort"
	"sync"

	"github.com/ggoodman/synf/mcp"
)

// Session is the client-facing protocol state that outlives individual
// generations: the client's initialize request and, when enabled, its
// resource subscriptions.
type Session struct {
	resend bool

	mu        sync.Mutex
	initLine  string
	captured  bool
	delivered bool
	subs      map[string]string
}

// NewSession creates an empty session. When resend is true, subscribe and
// unsubscribe requests from the client are tracked for replay.
func NewSession(resend bool) *Session {
	return &Session{resend: resend, subs: make(map[string]string)}
}

// InitializeLine returns the captured initialize request, if any.
func (s *Session) InitializeLine() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initLine, s.captured
}

// Initialized reports whether the client has received its initialize
// response.
func (s *Session) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delivered
}

func (s *Session) handshakeState() (line string, captured, delivered bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initLine, s.captured, s.delivered
}

// capture records the initialize request. Only the first call has any effect.
func (s *Session) capture(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.captured {
		return
	}
	s.initLine = line
	s.captured = true
}

func (s *Session) markDelivered() {
	s.mu.Lock()
	s.delivered = true
	s.mu.Unlock()
}

// Observe updates the subscription table from a client line. It is a no-op
// unless resend is enabled.
func (s *Session) Observe(line string) {
	if !s.resend {
		return
	}
	change, ok := mcp.ParseSubscriptionChange(line)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch change.Method {
	case mcp.ResourcesSubscribeMethod:
		s.subs[change.URI] = line
	case mcp.ResourcesUnsubscribeMethod:
		delete(s.subs, change.URI)
	}
}

// Subscriptions returns the subscribe requests to replay, ordered by URI.
func (s *Session) Subscriptions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	uris := make([]string, 0, len(s.subs))
	for uri := range s.subs {
		uris = append(uris, uri)
	}
	sort.Strings(uris)

	lines := make([]string, len(uris))
	for i, uri := range uris {
		lines[i] = s.subs[uri]
	}
	return lines
}

// Resend reports whether subscriptions are replayed after a restart.
func (s *Session) Resend() bool { return s.resend }
