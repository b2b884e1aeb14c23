package web

import (
	"sync"
	"time"

	"github.com/cjeanneret/potwalk/internal/logic/frame"
)

// Status is the body of GET /status and of each snapshot event.
type Status struct {
	Session  string         `json:"session"`
	Updated  time.Time      `json:"updated"`
	Snapshot frame.Snapshot `json:"snapshot"`
}

// Telemetry keeps the latest frame snapshot for HTTP readers and forwards
// snapshots to SSE clients at most once per interval. Completion and link
// changes are always forwarded.
type Telemetry struct {
	session  string
	interval time.Duration
	b        *StatusBroadcaster
	now      func() time.Time

	mu       sync.RWMutex
	latest   Status
	lastSent time.Time
	sentOnce bool
}

// NewTelemetry returns a store for the given session id.
func NewTelemetry(session string, interval time.Duration, b *StatusBroadcaster) *Telemetry {
	return &Telemetry{
		session:  session,
		interval: interval,
		b:        b,
		now:      time.Now,
		latest:   Status{Session: session},
	}
}

// Publish implements frame.Observer. It is called on the frame goroutine
// and never blocks on clients.
func (t *Telemetry) Publish(s frame.Snapshot) {
	now := t.now()

	t.mu.Lock()
	prev := t.latest.Snapshot
	t.latest = Status{Session: t.session, Updated: now, Snapshot: s}
	changed := prev.Completion != s.Completion || prev.LinkOpen != s.LinkOpen
	due := !t.sentOnce || changed || now.Sub(t.lastSent) >= t.interval
	if due {
		t.lastSent = now
		t.sentOnce = true
	}
	st := t.latest
	t.mu.Unlock()

	if due && t.b != nil {
		t.b.Send(EventSnapshot, st)
	}
}

// Status returns the latest state.
func (t *Telemetry) Status() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.latest
}
