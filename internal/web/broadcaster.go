package web

import (
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// SSE event names.
const (
	EventLog      = "log"
	EventSnapshot = "snapshot"
)

// Message is one SSE frame: an event name and its JSON data line.
type Message struct {
	Event string
	Data  string
}

// LogEvent is the payload of a log message.
type LogEvent struct {
	Time  string `json:"t"`
	Level string `json:"l,omitempty"`
	Msg   string `json:"msg"`
}

// StatusBroadcaster fans messages out to SSE clients.
type StatusBroadcaster struct {
	mu      sync.RWMutex
	clients map[chan Message]struct{}
}

// NewStatusBroadcaster creates a new broadcaster.
func NewStatusBroadcaster() *StatusBroadcaster {
	return &StatusBroadcaster{
		clients: make(map[chan Message]struct{}),
	}
}

// Subscribe returns a channel of broadcast messages and a cleanup function
// that must be called when the client goes away.
func (b *StatusBroadcaster) Subscribe() (<-chan Message, func()) {
	ch := make(chan Message, 64)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()

	unsub := func() {
		b.mu.Lock()
		delete(b.clients, ch)
		b.mu.Unlock()
		close(ch)
	}
	return ch, unsub
}

// Clients returns the number of subscribers.
func (b *StatusBroadcaster) Clients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Send marshals v and delivers it as event to every client. Slow clients
// miss messages rather than block the sender.
func (b *StatusBroadcaster) Send(event string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	m := Message{Event: event, Data: string(data)}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.clients {
		select {
		case ch <- m:
		default:
		}
	}
}

// Broadcast sends a log line at level.
func (b *StatusBroadcaster) Broadcast(level, msg string) {
	b.Send(EventLog, LogEvent{
		Time:  time.Now().Format(time.RFC3339),
		Level: level,
		Msg:   msg,
	})
}

// BroadcastWriter returns an io.Writer that broadcasts each write as a log
// line, for use with debug.SetOutput.
func BroadcastWriter(b *StatusBroadcaster) *broadcastWriter {
	return &broadcastWriter{b: b}
}

type broadcastWriter struct {
	b *StatusBroadcaster
}

func (w *broadcastWriter) Write(p []byte) (n int, err error) {
	msg := strings.TrimSpace(string(p))
	if msg != "" {
		w.b.Broadcast("info", msg)
	}
	return len(p), nil
}
