package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"github.com/cjeanneret/potwalk/internal/debug"
)

// maxBody bounds POST /command request bodies.
const maxBody = 1 << 10

// CommandSink accepts device command bytes for the frame loop.
type CommandSink interface {
	Enqueue(b byte) bool
}

// CommandRequest is the body of POST /command.
type CommandRequest struct {
	Command string `json:"command"`
}

// ValidateCommand returns the single printable ASCII byte carried by c.
func ValidateCommand(c CommandRequest) (byte, error) {
	if len(c.Command) != 1 {
		return 0, fmt.Errorf("command must be exactly one character, got %q", c.Command)
	}
	b := c.Command[0]
	if b < 0x20 || b > 0x7e {
		return 0, fmt.Errorf("command must be printable ASCII, got %q", c.Command)
	}
	return b, nil
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster *StatusBroadcaster
	Telemetry   *Telemetry
	Commands    CommandSink
	staticFS    fs.FS
	heartbeat   time.Duration
}

// NewHandlers creates handlers. A nil commands sink makes POST /command
// answer 503, and a nil telemetry does the same for GET /status.
func NewHandlers(broadcaster *StatusBroadcaster, telemetry *Telemetry, commands CommandSink, staticFS fs.FS) *Handlers {
	return &Handlers{
		Broadcaster: broadcaster,
		Telemetry:   telemetry,
		Commands:    commands,
		staticFS:    staticFS,
		heartbeat:   30 * time.Second,
	}
}

// HandleStatus returns the latest snapshot as JSON.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if h.Telemetry == nil {
		http.Error(w, "telemetry not configured", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.Telemetry.Status())
}

// ServeIndex serves the dashboard page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleCommand handles POST /command by queueing one byte for the device.
func (h *Handlers) HandleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req CommandRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			http.Error(w, "request body too large", http.StatusBadRequest)
			return
		}
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	b, err := ValidateCommand(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if h.Commands == nil {
		http.Error(w, "device commands not configured", http.StatusServiceUnavailable)
		return
	}
	if !h.Commands.Enqueue(b) {
		http.Error(w, "command queue full", http.StatusServiceUnavailable)
		return
	}

	debug.Live("Web: queued command %q", b)
	if h.Broadcaster != nil {
		h.Broadcaster.Broadcast("info", fmt.Sprintf("command %q queued", b))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": "queued", "command": req.Command})
}

// HandleStatusStream handles GET /status/stream for SSE. A new client
// first receives the latest snapshot.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	w.Write([]byte(": connected\n\n"))
	if h.Telemetry != nil {
		if data, err := json.Marshal(h.Telemetry.Status()); err == nil {
			writeEvent(w, Message{Event: EventSnapshot, Data: string(data)})
		}
	}
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			writeEvent(w, msg)
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, m Message) {
	if m.Event != "" {
		w.Write([]byte("event: " + m.Event + "\n"))
	}
	w.Write([]byte("data: " + m.Data + "\n\n"))
}
