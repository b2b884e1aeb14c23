package link

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cjeanneret/potwalk/internal/debug"
)

// maxPending bounds buffered bytes that have not formed a complete line yet.
// Anything beyond it is treated as a malformed frame and dropped.
const maxPending = 256

var (
	// ErrOpenFailed matches every error returned by Link.Open.
	ErrOpenFailed = errors.New("open failed")
	// ErrWriteFailed matches every error returned by Link.WriteByte.
	ErrWriteFailed = errors.New("write failed")

	errNotOpen    = errors.New("link is not open")
	errLinkUsed   = errors.New("link already used; reconnect is not supported")
	errShortWrite = io.ErrShortWrite
)

// Error describes a failed link operation.
type Error struct {
	Kind error // ErrOpenFailed or ErrWriteFailed
	Port string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("serial %s: %v: %v", e.Port, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// State is the lifecycle of a Link.
type State int

const (
	StateIdle   State = iota // never opened
	StateOpen                // connected
	StateClosed              // closed or failed to open; terminal
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Port is the byte stream a Link drives. go.bug.st/serial ports satisfy it.
// Read must return (0, nil) when the read timeout expires without data.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	SetReadTimeout(t time.Duration) error
	Close() error
}

// Opener creates a Port for a device name and baud rate.
type Opener interface {
	Open(name string, baud int) (Port, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(name string, baud int) (Port, error)

func (f OpenerFunc) Open(name string, baud int) (Port, error) { return f(name, baud) }

// Link owns a single connection to the device and exposes line reads and
// byte writes that never disturb the caller: reads report "nothing" on any
// failure, writes return typed errors.
//
// A Link is used from one goroutine (the frame loop).
type Link struct {
	opener  Opener
	port    Port
	name    string
	state   State
	timeout time.Duration // read timeout currently applied to port
	pending []byte
	discard bool // dropping the tail of an oversized line
	buf     [64]byte
}

// New returns an idle link that will use o to open its port.
func New(o Opener) *Link {
	return &Link{opener: o}
}

// State returns the current lifecycle state.
func (l *Link) State() State { return l.state }

// IsOpen reports whether reads and writes can reach the device.
func (l *Link) IsOpen() bool { return l.state == StateOpen }

// Name returns the port name given to Open.
func (l *Link) Name() string { return l.name }

// Open connects to the device. A link can be opened once; after a failure
// it stays closed for the rest of the run.
func (l *Link) Open(name string, baud int) error {
	if l.state != StateIdle {
		return &Error{Kind: ErrOpenFailed, Port: name, Err: errLinkUsed}
	}
	l.name = name

	p, err := l.opener.Open(name, baud)
	if err != nil {
		l.state = StateClosed
		debug.Link(name, "open failed")
		return &Error{Kind: ErrOpenFailed, Port: name, Err: err}
	}
	if p == nil {
		l.state = StateClosed
		return &Error{Kind: ErrOpenFailed, Port: name, Err: errors.New("opener returned no port")}
	}

	l.port = p
	l.state = StateOpen
	l.timeout = -1
	debug.Link(name, "open")
	debug.Verbose("serial %s: %d baud, 8N1", name, baud)
	return nil
}

// TryReadLine returns one complete line (without "\n" or a trailing "\r").
// It polls the port at most once, for at most timeout, and reports ok=false
// on timeout, on a closed link and on any I/O error.
// Partial lines are kept for the next call.
func (l *Link) TryReadLine(timeout time.Duration) (line string, ok bool) {
	if l.state != StateOpen {
		return "", false
	}
	if line, ok := l.nextLine(); ok {
		return line, true
	}

	if timeout != l.timeout {
		if err := l.port.SetReadTimeout(timeout); err != nil {
			debug.Serial("set timeout", err)
			return "", false
		}
		l.timeout = timeout
	}

	n, err := l.port.Read(l.buf[:])
	if err != nil {
		debug.Serial("read", err)
		return "", false
	}
	if n == 0 {
		return "", false
	}
	l.feed(l.buf[:n])
	return l.nextLine()
}

// feed appends freshly read bytes to pending. While a malformed line is
// being discarded, bytes up to and including its '\n' are dropped.
func (l *Link) feed(b []byte) {
	if l.discard {
		i := bytes.IndexByte(b, '\n')
		if i < 0 {
			return
		}
		l.discard = false
		b = b[i+1:]
	}
	l.pending = append(l.pending, b...)
	l.trim()
}

// nextLine cuts the first complete line out of pending.
func (l *Link) nextLine() (string, bool) {
	i := bytes.IndexByte(l.pending, '\n')
	if i < 0 {
		return "", false
	}
	line := string(bytes.TrimSuffix(l.pending[:i], []byte{'\r'}))
	l.pending = l.pending[:copy(l.pending, l.pending[i+1:])]
	debug.Serial("line", line)
	return line, true
}

// trim drops the oldest buffered lines until pending fits in maxPending.
// An oversized partial line is dropped whole, including bytes not yet read.
func (l *Link) trim() {
	for len(l.pending) > maxPending {
		i := bytes.IndexByte(l.pending, '\n')
		if i < 0 {
			debug.Serial("discard", len(l.pending))
			l.pending = l.pending[:0]
			l.discard = true
			return
		}
		l.pending = l.pending[:copy(l.pending, l.pending[i+1:])]
	}
}

// WriteByte sends a single unterminated byte to the device.
func (l *Link) WriteByte(b byte) error {
	if l.state != StateOpen {
		return &Error{Kind: ErrWriteFailed, Port: l.name, Err: errNotOpen}
	}
	n, err := l.port.Write([]byte{b})
	if err != nil {
		return &Error{Kind: ErrWriteFailed, Port: l.name, Err: err}
	}
	if n != 1 {
		return &Error{Kind: ErrWriteFailed, Port: l.name, Err: errShortWrite}
	}
	debug.Serial("write", string(rune(b)))
	return nil
}

// Close releases the port. It is safe to call more than once and on a link
// that was never opened.
func (l *Link) Close() error {
	switch l.state {
	case StateClosed:
		return nil
	case StateIdle:
		l.state = StateClosed
		return nil
	}

	err := l.port.Close()
	l.port = nil
	l.pending = nil
	l.discard = false
	l.state = StateClosed
	debug.Link(l.name, "closed")
	if err != nil {
		return fmt.Errorf("close serial port %s: %w", l.name, err)
	}
	return nil
}
