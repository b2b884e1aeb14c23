package link

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/cjeanneret/potwalk/internal/debug"
)

// MockPort simulates the potentiometer device: it emits a "POT:<n>" line
// every Interval following a slow sine sweep over [0, 1023], and records
// every byte written to it.
// Used for development on a PC or testing.
type MockPort struct {
	Interval time.Duration
	Period   time.Duration
	Now      func() time.Time

	mu      sync.Mutex
	start   time.Time
	emitted int
	out     []byte
	written []byte
	closed  bool
}

const (
	defaultMockInterval = 50 * time.Millisecond
	defaultMockPeriod   = 8 * time.Second
)

// NewMockPort returns a mock device emitting 20 readings per second.
func NewMockPort() *MockPort {
	return &MockPort{
		Interval: defaultMockInterval,
		Period:   defaultMockPeriod,
		Now:      time.Now,
	}
}

// applyDefaults fills unset timing fields. Caller holds mu.
func (m *MockPort) applyDefaults() {
	if m.Interval <= 0 {
		m.Interval = defaultMockInterval
	}
	if m.Period <= 0 {
		m.Period = defaultMockPeriod
	}
	if m.Now == nil {
		m.Now = time.Now
	}
}

func (m *MockPort) Read(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, fmt.Errorf("mock port closed")
	}
	m.applyDefaults()

	now := m.Now()
	if m.start.IsZero() {
		m.start = now
	}
	elapsed := now.Sub(m.start)
	due := int(elapsed/m.Interval) + 1
	for ; m.emitted < due; m.emitted++ {
		t := time.Duration(m.emitted) * m.Interval
		phase := 2 * math.Pi * float64(t) / float64(m.Period)
		value := int(math.Round(511.5 + 511.5*math.Sin(phase)))
		m.out = append(m.out, fmt.Sprintf("POT:%d\r\n", value)...)
	}

	n := copy(p, m.out)
	m.out = m.out[:copy(m.out, m.out[n:])]
	return n, nil
}

func (m *MockPort) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, fmt.Errorf("mock port closed")
	}
	m.written = append(m.written, p...)
	debug.Serial("mock write", string(p))
	return len(p), nil
}

func (m *MockPort) SetReadTimeout(time.Duration) error { return nil }

func (m *MockPort) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	debug.Trace("Serial Close (mock)")
	return nil
}

// Written returns a copy of every byte the host sent.
func (m *MockPort) Written() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.written...)
}

// MockOpener hands out its Port regardless of the requested name.
type MockOpener struct {
	Port *MockPort
}

func (o MockOpener) Open(name string, baud int) (Port, error) {
	debug.Verbose("Mock serial %s at %d baud", name, baud)
	return o.Port, nil
}
