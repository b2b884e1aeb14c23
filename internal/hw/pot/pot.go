// Package pot decodes potentiometer frames sent by the device and holds
// the latest reading for readers outside the frame loop.
package pot

import (
	"strconv"
	"strings"
	"sync/atomic"
)

// Prefix tags a potentiometer frame on the wire, e.g. "POT:512".
const Prefix = "POT:"

// FullScale is the 10-bit ADC maximum the device reports.
const FullScale = 1023.0

// Reading is one decoded potentiometer sample.
type Reading struct {
	Raw        int     `json:"raw"`
	Normalized float64 `json:"normalized"`
}

// Decode parses a single line. Lines without the exact prefix or with a
// non-numeric payload are not errors; they yield ok=false.
// The raw value is kept as sent, without range clamping.
func Decode(line string) (Reading, bool) {
	payload, found := strings.CutPrefix(line, Prefix)
	if !found {
		return Reading{}, false
	}
	raw, err := strconv.Atoi(payload)
	if err != nil {
		return Reading{}, false
	}
	return Reading{Raw: raw, Normalized: float64(raw) / FullScale}, true
}

// Cell holds the latest reading. One writer (the frame loop) stores,
// any number of readers load without blocking it.
// A stored reading is never invalidated; it goes stale until overwritten.
type Cell struct {
	v atomic.Pointer[Reading]
}

// Store publishes r as the current reading.
func (c *Cell) Store(r Reading) {
	c.v.Store(&r)
}

// Load returns the current reading, or ok=false before the first one.
func (c *Cell) Load() (Reading, bool) {
	p := c.v.Load()
	if p == nil {
		return Reading{}, false
	}
	return *p, true
}
