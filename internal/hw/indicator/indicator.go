// Package indicator drives a host-side LED that mirrors the level state:
// off while the run is in progress, on once it completes.
package indicator

import (
	"github.com/cjeanneret/potwalk/internal/debug"
	"github.com/cjeanneret/potwalk/internal/hw/gpio"
)

// Indicator is a two-state completion light.
type Indicator interface {
	Set(on bool) error
	Close() error
}

// New returns a GPIO indicator on pin, or a no-op when pin is 0.
func New(g gpio.Driver, pin int) (Indicator, error) {
	if pin == 0 {
		debug.Verbose("Indicator: disabled (pin 0)")
		return Nop{}, nil
	}
	return NewGPIO(g, pin)
}

// GPIO is an active-high LED on a single output pin:
// - HIGH: level complete
// - LOW: in progress, or released on Close
type GPIO struct {
	gpio gpio.Driver
	pin  int
	on   bool
}

// NewGPIO configures pin as an output and switches it off.
func NewGPIO(g gpio.Driver, pin int) (*GPIO, error) {
	if err := g.SetupPin(pin, gpio.Output); err != nil {
		return nil, err
	}
	if err := g.WritePin(pin, gpio.Low); err != nil {
		return nil, err
	}
	debug.Verbose("Indicator: pin %d ready (LOW)", pin)
	return &GPIO{gpio: g, pin: pin}, nil
}

// Set drives the LED. Repeating the current state writes nothing.
func (i *GPIO) Set(on bool) error {
	if on == i.on {
		return nil
	}
	debug.Verbose("Indicator: pin %d -> %v", i.pin, gpio.Level(on))
	if err := i.gpio.WritePin(i.pin, gpio.Level(on)); err != nil {
		return err
	}
	i.on = on
	return nil
}

// On reports the last state written.
func (i *GPIO) On() bool { return i.on }

// Close switches the LED off. The driver itself is closed by its owner.
func (i *GPIO) Close() error {
	return i.Set(false)
}

// Nop is an indicator with no hardware behind it.
type Nop struct{}

func (Nop) Set(bool) error { return nil }
func (Nop) Close() error { return nil }
