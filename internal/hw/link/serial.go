package link

import (
	"go.bug.st/serial"

	"github.com/cjeanneret/potwalk/internal/debug"
)

// SerialOpener opens real serial devices (8N1) with go.bug.st/serial.
type SerialOpener struct{}

func (SerialOpener) Open(name string, baud int) (Port, error) {
	debug.Verbose("Opening serial device %s", name)
	p, err := serial.Open(name, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ListPorts returns the serial devices present on this host.
func ListPorts() ([]string, error) {
	return serial.GetPortsList()
}

// NewOpener picks the mock device or real serial ports.
func NewOpener(mock bool) Opener {
	if mock {
		debug.Info("Using MOCK serial device (development mode)")
		return MockOpener{Port: NewMockPort()}
	}
	return SerialOpener{}
}
