// Package completion decides when the avatar has reached the level end and
// fires the one-shot completion effects.
package completion

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/cjeanneret/potwalk/internal/debug"
)

// DefaultCommand is the byte sent to the device when the level completes.
const DefaultCommand byte = 'H'

// State is the level progress. Complete is terminal.
type State int

const (
	InProgress State = iota
	Complete
)

func (s State) String() string {
	switch s {
	case InProgress:
		return "in_progress"
	case Complete:
		return "complete"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText renders the state name in JSON telemetry.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name written by MarshalText.
func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "in_progress":
		*s = InProgress
	case "complete":
		*s = Complete
	default:
		return fmt.Errorf("unknown completion state %q", b)
	}
	return nil
}

// EffectKind identifies a completion side effect.
type EffectKind int

const (
	DisableMovement EffectKind = iota
	SendCommand
)

// Effect is a side effect requested by a transition.
type Effect struct {
	Kind    EffectKind
	Command byte // for SendCommand
}

func (e Effect) String() string {
	if e.Kind == SendCommand {
		return fmt.Sprintf("SendCommand(%q)", e.Command)
	}
	return "DisableMovement"
}

// Target is the level end point.
type Target struct {
	Position      mgl64.Vec3
	TriggerRadius float64
}

// Evaluate is the pure transition function using DefaultCommand.
func Evaluate(current State, avatar mgl64.Vec3, target Target) (State, []Effect) {
	return EvaluateWith(current, avatar, target, DefaultCommand)
}

// EvaluateWith returns the next state and the effects to apply. Once
// Complete, it never emits effects again, whatever the distance.
func EvaluateWith(current State, avatar mgl64.Vec3, target Target, command byte) (State, []Effect) {
	if current == Complete {
		return Complete, nil
	}
	if avatar.Sub(target.Position).Len() <= target.TriggerRadius {
		return Complete, []Effect{
			{Kind: DisableMovement},
			{Kind: SendCommand, Command: command},
		}
	}
	return InProgress, nil
}

// Applier carries out completion effects.
type Applier interface {
	DisableMovement()
	SendCommand(b byte) error
}

// Machine owns the completion state and applies transition effects in the
// same call that commits the transition.
type Machine struct {
	target     Target
	command    byte
	state      State
	onComplete []func()
}

// NewMachine returns a machine in InProgress for target.
func NewMachine(target Target, command byte) (*Machine, error) {
	if !(target.TriggerRadius > 0) {
		return nil, fmt.Errorf("trigger radius must be > 0, got %g", target.TriggerRadius)
	}
	return &Machine{target: target, command: command}, nil
}

// OnComplete registers fn to run once, after the completion effects.
func (m *Machine) OnComplete(fn func()) {
	m.onComplete = append(m.onComplete, fn)
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Target returns the configured target.
func (m *Machine) Target() Target { return m.target }

// Step evaluates avatar against the target and applies any effects through
// a. A failed command send is logged and does not undo the transition.
func (m *Machine) Step(avatar mgl64.Vec3, a Applier) (State, []Effect) {
	next, effects := EvaluateWith(m.state, avatar, m.target, m.command)
	for _, e := range effects {
		switch e.Kind {
		case DisableMovement:
			a.DisableMovement()
		case SendCommand:
			if err := a.SendCommand(e.Command); err != nil {
				debug.Error(fmt.Errorf("completion command: %w", err))
			}
		}
	}
	transitioned := m.state != next
	m.state = next
	if transitioned {
		debug.Info("Level complete at (%.2f, %.2f, %.2f)", avatar.X(), avatar.Y(), avatar.Z())
		for _, fn := range m.onComplete {
			fn()
		}
	}
	return next, effects
}
