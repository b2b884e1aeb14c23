// Package frame runs the per-frame pipeline: look, move, sprint, serial
// poll and completion, in that order, once per tick.
package frame

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/cjeanneret/potwalk/internal/debug"
	"github.com/cjeanneret/potwalk/internal/hw/pot"
	"github.com/cjeanneret/potwalk/internal/logic/completion"
	"github.com/cjeanneret/potwalk/internal/logic/movement"
	"github.com/cjeanneret/potwalk/internal/logic/orientation"
)

// commandQueue bounds custom commands waiting for the frame thread.
const commandQueue = 16

// ViewSource provides the viewing frame used to make movement camera-relative.
type ViewSource interface {
	Basis() (forward, right mgl64.Vec3)
}

// Resolver applies displacement against the world.
type Resolver interface {
	Resolve(pos, displacement mgl64.Vec3) (mgl64.Vec3, bool)
	Grounded(pos mgl64.Vec3) bool
}

// Link is the device connection as seen by the frame loop.
type Link interface {
	TryReadLine(timeout time.Duration) (string, bool)
	WriteByte(b byte) error
	IsOpen() bool
}

// Observer receives a snapshot after every frame.
type Observer interface {
	Publish(s Snapshot)
}

// Input is one frame of externally sampled controls.
type Input struct {
	PointerDX   float64
	PointerDY   float64
	AxisForward float64 // [-1, 1]
	AxisRight   float64 // [-1, 1]
	SprintHeld  bool
	ForwardHeld bool
}

// Snapshot is the observable state after a frame.
type Snapshot struct {
	Frame           uint64               `json:"frame"`
	DT              float64              `json:"dt"`
	Orientation     orientation.State    `json:"orientation"`
	Motion          movement.MotionState `json:"motion"`
	Position        mgl64.Vec3           `json:"position"`
	Distance        float64              `json:"distance"`
	Completion      completion.State     `json:"completion"`
	MovementEnabled bool                 `json:"movement_enabled"`
	Pot             *pot.Reading         `json:"pot,omitempty"`
	LinkOpen        bool                 `json:"link_open"`
}

// Deps wires a Loop. Every field except Observer is required.
type Deps struct {
	View        ViewSource
	Orientation *orientation.Model
	Movement    *movement.Model
	Resolver    Resolver
	Completion  *completion.Machine
	Link        Link
	Cell        *pot.Cell
	Start       mgl64.Vec3
	ReadTimeout time.Duration
	Observer    Observer
}

func (d Deps) validate() error {
	var errs []error
	if d.View == nil {
		errs = append(errs, errors.New("no viewing frame source"))
	}
	if d.Orientation == nil {
		errs = append(errs, errors.New("no orientation model"))
	}
	if d.Movement == nil {
		errs = append(errs, errors.New("no movement model"))
	}
	if d.Resolver == nil {
		errs = append(errs, errors.New("no collision resolver"))
	}
	if d.Completion == nil {
		errs = append(errs, errors.New("no completion machine"))
	}
	if d.Link == nil {
		errs = append(errs, errors.New("no device link"))
	}
	if d.Cell == nil {
		errs = append(errs, errors.New("no reading cell"))
	}
	if d.ReadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("read timeout must be > 0, got %v", d.ReadTimeout))
	}
	return errors.Join(errs...)
}

// Loop owns the avatar pipeline. Step must be called from a single goroutine;
// Enqueue is safe from any goroutine.
type Loop struct {
	deps     Deps
	frame    uint64
	position mgl64.Vec3
	grounded bool
	enabled  bool
	commands chan byte
}

// NewLoop checks the wiring and places the avatar at deps.Start.
func NewLoop(deps Deps) (*Loop, error) {
	if err := deps.validate(); err != nil {
		return nil, fmt.Errorf("frame loop: %w", err)
	}
	return &Loop{
		deps:     deps,
		position: deps.Start,
		grounded: deps.Resolver.Grounded(deps.Start),
		enabled:  true,
		commands: make(chan byte, commandQueue),
	}, nil
}

// Enqueue schedules a custom command byte for the next frame.
// It reports false when the queue is full.
func (l *Loop) Enqueue(b byte) bool {
	select {
	case l.commands <- b:
		return true
	default:
		return false
	}
}

// MovementEnabled reports whether input still drives the avatar.
func (l *Loop) MovementEnabled() bool { return l.enabled }

// Position returns the avatar's feet position.
func (l *Loop) Position() mgl64.Vec3 { return l.position }

// Step runs one frame with the given delta-time in seconds.
func (l *Loop) Step(dt float64, in Input) Snapshot {
	l.frame++

	if l.enabled {
		l.deps.Orientation.Update(in.PointerDX, in.PointerDY, dt)

		forward, right := l.deps.View.Basis()
		speed := l.deps.Movement.State().CurrentSpeed
		d := l.deps.Movement.Update(in.AxisForward, in.AxisRight, forward, right, l.grounded, dt, speed)
		l.position, l.grounded = l.deps.Resolver.Resolve(l.position, d)

		l.deps.Movement.ApplySprint(in.SprintHeld, in.ForwardHeld)
	}

	l.pollSerial()
	l.drainCommands()

	l.deps.Completion.Step(l.position, effects{l})

	s := l.Snapshot()
	s.DT = dt
	if l.deps.Observer != nil {
		l.deps.Observer.Publish(s)
	}
	return s
}

// Snapshot returns the current observable state.
func (l *Loop) Snapshot() Snapshot {
	s := Snapshot{
		Frame:           l.frame,
		Orientation:     l.deps.Orientation.State(),
		Motion:          l.deps.Movement.State(),
		Position:        l.position,
		Distance:        l.position.Sub(l.deps.Completion.Target().Position).Len(),
		Completion:      l.deps.Completion.State(),
		MovementEnabled: l.enabled,
		LinkOpen:        l.deps.Link.IsOpen(),
	}
	if r, ok := l.deps.Cell.Load(); ok {
		s.Pot = &r
	}
	return s
}

func (l *Loop) pollSerial() {
	line, ok := l.deps.Link.TryReadLine(l.deps.ReadTimeout)
	if !ok {
		return
	}
	r, ok := pot.Decode(line)
	if !ok {
		return
	}
	l.deps.Cell.Store(r)
	debug.Reading(r.Raw, r.Normalized)
}

func (l *Loop) drainCommands() {
	for {
		select {
		case b := <-l.commands:
			if err := l.send(b); err != nil {
				debug.Error(fmt.Errorf("custom command %q: %w", b, err))
			}
		default:
			return
		}
	}
}

func (l *Loop) send(b byte) error {
	if err := l.deps.Link.WriteByte(b); err != nil {
		return err
	}
	debug.Command(b)
	return nil
}

// effects applies completion effects to the loop.
type effects struct{ l *Loop }

func (e effects) DisableMovement() {
	e.l.enabled = false
	debug.Info("Movement disabled")
}

func (e effects) SendCommand(b byte) error {
	return e.l.send(b)
}
