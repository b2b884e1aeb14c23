// Package autopilot provides a scripted input source that walks the avatar
// to the target without an input device.
package autopilot

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/cjeanneret/potwalk/internal/logic/frame"
)

const (
	// walkCone is the heading error (degrees) under which the pilot walks
	// forward instead of turning in place.
	walkCone = 45.0
	// arrived is the horizontal distance at which the pilot stops steering.
	arrived = 1e-3
	// fallbackDT is used before the first frame has measured one.
	fallbackDT = 1.0 / 60
)

// Params tunes a Pilot.
type Params struct {
	Target         mgl64.Vec3
	Sensitivity    float64 // must match the orientation model
	InvertPitch    bool    // must match the orientation model
	TurnRateDeg    float64 // max heading change per second
	SprintDistance float64 // sprint while farther than this
}

// Pilot turns toward the target and walks there.
type Pilot struct {
	p Params
}

// New returns a pilot for p.
func New(p Params) *Pilot {
	return &Pilot{p: p}
}

// Sample implements frame.InputSource. Pointer deltas are sized from the
// last frame's dt so that one frame turns by at most TurnRateDeg*dt.
func (a *Pilot) Sample(last frame.Snapshot) frame.Input {
	dt := last.DT
	if !(dt > 0) {
		dt = fallbackDT
	}
	scale := a.p.Sensitivity * dt
	if !(scale > 0) {
		return frame.Input{}
	}

	var in frame.Input

	if pitch := last.Orientation.PitchDegrees; pitch != 0 {
		in.PointerDY = pitch / scale
		if a.p.InvertPitch {
			in.PointerDY = -in.PointerDY
		}
	}

	toTarget := a.p.Target.Sub(last.Position)
	if math.Hypot(toTarget.X(), toTarget.Z()) < arrived {
		return in
	}

	heading := HeadingError(last.Orientation.YawDegrees, toTarget)
	turn := heading
	if limit := a.p.TurnRateDeg * dt; a.p.TurnRateDeg > 0 {
		turn = mgl64.Clamp(heading, -limit, limit)
	}
	in.PointerDX = turn / scale

	if math.Abs(heading) < walkCone {
		in.AxisForward = 1
		in.ForwardHeld = true
		in.SprintHeld = last.Distance > a.p.SprintDistance
	}
	return in
}

// HeadingError returns the signed yaw change, in (-180, 180], that faces
// the horizontal direction of toTarget. Positive turns right.
func HeadingError(yawDeg float64, toTarget mgl64.Vec3) float64 {
	want := mgl64.RadToDeg(math.Atan2(toTarget.X(), toTarget.Z()))
	return wrap(want - yawDeg)
}

func wrap(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg > 180 {
		deg -= 360
	} else if deg <= -180 {
		deg += 360
	}
	return deg
}
