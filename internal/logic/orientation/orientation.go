package orientation

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// PitchLimit is the hard saturation bound for looking up or down, in degrees.
const PitchLimit = 90.0

// State is the avatar facing (yaw) and view tilt (pitch), in degrees.
// Positive pitch looks down.
type State struct {
	YawDegrees   float64 `json:"yaw_deg"`
	PitchDegrees float64 `json:"pitch_deg"`
}

// Model turns pointer deltas into orientation. Yaw rotates the avatar and is
// unbounded; pitch only tilts the view and is clamped to ±PitchLimit.
type Model struct {
	sensitivity float64
	invertPitch bool
	state       State
}

// NewModel creates a model facing initialYaw with a level view.
func NewModel(sensitivity float64, invertPitch bool, initialYaw float64) *Model {
	return &Model{
		sensitivity: sensitivity,
		invertPitch: invertPitch,
		state:       State{YawDegrees: initialYaw},
	}
}

// Update applies one frame of pointer movement. Deltas are scaled by
// sensitivity*dt so the turn rate does not depend on frame rate.
// Non-finite values and negative dt contribute nothing.
func (m *Model) Update(pointerDeltaX, pointerDeltaY, dt float64) State {
	if !finite(dt) || dt <= 0 {
		return m.state
	}
	scale := m.sensitivity * dt
	dx := pointerDeltaX * scale
	dy := pointerDeltaY * scale

	if finite(dy) {
		if m.invertPitch {
			m.state.PitchDegrees += dy
		} else {
			m.state.PitchDegrees -= dy
		}
		m.state.PitchDegrees = mgl64.Clamp(m.state.PitchDegrees, -PitchLimit, PitchLimit)
	}
	if finite(dx) {
		m.state.YawDegrees += dx
	}
	return m.state
}

// State returns the current orientation.
func (m *Model) State() State {
	return m.state
}

// Basis returns the viewing frame's forward and right vectors in world
// space (Y up, Z forward, X right).
func (m *Model) Basis() (forward, right mgl64.Vec3) {
	return Basis(m.state)
}

// Basis computes the viewing frame for s: yaw about the world up axis,
// then pitch about the resulting right axis.
func Basis(s State) (forward, right mgl64.Vec3) {
	yaw := mgl64.DegToRad(s.YawDegrees)
	pitch := mgl64.DegToRad(s.PitchDegrees)
	sy, cy := math.Sincos(yaw)
	sp, cp := math.Sincos(pitch)

	forward = mgl64.Vec3{sy * cp, -sp, cy * cp}
	right = mgl64.Vec3{cy, 0, -sy}
	return forward, right
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
