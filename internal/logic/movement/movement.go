// Package movement converts directional input into camera-relative,
// gravity-aware displacement for the avatar.
package movement

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

const (
	// Gravity is the downward acceleration applied while airborne (units/s²).
	Gravity = 9.81
	// GroundedBias is the vertical velocity held while grounded, keeping the
	// capsule pressed against the collision resolver's ground contact.
	GroundedBias = -0.5

	// minProjected is the horizontal length below which a view vector is
	// treated as pointing straight up or down.
	minProjected = 1e-6
)

// Config is the immutable locomotion and look setup shared by the
// orientation and movement models.
type Config struct {
	WalkSpeed        float64
	SprintSpeed      float64
	MouseSensitivity float64
	InvertPitch      bool
}

// Validate reports the first non-positive or non-finite parameter.
func (c Config) Validate() error {
	for _, p := range []struct {
		name string
		v    float64
	}{
		{"walk speed", c.WalkSpeed},
		{"sprint speed", c.SprintSpeed},
		{"mouse sensitivity", c.MouseSensitivity},
	} {
		if math.IsNaN(p.v) || math.IsInf(p.v, 0) || p.v <= 0 {
			return fmt.Errorf("%s must be > 0, got %g", p.name, p.v)
		}
	}
	return nil
}

// MotionState is carried between frames.
type MotionState struct {
	CurrentSpeed     float64 `json:"speed"`
	IsSprinting      bool    `json:"sprinting"`
	IsGrounded       bool    `json:"grounded"`
	VerticalVelocity float64 `json:"vertical_velocity"`
}

// Model integrates movement over frames. It never moves the avatar itself;
// it returns a displacement for the collision resolver to apply.
type Model struct {
	cfg   Config
	state MotionState
}

// NewModel returns a grounded model walking at cfg.WalkSpeed.
func NewModel(cfg Config) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("movement config: %w", err)
	}
	return &Model{
		cfg: cfg,
		state: MotionState{
			CurrentSpeed:     cfg.WalkSpeed,
			IsGrounded:       true,
			VerticalVelocity: GroundedBias,
		},
	}, nil
}

// Config returns the model's configuration.
func (m *Model) Config() Config { return m.cfg }

// State returns the current motion state.
func (m *Model) State() MotionState { return m.state }

// Update computes one frame of displacement.
//
// The view vectors are flattened onto the ground plane and normalized
// independently; the combined horizontal intent is capped at unit length so
// diagonals are not faster. speed scales only the horizontal part. The
// vertical part integrates gravity while airborne and resets to
// GroundedBias on the ground.
func (m *Model) Update(axisForward, axisRight float64, viewForward, viewRight mgl64.Vec3, grounded bool, dt, speed float64) mgl64.Vec3 {
	m.state.IsGrounded = grounded
	if math.IsNaN(dt) || math.IsInf(dt, 0) || dt <= 0 {
		return mgl64.Vec3{}
	}

	intent := HorizontalIntent(clampAxis(axisForward), clampAxis(axisRight), viewForward, viewRight)

	if grounded {
		m.state.VerticalVelocity = GroundedBias
	} else {
		m.state.VerticalVelocity -= Gravity * dt
	}

	d := intent.Mul(speed * dt)
	d[1] = m.state.VerticalVelocity * dt
	return d
}

// ApplySprint evaluates the sprint modifier and records the result. The
// speed it stores is what the next Update should move at.
func (m *Model) ApplySprint(sprintHeld, forwardHeld bool) (float64, bool) {
	speed, sprinting := EvaluateSprint(sprintHeld, forwardHeld, m.cfg.WalkSpeed, m.cfg.SprintSpeed)
	m.state.CurrentSpeed = speed
	m.state.IsSprinting = sprinting
	return speed, sprinting
}

// EvaluateSprint picks the locomotion speed: sprinting needs the sprint
// modifier and forward intent held together; anything else walks.
func EvaluateSprint(sprintHeld, forwardHeld bool, walkSpeed, sprintSpeed float64) (speed float64, sprinting bool) {
	if sprintHeld && forwardHeld {
		return sprintSpeed, true
	}
	return walkSpeed, false
}

// HorizontalIntent returns the camera-relative direction on the ground
// plane, with length at most 1.
func HorizontalIntent(axisForward, axisRight float64, viewForward, viewRight mgl64.Vec3) mgl64.Vec3 {
	f := flatten(viewForward)
	r := flatten(viewRight)
	intent := f.Mul(axisForward).Add(r.Mul(axisRight))
	if l := intent.Len(); l > 1 {
		intent = intent.Mul(1 / l)
	}
	return intent
}

// flatten drops the vertical component and normalizes. A vector with no
// horizontal extent yields zero instead of dividing by zero.
func flatten(v mgl64.Vec3) mgl64.Vec3 {
	h := mgl64.Vec3{v.X(), 0, v.Z()}
	l := h.Len()
	if l < minProjected || math.IsNaN(l) || math.IsInf(l, 0) {
		return mgl64.Vec3{}
	}
	return h.Mul(1 / l)
}

func clampAxis(a float64) float64 {
	if math.IsNaN(a) {
		return 0
	}
	return mgl64.Clamp(a, -1, 1)
}
