package frame

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cjeanneret/potwalk/internal/hw/link"
	"github.com/cjeanneret/potwalk/internal/hw/pot"
	"github.com/cjeanneret/potwalk/internal/logic/completion"
	"github.com/cjeanneret/potwalk/internal/logic/movement"
	"github.com/cjeanneret/potwalk/internal/logic/orientation"
	"github.com/cjeanneret/potwalk/internal/logic/physics"
)

// fakeLink serves queued lines and records writes.
type fakeLink struct {
	lines    []string
	written  []byte
	writeErr error
	open     bool
	polls    int
}

func (f *fakeLink) TryReadLine(time.Duration) (string, bool) {
	f.polls++
	if len(f.lines) == 0 {
		return "", false
	}
	l := f.lines[0]
	f.lines = f.lines[1:]
	return l, true
}

func (f *fakeLink) WriteByte(b byte) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.written = append(f.written, b)
	return nil
}

func (f *fakeLink) IsOpen() bool { return f.open }

// recordingObserver keeps every published snapshot.
type recordingObserver struct {
	snaps []Snapshot
}

func (r *recordingObserver) Publish(s Snapshot) { r.snaps = append(r.snaps, s) }

type fixture struct {
	loop   *Loop
	link   *fakeLink
	orient *orientation.Model
	move   *movement.Model
	cell   *pot.Cell
	obs    *recordingObserver
}

func newFixture(t *testing.T, target mgl64.Vec3, l Link) fixture {
	t.Helper()
	o := orientation.NewModel(100, false, 0)
	m, err := movement.NewModel(movement.Config{WalkSpeed: 5, SprintSpeed: 10, MouseSensitivity: 100})
	require.NoError(t, err)
	c, err := completion.NewMachine(completion.Target{Position: target, TriggerRadius: 1}, 'H')
	require.NoError(t, err)
	cell := &pot.Cell{}
	obs := &recordingObserver{}
	if l == nil {
		l = &fakeLink{open: true}
	}

	loop, err := NewLoop(Deps{
		View:        o,
		Orientation: o,
		Movement:    m,
		Resolver:    physics.Ground{SkinWidth: 0.08},
		Completion:  c,
		Link:        l,
		Cell:        cell,
		ReadTimeout: 5 * time.Millisecond,
		Observer:    obs,
	})
	require.NoError(t, err)
	fl, _ := l.(*fakeLink)
	return fixture{loop: loop, link: fl, orient: o, move: m, cell: cell, obs: obs}
}

var walkForward = Input{AxisForward: 1, ForwardHeld: true}

// ---------- NewLoop ----------

func TestNewLoop_MissingViewIsConfigError(t *testing.T) {
	o := orientation.NewModel(100, false, 0)
	m, _ := movement.NewModel(movement.Config{WalkSpeed: 5, SprintSpeed: 10, MouseSensitivity: 100})
	c, _ := completion.NewMachine(completion.Target{TriggerRadius: 1}, 'H')

	_, err := NewLoop(Deps{
		Orientation: o,
		Movement:    m,
		Resolver:    physics.Ground{},
		Completion:  c,
		Link:        &fakeLink{},
		Cell:        &pot.Cell{},
		ReadTimeout: time.Millisecond,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "viewing frame")
}

func TestNewLoop_ReportsEveryMissingDependency(t *testing.T) {
	_, err := NewLoop(Deps{})
	require.Error(t, err)
	for _, want := range []string{"viewing frame", "orientation", "movement", "resolver", "completion", "link", "cell", "read timeout"} {
		assert.Contains(t, err.Error(), want)
	}
}

// ---------- Step ----------

func TestStep_WalksForward(t *testing.T) {
	f := newFixture(t, mgl64.Vec3{0, 0, 100}, nil)

	s := f.loop.Step(0.1, walkForward)
	assert.InDelta(t, 0.5, s.Position.Z(), 1e-9)
	assert.Equal(t, 0.0, s.Position.Y(), "grounded bias is absorbed by the ground")
	assert.Equal(t, uint64(1), s.Frame)
	assert.Equal(t, 0.1, s.DT)
	assert.Len(t, f.obs.snaps, 1)
}

func TestStep_OrientationDrivesMovementBasis(t *testing.T) {
	f := newFixture(t, mgl64.Vec3{0, 0, 100}, nil)

	// 90 degrees right: 0.9 pointer units * 100 sensitivity * 1s
	s := f.loop.Step(1, Input{PointerDX: 0.9, AxisForward: 1})
	assert.InDelta(t, 90.0, s.Orientation.YawDegrees, 1e-9)
	assert.InDelta(t, 5.0, s.Position.X(), 1e-9)
	assert.InDelta(t, 0.0, s.Position.Z(), 1e-9)
}

func TestStep_SprintAppliesFromNextFrame(t *testing.T) {
	f := newFixture(t, mgl64.Vec3{0, 0, 100}, nil)
	in := Input{AxisForward: 1, ForwardHeld: true, SprintHeld: true}

	s1 := f.loop.Step(0.1, in)
	assert.InDelta(t, 0.5, s1.Position.Z(), 1e-9, "first frame still at walk speed")
	assert.True(t, s1.Motion.IsSprinting)

	s2 := f.loop.Step(0.1, in)
	assert.InDelta(t, 1.5, s2.Position.Z(), 1e-9, "second frame at sprint speed")

	s3 := f.loop.Step(0.1, walkForward)
	assert.False(t, s3.Motion.IsSprinting)
	assert.Equal(t, 5.0, s3.Motion.CurrentSpeed)
}

func TestStep_FallsWhenStartingAirborne(t *testing.T) {
	o := orientation.NewModel(100, false, 0)
	m, _ := movement.NewModel(movement.Config{WalkSpeed: 5, SprintSpeed: 10, MouseSensitivity: 100})
	c, _ := completion.NewMachine(completion.Target{Position: mgl64.Vec3{50, 0, 50}, TriggerRadius: 1}, 'H')
	loop, err := NewLoop(Deps{
		View: o, Orientation: o, Movement: m,
		Resolver:    physics.Ground{SkinWidth: 0.08},
		Completion:  c,
		Link:        &fakeLink{},
		Cell:        &pot.Cell{},
		Start:       mgl64.Vec3{0, 3, 0},
		ReadTimeout: time.Millisecond,
	})
	require.NoError(t, err)

	var s Snapshot
	for i := 0; i < 200; i++ {
		s = loop.Step(1.0/60, Input{})
	}
	assert.Equal(t, 0.0, s.Position.Y(), "lands on the ground plane")
	assert.Equal(t, movement.GroundedBias, s.Motion.VerticalVelocity)
}

func TestStep_DecodesReadingsWithoutAffectingMovement(t *testing.T) {
	fl := &fakeLink{open: true, lines: []string{"POT:1023", "noise", "POT:x", "POT:0"}}
	f := newFixture(t, mgl64.Vec3{0, 0, 100}, fl)
	ref := newFixture(t, mgl64.Vec3{0, 0, 100}, nil)

	s := f.loop.Step(0.1, walkForward)
	ref.loop.Step(0.1, walkForward)
	require.NotNil(t, s.Pot)
	assert.Equal(t, 1023, s.Pot.Raw)
	assert.Equal(t, 1.0, s.Pot.Normalized)

	s = f.loop.Step(0.1, walkForward)
	assert.Equal(t, 1023, s.Pot.Raw, "noise keeps the stale reading")
	s = f.loop.Step(0.1, walkForward)
	assert.Equal(t, 1023, s.Pot.Raw)
	s = f.loop.Step(0.1, walkForward)
	assert.Equal(t, 0, s.Pot.Raw)

	for i := 0; i < 3; i++ {
		ref.loop.Step(0.1, walkForward)
	}
	assert.Equal(t, ref.loop.Position(), f.loop.Position())

	r, ok := f.cell.Load()
	require.True(t, ok)
	assert.Equal(t, 0, r.Raw)
}

func TestStep_CompletionDisablesMovementAndSendsOnce(t *testing.T) {
	f := newFixture(t, mgl64.Vec3{0, 0, 2}, nil)

	var s Snapshot
	for i := 0; i < 20 && s.Completion != completion.Complete; i++ {
		s = f.loop.Step(0.1, walkForward)
	}
	require.Equal(t, completion.Complete, s.Completion)
	assert.False(t, s.MovementEnabled, "the completing frame already has movement disabled")
	assert.Equal(t, []byte("H"), f.link.written)

	pos := f.loop.Position()
	yaw := s.Orientation.YawDegrees
	for i := 0; i < 10; i++ {
		s = f.loop.Step(0.1, Input{PointerDX: 5, AxisForward: 1, ForwardHeld: true, SprintHeld: true})
	}
	assert.Equal(t, pos, s.Position)
	assert.Equal(t, yaw, s.Orientation.YawDegrees)
	assert.Equal(t, []byte("H"), f.link.written, "command fires exactly once")

	for _, snap := range f.obs.snaps {
		if snap.Completion == completion.Complete {
			assert.False(t, snap.MovementEnabled)
		}
	}
}

func TestStep_SerialKeepsPollingAfterCompletion(t *testing.T) {
	fl := &fakeLink{open: true}
	f := newFixture(t, mgl64.Vec3{0, 0, 0}, fl)

	s := f.loop.Step(0.016, Input{})
	require.Equal(t, completion.Complete, s.Completion)

	fl.lines = []string{"POT:42"}
	s = f.loop.Step(0.016, Input{})
	require.NotNil(t, s.Pot)
	assert.Equal(t, 42, s.Pot.Raw)
}

func TestStep_LinkAbsentGameStillPlayable(t *testing.T) {
	dead := link.New(link.OpenerFunc(func(string, int) (link.Port, error) {
		return nil, errors.New("no such device")
	}))
	require.ErrorIs(t, dead.Open("COM6", 9600), link.ErrOpenFailed)

	f := newFixture(t, mgl64.Vec3{0, 0, 3}, dead)
	var s Snapshot
	for i := 0; i < 100 && s.Completion != completion.Complete; i++ {
		s = f.loop.Step(0.05, walkForward)
	}
	assert.Equal(t, completion.Complete, s.Completion)
	assert.False(t, s.LinkOpen)
	assert.Nil(t, s.Pot)
	assert.InDelta(t, 2.0, s.Position.Z(), 0.3)
}

func TestStep_CompletionSendFailureAbsorbed(t *testing.T) {
	fl := &fakeLink{open: true, writeErr: errors.New("unplugged")}
	f := newFixture(t, mgl64.Vec3{0, 0, 0}, fl)
	s := f.loop.Step(0.016, Input{})
	assert.Equal(t, completion.Complete, s.Completion)
	assert.False(t, s.MovementEnabled)
}

// ---------- Enqueue ----------

func TestEnqueue_SentOnNextFrame(t *testing.T) {
	f := newFixture(t, mgl64.Vec3{0, 0, 100}, nil)

	require.True(t, f.loop.Enqueue('A'))
	require.True(t, f.loop.Enqueue('B'))
	assert.Empty(t, f.link.written, "nothing is written outside the frame")

	f.loop.Step(0.016, Input{})
	assert.Equal(t, []byte("AB"), f.link.written)
}

func TestEnqueue_FullQueue(t *testing.T) {
	f := newFixture(t, mgl64.Vec3{0, 0, 100}, nil)
	for i := 0; i < commandQueue; i++ {
		require.True(t, f.loop.Enqueue('x'))
	}
	assert.False(t, f.loop.Enqueue('y'))
}

// ---------- Run ----------

func TestRun_StopsOnCompletion(t *testing.T) {
	f := newFixture(t, mgl64.Vec3{0, 0, 1.5}, nil)
	src := InputFunc(func(Snapshot) Input { return walkForward })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := Run(ctx, f.loop, src, RunParams{Tick: time.Millisecond, MaxDelta: 50 * time.Millisecond, StopOnComplete: true})
	require.NoError(t, err)
	assert.Equal(t, completion.Complete, f.loop.Snapshot().Completion)
	assert.Equal(t, []byte("H"), f.link.written)
}

func TestRun_CancelledByContext(t *testing.T) {
	f := newFixture(t, mgl64.Vec3{0, 0, 1000}, nil)
	src := InputFunc(func(Snapshot) Input { return Input{} })

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := Run(ctx, f.loop, src, RunParams{Tick: time.Millisecond})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Greater(t, f.link.polls, 0)
}

func TestRun_ClampsLongFrames(t *testing.T) {
	f := newFixture(t, mgl64.Vec3{0, 0, 1000}, nil)
	var maxDT float64
	f.loop.deps.Observer = observerFunc(func(s Snapshot) {
		if s.DT > maxDT {
			maxDT = s.DT
		}
	})
	src := InputFunc(func(s Snapshot) Input {
		if s.Frame == 2 {
			time.Sleep(20 * time.Millisecond)
		}
		return Input{}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	_ = Run(ctx, f.loop, src, RunParams{Tick: time.Millisecond, MaxDelta: 5 * time.Millisecond})
	assert.LessOrEqual(t, maxDT, 0.005+1e-12)
}

type observerFunc func(Snapshot)

func (f observerFunc) Publish(s Snapshot) { f(s) }
