package frame

import (
	"context"
	"time"

	"github.com/cjeanneret/potwalk/internal/debug"
	"github.com/cjeanneret/potwalk/internal/logic/completion"
)

// InputSource samples controls for the next frame given the last snapshot.
type InputSource interface {
	Sample(last Snapshot) Input
}

// InputFunc adapts a function to InputSource.
type InputFunc func(last Snapshot) Input

func (f InputFunc) Sample(last Snapshot) Input { return f(last) }

// RunParams controls the frame scheduler.
type RunParams struct {
	Tick           time.Duration // frame period
	MaxDelta       time.Duration // largest dt a single frame integrates
	StopOnComplete bool          // return after the completion frame
}

// Run drives l from a ticker, measuring the real time between frames as dt.
// It returns ctx.Err() when cancelled, or nil after completion when
// StopOnComplete is set.
func Run(ctx context.Context, l *Loop, source InputSource, p RunParams) error {
	ticker := time.NewTicker(p.Tick)
	defer ticker.Stop()

	last := time.Now()
	snap := l.Snapshot()
	debug.Live("Frame loop started (tick %v)", p.Tick)

	for {
		select {
		case <-ctx.Done():
			debug.Live("Frame loop stopped after %d frames", snap.Frame)
			return ctx.Err()
		case now := <-ticker.C:
			elapsed := now.Sub(last)
			last = now
			if p.MaxDelta > 0 && elapsed > p.MaxDelta {
				elapsed = p.MaxDelta
			}

			snap = l.Step(elapsed.Seconds(), source.Sample(snap))
			if debug.IsEnabled(debug.LevelTrace) {
				pos := snap.Position
				debug.Frame(snap.Frame, elapsed, snap.Orientation.YawDegrees, snap.Orientation.PitchDegrees, pos.X(), pos.Y(), pos.Z())
			}

			if p.StopOnComplete && snap.Completion == completion.Complete {
				debug.Live("Frame loop finished after %d frames", snap.Frame)
				return nil
			}
		}
	}
}
