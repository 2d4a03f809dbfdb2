// Package pipeline runs the capture → enqueue → pop → visualise loop that
// connects an input source, a body tracker and the viewer window.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/banshee-data/bodyviewer/internal/kinect"
	"github.com/banshee-data/bodyviewer/internal/monitor"
	"github.com/banshee-data/bodyviewer/internal/monitoring"
	"github.com/banshee-data/bodyviewer/internal/timeutil"
)

// State is the lifecycle of a Loop.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// DefaultIdleWait is how long a live iteration that produced neither a
// capture nor a result waits before polling again.
const DefaultIdleWait = 5 * time.Millisecond

// Publisher receives every live result. *kvstore.Publisher implements it.
type Publisher interface {
	Publish(ctx context.Context, frame *kinect.BodyFrame) (bool, error)
}

// SkeletonSink stores the bodies of every result. *db.SkeletonLog
// implements it.
type SkeletonSink interface {
	RecordFrame(ctx context.Context, frame *kinect.BodyFrame) error
}

// Loop owns one run of the pipeline. Source, Tracker, Window and Display are
// required; the remaining fields are optional.
type Loop struct {
	Source  kinect.Source
	Tracker kinect.Tracker
	Window  Window
	Display *DisplayState

	// Publisher is called for every result in device mode.
	Publisher Publisher
	// Skeletons, if set, logs the bodies of every result.
	Skeletons SkeletonSink
	Stats     *monitor.Stats

	Clock    timeutil.Clock
	IdleWait time.Duration

	state atomic.Int32
	// publishFailing is set after a failed publish until one succeeds.
	publishFailing bool
}

// NewLoop returns a Loop with a real clock and fresh stats.
func NewLoop(src kinect.Source, tracker kinect.Tracker, win Window, display *DisplayState) *Loop {
	return &Loop{
		Source:   src,
		Tracker:  tracker,
		Window:   win,
		Display:  display,
		Stats:    monitor.NewStats(),
		Clock:    timeutil.RealClock{},
		IdleWait: DefaultIdleWait,
	}
}

// State returns the current lifecycle state.
func (l *Loop) State() State {
	return State(l.state.Load())
}

func (l *Loop) setState(s State) {
	l.state.Store(int32(s))
	monitoring.Debugf("[Pipeline] state %s", s)
}

// running reports whether another iteration should start. Cancellation
// and the stop flag are only observed here.
func (l *Loop) running(ctx context.Context) bool {
	if ctx.Err() != nil {
		log.Printf("[Pipeline] stopping: %v", context.Cause(ctx))
		return false
	}
	return l.Display.Running
}

// RunPlayback plays the source to the end. Every call blocks: each capture
// is tracked and drawn before the next is read.
//
// Teardown is tracker, window, then source. The returned error is the
// failure that stopped the loop, if any.
func (l *Loop) RunPlayback(ctx context.Context) (err error) {
	l.setState(StateRunning)
	defer func() {
		l.setState(StateStopping)
		l.Tracker.Shutdown()
		l.Tracker.Destroy()
		l.Window.Delete()
		if cerr := l.Source.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close playback: %w", cerr)
		}
		l.setState(StateStopped)
		l.logSummary()
	}()

	for l.running(ctx) {
		capture, err := l.Source.NextCapture(kinect.WaitInfinite)
		if errors.Is(err, kinect.ErrEOF) {
			log.Printf("[Pipeline] end of recording")
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to get capture: %w", err)
		}
		if l.Stats != nil {
			l.Stats.AddCapture()
		}

		if capture.Depth == nil {
			monitoring.Logf("[Pipeline] No depth image, skipping frame")
			capture.Release()
			if l.Stats != nil {
				l.Stats.AddSkipped()
			}
			continue
		}

		err = l.Tracker.EnqueueCapture(capture, kinect.WaitInfinite)
		capture.Release()
		if err != nil {
			return fmt.Errorf("failed to enqueue capture: %w", err)
		}

		frame, err := l.Tracker.PopResult(kinect.WaitInfinite)
		if err != nil {
			return fmt.Errorf("failed to pop body frame: %w", err)
		}
		l.handleResult(ctx, frame, false)

		l.Display.Apply(l.Window)
		l.Window.Render()
	}
	return nil
}

// RunDevice polls a live source until stopped. Captures the tracker cannot
// take immediately are dropped, and iterations without a new result still
// render so input keeps flowing.
//
// Teardown is window, tracker, then device.
func (l *Loop) RunDevice(ctx context.Context) (err error) {
	l.setState(StateRunning)
	defer func() {
		l.setState(StateStopping)
		l.Window.Delete()
		l.Tracker.Shutdown()
		l.Tracker.Destroy()
		if cerr := l.Source.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close device: %w", cerr)
		}
		l.setState(StateStopped)
		l.logSummary()
	}()

	for l.running(ctx) {
		busy := false

		capture, err := l.Source.NextCapture(0)
		switch {
		case err == nil:
			busy = true
			if l.Stats != nil {
				l.Stats.AddCapture()
			}
			err = l.Tracker.EnqueueCapture(capture, 0)
			capture.Release()
			if errors.Is(err, kinect.ErrTimeout) {
				monitoring.Debugf("[Pipeline] tracker queue full, dropping capture")
				if l.Stats != nil {
					l.Stats.AddDropped()
				}
			} else if err != nil {
				return fmt.Errorf("failed to enqueue capture: %w", err)
			}
		case errors.Is(err, kinect.ErrTimeout):
		default:
			return fmt.Errorf("failed to get capture: %w", err)
		}

		frame, err := l.Tracker.PopResult(0)
		switch {
		case err == nil:
			busy = true
			l.handleResult(ctx, frame, true)
		case errors.Is(err, kinect.ErrTimeout):
		default:
			return fmt.Errorf("failed to pop body frame: %w", err)
		}

		l.Display.Apply(l.Window)
		l.Window.Render()

		if !busy && l.IdleWait > 0 {
			l.Clock.Sleep(l.IdleWait)
		}
	}
	return nil
}

// handleResult draws the frame, hands it to the sinks and releases it.
func (l *Loop) handleResult(ctx context.Context, frame *kinect.BodyFrame, live bool) {
	defer frame.Release()

	if l.Stats != nil {
		l.Stats.AddResult(frame.NumBodies())
	}
	VisualizeResult(frame, l.Window)

	if l.Skeletons != nil {
		if err := l.Skeletons.RecordFrame(ctx, frame); err != nil {
			monitoring.Logf("[Pipeline] failed to log skeletons: %v", err)
		}
	}

	if !live || l.Publisher == nil {
		return
	}
	wrote, err := l.Publisher.Publish(ctx, frame)
	if err != nil {
		if !l.publishFailing {
			monitoring.Logf("[Pipeline] failed to publish joints: %v (repeats logged at debug level)", err)
			l.publishFailing = true
		} else {
			monitoring.Debugf("[Pipeline] failed to publish joints: %v", err)
		}
		return
	}
	if l.publishFailing {
		monitoring.Logf("[Pipeline] publishing joints again")
		l.publishFailing = false
	}
	if wrote && l.Stats != nil {
		l.Stats.AddPublished()
	}
}

func (l *Loop) logSummary() {
	if l.Stats == nil {
		return
	}
	t := l.Stats.Totals()
	log.Printf("[Pipeline] stopped: %d captures, %d results, %d dropped, %d skipped",
		t.Captures, t.Results, t.Dropped, t.Skipped)
}
