package pipeline

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/bodyviewer/internal/kinect"
	"github.com/banshee-data/bodyviewer/internal/monitoring"
	"github.com/banshee-data/bodyviewer/internal/timeutil"
	"github.com/banshee-data/bodyviewer/internal/viewer"
)

func muteLogs(t *testing.T) *[]string {
	t.Helper()
	var lines []string
	monitoring.SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, format)
	})
	t.Cleanup(func() { monitoring.SetLogger(nil) })
	return &lines
}

func newTestLoop(src *fakeSource, tr *fakeTracker, win *fakeWindow) *Loop {
	l := NewLoop(src, tr, win, NewDisplayState())
	l.Clock = timeutil.NewMockClock(time.Unix(0, 0))
	return l
}

func TestDisplayStateProcessKey(t *testing.T) {
	s := NewDisplayState()
	var help bytes.Buffer
	s.SetHelpOutput(&help)

	assert.True(t, s.Running)
	assert.Equal(t, viewer.LayoutOnlyMainView, s.Layout)

	for i := 0; i < int(viewer.LayoutCount); i++ {
		s.ProcessKey(viewer.KeyK)
	}
	assert.Equal(t, viewer.LayoutOnlyMainView, s.Layout, "K cycles through every layout")
	s.ProcessKey(viewer.KeyK)
	assert.Equal(t, viewer.LayoutMainAndTop, s.Layout)

	s.ProcessKey(viewer.KeyB)
	assert.True(t, s.JointFrames)
	s.ProcessKey(viewer.KeyB)
	assert.False(t, s.JointFrames)

	s.ProcessKey(viewer.KeyH)
	assert.Contains(t, help.String(), "Key Shortcuts")

	s.ProcessKey(viewer.KeyUnknown)
	assert.True(t, s.Running)
	s.ProcessKey(viewer.KeyEscape)
	assert.False(t, s.Running)

	s = NewDisplayState()
	s.Close()
	assert.False(t, s.Running)
}

func TestVisualizeResultConfidence(t *testing.T) {
	b := body(3, kinect.ConfidenceMedium)
	j := &b.Skeleton.Joints
	j[kinect.JointHead].Confidence = kinect.ConfidenceNone
	j[kinect.JointNose].Confidence = kinect.ConfidenceLow
	j[kinect.JointHandLeft].Confidence = kinect.ConfidenceHigh

	frame := &kinect.BodyFrame{Bodies: []kinect.Body{b}}
	win := &fakeWindow{}
	VisualizeResult(frame, win)

	base := viewer.BodyColor(3)
	full, faded := base.WithAlpha(0.4), base.WithAlpha(0.1)

	require.Len(t, win.joints, kinect.JointCount-1, "joints below low are not drawn")
	for _, jt := range win.joints {
		want := full
		if jt.Position == j[kinect.JointNose].Position {
			want = faded
		}
		assert.Equal(t, want, jt.Color, "joint at %v", jt.Position)
		assert.NotEqual(t, j[kinect.JointHead].Position, jt.Position)
	}

	headPos, nosePos := j[kinect.JointHead].Position, j[kinect.JointNose].Position
	var fadedBones int
	for _, bn := range win.bones {
		assert.NotEqual(t, headPos, bn.From, "bones never touch a joint below low")
		assert.NotEqual(t, headPos, bn.To)
		touchesNose := bn.From == nosePos || bn.To == nosePos
		if touchesNose {
			fadedBones++
			assert.Equal(t, faded, bn.Color)
		} else {
			assert.Equal(t, full, bn.Color)
		}
	}
	assert.Equal(t, 2, fadedBones, "nose to each eye is faded")
	assert.Len(t, win.bones, len(kinect.Bones)-2, "neck-head and head-nose are dropped")
	assert.Nil(t, win.depth, "no capture, no point cloud")
}

func TestVisualizeResultBoneCount(t *testing.T) {
	frame := &kinect.BodyFrame{Bodies: []kinect.Body{body(1, kinect.ConfidenceHigh), body(2, kinect.ConfidenceLow)}}
	win := &fakeWindow{}
	VisualizeResult(frame, win)

	assert.Len(t, win.joints, 2*kinect.JointCount)
	assert.Len(t, win.bones, 2*len(kinect.Bones))
	assert.Equal(t, viewer.BodyColor(1).WithAlpha(0.4), win.bones[0].Color)
	assert.Equal(t, viewer.BodyColor(2).WithAlpha(0.1), win.bones[len(kinect.Bones)].Color)
}

func TestVisualizeResultNoBodies(t *testing.T) {
	win := &fakeWindow{joints: []joint{{}}, bones: []bone{{}}}
	VisualizeResult(&kinect.BodyFrame{Capture: capture(0)}, win)
	assert.Empty(t, win.joints, "stale overlays are cleared")
	assert.Empty(t, win.bones)
}

func TestVisualizeResultPointColors(t *testing.T) {
	c := capture(0, body(5, kinect.ConfidenceHigh))
	frame := &kinect.BodyFrame{Bodies: c.Bodies, BodyIndex: c.BodyIndex, Capture: c}
	win := &fakeWindow{}
	VisualizeResult(frame, win)

	want := []viewer.Color{viewer.BodyColor(5), viewer.White}
	if diff := cmp.Diff(want, win.colors); diff != "" {
		t.Errorf("colors mismatch (-want +got):\n%s", diff)
	}
	assert.Same(t, c.Depth, win.depth)

	// An index map that does not match the depth image leaves all white.
	frame.BodyIndex = &kinect.BodyIndexMap{Width: 1, Height: 1, Pixels: []uint8{0}}
	VisualizeResult(frame, win)
	assert.Equal(t, []viewer.Color{viewer.White, viewer.White}, win.colors)
}

func TestRunPlayback(t *testing.T) {
	lines := muteLogs(t)
	calls := &callLog{}
	noDepth := &kinect.Capture{Timestamp: 10 * time.Millisecond}
	src := &fakeSource{log: calls, steps: []step{
		{capture: capture(0, body(1, kinect.ConfidenceHigh))},
		{capture: noDepth},
		{capture: capture(20*time.Millisecond, body(1, kinect.ConfidenceHigh), body(2, kinect.ConfidenceHigh))},
	}}
	tr := &fakeTracker{log: calls}
	win := &fakeWindow{log: calls}
	pub := &fakePublisher{}
	skel := &fakeSkeletons{}

	l := newTestLoop(src, tr, win)
	l.Publisher = pub
	l.Skeletons = skel
	require.NoError(t, l.RunPlayback(context.Background()))

	assert.Equal(t, []time.Duration{kinect.WaitInfinite, kinect.WaitInfinite, kinect.WaitInfinite, kinect.WaitInfinite}, src.timeouts)
	assert.Equal(t, 2, tr.enqueued, "capture without depth is skipped")
	assert.Equal(t, []time.Duration{kinect.WaitInfinite, kinect.WaitInfinite}, tr.timeouts)
	assert.Equal(t, 3, src.released, "every capture released")
	assert.Equal(t, 2, tr.released, "every body frame released")
	assert.Equal(t, 2, win.renders, "skipped frames do not render")
	assert.Equal(t, 2, skel.frames)
	assert.Zero(t, pub.frames, "playback does not publish")
	assert.Contains(t, strings.Join(*lines, "\n"), "No depth image, skipping frame")

	assert.Equal(t, []string{"tracker.Shutdown", "tracker.Destroy", "window.Delete", "source.Close"}, calls.calls)
	assert.Equal(t, StateStopped, l.State())

	totals := l.Stats.Totals()
	assert.Equal(t, uint64(3), totals.Captures)
	assert.Equal(t, uint64(2), totals.Results)
	assert.Equal(t, uint64(3), totals.Bodies)
	assert.Equal(t, uint64(1), totals.Skipped)
}

func TestRunPlaybackFatalErrors(t *testing.T) {
	muteLogs(t)
	boom := errors.New("boom")

	tests := []struct {
		name    string
		steps   []step
		enqueue []error
		pop     []error
		want    string
	}{
		{"source failure", []step{{err: kinect.ErrFailed}}, nil, nil, "failed to get capture"},
		{"enqueue failure", []step{{capture: capture(0)}}, []error{boom}, nil, "failed to enqueue capture"},
		{"pop failure", []step{{capture: capture(0)}}, nil, []error{kinect.ErrFailed}, "failed to pop body frame"},
		{"pop timeout", []step{{capture: capture(0)}}, nil, []error{kinect.ErrTimeout}, "failed to pop body frame"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := &callLog{}
			src := &fakeSource{log: calls, steps: tt.steps}
			tr := &fakeTracker{log: calls, enqueueErrs: tt.enqueue, popErrs: tt.pop}
			win := &fakeWindow{log: calls}

			err := newTestLoop(src, tr, win).RunPlayback(context.Background())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.Equal(t, []string{"tracker.Shutdown", "tracker.Destroy", "window.Delete", "source.Close"}, calls.calls)
			assert.Equal(t, src.released, len(tt.steps)-countErrSteps(tt.steps))
		})
	}
}

func countErrSteps(steps []step) int {
	n := 0
	for _, s := range steps {
		if s.capture == nil {
			n++
		}
	}
	return n
}

func TestRunPlaybackStopsOnEscape(t *testing.T) {
	muteLogs(t)
	calls := &callLog{}
	src := &fakeSource{log: calls}
	for i := 0; i < 10; i++ {
		src.steps = append(src.steps, step{capture: capture(time.Duration(i) * time.Millisecond)})
	}
	tr := &fakeTracker{log: calls}
	win := &fakeWindow{log: calls}
	l := newTestLoop(src, tr, win)
	win.onRender = func(n int) {
		if n == 3 {
			l.Display.ProcessKey(viewer.KeyEscape)
		}
	}

	require.NoError(t, l.RunPlayback(context.Background()))
	assert.Equal(t, 3, win.renders)
	assert.Len(t, src.steps, 7, "remaining captures never read")
}

func TestRunPlaybackCancelled(t *testing.T) {
	muteLogs(t)
	calls := &callLog{}
	src := &fakeSource{log: calls, steps: []step{{capture: capture(0)}}}
	tr := &fakeTracker{log: calls}
	win := &fakeWindow{log: calls}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, newTestLoop(src, tr, win).RunPlayback(ctx))
	assert.Empty(t, src.timeouts, "cancellation is checked before reading")
	assert.Equal(t, []string{"tracker.Shutdown", "tracker.Destroy", "window.Delete", "source.Close"}, calls.calls)
}

func TestRunDevice(t *testing.T) {
	muteLogs(t)
	calls := &callLog{}
	src := &fakeSource{log: calls, steps: []step{
		{capture: capture(0, body(1, kinect.ConfidenceHigh), body(2, kinect.ConfidenceHigh))},
		{err: kinect.ErrTimeout},
		{capture: capture(33 * time.Millisecond)},
		{capture: capture(66*time.Millisecond, body(4, kinect.ConfidenceHigh))},
		{err: kinect.ErrTimeout},
	}}
	// The second capture is refused by a full queue.
	tr := &fakeTracker{log: calls, enqueueErrs: []error{nil, kinect.ErrTimeout}}
	win := &fakeWindow{log: calls}
	pub := &fakePublisher{}

	l := newTestLoop(src, tr, win)
	l.Publisher = pub
	l.Display.ProcessKey(viewer.KeyB)
	win.onRender = func(n int) {
		if n == 5 {
			l.Display.ProcessKey(viewer.KeyEscape)
		}
	}
	require.NoError(t, l.RunDevice(context.Background()))

	for _, d := range src.timeouts {
		assert.Zero(t, d, "device is polled")
	}
	for _, d := range tr.timeouts {
		assert.Zero(t, d, "enqueue does not block")
	}
	assert.Equal(t, 5, win.renders, "every iteration renders")
	assert.True(t, win.jointFrames, "display state applied before render")
	assert.Equal(t, 2, tr.enqueued)
	assert.Equal(t, 3, src.released, "dropped capture still released")
	assert.Equal(t, 2, tr.released)
	assert.Equal(t, 2, pub.frames, "publisher sees every result")
	assert.Equal(t, []uint32{1, 4}, pub.bodies)

	assert.Equal(t, []string{"window.Delete", "tracker.Shutdown", "tracker.Destroy", "source.Close"}, calls.calls)

	totals := l.Stats.Totals()
	assert.Equal(t, uint64(1), totals.Dropped)
	assert.Equal(t, uint64(2), totals.Published)

	// Only the two iterations with neither capture nor result idle.
	clock := l.Clock.(*timeutil.MockClock)
	assert.Equal(t, []time.Duration{DefaultIdleWait, DefaultIdleWait}, clock.Sleeps())
}

func TestRunDeviceFatalErrors(t *testing.T) {
	muteLogs(t)
	boom := errors.New("boom")

	tests := []struct {
		name    string
		steps   []step
		enqueue []error
		pop     []error
		want    string
	}{
		{"source failure", []step{{err: kinect.ErrFailed}}, nil, nil, "failed to get capture"},
		{"source eof", []step{{err: kinect.ErrEOF}}, nil, nil, "failed to get capture"},
		{"enqueue failure", []step{{capture: capture(0)}}, []error{boom}, nil, "failed to enqueue capture"},
		{"pop failure", []step{{err: kinect.ErrTimeout}}, nil, []error{kinect.ErrFailed}, "failed to pop body frame"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := &callLog{}
			src := &fakeSource{log: calls, steps: tt.steps}
			tr := &fakeTracker{log: calls, enqueueErrs: tt.enqueue, popErrs: tt.pop}
			win := &fakeWindow{log: calls}

			err := newTestLoop(src, tr, win).RunDevice(context.Background())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.Equal(t, []string{"window.Delete", "tracker.Shutdown", "tracker.Destroy", "source.Close"}, calls.calls)
		})
	}
}

func TestRunDevicePublishErrorIsNotFatal(t *testing.T) {
	lines := muteLogs(t)
	calls := &callLog{}
	src := &fakeSource{log: calls, steps: []step{
		{capture: capture(0, body(1, kinect.ConfidenceHigh))},
		{capture: capture(0, body(1, kinect.ConfidenceHigh))},
	}}
	tr := &fakeTracker{log: calls}
	win := &fakeWindow{log: calls}
	pub := &fakePublisher{err: errors.New("connection refused")}

	l := newTestLoop(src, tr, win)
	l.Publisher = pub
	win.onRender = func(n int) {
		if n == 2 {
			l.Display.Close()
		}
	}
	require.NoError(t, l.RunDevice(context.Background()))
	assert.Equal(t, 2, pub.frames, "no retry, loop continues")
	assert.Contains(t, strings.Join(*lines, "\n"), "failed to publish joints")
	assert.Zero(t, l.Stats.Totals().Published)
}

func TestRunDevicePublishFailuresLoggedOnce(t *testing.T) {
	lines := muteLogs(t)
	monitoring.SetDebug(false)
	calls := &callLog{}
	var steps []step
	for i := 0; i < 6; i++ {
		steps = append(steps, step{capture: capture(0, body(1, kinect.ConfidenceHigh))})
	}
	src := &fakeSource{log: calls, steps: steps}
	tr := &fakeTracker{log: calls}
	win := &fakeWindow{log: calls}
	down := errors.New("connection refused")
	pub := &fakePublisher{errs: []error{down, down, down, nil, down, down}}

	l := newTestLoop(src, tr, win)
	l.Publisher = pub
	win.onRender = func(n int) {
		if n == 6 {
			l.Display.Close()
		}
	}
	require.NoError(t, l.RunDevice(context.Background()))
	require.Equal(t, 6, pub.frames)

	out := strings.Join(*lines, "\n")
	assert.Equal(t, 2, strings.Count(out, "failed to publish joints"), "once per outage")
	assert.Equal(t, 1, strings.Count(out, "publishing joints again"))
	assert.Equal(t, uint64(1), l.Stats.Totals().Published)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "stopped", StateStopped.String())
	assert.Equal(t, "State(9)", State(9).String())
	assert.Equal(t, StateIdle, (&Loop{}).State())
}
