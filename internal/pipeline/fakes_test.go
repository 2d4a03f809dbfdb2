package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/banshee-data/bodyviewer/internal/kinect"
	"github.com/banshee-data/bodyviewer/internal/viewer"
)

// callLog records calls across the fakes so tests can check ordering.
type callLog struct {
	calls []string
}

func (l *callLog) add(format string, args ...any) {
	l.calls = append(l.calls, fmt.Sprintf(format, args...))
}

// step is one scripted NextCapture result.
type step struct {
	capture *kinect.Capture
	err     error
}

type fakeSource struct {
	log      *callLog
	steps    []step
	timeouts []time.Duration
	released int
}

func (s *fakeSource) Calibration() kinect.Calibration {
	return kinect.DefaultCalibration(kinect.DepthModeNFOVUnbinned)
}

func (s *fakeSource) NextCapture(timeout time.Duration) (*kinect.Capture, error) {
	s.timeouts = append(s.timeouts, timeout)
	if len(s.steps) == 0 {
		return nil, kinect.ErrEOF
	}
	st := s.steps[0]
	s.steps = s.steps[1:]
	if st.capture != nil {
		st.capture.SetReleaser(func() { s.released++ })
	}
	return st.capture, st.err
}

func (s *fakeSource) Close() error {
	s.log.add("source.Close")
	return nil
}

// fakeTracker turns every enqueued capture into a result carrying the
// capture's annotations. enqueueErrs and popErrs are consumed first.
type fakeTracker struct {
	log         *callLog
	enqueueErrs []error
	popErrs     []error
	pending     []*kinect.BodyFrame
	enqueued    int
	released    int
	timeouts    []time.Duration
}

func (t *fakeTracker) EnqueueCapture(c *kinect.Capture, timeout time.Duration) error {
	t.timeouts = append(t.timeouts, timeout)
	if len(t.enqueueErrs) > 0 {
		err := t.enqueueErrs[0]
		t.enqueueErrs = t.enqueueErrs[1:]
		if err != nil {
			return err
		}
	}
	t.enqueued++
	f := &kinect.BodyFrame{Timestamp: c.Timestamp, Bodies: c.Bodies, BodyIndex: c.BodyIndex, Capture: c}
	f.SetReleaser(func() { t.released++ })
	t.pending = append(t.pending, f)
	return nil
}

func (t *fakeTracker) PopResult(timeout time.Duration) (*kinect.BodyFrame, error) {
	if len(t.popErrs) > 0 {
		err := t.popErrs[0]
		t.popErrs = t.popErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	if len(t.pending) == 0 {
		return nil, kinect.ErrTimeout
	}
	f := t.pending[0]
	t.pending = t.pending[1:]
	return f, nil
}

func (t *fakeTracker) Shutdown() { t.log.add("tracker.Shutdown") }
func (t *fakeTracker) Destroy()  { t.log.add("tracker.Destroy") }

type joint struct {
	Position kinect.Float3
	Color    viewer.Color
}

type bone struct {
	From, To kinect.Float3
	Color    viewer.Color
}

type fakeWindow struct {
	log *callLog

	colors      []viewer.Color
	depth       *kinect.DepthImage
	joints      []joint
	bones       []bone
	layout      viewer.Layout
	jointFrames bool
	renders     int

	// onRender runs inside Render, as key callbacks would.
	onRender func(n int)
}

func (w *fakeWindow) UpdatePointClouds(depth *kinect.DepthImage, colors []viewer.Color) {
	w.depth = depth
	w.colors = colors
}

func (w *fakeWindow) CleanJointsAndBones() {
	w.joints = nil
	w.bones = nil
}

func (w *fakeWindow) AddJoint(p kinect.Float3, _ kinect.Quaternion, c viewer.Color) {
	w.joints = append(w.joints, joint{p, c})
}

func (w *fakeWindow) AddBone(from, to kinect.Float3, c viewer.Color) {
	w.bones = append(w.bones, bone{from, to, c})
}

func (w *fakeWindow) SetLayout3d(l viewer.Layout)        { w.layout = l }
func (w *fakeWindow) SetJointFrameVisualization(on bool) { w.jointFrames = on }

func (w *fakeWindow) Render() {
	w.renders++
	if w.onRender != nil {
		w.onRender(w.renders)
	}
}

func (w *fakeWindow) Delete() { w.log.add("window.Delete") }

type fakePublisher struct {
	frames int
	bodies []uint32
	err    error
	// errs, if set, scripts the error of each call in turn.
	errs []error
}

func (p *fakePublisher) Publish(_ context.Context, f *kinect.BodyFrame) (bool, error) {
	p.frames++
	err := p.err
	if len(p.errs) > 0 {
		err, p.errs = p.errs[0], p.errs[1:]
	}
	if err != nil {
		return false, err
	}
	if f.NumBodies() == 0 {
		return false, nil
	}
	p.bodies = append(p.bodies, f.Bodies[0].ID)
	return true, nil
}

type fakeSkeletons struct {
	frames int
}

func (s *fakeSkeletons) RecordFrame(context.Context, *kinect.BodyFrame) error {
	s.frames++
	return nil
}

// body returns a body with every joint at the given confidence.
func body(id uint32, conf kinect.ConfidenceLevel) kinect.Body {
	b := kinect.Body{ID: id}
	for i := range b.Skeleton.Joints {
		b.Skeleton.Joints[i] = kinect.Joint{
			Position:    kinect.Float3{X: float32(i), Y: float32(id), Z: 1000},
			Orientation: kinect.IdentityQuaternion,
			Confidence:  conf,
		}
	}
	return b
}

func capture(ts time.Duration, bodies ...kinect.Body) *kinect.Capture {
	return &kinect.Capture{
		Timestamp: ts,
		Depth:     &kinect.DepthImage{Width: 2, Height: 1, Pixels: []uint16{1000, 2000}},
		Bodies:    bodies,
		BodyIndex: &kinect.BodyIndexMap{Width: 2, Height: 1, Pixels: []uint8{0, kinect.BodyIndexBackground}},
	}
}
