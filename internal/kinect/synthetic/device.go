// Package synthetic provides a kinect.Source that renders walking figures.
//
// Each capture carries a depth image, a body index map and the skeletons used
// to draw them, so the full pipeline can run without a camera or the tracking
// SDK.
package synthetic

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/bodyviewer/internal/kinect"
	"github.com/banshee-data/bodyviewer/internal/timeutil"
)

// Device generates synthetic captures at a fixed frame rate.
type Device struct {
	cal kinect.Calibration

	// Configuration
	FrameRate    float64 // frames per second
	BodyCount    int     // figures in the scene
	WallDepthMM  float64 // distance to the back wall
	WalkRadiusMM float64 // half-width of the walking path
	StrideHz     float64 // leg swing frequency
	NoiseMM      float64 // depth noise amplitude
	MaxFrames    int     // 0 for unlimited

	frame   int
	started time.Time
	clock   timeutil.Clock
	rng     *rand.Rand

	mu     sync.Mutex
	closed bool
}

// NewDevice creates a synthetic device for the given depth mode.
func NewDevice(mode kinect.DepthMode) *Device {
	return &Device{
		cal:          kinect.DefaultCalibration(mode),
		FrameRate:    30,
		BodyCount:    1,
		WallDepthMM:  3500,
		WalkRadiusMM: 600,
		StrideHz:     0.9,
		NoiseMM:      4,
		clock:        timeutil.RealClock{},
		rng:          rand.New(rand.NewSource(1)),
	}
}

// SetClock replaces the clock used to pace frames.
func (d *Device) SetClock(c timeutil.Clock) {
	d.clock = c
}

// Calibration returns the nominal calibration for the device's depth mode.
func (d *Device) Calibration() kinect.Calibration {
	return d.cal
}

// NextCapture returns the next frame once it is due. A zero timeout polls;
// kinect.WaitInfinite waits for the next frame.
func (d *Device) NextCapture(timeout time.Duration) (*kinect.Capture, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, fmt.Errorf("%w: device is closed", kinect.ErrFailed)
	}
	if d.MaxFrames > 0 && d.frame >= d.MaxFrames {
		return nil, kinect.ErrEOF
	}

	period := time.Duration(float64(time.Second) / d.FrameRate)
	if d.started.IsZero() {
		d.started = d.clock.Now()
	}
	wait := time.Duration(d.frame)*period - d.clock.Since(d.started)
	if wait > 0 {
		if timeout >= 0 && wait > timeout {
			if timeout > 0 {
				d.clock.Sleep(timeout)
			}
			return nil, kinect.ErrTimeout
		}
		d.clock.Sleep(wait)
	}

	c := d.Render(time.Duration(d.frame) * period)
	d.frame++
	return c, nil
}

// Render draws the scene at time ts.
func (d *Device) Render(ts time.Duration) *kinect.Capture {
	w, h := d.cal.Width, d.cal.Height
	depth := &kinect.DepthImage{Width: w, Height: h, Pixels: make([]uint16, w*h)}
	index := &kinect.BodyIndexMap{Width: w, Height: h, Pixels: make([]uint8, w*h)}

	d.drawRoom(depth)
	for i := range index.Pixels {
		index.Pixels[i] = kinect.BodyIndexBackground
	}

	bodies := make([]kinect.Body, d.BodyCount)
	for i := range bodies {
		bodies[i] = d.Pose(i, ts)
		d.drawBody(depth, index, uint8(i), &bodies[i].Skeleton)
	}

	return &kinect.Capture{
		Timestamp: ts,
		Depth:     depth,
		BodyIndex: index,
		Bodies:    bodies,
	}
}

// drawRoom fills the back wall and a floor that rises towards the camera.
func (d *Device) drawRoom(depth *kinect.DepthImage) {
	in := d.cal.Intrinsics
	const floorMM = 1000.0 // camera height above the floor
	for y := 0; y < depth.Height; y++ {
		z := d.WallDepthMM
		if dy := (float64(y) - in.Cy) / in.Fy; dy > 0 {
			if fz := floorMM / dy; fz < z {
				z = fz
			}
		}
		for x := 0; x < depth.Width; x++ {
			v := z + d.NoiseMM*(d.rng.Float64()*2-1)
			depth.Pixels[y*depth.Width+x] = uint16(math.Max(0, v))
		}
	}
}

// restPose holds joint offsets from the pelvis in millimetres, with +y up
// and -z towards the camera.
var restPose = [kinect.JointCount]r3.Vec{
	kinect.JointPelvis:        {},
	kinect.JointSpineNavel:    {X: 0, Y: 200},
	kinect.JointSpineChest:    {X: 0, Y: 380},
	kinect.JointNeck:          {X: 0, Y: 560},
	kinect.JointClavicleLeft:  {X: 40, Y: 520},
	kinect.JointShoulderLeft:  {X: 180, Y: 500},
	kinect.JointElbowLeft:     {X: 200, Y: 230},
	kinect.JointWristLeft:     {X: 210, Y: 0},
	kinect.JointHandLeft:      {X: 215, Y: -80},
	kinect.JointHandTipLeft:   {X: 220, Y: -160},
	kinect.JointThumbLeft:     {X: 180, Y: -100, Z: -30},
	kinect.JointClavicleRight: {X: -40, Y: 520},
	kinect.JointShoulderRight: {X: -180, Y: 500},
	kinect.JointElbowRight:    {X: -200, Y: 230},
	kinect.JointWristRight:    {X: -210, Y: 0},
	kinect.JointHandRight:     {X: -215, Y: -80},
	kinect.JointHandTipRight:  {X: -220, Y: -160},
	kinect.JointThumbRight:    {X: -180, Y: -100, Z: -30},
	kinect.JointHipLeft:       {X: 90, Y: -10},
	kinect.JointKneeLeft:      {X: 95, Y: -420},
	kinect.JointAnkleLeft:     {X: 100, Y: -820},
	kinect.JointFootLeft:      {X: 100, Y: -880, Z: -120},
	kinect.JointHipRight:      {X: -90, Y: -10},
	kinect.JointKneeRight:     {X: -95, Y: -420},
	kinect.JointAnkleRight:    {X: -100, Y: -820},
	kinect.JointFootRight:     {X: -100, Y: -880, Z: -120},
	kinect.JointHead:          {X: 0, Y: 700},
	kinect.JointNose:          {X: 0, Y: 680, Z: -90},
	kinect.JointEyeLeft:       {X: 30, Y: 720, Z: -80},
	kinect.JointEarLeft:       {X: 70, Y: 700},
	kinect.JointEyeRight:      {X: -30, Y: 720, Z: -80},
	kinect.JointEarRight:      {X: -70, Y: 700},
}

// limb is a chain of joints that swings about its first joint.
type limb struct {
	root   kinect.JointID
	joints []kinect.JointID
	phase  float64
	amp    float64 // radians
}

var limbs = []limb{
	{kinect.JointHipLeft, []kinect.JointID{kinect.JointKneeLeft, kinect.JointAnkleLeft, kinect.JointFootLeft}, 0, 0.45},
	{kinect.JointHipRight, []kinect.JointID{kinect.JointKneeRight, kinect.JointAnkleRight, kinect.JointFootRight}, math.Pi, 0.45},
	{kinect.JointShoulderLeft, []kinect.JointID{kinect.JointElbowLeft, kinect.JointWristLeft, kinect.JointHandLeft, kinect.JointHandTipLeft, kinect.JointThumbLeft}, math.Pi, 0.35},
	{kinect.JointShoulderRight, []kinect.JointID{kinect.JointElbowRight, kinect.JointWristRight, kinect.JointHandRight, kinect.JointHandTipRight, kinect.JointThumbRight}, 0, 0.35},
}

// Pose returns the skeleton of figure i at time ts in camera coordinates.
func (d *Device) Pose(i int, ts time.Duration) kinect.Body {
	t := ts.Seconds()
	walk := 2 * math.Pi * d.StrideHz * t

	// Figures pace left and right in front of the wall, each in its own lane.
	lane := float64(i) - float64(d.BodyCount-1)/2
	centre := r3.Vec{
		X: lane*900 + d.WalkRadiusMM*math.Sin(walk/4+float64(i)),
		Y: 0,
		Z: d.WallDepthMM - 1300 - 200*float64(i%2),
	}
	heading := 0.3 * math.Cos(walk/4+float64(i))
	turn := r3.NewRotation(heading, r3.Vec{Y: 1})

	local := restPose
	for _, l := range limbs {
		swing := r3.NewRotation(l.amp*math.Sin(walk+l.phase), r3.Vec{X: 1})
		for _, j := range l.joints {
			local[j] = r3.Add(local[l.root], swing.Rotate(r3.Sub(local[j], local[l.root])))
		}
	}

	orientation := quaternionFromAxisAngle(heading, r3.Vec{Y: 1})
	var body kinect.Body
	body.ID = uint32(i + 1)
	for j := range body.Skeleton.Joints {
		p := r3.Add(centre, turn.Rotate(local[j]))
		body.Skeleton.Joints[j] = kinect.Joint{
			// Camera y points down.
			Position:    kinect.Float3{X: float32(p.X), Y: float32(-p.Y), Z: float32(p.Z)},
			Orientation: orientation,
			Confidence:  jointConfidence(kinect.JointID(j), heading),
		}
	}
	return body
}

// jointConfidence mimics the tracker: extremities are less certain and the
// ear facing away from the camera is not observed.
func jointConfidence(j kinect.JointID, heading float64) kinect.ConfidenceLevel {
	switch j {
	case kinect.JointHandTipLeft, kinect.JointHandTipRight, kinect.JointThumbLeft, kinect.JointThumbRight:
		return kinect.ConfidenceLow
	case kinect.JointEarLeft:
		if heading > 0.2 {
			return kinect.ConfidenceNone
		}
	case kinect.JointEarRight:
		if heading < -0.2 {
			return kinect.ConfidenceNone
		}
	}
	return kinect.ConfidenceMedium
}

func quaternionFromAxisAngle(angle float64, axis r3.Vec) kinect.Quaternion {
	axis = r3.Unit(axis)
	s := math.Sin(angle / 2)
	return kinect.Quaternion{
		W: float32(math.Cos(angle / 2)),
		X: float32(axis.X * s),
		Y: float32(axis.Y * s),
		Z: float32(axis.Z * s),
	}
}

// boneRadiusMM is the thickness of the rendered limbs.
const boneRadiusMM = 60

// drawBody rasterises the skeleton's bones as capsules into the depth image
// and marks the covered pixels in the body index map.
func (d *Device) drawBody(depth *kinect.DepthImage, index *kinect.BodyIndexMap, bodyIndex uint8, s *kinect.Skeleton) {
	in := d.cal.Intrinsics
	for _, b := range kinect.Bones {
		p0 := s.Joints[b.From].Position
		p1 := s.Joints[b.To].Position
		length := math.Sqrt(float64((p1.X-p0.X)*(p1.X-p0.X) + (p1.Y-p0.Y)*(p1.Y-p0.Y) + (p1.Z-p0.Z)*(p1.Z-p0.Z)))
		steps := int(length/20) + 1
		for k := 0; k <= steps; k++ {
			f := float32(k) / float32(steps)
			x := float64(p0.X + f*(p1.X-p0.X))
			y := float64(p0.Y + f*(p1.Y-p0.Y))
			z := float64(p0.Z + f*(p1.Z-p0.Z))
			if z <= 0 {
				continue
			}
			u := in.Fx*x/z + in.Cx
			v := in.Fy*y/z + in.Cy
			r := in.Fx * boneRadiusMM / z
			d.stamp(depth, index, bodyIndex, u, v, r, z-boneRadiusMM/2)
		}
	}
}

// stamp draws a filled disc of depth z, keeping the nearest surface.
func (d *Device) stamp(depth *kinect.DepthImage, index *kinect.BodyIndexMap, bodyIndex uint8, u, v, r, z float64) {
	x0, x1 := int(math.Floor(u-r)), int(math.Ceil(u+r))
	y0, y1 := int(math.Floor(v-r)), int(math.Ceil(v+r))
	zz := uint16(z)
	for y := max(y0, 0); y <= min(y1, depth.Height-1); y++ {
		for x := max(x0, 0); x <= min(x1, depth.Width-1); x++ {
			dx, dy := float64(x)-u, float64(y)-v
			if dx*dx+dy*dy > r*r {
				continue
			}
			i := y*depth.Width + x
			if index.Pixels[i] != kinect.BodyIndexBackground && depth.Pixels[i] <= zz {
				continue
			}
			depth.Pixels[i] = zz
			index.Pixels[i] = bodyIndex
		}
	}
}

// Close stops the device. Further captures fail.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

var _ kinect.Source = (*Device)(nil)
