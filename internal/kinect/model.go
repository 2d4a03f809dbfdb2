// Package kinect defines the sensor and body-tracking model shared by every
// input source, tracker and output sink. The native SDK binding lives in the
// k4a sub-package; this package is pure Go so that recordings, synthetic data
// and tests can use the same types.
package kinect

import (
	"fmt"
	"time"
)

// DepthMode selects the depth camera resolution and field of view.
type DepthMode int

const (
	DepthModeNFOVUnbinned DepthMode = iota // 640x576, 75°x65°
	DepthModeWFOVBinned                    // 512x512, 120°x120°
)

func (m DepthMode) String() string {
	switch m {
	case DepthModeNFOVUnbinned:
		return "NFOV_UNBINNED"
	case DepthModeWFOVBinned:
		return "WFOV_BINNED"
	default:
		return fmt.Sprintf("DepthMode(%d)", int(m))
	}
}

// Resolution returns the depth image width and height for the mode.
func (m DepthMode) Resolution() (width, height int) {
	switch m {
	case DepthModeWFOVBinned:
		return 512, 512
	default:
		return 640, 576
	}
}

// ProcessingMode selects the execution backend of the tracking engine.
type ProcessingMode int

const (
	ProcessingModeGPU ProcessingMode = iota
	ProcessingModeCPU
	ProcessingModeCUDA
	ProcessingModeTensorRT
	ProcessingModeDirectML
)

func (m ProcessingMode) String() string {
	switch m {
	case ProcessingModeGPU:
		return "GPU"
	case ProcessingModeCPU:
		return "CPU"
	case ProcessingModeCUDA:
		return "CUDA"
	case ProcessingModeTensorRT:
		return "TENSORRT"
	case ProcessingModeDirectML:
		return "DIRECTML"
	default:
		return fmt.Sprintf("ProcessingMode(%d)", int(m))
	}
}

// ConfidenceLevel is the tracker's reliability estimate for a joint.
// The levels are ordered, so comparisons such as c >= ConfidenceLow are valid.
type ConfidenceLevel int

const (
	ConfidenceNone ConfidenceLevel = iota
	ConfidenceLow
	ConfidenceMedium
	ConfidenceHigh
)

func (c ConfidenceLevel) String() string {
	switch c {
	case ConfidenceNone:
		return "none"
	case ConfidenceLow:
		return "low"
	case ConfidenceMedium:
		return "medium"
	case ConfidenceHigh:
		return "high"
	default:
		return fmt.Sprintf("ConfidenceLevel(%d)", int(c))
	}
}

// Float3 is a position in the depth camera frame, in millimetres.
type Float3 struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
	Z float32 `json:"z"`
}

// Quaternion is a joint orientation. W is the scalar part.
type Quaternion struct {
	W float32 `json:"w"`
	X float32 `json:"x"`
	Y float32 `json:"y"`
	Z float32 `json:"z"`
}

// IdentityQuaternion is the zero rotation.
var IdentityQuaternion = Quaternion{W: 1}

// Joint is one tracked joint of a skeleton.
type Joint struct {
	Position    Float3          `json:"position"`
	Orientation Quaternion      `json:"orientation"`
	Confidence  ConfidenceLevel `json:"confidence"`
}

// Skeleton holds every joint of one body, indexed by JointID.
type Skeleton struct {
	Joints [JointCount]Joint `json:"joints"`
}

// Body is a tracked person. ID is stable across frames while the person
// stays in view.
type Body struct {
	ID       uint32   `json:"id"`
	Skeleton Skeleton `json:"skeleton"`
}

// DepthImage is a 16-bit depth image in millimetres, row-major.
type DepthImage struct {
	Width  int
	Height int
	Pixels []uint16
}

// At returns the depth at (x, y).
func (d *DepthImage) At(x, y int) uint16 {
	return d.Pixels[y*d.Width+x]
}

// BodyIndexBackground marks pixels of the body index map that belong to no
// tracked body.
const BodyIndexBackground uint8 = 255

// BodyIndexMap labels each depth pixel with the index (not the ID) of the
// body that owns it, or BodyIndexBackground.
type BodyIndexMap struct {
	Width  int
	Height int
	Pixels []uint8
}

// Intrinsics is the pinhole model of the depth camera.
type Intrinsics struct {
	Fx float64 `json:"fx"`
	Fy float64 `json:"fy"`
	Cx float64 `json:"cx"`
	Cy float64 `json:"cy"`
}

// Calibration describes the depth camera the captures come from.
type Calibration struct {
	DepthMode  DepthMode  `json:"depth_mode"`
	Width      int        `json:"width"`
	Height     int        `json:"height"`
	Intrinsics Intrinsics `json:"intrinsics"`
}

// DefaultCalibration returns nominal factory intrinsics for a depth mode.
// Real devices report their own calibration; this is used by synthetic
// sources and recordings that carry none.
func DefaultCalibration(mode DepthMode) Calibration {
	w, h := mode.Resolution()
	f := 504.0
	if mode == DepthModeWFOVBinned {
		f = 252.0
	}
	return Calibration{
		DepthMode:  mode,
		Width:      w,
		Height:     h,
		Intrinsics: Intrinsics{Fx: f, Fy: f, Cx: float64(w) / 2, Cy: float64(h) / 2},
	}
}

// Unproject converts a depth pixel into a point in the camera frame, in
// millimetres. ok is false for invalid (zero) depth.
func (c Calibration) Unproject(x, y int, depth uint16) (p Float3, ok bool) {
	if depth == 0 || c.Intrinsics.Fx == 0 || c.Intrinsics.Fy == 0 {
		return Float3{}, false
	}
	z := float64(depth)
	return Float3{
		X: float32((float64(x) - c.Intrinsics.Cx) * z / c.Intrinsics.Fx),
		Y: float32((float64(y) - c.Intrinsics.Cy) * z / c.Intrinsics.Fy),
		Z: float32(z),
	}, true
}

// Capture is one frame from an input source.
//
// Bodies and BodyIndex are annotations carried by recordings and synthetic
// sources; hardware captures leave them empty and carry a driver handle in
// Native instead.
type Capture struct {
	Timestamp time.Duration
	Depth     *DepthImage

	Bodies    []Body
	BodyIndex *BodyIndexMap

	// Native is the driver handle for hardware captures.
	Native  any
	release func()
}

// SetReleaser installs the function Release calls. Sources that own driver
// resources use it to tie the capture's lifetime to the handle.
func (c *Capture) SetReleaser(f func()) {
	c.release = f
}

// Release returns driver resources held by the capture. It is safe to call
// more than once and on a nil capture.
func (c *Capture) Release() {
	if c == nil || c.release == nil {
		return
	}
	f := c.release
	c.release = nil
	f()
}

// BodyFrame is the tracker's result for one capture.
type BodyFrame struct {
	Timestamp time.Duration
	Bodies    []Body
	BodyIndex *BodyIndexMap
	Capture   *Capture

	release func()
}

// NumBodies returns the number of tracked bodies.
func (f *BodyFrame) NumBodies() int {
	if f == nil {
		return 0
	}
	return len(f.Bodies)
}

// BodyID returns the ID of the body at index i of the frame, as used by the
// body index map.
func (f *BodyFrame) BodyID(i int) uint32 {
	return f.Bodies[i].ID
}

// SetReleaser installs the function Release calls.
func (f *BodyFrame) SetReleaser(fn func()) {
	f.release = fn
}

// Release returns tracker resources held by the frame, including its
// reference to the originating capture.
func (f *BodyFrame) Release() {
	if f == nil {
		return
	}
	if f.release != nil {
		fn := f.release
		f.release = nil
		fn()
	}
	f.Capture.Release()
}
