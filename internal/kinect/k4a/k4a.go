//go:build k4a
// +build k4a

// Package k4a binds the Azure Kinect sensor and body tracking SDKs.
// It is only available when building with the 'k4a' build tag.
package k4a

/*
#cgo LDFLAGS: -lk4a -lk4arecord -lk4abt
#include <stdlib.h>
#include <string.h>
#include <k4a/k4a.h>
#include <k4arecord/playback.h>
#include <k4abt.h>

static k4a_device_configuration_t depth_only_config(k4a_depth_mode_t mode) {
	k4a_device_configuration_t c = K4A_DEVICE_CONFIG_INIT_DISABLE_ALL;
	c.depth_mode = mode;
	return c;
}

static k4abt_tracker_configuration_t tracker_config(k4abt_tracker_processing_mode_t mode, const char *model) {
	k4abt_tracker_configuration_t c = K4ABT_TRACKER_CONFIG_DEFAULT;
	c.processing_mode = mode;
	if (model != NULL) {
		c.model_path = model;
	}
	return c;
}

static void depth_intrinsics(k4a_calibration_t *cal, int *w, int *h, float *fx, float *fy, float *cx, float *cy) {
	k4a_calibration_camera_t *cam = &cal->depth_camera_calibration;
	*w = cam->resolution_width;
	*h = cam->resolution_height;
	*fx = cam->intrinsics.parameters.param.fx;
	*fy = cam->intrinsics.parameters.param.fy;
	*cx = cam->intrinsics.parameters.param.cx;
	*cy = cam->intrinsics.parameters.param.cy;
}

static void joint_values(k4abt_skeleton_t *s, int i, float *out, int *confidence) {
	k4abt_joint_t *j = &s->joints[i];
	out[0] = j->position.xyz.x;
	out[1] = j->position.xyz.y;
	out[2] = j->position.xyz.z;
	out[3] = j->orientation.wxyz.w;
	out[4] = j->orientation.wxyz.x;
	out[5] = j->orientation.wxyz.y;
	out[6] = j->orientation.wxyz.z;
	*confidence = (int)j->confidence_level;
}
*/
import "C"

import (
	"fmt"
	"log"
	"runtime"
	"time"
	"unsafe"

	"github.com/banshee-data/bodyviewer/internal/kinect"
)

// Available reports whether the SDK binding is compiled in.
const Available = true

func timeoutMillis(timeout time.Duration) C.int32_t {
	if timeout < 0 {
		return C.K4A_WAIT_INFINITE
	}
	return C.int32_t(timeout / time.Millisecond)
}

func depthMode(m kinect.DepthMode) C.k4a_depth_mode_t {
	if m == kinect.DepthModeWFOVBinned {
		return C.K4A_DEPTH_MODE_WFOV_2X2BINNED
	}
	return C.K4A_DEPTH_MODE_NFOV_UNBINNED
}

func depthModeFromNative(m C.k4a_depth_mode_t) kinect.DepthMode {
	if m == C.K4A_DEPTH_MODE_WFOV_2X2BINNED {
		return kinect.DepthModeWFOVBinned
	}
	return kinect.DepthModeNFOVUnbinned
}

func calibrationFromNative(cal *C.k4a_calibration_t) kinect.Calibration {
	var w, h C.int
	var fx, fy, cx, cy C.float
	C.depth_intrinsics(cal, &w, &h, &fx, &fy, &cx, &cy)
	return kinect.Calibration{
		DepthMode:  depthModeFromNative(cal.depth_mode),
		Width:      int(w),
		Height:     int(h),
		Intrinsics: kinect.Intrinsics{Fx: float64(fx), Fy: float64(fy), Cx: float64(cx), Cy: float64(cy)},
	}
}

// wrapCapture copies the depth image out of a native capture and ties the
// handle's lifetime to the returned Capture.
func wrapCapture(handle C.k4a_capture_t) *kinect.Capture {
	c := &kinect.Capture{
		Timestamp: -1,
		Native:    handle,
	}
	c.SetReleaser(func() { C.k4a_capture_release(handle) })

	img := C.k4a_capture_get_depth_image(handle)
	if img == nil {
		return c
	}
	defer C.k4a_image_release(img)

	w := int(C.k4a_image_get_width_pixels(img))
	h := int(C.k4a_image_get_height_pixels(img))
	buf := C.k4a_image_get_buffer(img)
	pixels := make([]uint16, w*h)
	copy(pixels, unsafe.Slice((*uint16)(unsafe.Pointer(buf)), w*h))
	c.Depth = &kinect.DepthImage{Width: w, Height: h, Pixels: pixels}
	c.Timestamp = time.Duration(C.k4a_image_get_device_timestamp_usec(img)) * time.Microsecond
	return c
}

// Device is an open Azure Kinect camera streaming depth only.
type Device struct {
	handle C.k4a_device_t
	cal    C.k4a_calibration_t
}

// OpenDevice opens the camera at index and starts the depth stream.
func OpenDevice(index int, mode kinect.DepthMode) (kinect.Source, error) {
	d := &Device{}
	if C.k4a_device_open(C.uint32_t(index), &d.handle) != C.K4A_RESULT_SUCCEEDED {
		return nil, fmt.Errorf("%w: open K4A device %d", kinect.ErrFailed, index)
	}

	config := C.depth_only_config(depthMode(mode))
	if C.k4a_device_get_calibration(d.handle, config.depth_mode, config.color_resolution, &d.cal) != C.K4A_RESULT_SUCCEEDED {
		C.k4a_device_close(d.handle)
		return nil, fmt.Errorf("%w: get depth camera calibration", kinect.ErrFailed)
	}
	if C.k4a_device_start_cameras(d.handle, &config) != C.K4A_RESULT_SUCCEEDED {
		C.k4a_device_close(d.handle)
		return nil, fmt.Errorf("%w: start K4A cameras", kinect.ErrFailed)
	}
	log.Printf("[K4A] device %d started in %s", index, mode)
	return d, nil
}

// Calibration returns the depth camera calibration.
func (d *Device) Calibration() kinect.Calibration {
	return calibrationFromNative(&d.cal)
}

// NextCapture reads the next capture from the camera.
func (d *Device) NextCapture(timeout time.Duration) (*kinect.Capture, error) {
	var handle C.k4a_capture_t
	switch C.k4a_device_get_capture(d.handle, &handle, timeoutMillis(timeout)) {
	case C.K4A_WAIT_RESULT_SUCCEEDED:
		return wrapCapture(handle), nil
	case C.K4A_WAIT_RESULT_TIMEOUT:
		return nil, kinect.ErrTimeout
	default:
		return nil, fmt.Errorf("%w: get depth capture", kinect.ErrFailed)
	}
}

// Close stops the cameras and closes the device.
func (d *Device) Close() error {
	C.k4a_device_stop_cameras(d.handle)
	C.k4a_device_close(d.handle)
	return nil
}

// Playback reads an MKV recording made by the sensor SDK.
type Playback struct {
	handle C.k4a_playback_t
	cal    C.k4a_calibration_t
}

// OpenPlayback opens an MKV recording.
func OpenPlayback(path string) (kinect.Source, error) {
	cpath := C.CString(path)
	defer C.free(unsafe.Pointer(cpath))

	p := &Playback{}
	if C.k4a_playback_open(cpath, &p.handle) != C.K4A_RESULT_SUCCEEDED {
		return nil, fmt.Errorf("%w: open recording at %s", kinect.ErrFailed, path)
	}
	if C.k4a_playback_get_calibration(p.handle, &p.cal) != C.K4A_RESULT_SUCCEEDED {
		C.k4a_playback_close(p.handle)
		return nil, fmt.Errorf("%w: get calibration from recording", kinect.ErrFailed)
	}
	log.Printf("[K4A] playback opened: %s", path)
	return p, nil
}

// Calibration returns the calibration stored in the recording.
func (p *Playback) Calibration() kinect.Calibration {
	return calibrationFromNative(&p.cal)
}

// NextCapture returns the next capture, or kinect.ErrEOF at the end of the
// file. Playback never waits so the timeout is ignored.
func (p *Playback) NextCapture(time.Duration) (*kinect.Capture, error) {
	var handle C.k4a_capture_t
	switch C.k4a_playback_get_next_capture(p.handle, &handle) {
	case C.K4A_STREAM_RESULT_SUCCEEDED:
		return wrapCapture(handle), nil
	case C.K4A_STREAM_RESULT_EOF:
		return nil, kinect.ErrEOF
	default:
		return nil, fmt.Errorf("%w: get next capture", kinect.ErrFailed)
	}
}

// Close closes the recording.
func (p *Playback) Close() error {
	C.k4a_playback_close(p.handle)
	return nil
}

// Tracker runs the body tracking SDK.
type Tracker struct {
	handle C.k4abt_tracker_t
}

func processingMode(m kinect.ProcessingMode) C.k4abt_tracker_processing_mode_t {
	switch m {
	case kinect.ProcessingModeCPU:
		return C.K4ABT_TRACKER_PROCESSING_MODE_CPU
	case kinect.ProcessingModeCUDA:
		return C.K4ABT_TRACKER_PROCESSING_MODE_GPU_CUDA
	case kinect.ProcessingModeTensorRT:
		return C.K4ABT_TRACKER_PROCESSING_MODE_GPU_TENSORRT
	case kinect.ProcessingModeDirectML:
		return C.K4ABT_TRACKER_PROCESSING_MODE_GPU_DIRECTML
	default:
		return C.K4ABT_TRACKER_PROCESSING_MODE_GPU
	}
}

// NewTracker creates a body tracker for a device or playback source.
func NewTracker(src kinect.Source, cfg kinect.TrackerConfig) (kinect.Tracker, error) {
	var cal *C.k4a_calibration_t
	switch s := src.(type) {
	case *Device:
		cal = &s.cal
	case *Playback:
		cal = &s.cal
	default:
		return nil, fmt.Errorf("%w: %T has no sensor calibration", kinect.ErrFailed, src)
	}

	var model *C.char
	if cfg.ModelPath != "" {
		model = C.CString(cfg.ModelPath)
		// The SDK reads the path during create only.
		defer C.free(unsafe.Pointer(model))
	}

	t := &Tracker{}
	if C.k4abt_tracker_create(cal, C.tracker_config(processingMode(cfg.ProcessingMode), model), &t.handle) != C.K4A_RESULT_SUCCEEDED {
		return nil, fmt.Errorf("%w: body tracker initialization", kinect.ErrFailed)
	}
	runtime.KeepAlive(src)
	log.Printf("[K4A] body tracker created (%s)", cfg.ProcessingMode)
	return t, nil
}

// EnqueueCapture hands a hardware capture to the tracker.
func (t *Tracker) EnqueueCapture(c *kinect.Capture, timeout time.Duration) error {
	handle, ok := c.Native.(C.k4a_capture_t)
	if !ok || c.Depth == nil {
		return fmt.Errorf("%w: capture has no native depth image", kinect.ErrFailed)
	}
	switch C.k4abt_tracker_enqueue_capture(t.handle, handle, timeoutMillis(timeout)) {
	case C.K4A_WAIT_RESULT_SUCCEEDED:
		return nil
	case C.K4A_WAIT_RESULT_TIMEOUT:
		return kinect.ErrTimeout
	default:
		return fmt.Errorf("%w: add capture to tracker process queue", kinect.ErrFailed)
	}
}

// PopResult returns the next body frame.
func (t *Tracker) PopResult(timeout time.Duration) (*kinect.BodyFrame, error) {
	var frame C.k4abt_frame_t
	switch C.k4abt_tracker_pop_result(t.handle, &frame, timeoutMillis(timeout)) {
	case C.K4A_WAIT_RESULT_SUCCEEDED:
	case C.K4A_WAIT_RESULT_TIMEOUT:
		return nil, kinect.ErrTimeout
	default:
		return nil, fmt.Errorf("%w: pop body frame result", kinect.ErrFailed)
	}

	n := int(C.k4abt_frame_get_num_bodies(frame))
	bf := &kinect.BodyFrame{
		Timestamp: time.Duration(C.k4abt_frame_get_device_timestamp_usec(frame)) * time.Microsecond,
		Bodies:    make([]kinect.Body, n),
	}
	var values [7]C.float
	for i := 0; i < n; i++ {
		var skel C.k4abt_skeleton_t
		if C.k4abt_frame_get_body_skeleton(frame, C.uint32_t(i), &skel) != C.K4A_RESULT_SUCCEEDED {
			continue
		}
		bf.Bodies[i].ID = uint32(C.k4abt_frame_get_body_id(frame, C.uint32_t(i)))
		for j := 0; j < kinect.JointCount; j++ {
			var conf C.int
			C.joint_values(&skel, C.int(j), &values[0], &conf)
			bf.Bodies[i].Skeleton.Joints[j] = kinect.Joint{
				Position:    kinect.Float3{X: float32(values[0]), Y: float32(values[1]), Z: float32(values[2])},
				Orientation: kinect.Quaternion{W: float32(values[3]), X: float32(values[4]), Y: float32(values[5]), Z: float32(values[6])},
				Confidence:  kinect.ConfidenceLevel(conf),
			}
		}
	}

	if img := C.k4abt_frame_get_body_index_map(frame); img != nil {
		w := int(C.k4a_image_get_width_pixels(img))
		h := int(C.k4a_image_get_height_pixels(img))
		pixels := make([]uint8, w*h)
		copy(pixels, unsafe.Slice((*uint8)(unsafe.Pointer(C.k4a_image_get_buffer(img))), w*h))
		bf.BodyIndex = &kinect.BodyIndexMap{Width: w, Height: h, Pixels: pixels}
		C.k4a_image_release(img)
	}

	if capture := C.k4abt_frame_get_capture(frame); capture != nil {
		bf.Capture = wrapCapture(capture)
	}
	bf.SetReleaser(func() { C.k4abt_frame_release(frame) })
	return bf, nil
}

// Shutdown stops the tracker; pending PopResult calls return failure.
func (t *Tracker) Shutdown() {
	C.k4abt_tracker_shutdown(t.handle)
}

// Destroy releases the tracker.
func (t *Tracker) Destroy() {
	C.k4abt_tracker_destroy(t.handle)
}
