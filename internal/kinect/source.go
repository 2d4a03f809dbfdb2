package kinect

import (
	"errors"
	"time"
)

// WaitInfinite makes a blocking call wait until it can complete. A timeout
// of zero polls and returns ErrTimeout immediately if nothing is ready.
const WaitInfinite time.Duration = -1

var (
	// ErrTimeout is returned when a call could not complete within its
	// timeout. For zero-timeout polls it is the normal "nothing yet" result.
	ErrTimeout = errors.New("kinect: wait timed out")
	// ErrEOF is returned by playback sources at the end of a recording.
	ErrEOF = errors.New("kinect: end of stream")
	// ErrFailed is returned by trackers and devices on an unrecoverable failure.
	ErrFailed = errors.New("kinect: operation failed")
	// ErrUnavailable is returned when a backend is not compiled in or no
	// device is attached.
	ErrUnavailable = errors.New("kinect: backend unavailable")
)

// Source produces captures. Device sources are polled with a zero timeout;
// playback sources are read with WaitInfinite.
type Source interface {
	// Calibration returns the calibration of the depth camera.
	Calibration() Calibration
	// NextCapture returns the next capture. The caller owns the capture and
	// must Release it.
	NextCapture(timeout time.Duration) (*Capture, error)
	// Close stops the source and releases the device or file.
	Close() error
}

// Tracker runs body tracking over captures using an enqueue/pop handshake:
// each enqueued capture eventually yields one BodyFrame.
type Tracker interface {
	// EnqueueCapture submits a capture. The tracker takes its own reference,
	// so the caller may Release the capture as soon as this returns.
	EnqueueCapture(c *Capture, timeout time.Duration) error
	// PopResult returns the oldest completed result. The caller owns the
	// frame and must Release it.
	PopResult(timeout time.Duration) (*BodyFrame, error)
	// Shutdown stops accepting captures and unblocks pending calls.
	Shutdown()
	// Destroy releases the tracker. It must follow Shutdown.
	Destroy()
}

// TrackerConfig configures a Tracker.
type TrackerConfig struct {
	ProcessingMode ProcessingMode
	ModelPath      string
	// QueueSize bounds the number of captures waiting for processing.
	QueueSize int
}
