// Package tracking provides a pure-Go kinect.Tracker.
//
// QueueTracker reproduces the tracking SDK's enqueue/pop handshake with two
// bounded queues and a worker goroutine. Inference is delegated to an
// Estimator; the default one passes through the skeleton annotations carried
// by recordings and synthetic captures, which lets the viewer run end to end
// without the native SDK.
package tracking

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/bodyviewer/internal/kinect"
	"github.com/banshee-data/bodyviewer/internal/monitoring"
)

// Estimator turns a capture into a body frame.
type Estimator func(c *kinect.Capture) (*kinect.BodyFrame, error)

// ErrNoDepth is returned when a capture without a depth image is enqueued.
var ErrNoDepth = errors.New("capture has no depth image")

// Annotations is the default Estimator. It copies the bodies and body index
// map embedded in the capture; a capture without annotations yields a frame
// with no bodies.
func Annotations(c *kinect.Capture) (*kinect.BodyFrame, error) {
	bodies := make([]kinect.Body, len(c.Bodies))
	copy(bodies, c.Bodies)
	return &kinect.BodyFrame{
		Timestamp: c.Timestamp,
		Bodies:    bodies,
		BodyIndex: c.BodyIndex,
		Capture:   c,
	}, nil
}

type result struct {
	frame *kinect.BodyFrame
	err   error
}

// QueueTracker is a kinect.Tracker backed by bounded channels.
type QueueTracker struct {
	estimate Estimator
	input    chan *kinect.Capture
	results  chan result

	shutdownOnce sync.Once
	done         chan struct{}
	wg           sync.WaitGroup

	enqueued  atomic.Uint64
	processed atomic.Uint64
}

// NewQueueTracker starts a tracker. A nil estimator uses Annotations.
func NewQueueTracker(cfg kinect.TrackerConfig, estimate Estimator) *QueueTracker {
	size := cfg.QueueSize
	if size < 1 {
		size = 1
	}
	if estimate == nil {
		estimate = Annotations
	}
	t := &QueueTracker{
		estimate: estimate,
		input:    make(chan *kinect.Capture, size),
		results:  make(chan result, size),
		done:     make(chan struct{}),
	}
	t.wg.Add(1)
	go t.run()
	return t
}

func (t *QueueTracker) run() {
	defer t.wg.Done()
	for {
		select {
		case <-t.done:
			return
		case c := <-t.input:
			frame, err := t.estimate(c)
			t.processed.Add(1)
			select {
			case t.results <- result{frame: frame, err: err}:
			case <-t.done:
				return
			}
		}
	}
}

// EnqueueCapture submits a capture for tracking. With a zero timeout a full
// queue returns kinect.ErrTimeout immediately.
func (t *QueueTracker) EnqueueCapture(c *kinect.Capture, timeout time.Duration) error {
	if c == nil || c.Depth == nil {
		return fmt.Errorf("%w: %w", kinect.ErrFailed, ErrNoDepth)
	}
	select {
	case <-t.done:
		return fmt.Errorf("%w: tracker is shut down", kinect.ErrFailed)
	default:
	}

	switch {
	case timeout == 0:
		select {
		case t.input <- c:
		default:
			return kinect.ErrTimeout
		}
	case timeout < 0:
		select {
		case t.input <- c:
		case <-t.done:
			return fmt.Errorf("%w: tracker is shut down", kinect.ErrFailed)
		}
	default:
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case t.input <- c:
		case <-timer.C:
			return kinect.ErrTimeout
		case <-t.done:
			return fmt.Errorf("%w: tracker is shut down", kinect.ErrFailed)
		}
	}
	t.enqueued.Add(1)
	return nil
}

// PopResult returns the oldest result. With a zero timeout an empty queue
// returns kinect.ErrTimeout immediately.
func (t *QueueTracker) PopResult(timeout time.Duration) (*kinect.BodyFrame, error) {
	var r result
	switch {
	case timeout == 0:
		select {
		case r = <-t.results:
		default:
			return nil, kinect.ErrTimeout
		}
	case timeout < 0:
		select {
		case r = <-t.results:
		case <-t.done:
			return nil, fmt.Errorf("%w: tracker is shut down", kinect.ErrFailed)
		}
	default:
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case r = <-t.results:
		case <-timer.C:
			return nil, kinect.ErrTimeout
		case <-t.done:
			return nil, fmt.Errorf("%w: tracker is shut down", kinect.ErrFailed)
		}
	}
	if r.err != nil {
		return nil, fmt.Errorf("%w: %w", kinect.ErrFailed, r.err)
	}
	return r.frame, nil
}

// Shutdown stops the worker and unblocks pending calls.
func (t *QueueTracker) Shutdown() {
	t.shutdownOnce.Do(func() {
		close(t.done)
	})
	t.wg.Wait()
}

// Destroy drops any queued captures and results.
func (t *QueueTracker) Destroy() {
	t.Shutdown()
	for {
		select {
		case c := <-t.input:
			c.Release()
		case r := <-t.results:
			r.frame.Release()
		default:
			monitoring.Debugf("[Tracker] destroyed after %d enqueued, %d processed", t.enqueued.Load(), t.processed.Load())
			return
		}
	}
}

// Stats returns the number of captures enqueued and processed.
func (t *QueueTracker) Stats() (enqueued, processed uint64) {
	return t.enqueued.Load(), t.processed.Load()
}
