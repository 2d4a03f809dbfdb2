//go:build !k4a
// +build !k4a

// Package k4a binds the Azure Kinect sensor and body tracking SDKs.
// Build with -tags=k4a to enable it; without the tag every entry point
// returns kinect.ErrUnavailable.
package k4a

import (
	"fmt"

	"github.com/banshee-data/bodyviewer/internal/kinect"
)

// Available reports whether the SDK binding is compiled in.
const Available = false

func unavailable(what string) error {
	return fmt.Errorf("%w: %s requires building with -tags=k4a", kinect.ErrUnavailable, what)
}

// OpenDevice is a stub implementation when SDK support is disabled.
func OpenDevice(index int, mode kinect.DepthMode) (kinect.Source, error) {
	return nil, unavailable("K4A device")
}

// OpenPlayback is a stub implementation when SDK support is disabled.
func OpenPlayback(path string) (kinect.Source, error) {
	return nil, unavailable("MKV playback of " + path)
}

// NewTracker is a stub implementation when SDK support is disabled.
func NewTracker(src kinect.Source, cfg kinect.TrackerConfig) (kinect.Tracker, error) {
	return nil, unavailable("body tracker")
}
