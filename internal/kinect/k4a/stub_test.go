//go:build !k4a
// +build !k4a

package k4a

import (
	"errors"
	"testing"

	"github.com/banshee-data/bodyviewer/internal/kinect"
)

func TestStubsReturnUnavailable(t *testing.T) {
	if Available {
		t.Fatal("Available = true without the k4a tag")
	}
	if _, err := OpenDevice(0, kinect.DepthModeNFOVUnbinned); !errors.Is(err, kinect.ErrUnavailable) {
		t.Errorf("OpenDevice() error = %v, want ErrUnavailable", err)
	}
	if _, err := OpenPlayback("capture.mkv"); !errors.Is(err, kinect.ErrUnavailable) {
		t.Errorf("OpenPlayback() error = %v, want ErrUnavailable", err)
	}
	if _, err := NewTracker(nil, kinect.TrackerConfig{}); !errors.Is(err, kinect.ErrUnavailable) {
		t.Errorf("NewTracker() error = %v, want ErrUnavailable", err)
	}
}
