package pipeline

import (
	"io"
	"os"

	"github.com/banshee-data/bodyviewer/internal/settings"
	"github.com/banshee-data/bodyviewer/internal/viewer"
)

// DisplayState holds the flags the key callback changes. It is only touched
// on the loop goroutine: the window runs callbacks inside Render.
type DisplayState struct {
	Running     bool
	Layout      viewer.Layout
	JointFrames bool

	help io.Writer
}

// NewDisplayState returns the initial state: running, main view only, joint
// frames hidden. Help text goes to stdout.
func NewDisplayState() *DisplayState {
	return &DisplayState{
		Running: true,
		Layout:  viewer.LayoutOnlyMainView,
		help:    os.Stdout,
	}
}

// SetHelpOutput redirects the text printed for the H key.
func (s *DisplayState) SetHelpOutput(w io.Writer) {
	s.help = w
}

// ProcessKey applies a key press.
func (s *DisplayState) ProcessKey(k viewer.Key) {
	switch k {
	case viewer.KeyEscape:
		s.Running = false
	case viewer.KeyK:
		s.Layout = s.Layout.Next()
	case viewer.KeyB:
		s.JointFrames = !s.JointFrames
	case viewer.KeyH:
		settings.PrintAppUsage(s.help)
	}
}

// Close stops the loop, as when the window is closed.
func (s *DisplayState) Close() {
	s.Running = false
}

// Apply pushes the layout and joint-frame flag to the window.
func (s *DisplayState) Apply(w Window) {
	w.SetLayout3d(s.Layout)
	w.SetJointFrameVisualization(s.JointFrames)
}
