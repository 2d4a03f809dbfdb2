package pipeline

import (
	"github.com/banshee-data/bodyviewer/internal/kinect"
	"github.com/banshee-data/bodyviewer/internal/viewer"
)

const (
	fullAlpha  = 0.4
	fadedAlpha = 0.1
)

// Window is the presentation sink the loop draws into. *viewer.Window
// implements it.
type Window interface {
	UpdatePointClouds(depth *kinect.DepthImage, colors []viewer.Color)
	CleanJointsAndBones()
	AddJoint(position kinect.Float3, orientation kinect.Quaternion, color viewer.Color)
	AddBone(from, to kinect.Float3, color viewer.Color)
	SetLayout3d(l viewer.Layout)
	SetJointFrameVisualization(on bool)
	Render()
	Delete()
}

var _ Window = (*viewer.Window)(nil)

// VisualizeResult draws one tracker result: the depth point cloud coloured
// by body ownership, then the joints and bones of every body.
func VisualizeResult(frame *kinect.BodyFrame, w Window) {
	if frame.Capture != nil && frame.Capture.Depth != nil {
		depth := frame.Capture.Depth
		w.UpdatePointClouds(depth, pointColors(frame, depth))
	}

	w.CleanJointsAndBones()
	for i := 0; i < frame.NumBodies(); i++ {
		body := &frame.Bodies[i]
		base := viewer.BodyColor(body.ID)
		full := base.WithAlpha(fullAlpha)
		faded := base.WithAlpha(fadedAlpha)
		joints := &body.Skeleton.Joints

		for j := range joints {
			joint := &joints[j]
			if joint.Confidence < kinect.ConfidenceLow {
				continue
			}
			c := faded
			if joint.Confidence >= kinect.ConfidenceMedium {
				c = full
			}
			w.AddJoint(joint.Position, joint.Orientation, c)
		}

		for _, bone := range kinect.Bones {
			a, b := &joints[bone.From], &joints[bone.To]
			if a.Confidence < kinect.ConfidenceLow || b.Confidence < kinect.ConfidenceLow {
				continue
			}
			c := faded
			if a.Confidence >= kinect.ConfidenceMedium && b.Confidence >= kinect.ConfidenceMedium {
				c = full
			}
			w.AddBone(a.Position, b.Position, c)
		}
	}
}

// pointColors returns one colour per depth pixel: white for background,
// the owning body's colour otherwise. The body index map stores indices
// into frame.Bodies.
func pointColors(frame *kinect.BodyFrame, depth *kinect.DepthImage) []viewer.Color {
	colors := make([]viewer.Color, depth.Width*depth.Height)
	for i := range colors {
		colors[i] = viewer.White
	}
	index := frame.BodyIndex
	if index == nil || index.Width != depth.Width || index.Height != depth.Height {
		return colors
	}
	for i, idx := range index.Pixels {
		if idx == kinect.BodyIndexBackground || int(idx) >= frame.NumBodies() {
			continue
		}
		colors[i] = viewer.BodyColor(frame.BodyID(int(idx)))
	}
	return colors
}
