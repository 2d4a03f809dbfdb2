package viewer

import (
	"gonum.org/v1/gonum/num/quat"

	"github.com/banshee-data/bodyviewer/internal/kinect"
)

// jointAxisMM is the length of the axes drawn for joint frames.
const jointAxisMM = 60

// PointCloud is the decimated point cloud of the last depth image.
// Positions are x,y,z triples in millimetres; Colors are RGBA bytes, one
// group of four per point (JSON-encoded as base64).
type PointCloud struct {
	Count     int       `json:"count"`
	Positions []float32 `json:"positions"`
	Colors    []uint8   `json:"colors"`
}

// JointMarker is a joint drawn as a sphere, with its local axes when joint
// frames are enabled.
type JointMarker struct {
	Position [3]float32     `json:"p"`
	Color    [4]uint8       `json:"c"`
	Axes     *[3][3]float32 `json:"axes,omitempty"`
}

// BoneSegment is a bone drawn as a line between two joints.
type BoneSegment struct {
	From  [3]float32 `json:"a"`
	To    [3]float32 `json:"b"`
	Color [4]uint8   `json:"c"`
}

// Scene is the state sent to clients on every render.
type Scene struct {
	Frame       uint64        `json:"frame"`
	Layout      string        `json:"layout"`
	JointFrames bool          `json:"joint_frames"`
	Points      PointCloud    `json:"points"`
	Joints      []JointMarker `json:"joints"`
	Bones       []BoneSegment `json:"bones"`
}

func vec(p kinect.Float3) [3]float32 {
	return [3]float32{p.X, p.Y, p.Z}
}

// buildPointCloud unprojects every stride-th depth pixel. Pixels with no
// depth are dropped.
func buildPointCloud(cal kinect.Calibration, depth *kinect.DepthImage, colors []Color, stride int) PointCloud {
	if stride < 1 {
		stride = 1
	}
	pc := PointCloud{}
	if depth == nil {
		return pc
	}
	n := (depth.Width/stride + 1) * (depth.Height/stride + 1)
	pc.Positions = make([]float32, 0, 3*n)
	pc.Colors = make([]uint8, 0, 4*n)

	for y := 0; y < depth.Height; y += stride {
		for x := 0; x < depth.Width; x += stride {
			i := y*depth.Width + x
			p, ok := cal.Unproject(x, y, depth.Pixels[i])
			if !ok {
				continue
			}
			c := White
			if i < len(colors) {
				c = colors[i]
			}
			rgba := c.RGBA8()
			pc.Positions = append(pc.Positions, p.X, p.Y, p.Z)
			pc.Colors = append(pc.Colors, rgba[:]...)
			pc.Count++
		}
	}
	return pc
}

// jointAxes returns the joint's local x, y and z axes scaled for display.
func jointAxes(q kinect.Quaternion) [3][3]float32 {
	r := quat.Number{Real: float64(q.W), Imag: float64(q.X), Jmag: float64(q.Y), Kmag: float64(q.Z)}
	if a := quat.Abs(r); a > 0 {
		r = quat.Scale(1/a, r)
	} else {
		r = quat.Number{Real: 1}
	}
	rotate := func(v quat.Number) [3]float32 {
		out := quat.Mul(quat.Mul(r, v), quat.Conj(r))
		return [3]float32{float32(out.Imag * jointAxisMM), float32(out.Jmag * jointAxisMM), float32(out.Kmag * jointAxisMM)}
	}
	return [3][3]float32{
		rotate(quat.Number{Imag: 1}),
		rotate(quat.Number{Jmag: 1}),
		rotate(quat.Number{Kmag: 1}),
	}
}
