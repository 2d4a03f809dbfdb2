// Package kvstore publishes the tracked skeleton to a key-value store.
//
// One body per iteration is copied into a Record (a position vector and a
// rotation matrix per joint) and written under fixed keys of the form
// "<prefix>::pos::<joint>" and "<prefix>::ori::<joint>".
package kvstore

import (
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/bodyviewer/internal/kinect"
)

// Mat3 is a 3×3 matrix in row-major order.
type Mat3 [9]float64

// Identity3 is the 3×3 identity matrix.
var Identity3 = Mat3{1, 0, 0, 0, 1, 0, 0, 0, 1}

// At returns the element at row i, column j.
func (m Mat3) At(i, j int) float64 {
	return m[i*3+j]
}

// Rows returns the matrix as nested rows.
func (m Mat3) Rows() [3][3]float64 {
	return [3][3]float64{
		{m[0], m[1], m[2]},
		{m[3], m[4], m[5]},
		{m[6], m[7], m[8]},
	}
}

// Record is the published state of one skeleton. Positions start at zero and
// orientations at identity until the first body is seen.
type Record struct {
	Positions    [kinect.JointCount]r3.Vec
	Orientations [kinect.JointCount]Mat3
}

// NewRecord returns a record in its initial state.
func NewRecord() *Record {
	r := &Record{}
	for i := range r.Orientations {
		r.Orientations[i] = Identity3
	}
	return r
}

// Update overwrites every joint of the record from the skeleton.
func (r *Record) Update(s *kinect.Skeleton) {
	for i := range s.Joints {
		j := &s.Joints[i]
		r.Positions[i] = r3.Vec{
			X: float64(j.Position.X),
			Y: float64(j.Position.Y),
			Z: float64(j.Position.Z),
		}
		r.Orientations[i] = RotationMatrix(j.Orientation)
	}
}

// RotationMatrix converts a joint orientation into a rotation matrix. The
// quaternion is normalised first; a zero quaternion maps to identity.
func RotationMatrix(o kinect.Quaternion) Mat3 {
	q := quat.Number{
		Real: float64(o.W),
		Imag: float64(o.X),
		Jmag: float64(o.Y),
		Kmag: float64(o.Z),
	}
	n := quat.Abs(q)
	if n == 0 {
		return Identity3
	}
	q = quat.Scale(1/n, q)

	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag
	return Mat3{
		1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y),
		2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x),
		2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y),
	}
}
