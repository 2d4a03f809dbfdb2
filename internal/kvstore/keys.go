package kvstore

import (
	"github.com/banshee-data/bodyviewer/internal/kinect"
)

// KeySet holds the registered key names for every joint.
type KeySet struct {
	Position    [kinect.JointCount]string
	Orientation [kinect.JointCount]string
}

// NewKeySet builds the key names under the given prefix, e.g.
// "kinect::pos::pelvis" and "kinect::ori::pelvis".
func NewKeySet(prefix string) KeySet {
	var ks KeySet
	for i, name := range kinect.JointNames {
		ks.Position[i] = prefix + "::pos::" + name
		ks.Orientation[i] = prefix + "::ori::" + name
	}
	return ks
}

// All returns every key, positions first, in joint order.
func (ks KeySet) All() []string {
	keys := make([]string, 0, 2*kinect.JointCount)
	keys = append(keys, ks.Position[:]...)
	keys = append(keys, ks.Orientation[:]...)
	return keys
}
