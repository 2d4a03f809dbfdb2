package kinect

// JointID indexes Skeleton.Joints. The order matches the tracking SDK.
type JointID int

const (
	JointPelvis JointID = iota
	JointSpineNavel
	JointSpineChest
	JointNeck
	JointClavicleLeft
	JointShoulderLeft
	JointElbowLeft
	JointWristLeft
	JointHandLeft
	JointHandTipLeft
	JointThumbLeft
	JointClavicleRight
	JointShoulderRight
	JointElbowRight
	JointWristRight
	JointHandRight
	JointHandTipRight
	JointThumbRight
	JointHipLeft
	JointKneeLeft
	JointAnkleLeft
	JointFootLeft
	JointHipRight
	JointKneeRight
	JointAnkleRight
	JointFootRight
	JointHead
	JointNose
	JointEyeLeft
	JointEarLeft
	JointEyeRight
	JointEarRight

	// JointCount is the number of joints in a skeleton.
	JointCount = iota
)

// JointNames maps every joint to the name used in published keys. The
// spellings are part of the key-value schema consumed by other processes
// and must not change ("spine_naval" included).
var JointNames = [JointCount]string{
	JointPelvis:        "pelvis",
	JointSpineNavel:    "spine_naval",
	JointSpineChest:    "spine_chest",
	JointNeck:          "neck",
	JointClavicleLeft:  "clavicle_left",
	JointShoulderLeft:  "shoulder_left",
	JointElbowLeft:     "elbow_left",
	JointWristLeft:     "wrist_left",
	JointHandLeft:      "hand_left",
	JointHandTipLeft:   "handtip_left",
	JointThumbLeft:     "thumb_left",
	JointClavicleRight: "clavicle_right",
	JointShoulderRight: "shoulder_right",
	JointElbowRight:    "elbow_right",
	JointWristRight:    "wrist_right",
	JointHandRight:     "hand_right",
	JointHandTipRight:  "handtip_right",
	JointThumbRight:    "thumb_right",
	JointHipLeft:       "hip_left",
	JointKneeLeft:      "knee_left",
	JointAnkleLeft:     "ankle_left",
	JointFootLeft:      "foot_left",
	JointHipRight:      "hip_right",
	JointKneeRight:     "knee_right",
	JointAnkleRight:    "ankle_right",
	JointFootRight:     "foot_right",
	JointHead:          "head",
	JointNose:          "nose",
	JointEyeLeft:       "eye_left",
	JointEarLeft:       "ear_left",
	JointEyeRight:      "eye_right",
	JointEarRight:      "ear_right",
}

func (j JointID) String() string {
	if j < 0 || int(j) >= JointCount {
		return "unknown"
	}
	return JointNames[j]
}

// JointByName looks up a joint by its published name.
func JointByName(name string) (JointID, bool) {
	for i, n := range JointNames {
		if n == name {
			return JointID(i), true
		}
	}
	return 0, false
}

// Bone is a pair of anatomically adjacent joints.
type Bone struct {
	From JointID
	To   JointID
}

// Bones is the skeleton topology drawn by the viewer.
var Bones = []Bone{
	{JointSpineChest, JointSpineNavel},
	{JointSpineNavel, JointPelvis},
	{JointSpineChest, JointNeck},
	{JointNeck, JointHead},
	{JointHead, JointNose},

	{JointSpineChest, JointClavicleLeft},
	{JointClavicleLeft, JointShoulderLeft},
	{JointShoulderLeft, JointElbowLeft},
	{JointElbowLeft, JointWristLeft},
	{JointWristLeft, JointHandLeft},
	{JointHandLeft, JointHandTipLeft},
	{JointWristLeft, JointThumbLeft},

	{JointPelvis, JointHipLeft},
	{JointHipLeft, JointKneeLeft},
	{JointKneeLeft, JointAnkleLeft},
	{JointAnkleLeft, JointFootLeft},

	{JointNose, JointEyeLeft},
	{JointEyeLeft, JointEarLeft},

	{JointSpineChest, JointClavicleRight},
	{JointClavicleRight, JointShoulderRight},
	{JointShoulderRight, JointElbowRight},
	{JointElbowRight, JointWristRight},
	{JointWristRight, JointHandRight},
	{JointHandRight, JointHandTipRight},
	{JointWristRight, JointThumbRight},

	{JointPelvis, JointHipRight},
	{JointHipRight, JointKneeRight},
	{JointKneeRight, JointAnkleRight},
	{JointAnkleRight, JointFootRight},

	{JointNose, JointEyeRight},
	{JointEyeRight, JointEarRight},
}
