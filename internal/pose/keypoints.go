// Package pose models per-frame body keypoint estimates produced by an
// external pose-estimation model, and prepares them for kinematic analysis.
package pose

import "math"

// Joint identifies a named body landmark.
type Joint string

// Joint names follow the COCO-style landmark set used by the upstream
// pose models.
const (
	Nose          Joint = "nose"
	LeftShoulder  Joint = "left_shoulder"
	RightShoulder Joint = "right_shoulder"
	LeftElbow     Joint = "left_elbow"
	RightElbow    Joint = "right_elbow"
	LeftWrist     Joint = "left_wrist"
	RightWrist    Joint = "right_wrist"
	LeftHip       Joint = "left_hip"
	RightHip      Joint = "right_hip"
	LeftKnee      Joint = "left_knee"
	RightKnee     Joint = "right_knee"
	LeftAnkle     Joint = "left_ankle"
	RightAnkle    Joint = "right_ankle"
	LeftHeel      Joint = "left_heel"
	RightHeel     Joint = "right_heel"
	LeftFootIndex Joint = "left_foot_index"
	RightFootTip  Joint = "right_foot_index"
)

// CoreJoints is the minimum landmark set every supported pose model emits.
var CoreJoints = []Joint{
	Nose,
	LeftShoulder, RightShoulder,
	LeftHip, RightHip,
	LeftKnee, RightKnee,
	LeftAnkle, RightAnkle,
}

// Keypoint is a single landmark estimate in pixel coordinates.
type Keypoint struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Confidence float64 `json:"confidence"` // [0, 1]
}

// Frame is one pose observation. Frames are immutable once produced;
// the normalizer returns new frames rather than mutating inputs.
type Frame struct {
	Index     uint64             `json:"frame_index"`
	Timestamp float64            `json:"timestamp"` // seconds, monotonically increasing
	Joints    map[Joint]Keypoint `json:"joints"`
}

// Get returns the keypoint for a joint and whether it is present.
func (f *Frame) Get(j Joint) (Keypoint, bool) {
	kp, ok := f.Joints[j]
	return kp, ok
}

// MidX returns the horizontal midpoint of two joints.
// The second return is false if either joint is missing.
func (f *Frame) MidX(a, b Joint) (float64, bool) {
	ka, oka := f.Joints[a]
	kb, okb := f.Joints[b]
	if !oka || !okb {
		return 0, false
	}
	return (ka.X + kb.X) / 2, true
}

// MidY returns the vertical midpoint of two joints.
func (f *Frame) MidY(a, b Joint) (float64, bool) {
	ka, oka := f.Joints[a]
	kb, okb := f.Joints[b]
	if !oka || !okb {
		return 0, false
	}
	return (ka.Y + kb.Y) / 2, true
}

// ForwardX returns the forward-most (largest X) of two joints, used for
// jump and reach measurements where the leading limb defines the mark.
func (f *Frame) ForwardX(a, b Joint) (float64, bool) {
	ka, oka := f.Joints[a]
	kb, okb := f.Joints[b]
	if !oka && !okb {
		return 0, false
	}
	if !okb || (oka && ka.X > kb.X) {
		return ka.X, true
	}
	return kb.X, true
}

// Distance returns the Euclidean pixel distance between two joints.
func (f *Frame) Distance(a, b Joint) (float64, bool) {
	ka, oka := f.Joints[a]
	kb, okb := f.Joints[b]
	if !oka || !okb {
		return 0, false
	}
	return math.Hypot(kb.X-ka.X, kb.Y-ka.Y), true
}

// Clone returns a deep copy of the frame.
func (f *Frame) Clone() *Frame {
	joints := make(map[Joint]Keypoint, len(f.Joints))
	for j, kp := range f.Joints {
		joints[j] = kp
	}
	return &Frame{Index: f.Index, Timestamp: f.Timestamp, Joints: joints}
}
