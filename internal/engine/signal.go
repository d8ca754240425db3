package engine

import (
	"github.com/fieldlab-data/kinemetric/internal/pose"
)

// SignalKind selects which scalar a signal extractor derives per frame.
type SignalKind string

const (
	// SignalPositionX tracks the horizontal pixel position of a landmark
	// (or landmark pair).
	SignalPositionX SignalKind = "position_x"
	// SignalPositionY tracks the vertical pixel position.
	SignalPositionY SignalKind = "position_y"
	// SignalJointAngle tracks the angle at the middle of three joints,
	// in degrees.
	SignalJointAngle SignalKind = "joint_angle"
	// SignalJointDistance tracks the pixel distance between two joints.
	SignalJointDistance SignalKind = "joint_distance"
)

// Combine selects how a two-joint position pair collapses to one scalar.
type Combine string

const (
	// CombineMidpoint averages the pair (e.g. mean ankle height).
	CombineMidpoint Combine = "midpoint"
	// CombineForward takes the forward-most joint (largest X), used where
	// the leading limb defines the mark.
	CombineForward Combine = "forward"
)

// SignalSpec describes a derived scalar time series. Joints carries one or
// two landmarks for position kinds, exactly three for joint angles (vertex
// in the middle), and exactly two for joint distances.
type SignalSpec struct {
	Kind    SignalKind   `json:"kind"`
	Joints  []pose.Joint `json:"joints"`
	Combine Combine      `json:"combine,omitempty"`

	// Value transform applied after extraction: out = Scale*raw + Offset.
	// Scale zero means 1. Lets angle conventions from different camera
	// setups map onto one threshold scheme.
	Scale  float64 `json:"scale,omitempty"`
	Offset float64 `json:"offset,omitempty"`
}

// Sample is one extracted signal observation.
type Sample struct {
	Value     float64 // transformed scalar
	Velocity  float64 // d(Value)/dt in units per second; zero on the first sample
	Timestamp float64
	Frame     uint64
	Quality   float64 // mean confidence of the contributing joints
}

// Extractor derives Samples from smoothed frames, carrying the previous
// value for velocity computation. One extractor serves one signal on one
// subject, fed in frame order.
type Extractor struct {
	Spec SignalSpec

	prevValue float64
	prevTS    float64
	have      bool
}

// NewExtractor creates an extractor for the given spec.
// The spec must already be validated.
func NewExtractor(spec SignalSpec) *Extractor {
	return &Extractor{Spec: spec}
}

// Extract computes the signal sample for a frame. The second return is
// false when the required joints are missing from the frame.
func (e *Extractor) Extract(f *pose.Frame) (Sample, bool) {
	raw, quality, ok := e.rawValue(f)
	if !ok {
		return Sample{}, false
	}

	scale := e.Spec.Scale
	if scale == 0 {
		scale = 1
	}
	value := scale*raw + e.Spec.Offset

	s := Sample{
		Value:     value,
		Timestamp: f.Timestamp,
		Frame:     f.Index,
		Quality:   quality,
	}
	if e.have && f.Timestamp > e.prevTS {
		s.Velocity = (value - e.prevValue) / (f.Timestamp - e.prevTS)
	}
	e.prevValue = value
	e.prevTS = f.Timestamp
	e.have = true
	return s, true
}

// Reset discards the carried state; the next sample reports zero velocity.
func (e *Extractor) Reset() {
	e.have = false
}

func (e *Extractor) rawValue(f *pose.Frame) (value, quality float64, ok bool) {
	switch e.Spec.Kind {
	case SignalJointAngle:
		if len(e.Spec.Joints) != 3 {
			return 0, 0, false
		}
		v, ok := f.JointAngle(e.Spec.Joints[0], e.Spec.Joints[1], e.Spec.Joints[2])
		if !ok {
			return 0, 0, false
		}
		return v, meanConfidence(f, e.Spec.Joints), true

	case SignalJointDistance:
		if len(e.Spec.Joints) != 2 {
			return 0, 0, false
		}
		v, ok := f.Distance(e.Spec.Joints[0], e.Spec.Joints[1])
		if !ok {
			return 0, 0, false
		}
		return v, meanConfidence(f, e.Spec.Joints), true

	case SignalPositionX, SignalPositionY:
		return e.position(f)

	default:
		return 0, 0, false
	}
}

func (e *Extractor) position(f *pose.Frame) (value, quality float64, ok bool) {
	horizontal := e.Spec.Kind == SignalPositionX

	if len(e.Spec.Joints) == 1 {
		kp, found := f.Get(e.Spec.Joints[0])
		if !found {
			return 0, 0, false
		}
		if horizontal {
			return kp.X, kp.Confidence, true
		}
		return kp.Y, kp.Confidence, true
	}
	if len(e.Spec.Joints) != 2 {
		return 0, 0, false
	}

	a, b := e.Spec.Joints[0], e.Spec.Joints[1]
	var v float64
	var found bool
	switch {
	case e.Spec.Combine == CombineForward && horizontal:
		v, found = f.ForwardX(a, b)
	case horizontal:
		v, found = f.MidX(a, b)
	default:
		v, found = f.MidY(a, b)
	}
	if !found {
		return 0, 0, false
	}
	return v, meanConfidence(f, e.Spec.Joints), true
}

func meanConfidence(f *pose.Frame, joints []pose.Joint) float64 {
	var sum float64
	var n int
	for _, j := range joints {
		if kp, ok := f.Get(j); ok {
			sum += kp.Confidence
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
