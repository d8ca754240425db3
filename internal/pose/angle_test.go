package pose

import (
	"math"
	"testing"
)

func TestAngleRightAngle(t *testing.T) {
	a := Keypoint{X: 0, Y: 10}
	b := Keypoint{X: 0, Y: 0}
	c := Keypoint{X: 10, Y: 0}
	if got := Angle(a, b, c); math.Abs(got-90) > 1e-9 {
		t.Errorf("Angle = %v, want 90", got)
	}
}

func TestAngleStraightLine(t *testing.T) {
	a := Keypoint{X: -5, Y: 0}
	b := Keypoint{X: 0, Y: 0}
	c := Keypoint{X: 5, Y: 0}
	if got := Angle(a, b, c); math.Abs(got-180) > 1e-9 {
		t.Errorf("Angle = %v, want 180", got)
	}
}

func TestAngleDegenerate(t *testing.T) {
	p := Keypoint{X: 3, Y: 4}
	if got := Angle(p, p, Keypoint{X: 10, Y: 0}); got != 0 {
		t.Errorf("Angle with coincident points = %v, want 0", got)
	}
}

func TestJointAngle(t *testing.T) {
	f := &Frame{Joints: map[Joint]Keypoint{
		LeftShoulder: {X: 0, Y: 0},
		LeftHip:      {X: 0, Y: 100},
		LeftKnee:     {X: 100, Y: 100},
	}}

	got, ok := f.JointAngle(LeftShoulder, LeftHip, LeftKnee)
	if !ok {
		t.Fatal("expected angle to be computable")
	}
	if math.Abs(got-90) > 1e-9 {
		t.Errorf("JointAngle = %v, want 90", got)
	}

	if _, ok := f.JointAngle(LeftShoulder, LeftHip, RightKnee); ok {
		t.Error("expected missing joint to report not-ok")
	}
}

func TestFrameAccessors(t *testing.T) {
	f := &Frame{Joints: map[Joint]Keypoint{
		LeftAnkle:  {X: 100, Y: 300},
		RightAnkle: {X: 200, Y: 340},
	}}

	if x, ok := f.MidX(LeftAnkle, RightAnkle); !ok || x != 150 {
		t.Errorf("MidX = %v, %v, want 150, true", x, ok)
	}
	if y, ok := f.MidY(LeftAnkle, RightAnkle); !ok || y != 320 {
		t.Errorf("MidY = %v, %v, want 320, true", y, ok)
	}
	if x, ok := f.ForwardX(LeftAnkle, RightAnkle); !ok || x != 200 {
		t.Errorf("ForwardX = %v, %v, want 200, true", x, ok)
	}
	// ForwardX falls back to the visible joint when one is missing.
	if x, ok := f.ForwardX(LeftAnkle, LeftHeel); !ok || x != 100 {
		t.Errorf("ForwardX with one joint = %v, %v, want 100, true", x, ok)
	}
	if d, ok := f.Distance(LeftAnkle, RightAnkle); !ok || math.Abs(d-math.Hypot(100, 40)) > 1e-9 {
		t.Errorf("Distance = %v, %v", d, ok)
	}
	if _, ok := f.MidX(LeftAnkle, LeftHeel); ok {
		t.Error("expected MidX with missing joint to report not-ok")
	}
}

func TestFrameClone(t *testing.T) {
	f := &Frame{Index: 7, Timestamp: 1.5, Joints: map[Joint]Keypoint{
		Nose: {X: 1, Y: 2, Confidence: 0.8},
	}}
	c := f.Clone()
	c.Joints[Nose] = Keypoint{X: 9}
	if f.Joints[Nose].X != 1 {
		t.Error("Clone shares joint storage with the original")
	}
	if c.Index != 7 || c.Timestamp != 1.5 {
		t.Errorf("Clone dropped metadata: %+v", c)
	}
}
