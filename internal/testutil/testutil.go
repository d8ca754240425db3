// Package testutil provides shared test utilities and fixtures.
//
// This package centralises common test helpers to reduce code duplication
// across test files and improve test maintainability.
package testutil

import (
	"testing"

	"github.com/fieldlab-data/kinemetric/internal/pose"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// Frame builds a pose frame with every core joint at the given coordinates
// and confidence 0.9, then applies the overrides.
func Frame(index uint64, ts float64, x, y float64, overrides map[pose.Joint]pose.Keypoint) *pose.Frame {
	joints := make(map[pose.Joint]pose.Keypoint, len(pose.CoreJoints)+len(overrides))
	for _, j := range pose.CoreJoints {
		joints[j] = pose.Keypoint{X: x, Y: y, Confidence: 0.9}
	}
	for j, kp := range overrides {
		joints[j] = kp
	}
	return &pose.Frame{Index: index, Timestamp: ts, Joints: joints}
}

// FrameSeq generates frames at the given frame rate whose core joints all
// sit at positions[i], starting at timestamp start. It models a subject
// whose whole body moves rigidly, which is enough for signal and state
// machine tests.
func FrameSeq(start float64, fps float64, positions [][2]float64) []*pose.Frame {
	frames := make([]*pose.Frame, len(positions))
	dt := 1.0 / fps
	for i, p := range positions {
		frames[i] = Frame(uint64(i), start+float64(i)*dt, p[0], p[1], nil)
	}
	return frames
}

// HoldPositions returns n copies of the same position, for building phases
// where the subject stands still.
func HoldPositions(x, y float64, n int) [][2]float64 {
	out := make([][2]float64, n)
	for i := range out {
		out[i] = [2]float64{x, y}
	}
	return out
}

// RampPositions returns n positions moving linearly from (x0,y0) to
// (x1,y1), for building motion phases.
func RampPositions(x0, y0, x1, y1 float64, n int) [][2]float64 {
	out := make([][2]float64, n)
	for i := range out {
		f := 1.0
		if n > 1 {
			f = float64(i) / float64(n-1)
		}
		out[i] = [2]float64{x0 + f*(x1-x0), y0 + f*(y1-y0)}
	}
	return out
}
