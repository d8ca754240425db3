// Package profiles provides ready-made engine configurations for the
// supported fitness test disciplines. Every discipline is a Config value
// consumed by the generic engine; there are no per-sport code paths.
//
// Threshold values assume a side-mounted camera at roughly 30 fps and
// 720p-class resolution, matching the capture setups these tests were
// tuned on. Velocity thresholds are in pixels per second.
package profiles

import (
	"fmt"

	"github.com/fieldlab-data/kinemetric/internal/calib"
	"github.com/fieldlab-data/kinemetric/internal/engine"
	"github.com/fieldlab-data/kinemetric/internal/pose"
	"github.com/fieldlab-data/kinemetric/internal/units"
)

// Phase states shared across disciplines.
const (
	StateAwaitingStart engine.PhaseState = "awaiting_start"
	StateReady         engine.PhaseState = "ready"
	StateInFlight      engine.PhaseState = "in_flight"
	StateCompleted     engine.PhaseState = "completed"
)

// population-average torso length (shoulder to hip), used for
// anthropometric calibration where no reference object is available.
const torsoLengthM = 0.45

// BroadJump measures standing broad jump distance in metres from the
// forward-most ankle. The subject holds still, jumps forward, and the
// landing is detected once ankle speed stays low for a few frames. A
// reference object of known length calibrates the scale; heel elevation
// against the locked baseline rejects tiptoe starts.
func BroadJump() engine.Config {
	return engine.Config{
		Discipline: "broad_jump",
		Unit:       units.Metres,
		Measure:    engine.MeasureDistance,
		MaxTrials:  3,

		Normalizer: pose.DefaultNormalizerConfig(),
		Calibration: engine.CalibrationSpec{
			Config: calib.DefaultConfig(calib.ReferenceObject),
		},
		Signal: engine.SignalSpec{
			Kind:    engine.SignalPositionX,
			Joints:  []pose.Joint{pose.LeftAnkle, pose.RightAnkle},
			Combine: engine.CombineForward,
		},
		Machine: engine.MachineConfig{
			Initial:  StateAwaitingStart,
			Terminal: []engine.PhaseState{StateCompleted},
			Transitions: []engine.Transition{
				// Still for five-ish frames before the jump may start.
				{From: StateAwaitingStart, To: StateReady,
					Predicate: engine.Predicate{Kind: engine.SpeedBelow, Threshold: 90},
					HoldTime:  0.17},
				{From: StateReady, To: StateInFlight,
					Predicate: engine.Predicate{Kind: engine.SpeedAbove, Threshold: 600}},
				// Ankles settle after landing.
				{From: StateInFlight, To: StateCompleted,
					Predicate: engine.Predicate{Kind: engine.SpeedBelow, Threshold: 240},
					HoldTime:  0.13,
					Emit:      "landing"},
			},
		},
		Validator: engine.ValidatorConfig{
			HoldTime:          0.15,
			MinSignalRange:    100, // px; rejects shuffles counted as jumps
			MaxEventDuration:  3.0,
			BaselineTolerance: 25, // px of heel elevation
		},
		BaselineSignals: map[string]engine.SignalSpec{
			"heel_height": {
				Kind:    engine.SignalPositionY,
				Joints:  []pose.Joint{pose.LeftAnkle, pose.RightAnkle},
				Combine: engine.CombineMidpoint,
			},
		},
		BaselineFrames: 5,
	}
}

// VerticalJump measures jump height in centimetres from ankle elevation.
// The vertical signal is negated so that up is positive.
func VerticalJump() engine.Config {
	return engine.Config{
		Discipline: "vertical_jump",
		Unit:       units.Centimetres,
		Measure:    engine.MeasureDistance,
		MaxTrials:  3,

		Normalizer: pose.DefaultNormalizerConfig(),
		Calibration: engine.CalibrationSpec{
			Config:        calib.DefaultConfig(calib.AnthropometricRatio),
			JointA:        pose.LeftShoulder,
			JointB:        pose.LeftHip,
			KnownDistance: torsoLengthM,
		},
		Signal: engine.SignalSpec{
			Kind:    engine.SignalPositionY,
			Joints:  []pose.Joint{pose.LeftAnkle, pose.RightAnkle},
			Combine: engine.CombineMidpoint,
			Scale:   -1,
		},
		Machine: engine.MachineConfig{
			Initial:  StateAwaitingStart,
			Terminal: []engine.PhaseState{StateCompleted},
			Transitions: []engine.Transition{
				{From: StateAwaitingStart, To: StateReady,
					Predicate: engine.Predicate{Kind: engine.SpeedBelow, Threshold: 80},
					HoldTime:  0.2},
				{From: StateReady, To: StateInFlight,
					Predicate: engine.Predicate{Kind: engine.SpeedAbove, Threshold: 700}},
				{From: StateInFlight, To: StateCompleted,
					Predicate: engine.Predicate{Kind: engine.SpeedBelow, Threshold: 250},
					HoldTime:  0.1,
					Emit:      "jump"},
			},
		},
		Validator: engine.ValidatorConfig{
			HoldTime:          0.12,
			MinSignalRange:    60, // px of ankle rise
			MaxEventDuration:  2.5,
			BaselineTolerance: 40,
		},
		BaselineSignals: map[string]engine.SignalSpec{
			"heel_height": {
				Kind:    engine.SignalPositionY,
				Joints:  []pose.Joint{pose.LeftAnkle, pose.RightAnkle},
				Combine: engine.CombineMidpoint,
				Scale:   -1,
			},
		},
		BaselineFrames: 6,
	}
}

// SitUps counts validated repetitions from the shoulder-hip-knee angle.
// The angle is remapped so that lying flat reads high (above 160 degrees)
// and a full crunch reads low (below 70). A rep only counts when both
// positions were held, the motion stayed inside its time budget, and the
// angle travelled at least the minimum range.
func SitUps() engine.Config {
	return engine.Config{
		Discipline: "sit_ups",
		Unit:       units.Reps,
		Measure:    engine.MeasureCount,
		MaxTrials:  1,

		Normalizer: pose.DefaultNormalizerConfig(),
		Calibration: engine.CalibrationSpec{
			Config:        calib.DefaultConfig(calib.AnthropometricRatio),
			JointA:        pose.LeftShoulder,
			JointB:        pose.LeftHip,
			KnownDistance: torsoLengthM,
		},
		Signal: engine.SignalSpec{
			Kind:   engine.SignalJointAngle,
			Joints: []pose.Joint{pose.LeftShoulder, pose.LeftHip, pose.LeftKnee},
			Scale:  -1,
			Offset: 220,
		},
		Machine: engine.MachineConfig{
			Initial: "down",
			Transitions: []engine.Transition{
				{From: "down", To: "up",
					Predicate: engine.Predicate{Kind: engine.ValueBelow, Threshold: 70},
					HoldTime:  0.3},
				{From: "up", To: "down",
					Predicate: engine.Predicate{Kind: engine.ValueAbove, Threshold: 160},
					HoldTime:  0.3,
					Emit:      "rep"},
			},
		},
		Validator: engine.ValidatorConfig{
			HoldTime:         0.3,
			MinSignalRange:   50, // degrees
			MaxEventDuration: 3.0,
		},
	}
}

// SitAndReach measures forward reach in centimetres from the leading
// wrist. The reach must be held for two seconds before it scores; a
// bending knee against the locked baseline angle invalidates the attempt.
func SitAndReach() engine.Config {
	return engine.Config{
		Discipline: "sit_and_reach",
		Unit:       units.Centimetres,
		Measure:    engine.MeasureDistance,
		MaxTrials:  3,

		Normalizer: pose.DefaultNormalizerConfig(),
		Calibration: engine.CalibrationSpec{
			Config: calib.DefaultConfig(calib.Fiducial),
		},
		Signal: engine.SignalSpec{
			Kind:    engine.SignalPositionX,
			Joints:  []pose.Joint{pose.LeftWrist, pose.RightWrist},
			Combine: engine.CombineForward,
		},
		Machine: engine.MachineConfig{
			Initial:  StateAwaitingStart,
			Terminal: []engine.PhaseState{StateCompleted},
			Transitions: []engine.Transition{
				{From: StateAwaitingStart, To: "reaching",
					Predicate: engine.Predicate{Kind: engine.SpeedAbove, Threshold: 50}},
				// The reach must be held steady for two seconds.
				{From: "reaching", To: StateCompleted,
					Predicate: engine.Predicate{Kind: engine.SpeedBelow, Threshold: 20},
					HoldTime:  2.0,
					Emit:      "reach"},
			},
		},
		Validator: engine.ValidatorConfig{
			HoldTime:          2.0,
			MinSignalRange:    20, // px; the hands must actually travel
			MaxEventDuration:  15,
			BaselineTolerance: 15, // degrees of knee flexion
		},
		BaselineSignals: map[string]engine.SignalSpec{
			"knee_angle": {
				Kind:   engine.SignalJointAngle,
				Joints: []pose.Joint{pose.LeftHip, pose.LeftKnee, pose.LeftAnkle},
			},
		},
		BaselineFrames: 8,
	}
}

// MedicineBall measures a seated overhead throw in metres from wrist
// travel. The subject loads the ball behind the head, drives it forward,
// and the throw scores once the hands settle after release. The ball
// itself is the reference object; a bending trunk against the locked
// baseline angle rejects throws that lean past the line.
func MedicineBall() engine.Config {
	return engine.Config{
		Discipline: "medicine_ball",
		Unit:       units.Metres,
		Measure:    engine.MeasureDistance,
		MaxTrials:  3,

		Normalizer: pose.DefaultNormalizerConfig(),
		Calibration: engine.CalibrationSpec{
			Config: calib.DefaultConfig(calib.ReferenceObject),
		},
		Signal: engine.SignalSpec{
			Kind:    engine.SignalPositionX,
			Joints:  []pose.Joint{pose.LeftWrist, pose.RightWrist},
			Combine: engine.CombineForward,
		},
		Machine: engine.MachineConfig{
			Initial:  StateAwaitingStart,
			Terminal: []engine.PhaseState{StateCompleted},
			Transitions: []engine.Transition{
				// The ball is held loaded behind the head before the drive.
				{From: StateAwaitingStart, To: "loaded",
					Predicate: engine.Predicate{Kind: engine.SpeedBelow, Threshold: 80},
					HoldTime:  0.25},
				{From: "loaded", To: "driving",
					Predicate: engine.Predicate{Kind: engine.SpeedAbove, Threshold: 500}},
				// Hands settle in the follow-through after release.
				{From: "driving", To: StateCompleted,
					Predicate: engine.Predicate{Kind: engine.SpeedBelow, Threshold: 200},
					HoldTime:  0.13,
					Emit:      "release"},
			},
		},
		Validator: engine.ValidatorConfig{
			HoldTime:          0.2,
			MinSignalRange:    120, // px; a push, not a drop
			MaxEventDuration:  4.0,
			BaselineTolerance: 20, // degrees of trunk lean
		},
		BaselineSignals: map[string]engine.SignalSpec{
			"trunk_angle": {
				Kind:   engine.SignalJointAngle,
				Joints: []pose.Joint{pose.LeftShoulder, pose.LeftHip, pose.LeftKnee},
			},
		},
		BaselineFrames: 6,
	}
}

// Sprint times a standing-start sprint: the clock runs from the first
// explosive hip movement until the hips cross the configured finish line
// (in pixel coordinates of the side camera).
func Sprint(finishLineX float64) engine.Config {
	return engine.Config{
		Discipline: "sprint",
		Unit:       units.Seconds,
		Measure:    engine.MeasureElapsed,
		MaxTrials:  2,

		Normalizer: pose.DefaultNormalizerConfig(),
		Calibration: engine.CalibrationSpec{
			Config: calib.DefaultConfig(calib.ReferenceObject),
		},
		Signal: engine.SignalSpec{
			Kind:    engine.SignalPositionX,
			Joints:  []pose.Joint{pose.LeftHip, pose.RightHip},
			Combine: engine.CombineMidpoint,
		},
		Machine: engine.MachineConfig{
			Initial:  StateAwaitingStart,
			Terminal: []engine.PhaseState{StateCompleted},
			Transitions: []engine.Transition{
				{From: StateAwaitingStart, To: "running",
					Predicate: engine.Predicate{Kind: engine.SpeedAbove, Threshold: 200}},
				{From: "running", To: StateCompleted,
					Predicate: engine.Predicate{Kind: engine.ValueAbove, Threshold: finishLineX},
					Emit:      "finish"},
			},
		},
		Validator: engine.ValidatorConfig{
			MinSignalRange:   200, // px; the subject must have covered the course
			MaxEventDuration: 30,
		},
	}
}

// ShuttleRun times each leg of a shuttle run between two marked lines.
// Every line touch closes one leg and records its time as a trial, so the
// session aggregate reports best and mean leg times.
func ShuttleRun(lineAX, lineBX float64) engine.Config {
	return engine.Config{
		Discipline: "shuttle_run",
		Unit:       units.Seconds,
		Measure:    engine.MeasureElapsed,

		Normalizer: pose.DefaultNormalizerConfig(),
		Calibration: engine.CalibrationSpec{
			Config: calib.DefaultConfig(calib.ReferenceObject),
		},
		Signal: engine.SignalSpec{
			Kind:    engine.SignalPositionX,
			Joints:  []pose.Joint{pose.LeftAnkle, pose.RightAnkle},
			Combine: engine.CombineMidpoint,
		},
		Machine: engine.MachineConfig{
			Initial: "outbound",
			Transitions: []engine.Transition{
				{From: "outbound", To: "inbound",
					Predicate: engine.Predicate{Kind: engine.WithinBand, Threshold: lineBX, Band: 40},
					Emit:      "leg"},
				{From: "inbound", To: "outbound",
					Predicate: engine.Predicate{Kind: engine.WithinBand, Threshold: lineAX, Band: 40},
					Emit:      "leg"},
			},
		},
		Validator: engine.ValidatorConfig{
			MinSignalRange:   150, // px; a leg must span most of the course
			MaxEventDuration: 20,
		},
	}
}

// ByName returns the configuration for a named discipline using its default
// parameters. Parameterized disciplines (sprint, shuttle run) take course
// geometry in pixel coordinates and are not reachable by name.
func ByName(name string) (engine.Config, error) {
	switch name {
	case "broad_jump":
		return BroadJump(), nil
	case "vertical_jump":
		return VerticalJump(), nil
	case "sit_ups":
		return SitUps(), nil
	case "sit_and_reach":
		return SitAndReach(), nil
	case "medicine_ball":
		return MedicineBall(), nil
	default:
		return engine.Config{}, fmt.Errorf("unknown discipline %q", name)
	}
}
