// Package engine implements the kinematic event detection and scoring
// pipeline: signal extraction from normalized keypoint frames, a data-driven
// phase state machine, anti-cheat validation, and per-session scoring.
//
// The engine is single threaded, synchronous, and frame driven: one Step
// call per incoming frame, no internal concurrency, no wall clocks. All
// state lives in a per-session context owned by the caller, so concurrent
// sessions are independent as long as calls within one session stay in
// frame order.
package engine

import (
	"fmt"

	"github.com/fieldlab-data/kinemetric/internal/calib"
	"github.com/fieldlab-data/kinemetric/internal/pose"
	"github.com/fieldlab-data/kinemetric/internal/units"
)

// CalibrationSpec configures the session calibrator. When JointA and JointB
// are set, the session feeds one sample per pre-calibration frame from the
// pixel distance between those joints against KnownDistance (anthropometric
// and reference-object setups); otherwise samples arrive through
// Session.AddCalibrationSample (fiducial markers detected upstream).
type CalibrationSpec struct {
	calib.Config

	JointA        pose.Joint `json:"joint_a,omitempty"`
	JointB        pose.Joint `json:"joint_b,omitempty"`
	KnownDistance float64    `json:"known_distance,omitempty"` // metres
}

// Config is the complete, validated configuration of one session. Each
// discipline is a Config value; there are no per-sport code paths.
type Config struct {
	Discipline string  `json:"discipline"`
	Unit       string  `json:"unit"`
	Measure    Measure `json:"measure"`
	MaxTrials  int     `json:"max_trials,omitempty"` // informational; 0 = unlimited

	Normalizer  pose.NormalizerConfig `json:"normalizer"`
	Calibration CalibrationSpec       `json:"calibration"`
	Signal      SignalSpec            `json:"signal"`
	Machine     MachineConfig         `json:"machine"`
	Validator   ValidatorConfig       `json:"validator"`

	// BaselineSignals are named reference measurements (heel height, torso
	// length) captured during the first BaselineFrames stable frames and
	// locked for the rest of the trial.
	BaselineSignals map[string]SignalSpec `json:"baseline_signals,omitempty"`
	BaselineFrames  int                   `json:"baseline_frames,omitempty"`
}

// Validate checks the configuration once, at session setup. A non-nil error
// wraps ErrInvalidConfig and must prevent the session from starting.
func (c Config) Validate() error {
	fail := func(format string, v ...interface{}) error {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, v...))
	}

	if c.Discipline == "" {
		return fail("discipline must be set")
	}
	if !units.IsValid(c.Unit) {
		return fail("unknown unit %q, valid units: %s", c.Unit, units.GetValidUnitsString())
	}
	switch c.Measure {
	case MeasureDistance:
		if c.Unit != units.Metres && c.Unit != units.Centimetres {
			return fail("distance measure requires a length unit, got %q", c.Unit)
		}
	case MeasureElapsed:
		if c.Unit != units.Seconds {
			return fail("elapsed_time measure requires unit %q, got %q", units.Seconds, c.Unit)
		}
	case MeasureCount:
		if c.Unit != units.Reps {
			return fail("count measure requires unit %q, got %q", units.Reps, c.Unit)
		}
	default:
		return fail("unknown measure %q", c.Measure)
	}

	if a := c.Normalizer.SmoothingAlpha; a <= 0 || a > 1 {
		return fail("smoothing_alpha must be in (0, 1], got %f", a)
	}
	if mc := c.Normalizer.MinConfidence; mc < 0 || mc > 1 {
		return fail("min_confidence must be in [0, 1], got %f", mc)
	}
	if w := c.Normalizer.BlendWeight; w < 0 || w > 1 {
		return fail("blend_weight must be in [0, 1], got %f", w)
	}

	if err := c.Calibration.Config.Validate(); err != nil {
		return fail("calibration: %v", err)
	}
	if (c.Calibration.JointA == "") != (c.Calibration.JointB == "") {
		return fail("calibration joints must be set as a pair")
	}
	if c.Calibration.JointA != "" && c.Calibration.KnownDistance <= 0 {
		return fail("calibration known_distance must be positive when sampling from joints")
	}

	if err := validateSignalSpec("signal", c.Signal); err != nil {
		return fail("%v", err)
	}
	for name, spec := range c.BaselineSignals {
		if err := validateSignalSpec("baseline signal "+name, spec); err != nil {
			return fail("%v", err)
		}
	}
	if len(c.BaselineSignals) > 0 && c.BaselineFrames < 1 {
		return fail("baseline_frames must be at least 1 when baseline signals are configured")
	}

	if err := c.validateMachine(); err != nil {
		return fail("%v", err)
	}

	if c.Validator.MinSignalRange < 0 || c.Validator.MaxEventDuration < 0 ||
		c.Validator.BaselineTolerance < 0 || c.Validator.HoldTime < 0 {
		return fail("validator thresholds must be non-negative")
	}
	for _, tr := range c.Machine.Transitions {
		if tr.Emit != "" && c.Validator.HoldTime > 0 && c.Validator.HoldTime < tr.HoldTime {
			return fail("hold_time_validation %.3fs is below the %.3fs debounce of transition %s→%s",
				c.Validator.HoldTime, tr.HoldTime, tr.From, tr.To)
		}
	}
	if c.Validator.BaselineTolerance > 0 && len(c.BaselineSignals) == 0 {
		return fail("baseline_tolerance set but no baseline signals configured")
	}

	return nil
}

func validateSignalSpec(what string, s SignalSpec) error {
	switch s.Kind {
	case SignalJointAngle:
		if len(s.Joints) != 3 {
			return fmt.Errorf("%s: joint_angle needs exactly 3 joints, got %d", what, len(s.Joints))
		}
	case SignalJointDistance:
		if len(s.Joints) != 2 {
			return fmt.Errorf("%s: joint_distance needs exactly 2 joints, got %d", what, len(s.Joints))
		}
	case SignalPositionX, SignalPositionY:
		if len(s.Joints) != 1 && len(s.Joints) != 2 {
			return fmt.Errorf("%s: position signals need 1 or 2 joints, got %d", what, len(s.Joints))
		}
		if len(s.Joints) == 2 && s.Combine != CombineMidpoint && s.Combine != CombineForward {
			return fmt.Errorf("%s: two-joint position needs combine midpoint or forward", what)
		}
	default:
		return fmt.Errorf("%s: unknown signal kind %q", what, s.Kind)
	}
	for _, j := range s.Joints {
		if j == "" {
			return fmt.Errorf("%s: empty joint name", what)
		}
	}
	return nil
}

func (c Config) validateMachine() error {
	m := c.Machine
	if m.Initial == "" {
		return fmt.Errorf("machine initial state must be set")
	}
	if len(m.Transitions) == 0 {
		return fmt.Errorf("machine needs at least one transition")
	}
	if m.IsTerminal(m.Initial) {
		return fmt.Errorf("initial state %q must not be terminal", m.Initial)
	}
	for _, tr := range m.Transitions {
		if tr.From == "" || tr.To == "" {
			return fmt.Errorf("transition states must be named")
		}
		if tr.HoldTime < 0 {
			return fmt.Errorf("transition %s→%s has negative hold time", tr.From, tr.To)
		}
		if m.IsTerminal(tr.From) {
			return fmt.Errorf("terminal state %q must not have outgoing transitions", tr.From)
		}
		switch tr.Predicate.Kind {
		case ValueAbove, ValueBelow, SpeedAbove, SpeedBelow:
		case WithinBand:
			if tr.Predicate.Band <= 0 {
				return fmt.Errorf("transition %s→%s: within_band needs a positive band", tr.From, tr.To)
			}
		default:
			return fmt.Errorf("transition %s→%s: unknown predicate kind %q", tr.From, tr.To, tr.Predicate.Kind)
		}
	}

	// Transitions leaving one state must not be simultaneously satisfiable
	// where that is statically decidable.
	for i := 0; i < len(m.Transitions); i++ {
		for j := i + 1; j < len(m.Transitions); j++ {
			a, b := m.Transitions[i], m.Transitions[j]
			if a.From != b.From {
				continue
			}
			if predicatesOverlap(a.Predicate, b.Predicate) {
				return fmt.Errorf("ambiguous transitions from %q: %s→%s and %s→%s can fire together",
					a.From, a.From, a.To, b.From, b.To)
			}
		}
	}
	return nil
}

// predicatesOverlap reports whether two predicates on the same signal can
// hold at once. Predicates over different quantities (value vs speed) are
// not statically decidable and are allowed; runtime ambiguity is surfaced
// through the diagnostic log instead.
func predicatesOverlap(a, b Predicate) bool {
	if a.Kind == b.Kind {
		if a.Kind == WithinBand {
			return abs(a.Threshold-b.Threshold) <= a.Band+b.Band
		}
		return true // same-direction comparisons always share a region
	}
	switch {
	case a.Kind == ValueAbove && b.Kind == ValueBelow:
		return b.Threshold > a.Threshold
	case a.Kind == ValueBelow && b.Kind == ValueAbove:
		return a.Threshold > b.Threshold
	case a.Kind == SpeedAbove && b.Kind == SpeedBelow:
		return b.Threshold > a.Threshold
	case a.Kind == SpeedBelow && b.Kind == SpeedAbove:
		return a.Threshold > b.Threshold
	}
	return false
}
