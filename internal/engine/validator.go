package engine

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// ViolationKind identifies which anti-cheat or plausibility check a
// candidate event failed. Every rejection carries specific kinds so the
// surrounding application can give targeted feedback.
type ViolationKind string

const (
	// HeldTooBriefly: the originating state was occupied for less than the
	// validation hold time. Rejects flicker reps.
	HeldTooBriefly ViolationKind = "held_too_briefly"
	// RangeTooSmall: the signal travelled less than the minimum amplitude.
	// Rejects shallow, incomplete motions.
	RangeTooSmall ViolationKind = "range_too_small"
	// ExceededTimeBudget: the motion took longer than allowed. Rejects
	// stalled or externally paused motions.
	ExceededTimeBudget ViolationKind = "exceeded_time_budget"
	// BaselineDeviation: a tracked reference point moved outside its
	// tolerance band from the locked baseline. Detects elevation tricks
	// and posture changes.
	BaselineDeviation ViolationKind = "baseline_deviation"
)

// ValidationResult is the verdict on one candidate event. Accepted is true
// only when every enabled check passed; all failing checks are reported,
// not just the first.
type ValidationResult struct {
	Accepted bool            `json:"accepted"`
	Reasons  []ViolationKind `json:"reasons,omitempty"`
}

// Baseline is a reference snapshot of named measurements (heel height,
// torso length) captured early in a trial. It is never mutated within the
// trial; all deviation checks anchor on it.
type Baseline map[string]float64

// BaselineTracker accumulates reference observations over the first stable
// frames of a trial and locks their medians as the trial baseline.
type BaselineTracker struct {
	need    int
	samples map[string][]float64
}

// NewBaselineTracker creates a tracker that locks after `frames`
// observations of every reference signal.
func NewBaselineTracker(frames int) *BaselineTracker {
	return &BaselineTracker{need: frames, samples: make(map[string][]float64)}
}

// Observe records one reference measurement.
func (b *BaselineTracker) Observe(name string, v float64) {
	b.samples[name] = append(b.samples[name], v)
}

// TryLock returns the per-reference medians once every observed reference
// has enough samples. The second return is false until then.
func (b *BaselineTracker) TryLock() (Baseline, bool) {
	if len(b.samples) == 0 {
		return nil, false
	}
	for _, vs := range b.samples {
		if len(vs) < b.need {
			return nil, false
		}
	}
	baseline := make(Baseline, len(b.samples))
	for name, vs := range b.samples {
		baseline[name] = medianOf(vs)
	}
	return baseline, true
}

// Reset discards all accumulated observations.
func (b *BaselineTracker) Reset() {
	b.samples = make(map[string][]float64)
}

// ValidatorConfig holds the anti-cheat thresholds. Each check can be
// disabled independently; a zero threshold disables its check.
type ValidatorConfig struct {
	// HoldTime is the minimum occupancy of the originating state. Distinct
	// from, and typically larger than, the transition debounce hold time.
	HoldTime float64 `json:"hold_time_validation"`
	// MinSignalRange is the minimum amplitude the signal must have
	// travelled during the occupancy.
	MinSignalRange float64 `json:"min_signal_range"`
	// MaxEventDuration is the time budget from state entry to completion.
	MaxEventDuration float64 `json:"max_event_duration"`
	// BaselineTolerance is the allowed absolute deviation of each tracked
	// reference from its baseline value.
	BaselineTolerance float64 `json:"baseline_tolerance"`
}

// AntiCheatValidator compares candidate events against the locked baseline
// and the configured tolerance bands. It is stateless and side-effect free;
// the caller decides what a rejection does to the state machine.
type AntiCheatValidator struct {
	Config ValidatorConfig
}

// Validate checks one candidate event. The observed map carries the current
// values of the tracked reference signals at event time; references absent
// from the baseline are ignored.
func (v *AntiCheatValidator) Validate(ev CandidateEvent, baseline Baseline, observed map[string]float64) ValidationResult {
	var reasons []ViolationKind

	if v.Config.HoldTime > 0 && ev.Duration() < v.Config.HoldTime {
		reasons = append(reasons, HeldTooBriefly)
	}
	if v.Config.MinSignalRange > 0 && ev.SignalRange.Width() < v.Config.MinSignalRange {
		reasons = append(reasons, RangeTooSmall)
	}
	if v.Config.MaxEventDuration > 0 && ev.Duration() > v.Config.MaxEventDuration {
		reasons = append(reasons, ExceededTimeBudget)
	}
	if v.Config.BaselineTolerance > 0 && deviates(baseline, observed, v.Config.BaselineTolerance) {
		reasons = append(reasons, BaselineDeviation)
	}

	return ValidationResult{Accepted: len(reasons) == 0, Reasons: reasons}
}

func deviates(baseline Baseline, observed map[string]float64, tolerance float64) bool {
	for name, ref := range baseline {
		cur, ok := observed[name]
		if !ok {
			continue
		}
		if abs(cur-ref) > tolerance {
			return true
		}
	}
	return false
}

// medianOf computes the empirical median, the same statistic the
// calibrator filters against.
func medianOf(vs []float64) float64 {
	sorted := make([]float64, len(vs))
	copy(sorted, vs)
	sort.Float64s(sorted)
	return stat.Quantile(0.5, stat.Empirical, sorted, nil)
}
