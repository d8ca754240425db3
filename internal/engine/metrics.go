package engine

import (
	"gonum.org/v1/gonum/stat"

	"github.com/fieldlab-data/kinemetric/internal/calib"
	"github.com/fieldlab-data/kinemetric/internal/units"
)

// Measure selects how a validated event converts to a trial value.
type Measure string

const (
	// MeasureDistance scores the signal travel converted through the
	// calibration scale (jump distance, reach offset).
	MeasureDistance Measure = "distance"
	// MeasureElapsed scores the occupancy duration in seconds (sprint,
	// shuttle run).
	MeasureElapsed Measure = "elapsed_time"
	// MeasureCount scores accepted events per trial (repetitions).
	MeasureCount Measure = "count"
)

// TrialMetric is the scored outcome of one trial. Rejected trials are
// retained with Accepted false for auditability but never contribute to
// aggregates.
type TrialMetric struct {
	TrialID    string          `json:"trial_id"`
	Value      float64         `json:"value"`
	Unit       string          `json:"unit"`
	Confidence float64         `json:"confidence"`
	Accepted   bool            `json:"accepted"`
	Violations []ViolationKind `json:"violations,omitempty"`
	At         float64         `json:"at_timestamp"`
}

// ComputeDistance converts an event's pixel-space travel into real units
// via the calibration scale.
func ComputeDistance(ev CandidateEvent, cal calib.Result, unit string) float64 {
	raw := ev.SignalRange.Width() / cal.ScalePxPerUnit
	return units.ConvertLength(raw, unit)
}

// Confidence combines the calibration confidence with the signal quality of
// the observation window. Quality is the fraction of the window with
// sufficient keypoint confidence.
func Confidence(cal calib.Result, signalQuality float64) float64 {
	if signalQuality < 0 {
		signalQuality = 0
	}
	if signalQuality > 1 {
		signalQuality = 1
	}
	return cal.Confidence * signalQuality
}

// SessionResult is the finalized outcome of a session: every trial in
// order, plus aggregates over the valid trials only. Best and Mean are nil
// when no trial was valid, so callers cannot mistake "no valid attempt"
// for a measured zero.
type SessionResult struct {
	SessionID  string        `json:"session_id"`
	Discipline string        `json:"discipline"`
	Unit       string        `json:"unit"`
	Trials     []TrialMetric `json:"trials"`
	Best       *float64      `json:"best,omitempty"`
	Mean       *float64      `json:"mean,omitempty"`
	CountValid int           `json:"count_valid"`
}

// Aggregator accumulates trial metrics for one session. Record appends to
// an ordered, append-only list; Finalize computes aggregates without
// mutating state and is idempotent.
type Aggregator struct {
	sessionID  string
	discipline string
	unit       string
	trials     []TrialMetric
}

// NewAggregator creates an aggregator for a session. The unit decides the
// "best" direction: minimum for timed disciplines, maximum otherwise.
func NewAggregator(sessionID, discipline, unit string) *Aggregator {
	return &Aggregator{sessionID: sessionID, discipline: discipline, unit: unit}
}

// Record appends one trial metric.
func (a *Aggregator) Record(tm TrialMetric) {
	a.trials = append(a.trials, tm)
}

// Trials returns the recorded trials in order.
func (a *Aggregator) Trials() []TrialMetric {
	out := make([]TrialMetric, len(a.trials))
	copy(out, a.trials)
	return out
}

// Finalize computes the session result over valid trials. Calling it twice
// without an intervening Record yields identical results.
func (a *Aggregator) Finalize() SessionResult {
	res := SessionResult{
		SessionID:  a.sessionID,
		Discipline: a.discipline,
		Unit:       a.unit,
		Trials:     a.Trials(),
	}

	var values []float64
	for _, tm := range a.trials {
		if tm.Accepted {
			values = append(values, tm.Value)
		}
	}
	res.CountValid = len(values)
	if len(values) == 0 {
		return res
	}

	best := values[0]
	lower := units.LowerIsBetter(a.unit)
	for _, v := range values[1:] {
		if (lower && v < best) || (!lower && v > best) {
			best = v
		}
	}
	mean := stat.Mean(values, nil)
	res.Best = &best
	res.Mean = &mean
	return res
}
