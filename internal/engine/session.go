package engine

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/fieldlab-data/kinemetric/internal/calib"
	"github.com/fieldlab-data/kinemetric/internal/pose"
)

// StepResult reports what one frame did to the session.
type StepResult struct {
	// Observed is false when the frame was rejected by the normalizer
	// (no observation this frame, not an error).
	Observed bool
	// Calibrating is true while the calibrator is still collecting.
	Calibrating bool
	// Phase is the state machine's state after the step.
	Phase PhaseState
	// Event carries a candidate event proposed this step, if any, along
	// with its validation verdict.
	Event      *CandidateEvent
	Validation *ValidationResult
	// Trial is non-nil when a trial metric was recorded this step.
	Trial *TrialMetric
}

// Session owns all per-subject pipeline state: normalizer, calibrator,
// signal extractors, phase machine, baseline, and the trial aggregator.
// Calls for one session must be serialized in frame order; sessions share
// no state with each other. A caller cancels a session by discarding it.
type Session struct {
	ID     string
	Config Config

	normalizer  *pose.Normalizer
	calibrator  *calib.Calibrator
	extractor   *Extractor
	machine     *Machine
	validator   AntiCheatValidator
	aggregator  *Aggregator
	baselineTrk *BaselineTracker
	baseline    Baseline
	refExtract  map[string]*Extractor
	latestRef   map[string]float64
	lastSample  Sample
	trialFrames int
	trialValid  int
	motionPhase bool
	repCount    int
	repRecorded bool
	fatal       error
}

// NewSession validates the configuration and builds a session context.
// Validation failures wrap ErrInvalidConfig and must stop the caller from
// feeding frames.
func NewSession(config Config) (*Session, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	s := &Session{
		ID:          id,
		Config:      config,
		normalizer:  pose.NewNormalizer(config.Normalizer),
		calibrator:  calib.NewCalibrator(config.Calibration.Config),
		extractor:   NewExtractor(config.Signal),
		machine:     NewMachine(config.Machine),
		validator:   AntiCheatValidator{Config: config.Validator},
		aggregator:  NewAggregator(id, config.Discipline, config.Unit),
		baselineTrk: NewBaselineTracker(config.BaselineFrames),
		refExtract:  make(map[string]*Extractor, len(config.BaselineSignals)),
		latestRef:   make(map[string]float64, len(config.BaselineSignals)),
	}
	for name, spec := range config.BaselineSignals {
		s.refExtract[name] = NewExtractor(spec)
	}
	return s, nil
}

// AddCalibrationSample feeds the calibrator one externally measured sample
// (e.g. a fiducial marker size detected upstream). No-op once calibrated;
// returns ErrCalibrationFailed once the calibrator has timed out.
func (s *Session) AddCalibrationSample(measurementPx, knownUnitDistance, at float64) error {
	if s.fatal != nil {
		return s.fatal
	}
	if s.calibrator.AddSample(measurementPx, knownUnitDistance, at) == calib.Failed {
		s.fatal = fmt.Errorf("%w: no stable scale after %.1fs", ErrCalibrationFailed, s.Config.Calibration.Timeout)
		return s.fatal
	}
	return nil
}

// SetReferencePoints forwards the calibration reference endpoints for audit.
func (s *Session) SetReferencePoints(a, b calib.Point) {
	s.calibrator.SetReferencePoints(a, b)
}

// Calibration returns the finalized calibration result, if any.
func (s *Session) Calibration() (calib.Result, bool) {
	return s.calibrator.Result()
}

// Step processes one raw keypoint frame.
func (s *Session) Step(frame *pose.Frame) (StepResult, error) {
	return s.step(frame, nil)
}

// StepBlended processes one frame given two independent pose estimates,
// blended by the normalizer's configured weight.
func (s *Session) StepBlended(primary, secondary *pose.Frame) (StepResult, error) {
	return s.step(primary, secondary)
}

func (s *Session) step(primary, secondary *pose.Frame) (StepResult, error) {
	if s.fatal != nil {
		return StepResult{}, s.fatal
	}
	s.trialFrames++

	// The calibration timeout runs on frame time, not on sample arrival: a
	// reference that never shows up must still fail the calibration.
	if frame := primary; frame != nil || secondary != nil {
		if frame == nil {
			frame = secondary
		}
		if s.calibrator.Tick(frame.Timestamp) == calib.Failed {
			s.fatal = fmt.Errorf("%w: no stable scale after %.1fs", ErrCalibrationFailed, s.Config.Calibration.Timeout)
			return StepResult{}, s.fatal
		}
	}

	norm := s.normalizer.NormalizeBlended(primary, secondary)
	res := StepResult{Phase: s.machine.State()}
	if norm == nil {
		res.Calibrating = s.calibrator.State() == calib.Collecting
		return res, nil
	}
	res.Observed = true
	s.trialValid++

	if s.calibrator.State() == calib.Collecting {
		s.feedCalibration(norm)
		if s.calibrator.State() == calib.Failed {
			s.fatal = fmt.Errorf("%w: no stable scale after %.1fs", ErrCalibrationFailed, s.Config.Calibration.Timeout)
			return StepResult{}, s.fatal
		}
		if s.calibrator.State() == calib.Collecting {
			res.Calibrating = true
			return res, nil
		}
	}
	if !s.motionPhase {
		// Calibration frames precede the motion; they must not count
		// against the trial's signal quality.
		s.motionPhase = true
		s.trialFrames, s.trialValid = 1, 1
	}

	s.observeReferences(norm)

	sample, ok := s.extractor.Extract(norm)
	if !ok {
		return res, nil
	}
	s.lastSample = sample

	phase, ev := s.machine.Step(sample)
	res.Phase = phase
	if ev == nil {
		return res, nil
	}

	verdict := s.validator.Validate(*ev, s.baseline, s.latestRef)
	res.Event = ev
	res.Validation = &verdict

	if !verdict.Accepted {
		// Restart the cycle so a partially valid motion cannot be
		// double counted.
		s.machine.ResetCycle(sample)
		if s.Config.Measure != MeasureCount {
			tm := s.buildMetric(ev, false, verdict.Reasons)
			s.aggregator.Record(tm)
			res.Trial = &tm
		}
		return res, nil
	}

	switch s.Config.Measure {
	case MeasureCount:
		s.repCount++
	default:
		tm := s.buildMetric(ev, true, nil)
		s.aggregator.Record(tm)
		res.Trial = &tm
	}

	if s.Config.Measure == MeasureCount && s.Config.Machine.IsTerminal(phase) {
		if tm, err := s.EndTrial(); err == nil && tm != nil {
			res.Trial = tm
		}
	}
	return res, nil
}

// EndTrial closes the current trial. For repetition disciplines it records
// the accumulated count as the trial value; for the rest it is only needed
// when a trial must be abandoned. Returns ErrInsufficientSignal when no
// valid frame was observed during the trial.
func (s *Session) EndTrial() (*TrialMetric, error) {
	if s.fatal != nil {
		return nil, s.fatal
	}
	if s.Config.Measure != MeasureCount || s.repRecorded {
		return nil, nil
	}
	if s.trialValid == 0 {
		return nil, fmt.Errorf("%w: no valid frames in trial", ErrInsufficientSignal)
	}

	cal, _ := s.calibrator.Result()
	tm := TrialMetric{
		TrialID:    uuid.NewString(),
		Value:      float64(s.repCount),
		Unit:       s.Config.Unit,
		Confidence: Confidence(cal, s.signalQuality()),
		Accepted:   true,
		At:         s.lastSample.Timestamp,
	}
	s.aggregator.Record(tm)
	s.repRecorded = true
	return &tm, nil
}

// ResetTrial prepares the session for the subject's next attempt.
// Calibration is session scoped and survives; smoothing state, phase
// machine, baseline, and per-trial counters do not.
func (s *Session) ResetTrial() {
	s.normalizer.Reset()
	s.extractor.Reset()
	for _, ex := range s.refExtract {
		ex.Reset()
	}
	s.machine.Restart()
	s.baselineTrk.Reset()
	s.baseline = nil
	s.latestRef = make(map[string]float64, len(s.Config.BaselineSignals))
	s.trialFrames, s.trialValid = 0, 0
	s.motionPhase = false
	s.repCount = 0
	s.repRecorded = false
}

// ResetSession discards everything including calibration and recorded
// trials. The session keeps its identity.
func (s *Session) ResetSession() {
	s.ResetTrial()
	s.calibrator.Reset()
	s.aggregator = NewAggregator(s.ID, s.Config.Discipline, s.Config.Unit)
	s.fatal = nil
}

// Finalize computes the session result. Idempotent; recorded trials are
// not mutated.
func (s *Session) Finalize() SessionResult {
	return s.aggregator.Finalize()
}

// Phase returns the machine's current state.
func (s *Session) Phase() PhaseState { return s.machine.State() }

// Baseline returns the locked trial baseline, or nil before lock.
func (s *Session) Baseline() Baseline { return s.baseline }

// RepCount returns the accepted repetitions of the current trial.
func (s *Session) RepCount() int { return s.repCount }

func (s *Session) feedCalibration(norm *pose.Frame) {
	spec := s.Config.Calibration
	if spec.JointA == "" {
		return // samples arrive through AddCalibrationSample
	}
	px, ok := norm.Distance(spec.JointA, spec.JointB)
	if !ok {
		return
	}
	s.calibrator.AddSample(px, spec.KnownDistance, norm.Timestamp)
}

func (s *Session) observeReferences(norm *pose.Frame) {
	for name, ex := range s.refExtract {
		sample, ok := ex.Extract(norm)
		if !ok {
			continue
		}
		s.latestRef[name] = sample.Value
		if s.baseline == nil {
			s.baselineTrk.Observe(name, sample.Value)
		}
	}
	if s.baseline == nil {
		if b, ok := s.baselineTrk.TryLock(); ok {
			s.baseline = b
		}
	}
}

func (s *Session) buildMetric(ev *CandidateEvent, accepted bool, reasons []ViolationKind) TrialMetric {
	cal, _ := s.calibrator.Result()
	var value float64
	switch s.Config.Measure {
	case MeasureDistance:
		value = ComputeDistance(*ev, cal, s.Config.Unit)
	case MeasureElapsed:
		value = ev.Duration()
	}
	return TrialMetric{
		TrialID:    uuid.NewString(),
		Value:      value,
		Unit:       s.Config.Unit,
		Confidence: Confidence(cal, s.signalQuality()),
		Accepted:   accepted,
		Violations: reasons,
		At:         ev.At,
	}
}

func (s *Session) signalQuality() float64 {
	if s.trialFrames == 0 {
		return 0
	}
	return float64(s.trialValid) / float64(s.trialFrames)
}
