package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldlab-data/kinemetric/internal/calib"
	"github.com/fieldlab-data/kinemetric/internal/pose"
	"github.com/fieldlab-data/kinemetric/internal/testutil"
	"github.com/fieldlab-data/kinemetric/internal/units"
)

// jumpTestConfig is a distance-measuring session with identity smoothing
// and externally supplied calibration, so tests control the signal exactly.
func jumpTestConfig() Config {
	cfg := validTestConfig()
	cfg.Normalizer.SmoothingAlpha = 1.0
	cfg.Calibration.Config.MinSamples = 5
	cfg.Signal = SignalSpec{
		Kind:    SignalPositionX,
		Joints:  []pose.Joint{pose.LeftAnkle, pose.RightAnkle},
		Combine: CombineMidpoint,
	}
	return cfg
}

func calibrateExternally(t *testing.T, s *Session, px, unitDist float64, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		testutil.AssertNoError(t, s.AddCalibrationSample(px, unitDist, float64(i)*0.033))
	}
	cal, ok := s.Calibration()
	require.True(t, ok, "calibration should have converged")
	require.InDelta(t, px/unitDist, cal.ScalePxPerUnit, 1e-9)
}

// feedFrames steps every frame through the session and returns the last
// result that carried an event, if any.
func feedFrames(t *testing.T, s *Session, frames []*pose.Frame) *StepResult {
	t.Helper()
	var eventRes *StepResult
	for _, f := range frames {
		res, err := s.Step(f)
		testutil.AssertNoError(t, err)
		if res.Event != nil {
			r := res
			eventRes = &r
		}
	}
	return eventRes
}

func TestSessionMeasuresJumpDistance(t *testing.T) {
	t.Parallel()

	s, err := NewSession(jumpTestConfig())
	require.NoError(t, err)
	require.NotEmpty(t, s.ID)

	// A 1m reference measures 500px: scale 500 px/m.
	calibrateExternally(t, s, 500, 1.0, 5)

	// Five still frames, a fast ramp to 700px, then stillness. The motion
	// occupancy starts at 150px, so 550px of travel should score 1.1m.
	positions := testutil.HoldPositions(100, 300, 5)
	positions = append(positions, testutil.RampPositions(150, 300, 700, 300, 12)...)
	positions = append(positions, testutil.HoldPositions(700, 300, 3)...)
	frames := testutil.FrameSeq(0, 10, positions)

	eventRes := feedFrames(t, s, frames)
	require.NotNil(t, eventRes, "expected the landing event to fire")
	require.NotNil(t, eventRes.Validation)
	assert.True(t, eventRes.Validation.Accepted)
	assert.Equal(t, PhaseState("done"), eventRes.Phase)

	require.NotNil(t, eventRes.Trial)
	assert.InDelta(t, 1.1, eventRes.Trial.Value, 1e-6)
	assert.Equal(t, units.Metres, eventRes.Trial.Unit)
	assert.True(t, eventRes.Trial.Accepted)
	// Every motion frame was observed, so confidence is the calibration's.
	assert.InDelta(t, 0.9, eventRes.Trial.Confidence, 1e-9)

	res := s.Finalize()
	require.NotNil(t, res.Best)
	assert.InDelta(t, 1.1, *res.Best, 1e-6)
	assert.Equal(t, 1, res.CountValid)
}

func TestSessionSecondTrialKeepsCalibration(t *testing.T) {
	t.Parallel()

	s, err := NewSession(jumpTestConfig())
	require.NoError(t, err)
	calibrateExternally(t, s, 500, 1.0, 5)

	jump := func(travelTo float64) {
		positions := testutil.HoldPositions(100, 300, 5)
		positions = append(positions, testutil.RampPositions(150, 300, travelTo, 300, 11)...)
		positions = append(positions, testutil.HoldPositions(travelTo, 300, 3)...)
		eventRes := feedFrames(t, s, testutil.FrameSeq(0, 10, positions))
		require.NotNil(t, eventRes)
		require.NotNil(t, eventRes.Trial)
	}

	jump(650) // 500px of motion: 1.0m
	s.ResetTrial()
	_, ok := s.Calibration()
	assert.True(t, ok, "calibration is session scoped and must survive a trial reset")
	jump(700) // 550px of motion: 1.1m

	res := s.Finalize()
	require.Len(t, res.Trials, 2)
	assert.InDelta(t, 1.0, res.Trials[0].Value, 1e-6)
	assert.InDelta(t, 1.1, res.Trials[1].Value, 1e-6)
	require.NotNil(t, res.Best)
	require.NotNil(t, res.Mean)
	assert.InDelta(t, 1.1, *res.Best, 1e-6)
	assert.InDelta(t, 1.05, *res.Mean, 1e-6)
	assert.Equal(t, 2, res.CountValid)
}

// repTestConfig counts repetitions of a horizontal oscillation.
func repTestConfig() Config {
	return Config{
		Discipline: "rep_drill",
		Unit:       units.Reps,
		Measure:    MeasureCount,
		Normalizer: pose.NormalizerConfig{
			SmoothingAlpha: 1.0,
			MinConfidence:  0.5,
			RequiredJoints: pose.CoreJoints,
		},
		Calibration: CalibrationSpec{
			Config: func() calib.Config {
				c := calib.DefaultConfig(calib.Fiducial)
				c.MinSamples = 3
				return c
			}(),
		},
		Signal: SignalSpec{
			Kind:    SignalPositionX,
			Joints:  []pose.Joint{pose.LeftAnkle, pose.RightAnkle},
			Combine: CombineMidpoint,
		},
		Machine: MachineConfig{
			Initial: "down",
			Transitions: []Transition{
				{From: "down", To: "up",
					Predicate: Predicate{Kind: ValueAbove, Threshold: 400}},
				{From: "up", To: "down",
					Predicate: Predicate{Kind: ValueBelow, Threshold: 200},
					Emit:      "rep"},
			},
		},
		Validator: ValidatorConfig{MinSignalRange: 250},
	}
}

func TestSessionCountsReps(t *testing.T) {
	t.Parallel()

	s, err := NewSession(repTestConfig())
	require.NoError(t, err)
	calibrateExternally(t, s, 100, 0.2, 3)

	positions := [][2]float64{
		{100, 300},
		{500, 300}, {500, 300}, {100, 300}, // rep 1
		{500, 300}, {100, 300}, // rep 2
	}
	feedFrames(t, s, testutil.FrameSeq(0, 10, positions))
	assert.Equal(t, 2, s.RepCount())

	tm, err := s.EndTrial()
	require.NoError(t, err)
	require.NotNil(t, tm)
	assert.Equal(t, 2.0, tm.Value)
	assert.Equal(t, units.Reps, tm.Unit)
	assert.True(t, tm.Accepted)

	// EndTrial is idempotent per trial.
	again, err := s.EndTrial()
	require.NoError(t, err)
	assert.Nil(t, again)

	res := s.Finalize()
	require.NotNil(t, res.Best)
	assert.Equal(t, 2.0, *res.Best)
	assert.Equal(t, 1, res.CountValid)
}

func TestSessionRejectsShallowRep(t *testing.T) {
	t.Parallel()

	cfg := repTestConfig()
	cfg.Validator.MinSignalRange = 600
	s, err := NewSession(cfg)
	require.NoError(t, err)
	calibrateExternally(t, s, 100, 0.2, 3)

	positions := [][2]float64{
		{100, 300},
		{500, 300}, {100, 300}, // only 400px of travel
	}
	eventRes := feedFrames(t, s, testutil.FrameSeq(0, 10, positions))
	require.NotNil(t, eventRes)
	require.NotNil(t, eventRes.Validation)
	assert.False(t, eventRes.Validation.Accepted)
	assert.Contains(t, eventRes.Validation.Reasons, RangeTooSmall)
	assert.Equal(t, 0, s.RepCount(), "a rejected event must not count")
	assert.Nil(t, eventRes.Trial, "count disciplines record no per-event metric")
}

func TestSessionRejectsBaselineCheat(t *testing.T) {
	t.Parallel()

	cfg := jumpTestConfig()
	cfg.Machine = MachineConfig{
		Initial:  "awaiting",
		Terminal: []PhaseState{"done"},
		Transitions: []Transition{
			{From: "awaiting", To: "done",
				Predicate: Predicate{Kind: ValueAbove, Threshold: 400},
				Emit:      "cross"},
		},
	}
	cfg.Validator = ValidatorConfig{BaselineTolerance: 25}
	cfg.BaselineSignals = map[string]SignalSpec{
		"heel_height": {
			Kind:    SignalPositionY,
			Joints:  []pose.Joint{pose.LeftAnkle, pose.RightAnkle},
			Combine: CombineMidpoint,
		},
	}
	cfg.BaselineFrames = 3

	s, err := NewSession(cfg)
	require.NoError(t, err)
	calibrateExternally(t, s, 500, 1.0, 5)

	// Heels start at y=300 and are lifted to y=260 by the time the event
	// fires: outside the 25px tolerance band.
	positions := [][2]float64{
		{100, 300}, {100, 300}, {100, 300},
		{300, 280}, {500, 260},
	}
	eventRes := feedFrames(t, s, testutil.FrameSeq(0, 10, positions))
	require.NotNil(t, eventRes)
	require.NotNil(t, s.Baseline())
	assert.InDelta(t, 300, s.Baseline()["heel_height"], 1e-9)
	require.NotNil(t, eventRes.Validation)
	assert.False(t, eventRes.Validation.Accepted)
	assert.Equal(t, []ViolationKind{BaselineDeviation}, eventRes.Validation.Reasons)

	require.NotNil(t, eventRes.Trial)
	assert.False(t, eventRes.Trial.Accepted, "rejected attempts stay in the audit trail")

	res := s.Finalize()
	assert.Nil(t, res.Best)
	assert.Equal(t, 0, res.CountValid)
}

func TestSessionCalibrationFailureIsFatal(t *testing.T) {
	t.Parallel()

	cfg := jumpTestConfig()
	cfg.Calibration.Config.Timeout = 1.0
	s, err := NewSession(cfg)
	require.NoError(t, err)

	// Samples that never agree burn through the calibration timeout.
	var calErr error
	for i := 0; calErr == nil && i < 100; i++ {
		px := 400.0
		if i%2 == 1 {
			px = 600.0
		}
		calErr = s.AddCalibrationSample(px, 1.0, float64(i)*0.1)
	}
	require.Error(t, calErr)
	assert.True(t, errors.Is(calErr, ErrCalibrationFailed))

	// The session is dead: frames are refused with the same error.
	_, err = s.Step(testutil.Frame(0, 20, 100, 300, nil))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCalibrationFailed))
}

func TestSessionCalibrationTimesOutWithoutReference(t *testing.T) {
	t.Parallel()

	// Wrist-based calibration, but the wrists never appear in any frame:
	// no sample ever reaches the calibrator. The timeout must still fire.
	cfg := jumpTestConfig()
	cfg.Calibration = CalibrationSpec{
		Config:        calib.DefaultConfig(calib.AnthropometricRatio),
		JointA:        pose.LeftWrist,
		JointB:        pose.RightWrist,
		KnownDistance: 0.5,
	}
	cfg.Calibration.Timeout = 1.0
	s, err := NewSession(cfg)
	require.NoError(t, err)

	frames := testutil.FrameSeq(0, 10, testutil.HoldPositions(100, 300, 30))
	var stepErr error
	for _, f := range frames {
		if _, stepErr = s.Step(f); stepErr != nil {
			break
		}
	}
	require.Error(t, stepErr, "session must not stay calibrating past the timeout")
	assert.True(t, errors.Is(stepErr, ErrCalibrationFailed))

	// The failure is session-fatal.
	_, err = s.Step(testutil.Frame(99, 5.0, 100, 300, nil))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCalibrationFailed))
}

func TestSessionFramesDuringCalibration(t *testing.T) {
	t.Parallel()

	// Joint-fed calibration: shoulder-hip distance against a known torso
	// length, sampled from the frames themselves.
	cfg := jumpTestConfig()
	cfg.Calibration = CalibrationSpec{
		Config: func() calib.Config {
			c := calib.DefaultConfig(calib.AnthropometricRatio)
			c.MinSamples = 5
			return c
		}(),
		JointA:        pose.LeftShoulder,
		JointB:        pose.LeftHip,
		KnownDistance: 0.45,
	}
	s, err := NewSession(cfg)
	require.NoError(t, err)

	torso := map[pose.Joint]pose.Keypoint{
		pose.LeftShoulder: {X: 100, Y: 100, Confidence: 0.9},
		pose.LeftHip:      {X: 100, Y: 325, Confidence: 0.9},
	}
	for i := 0; i < 4; i++ {
		res, err := s.Step(testutil.Frame(uint64(i), float64(i)*0.1, 100, 300, torso))
		require.NoError(t, err)
		assert.True(t, res.Calibrating)
	}
	res, err := s.Step(testutil.Frame(4, 0.4, 100, 300, torso))
	require.NoError(t, err)
	assert.False(t, res.Calibrating)

	cal, ok := s.Calibration()
	require.True(t, ok)
	assert.InDelta(t, 225.0/0.45, cal.ScalePxPerUnit, 1e-9)
	assert.Equal(t, calib.AnthropometricRatio, cal.Method)
}

func TestSessionInsufficientSignal(t *testing.T) {
	t.Parallel()

	s, err := NewSession(repTestConfig())
	require.NoError(t, err)
	calibrateExternally(t, s, 100, 0.2, 3)

	// Every frame fails the confidence gate.
	for i := 0; i < 5; i++ {
		f := testutil.Frame(uint64(i), float64(i)*0.1, 100, 300, nil)
		for j, kp := range f.Joints {
			kp.Confidence = 0.1
			f.Joints[j] = kp
		}
		res, err := s.Step(f)
		require.NoError(t, err)
		assert.False(t, res.Observed)
	}

	_, err = s.EndTrial()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInsufficientSignal))
}

func TestSessionResetSessionDiscardsEverything(t *testing.T) {
	t.Parallel()

	s, err := NewSession(repTestConfig())
	require.NoError(t, err)
	calibrateExternally(t, s, 100, 0.2, 3)
	feedFrames(t, s, testutil.FrameSeq(0, 10, [][2]float64{
		{100, 300}, {500, 300}, {100, 300},
	}))
	require.Equal(t, 1, s.RepCount())

	s.ResetSession()
	assert.Equal(t, 0, s.RepCount())
	_, ok := s.Calibration()
	assert.False(t, ok, "ResetSession drops the calibration")
	assert.Empty(t, s.Finalize().Trials)
}

func TestNewSessionRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	cfg := jumpTestConfig()
	cfg.Unit = "km"
	_, err := NewSession(cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}
