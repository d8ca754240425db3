package engine

import "errors"

// Session-fatal errors. Recoverable conditions (missing observations,
// rejected events) are returned as ordinary values so frame processing can
// continue; these two terminate the session.
var (
	// ErrCalibrationFailed means sample collection exceeded its timeout
	// without converging. No measurement may be reported for the session.
	ErrCalibrationFailed = errors.New("calibration failed")

	// ErrInvalidConfig means transition specs are ambiguous or thresholds
	// are physically inconsistent. Detected at session setup, before any
	// frame is processed.
	ErrInvalidConfig = errors.New("invalid engine configuration")
)

// ErrInsufficientSignal is reported when a trial closes with too few valid
// keypoint observations to score. Recoverable: the caller should reset the
// trial and re-prompt the subject.
var ErrInsufficientSignal = errors.New("insufficient signal")
