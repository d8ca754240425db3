package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fieldlab-data/kinemetric/internal/engine"
)

// TuningConfig holds per-run overrides for a discipline profile. Fields left
// nil in the JSON keep the profile's values, so partial configs are safe.
// The schema mirrors the engine config fields an operator actually retunes
// between capture batches; structural fields (signals, transitions) stay in
// the profile.
type TuningConfig struct {
	// Normalizer params
	SmoothingAlpha *float64 `json:"smoothing_alpha,omitempty"`
	MinConfidence  *float64 `json:"min_confidence,omitempty"`

	// Calibration params
	CalibMinSamples       *int     `json:"calib_min_samples,omitempty"`
	CalibOutlierTolerance *float64 `json:"calib_outlier_tolerance,omitempty"`
	CalibTimeout          *float64 `json:"calib_timeout,omitempty"` // seconds of frame time

	// Validator params
	HoldTimeValidation *float64 `json:"hold_time_validation,omitempty"`
	MinSignalRange     *float64 `json:"min_signal_range,omitempty"`
	MaxEventDuration   *float64 `json:"max_event_duration,omitempty"`
	BaselineTolerance  *float64 `json:"baseline_tolerance,omitempty"`

	// Session params
	MaxTrials *int `json:"max_trials,omitempty"`
}

// LoadTuningConfig loads override values from a JSON file. The resulting
// engine config is validated again after Apply, so this only rejects values
// that are nonsensical on their own.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("tuning file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat tuning file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("tuning file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read tuning file: %w", err)
	}

	cfg := &TuningConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse tuning JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tuning: %w", err)
	}
	return cfg, nil
}

// Validate checks that set fields are in range.
func (t *TuningConfig) Validate() error {
	if t.SmoothingAlpha != nil {
		if *t.SmoothingAlpha <= 0 || *t.SmoothingAlpha > 1 {
			return fmt.Errorf("smoothing_alpha must be in (0, 1], got %f", *t.SmoothingAlpha)
		}
	}
	if t.MinConfidence != nil {
		if *t.MinConfidence < 0 || *t.MinConfidence > 1 {
			return fmt.Errorf("min_confidence must be between 0 and 1, got %f", *t.MinConfidence)
		}
	}
	if t.CalibMinSamples != nil && *t.CalibMinSamples <= 0 {
		return fmt.Errorf("calib_min_samples must be positive, got %d", *t.CalibMinSamples)
	}
	if t.CalibOutlierTolerance != nil && *t.CalibOutlierTolerance <= 0 {
		return fmt.Errorf("calib_outlier_tolerance must be positive, got %f", *t.CalibOutlierTolerance)
	}
	if t.CalibTimeout != nil && *t.CalibTimeout <= 0 {
		return fmt.Errorf("calib_timeout must be positive, got %f", *t.CalibTimeout)
	}
	if t.MaxTrials != nil && *t.MaxTrials < 0 {
		return fmt.Errorf("max_trials must be non-negative, got %d", *t.MaxTrials)
	}
	return nil
}

// Apply copies the set fields onto cfg. The caller re-validates the merged
// config through engine.NewSession.
func (t *TuningConfig) Apply(cfg *engine.Config) {
	if t.SmoothingAlpha != nil {
		cfg.Normalizer.SmoothingAlpha = *t.SmoothingAlpha
	}
	if t.MinConfidence != nil {
		cfg.Normalizer.MinConfidence = *t.MinConfidence
	}
	if t.CalibMinSamples != nil {
		cfg.Calibration.MinSamples = *t.CalibMinSamples
	}
	if t.CalibOutlierTolerance != nil {
		cfg.Calibration.OutlierTolerance = *t.CalibOutlierTolerance
	}
	if t.CalibTimeout != nil {
		cfg.Calibration.Timeout = *t.CalibTimeout
	}
	if t.HoldTimeValidation != nil {
		cfg.Validator.HoldTime = *t.HoldTimeValidation
	}
	if t.MinSignalRange != nil {
		cfg.Validator.MinSignalRange = *t.MinSignalRange
	}
	if t.MaxEventDuration != nil {
		cfg.Validator.MaxEventDuration = *t.MaxEventDuration
	}
	if t.BaselineTolerance != nil {
		cfg.Validator.BaselineTolerance = *t.BaselineTolerance
	}
	if t.MaxTrials != nil {
		cfg.MaxTrials = *t.MaxTrials
	}
}
