// Package calib derives a pixel-to-real-world scale factor from repeated
// reference measurements. Calibration is a hard precondition for phase
// detection: a session whose calibrator fails must not report measurements.
package calib

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Method identifies the calibration strategy.
type Method string

const (
	// Fiducial calibrates against a printed marker of exactly known size
	// (most accurate, needs few samples).
	Fiducial Method = "fiducial"
	// ReferenceObject calibrates against a user-supplied object of known
	// length (metre tape, ruler).
	ReferenceObject Method = "reference_object"
	// AnthropometricRatio estimates scale from population-average body
	// proportions. Least trusted; needs many samples.
	AnthropometricRatio Method = "anthropometric_ratio"
)

// State represents the lifecycle state of a calibrator.
type State string

const (
	Collecting State = "collecting" // Accumulating scale samples
	Calibrated State = "calibrated" // Scale finalized, read-only
	Failed     State = "failed"     // Timed out without converging
)

// Point is a pixel-space reference location.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Result is a finalized calibration. ScalePxPerUnit is always positive.
type Result struct {
	ScalePxPerUnit  float64  `json:"scale_px_per_unit"`
	Confidence      float64  `json:"confidence"` // [0, 1]
	Method          Method   `json:"method"`
	ReferencePoints [2]Point `json:"reference_points"`
	SampleCount     int      `json:"sample_count"` // samples surviving the outlier filter
}

// Config holds calibration tuning parameters.
type Config struct {
	Method               Method
	MinSamples           int     // Samples required before finalization is attempted
	OutlierTolerance     float64 // Max relative deviation from the median
	MinSurvivingFraction float64 // Fraction of samples that must survive filtering
	Timeout              float64 // Seconds of frame time before calibration fails
}

// DefaultConfig returns per-method defaults. Fiducial markers are stable
// enough to finalize on 10 samples; anthropometric estimation needs 35 with
// a strict 3% median filter.
func DefaultConfig(method Method) Config {
	cfg := Config{
		Method:               method,
		OutlierTolerance:     0.03,
		MinSurvivingFraction: 0.7,
		Timeout:              20.0,
	}
	switch method {
	case AnthropometricRatio:
		cfg.MinSamples = 35
	case ReferenceObject:
		cfg.MinSamples = 15
	default:
		cfg.MinSamples = 10
	}
	return cfg
}

// Validate checks that the configuration values are physically consistent.
func (c Config) Validate() error {
	switch c.Method {
	case Fiducial, ReferenceObject, AnthropometricRatio:
	default:
		return fmt.Errorf("unknown calibration method %q", c.Method)
	}
	if c.MinSamples < 1 {
		return fmt.Errorf("calibration min_samples must be at least 1, got %d", c.MinSamples)
	}
	if c.OutlierTolerance <= 0 || c.OutlierTolerance >= 1 {
		return fmt.Errorf("calibration outlier_tolerance must be in (0, 1), got %f", c.OutlierTolerance)
	}
	if c.MinSurvivingFraction <= 0 || c.MinSurvivingFraction > 1 {
		return fmt.Errorf("calibration min_surviving_fraction must be in (0, 1], got %f", c.MinSurvivingFraction)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("calibration timeout must be positive, got %f", c.Timeout)
	}
	return nil
}

// Calibrator accumulates scale-factor samples until it can finalize a
// Result, or fails after a timeout. All timing is in caller-supplied frame
// timestamps; the calibrator owns no wall clock.
type Calibrator struct {
	Config Config

	state     State
	samples   []float64
	firstAt   float64
	haveFirst bool
	refA      Point
	refB      Point
	result    *Result
}

// NewCalibrator creates a calibrator in the Collecting state.
// The configuration must already be validated.
func NewCalibrator(config Config) *Calibrator {
	return &Calibrator{
		Config:  config,
		state:   Collecting,
		samples: make([]float64, 0, config.MinSamples*2),
	}
}

// State returns the current lifecycle state.
func (c *Calibrator) State() State { return c.state }

// SetReferencePoints records the pixel endpoints of the reference being
// measured, carried into the Result for audit.
func (c *Calibrator) SetReferencePoints(a, b Point) {
	c.refA, c.refB = a, b
}

// AddSample accumulates one scale observation: a pixel measurement of a
// feature whose real-world size is known. Non-positive inputs are ignored.
// The at parameter is the frame timestamp in seconds; once samples span more
// than the configured timeout without converging, the calibrator fails.
// Terminal states absorb further samples.
func (c *Calibrator) AddSample(measurementPx, knownUnitDistance, at float64) State {
	if c.state != Collecting {
		return c.state
	}
	if !c.haveFirst {
		c.firstAt = at
		c.haveFirst = true
	}

	if measurementPx > 0 && knownUnitDistance > 0 {
		c.samples = append(c.samples, measurementPx/knownUnitDistance)
	}

	if len(c.samples) >= c.Config.MinSamples && c.tryFinalize() {
		return c.state
	}

	if at-c.firstAt > c.Config.Timeout {
		c.state = Failed
	}
	return c.state
}

// Tick advances the timeout clock without contributing a sample. Callers
// feed it every frame timestamp so a reference that is never detected still
// fails the calibration once the window elapses, instead of collecting
// forever. Terminal states are unaffected.
func (c *Calibrator) Tick(at float64) State {
	if c.state != Collecting {
		return c.state
	}
	if !c.haveFirst {
		c.firstAt = at
		c.haveFirst = true
	}
	if at-c.firstAt > c.Config.Timeout {
		c.state = Failed
	}
	return c.state
}

// Result returns the finalized calibration. The second return is false
// unless the calibrator is in the Calibrated state.
func (c *Calibrator) Result() (Result, bool) {
	if c.result == nil {
		return Result{}, false
	}
	return *c.result, true
}

// Reset returns the calibrator to Collecting and discards all samples.
func (c *Calibrator) Reset() {
	c.state = Collecting
	c.samples = c.samples[:0]
	c.haveFirst = false
	c.result = nil
}

// tryFinalize filters samples against the median and finalizes if enough
// survive. It reports whether the calibrator reached Calibrated.
func (c *Calibrator) tryFinalize() bool {
	med := median(c.samples)
	if med <= 0 {
		return false
	}

	filtered := make([]float64, 0, len(c.samples))
	for _, s := range c.samples {
		if relDev(s, med) <= c.Config.OutlierTolerance {
			filtered = append(filtered, s)
		}
	}

	surviving := float64(len(filtered)) / float64(len(c.samples))
	if len(filtered) < c.Config.MinSamples || surviving < c.Config.MinSurvivingFraction {
		return false
	}

	c.result = &Result{
		ScalePxPerUnit:  median(filtered),
		Confidence:      c.confidence(surviving),
		Method:          c.Config.Method,
		ReferencePoints: [2]Point{c.refA, c.refB},
		SampleCount:     len(filtered),
	}
	c.state = Calibrated
	return true
}

// confidence maps the method and sample agreement to a score. A fiducial
// marker is independently verifiable and scores 1.0; anthropometric
// estimation rests on population-average assumptions and is capped at a
// 0.6-0.8 band scaled by how cleanly the samples agreed.
func (c *Calibrator) confidence(survivingFraction float64) float64 {
	switch c.Config.Method {
	case Fiducial:
		return 1.0
	case ReferenceObject:
		return 0.9
	default:
		return 0.6 + 0.2*survivingFraction
	}
}

func median(samples []float64) float64 {
	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)
	return stat.Quantile(0.5, stat.Empirical, sorted, nil)
}

func relDev(sample, med float64) float64 {
	d := (sample - med) / med
	if d < 0 {
		return -d
	}
	return d
}
