// Package units provides shared constants and validation for measurement units
package units

// Unit constants
const (
	Metres      = "m"
	Centimetres = "cm"
	Seconds     = "s"
	Reps        = "reps"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{Metres, Centimetres, Seconds, Reps}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return "m, cm, s, reps"
}

// ConvertLength converts a length from metres to the target units.
// The engine computes lengths in metres internally.
func ConvertLength(lengthM float64, targetUnits string) float64 {
	switch targetUnits {
	case Centimetres:
		return lengthM * 100
	case Metres:
		return lengthM
	default:
		return lengthM
	}
}

// LowerIsBetter reports whether smaller values rank higher for the unit.
// Timed disciplines (sprint, shuttle run) score in seconds where the
// fastest attempt wins; everything else scores by magnitude.
func LowerIsBetter(unit string) bool {
	return unit == Seconds
}
