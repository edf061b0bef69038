// Package units provides shared constants and validation for length units
package units

import "fmt"

// Unit constants
const (
	Metre      = "m"
	Centimetre = "cm"
	Millimetre = "mm"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{Metre, Centimetre, Millimetre}

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
	return "m, cm, mm"
}

// MetresPer returns how many metres one of the given unit is.
// Sessions store every distance in metres.
func MetresPer(unit string) (float64, error) {
	switch unit {
	case Metre, "":
		return 1, nil
	case Centimetre:
		return 0.01, nil
	case Millimetre:
		return 0.001, nil
	default:
		return 0, fmt.Errorf("invalid length unit %q, must be one of: %s", unit, GetValidUnitsString())
	}
}
