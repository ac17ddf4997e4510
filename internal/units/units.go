// Package units converts simulated speeds, which are always metres per
// second, into the units used in reports.
package units

import (
	"fmt"
	"strings"
)

// Speed unit names.
const (
	MPS   = "mps"
	Knots = "kn"
	KPH   = "kph"
	MPH   = "mph"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{MPS, Knots, KPH, MPH}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, u := range ValidUnits {
		if unit == u {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return strings.Join(ValidUnits, ", ")
}

// ConvertSpeed converts a speed in metres per second to unit. Unknown
// units return the input unchanged.
func ConvertSpeed(speedMPS float64, unit string) float64 {
	switch unit {
	case Knots:
		return speedMPS * 3600 / 1852
	case KPH:
		return speedMPS * 3.6
	case MPH:
		return speedMPS * 2.2369362920544
	default:
		return speedMPS
	}
}

// FormatSpeed renders a speed in metres per second in unit, e.g. "6.3 kn".
func FormatSpeed(speedMPS float64, unit string) string {
	if !IsValid(unit) {
		unit = MPS
	}
	return fmt.Sprintf("%.1f %s", ConvertSpeed(speedMPS, unit), unit)
}
