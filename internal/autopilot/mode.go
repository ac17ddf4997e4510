// Package autopilot holds the guidance and control laws shared by the vessel
// models: control modes, the heading PID with its reference filter, and
// line-of-sight waypoint guidance.
package autopilot

import (
	"fmt"
	"math"
	"strings"
)

// Mode selects how a vessel computes its control command each step.
type Mode string

const (
	HeadingAutopilot   Mode = "heading_autopilot"
	DynamicPositioning Mode = "dynamic_positioning"
	LOSPathFollowing   Mode = "los_path_following"
	StepInput          Mode = "step_input"
)

// Modes lists every mode in declaration order.
var Modes = []Mode{HeadingAutopilot, DynamicPositioning, LOSPathFollowing, StepInput}

// ParseMode accepts the canonical names plus the CamelCase spelling used in
// older scenario files.
func ParseMode(s string) (Mode, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	for _, m := range Modes {
		if norm == string(m) || norm == strings.ReplaceAll(string(m), "_", "") {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown control mode %q", s)
}

func (m Mode) String() string { return string(m) }

// Ssa maps an angle in radians to [-pi, pi).
func Ssa(angle float64) float64 {
	a := math.Mod(angle+math.Pi, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	return a - math.Pi
}

// Deg2Rad and Rad2Deg convert between degrees and radians.
func Deg2Rad(deg float64) float64 { return deg * math.Pi / 180 }
func Rad2Deg(rad float64) float64 { return rad * 180 / math.Pi }
