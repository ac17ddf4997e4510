package vessel

import (
	"math"

	"github.com/banshee-data/vessel.report/internal/autopilot"
)

// Position is a point in the local north-east-down frame (metres).
type Position struct {
	North float64 `json:"north"`
	East  float64 `json:"east"`
	Down  float64 `json:"down"`
}

func (p Position) Add(o Position) Position {
	return Position{p.North + o.North, p.East + o.East, p.Down + o.Down}
}

func (p Position) Sub(o Position) Position {
	return Position{p.North - o.North, p.East - o.East, p.Down - o.Down}
}

func (p Position) Scale(s float64) Position {
	return Position{p.North * s, p.East * s, p.Down * s}
}

// Norm is the 3D length of p treated as a vector.
func (p Position) Norm() float64 {
	return math.Sqrt(p.North*p.North + p.East*p.East + p.Down*p.Down)
}

// HorizontalNorm ignores the down component.
func (p Position) HorizontalNorm() float64 { return math.Hypot(p.North, p.East) }

// Lerp interpolates between p and o; t is not clamped.
func (p Position) Lerp(o Position, t float64) Position {
	return p.Add(o.Sub(p).Scale(t))
}

// Eta is the 6-DOF pose: NED position and zyx Euler angles in radians.
type Eta struct {
	North float64 `json:"north"`
	East  float64 `json:"east"`
	Down  float64 `json:"down"`
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

func (e Eta) Position() Position { return Position{e.North, e.East, e.Down} }

// StateBundle is one logged simulation sample for a vessel.
type StateBundle struct {
	Time            float64 `json:"time"`
	Eta             Eta     `json:"eta"`
	LinearVelocity  Vec3    `json:"linear_velocity"`
	AngularVelocity Vec3    `json:"angular_velocity"`
	RudderAngle     float64 `json:"rudder_angle"`
	RudderCommand   float64 `json:"rudder_command"`
}

// ControlCommand is the output of a vessel's control step.
type ControlCommand struct {
	Rudder     float64 // commanded rudder angle (rad)
	Propulsion float64 // surge force (N) or propeller speed (rpm), model dependent
}

// StartState is the initial condition of a vessel.
type StartState struct {
	Eta             Eta
	LinearVelocity  Vec3
	AngularVelocity Vec3
	Waypoints       []autopilot.Waypoint
}

// Environment holds the water properties shared by every vessel.
type Environment struct {
	Rho              float64 // water density (kg/m^3)
	Depth            float64 // water depth (m)
	CurrentSpeed     float64 // m/s
	CurrentDirection float64 // direction the current flows towards (rad from north)
}

// DefaultEnvironment is sea water at 20 m depth with no current.
func DefaultEnvironment() Environment {
	return Environment{Rho: 1025, Depth: 20}
}

// StepReport carries non-fatal conditions raised during Advance.
type StepReport struct {
	// SingularMass is set when the mass matrix could not be inverted and
	// the step used zero acceleration.
	SingularMass bool
}
