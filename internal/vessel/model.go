package vessel

import (
	"fmt"
	"sort"
	"sync"

	"github.com/banshee-data/vessel.report/internal/autopilot"
)

// Built-in vessel type names.
const (
	TypeClarke83 = "Clarke83"
	TypeTanker   = "Tanker"
)

// Hull describes the principal dimensions and rudder limits of a vessel.
type Hull struct {
	Length             float64 `json:"length"`                // m
	Beam               float64 `json:"beam"`                  // m
	Draft              float64 `json:"draft"`                 // m
	BlockCoefficient   float64 `json:"block_coefficient"`     // Cb
	RudderMax          float64 `json:"rudder_max"`            // deg
	RudderRateMax      float64 `json:"rudder_rate_max"`       // deg/s
	RudderTimeConstant float64 `json:"rudder_time_constant"`  // s
}

// Config is everything needed to construct a vessel model.
type Config struct {
	Name string
	Type string
	Mode autopilot.Mode
	Hull Hull

	// Propulsion is the surge force in newtons for Clarke83 and the
	// propeller speed in rpm for Tanker.
	Propulsion float64

	// AcceptanceFactor is the LOS acceptance radius and lookahead distance
	// in hull lengths.
	AcceptanceFactor float64

	// HeadingReference (deg) is held by the heading autopilot when the
	// vessel has no route. Nil holds the initial heading.
	HeadingReference *float64

	// StepRudder (deg) is applied from StepTime (s) onward in StepInput mode.
	StepRudder float64
	StepTime   float64
}

// Model is a vessel dynamics model with its own guidance and control.
//
// Call order each simulation step is UpdateWaypoints, ControlStep, Advance.
type Model interface {
	Name() string
	Type() string
	Mode() autopilot.Mode
	Hull() Hull

	// Init resets the model to the start state. It must be called before
	// any other step method.
	Init(start StartState, env Environment) error

	// UpdateWaypoints refreshes the heading reference from the route.
	UpdateWaypoints()

	// ControlStep computes the control command for the next dt seconds.
	ControlStep(dt float64) (ControlCommand, error)

	// Advance integrates the dynamics by dt under cmd.
	Advance(cmd ControlCommand, dt float64) StepReport

	// Snapshot captures the current state stamped with time t.
	Snapshot(t float64) StateBundle

	// Waypoints returns the route the model was initialised with.
	Waypoints() []autopilot.Waypoint
}

// Factory constructs an uninitialised model.
type Factory func(cfg Config) Model

type registration struct {
	factory Factory
	modes   map[autopilot.Mode]bool
}

var (
	registryMu sync.RWMutex
	registry   = map[string]registration{}
)

func init() {
	Register(TypeClarke83, newClarke83, autopilot.HeadingAutopilot, autopilot.LOSPathFollowing, autopilot.StepInput)
	Register(TypeTanker, newTanker, autopilot.StepInput)
}

// Register makes a vessel type available to New. Registering an existing
// name replaces it.
func Register(typeName string, f Factory, modes ...autopilot.Mode) {
	set := make(map[autopilot.Mode]bool, len(modes))
	for _, m := range modes {
		set[m] = true
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[typeName] = registration{factory: f, modes: set}
}

// Types lists the registered vessel types in sorted order.
func Types() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Supports reports whether typeName implements mode.
func Supports(typeName string, mode autopilot.Mode) (bool, error) {
	registryMu.RLock()
	reg, ok := registry[typeName]
	registryMu.RUnlock()
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownVesselType, typeName)
	}
	return reg.modes[mode], nil
}

// New constructs a model of cfg.Type. Unsupported modes are rejected here so
// that a run never starts with a vessel that cannot be controlled.
func New(cfg Config) (Model, error) {
	registryMu.RLock()
	reg, ok := registry[cfg.Type]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVesselType, cfg.Type)
	}
	if !reg.modes[cfg.Mode] {
		return nil, fmt.Errorf("%w: %s does not implement %s", ErrNotSupported, cfg.Type, cfg.Mode)
	}
	if cfg.Hull.Length <= 0 || cfg.Hull.Beam <= 0 || cfg.Hull.Draft < 0 {
		return nil, fmt.Errorf("%w: length %.2f beam %.2f draft %.2f",
			ErrDegenerateVesselGeometry, cfg.Hull.Length, cfg.Hull.Beam, cfg.Hull.Draft)
	}
	if cfg.AcceptanceFactor <= 0 {
		cfg.AcceptanceFactor = 2
	}
	return reg.factory(cfg), nil
}

func clamp(v, limit float64) float64 {
	if v > limit {
		return limit
	}
	if v < -limit {
		return -limit
	}
	return v
}
