// Package sim runs vessel models forward in fixed time steps and records the
// resulting trajectories.
package sim

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/vessel.report/internal/monitoring"
	"github.com/banshee-data/vessel.report/internal/vessel"
)

var (
	// ErrInvalidStep is returned for a non-positive step or a negative
	// duration.
	ErrInvalidStep = errors.New("invalid simulation step")

	// ErrStaleLog is returned when the log already holds bundles for a
	// vessel about to be simulated. Clear the vessel first.
	ErrStaleLog = errors.New("log already holds data for vessel")

	// ErrUnknownVessel is returned by RunVessel for a name that was never
	// added.
	ErrUnknownVessel = errors.New("unknown vessel")
)

// DefaultProgressEvery matches the host frame budget of the interactive
// application.
const DefaultProgressEvery = 100

// Setup is the time base of a run.
type Setup struct {
	StepTime float64 // dt (s)
	SimTime  float64 // total simulated time (s)

	// ProgressEvery is the number of steps between progress callbacks.
	// Zero uses DefaultProgressEvery.
	ProgressEvery int
}

// Steps is the number of bundles each vessel will log: floor(SimTime/StepTime).
// A duration shorter than one step gives a run with no steps.
func (s Setup) Steps() (int, error) {
	if !(s.StepTime > 0) || math.IsInf(s.StepTime, 0) || !(s.SimTime >= 0) || math.IsInf(s.SimTime, 0) {
		return 0, fmt.Errorf("%w: step %v duration %v", ErrInvalidStep, s.StepTime, s.SimTime)
	}
	// The small bias keeps exact multiples such as 1.0/0.1 from losing a step
	// to rounding.
	return int(math.Floor(s.SimTime/s.StepTime + 1e-9)), nil
}

// Progress is passed to the progress callback.
type Progress struct {
	Step  int
	Total int
	Time  float64
}

// Result summarises a completed run.
type Result struct {
	Steps int

	// SingularSteps counts steps per vessel where the mass matrix could not
	// be inverted.
	SingularSteps map[string]int

	// ControlFailures counts steps per vessel where the control law failed
	// and a zero rudder was applied.
	ControlFailures map[string]int
}

type entry struct {
	model vessel.Model
	start vessel.StartState
}

// Simulation owns a set of vessel models and a shared environment.
type Simulation struct {
	env      vessel.Environment
	log      *Log
	vessels  []entry
	index    map[string]int
	progress func(Progress)
	every    int
}

// New creates a simulation writing into log.
func New(env vessel.Environment, log *Log) *Simulation {
	return &Simulation{env: env, log: log, index: make(map[string]int)}
}

// Log returns the log the simulation writes to.
func (s *Simulation) Log() *Log { return s.log }

// Environment returns the shared water properties.
func (s *Simulation) Environment() vessel.Environment { return s.env }

// AddVessel registers a model with its initial condition. Names must be
// unique.
func (s *Simulation) AddVessel(m vessel.Model, start vessel.StartState) error {
	if _, dup := s.index[m.Name()]; dup {
		return fmt.Errorf("vessel %q already added", m.Name())
	}
	s.index[m.Name()] = len(s.vessels)
	s.vessels = append(s.vessels, entry{model: m, start: start})
	return nil
}

// Vessels returns the models in insertion order.
func (s *Simulation) Vessels() []vessel.Model {
	out := make([]vessel.Model, len(s.vessels))
	for i, e := range s.vessels {
		out[i] = e.model
	}
	return out
}

// Vessel looks up a model by name.
func (s *Simulation) Vessel(name string) (vessel.Model, bool) {
	i, ok := s.index[name]
	if !ok {
		return nil, false
	}
	return s.vessels[i].model, true
}

// OnProgress installs a callback invoked every n steps and after the last
// step. n <= 0 uses the Setup value.
func (s *Simulation) OnProgress(n int, fn func(Progress)) {
	s.every = n
	s.progress = fn
}

// ClearVessel drops the logged data for name so it can be simulated again.
func (s *Simulation) ClearVessel(name string) bool {
	return s.log.Clear(name)
}

// Run simulates every vessel for the whole setup.
func (s *Simulation) Run(ctx context.Context, setup Setup) (Result, error) {
	return s.run(ctx, setup, s.vessels)
}

// RunVessel simulates only the named vessel.
func (s *Simulation) RunVessel(ctx context.Context, name string, setup Setup) (Result, error) {
	i, ok := s.index[name]
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownVessel, name)
	}
	return s.run(ctx, setup, s.vessels[i:i+1])
}

func (s *Simulation) run(ctx context.Context, setup Setup, vessels []entry) (Result, error) {
	total, err := setup.Steps()
	if err != nil {
		return Result{}, err
	}
	for _, e := range vessels {
		if s.log.Len(e.model.Name()) > 0 {
			return Result{}, fmt.Errorf("%w: %q", ErrStaleLog, e.model.Name())
		}
	}
	for _, e := range vessels {
		if err := e.model.Init(e.start, s.env); err != nil {
			return Result{}, fmt.Errorf("failed to initialise vessel %q: %w", e.model.Name(), err)
		}
	}

	every := s.every
	if every <= 0 {
		every = setup.ProgressEvery
	}
	if every <= 0 {
		every = DefaultProgressEvery
	}

	res := Result{
		SingularSteps:   make(map[string]int),
		ControlFailures: make(map[string]int),
	}
	dt := setup.StepTime

	for k := 1; k <= total; k++ {
		if err := ctx.Err(); err != nil {
			// A cancelled run leaves nothing behind so it can be rerun.
			for _, e := range vessels {
				s.log.Clear(e.model.Name())
			}
			return res, err
		}
		t := float64(k) * dt

		for _, e := range vessels {
			m := e.model
			name := m.Name()

			m.UpdateWaypoints()
			cmd, err := m.ControlStep(dt)
			if err != nil {
				if res.ControlFailures[name] == 0 {
					monitoring.Logf("sim: vessel %q control step failed at t=%.3f: %v; using zero rudder", name, t, err)
				}
				res.ControlFailures[name]++
				cmd.Rudder = 0
			}
			if report := m.Advance(cmd, dt); report.SingularMass {
				if res.SingularSteps[name] == 0 {
					monitoring.Logf("sim: vessel %q has a singular mass matrix at t=%.3f; holding velocity", name, t)
				}
				res.SingularSteps[name]++
			}
			s.log.Append(name, m.Snapshot(t))
		}
		res.Steps = k

		if s.progress != nil && (k%every == 0 || k == total) {
			s.progress(Progress{Step: k, Total: total, Time: t})
		}
	}
	return res, nil
}
