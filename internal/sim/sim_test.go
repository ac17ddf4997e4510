package sim

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/vessel.report/internal/autopilot"
	"github.com/banshee-data/vessel.report/internal/monitoring"
	"github.com/banshee-data/vessel.report/internal/vessel"
)

func init() {
	monitoring.SetLogger(nil)
}

func newVessel(t *testing.T, name string, mutate func(*vessel.Config)) vessel.Model {
	t.Helper()
	cfg := vessel.Config{
		Name:       name,
		Type:       vessel.TypeClarke83,
		Mode:       autopilot.HeadingAutopilot,
		Hull:       vessel.Hull{Length: 50, Beam: 7, Draft: 5, BlockCoefficient: 0.7},
		Propulsion: 1e5,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	m, err := vessel.New(cfg)
	require.NoError(t, err)
	return m
}

func twoVesselSim(t *testing.T) *Simulation {
	t.Helper()
	s := New(vessel.DefaultEnvironment(), NewLog())
	require.NoError(t, s.AddVessel(newVessel(t, "alpha", nil), vessel.StartState{
		LinearVelocity: vessel.Vec3{3, 0, 0},
		Waypoints:      []autopilot.Waypoint{{North: 200, East: 50}, {North: 400, East: 0}},
	}))
	require.NoError(t, s.AddVessel(newVessel(t, "bravo", nil), vessel.StartState{
		Eta:            vessel.Eta{East: 100},
		LinearVelocity: vessel.Vec3{2, 0, 0},
	}))
	return s
}

func TestSetup_Steps(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		setup   Setup
		want    int
		wantErr bool
	}{
		{"exact multiple", Setup{StepTime: 0.1, SimTime: 1}, 10, false},
		{"rounding prone", Setup{StepTime: 0.1, SimTime: 0.3}, 3, false},
		{"remainder", Setup{StepTime: 0.1, SimTime: 1.05}, 10, false},
		{"defaults", Setup{StepTime: 0.02, SimTime: 120}, 6000, false},
		{"single step", Setup{StepTime: 0.5, SimTime: 0.5}, 1, false},
		{"zero step", Setup{StepTime: 0, SimTime: 1}, 0, true},
		{"negative step", Setup{StepTime: -0.1, SimTime: 1}, 0, true},
		{"shorter than step", Setup{StepTime: 1, SimTime: 0.5}, 0, false},
		{"zero duration", Setup{StepTime: 1, SimTime: 0}, 0, false},
		{"negative duration", Setup{StepTime: 1, SimTime: -1}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.setup.Steps()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidStep)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRun_BundleCountAndTimestamps(t *testing.T) {
	t.Parallel()

	for _, setup := range []Setup{
		{StepTime: 0.1, SimTime: 1},
		{StepTime: 0.05, SimTime: 2.01},
		{StepTime: 0.02, SimTime: 3},
	} {
		s := twoVesselSim(t)
		res, err := s.Run(context.Background(), setup)
		require.NoError(t, err)

		want, _ := setup.Steps()
		assert.Equal(t, want, res.Steps)
		for _, name := range []string{"alpha", "bravo"} {
			bs := s.Log().Bundles(name)
			require.Len(t, bs, want)
			assert.InDelta(t, setup.StepTime, bs[0].Time, 1e-12)
			for i := 1; i < len(bs); i++ {
				assert.Greater(t, bs[i].Time, bs[i-1].Time)
			}
		}
		assert.Equal(t, []string{"alpha", "bravo"}, s.Log().Names())
	}
}

func TestRun_Deterministic(t *testing.T) {
	t.Parallel()

	setup := Setup{StepTime: 0.05, SimTime: 20}
	a, b := twoVesselSim(t), twoVesselSim(t)
	_, err := a.Run(context.Background(), setup)
	require.NoError(t, err)
	_, err = b.Run(context.Background(), setup)
	require.NoError(t, err)

	for _, name := range []string{"alpha", "bravo"} {
		if diff := cmp.Diff(a.Log().Bundles(name), b.Log().Bundles(name)); diff != "" {
			t.Errorf("bundles for %s differ (-a +b):\n%s", name, diff)
		}
	}
}

func TestRun_RequiresExplicitClear(t *testing.T) {
	t.Parallel()

	s := twoVesselSim(t)
	setup := Setup{StepTime: 0.1, SimTime: 2}
	_, err := s.Run(context.Background(), setup)
	require.NoError(t, err)

	_, err = s.Run(context.Background(), setup)
	assert.ErrorIs(t, err, ErrStaleLog)

	assert.True(t, s.ClearVessel("alpha"))
	_, err = s.RunVessel(context.Background(), "alpha", setup)
	require.NoError(t, err)
	assert.Equal(t, 20, s.Log().Len("alpha"))
	assert.Equal(t, 20, s.Log().Len("bravo"))

	_, err = s.RunVessel(context.Background(), "charlie", setup)
	assert.ErrorIs(t, err, ErrUnknownVessel)
}

func TestRunVessel_MatchesFullRun(t *testing.T) {
	t.Parallel()

	setup := Setup{StepTime: 0.1, SimTime: 10}
	full := twoVesselSim(t)
	_, err := full.Run(context.Background(), setup)
	require.NoError(t, err)

	single := twoVesselSim(t)
	_, err = single.RunVessel(context.Background(), "bravo", setup)
	require.NoError(t, err)

	assert.Equal(t, full.Log().Bundles("bravo"), single.Log().Bundles("bravo"))
	assert.Zero(t, single.Log().Len("alpha"))
}

func TestRun_Progress(t *testing.T) {
	t.Parallel()

	s := twoVesselSim(t)
	var calls []Progress
	s.OnProgress(100, func(p Progress) { calls = append(calls, p) })

	_, err := s.Run(context.Background(), Setup{StepTime: 0.1, SimTime: 25})
	require.NoError(t, err)

	require.Len(t, calls, 3)
	assert.Equal(t, 100, calls[0].Step)
	assert.Equal(t, 200, calls[1].Step)
	assert.Equal(t, Progress{Step: 250, Total: 250, Time: 25}, calls[2])
}

func TestRun_Cancelled(t *testing.T) {
	t.Parallel()

	s := twoVesselSim(t)
	ctx, cancel := context.WithCancel(context.Background())
	s.OnProgress(10, func(p Progress) {
		if p.Step == 50 {
			cancel()
		}
	})

	res, err := s.Run(ctx, Setup{StepTime: 0.1, SimTime: 100})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 50, res.Steps)
	assert.Zero(t, s.Log().Len("alpha"))
	assert.Zero(t, s.Log().Len("bravo"))

	// Nothing is left behind, so the same simulation runs again.
	res, err = s.Run(context.Background(), Setup{StepTime: 0.1, SimTime: 10})
	require.NoError(t, err)
	assert.Equal(t, 100, res.Steps)
	assert.Equal(t, 100, s.Log().Len("alpha"))
}

func TestRun_ShorterThanOneStep(t *testing.T) {
	t.Parallel()

	s := twoVesselSim(t)
	res, err := s.Run(context.Background(), Setup{StepTime: 1, SimTime: 0.5})
	require.NoError(t, err)
	assert.Zero(t, res.Steps)
	assert.Zero(t, s.Log().Len("alpha"))
}

func TestRun_DegenerateVesselContinues(t *testing.T) {
	t.Parallel()

	s := New(vessel.DefaultEnvironment(), NewLog())
	flat := newVessel(t, "flat", func(c *vessel.Config) { c.Hull.Draft = 0 })
	require.NoError(t, s.AddVessel(flat, vessel.StartState{LinearVelocity: vessel.Vec3{1, 0, 0}}))

	res, err := s.Run(context.Background(), Setup{StepTime: 0.1, SimTime: 1})
	require.NoError(t, err)
	assert.Equal(t, 10, res.ControlFailures["flat"])
	assert.Equal(t, 10, res.SingularSteps["flat"])
	bs := s.Log().Bundles("flat")
	require.Len(t, bs, 10)
	assert.InDelta(t, 1.0, bs[9].Eta.North, 1e-9)
	assert.Zero(t, bs[9].RudderAngle)
}

func TestAddVessel_Duplicate(t *testing.T) {
	t.Parallel()

	s := New(vessel.DefaultEnvironment(), NewLog())
	require.NoError(t, s.AddVessel(newVessel(t, "a", nil), vessel.StartState{}))
	assert.Error(t, s.AddVessel(newVessel(t, "a", nil), vessel.StartState{}))

	m, ok := s.Vessel("a")
	require.True(t, ok)
	assert.Equal(t, "a", m.Name())
	assert.Len(t, s.Vessels(), 1)
}

func TestRun_InitFailure(t *testing.T) {
	t.Parallel()

	s := New(vessel.DefaultEnvironment(), NewLog())
	los := newVessel(t, "los", func(c *vessel.Config) { c.Mode = autopilot.LOSPathFollowing })
	require.NoError(t, s.AddVessel(los, vessel.StartState{}))

	_, err := s.Run(context.Background(), Setup{StepTime: 0.1, SimTime: 1})
	assert.ErrorIs(t, err, vessel.ErrMissingWaypoints)
	assert.Zero(t, s.Log().Len("los"))
}
