package vessel

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/vessel.report/internal/autopilot"
)

func testHull() Hull {
	return Hull{Length: 50, Beam: 7, Draft: 5, BlockCoefficient: 0.7}
}

func newTestVessel(t *testing.T, mode autopilot.Mode, mutate func(*Config)) Model {
	t.Helper()
	cfg := Config{Name: "test", Type: TypeClarke83, Mode: mode, Hull: testHull(), Propulsion: 1e5}
	if mutate != nil {
		mutate(&cfg)
	}
	m, err := New(cfg)
	require.NoError(t, err)
	return m
}

func run(m Model, steps int, dt float64) {
	for i := 0; i < steps; i++ {
		m.UpdateWaypoints()
		cmd, _ := m.ControlStep(dt)
		m.Advance(cmd, dt)
	}
}

func TestNew_Registry(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr error
	}{
		{"clarke heading", Config{Type: TypeClarke83, Mode: autopilot.HeadingAutopilot, Hull: testHull()}, nil},
		{"clarke los", Config{Type: TypeClarke83, Mode: autopilot.LOSPathFollowing, Hull: testHull()}, nil},
		{"clarke dp", Config{Type: TypeClarke83, Mode: autopilot.DynamicPositioning, Hull: testHull()}, ErrNotSupported},
		{"tanker step", Config{Type: TypeTanker, Mode: autopilot.StepInput, Hull: testHull()}, nil},
		{"tanker heading", Config{Type: TypeTanker, Mode: autopilot.HeadingAutopilot, Hull: testHull()}, ErrNotSupported},
		{"unknown", Config{Type: "Submarine", Mode: autopilot.StepInput, Hull: testHull()}, ErrUnknownVesselType},
		{"zero length", Config{Type: TypeClarke83, Mode: autopilot.StepInput}, ErrDegenerateVesselGeometry},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := New(tt.cfg)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, m)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.cfg.Type, m.Type())
			assert.Equal(t, tt.cfg.Mode, m.Mode())
		})
	}
}

func TestTypesAndSupports(t *testing.T) {
	t.Parallel()

	assert.Subset(t, Types(), []string{TypeClarke83, TypeTanker})

	ok, err := Supports(TypeTanker, autopilot.StepInput)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Supports(TypeClarke83, autopilot.DynamicPositioning)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = Supports("nope", autopilot.StepInput)
	assert.ErrorIs(t, err, ErrUnknownVesselType)
}

func TestClarke83_SteadySurge(t *testing.T) {
	t.Parallel()

	m := newTestVessel(t, autopilot.HeadingAutopilot, nil)
	require.NoError(t, m.Init(StartState{LinearVelocity: Vec3{3, 0, 0}}, DefaultEnvironment()))

	run(m, 3000, 0.1)
	s := m.Snapshot(300)

	// 0.9*tau_X balanced by linear surge damping 1.1*m/L.
	mass := 1025 * 0.7 * 50 * 7 * 5
	want := 0.9 * 1e5 * 50 / (1.1 * mass)
	assert.InDelta(t, want, s.LinearVelocity[0], 0.01)
	assert.InDelta(t, 0, s.Eta.Yaw, 1e-9)
	assert.InDelta(t, 0, s.Eta.East, 1e-9)
	assert.Greater(t, s.Eta.North, 900.0)
	assert.Equal(t, 300.0, s.Time)
}

func TestClarke83_Deterministic(t *testing.T) {
	t.Parallel()

	start := StartState{
		Eta:            Eta{North: 10, East: -5, Yaw: 0.4},
		LinearVelocity: Vec3{2.5, 0.1, 0},
		Waypoints:      []autopilot.Waypoint{{North: 300, East: 200}, {North: 600, East: 0}},
	}
	env := Environment{Rho: 1025, Depth: 20, CurrentSpeed: 0.3, CurrentDirection: 1}

	a := newTestVessel(t, autopilot.LOSPathFollowing, nil)
	b := newTestVessel(t, autopilot.LOSPathFollowing, nil)
	require.NoError(t, a.Init(start, env))
	require.NoError(t, b.Init(start, env))

	for i := 0; i < 500; i++ {
		run(a, 1, 0.05)
		run(b, 1, 0.05)
		require.Equal(t, a.Snapshot(float64(i)), b.Snapshot(float64(i)))
	}
}

func TestClarke83_HeadingReference(t *testing.T) {
	t.Parallel()

	ref := 90.0
	m := newTestVessel(t, autopilot.HeadingAutopilot, func(c *Config) { c.HeadingReference = &ref })
	require.NoError(t, m.Init(StartState{LinearVelocity: Vec3{3, 0, 0}}, DefaultEnvironment()))

	run(m, 6000, 0.1)
	s := m.Snapshot(600)
	assert.InDelta(t, 0, autopilot.Ssa(s.Eta.Yaw-math.Pi/2), autopilot.Deg2Rad(10))
}

func TestClarke83_RudderLimits(t *testing.T) {
	t.Parallel()

	m := newTestVessel(t, autopilot.StepInput, func(c *Config) {
		c.StepRudder = 80
		c.Hull.RudderMax = 20
		c.Hull.RudderRateMax = 4
	})
	require.NoError(t, m.Init(StartState{LinearVelocity: Vec3{3, 0, 0}}, DefaultEnvironment()))

	dt := 0.1
	prev := 0.0
	for i := 0; i < 200; i++ {
		run(m, 1, dt)
		s := m.Snapshot(0)
		assert.LessOrEqual(t, math.Abs(s.RudderAngle), autopilot.Deg2Rad(20)+1e-12)
		assert.LessOrEqual(t, math.Abs(s.RudderAngle-prev), autopilot.Deg2Rad(4)*dt+1e-12)
		prev = s.RudderAngle
	}
	assert.InDelta(t, autopilot.Deg2Rad(20), prev, 1e-6)
}

func TestClarke83_StepInputTiming(t *testing.T) {
	t.Parallel()

	m := newTestVessel(t, autopilot.StepInput, func(c *Config) {
		c.StepRudder = 10
		c.StepTime = 5
	})
	require.NoError(t, m.Init(StartState{}, DefaultEnvironment()))

	cmd, err := m.ControlStep(1)
	require.NoError(t, err)
	assert.Zero(t, cmd.Rudder)

	cmd, err = m.ControlStep(4)
	require.NoError(t, err)
	assert.InDelta(t, autopilot.Deg2Rad(10), cmd.Rudder, 1e-12)
	assert.Equal(t, 1e5, cmd.Propulsion)
}

func TestClarke83_DriftsWithCurrent(t *testing.T) {
	t.Parallel()

	m := newTestVessel(t, autopilot.StepInput, func(c *Config) { c.Propulsion = 0 })
	env := Environment{Rho: 1025, Depth: 20, CurrentSpeed: 1, CurrentDirection: 0}
	require.NoError(t, m.Init(StartState{}, env))

	run(m, 3000, 0.1)
	s := m.Snapshot(300)
	assert.InDelta(t, 1, s.LinearVelocity[0], 0.01)
	assert.Greater(t, s.Eta.North, 200.0)
}

func TestClarke83_DegenerateGeometry(t *testing.T) {
	t.Parallel()

	m := newTestVessel(t, autopilot.HeadingAutopilot, func(c *Config) { c.Hull.Draft = 0 })
	require.NoError(t, m.Init(StartState{LinearVelocity: Vec3{1, 0, 0}}, DefaultEnvironment()))

	_, err := m.ControlStep(0.1)
	assert.ErrorIs(t, err, ErrDegenerateVesselGeometry)

	report := m.Advance(ControlCommand{}, 0.1)
	assert.True(t, report.SingularMass)
	assert.Equal(t, Vec3{1, 0, 0}, m.Snapshot(0).LinearVelocity)
}

func TestClarke83_LOSRequiresRoute(t *testing.T) {
	t.Parallel()

	m := newTestVessel(t, autopilot.LOSPathFollowing, nil)
	assert.ErrorIs(t, m.Init(StartState{}, DefaultEnvironment()), ErrMissingWaypoints)
}

func TestClarke83_FollowsStraightRoute(t *testing.T) {
	t.Parallel()

	m := newTestVessel(t, autopilot.LOSPathFollowing, nil)
	start := StartState{
		Eta:            Eta{Yaw: math.Atan2(100, 150)},
		LinearVelocity: Vec3{3, 0, 0},
		Waypoints:      []autopilot.Waypoint{{North: 150, East: 100}, {North: 300, East: 200}},
	}
	require.NoError(t, m.Init(start, DefaultEnvironment()))

	run(m, 600, 0.1)
	s := m.Snapshot(60)
	// The route is a straight line so the vessel never leaves it.
	crossTrack := -s.Eta.North*math.Sin(start.Eta.Yaw) + s.Eta.East*math.Cos(start.Eta.Yaw)
	assert.InDelta(t, 0, crossTrack, 1e-6)
	assert.Greater(t, s.Eta.North, 100.0)
}

func TestTanker(t *testing.T) {
	t.Parallel()

	tankerHull := Hull{Length: 304.8, Beam: 47.17, Draft: 18.46, BlockCoefficient: 0.83}

	t.Run("shallow water rejected", func(t *testing.T) {
		m, err := New(Config{Type: TypeTanker, Mode: autopilot.StepInput, Hull: tankerHull, Propulsion: 80})
		require.NoError(t, err)
		err = m.Init(StartState{}, Environment{Rho: 1025, Depth: 15})
		assert.ErrorIs(t, err, ErrDegenerateVesselGeometry)
	})

	t.Run("turns under step rudder", func(t *testing.T) {
		m, err := New(Config{Type: TypeTanker, Mode: autopilot.StepInput, Hull: tankerHull, Propulsion: 80, StepRudder: 10, StepTime: 10})
		require.NoError(t, err)
		require.NoError(t, m.Init(StartState{LinearVelocity: Vec3{7, 0, 0}}, Environment{Rho: 1025, Depth: 60}))

		run(m, 1000, 0.1)
		s := m.Snapshot(100)
		for _, v := range []float64{s.Eta.North, s.Eta.East, s.Eta.Yaw, s.LinearVelocity[0]} {
			assert.False(t, math.IsNaN(v) || math.IsInf(v, 0))
		}
		assert.Greater(t, s.LinearVelocity[0], 0.0)
		assert.Greater(t, math.Hypot(s.Eta.North, s.Eta.East), 300.0)
		assert.Greater(t, math.Abs(s.Eta.Yaw), autopilot.Deg2Rad(2))
		assert.LessOrEqual(t, math.Abs(s.RudderAngle), autopilot.Deg2Rad(10)+1e-12)
	})

	t.Run("no closed loop", func(t *testing.T) {
		m := &Tanker{cfg: Config{Mode: autopilot.HeadingAutopilot}}
		_, err := m.ControlStep(0.1)
		assert.ErrorIs(t, err, ErrNotSupported)
	})
}
