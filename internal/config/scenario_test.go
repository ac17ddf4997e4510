package config

import (
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/vessel.report/internal/autopilot"
	"github.com/banshee-data/vessel.report/internal/sim"
	"github.com/banshee-data/vessel.report/internal/vessel"
)

const exampleScenario = "../../config/converging.yaml"

const minimalJSON = `{
  "vessels": [
    {"name": "alpha", "type": "Clarke83", "hull": {"length": 50, "beam": 7, "draft": 5}}
  ]
}`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestScenario_Defaults(t *testing.T) {
	t.Parallel()
	s, err := ParseScenario([]byte(minimalJSON))
	require.NoError(t, err)

	assert.Equal(t, "scenario", s.GetName())
	assert.Equal(t, 0.02, s.GetStepTime())
	assert.Equal(t, 120.0, s.GetSimTime())
	assert.Equal(t, vessel.Environment{Rho: 1025, Depth: 20}, s.Environment())
	assert.Equal(t, 10000.0, s.GetRadarRange())
	assert.Equal(t, 1.0, s.GetRadarScanTime())
	assert.Equal(t, 0.01, s.GetRadarNoise())
	assert.Equal(t, 3.0, s.GetPathUpdateTime())
	assert.Equal(t, 120.0, s.GetPredictionHorizon())
	assert.Equal(t, 30.0, s.GetHistoryWindow())
	assert.Equal(t, 0.0, s.GetTurnRateAcceleration())
	assert.Equal(t, 1.2, s.GetCriticalDistanceFactor())
	assert.Equal(t, 1.0, s.GetReplaySpeed())
	assert.False(t, s.GetGrounding())
	assert.Equal(t, "alpha", s.GetOwnVessel())
	_, _, ok := s.GetOrigin()
	assert.False(t, ok)

	z := s.Zone()
	assert.Equal(t, 5.0, z.Front)
	assert.Equal(t, 2.0, z.Back)
	assert.Equal(t, 2.0, z.Side)
	assert.Equal(t, 5.0, z.Exponent)

	v := s.Vessels[0]
	mode, err := v.GetMode()
	require.NoError(t, err)
	assert.Equal(t, autopilot.HeadingAutopilot, mode)
	assert.Equal(t, 1e5, v.GetPropulsion())
	assert.Equal(t, 2.0, v.GetAcceptanceFactor())
}

func TestVesselConfig_DefaultMode(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		v    VesselConfig
		want autopilot.Mode
	}{
		{"clarke without route", VesselConfig{Type: vessel.TypeClarke83}, autopilot.HeadingAutopilot},
		{"clarke with route", VesselConfig{Type: vessel.TypeClarke83, Waypoints: []autopilot.Waypoint{{North: 1}}}, autopilot.LOSPathFollowing},
		{"tanker", VesselConfig{Type: vessel.TypeTanker}, autopilot.StepInput},
		{"explicit", VesselConfig{Type: vessel.TypeClarke83, Mode: "StepInput"}, autopilot.StepInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.v.GetMode()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Equal(t, 80.0, VesselConfig{Type: vessel.TypeTanker}.GetPropulsion())
}

func TestLoadScenario_JSONAndYAMLAgree(t *testing.T) {
	t.Parallel()
	jsonPath := writeFile(t, "s.json", `{
  "name": "pair",
  "step_time": 0.1,
  "own_vessel": "b",
  "vessels": [
    {"name": "a", "type": "Clarke83", "hull": {"length": 50, "beam": 7, "draft": 5},
     "heading": 90, "surge": 3, "waypoints": [{"north": 0, "east": 500}]},
    {"name": "b", "type": "Tanker", "hull": {"length": 304.8, "beam": 47.17, "draft": 18.46}}
  ]
}`)
	yamlPath := writeFile(t, "s.yml", `
name: pair
step_time: 0.1
own_vessel: b
vessels:
  - name: a
    type: Clarke83
    hull: {length: 50, beam: 7, draft: 5}
    heading: 90
    surge: 3
    waypoints:
      - {north: 0, east: 500}
  - name: b
    type: Tanker
    hull: {length: 304.8, beam: 47.17, draft: 18.46}
`)

	fromJSON, err := LoadScenario(jsonPath)
	require.NoError(t, err)
	fromYAML, err := LoadScenario(yamlPath)
	require.NoError(t, err)

	if diff := cmp.Diff(fromJSON, fromYAML); diff != "" {
		t.Errorf("JSON and YAML scenarios differ (-json +yaml):\n%s", diff)
	}
	assert.Equal(t, "b", fromJSON.GetOwnVessel())
}

func TestLoadScenario_Errors(t *testing.T) {
	t.Parallel()

	vesselJSON := func(extra string) string {
		return `{"vessels": [{"name": "a", "type": "Clarke83", "hull": {"length": 50, "beam": 7, "draft": 5}` + extra + `}]}`
	}

	tests := []struct {
		name    string
		file    string
		content string
		invalid bool
	}{
		{"wrong extension", "s.toml", minimalJSON, false},
		{"malformed yaml", "s.yaml", "vessels: [", false},
		{"unknown field", "s.json", `{"vessels": [], "warp": 9}`, true},
		{"no vessels", "s.json", `{"vessels": []}`, true},
		{"negative step", "s.json", `{"step_time": -1, "vessels": []}`, true},
		{"unknown type", "s.json", `{"vessels": [{"type": "Galleon", "hull": {"length": 50, "beam": 7, "draft": 5}}]}`, true},
		{"unsupported mode", "s.json", `{"vessels": [{"type": "Tanker", "mode": "heading_autopilot", "hull": {"length": 300, "beam": 47, "draft": 18}}]}`, true},
		{"unknown mode", "s.json", vesselJSON(`, "mode": "autopilot"`), true},
		{"route missing", "s.json", vesselJSON(`, "mode": "los_path_following"`), true},
		{"own missing", "s.json", `{"own_vessel": "z", ` + vesselJSON("")[1:], true},
		{"duplicate names", "s.json", `{"vessels": [
			{"name": "a", "type": "Clarke83", "hull": {"length": 50, "beam": 7, "draft": 5}},
			{"name": "a", "type": "Clarke83", "hull": {"length": 50, "beam": 7, "draft": 5}}]}`, true},
		{"bad terrain", "s.json", `{"terrain": ["LINESTRING(0 0, 1 1)"], ` + vesselJSON("")[1:], true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(writeFile(t, tt.file, tt.content))
			require.Error(t, err)
			if tt.invalid {
				assert.ErrorIs(t, err, ErrInvalidScenario)
			}
		})
	}
}

func TestLoadScenario_FileChecks(t *testing.T) {
	t.Parallel()

	_, err := LoadScenario(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorContains(t, err, "failed to stat")

	big := writeFile(t, "big.json", string(bytes.Repeat([]byte(" "), maxFileSize+1)))
	_, err = LoadScenario(big)
	assert.ErrorContains(t, err, "too large")
}

func TestScenario_DefaultNames(t *testing.T) {
	t.Parallel()
	s, err := ParseScenario([]byte(`{"vessels": [
		{"type": "Clarke83", "hull": {"length": 50, "beam": 7, "draft": 5}},
		{"type": "Clarke83", "hull": {"length": 50, "beam": 7, "draft": 5}}]}`))
	require.NoError(t, err)

	for _, v := range s.Vessels {
		_, err := uuid.Parse(v.Name)
		assert.NoError(t, err)
	}
	assert.NotEqual(t, s.Vessels[0].Name, s.Vessels[1].Name)
	assert.Equal(t, s.Vessels[0].Name, s.GetOwnVessel())
}

func TestVesselConfig_Conversions(t *testing.T) {
	t.Parallel()
	ref := 45.0
	v := VesselConfig{
		Name:             "a",
		Type:             vessel.TypeClarke83,
		Hull:             vessel.Hull{Length: 50, Beam: 7, Draft: 5},
		HeadingReference: &ref,
		North:            10,
		East:             20,
		Heading:          90,
		Surge:            3,
		YawRate:          1,
		Waypoints:        []autopilot.Waypoint{{North: 100, East: 0}},
	}

	cfg, err := v.ModelConfig()
	require.NoError(t, err)
	assert.Equal(t, autopilot.LOSPathFollowing, cfg.Mode)
	require.NotNil(t, cfg.HeadingReference)
	assert.Equal(t, 45.0, *cfg.HeadingReference, "heading reference stays in degrees")

	start := v.StartState()
	assert.Equal(t, 10.0, start.Eta.North)
	assert.Equal(t, 20.0, start.Eta.East)
	assert.InDelta(t, math.Pi/2, start.Eta.Yaw, 1e-12)
	assert.Equal(t, vessel.Vec3{3, 0, 0}, start.LinearVelocity)
	assert.InDelta(t, math.Pi/180, start.AngularVelocity[2], 1e-12)

	start.Waypoints[0].North = -1
	assert.Equal(t, 100.0, v.Waypoints[0].North, "start state must copy the route")

	_, err = vessel.New(cfg)
	assert.NoError(t, err)
}

func TestLoadScenario_Example(t *testing.T) {
	t.Parallel()
	s, err := LoadScenario(exampleScenario)
	require.NoError(t, err)

	assert.Equal(t, "converging", s.GetName())
	assert.Equal(t, "alpha", s.GetOwnVessel())
	assert.Len(t, s.Vessels, 3)
	assert.True(t, s.GetGrounding())

	terrain, err := s.ParseTerrain()
	require.NoError(t, err)
	assert.Equal(t, 1, terrain.Len())

	profiles := s.PredictionProfiles()
	require.Contains(t, profiles, "bravo")
	assert.Equal(t, 90.0, profiles["bravo"].Horizon)
	assert.Equal(t, 30.0, profiles["bravo"].TimeThreshold)
	assert.NotContains(t, profiles, "alpha")

	rc := s.ReplayConfig()
	assert.Equal(t, "alpha", rc.Own)
	assert.Equal(t, 0.01, rc.Radar.NoisePercent)
	assert.Equal(t, int64(7), s.GetRadarSeed())

	lon, lat, ok := s.GetOrigin()
	require.True(t, ok)
	assert.Equal(t, 10.7, lon)
	assert.Equal(t, 59.9, lat)

	setup := s.SimSetup()
	steps, err := setup.Steps()
	require.NoError(t, err)
	assert.Equal(t, 1500, steps)
}

func TestScenario_HeadingReferenceIsHeld(t *testing.T) {
	t.Parallel()
	s, err := ParseScenario([]byte(`{
  "step_time": 0.1,
  "sim_time": 600,
  "vessels": [
    {"name": "alpha", "type": "Clarke83", "mode": "heading_autopilot", "heading_reference": 90,
     "surge": 3, "hull": {"length": 50, "beam": 7, "draft": 5, "block_coefficient": 0.7}}
  ]
}`))
	require.NoError(t, err)

	v, ok := s.Vessel("alpha")
	require.True(t, ok)
	cfg, err := v.ModelConfig()
	require.NoError(t, err)
	m, err := vessel.New(cfg)
	require.NoError(t, err)

	log := sim.NewLog()
	run := sim.New(s.Environment(), log)
	require.NoError(t, run.AddVessel(m, v.StartState()))
	_, err = run.Run(context.Background(), s.SimSetup())
	require.NoError(t, err)

	bundles := log.Bundles("alpha")
	require.NotEmpty(t, bundles)
	final := bundles[len(bundles)-1].Eta.Yaw
	assert.InDelta(t, 0, autopilot.Ssa(final-math.Pi/2), autopilot.Deg2Rad(10), "final yaw %.2f deg", autopilot.Rad2Deg(final))
}

func TestScenario_AnchoredTravelThreshold(t *testing.T) {
	t.Parallel()
	s, err := ParseScenario([]byte(`{
  "anchored_travel_threshold": 4,
  "vessels": [
    {"name": "alpha", "type": "Clarke83", "hull": {"length": 50, "beam": 7, "draft": 5}},
    {"name": "buoy", "type": "Clarke83", "hull": {"length": 10, "beam": 3, "draft": 1},
     "prediction": {"anchored_travel_threshold": 0.5}}
  ]
}`))
	require.NoError(t, err)

	assert.Equal(t, 4.0, s.PredictionConfig().AnchoredTravelThreshold)
	profiles := s.PredictionProfiles()
	require.Contains(t, profiles, "buoy")
	assert.Equal(t, 0.5, profiles["buoy"].AnchoredTravelThreshold)

	def, err := ParseScenario([]byte(minimalJSON))
	require.NoError(t, err)
	assert.Zero(t, def.PredictionConfig().AnchoredTravelThreshold)

	_, err = ParseScenario([]byte(`{"anchored_travel_threshold": -1,
  "vessels": [{"name": "alpha", "type": "Clarke83", "hull": {"length": 50, "beam": 7, "draft": 5}}]}`))
	assert.ErrorIs(t, err, ErrInvalidScenario)
}
