package config

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/banshee-data/vessel.report/internal/autopilot"
	"github.com/banshee-data/vessel.report/internal/collision"
	"github.com/banshee-data/vessel.report/internal/predict"
	"github.com/banshee-data/vessel.report/internal/radar"
	"github.com/banshee-data/vessel.report/internal/replay"
	"github.com/banshee-data/vessel.report/internal/sim"
	"github.com/banshee-data/vessel.report/internal/vessel"
)

// ErrInvalidScenario wraps every schema and semantic validation failure.
var ErrInvalidScenario = errors.New("invalid scenario")

//go:embed schema.json
var scenarioSchema []byte

const maxFileSize = 1 * 1024 * 1024 // 1MB

// Scenario is a complete simulation and replay setup. Optional scalar
// fields are pointers so that omitted values fall back to the defaults
// returned by the Get* methods.
type Scenario struct {
	Name *string `json:"name,omitempty"`

	// Simulation
	StepTime *float64 `json:"step_time,omitempty"`
	SimTime  *float64 `json:"sim_time,omitempty"`

	// Environment
	WaterDensity     *float64 `json:"water_density,omitempty"`
	Depth            *float64 `json:"depth,omitempty"`
	CurrentSpeed     *float64 `json:"current_speed,omitempty"`
	CurrentDirection *float64 `json:"current_direction,omitempty"` // deg

	// Radar
	RadarRange    *float64 `json:"radar_range,omitempty"`
	RadarScanTime *float64 `json:"radar_scan_time,omitempty"`
	RadarNoise    *float64 `json:"radar_noise,omitempty"`
	RadarSeed     *int64   `json:"radar_seed,omitempty"`

	// Prediction
	PathUpdateTime       *float64 `json:"path_update_time,omitempty"`
	PredictionHorizon    *float64 `json:"prediction_horizon,omitempty"`
	PredictionStep       *float64 `json:"prediction_step,omitempty"`
	HistoryWindow        *float64 `json:"history_window,omitempty"`
	TurnRateAcceleration *float64 `json:"turn_rate_acceleration,omitempty"`
	LinearAcceleration   *float64 `json:"linear_acceleration,omitempty"`
	MinTime              *float64 `json:"min_time,omitempty"`

	// AnchoredTravelThreshold (m): a track moving less than this over the
	// history window is anchored. Zero derives it from the average speed.
	AnchoredTravelThreshold *float64 `json:"anchored_travel_threshold,omitempty"`

	// Collision
	ZoneFront              *float64 `json:"zone_front,omitempty"`
	ZoneBack               *float64 `json:"zone_back,omitempty"`
	ZoneSide               *float64 `json:"zone_side,omitempty"`
	ZoneExponent           *float64 `json:"zone_exponent,omitempty"`
	CriticalDistanceFactor *float64 `json:"critical_distance_factor,omitempty"`
	Grounding              *bool    `json:"grounding,omitempty"`
	Terrain                []string `json:"terrain,omitempty"` // WKT polygons, x east, y north

	// Export origin of the local frame (deg)
	OriginLon *float64 `json:"origin_lon,omitempty"`
	OriginLat *float64 `json:"origin_lat,omitempty"`

	// Replay
	OwnVessel   *string  `json:"own_vessel,omitempty"`
	ReplaySpeed *float64 `json:"replay_speed,omitempty"`

	Vessels []VesselConfig `json:"vessels"`
}

// VesselConfig describes one vessel and its start state.
type VesselConfig struct {
	Name string      `json:"name,omitempty"`
	Type string      `json:"type"`
	Mode string      `json:"mode,omitempty"`
	Hull vessel.Hull `json:"hull"`

	Propulsion       *float64 `json:"propulsion,omitempty"`
	AcceptanceFactor *float64 `json:"acceptance_factor,omitempty"`
	HeadingReference *float64 `json:"heading_reference,omitempty"` // deg
	StepRudder       float64  `json:"step_rudder,omitempty"`       // deg
	StepTime         float64  `json:"step_time,omitempty"`

	North   float64 `json:"north,omitempty"`
	East    float64 `json:"east,omitempty"`
	Heading float64 `json:"heading,omitempty"` // deg
	Surge   float64 `json:"surge,omitempty"`
	Sway    float64 `json:"sway,omitempty"`
	YawRate float64 `json:"yaw_rate,omitempty"` // deg/s

	Waypoints []autopilot.Waypoint `json:"waypoints,omitempty"`

	Prediction *PredictionProfile `json:"prediction,omitempty"`
}

// PredictionProfile overrides the scenario prediction tuning for the track
// of one vessel.
type PredictionProfile struct {
	Horizon              *float64 `json:"horizon,omitempty"`
	HistoryWindow        *float64 `json:"history_window,omitempty"`
	TurnRateAcceleration *float64 `json:"turn_rate_acceleration,omitempty"`
	MinTime              *float64 `json:"min_time,omitempty"`

	AnchoredTravelThreshold *float64 `json:"anchored_travel_threshold,omitempty"`
}

// LoadScenario reads a scenario from a .json, .yaml or .yml file, checks it
// against the embedded schema and validates it. Unnamed vessels receive a
// random name and the first vessel becomes the own vessel when none is set.
func LoadScenario(path string) (*Scenario, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("scenario file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat scenario file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("scenario file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	if ext != ".json" {
		if data, err = yamlToJSON(data); err != nil {
			return nil, err
		}
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates a JSON scenario document.
func ParseScenario(data []byte) (*Scenario, error) {
	if err := validateSchema(data); err != nil {
		return nil, err
	}

	s := &Scenario{}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to parse scenario JSON: %w", err)
	}
	s.applyNames()

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func yamlToJSON(data []byte) ([]byte, error) {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse scenario YAML: %w", err)
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to convert scenario YAML: %w", err)
	}
	return out, nil
}

func validateSchema(data []byte) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(scenarioSchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidScenario, err)
	}
	if !result.Valid() {
		var errs []string
		for _, desc := range result.Errors() {
			errs = append(errs, desc.String())
		}
		return fmt.Errorf("%w: %s", ErrInvalidScenario, strings.Join(errs, "; "))
	}
	return nil
}

func (s *Scenario) applyNames() {
	for i := range s.Vessels {
		if s.Vessels[i].Name == "" {
			s.Vessels[i].Name = uuid.NewString()
		}
	}
	if s.OwnVessel == nil && len(s.Vessels) > 0 {
		own := s.Vessels[0].Name
		s.OwnVessel = &own
	}
}

// Validate checks the scenario for values the simulation cannot run with.
func (s *Scenario) Validate() error {
	if s.GetStepTime() <= 0 {
		return fmt.Errorf("%w: step_time must be positive, got %f", ErrInvalidScenario, s.GetStepTime())
	}
	if s.GetSimTime() < s.GetStepTime() {
		return fmt.Errorf("%w: sim_time %f is shorter than one step", ErrInvalidScenario, s.GetSimTime())
	}
	if s.GetDepth() <= 0 {
		return fmt.Errorf("%w: depth must be positive, got %f", ErrInvalidScenario, s.GetDepth())
	}
	if n := s.GetRadarNoise(); n < 0 {
		return fmt.Errorf("%w: radar_noise must be non-negative, got %f", ErrInvalidScenario, n)
	}
	if s.GetRadarScanTime() <= 0 || s.GetPathUpdateTime() <= 0 {
		return fmt.Errorf("%w: radar_scan_time and path_update_time must be positive", ErrInvalidScenario)
	}
	if len(s.Vessels) == 0 {
		return fmt.Errorf("%w: no vessels", ErrInvalidScenario)
	}

	seen := make(map[string]bool, len(s.Vessels))
	for _, v := range s.Vessels {
		if seen[v.Name] {
			return fmt.Errorf("%w: duplicate vessel name %q", ErrInvalidScenario, v.Name)
		}
		seen[v.Name] = true

		mode, err := v.GetMode()
		if err != nil {
			return fmt.Errorf("%w: vessel %q: %v", ErrInvalidScenario, v.Name, err)
		}
		ok, err := vessel.Supports(v.Type, mode)
		if err != nil {
			return fmt.Errorf("%w: vessel %q: %v", ErrInvalidScenario, v.Name, err)
		}
		if !ok {
			return fmt.Errorf("%w: vessel %q: %s does not implement %s", ErrInvalidScenario, v.Name, v.Type, mode)
		}
		if mode == autopilot.LOSPathFollowing && len(v.Waypoints) == 0 {
			return fmt.Errorf("%w: vessel %q: %s needs waypoints", ErrInvalidScenario, v.Name, mode)
		}
		if v.Hull.Length <= 0 || v.Hull.Beam <= 0 || v.Hull.Draft < 0 {
			return fmt.Errorf("%w: vessel %q: degenerate hull", ErrInvalidScenario, v.Name)
		}
	}

	if own := s.GetOwnVessel(); !seen[own] {
		return fmt.Errorf("%w: own_vessel %q is not in vessels", ErrInvalidScenario, own)
	}
	if _, err := s.ParseTerrain(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidScenario, err)
	}
	return nil
}

// GetMode returns the configured control mode. When unset, Tanker runs open
// loop and Clarke83 follows its route or holds its heading.
func (v VesselConfig) GetMode() (autopilot.Mode, error) {
	if v.Mode != "" {
		return autopilot.ParseMode(v.Mode)
	}
	switch {
	case v.Type == vessel.TypeTanker:
		return autopilot.StepInput, nil
	case len(v.Waypoints) > 0:
		return autopilot.LOSPathFollowing, nil
	default:
		return autopilot.HeadingAutopilot, nil
	}
}

// GetPropulsion returns the surge force (Clarke83, N) or propeller speed
// (Tanker, rpm).
func (v VesselConfig) GetPropulsion() float64 {
	if v.Propulsion != nil {
		return *v.Propulsion
	}
	if v.Type == vessel.TypeTanker {
		return 80
	}
	return 1e5
}

// GetAcceptanceFactor returns the LOS acceptance radius in hull lengths.
func (v VesselConfig) GetAcceptanceFactor() float64 {
	if v.AcceptanceFactor == nil {
		return 2
	}
	return *v.AcceptanceFactor
}

// ModelConfig builds the vessel model configuration.
func (v VesselConfig) ModelConfig() (vessel.Config, error) {
	mode, err := v.GetMode()
	if err != nil {
		return vessel.Config{}, err
	}
	cfg := vessel.Config{
		Name:             v.Name,
		Type:             v.Type,
		Mode:             mode,
		Hull:             v.Hull,
		Propulsion:       v.GetPropulsion(),
		AcceptanceFactor: v.GetAcceptanceFactor(),
		StepRudder:       v.StepRudder,
		StepTime:         v.StepTime,
	}
	if v.HeadingReference != nil {
		ref := *v.HeadingReference
		cfg.HeadingReference = &ref
	}
	return cfg, nil
}

// StartState converts the configured start pose and velocities.
func (v VesselConfig) StartState() vessel.StartState {
	return vessel.StartState{
		Eta:             vessel.Eta{North: v.North, East: v.East, Yaw: autopilot.Deg2Rad(v.Heading)},
		LinearVelocity:  vessel.Vec3{v.Surge, v.Sway, 0},
		AngularVelocity: vessel.Vec3{0, 0, autopilot.Deg2Rad(v.YawRate)},
		Waypoints:       append([]autopilot.Waypoint(nil), v.Waypoints...),
	}
}

// Vessel returns the named vessel entry.
func (s *Scenario) Vessel(name string) (VesselConfig, bool) {
	for _, v := range s.Vessels {
		if v.Name == name {
			return v, true
		}
	}
	return VesselConfig{}, false
}

// Environment returns the shared water properties.
func (s *Scenario) Environment() vessel.Environment {
	return vessel.Environment{
		Rho:              s.GetWaterDensity(),
		Depth:            s.GetDepth(),
		CurrentSpeed:     s.GetCurrentSpeed(),
		CurrentDirection: autopilot.Deg2Rad(s.GetCurrentDirection()),
	}
}

// SimSetup returns the simulation step and duration.
func (s *Scenario) SimSetup() sim.Setup {
	return sim.Setup{StepTime: s.GetStepTime(), SimTime: s.GetSimTime()}
}

// PredictionConfig returns the default path predictor tuning.
func (s *Scenario) PredictionConfig() predict.Config {
	return predict.Config{
		TimeThreshold:           s.GetHistoryWindow(),
		MinTime:                 s.GetMinTime(),
		AnchoredTravelThreshold: s.GetAnchoredTravelThreshold(),
		Step:                    s.GetPredictionStep(),
		Horizon:                 s.GetPredictionHorizon(),
		TurnRateAcceleration:    s.GetTurnRateAcceleration(),
		LinearAcceleration:      s.GetLinearAcceleration(),
	}
}

// PredictionProfiles returns the tuning of every vessel with its own
// prediction profile.
func (s *Scenario) PredictionProfiles() map[string]predict.Config {
	out := make(map[string]predict.Config)
	for _, v := range s.Vessels {
		if v.Prediction == nil {
			continue
		}
		cfg := s.PredictionConfig()
		p := v.Prediction
		if p.Horizon != nil {
			cfg.Horizon = *p.Horizon
		}
		if p.HistoryWindow != nil {
			cfg.TimeThreshold = *p.HistoryWindow
		}
		if p.TurnRateAcceleration != nil {
			cfg.TurnRateAcceleration = *p.TurnRateAcceleration
		}
		if p.MinTime != nil {
			cfg.MinTime = *p.MinTime
		}
		if p.AnchoredTravelThreshold != nil {
			cfg.AnchoredTravelThreshold = *p.AnchoredTravelThreshold
		}
		out[v.Name] = cfg
	}
	return out
}

// Zone returns the exclusion zone.
func (s *Scenario) Zone() collision.Zone {
	return collision.Zone{
		Side:     s.GetZoneSide(),
		Front:    s.GetZoneFront(),
		Back:     s.GetZoneBack(),
		Exponent: s.GetZoneExponent(),
	}
}

// ParseTerrain parses the terrain polygons. It returns nil when there are
// none.
func (s *Scenario) ParseTerrain() (*collision.Terrain, error) {
	if len(s.Terrain) == 0 {
		return nil, nil
	}
	return collision.ParseTerrain(s.Terrain)
}

// ReplayConfig returns the replay cadence and own vessel sensors.
func (s *Scenario) ReplayConfig() replay.Config {
	return replay.Config{
		Own:            s.GetOwnVessel(),
		RadarScanTime:  s.GetRadarScanTime(),
		PathUpdateTime: s.GetPathUpdateTime(),
		Radar: radar.Config{
			Range:        s.GetRadarRange(),
			NoisePercent: s.GetRadarNoise(),
		},
		Zone:                   s.Zone(),
		CriticalDistanceFactor: s.GetCriticalDistanceFactor(),
		Grounding:              s.GetGrounding(),
	}
}

func getFloat(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

// GetName returns the scenario name or "scenario".
func (s *Scenario) GetName() string {
	if s.Name == nil || *s.Name == "" {
		return "scenario"
	}
	return *s.Name
}

// GetStepTime returns the simulation step in seconds.
func (s *Scenario) GetStepTime() float64 { return getFloat(s.StepTime, 0.02) }

// GetSimTime returns the simulated duration in seconds.
func (s *Scenario) GetSimTime() float64 { return getFloat(s.SimTime, 120) }

func (s *Scenario) GetWaterDensity() float64     { return getFloat(s.WaterDensity, 1025) }
func (s *Scenario) GetDepth() float64            { return getFloat(s.Depth, 20) }
func (s *Scenario) GetCurrentSpeed() float64     { return getFloat(s.CurrentSpeed, 0) }
func (s *Scenario) GetCurrentDirection() float64 { return getFloat(s.CurrentDirection, 0) }

// GetRadarRange returns the radar range in metres.
func (s *Scenario) GetRadarRange() float64 { return getFloat(s.RadarRange, 10000) }

// GetRadarScanTime returns the seconds between radar scans.
func (s *Scenario) GetRadarScanTime() float64 { return getFloat(s.RadarScanTime, 1) }

// GetRadarNoise returns the radar noise fraction.
func (s *Scenario) GetRadarNoise() float64 { return getFloat(s.RadarNoise, 0.01) }

// GetRadarSeed returns the seed for radar noise. Zero means seed from the
// clock.
func (s *Scenario) GetRadarSeed() int64 {
	if s.RadarSeed == nil {
		return 0
	}
	return *s.RadarSeed
}

func (s *Scenario) GetPathUpdateTime() float64       { return getFloat(s.PathUpdateTime, 3) }
func (s *Scenario) GetPredictionHorizon() float64    { return getFloat(s.PredictionHorizon, 120) }
func (s *Scenario) GetPredictionStep() float64       { return getFloat(s.PredictionStep, 1) }
func (s *Scenario) GetHistoryWindow() float64        { return getFloat(s.HistoryWindow, 30) }
func (s *Scenario) GetTurnRateAcceleration() float64 { return getFloat(s.TurnRateAcceleration, 0) }
func (s *Scenario) GetLinearAcceleration() float64   { return getFloat(s.LinearAcceleration, 0.1) }
func (s *Scenario) GetMinTime() float64              { return getFloat(s.MinTime, 0) }

// GetAnchoredTravelThreshold returns the anchored travel limit in metres.
func (s *Scenario) GetAnchoredTravelThreshold() float64 {
	return getFloat(s.AnchoredTravelThreshold, 0)
}

func (s *Scenario) GetZoneFront() float64    { return getFloat(s.ZoneFront, 5) }
func (s *Scenario) GetZoneBack() float64     { return getFloat(s.ZoneBack, 2) }
func (s *Scenario) GetZoneSide() float64     { return getFloat(s.ZoneSide, 2) }
func (s *Scenario) GetZoneExponent() float64 { return getFloat(s.ZoneExponent, 5) }

// GetCriticalDistanceFactor returns the prune radius factor.
func (s *Scenario) GetCriticalDistanceFactor() float64 {
	return getFloat(s.CriticalDistanceFactor, collision.DefaultCriticalDistanceFactor)
}

// GetGrounding returns whether the own path is checked against terrain.
func (s *Scenario) GetGrounding() bool {
	if s.Grounding == nil {
		return len(s.Terrain) > 0
	}
	return *s.Grounding
}

// GetOwnVessel returns the vessel carrying the radar.
func (s *Scenario) GetOwnVessel() string {
	if s.OwnVessel == nil {
		return ""
	}
	return *s.OwnVessel
}

// GetOrigin returns the longitude and latitude of the local origin. ok is
// false unless both are set.
func (s *Scenario) GetOrigin() (lon, lat float64, ok bool) {
	if s.OriginLon == nil || s.OriginLat == nil {
		return 0, 0, false
	}
	return *s.OriginLon, *s.OriginLat, true
}

// GetReplaySpeed returns the replay speed multiple of wall time.
func (s *Scenario) GetReplaySpeed() float64 { return getFloat(s.ReplaySpeed, 1) }
