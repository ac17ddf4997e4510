// Command vesselsim runs a scenario headlessly: it simulates every vessel,
// replays the log through the own vessel's radar and collision predictor,
// prints the reported events and optionally saves the run and its charts.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/banshee-data/vessel.report/internal/autopilot"
	"github.com/banshee-data/vessel.report/internal/chart"
	"github.com/banshee-data/vessel.report/internal/collision"
	"github.com/banshee-data/vessel.report/internal/config"
	"github.com/banshee-data/vessel.report/internal/geo"
	"github.com/banshee-data/vessel.report/internal/monitoring"
	"github.com/banshee-data/vessel.report/internal/replay"
	"github.com/banshee-data/vessel.report/internal/sim"
	"github.com/banshee-data/vessel.report/internal/storage/sqlite"
	"github.com/banshee-data/vessel.report/internal/timeutil"
	"github.com/banshee-data/vessel.report/internal/track"
	"github.com/banshee-data/vessel.report/internal/units"
	"github.com/banshee-data/vessel.report/internal/version"
	"github.com/banshee-data/vessel.report/internal/vessel"
)

type options struct {
	scenario   string
	dbPath     string
	htmlPath   string
	pngPath    string
	geojson    string
	speedUnits string
	realtime   bool
	tick       time.Duration
	playStep   float64
	logLevel   string
}

func main() {
	var o options
	var showVersion bool
	flag.BoolVar(&showVersion, "version", false, "print the version and exit")
	flag.StringVar(&o.scenario, "scenario", "config/converging.yaml", "scenario file (.json, .yaml or .yml)")
	flag.StringVar(&o.dbPath, "db", "", "save the run to this sqlite database")
	flag.StringVar(&o.htmlPath, "html", "", "write an HTML chart of the replay")
	flag.StringVar(&o.pngPath, "png", "", "write a PNG chart of the replay")
	flag.StringVar(&o.geojson, "geojson", "", "write the paths as GeoJSON (needs origin_lon and origin_lat)")
	flag.StringVar(&o.speedUnits, "units", units.Knots, "speed units for reports: "+units.GetValidUnitsString())
	flag.BoolVar(&o.realtime, "realtime", false, "pace the replay against the wall clock at the scenario replay speed")
	flag.DurationVar(&o.tick, "tick", 100*time.Millisecond, "wall-clock tick of a realtime replay")
	flag.Float64Var(&o.playStep, "step", 0.1, "simulated seconds per replay step when not realtime")
	flag.StringVar(&o.logLevel, "log-level", "info", "log level: trace, debug, info, warn, error")
	flag.Parse()

	if showVersion {
		fmt.Println(version.String("vesselsim"))
		return
	}

	logger := monitoring.NewConsoleLogger(os.Stderr, monitoring.ParseLevel(o.logLevel), false)
	monitoring.SetLogger(monitoring.ZerologLogf(logger))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, o, logger, os.Stdout); err != nil {
		logger.Fatal().Err(err).Msg("vesselsim failed")
	}
}

func run(ctx context.Context, o options, logger zerolog.Logger, out io.Writer) error {
	if !units.IsValid(o.speedUnits) {
		return fmt.Errorf("invalid units %q, want one of %s", o.speedUnits, units.GetValidUnitsString())
	}

	scn, err := config.LoadScenario(o.scenario)
	if err != nil {
		return fmt.Errorf("failed to load scenario: %w", err)
	}
	logger.Info().Str("scenario", scn.GetName()).Int("vessels", len(scn.Vessels)).Msg("scenario loaded")

	log := sim.NewLog()
	s := sim.New(scn.Environment(), log)
	var infos []sqlite.VesselInfo
	for _, vc := range scn.Vessels {
		cfg, err := vc.ModelConfig()
		if err != nil {
			return fmt.Errorf("vessel %q: %w", vc.Name, err)
		}
		m, err := vessel.New(cfg)
		if err != nil {
			return fmt.Errorf("vessel %q: %w", vc.Name, err)
		}
		if err := s.AddVessel(m, vc.StartState()); err != nil {
			return err
		}
		infos = append(infos, sqlite.VesselInfo{Name: vc.Name, Type: vc.Type, Mode: cfg.Mode, Hull: cfg.Hull, Waypoints: vc.Waypoints})
	}

	s.OnProgress(sim.DefaultProgressEvery*10, func(p sim.Progress) {
		logger.Debug().Int("step", p.Step).Int("total", p.Total).Float64("t", p.Time).Msg("simulating")
	})
	setup := scn.SimSetup()
	res, err := s.Run(ctx, setup)
	if err != nil {
		return fmt.Errorf("simulation failed: %w", err)
	}
	for name, n := range res.SingularSteps {
		logger.Warn().Str("vessel", name).Int("steps", n).Msg("singular mass matrix")
	}
	for name, n := range res.ControlFailures {
		logger.Warn().Str("vessel", name).Int("steps", n).Msg("control step failed")
	}
	logger.Info().Int("steps", res.Steps).Float64("end", log.EndTime()).Msg("simulation complete")

	own, _ := scn.Vessel(scn.GetOwnVessel())
	ownCfg, err := own.ModelConfig()
	if err != nil {
		return err
	}

	registry := track.NewRegistry(scn.PredictionConfig())
	for name, cfg := range scn.PredictionProfiles() {
		registry.SetProfile(name, cfg)
	}

	seed := scn.GetRadarSeed()
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	noise := rand.New(rand.NewSource(seed))

	handler := collision.HandlerFuncs{
		Collision: func(id string, pos vessel.Position, heading, t float64) {
			logger.Warn().Str("vessel", id).Float64("t", t).Float64("north", pos.North).Float64("east", pos.East).Msg("collision predicted")
		},
		Grounding: func(id string, pos vessel.Position, eta vessel.Eta) {
			logger.Warn().Str("vessel", id).Float64("north", pos.North).Float64("east", pos.East).Msg("grounding predicted")
		},
	}

	engine, err := replay.New(scn.ReplayConfig(), log, ownCfg.Hull, registry, noise, handler)
	if err != nil {
		return fmt.Errorf("failed to start replay: %w", err)
	}
	terrain, err := scn.ParseTerrain()
	if err != nil {
		return err
	}
	engine.SetTerrain(terrain)

	if o.realtime {
		err = engine.Run(ctx, timeutil.RealClock{}, o.tick, scn.GetReplaySpeed())
	} else {
		err = engine.Play(o.playStep)
	}
	if err != nil {
		return fmt.Errorf("replay failed: %w", err)
	}

	collisions, groundings := engine.Collisions(), engine.Groundings()
	report(out, scn.GetOwnVessel(), collisions, groundings, o.speedUnits)

	tracks := registry.Snapshot()
	if o.dbPath != "" {
		if err := save(ctx, o.dbPath, scn, setup, log, tracks, events(collisions, groundings), infos); err != nil {
			return err
		}
	}

	fig := chart.FromReplay(scn.GetName(), log, tracks, collisions, groundings)
	if o.htmlPath != "" {
		if err := writeFile(o.htmlPath, func(w io.Writer) error { return chart.WriteHTML(w, fig) }); err != nil {
			return err
		}
	}
	if o.pngPath != "" {
		if err := writeFile(o.pngPath, func(w io.Writer) error { return chart.WritePNG(w, fig) }); err != nil {
			return err
		}
	}
	if o.geojson != "" {
		lon, lat, ok := scn.GetOrigin()
		if !ok {
			return fmt.Errorf("-geojson needs origin_lon and origin_lat in the scenario")
		}
		proj, err := geo.NewProjector(lon, lat)
		if err != nil {
			return err
		}
		var geoTracks []geo.Track
		for _, s := range fig.Series {
			geoTracks = append(geoTracks, geo.Track{Name: s.Vessel, Kind: s.Kind, Positions: s.Points})
		}
		data, err := proj.FeatureCollection(geoTracks)
		if err != nil {
			return err
		}
		if err := os.WriteFile(o.geojson, data, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", o.geojson, err)
		}
	}
	return nil
}

func report(out io.Writer, own string, collisions []collision.Collision, groundings []collision.Grounding, speedUnits string) {
	if len(collisions) == 0 && len(groundings) == 0 {
		fmt.Fprintf(out, "%s: no collisions or groundings predicted\n", own)
		return
	}
	for _, c := range collisions {
		speed := math.Hypot(c.Own.LinearVelocity[0], c.Own.LinearVelocity[1])
		fmt.Fprintf(out, "%s: collision with %s predicted at t=%.1fs, N %.1f E %.1f, their heading %.0f deg, own speed %s\n",
			own, c.VesselID, c.Time, c.Position.North, c.Position.East,
			autopilot.Rad2Deg(c.Heading), units.FormatSpeed(speed, speedUnits))
	}
	for _, g := range groundings {
		fmt.Fprintf(out, "%s: grounding at t=%.1fs, N %.1f E %.1f, heading %.0f deg\n",
			own, g.State.Time, g.Position.North, g.Position.East, autopilot.Rad2Deg(g.Orientation.Yaw))
	}
}

func events(collisions []collision.Collision, groundings []collision.Grounding) []sqlite.Event {
	out := make([]sqlite.Event, 0, len(collisions)+len(groundings))
	for _, c := range collisions {
		out = append(out, sqlite.Event{Kind: sqlite.EventCollision, Vessel: c.VesselID, Time: c.Time, Position: c.Position, Heading: c.Heading})
	}
	for _, g := range groundings {
		out = append(out, sqlite.Event{Kind: sqlite.EventGrounding, Vessel: g.VesselID, Time: g.State.Time, Position: g.Position, Heading: g.Orientation.Yaw})
	}
	return out
}

func save(ctx context.Context, path string, scn *config.Scenario, setup sim.Setup, log *sim.Log, tracks track.State, events []sqlite.Event, infos []sqlite.VesselInfo) error {
	store, err := sqlite.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	doc, err := json.Marshal(scn)
	if err != nil {
		return fmt.Errorf("failed to encode scenario: %w", err)
	}
	id, err := store.SaveRun(ctx, sqlite.RunData{
		Run:    sqlite.Run{Name: scn.GetName(), Setup: setup, Vessels: infos, Scenario: doc},
		Log:    log,
		Tracks: tracks,
		Events: events,
	})
	if err != nil {
		return err
	}
	monitoring.Logf("vesselsim: saved run %s to %s", id, path)
	return nil
}

func writeFile(path string, render func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := render(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
