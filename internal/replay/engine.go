// Package replay plays a finished simulation log back through the own
// vessel's radar, the track registry and the collision predictor.
package replay

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/banshee-data/vessel.report/internal/collision"
	"github.com/banshee-data/vessel.report/internal/monitoring"
	"github.com/banshee-data/vessel.report/internal/radar"
	"github.com/banshee-data/vessel.report/internal/sim"
	"github.com/banshee-data/vessel.report/internal/timeutil"
	"github.com/banshee-data/vessel.report/internal/track"
	"github.com/banshee-data/vessel.report/internal/vessel"
)

var (
	// ErrRewind is returned when the cursor is moved backwards.
	ErrRewind = errors.New("replay cursor cannot move backwards")
	// ErrInvalidPacing is returned for a non-positive tick or speed.
	ErrInvalidPacing = errors.New("invalid replay pacing")
	// ErrUnknownOwnVessel is returned when the log has no bundles for the
	// own vessel.
	ErrUnknownOwnVessel = errors.New("own vessel not in log")
)

// Config controls replay cadence and the own vessel's sensors.
type Config struct {
	// Own is the vessel carrying the radar and whose path is checked.
	Own string

	RadarScanTime  float64 // s between radar scans
	PathUpdateTime float64 // s between prediction updates and collision checks

	Radar                  radar.Config
	Zone                   collision.Zone
	CriticalDistanceFactor float64

	// Grounding enables a single terrain check of the own path.
	Grounding bool
}

// Engine is scoped to one replay of one log.
type Engine struct {
	cfg      Config
	log      *sim.Log
	hull     vessel.Hull
	registry *track.Registry
	radar    *radar.Radar
	detector *collision.Predictor
	handler  collision.Handler
	terrain  *collision.Terrain

	mu         sync.Mutex
	started    bool
	cursor     float64
	nextScan   float64
	nextUpdate float64
	grounded   bool
	reported   map[string]bool
	collisions []collision.Collision
	groundings []collision.Grounding
}

// timeEpsilon absorbs float drift when the cursor lands on a scheduled
// scan or update.
const timeEpsilon = 1e-9

// New builds an engine over log. The registry collects the radar tracks
// and handler, which may be nil, is told about each vessel's first
// predicted collision and any grounding.
func New(cfg Config, log *sim.Log, ownHull vessel.Hull, registry *track.Registry, noise radar.NoiseSource, handler collision.Handler) (*Engine, error) {
	if log.Len(cfg.Own) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOwnVessel, cfg.Own)
	}
	if cfg.RadarScanTime <= 0 || cfg.PathUpdateTime <= 0 {
		return nil, fmt.Errorf("%w: scan %.3fs, update %.3fs", ErrInvalidPacing, cfg.RadarScanTime, cfg.PathUpdateTime)
	}
	return &Engine{
		cfg:      cfg,
		log:      log,
		hull:     ownHull,
		registry: registry,
		radar:    radar.New(cfg.Own, cfg.Radar, noise, registry),
		detector: collision.NewPredictor(ownHull.Length, cfg.Zone, cfg.CriticalDistanceFactor, nil),
		handler:  handler,
		reported: make(map[string]bool),
	}, nil
}

// SetTerrain sets the areas used by the grounding check.
func (e *Engine) SetTerrain(t *collision.Terrain) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.terrain = t
}

// Registry is the track registry fed by the radar.
func (e *Engine) Registry() *track.Registry { return e.registry }

// Detector is the collision predictor used for checks.
func (e *Engine) Detector() *collision.Predictor { return e.detector }

// Cursor is the current replay time.
func (e *Engine) Cursor() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cursor
}

// Collisions returns the first predicted collision with each vessel, in
// detection order.
func (e *Engine) Collisions() []collision.Collision {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]collision.Collision(nil), e.collisions...)
}

// Groundings returns the detected groundings.
func (e *Engine) Groundings() []collision.Grounding {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]collision.Grounding(nil), e.groundings...)
}

// Reset rewinds the engine to the start of the log and clears every track.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.started = false
	e.cursor, e.nextScan, e.nextUpdate = 0, 0, 0
	e.grounded = false
	e.reported = make(map[string]bool)
	e.collisions = nil
	e.groundings = nil
	e.registry.Reset()
}

// Advance moves the cursor to t. The first call scans, predicts and checks
// immediately; afterwards each happens on a fixed schedule of its interval.
// The handler is called after the engine is unlocked, so it may use the
// engine.
func (e *Engine) Advance(t float64) error {
	collisions, groundings, err := e.advance(t)
	if e.handler != nil {
		for _, c := range collisions {
			e.handler.OnCollision(c.VesselID, c.Position, c.Heading, c.Time)
		}
		for _, g := range groundings {
			e.handler.OnGrounding(g.VesselID, g.Position, g.Orientation)
		}
	}
	return err
}

func (e *Engine) advance(t float64) ([]collision.Collision, []collision.Grounding, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started && t < e.cursor {
		return nil, nil, fmt.Errorf("%w: %.3f < %.3f", ErrRewind, t, e.cursor)
	}
	if !e.started {
		e.started = true
		e.nextScan, e.nextUpdate = t, t
	}
	e.cursor = t

	if t+timeEpsilon >= e.nextScan {
		e.scan(t)
		e.nextScan = nextDue(e.nextScan, e.cfg.RadarScanTime, t)
	}
	var collisions []collision.Collision
	if t+timeEpsilon >= e.nextUpdate {
		e.registry.UpdateAll()
		collisions = e.checkCollisions(t)
		e.nextUpdate = nextDue(e.nextUpdate, e.cfg.PathUpdateTime, t)
	}
	var groundings []collision.Grounding
	if e.cfg.Grounding && !e.grounded && e.terrain != nil {
		g, hit, err := e.checkGrounding(t)
		if err != nil {
			return collisions, nil, err
		}
		e.grounded = true
		if hit {
			groundings = append(groundings, g)
		}
	}
	return collisions, groundings, nil
}

// nextDue steps a schedule past t by whole intervals.
func nextDue(due, interval, t float64) float64 {
	for due <= t+timeEpsilon {
		due += interval
	}
	return due
}

func (e *Engine) scan(t float64) {
	own, ok := e.log.At(e.cfg.Own, t)
	if !ok {
		return
	}
	var targets []radar.Target
	for _, name := range e.log.Names() {
		b, ok := e.log.At(name, t)
		if !ok {
			continue
		}
		targets = append(targets, radar.Target{Name: name, Position: b.Eta.Position()})
	}
	e.radar.Scan(own.Eta.Position(), targets, t)
}

func (e *Engine) checkCollisions(t float64) []collision.Collision {
	var found []collision.Collision
	path := e.log.From(e.cfg.Own, t)
	for _, name := range e.registry.Names() {
		if e.reported[name] {
			continue
		}
		pred, ok := e.registry.Prediction(name)
		if !ok {
			continue
		}
		c, hit := e.detector.Check(path, name, pred.Path)
		if !hit {
			continue
		}
		e.reported[name] = true
		e.collisions = append(e.collisions, c)
		found = append(found, c)
		monitoring.Logf("replay: predicted collision with %s at t=%.1fs (checked at %.1fs)", name, c.Time, t)
	}
	return found
}

func (e *Engine) checkGrounding(t float64) (collision.Grounding, bool, error) {
	g, hit, err := collision.CheckGrounding(e.terrain, e.cfg.Own, e.log.From(e.cfg.Own, t), e.hull, nil)
	if err != nil {
		return collision.Grounding{}, false, fmt.Errorf("failed to check grounding: %w", err)
	}
	if hit {
		e.groundings = append(e.groundings, g)
		monitoring.Logf("replay: %s grounds at t=%.1fs", e.cfg.Own, g.State.Time)
	}
	return g, hit, nil
}

// Play advances from the cursor to the end of the log in steps of step
// simulated seconds without pacing.
func (e *Engine) Play(step float64) error {
	if step <= 0 {
		return fmt.Errorf("%w: step %.3fs", ErrInvalidPacing, step)
	}
	end := e.log.EndTime()
	t := e.Cursor()
	if err := e.Advance(t); err != nil {
		return err
	}
	for t < end {
		t = math.Min(t+step, end)
		if err := e.Advance(t); err != nil {
			return err
		}
	}
	return nil
}

// Run paces playback against clock: every tick of wall time advances the
// cursor by tick*speed simulated seconds until the log ends. Cancelling ctx
// resets the engine and returns ctx.Err().
func (e *Engine) Run(ctx context.Context, clock timeutil.Clock, tick time.Duration, speed float64) error {
	if tick <= 0 || speed <= 0 {
		return fmt.Errorf("%w: tick %s, speed %.2f", ErrInvalidPacing, tick, speed)
	}
	end := e.log.EndTime()
	step := tick.Seconds() * speed

	t := e.Cursor()
	if err := e.Advance(t); err != nil {
		return err
	}

	ticker := clock.NewTicker(tick)
	defer ticker.Stop()
	for t < end {
		select {
		case <-ctx.Done():
			e.Reset()
			return ctx.Err()
		case <-ticker.C():
			t = math.Min(t+step, end)
			if err := e.Advance(t); err != nil {
				return err
			}
		}
	}
	return nil
}
