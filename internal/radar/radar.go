// Package radar simulates a shipborne radar sampling the true positions of
// other vessels.
package radar

import (
	"math"

	"github.com/banshee-data/vessel.report/internal/monitoring"
	"github.com/banshee-data/vessel.report/internal/vessel"
)

// NoiseSource yields uniform values in [0, 1). *rand.Rand satisfies it.
type NoiseSource interface {
	Float64() float64
}

// Recorder receives radar samples. track.Registry satisfies it.
type Recorder interface {
	Record(name string, pos vessel.Position, t float64)
}

// Target is a vessel visible to the radar.
type Target struct {
	Name     string
	Position vessel.Position
}

// Observation is one radar return.
type Observation struct {
	Name     string
	Position vessel.Position
	Range    float64
	Time     float64
}

// Config controls the radar.
type Config struct {
	// Range is the maximum detection range in metres. Zero disables the
	// limit.
	Range float64

	// NoisePercent scales the position error: a return at range R is
	// displaced by R*NoisePercent*0.1 in a random horizontal direction.
	// Zero disables noise.
	NoisePercent float64
}

const maxDirectionTries = 16

// Radar is owned by one vessel and never reports that vessel.
type Radar struct {
	owner string
	cfg   Config
	noise NoiseSource
	rec   Recorder
}

// New builds a radar for owner. noise may be nil when NoisePercent is zero.
func New(owner string, cfg Config, noise NoiseSource, rec Recorder) *Radar {
	return &Radar{owner: owner, cfg: cfg, noise: noise, rec: rec}
}

// Owner is the name of the vessel carrying the radar.
func (r *Radar) Owner() string { return r.owner }

// Scan samples every target other than the owner that lies within range of
// own, forwards each return to the recorder and returns them in target
// order.
func (r *Radar) Scan(own vessel.Position, targets []Target, t float64) []Observation {
	var out []Observation
	for _, tgt := range targets {
		if tgt.Name == r.owner {
			continue
		}
		rng := tgt.Position.Sub(own).Norm()
		if r.cfg.Range > 0 && rng >= r.cfg.Range {
			continue
		}

		pos := tgt.Position
		if r.cfg.NoisePercent != 0 && r.noise != nil {
			pos = pos.Add(r.displacement(rng))
		}
		obs := Observation{Name: tgt.Name, Position: pos, Range: rng, Time: t}
		if r.rec != nil {
			r.rec.Record(obs.Name, obs.Position, obs.Time)
		}
		out = append(out, obs)
	}
	return out
}

func (r *Radar) displacement(rng float64) vessel.Position {
	mag := rng * r.cfg.NoisePercent * 0.1
	for i := 0; i < maxDirectionTries; i++ {
		n := 2*r.noise.Float64() - 1
		e := 2*r.noise.Float64() - 1
		l := math.Hypot(n, e)
		if l < 1e-6 || l > 1 {
			continue
		}
		return vessel.Position{North: mag * n / l, East: mag * e / l}
	}
	monitoring.Logf("radar: %s found no usable noise direction after %d draws; returning exact position", r.owner, maxDirectionTries)
	return vessel.Position{}
}
