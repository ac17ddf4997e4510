package collision

import (
	"math"

	"github.com/banshee-data/vessel.report/internal/autopilot"
	"github.com/banshee-data/vessel.report/internal/predict"
	"github.com/banshee-data/vessel.report/internal/vessel"
)

// DefaultCriticalDistanceFactor scales the zone extent into the prune
// radius.
const DefaultCriticalDistanceFactor = 1.2

// Collision is a detected conflict between the own path and another
// vessel's prediction.
type Collision struct {
	VesselID string          `json:"vessel_id"`
	Position vessel.Position `json:"position"`
	Heading  float64         `json:"heading"`
	Time     float64         `json:"time"`

	// Own is the own vessel's interpolated state at Time.
	Own vessel.StateBundle `json:"own"`
}

// Stats counts work done by Check since the predictor was created.
type Stats struct {
	Aligned    int // aligned own/predicted pairs examined
	Pruned     int // pairs rejected by the distance prune
	ExactTests int // pairs that reached the zone test
}

// Predictor checks one vessel's committed path against others'
// predictions.
type Predictor struct {
	shape       Shape
	maxDistance float64
	handler     Handler
	stats       Stats
}

// NewPredictor builds a predictor for a hull of the given length. A factor
// <= 0 uses DefaultCriticalDistanceFactor. handler may be nil.
func NewPredictor(length float64, zone Zone, factor float64, handler Handler) *Predictor {
	if factor <= 0 {
		factor = DefaultCriticalDistanceFactor
	}
	shape := zone.Shape(length)
	return &Predictor{
		shape:       shape,
		maxDistance: shape.Extent() * factor,
		handler:     handler,
	}
}

// Shape is the resolved exclusion zone.
func (p *Predictor) Shape() Shape { return p.shape }

// MaxDistance is the prune radius.
func (p *Predictor) MaxDistance() float64 { return p.maxDistance }

// Stats returns the work counters.
func (p *Predictor) Stats() Stats { return p.stats }

// Check walks the own path and the predicted path together in time order
// and reports the first predicted point that falls inside the own
// exclusion zone. own must be time ordered and hold at least two bundles;
// predicted points outside the own path's time span are skipped.
func (p *Predictor) Check(own []vessel.StateBundle, vesselID string, predicted []predict.Sample) (Collision, bool) {
	if len(own) < 2 {
		return Collision{}, false
	}

	i := 1
	for j, target := range predicted {
		if target.Time < own[0].Time {
			continue
		}
		for i < len(own) && own[i].Time < target.Time {
			i++
		}
		if i >= len(own) {
			break
		}

		state := interpolate(own[i-1], own[i], target.Time)
		rel := target.Position.Sub(state.Eta.Position())
		p.stats.Aligned++
		if rel.HorizontalNorm() > p.maxDistance {
			p.stats.Pruned++
			continue
		}

		p.stats.ExactTests++
		sin, cos := math.Sincos(state.Eta.Yaw)
		lateral := -rel.North*sin + rel.East*cos
		forward := rel.North*cos + rel.East*sin
		if !p.shape.Contains(lateral, forward) {
			continue
		}

		c := Collision{
			VesselID: vesselID,
			Position: target.Position,
			Heading:  tangentHeading(predicted, j),
			Time:     target.Time,
			Own:      state,
		}
		if p.handler != nil {
			p.handler.OnCollision(c.VesselID, c.Position, c.Heading, c.Time)
		}
		return c, true
	}
	return Collision{}, false
}

// interpolate blends two bundles at time t, taking yaw the short way round.
func interpolate(a, b vessel.StateBundle, t float64) vessel.StateBundle {
	f := 0.0
	if span := b.Time - a.Time; span > 0 {
		f = (t - a.Time) / span
	}
	out := a
	out.Time = t
	pos := a.Eta.Position().Lerp(b.Eta.Position(), f)
	out.Eta.North, out.Eta.East, out.Eta.Down = pos.North, pos.East, pos.Down
	out.Eta.Yaw = a.Eta.Yaw + f*autopilot.Ssa(b.Eta.Yaw-a.Eta.Yaw)
	return out
}

// tangentHeading estimates the heading at point j of a path from its
// neighbours, in radians clockwise from north.
func tangentHeading(path []predict.Sample, j int) float64 {
	var d vessel.Position
	switch {
	case j+1 < len(path):
		d = path[j+1].Position.Sub(path[j].Position)
	case j > 0:
		d = path[j].Position.Sub(path[j-1].Position)
	default:
		return 0
	}
	return math.Atan2(d.East, d.North)
}
