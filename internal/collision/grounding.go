package collision

import (
	"fmt"
	"math"

	"github.com/peterstace/simplefeatures/geom"

	"github.com/banshee-data/vessel.report/internal/vessel"
)

// Terrain is a set of static obstacles in the local frame, with X as east
// and Y as north.
type Terrain struct {
	areas []geom.Geometry
}

// ParseTerrain reads polygon or multipolygon WKT.
func ParseTerrain(wkts []string) (*Terrain, error) {
	t := &Terrain{}
	for i, w := range wkts {
		g, err := geom.UnmarshalWKT(w)
		if err != nil {
			return nil, fmt.Errorf("failed to parse terrain %d: %w", i, err)
		}
		switch g.Type() {
		case geom.TypePolygon, geom.TypeMultiPolygon:
		default:
			return nil, fmt.Errorf("terrain %d: want polygon, got %s", i, g.Type())
		}
		t.areas = append(t.areas, g)
	}
	return t, nil
}

// Len is the number of terrain areas.
func (t *Terrain) Len() int { return len(t.areas) }

// Grounding is a detected hull contact with terrain.
type Grounding struct {
	VesselID    string             `json:"vessel_id"`
	Position    vessel.Position    `json:"position"`
	Orientation vessel.Eta         `json:"orientation"`
	State       vessel.StateBundle `json:"state"`
}

// CheckGrounding tests the hull footprint at every bundle of path against
// the terrain and reports the first contact. handler may be nil.
func CheckGrounding(terrain *Terrain, vesselID string, path []vessel.StateBundle, hull vessel.Hull, handler Handler) (Grounding, bool, error) {
	if terrain == nil || len(terrain.areas) == 0 {
		return Grounding{}, false, nil
	}
	for _, b := range path {
		fp, err := footprint(b.Eta, hull.Length, hull.Beam)
		if err != nil {
			return Grounding{}, false, err
		}
		for _, area := range terrain.areas {
			if !geom.Intersects(fp, area) {
				continue
			}
			g := Grounding{
				VesselID:    vesselID,
				Position:    b.Eta.Position(),
				Orientation: b.Eta,
				State:       b,
			}
			if handler != nil {
				handler.OnGrounding(g.VesselID, g.Position, g.Orientation)
			}
			return g, true, nil
		}
	}
	return Grounding{}, false, nil
}

// footprint is the hull rectangle at pose eta, with X east and Y north.
func footprint(eta vessel.Eta, length, beam float64) (geom.Geometry, error) {
	sin, cos := math.Sincos(eta.Yaw)
	corners := [][2]float64{
		{length / 2, -beam / 2},
		{length / 2, beam / 2},
		{-length / 2, beam / 2},
		{-length / 2, -beam / 2},
	}
	coords := make([]float64, 0, 2*(len(corners)+1))
	for i := 0; i <= len(corners); i++ {
		c := corners[i%len(corners)]
		north := eta.North + c[0]*cos - c[1]*sin
		east := eta.East + c[0]*sin + c[1]*cos
		coords = append(coords, east, north)
	}
	ring, err := geom.NewLineString(geom.NewSequence(coords, geom.DimXY))
	if err != nil {
		return geom.Geometry{}, fmt.Errorf("failed to build hull footprint: %w", err)
	}
	poly, err := geom.NewPolygon([]geom.LineString{ring})
	if err != nil {
		return geom.Geometry{}, fmt.Errorf("failed to build hull footprint: %w", err)
	}
	return poly.AsGeometry(), nil
}
