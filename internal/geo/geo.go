// Package geo places the local north-east simulation frame on the globe for
// export.
//
// Positions are projected through Web Mercator (EPSG:3857) around a fixed
// origin, scaled by the Mercator scale factor at the origin latitude so that
// one local metre is one ground metre near the origin.
package geo

import (
	"errors"
	"fmt"
	"math"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"

	"github.com/banshee-data/vessel.report/internal/vessel"
)

// ErrInvalidCoordinates is returned for an origin off the Mercator plane.
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// maxLatitude is the Web Mercator latitude limit.
const maxLatitude = 85.05112878

// Projector converts between the local frame and longitude/latitude.
type Projector struct {
	lon, lat float64
	x0, y0   float64
	scale    float64 // Mercator metres per ground metre at the origin

	toMercator   func(a, b, c float64) (float64, float64, float64)
	fromMercator func(a, b, c float64) (float64, float64, float64)
}

// NewProjector anchors the local origin at lon, lat (degrees).
func NewProjector(lon, lat float64) (*Projector, error) {
	if math.IsNaN(lon) || math.IsNaN(lat) || math.Abs(lon) > 180 || math.Abs(lat) > maxLatitude {
		return nil, fmt.Errorf("%w: lon %.6f lat %.6f", ErrInvalidCoordinates, lon, lat)
	}
	epsg := wgs84.EPSG()
	p := &Projector{
		lon:          lon,
		lat:          lat,
		scale:        1 / math.Cos(lat*math.Pi/180),
		toMercator:   epsg.Transform(4326, 3857),
		fromMercator: epsg.Transform(3857, 4326),
	}
	p.x0, p.y0, _ = p.toMercator(lon, lat, 0)
	return p, nil
}

// Origin returns the anchor longitude and latitude.
func (p *Projector) Origin() (lon, lat float64) { return p.lon, p.lat }

// ToLonLat converts a local position.
func (p *Projector) ToLonLat(pos vessel.Position) (lon, lat float64) {
	lon, lat, _ = p.fromMercator(p.x0+pos.East*p.scale, p.y0+pos.North*p.scale, 0)
	return lon, lat
}

// FromLonLat converts a longitude and latitude to the local frame.
func (p *Projector) FromLonLat(lon, lat float64) vessel.Position {
	x, y, _ := p.toMercator(lon, lat, 0)
	return vessel.Position{North: (y - p.y0) / p.scale, East: (x - p.x0) / p.scale}
}

// Path converts positions to a longitude/latitude geometry: empty for no
// positions, a point when every position projects to the same place,
// otherwise a line string.
func (p *Projector) Path(positions []vessel.Position) (geom.Geometry, error) {
	if len(positions) == 0 {
		return geom.LineString{}.AsGeometry(), nil
	}
	coords := make([]float64, 0, 2*len(positions))
	distinct := false
	for i, pos := range positions {
		lon, lat := p.ToLonLat(pos)
		if i > 0 && (lon != coords[0] || lat != coords[1]) {
			distinct = true
		}
		coords = append(coords, lon, lat)
	}
	if !distinct {
		pt, err := geom.NewPoint(geom.Coordinates{XY: geom.XY{X: coords[0], Y: coords[1]}, Type: geom.DimXY})
		if err != nil {
			return geom.Geometry{}, fmt.Errorf("failed to build point: %w", err)
		}
		return pt.AsGeometry(), nil
	}
	ls, err := geom.NewLineString(geom.NewSequence(coords, geom.DimXY))
	if err != nil {
		return geom.Geometry{}, fmt.Errorf("failed to build line string: %w", err)
	}
	return ls.AsGeometry(), nil
}

// Track is one named path for export.
type Track struct {
	Name      string
	Kind      string // "simulated", "radar" or "predicted"
	Positions []vessel.Position
}

// FeatureCollection renders tracks as GeoJSON.
func (p *Projector) FeatureCollection(tracks []Track) ([]byte, error) {
	fc := make(geom.GeoJSONFeatureCollection, 0, len(tracks))
	for _, t := range tracks {
		g, err := p.Path(t.Positions)
		if err != nil {
			return nil, fmt.Errorf("track %s/%s: %w", t.Name, t.Kind, err)
		}
		fc = append(fc, geom.GeoJSONFeature{
			Geometry: g,
			ID:       t.Name + "/" + t.Kind,
			Properties: map[string]interface{}{
				"vessel": t.Name,
				"kind":   t.Kind,
			},
		})
	}
	out, err := fc.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to encode GeoJSON: %w", err)
	}
	return out, nil
}
