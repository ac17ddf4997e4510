// Package collision detects predicted collisions between vessels and
// groundings against static terrain.
package collision

import "math"

// Zone is the exclusion zone around a hull, with clearances measured in
// hull lengths.
type Zone struct {
	Side     float64 `json:"side"`
	Front    float64 `json:"front"`
	Back     float64 `json:"back"`
	Exponent float64 `json:"exponent"`
}

// DefaultZone is five lengths ahead, two astern and two abeam with a
// rounded-rectangle shape.
func DefaultZone() Zone {
	return Zone{Side: 2, Front: 5, Back: 2, Exponent: 5}
}

// Shape is a zone resolved for a hull length: a Lame curve with lateral
// semi-axis A, longitudinal semi-axis B and centre shifted Delta ahead of
// the hull origin.
type Shape struct {
	A, B, Delta, R float64
}

// Shape resolves the zone for a hull of the given length.
func (z Zone) Shape(length float64) Shape {
	r := z.Exponent
	if r <= 0 {
		r = DefaultZone().Exponent
	}
	return Shape{
		A:     length * (0.5 + z.Side),
		B:     length * (0.5 + (z.Front+z.Back)/2),
		Delta: length * (z.Front - z.Back) / 2,
		R:     r,
	}
}

// Contains reports whether a point lateral metres to starboard and forward
// metres ahead of the hull origin is strictly inside the zone.
func (s Shape) Contains(lateral, forward float64) bool {
	return math.Pow(math.Abs(lateral/s.A), s.R)+math.Pow(math.Abs((forward-s.Delta)/s.B), s.R) < 1
}

// Extent is the furthest reach of the zone's bounding box along either
// axis from the hull origin.
func (s Shape) Extent() float64 {
	return math.Max(s.A, s.B+math.Abs(s.Delta))
}
