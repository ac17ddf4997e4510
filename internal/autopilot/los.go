package autopilot

import "math"

// Waypoint is a horizontal target in the local north-east frame (metres).
type Waypoint struct {
	North float64 `json:"north" yaml:"north"`
	East  float64 `json:"east" yaml:"east"`
}

// LOS is a lookahead-based line-of-sight guidance law over an ordered
// waypoint list. The cursor only moves forward.
type LOS struct {
	waypoints []Waypoint
	cursor    int

	// acceptance is both the switch radius around the active waypoint and
	// the lookahead distance.
	acceptance float64
}

// NewLOS builds a follower for a hull of the given length. The acceptance
// radius is acceptanceFactor*length: the cursor advances once the vessel is
// within it of the active waypoint, and it is the lookahead distance.
func NewLOS(waypoints []Waypoint, length, acceptanceFactor float64) *LOS {
	wps := make([]Waypoint, len(waypoints))
	copy(wps, waypoints)
	return &LOS{
		waypoints:  wps,
		acceptance: acceptanceFactor * length,
	}
}

// Waypoints returns a copy of the followed route.
func (l *LOS) Waypoints() []Waypoint {
	out := make([]Waypoint, len(l.waypoints))
	copy(out, l.waypoints)
	return out
}

// Cursor is the index of the active waypoint.
func (l *LOS) Cursor() int { return l.cursor }

// Guide returns the desired heading in degrees for a vessel at (north, east)
// and the waypoint cursor after any advance. ok is false when the route is
// empty.
func (l *LOS) Guide(north, east float64) (headingDeg float64, cursor int, ok bool) {
	if len(l.waypoints) == 0 {
		return 0, 0, false
	}

	prev := Waypoint{North: north, East: east}
	if l.cursor > 0 {
		prev = l.waypoints[l.cursor-1]
	}
	cur := l.waypoints[l.cursor]

	if math.Hypot(cur.North-north, cur.East-east) < l.acceptance && l.cursor+1 < len(l.waypoints) {
		prev = cur
		l.cursor++
		cur = l.waypoints[l.cursor]
	}

	pathAngle := math.Atan2(cur.East-prev.East, cur.North-prev.North)
	crossTrack := -(north-prev.North)*math.Sin(pathAngle) + (east-prev.East)*math.Cos(pathAngle)

	denom := math.Sqrt(l.acceptance*l.acceptance + crossTrack*crossTrack)
	correction := 0.0
	if denom > 0 {
		correction = math.Atan(-crossTrack / denom)
	}
	return Rad2Deg(pathAngle + correction), l.cursor, true
}
