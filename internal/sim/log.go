package sim

import (
	"math"
	"sort"
	"sync"

	"github.com/banshee-data/vessel.report/internal/vessel"
)

// Log is the append-only per-vessel record of simulated state. Bundles are
// never modified once appended; readers receive copies.
type Log struct {
	mu      sync.RWMutex
	order   []string
	bundles map[string][]vessel.StateBundle
}

// NewLog returns an empty log.
func NewLog() *Log {
	return &Log{bundles: make(map[string][]vessel.StateBundle)}
}

// Append records b for the named vessel. Timestamps must be increasing per
// vessel; out-of-order bundles are dropped and false is returned.
func (l *Log) Append(name string, b vessel.StateBundle) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	existing, ok := l.bundles[name]
	if !ok {
		l.order = append(l.order, name)
	}
	if n := len(existing); n > 0 && b.Time <= existing[n-1].Time {
		return false
	}
	l.bundles[name] = append(existing, b)
	return true
}

// Clear removes all bundles for name. It reports whether anything was
// removed.
func (l *Log) Clear(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.bundles[name]; !ok {
		return false
	}
	delete(l.bundles, name)
	for i, n := range l.order {
		if n == name {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	return true
}

// Names lists vessels in first-append order.
func (l *Log) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]string(nil), l.order...)
}

// Len is the number of bundles recorded for name.
func (l *Log) Len(name string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.bundles[name])
}

// Bundles returns a copy of every bundle for name.
func (l *Log) Bundles(name string) []vessel.StateBundle {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]vessel.StateBundle(nil), l.bundles[name]...)
}

// From returns the bundles for name with Time >= t, preceded by the last
// bundle before t when one exists so callers can interpolate at t.
func (l *Log) From(name string, t float64) []vessel.StateBundle {
	l.mu.RLock()
	defer l.mu.RUnlock()

	bs := l.bundles[name]
	i := sort.Search(len(bs), func(i int) bool { return bs[i].Time >= t })
	if i > 0 {
		i--
	}
	return append([]vessel.StateBundle(nil), bs[i:]...)
}

// At returns the state of name at time t, linearly interpolating position
// and yaw between the bracketing bundles. Times outside the log clamp to the
// first or last bundle. ok is false when the vessel has no bundles.
func (l *Log) At(name string, t float64) (vessel.StateBundle, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	bs := l.bundles[name]
	if len(bs) == 0 {
		return vessel.StateBundle{}, false
	}
	i := sort.Search(len(bs), func(i int) bool { return bs[i].Time >= t })
	switch {
	case i == 0:
		return bs[0], true
	case i == len(bs):
		return bs[len(bs)-1], true
	}
	prev, next := bs[i-1], bs[i]
	f := (t - prev.Time) / (next.Time - prev.Time)

	out := next
	out.Time = t
	out.Eta.North = prev.Eta.North + f*(next.Eta.North-prev.Eta.North)
	out.Eta.East = prev.Eta.East + f*(next.Eta.East-prev.Eta.East)
	out.Eta.Down = prev.Eta.Down + f*(next.Eta.Down-prev.Eta.Down)
	out.Eta.Yaw = prev.Eta.Yaw + f*(next.Eta.Yaw-prev.Eta.Yaw)
	return out, true
}

// EndTime is the latest timestamp across all vessels.
func (l *Log) EndTime() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	end := 0.0
	for _, bs := range l.bundles {
		if n := len(bs); n > 0 && bs[n-1].Time > end {
			end = bs[n-1].Time
		}
	}
	return end
}

// Bounds is the horizontal extent of every logged position.
type Bounds struct {
	MinNorth, MaxNorth float64
	MinEast, MaxEast   float64
}

// Bounds returns the extent of all logged positions. ok is false for an
// empty log.
func (l *Log) Bounds() (Bounds, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	b := Bounds{
		MinNorth: math.Inf(1), MaxNorth: math.Inf(-1),
		MinEast: math.Inf(1), MaxEast: math.Inf(-1),
	}
	found := false
	for _, bs := range l.bundles {
		for _, s := range bs {
			found = true
			b.MinNorth = math.Min(b.MinNorth, s.Eta.North)
			b.MaxNorth = math.Max(b.MaxNorth, s.Eta.North)
			b.MinEast = math.Min(b.MinEast, s.Eta.East)
			b.MaxEast = math.Max(b.MaxEast, s.Eta.East)
		}
	}
	if !found {
		return Bounds{}, false
	}
	return b, true
}
