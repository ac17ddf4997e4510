// Package track keeps the radar history of every observed vessel together
// with its path predictor and latest prediction.
package track

import (
	"sort"
	"sync"

	"github.com/banshee-data/vessel.report/internal/predict"
	"github.com/banshee-data/vessel.report/internal/vessel"
)

type entry struct {
	history    []predict.Sample
	predictor  *predict.Predictor
	prediction predict.Prediction
	hasPred    bool
}

// Registry is scoped to one replay. Histories are append-only and
// predictions are replaced wholesale.
type Registry struct {
	mu       sync.RWMutex
	defaults predict.Config
	profiles map[string]predict.Config
	tracks   map[string]*entry
	order    []string
}

// NewRegistry uses defaults for every vessel without its own profile.
func NewRegistry(defaults predict.Config) *Registry {
	return &Registry{
		defaults: defaults,
		profiles: make(map[string]predict.Config),
		tracks:   make(map[string]*entry),
	}
}

// SetProfile gives name its own predictor tuning. It applies to the
// existing track immediately.
func (r *Registry) SetProfile(name string, cfg predict.Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[name] = cfg
	if e, ok := r.tracks[name]; ok {
		e.predictor = predict.NewPredictor(cfg)
	}
}

// Record appends a radar sample. Samples older than the newest one already
// held for that vessel are dropped.
func (r *Registry) Record(name string, pos vessel.Position, t float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.track(name)
	if n := len(e.history); n > 0 && t < e.history[n-1].Time {
		return
	}
	e.history = append(e.history, predict.Sample{Time: t, Position: pos})
}

// track returns the entry for name, creating it. Callers hold mu.
func (r *Registry) track(name string) *entry {
	e, ok := r.tracks[name]
	if ok {
		return e
	}
	cfg, ok := r.profiles[name]
	if !ok {
		cfg = r.defaults
	}
	e = &entry{predictor: predict.NewPredictor(cfg)}
	r.tracks[name] = e
	r.order = append(r.order, name)
	return e
}

// Names lists tracked vessels in first-seen order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// History returns a copy of the samples held for name.
func (r *Registry) History(name string) []predict.Sample {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tracks[name]
	if !ok {
		return nil
	}
	return append([]predict.Sample(nil), e.history...)
}

// Update regenerates the prediction for name from its full history.
func (r *Registry) Update(name string) (predict.Prediction, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.tracks[name]
	if !ok || len(e.history) == 0 {
		return predict.Prediction{}, false
	}
	e.prediction = e.predictor.Predict(e.history)
	e.hasPred = true
	return e.prediction, true
}

// UpdateAll regenerates every prediction.
func (r *Registry) UpdateAll() {
	for _, name := range r.Names() {
		r.Update(name)
	}
}

// Prediction returns the latest prediction for name.
func (r *Registry) Prediction(name string) (predict.Prediction, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tracks[name]
	if !ok || !e.hasPred {
		return predict.Prediction{}, false
	}
	return e.prediction, true
}

// Reset forgets every track. Profiles are kept.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tracks = make(map[string]*entry)
	r.order = nil
}

// State is a detached copy of the registry contents.
type State struct {
	Histories   map[string][]predict.Sample
	Predictions map[string]predict.Prediction
}

// Snapshot copies the registry.
func (r *Registry) Snapshot() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := State{
		Histories:   make(map[string][]predict.Sample, len(r.tracks)),
		Predictions: make(map[string]predict.Prediction),
	}
	for name, e := range r.tracks {
		s.Histories[name] = append([]predict.Sample(nil), e.history...)
		if e.hasPred {
			s.Predictions[name] = e.prediction
		}
	}
	return s
}

// Restore replaces the registry contents with s in one step. Histories
// must be in time order.
func (r *Registry) Restore(s State) {
	names := make([]string, 0, len(s.Histories))
	for name := range s.Histories {
		names = append(names, name)
	}
	sort.Strings(names)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tracks = make(map[string]*entry, len(names))
	r.order = nil
	for _, name := range names {
		e := r.track(name)
		e.history = append([]predict.Sample(nil), s.Histories[name]...)
		if p, ok := s.Predictions[name]; ok {
			e.prediction, e.hasPred = p, true
		}
	}
}
