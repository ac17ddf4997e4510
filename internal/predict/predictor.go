// Package predict turns a noisy radar track into a smoothed, extrapolated
// future path.
package predict

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/vessel.report/internal/vessel"
)

// MinFilteredSamples is the smallest history that can be smoothed twice and
// still leave enough points to extrapolate from.
const MinFilteredSamples = 9

// minTurnRate (deg/s) below which the extrapolated heading is held.
const minTurnRate = 0.05

// Sample is a timestamped position.
type Sample struct {
	Time     float64         `json:"time"`
	Position vessel.Position `json:"position"`
}

// Config tunes the predictor. All times are in seconds.
type Config struct {
	// TimeThreshold is the history window used for prediction.
	TimeThreshold float64 `json:"time_threshold"`
	// MinTime merges samples closer together than this. Zero disables.
	MinTime float64 `json:"min_time"`
	// AnchoredTravelThreshold (m) below which a vessel is considered
	// anchored. Zero derives it from the vessel's average speed.
	AnchoredTravelThreshold float64 `json:"anchored_travel_threshold"`
	// Step is the spacing of predicted points.
	Step float64 `json:"step"`
	// Horizon is how far ahead to predict.
	Horizon float64 `json:"horizon"`
	// TurnRateAcceleration is the per-second decay of the turn rate.
	TurnRateAcceleration float64 `json:"turn_rate_acceleration"`
	// LinearAcceleration is the per-second decay of the acceleration.
	LinearAcceleration float64 `json:"linear_acceleration"`
}

// DefaultConfig returns the stock predictor tuning.
func DefaultConfig() Config {
	return Config{
		TimeThreshold:      60,
		Step:               1,
		Horizon:            120,
		LinearAcceleration: 0.1,
	}
}

// Prediction is one regenerated future path.
type Prediction struct {
	Path []Sample `json:"path"`

	// Anchored is set when the vessel was judged stationary.
	Anchored bool `json:"anchored"`

	// Fallback is set when there was too little history to smooth and the
	// path holds the average observed position.
	Fallback bool `json:"fallback"`
}

// Predictor is stateless apart from its tuning and safe to share.
type Predictor struct {
	cfg Config
}

// NewPredictor fills unset step and horizon values from DefaultConfig.
func NewPredictor(cfg Config) *Predictor {
	def := DefaultConfig()
	if cfg.Step <= 0 {
		cfg.Step = def.Step
	}
	if cfg.Horizon <= 0 {
		cfg.Horizon = def.Horizon
	}
	if cfg.TimeThreshold <= 0 {
		cfg.TimeThreshold = def.TimeThreshold
	}
	return &Predictor{cfg: cfg}
}

// Config returns the effective tuning.
func (p *Predictor) Config() Config { return p.cfg }

// Predict builds a path from history, which must be in time order. An empty
// history yields an empty prediction.
func (p *Predictor) Predict(history []Sample) Prediction {
	if len(history) == 0 {
		return Prediction{}
	}
	filtered := filterHistory(history, p.cfg.TimeThreshold, p.cfg.MinTime)
	last := filtered[len(filtered)-1].Time

	if len(filtered) < MinFilteredSamples {
		return Prediction{Path: p.hold(meanPosition(filtered), last), Fallback: true}
	}

	smooth := catmullRomRefine(bezierSmooth(filtered))
	speeds, segTimes := segmentSpeeds(smooth)
	avgSpeed := stat.Mean(speeds, nil)

	first, end := smooth[0], smooth[len(smooth)-1]
	travelled := end.Position.Sub(first.Position).HorizontalNorm()
	threshold := p.cfg.AnchoredTravelThreshold
	if threshold == 0 {
		// Net displacement of a vessel that turned through 180 degrees at
		// its average speed.
		threshold = (end.Time - first.Time) * avgSpeed / (math.Pi / 2)
	}
	if travelled < threshold || travelled < 1e-9 {
		return Prediction{Path: p.hold(meanPosition(filtered), last), Anchored: true}
	}

	rates, rateTimes := turnRates(smooth)
	accel := meanChange(speeds, segTimes)
	torque := meanChange(rates, rateTimes)
	return Prediction{Path: p.extrapolate(smooth, last, avgSpeed, accel, stat.Mean(rates, nil), torque)}
}

// hold predicts a stationary vessel at pos.
func (p *Predictor) hold(pos vessel.Position, from float64) []Sample {
	n := p.steps()
	out := make([]Sample, 0, n)
	for k := 1; k <= n; k++ {
		out = append(out, Sample{Time: from + float64(k)*p.cfg.Step, Position: pos})
	}
	return out
}

func (p *Predictor) steps() int {
	return int(math.Floor(p.cfg.Horizon/p.cfg.Step + 1e-9))
}

// extrapolate steps forward from the last two smoothed points, turning by
// the average turn rate and accelerating by the average acceleration, each
// decaying towards straight, constant-speed travel.
func (p *Predictor) extrapolate(smooth []Sample, from, speed, accel, turn, torque float64) []Sample {
	n := len(smooth)
	prevPrev := smooth[n-4].Position.Lerp(smooth[n-3].Position, 0.5)
	prev := smooth[n-2].Position.Lerp(smooth[n-1].Position, 0.5)

	dir := prev.Sub(prevPrev)
	dir.Down = 0
	if l := dir.HorizontalNorm(); l > 0 {
		dir = dir.Scale(1 / l)
	} else {
		return p.hold(prev, from)
	}

	// The smoothed points lag the newest sample; carry the start point
	// forward so predicted times line up with positions.
	tPrev := (smooth[n-2].Time + smooth[n-1].Time) / 2
	prev = prev.Add(dir.Scale(speed * (from - tPrev)))

	step := p.cfg.Step
	turnDecay := math.Pow(1-p.cfg.TurnRateAcceleration, step)
	accelDecay := math.Pow(1-p.cfg.LinearAcceleration, step)
	torqueDecay := math.Pow(0.9, step)
	turnScale := 1.0

	steps := p.steps()
	out := make([]Sample, 0, steps)
	for k := 1; k <= steps; k++ {
		scaled := (turn*step + torque*step) * turnScale
		if math.Abs(scaled)/step >= minTurnRate {
			dir = rotate(dir, scaled*math.Pi/180)
			turnScale *= turnDecay
		}
		if math.Abs(accel) >= 0.01 {
			speed = math.Max(0, speed+accel*step)
			accel *= accelDecay
		}
		prev = prev.Add(dir.Scale(speed * step))
		out = append(out, Sample{Time: from + float64(k)*step, Position: prev})
		torque *= torqueDecay
	}
	return out
}

// rotate turns a horizontal direction clockwise (towards east) by angle
// radians.
func rotate(d vessel.Position, angle float64) vessel.Position {
	c, s := math.Cos(angle), math.Sin(angle)
	return vessel.Position{North: d.North*c - d.East*s, East: d.North*s + d.East*c, Down: d.Down}
}

// signedAngle is the clockwise angle in radians from a to b in the
// horizontal plane.
func signedAngle(a, b vessel.Position) float64 {
	return math.Atan2(a.North*b.East-a.East*b.North, a.North*b.North+a.East*b.East)
}

func meanPosition(s []Sample) vessel.Position {
	n := make([]float64, len(s))
	e := make([]float64, len(s))
	d := make([]float64, len(s))
	for i, x := range s {
		n[i], e[i], d[i] = x.Position.North, x.Position.East, x.Position.Down
	}
	return vessel.Position{North: stat.Mean(n, nil), East: stat.Mean(e, nil), Down: stat.Mean(d, nil)}
}

// segmentSpeeds returns the horizontal speed over each consecutive pair and
// the midpoint time of each segment.
func segmentSpeeds(s []Sample) (speeds, times []float64) {
	for i := 0; i+1 < len(s); i++ {
		dt := s[i+1].Time - s[i].Time
		speeds = append(speeds, s[i+1].Position.Sub(s[i].Position).HorizontalNorm()/dt)
		times = append(times, (s[i].Time+s[i+1].Time)/2)
	}
	return speeds, times
}

// turnRates returns the signed turn rate in deg/s at each interior point
// and the time of that point.
func turnRates(s []Sample) (rates, times []float64) {
	for i := 0; i+2 < len(s); i++ {
		a := s[i+1].Position.Sub(s[i].Position)
		b := s[i+2].Position.Sub(s[i+1].Position)
		dt := (s[i+2].Time - s[i].Time) / 2 // between chord midpoints
		rates = append(rates, signedAngle(a, b)*180/math.Pi/dt)
		times = append(times, s[i+1].Time)
	}
	return rates, times
}

// meanChange is the average rate of change of v sampled at times t.
func meanChange(v, t []float64) float64 {
	if len(v) < 2 {
		return 0
	}
	d := make([]float64, 0, len(v)-1)
	for i := 0; i+1 < len(v); i++ {
		d = append(d, (v[i+1]-v[i])/(t[i+1]-t[i]))
	}
	return stat.Mean(d, nil)
}
