package vessel

import (
	"fmt"
	"math"

	"github.com/banshee-data/vessel.report/internal/autopilot"
)

// Non-dimensional coefficients of the Esso Osaka class tanker in shallow
// water.
const (
	tkThrustDeduction = 0.22
	tkCun             = 0.605
	tkCnn             = 38.2
	tkTuu             = -0.00695
	tkTun             = -0.00063
	tkTnn             = 0.0000354
	tkM11             = 1.050
	tkM22             = 2.020
	tkM33             = 0.1232
	tkD11             = 2.020
	tkD22             = -0.752
	tkD33             = -0.231

	tkXuuz    = -0.0061
	tkXuu     = -0.0377
	tkXvv     = 0.3
	tkXudotz  = -0.05
	tkXvrz    = 0.387
	tkXccdd   = -0.093
	tkXccbd   = 0.152
	tkXvvzz   = 0.0125
	tkYccbbdz = -0.191
	tkYT      = 0.04
	tkYvv     = -2.400
	tkYuv     = -1.205
	tkYvdotz  = -0.387
	tkYurz    = 0.182
	tkYvvz    = -1.5
	tkYccd    = 0.208
	tkYccbbd  = -2.16
	tkNccbbdz = 0.344
	tkNT      = -0.02
	tkNvr     = -0.300
	tkNuv     = -0.451
	tkNrdotz  = -0.0045
	tkNurz    = -0.047
	tkNvrz    = -0.120
	tkNuvz    = -0.241
	tkNccd    = -0.098
	tkNccbbd  = 0.688

	tkMaxRPM = 80.0
)

// Tanker is a large crude carrier manoeuvring model with propeller speed
// input and shallow-water corrections. It only accepts open-loop rudder
// input.
type Tanker struct {
	cfg Config
	env Environment

	eta    Eta
	lin    Vec3
	ang    Vec3
	rudder float64
	cmd    ControlCommand
	route  []autopilot.Waypoint

	elapsed float64
	z       float64 // draft / (depth - draft)
	yuvz    float64
}

func newTanker(cfg Config) Model {
	if cfg.Hull.RudderMax <= 0 {
		cfg.Hull.RudderMax = 10
	}
	if cfg.Hull.RudderRateMax <= 0 {
		cfg.Hull.RudderRateMax = 2.33
	}
	return &Tanker{cfg: cfg}
}

func (t *Tanker) Name() string         { return t.cfg.Name }
func (t *Tanker) Type() string         { return TypeTanker }
func (t *Tanker) Mode() autopilot.Mode { return t.cfg.Mode }
func (t *Tanker) Hull() Hull           { return t.cfg.Hull }

func (t *Tanker) Waypoints() []autopilot.Waypoint {
	out := make([]autopilot.Waypoint, len(t.route))
	copy(out, t.route)
	return out
}

func (t *Tanker) Init(start StartState, env Environment) error {
	if env.Depth <= t.cfg.Hull.Draft {
		return fmt.Errorf("%w: depth %.2f m does not exceed draft %.2f m",
			ErrDegenerateVesselGeometry, env.Depth, t.cfg.Hull.Draft)
	}
	t.env = env
	t.eta = start.Eta
	t.lin = start.LinearVelocity
	t.ang = start.AngularVelocity
	t.rudder = 0
	t.cmd = ControlCommand{}
	t.elapsed = 0
	t.route = append([]autopilot.Waypoint(nil), start.Waypoints...)

	t.z = t.cfg.Hull.Draft / (env.Depth - t.cfg.Hull.Draft)
	t.yuvz = 0
	if t.z >= 0.8 {
		t.yuvz = -0.85 * (1 - 0.8/t.z)
	}
	return nil
}

// UpdateWaypoints is a no-op: the tanker has no closed-loop guidance.
func (t *Tanker) UpdateWaypoints() {}

func (t *Tanker) ControlStep(dt float64) (ControlCommand, error) {
	if t.cfg.Mode != autopilot.StepInput {
		return ControlCommand{}, ErrNotSupported
	}
	t.elapsed += dt
	cmd := ControlCommand{Propulsion: t.cfg.Propulsion}
	if t.elapsed >= t.cfg.StepTime {
		cmd.Rudder = autopilot.Deg2Rad(t.cfg.StepRudder)
	}
	t.cmd = cmd
	return cmd, nil
}

func (t *Tanker) Advance(cmd ControlCommand, dt float64) StepReport {
	l := t.cfg.Hull.Length
	z := t.z

	uc := t.env.CurrentSpeed * math.Cos(t.env.CurrentDirection-t.eta.Yaw)
	vc := t.env.CurrentSpeed * math.Sin(t.env.CurrentDirection-t.eta.Yaw)
	u := t.lin[0] - uc
	v := t.lin[1] - vc
	r := t.ang[2]
	n := clamp(cmd.Propulsion, tkMaxRPM) / 60 // rps
	delta := t.rudder

	beta := 0.0
	if math.Abs(u) > 1e-9 {
		beta = v / u
	}

	gT := (1/l)*tkTuu*u*u + tkTun*u*n + l*tkTnn*math.Abs(n)*n
	c := math.Sqrt(math.Max(0, tkCun*u*n+tkCnn*n*n))
	cc := math.Abs(c) * c
	bb := math.Abs(beta) * beta
	ad := math.Abs(delta)

	gX := (1 / l) * (tkXuu*u*u + l*tkD11*v*r + tkXvv*v*v + tkXccdd*cc*delta*delta +
		tkXccbd*cc*beta*delta + l*gT*(1-tkThrustDeduction) + tkXuuz*u*u*z +
		l*tkXvrz*v*r*z + tkXvvzz*v*v*z*z)

	gY := (1 / l) * (tkYuv*u*v + tkYvv*math.Abs(v)*v + tkYccd*cc*delta + l*tkD22*u*r +
		tkYccbbd*cc*bb*ad + tkYT*gT*l + l*tkYurz*u*r*z + t.yuvz*u*v*z +
		tkYvvz*math.Abs(v)*v*z + tkYccbbdz*cc*bb*ad*z)

	gLN := tkNuv*u*v + l*tkNvr*math.Abs(v)*r + tkNccd*cc*delta + l*tkD33*u*r +
		tkNccbbd*cc*bb*ad + l*tkNT*gT + l*tkNurz*u*r*z + tkNuvz*u*v*z +
		l*tkNvrz*math.Abs(v)*r*z + tkNccbbdz*cc*bb*ad*z

	m11 := tkM11 - tkXudotz*z
	m22 := tkM22 - tkYvdotz*z
	m33 := tkM33 - tkNrdotz*z

	limit := autopilot.Deg2Rad(t.cfg.Hull.RudderMax)
	rate := clamp(clamp(cmd.Rudder, limit)-t.rudder, autopilot.Deg2Rad(t.cfg.Hull.RudderRateMax))
	t.rudder = clamp(t.rudder+dt*rate, limit)

	t.lin[0] += dt * gX / m11
	t.lin[1] += dt * gY / m22
	t.ang[2] += dt * gLN / (l * l * m33)
	t.eta = AttitudeEuler(t.eta, t.lin, t.ang, dt)
	return StepReport{}
}

func (t *Tanker) Snapshot(ts float64) StateBundle {
	return StateBundle{
		Time:            ts,
		Eta:             t.eta,
		LinearVelocity:  t.lin,
		AngularVelocity: t.ang,
		RudderAngle:     t.rudder,
		RudderCommand:   t.cmd.Rudder,
	}
}
