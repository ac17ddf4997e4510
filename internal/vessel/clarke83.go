package vessel

import (
	"math"

	"github.com/banshee-data/vessel.report/internal/autopilot"
)

// Rudder and hull interaction constants for the Clarke83 model.
const (
	clarkeDesignSpeed    = 3.0 // U0 (m/s) used for controller design
	clarkeRudderAspect   = 0.7 // lambda
	clarkeHullInteract   = 0.4 // a_H
	clarkeThrustFraction = 0.9 // share of propulsion delivered as surge force
)

// Clarke83 is a 3-DOF manoeuvring model for a rudder-controlled ship whose
// hydrodynamic derivatives come from the Clarke (1983) regressions on the
// principal dimensions.
type Clarke83 struct {
	cfg Config
	env Environment

	eta    Eta
	lin    Vec3
	ang    Vec3
	rudder float64
	cmd    ControlCommand

	los        *autopilot.LOS
	heading    *autopilot.HeadingController
	headingRef float64 // rad
	elapsed    float64

	r66      float64
	rudArea  float64
	rudLift  float64
	tR       float64
	xR, xH   float64
	ndDesign float64
}

func newClarke83(cfg Config) Model {
	if cfg.Hull.RudderMax <= 0 {
		cfg.Hull.RudderMax = 30
	}
	if cfg.Hull.RudderRateMax <= 0 {
		cfg.Hull.RudderRateMax = 5
	}
	if cfg.Hull.RudderTimeConstant <= 0 {
		cfg.Hull.RudderTimeConstant = 1
	}
	if cfg.Hull.BlockCoefficient <= 0 {
		cfg.Hull.BlockCoefficient = 0.7
	}
	return &Clarke83{cfg: cfg}
}

func (c *Clarke83) Name() string         { return c.cfg.Name }
func (c *Clarke83) Type() string         { return TypeClarke83 }
func (c *Clarke83) Mode() autopilot.Mode { return c.cfg.Mode }
func (c *Clarke83) Hull() Hull           { return c.cfg.Hull }

func (c *Clarke83) Waypoints() []autopilot.Waypoint {
	if c.los == nil {
		return nil
	}
	return c.los.Waypoints()
}

func (c *Clarke83) Init(start StartState, env Environment) error {
	h := c.cfg.Hull
	if c.cfg.Mode == autopilot.LOSPathFollowing && len(start.Waypoints) == 0 {
		return ErrMissingWaypoints
	}

	c.env = env
	c.eta = start.Eta
	c.lin = start.LinearVelocity
	c.ang = start.AngularVelocity
	c.rudder = 0
	c.cmd = ControlCommand{}
	c.elapsed = 0

	if h.Length > 100 {
		c.r66 = 0.27 * h.Length
	} else {
		c.r66 = 0.25 * h.Length
	}

	rudHeight := 0.7 * h.Draft
	c.rudArea = rudHeight * rudHeight / clarkeRudderAspect
	c.rudLift = 6.13 * clarkeRudderAspect / (clarkeRudderAspect + 2.25)
	c.tR = 1 - 0.28*h.BlockCoefficient - 0.55
	c.xR = -0.45 * h.Length
	c.xH = -1 * h.Length
	c.ndDesign = c.yawMomentCoefficient(clarkeDesignSpeed)

	m, n := c.systemMatrices(clarkeDesignSpeed)
	c.heading = autopilot.NewHeadingController(autopilot.HeadingGains{
		Mass:       m[2][2],
		Damping:    n[2][2],
		Wn:         0.1,
		Zeta:       1,
		RefWn:      0.1,
		RefZeta:    1,
		YawRateMax: autopilot.Deg2Rad(1),
	}, start.Eta.Yaw)

	c.headingRef = start.Eta.Yaw
	if c.cfg.HeadingReference != nil {
		c.headingRef = autopilot.Deg2Rad(*c.cfg.HeadingReference)
	}
	c.los = autopilot.NewLOS(start.Waypoints, h.Length, c.cfg.AcceptanceFactor)
	return nil
}

func (c *Clarke83) UpdateWaypoints() {
	if c.cfg.Mode != autopilot.HeadingAutopilot && c.cfg.Mode != autopilot.LOSPathFollowing {
		return
	}
	if heading, _, ok := c.los.Guide(c.eta.North, c.eta.East); ok {
		c.headingRef = autopilot.Deg2Rad(heading)
	}
}

func (c *Clarke83) ControlStep(dt float64) (ControlCommand, error) {
	cmd := ControlCommand{Propulsion: c.cfg.Propulsion}

	switch c.cfg.Mode {
	case autopilot.StepInput:
		c.elapsed += dt
		if c.elapsed >= c.cfg.StepTime {
			cmd.Rudder = autopilot.Deg2Rad(c.cfg.StepRudder)
		}
	case autopilot.HeadingAutopilot, autopilot.LOSPathFollowing:
		if c.ndDesign == 0 || math.IsNaN(c.ndDesign) {
			c.cmd = cmd
			return cmd, ErrDegenerateVesselGeometry
		}
		tau := c.heading.Step(c.eta.Yaw, c.ang[2], c.headingRef, dt)
		cmd.Rudder = tau / c.ndDesign
	default:
		return cmd, ErrNotSupported
	}
	c.cmd = cmd
	return cmd, nil
}

func (c *Clarke83) Advance(cmd ControlCommand, dt float64) StepReport {
	var report StepReport
	h := c.cfg.Hull
	rho := c.env.Rho

	uc := c.env.CurrentSpeed * math.Cos(c.env.CurrentDirection-c.eta.Yaw)
	vc := c.env.CurrentSpeed * math.Sin(c.env.CurrentDirection-c.eta.Yaw)
	nuR := Vec3{c.lin[0] - uc, c.lin[1] - vc, c.ang[2]}
	speed := math.Hypot(nuR[0], nuR[1])

	q := rho * speed * speed * c.rudArea * c.rudLift
	xdd := -0.5 * (1 - c.tR) * q
	yd := -0.25 * (1 + clarkeHullInteract) * q
	nd := c.yawMomentCoefficient(speed)

	deltaR := -c.rudder
	sinD := math.Sin(deltaR)
	tau := Vec3{
		clarkeThrustFraction*cmd.Propulsion - xdd*sinD*sinD,
		-yd * math.Sin(2*deltaR),
		-nd * math.Sin(2*deltaR),
	}

	m, n := c.systemMatrices(speed)
	var nuDot Vec3
	if mInv, err := m.Inverse(); err == nil {
		nuDot = mInv.MulVec(tau.Sub(n.MulVec(nuR)))
	} else {
		report.SingularMass = true
	}

	limit := autopilot.Deg2Rad(h.RudderMax)
	rate := (clamp(cmd.Rudder, limit) - c.rudder) / h.RudderTimeConstant
	rate = clamp(rate, autopilot.Deg2Rad(h.RudderRateMax))
	c.rudder = clamp(c.rudder+dt*rate, limit)

	c.lin[0] += dt * nuDot[0]
	c.lin[1] += dt * nuDot[1]
	c.ang[2] += dt * nuDot[2]
	c.eta = AttitudeEuler(c.eta, c.lin, c.ang, dt)
	return report
}

func (c *Clarke83) Snapshot(t float64) StateBundle {
	return StateBundle{
		Time:            t,
		Eta:             c.eta,
		LinearVelocity:  c.lin,
		AngularVelocity: c.ang,
		RudderAngle:     c.rudder,
		RudderCommand:   c.cmd.Rudder,
	}
}

// yawMomentCoefficient is the rudder yaw moment per unit sin(2*delta) at
// speed u.
func (c *Clarke83) yawMomentCoefficient(u float64) float64 {
	return -0.25 * (c.xR + clarkeHullInteract*c.xH) * c.env.Rho * u * u * c.rudArea * c.rudLift
}

// systemMatrices returns the mass matrix M = MRB + MA and the linear damping
// matrix N at speed u. The centre of gravity is taken at midships and the
// surge time constant equals the hull length.
func (c *Clarke83) systemMatrices(u float64) (Mat3, Mat3) {
	return clarkeMatrices(u, c.cfg.Hull.Length, c.cfg.Hull.Beam, c.cfg.Hull.Draft,
		c.cfg.Hull.BlockCoefficient, c.r66, 0, c.cfg.Hull.Length, c.env.Rho)
}

// clarkeMatrices evaluates the Clarke (1983) hydrodynamic derivatives and
// returns dimensional mass and damping matrices.
func clarkeMatrices(u, l, b, t, cb, r66, xg, tSurge, rho float64) (Mat3, Mat3) {
	vol := cb * l * b * t
	m := rho * vol
	iz := m*r66*r66 + m*xg*xg

	mrb := Mat3{
		{m, 0, 0},
		{0, m, m * xg},
		{0, m * xg, iz},
	}

	u += 0.001 // keeps the damping finite at rest
	xudot := -0.1 * m
	xu := -((m - xudot) / tSurge) / (0.5 * rho * l * l * u)
	xudot /= 0.5 * rho * l * l * l

	s := math.Pi * (t / l) * (t / l)
	bl, bt, tl := b/l, b/t, t/l

	yvdot := -s * (1 + 0.16*cb*bt - 5.1*bl*bl)
	yrdot := -s * (0.67*bl - 0.0033*bt*bt)
	nvdot := -s * (1.1*bl - 0.041*bt)
	nrdot := -s * (1.0/12 + 0.017*cb*bt - 0.33*bl)
	yv := -s * (1 + 0.4*cb*bt)
	yr := -s * (-0.5 + 2.2*bl - 0.08*bt)
	nv := -s * (0.5 + 2.4*tl)
	nr := -s * (0.25 + 0.039*bt - 0.56*bl)

	maPrime := Mat3{
		{-xudot, 0, 0},
		{0, -yvdot, -yrdot},
		{0, -nvdot, -nrdot},
	}
	nPrime := Mat3{
		{-xu, 0, 0},
		{0, -yv, -yr},
		{0, -nv, -nr},
	}

	dim := Diag(1, 1, 1/l)
	dimInv := Diag(1, 1, l)

	ma := dimInv.Scale(0.5 * rho * l * l * l).Mul(dimInv).Mul(dim.Mul(maPrime.Mul(dimInv)))
	damp := dimInv.Scale(0.5 * rho * l * l * u).Mul(dimInv).Mul(dim.Mul(nPrime.Mul(dimInv)))

	return mrb.Add(ma), damp
}
