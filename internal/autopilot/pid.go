package autopilot

import "math"

// HeadingGains configures the pole-placement heading controller. Mass,
// Damping and Spring are the yaw-axis inertia, damping and restoring terms of
// the plant.
type HeadingGains struct {
	Mass    float64
	Damping float64
	Spring  float64

	Wn   float64 // closed-loop natural frequency (rad/s)
	Zeta float64 // closed-loop relative damping

	RefWn      float64 // reference filter natural frequency (rad/s)
	RefZeta    float64 // reference filter relative damping
	YawRateMax float64 // reference yaw-rate saturation (rad/s)
}

// HeadingController is a PID with a third-order reference filter that turns a
// heading reference into a yaw moment demand.
//
// Gains are placed so that the yaw loop behaves like a second order system:
//
//	Kp = m*wn^2 - k
//	Kd = 2*m*zeta*wn - d
//	Ki = (wn/10)*Kp
type HeadingController struct {
	gains HeadingGains

	psiD float64 // desired yaw
	rD   float64 // desired yaw rate
	aD   float64 // desired yaw acceleration
	eInt float64 // integral of yaw error
}

// NewHeadingController starts the reference filter at the given yaw so that
// a vessel already on course does not receive a spurious turn command.
func NewHeadingController(g HeadingGains, initialYaw float64) *HeadingController {
	return &HeadingController{gains: g, psiD: initialYaw}
}

// Gains returns the proportional, derivative and integral gains.
func (c *HeadingController) Gains() (kp, kd, ki float64) {
	g := c.gains
	kp = g.Mass*g.Wn*g.Wn - g.Spring
	kd = 2*g.Mass*g.Zeta*g.Wn - g.Damping
	ki = (g.Wn / 10) * kp
	return kp, kd, ki
}

// Desired returns the current output of the reference filter.
func (c *HeadingController) Desired() (psi, r, a float64) {
	return c.psiD, c.rD, c.aD
}

// Step computes the yaw moment for the current yaw and yaw rate, then advances
// the integrator and reference filter by dt towards refYaw (radians).
func (c *HeadingController) Step(yaw, yawRate, refYaw, dt float64) float64 {
	ePsi := Ssa(yaw - c.psiD)
	eR := yawRate - c.rD

	kp, kd, ki := c.Gains()
	tau := -kp*ePsi - kd*eR - ki*c.eInt

	c.eInt += dt * ePsi
	c.refModelStep(refYaw, dt)
	return tau
}

// refModelStep integrates the third-order reference model
//
//	j = wn^3*(r - x) - (2*zeta+1)*wn^2*v - (2*zeta+1)*wn*a
//
// with the velocity state saturated at YawRateMax. The target is taken on the
// short way round so a reference across +/-pi does not cause a full turn.
func (c *HeadingController) refModelStep(ref, dt float64) {
	g := c.gains
	if g.YawRateMax > 0 {
		c.rD = math.Max(-g.YawRateMax, math.Min(g.YawRateMax, c.rD))
	}
	target := c.psiD + Ssa(ref-c.psiD)
	wn := g.RefWn
	k := 2*g.RefZeta + 1
	jerk := wn*wn*wn*(target-c.psiD) - k*wn*wn*c.rD - k*wn*c.aD

	c.psiD += dt * c.rD
	c.rD += dt * c.aD
	c.aD += dt * jerk
}
