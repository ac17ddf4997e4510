package vessel

import "math"

// Rzyx is the body-to-NED rotation for zyx Euler angles.
func Rzyx(phi, theta, psi float64) Mat3 {
	cphi, sphi := math.Cos(phi), math.Sin(phi)
	cth, sth := math.Cos(theta), math.Sin(theta)
	cpsi, spsi := math.Cos(psi), math.Sin(psi)

	return Mat3{
		{cpsi * cth, -spsi*cphi + cpsi*sth*sphi, spsi*sphi + cpsi*cphi*sth},
		{spsi * cth, cpsi*cphi + sphi*sth*spsi, -cpsi*sphi + sth*spsi*cphi},
		{-sth, cth * sphi, cth * cphi},
	}
}

// Tzyx maps body angular rates to Euler angle rates. ok is false at
// theta = +/-90 degrees where the transform is undefined.
func Tzyx(phi, theta float64) (Mat3, bool) {
	cth := math.Cos(theta)
	if math.Abs(cth) < 1e-12 {
		return Mat3{}, false
	}
	cphi, sphi := math.Cos(phi), math.Sin(phi)
	sth := math.Sin(theta)

	return Mat3{
		{1, sphi * sth / cth, cphi * sth / cth},
		{0, cphi, -sphi},
		{0, sphi / cth, cphi / cth},
	}, true
}

// AttitudeEuler advances the pose by one explicit Euler step. When the
// attitude transform is singular the orientation is held and only the
// position is integrated.
func AttitudeEuler(eta Eta, linear, angular Vec3, dt float64) Eta {
	pDot := Rzyx(eta.Roll, eta.Pitch, eta.Yaw).MulVec(linear)

	eta.North += dt * pDot[0]
	eta.East += dt * pDot[1]
	eta.Down += dt * pDot[2]

	if t, ok := Tzyx(eta.Roll, eta.Pitch); ok {
		vDot := t.MulVec(angular)
		eta.Roll += dt * vDot[0]
		eta.Pitch += dt * vDot[1]
		eta.Yaw += dt * vDot[2]
	}
	return eta
}
