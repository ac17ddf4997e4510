package vessel

import "math"

// Vec3 is a 3-vector in whichever frame the caller is working in.
type Vec3 [3]float64

// Mat3 is a row-major 3x3 matrix.
type Mat3 [3][3]float64

func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v[0] + o[0], v[1] + o[1], v[2] + o[2]} }
func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v[0] - o[0], v[1] - o[1], v[2] - o[2]} }
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{v[0] * s, v[1] * s, v[2] * s}
}

// Norm is the Euclidean length.
func (v Vec3) Norm() float64 { return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2]) }

// Diag builds a diagonal matrix.
func Diag(a, b, c float64) Mat3 {
	return Mat3{{a, 0, 0}, {0, b, 0}, {0, 0, c}}
}

func (m Mat3) Add(o Mat3) Mat3 {
	var r Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			r[i][j] = m[i][j] + o[i][j]
		}
	}
	return r
}

func (m Mat3) Scale(s float64) Mat3 {
	var r Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			r[i][j] = m[i][j] * s
		}
	}
	return r
}

func (m Mat3) Mul(o Mat3) Mat3 {
	var r Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			r[i][j] = m[i][0]*o[0][j] + m[i][1]*o[1][j] + m[i][2]*o[2][j]
		}
	}
	return r
}

func (m Mat3) MulVec(v Vec3) Vec3 {
	return Vec3{
		m[0][0]*v[0] + m[0][1]*v[1] + m[0][2]*v[2],
		m[1][0]*v[0] + m[1][1]*v[1] + m[1][2]*v[2],
		m[2][0]*v[0] + m[2][1]*v[1] + m[2][2]*v[2],
	}
}

func (m Mat3) Det() float64 {
	return m[0][0]*(m[1][1]*m[2][2]-m[1][2]*m[2][1]) -
		m[0][1]*(m[1][0]*m[2][2]-m[1][2]*m[2][0]) +
		m[0][2]*(m[1][0]*m[2][1]-m[1][1]*m[2][0])
}

// Adjugate is the transpose of the cofactor matrix.
func (m Mat3) Adjugate() Mat3 {
	return Mat3{
		{
			m[1][1]*m[2][2] - m[1][2]*m[2][1],
			-(m[0][1]*m[2][2] - m[0][2]*m[2][1]),
			m[0][1]*m[1][2] - m[0][2]*m[1][1],
		},
		{
			-(m[1][0]*m[2][2] - m[1][2]*m[2][0]),
			m[0][0]*m[2][2] - m[0][2]*m[2][0],
			-(m[0][0]*m[1][2] - m[0][2]*m[1][0]),
		},
		{
			m[1][0]*m[2][1] - m[1][1]*m[2][0],
			-(m[0][0]*m[2][1] - m[0][1]*m[2][0]),
			m[0][0]*m[1][1] - m[0][1]*m[1][0],
		},
	}
}

// Inverse returns ErrSingularMatrix when the determinant is zero or not
// finite.
func (m Mat3) Inverse() (Mat3, error) {
	det := m.Det()
	if det == 0 || math.IsNaN(det) || math.IsInf(det, 0) {
		return Mat3{}, ErrSingularMatrix
	}
	return m.Adjugate().Scale(1 / det), nil
}
