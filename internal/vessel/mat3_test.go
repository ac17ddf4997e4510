package vessel

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func toDense(m Mat3) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		m[0][0], m[0][1], m[0][2],
		m[1][0], m[1][1], m[1][2],
		m[2][0], m[2][1], m[2][2],
	})
}

func TestMat3_InverseMatchesGonum(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		m    Mat3
	}{
		{"diagonal", Diag(2, 4, 8)},
		{"general", Mat3{{4, 7, 2}, {3, 6, 1}, {2, 5, 3}}},
		{"mass matrix shape", Mat3{{1.38e6, 0, 0}, {0, 2.1e6, -3.3e6}, {0, -3.3e6, 4.67e8}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv, err := tt.m.Inverse()
			require.NoError(t, err)

			var want mat.Dense
			require.NoError(t, want.Inverse(toDense(tt.m)))

			assert.True(t, mat.EqualApprox(toDense(inv), &want, 1e-9*mat.Norm(&want, math.Inf(1))))
			assert.InDelta(t, mat.Det(toDense(tt.m)), tt.m.Det(), 1e-6*math.Abs(tt.m.Det()))
		})
	}
}

func TestMat3_InverseRoundTrip(t *testing.T) {
	t.Parallel()

	m, _ := clarkeMatrices(3, 50, 7, 5, 0.7, 12.5, 0, 50, 1025)
	inv, err := m.Inverse()
	require.NoError(t, err)

	for _, v := range []Vec3{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}, {3.5, -2, 0.01}} {
		got := m.MulVec(inv.MulVec(v))
		assert.True(t, floats.EqualApprox(got[:], v[:], 1e-9), "M*M^-1*v = %v, want %v", got, v)
	}
}

func TestMat3_Singular(t *testing.T) {
	t.Parallel()

	_, err := Mat3{{1, 2, 3}, {2, 4, 6}, {0, 0, 1}}.Inverse()
	assert.ErrorIs(t, err, ErrSingularMatrix)

	_, err = Mat3{}.Inverse()
	assert.ErrorIs(t, err, ErrSingularMatrix)
}

func TestMat3_MulMatchesGonum(t *testing.T) {
	t.Parallel()

	a := Mat3{{1, 2, 3}, {4, 5, 6}, {7, 8, 10}}
	b := Mat3{{-1, 0, 2}, {3, 1, 0}, {0.5, 2, 1}}

	var want mat.Dense
	want.Mul(toDense(a), toDense(b))
	assert.True(t, mat.EqualApprox(toDense(a.Mul(b)), &want, 1e-12))
}

func TestRzyx_IsRotation(t *testing.T) {
	t.Parallel()

	r := Rzyx(0.1, -0.2, 1.3)
	var rtr mat.Dense
	rtr.Mul(toDense(r).T(), toDense(r))

	assert.True(t, mat.EqualApprox(&rtr, toDense(Diag(1, 1, 1)), 1e-12))
	assert.InDelta(t, 1, r.Det(), 1e-12)
}

func TestTzyx_SingularAtVerticalPitch(t *testing.T) {
	t.Parallel()

	_, ok := Tzyx(0, math.Pi/2)
	assert.False(t, ok)
	_, ok = Tzyx(0, -math.Pi/2)
	assert.False(t, ok)
	_, ok = Tzyx(0.3, 0.2)
	assert.True(t, ok)
}

func TestAttitudeEuler(t *testing.T) {
	t.Parallel()

	t.Run("surge along heading", func(t *testing.T) {
		eta := AttitudeEuler(Eta{Yaw: math.Pi / 2}, Vec3{2, 0, 0}, Vec3{}, 0.5)
		assert.InDelta(t, 0, eta.North, 1e-12)
		assert.InDelta(t, 1, eta.East, 1e-12)
	})

	t.Run("yaw rate", func(t *testing.T) {
		eta := AttitudeEuler(Eta{}, Vec3{}, Vec3{0, 0, 0.2}, 0.5)
		assert.InDelta(t, 0.1, eta.Yaw, 1e-12)
	})

	t.Run("vertical pitch holds attitude", func(t *testing.T) {
		start := Eta{Pitch: math.Pi / 2, Yaw: 0.3}
		eta := AttitudeEuler(start, Vec3{1, 0, 0}, Vec3{0, 0, 1}, 1)
		assert.Equal(t, start.Yaw, eta.Yaw)
		assert.Equal(t, start.Pitch, eta.Pitch)
	})
}
