package radar

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/vessel.report/internal/monitoring"
	"github.com/banshee-data/vessel.report/internal/vessel"
)

type recorded struct {
	name string
	pos  vessel.Position
	t    float64
}

type fakeRecorder struct{ got []recorded }

func (f *fakeRecorder) Record(name string, pos vessel.Position, t float64) {
	f.got = append(f.got, recorded{name, pos, t})
}

type constNoise float64

func (c constNoise) Float64() float64 { return float64(c) }

func targets() []Target {
	return []Target{
		{Name: "own", Position: vessel.Position{}},
		{Name: "near", Position: vessel.Position{North: 300, East: 400}},
		{Name: "far", Position: vessel.Position{North: 20000}},
	}
}

func TestScan_SkipsOwnerAndOutOfRange(t *testing.T) {
	t.Parallel()

	rec := &fakeRecorder{}
	r := New("own", Config{Range: 10000}, nil, rec)

	obs := r.Scan(vessel.Position{}, targets(), 4)
	require.Len(t, obs, 1)
	assert.Equal(t, "near", obs[0].Name)
	assert.Equal(t, vessel.Position{North: 300, East: 400}, obs[0].Position)
	assert.InDelta(t, 500, obs[0].Range, 1e-9)
	assert.Equal(t, []recorded{{"near", vessel.Position{North: 300, East: 400}, 4}}, rec.got)
}

func TestScan_UnlimitedRange(t *testing.T) {
	t.Parallel()

	r := New("own", Config{}, nil, nil)
	obs := r.Scan(vessel.Position{}, targets(), 0)
	assert.Len(t, obs, 2)
}

func TestScan_NoiseMagnitudeScalesWithRange(t *testing.T) {
	t.Parallel()

	r := New("own", Config{NoisePercent: 0.01}, rand.New(rand.NewSource(42)), nil)
	for i := 0; i < 50; i++ {
		obs := r.Scan(vessel.Position{}, targets(), float64(i))
		require.Len(t, obs, 2)
		for _, o := range obs {
			truth := vessel.Position{North: 300, East: 400}
			if o.Name == "far" {
				truth = vessel.Position{North: 20000}
			}
			err := o.Position.Sub(truth)
			assert.InDelta(t, o.Range*0.01*0.1, err.Norm(), 1e-9)
			assert.Zero(t, err.Down)
		}
	}
}

func TestScan_SeededNoiseIsDeterministic(t *testing.T) {
	t.Parallel()

	a := New("own", Config{NoisePercent: 0.05}, rand.New(rand.NewSource(7)), nil)
	b := New("own", Config{NoisePercent: 0.05}, rand.New(rand.NewSource(7)), nil)
	for i := 0; i < 10; i++ {
		assert.Equal(t, a.Scan(vessel.Position{}, targets(), 1), b.Scan(vessel.Position{}, targets(), 1))
	}
}

func TestScan_DegenerateNoiseSource(t *testing.T) {
	monitoring.SetLogger(nil)

	// 0.5 maps to a zero direction on every draw.
	r := New("own", Config{NoisePercent: 0.5}, constNoise(0.5), nil)
	obs := r.Scan(vessel.Position{}, targets()[:2], 0)
	require.Len(t, obs, 1)
	assert.Equal(t, vessel.Position{North: 300, East: 400}, obs[0].Position)
	assert.False(t, math.IsNaN(obs[0].Position.North))
}
