package predict

import "github.com/banshee-data/vessel.report/internal/vessel"

// bezierMidpoint evaluates the cubic Bezier curve through four control
// points at t = 0.5.
func bezierMidpoint(p0, p1, p2, p3 vessel.Position) vessel.Position {
	return p0.Add(p1.Scale(3)).Add(p2.Scale(3)).Add(p3).Scale(1.0 / 8)
}

// catmullRom evaluates the uniform Catmull-Rom segment between p1 and p2.
func catmullRom(p0, p1, p2, p3 vessel.Position, t float64) vessel.Position {
	t2 := t * t
	t3 := t2 * t
	a := p2.Sub(p0).Scale(0.5 * t)
	b := p0.Scale(2).Sub(p1.Scale(5)).Add(p2.Scale(4)).Sub(p3).Scale(0.5 * t2)
	c := p0.Scale(-1).Add(p1.Scale(3)).Sub(p2.Scale(3)).Add(p3).Scale(0.5 * t3)
	return p1.Add(a).Add(b).Add(c)
}

// bezierSmooth replaces each window of four samples with its Bezier
// midpoint stamped at the window's mid time. n samples become n-3.
func bezierSmooth(in []Sample) []Sample {
	if len(in) < 4 {
		return nil
	}
	out := make([]Sample, 0, len(in)-3)
	for i := 0; i+3 < len(in); i++ {
		out = append(out, Sample{
			Time:     (in[i].Time + in[i+3].Time) / 2,
			Position: bezierMidpoint(in[i].Position, in[i+1].Position, in[i+2].Position, in[i+3].Position),
		})
	}
	return out
}

// catmullRomRefine walks windows of four samples, keeping each window's
// second point and inserting the curve midpoint between its second and
// third. The second-to-last input closes the sequence.
func catmullRomRefine(in []Sample) []Sample {
	if len(in) < 4 {
		return nil
	}
	out := make([]Sample, 0, 2*(len(in)-3)+1)
	for i := 0; i+3 < len(in); i++ {
		out = append(out, in[i+1], Sample{
			Time:     (in[i+1].Time + in[i+2].Time) / 2,
			Position: catmullRom(in[i].Position, in[i+1].Position, in[i+2].Position, in[i+3].Position, 0.5),
		})
	}
	return append(out, in[len(in)-2])
}
