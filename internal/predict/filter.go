package predict

import "github.com/banshee-data/vessel.report/internal/vessel"

// filterHistory keeps the samples no older than window seconds before the
// newest one. When minTime is positive, consecutive samples less than
// minTime apart are merged into their average. Samples sharing a timestamp
// are always merged so the output times are strictly increasing.
func filterHistory(history []Sample, window, minTime float64) []Sample {
	if len(history) == 0 {
		return nil
	}
	last := history[len(history)-1].Time
	cutoff := last - window

	start := len(history) - 1
	for start > 0 && history[start-1].Time >= cutoff {
		start--
	}
	recent := history[start:]

	out := make([]Sample, 0, len(recent))
	var (
		sum     vessel.Position
		sumT    float64
		count   int
		groupT0 float64
	)
	flush := func() {
		if count == 0 {
			return
		}
		out = append(out, Sample{Time: sumT / float64(count), Position: sum.Scale(1 / float64(count))})
		sum, sumT, count = vessel.Position{}, 0, 0
	}
	for _, s := range recent {
		if count > 0 && s.Time-groupT0 >= minTime && s.Time != groupT0 {
			flush()
		}
		if count == 0 {
			groupT0 = s.Time
		}
		sum = sum.Add(s.Position)
		sumT += s.Time
		count++
	}
	flush()
	return out
}
