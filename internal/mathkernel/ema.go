package mathkernel

import "math"

// EMA returns the exponential moving average of values over a period of n.
// The seed at index n-1 is the SMA of the first n values; from n onward,
// EMA[i] = (values[i]-EMA[i-1])*k + EMA[i-1] with k = 2/(n+1). Indices
// before the seed are NaN.
//
// Non-finite inputs are skipped: if values[i] is not finite, EMA[i] simply
// carries forward the previous EMA value (or stays NaN if no EMA has been
// seeded yet). This is a single forward pass — once a seed exists it is
// never revisited, so sparse/non-finite runs resume from the last finite
// EMA rather than re-seeding.
func EMA(values []float64, n float64) []float64 {
	p := period(n)
	out := make([]float64, len(values))

	if len(values) < p {
		for i := range out {
			out[i] = math.NaN()
		}

		return out
	}

	for i := 0; i < p-1; i++ {
		out[i] = math.NaN()
	}

	seedSum := 0.0
	for i := 0; i < p; i++ {
		seedSum += values[i]
	}

	out[p-1] = seedSum / float64(p)

	k := 2.0 / (float64(p) + 1.0)
	prev := out[p-1]

	for i := p; i < len(values); i++ {
		if !isFinite(values[i]) {
			out[i] = prev
			continue
		}

		if !isFinite(prev) {
			// No seed to carry forward from yet; stay undefined.
			out[i] = math.NaN()
			continue
		}

		prev = (values[i]-prev)*k + prev
		out[i] = prev
	}

	return out
}
