package mathkernel

import "math"

// BollingerResult is the latest {upper, middle, lower} band triple.
type BollingerResult struct {
	Upper  float64
	Middle float64
	Lower  float64
}

// Bollinger returns the latest Bollinger Bands triple over a trailing
// window of length, mult standard deviations wide. The standard
// deviation is the POPULATION standard deviation (divisor = length, not
// length-1) — this differs from the common sample-stdev convention but
// is kept deliberately to match pinned reference outputs. All-NaN if
// len(values) < length.
func Bollinger(values []float64, length, mult float64) BollingerResult {
	p := period(length)
	if len(values) < p {
		return BollingerResult{Upper: math.NaN(), Middle: math.NaN(), Lower: math.NaN()}
	}

	window := values[len(values)-p:]

	mean := 0.0
	for _, v := range window {
		mean += v
	}

	mean /= float64(p)

	variance := 0.0
	for _, v := range window {
		d := v - mean
		variance += d * d
	}

	variance /= float64(p)
	stdev := math.Sqrt(variance)

	return BollingerResult{
		Upper:  mean + mult*stdev,
		Middle: mean,
		Lower:  mean - mult*stdev,
	}
}
