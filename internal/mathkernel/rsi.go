package mathkernel

import "math"

// RSI returns the latest Wilder-smoothed relative strength index for
// values over a period of n. It requires len(values) >= n+1; otherwise
// NaN. The average gain/loss is seeded from the first n diffs and then
// Wilder-updated (avg = (avg*(n-1)+current)/n) through the rest of the
// series; only the final RSI value is returned. If avgLoss is ever 0 at
// the final step, RSI is defined as 100 (RS = +Inf).
func RSI(values []float64, n float64) float64 {
	p := period(n)
	if len(values) < p+1 {
		return math.NaN()
	}

	avgGain, avgLoss := 0.0, 0.0

	for i := 1; i <= p; i++ {
		diff := values[i] - values[i-1]
		if diff > 0 {
			avgGain += diff
		} else {
			avgLoss += -diff
		}
	}

	avgGain /= float64(p)
	avgLoss /= float64(p)

	for i := p + 1; i < len(values); i++ {
		diff := values[i] - values[i-1]

		gain, loss := 0.0, 0.0
		if diff > 0 {
			gain = diff
		} else {
			loss = -diff
		}

		avgGain = (avgGain*float64(p-1) + gain) / float64(p)
		avgLoss = (avgLoss*float64(p-1) + loss) / float64(p)
	}

	if avgLoss == 0 {
		return 100
	}

	rs := avgGain / avgLoss

	return 100 - (100 / (1 + rs))
}
