package mathkernel

import "math"

// ATR returns the latest Wilder-smoothed average true range over a period
// of n, given parallel highs/lows/closes slices. Requires
// len(highs) >= n+1; otherwise NaN. True range at index i>=1 is
// max(high-low, |high-prevClose|, |low-prevClose|); the seed is the mean
// of the first n true ranges, then Wilder-updated through the rest.
func ATR(highs, lows, closes []float64, n float64) float64 {
	p := period(n)
	if len(highs) < p+1 || len(lows) < p+1 || len(closes) < p+1 {
		return math.NaN()
	}

	trueRange := func(i int) float64 {
		hl := highs[i] - lows[i]
		hc := math.Abs(highs[i] - closes[i-1])
		lc := math.Abs(lows[i] - closes[i-1])

		return math.Max(hl, math.Max(hc, lc))
	}

	sum := 0.0
	for i := 1; i <= p; i++ {
		sum += trueRange(i)
	}

	atr := sum / float64(p)

	for i := p + 1; i < len(highs); i++ {
		atr = (atr*float64(p-1) + trueRange(i)) / float64(p)
	}

	return atr
}
