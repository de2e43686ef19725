package mathkernel

import "math"

// VWAP returns the cumulative volume-weighted average price over the
// entire supplied window: sum(typicalPrice[i]*volume[i]) / sum(volume[i]).
// Rows with a non-finite typical price or volume are ignored. NaN if
// there are no rows or total volume is 0.
//
// This is cumulative over the whole window handed to it, not
// session-anchored — callers control the anchor by choosing what window
// of cached candles to pass in.
func VWAP(typicalPrices, volumes []float64) float64 {
	n := len(typicalPrices)
	if len(volumes) < n {
		n = len(volumes)
	}

	var priceVolume, totalVolume float64

	for i := 0; i < n; i++ {
		tp, vol := typicalPrices[i], volumes[i]
		if !isFinite(tp) || !isFinite(vol) {
			continue
		}

		priceVolume += tp * vol
		totalVolume += vol
	}

	if totalVolume == 0 {
		return math.NaN()
	}

	return priceVolume / totalVolume
}
