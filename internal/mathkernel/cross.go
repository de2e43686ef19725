package mathkernel

import "math"

// lastTwoFinitePairs scans from the tail of A and B for the last two
// indices where both series are finite, returning (prevA, prevB, currA,
// currB, ok). ok is false when fewer than two such aligned pairs exist.
func lastTwoFinitePairs(a, b []float64) (prevA, prevB, currA, currB float64, ok bool) {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	idx := make([]int, 0, 2)

	for i := n - 1; i >= 0 && len(idx) < 2; i-- {
		if isFinite(a[i]) && isFinite(b[i]) {
			idx = append(idx, i)
		}
	}

	if len(idx) < 2 {
		return 0, 0, 0, 0, false
	}

	// idx[0] is the current (most recent) pair, idx[1] is the previous one.
	curr, prev := idx[0], idx[1]

	return a[prev], b[prev], a[curr], b[curr], true
}

// CrossUp reports whether A crossed above B: using the last two indices
// where both series are finite, true iff A_prev <= B_prev and
// A_curr > B_curr. False when fewer than two such pairs exist.
func CrossUp(a, b []float64) bool {
	prevA, prevB, currA, currB, ok := lastTwoFinitePairs(a, b)
	if !ok {
		return false
	}

	return prevA <= prevB && currA > currB
}

// CrossDown reports whether A crossed below B: using the last two indices
// where both series are finite, true iff A_prev >= B_prev and
// A_curr < B_curr.
func CrossDown(a, b []float64) bool {
	prevA, prevB, currA, currB, ok := lastTwoFinitePairs(a, b)
	if !ok {
		return false
	}

	return prevA >= prevB && currA < currB
}

// LastFinite scans values from the tail and returns the last finite
// value, or NaN if none exists.
func LastFinite(values []float64) float64 {
	return lastFiniteFrom(values)
}

func lastFiniteFrom(values []float64) float64 {
	for i := len(values) - 1; i >= 0; i-- {
		if isFinite(values[i]) {
			return values[i]
		}
	}

	return math.NaN()
}
