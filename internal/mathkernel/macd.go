package mathkernel

import "math"

// MACDResult is the latest {macd, signal, histogram} triple.
type MACDResult struct {
	MACD      float64
	Signal    float64
	Histogram float64
}

// MACD returns the latest MACD triple for values: macdLine[i] =
// EMA(values,fast)[i] - EMA(values,slow)[i], signalLine = EMA(macdLine,
// signal), histogram = latest macd - latest signal. All fields are NaN
// when len(values) < max(fast,slow)+signal.
//
// macd and signal are each the last-finite value of their own series
// independently — if the signal line lags the macd line (e.g. the macd
// line has a more recent finite value than the signal line), the two
// returned scalars can legitimately come from different source indices.
// This mirrors the reference semantics and is treated as defined
// behavior, not a bug.
func MACD(values []float64, fast, slow, signalPeriod float64) MACDResult {
	macdLine, signalLine := MACDSeries(values, fast, slow, signalPeriod)

	macd := lastFiniteFrom(macdLine)
	signal := lastFiniteFrom(signalLine)

	return MACDResult{
		MACD:      macd,
		Signal:    signal,
		Histogram: macd - signal,
	}
}

// MACDSeries returns the full macd and signal lines, aligned index-for-
// index with values, for callers that need crossover detection rather than
// just the latest scalar triple. Both are all-NaN when
// len(values) < max(fast,slow)+signal.
func MACDSeries(values []float64, fast, slow, signalPeriod float64) (macdLine, signalLine []float64) {
	if len(values) < period(fast)+period(signalPeriod) || len(values) < period(slow)+period(signalPeriod) {
		nans := make([]float64, len(values))
		for i := range nans {
			nans[i] = math.NaN()
		}

		return nans, nans
	}

	fastEMA := EMA(values, fast)
	slowEMA := EMA(values, slow)

	macdLine = make([]float64, len(values))
	for i := range values {
		macdLine[i] = fastEMA[i] - slowEMA[i]
	}

	// EMA seeds once and never re-seeds, so the leading run where either
	// fastEMA or slowEMA is still undefined has to be trimmed before it's
	// handed to EMA again for the signal line — otherwise the signal NaN
	// seed would never recover.
	start := 0
	for start < len(macdLine) && !isFinite(macdLine[start]) {
		start++
	}

	trimmedSignal := EMA(macdLine[start:], signalPeriod)

	signalLine = make([]float64, len(values))
	for i := range signalLine[:start] {
		signalLine[i] = math.NaN()
	}

	copy(signalLine[start:], trimmedSignal)

	return macdLine, signalLine
}
