package coretypes

// Series is a contiguous, ascending-by-open-time bundle of parallel OHLCV
// arrays for one SeriesKey. All arrays share the same length.
type Series struct {
	Key        SeriesKey
	OpenTimes  []int64
	Opens      []float64
	Highs      []float64
	Lows       []float64
	Closes     []float64
	Volumes    []float64
	CloseTimes []int64
}

// Len returns the number of candles in the series.
func (s Series) Len() int {
	return len(s.OpenTimes)
}

// NewSeries builds a Series from an ascending-by-open-time candle slice,
// all expected to share the same SeriesKey.
func NewSeries(key SeriesKey, candles []Candle) Series {
	s := Series{
		Key:        key,
		OpenTimes:  make([]int64, len(candles)),
		Opens:      make([]float64, len(candles)),
		Highs:      make([]float64, len(candles)),
		Lows:       make([]float64, len(candles)),
		Closes:     make([]float64, len(candles)),
		Volumes:    make([]float64, len(candles)),
		CloseTimes: make([]int64, len(candles)),
	}

	for i, c := range candles {
		s.OpenTimes[i] = c.OpenTime
		s.Opens[i] = c.Open
		s.Highs[i] = c.High
		s.Lows[i] = c.Low
		s.Closes[i] = c.Close
		s.Volumes[i] = c.Volume
		s.CloseTimes[i] = c.CloseTime
	}

	return s
}
