package broker

import (
	"math"

	"github.com/kline-runner/runner/internal/coretypes"
	"github.com/kline-runner/runner/internal/series"
)

// SeriesCacheMarkPrice adapts the series cache into a MarkPriceSource at
// one fixed timeframe, the broker's default.
type SeriesCacheMarkPrice struct {
	cache     *series.Cache
	timeframe coretypes.Interval
}

// NewSeriesCacheMarkPrice builds a MarkPriceSource backed by cache, priced
// off closes at timeframe.
func NewSeriesCacheMarkPrice(cache *series.Cache, timeframe coretypes.Interval) *SeriesCacheMarkPrice {
	return &SeriesCacheMarkPrice{cache: cache, timeframe: timeframe}
}

// LastClose returns the most recent cached close for (exchange, symbol), or
// NaN if nothing is cached yet.
func (m *SeriesCacheMarkPrice) LastClose(exchange, symbol string) float64 {
	closes := m.cache.GetCloses(coretypes.SeriesKey{Exchange: exchange, Symbol: symbol, Interval: m.timeframe})
	if len(closes) == 0 {
		return math.NaN()
	}

	return closes[len(closes)-1]
}

var _ MarkPriceSource = (*SeriesCacheMarkPrice)(nil)
