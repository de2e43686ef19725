// Package series implements the in-memory OHLCV cache that sits between
// the kline manager's durable writes and every reader that needs recent
// candles fast: the indicator engine and the paper broker's mark-price
// lookup. It never performs I/O itself except through CandleSource during
// Preload.
package series

import (
	"context"
	"fmt"
	"sync"

	"github.com/kline-runner/runner/internal/coretypes"
)

const minCacheCap = 50

// CandleSource is the narrow read dependency the cache needs from the
// durable kline store: the most recent candles for one series, oldest
// first.
type CandleSource interface {
	GetRecent(ctx context.Context, key coretypes.SeriesKey, limit int) ([]coretypes.Candle, error)
}

// Cache is a keyed collection of Series. Each key's Series is replaced
// wholesale on Preload — readers either see the old slice or the new one,
// never a torn array, because a read only ever dereferences one pointer
// read under the lock.
type Cache struct {
	cacheCap int
	source   CandleSource

	mu   sync.RWMutex
	data map[string]*coretypes.Series
}

// New creates a Cache backed by source, reading up to cacheCap candles per
// series on Preload. cacheCap is floored at minCacheCap.
func New(source CandleSource, cacheCap int) *Cache {
	if cacheCap < minCacheCap {
		cacheCap = minCacheCap
	}

	return &Cache{
		cacheCap: cacheCap,
		source:   source,
		data:     make(map[string]*coretypes.Series),
	}
}

func cacheKey(key coretypes.SeriesKey) string {
	return fmt.Sprintf("%s|%s|%s", key.Exchange, key.Symbol, key.Interval)
}

// GetSeries is a constant-time, non-blocking read of the currently cached
// series for key. The second return is false if nothing has been preloaded
// for this key yet.
func (c *Cache) GetSeries(key coretypes.SeriesKey) (coretypes.Series, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s, ok := c.data[cacheKey(key)]
	if !ok {
		return coretypes.Series{}, false
	}

	return *s, true
}

// GetCloses returns the cached close prices for key, or an empty slice if
// nothing is cached.
func (c *Cache) GetCloses(key coretypes.SeriesKey) []float64 {
	s, ok := c.GetSeries(key)
	if !ok {
		return nil
	}

	return s.Closes
}

// Preload fetches the most recent min(cacheCap, maxCandles) candles for key
// from the source, oldest first, and atomically replaces any existing
// entry. maxCandles <= 0 means "use cacheCap". A failed fetch leaves any
// existing entry untouched and returns the error.
func (c *Cache) Preload(ctx context.Context, key coretypes.SeriesKey, maxCandles int) (coretypes.Series, error) {
	limit := c.cacheCap
	if maxCandles > 0 && maxCandles < limit {
		limit = maxCandles
	}

	candles, err := c.source.GetRecent(ctx, key, limit)
	if err != nil {
		return coretypes.Series{}, err
	}

	s := coretypes.NewSeries(key, candles)

	c.mu.Lock()
	c.data[cacheKey(key)] = &s
	c.mu.Unlock()

	return s, nil
}

// Clear wipes every cached entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data = make(map[string]*coretypes.Series)
}

// CacheCap returns the effective per-series cache capacity.
func (c *Cache) CacheCap() int {
	return c.cacheCap
}
