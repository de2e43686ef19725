package series

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/kline-runner/runner/internal/coretypes"
)

type fakeSource struct {
	candles map[string][]coretypes.Candle
	err     error
}

func (f *fakeSource) GetRecent(ctx context.Context, key coretypes.SeriesKey, limit int) ([]coretypes.Candle, error) {
	if f.err != nil {
		return nil, f.err
	}

	all := f.candles[key.Symbol]
	if len(all) > limit {
		all = all[len(all)-limit:]
	}

	return all, nil
}

func candleAt(symbol string, openTime int64, close float64) coretypes.Candle {
	return coretypes.Candle{
		Exchange:  "binance",
		Symbol:    symbol,
		Interval:  coretypes.Interval1m,
		OpenTime:  openTime,
		Open:      close,
		High:      close + 1,
		Low:       close - 1,
		Close:     close,
		Volume:    10,
		CloseTime: openTime + coretypes.Interval1m.Milliseconds(),
	}
}

type CacheTestSuite struct {
	suite.Suite
}

func TestCacheSuite(t *testing.T) {
	suite.Run(t, new(CacheTestSuite))
}

func (s *CacheTestSuite) key() coretypes.SeriesKey {
	return coretypes.SeriesKey{Exchange: "binance", Symbol: "BTCUSDT", Interval: coretypes.Interval1m}
}

func (s *CacheTestSuite) TestNewFloorsCacheCap() {
	c := New(&fakeSource{}, 10)
	assert.Equal(s.T(), minCacheCap, c.CacheCap())
}

func (s *CacheTestSuite) TestGetSeriesMissingKey() {
	c := New(&fakeSource{}, 100)
	_, ok := c.GetSeries(s.key())
	assert.False(s.T(), ok)
}

func (s *CacheTestSuite) TestPreloadReplacesAtomicallyAndOrdersAscending() {
	src := &fakeSource{candles: map[string][]coretypes.Candle{
		"BTCUSDT": {candleAt("BTCUSDT", 1000, 10), candleAt("BTCUSDT", 2000, 11), candleAt("BTCUSDT", 3000, 12)},
	}}

	c := New(src, 100)

	got, err := c.Preload(context.Background(), s.key(), 0)
	require.NoError(s.T(), err)
	require.Equal(s.T(), 3, got.Len())

	for i := 1; i < len(got.OpenTimes); i++ {
		assert.Greater(s.T(), got.OpenTimes[i], got.OpenTimes[i-1])
	}

	cached, ok := c.GetSeries(s.key())
	require.True(s.T(), ok)
	assert.Equal(s.T(), []float64{10, 11, 12}, cached.Closes)
}

func (s *CacheTestSuite) TestPreloadRespectsMaxCandles() {
	src := &fakeSource{candles: map[string][]coretypes.Candle{
		"BTCUSDT": {candleAt("BTCUSDT", 1000, 10), candleAt("BTCUSDT", 2000, 11), candleAt("BTCUSDT", 3000, 12)},
	}}

	c := New(src, 100)

	got, err := c.Preload(context.Background(), s.key(), 2)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), 2, got.Len())
}

func (s *CacheTestSuite) TestFailedPreloadLeavesExistingEntryUntouched() {
	src := &fakeSource{candles: map[string][]coretypes.Candle{
		"BTCUSDT": {candleAt("BTCUSDT", 1000, 10)},
	}}

	c := New(src, 100)

	_, err := c.Preload(context.Background(), s.key(), 0)
	require.NoError(s.T(), err)

	src.err = assertError{"transport failure"}

	_, err = c.Preload(context.Background(), s.key(), 0)
	require.Error(s.T(), err)

	cached, ok := c.GetSeries(s.key())
	require.True(s.T(), ok)
	assert.Equal(s.T(), 1, cached.Len())
}

func (s *CacheTestSuite) TestGetClosesEmptyWhenUncached() {
	c := New(&fakeSource{}, 100)
	assert.Empty(s.T(), c.GetCloses(s.key()))
}

func (s *CacheTestSuite) TestClearWipesAllEntries() {
	src := &fakeSource{candles: map[string][]coretypes.Candle{
		"BTCUSDT": {candleAt("BTCUSDT", 1000, 10)},
	}}

	c := New(src, 100)
	_, err := c.Preload(context.Background(), s.key(), 0)
	require.NoError(s.T(), err)

	c.Clear()

	_, ok := c.GetSeries(s.key())
	assert.False(s.T(), ok)
}

type assertError struct{ msg string }

func (e assertError) Error() string { return e.msg }
