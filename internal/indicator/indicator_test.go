package indicator

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/kline-runner/runner/internal/coretypes"
	"github.com/kline-runner/runner/internal/logger"
	"github.com/kline-runner/runner/internal/series"
)

type fakeSource struct {
	candles []coretypes.Candle
}

func (f *fakeSource) GetRecent(ctx context.Context, key coretypes.SeriesKey, limit int) ([]coretypes.Candle, error) {
	all := f.candles
	if len(all) > limit {
		all = all[len(all)-limit:]
	}

	return all, nil
}

func candle(openTime int64, closePrice float64) coretypes.Candle {
	return coretypes.Candle{
		Exchange:  "binance",
		Symbol:    "BTCUSDT",
		Interval:  coretypes.Interval1m,
		OpenTime:  openTime,
		Open:      closePrice,
		High:      closePrice + 1,
		Low:       closePrice - 1,
		Close:     closePrice,
		Volume:    10,
		CloseTime: openTime + 59999,
	}
}

func newTestCapabilities(t *testing.T, closes []float64) *Capabilities {
	t.Helper()

	candles := make([]coretypes.Candle, len(closes))
	for i, c := range closes {
		candles[i] = candle(int64(i)*60000, c)
	}

	src := &fakeSource{candles: candles}
	cache := series.New(src, 50)

	key := coretypes.SeriesKey{Exchange: "binance", Symbol: "BTCUSDT", Interval: coretypes.Interval1m}
	if _, err := cache.Preload(context.Background(), key, 100); err != nil {
		t.Fatalf("preload: %v", err)
	}

	log, err := logger.NewLogger()
	if err != nil {
		t.Fatalf("logger: %v", err)
	}

	return New(cache, "binance", "BTCUSDT", log)
}

type IndicatorTestSuite struct {
	suite.Suite
}

func TestIndicatorSuite(t *testing.T) {
	suite.Run(t, new(IndicatorTestSuite))
}

func (s *IndicatorTestSuite) TestSMAReturnsNaNWhenSeriesShorterThanLength() {
	caps := newTestCapabilities(s.T(), []float64{1, 2, 3, 4, 5})

	result := caps.SMA("1m", 10, "Close")
	s.True(math.IsNaN(result))
}

func (s *IndicatorTestSuite) TestSMAMemoizesIdenticalCalls() {
	caps := newTestCapabilities(s.T(), []float64{1, 2, 3, 4, 5})

	first := caps.SMA("1m", 3, "Close")
	s.InDelta(4, first, 1e-9)

	key := "1m|SMA|Close|3"
	caps.scalarMemo[key] = 999

	second := caps.SMA("1m", 3, "Close")
	s.Equal(float64(999), second)
}

func (s *IndicatorTestSuite) TestUnknownSourceDefaultsToClose() {
	caps := newTestCapabilities(s.T(), []float64{1, 2, 3, 4, 5})

	withKnown := caps.SMA("1m", 3, "close")
	withUnknown := caps.SMA("1m", 3, "not-a-real-source")

	s.Equal(withKnown, withUnknown)
}

func (s *IndicatorTestSuite) TestMissingTimeframeReturnsNaN() {
	caps := newTestCapabilities(s.T(), []float64{1, 2, 3, 4, 5})

	result := caps.EMA("1h", 3, "Close")
	s.True(math.IsNaN(result))
}

func (s *IndicatorTestSuite) TestMACDStructuredResult() {
	values := make([]float64, 40)
	for i := range values {
		values[i] = 5
	}

	caps := newTestCapabilities(s.T(), values)

	result := caps.MACD("1m", 3, 6, 2, "Close")
	s.InDelta(0, result.MACD, 1e-9)
	s.InDelta(0, result.Signal, 1e-9)
	s.InDelta(0, result.Histogram, 1e-9)
}

func (s *IndicatorTestSuite) TestBBANDSStructuredResult() {
	caps := newTestCapabilities(s.T(), []float64{1, 2, 3, 4, 5})

	result := caps.BBANDS("1m", 5, 2, "Close")
	s.InDelta(3, result.Middle, 1e-9)
	s.True(result.Upper > result.Middle)
	s.True(result.Lower < result.Middle)
}

func (s *IndicatorTestSuite) TestVWAPUsesTypicalPrice() {
	caps := newTestCapabilities(s.T(), []float64{10, 10, 10})

	result := caps.VWAP("1m")
	s.InDelta(10, result, 1e-9)
}

func (s *IndicatorTestSuite) TestBreakoutUpAgainstExplicitLevel() {
	caps := newTestCapabilities(s.T(), []float64{1, 2, 3, 10})

	s.True(caps.BreakoutUp("1m", 3, 5, "Close"))
	s.False(caps.BreakoutUp("1m", 3, 50, "Close"))
}

func (s *IndicatorTestSuite) TestBreakoutUpAgainstLookbackWindow() {
	caps := newTestCapabilities(s.T(), []float64{1, 2, 3, 10})

	s.True(caps.BreakoutUp("1m", 3, math.NaN(), "Close"))
}

func (s *IndicatorTestSuite) TestRSIUnknownSmoothingWarnsOnceAndFallsBackToWilder() {
	caps := newTestCapabilities(s.T(), []float64{1, 2, 3, 4, 5})

	withWilder := caps.RSI("1m", 4, "Close", "wilder")

	key := "1m|RSI|Close|4"
	delete(caps.scalarMemo, key)
	caps.warnedOnce = make(map[string]struct{})

	withUnknown := caps.RSI("1m", 4, "Close", "exotic")
	s.Equal(withWilder, withUnknown)
	s.Len(caps.warnedOnce, 1)

	caps.RSI("1m", 4, "Close", "exotic")
	s.Len(caps.warnedOnce, 1)
}

func (s *IndicatorTestSuite) TestEMACrossUpDetectsGoldenCross() {
	values := []float64{10, 10, 10, 10, 1, 1, 1, 20}
	caps := newTestCapabilities(s.T(), values)

	s.True(caps.EMACrossUp("1m", 2, 5))
}
