// Package indicator builds per-invocation capability objects over the
// series cache: a memoized set of technical-analysis operations scoped to
// one (exchange, symbol) and valid for the lifetime of a single strategy
// run.
package indicator

import (
	"fmt"
	"math"

	"github.com/kline-runner/runner/internal/coretypes"
	"github.com/kline-runner/runner/internal/logger"
	"github.com/kline-runner/runner/internal/mathkernel"
	"github.com/kline-runner/runner/internal/series"
)

const defaultTimeframe = "1m"

// Capabilities is the object New builds for one strategy
// invocation. None of its methods are safe for concurrent use by more than
// one goroutine; each invocation gets its own instance.
type Capabilities struct {
	cache    *series.Cache
	exchange string
	symbol   string
	log      *logger.Logger

	seriesMemo map[string][]float64
	scalarMemo map[string]float64
	structMemo map[string]any

	warnedOnce map[string]struct{}
}

// New builds a Capabilities object scoped to one (exchange, symbol). cache
// is the already-preloaded series cache the scheduler populated before the
// strategy ran.
func New(cache *series.Cache, exchange, symbol string, log *logger.Logger) *Capabilities {
	return &Capabilities{
		cache:      cache,
		exchange:   exchange,
		symbol:     symbol,
		log:        log,
		seriesMemo: make(map[string][]float64),
		scalarMemo: make(map[string]float64),
		structMemo: make(map[string]any),
		warnedOnce: make(map[string]struct{}),
	}
}

// coerceLength floors a numeric parameter to an integer and lower-bounds it
// at 1, the coercion rule every length/period/lookback parameter obeys.
func coerceLength(n float64) int {
	v := int(math.Floor(n))
	if v < 1 {
		return 1
	}

	return v
}

func normalizeTimeframe(tf string) coretypes.Interval {
	if tf == "" {
		tf = defaultTimeframe
	}

	return coretypes.Interval(tf)
}

func normalizeSource(source string) Source {
	if source == "" {
		return SourceClose
	}

	return ParseSource(source)
}

// sourceSeries returns the derived series for (tf, source), computing and
// memoizing it on first use within this invocation.
func (c *Capabilities) sourceSeries(tf coretypes.Interval, src Source) []float64 {
	key := fmt.Sprintf("%s|SRC|%s", tf, src)

	if cached, ok := c.seriesMemo[key]; ok {
		return cached
	}

	s, ok := c.cache.GetSeries(coretypes.SeriesKey{Exchange: c.exchange, Symbol: c.symbol, Interval: tf})
	if !ok {
		c.seriesMemo[key] = nil
		return nil
	}

	values := derive(s, src)
	c.seriesMemo[key] = values

	return values
}

func (c *Capabilities) fullSeries(tf coretypes.Interval) (coretypes.Series, bool) {
	return c.cache.GetSeries(coretypes.SeriesKey{Exchange: c.exchange, Symbol: c.symbol, Interval: tf})
}

// warnOnce logs a warning at most once per (indicator, value) pair for the
// lifetime of this invocation.
func (c *Capabilities) warnOnce(indicatorName, value string) {
	key := indicatorName + "|" + value
	if _, done := c.warnedOnce[key]; done {
		return
	}

	c.warnedOnce[key] = struct{}{}
	c.log.Warn(fmt.Sprintf("indicator %s: unrecognized parameter value %q, falling back to default", indicatorName, value))
}

// EMA returns the last finite value of an EMA(length) over tf/source. NaN
// when the source series is shorter than length.
func (c *Capabilities) EMA(tf string, length float64, source string) float64 {
	interval := normalizeTimeframe(tf)
	src := normalizeSource(source)
	n := coerceLength(length)

	key := fmt.Sprintf("%s|EMA|%s|%d", interval, src, n)
	if v, ok := c.scalarMemo[key]; ok {
		return v
	}

	values := c.sourceSeries(interval, src)
	result := mathkernel.LastFinite(mathkernel.EMA(values, float64(n)))
	c.scalarMemo[key] = result

	return result
}

// SMA returns the last finite value of an SMA(length) over tf/source.
func (c *Capabilities) SMA(tf string, length float64, source string) float64 {
	interval := normalizeTimeframe(tf)
	src := normalizeSource(source)
	n := coerceLength(length)

	key := fmt.Sprintf("%s|SMA|%s|%d", interval, src, n)
	if v, ok := c.scalarMemo[key]; ok {
		return v
	}

	values := c.sourceSeries(interval, src)
	result := mathkernel.LastFinite(mathkernel.SMA(values, float64(n)))
	c.scalarMemo[key] = result

	return result
}

// WMA returns the last finite value of a WMA(length) over tf/source.
func (c *Capabilities) WMA(tf string, length float64, source string) float64 {
	interval := normalizeTimeframe(tf)
	src := normalizeSource(source)
	n := coerceLength(length)

	key := fmt.Sprintf("%s|WMA|%s|%d", interval, src, n)
	if v, ok := c.scalarMemo[key]; ok {
		return v
	}

	values := c.sourceSeries(interval, src)
	result := mathkernel.LastFinite(mathkernel.WMA(values, float64(n)))
	c.scalarMemo[key] = result

	return result
}

// RSI returns Wilder-smoothed RSI(period) over tf/source. Any smoothing
// value other than "wilder"/"" triggers a once-per-value warning and falls
// back to Wilder, the only smoothing this engine implements.
func (c *Capabilities) RSI(tf string, period float64, source, smoothing string) float64 {
	interval := normalizeTimeframe(tf)
	src := normalizeSource(source)
	n := coerceLength(period)

	if smoothing != "" && smoothing != "wilder" && smoothing != "Wilder" {
		c.warnOnce("RSI", smoothing)
	}

	key := fmt.Sprintf("%s|RSI|%s|%d", interval, src, n)
	if v, ok := c.scalarMemo[key]; ok {
		return v
	}

	values := c.sourceSeries(interval, src)
	result := mathkernel.RSI(values, float64(n))
	c.scalarMemo[key] = result

	return result
}

// ATR returns Wilder-smoothed ATR(period) over tf's full OHLC series. ATR
// is not source-selectable; it always consumes high/low/close.
func (c *Capabilities) ATR(tf string, period float64) float64 {
	interval := normalizeTimeframe(tf)
	n := coerceLength(period)

	key := fmt.Sprintf("%s|ATR|%d", interval, n)
	if v, ok := c.scalarMemo[key]; ok {
		return v
	}

	s, ok := c.fullSeries(interval)
	if !ok {
		c.scalarMemo[key] = math.NaN()
		return math.NaN()
	}

	result := mathkernel.ATR(s.Highs, s.Lows, s.Closes, float64(n))
	c.scalarMemo[key] = result

	return result
}

// MACDValue is the structured result of the MACD operation.
type MACDValue struct {
	MACD      float64
	Signal    float64
	Histogram float64
}

// MACD returns {macd, signal, histogram} over tf/source.
func (c *Capabilities) MACD(tf string, fast, slow, signal float64, source string) MACDValue {
	interval := normalizeTimeframe(tf)
	src := normalizeSource(source)

	fastN, slowN, signalN := coerceLength(fast), coerceLength(slow), coerceLength(signal)

	key := fmt.Sprintf("%s|MACD|%s|%d|%d|%d", interval, src, fastN, slowN, signalN)
	if v, ok := c.structMemo[key]; ok {
		return v.(MACDValue)
	}

	values := c.sourceSeries(interval, src)
	raw := mathkernel.MACD(values, float64(fastN), float64(slowN), float64(signalN))
	result := MACDValue{MACD: raw.MACD, Signal: raw.Signal, Histogram: raw.Histogram}
	c.structMemo[key] = result

	return result
}

// BBANDSValue is the structured result of the BBANDS operation.
type BBANDSValue struct {
	Upper  float64
	Middle float64
	Lower  float64
}

// BBANDS returns {upper, middle, lower} Bollinger Bands over tf/source.
func (c *Capabilities) BBANDS(tf string, length, mult float64, source string) BBANDSValue {
	interval := normalizeTimeframe(tf)
	src := normalizeSource(source)
	n := coerceLength(length)

	key := fmt.Sprintf("%s|BBANDS|%s|%d|%v", interval, src, n, mult)
	if v, ok := c.structMemo[key]; ok {
		return v.(BBANDSValue)
	}

	values := c.sourceSeries(interval, src)
	raw := mathkernel.Bollinger(values, float64(n), mult)
	result := BBANDSValue{Upper: raw.Upper, Middle: raw.Middle, Lower: raw.Lower}
	c.structMemo[key] = result

	return result
}

// VWAP returns the cumulative volume-weighted average price over tf,
// priced off the Typical Price (HLC3) series.
func (c *Capabilities) VWAP(tf string) float64 {
	interval := normalizeTimeframe(tf)

	key := fmt.Sprintf("%s|VWAP", interval)
	if v, ok := c.scalarMemo[key]; ok {
		return v
	}

	s, ok := c.fullSeries(interval)
	if !ok {
		c.scalarMemo[key] = math.NaN()
		return math.NaN()
	}

	typical := c.sourceSeries(interval, SourceHLC3)
	result := mathkernel.VWAP(typical, s.Volumes)
	c.scalarMemo[key] = result

	return result
}

// BreakoutUp reports whether the current source value breaks above level,
// or above the max of the previous lookback bars when level is non-finite.
func (c *Capabilities) BreakoutUp(tf string, lookback, level float64, source string) bool {
	interval := normalizeTimeframe(tf)
	src := normalizeSource(source)
	n := coerceLength(lookback)

	key := fmt.Sprintf("%s|BREAKOUT_UP|%s|%d|%v", interval, src, n, level)
	if v, ok := c.scalarMemo[key]; ok {
		return v != 0
	}

	values := c.sourceSeries(interval, src)
	result := mathkernel.BreakoutUp(values, float64(n), level)
	c.scalarMemo[key] = boolToFloat(result)

	return result
}

// BreakoutDown reports whether the current source value breaks below
// level, or below the min of the previous lookback bars when level is
// non-finite.
func (c *Capabilities) BreakoutDown(tf string, lookback, level float64, source string) bool {
	interval := normalizeTimeframe(tf)
	src := normalizeSource(source)
	n := coerceLength(lookback)

	key := fmt.Sprintf("%s|BREAKOUT_DOWN|%s|%d|%v", interval, src, n, level)
	if v, ok := c.scalarMemo[key]; ok {
		return v != 0
	}

	values := c.sourceSeries(interval, src)
	result := mathkernel.BreakoutDown(values, float64(n), level)
	c.scalarMemo[key] = boolToFloat(result)

	return result
}

// EMACrossUp reports whether EMA(fast) crossed above EMA(slow) on closes.
func (c *Capabilities) EMACrossUp(tf string, fast, slow float64) bool {
	interval := normalizeTimeframe(tf)
	fastN, slowN := coerceLength(fast), coerceLength(slow)

	key := fmt.Sprintf("%s|EMA_CROSS_UP|%d|%d", interval, fastN, slowN)
	if v, ok := c.scalarMemo[key]; ok {
		return v != 0
	}

	closes := c.sourceSeries(interval, SourceClose)
	result := mathkernel.CrossUp(mathkernel.EMA(closes, float64(fastN)), mathkernel.EMA(closes, float64(slowN)))
	c.scalarMemo[key] = boolToFloat(result)

	return result
}

// EMACrossDown reports whether EMA(fast) crossed below EMA(slow) on closes.
func (c *Capabilities) EMACrossDown(tf string, fast, slow float64) bool {
	interval := normalizeTimeframe(tf)
	fastN, slowN := coerceLength(fast), coerceLength(slow)

	key := fmt.Sprintf("%s|EMA_CROSS_DOWN|%d|%d", interval, fastN, slowN)
	if v, ok := c.scalarMemo[key]; ok {
		return v != 0
	}

	closes := c.sourceSeries(interval, SourceClose)
	result := mathkernel.CrossDown(mathkernel.EMA(closes, float64(fastN)), mathkernel.EMA(closes, float64(slowN)))
	c.scalarMemo[key] = boolToFloat(result)

	return result
}

// SMACrossUp reports whether SMA(fast) crossed above SMA(slow) on closes.
func (c *Capabilities) SMACrossUp(tf string, fast, slow float64) bool {
	interval := normalizeTimeframe(tf)
	fastN, slowN := coerceLength(fast), coerceLength(slow)

	key := fmt.Sprintf("%s|SMA_CROSS_UP|%d|%d", interval, fastN, slowN)
	if v, ok := c.scalarMemo[key]; ok {
		return v != 0
	}

	closes := c.sourceSeries(interval, SourceClose)
	result := mathkernel.CrossUp(mathkernel.SMA(closes, float64(fastN)), mathkernel.SMA(closes, float64(slowN)))
	c.scalarMemo[key] = boolToFloat(result)

	return result
}

// MACDCrossUp reports whether the MACD line crossed above its signal line.
func (c *Capabilities) MACDCrossUp(tf string, fast, slow, signal float64) bool {
	interval := normalizeTimeframe(tf)
	fastN, slowN, signalN := coerceLength(fast), coerceLength(slow), coerceLength(signal)

	key := fmt.Sprintf("%s|MACD_CROSS_UP|%d|%d|%d", interval, fastN, slowN, signalN)
	if v, ok := c.scalarMemo[key]; ok {
		return v != 0
	}

	closes := c.sourceSeries(interval, SourceClose)

	macdLine, signalLine := mathkernel.MACDSeries(closes, float64(fastN), float64(slowN), float64(signalN))
	result := mathkernel.CrossUp(macdLine, signalLine)
	c.scalarMemo[key] = boolToFloat(result)

	return result
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}

	return 0
}
