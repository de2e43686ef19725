package coretypes

import (
	"math"

	"github.com/kline-runner/runner/pkg/errors"
)

// Candle is one OHLCV bar for a single (exchange, symbol, interval).
type Candle struct {
	Exchange  string   `json:"exchange" validate:"required"`
	Symbol    string   `json:"symbol" validate:"required"`
	Interval  Interval `json:"interval" validate:"required"`
	OpenTime  int64    `json:"open_time" validate:"required"`
	Open      float64  `json:"open" validate:"gte=0"`
	High      float64  `json:"high" validate:"gte=0"`
	Low       float64  `json:"low" validate:"gte=0"`
	Close     float64  `json:"close" validate:"gte=0"`
	Volume    float64  `json:"volume" validate:"gte=0"`
	CloseTime int64    `json:"close_time" validate:"required"`
}

// SeriesKey identifies one time series: an exchange's symbol at one
// interval.
type SeriesKey struct {
	Exchange string
	Symbol   string
	Interval Interval
}

// Validate checks struct tags plus the OHLCV invariants from the data model:
// open_time < close_time, low <= min(open,close) <= max(open,close) <= high,
// and every price/volume finite.
func (c Candle) Validate() error {
	if err := sharedValidator.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidParameter, "invalid candle", err)
	}

	if c.OpenTime >= c.CloseTime {
		return errors.Newf(errors.ErrCodeInvalidParameter, "candle open_time %d not before close_time %d", c.OpenTime, c.CloseTime)
	}

	lo := math.Min(c.Open, c.Close)
	hi := math.Max(c.Open, c.Close)

	if c.Low > lo || hi > c.High {
		return errors.Newf(errors.ErrCodeInvalidParameter, "candle range violated: low=%v open=%v close=%v high=%v", c.Low, c.Open, c.Close, c.High)
	}

	for _, v := range []float64{c.Open, c.High, c.Low, c.Close, c.Volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.New(errors.ErrCodeInvalidParameter, "candle contains a non-finite value")
		}
	}

	return nil
}
