package venue

import (
	"context"
	"math"
	"strconv"

	binance "github.com/adshao/go-binance/v2"

	"github.com/kline-runner/runner/internal/coretypes"
	"github.com/kline-runner/runner/pkg/errors"
)

// Binance fetches candles from a Binance-compatible spot klines endpoint.
type Binance struct {
	client *binance.Client
}

// NewBinance builds a Binance adapter. No API credentials are required for
// public klines endpoints.
func NewBinance() *Binance {
	return &Binance{client: binance.NewClient("", "")}
}

func (b *Binance) FetchCandles(ctx context.Context, exchange string, params FetchParams) ([]coretypes.Candle, error) {
	svc := b.client.NewKlinesService().
		Symbol(params.Symbol).
		Interval(string(params.Interval)).
		Limit(params.ClampLimit())

	if params.StartTime > 0 {
		svc = svc.StartTime(params.StartTime)
	}

	if params.EndTime > 0 {
		svc = svc.EndTime(params.EndTime)
	}

	klines, err := svc.Do(ctx)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeMarketDataFetchFailed, err, "binance klines fetch failed for %s %s", params.Symbol, params.Interval)
	}

	out := make([]coretypes.Candle, 0, len(klines))

	for _, k := range klines {
		out = append(out, coretypes.Candle{
			Exchange:  exchange,
			Symbol:    params.Symbol,
			Interval:  params.Interval,
			OpenTime:  k.OpenTime,
			Open:      parseDefensive(k.Open),
			High:      parseDefensive(k.High),
			Low:       parseDefensive(k.Low),
			Close:     parseDefensive(k.Close),
			Volume:    parseDefensive(k.Volume),
			CloseTime: k.CloseTime,
		})
	}

	return out, nil
}

// parseDefensive parses a numeric string as Binance returns it; a parse
// failure or a non-finite result becomes 0 rather than an error, per the
// venue adapter's numeric parsing contract.
func parseDefensive(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}

	return v
}

var _ Adapter = (*Binance)(nil)
