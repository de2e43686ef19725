package venue

import (
	"context"
	"time"

	polygon "github.com/polygon-io/client-go/rest"
	"github.com/polygon-io/client-go/rest/models"

	"github.com/kline-runner/runner/internal/coretypes"
	"github.com/kline-runner/runner/pkg/errors"
)

// Polygon fetches candles from Polygon.io's aggregates-bars endpoint, for
// deployments pointed at Polygon instead of a Binance-compatible venue.
type Polygon struct {
	client *polygon.Client
}

// NewPolygon builds a Polygon adapter authenticated with apiKey.
func NewPolygon(apiKey string) *Polygon {
	return &Polygon{client: polygon.New(apiKey)}
}

var polygonTimespans = map[coretypes.Interval]struct {
	multiplier int
	timespan   models.Timespan
}{
	coretypes.Interval1m:  {1, models.Minute},
	coretypes.Interval3m:  {3, models.Minute},
	coretypes.Interval5m:  {5, models.Minute},
	coretypes.Interval15m: {15, models.Minute},
	coretypes.Interval30m: {30, models.Minute},
	coretypes.Interval1h:  {1, models.Hour},
	coretypes.Interval2h:  {2, models.Hour},
	coretypes.Interval4h:  {4, models.Hour},
	coretypes.Interval6h:  {6, models.Hour},
	coretypes.Interval8h:  {8, models.Hour},
	coretypes.Interval12h: {12, models.Hour},
	coretypes.Interval1d:  {1, models.Day},
}

func (p *Polygon) FetchCandles(ctx context.Context, exchange string, params FetchParams) ([]coretypes.Candle, error) {
	mapping, ok := polygonTimespans[params.Interval]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeInvalidInterval, "polygon adapter does not support interval %q", params.Interval)
	}

	from := time.UnixMilli(params.StartTime)

	to := time.Now()
	if params.EndTime > 0 {
		to = time.UnixMilli(params.EndTime)
	}

	limit := params.ClampLimit()

	aggParams := models.ListAggsParams{
		Ticker:     params.Symbol,
		From:       models.Millis(from),
		To:         models.Millis(to),
		Multiplier: mapping.multiplier,
		Timespan:   mapping.timespan,
	}.WithOrder(models.Asc).WithLimit(limit)

	iter := p.client.ListAggs(ctx, aggParams)

	out := make([]coretypes.Candle, 0, limit)

	for iter.Next() {
		agg := iter.Item()
		openTime := time.Time(agg.Timestamp).UnixMilli()

		out = append(out, coretypes.Candle{
			Exchange:  exchange,
			Symbol:    params.Symbol,
			Interval:  params.Interval,
			OpenTime:  openTime,
			Open:      agg.Open,
			High:      agg.High,
			Low:       agg.Low,
			Close:     agg.Close,
			Volume:    agg.Volume,
			CloseTime: openTime + params.Interval.Milliseconds(),
		})
	}

	if iter.Err() != nil {
		return nil, errors.Wrapf(errors.ErrCodeMarketDataFetchFailed, iter.Err(), "polygon aggregates fetch failed for %s %s", params.Symbol, params.Interval)
	}

	return out, nil
}

var _ Adapter = (*Polygon)(nil)
