package klinemanager

import (
	"context"

	"github.com/kline-runner/runner/internal/coretypes"
	"github.com/kline-runner/runner/internal/venue"
)

const maxPagedFetchIterations = 1000

// FetchPaged walks the venue adapter from startTime to endTime in pages of
// up to venue.MaxLimit candles, advancing the cursor from the last
// returned candle's open time. It stops on an empty page, a page shorter
// than the full page size, a cursor that fails to advance, or after
// maxPagedFetchIterations pages as a hard backstop. Exported so the
// backfill CLI — which has no ingestion loop of its own — can reuse the
// same paging walk against a raw venue.Adapter.
func FetchPaged(ctx context.Context, adapter venue.Adapter, exchange string, symbol string, interval coretypes.Interval, startTime, endTime int64) ([]coretypes.Candle, error) {
	var all []coretypes.Candle

	cursor := startTime
	intervalMs := interval.Milliseconds()

	for i := 0; i < maxPagedFetchIterations; i++ {
		if cursor > endTime {
			break
		}

		page, err := adapter.FetchCandles(ctx, exchange, venue.FetchParams{
			Symbol:    symbol,
			Interval:  interval,
			StartTime: cursor,
			EndTime:   endTime,
			Limit:     venue.MaxLimit,
		})
		if err != nil {
			return all, err
		}

		if len(page) == 0 {
			break
		}

		all = append(all, page...)

		lastOpenTime := page[len(page)-1].OpenTime
		nextCursor := lastOpenTime + intervalMs

		if nextCursor <= cursor {
			break
		}

		cursor = nextCursor

		if len(page) < venue.MaxLimit {
			break
		}
	}

	return all, nil
}
