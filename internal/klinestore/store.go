// Package klinestore is the durable persistence boundary for OHLCV
// candles: latest-open-time lookup, idempotent bulk upsert, and
// retention trimming, against a Postgres-shaped external database.
package klinestore

import (
	"context"

	"github.com/moznion/go-optional"

	"github.com/kline-runner/runner/internal/coretypes"
)

// Store is the narrow persistence contract the kline manager, the series
// cache, and the backfill CLI depend on.
type Store interface {
	// GetLatestOpenTime returns the maximum open_time stored for key, or
	// None if the series has no rows yet.
	GetLatestOpenTime(ctx context.Context, key coretypes.SeriesKey) (optional.Option[int64], error)

	// UpsertMany idempotently inserts or updates candles, keyed on
	// (exchange, symbol, interval, open_time). Internally chunked to bound
	// per-request payload size.
	UpsertMany(ctx context.Context, candles []coretypes.Candle) error

	// TrimOld deletes rows for key with open_time < minOpenTime.
	TrimOld(ctx context.Context, key coretypes.SeriesKey, minOpenTime int64) error

	// GetRecent returns the most recent limit candles for key, oldest
	// first — the read path the series cache's Preload uses.
	GetRecent(ctx context.Context, key coretypes.SeriesKey, limit int) ([]coretypes.Candle, error)
}
