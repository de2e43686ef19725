// Package venue wraps upstream market-data providers behind one narrow
// FetchCandles contract, so the kline manager never depends on a specific
// venue's SDK shapes.
package venue

import (
	"context"

	"github.com/kline-runner/runner/internal/coretypes"
)

const (
	MinLimit     = 1
	MaxLimit     = 1000
	DefaultLimit = 1000
)

// FetchParams bounds one paged candle request.
type FetchParams struct {
	Symbol    string
	Interval  coretypes.Interval
	StartTime int64 // inclusive lower bound on open_time, epoch ms; 0 means unset
	EndTime   int64 // epoch ms; 0 means unset
	Limit     int   // clamped to [MinLimit, MaxLimit], default DefaultLimit
}

// ClampLimit normalizes Limit into the valid range, applying the default
// when Limit is unset.
func (p FetchParams) ClampLimit() int {
	if p.Limit == 0 {
		return DefaultLimit
	}

	if p.Limit < MinLimit {
		return MinLimit
	}

	if p.Limit > MaxLimit {
		return MaxLimit
	}

	return p.Limit
}

// Adapter fetches candles from one upstream venue, ascending by open-time.
type Adapter interface {
	FetchCandles(ctx context.Context, exchange string, params FetchParams) ([]coretypes.Candle, error)
}
