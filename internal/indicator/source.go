package indicator

import (
	"strings"

	"github.com/kline-runner/runner/internal/coretypes"
)

// Source names one of the derived price/volume series an operation can be
// fed from.
type Source string

const (
	SourceClose  Source = "Close"
	SourceOpen   Source = "Open"
	SourceHigh   Source = "High"
	SourceLow    Source = "Low"
	SourceVolume Source = "Volume"
	SourceHL2    Source = "HL2"
	SourceHLC3   Source = "HLC3"
	SourceOHLC4  Source = "OHLC4"
)

// ParseSource maps a case-insensitive name to a Source, accepting
// "Typical Price" as an alias for HLC3 and defaulting to SourceClose for
// anything unrecognized.
func ParseSource(name string) Source {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "open":
		return SourceOpen
	case "high":
		return SourceHigh
	case "low":
		return SourceLow
	case "volume":
		return SourceVolume
	case "hl2":
		return SourceHL2
	case "hlc3", "typical price", "typicalprice":
		return SourceHLC3
	case "ohlc4":
		return SourceOHLC4
	case "close":
		return SourceClose
	default:
		return SourceClose
	}
}

// derive computes the Source's values from a Series, element-wise.
func derive(series coretypes.Series, src Source) []float64 {
	n := series.Len()

	switch src {
	case SourceOpen:
		return series.Opens
	case SourceHigh:
		return series.Highs
	case SourceLow:
		return series.Lows
	case SourceVolume:
		return series.Volumes
	case SourceHL2:
		out := make([]float64, n)
		for i := 0; i < n; i++ {
			out[i] = (series.Highs[i] + series.Lows[i]) / 2
		}

		return out
	case SourceHLC3:
		out := make([]float64, n)
		for i := 0; i < n; i++ {
			out[i] = (series.Highs[i] + series.Lows[i] + series.Closes[i]) / 3
		}

		return out
	case SourceOHLC4:
		out := make([]float64, n)
		for i := 0; i < n; i++ {
			out[i] = (series.Opens[i] + series.Highs[i] + series.Lows[i] + series.Closes[i]) / 4
		}

		return out
	default:
		return series.Closes
	}
}
