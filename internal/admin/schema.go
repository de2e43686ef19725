package admin

// The structs below describe the strategy capability surface's parameter
// shapes for the /schema endpoint. They document the frozen WASM host
// function set; nothing in the sandbox itself validates against them.

// EMAParams describes EMA(tf, length, source).
type EMAParams struct {
	Timeframe string  `json:"tf" jsonschema:"description=candle timeframe, e.g. 1m"`
	Length    float64 `json:"length"`
	Source    string  `json:"source" jsonschema:"description=open|high|low|close|volume|hl2|hlc3 (alias typical price)|ohlc4, default close"`
}

// SMAParams describes SMA(tf, length, source).
type SMAParams EMAParams

// WMAParams describes WMA(tf, length, source).
type WMAParams EMAParams

// RSIParams describes RSI(tf, period, source, smoothing).
type RSIParams struct {
	Timeframe string  `json:"tf"`
	Period    float64 `json:"period"`
	Source    string  `json:"source"`
	Smoothing string  `json:"smoothing" jsonschema:"description=only wilder is implemented; anything else falls back with a warning"`
}

// ATRParams describes ATR(tf, period) — not source-selectable.
type ATRParams struct {
	Timeframe string  `json:"tf"`
	Period    float64 `json:"period"`
}

// MACDParams describes MACD(tf, fast, slow, signal, source).
type MACDParams struct {
	Timeframe string  `json:"tf"`
	Fast      float64 `json:"fast"`
	Slow      float64 `json:"slow"`
	Signal    float64 `json:"signal"`
	Source    string  `json:"source"`
}

// MACDResult describes the {macd, signal, histogram} triple MACD returns.
type MACDResult struct {
	MACD      float64 `json:"macd"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

// BBANDSParams describes BBANDS(tf, length, mult, source).
type BBANDSParams struct {
	Timeframe string  `json:"tf"`
	Length    float64 `json:"length"`
	Mult      float64 `json:"mult"`
	Source    string  `json:"source"`
}

// BBANDSResult describes the {upper, middle, lower} triple BBANDS returns.
type BBANDSResult struct {
	Upper  float64 `json:"upper"`
	Middle float64 `json:"middle"`
	Lower  float64 `json:"lower"`
}

// VWAPParams describes VWAP(tf).
type VWAPParams struct {
	Timeframe string `json:"tf"`
}

// BreakoutParams describes BREAKOUT_UP/BREAKOUT_DOWN(tf, lookback, level).
// Level is optional; omit or pass non-finite to compare against the
// trailing lookback window instead of a fixed level.
type BreakoutParams struct {
	Timeframe string  `json:"tf"`
	Lookback  float64 `json:"lookback"`
	Level     float64 `json:"level,omitempty"`
}

// EMACrossParams describes EMA_CROSS_UP/EMA_CROSS_DOWN(tf, fast, slow) and
// SMA_CROSS_UP(tf, fast, slow) — all three share this shape.
type EMACrossParams struct {
	Timeframe string  `json:"tf"`
	Fast      float64 `json:"fast"`
	Slow      float64 `json:"slow"`
}

// MACDCrossParams describes MACD_CROSS_UP(tf, fast, slow, signal).
type MACDCrossParams struct {
	Timeframe string  `json:"tf"`
	Fast      float64 `json:"fast"`
	Slow      float64 `json:"slow"`
	Signal    float64 `json:"signal"`
}

// BuyParams describes HP.buy — collapsed to one idiomatic shape on the
// host side; a guest SDK's positional/object dual call convention is a
// guest-side shim over this.
type BuyParams struct {
	USD float64 `json:"usd"`
}

// SellParams describes HP.sell.
type SellParams struct {
	Pct float64 `json:"pct"`
}

// LogParams describes HP.log(level, message, meta).
type LogParams struct {
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// Context describes the read-only context object a strategy sees.
type Context struct {
	Exchange string `json:"exchange"`
	Symbol   string `json:"symbol"`
}

// CapabilitySurface bundles every documented parameter/result shape into
// one struct so a single jsonschema.Reflect call produces the whole
// /schema response.
type CapabilitySurface struct {
	EMA         EMAParams       `json:"EMA"`
	SMA         SMAParams       `json:"SMA"`
	WMA         WMAParams       `json:"WMA"`
	RSI         RSIParams       `json:"RSI"`
	ATR         ATRParams       `json:"ATR"`
	MACD        MACDParams      `json:"MACD"`
	MACDResult  MACDResult      `json:"MACD_result"`
	BBANDS      BBANDSParams    `json:"BBANDS"`
	BBANDSResult BBANDSResult   `json:"BBANDS_result"`
	VWAP        VWAPParams      `json:"VWAP"`
	BreakoutUp  BreakoutParams  `json:"BREAKOUT_UP"`
	BreakoutDown BreakoutParams `json:"BREAKOUT_DOWN"`
	EMACrossUp   EMACrossParams `json:"EMA_CROSS_UP"`
	EMACrossDown EMACrossParams `json:"EMA_CROSS_DOWN"`
	SMACrossUp   EMACrossParams `json:"SMA_CROSS_UP"`
	MACDCrossUp  MACDCrossParams `json:"MACD_CROSS_UP"`
	Buy  BuyParams  `json:"HP_buy"`
	Sell SellParams `json:"HP_sell"`
	Log  LogParams  `json:"HP_log"`
	Ctx  Context    `json:"context"`
}
