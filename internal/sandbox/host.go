package sandbox

import (
	"context"
	"encoding/json"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/kline-runner/runner/internal/coretypes"
)

// bindHostModule instantiates the fixed "env" host module a strategy
// module is allowed to import from: the §4.6 indicator surface, the
// §4.7 broker surface, and two context accessors. Nothing else is
// exported, so a guest that imports anything outside this set fails to
// instantiate.
func (s *Sandbox) bindHostModule(ctx context.Context, rt wazero.Runtime) error {
	b := rt.NewHostModuleBuilder("env")

	b.NewFunctionBuilder().WithFunc(s.hostEMA).Export("EMA")
	b.NewFunctionBuilder().WithFunc(s.hostSMA).Export("SMA")
	b.NewFunctionBuilder().WithFunc(s.hostWMA).Export("WMA")
	b.NewFunctionBuilder().WithFunc(s.hostRSI).Export("RSI")
	b.NewFunctionBuilder().WithFunc(s.hostATR).Export("ATR")
	b.NewFunctionBuilder().WithFunc(s.hostMACD).Export("MACD")
	b.NewFunctionBuilder().WithFunc(s.hostBBANDS).Export("BBANDS")
	b.NewFunctionBuilder().WithFunc(s.hostVWAP).Export("VWAP")
	b.NewFunctionBuilder().WithFunc(s.hostBreakoutUp).Export("BREAKOUT_UP")
	b.NewFunctionBuilder().WithFunc(s.hostBreakoutDown).Export("BREAKOUT_DOWN")
	b.NewFunctionBuilder().WithFunc(s.hostEMACrossUp).Export("EMA_CROSS_UP")
	b.NewFunctionBuilder().WithFunc(s.hostEMACrossDown).Export("EMA_CROSS_DOWN")
	b.NewFunctionBuilder().WithFunc(s.hostSMACrossUp).Export("SMA_CROSS_UP")
	b.NewFunctionBuilder().WithFunc(s.hostMACDCrossUp).Export("MACD_CROSS_UP")

	b.NewFunctionBuilder().WithFunc(s.hostBuy).Export("hp_buy")
	b.NewFunctionBuilder().WithFunc(s.hostSell).Export("hp_sell")
	b.NewFunctionBuilder().WithFunc(s.hostLog).Export("hp_log")

	b.NewFunctionBuilder().WithFunc(s.hostContextExchange).Export("context_exchange")
	b.NewFunctionBuilder().WithFunc(s.hostContextSymbol).Export("context_symbol")

	_, err := b.Instantiate(ctx)

	return err
}

// readString reads a UTF-8 string out of the guest's linear memory. An
// out-of-bounds (ptr, length) pair — a misbehaving or malicious guest —
// is treated as an empty string rather than a trap; every capability
// method downstream already has a defined behavior for an empty
// timeframe/source/smoothing argument.
func readString(mod api.Module, ptr, length uint32) string {
	if length == 0 {
		return ""
	}

	buf, ok := mod.Memory().Read(ptr, length)
	if !ok {
		return ""
	}

	return string(buf)
}

// writeTruncated copies s into the guest buffer at (ptr, cap), truncating
// if the guest's buffer is too small, and returns the number of bytes
// actually written.
func writeTruncated(mod api.Module, ptr, bufCap uint32, s string) uint32 {
	b := []byte(s)
	if uint32(len(b)) > bufCap {
		b = b[:bufCap]
	}

	if len(b) > 0 {
		mod.Memory().Write(ptr, b)
	}

	return uint32(len(b))
}

func boolToGuest(b bool) uint32 {
	if b {
		return 1
	}

	return 0
}

func (s *Sandbox) hostEMA(ctx context.Context, mod api.Module, tfPtr, tfLen uint32, length float64, srcPtr, srcLen uint32) float64 {
	return s.caps.EMA(readString(mod, tfPtr, tfLen), length, readString(mod, srcPtr, srcLen))
}

func (s *Sandbox) hostSMA(ctx context.Context, mod api.Module, tfPtr, tfLen uint32, length float64, srcPtr, srcLen uint32) float64 {
	return s.caps.SMA(readString(mod, tfPtr, tfLen), length, readString(mod, srcPtr, srcLen))
}

func (s *Sandbox) hostWMA(ctx context.Context, mod api.Module, tfPtr, tfLen uint32, length float64, srcPtr, srcLen uint32) float64 {
	return s.caps.WMA(readString(mod, tfPtr, tfLen), length, readString(mod, srcPtr, srcLen))
}

func (s *Sandbox) hostRSI(ctx context.Context, mod api.Module, tfPtr, tfLen uint32, period float64, srcPtr, srcLen, smoothPtr, smoothLen uint32) float64 {
	tf := readString(mod, tfPtr, tfLen)
	src := readString(mod, srcPtr, srcLen)
	smoothing := readString(mod, smoothPtr, smoothLen)

	return s.caps.RSI(tf, period, src, smoothing)
}

func (s *Sandbox) hostATR(ctx context.Context, mod api.Module, tfPtr, tfLen uint32, period float64) float64 {
	return s.caps.ATR(readString(mod, tfPtr, tfLen), period)
}

// hostMACD writes {macd, signal, histogram} as three little-endian f64s
// at outPtr, since a single WASM host function call can't return a
// struct. The guest must reserve 24 bytes at outPtr before calling.
func (s *Sandbox) hostMACD(ctx context.Context, mod api.Module, tfPtr, tfLen uint32, fast, slow, signal float64, srcPtr, srcLen, outPtr uint32) uint32 {
	tf := readString(mod, tfPtr, tfLen)
	src := readString(mod, srcPtr, srcLen)

	v := s.caps.MACD(tf, fast, slow, signal, src)

	mem := mod.Memory()
	mem.WriteFloat64Le(outPtr, v.MACD)
	mem.WriteFloat64Le(outPtr+8, v.Signal)
	mem.WriteFloat64Le(outPtr+16, v.Histogram)

	return 1
}

// hostBBANDS writes {upper, middle, lower} as three little-endian f64s at
// outPtr, same convention as hostMACD.
func (s *Sandbox) hostBBANDS(ctx context.Context, mod api.Module, tfPtr, tfLen uint32, length, mult float64, srcPtr, srcLen, outPtr uint32) uint32 {
	tf := readString(mod, tfPtr, tfLen)
	src := readString(mod, srcPtr, srcLen)

	v := s.caps.BBANDS(tf, length, mult, src)

	mem := mod.Memory()
	mem.WriteFloat64Le(outPtr, v.Upper)
	mem.WriteFloat64Le(outPtr+8, v.Middle)
	mem.WriteFloat64Le(outPtr+16, v.Lower)

	return 1
}

func (s *Sandbox) hostVWAP(ctx context.Context, mod api.Module, tfPtr, tfLen uint32) float64 {
	return s.caps.VWAP(readString(mod, tfPtr, tfLen))
}

func (s *Sandbox) hostBreakoutUp(ctx context.Context, mod api.Module, tfPtr, tfLen uint32, lookback, level float64, srcPtr, srcLen uint32) uint32 {
	tf := readString(mod, tfPtr, tfLen)
	src := readString(mod, srcPtr, srcLen)

	return boolToGuest(s.caps.BreakoutUp(tf, lookback, level, src))
}

func (s *Sandbox) hostBreakoutDown(ctx context.Context, mod api.Module, tfPtr, tfLen uint32, lookback, level float64, srcPtr, srcLen uint32) uint32 {
	tf := readString(mod, tfPtr, tfLen)
	src := readString(mod, srcPtr, srcLen)

	return boolToGuest(s.caps.BreakoutDown(tf, lookback, level, src))
}

func (s *Sandbox) hostEMACrossUp(ctx context.Context, mod api.Module, tfPtr, tfLen uint32, fast, slow float64) uint32 {
	return boolToGuest(s.caps.EMACrossUp(readString(mod, tfPtr, tfLen), fast, slow))
}

func (s *Sandbox) hostEMACrossDown(ctx context.Context, mod api.Module, tfPtr, tfLen uint32, fast, slow float64) uint32 {
	return boolToGuest(s.caps.EMACrossDown(readString(mod, tfPtr, tfLen), fast, slow))
}

func (s *Sandbox) hostSMACrossUp(ctx context.Context, mod api.Module, tfPtr, tfLen uint32, fast, slow float64) uint32 {
	return boolToGuest(s.caps.SMACrossUp(readString(mod, tfPtr, tfLen), fast, slow))
}

func (s *Sandbox) hostMACDCrossUp(ctx context.Context, mod api.Module, tfPtr, tfLen uint32, fast, slow, signal float64) uint32 {
	return boolToGuest(s.caps.MACDCrossUp(readString(mod, tfPtr, tfLen), fast, slow, signal))
}

// hostBuy and hostSell implement the single idiomatic Buy/Sell signature
// on the host side; the dual object/positional call convention spec.md
// §4.8 describes for HP.buy/HP.sell lives only in whatever thin shim a
// guest's own SDK layer chooses to expose over this flat (f64) import —
// nothing this host module does distinguishes the two call shapes.
func (s *Sandbox) hostBuy(ctx context.Context, mod api.Module, usd float64) {
	s.brk.Buy(ctx, s.symbol, usd)
}

func (s *Sandbox) hostSell(ctx context.Context, mod api.Module, pct float64) {
	s.brk.Sell(ctx, s.symbol, pct)
}

func (s *Sandbox) hostLog(ctx context.Context, mod api.Module, levelPtr, levelLen, msgPtr, msgLen, metaPtr, metaLen uint32) {
	level := coretypes.LogLevel(readString(mod, levelPtr, levelLen))
	if level == "" {
		level = coretypes.LogLevelInfo
	}

	msg := readString(mod, msgPtr, msgLen)

	var meta map[string]any
	if metaLen > 0 {
		_ = json.Unmarshal([]byte(readString(mod, metaPtr, metaLen)), &meta)
	}

	s.brk.Log(ctx, level, msg, meta)
}

func (s *Sandbox) hostContextExchange(ctx context.Context, mod api.Module, outPtr, outCap uint32) uint32 {
	return writeTruncated(mod, outPtr, outCap, s.exchange)
}

func (s *Sandbox) hostContextSymbol(ctx context.Context, mod api.Module, outPtr, outCap uint32) uint32 {
	return writeTruncated(mod, outPtr, outCap, s.symbol)
}
