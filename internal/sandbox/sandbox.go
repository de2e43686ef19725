// Package sandbox loads and executes a precompiled WebAssembly strategy
// module inside a fresh, capability-restricted wazero runtime: no WASI
// filesystem, no network, no env passthrough, and nothing imported beyond
// the fixed host function surface this package exports. Compiling a
// strategy to WASM is someone else's problem; this package only runs the
// bytes a project points at.
package sandbox

import (
	"context"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/kline-runner/runner/internal/broker"
	"github.com/kline-runner/runner/internal/indicator"
	"github.com/kline-runner/runner/internal/logger"
	"github.com/kline-runner/runner/internal/tracing"
	"github.com/kline-runner/runner/internal/version"
	"github.com/kline-runner/runner/pkg/errors"
)

// DefaultTimeout is the wall-clock budget for one strategy run when a
// project doesn't override it.
const DefaultTimeout = 5000 * time.Millisecond

// versionBufferCap is generous for a "major.minor.patch" semver string;
// guest modules exporting anything longer get truncated and fail the
// version parse, which is an acceptable failure mode for a malformed guest.
const versionBufferCap = 32

// Config is the per-run configuration a Sandbox is built with.
type Config struct {
	// EngineVersion is the host's own capability-surface version. A guest
	// module's exported strategy_api_version must share its major.minor.
	EngineVersion string
	// Timeout bounds one Run call's wall-clock budget. Zero means
	// DefaultTimeout.
	Timeout time.Duration
}

// Sandbox executes one strategy module against one (exchange, symbol)
// invocation. It is built fresh per run; nothing on it is reused across
// runs or symbols.
type Sandbox struct {
	cfg Config

	caps     *indicator.Capabilities
	brk      *broker.Broker
	exchange string
	symbol   string
	log      *logger.Logger
}

// New builds a Sandbox scoped to one strategy invocation. caps and brk are
// the capability object and broker façade already built for this
// (exchange, symbol, project) run.
func New(cfg Config, caps *indicator.Capabilities, brk *broker.Broker, exchange, symbol string, log *logger.Logger) *Sandbox {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Sandbox{cfg: cfg, caps: caps, brk: brk, exchange: exchange, symbol: symbol, log: log}
}

// Run loads wasmBytes into a fresh runtime, checks its exported API
// version against cfg.EngineVersion, calls strategy_initialize with
// configJSON, then calls strategy_execute. It returns ok=true only when
// every step up to and including strategy_execute succeeds and returns a
// zero status; any other outcome is a logged no-op from the caller's
// point of view, matching the run record's {running,ok,error,skipped}
// lifecycle — the caller decides which of those this maps to.
func (s *Sandbox) Run(ctx context.Context, wasmBytes []byte, configJSON string) (ok bool, err error) {
	span, ctx, finish := tracing.StartSpan(ctx, "sandbox.Run")
	defer finish()

	span.SetTag("exchange", s.exchange)
	span.SetTag("symbol", s.symbol)

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)

	if err := s.bindHostModule(ctx, rt); err != nil {
		return false, errors.Wrap(errors.ErrCodeStrategyLoadFailed, "binding host module", err)
	}

	code, err := rt.CompileModule(ctx, wasmBytes)
	if err != nil {
		return false, errors.Wrap(errors.ErrCodeStrategyLoadFailed, "compiling strategy module", err)
	}

	// No WithStartFunctions override and no WASI instantiation: a guest
	// that imports wasi_snapshot_preview1 simply fails to instantiate.
	mod, err := rt.InstantiateModule(ctx, code, wazero.NewModuleConfig())
	if err != nil {
		return false, errors.Wrap(errors.ErrCodeStrategyLoadFailed, "instantiating strategy module", err)
	}

	malloc := mod.ExportedFunction("malloc")
	free := mod.ExportedFunction("free")
	versionFn := mod.ExportedFunction("strategy_api_version")
	initFn := mod.ExportedFunction("strategy_initialize")
	execFn := mod.ExportedFunction("strategy_execute")

	if malloc == nil || free == nil || versionFn == nil || initFn == nil || execFn == nil {
		return false, errors.New(errors.ErrCodeStrategyLoadFailed, "strategy module is missing a required export")
	}

	if err := s.checkVersion(ctx, mod, malloc, free, versionFn); err != nil {
		return false, err
	}

	if err := s.initialize(ctx, mod, malloc, free, initFn, configJSON); err != nil {
		return false, err
	}

	results, err := execFn.Call(ctx)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return false, errors.Wrap(errors.ErrCodeStrategyTimeout, "strategy_execute exceeded its time budget", err)
		}

		return false, errors.Wrap(errors.ErrCodeStrategyRuntimeError, "strategy_execute trapped", err)
	}

	if len(results) != 1 || results[0] != 0 {
		return false, errors.Newf(errors.ErrCodeStrategyRuntimeError, "strategy_execute returned non-zero status %v", results)
	}

	return true, nil
}

func (s *Sandbox) checkVersion(ctx context.Context, mod api.Module, malloc, free, versionFn api.Function) error {
	raw, err := readGuestString(ctx, mod, malloc, free, versionFn, versionBufferCap)
	if err != nil {
		return errors.Wrap(errors.ErrCodeVersionMismatch, "reading strategy_api_version", err)
	}

	return version.CheckCompatible(s.cfg.EngineVersion, raw)
}

func (s *Sandbox) initialize(ctx context.Context, mod api.Module, malloc, free, initFn api.Function, configJSON string) error {
	if configJSON == "" {
		results, err := initFn.Call(ctx, 0, 0)
		if err != nil {
			return errors.Wrap(errors.ErrCodeStrategyConfigError, "strategy_initialize trapped", err)
		}

		return statusToError(results, errors.ErrCodeStrategyConfigError, "strategy_initialize")
	}

	ptr, releaseFn, err := writeGuestString(ctx, mod, malloc, configJSON)
	if err != nil {
		return errors.Wrap(errors.ErrCodeStrategyConfigError, "copying config into guest memory", err)
	}
	defer releaseFn(ctx, free)

	results, err := initFn.Call(ctx, uint64(ptr), uint64(len(configJSON)))
	if err != nil {
		return errors.Wrap(errors.ErrCodeStrategyConfigError, "strategy_initialize trapped", err)
	}

	return statusToError(results, errors.ErrCodeStrategyConfigError, "strategy_initialize")
}

func statusToError(results []uint64, code errors.ErrorCode, fn string) error {
	if len(results) != 1 || results[0] != 0 {
		return errors.Newf(code, "%s returned non-zero status %v", fn, results)
	}

	return nil
}
