// Package scheduler implements the claim-based strategy scheduler: every
// tick it claims a batch of due projects, preloads each one's series, and
// runs its strategy module inside a sandbox, isolating one project's — and
// one symbol's — failure from the rest of the batch.
package scheduler

import (
	"context"
	"encoding/base64"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kline-runner/runner/internal/broker"
	"github.com/kline-runner/runner/internal/coretypes"
	"github.com/kline-runner/runner/internal/indicator"
	"github.com/kline-runner/runner/internal/logger"
	"github.com/kline-runner/runner/internal/metrics"
	"github.com/kline-runner/runner/internal/sandbox"
	"github.com/kline-runner/runner/internal/series"
	"github.com/kline-runner/runner/internal/tracing"
	"github.com/kline-runner/runner/pkg/errors"
)

// ProjectStore is the external claim/status-bookkeeping dependency.
type ProjectStore interface {
	// ClaimDue atomically marks up to limit due projects as claimed and
	// returns their descriptors. Mutual exclusion across scheduler
	// processes is the store's responsibility.
	ClaimDue(ctx context.Context, limit int) ([]coretypes.Project, error)

	// SetLastRunStatus records a project's most recent terminal outcome.
	SetLastRunStatus(ctx context.Context, projectID string, status coretypes.RunStatus, runErr string) error
}

// RunStore is the project_runs audit-log dependency.
type RunStore interface {
	CreateRun(ctx context.Context, run coretypes.Run) error
	FinishRun(ctx context.Context, runID string, status coretypes.RunStatus, summary, runErr string, finishedAt time.Time) error
}

// PositionStore and LogStore mirror the broker package's dependencies; the
// scheduler builds one broker per (project, symbol) run from them.
type PositionStore = broker.PositionStore
type LogStore = broker.LogStore

// Config bounds one scheduler loop's cadence and sandboxing behavior.
type Config struct {
	Exchange         string
	ClaimLimit       int
	TickEvery        time.Duration
	SandboxTimeout   time.Duration
	EngineVersion    string
	IndicatorCandles int
}

// DefaultConfig matches spec's recommended defaults: a 2 s claim tick and
// a 5000 ms sandbox wall-clock budget.
func DefaultConfig() Config {
	return Config{
		Exchange:         "binance",
		ClaimLimit:       10,
		TickEvery:        2 * time.Second,
		SandboxTimeout:   sandbox.DefaultTimeout,
		EngineVersion:    "1.0.0",
		IndicatorCandles: 5000,
	}
}

// Scheduler runs the claim → preload → sandbox-execute loop.
type Scheduler struct {
	cfg Config

	projects  ProjectStore
	runs      RunStore
	positions PositionStore
	logs      LogStore
	cache     *series.Cache
	metrics   *metrics.Registry
	log       *logger.Logger

	now func() time.Time

	stopMu sync.Mutex
	stop   bool
}

// New builds a Scheduler. cache is the series cache the scheduler
// preloads from the kline store before each symbol run; the scheduler
// never writes candles durably itself.
func New(cfg Config, projects ProjectStore, runs RunStore, positions PositionStore, logs LogStore, cache *series.Cache, metricsReg *metrics.Registry, log *logger.Logger) *Scheduler {
	return &Scheduler{
		cfg:       cfg,
		projects:  projects,
		runs:      runs,
		positions: positions,
		logs:      logs,
		cache:     cache,
		metrics:   metricsReg,
		log:       log.Named("scheduler"),
		now:       time.Now,
	}
}

// Run blocks, claiming and processing due projects every cfg.TickEvery
// until ctx is cancelled or Stop is called. Ticks take effect cooperatively
// between claim batches — an in-flight batch always finishes.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.TickEvery)
	defer ticker.Stop()

	s.runTick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.shouldStop() {
				return
			}

			s.runTick(ctx)
		}
	}
}

// Stop cooperatively halts Run after its current tick finishes.
func (s *Scheduler) Stop() {
	s.stopMu.Lock()
	defer s.stopMu.Unlock()

	s.stop = true
}

func (s *Scheduler) shouldStop() bool {
	s.stopMu.Lock()
	defer s.stopMu.Unlock()

	return s.stop
}

func (s *Scheduler) runTick(ctx context.Context) {
	_, ctx, finish := tracing.StartSpan(ctx, "scheduler.tick")
	defer finish()

	claimed, err := s.projects.ClaimDue(ctx, s.cfg.ClaimLimit)
	if err != nil {
		s.log.Warn("failed to claim due projects", zap.Error(err))
		return
	}

	if s.metrics != nil {
		s.metrics.SchedulerClaimsTotal.Add(float64(len(claimed)))
	}

	for _, project := range claimed {
		if err := project.Validate(); err != nil {
			if s.metrics != nil {
				s.metrics.ValidationDroppedTotal.WithLabelValues("project").Inc()
			}

			s.log.Warn("dropping invalid claimed project", zap.Error(err), zap.String("project_id", project.ID))

			continue
		}

		s.processProject(ctx, project)
	}
}

// processProject runs one claimed project's full lifecycle. Errors from
// any one project never propagate to the next — they're recorded on that
// project's run and logged.
func (s *Scheduler) processProject(ctx context.Context, project coretypes.Project) {
	span, ctx, finish := tracing.StartSpan(ctx, "scheduler.processProject")
	defer finish()

	span.SetTag("project_id", project.ID)

	startedAt := s.now()

	run := coretypes.Run{
		ID:        uuid.NewString(),
		ProjectID: project.ID,
		OwnerID:   project.OwnerID,
		Mode:      coretypes.RunModePaper,
		Status:    coretypes.RunStatusRunning,
		StartedAt: startedAt,
	}

	if err := run.Validate(); err != nil {
		if s.metrics != nil {
			s.metrics.ValidationDroppedTotal.WithLabelValues("run").Inc()
		}

		s.log.Warn("constructed an invalid run record, skipping project this tick", zap.Error(err))

		return
	}

	if err := s.runs.CreateRun(ctx, run); err != nil {
		s.log.Warn("failed to create run record, skipping project this tick", zap.Error(err))
		return
	}

	if project.GeneratedSource == "" {
		s.finish(ctx, run.ID, project.ID, coretypes.RunStatusSkipped, "generated_source is empty", "")
		return
	}

	wasmBytes, decoded, err := decodeSource(project.GeneratedSource)
	if err != nil {
		s.finish(ctx, run.ID, project.ID, coretypes.RunStatusError, "", err.Error())
		return
	}

	timeframes := extractTimeframes(decoded)

	okCount, failCount := 0, 0

	for _, symbol := range project.Symbols {
		switch s.runSymbol(ctx, project, symbol, timeframes, wasmBytes) {
		case symbolOK:
			okCount++
		case symbolFailed:
			failCount++
		case symbolSkipped:
			// preload failure on every timeframe: logged where it
			// happened, doesn't count toward either total.
		}
	}

	switch {
	case failCount > 0:
		s.finish(ctx, run.ID, project.ID, coretypes.RunStatusError, "", "one or more symbols failed")
	case okCount == 0:
		s.finish(ctx, run.ID, project.ID, coretypes.RunStatusSkipped, "no symbol had usable series data", "")
	default:
		s.finish(ctx, run.ID, project.ID, coretypes.RunStatusOK, "", "")
	}
}

type symbolOutcome int

const (
	symbolOK symbolOutcome = iota
	symbolFailed
	symbolSkipped
)

// runSymbol preloads every required timeframe for symbol, then executes
// the strategy module bound to that single symbol — the sandbox host runs
// one symbol per invocation, per spec.
func (s *Scheduler) runSymbol(ctx context.Context, project coretypes.Project, symbol string, timeframes []coretypes.Interval, wasmBytes []byte) symbolOutcome {
	preloaded := 0

	for _, tf := range timeframes {
		key := coretypes.SeriesKey{Exchange: s.cfg.Exchange, Symbol: symbol, Interval: tf}

		if _, err := s.cache.Preload(ctx, key, s.cfg.IndicatorCandles); err != nil {
			s.log.Warn("preload failed, skipping this timeframe for symbol",
				zap.String("symbol", symbol), zap.String("interval", string(tf)), zap.Error(err))

			continue
		}

		preloaded++
	}

	if preloaded == 0 {
		return symbolSkipped
	}

	caps := indicator.New(s.cache, s.cfg.Exchange, symbol, s.log)
	prices := broker.NewSeriesCacheMarkPrice(s.cache, timeframes[0])
	brk := broker.New(s.positions, s.logs, prices, s.metrics, s.cfg.Exchange, project.ID, project.OwnerID, s.log)

	sb := sandbox.New(sandbox.Config{
		EngineVersion: s.cfg.EngineVersion,
		Timeout:       s.cfg.SandboxTimeout,
	}, caps, brk, s.cfg.Exchange, symbol, s.log)

	ok, err := sb.Run(ctx, wasmBytes, "")
	if s.metrics != nil {
		outcome := "ok"
		if !ok {
			outcome = "error"
		}

		s.metrics.SandboxExecutionsTotal.WithLabelValues(outcome).Inc()

		if err != nil && isTimeout(err) {
			s.metrics.SandboxTimeoutsTotal.Inc()
		}
	}

	if err != nil {
		s.log.Warn("strategy execution failed", zap.String("symbol", symbol), zap.String("project", project.ID), zap.Error(err))

		return symbolFailed
	}

	if !ok {
		return symbolFailed
	}

	return symbolOK
}

func (s *Scheduler) finish(ctx context.Context, runID, projectID string, status coretypes.RunStatus, summary, runErr string) {
	finishedAt := s.now()

	if err := s.runs.FinishRun(ctx, runID, status, summary, runErr, finishedAt); err != nil {
		s.log.Warn("failed to finalize run record", zap.String("run", runID), zap.Error(err))
	}

	if err := s.projects.SetLastRunStatus(ctx, projectID, status, runErr); err != nil {
		s.log.Warn("failed to record last run status on project", zap.String("project", projectID), zap.Error(err))
	}

	if s.metrics != nil {
		s.metrics.RunOutcomesTotal.WithLabelValues(string(status)).Inc()
	}
}

// decodeSource decodes a project's generated_source from its persisted
// base64 form into raw WASM bytes, and separately returns a best-effort
// string view of those same bytes for the timeframe-literal scan — the
// compiling template embeds its tf: "…" markers as plain ASCII in the
// module's data section, so scanning the raw bytes as text is sufficient
// without needing a full WASM data-section parse.
func decodeSource(encoded string) (wasmBytes []byte, textView string, err error) {
	decoded, decodeErr := base64.StdEncoding.DecodeString(encoded)
	if decodeErr != nil {
		return nil, "", decodeErr
	}

	return decoded, string(decoded), nil
}

func isTimeout(err error) bool {
	return errors.HasCode(err, errors.ErrCodeStrategyTimeout)
}
