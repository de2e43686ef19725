// Package broker implements the paper trading command layer: buy, sell,
// and log operations against the external position ledger, consulting the
// series cache for mark prices. It holds no position state itself — the
// ledger is the source of truth — and uses shopspring/decimal internally
// to avoid float drift across repeated partial closes.
package broker

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kline-runner/runner/internal/coretypes"
	"github.com/kline-runner/runner/internal/logger"
	"github.com/kline-runner/runner/internal/metrics"
	"github.com/kline-runner/runner/pkg/errors"
)

// PositionStore is the ledger write/read dependency the broker needs.
type PositionStore interface {
	// GetOpenPosition returns the currently open position for
	// (projectID, symbol), or ok=false if none exists.
	GetOpenPosition(ctx context.Context, projectID, symbol string) (coretypes.Position, bool, error)

	// OpenPosition inserts a new open position row. Implementations must
	// return an *errors.Error with ErrCodeConstraintViolation when the
	// insert loses a race against the ledger's uniqueness constraint on
	// (project_id, symbol) WHERE status='open'.
	OpenPosition(ctx context.Context, pos coretypes.Position) error

	// UpdatePosition writes back an existing position row, whether it is
	// being partially closed (still open, reduced qty) or fully closed.
	UpdatePosition(ctx context.Context, pos coretypes.Position) error
}

// LogStore is the append-only log ledger dependency.
type LogStore interface {
	InsertLog(ctx context.Context, rec coretypes.LogRecord) error
}

// MarkPriceSource resolves the latest close for one symbol at the
// broker's default timeframe.
type MarkPriceSource interface {
	LastClose(exchange, symbol string) float64
}

const remainderEpsilon = 1e-12

// Broker is a thin command layer scoped to one project invocation. A
// fresh Broker is built per strategy run, bound to that run's
// (exchange, projectID, ownerID).
type Broker struct {
	positions PositionStore
	logs      LogStore
	prices    MarkPriceSource
	metrics   *metrics.Registry
	log       *logger.Logger

	exchange  string
	projectID string
	ownerID   string

	now func() time.Time
}

// New builds a Broker scoped to one project's run.
func New(positions PositionStore, logs LogStore, prices MarkPriceSource, metricsReg *metrics.Registry, exchange, projectID, ownerID string, log *logger.Logger) *Broker {
	return &Broker{
		positions: positions,
		logs:      logs,
		prices:    prices,
		metrics:   metricsReg,
		log:       log,
		exchange:  exchange,
		projectID: projectID,
		ownerID:   ownerID,
		now:       time.Now,
	}
}

// Buy opens a long position sized by usd notional at the current mark
// price. Invalid input, an already-open position, or a missing mark price
// are no-ops logged at the appropriate level, never errors returned to
// the caller — per spec, these are recoverable conditions within one
// strategy invocation.
func (b *Broker) Buy(ctx context.Context, symbol string, usd float64) {
	if !isFinitePositive(usd) {
		b.log.Warn("buy ignored: usd must be finite and positive")
		return
	}

	if existing, open, err := b.positions.GetOpenPosition(ctx, b.projectID, symbol); err != nil {
		b.log.Warn("buy ignored: failed to check for an existing open position")
		return
	} else if open {
		if verr := existing.Validate(); verr != nil {
			b.dropInvalidPosition(verr)
		}

		b.log.Info("buy ignored: position already open for this symbol")
		return
	}

	price := b.prices.LastClose(b.exchange, symbol)
	if !isFinitePositive(price) {
		b.log.Warn("buy ignored: no mark price available")
		return
	}

	qty := usd / price

	pos := coretypes.Position{
		ID:         uuid.NewString(),
		ProjectID:  b.projectID,
		OwnerID:    b.ownerID,
		Symbol:     symbol,
		Side:       coretypes.PositionSideLong,
		Status:     coretypes.PositionStatusOpen,
		Qty:        qty,
		EntryPrice: price,
		EntryTime:  b.now(),
	}

	if err := b.positions.OpenPosition(ctx, pos); err != nil {
		if errors.HasCode(err, errors.ErrCodeConstraintViolation) {
			b.log.Info("buy ignored: position already open for this symbol")
			return
		}

		b.log.Warn("buy failed: could not write position to the ledger")
	}
}

// Sell closes pct percent of the open position at the current mark price.
func (b *Broker) Sell(ctx context.Context, symbol string, pct float64) {
	if !isFinitePositive(pct) {
		b.log.Warn("sell ignored: pct must be finite and positive")
		return
	}

	pos, open, err := b.positions.GetOpenPosition(ctx, b.projectID, symbol)
	if err != nil {
		b.log.Warn("sell ignored: failed to look up the open position")
		return
	}

	if !open {
		b.log.Info("sell ignored: no open position for this symbol")
		return
	}

	if err := pos.Validate(); err != nil {
		b.dropInvalidPosition(err)
		b.log.Warn("sell ignored: open position row failed validation")

		return
	}

	price := b.prices.LastClose(b.exchange, symbol)
	if !isFinitePositive(price) {
		b.log.Warn("sell ignored: no mark price available")
		return
	}

	closeFrac := decimal.Min(decimal.NewFromInt(1), decimal.NewFromFloat(pct).Div(decimal.NewFromInt(100)))
	qty := decimal.NewFromFloat(pos.Qty)
	entryPrice := decimal.NewFromFloat(pos.EntryPrice)
	markPrice := decimal.NewFromFloat(price)

	closeQty := qty.Mul(closeFrac)
	remaining := qty.Sub(closeQty)
	realized := markPrice.Sub(entryPrice).Mul(closeQty)

	now := b.now()

	realizedF, _ := realized.Float64()
	pos.ExitPrice = price
	pos.ExitTime = now
	pos.RealizedPnL += realizedF

	if remaining.LessThanOrEqual(decimal.NewFromFloat(remainderEpsilon)) {
		pos.Status = coretypes.PositionStatusClosed
	} else {
		remainingF, _ := remaining.Float64()
		pos.Qty = remainingF
	}

	if err := b.positions.UpdatePosition(ctx, pos); err != nil {
		b.log.Warn("sell failed: could not write position update to the ledger")
	}
}

// Log appends a structured log line to the project's log ledger. Failures
// are swallowed with a console notice — logging must never abort a run.
func (b *Broker) Log(ctx context.Context, level coretypes.LogLevel, message string, meta map[string]any) {
	rec := coretypes.LogRecord{
		ID:        uuid.NewString(),
		ProjectID: b.projectID,
		OwnerID:   b.ownerID,
		Level:     level,
		Message:   message,
		Meta:      meta,
		CreatedAt: b.now(),
	}

	if err := rec.Validate(); err != nil {
		b.metricsDrop("log")
		b.log.Warn("strategy log record failed validation, dropping it", zap.Error(err))

		return
	}

	if err := b.logs.InsertLog(ctx, rec); err != nil {
		b.log.Error("failed to persist strategy log record, dropping it", zap.Error(err))
	}
}

// dropInvalidPosition records a position row that failed Validate when
// read back from the ledger — it never blocks the calling command, it only
// makes the drop observable.
func (b *Broker) dropInvalidPosition(err error) {
	b.metricsDrop("position")
	b.log.Warn("open position row failed validation", zap.Error(err))
}

func (b *Broker) metricsDrop(typ string) {
	if b.metrics != nil {
		b.metrics.ValidationDroppedTotal.WithLabelValues(typ).Inc()
	}
}

func isFinitePositive(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}
