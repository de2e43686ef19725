package coretypes

import (
	"time"

	"github.com/kline-runner/runner/pkg/errors"
)

// PositionSide is always Long in this core — short positions are not part
// of the paper broker's scope.
type PositionSide string

const (
	PositionSideLong PositionSide = "long"
)

// PositionStatus is the lifecycle state of a paper position.
type PositionStatus string

const (
	PositionStatusOpen   PositionStatus = "open"
	PositionStatusClosed PositionStatus = "closed"
)

// Position is one row in the paper position ledger. At most one Open
// position may exist per (ProjectID, Symbol) — enforced by a uniqueness
// constraint in the store, not here.
type Position struct {
	ID          string         `json:"id" validate:"required,uuid"`
	ProjectID   string         `json:"project_id" validate:"required"`
	OwnerID     string         `json:"owner_id" validate:"required"`
	Symbol      string         `json:"symbol" validate:"required"`
	Side        PositionSide   `json:"side" validate:"required,oneof=long"`
	Status      PositionStatus `json:"status" validate:"required,oneof=open closed"`
	Qty         float64        `json:"qty" validate:"gt=0"`
	EntryPrice  float64        `json:"entry_price" validate:"gt=0"`
	EntryTime   time.Time      `json:"entry_time" validate:"required"`
	ExitPrice   float64        `json:"exit_price"`
	ExitTime    time.Time      `json:"exit_time"`
	RealizedPnL float64        `json:"realized_pnl"`
}

// IsOpen reports whether this row represents a currently open position.
func (p Position) IsOpen() bool {
	return p.Status == PositionStatusOpen
}

// Validate checks struct tags plus the one invariant tags can't express: a
// closed position must carry an exit. Called at the store-row boundary,
// where a position is first scanned back out of the ledger.
func (p Position) Validate() error {
	if err := sharedValidator.Struct(p); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidParameter, "invalid position", err)
	}

	if p.Status == PositionStatusClosed && p.ExitTime.IsZero() {
		return errors.New(errors.ErrCodeInvalidParameter, "closed position missing exit_time")
	}

	return nil
}
