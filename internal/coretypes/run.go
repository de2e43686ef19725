package coretypes

import (
	"time"

	"github.com/kline-runner/runner/pkg/errors"
)

// RunStatus is the state machine for one scheduler invocation of a project:
// Running -> {OK, Error, Skipped}. Terminal states are final.
type RunStatus string

const (
	RunStatusRunning RunStatus = "running"
	RunStatusOK      RunStatus = "ok"
	RunStatusError   RunStatus = "error"
	RunStatusSkipped RunStatus = "skipped"
)

// RunMode is always Paper — this core never routes real orders.
type RunMode string

const (
	RunModePaper RunMode = "paper"
)

// Run is the per-invocation audit row for one claimed project.
type Run struct {
	ID         string     `json:"id" validate:"required,uuid"`
	ProjectID  string     `json:"project_id" validate:"required"`
	OwnerID    string     `json:"owner_id" validate:"required"`
	Mode       RunMode    `json:"mode" validate:"required,oneof=paper"`
	Status     RunStatus  `json:"status" validate:"required,oneof=running ok error skipped"`
	StartedAt  time.Time  `json:"started_at" validate:"required"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Summary    string     `json:"summary,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// Finish transitions a running record to a terminal status, stamping
// FinishedAt. It is a no-op if the run already has a FinishedAt.
func (r *Run) Finish(status RunStatus, now time.Time) {
	if r.FinishedAt != nil {
		return
	}

	r.Status = status
	r.FinishedAt = &now
}

// Validate checks struct tags plus the terminal/finished-timestamp
// relationship Finish maintains. Called at construction, before the run row
// is first persisted.
func (r Run) Validate() error {
	if err := sharedValidator.Struct(r); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidParameter, "invalid run", err)
	}

	if r.Status != RunStatusRunning && r.FinishedAt == nil {
		return errors.New(errors.ErrCodeInvalidParameter, "terminal run missing finished_at")
	}

	return nil
}
