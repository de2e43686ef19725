package coretypes

import "github.com/kline-runner/runner/pkg/errors"

// Project is the opaque external entity the scheduler executes on a
// cadence. The core only ever reads one via the claim operation — it never
// writes project rows directly except for run/status bookkeeping.
type Project struct {
	ID              string   `json:"id" validate:"required"`
	OwnerID         string   `json:"owner_id" validate:"required"`
	GeneratedSource string   `json:"generated_source"`
	IntervalSeconds int      `json:"interval_seconds" validate:"gt=0"`
	Symbols         []string `json:"symbols"`
	Status          string   `json:"status"`
	LastRunStatus   string   `json:"last_run_status"`
	LastRunError    string   `json:"last_run_error"`
}

// Validate checks struct tags against a project row as claimed from the
// store — the boundary where this type first crosses into the process.
func (p Project) Validate() error {
	if err := sharedValidator.Struct(p); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidParameter, "invalid project", err)
	}

	return nil
}
