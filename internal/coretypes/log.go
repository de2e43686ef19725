package coretypes

import (
	"time"

	"github.com/kline-runner/runner/pkg/errors"
)

// LogLevel is the severity of a LogRecord.
type LogLevel string

const (
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// LogRecord is one structured log line produced by a strategy run. Failures
// writing a LogRecord must never abort the run that produced it.
type LogRecord struct {
	ID        string         `json:"id" validate:"required,uuid"`
	ProjectID string         `json:"project_id" validate:"required"`
	OwnerID   string         `json:"owner_id" validate:"required"`
	Level     LogLevel       `json:"level" validate:"required,oneof=info warn error"`
	Message   string         `json:"message" validate:"required"`
	Meta      map[string]any `json:"meta,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Validate checks struct tags against a log record as constructed from a
// strategy's hp_log host call — the untrusted boundary where its level and
// message first enter the process from the sandboxed guest.
func (l LogRecord) Validate() error {
	if err := sharedValidator.Struct(l); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidParameter, "invalid log record", err)
	}

	return nil
}
