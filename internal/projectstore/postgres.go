// Package projectstore implements the scheduler's and broker's external
// dependencies (project claim/status bookkeeping, the run audit log, the
// paper position ledger, and the strategy log ledger) against a Postgres
// database, reached the same way klinestore reaches it: pgx's
// database/sql stdlib adapter, queried with squirrel's Dollar builder.
package projectstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/Masterminds/squirrel"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kline-runner/runner/internal/coretypes"
	"github.com/kline-runner/runner/internal/logger"
	"github.com/kline-runner/runner/pkg/errors"
)

const (
	projectsTable  = "projects"
	runsTable      = "project_runs"
	positionsTable = "project_positions"
	logsTable      = "project_logs"
)

// Postgres implements scheduler.ProjectStore, scheduler.RunStore,
// broker.PositionStore, broker.LogStore, and klinemanager.SymbolProvider
// against one connection pool.
type Postgres struct {
	db     *sql.DB
	sq     squirrel.StatementBuilderType
	logger *logger.Logger
}

// NewPostgres opens a connection pool against dsn.
func NewPostgres(dsn string, log *logger.Logger) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStoreTransient, "failed to open database", err)
	}

	return &Postgres{
		db:     db,
		sq:     squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		logger: log.Named("projectstore"),
	}, nil
}

// Close releases the underlying connection pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}

// ClaimDue calls the atomic claim_due_projects(p_limit) RPC spec.md §6
// fixes as the out-of-scope collaborator's contract, and hydrates the
// descriptors it returns into coretypes.Project values.
func (p *Postgres) ClaimDue(ctx context.Context, limit int) ([]coretypes.Project, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, owner_id, generated_source, interval_seconds, symbols, status, last_run_status, last_run_error FROM claim_due_projects($1)`, limit)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeClaimFailed, "failed to claim due projects", err)
	}

	defer rows.Close()

	var out []coretypes.Project

	for rows.Next() {
		var proj coretypes.Project

		if err := rows.Scan(&proj.ID, &proj.OwnerID, &proj.GeneratedSource, &proj.IntervalSeconds,
			&proj.Symbols, &proj.Status, &proj.LastRunStatus, &proj.LastRunError); err != nil {
			return nil, errors.Wrap(errors.ErrCodeClaimFailed, "failed to scan claimed project row", err)
		}

		out = append(out, proj)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeClaimFailed, "failed to iterate claimed project rows", err)
	}

	return out, nil
}

// SetLastRunStatus records a project's most recent terminal outcome.
func (p *Postgres) SetLastRunStatus(ctx context.Context, projectID string, status coretypes.RunStatus, runErr string) error {
	query, args, err := p.sq.
		Update(projectsTable).
		Set("last_run_status", string(status)).
		Set("last_run_error", runErr).
		Where(squirrel.Eq{"id": projectID}).
		ToSql()
	if err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to build last-run-status update", err)
	}

	if _, err := p.db.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrap(errors.ErrCodeStoreTransient, "failed to update project last run status", err)
	}

	return nil
}

// CreateRun inserts a new running-state audit row.
func (p *Postgres) CreateRun(ctx context.Context, run coretypes.Run) error {
	query, args, err := p.sq.
		Insert(runsTable).
		Columns("id", "project_id", "user_id", "mode", "status", "started_at").
		Values(run.ID, run.ProjectID, run.OwnerID, string(run.Mode), string(run.Status), run.StartedAt).
		ToSql()
	if err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to build run insert", err)
	}

	if _, err := p.db.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrap(errors.ErrCodeStoreTransient, "failed to insert run record", err)
	}

	return nil
}

// FinishRun transitions a run to a terminal status.
func (p *Postgres) FinishRun(ctx context.Context, runID string, status coretypes.RunStatus, summary, runErr string, finishedAt time.Time) error {
	query, args, err := p.sq.
		Update(runsTable).
		Set("status", string(status)).
		Set("finished_at", finishedAt).
		Set("summary", summary).
		Set("error", runErr).
		Where(squirrel.Eq{"id": runID}).
		ToSql()
	if err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to build run finish update", err)
	}

	if _, err := p.db.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrap(errors.ErrCodeStoreTransient, "failed to finalize run record", err)
	}

	return nil
}

// GetOpenPosition returns the currently open position for (projectID,
// symbol), or ok=false if none exists.
func (p *Postgres) GetOpenPosition(ctx context.Context, projectID, symbol string) (coretypes.Position, bool, error) {
	query, args, err := p.sq.
		Select("id", "owner_id", "side", "status", "qty", "entry_price", "entry_time", "exit_price", "exit_time", "realized_pnl").
		From(positionsTable).
		Where(squirrel.Eq{"project_id": projectID, "symbol": symbol, "status": string(coretypes.PositionStatusOpen)}).
		ToSql()
	if err != nil {
		return coretypes.Position{}, false, errors.Wrap(errors.ErrCodeQueryFailed, "failed to build open position query", err)
	}

	pos := coretypes.Position{ProjectID: projectID, Symbol: symbol}

	var side, status string

	row := p.db.QueryRowContext(ctx, query, args...)

	err = row.Scan(&pos.ID, &pos.OwnerID, &side, &status, &pos.Qty, &pos.EntryPrice, &pos.EntryTime, &pos.ExitPrice, &pos.ExitTime, &pos.RealizedPnL)
	if err == sql.ErrNoRows {
		return coretypes.Position{}, false, nil
	}

	if err != nil {
		return coretypes.Position{}, false, errors.Wrap(errors.ErrCodeStoreTransient, "failed to query open position", err)
	}

	pos.Side = coretypes.PositionSide(side)
	pos.Status = coretypes.PositionStatus(status)

	return pos, true, nil
}

// OpenPosition inserts a new open position row, surfacing a unique-index
// race on (project_id, symbol) WHERE status='open' as
// ErrCodeConstraintViolation, per the broker's documented contract.
func (p *Postgres) OpenPosition(ctx context.Context, pos coretypes.Position) error {
	query, args, err := p.sq.
		Insert(positionsTable).
		Columns("id", "project_id", "user_id", "symbol", "side", "status", "qty", "entry_price", "entry_time").
		Values(pos.ID, pos.ProjectID, pos.OwnerID, pos.Symbol, string(pos.Side), string(pos.Status), pos.Qty, pos.EntryPrice, pos.EntryTime).
		ToSql()
	if err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to build open-position insert", err)
	}

	if _, err := p.db.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrap(errors.ErrCodeConstraintViolation, "failed to open position, likely lost the open-position race", err)
	}

	return nil
}

// UpdatePosition writes back an existing position row.
func (p *Postgres) UpdatePosition(ctx context.Context, pos coretypes.Position) error {
	query, args, err := p.sq.
		Update(positionsTable).
		Set("status", string(pos.Status)).
		Set("qty", pos.Qty).
		Set("exit_price", pos.ExitPrice).
		Set("exit_time", pos.ExitTime).
		Set("realized_pnl", pos.RealizedPnL).
		Where(squirrel.Eq{"id": pos.ID}).
		ToSql()
	if err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to build position update", err)
	}

	if _, err := p.db.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrap(errors.ErrCodeStoreTransient, "failed to update position", err)
	}

	return nil
}

// InsertLog appends one strategy log line. Failures here must never abort
// the run that produced the line — callers are expected to log and
// swallow, per coretypes.LogRecord's documented contract.
func (p *Postgres) InsertLog(ctx context.Context, rec coretypes.LogRecord) error {
	var metaJSON []byte

	if rec.Meta != nil {
		encoded, err := json.Marshal(rec.Meta)
		if err != nil {
			return errors.Wrap(errors.ErrCodeLoggingFailed, "failed to marshal log meta", err)
		}

		metaJSON = encoded
	}

	query, args, err := p.sq.
		Insert(logsTable).
		Columns("id", "project_id", "user_id", "level", "message", "meta").
		Values(rec.ID, rec.ProjectID, rec.OwnerID, string(rec.Level), rec.Message, metaJSON).
		ToSql()
	if err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to build log insert", err)
	}

	if _, err := p.db.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrap(errors.ErrCodeLoggingFailed, "failed to insert log record", err)
	}

	return nil
}

// SymbolProvider implements klinemanager.SymbolProvider by reading the raw
// symbol set across every project whose status is one of activeStatuses —
// "projects whose status ∈ {live, running}" per spec.md §4.5 step 1.
// Deduping, upper-casing, and dropping empties is klinemanager's own
// normalizeSymbols job; this provider doesn't repeat it.
type SymbolProvider struct {
	pg             *Postgres
	activeStatuses []string
}

// NewSymbolProvider builds a klinemanager.SymbolProvider backed by pg.
func NewSymbolProvider(pg *Postgres, activeStatuses []string) *SymbolProvider {
	return &SymbolProvider{pg: pg, activeStatuses: activeStatuses}
}

func (s *SymbolProvider) DiscoverActiveSymbols(ctx context.Context) ([]string, error) {
	if len(s.activeStatuses) == 0 {
		return nil, nil
	}

	query, args, err := s.pg.sq.
		Select("DISTINCT unnest(symbols)").
		From(projectsTable).
		Where(squirrel.Eq{"status": s.activeStatuses}).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to build active symbol discovery query", err)
	}

	rows, err := s.pg.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStoreTransient, "failed to discover active symbols", err)
	}

	defer rows.Close()

	var out []string

	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, errors.Wrap(errors.ErrCodeStoreTransient, "failed to scan active symbol row", err)
		}

		out = append(out, symbol)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeStoreTransient, "failed to iterate active symbol rows", err)
	}

	return out, nil
}
