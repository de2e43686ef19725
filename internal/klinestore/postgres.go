package klinestore

import (
	"context"
	"database/sql"

	"github.com/Masterminds/squirrel"
	// registers the pgx stdlib driver under the name "pgx".
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/moznion/go-optional"

	"github.com/kline-runner/runner/internal/coretypes"
	"github.com/kline-runner/runner/internal/logger"
	"github.com/kline-runner/runner/pkg/errors"
)

const upsertChunkSize = 500

const klinesTable = "market_klines"

// Postgres is the Store implementation backed by a Postgres-shaped
// database, reached through pgx's database/sql stdlib adapter and queried
// with squirrel's Dollar placeholder builder.
type Postgres struct {
	db     *sql.DB
	sq     squirrel.StatementBuilderType
	logger *logger.Logger
}

// NewPostgres opens a connection pool against dsn and wraps it as a Store.
func NewPostgres(dsn string, log *logger.Logger) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStoreTransient, "failed to open database", err)
	}

	return &Postgres{
		db:     db,
		sq:     squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		logger: log.Named("klinestore"),
	}, nil
}

// Close releases the underlying connection pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}

func (p *Postgres) GetLatestOpenTime(ctx context.Context, key coretypes.SeriesKey) (optional.Option[int64], error) {
	query, args, err := p.sq.
		Select("MAX(open_time)").
		From(klinesTable).
		Where(squirrel.Eq{"exchange": key.Exchange, "symbol": key.Symbol, "interval": string(key.Interval)}).
		ToSql()
	if err != nil {
		return optional.None[int64](), errors.Wrap(errors.ErrCodeQueryFailed, "failed to build latest open time query", err)
	}

	var latest sql.NullInt64

	if err := p.db.QueryRowContext(ctx, query, args...).Scan(&latest); err != nil {
		return optional.None[int64](), errors.Wrap(errors.ErrCodeStoreTransient, "failed to query latest open time", err)
	}

	if !latest.Valid {
		return optional.None[int64](), nil
	}

	return optional.Some(latest.Int64), nil
}

func (p *Postgres) UpsertMany(ctx context.Context, candles []coretypes.Candle) error {
	for start := 0; start < len(candles); start += upsertChunkSize {
		end := start + upsertChunkSize
		if end > len(candles) {
			end = len(candles)
		}

		if err := p.upsertChunk(ctx, candles[start:end]); err != nil {
			return err
		}
	}

	return nil
}

func (p *Postgres) upsertChunk(ctx context.Context, chunk []coretypes.Candle) error {
	if len(chunk) == 0 {
		return nil
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(errors.ErrCodeStoreTransient, "failed to begin upsert transaction", err)
	}

	defer tx.Rollback() //nolint:errcheck // rollback after a committed tx is a no-op

	insert := p.sq.
		Insert(klinesTable).
		Columns("exchange", "symbol", "interval", "open_time", "open", "high", "low", "close", "volume", "close_time").
		Suffix(`ON CONFLICT (exchange, symbol, interval, open_time) DO UPDATE SET
			open = EXCLUDED.open, high = EXCLUDED.high, low = EXCLUDED.low,
			close = EXCLUDED.close, volume = EXCLUDED.volume, close_time = EXCLUDED.close_time`)

	for _, c := range chunk {
		insert = insert.Values(c.Exchange, c.Symbol, string(c.Interval), c.OpenTime, c.Open, c.High, c.Low, c.Close, c.Volume, c.CloseTime)
	}

	query, args, err := insert.ToSql()
	if err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to build upsert query", err)
	}

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrap(errors.ErrCodeConstraintViolation, "failed to upsert candles", err)
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(errors.ErrCodeStoreTransient, "failed to commit upsert transaction", err)
	}

	return nil
}

func (p *Postgres) TrimOld(ctx context.Context, key coretypes.SeriesKey, minOpenTime int64) error {
	query, args, err := p.sq.
		Delete(klinesTable).
		Where(squirrel.Eq{"exchange": key.Exchange, "symbol": key.Symbol, "interval": string(key.Interval)}).
		Where(squirrel.Lt{"open_time": minOpenTime}).
		ToSql()
	if err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to build trim query", err)
	}

	if _, err := p.db.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrap(errors.ErrCodeStoreTransient, "failed to trim old candles", err)
	}

	return nil
}

func (p *Postgres) GetRecent(ctx context.Context, key coretypes.SeriesKey, limit int) ([]coretypes.Candle, error) {
	query, args, err := p.sq.
		Select("open_time", "open", "high", "low", "close", "volume", "close_time").
		From(klinesTable).
		Where(squirrel.Eq{"exchange": key.Exchange, "symbol": key.Symbol, "interval": string(key.Interval)}).
		OrderBy("open_time DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to build recent candles query", err)
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStoreTransient, "failed to query recent candles", err)
	}

	defer rows.Close()

	var reversed []coretypes.Candle

	for rows.Next() {
		c := coretypes.Candle{Exchange: key.Exchange, Symbol: key.Symbol, Interval: key.Interval}
		if err := rows.Scan(&c.OpenTime, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume, &c.CloseTime); err != nil {
			return nil, errors.Wrap(errors.ErrCodeStoreTransient, "failed to scan candle row", err)
		}

		reversed = append(reversed, c)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeStoreTransient, "failed to iterate candle rows", err)
	}

	out := make([]coretypes.Candle, len(reversed))
	for i, c := range reversed {
		out[len(reversed)-1-i] = c
	}

	return out, nil
}
