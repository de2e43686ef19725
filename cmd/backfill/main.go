// Command backfill force-bootstraps one symbol's candle history into the
// kline store, outside the manager's regular poll loop. Useful for seeding
// a new symbol or repairing a gap without waiting for the next tick.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"

	"github.com/kline-runner/runner/internal/coretypes"
	"github.com/kline-runner/runner/internal/klinemanager"
	"github.com/kline-runner/runner/internal/klinestore"
	"github.com/kline-runner/runner/internal/logger"
	"github.com/kline-runner/runner/internal/venue"
)

func backfillAction(ctx context.Context, cmd *cli.Command) error {
	symbol := cmd.String("symbol")
	exchange := cmd.String("exchange")
	intervalFlag := cmd.String("interval")
	databaseURL := cmd.String("database-url")
	polygonAPIKey := cmd.String("polygon-api-key")
	start := cmd.Timestamp("start")
	end := cmd.Timestamp("end")

	interval := coretypes.Interval(intervalFlag)
	if !interval.Valid() {
		return fmt.Errorf("interval %q is not a recognized candle interval", intervalFlag)
	}

	log, err := logger.NewLogger()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}

	defer func() { _ = log.Sync() }()

	store, err := klinestore.NewPostgres(databaseURL, log)
	if err != nil {
		return fmt.Errorf("failed to open kline store: %w", err)
	}

	defer store.Close()

	adapter, err := buildAdapter(exchange, polygonAPIKey)
	if err != nil {
		return err
	}

	startMs := start.UnixMilli()
	endMs := end.UnixMilli()

	totalIntervals := int((endMs - startMs) / interval.Milliseconds())
	bar := progressbar.New(totalIntervals)

	cursor := startMs
	intervalMs := interval.Milliseconds()

	var totalUpserted int

	for cursor < endMs {
		pageEnd := cursor + intervalMs*int64(venue.MaxLimit)
		if pageEnd > endMs {
			pageEnd = endMs
		}

		candles, err := klinemanager.FetchPaged(ctx, adapter, exchange, symbol, interval, cursor, pageEnd)
		if err != nil {
			return fmt.Errorf("failed to fetch candles for %s: %w", symbol, err)
		}

		if len(candles) > 0 {
			if err := store.UpsertMany(ctx, candles); err != nil {
				return fmt.Errorf("failed to upsert candles for %s: %w", symbol, err)
			}

			totalUpserted += len(candles)
		}

		advanced := int((pageEnd - cursor) / intervalMs)
		_ = bar.Add(advanced)

		cursor = pageEnd
	}

	fmt.Printf("\nupserted %d candles for %s %s %s\n", totalUpserted, exchange, symbol, interval)

	return nil
}

func buildAdapter(exchange, polygonAPIKey string) (venue.Adapter, error) {
	switch exchange {
	case "binance":
		return venue.NewBinance(), nil
	case "polygon":
		if polygonAPIKey == "" {
			return nil, fmt.Errorf("--polygon-api-key is required when --exchange=polygon")
		}

		return venue.NewPolygon(polygonAPIKey), nil
	default:
		return nil, fmt.Errorf("exchange %q is not one of binance, polygon", exchange)
	}
}

func main() {
	cmd := &cli.Command{
		Name:  "backfill",
		Usage: "Force-bootstrap one symbol's candle history into the kline store",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "symbol",
				Aliases:  []string{"s"},
				Usage:    "Symbol to backfill, e.g. BTCUSDT",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "exchange",
				Usage: "Venue to fetch from (binance, polygon)",
				Value: "binance",
			},
			&cli.StringFlag{
				Name:  "interval",
				Usage: "Candle interval, e.g. 1m",
				Value: string(coretypes.Interval1m),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Postgres DSN for the kline store",
				Sources:  cli.EnvVars("DATABASE_URL"),
				Required: true,
			},
			&cli.StringFlag{
				Name:    "polygon-api-key",
				Usage:   "Polygon API key, required when --exchange=polygon",
				Sources: cli.EnvVars("POLYGON_API_KEY"),
			},
			&cli.TimestampFlag{
				Name:     "start",
				Usage:    "Backfill start date, `YYYY-MM-DD`",
				Required: true,
				Config: cli.TimestampConfig{
					Layouts: []string{"2006-01-02"},
				},
			},
			&cli.TimestampFlag{
				Name:  "end",
				Usage: "Backfill end date, `YYYY-MM-DD`. Defaults to today.",
				Value: time.Now(),
				Config: cli.TimestampConfig{
					Layouts: []string{"2006-01-02"},
				},
			},
		},
		Action: backfillAction,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
