// Command runner starts the kline manager, the strategy scheduler, and the
// admin HTTP server as three independent loops sharing one metrics
// registry and one tracer. The series cache is handed to the scheduler
// only; the kline manager writes the durable store and does not update it.
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kline-runner/runner/internal/admin"
	"github.com/kline-runner/runner/internal/config"
	"github.com/kline-runner/runner/internal/klinemanager"
	"github.com/kline-runner/runner/internal/klinestore"
	"github.com/kline-runner/runner/internal/logger"
	"github.com/kline-runner/runner/internal/metrics"
	"github.com/kline-runner/runner/internal/projectstore"
	"github.com/kline-runner/runner/internal/scheduler"
	"github.com/kline-runner/runner/internal/series"
	"github.com/kline-runner/runner/internal/tracing"
	"github.com/kline-runner/runner/internal/venue"
)

func main() {
	configFile := flag.String("config", "", "optional YAML override file")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log, err := logger.NewLogger()
	if err != nil {
		stdFatal(err)
	}

	defer func() { _ = log.Sync() }()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatal("failed to load configuration", zap.Error(err))
	}

	_, closeTracer, err := tracing.Init(tracing.Config{
		ServiceName: "kline-runner",
		Host:        cfg.JaegerAgentHost,
		Port:        cfg.JaegerAgentPort,
	})
	if err != nil {
		log.Fatal("failed to initialize tracer", zap.Error(err))
	}

	defer closeTracer()

	metricsReg := metrics.NewRegistry(prometheus.NewRegistry())

	klineStore, err := klinestore.NewPostgres(cfg.DatabaseURL, log)
	if err != nil {
		log.Fatal("failed to open kline store", zap.Error(err))
	}

	defer klineStore.Close()

	pg, err := projectstore.NewPostgres(cfg.DatabaseURL, log)
	if err != nil {
		log.Fatal("failed to open project store", zap.Error(err))
	}

	defer pg.Close()

	adapter, err := buildVenueAdapter(cfg)
	if err != nil {
		log.Fatal("failed to build venue adapter", zap.Error(err))
	}

	symbolProvider := projectstore.NewSymbolProvider(pg, cfg.ActiveProjectStatuses)

	trim := buildTrimCoordinator(ctx, cfg, log)

	managerCfg := klinemanager.DefaultConfig()
	managerCfg.Exchange = cfg.Venue
	managerCfg.HistoryDays = cfg.KlineRetentionDays
	managerCfg.PollEvery = cfg.KlineRefreshEvery
	managerCfg.MaxConcurrency = cfg.KlineMaxConcurrency

	manager := klinemanager.New(managerCfg, klineStore, adapter, symbolProvider, trim, metricsReg, log)

	cache := series.New(klineStore, cfg.IndicatorMaxCandles)

	schedulerCfg := scheduler.DefaultConfig()
	schedulerCfg.Exchange = cfg.Venue
	schedulerCfg.ClaimLimit = cfg.SchedulerClaimLimit
	schedulerCfg.SandboxTimeout = cfg.SandboxTimeout
	schedulerCfg.EngineVersion = cfg.EngineVersion
	schedulerCfg.IndicatorCandles = cfg.IndicatorMaxCandles

	sched := scheduler.New(schedulerCfg, pg, pg, pg, pg, cache, metricsReg, log)

	adminServer := admin.New(cfg.AdminAddr, metricsReg, log)

	go manager.Run(ctx)
	go sched.Run(ctx)

	go func() {
		if err := adminServer.ListenAndServe(); err != nil {
			log.Warn("admin server exited with an error", zap.Error(err))
		}
	}()

	<-ctx.Done()

	log.Info("shutting down")

	manager.Stop()
	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := adminServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("admin server shutdown did not complete cleanly", zap.Error(err))
	}
}

func buildVenueAdapter(cfg *config.Config) (venue.Adapter, error) {
	if cfg.Venue == "polygon" {
		return venue.NewPolygon(cfg.PolygonAPIKey), nil
	}

	return venue.NewBinance(), nil
}

func buildTrimCoordinator(ctx context.Context, cfg *config.Config, log *logger.Logger) klinemanager.TrimCoordinator {
	if cfg.RedisURL == "" {
		return klinemanager.NewInMemoryTrimCoordinator()
	}

	client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisURL})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn("redis trim coordinator unreachable, falling back to in-process gating", zap.Error(err))
		return klinemanager.NewInMemoryTrimCoordinator()
	}

	return klinemanager.NewRedisTrimCoordinator(client)
}

func stdFatal(err error) {
	log.Fatalf("failed to build logger: %v", err)
}
