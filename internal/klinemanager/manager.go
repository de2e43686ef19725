// Package klinemanager runs the background ingestion loop that keeps the
// durable kline store consistent with an upstream venue for a dynamically
// discovered set of active symbols. It does not write to the in-memory
// series cache; new candles reach the cache only through a later Preload
// from the store.
package klinemanager

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/moznion/go-optional"
	"go.uber.org/zap"

	"github.com/kline-runner/runner/internal/coretypes"
	"github.com/kline-runner/runner/internal/klinestore"
	"github.com/kline-runner/runner/internal/logger"
	"github.com/kline-runner/runner/internal/metrics"
	"github.com/kline-runner/runner/internal/tracing"
	"github.com/kline-runner/runner/internal/venue"
)

// SymbolProvider discovers the currently active symbol set, typically
// "projects whose status is in {live, running}".
type SymbolProvider interface {
	DiscoverActiveSymbols(ctx context.Context) ([]string, error)
}

// Config bounds one Manager's behavior.
type Config struct {
	Exchange         string
	Intervals        []coretypes.Interval
	HistoryDays      int
	PollEvery        time.Duration
	MaxConcurrency   int
	InterSymbolDelay time.Duration
	InterPageDelay   time.Duration
}

// DefaultConfig returns the spec's recommended defaults, overridable
// per-field by the caller.
func DefaultConfig() Config {
	return Config{
		Exchange:         "binance",
		Intervals:        []coretypes.Interval{coretypes.Interval1m},
		HistoryDays:      30,
		PollEvery:        60 * time.Second,
		MaxConcurrency:   3,
		InterSymbolDelay: 150 * time.Millisecond,
		InterPageDelay:   120 * time.Millisecond,
	}
}

// Manager runs the discover -> fan-out -> sync -> trim loop described by
// the ingestion design.
type Manager struct {
	cfg      Config
	store    klinestore.Store
	adapter  venue.Adapter
	provider SymbolProvider
	trim     TrimCoordinator
	metrics  *metrics.Registry
	log      *logger.Logger

	inFlight sync.Map // symbol -> struct{}

	stopMu sync.Mutex
	stop   bool
}

// New builds a Manager. metricsReg and trim may be nil; defaults
// (metrics.NewNoop, a single-process InMemoryTrimCoordinator) are
// substituted.
func New(cfg Config, store klinestore.Store, adapter venue.Adapter, provider SymbolProvider, trim TrimCoordinator, metricsReg *metrics.Registry, log *logger.Logger) *Manager {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 1
	}

	if len(cfg.Intervals) == 0 {
		cfg.Intervals = []coretypes.Interval{coretypes.Interval1m}
	}

	if trim == nil {
		trim = NewInMemoryTrimCoordinator()
	}

	if metricsReg == nil {
		metricsReg = metrics.NewNoop()
	}

	return &Manager{
		cfg:      cfg,
		store:    store,
		adapter:  adapter,
		provider: provider,
		trim:     trim,
		metrics:  metricsReg,
		log:      log.Named("klinemanager"),
	}
}

// Run blocks, ticking every cfg.PollEvery, until ctx is cancelled or Stop
// is called. Per-tick errors are logged and never abort the loop.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.PollEvery)
	defer ticker.Stop()

	m.runTick(ctx)

	for {
		if m.stopped() {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.stopped() {
				return
			}

			m.runTick(ctx)
		}
	}
}

func (m *Manager) runTick(ctx context.Context) {
	if err := m.tick(ctx); err != nil {
		m.log.Error("kline ingestion tick failed", zap.Error(err))
	}

	m.metrics.KlineTicksTotal.Inc()
}

// Stop cooperatively halts the loop; it takes effect between ticks or
// between symbol pops, never mid-fetch.
func (m *Manager) Stop() {
	m.stopMu.Lock()
	defer m.stopMu.Unlock()

	m.stop = true
}

func (m *Manager) stopped() bool {
	m.stopMu.Lock()
	defer m.stopMu.Unlock()

	return m.stop
}

func (m *Manager) tick(ctx context.Context) error {
	symbols, err := m.provider.DiscoverActiveSymbols(ctx)
	if err != nil {
		return err
	}

	symbols = normalizeSymbols(symbols)

	m.fanOut(ctx, symbols)

	won, err := m.trim.ShouldTrim(ctx)
	if err != nil {
		m.log.Warn("trim coordinator check failed", zap.Error(err))
	} else if won {
		m.trimAll(ctx, symbols)
	}

	return nil
}

// normalizeSymbols dedupes, upper-cases, and drops empty entries.
func normalizeSymbols(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))

	out := make([]string, 0, len(symbols))

	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}

		if _, ok := seen[s]; ok {
			continue
		}

		seen[s] = struct{}{}
		out = append(out, s)
	}

	return out
}

func (m *Manager) fanOut(ctx context.Context, symbols []string) {
	work := make(chan string)

	var wg sync.WaitGroup

	for i := 0; i < m.cfg.MaxConcurrency; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for symbol := range work {
				if m.stopped() {
					return
				}

				m.syncSymbol(ctx, symbol)
				time.Sleep(m.cfg.InterSymbolDelay)
			}
		}()
	}

	for _, symbol := range symbols {
		if m.stopped() {
			break
		}

		work <- symbol
	}

	close(work)
	wg.Wait()
}

func (m *Manager) syncSymbol(ctx context.Context, symbol string) {
	if _, alreadyInFlight := m.inFlight.LoadOrStore(symbol, struct{}{}); alreadyInFlight {
		return
	}

	defer m.inFlight.Delete(symbol)

	for _, interval := range m.cfg.Intervals {
		if err := m.syncOne(ctx, symbol, interval); err != nil {
			m.metrics.KlineFetchErrorsTotal.Inc()
			m.log.Warn("symbol sync failed", zap.Error(err))
		}
	}
}

func (m *Manager) syncOne(ctx context.Context, symbol string, interval coretypes.Interval) error {
	span, ctx, finish := tracing.StartSpan(ctx, "klinemanager.syncOne")
	defer finish()

	span.SetTag("exchange", m.cfg.Exchange)
	span.SetTag("symbol", symbol)
	span.SetTag("interval", string(interval))

	key := coretypes.SeriesKey{Exchange: m.cfg.Exchange, Symbol: symbol, Interval: interval}

	now := time.Now().UnixMilli()
	intervalMs := interval.Milliseconds()

	latest, err := m.store.GetLatestOpenTime(ctx, key)
	if err != nil {
		return err
	}

	var startTime int64

	if latest.IsNone() {
		startTime = now - int64(m.cfg.HistoryDays)*24*60*60*1000
	} else {
		startTime = optionalUnwrap(latest) + intervalMs
		if startTime > now-intervalMs {
			return nil
		}
	}

	candles, err := m.fetchPagedPaced(ctx, symbol, interval, startTime, now)
	if err != nil {
		return err
	}

	if len(candles) == 0 {
		return nil
	}

	candles = m.dropInvalidCandles(candles)
	if len(candles) == 0 {
		return nil
	}

	if err := m.store.UpsertMany(ctx, candles); err != nil {
		return err
	}

	m.metrics.KlineUpsertsTotal.Add(float64(len(candles)))

	return nil
}

// dropInvalidCandles filters out candles that fail Validate before they
// reach the store — a venue returning one malformed bar must not block the
// rest of the page.
func (m *Manager) dropInvalidCandles(candles []coretypes.Candle) []coretypes.Candle {
	kept := candles[:0]

	for _, c := range candles {
		if err := c.Validate(); err != nil {
			m.metrics.ValidationDroppedTotal.WithLabelValues("candle").Inc()
			m.log.Warn("dropping invalid candle from venue response", zap.Error(err), zap.String("symbol", c.Symbol))

			continue
		}

		kept = append(kept, c)
	}

	return kept
}

// fetchPagedPaced runs fetchPaged with the configured inter-page pacing
// delay applied between calls to the adapter, to guard against upstream
// rate limits.
func (m *Manager) fetchPagedPaced(ctx context.Context, symbol string, interval coretypes.Interval, startTime, endTime int64) ([]coretypes.Candle, error) {
	pacedAdapter := pacedAdapter{inner: m.adapter, delay: m.cfg.InterPageDelay}

	return FetchPaged(ctx, pacedAdapter, m.cfg.Exchange, symbol, interval, startTime, endTime)
}

// pacedAdapter sleeps InterPageDelay before every FetchCandles call so
// fetchPaged's page loop never hammers the venue back-to-back.
type pacedAdapter struct {
	inner venue.Adapter
	delay time.Duration
}

func (p pacedAdapter) FetchCandles(ctx context.Context, exchange string, params venue.FetchParams) ([]coretypes.Candle, error) {
	if p.delay > 0 {
		time.Sleep(p.delay)
	}

	return p.inner.FetchCandles(ctx, exchange, params)
}

func (m *Manager) trimAll(ctx context.Context, symbols []string) {
	cutoff := time.Now().UnixMilli() - int64(m.cfg.HistoryDays)*24*60*60*1000

	for _, symbol := range symbols {
		for _, interval := range m.cfg.Intervals {
			key := coretypes.SeriesKey{Exchange: m.cfg.Exchange, Symbol: symbol, Interval: interval}
			if err := m.store.TrimOld(ctx, key, cutoff); err != nil {
				m.log.Warn("trim failed", zap.Error(err))
				continue
			}

			m.metrics.KlineTrimsTotal.Inc()
		}
	}
}

func optionalUnwrap(o optional.Option[int64]) int64 {
	return o.Unwrap()
}
