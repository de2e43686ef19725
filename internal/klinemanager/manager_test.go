package klinemanager

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/stretchr/testify/suite"

	"github.com/kline-runner/runner/internal/coretypes"
	"github.com/kline-runner/runner/internal/logger"
	"github.com/kline-runner/runner/internal/venue"
)

type fakeProvider struct {
	symbols []string
	err     error
}

func (f *fakeProvider) DiscoverActiveSymbols(ctx context.Context) ([]string, error) {
	return f.symbols, f.err
}

type fakeStore struct {
	mu        sync.Mutex
	latest    map[string]int64
	hasLatest map[string]bool
	upserted  []coretypes.Candle
	trimmed   []coretypes.SeriesKey
	upsertErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{latest: map[string]int64{}, hasLatest: map[string]bool{}}
}

func (f *fakeStore) key(k coretypes.SeriesKey) string {
	return k.Exchange + "|" + k.Symbol + "|" + string(k.Interval)
}

func (f *fakeStore) GetLatestOpenTime(ctx context.Context, key coretypes.SeriesKey) (optional.Option[int64], error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	k := f.key(key)
	if !f.hasLatest[k] {
		return optional.None[int64](), nil
	}

	return optional.Some(f.latest[k]), nil
}

func (f *fakeStore) UpsertMany(ctx context.Context, candles []coretypes.Candle) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.upserted = append(f.upserted, candles...)

	return nil
}

func (f *fakeStore) TrimOld(ctx context.Context, key coretypes.SeriesKey, minOpenTime int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.trimmed = append(f.trimmed, key)

	return nil
}

func (f *fakeStore) GetRecent(ctx context.Context, key coretypes.SeriesKey, limit int) ([]coretypes.Candle, error) {
	return nil, nil
}

type fakeAdapter struct {
	mu    sync.Mutex
	pages [][]coretypes.Candle
	calls int
}

func (f *fakeAdapter) FetchCandles(ctx context.Context, exchange string, params venue.FetchParams) ([]coretypes.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.calls >= len(f.pages) {
		return nil, nil
	}

	page := f.pages[f.calls]
	f.calls++

	return page, nil
}

func testLogger() *logger.Logger {
	log, err := logger.NewLogger()
	if err != nil {
		panic(err)
	}

	return log
}

type ManagerTestSuite struct {
	suite.Suite
}

func TestManagerSuite(t *testing.T) {
	suite.Run(t, new(ManagerTestSuite))
}

func (s *ManagerTestSuite) TestNormalizeSymbolsDedupesAndUppercases() {
	out := normalizeSymbols([]string{"btcusdt", " ETHUSDT ", "BTCUSDT", "", "  "})
	s.Equal([]string{"BTCUSDT", "ETHUSDT"}, out)
}

func (s *ManagerTestSuite) TestSyncOneBootstrapsFromHistoryWindowWhenNoLatest() {
	store := newFakeStore()
	adapter := &fakeAdapter{pages: [][]coretypes.Candle{
		{{Exchange: "binance", Symbol: "BTCUSDT", Interval: coretypes.Interval1m, OpenTime: 1000, CloseTime: 1999}},
	}}

	cfg := DefaultConfig()
	cfg.HistoryDays = 1
	cfg.InterPageDelay = 0

	m := New(cfg, store, adapter, &fakeProvider{}, NewInMemoryTrimCoordinator(), nil, testLogger())

	err := m.syncOne(context.Background(), "BTCUSDT", coretypes.Interval1m)
	s.NoError(err)
	s.Len(store.upserted, 1)
}

func (s *ManagerTestSuite) TestSyncOneSkipsWhenAlreadyCaughtUp() {
	store := newFakeStore()
	now := time.Now().UnixMilli()

	key := coretypes.SeriesKey{Exchange: "binance", Symbol: "BTCUSDT", Interval: coretypes.Interval1m}
	store.hasLatest[store.key(key)] = true
	store.latest[store.key(key)] = now

	adapter := &fakeAdapter{}

	cfg := DefaultConfig()
	cfg.InterPageDelay = 0

	m := New(cfg, store, adapter, &fakeProvider{}, NewInMemoryTrimCoordinator(), nil, testLogger())

	err := m.syncOne(context.Background(), "BTCUSDT", coretypes.Interval1m)
	s.NoError(err)
	s.Equal(0, adapter.calls)
	s.Empty(store.upserted)
}

func (s *ManagerTestSuite) TestTickFansOutAcrossSymbols() {
	store := newFakeStore()
	adapter := &fakeAdapter{pages: [][]coretypes.Candle{
		{{Exchange: "binance", Symbol: "BTCUSDT", Interval: coretypes.Interval1m, OpenTime: 1000, CloseTime: 1999}},
		{{Exchange: "binance", Symbol: "ETHUSDT", Interval: coretypes.Interval1m, OpenTime: 1000, CloseTime: 1999}},
	}}

	cfg := DefaultConfig()
	cfg.HistoryDays = 1
	cfg.InterSymbolDelay = 0
	cfg.InterPageDelay = 0
	cfg.MaxConcurrency = 2

	provider := &fakeProvider{symbols: []string{"btcusdt", "ethusdt"}}

	m := New(cfg, store, adapter, provider, NewInMemoryTrimCoordinator(), nil, testLogger())

	err := m.tick(context.Background())
	s.NoError(err)
	s.Len(store.upserted, 2)
}

func (s *ManagerTestSuite) TestTickTrimsOnlyWhenGateWon() {
	store := newFakeStore()
	adapter := &fakeAdapter{}
	provider := &fakeProvider{symbols: []string{"BTCUSDT"}}

	cfg := DefaultConfig()
	cfg.InterSymbolDelay = 0
	cfg.InterPageDelay = 0

	key := coretypes.SeriesKey{Exchange: "binance", Symbol: "BTCUSDT", Interval: coretypes.Interval1m}
	store.hasLatest[store.key(key)] = true
	store.latest[store.key(key)] = time.Now().UnixMilli()

	m := New(cfg, store, adapter, provider, NewInMemoryTrimCoordinator(), nil, testLogger())

	s.NoError(m.tick(context.Background()))
	s.Len(store.trimmed, 1)

	s.NoError(m.tick(context.Background()))
	s.Len(store.trimmed, 1)
}

func (s *ManagerTestSuite) TestStopHaltsTheRunLoop() {
	store := newFakeStore()
	adapter := &fakeAdapter{}
	provider := &fakeProvider{}

	cfg := DefaultConfig()
	cfg.PollEvery = 10 * time.Millisecond

	m := New(cfg, store, adapter, provider, NewInMemoryTrimCoordinator(), nil, testLogger())

	done := make(chan struct{})

	go func() {
		m.Run(context.Background())
		close(done)
	}()

	time.Sleep(25 * time.Millisecond)
	m.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		s.Fail("Run did not return after Stop")
	}
}
