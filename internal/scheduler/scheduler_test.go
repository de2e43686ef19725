package scheduler

import (
	"context"
	"encoding/base64"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/kline-runner/runner/internal/coretypes"
	"github.com/kline-runner/runner/internal/logger"
	"github.com/kline-runner/runner/internal/metrics"
	"github.com/kline-runner/runner/internal/series"
)

type fakeCandleSource struct {
	candles []coretypes.Candle
	err     error
}

func (f *fakeCandleSource) GetRecent(ctx context.Context, key coretypes.SeriesKey, limit int) ([]coretypes.Candle, error) {
	if f.err != nil {
		return nil, f.err
	}

	return f.candles, nil
}

type fakeProjectStore struct {
	mu      sync.Mutex
	due     []coretypes.Project
	claimed int
	lastErr map[string]string
	lastSt  map[string]coretypes.RunStatus
}

func newFakeProjectStore(due ...coretypes.Project) *fakeProjectStore {
	return &fakeProjectStore{due: due, lastErr: map[string]string{}, lastSt: map[string]coretypes.RunStatus{}}
}

func (f *fakeProjectStore) ClaimDue(ctx context.Context, limit int) ([]coretypes.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.claimed > 0 {
		return nil, nil
	}

	f.claimed++

	return f.due, nil
}

func (f *fakeProjectStore) SetLastRunStatus(ctx context.Context, projectID string, status coretypes.RunStatus, runErr string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.lastSt[projectID] = status
	f.lastErr[projectID] = runErr

	return nil
}

type fakeRunStore struct {
	mu       sync.Mutex
	created  []coretypes.Run
	finished map[string]coretypes.RunStatus
}

func newFakeRunStore() *fakeRunStore {
	return &fakeRunStore{finished: map[string]coretypes.RunStatus{}}
}

func (f *fakeRunStore) CreateRun(ctx context.Context, run coretypes.Run) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.created = append(f.created, run)

	return nil
}

func (f *fakeRunStore) FinishRun(ctx context.Context, runID string, status coretypes.RunStatus, summary, runErr string, finishedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.finished[runID] = status

	return nil
}

type fakePositions struct{}

func (fakePositions) GetOpenPosition(ctx context.Context, projectID, symbol string) (coretypes.Position, bool, error) {
	return coretypes.Position{}, false, nil
}
func (fakePositions) OpenPosition(ctx context.Context, pos coretypes.Position) error   { return nil }
func (fakePositions) UpdatePosition(ctx context.Context, pos coretypes.Position) error { return nil }

type fakeLogs struct{}

func (fakeLogs) InsertLog(ctx context.Context, rec coretypes.LogRecord) error { return nil }

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.NewLogger()
	if err != nil {
		t.Fatalf("logger: %v", err)
	}

	return log
}

func candle(openTime int64, closePrice float64) coretypes.Candle {
	return coretypes.Candle{
		Exchange: "binance", Symbol: "BTCUSDT", Interval: coretypes.Interval1m,
		OpenTime: openTime, Open: closePrice, High: closePrice + 1, Low: closePrice - 1,
		Close: closePrice, Volume: 10, CloseTime: openTime + 59999,
	}
}

type SchedulerTestSuite struct {
	suite.Suite
}

func TestSchedulerSuite(t *testing.T) {
	suite.Run(t, new(SchedulerTestSuite))
}

func (s *SchedulerTestSuite) TestExtractTimeframesDefaultsTo1mWhenNoneFound() {
	tfs := extractTimeframes("no markers here at all")
	s.Equal([]coretypes.Interval{coretypes.Interval1m}, tfs)
}

func (s *SchedulerTestSuite) TestExtractTimeframesFindsLiteralsAndDedupes() {
	src := `run(tf: "5m"); again(tf: "5m"); also(tf: "1h"); bogus(tf: "not-an-interval")`
	tfs := extractTimeframes(src)
	s.Equal([]coretypes.Interval{coretypes.Interval5m, coretypes.Interval1h}, tfs)
}

func (s *SchedulerTestSuite) TestProcessProjectSkipsOnEmptySource() {
	project := coretypes.Project{ID: "p1", OwnerID: "o1", Symbols: []string{"BTCUSDT"}, GeneratedSource: ""}

	projects := newFakeProjectStore(project)
	runs := newFakeRunStore()
	cache := series.New(&fakeCandleSource{}, 50)

	sch := New(DefaultConfig(), projects, runs, fakePositions{}, fakeLogs{}, cache, metrics.NewNoop(), testLogger(s.T()))

	sch.processProject(context.Background(), project)

	s.Require().Len(runs.created, 1)
	s.Equal(coretypes.RunStatusSkipped, runs.finished[runs.created[0].ID])
	s.Equal(coretypes.RunStatusSkipped, projects.lastSt["p1"])
}

func (s *SchedulerTestSuite) TestProcessProjectErrorsOnMalformedSource() {
	project := coretypes.Project{ID: "p2", OwnerID: "o1", Symbols: []string{"BTCUSDT"}, GeneratedSource: "not-valid-base64!!"}

	projects := newFakeProjectStore(project)
	runs := newFakeRunStore()
	cache := series.New(&fakeCandleSource{}, 50)

	sch := New(DefaultConfig(), projects, runs, fakePositions{}, fakeLogs{}, cache, metrics.NewNoop(), testLogger(s.T()))

	sch.processProject(context.Background(), project)

	s.Equal(coretypes.RunStatusError, runs.finished[runs.created[0].ID])
}

func (s *SchedulerTestSuite) TestProcessProjectSkipsWhenPreloadFailsForEverySymbol() {
	wasm := base64.StdEncoding.EncodeToString([]byte("(module)"))
	project := coretypes.Project{ID: "p3", OwnerID: "o1", Symbols: []string{"BTCUSDT"}, GeneratedSource: wasm}

	projects := newFakeProjectStore(project)
	runs := newFakeRunStore()
	cache := series.New(&fakeCandleSource{err: assertionError("boom")}, 50)

	sch := New(DefaultConfig(), projects, runs, fakePositions{}, fakeLogs{}, cache, metrics.NewNoop(), testLogger(s.T()))

	sch.processProject(context.Background(), project)

	s.Equal(coretypes.RunStatusSkipped, runs.finished[runs.created[0].ID])
}

func (s *SchedulerTestSuite) TestRunTickClaimsOnceAndStops() {
	project := coretypes.Project{ID: "p4", OwnerID: "o1", IntervalSeconds: 60, Symbols: nil, GeneratedSource: ""}

	projects := newFakeProjectStore(project)
	runs := newFakeRunStore()
	cache := series.New(&fakeCandleSource{candles: []coretypes.Candle{candle(0, 10)}}, 50)

	cfg := DefaultConfig()
	cfg.TickEvery = 10 * time.Millisecond

	sch := New(cfg, projects, runs, fakePositions{}, fakeLogs{}, cache, metrics.NewNoop(), testLogger(s.T()))

	done := make(chan struct{})

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
		defer cancel()
		sch.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		s.T().Fatal("scheduler did not stop within the context deadline")
	}

	s.Len(runs.created, 1)
}

type assertionError string

func (e assertionError) Error() string { return string(e) }
