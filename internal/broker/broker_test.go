package broker

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/kline-runner/runner/internal/coretypes"
	"github.com/kline-runner/runner/internal/logger"
	"github.com/kline-runner/runner/internal/metrics"
	"github.com/kline-runner/runner/pkg/errors"
)

type fakePositions struct {
	open      map[string]coretypes.Position
	openErr   error
	insertErr error
	updateErr error
}

func newFakePositions() *fakePositions {
	return &fakePositions{open: map[string]coretypes.Position{}}
}

func (f *fakePositions) key(projectID, symbol string) string {
	return projectID + "|" + symbol
}

func (f *fakePositions) GetOpenPosition(ctx context.Context, projectID, symbol string) (coretypes.Position, bool, error) {
	if f.openErr != nil {
		return coretypes.Position{}, false, f.openErr
	}

	pos, ok := f.open[f.key(projectID, symbol)]

	return pos, ok, nil
}

func (f *fakePositions) OpenPosition(ctx context.Context, pos coretypes.Position) error {
	if f.insertErr != nil {
		return f.insertErr
	}

	key := f.key(pos.ProjectID, pos.Symbol)
	if _, exists := f.open[key]; exists {
		return errors.New(errors.ErrCodeConstraintViolation, "already open")
	}

	f.open[key] = pos

	return nil
}

func (f *fakePositions) UpdatePosition(ctx context.Context, pos coretypes.Position) error {
	if f.updateErr != nil {
		return f.updateErr
	}

	key := f.key(pos.ProjectID, pos.Symbol)

	if pos.Status == coretypes.PositionStatusClosed {
		delete(f.open, key)
	} else {
		f.open[key] = pos
	}

	return nil
}

type fakeLogs struct {
	records []coretypes.LogRecord
	err     error
}

func (f *fakeLogs) InsertLog(ctx context.Context, rec coretypes.LogRecord) error {
	if f.err != nil {
		return f.err
	}

	f.records = append(f.records, rec)

	return nil
}

type fakePrices struct {
	price float64
}

func (f *fakePrices) LastClose(exchange, symbol string) float64 {
	return f.price
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.NewLogger()
	if err != nil {
		t.Fatalf("logger: %v", err)
	}

	return log
}

type BrokerTestSuite struct {
	suite.Suite
}

func TestBrokerSuite(t *testing.T) {
	suite.Run(t, new(BrokerTestSuite))
}

func (s *BrokerTestSuite) TestBuyIgnoresNonPositiveUsd() {
	positions := newFakePositions()
	b := New(positions, &fakeLogs{}, &fakePrices{price: 50}, metrics.NewNoop(), "binance", "proj1", "owner1", testLogger(s.T()))

	b.Buy(context.Background(), "BTCUSDT", 0)
	s.Empty(positions.open)

	b.Buy(context.Background(), "BTCUSDT", math.NaN())
	s.Empty(positions.open)
}

func (s *BrokerTestSuite) TestBuyIgnoresWhenAlreadyOpen() {
	positions := newFakePositions()
	positions.open["proj1|BTCUSDT"] = coretypes.Position{ProjectID: "proj1", Symbol: "BTCUSDT", Status: coretypes.PositionStatusOpen}

	b := New(positions, &fakeLogs{}, &fakePrices{price: 50}, metrics.NewNoop(), "binance", "proj1", "owner1", testLogger(s.T()))

	b.Buy(context.Background(), "BTCUSDT", 100)
	s.Len(positions.open, 1)
}

func (s *BrokerTestSuite) TestBuyIgnoresWhenNoMarkPrice() {
	positions := newFakePositions()
	b := New(positions, &fakeLogs{}, &fakePrices{price: math.NaN()}, metrics.NewNoop(), "binance", "proj1", "owner1", testLogger(s.T()))

	b.Buy(context.Background(), "BTCUSDT", 100)
	s.Empty(positions.open)
}

func (s *BrokerTestSuite) TestBuyOpensLongSizedByUsd() {
	positions := newFakePositions()
	b := New(positions, &fakeLogs{}, &fakePrices{price: 50}, metrics.NewNoop(), "binance", "proj1", "owner1", testLogger(s.T()))

	b.Buy(context.Background(), "BTCUSDT", 100)

	pos, ok := positions.open["proj1|BTCUSDT"]
	s.True(ok)
	s.InDelta(2, pos.Qty, 1e-9)
	s.InDelta(50, pos.EntryPrice, 1e-9)
}

func (s *BrokerTestSuite) TestBuyConstraintViolationConvertsToNoop() {
	positions := newFakePositions()
	positions.insertErr = errors.New(errors.ErrCodeConstraintViolation, "unique violation")

	b := New(positions, &fakeLogs{}, &fakePrices{price: 50}, metrics.NewNoop(), "binance", "proj1", "owner1", testLogger(s.T()))

	b.Buy(context.Background(), "BTCUSDT", 100)
	s.Empty(positions.open)
}

func (s *BrokerTestSuite) TestSellIgnoresWhenNoOpenPosition() {
	positions := newFakePositions()
	b := New(positions, &fakeLogs{}, &fakePrices{price: 60}, metrics.NewNoop(), "binance", "proj1", "owner1", testLogger(s.T()))

	b.Sell(context.Background(), "BTCUSDT", 50)
	s.Empty(positions.open)
}

func (s *BrokerTestSuite) TestFullLifecycleMatchesBoundaryScenario() {
	positions := newFakePositions()
	prices := &fakePrices{price: 50}
	b := New(positions, &fakeLogs{}, prices, metrics.NewNoop(), "binance", "proj1", "owner1", testLogger(s.T()))

	b.Buy(context.Background(), "BTCUSDT", 100)
	pos := positions.open["proj1|BTCUSDT"]
	s.InDelta(2, pos.Qty, 1e-9)

	prices.price = 60
	b.Sell(context.Background(), "BTCUSDT", 50)
	pos = positions.open["proj1|BTCUSDT"]
	s.InDelta(1, pos.Qty, 1e-9)
	s.InDelta(10, pos.RealizedPnL, 1e-9)
	s.Equal(coretypes.PositionStatusOpen, pos.Status)

	prices.price = 70
	b.Sell(context.Background(), "BTCUSDT", 100)
	_, stillOpen := positions.open["proj1|BTCUSDT"]
	s.False(stillOpen)
}

func (s *BrokerTestSuite) TestLogSwallowsFailure() {
	logs := &fakeLogs{err: errors.New(errors.ErrCodeLoggingFailed, "disk full")}
	b := New(newFakePositions(), logs, &fakePrices{}, metrics.NewNoop(), "binance", "proj1", "owner1", testLogger(s.T()))

	s.NotPanics(func() {
		b.Log(context.Background(), coretypes.LogLevelInfo, "hello", nil)
	})
}

func (s *BrokerTestSuite) TestLogAppendsRecord() {
	logs := &fakeLogs{}
	b := New(newFakePositions(), logs, &fakePrices{}, metrics.NewNoop(), "binance", "proj1", "owner1", testLogger(s.T()))

	b.Log(context.Background(), coretypes.LogLevelInfo, "hello", map[string]any{"k": "v"})
	s.Len(logs.records, 1)
	s.Equal("hello", logs.records[0].Message)
}
