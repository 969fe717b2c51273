package backtest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"tradesim/internal/market"
	"tradesim/internal/risk"
	"tradesim/internal/strategy"
)

type MockSink struct {
	mock.Mock
}

func (m *MockSink) SaveRun(ctx context.Context, run Run, res Result) error {
	args := m.Called(ctx, run, res)
	return args.Error(0)
}

type fakeSource struct {
	candles []market.Candle
	lastReq market.FetchRequest
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) FetchRange(_ context.Context, req market.FetchRequest) ([]market.Candle, error) {
	f.lastReq = req
	return f.candles, nil
}

func inlineDoc() *strategy.Document {
	return &strategy.Document{
		Name:                "breakout",
		PositionSizePercent: 10,
		StopLossPercent:     1,
		TakeProfitPercent:   2,
		Direction:           "long",
		Entry:               []strategy.Check{{Name: strategy.CheckPriceAbove, Value: 100.5}},
	}
}

func newTestService(t *testing.T, cfg ServiceConfig) *Service {
	t.Helper()
	cfg.Params = risk.DefaultParameters()
	svc, err := NewService(cfg)
	require.NoError(t, err)
	return svc
}

func TestServiceRunInline(t *testing.T) {
	sink := new(MockSink)
	sink.On("SaveRun", mock.Anything, mock.MatchedBy(func(r Run) bool {
		return r.Status == RunStatusDone && r.Strategy == "breakout" && r.DataSource == "inline"
	}), mock.Anything).Return(nil).Once()

	svc := newTestService(t, ServiceConfig{Sink: sink})
	run, res, err := svc.Run(context.Background(), RunRequest{
		Rules:   inlineDoc(),
		Candles: hourly(100, 101, 101.2, 101.4),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, RunStatusDone, run.Status)
	require.Len(t, res.Trades, 1)
	assert.Equal(t, run.Report, res.Report)
	assert.Equal(t, DefaultInitialCapital, run.Options.InitialCapital)
	assert.Equal(t, "LONG", run.Rules.Direction)
	sink.AssertExpectations(t)
}

func TestServiceRunFailureIsRecorded(t *testing.T) {
	sink := new(MockSink)
	sink.On("SaveRun", mock.Anything, mock.MatchedBy(func(r Run) bool {
		return r.Status == RunStatusFailed && r.Message != ""
	}), Result{}).Return(nil).Once()

	svc := newTestService(t, ServiceConfig{Sink: sink})
	_, res, err := svc.Run(context.Background(), RunRequest{Strategy: "missing", Candles: hourly(100)})
	assert.ErrorIs(t, err, strategy.ErrConfig)
	assert.Empty(t, res.Trades)
	sink.AssertExpectations(t)

	_, _, err = newTestService(t, ServiceConfig{}).Run(context.Background(), RunRequest{Rules: inlineDoc()})
	assert.ErrorIs(t, err, market.ErrData)
}

func TestServiceRunFromFileAndStore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "btc.csv")
	csv := "timestamp,open,high,low,close,volume\n" +
		"1704067200,100,100.5,99.5,100,1\n" +
		"1704070800,101,101.5,100.5,101,1\n"
	require.NoError(t, os.WriteFile(path, []byte(csv), 0o644))

	st, err := market.NewStore(filepath.Join(dir, "candles"))
	require.NoError(t, err)
	defer st.Close()
	_, err = st.InsertCandles(context.Background(), "BTCUSDT", "1h", hourly(100, 101, 102))
	require.NoError(t, err)

	svc := newTestService(t, ServiceConfig{Candles: st})
	run, res, err := svc.Run(context.Background(), RunRequest{Rules: inlineDoc(), DataFile: path})
	require.NoError(t, err)
	assert.Equal(t, "file:"+path, run.DataSource)
	assert.Equal(t, 2, res.Report.Candles)

	run, res, err = svc.Run(context.Background(), RunRequest{Rules: inlineDoc(), Symbol: "btcusdt", Timeframe: "1h"})
	require.NoError(t, err)
	assert.Equal(t, "store:BTCUSDT@1h", run.DataSource)
	assert.Equal(t, 3, res.Report.Candles)

	_, _, err = svc.Run(context.Background(), RunRequest{Rules: inlineDoc(), Symbol: "ETHUSDT", Timeframe: "1h"})
	assert.ErrorIs(t, err, market.ErrData)
}

func TestServiceRunBatch(t *testing.T) {
	svc := newTestService(t, ServiceConfig{MaxConcurrent: 2})
	bad := inlineDoc()
	bad.Direction = "sideways"
	reqs := []RunRequest{
		{Rules: inlineDoc(), Candles: hourly(100, 101, 102)},
		{Rules: bad, Candles: hourly(100, 101, 102)},
		{Rules: inlineDoc(), Candles: hourly(100, 99, 101)},
	}
	items, err := svc.RunBatch(context.Background(), reqs)
	require.Error(t, err)
	assert.ErrorIs(t, err, strategy.ErrConfig)
	require.Len(t, items, 3)
	assert.NoError(t, items[0].Err)
	assert.Error(t, items[1].Err)
	assert.Equal(t, RunStatusFailed, items[1].Run.Status)
	assert.NoError(t, items[2].Err)
	assert.Equal(t, 3, items[2].Result.Report.Candles)
}

func TestServiceRunCancelled(t *testing.T) {
	sink := new(MockSink)
	sink.On("SaveRun", mock.Anything, mock.MatchedBy(func(r Run) bool {
		return r.Status == RunStatusFailed
	}), Result{}).Return(nil)

	svc := newTestService(t, ServiceConfig{Sink: sink})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	run, res, err := svc.Run(ctx, RunRequest{Rules: inlineDoc(), Candles: hourly(100, 101, 102)})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, RunStatusFailed, run.Status)
	assert.Empty(t, res.Trades)

	items, err := svc.RunBatch(ctx, []RunRequest{
		{Rules: inlineDoc(), Candles: hourly(100, 101)},
		{Rules: inlineDoc(), Candles: hourly(100, 101)},
	})
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, items, 2)
	for _, item := range items {
		assert.ErrorIs(t, item.Err, context.Canceled)
	}
	sink.AssertNumberOfCalls(t, "SaveRun", 3)
}

func TestServiceFetch(t *testing.T) {
	st, err := market.NewStore(t.TempDir())
	require.NoError(t, err)
	defer st.Close()
	src := &fakeSource{candles: hourly(100, 101, 102)}

	svc := newTestService(t, ServiceConfig{Candles: st, Source: src})
	start := time.UnixMilli(t0).UTC()
	n, err := svc.Fetch(context.Background(), FetchRequest{
		Symbol:    "btcusdt",
		Timeframe: "1h",
		Start:     start.Add(10 * time.Minute),
		End:       start.Add(2 * time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, "BTCUSDT", src.lastReq.Symbol)
	assert.Equal(t, t0, src.lastReq.Start)

	m, err := svc.Manifest(context.Background(), "BTCUSDT", "1h")
	require.NoError(t, err)
	assert.Equal(t, int64(3), m.Rows)

	_, err = newTestService(t, ServiceConfig{}).Fetch(context.Background(), FetchRequest{Symbol: "BTCUSDT", Timeframe: "1h"})
	assert.Error(t, err)
}

func TestServiceRejectsUnsafeSeries(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "candles")
	st, err := market.NewStore(root)
	require.NoError(t, err)
	defer st.Close()
	svc := newTestService(t, ServiceConfig{Candles: st, Source: &fakeSource{candles: hourly(100)}})
	ctx := context.Background()

	_, err = svc.Manifest(ctx, "..", "../escaped")
	assert.ErrorIs(t, err, market.ErrData)
	_, _, err = svc.Run(ctx, RunRequest{Rules: inlineDoc(), Symbol: "..", Timeframe: "1h"})
	assert.ErrorIs(t, err, market.ErrData)
	_, err = svc.Fetch(ctx, FetchRequest{Symbol: "../x", Timeframe: "1h", End: time.UnixMilli(t0)})
	assert.ErrorIs(t, err, market.ErrData)

	_, statErr := os.Stat(filepath.Join(parent, "escaped.db"))
	assert.True(t, os.IsNotExist(statErr))
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)

	m, err := svc.Manifest(ctx, "SOLUSDT", "1h")
	require.NoError(t, err)
	assert.Zero(t, m.Rows)
}
