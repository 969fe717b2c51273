package main

import (
	"bytes"
	"flag"
	"testing"
	"time"

	"tradesim/internal/backtest"
	"tradesim/internal/strategy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseRunFlags(t *testing.T, args ...string) (backtest.RunRequest, error) {
	t.Helper()
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	var rf runFlags
	rf.register(fs)
	fs.StringVar(&rf.strategy, "strategy", "", "")
	require.NoError(t, fs.Parse(args))
	return rf.request(fs)
}

func TestRunFlagsRequest(t *testing.T) {
	req, err := parseRunFlags(t, "-strategy", "breakout", "-symbol", "btcusdt", "-tf", "1h",
		"-start", "2024-01-01", "-end", "1704153600", "-capital", "5000")
	require.NoError(t, err)
	assert.Equal(t, "breakout", req.Strategy)
	assert.Equal(t, int64(1704067200000), req.StartTS)
	assert.Equal(t, int64(1704153600000), req.EndTS)
	assert.Equal(t, 5000.0, req.InitialCapital)
	assert.Nil(t, req.EnforceRiskGate)
	assert.Nil(t, req.Sentiment)
}

func TestRunFlagsGateOnlyWhenSet(t *testing.T) {
	req, err := parseRunFlags(t, "-gate=false", "-sentiment", "3.5")
	require.NoError(t, err)
	require.NotNil(t, req.EnforceRiskGate)
	assert.False(t, *req.EnforceRiskGate)
	require.NotNil(t, req.Sentiment)
	assert.Equal(t, 3.5, *req.Sentiment)
}

func TestRunFlagsBadTime(t *testing.T) {
	_, err := parseRunFlags(t, "-start", "yesterday")
	require.Error(t, err)
}

func TestBatchRequests(t *testing.T) {
	base := backtest.RunRequest{DataFile: "candles.csv"}

	reqs, err := batchRequests(base, nil, nil, []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, reqs, 2)
	assert.Equal(t, "b", reqs[1].Strategy)
	assert.Equal(t, "candles.csv", reqs[1].DataFile)

	docs := []strategy.Document{{Name: "x"}, {Name: "y"}}
	reqs, err = batchRequests(base, []string{"y"}, docs, nil)
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	require.NotNil(t, reqs[0].Rules)
	assert.Equal(t, "y", reqs[0].Rules.Name)

	_, err = batchRequests(base, nil, nil, nil)
	require.Error(t, err)
}

func TestPickDocument(t *testing.T) {
	one := []strategy.Document{{Name: "only"}}
	doc, err := pickDocument(one, "")
	require.NoError(t, err)
	assert.Equal(t, "only", doc.Name)

	two := []strategy.Document{{Name: "a"}, {Name: "b"}}
	_, err = pickDocument(two, "")
	require.Error(t, err)
	doc, err = pickDocument(two, "b")
	require.NoError(t, err)
	assert.Equal(t, "b", doc.Name)
	_, err = pickDocument(two, "c")
	require.Error(t, err)
}

func TestSplitNames(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitNames(" a, ,b "))
	assert.Nil(t, splitNames(""))
}

func TestPrintReport(t *testing.T) {
	var buf bytes.Buffer
	run := backtest.Run{ID: "r1", Strategy: "demo", DataSource: "inline"}
	printReport(&buf, run, backtest.Report{
		TotalTrades:    2,
		WinningTrades:  1,
		LosingTrades:   1,
		InitialCapital: 10000,
		FinalCapital:   10001,
		ExitReasons:    map[backtest.ExitReason]int{backtest.ExitTakeProfit: 1, backtest.ExitStopLoss: 1},
	})
	out := buf.String()
	assert.Contains(t, out, "demo")
	assert.Contains(t, out, "stop_loss=1 take_profit=1")
	assert.NotContains(t, out, "rejected entries")

	buf.Reset()
	printTrades(&buf, []backtest.Trade{{ID: 1, Direction: "LONG", EntryTime: time.Unix(0, 0).UTC(), ExitReason: backtest.ExitSignal}})
	assert.Contains(t, buf.String(), "exit_signal")
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeJSON(&buf, map[string]any{"a": 1}))
	assert.Contains(t, buf.String(), "\"a\": 1")
}
