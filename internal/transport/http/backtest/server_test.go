package backtesthttp

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"tradesim/internal/backtest"
	"tradesim/internal/market"
	"tradesim/internal/risk"
	"tradesim/internal/store/gormstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	runs map[string]backtest.Run
}

func (f *fakeReader) ListRuns(_ context.Context, limit int) ([]backtest.Run, error) {
	out := make([]backtest.Run, 0, len(f.runs))
	for _, r := range f.runs {
		out = append(out, r)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeReader) GetRun(_ context.Context, id string) (backtest.Run, error) {
	r, ok := f.runs[id]
	if !ok {
		return backtest.Run{}, gormstore.ErrRunNotFound
	}
	return r, nil
}

func (f *fakeReader) ListTrades(_ context.Context, id string) ([]backtest.Trade, error) {
	if _, ok := f.runs[id]; !ok {
		return nil, gormstore.ErrRunNotFound
	}
	return []backtest.Trade{{ID: 1, EntryPrice: 100, ExitPrice: 101}}, nil
}

func (f *fakeReader) ListEquity(_ context.Context, id string) ([]backtest.EquityPoint, error) {
	if _, ok := f.runs[id]; !ok {
		return nil, gormstore.ErrRunNotFound
	}
	return []backtest.EquityPoint{{Time: time.UnixMilli(0).UTC(), Equity: 10000}}, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	svc, err := backtest.NewService(backtest.ServiceConfig{
		Params:   risk.DefaultParameters(),
		Defaults: backtest.DefaultOptions(),
	})
	require.NoError(t, err)
	srv, err := NewServer(Config{
		Svc:     svc,
		Results: &fakeReader{runs: map[string]backtest.Run{"r1": {ID: "r1", Strategy: "demo", Status: backtest.RunStatusDone}}},
		Params:  risk.DefaultParameters(),
	})
	require.NoError(t, err)
	return srv
}

func do(t *testing.T, srv *Server, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	out := map[string]any{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func inlineCandles() []market.Candle {
	base := int64(1704067200000)
	closes := []float64{100, 100.5, 101}
	out := make([]market.Candle, len(closes))
	for i, c := range closes {
		out[i] = market.Candle{
			OpenTime: base + int64(i)*3_600_000,
			Open:     c, High: c + 0.2, Low: c - 0.2, Close: c, Volume: 10,
		}
	}
	return out
}

func TestNewServerRequiresService(t *testing.T) {
	_, err := NewServer(Config{Params: risk.DefaultParameters()})
	require.Error(t, err)
}

func TestRunInline(t *testing.T) {
	srv := newTestServer(t)
	body := map[string]any{
		"rules": map[string]any{
			"name":                  "always",
			"position_size_percent": 10,
			"stop_loss_percent":     1,
			"take_profit_percent":   5,
			"direction":             "long",
			"entry":                 []map[string]any{{"check": "price_above", "value": 1}},
		},
		"candles": inlineCandles(),
	}
	rec, out := do(t, srv, http.MethodPost, "/api/backtest/runs", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	run := out["run"].(map[string]any)
	assert.Equal(t, backtest.RunStatusDone, run["status"])
	assert.Equal(t, "inline", run["data_source"])
	trades := out["trades"].([]any)
	require.Len(t, trades, 1)
	assert.Equal(t, string(backtest.ExitEndOfData), trades[0].(map[string]any)["exit_reason"])
	assert.Len(t, out["equity"].([]any), 3)
}

func TestRunInvalidRulesIsBadRequest(t *testing.T) {
	srv := newTestServer(t)
	body := map[string]any{
		"rules": map[string]any{
			"name":                  "broken",
			"position_size_percent": 10,
			"stop_loss_percent":     1,
			"take_profit_percent":   5,
			"direction":             "sideways",
			"entry":                 []map[string]any{{"check": "price_above", "value": 1}},
		},
		"candles": inlineCandles(),
	}
	rec, out := do(t, srv, http.MethodPost, "/api/backtest/runs", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, out["error"], "direction")
	assert.Equal(t, backtest.RunStatusFailed, out["run"].(map[string]any)["status"])
}

func TestRunWithoutDataIsBadRequest(t *testing.T) {
	srv := newTestServer(t)
	rec, _ := do(t, srv, http.MethodPost, "/api/backtest/runs", map[string]any{
		"rules": map[string]any{
			"name": "x", "position_size_percent": 1, "stop_loss_percent": 1, "take_profit_percent": 2,
			"direction": "long", "entry": []map[string]any{{"check": "price_above", "value": 1}},
		},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunReaders(t *testing.T) {
	srv := newTestServer(t)

	rec, out := do(t, srv, http.MethodGet, "/api/backtest/runs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, out["runs"].([]any), 1)

	rec, out = do(t, srv, http.MethodGet, "/api/backtest/runs/r1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "demo", out["run"].(map[string]any)["strategy"])

	rec, _ = do(t, srv, http.MethodGet, "/api/backtest/runs/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, out = do(t, srv, http.MethodGet, "/api/backtest/runs/r1/trades", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, out["trades"].([]any), 1)

	rec, out = do(t, srv, http.MethodGet, "/api/backtest/runs/r1/equity", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, out["equity"].([]any), 1)

	rec, _ = do(t, srv, http.MethodGet, "/api/backtest/runs?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnknownRunChildrenAreNotFound(t *testing.T) {
	srv := newTestServer(t)
	for _, path := range []string{"/api/backtest/runs/nope/trades", "/api/backtest/runs/nope/equity"} {
		rec, out := do(t, srv, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
		assert.NotEmpty(t, out["error"], path)
	}
}

func TestUnknownRunChildrenWithResultStore(t *testing.T) {
	results, err := gormstore.NewResultStore(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = results.Close() })
	svc, err := backtest.NewService(backtest.ServiceConfig{Params: risk.DefaultParameters()})
	require.NoError(t, err)
	srv, err := NewServer(Config{Svc: svc, Results: results, Params: risk.DefaultParameters()})
	require.NoError(t, err)

	rec, _ := do(t, srv, http.MethodGet, "/api/backtest/runs/nope/trades", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec, _ = do(t, srv, http.MethodGet, "/api/backtest/runs/nope/equity", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestManifestRequiresParams(t *testing.T) {
	srv := newTestServer(t)
	rec, _ := do(t, srv, http.MethodGet, "/api/backtest/data?symbol=BTCUSDT", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestManifestStaysInsideCandleRoot(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "candles")
	st, err := market.NewStore(root)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	svc, err := backtest.NewService(backtest.ServiceConfig{Params: risk.DefaultParameters(), Candles: st})
	require.NoError(t, err)
	srv, err := NewServer(Config{Svc: svc, Params: risk.DefaultParameters()})
	require.NoError(t, err)

	rec, _ := do(t, srv, http.MethodGet, "/api/backtest/data?symbol=..&timeframe=../escaped", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	_, statErr := os.Stat(filepath.Join(parent, "escaped.db"))
	assert.True(t, os.IsNotExist(statErr))

	rec, out := do(t, srv, http.MethodGet, "/api/backtest/data?symbol=btcusdt&timeframe=1H", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	manifest := out["manifest"].(map[string]any)
	assert.Equal(t, "BTCUSDT", manifest["symbol"])
	assert.EqualValues(t, 0, manifest["rows"])
}

func TestRiskValidate(t *testing.T) {
	srv := newTestServer(t)
	ok := map[string]any{
		"sentiment":           3.5,
		"risk_percent":        0.01,
		"stop_loss_percent":   0.01,
		"take_profit_percent": 0.03,
		"direction":           "long",
	}
	rec, out := do(t, srv, http.MethodPost, "/api/risk/validate", ok)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, out["ok"])

	weak := map[string]any{
		"sentiment":           1,
		"risk_percent":        0.01,
		"stop_loss_percent":   0.01,
		"take_profit_percent": 0.03,
		"direction":           "LONG",
	}
	rec, out = do(t, srv, http.MethodPost, "/api/risk/validate", weak)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, out["ok"])
	assert.Equal(t, string(risk.RuleSentimentThreshold), out["violation"].(map[string]any)["rule"])
}

func TestRiskSize(t *testing.T) {
	srv := newTestServer(t)
	rec, out := do(t, srv, http.MethodPost, "/api/risk/size", map[string]any{
		"capital":             10000,
		"risk_percent":        0.05,
		"entry_price":         100,
		"take_profit_percent": 2,
		"direction":           "long",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.InDelta(t, 100, out["position_usd"], 1e-9)
	assert.InDelta(t, 102, out["take_profit"], 1e-9)
	assert.InDelta(t, 99, out["stop_loss"], 1e-9)
	assert.InDelta(t, 1, out["quantity"], 1e-9)

	rec, _ = do(t, srv, http.MethodPost, "/api/risk/size", map[string]any{"capital": -1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
