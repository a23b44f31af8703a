package apihttp

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantsignal/internal/backtest"
	"quantsignal/internal/gateway/synth"
	"quantsignal/internal/market"
	"quantsignal/internal/monitor"
	"quantsignal/internal/store/strategystore"
	"quantsignal/internal/strategy"
)

const holdDoc = `{"version":1,"kind":"buy_and_hold"}`

type risingHistory struct {
	missing map[string]bool
}

func (h risingHistory) LoadHistory(_ context.Context, instrument string, _, _ time.Time) (market.Series, error) {
	if h.missing[instrument] {
		return nil, nil
	}
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make(market.Series, 30)
	for i := range out {
		c := 100 + float64(i)
		out[i] = market.Bar{Date: start.AddDate(0, 0, i), Open: c, High: c, Low: c, Close: c, Volume: 1}
	}
	return out, nil
}

type fakeMonitor struct {
	reloads int
}

func (m *fakeMonitor) Status() monitor.Status {
	return monitor.Status{Running: true, State: monitor.StateIdle, Policy: monitor.PolicyLevel, Lookback: 100}
}

func (m *fakeMonitor) RequestReload() { m.reloads++ }

type fakeSynth struct {
	enabled bool
	code    string
	err     error
}

func (f fakeSynth) Enabled() bool { return f.enabled }

func (f fakeSynth) Generate(context.Context, string) (string, error) { return f.code, f.err }

type harness struct {
	server  *Server
	store   *strategystore.Store
	monitor *fakeMonitor
}

func newHarness(t *testing.T, gen Generator) *harness {
	t.Helper()
	store, err := strategystore.Open(filepath.Join(t.TempDir(), "strategies.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	runs, err := backtest.NewResultStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = runs.Close() })

	runner := backtest.NewRunner(risingHistory{missing: map[string]bool{"DOGEUSDT": true}}, backtest.DefaultOptions())
	runner.Now = func() time.Time { return time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC) }

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "quantsignal_test_total", Help: "test"}))

	mon := &fakeMonitor{}
	srv, err := NewServer(Config{
		Strategies:  store,
		Synth:       gen,
		Backtests:   runner,
		Runs:        runs,
		Monitor:     mon,
		Gatherer:    reg,
		Instruments: []string{"BTCUSDT", "DOGEUSDT"},
	})
	require.NoError(t, err)
	return &harness{server: srv, store: store, monitor: mon}
}

func (h *harness) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestNewServerRequiresStore(t *testing.T) {
	_, err := NewServer(Config{})
	assert.Error(t, err)
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t, nil)
	rec := h.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "quantsignal_test_total")
}

func TestStrategyLifecycle(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, http.MethodPost, "/api/strategies", obj{"name": "hold", "description": "always long", "code": holdDoc})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id, _ := decode(t, rec)["id"].(string)
	require.Len(t, id, 8)
	assert.Equal(t, 1, h.monitor.reloads)

	rec = h.do(t, http.MethodGet, "/api/strategies", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode(t, rec)["strategies"].([]any)
	require.Len(t, list, 1)
	assert.Equal(t, "buy_and_hold", list[0].(map[string]any)["summary"])

	rec = h.do(t, http.MethodPatch, "/api/strategies/"+id+"/status", obj{"status": "inactive"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, decode(t, rec)["reload_requested"])
	assert.Equal(t, 2, h.monitor.reloads)

	rec = h.do(t, http.MethodGet, "/api/strategies?status=active", nil)
	assert.Empty(t, decode(t, rec)["strategies"])

	rec = h.do(t, http.MethodGet, "/api/strategies/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "inactive", decode(t, rec)["strategy"].(map[string]any)["status"])

	rec = h.do(t, http.MethodDelete, "/api/strategies/"+id, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = h.do(t, http.MethodDelete, "/api/strategies/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = h.do(t, http.MethodGet, "/api/strategies/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateRejectsUncompilableCode(t *testing.T) {
	h := newHarness(t, nil)
	rec := h.do(t, http.MethodPost, "/api/strategies", obj{"name": "bad", "code": `{"version":1,"kind":"sma_cross","params":{"fast":30,"slow":10}}`})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], "fast")

	rec = h.do(t, http.MethodPost, "/api/strategies", obj{"name": "missing code"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, h.monitor.reloads)
}

func TestInvalidStatus(t *testing.T) {
	h := newHarness(t, nil)
	id, err := h.store.Add(context.Background(), "hold", "", holdDoc)
	require.NoError(t, err)
	rec := h.do(t, http.MethodPatch, "/api/strategies/"+id+"/status", obj{"status": "paused"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = h.do(t, http.MethodPatch, "/api/strategies/nope/status", obj{"status": "active"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGenerate(t *testing.T) {
	h := newHarness(t, fakeSynth{enabled: true, code: holdDoc})
	rec := h.do(t, http.MethodPost, "/api/strategies/generate", obj{"description": "just hold", "save": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, holdDoc, body["code"])
	assert.NotEmpty(t, body["id"])
	assert.Equal(t, 1, h.monitor.reloads)

	disabled := newHarness(t, fakeSynth{})
	rec = disabled.do(t, http.MethodPost, "/api/strategies/generate", obj{"description": "x"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	failing := newHarness(t, fakeSynth{enabled: true, err: &strategy.CompileError{Reason: "no JSON object in reply"}})
	rec = failing.do(t, http.MethodPost, "/api/strategies/generate", obj{"description": "x"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestBacktestAndRuns(t *testing.T) {
	h := newHarness(t, nil)
	rec := h.do(t, http.MethodPost, "/api/backtest", obj{"instrument": "btc/usdt", "code": holdDoc, "days": 30, "save": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "BTCUSDT", body["instrument"])
	stats := body["stats"].(map[string]any)
	assert.Greater(t, stats["total_return"].(float64), 0.0)
	run := body["run"].(map[string]any)
	runID := run["id"].(string)

	rec = h.do(t, http.MethodGet, "/api/backtests", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["runs"], 1)

	rec = h.do(t, http.MethodGet, "/api/backtests/"+runID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = h.do(t, http.MethodGet, "/api/backtests/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBacktestErrors(t *testing.T) {
	h := newHarness(t, nil)
	rec := h.do(t, http.MethodPost, "/api/backtest", obj{"instrument": "BTCUSDT"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/backtest", obj{"instrument": "BTCUSDT", "strategy_id": "nope"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/backtest", obj{"instrument": "DOGEUSDT", "code": holdDoc})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/backtest", obj{"instrument": "BTCUSDT", "code": `{"kind":"unknown"}`})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestBacktestChartHTML(t *testing.T) {
	h := newHarness(t, nil)
	id, err := h.store.Add(context.Background(), "hold", "", holdDoc)
	require.NoError(t, err)
	rec := h.do(t, http.MethodPost, "/api/backtest?format=html", obj{"instrument": "BTCUSDT", "strategy_id": id})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/html"))
	assert.Contains(t, rec.Body.String(), "BTCUSDT hold")
}

func TestScanDefaultsToConfiguredInstruments(t *testing.T) {
	h := newHarness(t, nil)
	rec := h.do(t, http.MethodPost, "/api/scan", obj{"code": holdDoc, "days": 30})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	items := body["items"].([]any)
	require.Len(t, items, 2)
	assert.Equal(t, []any{"BTCUSDT"}, body["hits"])
	for _, raw := range items {
		item := raw.(map[string]any)
		if item["instrument"] == "DOGEUSDT" {
			assert.NotEmpty(t, item["error"])
		}
	}
}

func TestRejectsPathLikeInstruments(t *testing.T) {
	h := newHarness(t, nil)
	rec := h.do(t, http.MethodPost, "/api/backtest", obj{"instrument": "a/../../../escaped", "code": holdDoc})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = h.do(t, http.MethodPost, "/api/scan", obj{"instruments": []string{"btcusdt", "a/../../../escaped"}, "code": holdDoc})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid instrument")
}

func TestMonitorEndpoints(t *testing.T) {
	h := newHarness(t, nil)
	rec := h.do(t, http.MethodGet, "/api/monitor/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	mon := decode(t, rec)["monitor"].(map[string]any)
	assert.Equal(t, "level", mon["policy"])
	assert.Equal(t, "idle", mon["state"])

	rec = h.do(t, http.MethodPost, "/api/monitor/reload", nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, h.monitor.reloads)
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusServiceUnavailable, statusOf(synth.ErrDisabled))
	assert.Equal(t, http.StatusBadGateway, statusOf(&market.FetchError{Op: "snapshot", Err: assert.AnError}))
	assert.Equal(t, http.StatusInternalServerError, statusOf(&strategystore.PersistenceError{Op: "add", Err: assert.AnError}))
	assert.Equal(t, http.StatusUnprocessableEntity, statusOf(&backtest.InputError{Err: backtest.ErrEmptySeries}))
	assert.Equal(t, http.StatusInternalServerError, statusOf(assert.AnError))
}

type obj = map[string]any
