package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/foliosim/internal/db"
	"github.com/ajitpratap0/foliosim/internal/profiles"
	"github.com/ajitpratap0/foliosim/pkg/sim"
)

// newTestServer builds a server backed by a mocked run store. Additional
// services come in through cfg; the mock is registered for cleanup.
func newTestServer(t *testing.T, cfg Config) (*Server, pgxmock.PgxPoolIface) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	cfg.Runs = db.NewRunStore(mock)
	return NewServer(cfg), mock
}

func doRequest(s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			panic(err)
		}
		reader = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func runColumns() []string {
	return []string{
		"id", "name", "status", "config", "result", "error",
		"final_capital", "total_return", "max_drawdown",
		"total_cycles", "protection_entries", "protection_exits",
		"created_at", "started_at", "completed_at",
	}
}

// completedRunRow builds a scan row for a finished run carrying the given
// result document.
func completedRunRow(id uuid.UUID, result json.RawMessage) []interface{} {
	finalCapital := 11840.0
	totalReturn := 0.184
	maxDrawdown := 0.062
	totalCycles := 30
	protectionEntries := 1
	protectionExits := 1
	startedAt := time.Now().Add(-time.Minute)
	completedAt := time.Now()

	return []interface{}{
		id,
		"march sweep",
		db.RunStatusCompleted,
		json.RawMessage(`{"days":30}`),
		result,
		nil,
		&finalCapital,
		&totalReturn,
		&maxDrawdown,
		&totalCycles,
		&protectionEntries,
		&protectionExits,
		time.Now().Add(-2 * time.Minute),
		&startedAt,
		&completedAt,
	}
}

// pendingRunRow builds a scan row for a run that has not executed yet.
func pendingRunRow(id uuid.UUID) []interface{} {
	return []interface{}{
		id,
		"queued run",
		db.RunStatusPending,
		json.RawMessage(`{"days":7}`),
		nil, nil, nil, nil, nil, nil, nil, nil,
		time.Now(),
		nil, nil,
	}
}

func TestHandleRoot(t *testing.T) {
	s, _ := newTestServer(t, Config{})

	w := doRequest(s, http.MethodGet, "/", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "Foliosim API", body["service"])
	assert.Equal(t, "running", body["status"])
}

func TestHandleGetHealth_NoDatabase(t *testing.T) {
	s, _ := newTestServer(t, Config{})

	w := doRequest(s, http.MethodGet, "/api/v1/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "healthy", body["status"])
}

func TestHandleGetStatus(t *testing.T) {
	s, _ := newTestServer(t, Config{})

	w := doRequest(s, http.MethodGet, "/api/v1/status", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "healthy", body["status"])

	components := body["components"].(map[string]interface{})
	database := components["database"].(map[string]interface{})
	assert.Equal(t, "not_configured", database["status"])
	marketData := components["market_data"].(map[string]interface{})
	assert.Equal(t, "not_configured", marketData["status"])
	eventsStats := components["events"].(map[string]interface{})
	assert.Equal(t, false, eventsStats["connected"])
	websocket := components["websocket"].(map[string]interface{})
	assert.Equal(t, float64(0), websocket["clients"])

	system := body["system"].(map[string]interface{})
	assert.NotZero(t, system["goroutines"])
}

func TestSubmitRun_FullLifecycle(t *testing.T) {
	s, mock := newTestServer(t, Config{})

	// The handler inserts the pending record; the background runner then
	// marks it running and saves the result once the engine finishes.
	mock.ExpectExec("INSERT INTO runs").
		WithArgs(pgxmock.AnyArg(), "march sweep", db.RunStatusPending, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("UPDATE runs").
		WithArgs(pgxmock.AnyArg(), db.RunStatusRunning).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE runs").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	w := doRequest(s, http.MethodPost, "/api/v1/runs", gin.H{
		"name":            "march sweep",
		"symbols":         []string{"BTCUSDT", "ETHUSDT", "ADAUSDT", "SOLUSDT", "XRPUSDT"},
		"start_date":      "2024-03-01",
		"days":            3,
		"initial_capital": 10000.0,
		"seed":            7,
	})

	require.Equal(t, http.StatusCreated, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "march sweep", body["name"])
	assert.Equal(t, "pending", body["status"])
	assert.NotEmpty(t, body["id"])
	assert.NotNil(t, body["config"])

	// Synthetic three-cycle runs finish in milliseconds; wait for the
	// background executor to walk the whole lifecycle.
	require.Eventually(t, func() bool {
		return mock.ExpectationsWereMet() == nil
	}, 5*time.Second, 10*time.Millisecond)
}

func TestSubmitRun_DefaultName(t *testing.T) {
	s, mock := newTestServer(t, Config{})

	mock.ExpectExec("INSERT INTO runs").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), db.RunStatusPending, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("UPDATE runs").
		WithArgs(pgxmock.AnyArg(), db.RunStatusRunning).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE runs").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	w := doRequest(s, http.MethodPost, "/api/v1/runs", gin.H{
		"symbols":         []string{"BTCUSDT", "ETHUSDT", "ADAUSDT", "SOLUSDT", "XRPUSDT"},
		"days":            2,
		"initial_capital": 5000.0,
		"seed":            11,
	})

	require.Equal(t, http.StatusCreated, w.Code)
	body := decodeBody(t, w)
	assert.Contains(t, body["name"], "run-")

	require.Eventually(t, func() bool {
		return mock.ExpectationsWereMet() == nil
	}, 5*time.Second, 10*time.Millisecond)
}

func TestSubmitRun_Validation(t *testing.T) {
	tests := []struct {
		name string
		body gin.H
	}{
		{"missing symbols", gin.H{"days": 30, "initial_capital": 1000.0}},
		{"empty symbols", gin.H{"symbols": []string{}, "days": 30, "initial_capital": 1000.0}},
		{"zero days", gin.H{"symbols": []string{"BTCUSDT"}, "days": 0, "initial_capital": 1000.0}},
		{"negative capital", gin.H{"symbols": []string{"BTCUSDT"}, "days": 30, "initial_capital": -5.0}},
		{"bad start date", gin.H{"symbols": []string{"BTCUSDT"}, "days": 30, "initial_capital": 1000.0, "start_date": "March 1st"}},
		{"too few symbols for universe", gin.H{"symbols": []string{"BTCUSDT"}, "days": 30, "initial_capital": 1000.0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newTestServer(t, Config{})

			w := doRequest(s, http.MethodPost, "/api/v1/runs", tt.body)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			body := decodeBody(t, w)
			assert.NotEmpty(t, body["error"])
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestHandleGetRun(t *testing.T) {
	s, mock := newTestServer(t, Config{})
	id := uuid.New()

	rows := pgxmock.NewRows(runColumns()).
		AddRow(completedRunRow(id, json.RawMessage(`{"total_cycles":30}`))...)
	mock.ExpectQuery("SELECT (.+) FROM runs").
		WithArgs(id).
		WillReturnRows(rows)

	w := doRequest(s, http.MethodGet, "/api/v1/runs/"+id.String(), nil)

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, id.String(), body["id"])
	assert.Equal(t, "march sweep", body["name"])
	assert.Equal(t, "completed", body["status"])
	assert.InDelta(t, 11840.0, body["final_capital"].(float64), 1e-9)
	assert.InDelta(t, 0.184, body["total_return"].(float64), 1e-9)
	assert.NotNil(t, body["config"])
	assert.NotNil(t, body["result"])

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleGetRun_NotFound(t *testing.T) {
	s, mock := newTestServer(t, Config{})
	id := uuid.New()

	mock.ExpectQuery("SELECT (.+) FROM runs").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(runColumns()))

	w := doRequest(s, http.MethodGet, "/api/v1/runs/"+id.String(), nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleGetRun_InvalidID(t *testing.T) {
	s, mock := newTestServer(t, Config{})

	w := doRequest(s, http.MethodGet, "/api/v1/runs/not-a-uuid", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeBody(t, w)
	assert.Contains(t, body["error"], "invalid run ID")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleListRuns(t *testing.T) {
	s, mock := newTestServer(t, Config{})
	first := uuid.New()
	second := uuid.New()

	rows := pgxmock.NewRows(runColumns()).
		AddRow(completedRunRow(first, json.RawMessage(`{}`))...).
		AddRow(pendingRunRow(second)...)
	mock.ExpectQuery("SELECT (.+) FROM runs").
		WithArgs(10, 0).
		WillReturnRows(rows)

	w := doRequest(s, http.MethodGet, "/api/v1/runs?limit=10", nil)

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, float64(2), body["total"])

	runs := body["runs"].([]interface{})
	require.Len(t, runs, 2)

	completed := runs[0].(map[string]interface{})
	assert.Equal(t, first.String(), completed["id"])
	assert.Equal(t, "completed", completed["status"])
	// List views omit the config and result documents.
	assert.NotContains(t, completed, "config")
	assert.NotContains(t, completed, "result")

	pending := runs[1].(map[string]interface{})
	assert.Equal(t, "pending", pending["status"])
	assert.NotContains(t, pending, "final_capital")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleGetRunCycles(t *testing.T) {
	s, mock := newTestServer(t, Config{})
	id := uuid.New()

	result := sim.RunResult{
		Name:        "march sweep",
		Success:     true,
		TotalCycles: 2,
		Cycles: []*sim.CycleRecord{
			{CycleNumber: 1, TotalValue: 10100, MarketRegime: "bull", ActionsTaken: []string{"rebalance"}},
			{CycleNumber: 2, TotalValue: 10240, MarketRegime: "bull", ActionsTaken: []string{"rebalance"}},
		},
	}
	resultJSON, err := json.Marshal(result)
	require.NoError(t, err)

	rows := pgxmock.NewRows(runColumns()).
		AddRow(completedRunRow(id, resultJSON)...)
	mock.ExpectQuery("SELECT (.+) FROM runs").
		WithArgs(id).
		WillReturnRows(rows)

	w := doRequest(s, http.MethodGet, "/api/v1/runs/"+id.String()+"/cycles", nil)

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, float64(2), body["total"])

	cycles := body["cycles"].([]interface{})
	require.Len(t, cycles, 2)
	firstCycle := cycles[0].(map[string]interface{})
	assert.Equal(t, float64(1), firstCycle["cycle_number"])
	assert.Equal(t, "bull", firstCycle["market_regime"])

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleGetRunCycles_PendingRun(t *testing.T) {
	s, mock := newTestServer(t, Config{})
	id := uuid.New()

	rows := pgxmock.NewRows(runColumns()).AddRow(pendingRunRow(id)...)
	mock.ExpectQuery("SELECT (.+) FROM runs").
		WithArgs(id).
		WillReturnRows(rows)

	w := doRequest(s, http.MethodGet, "/api/v1/runs/"+id.String()+"/cycles", nil)

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "pending", body["status"])
	assert.Equal(t, float64(0), body["total"])

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleDeleteRun(t *testing.T) {
	s, mock := newTestServer(t, Config{})
	id := uuid.New()

	mock.ExpectExec("DELETE FROM runs").
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	w := doRequest(s, http.MethodDelete, "/api/v1/runs/"+id.String(), nil)

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "deleted", body["status"])
	assert.Equal(t, id.String(), body["run_id"])

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleDeleteRun_NotFound(t *testing.T) {
	s, mock := newTestServer(t, Config{})
	id := uuid.New()

	mock.ExpectExec("DELETE FROM runs").
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	w := doRequest(s, http.MethodDelete, "/api/v1/runs/"+id.String(), nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProfileEndpoints(t *testing.T) {
	store := profiles.NewFileStore(t.TempDir())
	s, _ := newTestServer(t, Config{Profiles: store})

	profile := profiles.Profile{
		Metadata: profiles.Metadata{
			Name:        "conservative",
			Version:     "1.2",
			Description: "tight daily clamps",
		},
		Params: sim.CalibrationParams{
			MarketTimingEfficiency: 0.85,
			DailySlippage:          0.001,
			TradingFee:             0.001,
			VolatilityDrag:         0.0005,
			MaxDailyReturn:         0.05,
			MinDailyReturn:         -0.05,
		},
	}

	w := doRequest(s, http.MethodPost, "/api/v1/profiles", profile)
	require.Equal(t, http.StatusCreated, w.Code)

	w = doRequest(s, http.MethodGet, "/api/v1/profiles/conservative", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	metadata := body["metadata"].(map[string]interface{})
	assert.Equal(t, "conservative", metadata["name"])
	params := body["calibration_parameters"].(map[string]interface{})
	assert.InDelta(t, 0.85, params["market_timing_efficiency"].(float64), 1e-9)

	w = doRequest(s, http.MethodGet, "/api/v1/profiles", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body = decodeBody(t, w)
	assert.Equal(t, float64(1), body["total"])
	assert.Contains(t, body["profiles"], "conservative")
}

func TestHandleGetProfile_NotFound(t *testing.T) {
	store := profiles.NewFileStore(t.TempDir())
	s, _ := newTestServer(t, Config{Profiles: store})

	w := doRequest(s, http.MethodGet, "/api/v1/profiles/missing", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	body := decodeBody(t, w)
	assert.Contains(t, body["error"], "missing")
}

func TestHandleSaveProfile_Invalid(t *testing.T) {
	store := profiles.NewFileStore(t.TempDir())
	s, _ := newTestServer(t, Config{Profiles: store})

	profile := profiles.Profile{
		Metadata: profiles.Metadata{Name: "broken"},
		Params: sim.CalibrationParams{
			MarketTimingEfficiency: 1.8, // above the valid ceiling
			MaxDailyReturn:         0.05,
			MinDailyReturn:         -0.05,
		},
	}

	w := doRequest(s, http.MethodPost, "/api/v1/profiles", profile)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeBody(t, w)
	assert.Contains(t, body["error"], "market_timing_efficiency")
}

func TestHandleListProfiles_NotConfigured(t *testing.T) {
	s, _ := newTestServer(t, Config{})

	w := doRequest(s, http.MethodGet, "/api/v1/profiles", nil)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

// stubProvider serves a fixed candle series for analysis tests.
type stubProvider struct {
	candles []sim.Candle
}

func (p *stubProvider) GetHistory(ctx context.Context, symbol, interval string, lookback int) ([]sim.Candle, error) {
	return p.candles, nil
}

func (p *stubProvider) Health(ctx context.Context) error { return nil }

func analysisCandles(n int) []sim.Candle {
	candles := make([]sim.Candle, n)
	price := 100.0
	for i := range candles {
		move := 1.0
		if i%3 == 0 {
			move = -0.6
		}
		price += move
		candles[i] = sim.Candle{
			Timestamp: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i),
			Open:      price - move,
			High:      price + 0.5,
			Low:       price - 1.2,
			Close:     price,
			Volume:    1000,
		}
	}
	return candles
}

func TestHandleGetAnalysis(t *testing.T) {
	s, _ := newTestServer(t, Config{Provider: &stubProvider{candles: analysisCandles(60)}})

	w := doRequest(s, http.MethodGet, "/api/v1/analysis/BTCUSDT", nil)

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "BTCUSDT", body["symbol"])
	assert.Equal(t, "1d", body["interval"])
	assert.Equal(t, float64(60), body["candles"])

	readings := body["indicators"].(map[string]interface{})
	assert.Contains(t, readings, "rsi")
	assert.Contains(t, readings, "macd")
}

func TestHandleGetAnalysis_SingleIndicator(t *testing.T) {
	s, _ := newTestServer(t, Config{Provider: &stubProvider{candles: analysisCandles(60)}})

	w := doRequest(s, http.MethodGet, "/api/v1/analysis/ETHUSDT?indicator=rsi&period=14", nil)

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "rsi", body["indicator"])
	assert.NotNil(t, body["result"])
}

func TestHandleGetAnalysis_UnknownIndicator(t *testing.T) {
	s, _ := newTestServer(t, Config{Provider: &stubProvider{candles: analysisCandles(60)}})

	w := doRequest(s, http.MethodGet, "/api/v1/analysis/ETHUSDT?indicator=vwap", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeBody(t, w)
	assert.Contains(t, body["error"], "unknown indicator")
}

func TestHandleGetAnalysis_NoProvider(t *testing.T) {
	s, _ := newTestServer(t, Config{})

	w := doRequest(s, http.MethodGet, "/api/v1/analysis/BTCUSDT", nil)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	body := decodeBody(t, w)
	assert.Contains(t, body["error"], "market data source")
}
