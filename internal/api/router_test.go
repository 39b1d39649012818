package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/betpulse/internal/engine"
	"github.com/rewired-gh/betpulse/internal/events"
	"github.com/rewired-gh/betpulse/internal/models"
	"github.com/rewired-gh/betpulse/internal/retention"
	"github.com/rewired-gh/betpulse/internal/storage"
	"github.com/rewired-gh/betpulse/internal/telemetry"
)

var clock = time.Date(2024, 5, 4, 18, 0, 0, 0, time.UTC)

type failingHistory struct{}

func (failingHistory) RecentAnomalies(string, int) ([]models.Anomaly, error) {
	return nil, errors.New("disk gone")
}

func newTestServer(t *testing.T) (*httptest.Server, *engine.Engine, *storage.Storage) {
	t.Helper()
	store, err := storage.New(100, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	metrics := telemetry.New()
	eng := engine.New(engine.Config{Retention: retention.DefaultConfig()}, engine.Deps{
		Archive: store,
		Metrics: metrics,
		Now:     func() time.Time { return clock },
	})

	srv := httptest.NewServer(NewRouter(NewHandler(eng, store), []string{"*"}, metrics.Registry()))
	t.Cleanup(srv.Close)
	return srv, eng, store
}

func apply(t *testing.T, eng *engine.Engine, typ events.Type, key string, payload any) {
	t.Helper()
	ev, err := events.New(typ, key, payload)
	require.NoError(t, err)
	require.NoError(t, eng.Handle(context.Background(), ev))
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func TestHealthCheck(t *testing.T) {
	srv, _, _ := newTestServer(t)

	var body map[string]string
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/health", &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	srv, eng, _ := newTestServer(t)
	apply(t, eng, events.BetPlaced, "a", models.BetRecord{ID: "a", Stake: 100, Odds: 2, PlacedAt: clock.Add(-time.Hour)})
	apply(t, eng, events.BetSettled, "a", events.Settlement{ID: "a", Result: models.ResultWin, ProfitLoss: 100})
	apply(t, eng, events.BetPlaced, "b", models.BetRecord{ID: "b", Stake: 50, Odds: 3, PlacedAt: clock.Add(-48 * time.Hour)})

	var all models.PerformanceMetrics
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/metrics", &all))
	assert.Equal(t, 2, all.TotalBets)
	assert.Equal(t, 100.0, all.ProfitLoss)
	assert.Equal(t, 50.0, all.PendingStake)

	var recent models.PerformanceMetrics
	from := clock.Add(-2 * time.Hour).Format(time.RFC3339)
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/metrics?from="+from, &recent))
	assert.Equal(t, 1, recent.TotalBets)

	var errBody map[string]string
	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/api/v1/metrics?from=yesterday", &errBody))
	assert.Contains(t, errBody["error"], "invalid from")

	to := clock.Add(-3 * time.Hour).Format(time.RFC3339)
	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/api/v1/metrics?from="+from+"&to="+to, nil))
}

func TestTimeSeriesEndpoint(t *testing.T) {
	srv, eng, _ := newTestServer(t)
	eng.Retention().Snapshot(clock)
	eng.Retention().Snapshot(clock.Add(2 * time.Hour))

	var points []models.TimeSeriesData
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/timeseries?interval=1h", &points))
	assert.Len(t, points, 2)

	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/timeseries", &points))
	assert.Len(t, points, 1, "default interval is one day")

	var errBody map[string]string
	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/api/v1/timeseries?interval=5m", &errBody))
	assert.NotEmpty(t, errBody["error"])
}

func TestMarketEndpoints(t *testing.T) {
	srv, eng, _ := newTestServer(t)
	apply(t, eng, events.OddsUpdate, "m1", models.OddsSnapshot{
		MarketID:  "m1",
		Timestamp: clock,
		Quotes: []models.OddsQuote{
			{Bookmaker: "a", Odds: 1.9, Volume: 400, MaxStake: 250},
			{Bookmaker: "b", Odds: 2.1, Volume: 600, MaxStake: 750},
		},
	})

	var ids []string
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/markets", &ids))
	assert.Equal(t, []string{"m1"}, ids)

	var mm models.MarketMetrics
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/markets/m1", &mm))
	assert.Equal(t, "m1", mm.MarketID)
	assert.Equal(t, 1, mm.Snapshots)

	var eff models.MarketEfficiency
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/markets/m1/efficiency", &eff))
	assert.Equal(t, 1000.0, eff.MarketDepth)

	var anomalies []models.Anomaly
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/markets/m1/anomalies", &anomalies))
	assert.Empty(t, anomalies)

	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/api/v1/markets/nope", nil))
	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/api/v1/markets/nope/efficiency", nil))
}

func TestAnomalyHistory(t *testing.T) {
	srv, _, store := newTestServer(t)
	require.NoError(t, store.AddAnomaly(models.Anomaly{
		ID: "x1", MarketID: "m1", Type: models.AnomalyVolume, Severity: models.SeverityHigh, DetectedAt: clock,
	}))
	require.NoError(t, store.AddAnomaly(models.Anomaly{
		ID: "x2", MarketID: "m2", Type: models.AnomalySpread, Severity: models.SeverityLow, DetectedAt: clock.Add(time.Minute),
	}))

	var got []models.Anomaly
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/anomalies", &got))
	require.Len(t, got, 2)
	assert.Equal(t, "x2", got[0].ID)

	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/anomalies?market=m1", &got))
	require.Len(t, got, 1)
	assert.Equal(t, "x1", got[0].ID)

	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/api/v1/anomalies?limit=0", nil))
}

func TestAnomalyHistory_Unavailable(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHandler(nil, nil).AnomalyHistory(rec, httptest.NewRequest(http.MethodGet, "/api/v1/anomalies", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	NewHandler(nil, failingHistory{}).AnomalyHistory(rec, httptest.NewRequest(http.MethodGet, "/api/v1/anomalies", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestPrometheusEndpoint(t *testing.T) {
	srv, eng, _ := newTestServer(t)
	apply(t, eng, events.BetPlaced, "a", models.BetRecord{ID: "a", Stake: 10, Odds: 2, PlacedAt: clock})
	eng.Retention().Snapshot(clock)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	buf := new(strings.Builder)
	_, err = io.Copy(buf, resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "betpulse_")
}

func TestCORSPreflight(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/v1/metrics", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://dashboard.local")
	req.Header.Set("Access-Control-Request-Method", "GET")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
