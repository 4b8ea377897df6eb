package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"connwatch/internal/config"
	"connwatch/internal/logger"
	"connwatch/internal/monitor"
)

func testServer(t *testing.T) (*Server, *monitor.Engine) {
	t.Helper()

	cfg := config.Default()
	cfg.JWT.SecretKey = "test-secret-key-for-unit-tests-only"
	cfg.RateLimit.Enabled = false

	engine := monitor.NewEngine(monitor.DefaultConfig(), logger.NewNop())
	server := NewServer(cfg, engine, nil, nil, nil, logger.NewNop())
	return server, engine
}

func authHeader(t *testing.T, s *Server) string {
	t.Helper()

	token, err := s.jwtManager.GenerateToken("test-user")
	require.NoError(t, err)
	return "Bearer " + token
}

func doJSON(t *testing.T, s *Server, method, path, auth string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealthSummaryEndpoint(t *testing.T) {
	s, _ := testServer(t)

	rec := doJSON(t, s, http.MethodGet, "/api/v1/health/summary", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var summary monitor.SystemHealthSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, monitor.SystemStatusHealthy, summary.OverallStatus)
	assert.Equal(t, 0, summary.TotalConnectors)
}

func TestCallIngestionRequiresAuth(t *testing.T) {
	s, _ := testServer(t)

	outcome := monitor.CallOutcome{ConnectorID: "conn-1", Success: true}
	rec := doJSON(t, s, http.MethodPost, "/api/v1/calls", "", outcome)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/api/v1/calls", "Bearer not-a-token", outcome)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCallIngestionFlow(t *testing.T) {
	s, _ := testServer(t)
	auth := authHeader(t, s)

	connector := monitor.ConnectorConfig{
		Identity:          monitor.ConnectorIdentity{ConnectorID: "conn-1", SourceID: "src-1", Name: "Prices"},
		ExpectedFrequency: monitor.FrequencyDaily,
	}
	rec := doJSON(t, s, http.MethodPost, "/api/v1/connectors", auth, connector)
	require.Equal(t, http.StatusCreated, rec.Code)

	// Duplicate registration is rejected.
	rec = doJSON(t, s, http.MethodPost, "/api/v1/connectors", auth, connector)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/api/v1/calls", auth, monitor.CallOutcome{
		ConnectorID: "conn-1", Endpoint: "/prices", Method: "GET",
		StatusCode: 200, Success: true, ResponseTimeMs: 120,
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/api/v1/connectors/conn-1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var status monitor.APIHealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, int64(1), status.RequestCount)
	assert.Equal(t, monitor.BreakerClosed, status.CircuitBreaker.Status)

	// Missing connector id in the body is a bad request.
	rec = doJSON(t, s, http.MethodPost, "/api/v1/calls", auth, monitor.CallOutcome{Success: true})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Unknown connector is a 404.
	rec = doJSON(t, s, http.MethodGet, "/api/v1/connectors/ghost", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestScorecardEndpoint(t *testing.T) {
	s, engine := testServer(t)
	auth := authHeader(t, s)

	require.NoError(t, engine.RegisterConnector(monitor.ConnectorConfig{
		Identity:          monitor.ConnectorIdentity{ConnectorID: "conn-1", SourceID: "src-1"},
		ExpectedFrequency: monitor.FrequencyDaily,
	}))
	doJSON(t, s, http.MethodPost, "/api/v1/calls", auth, monitor.CallOutcome{
		ConnectorID: "conn-1", StatusCode: 200, Success: true, ResponseTimeMs: 100,
	})

	rec := doJSON(t, s, http.MethodGet, "/api/v1/sources/src-1/scorecard?period=24h", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var card monitor.QualityScorecard
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &card))
	assert.Equal(t, "src-1", card.SourceID)
	assert.Equal(t, monitor.Period24h, card.Period)
	assert.Equal(t, float64(100), card.Availability)

	rec = doJSON(t, s, http.MethodGet, "/api/v1/sources/src-1/scorecard?period=90d", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAlertLifecycleOverHTTP(t *testing.T) {
	s, engine := testServer(t)
	auth := authHeader(t, s)

	require.NoError(t, engine.RegisterConnector(monitor.ConnectorConfig{
		Identity:          monitor.ConnectorIdentity{ConnectorID: "conn-1", SourceID: "src-1"},
		ExpectedFrequency: monitor.FrequencyDaily,
	}))

	// A data point 200 hours old trips the no-debounce stale-data rule.
	engine.RecordDataPoint("src-1", "item-1", time.Now().Add(-200*time.Hour))
	engine.RunCycle()

	rec := doJSON(t, s, http.MethodGet, "/api/v1/alerts?unresolved=true", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var listing struct {
		Alerts []monitor.MonitoringAlert `json:"alerts"`
		Count  int                       `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	require.Equal(t, 1, listing.Count)
	alertID := listing.Alerts[0].ID
	assert.Equal(t, monitor.AlertLevelWarning, listing.Alerts[0].Level)
	assert.Equal(t, "stale-data", listing.Alerts[0].RuleID)

	// Acknowledge requires auth.
	rec = doJSON(t, s, http.MethodPost, "/api/v1/alerts/"+alertID+"/acknowledge", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/api/v1/alerts/"+alertID+"/acknowledge", auth,
		map[string]string{"acknowledged_by": "oncall"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/api/v1/alerts/"+alertID+"/resolve", auth, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Double resolve conflicts.
	rec = doJSON(t, s, http.MethodPost, "/api/v1/alerts/"+alertID+"/resolve", auth, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/api/v1/alerts?unresolved=true", "", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	assert.Equal(t, 0, listing.Count)
}

func TestAlertRulesUpdateOverHTTP(t *testing.T) {
	s, _ := testServer(t)
	auth := authHeader(t, s)

	rec := doJSON(t, s, http.MethodGet, "/api/v1/alert-rules", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var listing struct {
		Rules []monitor.AlertRule `json:"rules"`
		Count int                 `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	assert.Equal(t, 4, listing.Count, "default rule set ships four rules")

	// An invalid batch is rejected wholesale.
	bad := map[string]interface{}{"rules": []monitor.AlertRule{{
		ID: "broken", Enabled: true, MetricType: "made-up",
		Condition: monitor.ConditionAbove, Level: monitor.AlertLevelInfo, CooldownMinutes: 10,
	}}}
	rec = doJSON(t, s, http.MethodPut, "/api/v1/alert-rules", auth, bad)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/api/v1/alert-rules", "", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	assert.Equal(t, 4, listing.Count, "rejected update must leave prior rules active")

	good := map[string]interface{}{"rules": []monitor.AlertRule{{
		ID: "only-rule", Enabled: true, MetricType: monitor.MetricResponseTime,
		Condition: monitor.ConditionAbove, Threshold: 2000,
		Level: monitor.AlertLevelWarning, CooldownMinutes: 15,
	}}}
	rec = doJSON(t, s, http.MethodPut, "/api/v1/alert-rules", auth, good)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/api/v1/alert-rules", "", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	require.Equal(t, 1, listing.Count)
	assert.Equal(t, "only-rule", listing.Rules[0].ID)
}

func TestHealthzEndpoint(t *testing.T) {
	s, _ := testServer(t)

	rec := doJSON(t, s, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := testServer(t)

	rec := doJSON(t, s, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
