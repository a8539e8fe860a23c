package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oszuidwest/zwfm-silencewatch/internal/config"
	"github.com/oszuidwest/zwfm-silencewatch/internal/monitor"
	"github.com/oszuidwest/zwfm-silencewatch/internal/server"
	"github.com/oszuidwest/zwfm-silencewatch/internal/types"
)

const testAPIKey = "s3cret"

func newTestServer(t *testing.T, apiKey string) (*Server, http.Handler) {
	t.Helper()
	cfg := config.New(filepath.Join(t.TempDir(), "config.json"))
	if apiKey != "" {
		require.NoError(t, cfg.SetAPIKey(apiKey))
	}

	mon := monitor.New(cfg)
	t.Cleanup(func() { _ = mon.Close() })
	hub := server.NewHub()
	mon.AddListener(hub)
	commands := server.NewCommandHandler(cfg, mon, nil, nil, nil)

	srv := NewServer(cfg, mon, commands, hub, nil, false)
	return srv, srv.SetupRoutes()
}

func serve(h http.Handler, method, target, body string, header http.Header) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, http.NoBody)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAPIKeyAuth(t *testing.T) {
	_, h := newTestServer(t, testAPIKey)

	tests := []struct {
		name   string
		target string
		header http.Header
		want   int
	}{
		{"health is public", "/healthz", nil, http.StatusOK},
		{"missing key", "/api/status", nil, http.StatusUnauthorized},
		{"wrong key", "/api/status", http.Header{"X-Api-Key": {"nope"}}, http.StatusUnauthorized},
		{"header key", "/api/status", http.Header{"X-Api-Key": {testAPIKey}}, http.StatusOK},
		{"query key", "/api/status?api_key=" + testAPIKey, nil, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(h, http.MethodGet, tt.target, "", tt.header)
			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
		})
	}
}

func TestAPIOpenWithoutKey(t *testing.T) {
	_, h := newTestServer(t, "")

	rec := serve(h, http.MethodGet, "/api/status", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, types.StateStopped, body.Monitor.State)
	assert.Equal(t, -40.0, body.Settings.ThresholdDB)
	assert.Equal(t, int64(100), body.Settings.IntervalMs)
}

func TestAPISettings(t *testing.T) {
	srv, h := newTestServer(t, "")

	rec := serve(h, http.MethodPost, "/api/settings", `{"threshold_db": 5}`, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = serve(h, http.MethodPost, "/api/settings", `{not json`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(h, http.MethodPost, "/api/settings", `{"threshold_db": -50, "natural_max_ms": 8000}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var settings types.SilenceSettings
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &settings))
	assert.Equal(t, -50.0, settings.ThresholdDB)
	assert.Equal(t, int64(8000), settings.NaturalMaxMs)
	assert.Equal(t, int64(3000), settings.MinDurationMs)

	snap := srv.config.Snapshot()
	assert.Equal(t, -50.0, snap.SilenceThreshold)

	rec = serve(h, http.MethodGet, "/api/settings", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"natural_max_ms":8000`)
}

func TestAPIMonitorWithoutSource(t *testing.T) {
	_, h := newTestServer(t, "")

	rec := serve(h, http.MethodPost, "/api/monitor/start", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = serve(h, http.MethodPost, "/api/monitor/stop", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPISilences(t *testing.T) {
	_, h := newTestServer(t, "")

	rec := serve(h, http.MethodGet, "/api/silences?category=bogus", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(h, http.MethodGet, "/api/silences?category=unnatural", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = serve(h, http.MethodGet, "/api/silences/stats", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":0`)

	rec = serve(h, http.MethodDelete, "/api/silences", "", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = serve(h, http.MethodPut, "/api/silences", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAPIEvents(t *testing.T) {
	_, h := newTestServer(t, "")

	rec := serve(h, http.MethodGet, "/api/events?limit=10", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"events":[]`)

	rec = serve(h, http.MethodGet, "/api/events?limit=ten", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(h, http.MethodGet, "/api/events?filter=bogus", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPIReportWithoutScheduler(t *testing.T) {
	_, h := newTestServer(t, "")

	rec := serve(h, http.MethodPost, "/api/report", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
