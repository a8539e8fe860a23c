package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/oszuidwest/zwfm-silencewatch/internal/monitor"
	"github.com/oszuidwest/zwfm-silencewatch/internal/server"
	"github.com/oszuidwest/zwfm-silencewatch/internal/silence"
	"github.com/oszuidwest/zwfm-silencewatch/internal/types"
)

// maxRequestBody limits JSON request bodies.
const maxRequestBody = 64 << 10

// API response helpers

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// parseJSON reads and validates a JSON request body.
// Returns parsed value and true on success, zero value and false on failure.
func parseJSON[T any](s *Server, w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&v); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return v, false
	}
	if verr := server.Validate(&v); verr != nil {
		s.writeJSON(w, http.StatusUnprocessableEntity, verr)
		return v, false
	}
	return v, true
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

// statusResponse is the body of GET /api/status.
type statusResponse struct {
	Monitor       types.MonitorStatus   `json:"monitor"`
	Levels        types.Levels          `json:"levels"`
	Statistics    silence.Statistics    `json:"statistics"`
	Settings      types.SilenceSettings `json:"settings"`
	Notifications types.NotifyStatus    `json:"notifications"`
	Version       types.VersionInfo     `json:"version"`
}

// handleHealth reports liveness without authentication.
// GET /healthz
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "state": string(s.monitor.State())})
}

// handleAPIStatus returns monitor state, live levels and the log summary.
// GET /api/status
func (s *Server) handleAPIStatus(w http.ResponseWriter, _ *http.Request) {
	cfg := s.config.Snapshot()
	s.writeJSON(w, http.StatusOK, statusResponse{
		Monitor:       s.monitor.Status(),
		Levels:        s.monitor.Levels(),
		Statistics:    s.monitor.Detector().Statistics(),
		Settings:      cfg.Settings(),
		Notifications: cfg.NotifyStatus(),
		Version:       s.version.Info(),
	})
}

// handleAPISilences returns the silence log, optionally one category.
// GET /api/silences[?category=natural|unnatural]
func (s *Server) handleAPISilences(w http.ResponseWriter, r *http.Request) {
	category := silence.Category(r.URL.Query().Get("category"))
	switch category {
	case "", silence.CategoryNatural, silence.CategoryUnnatural:
	default:
		s.writeError(w, http.StatusBadRequest, "category must be natural or unnatural")
		return
	}
	s.writeJSON(w, http.StatusOK, s.commands.ListSilences(category))
}

// handleAPISilenceStats returns aggregate statistics.
// GET /api/silences/stats
func (s *Server) handleAPISilenceStats(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.monitor.Detector().Statistics())
}

// handleAPIResetSilences clears the silence log.
// DELETE /api/silences
func (s *Server) handleAPIResetSilences(w http.ResponseWriter, _ *http.Request) {
	s.commands.ResetSilences()
	w.WriteHeader(http.StatusNoContent)
}

// handleAPIEvents returns a page of the event log, newest first.
// GET /api/events?limit=&offset=&filter=
func (s *Server) handleAPIEvents(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil || offset < 0 {
		s.writeError(w, http.StatusBadRequest, "invalid offset")
		return
	}

	page, err := s.commands.ReadEvents(limit, offset, r.URL.Query().Get("filter"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, page)
}

// handleAPIMonitorStart starts polling.
// POST /api/monitor/start
func (s *Server) handleAPIMonitorStart(w http.ResponseWriter, _ *http.Request) {
	if err := s.monitor.Start(); err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, monitor.ErrAlreadyRunning):
			status = http.StatusConflict
		case errors.Is(err, monitor.ErrNoSource):
			status = http.StatusServiceUnavailable
		}
		s.writeError(w, status, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, s.monitor.Status())
}

// handleAPIMonitorStop stops polling and flushes the open run.
// POST /api/monitor/stop
func (s *Server) handleAPIMonitorStop(w http.ResponseWriter, _ *http.Request) {
	if err := s.monitor.Stop(); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, s.monitor.Status())
}

// handleAPIGetSettings returns the effective detection settings.
// GET /api/settings
func (s *Server) handleAPIGetSettings(w http.ResponseWriter, _ *http.Request) {
	cfg := s.config.Snapshot()
	s.writeJSON(w, http.StatusOK, cfg.Settings())
}

// handleAPISettings updates detection settings. Omitted fields keep their
// current value.
// POST /api/settings
func (s *Server) handleAPISettings(w http.ResponseWriter, r *http.Request) {
	req, ok := parseJSON[server.SilenceUpdateRequest](s, w, r)
	if !ok {
		return
	}

	settings, err := s.commands.UpdateSilence(&req)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, settings)
}

// handleAPIReport builds and delivers a report now.
// POST /api/report
func (s *Server) handleAPIReport(w http.ResponseWriter, r *http.Request) {
	res, err := s.commands.RunReport(r.Context())
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}
