package main

import (
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/oszuidwest/zwfm-silencewatch/internal/audio"
	"github.com/oszuidwest/zwfm-silencewatch/internal/config"
	"github.com/oszuidwest/zwfm-silencewatch/internal/monitor"
	"github.com/oszuidwest/zwfm-silencewatch/internal/server"
	"github.com/oszuidwest/zwfm-silencewatch/internal/types"
)

// readHeaderTimeout bounds how long a client may take to send headers.
const readHeaderTimeout = 10 * time.Second

// Server is the HTTP server for the WebSocket, REST and metrics surfaces.
type Server struct {
	config          *config.Config
	monitor         *monitor.Monitor
	commands        *server.CommandHandler
	hub             *server.Hub
	metrics         http.Handler
	version         *VersionChecker
	ffmpegAvailable bool
}

// NewServer returns a Server for the given monitor. The hub must already be
// registered as a monitor listener so clients receive pushed events.
func NewServer(cfg *config.Config, mon *monitor.Monitor, commands *server.CommandHandler, hub *server.Hub, metrics http.Handler, ffmpegAvailable bool) *Server {
	return &Server{
		config:          cfg,
		monitor:         mon,
		commands:        commands,
		hub:             hub,
		metrics:         metrics,
		version:         NewVersionChecker(),
		ffmpegAvailable: ffmpegAvailable,
	}
}

// handleWebSocket handles bidirectional WebSocket communication for real-time updates.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := server.UpgradeConnection(w, r)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}

	// Only the writer goroutine writes to the connection. send is never
	// closed: late async results are dropped once the client is gone.
	send := make(chan any, 32)
	done := make(chan struct{})
	statusUpdate := make(chan struct{}, 1)

	s.hub.Register(send)
	defer s.hub.Unregister(send)

	go s.runWebSocketWriter(conn, send, done)
	go s.runWebSocketReader(conn, send, done, statusUpdate)

	s.runWebSocketEventLoop(send, done, statusUpdate)
}

// runWebSocketWriter writes queued messages until the client disconnects.
func (s *Server) runWebSocketWriter(conn server.WebSocketConn, send <-chan any, done <-chan struct{}) {
	defer func() {
		if err := conn.Close(); err != nil {
			slog.Debug("WebSocket close error", "error", err)
		}
	}()
	for {
		select {
		case msg := <-send:
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// runWebSocketReader reads commands from the connection and dispatches them.
func (s *Server) runWebSocketReader(conn server.WebSocketConn, send chan<- any, done, statusUpdate chan<- struct{}) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in WebSocket reader", "panic", r)
		}
		close(done)
	}()

	for {
		var cmd server.WSCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			return
		}
		s.commands.Handle(cmd, send, func() {
			select {
			case statusUpdate <- struct{}{}:
			default:
			}
		})
	}
}

// runWebSocketEventLoop handles periodic status and level updates.
func (s *Server) runWebSocketEventLoop(send chan<- any, done, statusUpdate <-chan struct{}) {
	levelsTicker := time.NewTicker(types.LevelsInterval)
	statusTicker := time.NewTicker(types.StatusInterval)
	defer levelsTicker.Stop()
	defer statusTicker.Stop()

	// trySend reports false once the client is gone.
	trySend := func(msg any) bool {
		select {
		case send <- msg:
			return true
		case <-done:
			return false
		}
	}

	if !trySend(s.buildWSStatus()) {
		return
	}

	for {
		var msg any
		select {
		case <-done:
			return
		case <-statusUpdate:
			msg = s.buildWSStatus()
		case <-levelsTicker.C:
			msg = types.WSLevelsResponse{Type: "levels", Levels: s.monitor.Levels()}
		case <-statusTicker.C:
			msg = s.buildWSStatus()
		}
		if !trySend(msg) {
			return
		}
	}
}

// buildWSStatus returns the current WebSocket status response.
func (s *Server) buildWSStatus() types.WSStatusResponse {
	cfg := s.config.Snapshot()

	return types.WSStatusResponse{
		Type:            "status",
		FFmpegAvailable: s.ffmpegAvailable,
		Monitor:         s.monitor.Status(),
		Statistics:      s.monitor.Detector().Statistics(),
		Devices:         listDevices(),
		Settings:        cfg.Settings(),
		Notifications:   cfg.NotifyStatus(),
		Version:         s.version.Info(),
	}
}

// listDevices converts the platform device list for clients.
func listDevices() []types.AudioDevice {
	devices := audio.Devices()
	out := make([]types.AudioDevice, 0, len(devices))
	for _, d := range devices {
		out = append(out, types.AudioDevice{ID: d.ID, Name: d.Name})
	}
	return out
}

// SetupRoutes returns an [http.Handler] configured with all application routes.
func (s *Server) SetupRoutes() http.Handler {
	mux := http.NewServeMux()
	auth := s.apiKeyAuth

	// Public routes
	mux.HandleFunc("GET /healthz", s.handleHealth)

	// Protected routes
	mux.HandleFunc("GET /ws", auth(s.handleWebSocket))
	mux.HandleFunc("GET /api/status", auth(s.handleAPIStatus))
	mux.HandleFunc("GET /api/silences", auth(s.handleAPISilences))
	mux.HandleFunc("GET /api/silences/stats", auth(s.handleAPISilenceStats))
	mux.HandleFunc("DELETE /api/silences", auth(s.handleAPIResetSilences))
	mux.HandleFunc("GET /api/events", auth(s.handleAPIEvents))
	mux.HandleFunc("POST /api/monitor/start", auth(s.handleAPIMonitorStart))
	mux.HandleFunc("POST /api/monitor/stop", auth(s.handleAPIMonitorStop))
	mux.HandleFunc("GET /api/settings", auth(s.handleAPIGetSettings))
	mux.HandleFunc("POST /api/settings", auth(s.handleAPISettings))
	mux.HandleFunc("POST /api/report", auth(s.handleAPIReport))
	if s.metrics != nil {
		mux.Handle("GET /metrics", auth(s.metrics.ServeHTTP))
	}

	return securityHeaders(mux)
}

// securityHeaders returns middleware that wraps handlers with security headers.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// apiKeyAuth returns middleware for API key authentication. Without a
// configured key all requests pass. Browsers cannot set headers on
// WebSocket upgrades, so the key is also accepted as the api_key query
// parameter.
func (s *Server) apiKeyAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		apiKey := s.config.Snapshot().APIKey
		if apiKey == "" {
			next(w, r)
			return
		}

		providedKey := r.Header.Get("X-API-Key")
		if providedKey == "" {
			providedKey = r.URL.Query().Get("api_key")
		}
		if subtle.ConstantTimeCompare([]byte(providedKey), []byte(apiKey)) != 1 {
			s.writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next(w, r)
	}
}

// Start begins the HTTP server.
// Returns an *http.Server that can be used for graceful shutdown.
func (s *Server) Start() *http.Server {
	addr := fmt.Sprintf(":%d", s.config.Snapshot().WebPort)
	slog.Info("starting web server", "addr", addr)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.SetupRoutes(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	return srv
}
