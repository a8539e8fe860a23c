package server

import (
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/oszuidwest/zwfm-silencewatch/internal/silence"
	"github.com/oszuidwest/zwfm-silencewatch/internal/types"
)

// WebSocketConn is the interface for WebSocket connection operations.
type WebSocketConn interface {
	io.Closer
	WriteJSON(v any) error
	ReadJSON(v any) error
}

var upgrader = websocket.Upgrader{
	CheckOrigin: checkOrigin,
}

// checkOrigin reports whether the WebSocket connection origin is allowed.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	// Same-origin requests omit the Origin header
	if origin == "" {
		return true
	}

	u, err := url.Parse(origin)
	if err != nil {
		slog.Warn("rejected WebSocket connection: invalid origin URL", "origin", origin)
		return false
	}

	host := u.Hostname()
	if host == "localhost" {
		return true
	}

	requestHost := r.Host
	if h, _, err := net.SplitHostPort(requestHost); err == nil {
		requestHost = h
	}
	if host == requestHost {
		return true
	}

	ip := net.ParseIP(host)
	if ip != nil && (ip.IsLoopback() || ip.IsPrivate()) {
		return true
	}

	slog.Warn("rejected WebSocket connection", "origin", origin, "host", host)
	return false
}

// UpgradeConnection upgrades an HTTP connection to WebSocket.
func UpgradeConnection(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	return upgrader.Upgrade(w, r, nil)
}

// Hub fans detector events out to connected clients. It implements the
// monitor's listener interfaces and never blocks the polling loop: a client
// whose queue is full misses the event.
type Hub struct {
	mu      sync.RWMutex
	clients map[chan<- any]struct{}
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[chan<- any]struct{})}
}

// Register adds a client queue.
func (h *Hub) Register(send chan<- any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[send] = struct{}{}
}

// Unregister removes a client queue. After it returns the hub no longer
// writes to send, so the caller may close it.
func (h *Hub) Unregister(send chan<- any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, send)
}

// Clients returns the number of registered clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SilenceDetected pushes a finished silence.
func (h *Hub) SilenceDetected(s silence.Silence) {
	h.broadcast(types.WSEvent{Type: "silence", Data: s})
}

// SilenceAlert pushes an alert for the open run.
func (h *Hub) SilenceAlert(a silence.Alert) {
	h.broadcast(types.WSEvent{Type: "alert", Data: a})
}

// MonitorStateChanged pushes the new lifecycle state.
func (h *Hub) MonitorStateChanged(state types.MonitorState) {
	h.broadcast(types.WSEvent{Type: "monitor_state", Data: state})
}

func (h *Hub) broadcast(msg types.WSEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for send := range h.clients {
		select {
		case send <- msg:
		default:
			slog.Debug("dropped event for slow client", "type", msg.Type)
		}
	}
}
