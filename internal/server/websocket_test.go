package server

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oszuidwest/zwfm-silencewatch/internal/silence"
	"github.com/oszuidwest/zwfm-silencewatch/internal/types"
)

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		name   string
		origin string
		host   string
		want   bool
	}{
		{"no origin", "", "monitor.local:8080", true},
		{"localhost", "http://localhost:3000", "monitor.local:8080", true},
		{"same host", "http://monitor.local:8080", "monitor.local:8080", true},
		{"private ip", "http://192.168.1.20", "monitor.local:8080", true},
		{"foreign", "https://evil.example.com", "monitor.local:8080", false},
		{"garbage", "://", "monitor.local:8080", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/ws", nil)
			r.Host = tt.host
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, checkOrigin(r))
		})
	}
}

func TestHubBroadcast(t *testing.T) {
	hub := NewHub()
	a := make(chan any, 4)
	b := make(chan any, 1)
	hub.Register(a)
	hub.Register(b)
	require.Equal(t, 2, hub.Clients())

	hub.SilenceDetected(silence.Silence{ID: "s1"})
	hub.SilenceAlert(silence.Alert{DurationMs: 25000, Severity: silence.SeverityHigh})

	// b was full after the first event and misses the alert.
	require.Len(t, a, 2)
	require.Len(t, b, 1)

	first := (<-a).(types.WSEvent)
	assert.Equal(t, "silence", first.Type)
	assert.Equal(t, "s1", first.Data.(silence.Silence).ID)
	second := (<-a).(types.WSEvent)
	assert.Equal(t, "alert", second.Type)

	hub.Unregister(b)
	hub.MonitorStateChanged(types.StateStopped)
	assert.Len(t, a, 1)
	assert.Len(t, b, 1)
	assert.Equal(t, 1, hub.Clients())
}
