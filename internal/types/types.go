// Package types provides shared type definitions used across the monitor.
package types

import "time"

// MonitorState represents the current state of the monitor loop.
type MonitorState string

const (
	// StateStopped indicates the monitor is not polling.
	StateStopped MonitorState = "stopped"
	// StateRunning indicates the monitor is polling its source.
	StateRunning MonitorState = "running"
	// StateStopping indicates the monitor is flushing and shutting down.
	StateStopping MonitorState = "stopping"
)

const (
	// ShutdownTimeout bounds graceful shutdown of processes and servers.
	ShutdownTimeout = 3000 * time.Millisecond
	// LevelsInterval is how often live levels are pushed to clients.
	LevelsInterval = 100 * time.Millisecond
	// StatusInterval is how often full status is pushed to clients.
	StatusInterval = 3000 * time.Millisecond
)

// MonitorStatus summarizes the monitor's operational state.
type MonitorStatus struct {
	State      MonitorState `json:"state"`
	Uptime     string       `json:"uptime,omitzero"`
	Source     string       `json:"source,omitzero"`
	LastError  string       `json:"last_error,omitzero"`
	Ticks      uint64       `json:"ticks"`
	IntervalMs int64        `json:"interval_ms"`
}

// RunStatus describes the open silence run, if any.
type RunStatus struct {
	Open       bool      `json:"open"`
	StartTime  time.Time `json:"start_time,omitzero"`
	DurationMs int64     `json:"duration_ms,omitzero"`
	AvgDB      float64   `json:"avg_db,omitzero"`
	AlertSent  bool      `json:"alert_sent,omitzero"`
}

// Levels contains the live loudness reading.
type Levels struct {
	LevelDB float64   `json:"level_db"`
	PeakDB  float64   `json:"peak_db"`
	Silent  bool      `json:"silent"`
	Run     RunStatus `json:"run"`
}

// WSStatusResponse is sent to clients with the full monitor status.
type WSStatusResponse struct {
	Type            string          `json:"type"`
	FFmpegAvailable bool            `json:"ffmpeg_available"`
	Monitor         MonitorStatus   `json:"monitor"`
	Statistics      any             `json:"statistics"`
	Devices         []AudioDevice   `json:"devices"`
	Settings        SilenceSettings `json:"settings"`
	Notifications   NotifyStatus    `json:"notifications"`
	Version         VersionInfo     `json:"version"`
}

// SilenceSettings mirrors the effective detection settings.
type SilenceSettings struct {
	AudioInput       string  `json:"audio_input"`
	ThresholdDB      float64 `json:"threshold_db"`
	MinDurationMs    int64   `json:"min_duration_ms"`
	NaturalMaxMs     int64   `json:"natural_max_ms"`
	IntervalMs       int64   `json:"interval_ms"`
	NotificationMs   int64   `json:"notification_ms"`
	AIClassification bool    `json:"ai_classification"`
}

// NotifyStatus reports which notification channels are configured.
type NotifyStatus struct {
	Webhook  bool `json:"webhook"`
	Email    bool `json:"email"`
	Zabbix   bool `json:"zabbix"`
	MQTT     bool `json:"mqtt"`
	Shoutrrr bool `json:"shoutrrr"`
}

// WSLevelsResponse is sent to clients with live level updates.
type WSLevelsResponse struct {
	Type   string `json:"type"`
	Levels Levels `json:"levels"`
}

// WSEvent pushes a detector event to clients.
type WSEvent struct {
	Type string `json:"type"` // "silence" or "alert"
	Data any    `json:"data"`
}

// WSTestResult is sent to clients after a notification test completes.
type WSTestResult struct {
	Type     string `json:"type"`
	TestType string `json:"test_type"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
}

// AudioDevice represents an available audio input device.
type AudioDevice struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// GraphConfig contains Microsoft Graph API settings for email notifications.
type GraphConfig struct {
	TenantID     string `json:"tenant_id,omitempty"`     // Azure AD tenant ID
	ClientID     string `json:"client_id,omitempty"`     // App registration client ID
	ClientSecret string `json:"client_secret,omitempty"` // App registration client secret
	FromAddress  string `json:"from_address,omitempty"`  // Shared mailbox address (sender)
	Recipients   string `json:"recipients,omitempty"`    // Comma-separated recipients
}

// ZabbixConfig contains settings for sending trapper items to a Zabbix server.
type ZabbixConfig struct {
	Server string `json:"server,omitempty"`
	Port   int    `json:"port,omitempty"`
	Host   string `json:"host,omitempty"`
	Key    string `json:"key,omitempty"`
}

// MQTTConfig contains broker settings for publishing alerts.
type MQTTConfig struct {
	Broker      string `json:"broker,omitempty"` // e.g. tcp://localhost:1883
	ClientID    string `json:"client_id,omitempty"`
	Username    string `json:"username,omitempty"`
	Password    string `json:"password,omitempty"`
	TopicPrefix string `json:"topic_prefix,omitempty"`
}

// S3Config contains settings for an S3-compatible report archive.
type S3Config struct {
	Endpoint        string `json:"endpoint,omitempty"`
	Region          string `json:"region,omitempty"`
	Bucket          string `json:"bucket,omitempty"`
	AccessKeyID     string `json:"access_key_id,omitempty"`
	SecretAccessKey string `json:"secret_access_key,omitempty"`
	Prefix          string `json:"prefix,omitempty"`
}

// SecretExpiryInfo contains client secret expiration data.
type SecretExpiryInfo struct {
	ExpiresAt   string `json:"expires_at,omitempty"`   // RFC3339 expiration timestamp
	ExpiresSoon bool   `json:"expires_soon,omitempty"` // True if expires within 30 days
	DaysLeft    int    `json:"days_left,omitempty"`    // Days until expiration
	Error       string `json:"error,omitempty"`        // Error message if check failed
}

// VersionInfo contains version comparison data.
type VersionInfo struct {
	Current     string `json:"current"`              // Current version
	Latest      string `json:"latest,omitempty"`     // Latest available version
	UpdateAvail bool   `json:"update_available"`     // Update is available
	Commit      string `json:"commit,omitempty"`     // Git commit hash
	BuildTime   string `json:"build_time,omitempty"` // Build timestamp
}
