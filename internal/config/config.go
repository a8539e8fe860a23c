// Package config provides application configuration management.
package config

import (
	"cmp"
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sethvargo/go-envconfig"

	"github.com/oszuidwest/zwfm-silencewatch/internal/silence"
	"github.com/oszuidwest/zwfm-silencewatch/internal/types"
	"github.com/oszuidwest/zwfm-silencewatch/internal/util"
)

// Configuration defaults are used when values are not specified.
const (
	DefaultWebPort         = 8080
	DefaultStationName     = "ZuidWest FM"
	DefaultIntervalMs      = 100
	DefaultEventLogFile    = "silence-events.jsonl"
	DefaultReportSchedule  = "0 0 * * *"
	DefaultReportPrefix    = "reports"
	DefaultMQTTTopicPrefix = "silencewatch"
	DefaultZabbixPort      = 10051
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "text"

	// MinIntervalMs is the fastest supported polling interval.
	MinIntervalMs = 10
)

// Station name: any printable characters except control chars (blocks CRLF injection in emails)
var stationNamePattern = regexp.MustCompile(`^[^\x00-\x1F\x7F]+$`)

// SystemConfig holds system-level settings that require restart.
type SystemConfig struct {
	FFmpegPath string `json:"ffmpeg_path"` // Path to FFmpeg binary (empty = use PATH)
	Port       int    `json:"port"`        // HTTP server port
	APIKey     string `json:"api_key"`     // Required X-API-Key for HTTP and WebSocket access (empty = open)
	LogLevel   string `json:"log_level"`   // debug, info, warn, error
	LogFormat  string `json:"log_format"`  // text or json
}

// StationConfig holds the station identity used in notifications.
type StationConfig struct {
	Name string `json:"name"`
}

// AudioConfig holds audio input device settings.
type AudioConfig struct {
	Input string `json:"input"` // Audio input device identifier
}

// SilenceDetectionConfig holds the detection thresholds and timing. It is
// persisted as one object and replaced as a whole on update. A nil field
// means the default; zero is a real value.
type SilenceDetectionConfig struct {
	ThresholdDB      *float64 `json:"threshold_db,omitempty"`
	MinDurationMs    *int64   `json:"min_duration_ms,omitempty"`
	NaturalMaxMs     *int64   `json:"natural_max_ms,omitempty"`
	IntervalMs       *int64   `json:"interval_ms,omitempty"`
	NotificationMs   *int64   `json:"notification_ms,omitempty"`
	AIClassification *bool    `json:"ai_classification,omitempty"`
}

// WebhookConfig holds webhook notification settings.
type WebhookConfig struct {
	URL string `json:"url"`
}

// ShoutrrrConfig holds service URLs for chat and push notifications.
type ShoutrrrConfig struct {
	URLs []string `json:"urls"`
}

// NotificationsConfig holds all notification channel settings.
type NotificationsConfig struct {
	Webhook  WebhookConfig      `json:"webhook"`
	Email    types.GraphConfig  `json:"email"`
	Zabbix   types.ZabbixConfig `json:"zabbix"`
	MQTT     types.MQTTConfig   `json:"mqtt"`
	Shoutrrr ShoutrrrConfig     `json:"shoutrrr"`
}

// EventLogConfig holds the JSON-lines event log location.
type EventLogConfig struct {
	Path string `json:"path"`
}

// ReportConfig holds scheduled report settings.
type ReportConfig struct {
	Enabled  bool           `json:"enabled"`
	Schedule string         `json:"schedule"` // Standard 5-field cron expression
	Email    bool           `json:"email"`    // Also mail the summary via Graph
	S3       types.S3Config `json:"s3"`
}

// EnvOverrides are settings taken from the environment. They win over the
// file but are never written back to it.
type EnvOverrides struct {
	Port       int    `env:"SILENCEWATCH_PORT"`
	APIKey     string `env:"SILENCEWATCH_API_KEY"`
	AudioInput string `env:"SILENCEWATCH_AUDIO_INPUT"`
	FFmpegPath string `env:"SILENCEWATCH_FFMPEG_PATH"`
	LogLevel   string `env:"SILENCEWATCH_LOG_LEVEL"`
	LogFormat  string `env:"SILENCEWATCH_LOG_FORMAT"`
}

// Config holds all application configuration. It is safe for concurrent use.
type Config struct {
	System           SystemConfig           `json:"system"`
	Station          StationConfig          `json:"station"`
	Audio            AudioConfig            `json:"audio"`
	SilenceDetection SilenceDetectionConfig `json:"silence_detection"`
	Notifications    NotificationsConfig    `json:"notifications"`
	EventLog         EventLogConfig         `json:"event_log"`
	Report           ReportConfig           `json:"report"`

	mu       sync.RWMutex
	filePath string
	env      EnvOverrides
}

// New creates a new Config with default values.
func New(filePath string) *Config {
	return &Config{
		System: SystemConfig{
			Port:      DefaultWebPort,
			LogLevel:  DefaultLogLevel,
			LogFormat: DefaultLogFormat,
		},
		Station:  StationConfig{Name: DefaultStationName},
		Report:   ReportConfig{Schedule: DefaultReportSchedule},
		filePath: filePath,
	}
}

// Load reads config from file, creating a default if none exists.
func (c *Config) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.filePath)
	if os.IsNotExist(err) {
		return c.saveLocked()
	}
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	if err := json.Unmarshal(data, c); err != nil {
		return util.WrapError("parse config", err)
	}

	c.applyDefaults()

	return c.validate()
}

// LoadEnv applies environment overrides.
func (c *Config) LoadEnv(ctx context.Context) error {
	var env EnvOverrides
	if err := envconfig.Process(ctx, &env); err != nil {
		return util.WrapError("read environment", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.env = env
	return nil
}

// Path returns the config file path.
func (c *Config) Path() string {
	return c.filePath
}

// validate checks all configuration fields for correctness.
func (c *Config) validate() error {
	name := c.Station.Name
	if name == "" || len(name) > 30 || !stationNamePattern.MatchString(name) {
		return fmt.Errorf("invalid station name %q: must be 1-30 printable characters", name)
	}
	if c.EventLog.Path != "" {
		if err := util.ValidatePath("event_log.path", c.EventLog.Path); err != nil {
			return err
		}
	}
	if err := ValidateSchedule(c.Report.Schedule); err != nil {
		return err
	}
	return ValidateSilenceDetection(c.SilenceDetection)
}

// ValidateSchedule checks a standard five-field cron expression. Empty
// means the default schedule.
func ValidateSchedule(expr string) error {
	if expr == "" {
		return nil
	}
	if _, err := cron.ParseStandard(expr); err != nil {
		return fmt.Errorf("invalid report schedule %q: %w", expr, err)
	}
	return nil
}

// ValidateSilenceDetection checks the detection settings that are set.
func ValidateSilenceDetection(s SilenceDetectionConfig) error {
	switch {
	case s.ThresholdDB != nil && (*s.ThresholdDB > 0 || *s.ThresholdDB < -100):
		return fmt.Errorf("invalid threshold_db %.1f: must be between -100 and 0", *s.ThresholdDB)
	case s.MinDurationMs != nil && *s.MinDurationMs < 0:
		return fmt.Errorf("invalid min_duration_ms %d: must not be negative", *s.MinDurationMs)
	case s.NaturalMaxMs != nil && *s.NaturalMaxMs < 0:
		return fmt.Errorf("invalid natural_max_ms %d: must not be negative", *s.NaturalMaxMs)
	case s.NotificationMs != nil && *s.NotificationMs < 0:
		return fmt.Errorf("invalid notification_ms %d: must not be negative", *s.NotificationMs)
	case s.IntervalMs != nil && *s.IntervalMs < MinIntervalMs:
		return fmt.Errorf("invalid interval_ms %d: must be at least %d", *s.IntervalMs, MinIntervalMs)
	}
	return nil
}

// valueOr dereferences p, or returns def when p is nil.
func valueOr[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}

// applyDefaults sets default values for zero-value fields.
func (c *Config) applyDefaults() {
	if c.System.Port == 0 {
		c.System.Port = DefaultWebPort
	}
	if c.System.LogLevel == "" {
		c.System.LogLevel = DefaultLogLevel
	}
	if c.System.LogFormat == "" {
		c.System.LogFormat = DefaultLogFormat
	}
	if c.Station.Name == "" {
		c.Station.Name = DefaultStationName
	}
	if c.Report.Schedule == "" {
		c.Report.Schedule = DefaultReportSchedule
	}
}

// saveLocked persists configuration. Caller must hold c.mu.
func (c *Config) saveLocked() error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return util.WrapError("marshal config", err)
	}

	dir := filepath.Dir(c.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return util.WrapError("create config directory", err)
	}

	if err := os.WriteFile(c.filePath, data, 0o600); err != nil {
		return util.WrapError("write config", err)
	}

	return nil
}

// --- Setters for individual settings ---

// SetAudioInput updates the audio input device and saves the configuration.
func (c *Config) SetAudioInput(input string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Audio.Input = input
	return c.saveLocked()
}

// SetSilenceDetection replaces the detection settings and saves the configuration.
func (c *Config) SetSilenceDetection(s SilenceDetectionConfig) error {
	if err := ValidateSilenceDetection(s); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SilenceDetection = s
	return c.saveLocked()
}

// OverrideSilenceDetection replaces the detection settings in memory only.
// It is used by one-shot commands that must not rewrite the config file.
func (c *Config) OverrideSilenceDetection(s SilenceDetectionConfig) error {
	if err := ValidateSilenceDetection(s); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SilenceDetection = s
	return nil
}

// SetWebhookURL updates the webhook URL and saves the configuration.
func (c *Config) SetWebhookURL(url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Notifications.Webhook.URL = url
	return c.saveLocked()
}

// SetGraphConfig updates the Microsoft Graph email settings and saves.
func (c *Config) SetGraphConfig(g types.GraphConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Notifications.Email = g
	return c.saveLocked()
}

// SetZabbixConfig updates the Zabbix trapper settings and saves.
func (c *Config) SetZabbixConfig(z types.ZabbixConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Notifications.Zabbix = z
	return c.saveLocked()
}

// SetMQTTConfig updates the MQTT broker settings and saves.
func (c *Config) SetMQTTConfig(m types.MQTTConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Notifications.MQTT = m
	return c.saveLocked()
}

// SetShoutrrrURLs updates the shoutrrr service URLs and saves.
func (c *Config) SetShoutrrrURLs(urls []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Notifications.Shoutrrr.URLs = slices.Clone(urls)
	return c.saveLocked()
}

// SetReportConfig updates the report settings and saves.
func (c *Config) SetReportConfig(r ReportConfig) error {
	if err := ValidateSchedule(r.Schedule); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Report = r
	return c.saveLocked()
}

// SetAPIKey updates the API key and saves the configuration.
func (c *Config) SetAPIKey(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.System.APIKey = key
	return c.saveLocked()
}

// --- Snapshot for atomic reads ---

// Snapshot is a point-in-time copy of configuration values.
type Snapshot struct {
	// System
	WebPort    int
	APIKey     string
	FFmpegPath string
	LogLevel   string
	LogFormat  string

	StationName string
	AudioInput  string

	// Silence detection
	SilenceThreshold      float64
	SilenceMinDurationMs  int64
	SilenceNaturalMaxMs   int64
	SilenceIntervalMs     int64
	SilenceNotificationMs int64
	SilenceAI             bool

	// Notifications
	WebhookURL   string
	Graph        types.GraphConfig
	Zabbix       types.ZabbixConfig
	MQTT         types.MQTTConfig
	ShoutrrrURLs []string

	EventLogPath string
	Report       ReportConfig
}

// Snapshot returns a point-in-time copy of all configuration values with
// defaults and environment overrides applied.
func (c *Config) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	sd := c.SilenceDetection

	mqtt := c.Notifications.MQTT
	mqtt.TopicPrefix = cmp.Or(mqtt.TopicPrefix, DefaultMQTTTopicPrefix)
	zabbix := c.Notifications.Zabbix
	zabbix.Port = cmp.Or(zabbix.Port, DefaultZabbixPort)
	report := c.Report
	report.Schedule = cmp.Or(report.Schedule, DefaultReportSchedule)
	report.S3.Prefix = cmp.Or(report.S3.Prefix, DefaultReportPrefix)

	return Snapshot{
		WebPort:    cmp.Or(c.env.Port, c.System.Port, DefaultWebPort),
		APIKey:     cmp.Or(c.env.APIKey, c.System.APIKey),
		FFmpegPath: cmp.Or(c.env.FFmpegPath, c.System.FFmpegPath),
		LogLevel:   cmp.Or(c.env.LogLevel, c.System.LogLevel, DefaultLogLevel),
		LogFormat:  cmp.Or(c.env.LogFormat, c.System.LogFormat, DefaultLogFormat),

		StationName: cmp.Or(c.Station.Name, DefaultStationName),
		AudioInput:  cmp.Or(c.env.AudioInput, c.Audio.Input),

		SilenceThreshold:      valueOr(sd.ThresholdDB, silence.DefaultThresholdDB),
		SilenceMinDurationMs:  valueOr(sd.MinDurationMs, silence.DefaultMinDurationMs),
		SilenceNaturalMaxMs:   valueOr(sd.NaturalMaxMs, silence.DefaultNaturalMaxMs),
		SilenceIntervalMs:     valueOr(sd.IntervalMs, DefaultIntervalMs),
		SilenceNotificationMs: valueOr(sd.NotificationMs, silence.DefaultNotificationMs),
		SilenceAI:             valueOr(sd.AIClassification, true),

		WebhookURL:   c.Notifications.Webhook.URL,
		Graph:        c.Notifications.Email,
		Zabbix:       zabbix,
		MQTT:         mqtt,
		ShoutrrrURLs: slices.Clone(c.Notifications.Shoutrrr.URLs),

		EventLogPath: cmp.Or(c.EventLog.Path, filepath.Join(filepath.Dir(c.filePath), DefaultEventLogFile)),
		Report:       report,
	}
}

// Detection returns the effective detection settings with every field set,
// ready to be modified and passed to SetSilenceDetection.
func (s *Snapshot) Detection() SilenceDetectionConfig {
	threshold, minDur, naturalMax := s.SilenceThreshold, s.SilenceMinDurationMs, s.SilenceNaturalMaxMs
	interval, notification, ai := s.SilenceIntervalMs, s.SilenceNotificationMs, s.SilenceAI
	return SilenceDetectionConfig{
		ThresholdDB:      &threshold,
		MinDurationMs:    &minDur,
		NaturalMaxMs:     &naturalMax,
		IntervalMs:       &interval,
		NotificationMs:   &notification,
		AIClassification: &ai,
	}
}

// Silence returns the detector settings.
func (s *Snapshot) Silence() silence.Config {
	return silence.Config{
		ThresholdDB:    s.SilenceThreshold,
		MinDurationMs:  s.SilenceMinDurationMs,
		NaturalMaxMs:   s.SilenceNaturalMaxMs,
		NotificationMs: s.SilenceNotificationMs,
		Assess:         s.SilenceAI,
	}
}

// Interval returns the polling interval.
func (s *Snapshot) Interval() time.Duration {
	return time.Duration(s.SilenceIntervalMs) * time.Millisecond
}

// Settings returns the effective detection settings for clients.
func (s *Snapshot) Settings() types.SilenceSettings {
	return types.SilenceSettings{
		AudioInput:       s.AudioInput,
		ThresholdDB:      s.SilenceThreshold,
		MinDurationMs:    s.SilenceMinDurationMs,
		NaturalMaxMs:     s.SilenceNaturalMaxMs,
		IntervalMs:       s.SilenceIntervalMs,
		NotificationMs:   s.SilenceNotificationMs,
		AIClassification: s.SilenceAI,
	}
}

// HasWebhook reports whether a webhook URL is configured.
func (s *Snapshot) HasWebhook() bool {
	return s.WebhookURL != ""
}

// HasGraph reports whether Microsoft Graph email notifications are configured.
func (s *Snapshot) HasGraph() bool {
	return util.IsConfigured(s.Graph.TenantID, s.Graph.ClientID, s.Graph.ClientSecret,
		s.Graph.FromAddress, s.Graph.Recipients)
}

// HasZabbix reports whether Zabbix trapper notifications are configured.
func (s *Snapshot) HasZabbix() bool {
	return util.IsConfigured(s.Zabbix.Server, s.Zabbix.Host, s.Zabbix.Key)
}

// HasMQTT reports whether an MQTT broker is configured.
func (s *Snapshot) HasMQTT() bool {
	return s.MQTT.Broker != ""
}

// HasShoutrrr reports whether any shoutrrr service URL is configured.
func (s *Snapshot) HasShoutrrr() bool {
	return len(s.ShoutrrrURLs) > 0
}

// HasS3 reports whether the report archive is configured.
func (s *Snapshot) HasS3() bool {
	return util.IsConfigured(s.Report.S3.Bucket, s.Report.S3.AccessKeyID, s.Report.S3.SecretAccessKey)
}

// NotifyStatus reports which channels are configured.
func (s *Snapshot) NotifyStatus() types.NotifyStatus {
	return types.NotifyStatus{
		Webhook:  s.HasWebhook(),
		Email:    s.HasGraph(),
		Zabbix:   s.HasZabbix(),
		MQTT:     s.HasMQTT(),
		Shoutrrr: s.HasShoutrrr(),
	}
}

// --- Utility functions ---

// GenerateAPIKey generates a new random 32-character alphanumeric API key.
func GenerateAPIKey() (string, error) {
	const chars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	const length = 32
	result := make([]byte, length)
	for i := range result {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(chars))))
		if err != nil {
			return "", err
		}
		result[i] = chars[n.Int64()]
	}
	return string(result), nil
}
