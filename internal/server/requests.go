package server

// Request types for WebSocket commands with validation tags.

// --- Silence detection settings ---

// SilenceUpdateRequest is the request body for silence/update. Omitted
// fields keep their current value.
type SilenceUpdateRequest struct {
	AudioInput       *string  `json:"audio_input" validate:"omitempty,max=256"`
	ThresholdDB      *float64 `json:"threshold_db" validate:"omitempty,gte=-100,lte=0"`
	MinDurationMs    *int64   `json:"min_duration_ms" validate:"omitempty,gte=0,lte=3600000"`
	NaturalMaxMs     *int64   `json:"natural_max_ms" validate:"omitempty,gte=0,lte=3600000"`
	IntervalMs       *int64   `json:"interval_ms" validate:"omitempty,gte=10,lte=10000"`
	NotificationMs   *int64   `json:"notification_ms" validate:"omitempty,gte=0,lte=86400000"`
	AIClassification *bool    `json:"ai_classification"`
}

// --- Silence log queries ---

// SilencesListRequest is the request body for silences/list.
type SilencesListRequest struct {
	Category string `json:"category" validate:"omitempty,oneof=natural unnatural"`
}

// EventsViewRequest is the request body for events/view.
type EventsViewRequest struct {
	Limit  int    `json:"limit" validate:"omitempty,gte=1,lte=500"`
	Offset int    `json:"offset" validate:"omitempty,gte=0"`
	Filter string `json:"filter" validate:"omitempty,oneof=silence alert monitor"`
}

// --- Report settings ---

// ReportUpdateRequest is the request body for report/update. It replaces
// the report settings; an empty S3 secret keeps the stored one.
type ReportUpdateRequest struct {
	Enabled           bool   `json:"enabled"`
	Schedule          string `json:"schedule" validate:"omitempty,max=100"`
	Email             bool   `json:"email"`
	S3Endpoint        string `json:"s3_endpoint" validate:"omitempty,url,max=2048"`
	S3Region          string `json:"s3_region" validate:"omitempty,max=64"`
	S3Bucket          string `json:"s3_bucket" validate:"omitempty,max=63"`
	S3AccessKeyID     string `json:"s3_access_key_id" validate:"omitempty,max=128"`
	S3SecretAccessKey string `json:"s3_secret_access_key" validate:"omitempty,max=256"`
	S3Prefix          string `json:"s3_prefix" validate:"omitempty,max=256"`
}

// --- Notification settings ---

// WebhookUpdateRequest is the request body for notifications/webhook/update.
type WebhookUpdateRequest struct {
	URL string `json:"url" validate:"omitempty,url,max=2048"`
}

// EmailUpdateRequest is the request body for notifications/email/update.
type EmailUpdateRequest struct {
	TenantID     string `json:"tenant_id" validate:"omitempty,max=100"`
	ClientID     string `json:"client_id" validate:"omitempty,max=100"`
	ClientSecret string `json:"client_secret" validate:"omitempty,max=500"`
	FromAddress  string `json:"from_address" validate:"omitempty,email,max=254"`
	Recipients   string `json:"recipients" validate:"omitempty,max=1000"`
}

// ZabbixUpdateRequest is the request body for notifications/zabbix/update.
type ZabbixUpdateRequest struct {
	Server string `json:"server" validate:"omitempty,max=253"`
	Port   int    `json:"port" validate:"omitempty,gte=1,lte=65535"`
	Host   string `json:"host" validate:"omitempty,max=253"`
	Key    string `json:"key" validate:"omitempty,max=256"`
}

// MQTTUpdateRequest is the request body for notifications/mqtt/update.
type MQTTUpdateRequest struct {
	Broker      string `json:"broker" validate:"omitempty,url,max=2048"`
	ClientID    string `json:"client_id" validate:"omitempty,max=128"`
	Username    string `json:"username" validate:"omitempty,max=256"`
	Password    string `json:"password" validate:"omitempty,max=256"`
	TopicPrefix string `json:"topic_prefix" validate:"omitempty,max=256"`
}

// ShoutrrrUpdateRequest is the request body for notifications/shoutrrr/update.
type ShoutrrrUpdateRequest struct {
	URLs []string `json:"urls" validate:"omitempty,max=10,dive,required,max=2048"`
}
