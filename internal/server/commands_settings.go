package server

import (
	"fmt"
	"log/slog"

	"github.com/oszuidwest/zwfm-silencewatch/internal/config"
	"github.com/oszuidwest/zwfm-silencewatch/internal/eventlog"
	"github.com/oszuidwest/zwfm-silencewatch/internal/silence"
	"github.com/oszuidwest/zwfm-silencewatch/internal/types"
)

// --- Silence detection handlers ---

// handleSilenceGet processes a silence/get command.
func (h *CommandHandler) handleSilenceGet(cmd WSCommand, send chan<- any) {
	snap := h.cfg.Snapshot()
	SendSuccess(send, cmd.Type, snap.Settings())
}

// handleSilenceUpdate processes a silence/update command.
func (h *CommandHandler) handleSilenceUpdate(cmd WSCommand, send chan<- any) {
	HandleCommand(cmd, send, func(req *SilenceUpdateRequest) (any, error) {
		return h.UpdateSilence(req)
	})
}

// UpdateSilence merges req into the current detection settings, persists
// them and switches the audio input when it changed. It returns the
// effective settings afterwards.
func (h *CommandHandler) UpdateSilence(req *SilenceUpdateRequest) (types.SilenceSettings, error) {
	snap := h.cfg.Snapshot()

	sd := snap.Detection()
	if req.ThresholdDB != nil {
		sd.ThresholdDB = req.ThresholdDB
	}
	if req.MinDurationMs != nil {
		sd.MinDurationMs = req.MinDurationMs
	}
	if req.NaturalMaxMs != nil {
		sd.NaturalMaxMs = req.NaturalMaxMs
	}
	if req.IntervalMs != nil {
		sd.IntervalMs = req.IntervalMs
	}
	if req.NotificationMs != nil {
		sd.NotificationMs = req.NotificationMs
	}
	if req.AIClassification != nil {
		sd.AIClassification = req.AIClassification
	}

	if err := h.cfg.SetSilenceDetection(sd); err != nil {
		return types.SilenceSettings{}, err
	}

	if req.AudioInput != nil && *req.AudioInput != snap.AudioInput {
		if err := h.switchInput(*req.AudioInput); err != nil {
			return types.SilenceSettings{}, err
		}
	}

	updated := h.cfg.Snapshot()
	return updated.Settings(), nil
}

// switchInput opens the new input, persists it and hands it to the monitor.
func (h *CommandHandler) switchInput(input string) error {
	if h.openSource == nil {
		return errNoSourceOpener
	}

	src, name, err := h.openSource(input)
	if err != nil {
		return fmt.Errorf("open audio input: %w", err)
	}
	if err := h.cfg.SetAudioInput(input); err != nil {
		_ = src.Close()
		return err
	}

	slog.Info("silence/update: changing audio input", "input", input)
	return h.monitor.SwapSource(src, name)
}

// --- Silence log handlers ---

// handleSilencesList processes a silences/list command.
func (h *CommandHandler) handleSilencesList(cmd WSCommand, send chan<- any) {
	HandleCommand(cmd, send, func(req *SilencesListRequest) (any, error) {
		return h.ListSilences(silence.Category(req.Category)), nil
	})
}

// ListSilences returns the recorded silences, oldest first, optionally
// limited to one category.
func (h *CommandHandler) ListSilences(c silence.Category) []silence.Silence {
	all := h.monitor.Detector().Silences()
	if c == "" {
		return nonNil(all)
	}
	return filterCategory(all, c)
}

// filterCategory returns the silences in category c, oldest first.
func filterCategory(all []silence.Silence, c silence.Category) []silence.Silence {
	out := make([]silence.Silence, 0, len(all))
	for _, s := range all {
		if s.Category == c {
			out = append(out, s)
		}
	}
	return out
}

// nonNil makes empty results encode as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// --- Event log handlers ---

// EventsPage is the response for events/view.
type EventsPage struct {
	Events  []eventlog.Event `json:"events"`
	HasMore bool             `json:"has_more"`
}

// DefaultEventsLimit is used when events/view omits a limit.
const DefaultEventsLimit = 100

// handleEventsView processes an events/view command.
func (h *CommandHandler) handleEventsView(cmd WSCommand, send chan<- any) {
	HandleCommand(cmd, send, func(req *EventsViewRequest) (any, error) {
		return h.ReadEvents(req.Limit, req.Offset, req.Filter)
	})
}

// ReadEvents loads a page of the event log, newest first. A non-positive
// limit means DefaultEventsLimit.
func (h *CommandHandler) ReadEvents(limit, offset int, filter string) (*EventsPage, error) {
	f, err := eventlog.ParseFilter(filter)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultEventsLimit
	}

	snap := h.cfg.Snapshot()
	events, hasMore, err := eventlog.ReadLast(snap.EventLogPath, limit, offset, f)
	if err != nil {
		return nil, err
	}
	return &EventsPage{Events: nonNil(events), HasMore: hasMore}, nil
}

// --- Config handlers ---

// ConfigView is the redacted configuration sent to clients. Secrets are
// replaced by a flag telling whether one is set.
type ConfigView struct {
	StationName  string                `json:"station_name"`
	WebPort      int                   `json:"web_port"`
	HasAPIKey    bool                  `json:"has_api_key"`
	FFmpegPath   string                `json:"ffmpeg_path,omitempty"`
	Silence      types.SilenceSettings `json:"silence"`
	Webhook      string                `json:"webhook_url"`
	Email        types.GraphConfig     `json:"email"`
	HasSecret    bool                  `json:"email_has_secret"`
	Zabbix       types.ZabbixConfig    `json:"zabbix"`
	MQTT         types.MQTTConfig      `json:"mqtt"`
	ShoutrrrURLs int                   `json:"shoutrrr_urls"`
	EventLog     string                `json:"event_log_path"`
	Report       ReportView            `json:"report"`
	Notify       types.NotifyStatus    `json:"notifications"`
}

// ReportView is the redacted report configuration.
type ReportView struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule"`
	Email    bool   `json:"email"`
	S3Bucket string `json:"s3_bucket,omitempty"`
	S3Prefix string `json:"s3_prefix,omitempty"`
	HasS3    bool   `json:"has_s3"`
}

// BuildConfigView converts a snapshot into its redacted client form.
func BuildConfigView(snap *config.Snapshot) ConfigView {
	email := snap.Graph
	email.ClientSecret = ""
	mqtt := snap.MQTT
	mqtt.Password = ""

	return ConfigView{
		StationName:  snap.StationName,
		WebPort:      snap.WebPort,
		HasAPIKey:    snap.APIKey != "",
		FFmpegPath:   snap.FFmpegPath,
		Silence:      snap.Settings(),
		Webhook:      snap.WebhookURL,
		Email:        email,
		HasSecret:    snap.Graph.ClientSecret != "",
		Zabbix:       snap.Zabbix,
		MQTT:         mqtt,
		ShoutrrrURLs: len(snap.ShoutrrrURLs),
		EventLog:     snap.EventLogPath,
		Report: ReportView{
			Enabled:  snap.Report.Enabled,
			Schedule: snap.Report.Schedule,
			Email:    snap.Report.Email,
			S3Bucket: snap.Report.S3.Bucket,
			S3Prefix: snap.Report.S3.Prefix,
			HasS3:    snap.HasS3(),
		},
		Notify: snap.NotifyStatus(),
	}
}

// handleGetConfig processes a config/get command.
func (h *CommandHandler) handleGetConfig(send chan<- any) {
	snap := h.cfg.Snapshot()
	trySend(send, "config/get", types.WSConfigResponse{
		Type:   "config",
		Config: BuildConfigView(&snap),
	})
}
