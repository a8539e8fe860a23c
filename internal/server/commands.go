package server

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/oszuidwest/zwfm-silencewatch/internal/audio"
	"github.com/oszuidwest/zwfm-silencewatch/internal/config"
	"github.com/oszuidwest/zwfm-silencewatch/internal/monitor"
	"github.com/oszuidwest/zwfm-silencewatch/internal/notify"
	"github.com/oszuidwest/zwfm-silencewatch/internal/report"
	"github.com/oszuidwest/zwfm-silencewatch/internal/types"
	"github.com/oszuidwest/zwfm-silencewatch/internal/util"
)

// WSCommand is a command received from a WebSocket client.
type WSCommand struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// SourceOpener opens the audio source for an input identifier and returns
// it with a display name.
type SourceOpener func(input string) (audio.Source, string, error)

var (
	// errNoSourceOpener is returned when the input cannot be changed at runtime.
	errNoSourceOpener = errors.New("audio input cannot be changed in this mode")
	// ErrReportsUnavailable is returned by RunReport without a scheduler.
	ErrReportsUnavailable = errors.New("reports are not available")
)

// CommandHandler processes WebSocket commands.
type CommandHandler struct {
	cfg        *config.Config
	monitor    *monitor.Monitor
	notifier   *notify.Notifier
	reports    *report.Scheduler
	expiry     *notify.SecretExpiryChecker
	openSource SourceOpener
}

// NewCommandHandler creates a new command handler. openSource may be nil,
// in which case silence/update rejects audio input changes.
func NewCommandHandler(cfg *config.Config, mon *monitor.Monitor, notifier *notify.Notifier, reports *report.Scheduler, openSource SourceOpener) *CommandHandler {
	return &CommandHandler{
		cfg:        cfg,
		monitor:    mon,
		notifier:   notifier,
		reports:    reports,
		expiry:     notify.NewSecretExpiryChecker(),
		openSource: openSource,
	}
}

// Handle processes a WebSocket command and performs the requested action.
// Commands use slash-style format: namespace/action (e.g., "monitor/start",
// "notifications/webhook/test").
func (h *CommandHandler) Handle(cmd WSCommand, send chan<- any, triggerStatusUpdate func()) {
	parts := strings.SplitN(cmd.Type, "/", 3)
	namespace := parts[0]
	action := ""
	if len(parts) > 1 {
		action = parts[1]
	}
	subaction := ""
	if len(parts) > 2 {
		subaction = parts[2]
	}

	switch namespace {
	case "monitor":
		h.handleMonitor(action, cmd, send, triggerStatusUpdate)
	case "silence":
		h.handleSilence(action, cmd, send)
	case "silences":
		h.handleSilences(action, cmd, send)
	case "notifications":
		h.handleNotifications(action, subaction, cmd, send)
	case "events":
		h.handleEvents(action, cmd, send)
	case "report":
		h.handleReport(action, cmd, send)
	case "config":
		h.handleConfig(action, subaction, cmd, send)
	default:
		slog.Warn("unknown WebSocket command", "type", cmd.Type)
	}

	triggerStatusUpdate()
}

// --- Namespace handlers ---

// handleMonitor routes monitor/* commands
func (h *CommandHandler) handleMonitor(action string, cmd WSCommand, send chan<- any, triggerStatusUpdate func()) {
	switch action {
	case "start":
		if err := h.monitor.Start(); err != nil {
			SendError(send, cmd.Type, err)
			return
		}
		SendSuccess(send, cmd.Type, h.monitor.Status())
	case "stop":
		// Stop waits for the polling loop to flush, so run it off the reader.
		HandleActionAsync(cmd, send, func() (any, error) {
			defer triggerStatusUpdate()
			if err := h.monitor.Stop(); err != nil {
				return nil, err
			}
			return h.monitor.Status(), nil
		})
	case "status":
		SendSuccess(send, cmd.Type, h.monitor.Status())
	default:
		slog.Warn("unknown monitor action", "action", action)
	}
}

// handleSilence routes silence/* commands
func (h *CommandHandler) handleSilence(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "update":
		h.handleSilenceUpdate(cmd, send)
	case "get":
		h.handleSilenceGet(cmd, send)
	default:
		slog.Warn("unknown silence action", "action", action)
	}
}

// handleSilences routes silences/* commands
func (h *CommandHandler) handleSilences(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "list":
		h.handleSilencesList(cmd, send)
	case "unnatural":
		SendSuccess(send, cmd.Type, nonNil(h.monitor.Detector().Unnatural()))
	case "stats":
		SendSuccess(send, cmd.Type, h.monitor.Detector().Statistics())
	case "reset":
		h.ResetSilences()
		SendSuccess(send, cmd.Type, h.monitor.Detector().Statistics())
	default:
		slog.Warn("unknown silences action", "action", action)
	}
}

// handleNotifications routes notifications/<channel>/<action> commands
func (h *CommandHandler) handleNotifications(action, subaction string, cmd WSCommand, send chan<- any) {
	ch := notify.Channel(action)
	switch subaction {
	case "update":
		h.handleNotificationUpdate(ch, cmd, send)
	case "test":
		h.handleTest(send, ch)
	case "get":
		h.handleNotificationGet(ch, cmd, send)
	case "expiry":
		h.handleSecretExpiry(ch, cmd, send)
	default:
		slog.Warn("unknown notifications action", "channel", action, "subaction", subaction)
	}
}

// handleEvents routes events/* commands
func (h *CommandHandler) handleEvents(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "view":
		h.handleEventsView(cmd, send)
	default:
		slog.Warn("unknown events action", "action", action)
	}
}

// handleReport routes report/* commands
func (h *CommandHandler) handleReport(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "run":
		HandleActionAsync(cmd, send, func() (any, error) {
			return h.RunReport(context.Background())
		})
	case "test":
		HandleActionAsync(cmd, send, func() (any, error) {
			ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
			defer cancel()
			return nil, h.TestReportStorage(ctx)
		})
	case "update":
		HandleCommand(cmd, send, func(req *ReportUpdateRequest) (any, error) {
			return h.UpdateReport(req)
		})
	default:
		slog.Warn("unknown report action", "action", action)
	}
}

// handleConfig routes config/* commands
func (h *CommandHandler) handleConfig(action, subaction string, cmd WSCommand, send chan<- any) {
	switch action {
	case "get":
		h.handleGetConfig(send)
	case "api_key":
		if subaction != "regenerate" {
			slog.Warn("unknown config action", "action", action, "subaction", subaction)
			return
		}
		key, err := h.RegenerateAPIKey()
		if err != nil {
			SendError(send, cmd.Type, err)
			return
		}
		SendSuccess(send, cmd.Type, map[string]string{"api_key": key})
	default:
		slog.Warn("unknown config action", "action", action)
	}
}

// RunReport builds and delivers a silence report immediately.
func (h *CommandHandler) RunReport(ctx context.Context) (*report.Result, error) {
	if h.reports == nil {
		return nil, ErrReportsUnavailable
	}
	return h.reports.Run(ctx), nil
}

// TestReportStorage writes and removes a test object in the report bucket.
func (h *CommandHandler) TestReportStorage(ctx context.Context) error {
	snap := h.cfg.Snapshot()
	u, err := report.NewUploader(&snap.Report.S3)
	if err != nil {
		return err
	}
	return u.TestConnection(ctx)
}

// UpdateReport replaces the report settings and reschedules reports. It
// returns the redacted settings.
func (h *CommandHandler) UpdateReport(req *ReportUpdateRequest) (ReportView, error) {
	snap := h.cfg.Snapshot()
	rc := config.ReportConfig{
		Enabled:  req.Enabled,
		Schedule: req.Schedule,
		Email:    req.Email,
		S3: types.S3Config{
			Endpoint:        req.S3Endpoint,
			Region:          req.S3Region,
			Bucket:          req.S3Bucket,
			AccessKeyID:     req.S3AccessKeyID,
			SecretAccessKey: cmp.Or(req.S3SecretAccessKey, snap.Report.S3.SecretAccessKey),
			Prefix:          req.S3Prefix,
		},
	}
	if err := h.cfg.SetReportConfig(rc); err != nil {
		return ReportView{}, err
	}
	if h.reports != nil {
		if err := h.reports.Reload(); err != nil {
			return ReportView{}, err
		}
	}

	updated := h.cfg.Snapshot()
	return BuildConfigView(&updated).Report, nil
}

// RegenerateAPIKey stores a fresh random API key and returns it. Clients
// must use the new key from their next request on.
func (h *CommandHandler) RegenerateAPIKey() (string, error) {
	key, err := config.GenerateAPIKey()
	if err != nil {
		return "", util.WrapError("generate API key", err)
	}
	if err := h.cfg.SetAPIKey(key); err != nil {
		return "", err
	}
	slog.Info("API key regenerated")
	return key, nil
}

// ResetSilences clears the silence log and the notifier's alert state.
func (h *CommandHandler) ResetSilences() {
	h.monitor.Reset()
	if h.notifier != nil {
		h.notifier.Reset()
	}
}
