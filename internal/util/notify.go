package util

import "log/slog"

// LogNotifyResult executes a notification function and logs the result.
func LogNotifyResult(fn func() error, channel, event string) {
	if err := fn(); err != nil {
		slog.Error("notification failed", "channel", channel, "event", event, "error", err)
		return
	}
	slog.Info("notification sent", "channel", channel, "event", event)
}
