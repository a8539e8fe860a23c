package notify

import "time"

// AppName is the application name used in notifications.
const AppName = "ZuidWest FM Silence Monitor"

// Event names shared by every channel.
const (
	EventSilenceAlert = "silence_alert"
	EventSilenceEnded = "silence_ended"
	EventTest         = "test"
)

// timestampUTC returns t in UTC RFC3339 format.
func timestampUTC(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
