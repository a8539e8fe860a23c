package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/oszuidwest/zwfm-silencewatch/internal/silence"
	"github.com/oszuidwest/zwfm-silencewatch/internal/util"
)

// Payload is the structured form of a notification, sent as JSON to the
// webhook and MQTT channels.
type Payload struct {
	Event       string           `json:"event"`
	Station     string           `json:"station"`
	Severity    silence.Severity `json:"severity,omitempty"`
	Category    silence.Category `json:"category,omitempty"`
	SilenceID   string           `json:"silence_id,omitempty"`
	DurationMs  int64            `json:"duration_ms,omitempty"`
	AvgDB       float64          `json:"avg_db,omitempty"`
	ThresholdDB float64          `json:"threshold_db,omitempty"`
	StartTime   string           `json:"start_time,omitempty"`
	Message     string           `json:"message,omitempty"`
	Timestamp   string           `json:"timestamp"`
}

// AlertPayload describes an ongoing silence that crossed the notification threshold.
func AlertPayload(station string, a silence.Alert, thresholdDB float64) *Payload {
	return &Payload{
		Event:       EventSilenceAlert,
		Station:     station,
		Severity:    a.Severity,
		DurationMs:  a.DurationMs,
		AvgDB:       a.AvgDB,
		ThresholdDB: thresholdDB,
		StartTime:   timestampUTC(a.StartTime),
		Message:     fmt.Sprintf("Silence ongoing for %s", util.FormatDuration(a.DurationMs)),
		Timestamp:   timestampUTC(a.Timestamp),
	}
}

// EndedPayload describes a finished silence that had been alerted on.
func EndedPayload(station string, s silence.Silence, thresholdDB float64) *Payload {
	return &Payload{
		Event:       EventSilenceEnded,
		Station:     station,
		Category:    s.Category,
		SilenceID:   s.ID,
		DurationMs:  s.DurationMs,
		AvgDB:       s.AvgDB,
		ThresholdDB: thresholdDB,
		StartTime:   timestampUTC(s.StartTime),
		Message:     fmt.Sprintf("Audio returned after %s of silence", util.FormatDuration(s.DurationMs)),
		Timestamp:   timestampUTC(s.EndTime),
	}
}

// TestPayload is sent by the per-channel test commands.
func TestPayload(station string) *Payload {
	return &Payload{
		Event:     EventTest,
		Station:   station,
		Message:   "This is a test notification from " + station,
		Timestamp: timestampUTC(time.Now()),
	}
}

// Subject returns a one-line summary suitable for email subjects and chat titles.
func (p *Payload) Subject() string {
	switch p.Event {
	case EventSilenceAlert:
		return fmt.Sprintf("[ALERT] Silence Detected (%s) - %s", strings.ToUpper(string(p.Severity)), p.Station)
	case EventSilenceEnded:
		return "[OK] Audio Recovered - " + p.Station
	default:
		return "[TEST] " + p.Station
	}
}

// Text returns the plain-text body for email and chat channels.
func (p *Payload) Text() string {
	switch p.Event {
	case EventSilenceAlert:
		return fmt.Sprintf(
			"Silence detected on %s.\n\n"+
				"Severity:  %s\n"+
				"Duration:  %s (ongoing)\n"+
				"Avg level: %.1f dB\n"+
				"Threshold: %.1f dB\n"+
				"Started:   %s\n\n"+
				"Please check the audio source.",
			p.Station, p.Severity, util.FormatDuration(p.DurationMs), p.AvgDB,
			p.ThresholdDB, util.FormatHumanTime(p.StartTime),
		)
	case EventSilenceEnded:
		return fmt.Sprintf(
			"Audio recovered on %s.\n\n"+
				"Silence lasted: %s\n"+
				"Category:       %s\n"+
				"Avg level:      %.1f dB\n"+
				"Threshold:      %.1f dB\n"+
				"Ended:          %s",
			p.Station, util.FormatDuration(p.DurationMs), p.Category, p.AvgDB,
			p.ThresholdDB, util.FormatHumanTime(p.Timestamp),
		)
	default:
		return fmt.Sprintf("Test notification from %s.\n\nTime: %s\n\nThis channel is configured correctly.",
			AppName, util.FormatHumanTime(p.Timestamp))
	}
}

// ZabbixValue returns the trapper item value for the payload.
func (p *Payload) ZabbixValue() string {
	switch p.Event {
	case EventSilenceAlert:
		return fmt.Sprintf("event=SILENCE severity=%s duration_ms=%d avg_db=%.1f threshold=%.1f",
			p.Severity, p.DurationMs, p.AvgDB, p.ThresholdDB)
	case EventSilenceEnded:
		return fmt.Sprintf("event=RECOVERY category=%s duration_ms=%d avg_db=%.1f threshold=%.1f",
			p.Category, p.DurationMs, p.AvgDB, p.ThresholdDB)
	default:
		return "event=TEST source=zwfm-silencewatch"
	}
}
