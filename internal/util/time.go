package util

import (
	"fmt"
	"time"
)

// humanTimeFormat is the layout for human-readable timestamps with timezone.
const humanTimeFormat = "2 Jan 2006 15:04:05 MST"

// FormatTime renders t in local time for messages and reports.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.Local().Format(humanTimeFormat)
}

// FormatHumanTime is FormatTime for an RFC3339 string. Unparseable input
// is returned as is.
func FormatHumanTime(rfc3339 string) string {
	if rfc3339 == "" || rfc3339 == "unknown" {
		return "unknown"
	}
	t, err := time.Parse(time.RFC3339, rfc3339)
	if err != nil {
		return rfc3339
	}
	return FormatTime(t)
}

// FormatDuration formats milliseconds for people: "4.2s", "25s", "2m 34s",
// "1h 23m". Short silences keep a tenth of a second.
func FormatDuration(ms int64) string {
	ms = max(ms, 0)
	if ms < 10_000 {
		return fmt.Sprintf("%.1fs", float64(ms)/1000)
	}
	totalSeconds := ms / 1000
	if totalSeconds < 60 {
		return fmt.Sprintf("%ds", totalSeconds)
	}
	minutes, seconds := totalSeconds/60, totalSeconds%60
	if minutes < 60 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%dh %dm", minutes/60, minutes%60)
}
