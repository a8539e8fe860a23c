package silence

import "time"

// SeverityFor grades an alert by how far the run has outlasted the threshold.
func SeverityFor(elapsedMs, notificationMs int64) Severity {
	if elapsedMs > 2*notificationMs {
		return SeverityHigh
	}
	return SeverityMedium
}

// checkAlert raises at most one alert per run. The run is marked before the
// alert is returned so a re-entrant update cannot fire it twice.
func checkAlert(run *Run, cfg Config, now time.Time) *Alert {
	if run.AlertSent {
		return nil
	}
	elapsed := run.DurationMs(now)
	if elapsed < cfg.NotificationMs {
		return nil
	}
	run.AlertSent = true
	return &Alert{
		StartTime:  run.StartTime,
		Timestamp:  now,
		DurationMs: elapsed,
		AvgDB:      run.AvgDB,
		Severity:   SeverityFor(elapsed, cfg.NotificationMs),
	}
}
