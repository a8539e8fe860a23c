package silence

import "math"

// Silences returns a copy of the log, oldest first.
func (d *Detector) Silences() []Silence {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Silence, len(d.log))
	copy(out, d.log)
	return out
}

// Unnatural returns the recorded unnatural silences, oldest first.
func (d *Detector) Unnatural() []Silence {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []Silence
	for _, s := range d.log {
		if s.Category == CategoryUnnatural {
			out = append(out, s)
		}
	}
	return out
}

// Statistics summarizes the log.
func (d *Detector) Statistics() Statistics {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Summarize(d.log)
}

// Summarize computes statistics over silences.
func Summarize(silences []Silence) Statistics {
	var stats Statistics
	for _, s := range silences {
		stats.Total++
		stats.TotalDurationMs += s.DurationMs
		if s.Category == CategoryUnnatural {
			stats.Unnatural++
		} else {
			stats.Natural++
		}
		if s.AlertSent {
			stats.AlertsSent++
		}
	}
	if stats.Total > 0 {
		stats.AvgDurationMs = int64(math.Round(float64(stats.TotalDurationMs) / float64(stats.Total)))
	}
	return stats
}
