// Package silence implements silence-run detection over a stream of loudness
// samples: run accumulation, classification of finished runs and one-shot
// alerts for runs that outlast the notification threshold.
package silence

import "time"

// Category classifies a finished silence.
type Category string

// Silence categories.
const (
	CategoryNatural   Category = "natural"
	CategoryUnnatural Category = "unnatural"
)

// Severity grades an alert.
type Severity string

// Alert severities.
const (
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// RunState is the state of the run accumulator.
type RunState string

// Accumulator states.
const (
	NoRun   RunState = "no_run"
	OpenRun RunState = "open_run"
)

// Defaults applied when a setting is unset.
const (
	DefaultThresholdDB    = -40.0
	DefaultMinDurationMs  = 3000
	DefaultNaturalMaxMs   = 5000
	DefaultNotificationMs = 10000
)

// Config holds the detection settings in effect for a single update.
type Config struct {
	// ThresholdDB is the level below which a sample counts as silent.
	ThresholdDB float64 `json:"threshold_db"`
	// MinDurationMs is the shortest run that is recorded as a silence.
	MinDurationMs int64 `json:"min_duration_ms"`
	// NaturalMaxMs is the longest silence still considered natural.
	NaturalMaxMs int64 `json:"natural_max_ms"`
	// NotificationMs is how long a run lasts before an alert is raised.
	NotificationMs int64 `json:"notification_ms"`
	// Assess enables the confidence assessment of finished silences.
	Assess bool `json:"assess"`
}

// DefaultConfig returns the stock detection settings.
func DefaultConfig() Config {
	return Config{
		ThresholdDB:    DefaultThresholdDB,
		MinDurationMs:  DefaultMinDurationMs,
		NaturalMaxMs:   DefaultNaturalMaxMs,
		NotificationMs: DefaultNotificationMs,
		Assess:         true,
	}
}

// Run is an open, not yet finalized silence run.
type Run struct {
	StartTime time.Time `json:"start_time"`
	AvgDB     float64   `json:"avg_db"`
	Samples   int       `json:"samples"`
	AlertSent bool      `json:"alert_sent"`
}

// DurationMs returns how long the run has lasted at now.
func (r Run) DurationMs(now time.Time) int64 {
	return now.Sub(r.StartTime).Milliseconds()
}

// Features are the inputs the assessment was computed from.
type Features struct {
	DurationMs   int64   `json:"duration_ms"`
	AvgDB        float64 `json:"avg_db"`
	ThresholdDB  float64 `json:"threshold_db"`
	NaturalMaxMs int64   `json:"natural_max_ms"`
	RecentMeanMs float64 `json:"recent_mean_ms,omitzero"`
	RecentCount  int     `json:"recent_count,omitzero"`
}

// Assessment is an advisory confidence that a silence is unnatural.
// It never changes the silence's Category.
type Assessment struct {
	Confidence    float64  `json:"confidence"`
	Reason        string   `json:"reason"`
	LikelyNatural bool     `json:"likely_natural"`
	Features      Features `json:"features"`
}

// Silence is a finalized silence run.
type Silence struct {
	ID         string      `json:"id"`
	StartTime  time.Time   `json:"start_time"`
	EndTime    time.Time   `json:"end_time"`
	DurationMs int64       `json:"duration_ms"`
	AvgDB      float64     `json:"avg_db"`
	Category   Category    `json:"category"`
	Assessment *Assessment `json:"assessment,omitempty"`
	AlertSent  bool        `json:"alert_sent"`
}

// Alert signals that an open run has crossed the notification threshold.
type Alert struct {
	StartTime  time.Time `json:"start_time"`
	Timestamp  time.Time `json:"timestamp"`
	DurationMs int64     `json:"duration_ms"`
	AvgDB      float64   `json:"avg_db"`
	Severity   Severity  `json:"severity"`
}

// Update is the outcome of folding one sample into the detector.
type Update struct {
	LevelDB float64  `json:"level_db"`
	Silent  bool     `json:"silent"`
	State   RunState `json:"state"`
	// Run is the open run after the update, if any.
	Run *Run `json:"run,omitempty"`
	// Alert is set on the update that crossed the notification threshold.
	Alert *Alert `json:"alert,omitempty"`
	// Silence is set on the update that finalized a run.
	Silence *Silence `json:"silence,omitempty"`
}

// Statistics summarizes the recorded silences.
type Statistics struct {
	Total           int   `json:"total"`
	Natural         int   `json:"natural"`
	Unnatural       int   `json:"unnatural"`
	AvgDurationMs   int64 `json:"avg_duration_ms"`
	TotalDurationMs int64 `json:"total_duration_ms"`
	AlertsSent      int   `json:"alerts_sent"`
}
