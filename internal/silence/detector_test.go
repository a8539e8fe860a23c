package silence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tick = 100 * time.Millisecond

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testConfig() Config {
	return Config{
		ThresholdDB:    -40,
		MinDurationMs:  3000,
		NaturalMaxMs:   5000,
		NotificationMs: 10000,
	}
}

// feed pushes n samples at level starting at from, one per tick, and returns
// every alert and silence produced along the way.
func feed(d *Detector, cfg Config, level float64, from time.Time, n int) ([]Alert, []Silence) {
	var alerts []Alert
	var silences []Silence
	for i := range n {
		upd := d.Update(level, cfg, from.Add(time.Duration(i)*tick))
		if upd.Alert != nil {
			alerts = append(alerts, *upd.Alert)
		}
		if upd.Silence != nil {
			silences = append(silences, *upd.Silence)
		}
	}
	return alerts, silences
}

func TestDetectorLongSilence(t *testing.T) {
	d := NewDetector()
	cfg := testConfig()

	alerts, silences := feed(d, cfg, -60, t0, 120)
	require.Empty(t, silences)
	require.Len(t, alerts, 1)
	assert.Equal(t, t0.Add(10*time.Second), alerts[0].Timestamp)
	assert.Equal(t, t0, alerts[0].StartTime)
	assert.Equal(t, int64(10000), alerts[0].DurationMs)
	assert.Equal(t, SeverityMedium, alerts[0].Severity)
	assert.InDelta(t, -60.0, alerts[0].AvgDB, 1e-9)

	upd := d.Update(-20, cfg, t0.Add(12*time.Second))
	require.NotNil(t, upd.Silence)
	s := upd.Silence
	assert.Equal(t, int64(12000), s.DurationMs)
	assert.Equal(t, CategoryUnnatural, s.Category)
	assert.True(t, s.AlertSent)
	assert.InDelta(t, -60.0, s.AvgDB, 1e-9)
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, NoRun, upd.State)

	assert.Len(t, d.Silences(), 1)
	assert.Len(t, d.Unnatural(), 1)
}

func TestDetectorShortRunLeavesNoTrace(t *testing.T) {
	d := NewDetector()
	cfg := testConfig()

	_, silences := feed(d, cfg, -60, t0, 10)
	require.Empty(t, silences)
	assert.Equal(t, OpenRun, d.State())

	upd := d.Update(-10, cfg, t0.Add(time.Second))
	assert.Nil(t, upd.Silence)
	assert.Nil(t, upd.Alert)
	assert.Equal(t, NoRun, upd.State)
	assert.Empty(t, d.Silences())
	assert.Equal(t, Statistics{}, d.Statistics())
}

func TestDetectorMinDurationBoundary(t *testing.T) {
	d := NewDetector()
	cfg := testConfig()

	feed(d, cfg, -50, t0, 30)
	upd := d.Update(-10, cfg, t0.Add(3*time.Second))
	require.NotNil(t, upd.Silence)
	assert.Equal(t, int64(3000), upd.Silence.DurationMs)
	assert.Equal(t, CategoryNatural, upd.Silence.Category)
	assert.False(t, upd.Silence.AlertSent)
}

func TestDetectorNaturalBoundaryIsInclusive(t *testing.T) {
	d := NewDetector()
	cfg := testConfig()

	feed(d, cfg, -50, t0, 50)
	upd := d.Update(-10, cfg, t0.Add(5*time.Second))
	require.NotNil(t, upd.Silence)
	assert.Equal(t, CategoryNatural, upd.Silence.Category)
}

func TestDetectorThresholdIsStrict(t *testing.T) {
	d := NewDetector()
	cfg := testConfig()

	upd := d.Update(-40, cfg, t0)
	assert.False(t, upd.Silent)
	assert.Equal(t, NoRun, upd.State)

	upd = d.Update(-40.01, cfg, t0.Add(tick))
	assert.True(t, upd.Silent)
	assert.Equal(t, OpenRun, upd.State)
	require.NotNil(t, upd.Run)
	assert.Equal(t, t0.Add(tick), upd.Run.StartTime)
}

func TestDetectorRunningAverage(t *testing.T) {
	d := NewDetector()
	cfg := testConfig()

	levels := []float64{-50, -60, -70, -80}
	for i, l := range levels {
		d.Update(l, cfg, t0.Add(time.Duration(i)*time.Second))
	}
	run, ok := d.CurrentRun()
	require.True(t, ok)
	assert.InDelta(t, -65.0, run.AvgDB, 1e-9)
	assert.Equal(t, 4, run.Samples)
}

func TestDetectorAlertFiresOnce(t *testing.T) {
	d := NewDetector()
	cfg := testConfig()

	alerts, _ := feed(d, cfg, -60, t0, 400)
	require.Len(t, alerts, 1)
	assert.Equal(t, SeverityMedium, alerts[0].Severity)
}

func TestDetectorAlertSeverityHigh(t *testing.T) {
	d := NewDetector()
	cfg := testConfig()

	d.Update(-60, cfg, t0)
	// Sampling gap: the first fold past the threshold is already over 2x.
	upd := d.Update(-60, cfg, t0.Add(25*time.Second))
	require.NotNil(t, upd.Alert)
	assert.Equal(t, SeverityHigh, upd.Alert.Severity)
	assert.Equal(t, int64(25000), upd.Alert.DurationMs)
}

func TestDetectorThresholdChangeMidRun(t *testing.T) {
	d := NewDetector()
	cfg := testConfig()

	feed(d, cfg, -45, t0, 20)
	require.Equal(t, OpenRun, d.State())

	cfg.ThresholdDB = -50
	upd := d.Update(-45, cfg, t0.Add(4*time.Second))
	require.NotNil(t, upd.Silence)
	assert.Equal(t, int64(4000), upd.Silence.DurationMs)
	assert.Equal(t, t0, upd.Silence.StartTime)
}

func TestDetectorConfigChangeKeepsRecordedCategory(t *testing.T) {
	d := NewDetector()
	cfg := testConfig()

	feed(d, cfg, -60, t0, 70)
	d.Update(-10, cfg, t0.Add(7*time.Second))
	require.Len(t, d.Unnatural(), 1)

	cfg.NaturalMaxMs = 60000
	d.Update(-10, cfg, t0.Add(8*time.Second))
	assert.Len(t, d.Unnatural(), 1)
	assert.Equal(t, CategoryUnnatural, d.Silences()[0].Category)
}

func TestDetectorFlush(t *testing.T) {
	cfg := testConfig()

	t.Run("qualifying run", func(t *testing.T) {
		d := NewDetector()
		feed(d, cfg, -60, t0, 40)
		s := d.Flush(cfg, t0.Add(4*time.Second))
		require.NotNil(t, s)
		assert.Equal(t, int64(4000), s.DurationMs)
		assert.Equal(t, NoRun, d.State())
		assert.Len(t, d.Silences(), 1)
	})

	t.Run("short run", func(t *testing.T) {
		d := NewDetector()
		feed(d, cfg, -60, t0, 5)
		assert.Nil(t, d.Flush(cfg, t0.Add(500*time.Millisecond)))
		assert.Equal(t, NoRun, d.State())
		assert.Empty(t, d.Silences())
	})

	t.Run("no run", func(t *testing.T) {
		d := NewDetector()
		assert.Nil(t, d.Flush(cfg, t0))
	})
}

func TestDetectorAssessment(t *testing.T) {
	d := NewDetector()
	cfg := testConfig()
	cfg.Assess = true

	feed(d, cfg, -60, t0, 120)
	upd := d.Update(-10, cfg, t0.Add(12*time.Second))
	require.NotNil(t, upd.Silence)
	require.NotNil(t, upd.Silence.Assessment)
	// 0.5 + 0.3 (over 2x natural max) + 0.1 (well below threshold)
	assert.InDelta(t, 0.9, upd.Silence.Assessment.Confidence, 1e-9)
	assert.Equal(t, CategoryUnnatural, upd.Silence.Category)

	cfg.Assess = false
	feed(d, cfg, -60, t0.Add(20*time.Second), 40)
	upd = d.Update(-10, cfg, t0.Add(24*time.Second))
	require.NotNil(t, upd.Silence)
	assert.Nil(t, upd.Silence.Assessment)
}

func TestDetectorStatisticsAndReset(t *testing.T) {
	d := NewDetector()
	cfg := testConfig()

	feed(d, cfg, -60, t0, 40)
	d.Update(-10, cfg, t0.Add(4*time.Second))
	feed(d, cfg, -60, t0.Add(10*time.Second), 110)
	d.Update(-10, cfg, t0.Add(21*time.Second))

	stats := d.Statistics()
	assert.Equal(t, Statistics{
		Total:           2,
		Natural:         1,
		Unnatural:       1,
		AvgDurationMs:   7500,
		TotalDurationMs: 15000,
		AlertsSent:      1,
	}, stats)

	d.Update(-60, cfg, t0.Add(30*time.Second))
	d.Reset()
	assert.Empty(t, d.Silences())
	assert.Equal(t, NoRun, d.State())
	assert.Equal(t, Statistics{}, d.Statistics())
}

func TestSummarizeRoundsAverage(t *testing.T) {
	stats := Summarize([]Silence{
		{DurationMs: 3000, Category: CategoryNatural},
		{DurationMs: 3001, Category: CategoryNatural},
		{DurationMs: 3001, Category: CategoryNatural},
	})
	assert.Equal(t, int64(3001), stats.AvgDurationMs)
	assert.Equal(t, 3, stats.Natural)
}
