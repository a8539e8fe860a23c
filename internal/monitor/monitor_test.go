package monitor

import (
	"cmp"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oszuidwest/zwfm-silencewatch/internal/audio"
	"github.com/oszuidwest/zwfm-silencewatch/internal/config"
	"github.com/oszuidwest/zwfm-silencewatch/internal/silence"
	"github.com/oszuidwest/zwfm-silencewatch/internal/types"
)

type recorder struct {
	mu       sync.Mutex
	silences []silence.Silence
	alerts   []silence.Alert
	states   []types.MonitorState
	levels   int
}

func (r *recorder) SilenceDetected(s silence.Silence) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.silences = append(r.silences, s)
}

func (r *recorder) SilenceAlert(a silence.Alert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
}

func (r *recorder) MonitorStateChanged(state types.MonitorState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
}

func (r *recorder) LevelUpdated(silence.Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.levels++
}

func (r *recorder) counts() (silences, alerts int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.silences), len(r.alerts)
}

func newTestConfig(t *testing.T, sd config.SilenceDetectionConfig) *config.Config {
	t.Helper()
	cfg := config.New(filepath.Join(t.TempDir(), "config.json"))
	off := false
	if sd.AIClassification == nil {
		sd.AIClassification = &off
	}
	require.NoError(t, cfg.SetSilenceDetection(sd))
	return cfg
}

func ptr[T any](v T) *T { return &v }

// fakeClock advances by step on every call.
func fakeClock(start time.Time, step time.Duration) func() time.Time {
	var calls atomic.Int64
	return func() time.Time {
		n := calls.Add(1) - 1
		return start.Add(time.Duration(n) * step)
	}
}

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestInitializeRejectsNilSource(t *testing.T) {
	m := New(newTestConfig(t, config.SilenceDetectionConfig{}))

	assert.ErrorIs(t, m.Initialize(nil, "none"), ErrNoSource)
	assert.ErrorIs(t, m.Start(), ErrNoSource)
	assert.Equal(t, types.StateStopped, m.State())
}

func TestTickSpecScenario(t *testing.T) {
	m := New(newTestConfig(t, config.SilenceDetectionConfig{}))
	src := audio.NewStaticSource(-60)
	require.NoError(t, m.Initialize(src, "static"))
	rec := &recorder{}
	m.AddListener(rec)

	for i := range 120 {
		m.Tick(t0.Add(time.Duration(i) * 100 * time.Millisecond))
	}
	src.SetLevel(-20)
	upd := m.Tick(t0.Add(12 * time.Second))

	require.NotNil(t, upd.Silence)
	require.Len(t, rec.silences, 1)
	require.Len(t, rec.alerts, 1)
	assert.Equal(t, int64(12000), rec.silences[0].DurationMs)
	assert.Equal(t, silence.CategoryUnnatural, rec.silences[0].Category)
	assert.Equal(t, t0.Add(10*time.Second), rec.alerts[0].Timestamp)
	assert.Equal(t, silence.SeverityMedium, rec.alerts[0].Severity)
	assert.Equal(t, 121, rec.levels)

	stats := m.Detector().Statistics()
	assert.Equal(t, 1, stats.Unnatural)
	assert.Equal(t, 1, stats.AlertsSent)
}

func TestTickShortSilenceRecordsNothing(t *testing.T) {
	m := New(newTestConfig(t, config.SilenceDetectionConfig{}))
	src := audio.NewStaticSource(-60)
	require.NoError(t, m.Initialize(src, "static"))
	rec := &recorder{}
	m.AddListener(rec)

	for i := range 10 {
		m.Tick(t0.Add(time.Duration(i) * 100 * time.Millisecond))
	}
	src.SetLevel(-20)
	m.Tick(t0.Add(time.Second))

	s, a := rec.counts()
	assert.Zero(t, s)
	assert.Zero(t, a)
	assert.Empty(t, m.Detector().Silences())
}

func TestTickSourceErrorReadsAsSilence(t *testing.T) {
	m := New(newTestConfig(t, config.SilenceDetectionConfig{}))
	src := audio.NewStaticSource(-10)
	require.NoError(t, m.Initialize(src, "static"))
	require.NoError(t, src.Close())

	upd := m.Tick(t0)
	assert.Equal(t, audio.SilenceFloorDB, upd.LevelDB)
	assert.True(t, upd.Silent)
	assert.NotEmpty(t, m.Status().LastError)
}

func TestLevelsReportOpenRun(t *testing.T) {
	m := New(newTestConfig(t, config.SilenceDetectionConfig{}), WithClock(func() time.Time { return t0.Add(2 * time.Second) }))
	require.NoError(t, m.Initialize(audio.NewStaticSource(-60), "static"))

	m.Tick(t0)
	levels := m.Levels()
	assert.True(t, levels.Silent)
	assert.True(t, levels.Run.Open)
	assert.Equal(t, int64(2000), levels.Run.DurationMs)
	assert.InDelta(t, -60.0, levels.LevelDB, 1e-9)
}

func TestStartStopFlushesOpenRun(t *testing.T) {
	cfg := newTestConfig(t, config.SilenceDetectionConfig{IntervalMs: ptr[int64](10)})
	m := New(cfg, WithClock(fakeClock(t0, time.Second)))
	require.NoError(t, m.Initialize(audio.NewStaticSource(-60), "static"))
	rec := &recorder{}
	m.AddListener(rec)

	require.NoError(t, m.Start())
	assert.ErrorIs(t, m.Start(), ErrAlreadyRunning)

	require.Eventually(t, func() bool {
		return m.Status().Ticks >= 5
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, m.Stop())
	assert.Equal(t, types.StateStopped, m.State())

	silences, _ := rec.counts()
	require.Equal(t, 1, silences)
	assert.Equal(t, silence.NoRun, m.Detector().State())
	assert.GreaterOrEqual(t, rec.silences[0].DurationMs, int64(3000))
	assert.Equal(t, []types.MonitorState{types.StateRunning, types.StateStopped}, rec.states)

	// A second stop is a no-op and the monitor can be restarted.
	require.NoError(t, m.Stop())
	require.NoError(t, m.Start())
	require.NoError(t, m.Close())
}

func TestStopWithoutQualifyingRunEmitsNothing(t *testing.T) {
	cfg := newTestConfig(t, config.SilenceDetectionConfig{IntervalMs: ptr[int64](10)})
	m := New(cfg)
	require.NoError(t, m.Initialize(audio.NewStaticSource(-10), "static"))
	rec := &recorder{}
	m.AddListener(rec)

	require.NoError(t, m.Start())
	require.Eventually(t, func() bool {
		return m.Status().Ticks >= 2
	}, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, m.Stop())

	silences, alerts := rec.counts()
	assert.Zero(t, silences)
	assert.Zero(t, alerts)
}

func TestIntervalChangeAppliesWhileRunning(t *testing.T) {
	cfg := newTestConfig(t, config.SilenceDetectionConfig{IntervalMs: ptr[int64](500)})
	m := New(cfg)
	require.NoError(t, m.Initialize(audio.NewStaticSource(-10), "static"))
	require.NoError(t, m.Start())
	t.Cleanup(func() { _ = m.Stop() })

	// Wait for the first slow tick, then speed up.
	require.Eventually(t, func() bool { return m.Status().Ticks >= 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, cfg.SetSilenceDetection(config.SilenceDetectionConfig{IntervalMs: ptr[int64](10)}))

	require.Eventually(t, func() bool { return m.Status().Ticks >= 20 }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(10), m.Status().IntervalMs)
}

func TestResetClearsLog(t *testing.T) {
	m := New(newTestConfig(t, config.SilenceDetectionConfig{}))
	src := audio.NewStaticSource(-60)
	require.NoError(t, m.Initialize(src, "static"))

	m.Tick(t0)
	src.SetLevel(-10)
	m.Tick(t0.Add(4 * time.Second))
	require.Len(t, m.Detector().Silences(), 1)

	m.Reset()
	assert.Empty(t, m.Detector().Silences())
	assert.Equal(t, audio.SilenceFloorDB, m.Levels().PeakDB)
}

func TestSwapSourceClosesPrevious(t *testing.T) {
	m := New(newTestConfig(t, config.SilenceDetectionConfig{}))
	first := audio.NewStaticSource(-10)
	require.NoError(t, m.Initialize(first, "first"))

	second := audio.NewStaticSource(-60)
	require.NoError(t, m.SwapSource(second, "second"))
	assert.Equal(t, "second", m.Status().Source)

	_, err := first.Pull(make([]float64, 4))
	assert.ErrorIs(t, err, audio.ErrSourceClosed)

	upd := m.Tick(t0)
	assert.True(t, upd.Silent)
	assert.ErrorIs(t, m.SwapSource(nil, "none"), ErrNoSource)
}

// scriptSource yields one buffer per level, then fail or io.EOF.
type scriptSource struct {
	levels []float64
	fail   error
}

func (s *scriptSource) Pull(dst []float64) (int, error) {
	if len(s.levels) == 0 {
		return 0, cmp.Or(s.fail, io.EOF)
	}
	src := audio.NewStaticSource(s.levels[0])
	s.levels = s.levels[1:]
	return src.Pull(dst)
}

func (s *scriptSource) Close() error { return nil }

func TestDrainRunsToEndOfStream(t *testing.T) {
	m := New(newTestConfig(t, config.SilenceDetectionConfig{}), WithBufferSize(64))
	rec := &recorder{}
	m.AddListener(rec)

	// 1 s loud, 4 s silent, 1 s loud, 6 s silent until the end.
	var levels []float64
	for _, seg := range []struct {
		level float64
		ticks int
	}{{-10, 10}, {-60, 40}, {-10, 10}, {-60, 60}} {
		for range seg.ticks {
			levels = append(levels, seg.level)
		}
	}
	require.NoError(t, m.Initialize(&scriptSource{levels: levels}, "script"))

	processed, err := m.Drain(t0)
	require.NoError(t, err)
	assert.Equal(t, 12*time.Second, processed)

	silences := m.Detector().Silences()
	require.Len(t, silences, 2)
	assert.Equal(t, int64(4000), silences[0].DurationMs)
	assert.Equal(t, silence.CategoryNatural, silences[0].Category)
	assert.Equal(t, int64(6000), silences[1].DurationMs)
	assert.Equal(t, silence.CategoryUnnatural, silences[1].Category)
	assert.Equal(t, types.StateStopped, m.State())

	_, err = New(newTestConfig(t, config.SilenceDetectionConfig{})).Drain(t0)
	assert.ErrorIs(t, err, ErrNoSource)
}

func TestDrainFlushesOnReadError(t *testing.T) {
	m := New(newTestConfig(t, config.SilenceDetectionConfig{}), WithBufferSize(64))
	rec := &recorder{}
	m.AddListener(rec)

	// 1 s loud, then 4 s silent before the source breaks.
	var levels []float64
	for i := range 50 {
		levels = append(levels, -10)
		if i >= 10 {
			levels[i] = -60
		}
	}
	readErr := errors.New("truncated data chunk")
	require.NoError(t, m.Initialize(&scriptSource{levels: levels, fail: readErr}, "script"))

	processed, err := m.Drain(t0)
	require.ErrorIs(t, err, readErr)
	assert.Equal(t, 5*time.Second, processed)

	silences := m.Detector().Silences()
	require.Len(t, silences, 1)
	assert.Equal(t, int64(4000), silences[0].DurationMs)
	got, _ := rec.counts()
	assert.Equal(t, 1, got)
}
