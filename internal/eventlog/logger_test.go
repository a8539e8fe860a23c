package eventlog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oszuidwest/zwfm-silencewatch/internal/silence"
	"github.com/oszuidwest/zwfm-silencewatch/internal/types"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestLogger(t *testing.T) *Logger {
	t.Helper()
	l, err := NewLogger(filepath.Join(t.TempDir(), "logs", "events.jsonl"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	var step int
	l.now = func() time.Time {
		step++
		return t0.Add(time.Duration(step) * time.Second)
	}
	return l
}

func TestLoggerRecordsListenerEvents(t *testing.T) {
	l := newTestLogger(t)

	l.MonitorStateChanged(types.StateRunning)
	l.SilenceAlert(silence.Alert{StartTime: t0, DurationMs: 10000, Severity: silence.SeverityMedium})
	l.SilenceDetected(silence.Silence{ID: "s1", DurationMs: 12000, Category: silence.CategoryUnnatural})
	l.MonitorStateChanged(types.StateStopping)
	l.MonitorStateChanged(types.StateStopped)

	events, more, err := ReadLast(l.Path(), 10, 0, FilterAll)
	require.NoError(t, err)
	assert.False(t, more)
	require.Len(t, events, 4)

	assert.Equal(t, MonitorStopped, events[0].Type)
	assert.Equal(t, SilenceDetected, events[1].Type)
	assert.Equal(t, SilenceAlert, events[2].Type)
	assert.Equal(t, MonitorStarted, events[3].Type)
	assert.True(t, events[0].Timestamp.After(events[3].Timestamp))

	var s silence.Silence
	require.NoError(t, json.Unmarshal(events[1].Details, &s))
	assert.Equal(t, "s1", s.ID)
	assert.Equal(t, silence.CategoryUnnatural, s.Category)
}

func TestReadLastFiltersAndPages(t *testing.T) {
	l := newTestLogger(t)
	for i := range 5 {
		l.SilenceDetected(silence.Silence{ID: string(rune('a' + i))})
		l.SilenceAlert(silence.Alert{})
	}

	page, more, err := ReadLast(l.Path(), 2, 0, FilterSilence)
	require.NoError(t, err)
	assert.True(t, more)
	require.Len(t, page, 2)
	for _, e := range page {
		assert.Equal(t, SilenceDetected, e.Type)
	}

	last, more, err := ReadLast(l.Path(), 2, 4, FilterSilence)
	require.NoError(t, err)
	assert.False(t, more)
	require.Len(t, last, 1)

	var s silence.Silence
	require.NoError(t, json.Unmarshal(last[0].Details, &s))
	assert.Equal(t, "a", s.ID)

	alerts, _, err := ReadLast(l.Path(), 100, 0, FilterAlert)
	require.NoError(t, err)
	assert.Len(t, alerts, 5)

	none, _, err := ReadLast(l.Path(), 10, 0, FilterMonitor)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestReadLastEdgeCases(t *testing.T) {
	events, more, err := ReadLast(filepath.Join(t.TempDir(), "missing.jsonl"), 10, 0, FilterAll)
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.False(t, more)

	path := filepath.Join(t.TempDir(), "mixed.jsonl")
	content := `{"ts":"2026-03-01T12:00:00Z","type":"monitor_started"}
not json
{"ts":"2026-03-01T12:00:01Z","type":"monitor_stopped"}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	events, _, err = ReadLast(path, 10, 0, FilterAll)
	require.NoError(t, err)
	assert.Len(t, events, 2)

	events, _, err = ReadLast(path, 0, 0, FilterAll)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestLogAfterClose(t *testing.T) {
	l := newTestLogger(t)
	require.NoError(t, l.Close())
	assert.ErrorIs(t, l.Log(MonitorStarted, "", nil), os.ErrClosed)
	assert.NoError(t, l.Close())
}

func TestParseFilter(t *testing.T) {
	f, err := ParseFilter("alert")
	require.NoError(t, err)
	assert.Equal(t, FilterAlert, f)

	_, err = ParseFilter("stream")
	assert.ErrorIs(t, err, ErrUnknownFilter)
}
