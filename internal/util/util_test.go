package util

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		ms   int64
		want string
	}{
		{-5, "0.0s"},
		{0, "0.0s"},
		{4200, "4.2s"},
		{9999, "10.0s"},
		{10_000, "10s"},
		{25_400, "25s"},
		{90_000, "1m 30s"},
		{150_000, "2m 30s"},
		{3_600_000, "1h 0m"},
		{5_000_000, "1h 23m"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatDuration(tt.ms))
		})
	}
}

func TestFormatHumanTime(t *testing.T) {
	assert.Equal(t, "unknown", FormatHumanTime(""))
	assert.Equal(t, "unknown", FormatHumanTime("unknown"))
	assert.Equal(t, "yesterday", FormatHumanTime("yesterday"))
	assert.Equal(t, "unknown", FormatTime(time.Time{}))

	ts := time.Date(2024, 3, 9, 14, 5, 0, 0, time.UTC)
	assert.Equal(t, FormatTime(ts), FormatHumanTime(ts.Format(time.RFC3339)))
	assert.Contains(t, FormatTime(ts), "2024")
}

func TestBackoff(t *testing.T) {
	b := NewBackoff(100*time.Millisecond, 500*time.Millisecond)

	var got []time.Duration
	for range 5 {
		got = append(got, b.Next())
	}
	assert.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		500 * time.Millisecond,
		500 * time.Millisecond,
	}, got)

	b.Reset()
	assert.Equal(t, 100*time.Millisecond, b.Next())
}

func TestWrapError(t *testing.T) {
	assert.NoError(t, WrapError("open", nil))

	base := errors.New("boom")
	err := WrapError("open device", base)
	assert.EqualError(t, err, "failed to open device: boom")
	assert.ErrorIs(t, err, base)
}

func TestLastLine(t *testing.T) {
	assert.Equal(t, "device busy", LastLine("starting\n  device busy  \n\n"))
	assert.Empty(t, LastLine(""))

	long := strings.Repeat("é", 150)
	line := LastLine(long)
	assert.True(t, strings.HasSuffix(line, "..."))
	assert.LessOrEqual(t, len(line), maxErrorLineLength+3)
	assert.True(t, strings.HasPrefix(long, strings.TrimSuffix(line, "...")))
}

func TestIsConfigured(t *testing.T) {
	assert.True(t, IsConfigured())
	assert.True(t, IsConfigured("a", "b"))
	assert.False(t, IsConfigured("a", ""))
}

func TestValidatePath(t *testing.T) {
	assert.NoError(t, ValidatePath("log", "/var/log/silence.jsonl"))
	assert.NoError(t, ValidatePath("log", "logs/..hidden/x"))
	assert.Error(t, ValidatePath("log", ""))
	assert.Error(t, ValidatePath("log", "logs/../etc/passwd"))
}

func TestCheckPathWritable(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "logs")
	require.NoError(t, CheckPathWritable(dir))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	file := filepath.Join(t.TempDir(), "plain")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	assert.Error(t, CheckPathWritable(file))
}

func TestResolveFFmpegPath(t *testing.T) {
	_, err := ResolveFFmpegPath(filepath.Join(t.TempDir(), "no-such-ffmpeg"))
	assert.Error(t, err)
}

func TestShutdownSignals(t *testing.T) {
	assert.Contains(t, ShutdownSignals(), os.Interrupt)
}
