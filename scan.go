package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/oszuidwest/zwfm-silencewatch/internal/audio"
	"github.com/oszuidwest/zwfm-silencewatch/internal/config"
	"github.com/oszuidwest/zwfm-silencewatch/internal/monitor"
	"github.com/oszuidwest/zwfm-silencewatch/internal/silence"
	"github.com/oszuidwest/zwfm-silencewatch/internal/util"
)

// scanEpoch is the virtual start time of an offline scan.
var scanEpoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// ScanResult is the JSON document printed by the scan command. Silence
// timestamps are offsets from scanEpoch.
type ScanResult struct {
	File       string             `json:"file"`
	DurationMs int64              `json:"duration_ms"`
	Duration   string             `json:"duration"`
	Settings   silence.Config     `json:"settings"`
	IntervalMs int64              `json:"interval_ms"`
	Silences   []silence.Silence  `json:"silences"`
	Statistics silence.Statistics `json:"statistics"`
}

// scanFile runs a WAV file through the detector on a virtual clock that
// advances by the configured interval per buffer.
func scanFile(cfg *config.Config, path string) (*ScanResult, error) {
	src, err := audio.OpenWAV(path)
	if err != nil {
		return nil, util.WrapError("open WAV file", err)
	}

	snap := cfg.Snapshot()
	bufSize := max(src.SamplesPer(snap.Interval()), 1)
	mon := monitor.New(cfg, monitor.WithBufferSize(bufSize))
	if err := mon.Initialize(src, path); err != nil {
		_ = src.Close()
		return nil, err
	}
	defer func() { _ = mon.Close() }()

	slog.Debug("scanning file", "path", path, "sample_rate", src.SampleRate(), "channels", src.Channels(), "buffer", bufSize)

	processed, err := mon.Drain(scanEpoch)
	if err != nil {
		return nil, util.WrapError("scan "+path, err)
	}

	silences := mon.Detector().Silences()
	if silences == nil {
		silences = []silence.Silence{}
	}
	return &ScanResult{
		File:       path,
		DurationMs: processed.Milliseconds(),
		Duration:   util.FormatDuration(processed.Milliseconds()),
		Settings:   snap.Silence(),
		IntervalMs: snap.SilenceIntervalMs,
		Silences:   silences,
		Statistics: mon.Detector().Statistics(),
	}, nil
}

// writeScanResult prints res as indented JSON.
func writeScanResult(w io.Writer, res *ScanResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("write scan result: %w", err)
	}
	return nil
}
