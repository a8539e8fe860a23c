// Package main provides a broadcast silence monitor that samples an audio
// input, records silences, classifies them and raises alerts on configured
// notification channels.
//
// Usage:
//
//	silencewatch [serve] [--config path/to/config.json]
//	silencewatch scan recording.wav
//	silencewatch version
//
// If --config is not specified, the monitor looks for config.json in the
// same directory as the binary.
package main

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/oszuidwest/zwfm-silencewatch/internal/audio"
	"github.com/oszuidwest/zwfm-silencewatch/internal/config"
	"github.com/oszuidwest/zwfm-silencewatch/internal/eventlog"
	"github.com/oszuidwest/zwfm-silencewatch/internal/metrics"
	"github.com/oszuidwest/zwfm-silencewatch/internal/monitor"
	"github.com/oszuidwest/zwfm-silencewatch/internal/notify"
	"github.com/oszuidwest/zwfm-silencewatch/internal/report"
	"github.com/oszuidwest/zwfm-silencewatch/internal/server"
	"github.com/oszuidwest/zwfm-silencewatch/internal/util"
)

// Build information, set via -ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCommand builds the CLI. Running without a subcommand serves.
func newRootCommand() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:          "silencewatch",
		Short:        "Broadcast silence monitor",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: config.json next to binary)")

	rootCmd.AddCommand(
		setupServeCommand(&configPath),
		setupScanCommand(&configPath),
		setupVersionCommand(),
	)
	return rootCmd
}

func setupServeCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Monitor the configured audio input and serve the web API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), *configPath)
		},
	}
}

// scanFlags holds the detection overrides of the scan command.
type scanFlags struct {
	thresholdDB    float64
	minDurationMs  int64
	naturalMaxMs   int64
	intervalMs     int64
	notificationMs int64
	noAI           bool
}

func setupScanCommand(configPath *string) *cobra.Command {
	var flags scanFlags

	cmd := &cobra.Command{
		Use:   "scan [input.wav]",
		Short: "Analyze a WAV file for silences",
		Long:  `Run a WAV file through the detector and print the silences and statistics as JSON.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadScanConfig(*configPath)
			if err != nil {
				return err
			}
			if err := applyScanFlags(cmd, cfg, flags); err != nil {
				return err
			}

			res, err := scanFile(cfg, args[0])
			if err != nil {
				return err
			}
			return writeScanResult(cmd.OutOrStdout(), res)
		},
	}

	cmd.Flags().Float64Var(&flags.thresholdDB, "threshold", 0, "Silence threshold in dB (default from config)")
	cmd.Flags().Int64Var(&flags.minDurationMs, "min-duration", 0, "Shortest silence to record in ms")
	cmd.Flags().Int64Var(&flags.naturalMaxMs, "natural-max", 0, "Longest natural silence in ms")
	cmd.Flags().Int64Var(&flags.intervalMs, "interval", 0, "Analysis window in ms")
	cmd.Flags().Int64Var(&flags.notificationMs, "notification", 0, "Alert threshold in ms")
	cmd.Flags().BoolVar(&flags.noAI, "no-ai", false, "Disable confidence assessment")
	return cmd
}

func setupVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "silencewatch %s (commit %s, built %s)\n", Version, Commit, BuildTime)
		},
	}
}

// resolveConfigPath defaults to config.json next to the binary.
func resolveConfigPath(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	execPath, err := os.Executable()
	if err != nil {
		return "", util.WrapError("get executable path", err)
	}
	return filepath.Join(filepath.Dir(execPath), "config.json"), nil
}

// loadScanConfig reads the config file when it exists but never creates one.
func loadScanConfig(path string) (*config.Config, error) {
	path, err := resolveConfigPath(path)
	if err != nil {
		return nil, err
	}
	cfg := config.New(path)
	if _, err := os.Stat(path); err == nil {
		if err := cfg.Load(); err != nil {
			return nil, err
		}
	}
	snap := cfg.Snapshot()
	slog.SetDefault(config.NewLogger(os.Stderr, snap.LogLevel, snap.LogFormat))
	return cfg, nil
}

// applyScanFlags overlays the flags that were set on the loaded settings.
// A flag given as 0 means 0.
func applyScanFlags(cmd *cobra.Command, cfg *config.Config, flags scanFlags) error {
	snap := cfg.Snapshot()
	sd := snap.Detection()
	fs := cmd.Flags()
	if fs.Changed("threshold") {
		sd.ThresholdDB = &flags.thresholdDB
	}
	if fs.Changed("min-duration") {
		sd.MinDurationMs = &flags.minDurationMs
	}
	if fs.Changed("natural-max") {
		sd.NaturalMaxMs = &flags.naturalMaxMs
	}
	if fs.Changed("interval") {
		sd.IntervalMs = &flags.intervalMs
	}
	if fs.Changed("notification") {
		sd.NotificationMs = &flags.notificationMs
	}
	if flags.noAI {
		off := false
		sd.AIClassification = &off
	}
	return cfg.OverrideSilenceDetection(sd)
}

// runServe runs the monitor and web server until a shutdown signal arrives.
func runServe(parent context.Context, configPath string) error {
	configPath, err := resolveConfigPath(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, util.ShutdownSignals()...)
	defer stop()

	cfg := config.New(configPath)
	if err := cfg.Load(); err != nil {
		return util.WrapError("load config", err)
	}
	if err := cfg.LoadEnv(ctx); err != nil {
		return err
	}

	snap := cfg.Snapshot()
	slog.SetDefault(config.NewLogger(os.Stderr, snap.LogLevel, snap.LogFormat))
	slog.Info("using config file", "path", configPath, "version", Version)

	// Check FFmpeg availability
	ffmpegPath, err := util.ResolveFFmpegPath(snap.FFmpegPath)
	ffmpegAvailable := err == nil
	if !ffmpegAvailable {
		slog.Warn("FFmpeg not found - running without audio capture", "error", err)
	} else {
		slog.Info("FFmpeg found", "path", ffmpegPath)
	}

	mon := monitor.New(cfg)
	notifier := notify.NewNotifier(cfg)
	hub := server.NewHub()

	registry := prometheus.NewRegistry()
	silenceMetrics, err := metrics.NewSilenceMetrics(registry)
	if err != nil {
		return util.WrapError("register metrics", err)
	}

	if err := util.CheckPathWritable(filepath.Dir(snap.EventLogPath)); err != nil {
		return fmt.Errorf("event log directory %s: %w", filepath.Dir(snap.EventLogPath), err)
	}
	events, err := eventlog.NewLogger(snap.EventLogPath)
	if err != nil {
		return util.WrapError("open event log", err)
	}

	for _, l := range []monitor.Listener{notifier, events, silenceMetrics, hub} {
		mon.AddListener(l)
	}

	scheduler := report.NewScheduler(cfg, mon.Detector())
	if err := scheduler.Start(ctx); err != nil {
		slog.Error("failed to start report scheduler", "error", err)
	}

	captureCtx, stopCapture := captureContext(ctx)
	defer stopCapture()
	needsFFmpeg := audio.NeedsFFmpeg()
	openSource := captureOpener(captureCtx, ffmpegPath, needsFFmpeg)
	commands := server.NewCommandHandler(cfg, mon, notifier, scheduler, openSource)
	srv := NewServer(cfg, mon, commands, hub, silenceMetrics.Handler(), ffmpegAvailable)
	srv.version.Start(ctx)

	if ffmpegAvailable || !needsFFmpeg {
		startMonitor(mon, openSource, snap.AudioInput)
	} else {
		slog.Warn("monitor not started - FFmpeg not available")
	}

	httpServer := srv.Start()

	<-ctx.Done()
	slog.Info("shutting down")

	srv.version.Stop()
	if err := mon.Close(); err != nil {
		slog.Error("error stopping monitor", "error", err)
	}
	stopCapture()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	scheduler.Stop()
	notifier.Close()
	if err := events.Close(); err != nil {
		slog.Error("error closing event log", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

// captureContext outlives shutdown signals so the monitor stops on live
// input. Cancel it only after the monitor is closed.
func captureContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithCancel(context.WithoutCancel(parent))
}

// errFFmpegUnavailable is returned when capture needs FFmpeg and none was found.
var errFFmpegUnavailable = errors.New("FFmpeg not available")

// captureOpener returns a SourceOpener that starts platform capture on
// input. Capture processes end when ctx is cancelled.
func captureOpener(ctx context.Context, ffmpegPath string, needsFFmpeg bool) server.SourceOpener {
	return func(input string) (audio.Source, string, error) {
		if needsFFmpeg && ffmpegPath == "" {
			return nil, "", errFFmpegUnavailable
		}
		src := audio.NewCaptureSource(input, ffmpegPath)
		if err := src.Start(ctx); err != nil {
			return nil, "", err
		}
		return src, cmp.Or(input, "default"), nil
	}
}

// startMonitor opens the configured input and starts polling. Failures are
// logged; the monitor can still be started later from the API.
func startMonitor(mon *monitor.Monitor, open server.SourceOpener, input string) {
	src, name, err := open(input)
	if err != nil {
		slog.Error("failed to open audio input", "input", input, "error", err)
		return
	}
	if err := mon.Initialize(src, name); err != nil {
		slog.Error("failed to initialize monitor", "error", err)
		return
	}
	if err := mon.Start(); err != nil {
		slog.Error("failed to start monitor", "error", err)
	}
}
