package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/oszuidwest/zwfm-silencewatch/internal/config"
	"github.com/oszuidwest/zwfm-silencewatch/internal/notify"
	"github.com/oszuidwest/zwfm-silencewatch/internal/util"
)

// Result describes one report run.
type Result struct {
	Report   *Report  `json:"report"`
	S3Key    string   `json:"s3_key,omitempty"`
	Emailed  bool     `json:"emailed"`
	Warnings []string `json:"warnings,omitempty"`
}

// Scheduler builds reports on a cron schedule and delivers them to S3 and
// email when those are configured.
type Scheduler struct {
	cfg *config.Config
	src Source
	now func() time.Time

	// upload is replaced in tests.
	upload func(ctx context.Context, snap *config.Snapshot, r *Report) (string, error)

	mu   sync.Mutex
	ctx  context.Context
	cron *cron.Cron
}

// NewScheduler returns a scheduler summarizing src.
func NewScheduler(cfg *config.Config, src Source) *Scheduler {
	return &Scheduler{
		cfg:    cfg,
		src:    src,
		now:    time.Now,
		upload: uploadToS3,
	}
}

// Start registers the configured schedule. It does nothing when scheduled
// reports are disabled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctx = ctx

	snap := s.cfg.Snapshot()
	if !snap.Report.Enabled {
		return nil
	}
	if s.cron != nil {
		return errors.New("report scheduler already started")
	}

	c := cron.New()
	if _, err := c.AddFunc(snap.Report.Schedule, func() {
		res := s.Run(ctx)
		slog.Info("scheduled report built", "silences", res.Report.Statistics.Total, "warnings", len(res.Warnings))
	}); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", snap.Report.Schedule, err)
	}
	c.Start()
	s.cron = c
	slog.Info("report scheduler started", "schedule", snap.Report.Schedule)
	return nil
}

// Stop removes the schedule and waits for a running report to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
}

// Reload replaces the schedule with the current settings. Scheduled runs
// keep the context given to Start.
func (s *Scheduler) Reload() error {
	s.Stop()

	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	return s.Start(ctx)
}

// Run builds a report now and delivers it. Delivery failures are returned
// as warnings on the result; the report itself is always produced.
func (s *Scheduler) Run(ctx context.Context) *Result {
	snap := s.cfg.Snapshot()
	r := Build(s.src, snap.StationName, s.now())
	res := &Result{Report: r}

	if snap.HasS3() {
		key, err := s.upload(ctx, &snap, r)
		if err != nil {
			res.Warnings = append(res.Warnings, err.Error())
		} else {
			res.S3Key = key
			slog.Info("report uploaded", "key", key)
		}
	}

	if snap.Report.Email && snap.HasGraph() {
		if err := emailReport(ctx, &snap, r); err != nil {
			res.Warnings = append(res.Warnings, err.Error())
		} else {
			res.Emailed = true
		}
	}

	for _, w := range res.Warnings {
		slog.Warn("report delivery failed", "error", w)
	}
	return res
}

func uploadToS3(ctx context.Context, snap *config.Snapshot, r *Report) (string, error) {
	u, err := NewUploader(&snap.Report.S3)
	if err != nil {
		return "", err
	}
	return u.Upload(ctx, r)
}

func emailReport(ctx context.Context, snap *config.Snapshot, r *Report) error {
	client, err := notify.NewGraphClient(&snap.Graph)
	if err != nil {
		return util.WrapError("create Graph client", err)
	}
	recipients := notify.ParseRecipients(snap.Graph.Recipients)
	if err := client.SendMail(ctx, recipients, r.Subject(), r.Text()); err != nil {
		return util.WrapError("email report", err)
	}
	return nil
}
