package report

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oszuidwest/zwfm-silencewatch/internal/config"
	"github.com/oszuidwest/zwfm-silencewatch/internal/silence"
	"github.com/oszuidwest/zwfm-silencewatch/internal/types"
)

var t0 = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

type fakeSource struct {
	silences []silence.Silence
}

func (f *fakeSource) Statistics() silence.Statistics { return silence.Summarize(f.silences) }

func (f *fakeSource) Unnatural() []silence.Silence {
	var out []silence.Silence
	for _, s := range f.silences {
		if s.Category == silence.CategoryUnnatural {
			out = append(out, s)
		}
	}
	return out
}

func testSource() *fakeSource {
	return &fakeSource{silences: []silence.Silence{
		{ID: "a", StartTime: t0.Add(-2 * time.Hour), DurationMs: 4000, AvgDB: -55, Category: silence.CategoryNatural},
		{ID: "b", StartTime: t0.Add(-time.Hour), DurationMs: 90000, AvgDB: -70, Category: silence.CategoryUnnatural, AlertSent: true},
	}}
}

type fakeStore struct {
	puts    []*s3.PutObjectInput
	bodies  [][]byte
	deletes []string
	err     error
}

func (f *fakeStore) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, _ := io.ReadAll(in.Body)
	f.puts = append(f.puts, in)
	f.bodies = append(f.bodies, body)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeStore) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.deletes = append(f.deletes, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestBuild(t *testing.T) {
	r := Build(testSource(), "Test FM", t0)

	assert.Equal(t, t0, r.GeneratedAt)
	assert.Equal(t, 2, r.Statistics.Total)
	assert.Equal(t, 1, r.Statistics.Unnatural)
	assert.Equal(t, 1, r.Statistics.AlertsSent)
	require.Len(t, r.Unnatural, 1)
	assert.Equal(t, "b", r.Unnatural[0].ID)

	text := r.Text()
	assert.Contains(t, text, "Total silences:   2")
	assert.Contains(t, text, "1m 30s")
}

func TestBuildEmptyLog(t *testing.T) {
	r := Build(&fakeSource{}, "Test FM", t0)
	data, err := r.JSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"unnatural_silences": []`)
}

func TestKey(t *testing.T) {
	r := &Report{GeneratedAt: time.Date(2026, 3, 1, 6, 30, 5, 0, time.UTC)}
	assert.Equal(t, "reports/2026-03-01/silence-report-20260301T063005Z.json", r.Key("reports"))
	assert.Equal(t, "a/b/2026-03-01/silence-report-20260301T063005Z.json", r.Key("/a/b/"))
}

func TestUploaderUpload(t *testing.T) {
	store := &fakeStore{}
	u := &Uploader{client: store, bucket: "archive", prefix: "reports"}

	key, err := u.Upload(context.Background(), Build(testSource(), "Test FM", t0))
	require.NoError(t, err)
	assert.Equal(t, "reports/2026-03-01/silence-report-20260301T000000Z.json", key)

	require.Len(t, store.puts, 1)
	assert.Equal(t, "archive", aws.ToString(store.puts[0].Bucket))
	assert.Equal(t, "application/json", aws.ToString(store.puts[0].ContentType))
	assert.Equal(t, int64(len(store.bodies[0])), aws.ToInt64(store.puts[0].ContentLength))

	var got Report
	require.NoError(t, json.Unmarshal(store.bodies[0], &got))
	assert.Equal(t, "Test FM", got.Station)
}

func TestUploaderErrors(t *testing.T) {
	u := &Uploader{client: &fakeStore{err: errors.New("denied")}, bucket: "archive"}
	_, err := u.Upload(context.Background(), Build(testSource(), "Test FM", t0))
	assert.ErrorContains(t, err, "denied")
	assert.Error(t, u.TestConnection(context.Background()))

	_, err = NewUploader(&types.S3Config{Bucket: "archive"})
	assert.Error(t, err)
}

func TestUploaderTestConnectionCleansUp(t *testing.T) {
	store := &fakeStore{}
	u := &Uploader{client: store, bucket: "archive"}

	require.NoError(t, u.TestConnection(context.Background()))
	require.Len(t, store.puts, 1)
	assert.Equal(t, []string{aws.ToString(store.puts[0].Key)}, store.deletes)
}

func TestNewUploaderBuildsClient(t *testing.T) {
	u, err := NewUploader(&types.S3Config{
		Endpoint:        "https://s3.example.org",
		Bucket:          "archive",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
	})
	require.NoError(t, err)
	client, ok := u.client.(*s3.Client)
	require.True(t, ok)
	assert.Equal(t, "auto", client.Options().Region)
	assert.True(t, client.Options().UsePathStyle)
}

func newTestScheduler(t *testing.T, rc config.ReportConfig) (*Scheduler, *fakeStore) {
	t.Helper()
	cfg := config.New(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, cfg.SetReportConfig(rc))

	store := &fakeStore{}
	s := NewScheduler(cfg, testSource())
	s.now = func() time.Time { return t0 }
	s.upload = func(ctx context.Context, snap *config.Snapshot, r *Report) (string, error) {
		u := &Uploader{client: store, bucket: snap.Report.S3.Bucket, prefix: snap.Report.S3.Prefix}
		return u.Upload(ctx, r)
	}
	return s, store
}

func TestSchedulerRunUploads(t *testing.T) {
	s, store := newTestScheduler(t, config.ReportConfig{
		S3: types.S3Config{Bucket: "archive", AccessKeyID: "key", SecretAccessKey: "secret"},
	})

	res := s.Run(context.Background())
	assert.Equal(t, "reports/2026-03-01/silence-report-20260301T000000Z.json", res.S3Key)
	assert.False(t, res.Emailed)
	assert.Empty(t, res.Warnings)
	assert.Len(t, store.puts, 1)
}

func TestSchedulerRunWithoutDelivery(t *testing.T) {
	s, store := newTestScheduler(t, config.ReportConfig{})

	res := s.Run(context.Background())
	require.NotNil(t, res.Report)
	assert.Empty(t, res.S3Key)
	assert.Empty(t, store.puts)
}

func TestSchedulerRunReportsUploadFailure(t *testing.T) {
	s, store := newTestScheduler(t, config.ReportConfig{
		S3: types.S3Config{Bucket: "archive", AccessKeyID: "key", SecretAccessKey: "secret"},
	})
	store.err = errors.New("bucket gone")

	res := s.Run(context.Background())
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "bucket gone")
	assert.Equal(t, 2, res.Report.Statistics.Total)
}

func TestSchedulerStartStop(t *testing.T) {
	disabled, _ := newTestScheduler(t, config.ReportConfig{})
	require.NoError(t, disabled.Start(context.Background()))
	assert.Nil(t, disabled.cron)
	disabled.Stop()

	s, _ := newTestScheduler(t, config.ReportConfig{Enabled: true, Schedule: "0 0 * * *"})
	require.NoError(t, s.Start(context.Background()))
	assert.Error(t, s.Start(context.Background()))
	require.Len(t, s.cron.Entries(), 1)
	s.Stop()
	assert.Nil(t, s.cron)
}

func TestSchedulerReloadPicksUpSettings(t *testing.T) {
	s, _ := newTestScheduler(t, config.ReportConfig{})
	require.NoError(t, s.Start(context.Background()))
	assert.Nil(t, s.cron)

	require.NoError(t, s.cfg.SetReportConfig(config.ReportConfig{Enabled: true, Schedule: "30 6 * * 1"}))
	require.NoError(t, s.Reload())
	require.NotNil(t, s.cron)
	require.Len(t, s.cron.Entries(), 1)

	require.NoError(t, s.cfg.SetReportConfig(config.ReportConfig{Enabled: false}))
	require.NoError(t, s.Reload())
	assert.Nil(t, s.cron)
}
