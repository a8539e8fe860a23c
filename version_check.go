package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/mod/semver"

	"github.com/oszuidwest/zwfm-silencewatch/internal/types"
	"github.com/oszuidwest/zwfm-silencewatch/internal/util"
)

const (
	githubRepo           = "oszuidwest/zwfm-silencewatch"
	githubAPI            = "https://api.github.com"
	versionCheckInterval = 24 * time.Hour
	versionCheckDelay    = 30 * time.Second
	versionCheckTimeout  = 30 * time.Second
	versionMaxRetries    = 3
	versionRetryDelay    = 1 * time.Minute
)

// VersionChecker polls the release feed and reports update availability.
// It is safe for concurrent use.
type VersionChecker struct {
	apiURL string
	client *http.Client

	mu     sync.RWMutex
	latest string
	etag   string // For conditional requests (304 Not Modified)
	cancel context.CancelFunc
	done   chan struct{}
}

// NewVersionChecker returns a stopped checker for the project's releases.
func NewVersionChecker() *VersionChecker {
	return &VersionChecker{
		apiURL: githubAPI,
		client: &http.Client{Timeout: versionCheckTimeout},
	}
}

// Start launches the background check loop. The loop ends when ctx is
// cancelled or Stop is called.
func (vc *VersionChecker) Start(ctx context.Context) {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	if vc.cancel != nil {
		return
	}
	ctx, vc.cancel = context.WithCancel(ctx)
	vc.done = make(chan struct{})
	go vc.run(ctx, vc.done)
}

// Stop ends the check loop and waits for it to exit.
func (vc *VersionChecker) Stop() {
	vc.mu.Lock()
	cancel, done := vc.cancel, vc.done
	vc.cancel, vc.done = nil, nil
	vc.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// run checks once after a startup delay and then daily.
func (vc *VersionChecker) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in version checker", "panic", r)
		}
	}()

	timer := time.NewTimer(versionCheckDelay)
	defer timer.Stop()
	for {
		select {
		case <-timer.C:
			vc.checkWithRetry(ctx)
			timer.Reset(versionCheckInterval)
		case <-ctx.Done():
			return
		}
	}
}

// checkWithRetry performs the version check with retries on failure.
func (vc *VersionChecker) checkWithRetry(ctx context.Context) {
	backoff := util.NewBackoff(versionRetryDelay, 4*versionRetryDelay)
	for attempt := range versionMaxRetries {
		if vc.check(ctx) {
			return
		}
		if attempt < versionMaxRetries-1 {
			select {
			case <-time.After(backoff.Next()):
			case <-ctx.Done():
				return
			}
		}
	}
	slog.Debug("version check gave up", "attempts", versionMaxRetries)
}

// githubRelease represents a release with version and status information.
type githubRelease struct {
	TagName    string `json:"tag_name"`
	Draft      bool   `json:"draft"`
	Prerelease bool   `json:"prerelease"`
}

// check fetches the latest release and reports whether the check is done.
// Rate limiting, server errors and bad payloads ask for a retry.
func (vc *VersionChecker) check(ctx context.Context) bool {
	ctx, cancel := context.WithTimeoutCause(ctx, versionCheckTimeout, errors.New("release API request timeout"))
	defer cancel()

	url := vc.apiURL + "/repos/" + githubRepo + "/releases/latest"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return false
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", "zwfm-silencewatch/"+Version)

	vc.mu.RLock()
	etag := vc.etag
	vc.mu.RUnlock()
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}

	resp, err := vc.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return !retryableStatus(resp.StatusCode)
	}

	var release githubRelease
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return false
	}
	if release.Draft || release.Prerelease {
		return true
	}
	if release.TagName == "" {
		return false
	}

	vc.mu.Lock()
	vc.latest = normalizeVersion(release.TagName)
	if newEtag := resp.Header.Get("ETag"); newEtag != "" {
		vc.etag = newEtag
	}
	vc.mu.Unlock()

	slog.Debug("release check complete", "latest", release.TagName)
	return true
}

// retryableStatus reports whether a failed release lookup is worth
// repeating: rate limits and server errors are, anything else settles the
// check (304 and 404 included).
func retryableStatus(code int) bool {
	return code == http.StatusForbidden || code == http.StatusTooManyRequests || code >= 500
}

// Info returns the current version info for clients.
func (vc *VersionChecker) Info() types.VersionInfo {
	vc.mu.RLock()
	defer vc.mu.RUnlock()

	current := normalizeVersion(Version)
	info := types.VersionInfo{
		Current:   current,
		Latest:    vc.latest,
		Commit:    Commit,
		BuildTime: util.FormatHumanTime(BuildTime),
	}

	if vc.latest != "" && current != "dev" && current != "unknown" {
		info.UpdateAvail = isNewerVersion(vc.latest, current)
	}
	return info
}

// normalizeVersion strips whitespace and a leading "v".
func normalizeVersion(v string) string {
	return strings.TrimPrefix(strings.TrimSpace(v), "v")
}

// isNewerVersion reports whether latest is newer than current.
func isNewerVersion(latest, current string) bool {
	return semver.Compare("v"+normalizeVersion(latest), "v"+normalizeVersion(current)) > 0
}
