package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/oszuidwest/zwfm-silencewatch/internal/types"
)

const (
	// expiryWarningDays is the number of days before expiration to show a warning.
	expiryWarningDays = 30
	// expiryCacheTTL is how long to cache the expiry info before re-checking.
	expiryCacheTTL = 1 * time.Hour
)

// SecretExpiryChecker looks up when the Graph app's client secret expires.
// Results are cached per credential set. It is safe for concurrent use.
type SecretExpiryChecker struct {
	baseURL   string
	newClient func(ctx context.Context, cfg *types.GraphConfig) *http.Client
	now       func() time.Time

	mu        sync.Mutex
	key       string
	cached    types.SecretExpiryInfo
	lastCheck time.Time
}

// NewSecretExpiryChecker returns a checker that queries Microsoft Graph.
func NewSecretExpiryChecker() *SecretExpiryChecker {
	return &SecretExpiryChecker{
		baseURL:   graphBaseURL,
		newClient: tokenClient,
		now:       time.Now,
	}
}

// tokenClient returns an HTTP client that authenticates with the app's
// client credentials.
func tokenClient(ctx context.Context, cfg *types.GraphConfig) *http.Client {
	base := &http.Client{Timeout: httpTimeout}
	return newCredentialsConfig(cfg).Client(context.WithValue(ctx, oauth2.HTTPClient, base))
}

// Info returns the expiry of the earliest expiring client secret for cfg.
// Failures are reported in the Error field.
func (c *SecretExpiryChecker) Info(ctx context.Context, cfg types.GraphConfig) types.SecretExpiryInfo {
	if err := validateCredentials(&cfg, false); err != nil {
		return types.SecretExpiryInfo{Error: "Graph API not configured"}
	}

	key := cfg.TenantID + "|" + cfg.ClientID + "|" + cfg.ClientSecret
	c.mu.Lock()
	if c.key == key && !c.lastCheck.IsZero() && c.now().Sub(c.lastCheck) < expiryCacheTTL {
		info := c.cached
		c.mu.Unlock()
		return info
	}
	c.mu.Unlock()

	info, err := c.fetch(ctx, &cfg)
	if err != nil {
		info = types.SecretExpiryInfo{Error: err.Error()}
	}

	c.mu.Lock()
	c.key = key
	c.cached = info
	c.lastCheck = c.now()
	c.mu.Unlock()
	return info
}

// applicationResponse represents the Graph API response for an application.
type applicationResponse struct {
	PasswordCredentials []passwordCredential `json:"passwordCredentials"`
}

type passwordCredential struct {
	EndDateTime string `json:"endDateTime"`
}

func (c *SecretExpiryChecker) fetch(ctx context.Context, cfg *types.GraphConfig) (types.SecretExpiryInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, httpTimeout)
	defer cancel()

	apiURL := fmt.Sprintf("%s/applications(appId='%s')", c.baseURL, url.PathEscape(cfg.ClientID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, http.NoBody)
	if err != nil {
		return types.SecretExpiryInfo{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.newClient(ctx, cfg).Do(req)
	if err != nil {
		return types.SecretExpiryInfo{}, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return types.SecretExpiryInfo{}, fmt.Errorf("graph API returned %d: %s", resp.StatusCode, string(body))
	}

	var app applicationResponse
	if err := json.Unmarshal(body, &app); err != nil {
		return types.SecretExpiryInfo{}, fmt.Errorf("parse response: %w", err)
	}
	return earliestExpiry(app.PasswordCredentials, c.now()), nil
}

// earliestExpiry summarizes the credential that expires first.
func earliestExpiry(creds []passwordCredential, now time.Time) types.SecretExpiryInfo {
	var earliest time.Time
	for _, cred := range creds {
		expiry, err := time.Parse(time.RFC3339, cred.EndDateTime)
		if err != nil {
			continue
		}
		if earliest.IsZero() || expiry.Before(earliest) {
			earliest = expiry
		}
	}
	if earliest.IsZero() {
		return types.SecretExpiryInfo{Error: "no password credentials found"}
	}

	daysLeft := max(int(earliest.Sub(now).Hours()/24), 0)
	return types.SecretExpiryInfo{
		ExpiresAt:   earliest.Format(time.RFC3339),
		ExpiresSoon: daysLeft <= expiryWarningDays,
		DaysLeft:    daysLeft,
	}
}
