package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/oszuidwest/zwfm-silencewatch/internal/types"
	"github.com/oszuidwest/zwfm-silencewatch/internal/util"
)

const (
	graphBaseURL  = "https://graph.microsoft.com/v1.0"
	graphScope    = "https://graph.microsoft.com/.default"
	graphTokenURL = "https://login.microsoftonline.com/%s/oauth2/v2.0/token" //nolint:gosec // URL template, not a credential

	maxRetries       = 3
	initialRetryWait = 1 * time.Second
	maxRetryWait     = 30 * time.Second

	httpTimeout = 30 * time.Second
)

var graphValidator = validator.New()

// credentialField is one Graph credential with the validator tag it must pass.
type credentialField struct {
	name, value, tag string
}

// validateCredentials checks that tenant, client and secret are present.
// Strict mode also requires tenant and client IDs to be GUIDs.
func validateCredentials(cfg *types.GraphConfig, strict bool) error {
	idTag := "required"
	if strict {
		idTag = "required,uuid"
	}
	fields := []credentialField{
		{"tenant ID", strings.ToLower(cfg.TenantID), idTag},
		{"client ID", strings.ToLower(cfg.ClientID), idTag},
		{"client secret", cfg.ClientSecret, "required"},
	}
	for _, f := range fields {
		err := graphValidator.Var(f.value, f.tag)
		if err == nil {
			continue
		}
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && verrs[0].Tag() == "uuid" {
			return fmt.Errorf("%s must be a valid GUID (e.g., 12345678-1234-1234-1234-123456789abc)", f.name)
		}
		return fmt.Errorf("%s is required", f.name)
	}
	return nil
}

func newCredentialsConfig(cfg *types.GraphConfig) *clientcredentials.Config {
	return &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     fmt.Sprintf(graphTokenURL, cfg.TenantID),
		Scopes:       []string{graphScope},
	}
}

// GraphClient sends mail from a shared mailbox through Microsoft Graph.
type GraphClient struct {
	fromAddress string
	baseURL     string
	httpClient  *http.Client
}

// NewGraphClient returns a client authenticated with the app's client
// credentials. Tokens are fetched lazily on the first request.
func NewGraphClient(cfg *types.GraphConfig) (*GraphClient, error) {
	if err := validateCredentials(cfg, false); err != nil {
		return nil, err
	}
	if cfg.FromAddress == "" {
		return nil, errors.New("from address (shared mailbox) is required")
	}

	base := &http.Client{Timeout: httpTimeout}
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	return &GraphClient{
		fromAddress: cfg.FromAddress,
		baseURL:     graphBaseURL,
		httpClient:  newCredentialsConfig(cfg).Client(tokenCtx),
	}, nil
}

type graphMailRequest struct {
	Message graphMessage `json:"message"`
}

type graphMessage struct {
	Subject      string           `json:"subject"`
	Body         graphBody        `json:"body"`
	ToRecipients []graphRecipient `json:"toRecipients"`
}

type graphBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type graphRecipient struct {
	EmailAddress struct {
		Address string `json:"address"`
	} `json:"emailAddress"`
}

// SendMail sends a plain-text message. Throttling and 5xx responses are
// retried with backoff.
func (c *GraphClient) SendMail(ctx context.Context, recipients []string, subject, body string) error {
	var to []graphRecipient
	for _, addr := range recipients {
		if addr = strings.TrimSpace(addr); addr != "" {
			var r graphRecipient
			r.EmailAddress.Address = addr
			to = append(to, r)
		}
	}
	if len(to) == 0 {
		return errors.New("no recipients specified")
	}

	payload, err := json.Marshal(graphMailRequest{Message: graphMessage{
		Subject:      subject,
		Body:         graphBody{ContentType: "Text", Content: body},
		ToRecipients: to,
	}})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/users/%s/sendMail", c.baseURL, url.PathEscape(c.fromAddress))
	backoff := util.NewBackoff(initialRetryWait, maxRetryWait)
	var lastErr error
	for attempt := range maxRetries + 1 {
		wait, err := c.post(ctx, endpoint, payload)
		if err == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		lastErr = err
		if attempt == maxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(max(wait, backoff.Next())):
		}
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// permanentError marks a response that retrying cannot fix.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }

// post performs one send attempt. On a retryable failure it returns the
// server's requested wait, if any.
func (c *GraphClient) post(ctx context.Context, endpoint string, payload []byte) (time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return 0, &permanentError{fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("send request: %w", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()

	switch status := resp.StatusCode; {
	case status == http.StatusOK, status == http.StatusAccepted, status == http.StatusNoContent:
		return 0, nil
	case status == http.StatusTooManyRequests:
		return retryAfter(resp.Header), fmt.Errorf("graph API rate limited (429): %s", body)
	case status >= http.StatusInternalServerError && status != http.StatusNotImplemented:
		return 0, fmt.Errorf("graph API returned %d: %s", status, body)
	default:
		return 0, &permanentError{fmt.Errorf("graph API error %d: %s", status, body)}
	}
}

// retryAfter reads an integer-seconds Retry-After header.
func retryAfter(h http.Header) time.Duration {
	seconds, err := strconv.Atoi(h.Get("Retry-After"))
	if err != nil || seconds <= 0 {
		return 0
	}
	return min(time.Duration(seconds)*time.Second, maxRetryWait)
}

// ValidateAuth acquires a token and looks up the sending mailbox. A 403
// counts as success because Mail.Send does not grant User.Read.
func (c *GraphClient) ValidateAuth(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s/users/%s", c.baseURL, url.PathEscape(c.fromAddress))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return fmt.Errorf("create validation request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		var tokenErr *oauth2.RetrieveError
		if errors.As(err, &tokenErr) {
			return fmt.Errorf("authentication failed: %w", err)
		}
		return fmt.Errorf("validation request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusForbidden:
		return nil
	case http.StatusUnauthorized:
		return errors.New("authentication failed: invalid credentials")
	case http.StatusNotFound:
		return fmt.Errorf("mailbox %s not found", c.fromAddress)
	}
	body, _ := io.ReadAll(resp.Body)
	return fmt.Errorf("validation failed with status %d: %s", resp.StatusCode, body)
}

// ValidateConfig checks cfg is complete enough to send alert mail.
func ValidateConfig(cfg *types.GraphConfig) error {
	if err := validateCredentials(cfg, true); err != nil {
		return err
	}
	switch {
	case cfg.FromAddress == "":
		return errors.New("from address (shared mailbox) is required")
	case cfg.Recipients == "":
		return errors.New("recipients are required")
	}
	return nil
}

// ParseRecipients splits a comma-separated recipient list.
func ParseRecipients(recipients string) []string {
	var result []string
	for r := range strings.SplitSeq(recipients, ",") {
		if r = strings.TrimSpace(r); r != "" {
			result = append(result, r)
		}
	}
	return result
}
