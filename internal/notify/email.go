package notify

import (
	"context"
	"fmt"

	"github.com/oszuidwest/zwfm-silencewatch/internal/types"
	"github.com/oszuidwest/zwfm-silencewatch/internal/util"
)

// SendEmail mails payload's subject and text to the configured recipients.
func SendEmail(ctx context.Context, client *GraphClient, cfg *types.GraphConfig, payload *Payload) error {
	recipients := ParseRecipients(cfg.Recipients)
	if len(recipients) == 0 {
		return fmt.Errorf("no valid recipients")
	}

	if err := client.SendMail(ctx, recipients, payload.Subject(), payload.Text()); err != nil {
		return util.WrapError("send email via Graph", err)
	}
	return nil
}

// SendTestEmail validates the Graph settings and sends a test email.
func SendTestEmail(ctx context.Context, cfg *types.GraphConfig, stationName string) error {
	if err := ValidateConfig(cfg); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	client, err := NewGraphClient(cfg)
	if err != nil {
		return fmt.Errorf("create Graph client: %w", err)
	}

	if err := client.ValidateAuth(ctx); err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	return SendEmail(ctx, client, cfg, TestPayload(stationName))
}
