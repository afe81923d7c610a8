package mailer

import (
	"context"
	"fmt"

	"github.com/mrz1836/postmark"

	"github.com/avelkine/identity-service/internal/config"
)

// PostmarkDispatcher sends transactional email through Postmark
type PostmarkDispatcher struct {
	client *postmark.Client
	sender string
}

// NewPostmarkDispatcher creates a Postmark-backed dispatcher
func NewPostmarkDispatcher(cfg config.MailerConfig) (*PostmarkDispatcher, error) {
	if cfg.PostmarkServerToken == "" {
		return nil, fmt.Errorf("postmark server token is required")
	}
	if cfg.SenderEmail == "" {
		return nil, fmt.Errorf("sender email is required")
	}

	return &PostmarkDispatcher{
		client: postmark.NewClient(cfg.PostmarkServerToken, cfg.PostmarkAccountToken),
		sender: cfg.SenderEmail,
	}, nil
}

// Send renders the template and submits it to Postmark
func (d *PostmarkDispatcher) Send(ctx context.Context, toEmail string, kind TemplateKind, params map[string]string) error {
	subject, body, err := render(kind, params)
	if err != nil {
		return err
	}

	resp, err := d.client.SendEmail(ctx, postmark.Email{
		From:     d.sender,
		To:       toEmail,
		Subject:  subject,
		HTMLBody: body,
		Tag:      string(kind),
	})
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	if resp.ErrorCode > 0 {
		return fmt.Errorf("postmark error %d: %s", resp.ErrorCode, resp.Message)
	}

	return nil
}
