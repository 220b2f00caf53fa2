// Package email delivers alert notifications by email through a pluggable
// backend (SMTP, SES, or Resend).
package email

import (
	"context"
	"fmt"
	"strings"

	"buildwatch/internal/dispatcher"
	"buildwatch/internal/dispatcher/email/provider"
	"buildwatch/internal/dispatcher/payload"
	"buildwatch/internal/model"
)

// Sender sends alert emails to a configured recipient list.
type Sender struct {
	backend    provider.Provider
	from       string
	recipients []string
}

// New creates an email sender. recipients is a comma-separated address list.
func New(backend provider.Provider, from, recipients string) *Sender {
	return &Sender{
		backend:    backend,
		from:       from,
		recipients: parseRecipients(recipients),
	}
}

// Channel returns the channel this sender handles.
func (s *Sender) Channel() model.Channel {
	return model.ChannelEmail
}

// Send renders and sends the alert email.
func (s *Sender) Send(ctx context.Context, n *dispatcher.Notification) error {
	if len(s.recipients) == 0 {
		return fmt.Errorf("no email recipients configured")
	}
	for _, r := range s.recipients {
		if !strings.Contains(r, "@") {
			return fmt.Errorf("invalid email address: %q", r)
		}
	}
	if err := provider.Validate(s.backend); err != nil {
		return err
	}

	p := payload.BuildEmailPayload(n)
	req := &provider.Request{
		From:    s.from,
		To:      s.recipients,
		Subject: p.Subject,
		Text:    p.Text,
		HTML:    p.HTML,
	}
	if err := s.backend.Send(ctx, req); err != nil {
		return fmt.Errorf("failed to send email via %s: %w", s.backend.Name(), err)
	}
	return nil
}

// parseRecipients splits a comma-separated address list, dropping empties.
func parseRecipients(value string) []string {
	parts := strings.Split(value, ",")
	recipients := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			recipients = append(recipients, trimmed)
		}
	}
	return recipients
}
