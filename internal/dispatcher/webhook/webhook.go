// Package webhook delivers alert notifications to a generic webhook
// endpoint as a structured JSON envelope.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"buildwatch/internal/dispatcher"
	"buildwatch/internal/dispatcher/payload"
	"buildwatch/internal/model"
)

// Sender posts alert envelopes to a configured webhook URL.
type Sender struct {
	url        string
	httpClient *http.Client
}

// New creates a webhook sender for the given URL.
func New(url string) *Sender {
	return &Sender{
		url: url,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Channel returns the channel this sender handles.
func (s *Sender) Channel() model.Channel {
	return model.ChannelWebhook
}

// Send posts the JSON envelope for the notification.
func (s *Sender) Send(ctx context.Context, n *dispatcher.Notification) error {
	if s.url == "" {
		return fmt.Errorf("webhook URL is not configured")
	}
	if !strings.HasPrefix(s.url, "http://") && !strings.HasPrefix(s.url, "https://") {
		return fmt.Errorf("invalid webhook URL: %q", s.url)
	}

	body, err := json.Marshal(payload.BuildWebhookPayload(n))
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "buildwatch/1.0")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook notification: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
