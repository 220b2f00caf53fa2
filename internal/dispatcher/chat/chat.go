// Package chat delivers alert notifications to a chat incoming-webhook URL
// (Slack-compatible payload shape).
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"buildwatch/internal/dispatcher"
	"buildwatch/internal/dispatcher/payload"
	"buildwatch/internal/model"
)

// Sender posts chat messages to a configured incoming-webhook URL.
type Sender struct {
	webhookURL string
	httpClient *http.Client
}

// New creates a chat sender for the given webhook URL.
func New(webhookURL string) *Sender {
	return &Sender{
		webhookURL: webhookURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Channel returns the channel this sender handles.
func (s *Sender) Channel() model.Channel {
	return model.ChannelChat
}

// Send posts the chat payload for the notification.
func (s *Sender) Send(ctx context.Context, n *dispatcher.Notification) error {
	if s.webhookURL == "" {
		return fmt.Errorf("chat webhook URL is not configured")
	}
	if !strings.HasPrefix(s.webhookURL, "http://") && !strings.HasPrefix(s.webhookURL, "https://") {
		return fmt.Errorf("invalid chat webhook URL: %q", maskURL(s.webhookURL))
	}

	body, err := json.Marshal(payload.BuildChatPayload(n))
	if err != nil {
		return fmt.Errorf("failed to marshal chat payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send chat notification to %s: %w", maskURL(s.webhookURL), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("chat webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// maskURL hides the secret path portion of a webhook URL for logging.
func maskURL(url string) string {
	if len(url) > 40 {
		return url[:30] + "..." + url[len(url)-6:]
	}
	return url
}
