package email

import (
	"context"
	"reflect"
	"testing"

	"buildwatch/internal/dispatcher"
	"buildwatch/internal/dispatcher/email/provider"
	"buildwatch/internal/model"
)

type stubBackend struct {
	configured bool
	sent       []*provider.Request
	err        error
}

func (s *stubBackend) Name() string       { return "stub" }
func (s *stubBackend) IsConfigured() bool { return s.configured }

func (s *stubBackend) Send(_ context.Context, req *provider.Request) error {
	s.sent = append(s.sent, req)
	return s.err
}

func testNotification() *dispatcher.Notification {
	return &dispatcher.Notification{
		Trigger: &model.AlertTrigger{
			ID:          "trig-1",
			Severity:    model.SeverityHigh,
			Message:     "Pipeline api: build_time > 300 (observed 450)",
			MetricValue: 450,
		},
		Rule: &model.AlertRule{
			ID:            "rule-1",
			ConditionType: model.ConditionBuildTime,
			Operator:      model.OpGT,
			Threshold:     300,
		},
		Pipeline: &model.Pipeline{ID: "pipe-1", Name: "api"},
		Build:    &model.Build{ID: "b1", ExternalID: "42", Status: model.StatusSuccess},
	}
}

func TestSend(t *testing.T) {
	backend := &stubBackend{configured: true}
	s := New(backend, "alerts@example.com", "dev@example.com, oncall@example.com")

	if err := s.Send(context.Background(), testNotification()); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if len(backend.sent) != 1 {
		t.Fatalf("backend sends = %d, want 1", len(backend.sent))
	}
	req := backend.sent[0]
	if req.From != "alerts@example.com" {
		t.Errorf("From = %q", req.From)
	}
	want := []string{"dev@example.com", "oncall@example.com"}
	if !reflect.DeepEqual(req.To, want) {
		t.Errorf("To = %v, want %v", req.To, want)
	}
	if req.Subject == "" || req.HTML == "" || req.Text == "" {
		t.Error("rendered email missing subject or body")
	}
}

func TestSend_NoRecipients(t *testing.T) {
	s := New(&stubBackend{configured: true}, "alerts@example.com", "")
	if err := s.Send(context.Background(), testNotification()); err == nil {
		t.Error("Send() = nil, want error for empty recipient list")
	}
}

func TestSend_InvalidRecipient(t *testing.T) {
	s := New(&stubBackend{configured: true}, "alerts@example.com", "not-an-address")
	if err := s.Send(context.Background(), testNotification()); err == nil {
		t.Error("Send() = nil, want error for malformed address")
	}
}

func TestSend_UnconfiguredBackend(t *testing.T) {
	backend := &stubBackend{configured: false}
	s := New(backend, "alerts@example.com", "dev@example.com")
	if err := s.Send(context.Background(), testNotification()); err == nil {
		t.Error("Send() = nil, want error for unconfigured backend")
	}
	if len(backend.sent) != 0 {
		t.Error("send attempted on unconfigured backend")
	}
}

func TestChannel(t *testing.T) {
	s := New(&stubBackend{}, "", "")
	if got := s.Channel(); got != model.ChannelEmail {
		t.Errorf("Channel() = %v, want email", got)
	}
}
