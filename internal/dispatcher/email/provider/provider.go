// Package provider defines the email backend interface and its
// implementations (SMTP, SES, Resend), selected by configuration.
package provider

import (
	"context"
	"fmt"
	"log/slog"
	"os"
)

// Request is one email to be sent.
type Request struct {
	From    string
	To      []string
	Subject string
	Text    string
	HTML    string
}

// Provider is the interface all email backends implement.
type Provider interface {
	// Name returns the backend name (e.g. "smtp", "ses", "resend").
	Name() string

	// Send sends the email.
	Send(ctx context.Context, req *Request) error

	// IsConfigured reports whether the backend has the credentials it needs.
	IsConfigured() bool
}

// FromEnv selects the email backend named by EMAIL_PROVIDER, defaulting to
// SMTP. Unknown names fall back to SMTP with a warning.
func FromEnv() Provider {
	name := GetEnvOrDefault("EMAIL_PROVIDER", "smtp")
	switch name {
	case "smtp":
		return NewSMTPProvider()
	case "ses":
		return NewSESProvider()
	case "resend":
		return NewResendProvider()
	default:
		slog.Warn("Unknown EMAIL_PROVIDER, falling back to SMTP", "name", name)
		return NewSMTPProvider()
	}
}

// Validate returns an error when the provider lacks configuration.
func Validate(p Provider) error {
	if !p.IsConfigured() {
		return fmt.Errorf("email provider %q is not configured", p.Name())
	}
	return nil
}

// GetEnvOrDefault returns the environment variable value or a default if not set.
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
