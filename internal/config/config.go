// Package config provides configuration parsing and validation for the
// buildwatch service.
package config

import (
	"fmt"
	"os"
	"time"
)

// Config holds all configuration parameters for the service.
type Config struct {
	HTTPAddr    string
	PostgresDSN string
	RedisAddr   string

	// Kafka is optional: with no brokers configured the service runs
	// webhook-only and skips the build-change producer and raw-event
	// consumer.
	KafkaBrokers       string
	BuildChangedTopic  string
	RawEventsTopic     string
	RawEventsGroupID   string

	WindowLimit    int
	ChannelTimeout time.Duration

	ChatWebhookURL  string
	WebhookURL      string
	EmailFrom       string
	EmailRecipients string
}

// Validate checks that all required configuration fields are set and have
// valid values.
func (c *Config) Validate() error {
	if c.HTTPAddr == "" {
		return fmt.Errorf("http-addr cannot be empty")
	}
	if c.PostgresDSN == "" {
		return fmt.Errorf("postgres-dsn cannot be empty")
	}
	if c.WindowLimit <= 0 {
		return fmt.Errorf("window-limit must be > 0")
	}
	if c.ChannelTimeout <= 0 {
		return fmt.Errorf("channel-timeout must be > 0")
	}
	if c.KafkaBrokers != "" {
		if c.BuildChangedTopic == "" {
			return fmt.Errorf("build-changed-topic cannot be empty when kafka-brokers is set")
		}
		if c.RawEventsTopic != "" && c.RawEventsGroupID == "" {
			return fmt.Errorf("raw-events-group-id cannot be empty when raw-events-topic is set")
		}
	}
	return nil
}

// GetEnvOrDefault returns the environment variable value or a default if
// not set.
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// MaskDSN masks sensitive information in a DSN for logging.
func MaskDSN(dsn string) string {
	if len(dsn) > 50 {
		return dsn[:20] + "***" + dsn[len(dsn)-20:]
	}
	return "***"
}
