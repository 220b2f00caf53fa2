// Package model defines the canonical entities shared across the service:
// pipelines, builds, alert rules, and alert trigger history.
package model

import "time"

// Status is the canonical build status used internally regardless of the
// source provider.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Rank orders statuses along the build lifecycle: pending < running < terminal.
// All terminal states share the same rank so a late delivery of one terminal
// state never overwrites another.
func (s Status) Rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusRunning:
		return 1
	case StatusSuccess, StatusFailed, StatusCancelled:
		return 2
	default:
		return 0
	}
}

// Terminal reports whether no further transition can occur from s.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusCancelled
}

// Valid reports whether s is one of the five canonical values.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusSuccess, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Pipeline is a registered CI/CD pipeline. It is owned by configuration
// management; this service only reads it to resolve incoming events.
type Pipeline struct {
	ID          string    `json:"pipeline_id"`
	Name        string    `json:"name"`
	Provider    string    `json:"provider"`
	ProviderRef string    `json:"provider_ref"` // repo full name, job name, or project id
	CreatedAt   time.Time `json:"created_at"`
}

// Build is one normalized build/run for a pipeline. (PipelineID, ExternalID)
// is unique; redelivery of the same provider event updates, never duplicates.
type Build struct {
	ID          string     `json:"build_id"`
	PipelineID  string     `json:"pipeline_id"`
	ExternalID  string     `json:"external_id"`
	Status      Status     `json:"status"`
	Branch      string     `json:"branch,omitempty"`
	CommitHash  string     `json:"commit_hash,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	// DurationSeconds is completed_at - started_at, set once the build
	// reaches a terminal state. Nil while in flight.
	DurationSeconds *float64 `json:"duration_seconds,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Severity levels for alert rules, lowest to highest.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ConditionType names the metric an alert rule evaluates.
type ConditionType string

const (
	ConditionSuccessRate         ConditionType = "success_rate"
	ConditionBuildTime           ConditionType = "build_time"
	ConditionFailureCount        ConditionType = "failure_count"
	ConditionConsecutiveFailures ConditionType = "consecutive_failures"
)

// Operator is the comparison applied between the computed metric and the
// rule threshold. All comparisons are exact, no epsilon.
type Operator string

const (
	OpLT Operator = "<"
	OpLE Operator = "<="
	OpGT Operator = ">"
	OpGE Operator = ">="
	OpEQ Operator = "=="
	OpNE Operator = "!="
)

// Compare applies op to (value, threshold).
func (op Operator) Compare(value, threshold float64) bool {
	switch op {
	case OpLT:
		return value < threshold
	case OpLE:
		return value <= threshold
	case OpGT:
		return value > threshold
	case OpGE:
		return value >= threshold
	case OpEQ:
		return value == threshold
	case OpNE:
		return value != threshold
	default:
		return false
	}
}

// Valid reports whether op is one of the six supported operators.
func (op Operator) Valid() bool {
	switch op {
	case OpLT, OpLE, OpGT, OpGE, OpEQ, OpNE:
		return true
	}
	return false
}

// Channel is a notification delivery channel.
type Channel string

const (
	ChannelEmail   Channel = "email"
	ChannelChat    Channel = "chat"
	ChannelWebhook Channel = "webhook"
)

// RuleStatus is the lifecycle state of an alert rule.
type RuleStatus string

const (
	RuleActive RuleStatus = "active"
	// RuleTriggered means the rule fired and has not been acknowledged.
	// Triggered rules still evaluate; cooldown gates re-notification.
	RuleTriggered RuleStatus = "triggered"
	// RuleAcknowledged suppresses all triggering until an explicit reset.
	RuleAcknowledged RuleStatus = "acknowledged"
)

// AlertRule is a configurable condition evaluated when a build on its
// pipeline reaches a terminal state.
type AlertRule struct {
	ID              string        `json:"rule_id"`
	PipelineID      string        `json:"pipeline_id"`
	ConditionType   ConditionType `json:"condition_type"`
	Operator        Operator      `json:"operator"`
	Threshold       float64       `json:"threshold"`
	Severity        Severity      `json:"severity"`
	Channels        []Channel     `json:"channels"`
	Enabled         bool          `json:"enabled"`
	CooldownMinutes int           `json:"cooldown_minutes"`
	Status          RuleStatus    `json:"status"`
	LastTriggered   *time.Time    `json:"last_triggered,omitempty"`
}

// AlertTrigger is one append-only history entry recording a rule firing and
// the per-channel notification outcome.
type AlertTrigger struct {
	ID                 string    `json:"trigger_id"`
	RuleID             string    `json:"rule_id"`
	PipelineID         string    `json:"pipeline_id"`
	BuildID            string    `json:"build_id"`
	TriggeredAt        time.Time `json:"triggered_at"`
	Severity           Severity  `json:"severity"`
	Message            string    `json:"message"`
	MetricValue        float64   `json:"metric_value"`
	ChannelsAttempted  []Channel `json:"channels_attempted"`
	ChannelsSucceeded  []Channel `json:"channels_succeeded"`
	// NotificationError summarizes per-channel failures, empty when all
	// attempted channels succeeded.
	NotificationError string `json:"notification_error,omitempty"`
}
