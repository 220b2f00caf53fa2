// Package payload builds channel-appropriate message bodies from a
// triggered alert: a chat message with severity color and fields, an email
// with subject plus HTML and plaintext bodies, and a structured JSON
// envelope for generic webhooks.
package payload

import (
	"fmt"
	"html"
	"strings"
	"time"

	"buildwatch/internal/dispatcher"
	"buildwatch/internal/model"
)

// ChatPayload is a Slack-compatible incoming-webhook message.
type ChatPayload struct {
	Text        string       `json:"text,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment is one chat message attachment.
type Attachment struct {
	Color  string  `json:"color,omitempty"`
	Title  string  `json:"title,omitempty"`
	Text   string  `json:"text,omitempty"`
	Fields []Field `json:"fields,omitempty"`
}

// Field is a titled value in a chat attachment.
type Field struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// BuildChatPayload builds the chat message for a triggered alert.
func BuildChatPayload(n *dispatcher.Notification) ChatPayload {
	fields := []Field{
		{Title: "Severity", Value: string(n.Trigger.Severity), Short: true},
		{Title: "Pipeline", Value: n.Pipeline.Name, Short: true},
		{Title: "Condition", Value: conditionSummary(n.Rule), Short: true},
		{Title: "Observed", Value: fmt.Sprintf("%g", n.Trigger.MetricValue), Short: true},
		{Title: "Build", Value: n.Build.ExternalID, Short: true},
		{Title: "Status", Value: string(n.Build.Status), Short: true},
	}
	if n.Build.Branch != "" {
		fields = append(fields, Field{Title: "Branch", Value: n.Build.Branch, Short: true})
	}

	return ChatPayload{
		Attachments: []Attachment{
			{
				Color:  severityColor(n.Trigger.Severity),
				Title:  fmt.Sprintf("[%s] %s", strings.ToUpper(string(n.Trigger.Severity)), n.Pipeline.Name),
				Text:   n.Trigger.Message,
				Fields: fields,
			},
		},
	}
}

func severityColor(s model.Severity) string {
	switch s {
	case model.SeverityCritical:
		return "danger"
	case model.SeverityHigh, model.SeverityMedium:
		return "warning"
	default:
		return "good"
	}
}

// EmailPayload is a rendered email with subject and both body variants.
type EmailPayload struct {
	Subject string
	HTML    string
	Text    string
}

// BuildEmailPayload builds the email content for a triggered alert.
func BuildEmailPayload(n *dispatcher.Notification) EmailPayload {
	subject := fmt.Sprintf("[%s] %s: %s",
		strings.ToUpper(string(n.Trigger.Severity)), n.Pipeline.Name, conditionSummary(n.Rule))

	rows := [][2]string{
		{"Pipeline", n.Pipeline.Name},
		{"Severity", string(n.Trigger.Severity)},
		{"Condition", conditionSummary(n.Rule)},
		{"Observed value", fmt.Sprintf("%g", n.Trigger.MetricValue)},
		{"Build", n.Build.ExternalID},
		{"Build status", string(n.Build.Status)},
		{"Branch", n.Build.Branch},
		{"Commit", n.Build.CommitHash},
		{"Triggered at", n.Trigger.TriggeredAt.UTC().Format(time.RFC3339)},
	}

	var text strings.Builder
	text.WriteString(n.Trigger.Message + "\n\n")
	var htmlBody strings.Builder
	htmlBody.WriteString("<html><body>")
	htmlBody.WriteString("<p>" + html.EscapeString(n.Trigger.Message) + "</p>")
	htmlBody.WriteString("<table>")
	for _, row := range rows {
		if row[1] == "" {
			continue
		}
		text.WriteString(fmt.Sprintf("%s: %s\n", row[0], row[1]))
		htmlBody.WriteString(fmt.Sprintf("<tr><td><b>%s</b></td><td>%s</td></tr>",
			html.EscapeString(row[0]), html.EscapeString(row[1])))
	}
	htmlBody.WriteString("</table></body></html>")

	return EmailPayload{
		Subject: subject,
		HTML:    htmlBody.String(),
		Text:    text.String(),
	}
}

// WebhookPayload is the structured JSON envelope delivered to generic
// webhook endpoints.
type WebhookPayload struct {
	TriggerID   string       `json:"trigger_id"`
	TriggeredAt string       `json:"triggered_at"`
	Message     string       `json:"message"`
	Alert       AlertBody    `json:"alert"`
	Pipeline    PipelineBody `json:"pipeline"`
	Build       BuildBody    `json:"build"`
}

// AlertBody describes the rule that fired.
type AlertBody struct {
	RuleID        string  `json:"rule_id"`
	ConditionType string  `json:"condition_type"`
	Operator      string  `json:"operator"`
	Threshold     float64 `json:"threshold"`
	Severity      string  `json:"severity"`
	MetricValue   float64 `json:"metric_value"`
}

// PipelineBody describes the pipeline the alert fired on.
type PipelineBody struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Provider string `json:"provider"`
}

// BuildBody describes the build that caused the evaluation.
type BuildBody struct {
	ID              string   `json:"id"`
	ExternalID      string   `json:"external_id"`
	Status          string   `json:"status"`
	Branch          string   `json:"branch,omitempty"`
	CommitHash      string   `json:"commit_hash,omitempty"`
	DurationSeconds *float64 `json:"duration_seconds,omitempty"`
}

// BuildWebhookPayload builds the webhook envelope for a triggered alert.
func BuildWebhookPayload(n *dispatcher.Notification) WebhookPayload {
	return WebhookPayload{
		TriggerID:   n.Trigger.ID,
		TriggeredAt: n.Trigger.TriggeredAt.UTC().Format(time.RFC3339),
		Message:     n.Trigger.Message,
		Alert: AlertBody{
			RuleID:        n.Rule.ID,
			ConditionType: string(n.Rule.ConditionType),
			Operator:      string(n.Rule.Operator),
			Threshold:     n.Rule.Threshold,
			Severity:      string(n.Trigger.Severity),
			MetricValue:   n.Trigger.MetricValue,
		},
		Pipeline: PipelineBody{
			ID:       n.Pipeline.ID,
			Name:     n.Pipeline.Name,
			Provider: n.Pipeline.Provider,
		},
		Build: BuildBody{
			ID:              n.Build.ID,
			ExternalID:      n.Build.ExternalID,
			Status:          string(n.Build.Status),
			Branch:          n.Build.Branch,
			CommitHash:      n.Build.CommitHash,
			DurationSeconds: n.Build.DurationSeconds,
		},
	}
}

func conditionSummary(rule *model.AlertRule) string {
	return fmt.Sprintf("%s %s %g", rule.ConditionType, rule.Operator, rule.Threshold)
}
