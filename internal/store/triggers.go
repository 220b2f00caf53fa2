package store

import (
	"context"
	"fmt"

	"github.com/lib/pq"

	"buildwatch/internal/model"
)

// AppendTrigger records one alert trigger history entry. Trigger history is
// append-only; cooldown suppressions never create entries.
func (s *Store) AppendTrigger(ctx context.Context, t *model.AlertTrigger) error {
	query := `
		INSERT INTO alert_triggers
			(id, rule_id, pipeline_id, build_id, triggered_at, severity, message, metric_value,
			 channels_attempted, channels_succeeded, notification_error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := s.conn.ExecContext(ctx, query,
		t.ID,
		t.RuleID,
		t.PipelineID,
		t.BuildID,
		t.TriggeredAt,
		string(t.Severity),
		t.Message,
		t.MetricValue,
		pq.Array(channelStrings(t.ChannelsAttempted)),
		pq.Array(channelStrings(t.ChannelsSucceeded)),
		t.NotificationError,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23503" { // foreign_key_violation
			return fmt.Errorf("rule %s: %w", t.RuleID, ErrNotFound)
		}
		return fmt.Errorf("failed to append trigger: %w", err)
	}
	return nil
}

// RecentTriggers returns up to limit trigger entries, most recent first.
func (s *Store) RecentTriggers(ctx context.Context, limit int) ([]model.AlertTrigger, error) {
	query := `
		SELECT id, rule_id, pipeline_id, build_id, triggered_at, severity, message, metric_value,
		       channels_attempted, channels_succeeded, notification_error
		FROM alert_triggers
		ORDER BY triggered_at DESC
		LIMIT $1
	`
	rows, err := s.conn.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query triggers: %w", err)
	}
	defer rows.Close()

	var triggers []model.AlertTrigger
	for rows.Next() {
		var t model.AlertTrigger
		var attempted, succeeded pq.StringArray
		if err := rows.Scan(
			&t.ID,
			&t.RuleID,
			&t.PipelineID,
			&t.BuildID,
			&t.TriggeredAt,
			&t.Severity,
			&t.Message,
			&t.MetricValue,
			&attempted,
			&succeeded,
			&t.NotificationError,
		); err != nil {
			return nil, fmt.Errorf("failed to scan trigger: %w", err)
		}
		t.ChannelsAttempted = toChannels(attempted)
		t.ChannelsSucceeded = toChannels(succeeded)
		triggers = append(triggers, t)
	}
	return triggers, rows.Err()
}

func channelStrings(channels []model.Channel) []string {
	out := make([]string, 0, len(channels))
	for _, ch := range channels {
		out = append(out, string(ch))
	}
	return out
}

func toChannels(values []string) []model.Channel {
	out := make([]model.Channel, 0, len(values))
	for _, v := range values {
		out = append(out, model.Channel(v))
	}
	return out
}
