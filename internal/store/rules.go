package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"buildwatch/internal/model"
)

const ruleColumns = `id, pipeline_id, condition_type, operator, threshold, severity, channels, enabled, cooldown_minutes, status, last_triggered`

// ListEnabledRules returns the enabled alert rules for a pipeline.
func (s *Store) ListEnabledRules(ctx context.Context, pipelineID string) ([]model.AlertRule, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM alert_rules
		WHERE pipeline_id = $1 AND enabled
		ORDER BY severity DESC, id
	`, ruleColumns)

	rows, err := s.conn.QueryContext(ctx, query, pipelineID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var rules []model.AlertRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, *rule)
	}
	return rules, rows.Err()
}

// GetRule retrieves a rule by id.
func (s *Store) GetRule(ctx context.Context, ruleID string) (*model.AlertRule, error) {
	query := fmt.Sprintf(`SELECT %s FROM alert_rules WHERE id = $1`, ruleColumns)

	row := s.conn.QueryRowContext(ctx, query, ruleID)
	rule, err := scanRuleRow(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("rule %s: %w", ruleID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return rule, nil
}

// CasTrigger atomically claims a rule trigger. The suppression and cooldown
// checks and the last_triggered write are one conditional UPDATE, so two
// near-simultaneous evaluations cannot both pass the gate: exactly one sees
// a row updated.
//
// The gate fails when the rule is disabled, acknowledged, or still inside
// its cooldown window relative to now.
func (s *Store) CasTrigger(ctx context.Context, ruleID string, now time.Time) (bool, error) {
	query := `
		UPDATE alert_rules
		SET status = 'triggered', last_triggered = $2
		WHERE id = $1
		  AND enabled
		  AND status <> 'acknowledged'
		  AND (last_triggered IS NULL OR last_triggered + (cooldown_minutes * interval '1 minute') <= $2)
	`
	res, err := s.conn.ExecContext(ctx, query, ruleID, now)
	if err != nil {
		return false, fmt.Errorf("failed to claim rule trigger: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected == 1, nil
}

// AcknowledgeRule marks a triggered rule acknowledged. An acknowledged rule
// never auto-triggers until reset.
func (s *Store) AcknowledgeRule(ctx context.Context, ruleID string) error {
	return s.setRuleStatus(ctx, ruleID, model.RuleAcknowledged)
}

// ResetRule returns a rule to active so it can trigger again.
func (s *Store) ResetRule(ctx context.Context, ruleID string) error {
	return s.setRuleStatus(ctx, ruleID, model.RuleActive)
}

func (s *Store) setRuleStatus(ctx context.Context, ruleID string, status model.RuleStatus) error {
	res, err := s.conn.ExecContext(ctx,
		`UPDATE alert_rules SET status = $2 WHERE id = $1`, ruleID, string(status))
	if err != nil {
		return fmt.Errorf("failed to update rule status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("rule %s: %w", ruleID, ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRule(r rowScanner) (*model.AlertRule, error) {
	rule, err := scanRuleRow(r)
	if err != nil {
		return nil, fmt.Errorf("failed to scan rule: %w", err)
	}
	return rule, nil
}

func scanRuleRow(r rowScanner) (*model.AlertRule, error) {
	var rule model.AlertRule
	var channels pq.StringArray
	var lastTriggered sql.NullTime
	if err := r.Scan(
		&rule.ID,
		&rule.PipelineID,
		&rule.ConditionType,
		&rule.Operator,
		&rule.Threshold,
		&rule.Severity,
		&channels,
		&rule.Enabled,
		&rule.CooldownMinutes,
		&rule.Status,
		&lastTriggered,
	); err != nil {
		return nil, err
	}
	rule.Channels = make([]model.Channel, 0, len(channels))
	for _, ch := range channels {
		rule.Channels = append(rule.Channels, model.Channel(ch))
	}
	if lastTriggered.Valid {
		t := lastTriggered.Time
		rule.LastTriggered = &t
	}
	return &rule, nil
}
