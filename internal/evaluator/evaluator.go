// Package evaluator runs alert rules whenever a build reaches a terminal
// state. For each enabled rule on the pipeline it computes the condition
// metric over a trailing build window, compares it to the threshold, and on
// a true condition claims the trigger through the store's compare-and-set
// gate before dispatching notifications.
//
// The CAS gate makes the cooldown and suppression check atomic with the
// last_triggered write, so duplicate webhook deliveries racing each other
// cannot double-dispatch the same rule.
package evaluator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"buildwatch/internal/dispatcher"
	"buildwatch/internal/metrics"
	"buildwatch/internal/model"
)

// Telemetry counter names incremented by the evaluator.
const (
	CounterRulesEvaluated   = "rules_evaluated"
	CounterAlertsTriggered  = "alerts_triggered"
	CounterAlertsSuppressed = "alerts_suppressed"
	CounterDispatchFailures = "dispatch_failures"
)

// RuleStore lists enabled rules and claims triggers atomically.
type RuleStore interface {
	ListEnabledRules(ctx context.Context, pipelineID string) ([]model.AlertRule, error)

	// CasTrigger atomically checks suppression and cooldown against now and
	// claims the trigger. Exactly one of two concurrent callers succeeds.
	CasTrigger(ctx context.Context, ruleID string, now time.Time) (bool, error)
}

// BuildSource provides the trailing build window for metric computation.
type BuildSource interface {
	RecentBuilds(ctx context.Context, pipelineID string, limit int) ([]model.Build, error)
}

// TriggerSink appends alert trigger history entries.
type TriggerSink interface {
	AppendTrigger(ctx context.Context, t *model.AlertTrigger) error
}

// Notifier dispatches a triggered alert across channels and reports
// per-channel outcomes.
type Notifier interface {
	Dispatch(ctx context.Context, n *dispatcher.Notification, channels []model.Channel) []dispatcher.Outcome
}

// RecentFeed receives triggers for the bounded recent-alerts feed.
type RecentFeed interface {
	Push(ctx context.Context, t *model.AlertTrigger)
}

// Counter records occurrence counts for service telemetry.
type Counter interface {
	Inc(name string)
}

// Evaluator evaluates alert rules for completed builds.
type Evaluator struct {
	rules    RuleStore
	builds   BuildSource
	triggers TriggerSink
	notifier Notifier
	counters Counter
	recent   RecentFeed

	windowLimit int
	now         func() time.Time
}

// New creates an evaluator. recent may be nil.
func New(rules RuleStore, builds BuildSource, triggers TriggerSink, notifier Notifier, counters Counter, recent RecentFeed) *Evaluator {
	return &Evaluator{
		rules:       rules,
		builds:      builds,
		triggers:    triggers,
		notifier:    notifier,
		counters:    counters,
		recent:      recent,
		windowLimit: metrics.DefaultWindow.Limit,
		now:         time.Now,
	}
}

// SetWindowLimit overrides the trailing window size used for rolling
// metrics.
func (e *Evaluator) SetWindowLimit(limit int) {
	if limit > 0 {
		e.windowLimit = limit
	}
}

// BuildCompleted evaluates every enabled rule on the pipeline against the
// just-completed build. Rule failures are isolated: an error on one rule
// never aborts the sweep for the others.
func (e *Evaluator) BuildCompleted(ctx context.Context, pipeline *model.Pipeline, build *model.Build) {
	rules, err := e.rules.ListEnabledRules(ctx, pipeline.ID)
	if err != nil {
		slog.Error("Failed to list alert rules", "pipeline_id", pipeline.ID, "error", err)
		return
	}
	if len(rules) == 0 {
		return
	}

	window, err := e.builds.RecentBuilds(ctx, pipeline.ID, e.windowLimit)
	if err != nil {
		// Degrade to an empty window: metrics evaluate as zero and the
		// comparison proceeds rather than aborting the sweep.
		slog.Error("Failed to load build window", "pipeline_id", pipeline.ID, "error", err)
		window = nil
	}

	for i := range rules {
		e.evaluateRule(ctx, &rules[i], pipeline, build, window)
	}
}

func (e *Evaluator) evaluateRule(ctx context.Context, rule *model.AlertRule, pipeline *model.Pipeline, build *model.Build, window []model.Build) {
	e.counters.Inc(CounterRulesEvaluated)

	value := metricValue(rule.ConditionType, build, window)
	if !rule.Operator.Compare(value, rule.Threshold) {
		return
	}

	now := e.now().UTC()
	claimed, err := e.rules.CasTrigger(ctx, rule.ID, now)
	if err != nil {
		slog.Error("Failed to claim rule trigger", "rule_id", rule.ID, "error", err)
		return
	}
	if !claimed {
		e.counters.Inc(CounterAlertsSuppressed)
		slog.Debug("Alert suppressed",
			"rule_id", rule.ID,
			"pipeline_id", pipeline.ID,
			"condition", rule.ConditionType,
			"value", value,
		)
		return
	}

	trigger := &model.AlertTrigger{
		ID:          uuid.NewString(),
		RuleID:      rule.ID,
		PipelineID:  pipeline.ID,
		BuildID:     build.ID,
		TriggeredAt: now,
		Severity:    rule.Severity,
		Message:     triggerMessage(rule, pipeline, value),
		MetricValue: value,
	}

	notification := &dispatcher.Notification{
		Trigger:  trigger,
		Rule:     rule,
		Pipeline: pipeline,
		Build:    build,
	}
	outcomes := e.notifier.Dispatch(ctx, notification, rule.Channels)
	dispatcher.Record(trigger, outcomes)

	e.counters.Inc(CounterAlertsTriggered)
	if trigger.NotificationError != "" {
		e.counters.Inc(CounterDispatchFailures)
	}

	slog.Info("Alert triggered",
		"rule_id", rule.ID,
		"pipeline_id", pipeline.ID,
		"severity", rule.Severity,
		"condition", rule.ConditionType,
		"value", value,
		"channels_succeeded", len(trigger.ChannelsSucceeded),
		"channels_attempted", len(trigger.ChannelsAttempted),
	)

	if err := e.triggers.AppendTrigger(ctx, trigger); err != nil {
		slog.Error("Failed to record alert trigger", "trigger_id", trigger.ID, "error", err)
	}
	if e.recent != nil {
		e.recent.Push(ctx, trigger)
	}
}

// metricValue computes the rule's condition metric. Empty history degrades
// to zero rather than erroring.
func metricValue(condition model.ConditionType, build *model.Build, window []model.Build) float64 {
	switch condition {
	case model.ConditionSuccessRate:
		return metrics.Compute(window).SuccessRate
	case model.ConditionBuildTime:
		if build.DurationSeconds != nil {
			return *build.DurationSeconds
		}
		return 0
	case model.ConditionFailureCount:
		return float64(metrics.FailureCount(window))
	case model.ConditionConsecutiveFailures:
		return float64(metrics.ConsecutiveFailures(window))
	default:
		return 0
	}
}

func triggerMessage(rule *model.AlertRule, pipeline *model.Pipeline, value float64) string {
	return fmt.Sprintf("Pipeline %s: %s %s %g (observed %g)",
		pipeline.Name, rule.ConditionType, rule.Operator, rule.Threshold, value)
}
