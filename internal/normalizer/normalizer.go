// Package normalizer turns raw provider events into canonical build records.
//
// Ingestion is idempotent under at-least-once delivery: builds are keyed by
// (pipeline_id, external_id) and the store only applies forward-progress
// state transitions, so redelivered or late-arriving stale events are
// no-ops. Events that cannot be validated or resolved are counted and
// discarded, never surfaced as failures to the sender.
package normalizer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"buildwatch/internal/model"
	"buildwatch/internal/provider"
	"buildwatch/internal/store"
)

// Telemetry counter names incremented by the normalizer.
const (
	CounterReceived           = "events_received"
	CounterValidationFailures = "validation_failures"
	CounterUnresolvedPipeline = "unresolved_pipeline"
	CounterDuplicateEvents    = "duplicate_events"
	CounterBuildsCompleted    = "builds_completed"
)

// PipelineResolver resolves the pipeline owning an incoming event.
type PipelineResolver interface {
	ResolvePipeline(ctx context.Context, providerName, providerRef string) (*model.Pipeline, error)
}

// BuildStore upserts builds with forward-progress-only semantics.
type BuildStore interface {
	UpsertBuild(ctx context.Context, b *model.Build) (*model.Build, bool, error)
}

// Counter records occurrence counts for service telemetry.
type Counter interface {
	Inc(name string)
}

// ChangePublisher relays normalized build changes to downstream consumers
// (e.g. a real-time UI push layer).
type ChangePublisher interface {
	PublishBuildChanged(ctx context.Context, pipeline *model.Pipeline, build *model.Build) error
}

// CompletionHandler is invoked once per build that transitions into a
// terminal state.
type CompletionHandler interface {
	BuildCompleted(ctx context.Context, pipeline *model.Pipeline, build *model.Build)
}

// Normalizer consumes raw provider events and produces canonical builds.
type Normalizer struct {
	resolver  PipelineResolver
	builds    BuildStore
	counters  Counter
	publisher ChangePublisher
	completed CompletionHandler

	now func() time.Time
}

// New creates a normalizer. publisher and completed may be nil.
func New(resolver PipelineResolver, builds BuildStore, counters Counter, publisher ChangePublisher, completed CompletionHandler) *Normalizer {
	return &Normalizer{
		resolver:  resolver,
		builds:    builds,
		counters:  counters,
		publisher: publisher,
		completed: completed,
		now:       time.Now,
	}
}

// Ingest processes one raw provider event. It returns the upserted build, or
// nil when the event was discarded (malformed payload or unresolved
// pipeline). Discards are not errors: webhook senders expect acknowledgment
// regardless.
func (n *Normalizer) Ingest(ctx context.Context, providerName string, body []byte) (*model.Build, error) {
	n.counters.Inc(CounterReceived)

	ev, err := provider.Parse(providerName, body)
	if err != nil {
		if errors.Is(err, provider.ErrInvalidEvent) || errors.Is(err, provider.ErrUnknownProvider) {
			n.counters.Inc(CounterValidationFailures)
			slog.Warn("Discarding invalid provider event",
				"provider", providerName,
				"error", err,
			)
			return nil, nil
		}
		return nil, err
	}

	pipeline, err := n.resolver.ResolvePipeline(ctx, providerName, ev.PipelineRef)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			n.counters.Inc(CounterUnresolvedPipeline)
			slog.Warn("Discarding event for unknown pipeline",
				"provider", providerName,
				"provider_ref", ev.PipelineRef,
			)
			return nil, nil
		}
		return nil, err
	}

	candidate := n.toBuild(pipeline.ID, ev)
	if candidate == nil {
		n.counters.Inc(CounterValidationFailures)
		slog.Warn("Discarding event without a stable build identifier",
			"provider", providerName,
			"provider_ref", ev.PipelineRef,
		)
		return nil, nil
	}

	build, changed, err := n.builds.UpsertBuild(ctx, candidate)
	if err != nil {
		return nil, err
	}
	if !changed {
		// Redelivery or stale lifecycle state; nothing advanced.
		n.counters.Inc(CounterDuplicateEvents)
		slog.Debug("Duplicate event, build unchanged",
			"pipeline_id", build.PipelineID,
			"external_id", build.ExternalID,
			"status", build.Status,
		)
		return build, nil
	}

	if n.publisher != nil {
		if err := n.publisher.PublishBuildChanged(ctx, pipeline, build); err != nil {
			// Relay is best-effort; the build itself is already durable.
			slog.Error("Failed to publish build change",
				"build_id", build.ID,
				"error", err,
			)
		}
	}

	if build.Status.Terminal() {
		n.counters.Inc(CounterBuildsCompleted)
		slog.Info("Build completed",
			"pipeline_id", build.PipelineID,
			"external_id", build.ExternalID,
			"status", build.Status,
		)
		if n.completed != nil {
			n.completed.BuildCompleted(ctx, pipeline, build)
		}
	}

	return build, nil
}

// toBuild maps normalized provider fields onto a Build candidate, deriving
// the external id and duration. Returns nil when no stable key can be made.
func (n *Normalizer) toBuild(pipelineID string, ev *provider.Normalized) *model.Build {
	externalID := ev.ExternalID
	if externalID == "" {
		// Push-style events carry no run id; a truncated commit hash keeps
		// redelivery of the same push idempotent.
		if len(ev.CommitHash) < 7 {
			return nil
		}
		hash := ev.CommitHash
		if len(hash) > 12 {
			hash = hash[:12]
		}
		externalID = hash
	}

	b := &model.Build{
		ID:         uuid.NewString(),
		PipelineID: pipelineID,
		ExternalID: externalID,
		Status:     ev.Status,
		Branch:     ev.Branch,
		CommitHash: ev.CommitHash,
		StartedAt:  ev.StartedAt,
	}

	completedAt := ev.CompletedAt
	if ev.Status.Terminal() && completedAt.IsZero() {
		completedAt = n.now().UTC()
	}
	if !completedAt.IsZero() {
		b.CompletedAt = &completedAt
	}
	if b.StartedAt.IsZero() {
		switch {
		case ev.DurationSeconds != nil && b.CompletedAt != nil:
			b.StartedAt = b.CompletedAt.Add(-time.Duration(*ev.DurationSeconds * float64(time.Second)))
		default:
			b.StartedAt = n.now().UTC()
		}
	}

	switch {
	case ev.DurationSeconds != nil && *ev.DurationSeconds >= 0:
		b.DurationSeconds = ev.DurationSeconds
	case b.CompletedAt != nil:
		d := b.CompletedAt.Sub(b.StartedAt).Seconds()
		if d < 0 {
			d = 0
		}
		b.DurationSeconds = &d
	}

	return b
}
