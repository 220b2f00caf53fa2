// Package events defines the message structures exchanged over Kafka
// topics: raw provider events awaiting normalization and normalized build
// changes for downstream consumers.
package events

import (
	"encoding/json"
	"time"

	"buildwatch/internal/model"
)

// SchemaVersion is the current wire schema version for all event types.
const SchemaVersion = 1

// RawEvent is one provider delivery published to the raw-events topic by
// edge receivers that accept webhooks out of process.
type RawEvent struct {
	SchemaVersion int             `json:"schema_version"`
	Provider      string          `json:"provider"`
	ReceivedAt    time.Time       `json:"received_at"`
	Body          json.RawMessage `json:"body"`
}

// BuildChanged is published once per build mutation for real-time
// consumers (e.g. a UI push layer).
type BuildChanged struct {
	SchemaVersion int         `json:"schema_version"`
	PipelineID    string      `json:"pipeline_id"`
	PipelineName  string      `json:"pipeline_name"`
	Provider      string      `json:"provider"`
	Build         model.Build `json:"build"`
	Terminal      bool        `json:"terminal"`
	EmittedAt     time.Time   `json:"emitted_at"`
}

// NewBuildChanged builds the change event for an upserted build.
func NewBuildChanged(pipeline *model.Pipeline, build *model.Build) *BuildChanged {
	return &BuildChanged{
		SchemaVersion: SchemaVersion,
		PipelineID:    pipeline.ID,
		PipelineName:  pipeline.Name,
		Provider:      pipeline.Provider,
		Build:         *build,
		Terminal:      build.Status.Terminal(),
		EmittedAt:     time.Now().UTC(),
	}
}
