package provider

import (
	"fmt"
	"strings"

	"buildwatch/internal/model"
)

// TravisEvent is a Travis-style build notification: an in-progress lifecycle
// state plus a numeric result code that is only meaningful once the build
// has finished.
type TravisEvent struct {
	ID            jsonID  `json:"id"`
	State         string  `json:"state"`
	Result        *int    `json:"result"`
	StatusMessage string  `json:"status_message"`
	Branch        string  `json:"branch"`
	Commit        string  `json:"commit"`
	StartedAt     string  `json:"started_at"`
	FinishedAt    string  `json:"finished_at"`
	Duration      float64 `json:"duration"`
	Repository    struct {
		Slug string `json:"slug"`
	} `json:"repository"`
}

func (e *TravisEvent) mapStatus() model.Status {
	switch e.State {
	case "created", "queued", "received":
		return model.StatusPending
	case "started":
		return model.StatusRunning
	case "canceled", "cancelled":
		return model.StatusCancelled
	case "finished", "passed", "failed", "errored":
		switch strings.ToLower(e.StatusMessage) {
		case "canceled", "cancelled":
			return model.StatusCancelled
		}
		if e.Result == nil {
			return model.StatusPending
		}
		if *e.Result == 0 {
			return model.StatusSuccess
		}
		return model.StatusFailed
	default:
		return model.StatusPending
	}
}

func (e *TravisEvent) Normalize() (*Normalized, error) {
	if e.ID.String() == "" && e.Commit == "" {
		return nil, fmt.Errorf("%w: travis event has neither id nor commit", ErrInvalidEvent)
	}

	n := &Normalized{
		ExternalID:  e.ID.String(),
		PipelineRef: e.Repository.Slug,
		Status:      e.mapStatus(),
		Branch:      e.Branch,
		CommitHash:  e.Commit,
		StartedAt:   parseTime(e.StartedAt),
		CompletedAt: parseTime(e.FinishedAt),
	}
	if e.Duration > 0 {
		n.DurationSeconds = floatPtr(e.Duration)
	}
	return n, nil
}
