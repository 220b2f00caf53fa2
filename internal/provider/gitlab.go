package provider

import (
	"fmt"

	"buildwatch/internal/model"
)

// GitLabEvent is a GitLab pipeline hook. GitLab exposes build state as a
// single enum on object_attributes.status.
type GitLabEvent struct {
	ObjectKind       string `json:"object_kind"`
	ObjectAttributes struct {
		ID         jsonID  `json:"id"`
		Status     string  `json:"status"`
		Ref        string  `json:"ref"`
		SHA        string  `json:"sha"`
		CreatedAt  string  `json:"created_at"`
		StartedAt  string  `json:"started_at"`
		FinishedAt string  `json:"finished_at"`
		Duration   float64 `json:"duration"`
	} `json:"object_attributes"`
	Project struct {
		PathWithNamespace string `json:"path_with_namespace"`
	} `json:"project"`
}

var gitlabStatuses = map[string]model.Status{
	"created":              model.StatusPending,
	"pending":              model.StatusPending,
	"preparing":            model.StatusPending,
	"waiting_for_resource": model.StatusPending,
	"manual":               model.StatusPending,
	"scheduled":            model.StatusPending,
	"running":              model.StatusRunning,
	"success":              model.StatusSuccess,
	"failed":               model.StatusFailed,
	"canceled":             model.StatusCancelled,
	"skipped":              model.StatusCancelled,
}

func (e *GitLabEvent) Normalize() (*Normalized, error) {
	attrs := &e.ObjectAttributes
	if attrs.ID.String() == "" && attrs.SHA == "" {
		return nil, fmt.Errorf("%w: gitlab event has neither pipeline id nor sha", ErrInvalidEvent)
	}

	status, ok := gitlabStatuses[attrs.Status]
	if !ok {
		status = model.StatusPending
	}

	n := &Normalized{
		ExternalID:  attrs.ID.String(),
		PipelineRef: e.Project.PathWithNamespace,
		Status:      status,
		Branch:      attrs.Ref,
		CommitHash:  attrs.SHA,
		StartedAt:   parseTime(attrs.StartedAt),
		CompletedAt: parseTime(attrs.FinishedAt),
	}
	if n.StartedAt.IsZero() {
		n.StartedAt = parseTime(attrs.CreatedAt)
	}
	if attrs.Duration > 0 {
		n.DurationSeconds = floatPtr(attrs.Duration)
	}
	return n, nil
}
