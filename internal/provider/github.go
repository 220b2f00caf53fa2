package provider

import (
	"fmt"

	"buildwatch/internal/model"
)

// GitHubEvent is a GitHub Actions workflow run event. GitHub splits build
// state across two fields: a coarse status and, once completed, a conclusion.
// Both the nested workflow_run shape delivered by webhooks and a flattened
// shape are accepted.
type GitHubEvent struct {
	Status      string `json:"status"`
	Conclusion  string `json:"conclusion"`
	RunID       jsonID `json:"run_id"`
	HeadSHA     string `json:"head_sha"`
	HeadBranch  string `json:"head_branch"`
	RunStarted  string `json:"run_started_at"`
	UpdatedAt   string `json:"updated_at"`
	WorkflowRun *struct {
		Status     string `json:"status"`
		Conclusion string `json:"conclusion"`
		ID         jsonID `json:"id"`
		HeadSHA    string `json:"head_sha"`
		HeadBranch string `json:"head_branch"`
		RunStarted string `json:"run_started_at"`
		UpdatedAt  string `json:"updated_at"`
	} `json:"workflow_run"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
}

// githubConclusions maps the conclusion field of a completed run.
// Skip-equivalents (skipped, neutral, stale) collapse into cancelled.
var githubConclusions = map[string]model.Status{
	"success":         model.StatusSuccess,
	"failure":         model.StatusFailed,
	"timed_out":       model.StatusFailed,
	"startup_failure": model.StatusFailed,
	"cancelled":       model.StatusCancelled,
	"canceled":        model.StatusCancelled,
	"skipped":         model.StatusCancelled,
	"neutral":         model.StatusCancelled,
	"stale":           model.StatusCancelled,
}

func mapGitHubStatus(status, conclusion string) model.Status {
	switch status {
	case "queued", "requested", "waiting", "pending":
		return model.StatusPending
	case "in_progress":
		return model.StatusRunning
	case "completed":
		if s, ok := githubConclusions[conclusion]; ok {
			return s
		}
		return model.StatusPending
	default:
		return model.StatusPending
	}
}

func (e *GitHubEvent) Normalize() (*Normalized, error) {
	status, conclusion := e.Status, e.Conclusion
	runID, sha, branch := e.RunID.String(), e.HeadSHA, e.HeadBranch
	started, updated := e.RunStarted, e.UpdatedAt
	if e.WorkflowRun != nil {
		status, conclusion = e.WorkflowRun.Status, e.WorkflowRun.Conclusion
		runID, sha, branch = e.WorkflowRun.ID.String(), e.WorkflowRun.HeadSHA, e.WorkflowRun.HeadBranch
		started, updated = e.WorkflowRun.RunStarted, e.WorkflowRun.UpdatedAt
	}

	if runID == "" && sha == "" {
		return nil, fmt.Errorf("%w: github event has neither run_id nor head_sha", ErrInvalidEvent)
	}

	n := &Normalized{
		ExternalID:  runID,
		PipelineRef: e.Repository.FullName,
		Status:      mapGitHubStatus(status, conclusion),
		Branch:      branch,
		CommitHash:  sha,
		StartedAt:   parseTime(started),
	}
	if n.Status.Terminal() {
		n.CompletedAt = parseTime(updated)
	}
	return n, nil
}
