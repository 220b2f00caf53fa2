package provider

import (
	"fmt"

	"buildwatch/internal/model"
)

// AzureEvent is an Azure DevOps pipeline run event: a run state plus, once
// completed, a result field.
type AzureEvent struct {
	State    string `json:"state"`
	Result   string `json:"result"`
	RunID    jsonID `json:"run_id"`
	Pipeline struct {
		Name string `json:"name"`
	} `json:"pipeline"`
	SourceBranch  string `json:"source_branch"`
	SourceVersion string `json:"source_version"`
	CreatedDate   string `json:"created_date"`
	FinishedDate  string `json:"finished_date"`
}

var azureResults = map[string]model.Status{
	"succeeded":          model.StatusSuccess,
	"partiallySucceeded": model.StatusSuccess,
	"failed":             model.StatusFailed,
	"canceled":           model.StatusCancelled,
}

func mapAzureStatus(state, result string) model.Status {
	switch state {
	case "notStarted", "pending", "queued":
		return model.StatusPending
	case "inProgress", "canceling":
		return model.StatusRunning
	case "completed":
		if s, ok := azureResults[result]; ok {
			return s
		}
		return model.StatusPending
	default:
		return model.StatusPending
	}
}

func (e *AzureEvent) Normalize() (*Normalized, error) {
	if e.RunID.String() == "" && e.SourceVersion == "" {
		return nil, fmt.Errorf("%w: azure event has neither run_id nor source_version", ErrInvalidEvent)
	}

	return &Normalized{
		ExternalID:  e.RunID.String(),
		PipelineRef: e.Pipeline.Name,
		Status:      mapAzureStatus(e.State, e.Result),
		Branch:      e.SourceBranch,
		CommitHash:  e.SourceVersion,
		StartedAt:   parseTime(e.CreatedDate),
		CompletedAt: parseTime(e.FinishedDate),
	}, nil
}
