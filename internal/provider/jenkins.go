package provider

import (
	"fmt"
	"strconv"

	"buildwatch/internal/model"
)

// JenkinsEvent is a Jenkins notification-plugin payload: job name plus a
// build object with a lifecycle phase and, once finished, an uppercase
// result status and millisecond duration.
type JenkinsEvent struct {
	Job   string `json:"job"`
	Name  string `json:"name"`
	Build struct {
		Number     int64  `json:"number"`
		Phase      string `json:"phase"`
		Status     string `json:"status"`
		DurationMS int64  `json:"duration_ms"`
		Timestamp  string `json:"timestamp"`
		SCM        struct {
			Branch string `json:"branch"`
			Commit string `json:"commit"`
		} `json:"scm"`
	} `json:"build"`
}

var jenkinsResults = map[string]model.Status{
	"SUCCESS":   model.StatusSuccess,
	"FAILURE":   model.StatusFailed,
	"UNSTABLE":  model.StatusFailed,
	"ABORTED":   model.StatusCancelled,
	"NOT_BUILT": model.StatusCancelled,
}

func mapJenkinsStatus(phase, status string) model.Status {
	switch phase {
	case "QUEUED":
		return model.StatusPending
	case "STARTED":
		return model.StatusRunning
	case "COMPLETED", "FINALIZED", "":
		if s, ok := jenkinsResults[status]; ok {
			return s
		}
		if phase == "" && status == "" {
			return model.StatusPending
		}
		return model.StatusPending
	default:
		return model.StatusPending
	}
}

func (e *JenkinsEvent) Normalize() (*Normalized, error) {
	job := e.Job
	if job == "" {
		job = e.Name
	}
	if job == "" {
		return nil, fmt.Errorf("%w: jenkins event missing job name", ErrInvalidEvent)
	}
	if e.Build.Number <= 0 {
		return nil, fmt.Errorf("%w: jenkins event missing build number", ErrInvalidEvent)
	}

	n := &Normalized{
		ExternalID:  strconv.FormatInt(e.Build.Number, 10),
		PipelineRef: job,
		Status:      mapJenkinsStatus(e.Build.Phase, e.Build.Status),
		Branch:      e.Build.SCM.Branch,
		CommitHash:  e.Build.SCM.Commit,
		StartedAt:   parseTime(e.Build.Timestamp),
	}
	if e.Build.DurationMS > 0 {
		n.DurationSeconds = floatPtr(float64(e.Build.DurationMS) / 1000)
	}
	return n, nil
}
