package provider

import (
	"errors"
	"testing"

	"buildwatch/internal/model"
)

func TestParse_StatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		provider   string
		body       string
		wantStatus model.Status
	}{
		{
			name:       "github completed failure",
			provider:   GitHub,
			body:       `{"status":"completed","conclusion":"failure","run_id":"42","head_sha":"abc123"}`,
			wantStatus: model.StatusFailed,
		},
		{
			name:       "github in progress",
			provider:   GitHub,
			body:       `{"status":"in_progress","run_id":42,"head_sha":"abc123"}`,
			wantStatus: model.StatusRunning,
		},
		{
			name:       "github queued",
			provider:   GitHub,
			body:       `{"status":"queued","run_id":7,"head_sha":"abc123"}`,
			wantStatus: model.StatusPending,
		},
		{
			name:       "github skipped collapses to cancelled",
			provider:   GitHub,
			body:       `{"status":"completed","conclusion":"skipped","run_id":9,"head_sha":"abc123"}`,
			wantStatus: model.StatusCancelled,
		},
		{
			name:       "github unknown conclusion falls back to pending",
			provider:   GitHub,
			body:       `{"status":"completed","conclusion":"shiny_new_state","run_id":9,"head_sha":"abc123"}`,
			wantStatus: model.StatusPending,
		},
		{
			name:       "github unknown status falls back to pending",
			provider:   GitHub,
			body:       `{"status":"hyperdrive","run_id":9,"head_sha":"abc123"}`,
			wantStatus: model.StatusPending,
		},
		{
			name:       "gitlab success",
			provider:   GitLab,
			body:       `{"object_attributes":{"id":11,"status":"success","sha":"abc"}}`,
			wantStatus: model.StatusSuccess,
		},
		{
			name:       "gitlab canceled",
			provider:   GitLab,
			body:       `{"object_attributes":{"id":11,"status":"canceled","sha":"abc"}}`,
			wantStatus: model.StatusCancelled,
		},
		{
			name:       "gitlab manual is pending",
			provider:   GitLab,
			body:       `{"object_attributes":{"id":11,"status":"manual","sha":"abc"}}`,
			wantStatus: model.StatusPending,
		},
		{
			name:       "jenkins success",
			provider:   Jenkins,
			body:       `{"job":"job1","build":{"number":7,"status":"SUCCESS","duration_ms":120000}}`,
			wantStatus: model.StatusSuccess,
		},
		{
			name:       "jenkins aborted",
			provider:   Jenkins,
			body:       `{"job":"job1","build":{"number":8,"phase":"FINALIZED","status":"ABORTED"}}`,
			wantStatus: model.StatusCancelled,
		},
		{
			name:       "jenkins started",
			provider:   Jenkins,
			body:       `{"job":"job1","build":{"number":9,"phase":"STARTED"}}`,
			wantStatus: model.StatusRunning,
		},
		{
			name:       "azure completed succeeded",
			provider:   Azure,
			body:       `{"state":"completed","result":"succeeded","run_id":"3"}`,
			wantStatus: model.StatusSuccess,
		},
		{
			name:       "azure completed canceled",
			provider:   Azure,
			body:       `{"state":"completed","result":"canceled","run_id":"3"}`,
			wantStatus: model.StatusCancelled,
		},
		{
			name:       "azure in progress",
			provider:   Azure,
			body:       `{"state":"inProgress","run_id":"3"}`,
			wantStatus: model.StatusRunning,
		},
		{
			name:       "azure unknown state falls back to pending",
			provider:   Azure,
			body:       `{"state":"timeTravel","run_id":"3"}`,
			wantStatus: model.StatusPending,
		},
		{
			name:       "travis started",
			provider:   Travis,
			body:       `{"id":21,"state":"started","commit":"abc"}`,
			wantStatus: model.StatusRunning,
		},
		{
			name:       "travis finished passing",
			provider:   Travis,
			body:       `{"id":21,"state":"finished","result":0,"commit":"abc"}`,
			wantStatus: model.StatusSuccess,
		},
		{
			name:       "travis finished failing",
			provider:   Travis,
			body:       `{"id":21,"state":"finished","result":1,"commit":"abc"}`,
			wantStatus: model.StatusFailed,
		},
		{
			name:       "travis canceled message",
			provider:   Travis,
			body:       `{"id":21,"state":"finished","result":1,"status_message":"Canceled","commit":"abc"}`,
			wantStatus: model.StatusCancelled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := Parse(tt.provider, []byte(tt.body))
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if n.Status != tt.wantStatus {
				t.Errorf("Parse() status = %q, want %q", n.Status, tt.wantStatus)
			}
		})
	}
}

func TestParse_GitHubScenario(t *testing.T) {
	body := `{"status":"completed","conclusion":"failure","run_id":"42","head_sha":"abc123","head_branch":"main","repository":{"full_name":"acme/api"}}`
	n, err := Parse(GitHub, []byte(body))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if n.ExternalID != "42" {
		t.Errorf("ExternalID = %q, want %q", n.ExternalID, "42")
	}
	if n.PipelineRef != "acme/api" {
		t.Errorf("PipelineRef = %q, want %q", n.PipelineRef, "acme/api")
	}
	if n.Status != model.StatusFailed {
		t.Errorf("Status = %q, want failed", n.Status)
	}
	if n.CommitHash != "abc123" {
		t.Errorf("CommitHash = %q, want abc123", n.CommitHash)
	}
}

func TestParse_GitHubNestedWorkflowRun(t *testing.T) {
	body := `{"workflow_run":{"status":"completed","conclusion":"success","id":99,"head_sha":"def456","head_branch":"main"},"repository":{"full_name":"acme/api"}}`
	n, err := Parse(GitHub, []byte(body))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if n.ExternalID != "99" {
		t.Errorf("ExternalID = %q, want %q", n.ExternalID, "99")
	}
	if n.Status != model.StatusSuccess {
		t.Errorf("Status = %q, want success", n.Status)
	}
}

func TestParse_JenkinsScenario(t *testing.T) {
	body := `{"job":"job1","build":{"number":7,"status":"SUCCESS","duration_ms":120000}}`
	n, err := Parse(Jenkins, []byte(body))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if n.ExternalID != "7" {
		t.Errorf("ExternalID = %q, want %q", n.ExternalID, "7")
	}
	if n.PipelineRef != "job1" {
		t.Errorf("PipelineRef = %q, want %q", n.PipelineRef, "job1")
	}
	if n.DurationSeconds == nil || *n.DurationSeconds != 120 {
		t.Errorf("DurationSeconds = %v, want 120", n.DurationSeconds)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		body     string
		wantErr  error
	}{
		{
			name:     "unknown provider",
			provider: "circleci",
			body:     `{}`,
			wantErr:  ErrUnknownProvider,
		},
		{
			name:     "malformed json",
			provider: GitHub,
			body:     `{not json`,
			wantErr:  ErrInvalidEvent,
		},
		{
			name:     "github missing identifiers",
			provider: GitHub,
			body:     `{"status":"completed","conclusion":"success"}`,
			wantErr:  ErrInvalidEvent,
		},
		{
			name:     "jenkins missing job",
			provider: Jenkins,
			body:     `{"build":{"number":7,"status":"SUCCESS"}}`,
			wantErr:  ErrInvalidEvent,
		},
		{
			name:     "jenkins missing build number",
			provider: Jenkins,
			body:     `{"job":"job1","build":{"status":"SUCCESS"}}`,
			wantErr:  ErrInvalidEvent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.provider, []byte(tt.body))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Parse() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParse_GitLabTimestamps(t *testing.T) {
	body := `{"project":{"path_with_namespace":"acme/web"},"object_attributes":{"id":55,"status":"success","ref":"main","sha":"fedcba","started_at":"2026-08-20T10:00:00Z","finished_at":"2026-08-20T10:02:30Z","duration":150}}`
	n, err := Parse(GitLab, []byte(body))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if n.StartedAt.IsZero() || n.CompletedAt.IsZero() {
		t.Fatal("expected both timestamps to be parsed")
	}
	if got := n.CompletedAt.Sub(n.StartedAt).Seconds(); got != 150 {
		t.Errorf("timestamp delta = %v, want 150", got)
	}
	if n.DurationSeconds == nil || *n.DurationSeconds != 150 {
		t.Errorf("DurationSeconds = %v, want 150", n.DurationSeconds)
	}
}
