// Package provider parses raw CI/CD provider events into normalized build
// fields. Each provider has its own typed event shape selected by provider
// identity at ingestion time; status vocabularies are translated through
// per-provider lookup tables into the canonical five-state status.
//
// Mapping is total: unrecognized provider values fall back to pending rather
// than erroring, because providers introduce new transient states.
package provider

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"buildwatch/internal/model"
)

// Provider identifiers accepted on ingestion.
const (
	GitHub  = "github"
	GitLab  = "gitlab"
	Jenkins = "jenkins"
	Azure   = "azure"
	Travis  = "travis"
)

// ErrUnknownProvider is returned when the provider identifier is not one of
// the supported values.
var ErrUnknownProvider = errors.New("unknown provider")

// ErrInvalidEvent wraps all payload validation failures: unparseable JSON or
// events missing the fields required to resolve and key the build.
var ErrInvalidEvent = errors.New("invalid provider event")

// Normalized is the provider-independent view of one build event.
type Normalized struct {
	// ExternalID is the provider-native build/run identifier. May be empty
	// for events without one (e.g. a push); the normalizer synthesizes a
	// stable key from the commit hash in that case.
	ExternalID string
	// PipelineRef is the provider-native pipeline address (repository full
	// name, job name, or project path) used to resolve the owning pipeline.
	PipelineRef string
	Status      model.Status
	Branch      string
	CommitHash  string
	StartedAt   time.Time
	CompletedAt time.Time
	// DurationSeconds is set when the provider reports duration directly
	// (e.g. Jenkins duration_ms). Nil otherwise.
	DurationSeconds *float64
}

// Event is one provider's typed payload. Implementations validate their own
// required fields and apply their status table.
type Event interface {
	Normalize() (*Normalized, error)
}

// Parse decodes body as the named provider's event shape and normalizes it.
func Parse(providerName string, body []byte) (*Normalized, error) {
	var ev Event
	switch providerName {
	case GitHub:
		ev = &GitHubEvent{}
	case GitLab:
		ev = &GitLabEvent{}
	case Jenkins:
		ev = &JenkinsEvent{}
	case Azure:
		ev = &AzureEvent{}
	case Travis:
		ev = &TravisEvent{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, providerName)
	}

	if err := json.Unmarshal(body, ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	return ev.Normalize()
}

// jsonID decodes an identifier that providers deliver as either a JSON
// string or a number, depending on webhook version.
type jsonID string

func (id *jsonID) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = jsonID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = jsonID(n.String())
	return nil
}

func (id jsonID) String() string { return string(id) }

// parseTime parses an RFC3339 timestamp, returning the zero time for empty
// or malformed values. Providers are inconsistent enough about timestamp
// presence that a missing one is not a validation failure.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func floatPtr(v float64) *float64 { return &v }
