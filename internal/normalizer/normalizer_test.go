package normalizer

import (
	"context"
	"sync"
	"testing"
	"time"

	"buildwatch/internal/model"
	"buildwatch/internal/store"
)

type fakeResolver struct {
	pipelines map[string]*model.Pipeline // keyed by provider + "/" + ref
}

func (f *fakeResolver) ResolvePipeline(_ context.Context, providerName, providerRef string) (*model.Pipeline, error) {
	p, ok := f.pipelines[providerName+"/"+providerRef]
	if !ok {
		return nil, store.ErrNotFound
	}
	return p, nil
}

// fakeBuildStore applies the same forward-progress-only rule as the real
// store: a second event for the same (pipeline_id, external_id) only wins
// when its status rank is strictly higher.
type fakeBuildStore struct {
	builds map[string]*model.Build
}

func newFakeBuildStore() *fakeBuildStore {
	return &fakeBuildStore{builds: make(map[string]*model.Build)}
}

func (f *fakeBuildStore) UpsertBuild(_ context.Context, b *model.Build) (*model.Build, bool, error) {
	key := b.PipelineID + "/" + b.ExternalID
	existing, ok := f.builds[key]
	if !ok {
		cp := *b
		f.builds[key] = &cp
		return &cp, true, nil
	}
	if b.Status.Rank() <= existing.Status.Rank() {
		return existing, false, nil
	}
	updated := *b
	updated.ID = existing.ID
	updated.StartedAt = existing.StartedAt
	f.builds[key] = &updated
	return &updated, true, nil
}

type fakeCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func newFakeCounter() *fakeCounter {
	return &fakeCounter{counts: make(map[string]int)}
}

func (f *fakeCounter) Inc(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[name]++
}

func (f *fakeCounter) get(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[name]
}

type fakeCompletion struct {
	completed []*model.Build
}

func (f *fakeCompletion) BuildCompleted(_ context.Context, _ *model.Pipeline, build *model.Build) {
	f.completed = append(f.completed, build)
}

type fakePublisher struct {
	published int
	err       error
}

func (f *fakePublisher) PublishBuildChanged(_ context.Context, _ *model.Pipeline, _ *model.Build) error {
	f.published++
	return f.err
}

func testNormalizer(t *testing.T) (*Normalizer, *fakeBuildStore, *fakeCounter, *fakeCompletion) {
	t.Helper()
	resolver := &fakeResolver{pipelines: map[string]*model.Pipeline{
		"github/acme/api": {ID: "pipe-1", Name: "api", Provider: "github", ProviderRef: "acme/api"},
		"jenkins/job1":    {ID: "pipe-2", Name: "job1", Provider: "jenkins", ProviderRef: "job1"},
	}}
	builds := newFakeBuildStore()
	counters := newFakeCounter()
	completed := &fakeCompletion{}
	n := New(resolver, builds, counters, nil, completed)
	n.now = func() time.Time { return time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC) }
	return n, builds, counters, completed
}

func TestIngest_CreatesBuild(t *testing.T) {
	n, _, counters, completed := testNormalizer(t)

	body := []byte(`{"status":"completed","conclusion":"failure","run_id":"42","head_sha":"abc123","repository":{"full_name":"acme/api"}}`)
	build, err := n.Ingest(context.Background(), "github", body)
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if build == nil {
		t.Fatal("Ingest() returned nil build")
	}
	if build.ExternalID != "42" {
		t.Errorf("ExternalID = %q, want %q", build.ExternalID, "42")
	}
	if build.PipelineID != "pipe-1" {
		t.Errorf("PipelineID = %q, want pipe-1", build.PipelineID)
	}
	if build.Status != model.StatusFailed {
		t.Errorf("Status = %q, want failed", build.Status)
	}
	if build.CompletedAt == nil {
		t.Error("terminal build should have completed_at set")
	}
	if counters.get(CounterReceived) != 1 || counters.get(CounterBuildsCompleted) != 1 {
		t.Errorf("counters = received:%d completed:%d, want 1/1",
			counters.get(CounterReceived), counters.get(CounterBuildsCompleted))
	}
	if len(completed.completed) != 1 {
		t.Fatalf("completion handler invoked %d times, want 1", len(completed.completed))
	}
}

func TestIngest_IdempotentRedelivery(t *testing.T) {
	n, _, counters, completed := testNormalizer(t)

	body := []byte(`{"status":"completed","conclusion":"success","run_id":"7","head_sha":"abc123","repository":{"full_name":"acme/api"}}`)
	first, err := n.Ingest(context.Background(), "github", body)
	if err != nil {
		t.Fatalf("first Ingest() error = %v", err)
	}
	second, err := n.Ingest(context.Background(), "github", body)
	if err != nil {
		t.Fatalf("second Ingest() error = %v", err)
	}

	if second.ID != first.ID {
		t.Errorf("redelivery produced a new build: %q vs %q", second.ID, first.ID)
	}
	if counters.get(CounterDuplicateEvents) != 1 {
		t.Errorf("duplicate counter = %d, want 1", counters.get(CounterDuplicateEvents))
	}
	if len(completed.completed) != 1 {
		t.Errorf("completion handler invoked %d times, want 1 (redelivery must not re-fire)", len(completed.completed))
	}
}

func TestIngest_TerminalStateNeverRegresses(t *testing.T) {
	n, builds, _, _ := testNormalizer(t)

	terminal := []byte(`{"status":"completed","conclusion":"failure","run_id":"9","head_sha":"abc123","repository":{"full_name":"acme/api"}}`)
	if _, err := n.Ingest(context.Background(), "github", terminal); err != nil {
		t.Fatalf("Ingest(terminal) error = %v", err)
	}

	// Late out-of-order "in progress" delivery for the same run.
	stale := []byte(`{"status":"in_progress","run_id":"9","head_sha":"abc123","repository":{"full_name":"acme/api"}}`)
	build, err := n.Ingest(context.Background(), "github", stale)
	if err != nil {
		t.Fatalf("Ingest(stale) error = %v", err)
	}
	if build.Status != model.StatusFailed {
		t.Errorf("Status = %q, want failed (terminal state must not regress)", build.Status)
	}
	if got := builds.builds["pipe-1/9"].Status; got != model.StatusFailed {
		t.Errorf("stored status = %q, want failed", got)
	}
}

func TestIngest_LifecycleProgression(t *testing.T) {
	n, _, counters, completed := testNormalizer(t)

	running := []byte(`{"status":"in_progress","run_id":"11","head_sha":"abc123","repository":{"full_name":"acme/api"}}`)
	b1, err := n.Ingest(context.Background(), "github", running)
	if err != nil {
		t.Fatalf("Ingest(running) error = %v", err)
	}
	if b1.Status != model.StatusRunning {
		t.Fatalf("Status = %q, want running", b1.Status)
	}
	if len(completed.completed) != 0 {
		t.Fatal("completion fired for a non-terminal build")
	}

	done := []byte(`{"status":"completed","conclusion":"success","run_id":"11","head_sha":"abc123","repository":{"full_name":"acme/api"}}`)
	b2, err := n.Ingest(context.Background(), "github", done)
	if err != nil {
		t.Fatalf("Ingest(done) error = %v", err)
	}
	if b2.ID != b1.ID {
		t.Errorf("lifecycle update created a new build")
	}
	if b2.Status != model.StatusSuccess {
		t.Errorf("Status = %q, want success", b2.Status)
	}
	if counters.get(CounterDuplicateEvents) != 0 {
		t.Errorf("forward progression counted as duplicate")
	}
	if len(completed.completed) != 1 {
		t.Errorf("completion handler invoked %d times, want 1", len(completed.completed))
	}
}

func TestIngest_SynthesizedExternalID(t *testing.T) {
	n, _, _, _ := testNormalizer(t)

	// No run id at all: external id falls back to the truncated commit hash.
	body := []byte(`{"status":"completed","conclusion":"success","head_sha":"0123456789abcdef0123","repository":{"full_name":"acme/api"}}`)
	build, err := n.Ingest(context.Background(), "github", body)
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if build == nil {
		t.Fatal("Ingest() returned nil build")
	}
	if build.ExternalID != "0123456789ab" {
		t.Errorf("ExternalID = %q, want first 12 hash chars", build.ExternalID)
	}
}

func TestIngest_Discards(t *testing.T) {
	tests := []struct {
		name        string
		provider    string
		body        string
		wantCounter string
	}{
		{
			name:        "malformed payload",
			provider:    "github",
			body:        `{broken`,
			wantCounter: CounterValidationFailures,
		},
		{
			name:        "unknown provider",
			provider:    "circleci",
			body:        `{}`,
			wantCounter: CounterValidationFailures,
		},
		{
			name:        "unresolved pipeline",
			provider:    "github",
			body:        `{"status":"completed","conclusion":"success","run_id":"5","head_sha":"abc","repository":{"full_name":"unknown/repo"}}`,
			wantCounter: CounterUnresolvedPipeline,
		},
		{
			name:        "no stable identifier",
			provider:    "github",
			body:        `{"status":"completed","conclusion":"success","head_sha":"ab","repository":{"full_name":"acme/api"}}`,
			wantCounter: CounterValidationFailures,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, builds, counters, _ := testNormalizer(t)
			build, err := n.Ingest(context.Background(), tt.provider, []byte(tt.body))
			if err != nil {
				t.Fatalf("Ingest() error = %v, discards must not error", err)
			}
			if build != nil {
				t.Errorf("Ingest() = %+v, want nil (discard)", build)
			}
			if counters.get(tt.wantCounter) != 1 {
				t.Errorf("counter %q = %d, want 1", tt.wantCounter, counters.get(tt.wantCounter))
			}
			if len(builds.builds) != 0 {
				t.Errorf("discarded event persisted a build")
			}
		})
	}
}

func TestIngest_PublishFailureIsBestEffort(t *testing.T) {
	resolver := &fakeResolver{pipelines: map[string]*model.Pipeline{
		"github/acme/api": {ID: "pipe-1", Provider: "github", ProviderRef: "acme/api"},
	}}
	pub := &fakePublisher{err: context.DeadlineExceeded}
	n := New(resolver, newFakeBuildStore(), newFakeCounter(), pub, nil)

	body := []byte(`{"status":"completed","conclusion":"success","run_id":"3","head_sha":"abc123","repository":{"full_name":"acme/api"}}`)
	build, err := n.Ingest(context.Background(), "github", body)
	if err != nil {
		t.Fatalf("Ingest() error = %v, publish failures must not propagate", err)
	}
	if build == nil {
		t.Fatal("Ingest() returned nil build")
	}
	if pub.published != 1 {
		t.Errorf("publish attempts = %d, want 1", pub.published)
	}
}

func TestIngest_DurationFromTimestamps(t *testing.T) {
	n, _, _, _ := testNormalizer(t)

	body := []byte(`{"workflow_run":{"status":"completed","conclusion":"success","id":77,"head_sha":"abc123","run_started_at":"2026-08-20T10:00:00Z","updated_at":"2026-08-20T10:03:00Z"},"repository":{"full_name":"acme/api"}}`)
	build, err := n.Ingest(context.Background(), "github", body)
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if build.DurationSeconds == nil || *build.DurationSeconds != 180 {
		t.Errorf("DurationSeconds = %v, want 180", build.DurationSeconds)
	}
}
