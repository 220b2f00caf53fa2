// Package ingest exposes the HTTP surface: provider webhook receivers,
// pipeline metrics, the recent-alerts feed, and rule acknowledgment.
//
// Webhook endpoints acknowledge with 2xx regardless of payload validity;
// providers treat non-2xx as a delivery failure and retry, which is never
// what we want for an event we have chosen to discard.
package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"buildwatch/internal/metrics"
	"buildwatch/internal/model"
	"buildwatch/internal/store"
)

// maxWebhookBody bounds webhook payload size.
const maxWebhookBody = 1 << 20 // 1MB

// Ingestor normalizes raw provider events.
type Ingestor interface {
	Ingest(ctx context.Context, providerName string, body []byte) (*model.Build, error)
}

// Reader provides the read operations backing the query endpoints.
type Reader interface {
	GetPipeline(ctx context.Context, id string) (*model.Pipeline, error)
	RecentBuilds(ctx context.Context, pipelineID string, limit int) ([]model.Build, error)
}

// RuleAdmin applies the external acknowledgment lifecycle to rules.
type RuleAdmin interface {
	AcknowledgeRule(ctx context.Context, ruleID string) error
	ResetRule(ctx context.Context, ruleID string) error
}

// TriggerFeed lists recent alert triggers.
type TriggerFeed interface {
	List(ctx context.Context, limit int) ([]model.AlertTrigger, error)
}

// Server is the HTTP API server.
type Server struct {
	mux         *http.ServeMux
	ingestor    Ingestor
	reader      Reader
	rules       RuleAdmin
	feed        TriggerFeed
	windowLimit int
}

// NewServer creates the API server. feed may be nil, which disables the
// recent-alerts endpoint.
func NewServer(ingestor Ingestor, reader Reader, rules RuleAdmin, feed TriggerFeed) *Server {
	s := &Server{
		mux:         http.NewServeMux(),
		ingestor:    ingestor,
		reader:      reader,
		rules:       rules,
		feed:        feed,
		windowLimit: metrics.DefaultWindow.Limit,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/v1/webhooks/", s.handleWebhook)
	s.mux.HandleFunc("/api/v1/pipelines/metrics", s.handlePipelineMetrics)
	s.mux.HandleFunc("/api/v1/alerts/recent", s.handleRecentAlerts)
	s.mux.HandleFunc("/api/v1/rules/ack", s.handleAckRule)
	s.mux.HandleFunc("/api/v1/rules/reset", s.handleResetRule)
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}

// Handler returns the root handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe runs the HTTP server until the context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// handleWebhook accepts one provider delivery. The provider name is the
// final path segment: /api/v1/webhooks/github.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	providerName := strings.TrimPrefix(r.URL.Path, "/api/v1/webhooks/")
	if providerName == "" || strings.Contains(providerName, "/") {
		http.Error(w, "provider is required", http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		// Oversized or truncated payloads are acknowledged like any other
		// discard; there is nothing the provider can do differently.
		slog.Warn("Failed to read webhook body", "provider", providerName, "error", err)
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "discarded"})
		return
	}

	build, err := s.ingestor.Ingest(r.Context(), providerName, body)
	if err != nil {
		slog.Error("Webhook ingestion failed", "provider", providerName, "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	if build == nil {
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "discarded"})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":   "accepted",
		"build_id": build.ID,
	})
}

// handlePipelineMetrics computes the metrics snapshot for a pipeline
// window on demand.
func (s *Server) handlePipelineMetrics(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	pipelineID, ok := requireQueryParam(w, r, "pipeline_id")
	if !ok {
		return
	}

	limit := s.windowLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	ctx := r.Context()
	if _, err := s.reader.GetPipeline(ctx, pipelineID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "Pipeline not found", http.StatusNotFound)
			return
		}
		slog.Error("Failed to load pipeline", "pipeline_id", pipelineID, "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	builds, err := s.reader.RecentBuilds(ctx, pipelineID, limit)
	if err != nil {
		slog.Error("Failed to load builds", "pipeline_id", pipelineID, "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	snap := metrics.Compute(builds)
	if r.URL.Query().Get("trends") != "1" {
		snap.Hourly = nil
		snap.Daily = nil
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleRecentAlerts serves the bounded recent-trigger feed.
func (s *Server) handleRecentAlerts(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	if s.feed == nil {
		http.Error(w, "Recent alerts feed is not enabled", http.StatusNotFound)
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	triggers, err := s.feed.List(r.Context(), limit)
	if err != nil {
		slog.Error("Failed to read recent alerts", "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, triggers)
}

// handleAckRule acknowledges a rule; acknowledged rules never auto-trigger
// until reset.
func (s *Server) handleAckRule(w http.ResponseWriter, r *http.Request) {
	s.handleRuleStatus(w, r, s.rules.AcknowledgeRule)
}

// handleResetRule returns a rule to active.
func (s *Server) handleResetRule(w http.ResponseWriter, r *http.Request) {
	s.handleRuleStatus(w, r, s.rules.ResetRule)
}

func (s *Server) handleRuleStatus(w http.ResponseWriter, r *http.Request, apply func(context.Context, string) error) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	ruleID, ok := requireQueryParam(w, r, "rule_id")
	if !ok {
		return
	}

	if err := apply(r.Context(), ruleID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "Rule not found", http.StatusNotFound)
			return
		}
		slog.Error("Failed to update rule status", "rule_id", ruleID, "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"rule_id": ruleID, "status": "updated"})
}
