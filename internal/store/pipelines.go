package store

import (
	"context"
	"database/sql"
	"fmt"

	"buildwatch/internal/model"
)

// ResolvePipeline finds the pipeline registered for a provider-native
// reference (repository full name, job name, or project path).
func (s *Store) ResolvePipeline(ctx context.Context, providerName, providerRef string) (*model.Pipeline, error) {
	query := `
		SELECT id, name, provider, provider_ref, created_at
		FROM pipelines
		WHERE provider = $1 AND provider_ref = $2
	`
	var p model.Pipeline
	err := s.conn.QueryRowContext(ctx, query, providerName, providerRef).Scan(
		&p.ID,
		&p.Name,
		&p.Provider,
		&p.ProviderRef,
		&p.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("pipeline %s/%s: %w", providerName, providerRef, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve pipeline: %w", err)
	}
	return &p, nil
}

// GetPipeline retrieves a pipeline by id.
func (s *Store) GetPipeline(ctx context.Context, id string) (*model.Pipeline, error) {
	query := `
		SELECT id, name, provider, provider_ref, created_at
		FROM pipelines
		WHERE id = $1
	`
	var p model.Pipeline
	err := s.conn.QueryRowContext(ctx, query, id).Scan(
		&p.ID,
		&p.Name,
		&p.Provider,
		&p.ProviderRef,
		&p.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("pipeline %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pipeline: %w", err)
	}
	return &p, nil
}
