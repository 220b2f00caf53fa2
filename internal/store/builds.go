package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"buildwatch/internal/model"
)

const buildColumns = `id, pipeline_id, external_id, status, branch, commit_hash, started_at, completed_at, duration_seconds, updated_at`

// statusRank orders statuses in SQL along the build lifecycle so the upsert
// guard can compare them. Must match model.Status.Rank.
const statusRank = `CASE %s WHEN 'pending' THEN 0 WHEN 'running' THEN 1 ELSE 2 END`

// UpsertBuild inserts a build keyed by (pipeline_id, external_id), or updates
// the existing row when the incoming status advances the lifecycle. A
// redelivery that does not advance the build is a no-op: the current row is
// returned with changed=false, and a terminal build is never regressed.
func (s *Store) UpsertBuild(ctx context.Context, b *model.Build) (*model.Build, bool, error) {
	query := fmt.Sprintf(`
		INSERT INTO builds (%s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (pipeline_id, external_id) DO UPDATE SET
			status = EXCLUDED.status,
			branch = CASE WHEN EXCLUDED.branch <> '' THEN EXCLUDED.branch ELSE builds.branch END,
			commit_hash = CASE WHEN EXCLUDED.commit_hash <> '' THEN EXCLUDED.commit_hash ELSE builds.commit_hash END,
			completed_at = COALESCE(EXCLUDED.completed_at, builds.completed_at),
			duration_seconds = COALESCE(EXCLUDED.duration_seconds, builds.duration_seconds),
			updated_at = NOW()
		WHERE `+statusRank+` < `+statusRank+`
		RETURNING %s
	`, buildColumns, "builds.status", "EXCLUDED.status", buildColumns)

	var out model.Build
	err := s.conn.QueryRowContext(ctx, query,
		b.ID,
		b.PipelineID,
		b.ExternalID,
		string(b.Status),
		b.Branch,
		b.CommitHash,
		b.StartedAt,
		nullTime(b.CompletedAt),
		nullFloat(b.DurationSeconds),
	).Scan(scanBuild(&out)...)
	if err == sql.ErrNoRows {
		// The conflict row is already at or past this state. Return it
		// unchanged; redelivery of an identical or stale event is not an
		// error.
		current, getErr := s.GetBuild(ctx, b.PipelineID, b.ExternalID)
		if getErr != nil {
			return nil, false, getErr
		}
		return current, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to upsert build: %w", err)
	}
	return &out, true, nil
}

// GetBuild retrieves a build by its dedup key.
func (s *Store) GetBuild(ctx context.Context, pipelineID, externalID string) (*model.Build, error) {
	query := fmt.Sprintf(`SELECT %s FROM builds WHERE pipeline_id = $1 AND external_id = $2`, buildColumns)

	var out model.Build
	err := s.conn.QueryRowContext(ctx, query, pipelineID, externalID).Scan(scanBuild(&out)...)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("build %s/%s: %w", pipelineID, externalID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get build: %w", err)
	}
	return &out, nil
}

// RecentBuilds returns up to limit builds for a pipeline, most recent first
// by started_at.
func (s *Store) RecentBuilds(ctx context.Context, pipelineID string, limit int) ([]model.Build, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM builds
		WHERE pipeline_id = $1
		ORDER BY started_at DESC
		LIMIT $2
	`, buildColumns)

	rows, err := s.conn.QueryContext(ctx, query, pipelineID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query builds: %w", err)
	}
	defer rows.Close()

	var builds []model.Build
	for rows.Next() {
		var b model.Build
		if err := rows.Scan(scanBuild(&b)...); err != nil {
			return nil, fmt.Errorf("failed to scan build: %w", err)
		}
		builds = append(builds, b)
	}
	return builds, rows.Err()
}

// scanBuild returns scan destinations matching buildColumns order.
func scanBuild(b *model.Build) []interface{} {
	return []interface{}{
		&b.ID,
		&b.PipelineID,
		&b.ExternalID,
		&b.Status,
		&b.Branch,
		&b.CommitHash,
		&b.StartedAt,
		&nullTimeScanner{&b.CompletedAt},
		&nullFloatScanner{&b.DurationSeconds},
		&b.UpdatedAt,
	}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

type nullTimeScanner struct{ dst **time.Time }

func (n *nullTimeScanner) Scan(v interface{}) error {
	var nt sql.NullTime
	if err := nt.Scan(v); err != nil {
		return err
	}
	if nt.Valid {
		t := nt.Time
		*n.dst = &t
	} else {
		*n.dst = nil
	}
	return nil
}

type nullFloatScanner struct{ dst **float64 }

func (n *nullFloatScanner) Scan(v interface{}) error {
	var nf sql.NullFloat64
	if err := nf.Scan(v); err != nil {
		return err
	}
	if nf.Valid {
		f := nf.Float64
		*n.dst = &f
	} else {
		*n.dst = nil
	}
	return nil
}
