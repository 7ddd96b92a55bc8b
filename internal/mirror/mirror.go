// Package mirror implements `chainsaw push`/`chainsaw pull`: persisting and
// retrieving a snapshot (internal/snapshot) to/from Postgres by project key
// and entry label, so a team can diff against a teammate's last run without
// passing snapshot files around. Batch upsert style is adapted from the
// teacher's internal/indexer/graph_builder.go, applied here to per-package
// snapshot rows instead of AST nodes/edges.
package mirror

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chainsaw-tool/chainsaw/internal/snapshot"
)

const batchSize = 1000

// EnsureSchema creates the mirror table if it doesn't already exist. Safe
// to call on every push.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS chainsaw_snapshot_packages (
			project_key  text NOT NULL,
			entry_label  text NOT NULL,
			tool_version text NOT NULL,
			package_name text NOT NULL,
			bytes        bigint NOT NULL,
			total_bytes  bigint NOT NULL,
			saved_at     timestamptz NOT NULL DEFAULT now(),
			PRIMARY KEY (project_key, entry_label, package_name)
		)
	`)
	if err != nil {
		return fmt.Errorf("ensuring mirror schema: %w", err)
	}
	return nil
}

// Push upserts every package row of s under (projectKey, s.EntryLabel),
// replacing any prior snapshot for that key in batches of batchSize rows,
// mirroring the teacher's upsertNodes/upsertEdges batching idiom.
func Push(ctx context.Context, pool *pgxpool.Pool, projectKey string, s snapshot.Snapshot) error {
	if err := EnsureSchema(ctx, pool); err != nil {
		return err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM chainsaw_snapshot_packages WHERE project_key = $1 AND entry_label = $2`,
		projectKey, s.EntryLabel,
	); err != nil {
		return fmt.Errorf("clearing prior snapshot: %w", err)
	}

	for i := 0; i < len(s.Packages); i += batchSize {
		end := i + batchSize
		if end > len(s.Packages) {
			end = len(s.Packages)
		}
		chunk := s.Packages[i:end]

		batch := &pgx.Batch{}
		for _, p := range chunk {
			batch.Queue(`
				INSERT INTO chainsaw_snapshot_packages
					(project_key, entry_label, tool_version, package_name, bytes, total_bytes)
				VALUES ($1, $2, $3, $4, $5, $6)
				ON CONFLICT (project_key, entry_label, package_name) DO UPDATE SET
					tool_version = EXCLUDED.tool_version,
					bytes        = EXCLUDED.bytes,
					total_bytes  = EXCLUDED.total_bytes,
					saved_at     = now()
			`, projectKey, s.EntryLabel, s.ToolVersion, p.Name, p.Bytes, s.TotalBytes)
		}

		br := tx.SendBatch(ctx, batch)
		for range chunk {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("upserting snapshot package row: %w", err)
			}
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("closing batch: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing snapshot push: %w", err)
	}
	return nil
}

// Pull retrieves the most recently pushed snapshot for (projectKey, entryLabel).
func Pull(ctx context.Context, pool *pgxpool.Pool, projectKey, entryLabel string) (snapshot.Snapshot, error) {
	rows, err := pool.Query(ctx, `
		SELECT tool_version, package_name, bytes, total_bytes
		FROM chainsaw_snapshot_packages
		WHERE project_key = $1 AND entry_label = $2
		ORDER BY package_name
	`, projectKey, entryLabel)
	if err != nil {
		return snapshot.Snapshot{}, fmt.Errorf("querying snapshot: %w", err)
	}
	defer rows.Close()

	var s snapshot.Snapshot
	s.EntryLabel = entryLabel
	for rows.Next() {
		var pkg snapshot.PackageEntry
		var toolVersion string
		var totalBytes int64
		if err := rows.Scan(&toolVersion, &pkg.Name, &pkg.Bytes, &totalBytes); err != nil {
			return snapshot.Snapshot{}, fmt.Errorf("scanning snapshot row: %w", err)
		}
		s.ToolVersion = toolVersion
		s.TotalBytes = totalBytes
		s.Packages = append(s.Packages, pkg)
	}
	if err := rows.Err(); err != nil {
		return snapshot.Snapshot{}, fmt.Errorf("reading snapshot rows: %w", err)
	}
	if len(s.Packages) == 0 {
		return snapshot.Snapshot{}, fmt.Errorf("no snapshot found for project %q entry %q", projectKey, entryLabel)
	}
	return s, nil
}
