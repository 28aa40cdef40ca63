package dbstore

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the DDL applied once at process start. Every collection
// is a single JSONB-payload table; secondary uniqueness and lookup
// indexes are expressed as Postgres expression indexes over the `doc`
// column rather than a relational schema per entity.
const Schema = `
CREATE TABLE IF NOT EXISTS projects (
	id text PRIMARY KEY,
	doc jsonb NOT NULL,
	updated_at timestamptz NOT NULL
);

CREATE TABLE IF NOT EXISTS files (
	id text PRIMARY KEY,
	doc jsonb NOT NULL,
	updated_at timestamptz NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS files_project_path_idx
	ON files (((doc->>'project_id')), ((doc->>'path')));

CREATE TABLE IF NOT EXISTS modified_files (
	id text PRIMARY KEY,
	doc jsonb NOT NULL,
	updated_at timestamptz NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS modified_files_original_name_idx
	ON modified_files (((doc->>'original_file_id')), ((doc->>'modified_name')));

CREATE TABLE IF NOT EXISTS deployments (
	id text PRIMARY KEY,
	doc jsonb NOT NULL,
	updated_at timestamptz NOT NULL
);
CREATE INDEX IF NOT EXISTS deployments_status_updated_idx
	ON deployments (((doc->>'status')), updated_at);

CREATE TABLE IF NOT EXISTS vllm_deployments (
	id text PRIMARY KEY,
	doc jsonb NOT NULL,
	updated_at timestamptz NOT NULL
);
CREATE INDEX IF NOT EXISTS vllm_deployments_status_updated_idx
	ON vllm_deployments (((doc->>'status')), updated_at);

CREATE TABLE IF NOT EXISTS evaluation_tasks (
	id text PRIMARY KEY,
	doc jsonb NOT NULL,
	updated_at timestamptz NOT NULL
);
CREATE INDEX IF NOT EXISTS evaluation_tasks_state_scheduled_idx
	ON evaluation_tasks (((doc->>'state')), ((doc->>'scheduled_at')));
`

// Migrate applies Schema. Safe to call on every process start: every
// statement is idempotent (CREATE ... IF NOT EXISTS).
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, Schema)
	return err
}
