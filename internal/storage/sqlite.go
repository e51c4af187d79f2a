package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// OpenSQLite opens (and creates if needed) the SQLite database at path and
// ensures required tables exist.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Basic health check + apply a few safe pragmas.
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA foreign_keys = ON;",
		"PRAGMA busy_timeout = 5000;",
	} {
		if _, err := db.ExecContext(pctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}
	if err := BootstrapSQLite(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// BootstrapSQLite creates tables/indexes if missing.
func BootstrapSQLite(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS organizations (
  id         TEXT PRIMARY KEY,
  slug       TEXT NOT NULL UNIQUE,
  created_at TEXT NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS installations (
  id          TEXT PRIMARY KEY,
  provider    TEXT NOT NULL,
  external_id TEXT NOT NULL,
  metadata    JSON NOT NULL DEFAULT '{}',
  created_at  TEXT NOT NULL,
  UNIQUE(provider, external_id)
);`,
		`CREATE TABLE IF NOT EXISTS installation_organizations (
  installation_id TEXT NOT NULL REFERENCES installations(id),
  organization_id TEXT NOT NULL REFERENCES organizations(id),
  PRIMARY KEY(installation_id, organization_id)
);`,
		`CREATE TABLE IF NOT EXISTS repositories (
  id              TEXT PRIMARY KEY,
  organization_id TEXT NOT NULL REFERENCES organizations(id),
  provider        TEXT NOT NULL,
  external_id     TEXT NOT NULL,
  name            TEXT NOT NULL,
  url             TEXT NOT NULL,
  config          JSON NOT NULL DEFAULT '{}',
  created_at      TEXT NOT NULL,
  UNIQUE(organization_id, provider, external_id)
);`,
		`CREATE TABLE IF NOT EXISTS commit_authors (
  id              TEXT PRIMARY KEY,
  organization_id TEXT NOT NULL REFERENCES organizations(id),
  email           TEXT NOT NULL,
  name            TEXT NOT NULL,
  UNIQUE(organization_id, email)
);`,
		`CREATE TABLE IF NOT EXISTS commits (
  id              TEXT PRIMARY KEY,
  repository_id   TEXT NOT NULL REFERENCES repositories(id),
  organization_id TEXT NOT NULL,
  key             TEXT NOT NULL,
  message         TEXT NOT NULL,
  author_id       TEXT REFERENCES commit_authors(id),
  date_added      TEXT NOT NULL,
  UNIQUE(repository_id, key)
);`,
		`CREATE TABLE IF NOT EXISTS pull_requests (
  id               TEXT PRIMARY KEY,
  repository_id    TEXT NOT NULL REFERENCES repositories(id),
  organization_id  TEXT NOT NULL,
  key              INTEGER NOT NULL,
  title            TEXT NOT NULL,
  message          TEXT NOT NULL,
  author_id        TEXT REFERENCES commit_authors(id),
  merge_commit_sha TEXT,
  date_added       TEXT NOT NULL,
  UNIQUE(repository_id, key)
);`,
		`CREATE TABLE IF NOT EXISTS deliveries (
  id                       TEXT PRIMARY KEY,
  digest                   TEXT NOT NULL,
  event                    TEXT NOT NULL,
  installation_external_id TEXT,
  outcome                  TEXT NOT NULL,
  status                   INTEGER NOT NULL,
  created_at               TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS deliveries_created_at_idx ON deliveries(created_at);`,
		`CREATE INDEX IF NOT EXISTS commits_org_idx ON commits(organization_id);`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap sqlite: %w", err)
		}
	}
	return nil
}
