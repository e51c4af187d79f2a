package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateRepository inserts a tracked repository record.
func (s *Store) CreateRepository(ctx context.Context, repo Repository) (*Repository, error) {
	if repo.OrganizationID == "" {
		return nil, fmt.Errorf("organization id is empty")
	}
	if repo.Provider == "" || repo.ExternalID == "" {
		return nil, fmt.Errorf("provider and external id are required")
	}

	cfg, err := marshalStringMap(repo.Config)
	if err != nil {
		return nil, fmt.Errorf("encode repository config: %w", err)
	}

	repo.ID = uuid.NewString()
	repo.CreatedAt = time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
INSERT INTO repositories(id, organization_id, provider, external_id, name, url, config, created_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?);
`, repo.ID, repo.OrganizationID, repo.Provider, repo.ExternalID, repo.Name, repo.URL, cfg,
		repo.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("create repository: %w", err)
	}
	return &repo, nil
}

// RepositoryByExternalID looks up a repository by its stable external
// identity within one organization.
func (s *Store) RepositoryByExternalID(ctx context.Context, organizationID, provider, externalID string) (*Repository, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, organization_id, provider, external_id, name, url, config, created_at
FROM repositories
WHERE organization_id = ? AND provider = ? AND external_id = ?;
`, organizationID, provider, externalID)
	return scanRepository(row)
}

// RepositoryByID returns a repository by primary key.
func (s *Store) RepositoryByID(ctx context.Context, id string) (*Repository, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, organization_id, provider, external_id, name, url, config, created_at
FROM repositories
WHERE id = ?;
`, id)
	return scanRepository(row)
}

// UpdateRepositoryMetadata refreshes the mutable repository fields (name, URL,
// config) in place. The external identity is never rewritten.
func (s *Store) UpdateRepositoryMetadata(ctx context.Context, id, name, url string, config map[string]string) error {
	cfg, err := marshalStringMap(config)
	if err != nil {
		return fmt.Errorf("encode repository config: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE repositories SET name = ?, url = ?, config = ? WHERE id = ?;
`, name, url, cfg, id)
	if err != nil {
		return fmt.Errorf("update repository: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// RepositoriesForOrganization lists all repositories tracked by a tenant.
func (s *Store) RepositoriesForOrganization(ctx context.Context, organizationID string) ([]Repository, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, organization_id, provider, external_id, name, url, config, created_at
FROM repositories
WHERE organization_id = ?
ORDER BY name ASC;
`, organizationID)
	if err != nil {
		return nil, fmt.Errorf("list repositories: %w", err)
	}
	defer rows.Close()

	var repos []Repository
	for rows.Next() {
		repo, err := scanRepositoryRow(rows)
		if err != nil {
			return nil, err
		}
		repos = append(repos, *repo)
	}
	return repos, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRepository(row *sql.Row) (*Repository, error) {
	repo, err := scanRepositoryRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return repo, err
}

func scanRepositoryRow(row rowScanner) (*Repository, error) {
	var (
		repo       Repository
		cfgRaw     string
		createdAtS string
	)
	err := row.Scan(&repo.ID, &repo.OrganizationID, &repo.Provider, &repo.ExternalID,
		&repo.Name, &repo.URL, &cfgRaw, &createdAtS)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan repository: %w", err)
	}
	repo.Config, err = unmarshalStringMap(cfgRaw)
	if err != nil {
		return nil, fmt.Errorf("decode repository config: %w", err)
	}
	repo.CreatedAt = parseStoredTime(createdAtS)
	return &repo, nil
}
