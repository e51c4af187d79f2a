package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GetOrCreateCommitAuthor returns the author for (organization, email),
// inserting it with the offered name on first sighting. A later sighting
// with a different name keeps the stored one (first writer wins).
func (s *Store) GetOrCreateCommitAuthor(ctx context.Context, organizationID, email, name string) (*CommitAuthor, error) {
	if organizationID == "" {
		return nil, fmt.Errorf("organization id is empty")
	}
	if email == "" {
		return nil, fmt.Errorf("email is empty")
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO commit_authors(id, organization_id, email, name)
VALUES(?, ?, ?, ?)
ON CONFLICT(organization_id, email) DO NOTHING;
`, uuid.NewString(), organizationID, email, name)
	if err != nil {
		return nil, fmt.Errorf("insert commit author: %w", err)
	}

	var author CommitAuthor
	err = s.db.QueryRowContext(ctx, `
SELECT id, organization_id, email, name
FROM commit_authors
WHERE organization_id = ? AND email = ?;
`, organizationID, email).Scan(&author.ID, &author.OrganizationID, &author.Email, &author.Name)
	if err != nil {
		return nil, fmt.Errorf("read commit author: %w", err)
	}
	return &author, nil
}

// CreateCommit inserts a commit keyed by (repository, key). A duplicate key
// is the expected redelivery/race case and reports created=false with no
// error. Each call is an individually scoped write.
func (s *Store) CreateCommit(ctx context.Context, c Commit) (bool, error) {
	if c.RepositoryID == "" || c.Key == "" {
		return false, fmt.Errorf("repository id and key are required")
	}

	var authorID any
	if c.AuthorID != nil {
		authorID = *c.AuthorID
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO commits(id, repository_id, organization_id, key, message, author_id, date_added)
VALUES(?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(repository_id, key) DO NOTHING;
`, uuid.NewString(), c.RepositoryID, c.OrganizationID, c.Key, c.Message, authorID,
		c.DateAdded.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return false, fmt.Errorf("insert commit: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert commit: %w", err)
	}
	return n > 0, nil
}

// CommitByKey returns a commit by its stable external key.
func (s *Store) CommitByKey(ctx context.Context, repositoryID, key string) (*Commit, error) {
	var (
		c          Commit
		authorID   sql.NullString
		dateAddedS string
	)
	err := s.db.QueryRowContext(ctx, `
SELECT id, repository_id, organization_id, key, message, author_id, date_added
FROM commits
WHERE repository_id = ? AND key = ?;
`, repositoryID, key).Scan(&c.ID, &c.RepositoryID, &c.OrganizationID, &c.Key, &c.Message, &authorID, &dateAddedS)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read commit: %w", err)
	}
	if authorID.Valid {
		c.AuthorID = &authorID.String
	}
	c.DateAdded = parseStoredTime(dateAddedS)
	return &c, nil
}

// CountCommits reports how many commits a repository has.
func (s *Store) CountCommits(ctx context.Context, repositoryID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM commits WHERE repository_id = ?;`, repositoryID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count commits: %w", err)
	}
	return n, nil
}
