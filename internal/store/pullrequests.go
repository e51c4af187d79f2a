package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// UpsertPullRequest creates or updates a pull request keyed by
// (repository, number). A concurrent duplicate create resolves through the
// conflict clause, so the later writer simply overwrites the mutable fields.
func (s *Store) UpsertPullRequest(ctx context.Context, pr PullRequest) error {
	if pr.RepositoryID == "" {
		return fmt.Errorf("repository id is empty")
	}
	if pr.Key <= 0 {
		return fmt.Errorf("pull request key must be positive")
	}

	var authorID any
	if pr.AuthorID != nil {
		authorID = *pr.AuthorID
	}
	var mergeSHA any
	if pr.MergeCommitSHA != nil {
		mergeSHA = *pr.MergeCommitSHA
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO pull_requests(
  id, repository_id, organization_id, key, title, message, author_id, merge_commit_sha, date_added
)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(repository_id, key) DO UPDATE SET
  title = excluded.title,
  message = excluded.message,
  author_id = excluded.author_id,
  merge_commit_sha = excluded.merge_commit_sha,
  date_added = excluded.date_added;
`, uuid.NewString(), pr.RepositoryID, pr.OrganizationID, pr.Key, pr.Title, pr.Message,
		authorID, mergeSHA, pr.DateAdded.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("upsert pull request: %w", err)
	}
	return nil
}

// PullRequestByKey returns a pull request by its number.
func (s *Store) PullRequestByKey(ctx context.Context, repositoryID string, key int64) (*PullRequest, error) {
	var (
		pr         PullRequest
		authorID   sql.NullString
		mergeSHA   sql.NullString
		dateAddedS string
	)
	err := s.db.QueryRowContext(ctx, `
SELECT id, repository_id, organization_id, key, title, message, author_id, merge_commit_sha, date_added
FROM pull_requests
WHERE repository_id = ? AND key = ?;
`, repositoryID, key).Scan(&pr.ID, &pr.RepositoryID, &pr.OrganizationID, &pr.Key,
		&pr.Title, &pr.Message, &authorID, &mergeSHA, &dateAddedS)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read pull request: %w", err)
	}
	if authorID.Valid {
		pr.AuthorID = &authorID.String
	}
	if mergeSHA.Valid {
		pr.MergeCommitSHA = &mergeSHA.String
	}
	pr.DateAdded = parseStoredTime(dateAddedS)
	return &pr, nil
}

// CountPullRequests reports how many pull requests a repository has.
func (s *Store) CountPullRequests(ctx context.Context, repositoryID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pull_requests WHERE repository_id = ?;`, repositoryID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pull requests: %w", err)
	}
	return n, nil
}
