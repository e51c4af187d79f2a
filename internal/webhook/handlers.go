package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/forgehook/forgehook/internal/store"
)

// errNotActionable marks a well-formed delivery that cannot be processed
// (missing repository name, incomplete pull request data). It maps to 404,
// deliberately distinct from the 400s used for authentication failures.
var errNotActionable = errors.New("delivery not actionable")

// splitCompositeSecret splits the payload's "<external_id>#<webhook_secret>"
// field on the first '#'. Both halves must be non-empty.
func splitCompositeSecret(composite string) (externalID, webhookSecret string, ok bool) {
	externalID, webhookSecret, found := strings.Cut(composite, "#")
	if !found || externalID == "" || webhookSecret == "" {
		return "", "", false
	}
	return externalID, webhookSecret, true
}

// resolveRepository maps the event's embedded repository descriptor to a
// registered local repository.
//
// A missing local repository is an expected steady state and returns
// (nil, nil); the caller no-ops. A payload without a repository name is not
// actionable. On a hit, drifted name/URL/config are refreshed in place so
// upstream renames keep the history attached to the stable external id.
func (s *Server) resolveRepository(ctx context.Context, inst *store.Installation, org store.Organization, event *Event) (*store.Repository, error) {
	fullName := event.Repository.FullName
	if fullName == "" {
		s.logger.Info("missing repository name in payload", "installation_id", inst.ID)
		return nil, errNotActionable
	}

	externalID := fmt.Sprintf("%s:%s", inst.Metadata["instance"], fullName)
	repo, err := s.store.RepositoryByExternalID(ctx, org.ID, s.config.Provider, externalID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve repository: %w", err)
	}

	if err := s.refreshRepositoryData(ctx, repo, event); err != nil {
		// Metadata drift repair is best-effort; ingestion proceeds on the
		// stable external id either way.
		s.logger.Warn("repository metadata refresh failed", "repository_id", repo.ID, "error", err)
	}
	return repo, nil
}

// refreshRepositoryData updates stored repo data if the event reports drift.
func (s *Server) refreshRepositoryData(ctx context.Context, repo *store.Repository, event *Event) error {
	nameFromEvent := event.Repository.FullName
	urlFromEvent := event.Repository.HTMLURL

	storedPath := repo.Config["path"]
	if storedPath == "" {
		storedPath = repo.Config["repo"]
	}
	if repo.Name == nameFromEvent && repo.URL == urlFromEvent && storedPath == nameFromEvent {
		return nil
	}

	config := make(map[string]string, len(repo.Config)+1)
	for k, v := range repo.Config {
		config[k] = v
	}
	config["path"] = nameFromEvent

	if err := s.store.UpdateRepositoryMetadata(ctx, repo.ID, nameFromEvent, urlFromEvent, config); err != nil {
		return err
	}
	repo.Name = nameFromEvent
	repo.URL = urlFromEvent
	repo.Config = config
	s.logger.Info("repository metadata refreshed", "repository_id", repo.ID, "name", nameFromEvent)
	return nil
}

// handlePushEvent ingests the commit list of a push event for one
// organization. Each commit write is individually scoped: a malformed entry
// or a write failure never aborts its siblings.
func (s *Server) handlePushEvent(ctx context.Context, inst *store.Installation, org store.Organization, event *Event) error {
	repo, err := s.resolveRepository(ctx, inst, org, event)
	if err != nil {
		return err
	}
	if repo == nil {
		return nil
	}

	logger := s.logger.With(
		slog.String("repository_id", repo.ID),
		slog.String("organization_id", org.ID),
	)

	// First writer wins per email for the duration of one event.
	authors := make(map[string]*store.CommitAuthor)

	for _, commit := range event.Commits {
		if s.shouldSkipCommit(commit.Message) {
			continue
		}

		var authorID *string
		email := commit.Author.Email
		if email != "" && len(email) <= maxAuthorEmailLength {
			author, seen := authors[email]
			if !seen {
				author, err = s.store.GetOrCreateCommitAuthor(ctx, org.ID, email, commit.Author.Name)
				if err != nil {
					logger.Error("commit author write failed", "key", commit.ID, "error", err)
					continue
				}
				authors[email] = author
			}
			authorID = &author.ID
		}

		dateAdded, err := parseEventTime(commit.Timestamp)
		if err != nil {
			logger.Warn("unparseable commit timestamp", "key", commit.ID, "timestamp", commit.Timestamp)
			continue
		}

		created, err := s.store.CreateCommit(ctx, store.Commit{
			RepositoryID:   repo.ID,
			OrganizationID: org.ID,
			Key:            commit.ID,
			Message:        commit.Message,
			AuthorID:       authorID,
			DateAdded:      dateAdded,
		})
		if err != nil {
			logger.Error("commit write failed", "key", commit.ID, "error", err)
			continue
		}
		if !created {
			logger.Debug("duplicate commit ignored", "key", commit.ID)
		}
	}
	return nil
}

// handlePullRequestEvent upserts one pull request record for one
// organization. Unlike the push handler's lenient author policy, author
// email is mandatory here; incomplete payloads are not actionable.
func (s *Server) handlePullRequestEvent(ctx context.Context, inst *store.Installation, org store.Organization, event *Event) error {
	repo, err := s.resolveRepository(ctx, inst, org, event)
	if err != nil {
		return err
	}
	if repo == nil {
		return nil
	}

	pr := event.PullRequest
	if pr == nil || pr.Number == nil || pr.Title == nil || pr.Body == nil || pr.CreatedAt == nil || pr.User == nil {
		s.logger.Info("incomplete pull request payload", "installation_id", inst.ID)
		return errNotActionable
	}
	if pr.User.Email == "" {
		s.logger.Info("pull request author has no email", "installation_id", inst.ID, "number", *pr.Number)
		return errNotActionable
	}

	author, err := s.store.GetOrCreateCommitAuthor(ctx, org.ID, pr.User.Email, pr.User.Username)
	if err != nil {
		return fmt.Errorf("pull request author: %w", err)
	}

	dateAdded, err := parseEventTime(*pr.CreatedAt)
	if err != nil {
		s.logger.Info("unparseable pull request timestamp", "number", *pr.Number, "created_at", *pr.CreatedAt)
		return errNotActionable
	}

	var mergeSHA *string
	if pr.Merged && pr.MergeCommitSHA != "" {
		sha := pr.MergeCommitSHA
		mergeSHA = &sha
	}

	if err := s.store.UpsertPullRequest(ctx, store.PullRequest{
		RepositoryID:   repo.ID,
		OrganizationID: org.ID,
		Key:            *pr.Number,
		Title:          *pr.Title,
		Message:        *pr.Body,
		AuthorID:       &author.ID,
		MergeCommitSHA: mergeSHA,
		DateAdded:      dateAdded,
	}); err != nil {
		return fmt.Errorf("upsert pull request: %w", err)
	}
	return nil
}

func (s *Server) shouldSkipCommit(message string) bool {
	marker := s.config.SkipCommitMarker
	if marker == "" {
		return false
	}
	return strings.Contains(strings.ToLower(message), strings.ToLower(marker))
}

// parseEventTime parses the provider's ISO-8601 timestamps and normalizes
// to UTC.
func parseEventTime(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
