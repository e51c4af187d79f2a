package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a lookup matches no record.
var ErrNotFound = errors.New("record not found")

// Organization is a local tenant owning repositories.
type Organization struct {
	ID        string
	Slug      string
	CreatedAt time.Time
}

// Installation is one connected external account/instance. Metadata holds
// at least "webhook_secret" and "instance" (the provider host).
type Installation struct {
	ID         string
	Provider   string
	ExternalID string
	Metadata   map[string]string
	CreatedAt  time.Time
}

// Repository is a local record of a tracked external repository. ExternalID
// ("instance:full_name") is the stable identity; name and URL may drift
// upstream and are refreshed in place. Config carries the current full name
// under "path".
type Repository struct {
	ID             string
	OrganizationID string
	Provider       string
	ExternalID     string
	Name           string
	URL            string
	Config         map[string]string
	CreatedAt      time.Time
}

// CommitAuthor maps (organization, email) to an author name. Created lazily
// on first sighting; the name is never rewritten afterwards.
type CommitAuthor struct {
	ID             string
	OrganizationID string
	Email          string
	Name           string
}

// Commit is one ingested commit, unique per (repository, key).
type Commit struct {
	ID             string
	RepositoryID   string
	OrganizationID string
	Key            string
	Message        string
	AuthorID       *string
	DateAdded      time.Time
}

// PullRequest is one ingested pull request, unique per (repository, key).
// MergeCommitSHA is set only when the pull request is merged.
type PullRequest struct {
	ID             string
	RepositoryID   string
	OrganizationID string
	Key            int64
	Title          string
	Message        string
	AuthorID       *string
	MergeCommitSHA *string
	DateAdded      time.Time
}

// Delivery is one processed webhook delivery, kept as an operational trail.
// It never feeds back into accept/reject decisions.
type Delivery struct {
	ID                     string
	Digest                 string
	Event                  string
	InstallationExternalID string
	Outcome                string
	Status                 int
	CreatedAt              time.Time
}
