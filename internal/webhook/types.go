package webhook

import (
	"context"

	"github.com/forgehook/forgehook/internal/store"
)

//go:generate mockgen -destination=mocks/mock_store.go -package=mocks github.com/forgehook/forgehook/internal/webhook RecordStore

// RecordStore defines the durable-store operations the pipeline needs. The
// pipeline reads installations/organizations/repositories and writes
// commits, commit authors and pull requests; nothing is owned in-process
// across requests.
type RecordStore interface {
	InstallationByExternalID(ctx context.Context, provider, externalID string) (*store.Installation, error)
	OrganizationsForInstallation(ctx context.Context, installationID string) ([]store.Organization, error)
	RepositoryByExternalID(ctx context.Context, organizationID, provider, externalID string) (*store.Repository, error)
	UpdateRepositoryMetadata(ctx context.Context, id, name, url string, config map[string]string) error
	GetOrCreateCommitAuthor(ctx context.Context, organizationID, email, name string) (*store.CommitAuthor, error)
	CreateCommit(ctx context.Context, c store.Commit) (bool, error)
	UpsertPullRequest(ctx context.Context, pr store.PullRequest) error
	RecordDelivery(ctx context.Context, d store.Delivery) error
}

// Config holds webhook server configuration.
type Config struct {
	Listen string

	// Provider is the provider key installations and repositories are
	// registered under.
	Provider string

	// SignatureHeader and EventHeader are the provider-specific request
	// headers carrying the body HMAC and the event type label.
	SignatureHeader string
	EventHeader     string

	// SkipCommitMarker suppresses commits whose message contains it.
	SkipCommitMarker string

	MaxBodySize int64
}

// Event is the webhook payload envelope, parsed and validated once at the
// pipeline boundary. Event-kind specific fields are optional and checked by
// the handler that needs them.
type Event struct {
	Secret      string            `json:"secret"`
	Repository  EventRepository   `json:"repository"`
	Commits     []EventCommit     `json:"commits"`
	PullRequest *EventPullRequest `json:"pull_request"`
}

// EventRepository is the payload's embedded repository descriptor.
type EventRepository struct {
	FullName string `json:"full_name"`
	HTMLURL  string `json:"html_url"`
}

// EventCommit is one entry of a push event's commit list.
type EventCommit struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Timestamp string    `json:"timestamp"`
	Author    EventUser `json:"author"`
}

// EventUser identifies a commit or pull request author.
type EventUser struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// EventPullRequest is the pull_request object of a pull request event.
// Pointer fields distinguish absent from zero-valued: the handler requires
// all of them.
type EventPullRequest struct {
	Number         *int64     `json:"number"`
	Title          *string    `json:"title"`
	Body           *string    `json:"body"`
	CreatedAt      *string    `json:"created_at"`
	Merged         bool       `json:"merged"`
	MergeCommitSHA string     `json:"merge_commit_sha"`
	User           *EventUser `json:"user"`
}

// Event type labels the dispatcher accepts. The set is closed: anything
// else is rejected, not silently ignored.
const (
	EventTypePush        = "push"
	EventTypePullRequest = "pull_request"
)

// Delivery outcomes recorded in the operational trail.
const (
	outcomeProcessed           = "processed"
	outcomeNotActionable       = "not_actionable"
	outcomeMissingSignature    = "missing_signature"
	outcomeInvalidJSON         = "invalid_json"
	outcomeInvalidSignature    = "invalid_signature"
	outcomeInvalidSecret       = "invalid_secret"
	outcomeUnknownInstallation = "unknown_installation"
	outcomeSecretMismatch      = "secret_mismatch"
	outcomeUnknownEvent        = "unknown_event"
)

// maxAuthorEmailLength bounds commit author emails; longer values are
// treated as absent rather than rejecting the event.
const maxAuthorEmailLength = 75
