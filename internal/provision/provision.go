// Package provision implements the onboarding flow: creating tenant and
// installation records and registering repositories, including installing
// the delivery webhook on the provider side.
package provision

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"

	"github.com/forgehook/forgehook/internal/gitea"
	"github.com/forgehook/forgehook/internal/store"
)

// RepoClient is the slice of the API client the provisioner needs.
type RepoClient interface {
	GetRepo(ctx context.Context, fullName string) (*gitea.Repo, error)
	CreateRepoHook(ctx context.Context, fullName string, opts gitea.HookOptions) (int64, error)
	DeleteRepoHook(ctx context.Context, fullName string, hookID int64) error
}

type Service struct {
	store  *store.Store
	client RepoClient
	logger *slog.Logger
}

func New(st *store.Store, client RepoClient, logger *slog.Logger) *Service {
	return &Service{store: st, client: client, logger: logger}
}

// CreateInstallation records a connected provider account. The external id
// is the stable "host:account" composite; a fresh webhook secret is minted
// into the metadata along with the instance host.
func (s *Service) CreateInstallation(ctx context.Context, provider, host, account string) (*store.Installation, error) {
	if host == "" || account == "" {
		return nil, fmt.Errorf("host and account are required")
	}

	externalID := fmt.Sprintf("%s:%s", host, account)
	metadata := map[string]string{
		"instance":       host,
		"webhook_secret": uuid.NewString(),
	}
	inst, err := s.store.CreateInstallation(ctx, provider, externalID, metadata)
	if err != nil {
		return nil, err
	}
	s.logger.Info("installation created", "installation_id", inst.ID, "external_id", externalID)
	return inst, nil
}

// WebhookSecret returns the composite secret the provider embeds in hook
// configuration for this installation.
func WebhookSecret(inst *store.Installation) string {
	return fmt.Sprintf("%s#%s", inst.ExternalID, inst.Metadata["webhook_secret"])
}

// RegisterRepository starts tracking a repository for one organization:
// fetches current metadata from the provider, installs the delivery webhook
// and persists the local record keyed by the stable external id.
func (s *Service) RegisterRepository(ctx context.Context, inst *store.Installation, organizationID, fullName, callbackURL string) (*store.Repository, error) {
	if callbackURL == "" {
		return nil, fmt.Errorf("callback URL is required")
	}

	repo, err := s.client.GetRepo(ctx, fullName)
	if err != nil {
		return nil, fmt.Errorf("fetch repository %s: %w", fullName, err)
	}

	hookID, err := s.client.CreateRepoHook(ctx, fullName, gitea.HookOptions{
		URL:    callbackURL,
		Secret: WebhookSecret(inst),
	})
	if err != nil {
		return nil, fmt.Errorf("install webhook on %s: %w", fullName, err)
	}

	record, err := s.store.CreateRepository(ctx, store.Repository{
		OrganizationID: organizationID,
		Provider:       inst.Provider,
		ExternalID:     fmt.Sprintf("%s:%s", inst.Metadata["instance"], fullName),
		Name:           fullName,
		URL:            repo.HTMLURL,
		Config: map[string]string{
			"instance":   inst.Metadata["instance"],
			"webhook_id": strconv.FormatInt(hookID, 10),
			"path":       fullName,
		},
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("repository registered",
		"repository_id", record.ID,
		"external_id", record.ExternalID,
		"webhook_id", hookID,
	)
	return record, nil
}

// DeregisterRepository removes the provider-side webhook. A hook already
// gone upstream is not an error.
func (s *Service) DeregisterRepository(ctx context.Context, repo *store.Repository) error {
	hookID, err := strconv.ParseInt(repo.Config["webhook_id"], 10, 64)
	if err != nil {
		return fmt.Errorf("repository %s has no webhook id: %w", repo.ID, err)
	}
	path := repo.Config["path"]
	if path == "" {
		path = repo.Name
	}
	if err := s.client.DeleteRepoHook(ctx, path, hookID); err != nil {
		if gitea.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("remove webhook from %s: %w", path, err)
	}
	return nil
}
