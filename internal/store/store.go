package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Store provides durable reads and writes for the integration's records.
// All timestamps are stored as RFC3339Nano UTC text.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateOrganization inserts a new tenant.
func (s *Store) CreateOrganization(ctx context.Context, slug string) (*Organization, error) {
	if slug == "" {
		return nil, fmt.Errorf("slug is empty")
	}

	org := &Organization{
		ID:        uuid.NewString(),
		Slug:      slug,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO organizations(id, slug, created_at) VALUES(?, ?, ?);
`, org.ID, org.Slug, org.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("create organization: %w", err)
	}
	return org, nil
}

// OrganizationBySlug returns the tenant with the given slug.
func (s *Store) OrganizationBySlug(ctx context.Context, slug string) (*Organization, error) {
	var (
		org        Organization
		createdAtS string
	)
	err := s.db.QueryRowContext(ctx, `
SELECT id, slug, created_at FROM organizations WHERE slug = ?;
`, slug).Scan(&org.ID, &org.Slug, &createdAtS)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read organization: %w", err)
	}
	org.CreatedAt = parseStoredTime(createdAtS)
	return &org, nil
}

// CreateInstallation inserts a connected external account/instance.
func (s *Store) CreateInstallation(ctx context.Context, provider, externalID string, metadata map[string]string) (*Installation, error) {
	if provider == "" {
		return nil, fmt.Errorf("provider is empty")
	}
	if externalID == "" {
		return nil, fmt.Errorf("external id is empty")
	}

	meta, err := marshalStringMap(metadata)
	if err != nil {
		return nil, fmt.Errorf("encode installation metadata: %w", err)
	}

	inst := &Installation{
		ID:         uuid.NewString(),
		Provider:   provider,
		ExternalID: externalID,
		Metadata:   metadata,
		CreatedAt:  time.Now().UTC(),
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO installations(id, provider, external_id, metadata, created_at)
VALUES(?, ?, ?, ?, ?);
`, inst.ID, inst.Provider, inst.ExternalID, meta, inst.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("create installation: %w", err)
	}
	return inst, nil
}

// InstallationByExternalID looks up an installation by provider and external
// id. The lookup is deliberately not scoped by organization: one installation
// may fan out to many organizations.
func (s *Store) InstallationByExternalID(ctx context.Context, provider, externalID string) (*Installation, error) {
	var (
		inst       Installation
		metaRaw    string
		createdAtS string
	)
	err := s.db.QueryRowContext(ctx, `
SELECT id, provider, external_id, metadata, created_at
FROM installations
WHERE provider = ? AND external_id = ?;
`, provider, externalID).Scan(&inst.ID, &inst.Provider, &inst.ExternalID, &metaRaw, &createdAtS)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read installation: %w", err)
	}

	inst.Metadata, err = unmarshalStringMap(metaRaw)
	if err != nil {
		return nil, fmt.Errorf("decode installation metadata: %w", err)
	}
	inst.CreatedAt = parseStoredTime(createdAtS)
	return &inst, nil
}

// LinkInstallation associates an installation with an organization. Linking
// twice is a no-op.
func (s *Store) LinkInstallation(ctx context.Context, installationID, organizationID string) error {
	if installationID == "" || organizationID == "" {
		return fmt.Errorf("installation and organization ids are required")
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO installation_organizations(installation_id, organization_id)
VALUES(?, ?)
ON CONFLICT(installation_id, organization_id) DO NOTHING;
`, installationID, organizationID)
	if err != nil {
		return fmt.Errorf("link installation: %w", err)
	}
	return nil
}

// OrganizationsForInstallation lists every tenant the installation fans out to.
func (s *Store) OrganizationsForInstallation(ctx context.Context, installationID string) ([]Organization, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT o.id, o.slug, o.created_at
FROM organizations o
JOIN installation_organizations io ON io.organization_id = o.id
WHERE io.installation_id = ?
ORDER BY o.slug ASC;
`, installationID)
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}
	defer rows.Close()

	var orgs []Organization
	for rows.Next() {
		var (
			org        Organization
			createdAtS string
		)
		if err := rows.Scan(&org.ID, &org.Slug, &createdAtS); err != nil {
			return nil, fmt.Errorf("scan organization: %w", err)
		}
		org.CreatedAt = parseStoredTime(createdAtS)
		orgs = append(orgs, org)
	}
	return orgs, rows.Err()
}

func marshalStringMap(m map[string]string) (string, error) {
	if m == nil {
		m = map[string]string{}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalStringMap(raw string) (map[string]string, error) {
	if raw == "" {
		return map[string]string{}, nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = map[string]string{}
	}
	return m, nil
}

func parseStoredTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
