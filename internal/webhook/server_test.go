package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/forgehook/forgehook/internal/storage"
	"github.com/forgehook/forgehook/internal/store"
)

const (
	testProvider = "integrations:gitea"
	testInstance = "gitea.example.com"
	testAccount  = "acme"
	testSecret   = "hook-secret-value"
	testRepoName = "acme/app"
)

type fixture struct {
	store        *store.Store
	server       *Server
	handler      http.Handler
	installation *store.Installation
	org          store.Organization
	repo         *store.Repository
}

func compositeSecret() string {
	return testInstance + ":" + testAccount + "#" + testSecret
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	db, err := storage.OpenSQLite(ctx, filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	st := store.New(db)

	org, err := st.CreateOrganization(ctx, "acme-tenant")
	if err != nil {
		t.Fatalf("CreateOrganization: %v", err)
	}
	inst, err := st.CreateInstallation(ctx, testProvider, testInstance+":"+testAccount, map[string]string{
		"instance":       testInstance,
		"webhook_secret": testSecret,
	})
	if err != nil {
		t.Fatalf("CreateInstallation: %v", err)
	}
	if err := st.LinkInstallation(ctx, inst.ID, org.ID); err != nil {
		t.Fatalf("LinkInstallation: %v", err)
	}
	repo, err := st.CreateRepository(ctx, store.Repository{
		OrganizationID: org.ID,
		Provider:       testProvider,
		ExternalID:     testInstance + ":" + testRepoName,
		Name:           testRepoName,
		URL:            "https://" + testInstance + "/" + testRepoName,
		Config:         map[string]string{"instance": testInstance, "path": testRepoName},
	})
	if err != nil {
		t.Fatalf("CreateRepository: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	server := New(Config{
		Listen:           "127.0.0.1:0",
		Provider:         testProvider,
		SignatureHeader:  "X-Gitea-Signature",
		EventHeader:      "X-Gitea-Event",
		SkipCommitMarker: "#skip-forgehook",
	}, st, logger)

	return &fixture{
		store:        st,
		server:       server,
		handler:      server.setupRoutes(),
		installation: inst,
		org:          *org,
		repo:         repo,
	}
}

// deliver posts a payload with a signature computed over the body using the
// payload's own secret field as key, mirroring what the provider sends.
func (f *fixture) deliver(t *testing.T, eventType string, payload map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	secret, _ := payload["secret"].(string)
	return f.deliverRaw(t, eventType, body, computeSignature(body, secret))
}

func (f *fixture) deliverRaw(t *testing.T, eventType string, body []byte, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	if signature != "" {
		req.Header.Set("X-Gitea-Signature", signature)
	}
	if eventType != "" {
		req.Header.Set("X-Gitea-Event", eventType)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func pushPayload(commits ...map[string]any) map[string]any {
	if commits == nil {
		commits = []map[string]any{}
	}
	return map[string]any{
		"secret": compositeSecret(),
		"repository": map[string]any{
			"full_name": testRepoName,
			"html_url":  "https://" + testInstance + "/" + testRepoName,
		},
		"commits": commits,
	}
}

func commitEntry(id, message, email, name string) map[string]any {
	return map[string]any{
		"id":        id,
		"message":   message,
		"timestamp": "2026-03-14T09:26:53+01:00",
		"author":    map[string]any{"name": name, "email": email},
	}
}

func pullRequestPayload(pr map[string]any) map[string]any {
	return map[string]any{
		"secret": compositeSecret(),
		"repository": map[string]any{
			"full_name": testRepoName,
			"html_url":  "https://" + testInstance + "/" + testRepoName,
		},
		"pull_request": pr,
	}
}

func fullPullRequest() map[string]any {
	return map[string]any{
		"number":           int64(7),
		"title":            "Add retry budget",
		"body":             "Bounds retries per delivery.",
		"created_at":       "2026-03-14T09:26:53Z",
		"merged":           true,
		"merge_commit_sha": "9c3f0a1b",
		"user":             map[string]any{"username": "mara", "email": "mara@example.com"},
	}
}

func lastOutcome(t *testing.T, f *fixture) string {
	t.Helper()
	deliveries, err := f.store.RecentDeliveries(context.Background(), 1)
	if err != nil {
		t.Fatalf("RecentDeliveries: %v", err)
	}
	if len(deliveries) == 0 {
		t.Fatal("no deliveries recorded")
	}
	return deliveries[0].Outcome
}

func TestDeliveryMethodNotAllowed(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/webhook", nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}

func TestDeliveryMissingSignature(t *testing.T) {
	f := newFixture(t)

	body, _ := json.Marshal(pushPayload())
	rec := f.deliverRaw(t, EventTypePush, body, "")

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if got := lastOutcome(t, f); got != outcomeMissingSignature {
		t.Errorf("outcome = %q, want %q", got, outcomeMissingSignature)
	}
}

func TestDeliveryInvalidJSON(t *testing.T) {
	f := newFixture(t)

	body := []byte("{not json")
	rec := f.deliverRaw(t, EventTypePush, body, computeSignature(body, "anything"))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if got := lastOutcome(t, f); got != outcomeInvalidJSON {
		t.Errorf("outcome = %q, want %q", got, outcomeInvalidJSON)
	}
}

func TestDeliveryInvalidSignature(t *testing.T) {
	f := newFixture(t)

	body, _ := json.Marshal(pushPayload(commitEntry("aa11", "update", "dev@example.com", "Dev")))
	rec := f.deliverRaw(t, EventTypePush, body,
		"0000000000000000000000000000000000000000000000000000000000000000")

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if n, _ := f.store.CountCommits(context.Background(), f.repo.ID); n != 0 {
		t.Errorf("commits written despite rejected signature: %d", n)
	}
}

// A malformed secret field paired with a signature that is valid over the
// malformed body must clear the signature check first and only then fail
// secret parsing.
func TestDeliveryRejectionOrdering(t *testing.T) {
	f := newFixture(t)

	payload := pushPayload()
	payload["secret"] = "no-delimiter-in-here"
	body, _ := json.Marshal(payload)

	rec := f.deliverRaw(t, EventTypePush, body, computeSignature(body, "no-delimiter-in-here"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if got := lastOutcome(t, f); got != outcomeInvalidSecret {
		t.Errorf("outcome = %q, want %q (signature must be checked before secret parsing)", got, outcomeInvalidSecret)
	}

	// With a bad signature on the same malformed body, the signature check
	// decides first.
	rec = f.deliverRaw(t, EventTypePush, body,
		"0000000000000000000000000000000000000000000000000000000000000000")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if got := lastOutcome(t, f); got != outcomeInvalidSignature {
		t.Errorf("outcome = %q, want %q", got, outcomeInvalidSignature)
	}
}

func TestDeliveryUnknownInstallation(t *testing.T) {
	f := newFixture(t)

	payload := pushPayload()
	payload["secret"] = "gitea.example.com:stranger#" + testSecret
	rec := f.deliver(t, EventTypePush, payload)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if got := lastOutcome(t, f); got != outcomeUnknownInstallation {
		t.Errorf("outcome = %q, want %q", got, outcomeUnknownInstallation)
	}
}

func TestDeliverySecretMismatch(t *testing.T) {
	f := newFixture(t)

	// Signature is valid over the body (keyed by the composite in the body),
	// but the secret half does not match stored configuration.
	payload := pushPayload()
	payload["secret"] = testInstance + ":" + testAccount + "#wrong-secret"
	rec := f.deliver(t, EventTypePush, payload)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if got := lastOutcome(t, f); got != outcomeSecretMismatch {
		t.Errorf("outcome = %q, want %q", got, outcomeSecretMismatch)
	}
}

func TestDeliveryUnknownEventType(t *testing.T) {
	f := newFixture(t)

	rec := f.deliver(t, "issue_comment", pushPayload())
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if got := lastOutcome(t, f); got != outcomeUnknownEvent {
		t.Errorf("outcome = %q, want %q", got, outcomeUnknownEvent)
	}
}

func TestPushIngestIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	payload := pushPayload(
		commitEntry("aa11", "first change", "dev@example.com", "Dev One"),
		commitEntry("bb22", "second change", "dev@example.com", "Dev One"),
	)

	for i := 0; i < 2; i++ {
		rec := f.deliver(t, EventTypePush, payload)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("delivery %d: status = %d, want %d", i, rec.Code, http.StatusNoContent)
		}
	}

	n, err := f.store.CountCommits(ctx, f.repo.ID)
	if err != nil {
		t.Fatalf("CountCommits: %v", err)
	}
	if n != 2 {
		t.Errorf("commit count after redelivery = %d, want 2", n)
	}

	commit, err := f.store.CommitByKey(ctx, f.repo.ID, "aa11")
	if err != nil {
		t.Fatalf("CommitByKey: %v", err)
	}
	if commit.Message != "first change" {
		t.Errorf("message = %q, want %q", commit.Message, "first change")
	}
	if commit.AuthorID == nil {
		t.Error("commit author should be set")
	}
	// Timestamps are normalized to UTC.
	if got := commit.DateAdded.UTC().Hour(); got != 8 {
		t.Errorf("normalized hour = %d, want 8 (09:26+01:00)", got)
	}
}

func TestPushLenientAuthorHandling(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	longEmail := strings.Repeat("a", 70) + "@example.com" // 82 chars

	rec := f.deliver(t, EventTypePush, pushPayload(
		commitEntry("cc33", "no author email", "", "Ghost"),
		commitEntry("dd44", "oversized author email", longEmail, "Long"),
	))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}

	for _, key := range []string{"cc33", "dd44"} {
		commit, err := f.store.CommitByKey(ctx, f.repo.ID, key)
		if err != nil {
			t.Fatalf("CommitByKey(%s): %v", key, err)
		}
		if commit.AuthorID != nil {
			t.Errorf("commit %s: author should be absent", key)
		}
	}
}

func TestPushSkipMarker(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec := f.deliver(t, EventTypePush, pushPayload(
		commitEntry("ee55", "merge upstream #skip-forgehook", "dev@example.com", "Dev"),
		commitEntry("ff66", "real change", "dev@example.com", "Dev"),
	))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}

	if _, err := f.store.CommitByKey(ctx, f.repo.ID, "ee55"); err == nil {
		t.Error("marked commit should not be ingested")
	}
	if _, err := f.store.CommitByKey(ctx, f.repo.ID, "ff66"); err != nil {
		t.Errorf("unmarked commit missing: %v", err)
	}
}

func TestPushUntrackedRepositoryNoOps(t *testing.T) {
	f := newFixture(t)

	payload := pushPayload(commitEntry("aa11", "change", "dev@example.com", "Dev"))
	payload["repository"] = map[string]any{
		"full_name": "acme/untracked",
		"html_url":  "https://" + testInstance + "/acme/untracked",
	}
	rec := f.deliver(t, EventTypePush, payload)

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	if n, _ := f.store.CountCommits(context.Background(), f.repo.ID); n != 0 {
		t.Errorf("commits written for untracked repository: %d", n)
	}
}

func TestPushFanOutIsolation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Second organization linked to the same installation, with no matching
	// local repository.
	other, err := f.store.CreateOrganization(ctx, "other-tenant")
	if err != nil {
		t.Fatalf("CreateOrganization: %v", err)
	}
	if err := f.store.LinkInstallation(ctx, f.installation.ID, other.ID); err != nil {
		t.Fatalf("LinkInstallation: %v", err)
	}

	rec := f.deliver(t, EventTypePush, pushPayload(
		commitEntry("aa11", "change", "dev@example.com", "Dev"),
	))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}

	if n, _ := f.store.CountCommits(ctx, f.repo.ID); n != 1 {
		t.Errorf("commit count for tracked org = %d, want 1", n)
	}
}

func TestPushRenameTolerance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Stored record carries a stale name/URL; the external identifier is
	// unchanged because it derives from the event's current full name.
	if err := f.store.UpdateRepositoryMetadata(ctx, f.repo.ID, "acme/old-name",
		"https://"+testInstance+"/acme/old-name",
		map[string]string{"instance": testInstance, "path": "acme/old-name"}); err != nil {
		t.Fatalf("UpdateRepositoryMetadata: %v", err)
	}

	rec := f.deliver(t, EventTypePush, pushPayload(
		commitEntry("aa11", "post-rename change", "dev@example.com", "Dev"),
	))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}

	repo, err := f.store.RepositoryByID(ctx, f.repo.ID)
	if err != nil {
		t.Fatalf("RepositoryByID: %v", err)
	}
	if repo.Name != testRepoName {
		t.Errorf("name = %q, want refreshed %q", repo.Name, testRepoName)
	}
	if repo.Config["path"] != testRepoName {
		t.Errorf("config path = %q, want %q", repo.Config["path"], testRepoName)
	}
	if _, err := f.store.CommitByKey(ctx, f.repo.ID, "aa11"); err != nil {
		t.Errorf("commit not attached to renamed repository: %v", err)
	}
}

func TestPullRequestUpsert(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec := f.deliver(t, EventTypePullRequest, pullRequestPayload(fullPullRequest()))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}

	pr, err := f.store.PullRequestByKey(ctx, f.repo.ID, 7)
	if err != nil {
		t.Fatalf("PullRequestByKey: %v", err)
	}
	if pr.Title != "Add retry budget" {
		t.Errorf("title = %q", pr.Title)
	}
	if pr.MergeCommitSHA == nil || *pr.MergeCommitSHA != "9c3f0a1b" {
		t.Errorf("merge commit sha = %v, want 9c3f0a1b", pr.MergeCommitSHA)
	}

	// Redelivery with updated fields overwrites in place.
	updated := fullPullRequest()
	updated["title"] = "Add retry budget (v2)"
	rec = f.deliver(t, EventTypePullRequest, pullRequestPayload(updated))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("redelivery status = %d, want %d", rec.Code, http.StatusNoContent)
	}

	if n, _ := f.store.CountPullRequests(ctx, f.repo.ID); n != 1 {
		t.Errorf("pull request count = %d, want 1", n)
	}
	pr, err = f.store.PullRequestByKey(ctx, f.repo.ID, 7)
	if err != nil {
		t.Fatalf("PullRequestByKey after redelivery: %v", err)
	}
	if pr.Title != "Add retry budget (v2)" {
		t.Errorf("title after redelivery = %q", pr.Title)
	}
}

func TestPullRequestUnmergedHasNoMergeSHA(t *testing.T) {
	f := newFixture(t)

	pr := fullPullRequest()
	pr["merged"] = false
	rec := f.deliver(t, EventTypePullRequest, pullRequestPayload(pr))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}

	got, err := f.store.PullRequestByKey(context.Background(), f.repo.ID, 7)
	if err != nil {
		t.Fatalf("PullRequestByKey: %v", err)
	}
	if got.MergeCommitSHA != nil {
		t.Errorf("merge commit sha = %q, want absent", *got.MergeCommitSHA)
	}
}

func TestPullRequestMissingAuthorEmail(t *testing.T) {
	f := newFixture(t)

	pr := fullPullRequest()
	pr["user"] = map[string]any{"username": "mara", "email": ""}
	rec := f.deliver(t, EventTypePullRequest, pullRequestPayload(pr))

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	if n, _ := f.store.CountPullRequests(context.Background(), f.repo.ID); n != 0 {
		t.Errorf("pull requests written despite missing author email: %d", n)
	}
	if got := lastOutcome(t, f); got != outcomeNotActionable {
		t.Errorf("outcome = %q, want %q", got, outcomeNotActionable)
	}
}

func TestPullRequestIncompletePayload(t *testing.T) {
	f := newFixture(t)

	pr := fullPullRequest()
	delete(pr, "number")
	rec := f.deliver(t, EventTypePullRequest, pullRequestPayload(pr))

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	if n, _ := f.store.CountPullRequests(context.Background(), f.repo.ID); n != 0 {
		t.Errorf("pull requests written despite incomplete payload: %d", n)
	}
}
