// Package gitea is the outbound REST client for the provider API. The
// ingestion pipeline never calls out; this client serves the registration
// and issue-linking flows.
package gitea

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const apiVersion = "/api/v1"

// API paths, relative to <base_url>/api/v1 unless noted.
const (
	pathOAuthToken = "/login/oauth/access_token" // relative to base URL
	pathUser       = "/user"
	pathUserRepos  = "/user/repos"
	pathRepo       = "/repos/%s"
	pathRepoHooks  = "/repos/%s/hooks"
	pathRepoHook   = "/repos/%s/hooks/%d"
	pathIssues     = "/repos/%s/issues"
	pathIssue      = "/repos/%s/issues/%d"
	pathComments   = "/repos/%s/issues/%d/comments"
	pathCommits    = "/repos/%s/commits"
)

// Config identifies the provider instance and the OAuth application
// registered on it.
type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string

	// VerifySSL disables certificate verification when false; self-hosted
	// instances commonly run with private CAs.
	VerifySSL bool
}

// Credentials are the OAuth tokens for the installation's identity.
type Credentials struct {
	AccessToken  string
	RefreshToken string
}

// APIError is a non-2xx response from the provider API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: status %d", e.Status)
	}
	return fmt.Sprintf("api error: status %d: %s", e.Status, e.Message)
}

// IsNotFound reports whether err is an APIError with status 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// Client is a bearer-authenticated API client. On a 401 it refreshes the
// access token once (OAuth refresh_token grant) and retries the request;
// a second 401 surfaces as the error.
type Client struct {
	config Config
	creds  Credentials
	http   *http.Client
	logger *slog.Logger
}

// New creates an API client for one installation identity.
func New(config Config, creds Credentials, logger *slog.Logger) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("base URL is empty")
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	transport := http.DefaultTransport
	if !config.VerifySSL {
		transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	return &Client{
		config: config,
		creds:  creds,
		http: &http.Client{
			Transport: transport,
			Timeout:   30 * time.Second,
		},
		logger: logger,
	}, nil
}

// Credentials returns the current tokens, which may have rotated since New.
func (c *Client) Credentials() Credentials {
	return c.creds
}

func (c *Client) apiURL(path string) string {
	return c.config.BaseURL + apiVersion + path
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if err := c.doOnce(ctx, method, path, query, body, out); err != nil {
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
			return err
		}
		if refreshErr := c.refreshAccessToken(ctx); refreshErr != nil {
			return fmt.Errorf("unauthorized and token refresh failed: %w", refreshErr)
		}
		return c.doOnce(ctx, method, path, query, body, out)
	}
	return nil
}

func (c *Client) doOnce(ctx context.Context, method, path string, query url.Values, body, out any) error {
	endpoint := c.apiURL(path)
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.creds.AccessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return &APIError{Status: resp.StatusCode, Message: readAPIMessage(resp.Body)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

func readAPIMessage(r io.Reader) string {
	var payload struct {
		Message string `json:"message"`
	}
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil {
		return ""
	}
	if json.Unmarshal(data, &payload) == nil && payload.Message != "" {
		return payload.Message
	}
	return ""
}

// refreshAccessToken exchanges the refresh token at the instance's OAuth
// token endpoint and rotates the stored credentials.
func (c *Client) refreshAccessToken(ctx context.Context) error {
	if c.creds.RefreshToken == "" {
		return fmt.Errorf("missing refresh token")
	}

	conf := &oauth2.Config{
		ClientID:     c.config.ClientID,
		ClientSecret: c.config.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL: c.config.BaseURL + pathOAuthToken,
		},
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)
	token, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: c.creds.RefreshToken}).Token()
	if err != nil {
		return fmt.Errorf("refresh access token: %w", err)
	}

	c.creds.AccessToken = token.AccessToken
	if token.RefreshToken != "" {
		c.creds.RefreshToken = token.RefreshToken
	}
	c.logger.Info("access token refreshed", "base_url", c.config.BaseURL)
	return nil
}

// User is the authenticated provider account.
type User struct {
	ID       int64  `json:"id"`
	UserName string `json:"login"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
}

// Repo is a provider repository.
type Repo struct {
	ID       int64  `json:"id"`
	FullName string `json:"full_name"`
	HTMLURL  string `json:"html_url"`
}

// Issue is a provider issue.
type Issue struct {
	Index   int64  `json:"number"`
	Title   string `json:"title"`
	Body    string `json:"body"`
	HTMLURL string `json:"html_url"`
	State   string `json:"state"`
}

// Hook is a repository webhook.
type Hook struct {
	ID     int64             `json:"id"`
	Type   string            `json:"type"`
	Active bool              `json:"active"`
	Events []string          `json:"events"`
	Config map[string]string `json:"config"`
}

// RepoCommit is one entry of a repository's commit listing.
type RepoCommit struct {
	SHA     string `json:"sha"`
	HTMLURL string `json:"html_url"`
	Commit  struct {
		Message string `json:"message"`
		Author  struct {
			Name  string `json:"name"`
			Email string `json:"email"`
			Date  string `json:"date"`
		} `json:"author"`
	} `json:"commit"`
}

// GetUser returns the authenticated user.
func (c *Client) GetUser(ctx context.Context) (*User, error) {
	var user User
	if err := c.do(ctx, http.MethodGet, pathUser, nil, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ListRepos returns the repositories visible to the authenticated user.
func (c *Client) ListRepos(ctx context.Context) ([]Repo, error) {
	var repos []Repo
	if err := c.do(ctx, http.MethodGet, pathUserRepos, nil, nil, &repos); err != nil {
		return nil, err
	}
	return repos, nil
}

// GetRepo returns one repository by full name ("owner/name").
func (c *Client) GetRepo(ctx context.Context, fullName string) (*Repo, error) {
	var repo Repo
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf(pathRepo, fullName), nil, nil, &repo); err != nil {
		return nil, err
	}
	return &repo, nil
}

// GetIssue returns one issue by repository and index.
func (c *Client) GetIssue(ctx context.Context, fullName string, index int64) (*Issue, error) {
	var issue Issue
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf(pathIssue, fullName, index), nil, nil, &issue); err != nil {
		return nil, err
	}
	return &issue, nil
}

// CreateIssue opens an issue on a repository.
func (c *Client) CreateIssue(ctx context.Context, fullName, title, body string) (*Issue, error) {
	payload := map[string]string{"title": title, "body": body}
	var issue Issue
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf(pathIssues, fullName), nil, payload, &issue); err != nil {
		return nil, err
	}
	return &issue, nil
}

// CreateIssueComment posts a comment on an existing issue.
func (c *Client) CreateIssueComment(ctx context.Context, fullName string, index int64, body string) error {
	payload := map[string]string{"body": body}
	return c.do(ctx, http.MethodPost, fmt.Sprintf(pathComments, fullName, index), nil, payload, nil)
}

// SearchIssues searches a repository's issues.
func (c *Client) SearchIssues(ctx context.Context, fullName, query string) ([]Issue, error) {
	params := url.Values{}
	if query != "" {
		params.Set("q", query)
	}
	var issues []Issue
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf(pathIssues, fullName), params, nil, &issues); err != nil {
		return nil, err
	}
	return issues, nil
}

// HookOptions configure a webhook registration.
type HookOptions struct {
	// URL is the externally reachable delivery endpoint.
	URL string

	// Secret is the composite "<external_id>#<webhook_secret>" the receiver
	// verifies deliveries against.
	Secret string
}

// CreateRepoHook registers the delivery webhook on a repository and returns
// the provider-side hook id.
func (c *Client) CreateRepoHook(ctx context.Context, fullName string, opts HookOptions) (int64, error) {
	payload := map[string]any{
		"type":   "gitea",
		"events": []string{"push", "pull_request"},
		"active": true,
		"config": map[string]string{
			"url":          opts.URL,
			"content_type": "json",
			"secret":       opts.Secret,
		},
	}
	var hook Hook
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf(pathRepoHooks, fullName), nil, payload, &hook); err != nil {
		return 0, err
	}
	return hook.ID, nil
}

// DeleteRepoHook removes a webhook from a repository.
func (c *Client) DeleteRepoHook(ctx context.Context, fullName string, hookID int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf(pathRepoHook, fullName, hookID), nil, nil, nil)
}

// ListCommits returns the most recent commits of a repository.
func (c *Client) ListCommits(ctx context.Context, fullName string) ([]RepoCommit, error) {
	var commits []RepoCommit
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf(pathCommits, fullName), nil, nil, &commits); err != nil {
		return nil, err
	}
	return commits, nil
}
