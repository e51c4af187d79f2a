package gitea

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
)

// issueRefPattern matches "owner/repo#index" issue references.
var issueRefPattern = regexp.MustCompile(`^([^#\s/]+/[^#\s/]+)#(\d+)$`)

// IssueRef identifies an issue across repositories as "owner/repo#index".
type IssueRef struct {
	Repo  string
	Index int64
}

func (r IssueRef) String() string {
	return fmt.Sprintf("%s#%d", r.Repo, r.Index)
}

// ParseIssueRef parses an "owner/repo#index" reference.
func ParseIssueRef(s string) (IssueRef, error) {
	m := issueRefPattern.FindStringSubmatch(s)
	if m == nil {
		return IssueRef{}, fmt.Errorf("invalid issue reference %q", s)
	}
	index, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return IssueRef{}, fmt.Errorf("invalid issue index in %q: %w", s, err)
	}
	return IssueRef{Repo: m[1], Index: index}, nil
}

// LinkComment formats the comment posted on a provider issue when it is
// linked to an external record.
func LinkComment(label, url string) string {
	return fmt.Sprintf("Linked issue: [%s](%s)", label, url)
}

// CreateLinkedIssue opens a provider issue and returns its cross-repository
// reference alongside the issue itself.
func (c *Client) CreateLinkedIssue(ctx context.Context, repo, title, body string) (IssueRef, *Issue, error) {
	issue, err := c.CreateIssue(ctx, repo, title, body)
	if err != nil {
		return IssueRef{}, nil, fmt.Errorf("create issue on %s: %w", repo, err)
	}
	return IssueRef{Repo: repo, Index: issue.Index}, issue, nil
}

// LinkExistingIssue posts a link comment on an already existing issue. An
// empty comment is a no-op, matching the optional comment of the linking
// flow.
func (c *Client) LinkExistingIssue(ctx context.Context, ref IssueRef, comment string) error {
	if comment == "" {
		return nil
	}
	if err := c.CreateIssueComment(ctx, ref.Repo, ref.Index, comment); err != nil {
		return fmt.Errorf("comment on %s: %w", ref.String(), err)
	}
	return nil
}

// GetIssueByRef fetches the issue behind a reference.
func (c *Client) GetIssueByRef(ctx context.Context, ref IssueRef) (*Issue, error) {
	issue, err := c.GetIssue(ctx, ref.Repo, ref.Index)
	if err != nil {
		return nil, fmt.Errorf("get issue %s: %w", ref.String(), err)
	}
	return issue, nil
}
