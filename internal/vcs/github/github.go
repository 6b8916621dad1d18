// Package github implements interfaces.CommentCapability against GitHub's
// REST API via google/go-github, grounded on the teacher pack's own
// go/github client (google-skia-buildbot): a thin oauth2-authenticated
// wrapper exposing exactly the handful of calls the caller needs.
package github

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"

	"github.com/google/go-github/v29/github"
	"golang.org/x/oauth2"

	"github.com/railyard-run/railyard/internal/interfaces"
)

// prLinkPattern matches the PR links this repo's CommentCapability deals
// with: https://github.com/<owner>/<repo>/pull/<number>.
var prLinkPattern = regexp.MustCompile(`github\.com/([^/]+)/([^/]+)/pull/(\d+)`)

// Client implements interfaces.CommentCapability over a single GitHub
// installation token.
type Client struct {
	gh *github.Client
}

// New constructs a Client authenticated with a personal access or
// installation token, the same oauth2.StaticTokenSource pattern the
// example pack uses wherever it talks to a token-authenticated REST API.
func New(ctx context.Context, token string) *Client {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	httpClient := oauth2.NewClient(ctx, ts)
	return &Client{gh: github.NewClient(httpClient)}
}

// NewWithHTTPClient constructs a Client over a caller-supplied http.Client,
// used by tests to inject a mock transport without minting real tokens.
func NewWithHTTPClient(httpClient *http.Client) *Client {
	return &Client{gh: github.NewClient(httpClient)}
}

func parsePRLink(prLink string) (owner, repo string, number int, err error) {
	m := prLinkPattern.FindStringSubmatch(prLink)
	if m == nil {
		return "", "", 0, fmt.Errorf("pr link %q is not a recognized github pull request url", prLink)
	}
	number, err = strconv.Atoi(m[3])
	if err != nil {
		return "", "", 0, fmt.Errorf("pr link %q: invalid pull request number: %w", prLink, err)
	}
	return m[1], m[2], number, nil
}

// ListComments returns every issue comment on the pull request prLink
// points at. GitHub models PR comments as issue comments on the PR's issue
// number, so this calls the Issues API rather than the PullRequests API.
func (c *Client) ListComments(ctx context.Context, prLink string) ([]interfaces.Comment, error) {
	owner, repo, number, err := parsePRLink(prLink)
	if err != nil {
		return nil, err
	}

	raw, _, err := c.gh.Issues.ListComments(ctx, owner, repo, number, nil)
	if err != nil {
		return nil, fmt.Errorf("list comments on %s: %w", prLink, err)
	}

	comments := make([]interfaces.Comment, 0, len(raw))
	for _, rc := range raw {
		if rc.ID == nil {
			continue
		}
		body := ""
		if rc.Body != nil {
			body = *rc.Body
		}
		comments = append(comments, interfaces.Comment{ID: *rc.ID, Body: body})
	}
	return comments, nil
}

// CreateComment posts a new issue comment on the pull request.
func (c *Client) CreateComment(ctx context.Context, prLink, body string) error {
	owner, repo, number, err := parsePRLink(prLink)
	if err != nil {
		return err
	}

	_, _, err = c.gh.Issues.CreateComment(ctx, owner, repo, number, &github.IssueComment{Body: &body})
	if err != nil {
		return fmt.Errorf("create comment on %s: %w", prLink, err)
	}
	return nil
}

// UpdateComment edits an existing issue comment in place, used when the
// caller re-runs the same run and wants to refresh its status block rather
// than posting a duplicate.
func (c *Client) UpdateComment(ctx context.Context, prLink string, commentID int64, body string) error {
	owner, repo, _, err := parsePRLink(prLink)
	if err != nil {
		return err
	}

	_, _, err = c.gh.Issues.EditComment(ctx, owner, repo, commentID, &github.IssueComment{Body: &body})
	if err != nil {
		return fmt.Errorf("update comment %d on %s: %w", commentID, prLink, err)
	}
	return nil
}
