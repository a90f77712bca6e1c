// Package github fetches repository metadata used as chat context:
// the repo descriptor, recent open pull requests and issues, and a README excerpt.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"regexp"
	"strings"

	gh "github.com/google/go-github/v66/github"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/Viktorfalkner/roots-product-helper/internal/errors"
	"github.com/Viktorfalkner/roots-product-helper/internal/plan"
)

const (
	// TokenEnv names the optional token; anonymous requests work for public repos.
	TokenEnv = "GITHUB_TOKEN"

	// ListLimit caps open PRs and issues per repo.
	ListLimit = 10

	// ReadmeLimit caps the decoded README excerpt, in characters.
	ReadmeLimit = 800
)

// Client wraps a go-github client.
type Client struct {
	gh *gh.Client
}

// New creates a client. token may be empty.
func New(token string) *Client {
	c := gh.NewClient(nil)
	if token = strings.TrimSpace(token); token != "" {
		c = c.WithAuthToken(token)
	}
	return &Client{gh: c}
}

// NewFromEnv creates a client using GITHUB_TOKEN when set.
func NewFromEnv() *Client {
	return New(os.Getenv(TokenEnv))
}

// NewWithClient wraps an existing go-github client (tests point its BaseURL at httptest).
func NewWithClient(c *gh.Client) *Client {
	return &Client{gh: c}
}

// RepoContext fetches the repo, open PRs, open issues (excluding PRs) and the
// README excerpt in parallel. A missing README is tolerated; any other
// failure is returned as UPSTREAM_ERROR.
func (c *Client) RepoContext(ctx context.Context, owner, name string) (*plan.Repo, error) {
	var (
		repo   *gh.Repository
		prs    []*gh.PullRequest
		issues []*gh.Issue
		readme string
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		r, _, err := c.gh.Repositories.Get(gctx, owner, name)
		if err != nil {
			return upstream(err, fmt.Sprintf("/repos/%s/%s", owner, name))
		}
		repo = r
		return nil
	})

	g.Go(func() error {
		list, _, err := c.gh.PullRequests.List(gctx, owner, name, &gh.PullRequestListOptions{
			State:       "open",
			Sort:        "updated",
			Direction:   "desc",
			ListOptions: gh.ListOptions{PerPage: ListLimit},
		})
		if err != nil {
			return upstream(err, fmt.Sprintf("/repos/%s/%s/pulls", owner, name))
		}
		prs = list
		return nil
	})

	g.Go(func() error {
		list, _, err := c.gh.Issues.ListByRepo(gctx, owner, name, &gh.IssueListByRepoOptions{
			State:       "open",
			Sort:        "updated",
			Direction:   "desc",
			ListOptions: gh.ListOptions{PerPage: ListLimit},
		})
		if err != nil {
			return upstream(err, fmt.Sprintf("/repos/%s/%s/issues", owner, name))
		}
		issues = list
		return nil
	})

	g.Go(func() error {
		content, _, err := c.gh.Repositories.GetReadme(gctx, owner, name, nil)
		if err != nil {
			return nil
		}
		text, err := content.GetContent()
		if err != nil {
			return nil
		}
		readme = truncateRunes(text, ReadmeLimit)
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &plan.Repo{
		Owner:       owner,
		Name:        name,
		FullName:    repo.GetFullName(),
		Description: repo.GetDescription(),
		Readme:      readme,
		OpenPRs:     []plan.PullRequest{},
		OpenIssues:  []plan.Issue{},
	}
	if out.FullName == "" {
		out.FullName = owner + "/" + name
	}

	for _, pr := range prs {
		if len(out.OpenPRs) == ListLimit {
			break
		}
		out.OpenPRs = append(out.OpenPRs, plan.PullRequest{
			Number: pr.GetNumber(),
			Title:  pr.GetTitle(),
			User:   pr.GetUser().GetLogin(),
		})
	}
	for _, issue := range issues {
		if issue.IsPullRequest() {
			continue
		}
		if len(out.OpenIssues) == ListLimit {
			break
		}
		out.OpenIssues = append(out.OpenIssues, plan.Issue{
			Number: issue.GetNumber(),
			Title:  issue.GetTitle(),
		})
	}

	return out, nil
}

func upstream(err error, path string) error {
	var ghErr *gh.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		return apperrors.NewUpstream("GitHub", http.MethodGet, path, ghErr.Response.StatusCode, ghErr.Message)
	}
	return fmt.Errorf("GitHub API %s: %w", path, err)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

var repoURLRe = regexp.MustCompile(`github\.com/([^/]+)/([^/\s]+)`)

// ParseRepo accepts "owner/repo" or a GitHub URL; a trailing ".git" is stripped.
func ParseRepo(input string) (owner, name string, err error) {
	s := strings.TrimSpace(input)
	if m := repoURLRe.FindStringSubmatch(s); m != nil {
		return m[1], strings.TrimSuffix(m[2], ".git"), nil
	}
	parts := strings.Split(s, "/")
	if len(parts) == 2 && parts[0] != "" && parts[1] != "" {
		return parts[0], parts[1], nil
	}
	return "", "", apperrors.NewInvalidRequest(fmt.Sprintf("Invalid repo %q: use owner/repo or a GitHub URL", input))
}
