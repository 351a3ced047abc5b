package github

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	gh "github.com/google/go-github/v45/github"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	v1 "github.com/milvus-io/cherry-pick-check/pkg/apis/cherrypick/v1"
	"github.com/milvus-io/cherry-pick-check/pkg/util"
)

const (
	pageSize = 100

	// how long we are willing to sit out a quota reset before giving up on
	// the run
	maxRateLimitWait = 2 * time.Minute

	// transient failures (5xx, timeouts, bad payloads) are retried this many
	// times before the operation surfaces a TransientFetchError
	maxRetries    = 3
	retryInterval = 500 * time.Millisecond

	// minimum spacing between outbound calls; the search API budget is small
	defaultPace = 200 * time.Millisecond
)

// Client wraps the GitHub API with transparent pagination, a shared pacing
// gate, bounded rate-limit waits and bounded transient retries. The raw API
// calls are function fields so tests can run without a network.
type Client struct {
	limiter       *util.RateLimiter
	retryInterval time.Duration
	sleep         func(ctx context.Context, d time.Duration) error

	searchIssues  func(ctx context.Context, query string, page int) ([]*gh.Issue, int, error)
	prFetch       func(ctx context.Context, owner, repo string, number int) (*gh.PullRequest, error)
	branchesFetch func(ctx context.Context, owner, repo string, page int) ([]*gh.Branch, int, error)
}

// New builds a Client on top of httpClient, which should come from
// NewAuthenticatedHTTPClient. A nil httpClient yields an unauthenticated
// client with a very small quota.
func New(httpClient *http.Client) *Client {
	ghc := gh.NewClient(httpClient)

	c := &Client{
		limiter:       util.NewRateLimiter(defaultPace),
		retryInterval: retryInterval,
		sleep:         sleepContext,
	}

	c.searchIssues = func(ctx context.Context, query string, page int) ([]*gh.Issue, int, error) {
		opts := &gh.SearchOptions{
			ListOptions: gh.ListOptions{Page: page, PerPage: pageSize},
		}
		result, resp, err := ghc.Search.Issues(ctx, query, opts)
		if err != nil {
			return nil, 0, err
		}
		return result.Issues, resp.NextPage, nil
	}

	c.prFetch = func(ctx context.Context, owner, repo string, number int) (*gh.PullRequest, error) {
		pr, _, err := ghc.PullRequests.Get(ctx, owner, repo, number)
		return pr, err
	}

	c.branchesFetch = func(ctx context.Context, owner, repo string, page int) ([]*gh.Branch, int, error) {
		opts := &gh.BranchListOptions{
			ListOptions: gh.ListOptions{Page: page, PerPage: pageSize},
		}
		branches, resp, err := ghc.Repositories.ListBranches(ctx, owner, repo, opts)
		if err != nil {
			return nil, 0, err
		}
		return branches, resp.NextPage, nil
	}

	return c
}

// Close releases the pacing gate.
func (c *Client) Close() {
	c.limiter.Close()
}

// ListUserPullRequests returns PRs authored by author against baseBranch,
// merged PRs first and then open ones, each created/merged on or after since
// when it is set.
func (c *Client) ListUserPullRequests(ctx context.Context, repo, author, baseBranch string, since *time.Time, includeOpen bool) ([]v1.PullRequest, error) {
	if _, _, err := splitRepo(repo); err != nil {
		return nil, err
	}

	query := fmt.Sprintf("repo:%s is:pr is:merged author:%s base:%s", repo, author, baseBranch)
	if since != nil {
		query += fmt.Sprintf(" merged:>=%s", since.Format("2006-01-02"))
	}
	prs, err := c.searchPullRequests(ctx, query, baseBranch, true)
	if err != nil {
		return nil, err
	}

	if includeOpen {
		query = fmt.Sprintf("repo:%s is:pr is:open author:%s base:%s", repo, author, baseBranch)
		if since != nil {
			query += fmt.Sprintf(" created:>=%s", since.Format("2006-01-02"))
		}
		open, err := c.searchPullRequests(ctx, query, baseBranch, false)
		if err != nil {
			return nil, err
		}
		prs = append(prs, open...)
	}

	return prs, nil
}

// SearchReferencingPullRequests returns PRs whose body mentions prNumber.
// These are cherry-pick candidates; the matcher decides which ones count.
func (c *Client) SearchReferencingPullRequests(ctx context.Context, repo string, prNumber int) ([]v1.ReferencingPullRequest, error) {
	if _, _, err := splitRepo(repo); err != nil {
		return nil, err
	}
	query := fmt.Sprintf("repo:%s is:pr %d in:body", repo, prNumber)

	var out []v1.ReferencingPullRequest
	page := 1
	for page != 0 {
		var converted []v1.ReferencingPullRequest
		var next int
		err := c.do(ctx, fmt.Sprintf("search referencing PRs for #%d", prNumber), func() error {
			items, n, err := c.searchIssues(ctx, query, page)
			if err != nil {
				return err
			}
			refs := make([]v1.ReferencingPullRequest, 0, len(items))
			for _, item := range items {
				ref, err := referencingFromIssue(item)
				if err != nil {
					return err
				}
				refs = append(refs, ref)
			}
			converted, next = refs, n
			return nil
		})
		if err != nil {
			return nil, err
		}
		out = append(out, converted...)
		page = next
	}
	return out, nil
}

// GetPullRequest returns the full record for one PR, including the branch it
// targets.
func (c *Client) GetPullRequest(ctx context.Context, repo string, prNumber int) (v1.PullRequest, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return v1.PullRequest{}, err
	}

	var out v1.PullRequest
	err = c.do(ctx, fmt.Sprintf("get PR #%d", prNumber), func() error {
		pr, err := c.prFetch(ctx, owner, name, prNumber)
		if err != nil {
			return err
		}
		out, err = pullRequestFromDetail(pr)
		return err
	})
	return out, err
}

// ListBranches returns every branch name in the repository.
func (c *Client) ListBranches(ctx context.Context, repo string) ([]string, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}

	var out []string
	page := 1
	for page != 0 {
		var names []string
		var next int
		err := c.do(ctx, "list branches", func() error {
			branches, n, err := c.branchesFetch(ctx, owner, name, page)
			if err != nil {
				return err
			}
			converted := make([]string, 0, len(branches))
			for _, b := range branches {
				if b.GetName() == "" {
					return &MalformedResponseError{Reason: "branch entry missing name"}
				}
				converted = append(converted, b.GetName())
			}
			names, next = converted, n
			return nil
		})
		if err != nil {
			return nil, err
		}
		out = append(out, names...)
		page = next
	}
	return out, nil
}

func (c *Client) searchPullRequests(ctx context.Context, query, baseBranch string, merged bool) ([]v1.PullRequest, error) {
	var out []v1.PullRequest
	page := 1
	for page != 0 {
		var converted []v1.PullRequest
		var next int
		err := c.do(ctx, fmt.Sprintf("search %q", query), func() error {
			items, n, err := c.searchIssues(ctx, query, page)
			if err != nil {
				return err
			}
			prs := make([]v1.PullRequest, 0, len(items))
			for _, item := range items {
				pr, err := pullRequestFromIssue(item, baseBranch, merged)
				if err != nil {
					return err
				}
				prs = append(prs, pr)
			}
			converted, next = prs, n
			return nil
		})
		if err != nil {
			return nil, err
		}
		out = append(out, converted...)
		page = next
	}
	return out, nil
}

// do runs one API operation through the pacing gate with the retry and
// rate-limit policy applied. A quota reset within maxRateLimitWait is waited
// out once; a longer reset fails the run with a RateLimitError. Transient
// failures get maxRetries attempts with short backoff.
func (c *Client) do(ctx context.Context, op string, fn func() error) error {
	waitedForReset := false

	bo := backoff.WithMaxRetries(backoff.NewConstantBackOff(c.retryInterval), maxRetries)
	err := backoff.Retry(func() error {
		if err := c.limiter.Tick(ctx); err != nil {
			return backoff.Permanent(err)
		}

		err := fn()
		c.limiter.UpdateRate(err != nil)
		if err == nil {
			return nil
		}

		var rateLimited *gh.RateLimitError
		if errors.As(err, &rateLimited) {
			resetAt := rateLimited.Rate.Reset.Time
			return c.waitForReset(ctx, resetAt, &waitedForReset, err)
		}
		var abuseLimited *gh.AbuseRateLimitError
		if errors.As(err, &abuseLimited) {
			resetAt := time.Now().Add(abuseLimited.GetRetryAfter())
			return c.waitForReset(ctx, resetAt, &waitedForReset, err)
		}

		var ghErr *gh.ErrorResponse
		if errors.As(err, &ghErr) && ghErr.Response != nil &&
			ghErr.Response.StatusCode >= 400 && ghErr.Response.StatusCode < 500 {
			// not-found and friends won't get better on retry
			return backoff.Permanent(err)
		}

		log.WithError(err).Debugf("retrying %s", op)
		return err
	}, backoff.WithContext(bo, ctx))

	if err == nil || IsRunFatal(err) {
		return err
	}
	return &TransientFetchError{Op: op, Err: err}
}

// waitForReset suspends the operation until the quota resets, but only once
// per operation and only when the reset is close enough.
func (c *Client) waitForReset(ctx context.Context, resetAt time.Time, waited *bool, err error) error {
	delay := time.Until(resetAt) + time.Second
	if *waited || delay > maxRateLimitWait {
		return backoff.Permanent(&RateLimitError{ResetAt: resetAt})
	}
	*waited = true

	log.Warnf("GitHub rate limit reached, waiting %s for reset", delay.Round(time.Second))
	if serr := c.sleep(ctx, delay); serr != nil {
		return backoff.Permanent(serr)
	}
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func splitRepo(repo string) (string, string, error) {
	parts := strings.Split(repo, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", errors.Errorf("invalid repository %q, expected owner/repo", repo)
	}
	return parts[0], parts[1], nil
}

func pullRequestFromIssue(item *gh.Issue, baseBranch string, merged bool) (v1.PullRequest, error) {
	if item == nil || item.Number == nil || item.Title == nil || item.HTMLURL == nil || item.User.GetLogin() == "" {
		return v1.PullRequest{}, &MalformedResponseError{Reason: "search item missing required pull request fields"}
	}

	pr := v1.PullRequest{
		Number:     item.GetNumber(),
		Title:      item.GetTitle(),
		URL:        item.GetHTMLURL(),
		Author:     item.User.GetLogin(),
		BaseBranch: baseBranch,
	}
	if item.CreatedAt != nil {
		t := *item.CreatedAt
		pr.CreatedAt = &t
	}

	switch {
	case merged:
		pr.State = v1.PullRequestMerged
		// search payloads carry no merged_at; a merged PR is closed at its
		// merge time
		if item.ClosedAt != nil {
			t := *item.ClosedAt
			pr.MergedAt = &t
		}
	case item.GetState() == "open":
		pr.State = v1.PullRequestOpen
	default:
		pr.State = v1.PullRequestClosed
	}

	return pr, nil
}

func pullRequestFromDetail(pr *gh.PullRequest) (v1.PullRequest, error) {
	if pr == nil || pr.Number == nil || pr.Title == nil || pr.HTMLURL == nil ||
		pr.User.GetLogin() == "" || pr.Base == nil || pr.Base.Ref == nil {
		return v1.PullRequest{}, &MalformedResponseError{Reason: "pull request detail missing required fields"}
	}

	out := v1.PullRequest{
		Number:     pr.GetNumber(),
		Title:      pr.GetTitle(),
		URL:        pr.GetHTMLURL(),
		Author:     pr.User.GetLogin(),
		BaseBranch: pr.Base.GetRef(),
	}
	if pr.CreatedAt != nil {
		t := *pr.CreatedAt
		out.CreatedAt = &t
	}

	switch {
	case pr.MergedAt != nil:
		out.State = v1.PullRequestMerged
		t := *pr.MergedAt
		out.MergedAt = &t
	case pr.GetState() == "open":
		out.State = v1.PullRequestOpen
	default:
		out.State = v1.PullRequestClosed
	}

	return out, nil
}

func referencingFromIssue(item *gh.Issue) (v1.ReferencingPullRequest, error) {
	if item == nil || item.Number == nil {
		return v1.ReferencingPullRequest{}, &MalformedResponseError{Reason: "search item missing pull request number"}
	}
	return v1.ReferencingPullRequest{
		Number: item.GetNumber(),
		Body:   item.GetBody(),
	}, nil
}
