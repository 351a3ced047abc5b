package cherrypick

import (
	"context"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"

	v1 "github.com/milvus-io/cherry-pick-check/pkg/apis/cherrypick/v1"
	"github.com/milvus-io/cherry-pick-check/pkg/github"
)

// Client is the slice of the GitHub client the detector needs. Tests provide
// fakes.
type Client interface {
	ListUserPullRequests(ctx context.Context, repo, author, baseBranch string, since *time.Time, includeOpen bool) ([]v1.PullRequest, error)
	SearchReferencingPullRequests(ctx context.Context, repo string, prNumber int) ([]v1.ReferencingPullRequest, error)
	GetPullRequest(ctx context.Context, repo string, prNumber int) (v1.PullRequest, error)
	ListBranches(ctx context.Context, repo string) ([]string, error)
}

// Detector finds the cherry-pick status of source PRs against target release
// branches. One referencing-PR search runs per source PR and one detail fetch
// per candidate, both cached for the run; pairs are otherwise independent and
// a failure on one pair never aborts the run.
type Detector struct {
	client  Client
	matcher *Matcher
}

func NewDetector(client Client) *Detector {
	return &Detector{
		client:  client,
		matcher: NewMatcher(),
	}
}

// SourcePullRequests returns the PRs authored by author on baseBranch whose
// cherry-pick status should be checked.
func (d *Detector) SourcePullRequests(ctx context.Context, repo, author, baseBranch string, since *time.Time, includeOpen bool) ([]v1.PullRequest, error) {
	return d.client.ListUserPullRequests(ctx, repo, author, baseBranch, since, includeOpen)
}

// Detect resolves every (source PR, target branch) pair to exactly one
// Result, in source order then target order. Cancellation is honored between
// source PRs, never mid-call.
func (d *Detector) Detect(ctx context.Context, repo string, sources []v1.PullRequest, targets []string) ([]v1.Result, error) {
	details := make(map[int]*v1.PullRequest)

	results := make([]v1.Result, 0, len(sources)*len(targets))
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pairResults, err := d.detectForSource(ctx, repo, src, targets, details)
		if err != nil {
			return nil, err
		}
		results = append(results, pairResults...)
	}
	return results, nil
}

// detectForSource resolves all target branches for one source PR. The
// returned error is only ever run-fatal (rate limit ceiling, cancellation);
// everything else degrades to per-pair unknown results.
func (d *Detector) detectForSource(ctx context.Context, repo string, src v1.PullRequest, targets []string, details map[int]*v1.PullRequest) ([]v1.Result, error) {
	logger := log.WithField("pr", src.Number)

	candidates, err := d.client.SearchReferencingPullRequests(ctx, repo, src.Number)
	if err != nil {
		if github.IsRunFatal(err) {
			return nil, err
		}
		logger.WithError(err).Warn("referencing-PR search failed, marking all target branches unknown")
		return unknownResults(src, targets), nil
	}

	// lowest PR number wins when several candidates target the same branch;
	// the earliest backport attempt is the interesting one
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Number < candidates[j].Number
	})

	wanted := make(map[string]bool, len(targets))
	for _, t := range targets {
		wanted[t] = true
	}

	picked := make(map[string]*v1.PullRequest)
	methods := make(map[string]string)
	detailFetchFailed := false

	for _, cand := range candidates {
		if cand.Number == src.Number {
			continue
		}
		method, ok := d.matcher.Match(cand.Body, src.Number)
		if !ok {
			continue
		}

		detail, cached := details[cand.Number]
		if !cached {
			fetched, err := d.client.GetPullRequest(ctx, repo, cand.Number)
			if err != nil {
				if github.IsRunFatal(err) {
					return nil, err
				}
				logger.WithError(err).WithField("candidate", cand.Number).Warn("candidate detail fetch failed")
				detailFetchFailed = true
				continue
			}
			detail = &fetched
			details[cand.Number] = detail
		}

		if !wanted[detail.BaseBranch] {
			continue
		}
		if _, taken := picked[detail.BaseBranch]; taken {
			continue
		}
		picked[detail.BaseBranch] = detail
		methods[detail.BaseBranch] = method
		logger.WithField("candidate", cand.Number).Debugf("cherry-pick found on %s via %s", detail.BaseBranch, method)
	}

	results := make([]v1.Result, 0, len(targets))
	for _, target := range targets {
		switch {
		case picked[target] != nil:
			results = append(results, v1.Result{
				SourcePR:        src,
				TargetBranch:    target,
				Status:          v1.StatusPicked,
				RelatedPR:       picked[target],
				DetectionMethod: methods[target],
			})
		case detailFetchFailed:
			// a candidate with an unknown base branch could have targeted
			// this branch, so absence is not proven
			results = append(results, v1.Result{
				SourcePR:     src,
				TargetBranch: target,
				Status:       v1.StatusUnknown,
			})
		default:
			results = append(results, v1.Result{
				SourcePR:     src,
				TargetBranch: target,
				Status:       v1.StatusNotPicked,
			})
		}
	}
	return results, nil
}

func unknownResults(src v1.PullRequest, targets []string) []v1.Result {
	results := make([]v1.Result, 0, len(targets))
	for _, target := range targets {
		results = append(results, v1.Result{
			SourcePR:     src,
			TargetBranch: target,
			Status:       v1.StatusUnknown,
		})
	}
	return results
}
