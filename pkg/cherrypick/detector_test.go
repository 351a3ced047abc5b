package cherrypick

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/milvus-io/cherry-pick-check/pkg/apis/cherrypick/v1"
	"github.com/milvus-io/cherry-pick-check/pkg/github"
)

type fakeClient struct {
	refs      map[int][]v1.ReferencingPullRequest
	refsErr   map[int]error
	details   map[int]v1.PullRequest
	detailErr map[int]error

	searchCalls map[int]int
	detailCalls map[int]int
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		refs:        map[int][]v1.ReferencingPullRequest{},
		refsErr:     map[int]error{},
		details:     map[int]v1.PullRequest{},
		detailErr:   map[int]error{},
		searchCalls: map[int]int{},
		detailCalls: map[int]int{},
	}
}

func (f *fakeClient) ListUserPullRequests(_ context.Context, _, _, _ string, _ *time.Time, _ bool) ([]v1.PullRequest, error) {
	return nil, nil
}

func (f *fakeClient) SearchReferencingPullRequests(_ context.Context, _ string, prNumber int) ([]v1.ReferencingPullRequest, error) {
	f.searchCalls[prNumber]++
	if err := f.refsErr[prNumber]; err != nil {
		return nil, err
	}
	return f.refs[prNumber], nil
}

func (f *fakeClient) GetPullRequest(_ context.Context, _ string, prNumber int) (v1.PullRequest, error) {
	f.detailCalls[prNumber]++
	if err := f.detailErr[prNumber]; err != nil {
		return v1.PullRequest{}, err
	}
	return f.details[prNumber], nil
}

func (f *fakeClient) ListBranches(_ context.Context, _ string) ([]string, error) {
	return nil, nil
}

func sourcePR(number int) v1.PullRequest {
	return v1.PullRequest{
		Number:     number,
		Title:      "fix something",
		URL:        "https://github.com/milvus-io/milvus/pull/100",
		Author:     "zhuwenxing",
		State:      v1.PullRequestMerged,
		BaseBranch: "master",
	}
}

func relatedPR(number int, baseBranch string) v1.PullRequest {
	return v1.PullRequest{
		Number:     number,
		Title:      "backport",
		URL:        "https://github.com/milvus-io/milvus/pull/250",
		Author:     "zhuwenxing",
		State:      v1.PullRequestMerged,
		BaseBranch: baseBranch,
	}
}

func TestDetect(t *testing.T) {
	fake := newFakeClient()
	// #100 has no referencing PRs; #200 is picked to 2.6 by #250
	fake.refs[200] = []v1.ReferencingPullRequest{{Number: 250, Body: "pr: #200"}}
	fake.details[250] = relatedPR(250, "2.6")

	d := NewDetector(fake)
	results, err := d.Detect(context.Background(), "milvus-io/milvus",
		[]v1.PullRequest{sourcePR(100), sourcePR(200)}, []string{"2.6"})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, 100, results[0].SourcePR.Number)
	assert.Equal(t, v1.StatusNotPicked, results[0].Status)
	assert.Nil(t, results[0].RelatedPR)

	assert.Equal(t, 200, results[1].SourcePR.Number)
	assert.Equal(t, "2.6", results[1].TargetBranch)
	assert.Equal(t, v1.StatusPicked, results[1].Status)
	require.NotNil(t, results[1].RelatedPR)
	assert.Equal(t, 250, results[1].RelatedPR.Number)
	assert.Equal(t, "pr-prefix", results[1].DetectionMethod)
}

func TestDetectOneSearchPerSourcePR(t *testing.T) {
	fake := newFakeClient()
	fake.refs[200] = []v1.ReferencingPullRequest{{Number: 250, Body: "pr: #200"}}
	fake.details[250] = relatedPR(250, "2.6")

	d := NewDetector(fake)
	_, err := d.Detect(context.Background(), "milvus-io/milvus",
		[]v1.PullRequest{sourcePR(200)}, []string{"2.6", "2.5", "2.4"})
	require.NoError(t, err)

	// the search is independent of the target branch
	assert.Equal(t, 1, fake.searchCalls[200])
	assert.Equal(t, 1, fake.detailCalls[250])
}

func TestDetectTieBreakLowestNumber(t *testing.T) {
	fake := newFakeClient()
	// candidates arrive out of order; the lowest PR number must win
	fake.refs[200] = []v1.ReferencingPullRequest{
		{Number: 260, Body: "pr: #200"},
		{Number: 250, Body: "pr: #200"},
	}
	fake.details[250] = relatedPR(250, "2.6")
	fake.details[260] = relatedPR(260, "2.6")

	d := NewDetector(fake)
	results, err := d.Detect(context.Background(), "milvus-io/milvus",
		[]v1.PullRequest{sourcePR(200)}, []string{"2.6"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.NotNil(t, results[0].RelatedPR)
	assert.Equal(t, 250, results[0].RelatedPR.Number)
}

func TestDetectSkipsSelfAndNonMatching(t *testing.T) {
	fake := newFakeClient()
	fake.refs[200] = []v1.ReferencingPullRequest{
		{Number: 200, Body: "pr: #200"},            // the source itself
		{Number: 240, Body: "discussed in #200"},   // bare mention, no match
		{Number: 245, Body: "pr: #2001"},           // different PR
	}
	fake.details[240] = relatedPR(240, "2.6")
	fake.details[245] = relatedPR(245, "2.6")

	d := NewDetector(fake)
	results, err := d.Detect(context.Background(), "milvus-io/milvus",
		[]v1.PullRequest{sourcePR(200)}, []string{"2.6"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, v1.StatusNotPicked, results[0].Status)
	// non-matching candidates never get a detail fetch
	assert.Empty(t, fake.detailCalls)
}

func TestDetectPairIsolation(t *testing.T) {
	fake := newFakeClient()
	// #100 is cleanly picked to 2.5
	fake.refs[100] = []v1.ReferencingPullRequest{{Number: 150, Body: "pr: #100"}}
	fake.details[150] = relatedPR(150, "2.5")
	// #200 is picked to 2.6, but the 2.5 backport's detail fetch keeps failing
	fake.refs[200] = []v1.ReferencingPullRequest{
		{Number: 250, Body: "pr: #200"},
		{Number: 251, Body: "pr: #200"},
	}
	fake.details[250] = relatedPR(250, "2.6")
	fake.detailErr[251] = &github.TransientFetchError{Op: "get PR #251"}

	d := NewDetector(fake)
	results, err := d.Detect(context.Background(), "milvus-io/milvus",
		[]v1.PullRequest{sourcePR(100), sourcePR(200)}, []string{"2.6", "2.5"})
	require.NoError(t, err)
	require.Len(t, results, 4)

	byPair := map[[2]interface{}]v1.Result{}
	for _, r := range results {
		byPair[[2]interface{}{r.SourcePR.Number, r.TargetBranch}] = r
	}

	assert.Equal(t, v1.StatusNotPicked, byPair[[2]interface{}{100, "2.6"}].Status)
	assert.Equal(t, v1.StatusPicked, byPair[[2]interface{}{100, "2.5"}].Status)
	assert.Equal(t, v1.StatusPicked, byPair[[2]interface{}{200, "2.6"}].Status)
	// the failed candidate could have targeted 2.5, so absence is unproven
	assert.Equal(t, v1.StatusUnknown, byPair[[2]interface{}{200, "2.5"}].Status)
}

func TestDetectSearchFailureMarksSourceUnknown(t *testing.T) {
	fake := newFakeClient()
	fake.refsErr[100] = &github.TransientFetchError{Op: "search"}
	fake.refs[200] = []v1.ReferencingPullRequest{{Number: 250, Body: "pr: #200"}}
	fake.details[250] = relatedPR(250, "2.6")

	d := NewDetector(fake)
	results, err := d.Detect(context.Background(), "milvus-io/milvus",
		[]v1.PullRequest{sourcePR(100), sourcePR(200)}, []string{"2.6", "2.5"})
	require.NoError(t, err)
	require.Len(t, results, 4)

	assert.Equal(t, v1.StatusUnknown, results[0].Status)
	assert.Equal(t, v1.StatusUnknown, results[1].Status)
	assert.Equal(t, v1.StatusPicked, results[2].Status)
	assert.Equal(t, v1.StatusNotPicked, results[3].Status)
}

func TestDetectRateLimitAbortsRun(t *testing.T) {
	fake := newFakeClient()
	fake.refsErr[100] = &github.RateLimitError{ResetAt: time.Now().Add(10 * time.Minute)}

	d := NewDetector(fake)
	_, err := d.Detect(context.Background(), "milvus-io/milvus",
		[]v1.PullRequest{sourcePR(100)}, []string{"2.6"})
	require.Error(t, err)
	var rateLimited *github.RateLimitError
	assert.ErrorAs(t, err, &rateLimited)
}

func TestDetectHonorsCancellationBetweenSources(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := NewDetector(newFakeClient())
	_, err := d.Detect(ctx, "milvus-io/milvus", []v1.PullRequest{sourcePR(100)}, []string{"2.6"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDetectIdempotent(t *testing.T) {
	fake := newFakeClient()
	fake.refs[200] = []v1.ReferencingPullRequest{
		{Number: 260, Body: "pr: #200"},
		{Number: 250, Body: "pr: #200"},
	}
	fake.details[250] = relatedPR(250, "2.6")
	fake.details[260] = relatedPR(260, "2.5")

	sources := []v1.PullRequest{sourcePR(100), sourcePR(200)}
	targets := []string{"2.6", "2.5"}

	d := NewDetector(fake)
	first, err := d.Detect(context.Background(), "milvus-io/milvus", sources, targets)
	require.NoError(t, err)
	second, err := d.Detect(context.Background(), "milvus-io/milvus", sources, targets)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}
