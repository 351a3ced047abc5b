package v1

import "time"

type PullRequestState string

const (
	PullRequestOpen   = PullRequestState("open")
	PullRequestMerged = PullRequestState("merged")
	PullRequestClosed = PullRequestState("closed")
)

// PullRequest is an immutable snapshot of a pull request, built once from an
// API payload and never mutated afterwards.
type PullRequest struct {
	Number    int              `json:"number"`
	Title     string           `json:"title"`
	URL       string           `json:"url"`
	Author    string           `json:"author"`
	State     PullRequestState `json:"state"`
	CreatedAt *time.Time       `json:"created_at,omitempty"`
	// MergedAt is set if and only if State is PullRequestMerged.
	MergedAt   *time.Time `json:"merged_at,omitempty"`
	BaseBranch string     `json:"base_branch"`
}

// ReferencingPullRequest is a search hit whose body may reference another
// pull request. Only the fields the reference matcher needs are carried; the
// full record comes from a follow-up detail fetch.
type ReferencingPullRequest struct {
	Number int    `json:"number"`
	Body   string `json:"body"`
}

type PickStatus string

const (
	StatusPicked    = PickStatus("picked")
	StatusNotPicked = PickStatus("not_picked")
	// StatusUnknown means the lookup for this pair failed after retries. It is
	// never used for "no match found"; that case is StatusNotPicked.
	StatusUnknown = PickStatus("unknown")
)

// Result records the cherry-pick status of one source PR against one target
// branch. Exactly one Result exists per (source PR, target branch) pair in a
// run. RelatedPR is set if and only if Status is StatusPicked.
type Result struct {
	SourcePR        PullRequest  `json:"source_pr"`
	TargetBranch    string       `json:"target_branch"`
	Status          PickStatus   `json:"status"`
	RelatedPR       *PullRequest `json:"related_pr,omitempty"`
	DetectionMethod string       `json:"detection_method,omitempty"`
}
