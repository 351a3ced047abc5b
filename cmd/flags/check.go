package flags

import (
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

const sinceFormat = "2006-01-02"

const defaultSinceDays = 30

// CheckFlags holds the query configuration for the check command.
type CheckFlags struct {
	Repo        string
	Branch      string
	Targets     []string
	Since       string
	AllBranches bool
	IncludeOpen bool
}

func NewCheckFlags() *CheckFlags {
	return &CheckFlags{
		Repo:        "milvus-io/milvus",
		Branch:      "master",
		IncludeOpen: true,
	}
}

func (f *CheckFlags) BindFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&f.Repo, "repo", "r", f.Repo, "GitHub repository in owner/repo format")
	fs.StringVarP(&f.Branch, "branch", "b", f.Branch, "Source branch the PRs were merged to")
	fs.StringArrayVarP(&f.Targets, "target", "t", f.Targets, "Target branch to check (one per arg instance); auto-detects release branches when unset")
	fs.StringVar(&f.Since, "since", f.Since, "Only check PRs created/merged after this date (YYYY-MM-DD), default 30 days ago")
	fs.BoolVar(&f.AllBranches, "all-branches", f.AllBranches, "Check all release branches, including patch versions like 2.4.1")
	fs.BoolVar(&f.IncludeOpen, "include-open", f.IncludeOpen, "Include the user's open PRs in addition to merged ones")
}

// SinceTime parses the --since date, defaulting to 30 days ago.
func (f *CheckFlags) SinceTime() (time.Time, error) {
	if f.Since == "" {
		return time.Now().AddDate(0, 0, -defaultSinceDays), nil
	}
	since, err := time.Parse(sinceFormat, f.Since)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "invalid --since date %q, expected YYYY-MM-DD", f.Since)
	}
	return since, nil
}
