package cmd

import (
	"context"
	"os"
	"os/signal"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/milvus-io/cherry-pick-check/cmd/flags"
	v1 "github.com/milvus-io/cherry-pick-check/pkg/apis/cherrypick/v1"
	"github.com/milvus-io/cherry-pick-check/pkg/cherrypick"
	"github.com/milvus-io/cherry-pick-check/pkg/github"
	"github.com/milvus-io/cherry-pick-check/pkg/releasebranch"
)

func init() {
	f := flags.NewCheckFlags()

	cmd := &cobra.Command{
		Use:   "check USERNAME",
		Short: "Check a user's PRs for cherry-picks to release branches",
		Example: `  cherry-pick-check check zhuwenxing
  cherry-pick-check check zhuwenxing -r milvus-io/milvus -b master
  cherry-pick-check check zhuwenxing -t 2.4 -t 2.5`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()
			return runCheck(ctx, f, args[0])
		},
	}

	f.BindFlags(cmd.Flags())
	rootCmd.AddCommand(cmd)
}

func runCheck(ctx context.Context, f *flags.CheckFlags, username string) error {
	since, err := f.SinceTime()
	if err != nil {
		return err
	}

	token, err := github.ResolveToken()
	if err != nil {
		return err
	}

	client := github.New(github.NewAuthenticatedHTTPClient(ctx, token))
	defer client.Close()
	detector := cherrypick.NewDetector(client)

	logger := log.WithField("repo", f.Repo).WithField("user", username).WithField("branch", f.Branch)
	logger.Infof("fetching PRs since %s", since.Format("2006-01-02"))

	sources, err := detector.SourcePullRequests(ctx, f.Repo, username, f.Branch, &since, f.IncludeOpen)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		logger.Info("no PRs found")
		return nil
	}

	openCount := 0
	for _, pr := range sources {
		if pr.State == v1.PullRequestOpen {
			openCount++
		}
	}
	logger.Infof("found %d PRs (%d open, %d merged)", len(sources), openCount, len(sources)-openCount)

	branches, err := client.ListBranches(ctx, f.Repo)
	if err != nil {
		return err
	}

	var targets []string
	if len(f.Targets) > 0 {
		targets, err = releasebranch.FilterExplicitTargets(branches, f.Targets)
		if err != nil {
			return err
		}
	} else {
		targets = releasebranch.SelectReleaseBranches(branches, []string{f.Branch}, !f.AllBranches)
		if len(targets) == 0 {
			logger.Warn("no release branches detected, use -t to specify target branches")
			return nil
		}
	}
	logger.Infof("target branches: %v", targets)

	results, err := detector.Detect(ctx, f.Repo, sources, targets)
	if err != nil {
		return err
	}

	cherrypick.RenderTable(os.Stdout, results, targets)
	return nil
}
