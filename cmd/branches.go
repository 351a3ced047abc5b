package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/milvus-io/cherry-pick-check/pkg/github"
	"github.com/milvus-io/cherry-pick-check/pkg/releasebranch"
)

// branches prints the release branches auto-detection would target, which is
// handy for sanity-checking before a long check run.
func init() {
	var (
		repo        string
		exclude     []string
		allBranches bool
	)

	cmd := &cobra.Command{
		Use:   "branches",
		Short: "List the release branches that auto-detection would target",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			token, err := github.ResolveToken()
			if err != nil {
				return err
			}
			client := github.New(github.NewAuthenticatedHTTPClient(ctx, token))
			defer client.Close()

			all, err := client.ListBranches(ctx, repo)
			if err != nil {
				return err
			}
			for _, branch := range releasebranch.SelectReleaseBranches(all, exclude, !allBranches) {
				fmt.Println(branch)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&repo, "repo", "r", "milvus-io/milvus", "GitHub repository in owner/repo format")
	cmd.Flags().StringArrayVar(&exclude, "exclude", nil, "Branch to exclude (one per arg instance)")
	cmd.Flags().BoolVar(&allBranches, "all-branches", false, "Include patch release branches like 2.4.1")
	rootCmd.AddCommand(cmd)
}
