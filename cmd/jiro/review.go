package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Gidwell/jiro/internal/cli"
	"github.com/Gidwell/jiro/internal/tutor"
)

func newStatsCommand() *cobra.Command {
	var learnerID int64

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show a learner's progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateLearnerID(learnerID); err != nil {
				return err
			}
			components, err := buildComponents()
			if err != nil {
				return err
			}
			defer func() { _ = components.Close() }()

			stats, err := components.Tutor.GetStats(cmd.Context(), learnerID)
			if err != nil {
				return fmt.Errorf("get stats: %w", err)
			}
			cli.PrintStats(cmd.OutOrStdout(), learnerID, stats)
			return nil
		},
	}
	cmd.Flags().Int64Var(&learnerID, "learner", 0, "Learner ID")
	return cmd
}

func newReviewCommand() *cobra.Command {
	var (
		learnerID int64
		limit     int
	)

	cmd := &cobra.Command{
		Use:   "review",
		Short: "Review due items interactively",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateLearnerID(learnerID); err != nil {
				return err
			}
			if limit <= 0 {
				limit = tutor.ReviewItems
			}
			components, err := buildComponents()
			if err != nil {
				return err
			}
			defer func() { _ = components.Close() }()

			ctx := cmd.Context()
			review, err := cli.NewReviewCLI(ctx, components.Tutor, learnerID, limit, os.Stdin, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			result, err := review.Run(ctx)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Reviewed %d items, %d correct\n", result.Reviewed, result.Correct)
			return nil
		},
	}
	cmd.Flags().Int64Var(&learnerID, "learner", 0, "Learner ID")
	cmd.Flags().IntVar(&limit, "limit", tutor.ReviewItems, "Maximum number of items to review")
	return cmd
}
