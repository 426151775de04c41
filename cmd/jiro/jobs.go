package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newJobsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Background job commands",
	}
	cmd.AddCommand(newJobsSweepCommand())
	return cmd
}

func newJobsSweepCommand() *cobra.Command {
	var learnerID int64

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run every background job once and wait for them to finish",
		RunE: func(cmd *cobra.Command, args []string) error {
			components, err := buildComponents()
			if err != nil {
				return err
			}
			defer func() { _ = components.Close() }()

			ids := []int64{learnerID}
			if learnerID == 0 {
				ids, err = components.Learners.ListIDs(cmd.Context())
				if err != nil {
					return fmt.Errorf("list learners: %w", err)
				}
			}
			queued := components.Pool.Sweep(ids)
			// Close drains the queue before returning.
			components.Pool.Close()
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Ran %d jobs for %d learners\n", queued, len(ids))
			return nil
		},
	}
	cmd.Flags().Int64Var(&learnerID, "learner", 0, "Only sweep this learner")
	return cmd
}
