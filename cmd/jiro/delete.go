package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDeleteCommand() *cobra.Command {
	var (
		learnerID int64
		confirmed bool
	)

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete every record and recording of a learner",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateLearnerID(learnerID); err != nil {
				return err
			}
			if !confirmed {
				return fmt.Errorf("deleting learner %d cannot be undone; pass --yes to continue", learnerID)
			}
			components, err := buildComponents()
			if err != nil {
				return err
			}
			defer func() { _ = components.Close() }()

			deletion, err := components.Tutor.Purge(cmd.Context(), learnerID)
			if err != nil {
				return fmt.Errorf("purge learner %d: %w", learnerID, err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted learner %d (session closed: %t, recordings removed: %d)\n",
				learnerID, deletion.SessionClosed, deletion.AudioObjects)
			return nil
		},
	}
	cmd.Flags().Int64Var(&learnerID, "learner", 0, "Learner ID")
	cmd.Flags().BoolVar(&confirmed, "yes", false, "Confirm the deletion")
	return cmd
}
