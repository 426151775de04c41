package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Gidwell/jiro/internal/report"
)

const planUpcomingLimit = 10

func newPlanCommand() *cobra.Command {
	var (
		learnerID    int64
		outputDir    string
		templatePath string
		withPDF      bool
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Export a learner's study plan as Markdown or PDF",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateLearnerID(learnerID); err != nil {
				return err
			}
			stores, err := openStores()
			if err != nil {
				return err
			}
			defer func() { _ = stores.Close() }()

			ctx := cmd.Context()
			l, err := stores.Learners.Get(ctx, learnerID)
			if err != nil {
				return fmt.Errorf("get learner %d: %w", learnerID, err)
			}
			plan, err := stores.Bank.Plan(ctx, learnerID, planUpcomingLimit)
			if err != nil {
				return fmt.Errorf("build plan: %w", err)
			}
			stats, err := stores.Bank.Stats(ctx, learnerID)
			if err != nil {
				return fmt.Errorf("compute stats: %w", err)
			}

			tmpl, err := report.ParsePlanTemplate(templatePath)
			if err != nil {
				return fmt.Errorf("parse template: %w", err)
			}
			now := time.Now()
			path, err := report.ExportPlan(outputDir, tmpl, report.PlanReport{
				Learner:     l,
				Plan:        plan,
				Stats:       *stats,
				Streak:      l.CurrentStreak(now),
				GeneratedAt: now,
			}, withPDF)
			if err != nil {
				return fmt.Errorf("export plan: %w", err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Plan written to %s\n", path)
			return nil
		},
	}

	cmd.Flags().Int64Var(&learnerID, "learner", 0, "Learner ID")
	cmd.Flags().StringVar(&outputDir, "output", "./reports", "Output directory")
	cmd.Flags().StringVar(&templatePath, "template", "", "Custom plan template")
	cmd.Flags().BoolVar(&withPDF, "pdf", false, "Also convert the plan to PDF")
	return cmd
}
