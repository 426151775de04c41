package cli

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/Gidwell/jiro/internal/tutor"
)

// PrintStats writes a short progress summary.
func PrintStats(w io.Writer, learnerID int64, stats *tutor.Stats) {
	bold := color.New(color.Bold)
	_, _ = bold.Fprintf(w, "Learner %d\n", learnerID)
	_, _ = fmt.Fprintf(w, "  Mode:        %s\n", stats.Mode)
	_, _ = fmt.Fprintf(w, "  Strictness:  %s\n", stats.Strictness)
	_, _ = fmt.Fprintf(w, "  Streak:      %d\n", stats.Streak)
	_, _ = fmt.Fprintf(w, "  Turns today: %d\n", stats.TurnsToday)
	_, _ = fmt.Fprintf(w, "  Items:       %d total, %d mastered, %d due\n", stats.Total, stats.Mastered, stats.DueCount)

	accuracy := color.New(color.FgGreen)
	if stats.Accuracy() < 0.6 {
		accuracy = color.New(color.FgYellow)
	}
	_, _ = fmt.Fprintf(w, "  Reviews:     %d over %d days, ", stats.Reviews, stats.ActiveDays)
	_, _ = accuracy.Fprintf(w, "%.0f%% correct\n", stats.Accuracy()*100)
}
