// Package cli holds the interactive terminal front ends of the tutor.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/Gidwell/jiro/internal/learning"
)

var errEnd = errors.New("end of review")

//go:generate mockgen -source=review.go -destination=../mocks/cli/mock_reviewer.go -package=mock_cli Reviewer

// Reviewer serves due items and records grades.
type Reviewer interface {
	GetDueReview(ctx context.Context, learnerID int64, limit int) ([]learning.Item, error)
	Grade(ctx context.Context, learnerID int64, itemID string, correct bool, latency time.Duration) (*learning.Item, error)
}

// ReviewResult summarizes one review session.
type ReviewResult struct {
	Reviewed int
	Correct  int
}

// ReviewCLI walks a learner through their due items in the terminal. The
// learner answers aloud or in writing and then grades themselves.
type ReviewCLI struct {
	reviewer     Reviewer
	learnerID    int64
	items        []learning.Item
	stdinReader  *bufio.Reader
	stdoutWriter io.Writer
	bold         *color.Color
	italic       *color.Color
	now          func() time.Time
	result       ReviewResult
}

// NewReviewCLI loads up to limit due items for the learner.
func NewReviewCLI(ctx context.Context, reviewer Reviewer, learnerID int64, limit int, stdin io.Reader, stdout io.Writer) (*ReviewCLI, error) {
	items, err := reviewer.GetDueReview(ctx, learnerID, limit)
	if err != nil {
		return nil, fmt.Errorf("reviewer.GetDueReview() > %w", err)
	}
	return &ReviewCLI{
		reviewer:     reviewer,
		learnerID:    learnerID,
		items:        items,
		stdinReader:  bufio.NewReader(stdin),
		stdoutWriter: stdout,
		bold:         color.New(color.Bold),
		italic:       color.New(color.Italic),
		now:          time.Now,
	}, nil
}

func (r *ReviewCLI) ItemCount() int {
	return len(r.items)
}

// Run asks about every loaded item until the list is exhausted, the input
// ends or the process is interrupted.
func (r *ReviewCLI) Run(ctx context.Context) (ReviewResult, error) {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt)
	defer cancel()

	if len(r.items) == 0 {
		_, _ = fmt.Fprintln(r.stdoutWriter, "Nothing is due right now.")
		return r.result, nil
	}

	for {
		select {
		case <-ctx.Done():
			_, _ = fmt.Fprintln(r.stdoutWriter, "Received interrupt signal, exiting...")
			return r.result, nil
		default:
		}

		if err := r.session(ctx); err != nil {
			if errors.Is(err, errEnd) {
				return r.result, nil
			}
			return r.result, err
		}
	}
}

func (r *ReviewCLI) session(ctx context.Context) error {
	if len(r.items) == 0 {
		return errEnd
	}
	item := r.items[0]

	_, _ = fmt.Fprintf(r.stdoutWriter, "[%s] %s\n", item.Kind, r.bold.Sprint(item.Content))
	_, _ = fmt.Fprint(r.stdoutWriter, "Use it in a sentence (empty line to skip): ")
	askedAt := r.now()
	answer, err := r.readLine()
	if err != nil {
		return err
	}
	latency := r.now().Sub(askedAt)

	correct := false
	if answer != "" {
		_, _ = fmt.Fprintf(r.stdoutWriter, "You said %s. Was it right? [y/N]: ", r.italic.Sprintf("%q", answer))
		verdict, err := r.readLine()
		if err != nil {
			return err
		}
		correct = strings.EqualFold(verdict, "y") || strings.EqualFold(verdict, "yes")
	}

	graded, err := r.reviewer.Grade(ctx, r.learnerID, item.ID, correct, latency)
	if err != nil {
		return fmt.Errorf("reviewer.Grade(%s) > %w", item.ID, err)
	}
	r.items = r.items[1:]
	r.result.Reviewed++

	if correct {
		r.result.Correct++
		_, _ = fmt.Fprint(r.stdoutWriter, "✅ ")
		_, _ = color.New(color.FgGreen).Fprintf(r.stdoutWriter, "Nice. Next review on %s\n", graded.NextDueAt.Format(time.DateOnly))
	} else {
		_, _ = fmt.Fprint(r.stdoutWriter, "❌ ")
		_, _ = color.New(color.FgRed).Fprintf(r.stdoutWriter, "%s comes back on %s\n", item.Content, graded.NextDueAt.Format(time.DateOnly))
	}
	_, _ = fmt.Fprintln(r.stdoutWriter)
	return nil
}

func (r *ReviewCLI) readLine() (string, error) {
	line, err := r.stdinReader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) {
			return "", errEnd
		}
		return "", fmt.Errorf("stdinReader.ReadString() > %w", err)
	}
	return strings.TrimSpace(line), nil
}
