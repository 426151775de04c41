package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Gidwell/jiro/internal/conversation"
	"github.com/Gidwell/jiro/internal/database"
	"github.com/Gidwell/jiro/internal/inference"
	"github.com/Gidwell/jiro/internal/learner"
)

const maxSummaryBatch = 50

// Summarizer folds turns newer than the summary cursor into the learner
// summary once enough of them have accumulated.
type Summarizer struct {
	gateway  *database.Gateway
	learners *learner.Store
	turns    *conversation.Repository
	client   inference.Client
	every    int
	lockWait time.Duration
}

func NewSummarizer(
	gateway *database.Gateway,
	learners *learner.Store,
	turns *conversation.Repository,
	client inference.Client,
	cfg QueueSettings,
) *Summarizer {
	every := cfg.SummarizeEvery
	if every <= 0 {
		every = 10
	}
	return &Summarizer{
		gateway:  gateway,
		learners: learners,
		turns:    turns,
		client:   client,
		every:    every,
		lockWait: cfg.LockWait,
	}
}

// Run implements Handler.
func (s *Summarizer) Run(ctx context.Context, learnerID int64) error {
	current, err := currentSummary(ctx, s.learners, learnerID)
	if err != nil {
		return err
	}
	turns, err := s.turns.Since(ctx, learnerID, current.TurnsThrough, maxSummaryBatch)
	if err != nil {
		return err
	}
	if len(turns) < s.every {
		return nil
	}

	request := inference.SummaryRequest{Current: current.Summary, Turns: make([]inference.Turn, 0, len(turns))}
	for _, turn := range turns {
		request.Turns = append(request.Turns, inference.Turn{
			Transcript: turn.Transcript,
			Reply:      turn.Reply,
			CreatedAt:  turn.CreatedAt,
		})
	}
	text, err := s.client.Summarize(ctx, request)
	if err != nil {
		return fmt.Errorf("summarize learner %d: %w", learnerID, err)
	}

	through := turns[len(turns)-1].CreatedAt
	err = s.gateway.TryWithWrite(ctx, learnerID, s.lockWait, func(ctx context.Context, tx *database.WriteTx) error {
		if _, err := s.learners.GetTx(ctx, tx, learnerID); err != nil {
			return err
		}
		return s.learners.ReplaceSummary(ctx, tx, learner.Summary{
			LearnerID:    learnerID,
			Summary:      text,
			TurnsThrough: &through,
		}, current.TurnsThrough)
	})
	if errors.Is(err, learner.ErrSummaryAdvanced) {
		slog.Default().Info("summary advanced concurrently, discarding result", "learner_id", learnerID)
		return nil
	}
	if learnerGone(err, learnerID, KindSummarization) {
		return nil
	}
	if err != nil {
		return err
	}

	slog.Default().Info("summary replaced",
		"learner_id", learnerID,
		"turns", len(turns),
		"turns_through", through)
	return nil
}
