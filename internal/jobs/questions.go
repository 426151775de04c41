package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Gidwell/jiro/internal/apperr"
	"github.com/Gidwell/jiro/internal/curriculum"
	"github.com/Gidwell/jiro/internal/database"
	"github.com/Gidwell/jiro/internal/inference"
	"github.com/Gidwell/jiro/internal/learner"
	"github.com/Gidwell/jiro/internal/learning"
)

// QuestionGenerator tops the item bank up to the due floor with material
// proposed by the generation backend.
type QuestionGenerator struct {
	gateway  *database.Gateway
	bank     *learning.Bank
	learners *learner.Store
	planner  *curriculum.Planner
	client   inference.Client
	dueFloor int
	lockWait time.Duration
}

func NewQuestionGenerator(
	gateway *database.Gateway,
	bank *learning.Bank,
	learners *learner.Store,
	planner *curriculum.Planner,
	client inference.Client,
	cfg QueueSettings,
) *QuestionGenerator {
	return &QuestionGenerator{
		gateway:  gateway,
		bank:     bank,
		learners: learners,
		planner:  planner,
		client:   client,
		dueFloor: cfg.DueFloor,
		lockWait: cfg.LockWait,
	}
}

// Run implements Handler.
func (g *QuestionGenerator) Run(ctx context.Context, learnerID int64) error {
	due, err := g.bank.CountDue(ctx, learnerID)
	if err != nil {
		return err
	}
	if due >= g.dueFloor {
		return nil
	}

	l, err := g.learners.Get(ctx, learnerID)
	if learnerGone(err, learnerID, KindQuestionGeneration) {
		return nil
	}
	if err != nil {
		return err
	}
	summary, err := currentSummary(ctx, g.learners, learnerID)
	if err != nil {
		return err
	}
	state, err := g.planner.State(ctx, l, summary.Summary, g.dueFloor-due)
	if err != nil {
		return err
	}

	// The backend call happens without the write lock.
	generated, err := g.client.GenerateItems(ctx, state)
	if err != nil {
		return fmt.Errorf("generate items for learner %d: %w", learnerID, err)
	}
	items := toNewItems(generated)
	if len(items) == 0 {
		return nil
	}

	var added int
	err = g.gateway.TryWithWrite(ctx, learnerID, g.lockWait, func(ctx context.Context, tx *database.WriteTx) error {
		if _, err := g.learners.GetTx(ctx, tx, learnerID); err != nil {
			return err
		}
		due, err := g.bank.CountDueTx(ctx, tx, learnerID)
		if err != nil {
			return err
		}
		added, err = g.bank.AddItemsTx(ctx, tx, learnerID, items, g.dueFloor-due)
		return err
	})
	if learnerGone(err, learnerID, KindQuestionGeneration) {
		return nil
	}
	if err != nil {
		return err
	}

	slog.Default().Info("generated review items",
		"learner_id", learnerID,
		"proposed", len(items),
		"added", added,
		"target_difficulty", state.TargetDifficulty)
	return nil
}

func toNewItems(generated []inference.GeneratedItem) []learning.NewItem {
	items := make([]learning.NewItem, 0, len(generated))
	for _, g := range generated {
		kind, ok := learning.ParseKind(g.Kind)
		if !ok {
			slog.Default().Debug("skipping generated item of unknown kind", "kind", g.Kind)
			continue
		}
		items = append(items, learning.NewItem{Kind: kind, Content: g.Content, Difficulty: g.Difficulty})
	}
	return items
}

// learnerGone reports whether err says the learner was deleted while the job
// ran. Whatever the job computed for them is dropped.
func learnerGone(err error, learnerID int64, kind Kind) bool {
	if !apperr.IsNotFound(err) {
		return false
	}
	slog.Default().Info("learner deleted during job, discarding result", "learner_id", learnerID, "kind", kind)
	return true
}

// currentSummary returns the stored summary, or an empty one before the
// first summarization.
func currentSummary(ctx context.Context, learners *learner.Store, learnerID int64) (*learner.Summary, error) {
	summary, err := learners.GetSummary(ctx, learnerID)
	if apperr.IsNotFound(err) {
		return &learner.Summary{LearnerID: learnerID}, nil
	}
	return summary, err
}
