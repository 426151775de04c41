package jobs

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/Gidwell/jiro/internal/conversation"
	"github.com/Gidwell/jiro/internal/database"
	"github.com/Gidwell/jiro/internal/learner"
	"github.com/Gidwell/jiro/internal/learning"
)

const modelTurnLimit = 5000

// ModelUpdater advances the learner model (streak, error patterns and
// checkpoint) from the activity recorded since its checkpoint.
type ModelUpdater struct {
	gateway  *database.Gateway
	learners *learner.Store
	bank     *learning.Bank
	turns    *conversation.Repository
	lockWait time.Duration
}

func NewModelUpdater(
	gateway *database.Gateway,
	learners *learner.Store,
	bank *learning.Bank,
	turns *conversation.Repository,
	cfg QueueSettings,
) *ModelUpdater {
	return &ModelUpdater{
		gateway:  gateway,
		learners: learners,
		bank:     bank,
		turns:    turns,
		lockWait: cfg.LockWait,
	}
}

// Run implements Handler. Everything it reads feeds the write, so the whole
// update happens inside one write scope.
func (u *ModelUpdater) Run(ctx context.Context, learnerID int64) error {
	err := u.gateway.TryWithWrite(ctx, learnerID, u.lockWait, func(ctx context.Context, tx *database.WriteTx) error {
		l, err := u.learners.GetTx(ctx, tx, learnerID)
		if err != nil {
			return err
		}
		since := epoch
		if l.CheckpointAt != nil {
			since = *l.CheckpointAt
		}

		events, err := u.bank.EventsSinceTx(ctx, tx, learnerID, since)
		if err != nil {
			return err
		}
		turns, err := u.turns.SinceTx(ctx, tx, learnerID, &since, modelTurnLimit)
		if err != nil {
			return err
		}
		activity := make([]time.Time, 0, len(events)+len(turns))
		for _, e := range events {
			activity = append(activity, e.ReviewedAt)
		}
		for _, t := range turns {
			activity = append(activity, t.CreatedAt)
		}
		if len(activity) == 0 {
			return nil
		}
		slices.SortFunc(activity, func(a, b time.Time) int { return a.Compare(b) })

		misses, err := u.bank.MissesSinceTx(ctx, tx, learnerID, since)
		if err != nil {
			return err
		}

		AdvanceStreak(l, activity)
		if l.ErrorPatterns == nil {
			l.ErrorPatterns = learner.ErrorPatterns{}
		}
		counts := make(map[string]int, len(misses))
		for kind, n := range misses {
			counts[string(kind)] = n
		}
		l.ErrorPatterns.Add(counts)
		checkpoint := activity[len(activity)-1]
		l.CheckpointAt = &checkpoint

		if err := u.learners.UpdateModel(ctx, tx, l); err != nil {
			return err
		}
		slog.Default().Debug("learner model updated",
			"learner_id", learnerID,
			"activity", len(activity),
			"streak", l.StreakCount,
			"checkpoint", checkpoint)
		return nil
	})
	if learnerGone(err, learnerID, KindLearnerModel) {
		return nil
	}
	return err
}

// AdvanceStreak folds activity timestamps, oldest first, into the streak of
// l. Activity on the next local day extends the streak and a longer gap
// restarts it at one.
func AdvanceStreak(l *learner.Learner, activity []time.Time) {
	loc := l.Location()
	for _, at := range activity {
		day := learner.LocalDay(at, loc)
		if l.StreakDay == nil {
			l.StreakCount = 1
			l.StreakDay = &day
			continue
		}
		switch gap := learner.DaysBetween(*l.StreakDay, day); {
		case gap <= 0:
			continue
		case gap == 1:
			l.StreakCount++
		default:
			l.StreakCount = 1
		}
		l.StreakDay = &day
	}
}

var epoch = time.Unix(0, 0).UTC()
