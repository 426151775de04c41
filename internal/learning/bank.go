package learning

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Gidwell/jiro/internal/apperr"
	"github.com/Gidwell/jiro/internal/config"
	"github.com/Gidwell/jiro/internal/database"
)

// Bank reads and mutates learning items and their review log through the
// gateway.
type Bank struct {
	gateway   *database.Gateway
	scheduler *Scheduler
	cfg       config.SchedulerConfig
	now       func() time.Time

	// afterReplay runs inside the grade write scope, between computing and
	// storing the new state.
	afterReplay func()
}

// Option configures a Bank.
type Option func(*Bank)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *Bank) {
		b.now = now
	}
}

// NewBank creates a new Bank.
func NewBank(gateway *database.Gateway, cfg config.SchedulerConfig, opts ...Option) *Bank {
	b := &Bank{
		gateway:   gateway,
		scheduler: NewScheduler(cfg),
		cfg:       cfg,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Scheduler returns the scheduler used for grading.
func (b *Bank) Scheduler() *Scheduler {
	return b.scheduler
}

func (b *Bank) clock() time.Time {
	return b.now().UTC().Truncate(time.Microsecond)
}

// DueItems returns up to limit items whose next due time has passed, most
// overdue first and easiest first among equally overdue items.
func (b *Bank) DueItems(ctx context.Context, learnerID int64, limit int) ([]Item, error) {
	items := []Item{}
	if limit <= 0 {
		return items, nil
	}
	if err := b.gateway.Select(ctx, &items, database.IntentSelectDue, learnerID, b.clock(), limit); err != nil {
		return nil, fmt.Errorf("load due items of learner %d: %w", learnerID, err)
	}
	return items, nil
}

// CountDue counts the due items of a learner.
func (b *Bank) CountDue(ctx context.Context, learnerID int64) (int, error) {
	var count int
	if err := b.gateway.Get(ctx, &count, database.IntentCountDue, learnerID, b.clock()); err != nil {
		return 0, fmt.Errorf("count due items of learner %d: %w", learnerID, err)
	}
	return count, nil
}

// CountDueTx counts due items inside a write scope.
func (b *Bank) CountDueTx(ctx context.Context, tx *database.WriteTx, learnerID int64) (int, error) {
	var count int
	if err := tx.Get(ctx, &count, database.IntentCountDue, learnerID, b.clock()); err != nil {
		return 0, fmt.Errorf("count due items of learner %d: %w", learnerID, err)
	}
	return count, nil
}

// GetItem returns the item or a NotFoundError.
func (b *Bank) GetItem(ctx context.Context, id string) (*Item, error) {
	var item Item
	if err := b.gateway.Get(ctx, &item, database.IntentSelectItem, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NewNotFound("item", id)
		}
		return nil, fmt.Errorf("load item %s: %w", id, err)
	}
	return &item, nil
}

// ListItems returns every item of a learner in due order.
func (b *Bank) ListItems(ctx context.Context, learnerID int64) ([]Item, error) {
	items := []Item{}
	if err := b.gateway.Select(ctx, &items, database.IntentSelectItems, learnerID); err != nil {
		return nil, fmt.Errorf("load items of learner %d: %w", learnerID, err)
	}
	return items, nil
}

// AddItems inserts the items that the learner does not have yet and returns
// how many were inserted.
func (b *Bank) AddItems(ctx context.Context, learnerID int64, items []NewItem) (int, error) {
	var inserted int
	err := b.gateway.WithWrite(ctx, learnerID, func(ctx context.Context, tx *database.WriteTx) error {
		var err error
		inserted, err = b.AddItemsTx(ctx, tx, learnerID, items, len(items))
		return err
	})
	return inserted, err
}

// AddItemsTx inserts at most limit new items inside tx. Items whose kind and
// content the learner already has are skipped.
func (b *Bank) AddItemsTx(ctx context.Context, tx *database.WriteTx, learnerID int64, items []NewItem, limit int) (int, error) {
	if limit <= 0 || len(items) == 0 {
		return 0, nil
	}

	var existing []Item
	if err := tx.Select(ctx, &existing, database.IntentSelectItems, learnerID); err != nil {
		return 0, fmt.Errorf("load items of learner %d: %w", learnerID, err)
	}
	seen := make(map[string]struct{}, len(existing)+len(items))
	for _, item := range existing {
		seen[dedupeKey(item.Kind, item.Content)] = struct{}{}
	}

	now := b.clock()
	inserted := 0
	for _, n := range items {
		if inserted >= limit {
			break
		}
		content := strings.TrimSpace(n.Content)
		if content == "" {
			continue
		}
		kind := n.Kind
		if _, ok := ParseKind(string(kind)); !ok {
			kind = KindGrammar
		}
		key := dedupeKey(kind, content)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		item := Item{
			ID:         uuid.NewString(),
			LearnerID:  learnerID,
			Kind:       kind,
			Content:    content,
			Difficulty: clampDifficulty(n.Difficulty),
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		item = b.scheduler.Baseline(item)
		if err := upsertItem(ctx, tx, item); err != nil {
			return inserted, err
		}
		inserted++
	}
	return inserted, nil
}

func dedupeKey(kind Kind, content string) string {
	return string(kind) + "\x00" + strings.ToLower(strings.TrimSpace(content))
}

func clampDifficulty(d int) int {
	return max(MinDifficulty, min(MaxDifficulty, d))
}

func upsertItem(ctx context.Context, tx *database.WriteTx, item Item) error {
	_, err := tx.Exec(ctx, database.IntentUpsertItem,
		item.ID, item.LearnerID, string(item.Kind), item.Content, item.Difficulty,
		item.EaseFactor, item.IntervalDays, item.Repetitions, item.NextDueAt, item.LastReviewedAt,
		item.CreatedAt, item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store item %s: %w", item.ID, err)
	}
	return nil
}

// Grade appends a review event for the item and recomputes its schedule by
// replaying the item's whole log under the write lock.
func (b *Bank) Grade(ctx context.Context, itemID string, correct bool, latency time.Duration) (*Item, error) {
	// The owner never changes, so it can be read before locking.
	owner, err := b.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}

	var graded *Item
	err = b.gateway.WithWrite(ctx, owner.LearnerID, func(ctx context.Context, tx *database.WriteTx) error {
		var err error
		graded, err = b.GradeTx(ctx, tx, itemID, correct, latency)
		return err
	})
	if err != nil {
		return nil, err
	}
	return graded, nil
}

// GradeTx is Grade inside an existing write scope.
func (b *Bank) GradeTx(ctx context.Context, tx *database.WriteTx, itemID string, correct bool, latency time.Duration) (*Item, error) {
	var item Item
	if err := tx.Get(ctx, &item, database.IntentSelectItem, itemID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NewNotFound("item", itemID)
		}
		return nil, fmt.Errorf("load item %s: %w", itemID, err)
	}

	var events []ReviewEvent
	if err := tx.Select(ctx, &events, database.IntentSelectItemEvents, itemID); err != nil {
		return nil, fmt.Errorf("load review log of item %s: %w", itemID, err)
	}

	reviewedAt := b.clock()
	if latency < 0 {
		latency = 0
	}
	event := ReviewEvent{
		ID:         uuid.NewString(),
		ItemID:     item.ID,
		LearnerID:  item.LearnerID,
		Seq:        len(events) + 1,
		Correct:    correct,
		LatencyMs:  latency.Milliseconds(),
		ReviewedAt: reviewedAt,
	}
	if item.LastReviewedAt != nil && reviewedAt.Before(*item.LastReviewedAt) {
		return nil, b.integrityFailure(item, &apperr.DataIntegrityError{
			Reason: fmt.Sprintf("item %s has a last review in the future of %s", item.ID, reviewedAt.Format(time.RFC3339Nano)),
		})
	}

	loc, err := b.learnerLocation(ctx, tx, item.LearnerID)
	if err != nil {
		return nil, err
	}
	updated, err := b.scheduler.Replay(item, append(events, event), loc)
	if err != nil {
		return nil, b.integrityFailure(item, err)
	}
	updated.UpdatedAt = reviewedAt

	if b.afterReplay != nil {
		b.afterReplay()
	}

	if _, err := tx.Exec(ctx, database.IntentInsertEvent,
		event.ID, event.ItemID, event.LearnerID, event.Seq, event.Correct, event.LatencyMs, event.ReviewedAt); err != nil {
		return nil, fmt.Errorf("append review event for item %s: %w", item.ID, err)
	}
	if err := upsertItem(ctx, tx, updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// learnerLocation returns the timezone review days are counted in.
func (b *Bank) learnerLocation(ctx context.Context, tx *database.WriteTx, learnerID int64) (*time.Location, error) {
	var name string
	err := tx.Get(ctx, &name, database.IntentSelectLearnerTimezone, learnerID)
	if errors.Is(err, sql.ErrNoRows) {
		return time.UTC, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load timezone of learner %d: %w", learnerID, err)
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC, nil
	}
	return loc, nil
}

func (b *Bank) integrityFailure(item Item, err error) error {
	slog.Default().Error("refusing to grade item",
		"item_id", item.ID,
		"learner_id", item.LearnerID,
		"error", err)
	return err
}

// EventsSinceTx returns the learner's review events after since, oldest first.
func (b *Bank) EventsSinceTx(ctx context.Context, tx *database.WriteTx, learnerID int64, since time.Time) ([]ReviewEvent, error) {
	var events []ReviewEvent
	if err := tx.Select(ctx, &events, database.IntentSelectEventsSince, learnerID, since); err != nil {
		return nil, fmt.Errorf("load review events of learner %d: %w", learnerID, err)
	}
	return events, nil
}

// MissesSinceTx counts incorrect reviews after since per item kind.
func (b *Bank) MissesSinceTx(ctx context.Context, tx *database.WriteTx, learnerID int64, since time.Time) (map[Kind]int, error) {
	var rows []kindMisses
	if err := tx.Select(ctx, &rows, database.IntentMissesSince, learnerID, since); err != nil {
		return nil, fmt.Errorf("count misses of learner %d: %w", learnerID, err)
	}
	misses := make(map[Kind]int, len(rows))
	for _, row := range rows {
		misses[row.Kind] = row.Misses
	}
	return misses, nil
}

// RecentAccuracy is the share of correct answers among the learner's last
// limit reviews. ok is false when there are none.
func (b *Bank) RecentAccuracy(ctx context.Context, learnerID int64, limit int) (accuracy float64, ok bool, err error) {
	var outcomes []bool
	if err := b.gateway.Select(ctx, &outcomes, database.IntentRecentOutcomes, learnerID, limit); err != nil {
		return 0, false, fmt.Errorf("load recent outcomes of learner %d: %w", learnerID, err)
	}
	if len(outcomes) == 0 {
		return 0, false, nil
	}
	correct := 0
	for _, o := range outcomes {
		if o {
			correct++
		}
	}
	return float64(correct) / float64(len(outcomes)), true, nil
}

// TopDifficulty returns the highest difficulty tier in the learner's bank,
// zero for an empty bank.
func (b *Bank) TopDifficulty(ctx context.Context, learnerID int64) (int, error) {
	var top int
	if err := b.gateway.Get(ctx, &top, database.IntentTopDifficulty, learnerID); err != nil {
		return 0, fmt.Errorf("load top difficulty of learner %d: %w", learnerID, err)
	}
	return top, nil
}

// Plan returns up to limit due and upcoming items plus mastery counts.
func (b *Bank) Plan(ctx context.Context, learnerID int64, limit int) (*Plan, error) {
	due, err := b.DueItems(ctx, learnerID, limit)
	if err != nil {
		return nil, err
	}
	dueCount, err := b.CountDue(ctx, learnerID)
	if err != nil {
		return nil, err
	}

	upcoming := []Item{}
	now := b.clock()
	if err := b.gateway.Select(ctx, &upcoming, database.IntentSelectUpcoming, learnerID, now, now, limit); err != nil {
		return nil, fmt.Errorf("load upcoming items of learner %d: %w", learnerID, err)
	}

	stats, err := b.itemStats(ctx, learnerID)
	if err != nil {
		return nil, err
	}

	return &Plan{
		Due:      due,
		DueCount: dueCount,
		Upcoming: upcoming,
		Mastered: stats.Mastered,
		Total:    stats.Total,
	}, nil
}

// Stats aggregates reviews and mastery of a learner.
func (b *Bank) Stats(ctx context.Context, learnerID int64) (*Stats, error) {
	var reviews reviewStats
	if err := b.gateway.Get(ctx, &reviews, database.IntentReviewStats, learnerID); err != nil {
		return nil, fmt.Errorf("aggregate reviews of learner %d: %w", learnerID, err)
	}
	items, err := b.itemStats(ctx, learnerID)
	if err != nil {
		return nil, err
	}
	return &Stats{
		Reviews:    reviews.Total,
		Correct:    reviews.Correct,
		ActiveDays: reviews.ActiveDays,
		Mastered:   items.Mastered,
		Total:      items.Total,
	}, nil
}

func (b *Bank) itemStats(ctx context.Context, learnerID int64) (itemStats, error) {
	var stats itemStats
	if err := b.gateway.Get(ctx, &stats, database.IntentItemStats, b.cfg.MasteredIntervalDays, learnerID); err != nil {
		return stats, fmt.Errorf("aggregate items of learner %d: %w", learnerID, err)
	}
	return stats, nil
}

// DeleteTx removes every item and review event of a learner inside tx.
func (b *Bank) DeleteTx(ctx context.Context, tx *database.WriteTx, learnerID int64) error {
	if _, err := tx.Exec(ctx, database.IntentDeleteEvents, learnerID); err != nil {
		return fmt.Errorf("delete review events of learner %d: %w", learnerID, err)
	}
	if _, err := tx.Exec(ctx, database.IntentDeleteItems, learnerID); err != nil {
		return fmt.Errorf("delete items of learner %d: %w", learnerID, err)
	}
	return nil
}
