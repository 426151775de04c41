package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Gidwell/jiro/internal/learner"
	"github.com/Gidwell/jiro/internal/learning"
)

//go:generate mockgen -source=delivery.go -destination=../mocks/jobs/mock_notifier.go -package=mock_jobs

// PromptKind distinguishes the daily prompt from the follow-up nudge.
type PromptKind string

const (
	PromptDaily PromptKind = "daily"
	PromptNudge PromptKind = "nudge"
)

const (
	dailyItems = 3
	// absentDays of inactivity switch the daily prompt to a gentle restart.
	absentDays = 3
)

// Prompt is the proactive message sent to a learner.
type Prompt struct {
	LearnerID int64
	Kind      PromptKind
	Gentle    bool
	Streak    int
	Items     []learning.Item
}

// Notifier hands prompts to the chat transport.
type Notifier interface {
	Notify(ctx context.Context, prompt Prompt) error
}

// LogNotifier writes prompts to the log. It stands in when no chat
// transport is attached.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, prompt Prompt) error {
	contents := make([]string, 0, len(prompt.Items))
	for _, item := range prompt.Items {
		contents = append(contents, item.Content)
	}
	slog.Default().Info("prompt",
		"learner_id", prompt.LearnerID,
		"kind", prompt.Kind,
		"gentle", prompt.Gentle,
		"streak", prompt.Streak,
		"items", contents)
	return nil
}

// Deliverer composes the daily prompt at each learner's delivery time and
// the nudge that follows it. It only reads state.
type Deliverer struct {
	learners   *learner.Store
	bank       *learning.Bank
	notifier   Notifier
	nudgeAfter time.Duration
	now        func() time.Time
}

func NewDeliverer(learners *learner.Store, bank *learning.Bank, notifier Notifier, cfg QueueSettings) *Deliverer {
	return &Deliverer{
		learners:   learners,
		bank:       bank,
		notifier:   notifier,
		nudgeAfter: cfg.NudgeAfter,
		now:        time.Now,
	}
}

// Compose builds the prompt for l at now: the next three due items, or a
// single gentle one when the learner has been away for three days or more.
func (d *Deliverer) Compose(ctx context.Context, l *learner.Learner, kind PromptKind, now time.Time) (Prompt, error) {
	prompt := Prompt{LearnerID: l.ID, Kind: kind, Streak: l.CurrentStreak(now)}
	limit := dailyItems
	if l.LastActiveAt != nil {
		loc := l.Location()
		if learner.DaysBetween(learner.LocalDay(*l.LastActiveAt, loc), learner.LocalDay(now, loc)) >= absentDays {
			prompt.Gentle = true
			limit = 1
		}
	}
	items, err := d.bank.DueItems(ctx, l.ID, limit)
	if err != nil {
		return Prompt{}, err
	}
	prompt.Items = items
	return prompt, nil
}

// Tick sends every prompt scheduled in the window (from, to].
func (d *Deliverer) Tick(ctx context.Context, from, to time.Time) (int, error) {
	ids, err := d.learners.ListIDs(ctx)
	if err != nil {
		return 0, err
	}
	sent := 0
	var errs []error
	for _, id := range ids {
		l, err := d.learners.Get(ctx, id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, kind := range d.due(l, from, to) {
			prompt, err := d.Compose(ctx, l, kind, to)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if err := d.notifier.Notify(ctx, prompt); err != nil {
				errs = append(errs, fmt.Errorf("notify learner %d: %w", id, err))
				continue
			}
			sent++
		}
	}
	return sent, errors.Join(errs...)
}

// due lists the prompts of l whose scheduled instant falls in (from, to].
// A nudge is skipped when the learner has been active since the delivery.
func (d *Deliverer) due(l *learner.Learner, from, to time.Time) []PromptKind {
	hhmm, err := time.Parse("15:04", l.DeliveryTime)
	if err != nil {
		return nil
	}
	loc := l.Location()
	local := to.In(loc)

	var kinds []PromptKind
	// yesterday's delivery can still have a nudge pending today
	for _, offset := range []int{-1, 0} {
		day := local.AddDate(0, 0, offset)
		delivery := time.Date(day.Year(), day.Month(), day.Day(), hhmm.Hour(), hhmm.Minute(), 0, 0, loc)
		if offset == 0 && inWindow(delivery, from, to) {
			kinds = append(kinds, PromptDaily)
		}
		if d.nudgeAfter <= 0 {
			continue
		}
		nudge := delivery.Add(d.nudgeAfter)
		if inWindow(nudge, from, to) && (l.LastActiveAt == nil || l.LastActiveAt.Before(delivery)) {
			kinds = append(kinds, PromptNudge)
		}
	}
	return kinds
}

func inWindow(at, from, to time.Time) bool {
	return at.After(from) && !at.After(to)
}

// Start checks for due prompts every interval until ctx is done.
func (d *Deliverer) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		last := d.now()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				now := d.now()
				sent, err := d.Tick(ctx, last, now)
				if err != nil {
					slog.Default().Error("prompt delivery failed", "error", err)
				}
				if sent > 0 {
					slog.Default().Info("prompts delivered", "count", sent)
				}
				last = now
			}
		}
	}()
}
