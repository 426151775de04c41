package learning

import (
	"fmt"
	"math"
	"time"

	"github.com/Gidwell/jiro/internal/apperr"
	"github.com/Gidwell/jiro/internal/config"
)

// LatencyBucket classifies how quickly the learner answered.
type LatencyBucket int

const (
	LatencyFast LatencyBucket = iota
	LatencyNormal
	LatencySlow
)

func (b LatencyBucket) String() string {
	switch b {
	case LatencyFast:
		return "fast"
	case LatencyNormal:
		return "normal"
	default:
		return "slow"
	}
}

const day = 24 * time.Hour

// Scheduler computes item schedules from review outcomes. It holds no state.
type Scheduler struct {
	cfg config.SchedulerConfig
}

// NewScheduler creates a new Scheduler.
func NewScheduler(cfg config.SchedulerConfig) *Scheduler {
	return &Scheduler{cfg: cfg}
}

// Bucket classifies latency. A zero latency means none was measured and
// counts as normal.
func (s *Scheduler) Bucket(latency time.Duration) LatencyBucket {
	switch {
	case latency <= 0:
		return LatencyNormal
	case latency < s.cfg.FastLatency:
		return LatencyFast
	case latency < s.cfg.SlowLatency:
		return LatencyNormal
	default:
		return LatencySlow
	}
}

// Quality maps an outcome onto the SM-2 scale 0..5.
func (s *Scheduler) Quality(correct bool, latency time.Duration) int {
	if !correct {
		return 1
	}
	switch s.Bucket(latency) {
	case LatencyFast:
		return 5
	case LatencyNormal:
		return 4
	default:
		return 3
	}
}

// EaseDelta is the SM-2 ease adjustment for quality, bounded by
// MaxEaseDelta. Lapses on well learned items are penalized less.
func (s *Scheduler) EaseDelta(quality int, previousCorrectStreak int) float64 {
	q := float64(quality)
	delta := 0.1 - (5-q)*(0.08+(5-q)*0.02)

	if quality < 3 && previousCorrectStreak > 2 {
		var scaleFactor float64
		switch {
		case previousCorrectStreak >= 10:
			scaleFactor = 0.37
		case previousCorrectStreak >= 6:
			scaleFactor = 0.56
		default:
			scaleFactor = 0.74
		}
		delta *= scaleFactor
	}

	return math.Max(-s.cfg.MaxEaseDelta, math.Min(s.cfg.MaxEaseDelta, delta))
}

// Baseline returns item with its schedule reset to the state it had before
// any review.
func (s *Scheduler) Baseline(item Item) Item {
	item.EaseFactor = s.cfg.DefaultEase
	item.IntervalDays = 0
	item.Repetitions = 0
	item.NextDueAt = item.CreatedAt
	item.LastReviewedAt = nil
	return item
}

// Apply returns item updated by one review outcome.
func (s *Scheduler) Apply(item Item, correct bool, latency time.Duration, reviewedAt time.Time) (Item, error) {
	if reviewedAt.Before(item.CreatedAt) {
		return item, &apperr.DataIntegrityError{
			Reason: fmt.Sprintf("item %s reviewed at %s before its creation at %s",
				item.ID, reviewedAt.Format(time.RFC3339Nano), item.CreatedAt.Format(time.RFC3339Nano)),
		}
	}
	if item.LastReviewedAt != nil && reviewedAt.Before(*item.LastReviewedAt) {
		return item, &apperr.DataIntegrityError{
			Reason: fmt.Sprintf("item %s reviewed at %s before its last review at %s",
				item.ID, reviewedAt.Format(time.RFC3339Nano), item.LastReviewedAt.Format(time.RFC3339Nano)),
		}
	}

	ease := item.EaseFactor
	if ease == 0 {
		ease = s.cfg.DefaultEase
	}
	quality := s.Quality(correct, latency)
	ease = math.Max(s.cfg.MinEase, ease+s.EaseDelta(quality, item.Repetitions))

	reviewed := reviewedAt
	item.EaseFactor = ease
	item.LastReviewedAt = &reviewed

	if !correct {
		item.IntervalDays = s.cfg.MinIntervalDays
		item.Repetitions = 0
		item.NextDueAt = reviewedAt.Add(days(item.IntervalDays))
		return item, nil
	}

	if item.Repetitions == 0 || item.IntervalDays <= 0 {
		item.IntervalDays = s.cfg.InitialIntervalDays
	} else {
		item.IntervalDays = math.Min(item.IntervalDays*ease, s.cfg.MaxIntervalDays)
	}
	item.Repetitions++

	next := reviewedAt.Add(days(item.IntervalDays))
	if next.Before(item.NextDueAt) {
		next = item.NextDueAt
	}
	item.NextDueAt = next
	return item, nil
}

// Replay recomputes the schedule of item from its full review log. events
// must be in sequence order and chronologically non-decreasing. Only the
// first review of a local day in loc moves the schedule; later ones that day
// stay in the log without changing the item.
func (s *Scheduler) Replay(item Item, events []ReviewEvent, loc *time.Location) (Item, error) {
	if loc == nil {
		loc = time.UTC
	}
	state := s.Baseline(item)
	for i, ev := range events {
		if ev.ItemID != item.ID {
			return item, &apperr.DataIntegrityError{
				Reason: fmt.Sprintf("event %s belongs to item %s, not %s", ev.ID, ev.ItemID, item.ID),
			}
		}
		if i > 0 {
			prev := events[i-1]
			if ev.Seq <= prev.Seq || ev.ReviewedAt.Before(prev.ReviewedAt) {
				return item, &apperr.DataIntegrityError{
					Reason: fmt.Sprintf("review log of item %s is out of order at seq %d", item.ID, ev.Seq),
				}
			}
		}

		if state.LastReviewedAt != nil && sameDay(*state.LastReviewedAt, ev.ReviewedAt, loc) {
			continue
		}

		var err error
		state, err = s.Apply(state, ev.Correct, ev.Latency(), ev.ReviewedAt)
		if err != nil {
			return item, err
		}
	}
	return state, nil
}

func sameDay(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}

func days(n float64) time.Duration {
	return time.Duration(n * float64(day))
}
