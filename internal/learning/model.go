// Package learning owns learning items, their review log and the spaced
// repetition schedule derived from it.
package learning

import (
	"time"
)

// Kind classifies a learning item.
type Kind string

const (
	KindGrammar Kind = "grammar"
	KindVocab   Kind = "vocab"
	KindPhrase  Kind = "phrase"
)

// ParseKind validates s. Curriculum files use "phrases" for phrases.
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "grammar":
		return KindGrammar, true
	case "vocab", "vocabulary":
		return KindVocab, true
	case "phrase", "phrases":
		return KindPhrase, true
	}
	return "", false
}

const (
	MinDifficulty = 1
	MaxDifficulty = 5
)

// Item is a fact or phrase under spaced repetition.
type Item struct {
	ID             string     `db:"id"`
	LearnerID      int64      `db:"learner_id"`
	Kind           Kind       `db:"kind"`
	Content        string     `db:"content"`
	Difficulty     int        `db:"difficulty"`
	EaseFactor     float64    `db:"ease_factor"`
	IntervalDays   float64    `db:"interval_days"`
	Repetitions    int        `db:"repetitions"`
	NextDueAt      time.Time  `db:"next_due_at"`
	LastReviewedAt *time.Time `db:"last_reviewed_at"`
	CreatedAt      time.Time  `db:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"`
}

// Mastered reports whether the interval reached masteredDays.
func (i *Item) Mastered(masteredDays float64) bool {
	return i.IntervalDays >= masteredDays
}

// NewItem describes an item to add to the bank.
type NewItem struct {
	Kind       Kind
	Content    string
	Difficulty int
}

// ReviewEvent is one immutable grading outcome.
type ReviewEvent struct {
	ID         string    `db:"id"`
	ItemID     string    `db:"item_id"`
	LearnerID  int64     `db:"learner_id"`
	Seq        int       `db:"seq"`
	Correct    bool      `db:"correct"`
	LatencyMs  int64     `db:"latency_ms"`
	ReviewedAt time.Time `db:"reviewed_at"`
}

// Latency returns the response latency of the review.
func (e ReviewEvent) Latency() time.Duration {
	return time.Duration(e.LatencyMs) * time.Millisecond
}

// Plan is the learner facing view of the item bank.
type Plan struct {
	Due      []Item
	DueCount int
	Upcoming []Item
	Mastered int
	Total    int
}

// Stats aggregates the review log and item bank of a learner.
type Stats struct {
	Reviews    int
	Correct    int
	ActiveDays int
	Mastered   int
	Total      int
}

// Accuracy is the share of correct reviews, zero without reviews.
func (s Stats) Accuracy() float64 {
	if s.Reviews == 0 {
		return 0
	}
	return float64(s.Correct) / float64(s.Reviews)
}

type itemStats struct {
	Total    int `db:"total"`
	Mastered int `db:"mastered"`
}

type reviewStats struct {
	Total      int `db:"total"`
	Correct    int `db:"correct"`
	ActiveDays int `db:"active_days"`
}

type kindMisses struct {
	Kind   Kind `db:"kind"`
	Misses int  `db:"misses"`
}
