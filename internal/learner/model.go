// Package learner stores per-learner settings, the derived learner model and
// the conversation summary.
package learner

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
	_ "time/tzdata"
)

// Strictness controls how closely the tutor corrects the learner.
type Strictness string

const (
	StrictnessLight  Strictness = "light"
	StrictnessNormal Strictness = "normal"
	StrictnessStrict Strictness = "strict"
)

// ParseStrictness validates s.
func ParseStrictness(s string) (Strictness, bool) {
	switch Strictness(s) {
	case StrictnessLight, StrictnessNormal, StrictnessStrict:
		return Strictness(s), true
	}
	return "", false
}

// Next cycles light, normal, strict and back to light.
func (s Strictness) Next() Strictness {
	switch s {
	case StrictnessLight:
		return StrictnessNormal
	case StrictnessNormal:
		return StrictnessStrict
	default:
		return StrictnessLight
	}
}

// Mode is the conversational mode. It is independent of the turn state.
type Mode string

const (
	ModeFree   Mode = "free"
	ModeDrill  Mode = "drill"
	ModeReview Mode = "review"
)

// ParseMode validates s.
func ParseMode(s string) (Mode, bool) {
	switch Mode(s) {
	case ModeFree, ModeDrill, ModeReview:
		return Mode(s), true
	}
	return "", false
}

// ErrorPatterns counts recurring error types, stored as a JSON object.
type ErrorPatterns map[string]int

// Scan implements sql.Scanner.
func (p *ErrorPatterns) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*p = ErrorPatterns{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("scan error patterns: unsupported type %T", src)
	}
	patterns := ErrorPatterns{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &patterns); err != nil {
			return fmt.Errorf("unmarshal error patterns: %w", err)
		}
	}
	*p = patterns
	return nil
}

// Value implements driver.Valuer.
func (p ErrorPatterns) Value() (driver.Value, error) {
	if p == nil {
		return "{}", nil
	}
	b, err := json.Marshal(map[string]int(p))
	if err != nil {
		return nil, fmt.Errorf("marshal error patterns: %w", err)
	}
	return string(b), nil
}

// RecurringThreshold is how often an error type must be seen before it is
// treated as a pattern.
const RecurringThreshold = 2

// Recurring returns the patterns seen at least RecurringThreshold times.
func (p ErrorPatterns) Recurring() map[string]int {
	recurring := make(map[string]int, len(p))
	for k, v := range p {
		if v >= RecurringThreshold {
			recurring[k] = v
		}
	}
	return recurring
}

// Add accumulates counts into p.
func (p ErrorPatterns) Add(counts map[string]int) {
	for k, v := range counts {
		if v > 0 {
			p[k] += v
		}
	}
}

// Learner is the durable per-learner aggregate.
type Learner struct {
	ID            int64         `db:"id"`
	DisplayName   string        `db:"display_name"`
	Strictness    Strictness    `db:"strictness"`
	DeliveryTime  string        `db:"delivery_time"`
	Timezone      string        `db:"timezone"`
	Mode          Mode          `db:"mode"`
	StreakCount   int           `db:"streak_count"`
	StreakDay     *time.Time    `db:"streak_day"`
	LastActiveAt  *time.Time    `db:"last_active_at"`
	CheckpointAt  *time.Time    `db:"checkpoint_at"`
	ErrorPatterns ErrorPatterns `db:"error_patterns"`
	Revision      uint64        `db:"revision"`
	CreatedAt     time.Time     `db:"created_at"`
	UpdatedAt     time.Time     `db:"updated_at"`
}

// Location loads the learner's time zone, falling back to UTC.
func (l *Learner) Location() *time.Location {
	loc, err := time.LoadLocation(l.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// CurrentStreak is the streak as shown to the learner: it drops to zero
// once a full local day has passed without activity.
func (l *Learner) CurrentStreak(now time.Time) int {
	if l.StreakDay == nil {
		return 0
	}
	if DaysBetween(*l.StreakDay, LocalDay(now, l.Location())) > 1 {
		return 0
	}
	return l.StreakCount
}

// Settings are the learner editable fields.
type Settings struct {
	Strictness   Strictness
	DeliveryTime string
	Timezone     string
	Mode         Mode
}

// Settings returns the current editable fields.
func (l *Learner) Settings() Settings {
	return Settings{
		Strictness:   l.Strictness,
		DeliveryTime: l.DeliveryTime,
		Timezone:     l.Timezone,
		Mode:         l.Mode,
	}
}

// Summary is the condensed conversation history of a learner. TurnsThrough
// is the creation time of the newest turn it covers.
type Summary struct {
	LearnerID    int64      `db:"learner_id"`
	Summary      string     `db:"summary"`
	TurnsThrough *time.Time `db:"turns_through"`
	UpdatedAt    time.Time  `db:"updated_at"`
}

// LocalDay returns the calendar day of t in loc, encoded as midnight UTC so
// it can be stored and compared without a zone.
func LocalDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween counts calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	from := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	to := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(to.Sub(from).Hours() / 24)
}
