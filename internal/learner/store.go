package learner

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Gidwell/jiro/internal/apperr"
	"github.com/Gidwell/jiro/internal/config"
	"github.com/Gidwell/jiro/internal/database"
)

// ErrSummaryAdvanced is returned by ReplaceSummary when another writer
// replaced the summary after it was read.
var ErrSummaryAdvanced = errors.New("summary advanced since it was read")

// Defaults are applied to a learner created on first contact.
type Defaults struct {
	Strictness   Strictness
	DeliveryTime string
	Timezone     string
	Mode         Mode
}

// DefaultsFromConfig converts the configured defaults.
func DefaultsFromConfig(cfg config.LearnerConfig) Defaults {
	return Defaults{
		Strictness:   Strictness(cfg.DefaultStrictness),
		DeliveryTime: cfg.DefaultDeliveryTime,
		Timezone:     cfg.DefaultTimezone,
		Mode:         ModeFree,
	}
}

// Store reads and writes learners through the gateway.
type Store struct {
	gateway  *database.Gateway
	defaults Defaults
	now      func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates a new Store.
func NewStore(gateway *database.Gateway, defaults Defaults, opts ...Option) *Store {
	s := &Store{
		gateway:  gateway,
		defaults: defaults,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) clock() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// Get returns the learner or a NotFoundError.
func (s *Store) Get(ctx context.Context, id int64) (*Learner, error) {
	var l Learner
	if err := s.gateway.Get(ctx, &l, database.IntentSelectLearner, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NewNotFound("learner", id)
		}
		return nil, fmt.Errorf("load learner %d: %w", id, err)
	}
	return &l, nil
}

// GetTx reads the learner inside a write scope.
func (s *Store) GetTx(ctx context.Context, tx *database.WriteTx, id int64) (*Learner, error) {
	var l Learner
	if err := tx.Get(ctx, &l, database.IntentSelectLearner, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NewNotFound("learner", id)
		}
		return nil, fmt.Errorf("load learner %d: %w", id, err)
	}
	return &l, nil
}

// EnsureExists returns the learner, creating it with the defaults on first
// contact. created reports whether this call inserted the row.
func (s *Store) EnsureExists(ctx context.Context, id int64, displayName string) (l *Learner, created bool, err error) {
	l, err = s.Get(ctx, id)
	if err == nil {
		return l, false, nil
	}
	if !apperr.IsNotFound(err) {
		return nil, false, err
	}

	err = s.gateway.WithWrite(ctx, id, func(ctx context.Context, tx *database.WriteTx) error {
		existing, err := s.GetTx(ctx, tx, id)
		if err == nil {
			l = existing
			return nil
		}
		if !apperr.IsNotFound(err) {
			return err
		}
		l, err = s.insert(ctx, tx, id, displayName)
		created = err == nil
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return l, created, nil
}

func (s *Store) insert(ctx context.Context, tx *database.WriteTx, id int64, displayName string) (*Learner, error) {
	now := s.clock()
	l := &Learner{
		ID:            id,
		DisplayName:   displayName,
		Strictness:    s.defaults.Strictness,
		DeliveryTime:  s.defaults.DeliveryTime,
		Timezone:      s.defaults.Timezone,
		Mode:          s.defaults.Mode,
		ErrorPatterns: ErrorPatterns{},
		Revision:      1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	_, err := tx.Exec(ctx, database.IntentInsertLearner,
		l.ID, l.DisplayName, string(l.Strictness), l.DeliveryTime, l.Timezone, string(l.Mode),
		l.StreakCount, l.StreakDay, l.LastActiveAt, l.CheckpointAt, l.ErrorPatterns,
		l.Revision, l.CreatedAt, l.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert learner %d: %w", id, err)
	}
	return l, nil
}

// ValidateSettings checks every editable field.
func ValidateSettings(settings Settings) error {
	if _, ok := ParseStrictness(string(settings.Strictness)); !ok {
		return apperr.NewValidation("strictness", fmt.Sprintf("%q is not one of light, normal, strict", settings.Strictness))
	}
	if !config.IsHHMM(settings.DeliveryTime) {
		return apperr.NewValidation("delivery_time", fmt.Sprintf("%q is not a time in HH:MM format", settings.DeliveryTime))
	}
	if settings.Timezone == "" {
		return apperr.NewValidation("timezone", "time zone is empty")
	}
	if _, err := time.LoadLocation(settings.Timezone); err != nil {
		return apperr.NewValidation("timezone", fmt.Sprintf("unknown time zone %q", settings.Timezone))
	}
	if _, ok := ParseMode(string(settings.Mode)); !ok {
		return apperr.NewValidation("mode", fmt.Sprintf("%q is not one of free, drill, review", settings.Mode))
	}
	return nil
}

// UpdateSettings replaces the editable fields when the stored revision still
// equals revision. Otherwise it fails with a StaleSessionError and the
// caller must re-read.
func (s *Store) UpdateSettings(ctx context.Context, id int64, revision uint64, settings Settings) (*Learner, error) {
	if err := ValidateSettings(settings); err != nil {
		return nil, err
	}

	var updated *Learner
	err := s.gateway.WithWrite(ctx, id, func(ctx context.Context, tx *database.WriteTx) error {
		current, err := s.GetTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if current.Revision != revision {
			return &apperr.StaleSessionError{LearnerID: id, Expected: revision, Actual: current.Revision}
		}

		now := s.clock()
		result, err := tx.Exec(ctx, database.IntentUpdateLearnerSettings,
			string(settings.Strictness), settings.DeliveryTime, settings.Timezone, string(settings.Mode),
			now, id, revision)
		if err != nil {
			return fmt.Errorf("update learner %d settings: %w", id, err)
		}
		if err := expectOneRow(result, id, revision); err != nil {
			return err
		}

		current.Strictness = settings.Strictness
		current.DeliveryTime = settings.DeliveryTime
		current.Timezone = settings.Timezone
		current.Mode = settings.Mode
		current.Revision++
		current.UpdatedAt = now
		updated = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Touch records activity. It does not change the revision.
func (s *Store) Touch(ctx context.Context, tx *database.WriteTx, id int64, at time.Time) error {
	if _, err := tx.Exec(ctx, database.IntentTouchLearner, at, s.clock(), id); err != nil {
		return fmt.Errorf("touch learner %d: %w", id, err)
	}
	return nil
}

// UpdateModel writes the derived streak, checkpoint and error patterns of l
// inside tx, guarded by l.Revision. On success l.Revision is advanced.
func (s *Store) UpdateModel(ctx context.Context, tx *database.WriteTx, l *Learner) error {
	now := s.clock()
	result, err := tx.Exec(ctx, database.IntentUpdateLearnerModel,
		l.StreakCount, l.StreakDay, l.CheckpointAt, l.ErrorPatterns, now, l.ID, l.Revision)
	if err != nil {
		return fmt.Errorf("update learner %d model: %w", l.ID, err)
	}
	if err := expectOneRow(result, l.ID, l.Revision); err != nil {
		return err
	}
	l.Revision++
	l.UpdatedAt = now
	return nil
}

func expectOneRow(result sql.Result, id int64, revision uint64) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected != 1 {
		return &apperr.StaleSessionError{LearnerID: id, Expected: revision}
	}
	return nil
}

// GetSummary returns the learner summary or a NotFoundError.
func (s *Store) GetSummary(ctx context.Context, id int64) (*Summary, error) {
	var summary Summary
	if err := s.gateway.Get(ctx, &summary, database.IntentSelectSummary, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NewNotFound("summary", id)
		}
		return nil, fmt.Errorf("load summary of learner %d: %w", id, err)
	}
	return &summary, nil
}

// ReplaceSummary overwrites the summary inside tx when the stored cursor
// still equals readThrough, the value seen before summarizing.
func (s *Store) ReplaceSummary(ctx context.Context, tx *database.WriteTx, summary Summary, readThrough *time.Time) error {
	var current Summary
	err := tx.Get(ctx, &current, database.IntentSelectSummary, summary.LearnerID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		current.TurnsThrough = nil
	case err != nil:
		return fmt.Errorf("load summary of learner %d: %w", summary.LearnerID, err)
	}
	if !sameInstant(current.TurnsThrough, readThrough) {
		return ErrSummaryAdvanced
	}

	summary.UpdatedAt = s.clock()
	if _, err := tx.Exec(ctx, database.IntentUpsertSummary,
		summary.LearnerID, summary.Summary, summary.TurnsThrough, summary.UpdatedAt); err != nil {
		return fmt.Errorf("replace summary of learner %d: %w", summary.LearnerID, err)
	}
	return nil
}

func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// ListIDs returns every known learner id.
func (s *Store) ListIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	if err := s.gateway.Select(ctx, &ids, database.IntentSelectLearnerIDs); err != nil {
		return nil, fmt.Errorf("list learners: %w", err)
	}
	return ids, nil
}

// DeleteTx removes the summary and the learner row inside tx.
func (s *Store) DeleteTx(ctx context.Context, tx *database.WriteTx, id int64) error {
	if _, err := tx.Exec(ctx, database.IntentDeleteSummary, id); err != nil {
		return fmt.Errorf("delete summary of learner %d: %w", id, err)
	}
	if _, err := tx.Exec(ctx, database.IntentDeleteLearner, id); err != nil {
		return fmt.Errorf("delete learner %d: %w", id, err)
	}
	return nil
}
