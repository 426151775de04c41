// Package tutor exposes the named learner operations behind the transport
// commands.
package tutor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Gidwell/jiro/internal/apperr"
	"github.com/Gidwell/jiro/internal/audiostore"
	"github.com/Gidwell/jiro/internal/conversation"
	"github.com/Gidwell/jiro/internal/database"
	"github.com/Gidwell/jiro/internal/learner"
	"github.com/Gidwell/jiro/internal/learning"
	"github.com/Gidwell/jiro/internal/session"
	"github.com/Gidwell/jiro/internal/turn"
)

const (
	// PlanItems is how many due and upcoming items a plan lists.
	PlanItems = 10
	// ReviewItems is the default size of a review batch.
	ReviewItems = 5
	// AbsentDays is the absence after which a learner is welcomed back
	// gently.
	AbsentDays = 3

	settingsAttempts = 3
)

// Dependencies are the collaborators of a Service.
type Dependencies struct {
	Gateway      *database.Gateway
	Learners     *learner.Store
	Bank         *learning.Bank
	Turns        *conversation.Repository
	Sessions     *session.Manager
	Orchestrator *turn.Orchestrator
	Audio        audiostore.Store
}

type Service struct {
	Dependencies
	confirmations *Confirmations
	now           func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func WithConfirmations(c *Confirmations) Option {
	return func(s *Service) {
		s.confirmations = c
	}
}

func NewService(deps Dependencies, opts ...Option) *Service {
	s := &Service{Dependencies: deps, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if s.confirmations == nil {
		s.confirmations = NewConfirmations(DefaultConfirmationTTL, s.now)
	}
	return s
}

// Welcome is the state shown when a learner starts talking.
type Welcome struct {
	Learner  *learner.Learner
	Session  session.Snapshot
	New      bool
	Returned bool
	Streak   int
	DueCount int
}

// StartTalk opens a session, creating the learner on first contact.
func (s *Service) StartTalk(ctx context.Context, learnerID int64, displayName string) (*Welcome, error) {
	l, created, err := s.Orchestrator.Enroll(ctx, learnerID, displayName)
	if err != nil {
		return nil, err
	}
	due, err := s.Bank.CountDue(ctx, learnerID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	welcome := &Welcome{
		Learner:  l,
		Session:  s.Sessions.Ensure(learnerID, string(l.Mode)),
		New:      created,
		Streak:   l.CurrentStreak(now),
		DueCount: due,
	}
	if l.LastActiveAt != nil {
		loc := l.Location()
		welcome.Returned = learner.DaysBetween(learner.LocalDay(*l.LastActiveAt, loc), learner.LocalDay(now, loc)) >= AbsentDays
	}
	return welcome, nil
}

// Talk runs one turn.
func (s *Service) Talk(ctx context.Context, req turn.Request) (*turn.Result, error) {
	return s.Orchestrator.Handle(ctx, req)
}

// SetMode switches the conversational mode of the session and stores it as
// the learner's default. A zero version means the current one.
func (s *Service) SetMode(ctx context.Context, learnerID int64, mode string, version uint64) (session.Snapshot, error) {
	parsed, ok := learner.ParseMode(mode)
	if !ok {
		return session.Snapshot{}, apperr.NewValidation("mode", fmt.Sprintf("%q is not one of free, drill, review", mode))
	}
	l, err := s.Learners.Get(ctx, learnerID)
	if err != nil {
		return session.Snapshot{}, err
	}

	current := s.Sessions.Ensure(learnerID, string(l.Mode))
	if version == 0 {
		version = current.Version
	}
	snapshot, err := s.Sessions.SetMode(learnerID, string(parsed), version)
	if err != nil {
		return snapshot, err
	}

	if _, err := s.updateSettings(ctx, learnerID, func(settings *learner.Settings) {
		settings.Mode = parsed
	}); err != nil {
		return snapshot, err
	}
	return snapshot, nil
}

// GetPlan lists what is due and what comes next.
func (s *Service) GetPlan(ctx context.Context, learnerID int64) (*learning.Plan, error) {
	if _, err := s.Learners.Get(ctx, learnerID); err != nil {
		return nil, err
	}
	return s.Bank.Plan(ctx, learnerID, PlanItems)
}

// GetDueReview returns the next review batch, most overdue first.
func (s *Service) GetDueReview(ctx context.Context, learnerID int64, limit int) ([]learning.Item, error) {
	if _, err := s.Learners.Get(ctx, learnerID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = ReviewItems
	}
	return s.Bank.DueItems(ctx, learnerID, limit)
}

// Stats is the learner facing progress report.
type Stats struct {
	learning.Stats
	Streak     int
	TurnsToday int
	DueCount   int
	Strictness learner.Strictness
	Mode       learner.Mode
}

func (s *Service) GetStats(ctx context.Context, learnerID int64) (*Stats, error) {
	l, err := s.Learners.Get(ctx, learnerID)
	if err != nil {
		return nil, err
	}
	bankStats, err := s.Bank.Stats(ctx, learnerID)
	if err != nil {
		return nil, err
	}
	due, err := s.Bank.CountDue(ctx, learnerID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	local := now.In(l.Location())
	startOfDay := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, local.Location())
	today, err := s.Turns.CountSince(ctx, learnerID, startOfDay)
	if err != nil {
		return nil, err
	}

	return &Stats{
		Stats:      *bankStats,
		Streak:     l.CurrentStreak(now),
		TurnsToday: today,
		DueCount:   due,
		Strictness: l.Strictness,
		Mode:       l.Mode,
	}, nil
}

// SetStrict sets the correction level. An empty level cycles light, normal
// and strict.
func (s *Service) SetStrict(ctx context.Context, learnerID int64, level string) (learner.Strictness, error) {
	var explicit learner.Strictness
	if level != "" {
		parsed, ok := learner.ParseStrictness(level)
		if !ok {
			return "", apperr.NewValidation("strictness", fmt.Sprintf("%q is not one of light, normal, strict", level))
		}
		explicit = parsed
	}

	l, err := s.updateSettings(ctx, learnerID, func(settings *learner.Settings) {
		if explicit != "" {
			settings.Strictness = explicit
			return
		}
		settings.Strictness = settings.Strictness.Next()
	})
	if err != nil {
		return "", err
	}
	return l.Strictness, nil
}

// SetDeliveryTime changes when the daily prompt is sent, as HH:MM in the
// learner's time zone. An empty timezone keeps the current one.
func (s *Service) SetDeliveryTime(ctx context.Context, learnerID int64, hhmm, timezone string) (*learner.Learner, error) {
	return s.updateSettings(ctx, learnerID, func(settings *learner.Settings) {
		settings.DeliveryTime = hhmm
		if timezone != "" {
			settings.Timezone = timezone
		}
	})
}

// updateSettings applies change to the stored settings, re-reading when a
// concurrent writer bumped the revision.
func (s *Service) updateSettings(ctx context.Context, learnerID int64, change func(*learner.Settings)) (*learner.Learner, error) {
	var lastErr error
	for range settingsAttempts {
		l, err := s.Learners.Get(ctx, learnerID)
		if err != nil {
			return nil, err
		}
		settings := l.Settings()
		change(&settings)
		updated, err := s.Learners.UpdateSettings(ctx, learnerID, l.Revision, settings)
		if err == nil {
			return updated, nil
		}
		if !apperr.IsStale(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// LastReply is the most recent tutor reply.
type LastReply struct {
	Text     string
	AudioRef string
}

// GetLastReply returns the last reply of the live session, falling back to
// the conversation log.
func (s *Service) GetLastReply(ctx context.Context, learnerID int64) (*LastReply, error) {
	if snapshot, err := s.Sessions.Get(learnerID); err == nil && snapshot.LastReply != "" {
		reply := &LastReply{Text: snapshot.LastReply}
		if last, found, err := s.Turns.Last(ctx, learnerID); err == nil && found && last.Reply == snapshot.LastReply {
			reply.AudioRef = last.ReplyAudioRef.String
		}
		return reply, nil
	}

	last, found, err := s.Turns.Last(ctx, learnerID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, apperr.NewNotFound("reply", learnerID)
	}
	return &LastReply{Text: last.Reply, AudioRef: last.ReplyAudioRef.String}, nil
}

// Grade records the learner's answer to a review item.
func (s *Service) Grade(ctx context.Context, learnerID int64, itemID string, correct bool, latency time.Duration) (*learning.Item, error) {
	item, err := s.Bank.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item.LearnerID != learnerID {
		return nil, apperr.NewNotFound("item", itemID)
	}
	return s.Bank.Grade(ctx, itemID, correct, latency)
}

// RequestDeletion issues the token that must be echoed to DeleteLearnerData.
func (s *Service) RequestDeletion(learnerID int64) string {
	return s.confirmations.Issue(learnerID)
}

// Deletion reports what DeleteLearnerData removed.
type Deletion struct {
	SessionClosed bool
	AudioObjects  int
}

// DeleteLearnerData removes every row of the learner across all tables in
// one write scope, closes the session and removes stored audio. Calling it
// for a learner that has no data succeeds.
func (s *Service) DeleteLearnerData(ctx context.Context, learnerID int64, token string) (*Deletion, error) {
	if !s.confirmations.Redeem(learnerID, token) {
		return nil, apperr.NewValidation("confirmation", "confirmation token is missing, expired or does not match")
	}
	return s.Purge(ctx, learnerID)
}

// Purge is DeleteLearnerData without the confirmation step, for operator
// tooling.
func (s *Service) Purge(ctx context.Context, learnerID int64) (*Deletion, error) {
	// cancel the in-flight turn first so its commit is refused
	_, closed := s.Sessions.Teardown(learnerID)

	// audio objects go only after the rows referencing them are gone
	var refs []string
	err := s.Gateway.WithWrite(ctx, learnerID, func(ctx context.Context, tx *database.WriteTx) error {
		var err error
		refs, err = s.Turns.AudioRefsTx(ctx, tx, learnerID)
		if err != nil {
			return err
		}
		if err := s.Bank.DeleteTx(ctx, tx, learnerID); err != nil {
			return err
		}
		if err := s.Turns.DeleteTx(ctx, tx, learnerID); err != nil {
			return err
		}
		return s.Learners.DeleteTx(ctx, tx, learnerID)
	})
	if err != nil {
		return nil, fmt.Errorf("delete data of learner %d: %w", learnerID, err)
	}

	deletion := &Deletion{SessionClosed: closed}
	var audioErrs []error
	if s.Audio != nil {
		for _, ref := range refs {
			if err := s.Audio.Delete(ctx, ref); err != nil {
				audioErrs = append(audioErrs, err)
				continue
			}
			deletion.AudioObjects++
		}
	}
	if err := errors.Join(audioErrs...); err != nil {
		slog.Default().Warn("failed to delete some audio objects",
			"learner_id", learnerID,
			"failed", len(audioErrs),
			"error", err)
	}
	slog.Default().Info("deleted learner data",
		"learner_id", learnerID,
		"session_closed", closed,
		"audio_objects", deletion.AudioObjects)
	return deletion, nil
}
