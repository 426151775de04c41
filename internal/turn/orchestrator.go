// Package turn runs one conversational turn end to end: transcription,
// reply generation, speech synthesis and persistence, driving the session
// state machine through each step.
package turn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Gidwell/jiro/internal/apperr"
	"github.com/Gidwell/jiro/internal/audiostore"
	"github.com/Gidwell/jiro/internal/config"
	"github.com/Gidwell/jiro/internal/conversation"
	"github.com/Gidwell/jiro/internal/curriculum"
	"github.com/Gidwell/jiro/internal/database"
	"github.com/Gidwell/jiro/internal/eventstream"
	"github.com/Gidwell/jiro/internal/inference"
	"github.com/Gidwell/jiro/internal/jobs"
	"github.com/Gidwell/jiro/internal/learner"
	"github.com/Gidwell/jiro/internal/learning"
	"github.com/Gidwell/jiro/internal/observability"
	"github.com/Gidwell/jiro/internal/session"
	"github.com/Gidwell/jiro/internal/voice"
)

// FailureMessage is the one reply given to the learner when a turn fails.
const FailureMessage = "ごめんなさい、うまくいきませんでした。もう一度お願いします。 (Sorry, something went wrong. Please try again!)"

const (
	limitMessage = "今日はここまで!また明日話しましょう。 (You've reached today's limit. Great work, come back tomorrow!)"
	busyMessage  = "ちょっと待ってね、まだ前の返事を考えています。 (Still working on your last message.)"
)

// FailureReply maps a failed turn to what the learner is told.
func FailureReply(err error) string {
	var limit *apperr.LimitExceededError
	switch {
	case errors.As(err, &limit):
		return limitMessage
	case apperr.IsBusy(err):
		return busyMessage
	default:
		return FailureMessage
	}
}

// Enqueuer accepts background jobs.
type Enqueuer interface {
	Enqueue(kind jobs.Kind, learnerID int64) bool
}

// Request is one learner utterance. Either Audio or Transcript is set.
type Request struct {
	LearnerID   int64
	DisplayName string
	// Version is the session version the client last saw. Zero means the
	// current one.
	Version    uint64
	Transcript string
	Audio      *voice.Audio
}

// Result is a completed turn.
type Result struct {
	TurnID        string
	Transcript    string
	Reply         inference.Reply
	ReplyAudio    []byte
	ReplyAudioRef string
	Session       session.Snapshot
	Graded        int
}

// Dependencies are the collaborators of an Orchestrator.
type Dependencies struct {
	Gateway     *database.Gateway
	Learners    *learner.Store
	Bank        *learning.Bank
	Turns       *conversation.Repository
	Sessions    *session.Manager
	Planner     *curriculum.Planner
	Client      inference.Client
	Transcriber voice.Transcriber
	Synthesizer voice.Synthesizer
	Audio       audiostore.Store
	Publisher   eventstream.Publisher
	Jobs        Enqueuer
	Metrics     *observability.Metrics
	Tracer      trace.Tracer
	Profile     voice.Profile
}

// Orchestrator runs turns.
type Orchestrator struct {
	Dependencies
	cfg config.TurnConfig
	now func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

func NewOrchestrator(deps Dependencies, cfg config.TurnConfig, opts ...Option) *Orchestrator {
	if deps.Tracer == nil {
		deps.Tracer = observability.Tracer()
	}
	o := &Orchestrator{Dependencies: deps, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Handle runs one turn. On any failure after the session left Idle the
// session is returned to Idle before the error is returned.
func (o *Orchestrator) Handle(ctx context.Context, req Request) (result *Result, err error) {
	ctx, span := o.Tracer.Start(ctx, "turn.handle", trace.WithAttributes(attribute.Int64("learner_id", req.LearnerID)))
	defer func() {
		outcome := "ok"
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			outcome = outcomeOf(err)
		}
		if o.Metrics != nil {
			o.Metrics.TurnFinished(outcome)
		}
		span.End()
	}()

	l, err := o.intake(ctx, req)
	if err != nil {
		return nil, err
	}

	transcript := req.Transcript
	if req.Audio != nil {
		if err := o.stage(ctx, apperr.StageTranscription, func(ctx context.Context) error {
			var err error
			transcript, err = o.Transcriber.Transcribe(ctx, *req.Audio)
			return err
		}); err != nil {
			if errors.Is(err, voice.ErrNoSpeech) {
				return nil, apperr.NewValidation("audio", "no speech was detected in the voice note")
			}
			return nil, apperr.NewTransient(apperr.StageTranscription, err)
		}
	}
	if transcript == "" {
		return nil, apperr.NewValidation("transcript", "no speech was recognized")
	}

	snapshot := o.Sessions.Ensure(req.LearnerID, string(l.Mode))
	version := req.Version
	if version == 0 {
		version = snapshot.Version
	}
	turnCtx, snapshot, err := o.Sessions.BeginTurn(ctx, req.LearnerID, version)
	if err != nil {
		return nil, err
	}
	turnID, startedAt := snapshot.TurnID, snapshot.TurnStartedAt
	committed := false
	defer func() {
		if !committed {
			if _, abortErr := o.Sessions.AbortTurn(req.LearnerID, turnID); abortErr != nil {
				slog.Default().Debug("abort turn", "learner_id", req.LearnerID, "turn_id", turnID, "error", abortErr)
			}
		}
	}()

	conversationCtx, err := o.conversationContext(ctx, l, snapshot.Mode, transcript)
	if err != nil {
		return nil, err
	}

	var reply inference.Reply
	if err := o.stage(turnCtx, apperr.StageGeneration, func(ctx context.Context) error {
		var err error
		reply, err = o.Client.Generate(ctx, conversationCtx)
		return err
	}); err != nil {
		return nil, apperr.NewTransient(apperr.StageGeneration, err)
	}

	snapshot, err = o.Sessions.AwaitSynthesis(req.LearnerID, turnID, snapshot.Version)
	if err != nil {
		return nil, err
	}

	var replyAudio []byte
	if err := o.stage(turnCtx, apperr.StageSynthesis, func(ctx context.Context) error {
		var err error
		replyAudio, err = o.Synthesizer.Synthesize(ctx, reply.Spoken(), o.Profile)
		return err
	}); err != nil {
		return nil, apperr.NewTransient(apperr.StageSynthesis, err)
	}

	turn := conversation.NewTurn(req.LearnerID, transcript, reply.Spoken(), snapshot.Mode, o.now())
	turn.ID = turnID
	var stored []string
	if err := o.stage(turnCtx, apperr.StageAudioStore, func(ctx context.Context) error {
		if req.Audio != nil {
			ref, err := o.Audio.Put(ctx, audiostore.Key(req.LearnerID, turnID, "input", voice.Extension(req.Audio.MIMEType)), req.Audio.Data, req.Audio.MIMEType)
			if err != nil {
				return err
			}
			stored = append(stored, ref)
			turn.InputAudioRef.String, turn.InputAudioRef.Valid = ref, true
		}
		ref, err := o.Audio.Put(ctx, audiostore.Key(req.LearnerID, turnID, "reply", ".mp3"), replyAudio, "audio/mpeg")
		if err != nil {
			return err
		}
		stored = append(stored, ref)
		turn.ReplyAudioRef.String, turn.ReplyAudioRef.Valid = ref, true
		return nil
	}); err != nil {
		o.discardAudio(stored)
		return nil, apperr.NewTransient(apperr.StageAudioStore, err)
	}

	if _, err := o.Sessions.BeginCommit(req.LearnerID, turnID, snapshot.Version); err != nil {
		o.discardAudio(stored)
		return nil, err
	}
	if err := o.persist(ctx, turnCtx, &turn); err != nil {
		o.discardAudio(stored)
		return nil, err
	}
	committed = true

	snapshot, err = o.Sessions.FinishTurn(req.LearnerID, turnID, reply.Spoken())
	if err != nil {
		// the turn is durable; the session went away while it committed
		slog.Default().Warn("finish turn", "learner_id", req.LearnerID, "turn_id", turnID, "error", err)
	}

	graded := o.afterCommit(ctx, req, turn, reply, startedAt, snapshot)
	return &Result{
		TurnID:        turnID,
		Transcript:    transcript,
		Reply:         reply,
		ReplyAudio:    replyAudio,
		ReplyAudioRef: turn.ReplyAudioRef.String,
		Session:       snapshot,
		Graded:        graded,
	}, nil
}

// intake loads or creates the learner, seeds a new learner's item bank and
// enforces the input limits.
func (o *Orchestrator) intake(ctx context.Context, req Request) (*learner.Learner, error) {
	if req.Audio == nil && req.Transcript == "" {
		return nil, apperr.NewValidation("input", "either audio or a transcript is required")
	}
	if req.Audio != nil && o.cfg.MaxAudioDuration > 0 && req.Audio.Duration > o.cfg.MaxAudioDuration {
		return nil, apperr.NewValidation("audio", fmt.Sprintf("voice note of %s is longer than %s", req.Audio.Duration, o.cfg.MaxAudioDuration))
	}

	l, _, err := o.Enroll(ctx, req.LearnerID, req.DisplayName)
	if err != nil {
		return nil, err
	}

	if o.cfg.DailyLimit > 0 {
		local := o.now().In(l.Location())
		startOfDay := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, local.Location())
		count, err := o.Turns.CountSince(ctx, req.LearnerID, startOfDay)
		if err != nil {
			return nil, err
		}
		if count >= o.cfg.DailyLimit {
			return nil, &apperr.LimitExceededError{LearnerID: req.LearnerID, Limit: o.cfg.DailyLimit}
		}
	}
	return l, nil
}

// Enroll loads the learner, creating it and seeding its item bank on first
// contact.
func (o *Orchestrator) Enroll(ctx context.Context, learnerID int64, displayName string) (*learner.Learner, bool, error) {
	l, created, err := o.Learners.EnsureExists(ctx, learnerID, displayName)
	if err != nil {
		return nil, false, err
	}
	if created && o.Planner != nil {
		seeded, err := o.Bank.AddItems(ctx, learnerID, o.Planner.InitialItems())
		if err != nil {
			return nil, false, fmt.Errorf("seed item bank of learner %d: %w", learnerID, err)
		}
		slog.Default().Info("new learner", "learner_id", learnerID, "seeded_items", seeded)
	}
	return l, created, nil
}

func (o *Orchestrator) conversationContext(ctx context.Context, l *learner.Learner, mode, transcript string) (inference.ConversationContext, error) {
	recent, err := o.Turns.Recent(ctx, l.ID, o.cfg.ContextTurns)
	if err != nil {
		return inference.ConversationContext{}, err
	}
	due, err := o.Bank.DueItems(ctx, l.ID, o.cfg.DueItems)
	if err != nil {
		return inference.ConversationContext{}, err
	}
	summary, err := o.Learners.GetSummary(ctx, l.ID)
	if err != nil && !apperr.IsNotFound(err) {
		return inference.ConversationContext{}, err
	}

	conversationCtx := inference.ConversationContext{
		Transcript:    transcript,
		Mode:          mode,
		Strictness:    string(l.Strictness),
		ErrorPatterns: l.ErrorPatterns.Recurring(),
		RecentTurns:   make([]inference.Turn, 0, len(recent)),
		DueItems:      make([]inference.DueItem, 0, len(due)),
	}
	if summary != nil {
		conversationCtx.Summary = summary.Summary
	}
	for _, t := range recent {
		conversationCtx.RecentTurns = append(conversationCtx.RecentTurns, inference.Turn{
			Transcript: t.Transcript,
			Reply:      t.Reply,
			CreatedAt:  t.CreatedAt,
		})
	}
	for _, item := range due {
		conversationCtx.DueItems = append(conversationCtx.DueItems, inference.DueItem{
			ID:         item.ID,
			Kind:       string(item.Kind),
			Content:    item.Content,
			Difficulty: item.Difficulty,
		})
	}
	return conversationCtx, nil
}

// persist writes the turn and the learner activity in one write scope. The
// scope runs on ctx so it is never interrupted half way, but it refuses to
// write once the turn itself was cancelled. The turn is stamped under the
// lock so turn times follow commit order.
func (o *Orchestrator) persist(ctx, turnCtx context.Context, turn *conversation.Turn) error {
	start := time.Now()
	defer func() {
		if o.Metrics != nil {
			o.Metrics.ObserveStage("persist", time.Since(start))
		}
	}()
	return o.Gateway.WithWrite(ctx, turn.LearnerID, func(ctx context.Context, tx *database.WriteTx) error {
		if err := turnCtx.Err(); err != nil {
			return fmt.Errorf("turn %s cancelled before commit: %w", turn.ID, err)
		}
		turn.CreatedAt = o.now()
		if err := o.Turns.InsertTx(ctx, tx, *turn); err != nil {
			return err
		}
		return o.Learners.Touch(ctx, tx, turn.LearnerID, turn.CreatedAt)
	})
}

// afterCommit publishes the turn, applies the item assessments and triggers
// the background jobs. Failures here are logged; the turn stays committed.
func (o *Orchestrator) afterCommit(ctx context.Context, req Request, turn conversation.Turn, reply inference.Reply, startedAt time.Time, snapshot session.Snapshot) int {
	if o.Publisher != nil {
		event := newTurnEvent(turn, len(reply.Assessments), startedAt, o.now(), snapshot.Version)
		if err := o.Publisher.PublishTurn(ctx, event); err != nil {
			slog.Default().Warn("failed to publish turn event", "turn_id", turn.ID, "error", err)
		}
	}

	// text turns have no measured latency and grade in the normal bucket
	var latency time.Duration
	if req.Audio != nil {
		latency = req.Audio.Duration
	}
	graded := 0
	for _, assessment := range reply.Assessments {
		if _, err := o.Bank.Grade(ctx, assessment.ItemID, assessment.Correct, latency); err != nil {
			slog.Default().Warn("failed to grade item",
				"learner_id", turn.LearnerID,
				"item_id", assessment.ItemID,
				"error", err)
			continue
		}
		graded++
	}

	if o.Jobs != nil {
		for _, kind := range jobs.Kinds {
			o.Jobs.Enqueue(kind, turn.LearnerID)
		}
	}
	return graded
}

func (o *Orchestrator) discardAudio(refs []string) {
	for _, ref := range refs {
		if err := o.Audio.Delete(context.Background(), ref); err != nil {
			slog.Default().Warn("failed to delete orphaned audio", "ref", ref, "error", err)
		}
	}
}

// stage runs one external step under its own span and duration metric.
func (o *Orchestrator) stage(ctx context.Context, stage apperr.Stage, fn func(ctx context.Context) error) error {
	ctx, span := o.Tracer.Start(ctx, "turn."+string(stage))
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	if o.Metrics != nil {
		o.Metrics.ObserveStage(string(stage), time.Since(start))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func outcomeOf(err error) string {
	var limit *apperr.LimitExceededError
	var validation *apperr.ValidationError
	if stage, ok := apperr.StageOf(err); ok {
		return string(stage)
	}
	switch {
	case apperr.IsBusy(err):
		return "busy"
	case apperr.IsStale(err):
		return "stale"
	case errors.As(err, &limit):
		return "limit"
	case errors.As(err, &validation):
		return "invalid"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "error"
	}
}

func newTurnEvent(turn conversation.Turn, assessments int, startedAt, completedAt time.Time, version uint64) *eventstream.TurnPersistedEvent {
	return &eventstream.TurnPersistedEvent{
		SchemaVersion: eventstream.SchemaVersionV1,
		EventType:     eventstream.EventTypeTurnPersisted,
		EventID:       uuid.NewString(),
		EmittedAt:     completedAt.UTC(),
		LearnerID:     turn.LearnerID,
		Turn: eventstream.TurnMeta{
			ID:             turn.ID,
			Mode:           turn.Mode,
			Transcript:     turn.Transcript,
			Reply:          turn.Reply,
			InputAudio:     turn.InputAudioRef.Valid,
			ReplyAudio:     turn.ReplyAudioRef.Valid,
			StartedAt:      startedAt.UTC(),
			CompletedAt:    completedAt.UTC(),
			DurationMs:     completedAt.Sub(startedAt).Milliseconds(),
			Assessments:    assessments,
			SessionVersion: version,
		},
	}
}
