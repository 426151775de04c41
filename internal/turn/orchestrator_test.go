package turn

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/Gidwell/jiro/internal/apperr"
	"github.com/Gidwell/jiro/internal/config"
	"github.com/Gidwell/jiro/internal/conversation"
	"github.com/Gidwell/jiro/internal/curriculum"
	"github.com/Gidwell/jiro/internal/database"
	"github.com/Gidwell/jiro/internal/eventstream"
	"github.com/Gidwell/jiro/internal/inference"
	"github.com/Gidwell/jiro/internal/jobs"
	"github.com/Gidwell/jiro/internal/learner"
	"github.com/Gidwell/jiro/internal/learning"
	mock_audiostore "github.com/Gidwell/jiro/internal/mocks/audiostore"
	mock_eventstream "github.com/Gidwell/jiro/internal/mocks/eventstream"
	mock_inference "github.com/Gidwell/jiro/internal/mocks/inference"
	mock_voice "github.com/Gidwell/jiro/internal/mocks/voice"
	"github.com/Gidwell/jiro/internal/observability"
	"github.com/Gidwell/jiro/internal/session"
	"github.com/Gidwell/jiro/internal/testutil"
	"github.com/Gidwell/jiro/internal/voice"
)

var turnNow = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

type recordingEnqueuer struct {
	mu    sync.Mutex
	kinds []jobs.Kind
}

func (e *recordingEnqueuer) Enqueue(kind jobs.Kind, _ int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.kinds = append(e.kinds, kind)
	return true
}

type fixture struct {
	orchestrator *Orchestrator
	gateway      *database.Gateway
	learners     *learner.Store
	bank         *learning.Bank
	turns        *conversation.Repository
	sessions     *session.Manager
	metrics      *observability.Metrics
	enqueuer     *recordingEnqueuer

	client      *mock_inference.MockClient
	transcriber *mock_voice.MockTranscriber
	synthesizer *mock_voice.MockSynthesizer
	audio       *mock_audiostore.MockStore
	publisher   *mock_eventstream.MockPublisher
}

func newFixture(t *testing.T, cfg config.TurnConfig) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	gateway := testutil.NewSQLiteGateway(t)
	clock := testutil.FixedClock(turnNow)

	f := &fixture{
		gateway: gateway,
		learners: learner.NewStore(gateway, learner.Defaults{
			Strictness:   learner.StrictnessNormal,
			DeliveryTime: "08:00",
			Timezone:     "UTC",
			Mode:         learner.ModeFree,
		}, learner.WithClock(clock)),
		bank:        learning.NewBank(gateway, testutil.SchedulerConfig(), learning.WithClock(clock)),
		turns:       conversation.NewRepository(gateway),
		sessions:    session.NewManager(time.Hour),
		metrics:     observability.NewMetrics("test", prometheus.NewRegistry()),
		enqueuer:    &recordingEnqueuer{},
		client:      mock_inference.NewMockClient(ctrl),
		transcriber: mock_voice.NewMockTranscriber(ctrl),
		synthesizer: mock_voice.NewMockSynthesizer(ctrl),
		audio:       mock_audiostore.NewMockStore(ctrl),
		publisher:   mock_eventstream.NewMockPublisher(ctrl),
	}
	planner := curriculum.NewPlanner(&curriculum.Seed{
		Vocab:   []curriculum.SeedItem{{Content: "駅", Difficulty: 1}, {Content: "経験", Difficulty: 3}},
		Phrases: []curriculum.SeedItem{{Content: "どうも", Difficulty: 1}},
	}, f.bank)

	f.orchestrator = NewOrchestrator(Dependencies{
		Gateway:     gateway,
		Learners:    f.learners,
		Bank:        f.bank,
		Turns:       f.turns,
		Sessions:    f.sessions,
		Planner:     planner,
		Client:      f.client,
		Transcriber: f.transcriber,
		Synthesizer: f.synthesizer,
		Audio:       f.audio,
		Publisher:   f.publisher,
		Jobs:        f.enqueuer,
		Metrics:     f.metrics,
		Profile:     voice.Profile{VoiceID: "voice-1"},
	}, cfg, WithClock(clock))
	return f
}

var defaultTurnConfig = config.TurnConfig{
	ContextTurns:     6,
	DueItems:         5,
	DailyLimit:       50,
	MaxAudioDuration: time.Minute,
}

func (f *fixture) assertIdle(t *testing.T) {
	t.Helper()
	snapshot, err := f.sessions.Get(1)
	require.NoError(t, err)
	assert.Equal(t, session.StateIdle, snapshot.State)
	assert.Empty(t, snapshot.TurnID)
}

func (f *fixture) assertNoTurn(t *testing.T) {
	t.Helper()
	_, found, err := f.turns.Last(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestOrchestrator_Handle_VoiceTurn(t *testing.T) {
	f := newFixture(t, defaultTurnConfig)
	ctx := context.Background()
	audio := &voice.Audio{Data: []byte("ogg"), MIMEType: "audio/ogg", Duration: 4 * time.Second}

	f.transcriber.EXPECT().Transcribe(gomock.Any(), *audio).Return("昨日、駅に行きました", nil)

	var gradedID string
	f.client.EXPECT().Generate(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, conversation inference.ConversationContext) (inference.Reply, error) {
			assert.Equal(t, "昨日、駅に行きました", conversation.Transcript)
			assert.Equal(t, "free", conversation.Mode)
			assert.Equal(t, "normal", conversation.Strictness)
			assert.Empty(t, conversation.RecentTurns)
			// only the lowest tier is seeded
			require.Len(t, conversation.DueItems, 2)
			for _, item := range conversation.DueItems {
				if item.Content == "駅" {
					gradedID = item.ID
				}
			}
			require.NotEmpty(t, gradedID)
			return inference.Reply{
				Text:        "いいですね。",
				FollowUp:    "何をしに行きましたか?",
				Assessments: []inference.Assessment{{ItemID: gradedID, Correct: true}},
			}, nil
		})
	f.synthesizer.EXPECT().Synthesize(gomock.Any(), "いいですね。\n何をしに行きましたか?", voice.Profile{VoiceID: "voice-1"}).
		Return([]byte("mp3"), nil)
	f.audio.EXPECT().Put(gomock.Any(), gomock.Any(), []byte("ogg"), "audio/ogg").
		DoAndReturn(func(_ context.Context, key string, _ []byte, _ string) (string, error) {
			assert.Contains(t, key, "input.ogg")
			return "file:///audio/" + key, nil
		})
	f.audio.EXPECT().Put(gomock.Any(), gomock.Any(), []byte("mp3"), "audio/mpeg").
		DoAndReturn(func(_ context.Context, key string, _ []byte, _ string) (string, error) {
			assert.Contains(t, key, "reply.mp3")
			return "file:///audio/" + key, nil
		})

	var published *eventstream.TurnPersistedEvent
	f.publisher.EXPECT().PublishTurn(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, event *eventstream.TurnPersistedEvent) error {
			published = event
			return nil
		})

	result, err := f.orchestrator.Handle(ctx, Request{LearnerID: 1, DisplayName: "Aki", Audio: audio})
	require.NoError(t, err)

	assert.Equal(t, "昨日、駅に行きました", result.Transcript)
	assert.Equal(t, []byte("mp3"), result.ReplyAudio)
	assert.Equal(t, 1, result.Graded)
	assert.Equal(t, session.StateIdle, result.Session.State)
	assert.Equal(t, "いいですね。\n何をしに行きましたか?", result.Session.LastReply)
	// Ensure, BeginTurn, AwaitSynthesis and FinishTurn
	assert.Equal(t, uint64(4), result.Session.Version)

	turn, found, err := f.turns.Last(ctx, 1)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, result.TurnID, turn.ID)
	assert.Equal(t, "昨日、駅に行きました", turn.Transcript)
	assert.True(t, turn.InputAudioRef.Valid)
	assert.Equal(t, result.ReplyAudioRef, turn.ReplyAudioRef.String)

	l, err := f.learners.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Aki", l.DisplayName)
	require.NotNil(t, l.LastActiveAt)
	assert.True(t, turnNow.Equal(*l.LastActiveAt))

	item, err := f.bank.GetItem(ctx, gradedID)
	require.NoError(t, err)
	require.NotNil(t, item.LastReviewedAt)
	assert.Equal(t, 1, item.Repetitions)

	require.NotNil(t, published)
	assert.Equal(t, int64(1), published.LearnerID)
	assert.Equal(t, result.TurnID, published.Turn.ID)
	assert.True(t, published.Turn.InputAudio)
	assert.Equal(t, 1, published.Turn.Assessments)
	assert.NotEmpty(t, published.EventID)

	assert.Equal(t, jobs.Kinds, f.enqueuer.kinds)
	assert.Equal(t, 1.0, promtestutil.ToFloat64(f.metrics.Turns.WithLabelValues("ok")))
}

func TestOrchestrator_Handle_TextTurnUsesHistory(t *testing.T) {
	f := newFixture(t, defaultTurnConfig)
	ctx := context.Background()

	first := func(text string) {
		f.client.EXPECT().Generate(gomock.Any(), gomock.Any()).Return(inference.Reply{Text: text}, nil)
		f.synthesizer.EXPECT().Synthesize(gomock.Any(), text, gomock.Any()).Return([]byte("mp3"), nil)
		f.audio.EXPECT().Put(gomock.Any(), gomock.Any(), gomock.Any(), "audio/mpeg").Return("ref", nil)
		f.publisher.EXPECT().PublishTurn(gomock.Any(), gomock.Any()).Return(errors.New("broker down"))
	}
	first("こんにちは")
	_, err := f.orchestrator.Handle(ctx, Request{LearnerID: 1, Transcript: "こんにちは"})
	require.NoError(t, err)

	f.client.EXPECT().Generate(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, conversation inference.ConversationContext) (inference.Reply, error) {
			require.Len(t, conversation.RecentTurns, 1)
			assert.Equal(t, "こんにちは", conversation.RecentTurns[0].Transcript)
			return inference.Reply{Text: "元気です"}, nil
		})
	f.synthesizer.EXPECT().Synthesize(gomock.Any(), "元気です", gomock.Any()).Return([]byte("mp3"), nil)
	f.audio.EXPECT().Put(gomock.Any(), gomock.Any(), gomock.Any(), "audio/mpeg").Return("ref", nil)
	f.publisher.EXPECT().PublishTurn(gomock.Any(), gomock.Any()).Return(nil)

	result, err := f.orchestrator.Handle(ctx, Request{LearnerID: 1, Transcript: "元気ですか"})
	require.NoError(t, err)
	assert.Equal(t, "元気です", result.Session.LastReply)

	count, err := f.turns.CountSince(ctx, 1, turnNow.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestOrchestrator_Handle_TextTurnStampedAtCommit(t *testing.T) {
	f := newFixture(t, defaultTurnConfig)
	ctx := context.Background()

	var mu sync.Mutex
	now := turnNow
	f.orchestrator.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	committedAt := turnNow.Add(30 * time.Second)

	var gradedID string
	f.client.EXPECT().Generate(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, conversation inference.ConversationContext) (inference.Reply, error) {
			require.NotEmpty(t, conversation.DueItems)
			gradedID = conversation.DueItems[0].ID
			return inference.Reply{Text: "はい", Assessments: []inference.Assessment{{ItemID: gradedID, Correct: true}}}, nil
		})
	f.synthesizer.EXPECT().Synthesize(gomock.Any(), "はい", gomock.Any()).Return([]byte("mp3"), nil)
	f.audio.EXPECT().Put(gomock.Any(), gomock.Any(), gomock.Any(), "audio/mpeg").
		DoAndReturn(func(context.Context, string, []byte, string) (string, error) {
			// time passes between building the turn and committing it
			mu.Lock()
			now = committedAt
			mu.Unlock()
			return "ref", nil
		})
	f.publisher.EXPECT().PublishTurn(gomock.Any(), gomock.Any()).Return(nil)

	result, err := f.orchestrator.Handle(ctx, Request{LearnerID: 1, Transcript: "駅はどこですか"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Graded)

	turn, found, err := f.turns.Last(ctx, 1)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, committedAt.Equal(turn.CreatedAt), turn.CreatedAt)
	l, err := f.learners.Get(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, l.LastActiveAt)
	assert.True(t, committedAt.Equal(*l.LastActiveAt))

	// no latency was measured, so the grade is a normal one and leaves ease alone
	item, err := f.bank.GetItem(ctx, gradedID)
	require.NoError(t, err)
	assert.Equal(t, 1, item.Repetitions)
	assert.InDelta(t, 2.5, item.EaseFactor, 1e-9)
}

func TestOrchestrator_Handle_StageFailures(t *testing.T) {
	audio := &voice.Audio{Data: []byte("ogg"), MIMEType: "audio/ogg", Duration: time.Second}

	tests := []struct {
		name      string
		setup     func(f *fixture)
		wantStage apperr.Stage
	}{
		{
			name: "transcription",
			setup: func(f *fixture) {
				f.transcriber.EXPECT().Transcribe(gomock.Any(), gomock.Any()).Return("", errors.New("timeout"))
			},
			wantStage: apperr.StageTranscription,
		},
		{
			name: "generation",
			setup: func(f *fixture) {
				f.transcriber.EXPECT().Transcribe(gomock.Any(), gomock.Any()).Return("はい", nil)
				f.client.EXPECT().Generate(gomock.Any(), gomock.Any()).Return(inference.Reply{}, errors.New("rate limited"))
			},
			wantStage: apperr.StageGeneration,
		},
		{
			name: "synthesis",
			setup: func(f *fixture) {
				f.transcriber.EXPECT().Transcribe(gomock.Any(), gomock.Any()).Return("はい", nil)
				f.client.EXPECT().Generate(gomock.Any(), gomock.Any()).Return(inference.Reply{Text: "そうですか"}, nil)
				f.synthesizer.EXPECT().Synthesize(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, errors.New("502"))
			},
			wantStage: apperr.StageSynthesis,
		},
		{
			name: "audio store removes what was already stored",
			setup: func(f *fixture) {
				f.transcriber.EXPECT().Transcribe(gomock.Any(), gomock.Any()).Return("はい", nil)
				f.client.EXPECT().Generate(gomock.Any(), gomock.Any()).Return(inference.Reply{Text: "そうですか"}, nil)
				f.synthesizer.EXPECT().Synthesize(gomock.Any(), gomock.Any(), gomock.Any()).Return([]byte("mp3"), nil)
				f.audio.EXPECT().Put(gomock.Any(), gomock.Any(), gomock.Any(), "audio/ogg").Return("input-ref", nil)
				f.audio.EXPECT().Put(gomock.Any(), gomock.Any(), gomock.Any(), "audio/mpeg").Return("", errors.New("disk full"))
				f.audio.EXPECT().Delete(gomock.Any(), "input-ref").Return(nil)
			},
			wantStage: apperr.StageAudioStore,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, defaultTurnConfig)
			tt.setup(f)

			_, err := f.orchestrator.Handle(context.Background(), Request{LearnerID: 1, Audio: audio})
			require.Error(t, err)
			var transient *apperr.TransientExternalError
			require.ErrorAs(t, err, &transient)
			assert.Equal(t, tt.wantStage, transient.Stage)
			assert.Equal(t, FailureMessage, FailureReply(err))

			if tt.wantStage != apperr.StageTranscription {
				f.assertIdle(t)
			}
			f.assertNoTurn(t)
			assert.Equal(t, 1.0, promtestutil.ToFloat64(f.metrics.Turns.WithLabelValues(string(tt.wantStage))))
		})
	}
}

func TestOrchestrator_Handle_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.TurnConfig
		setup   func(t *testing.T, f *fixture)
		req     Request
		check   func(t *testing.T, err error)
		message string
	}{
		{
			name: "empty request",
			cfg:  defaultTurnConfig,
			req:  Request{LearnerID: 1},
			check: func(t *testing.T, err error) {
				var validation *apperr.ValidationError
				assert.ErrorAs(t, err, &validation)
			},
			message: FailureMessage,
		},
		{
			name: "voice note too long",
			cfg:  defaultTurnConfig,
			req:  Request{LearnerID: 1, Audio: &voice.Audio{Data: []byte("ogg"), Duration: 2 * time.Minute}},
			check: func(t *testing.T, err error) {
				var validation *apperr.ValidationError
				require.ErrorAs(t, err, &validation)
				assert.Equal(t, "audio", validation.Field)
			},
			message: FailureMessage,
		},
		{
			name: "no speech",
			cfg:  defaultTurnConfig,
			setup: func(t *testing.T, f *fixture) {
				f.transcriber.EXPECT().Transcribe(gomock.Any(), gomock.Any()).Return("", voice.ErrNoSpeech)
			},
			req: Request{LearnerID: 1, Audio: &voice.Audio{Data: []byte("ogg"), Duration: time.Second}},
			check: func(t *testing.T, err error) {
				var validation *apperr.ValidationError
				assert.ErrorAs(t, err, &validation)
				_, ok := apperr.StageOf(err)
				assert.False(t, ok)
			},
			message: FailureMessage,
		},
		{
			name: "daily limit",
			cfg:  config.TurnConfig{ContextTurns: 6, DueItems: 5, DailyLimit: 1},
			setup: func(t *testing.T, f *fixture) {
				_, _, err := f.learners.EnsureExists(context.Background(), 1, "Aki")
				require.NoError(t, err)
				err = f.gateway.WithWrite(context.Background(), 1, func(ctx context.Context, tx *database.WriteTx) error {
					return f.turns.InsertTx(ctx, tx, conversation.NewTurn(1, "おはよう", "おはよう", "free", turnNow.Add(-time.Hour)))
				})
				require.NoError(t, err)
			},
			req: Request{LearnerID: 1, Transcript: "もう一回"},
			check: func(t *testing.T, err error) {
				var limit *apperr.LimitExceededError
				require.ErrorAs(t, err, &limit)
				assert.Equal(t, 1, limit.Limit)
			},
			message: limitMessage,
		},
		{
			name: "busy",
			cfg:  defaultTurnConfig,
			setup: func(t *testing.T, f *fixture) {
				snapshot := f.sessions.Ensure(1, "free")
				_, _, err := f.sessions.BeginTurn(context.Background(), 1, snapshot.Version)
				require.NoError(t, err)
			},
			req: Request{LearnerID: 1, Transcript: "聞こえますか"},
			check: func(t *testing.T, err error) {
				assert.True(t, apperr.IsBusy(err))
			},
			message: busyMessage,
		},
		{
			name: "stale version",
			cfg:  defaultTurnConfig,
			req:  Request{LearnerID: 1, Version: 5, Transcript: "聞こえますか"},
			check: func(t *testing.T, err error) {
				assert.True(t, apperr.IsStale(err))
			},
			message: FailureMessage,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.cfg)
			if tt.setup != nil {
				tt.setup(t, f)
			}
			_, err := f.orchestrator.Handle(context.Background(), tt.req)
			require.Error(t, err)
			tt.check(t, err)
			assert.Equal(t, tt.message, FailureReply(err))
		})
	}
}

func TestOrchestrator_Handle_SeedsOnFirstContactOnly(t *testing.T) {
	f := newFixture(t, defaultTurnConfig)
	ctx := context.Background()

	for _, text := range []string{"はじめまして", "また来ました"} {
		f.client.EXPECT().Generate(gomock.Any(), gomock.Any()).Return(inference.Reply{Text: "ようこそ"}, nil)
		f.synthesizer.EXPECT().Synthesize(gomock.Any(), gomock.Any(), gomock.Any()).Return([]byte("mp3"), nil)
		f.audio.EXPECT().Put(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return("ref", nil)
		f.publisher.EXPECT().PublishTurn(gomock.Any(), gomock.Any()).Return(nil)
		_, err := f.orchestrator.Handle(ctx, Request{LearnerID: 1, Transcript: text})
		require.NoError(t, err)
	}

	items, err := f.bank.ListItems(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestOrchestrator_Handle_TeardownMidTurnLeavesNoRow(t *testing.T) {
	f := newFixture(t, defaultTurnConfig)

	f.client.EXPECT().Generate(gomock.Any(), gomock.Any()).Return(inference.Reply{Text: "そうですか"}, nil)
	f.synthesizer.EXPECT().Synthesize(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, string, voice.Profile) ([]byte, error) {
			f.sessions.Teardown(1)
			return []byte("mp3"), nil
		})
	f.audio.EXPECT().Put(gomock.Any(), gomock.Any(), gomock.Any(), "audio/mpeg").Return("reply-ref", nil)
	f.audio.EXPECT().Delete(gomock.Any(), "reply-ref").Return(nil)

	_, err := f.orchestrator.Handle(context.Background(), Request{LearnerID: 1, Transcript: "さようなら"})
	assert.ErrorIs(t, err, session.ErrNotFound)
	f.assertNoTurn(t)
	assert.Empty(t, f.enqueuer.kinds)
}

func TestOrchestrator_Handle_ModeChangeMidTurnIsStale(t *testing.T) {
	f := newFixture(t, defaultTurnConfig)

	f.client.EXPECT().Generate(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, inference.ConversationContext) (inference.Reply, error) {
			snapshot, err := f.sessions.Get(1)
			require.NoError(t, err)
			_, err = f.sessions.SetMode(1, "drill", snapshot.Version)
			require.NoError(t, err)
			return inference.Reply{Text: "はい"}, nil
		})

	_, err := f.orchestrator.Handle(context.Background(), Request{LearnerID: 1, Transcript: "練習したい"})
	assert.True(t, apperr.IsStale(err))
	f.assertIdle(t)
	f.assertNoTurn(t)

	snapshot, err := f.sessions.Get(1)
	require.NoError(t, err)
	assert.Equal(t, "drill", snapshot.Mode)
}

func TestFailureReply(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "limit", err: &apperr.LimitExceededError{LearnerID: 1, Limit: 50}, want: limitMessage},
		{name: "busy", err: &apperr.SessionBusyError{LearnerID: 1, State: "awaiting_reply"}, want: busyMessage},
		{name: "transient", err: apperr.NewTransient(apperr.StageSynthesis, errors.New("x")), want: FailureMessage},
		{name: "anything else", err: errors.New("boom"), want: FailureMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FailureReply(tt.err))
		})
	}
}

func TestOutcomeOf(t *testing.T) {
	assert.Equal(t, "generation", outcomeOf(apperr.NewTransient(apperr.StageGeneration, errors.New("x"))))
	assert.Equal(t, "busy", outcomeOf(&apperr.SessionBusyError{}))
	assert.Equal(t, "stale", outcomeOf(&apperr.StaleSessionError{}))
	assert.Equal(t, "limit", outcomeOf(&apperr.LimitExceededError{}))
	assert.Equal(t, "invalid", outcomeOf(apperr.NewValidation("f", "r")))
	assert.Equal(t, "cancelled", outcomeOf(context.Canceled))
	assert.Equal(t, "error", outcomeOf(errors.New("x")))
}
