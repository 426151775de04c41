package tutor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/Gidwell/jiro/internal/apperr"
	"github.com/Gidwell/jiro/internal/config"
	"github.com/Gidwell/jiro/internal/conversation"
	"github.com/Gidwell/jiro/internal/curriculum"
	"github.com/Gidwell/jiro/internal/database"
	"github.com/Gidwell/jiro/internal/inference"
	"github.com/Gidwell/jiro/internal/jobs"
	"github.com/Gidwell/jiro/internal/learner"
	"github.com/Gidwell/jiro/internal/learning"
	mock_audiostore "github.com/Gidwell/jiro/internal/mocks/audiostore"
	mock_inference "github.com/Gidwell/jiro/internal/mocks/inference"
	"github.com/Gidwell/jiro/internal/session"
	"github.com/Gidwell/jiro/internal/testutil"
	"github.com/Gidwell/jiro/internal/turn"
)

var tutorNow = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

type fixture struct {
	service  *Service
	gateway  *database.Gateway
	learners *learner.Store
	bank     *learning.Bank
	turns    *conversation.Repository
	sessions *session.Manager
	audio    *mock_audiostore.MockStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gateway := testutil.NewSQLiteGateway(t)
	clock := testutil.FixedClock(tutorNow)
	f := &fixture{
		gateway: gateway,
		learners: learner.NewStore(gateway, learner.Defaults{
			Strictness:   learner.StrictnessNormal,
			DeliveryTime: "08:00",
			Timezone:     "UTC",
			Mode:         learner.ModeFree,
		}, learner.WithClock(clock)),
		bank:     learning.NewBank(gateway, testutil.SchedulerConfig(), learning.WithClock(clock)),
		turns:    conversation.NewRepository(gateway),
		sessions: session.NewManager(time.Hour),
		audio:    mock_audiostore.NewMockStore(gomock.NewController(t)),
	}
	planner := curriculum.NewPlanner(&curriculum.Seed{
		Vocab:   []curriculum.SeedItem{{Content: "駅", Difficulty: 1}},
		Grammar: []curriculum.SeedItem{{Content: "〜たい", Difficulty: 1}, {Content: "〜ばよかった", Difficulty: 4}},
	}, f.bank)
	orchestrator := turn.NewOrchestrator(turn.Dependencies{
		Gateway:  gateway,
		Learners: f.learners,
		Bank:     f.bank,
		Turns:    f.turns,
		Sessions: f.sessions,
		Planner:  planner,
		Audio:    f.audio,
	}, config.TurnConfig{}, turn.WithClock(clock))

	f.service = NewService(Dependencies{
		Gateway:      gateway,
		Learners:     f.learners,
		Bank:         f.bank,
		Turns:        f.turns,
		Sessions:     f.sessions,
		Orchestrator: orchestrator,
		Audio:        f.audio,
	}, WithClock(clock))
	return f
}

func (f *fixture) start(t *testing.T) *Welcome {
	t.Helper()
	welcome, err := f.service.StartTalk(context.Background(), 1, "Aki")
	require.NoError(t, err)
	return welcome
}

func (f *fixture) insertTurn(t *testing.T, reply, audioRef string, at time.Time) {
	t.Helper()
	err := f.gateway.WithWrite(context.Background(), 1, func(ctx context.Context, tx *database.WriteTx) error {
		turn := conversation.NewTurn(1, "発話", reply, "free", at)
		if audioRef != "" {
			turn.ReplyAudioRef.String, turn.ReplyAudioRef.Valid = audioRef, true
		}
		if err := f.turns.InsertTx(ctx, tx, turn); err != nil {
			return err
		}
		return f.learners.Touch(ctx, tx, 1, at)
	})
	require.NoError(t, err)
}

func TestService_StartTalk(t *testing.T) {
	f := newFixture(t)

	welcome := f.start(t)
	assert.True(t, welcome.New)
	assert.False(t, welcome.Returned)
	assert.Equal(t, 2, welcome.DueCount)
	assert.Equal(t, session.StateIdle, welcome.Session.State)
	assert.Equal(t, "free", welcome.Session.Mode)

	f.insertTurn(t, "またね", "", tutorNow.AddDate(0, 0, -AbsentDays))
	welcome = f.start(t)
	assert.False(t, welcome.New)
	assert.True(t, welcome.Returned)
	assert.Equal(t, 2, welcome.DueCount)
}

func TestService_SetMode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.SetMode(ctx, 1, "drill", 0)
	assert.True(t, apperr.IsNotFound(err))

	welcome := f.start(t)

	_, err = f.service.SetMode(ctx, 1, "karaoke", 0)
	var validation *apperr.ValidationError
	assert.ErrorAs(t, err, &validation)

	_, err = f.service.SetMode(ctx, 1, "drill", welcome.Session.Version+3)
	assert.True(t, apperr.IsStale(err))

	snapshot, err := f.service.SetMode(ctx, 1, "drill", welcome.Session.Version)
	require.NoError(t, err)
	assert.Equal(t, "drill", snapshot.Mode)
	assert.Equal(t, welcome.Session.Version+1, snapshot.Version)

	l, err := f.learners.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, learner.ModeDrill, l.Mode)
}

func TestService_GetPlanAndReview(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.GetPlan(ctx, 1)
	assert.True(t, apperr.IsNotFound(err))
	_, err = f.service.GetDueReview(ctx, 1, 0)
	assert.True(t, apperr.IsNotFound(err))

	f.start(t)
	plan, err := f.service.GetPlan(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, plan.DueCount)
	assert.Len(t, plan.Due, 2)
	assert.Equal(t, 2, plan.Total)
	assert.Zero(t, plan.Mastered)

	review, err := f.service.GetDueReview(ctx, 1, 1)
	require.NoError(t, err)
	assert.Len(t, review, 1)
}

func TestService_GetStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.start(t)

	review, err := f.service.GetDueReview(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, review, 2)
	_, err = f.service.Grade(ctx, 1, review[0].ID, true, 2*time.Second)
	require.NoError(t, err)
	_, err = f.service.Grade(ctx, 1, review[1].ID, false, 2*time.Second)
	require.NoError(t, err)
	f.insertTurn(t, "はい", "", tutorNow.Add(-time.Hour))
	f.insertTurn(t, "はい", "", tutorNow.AddDate(0, 0, -1))

	stats, err := f.service.GetStats(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Reviews)
	assert.Equal(t, 1, stats.Correct)
	assert.Equal(t, 0.5, stats.Accuracy())
	assert.Equal(t, 1, stats.TurnsToday)
	assert.Equal(t, learner.StrictnessNormal, stats.Strictness)
	assert.Equal(t, learner.ModeFree, stats.Mode)
}

func TestService_Grade_OtherLearnersItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.start(t)
	review, err := f.service.GetDueReview(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, review, 1)

	_, err = f.service.Grade(ctx, 2, review[0].ID, true, time.Second)
	assert.True(t, apperr.IsNotFound(err))
	_, err = f.service.Grade(ctx, 1, "missing", true, time.Second)
	assert.True(t, apperr.IsNotFound(err))
}

func TestService_SetStrict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.start(t)

	tests := []struct {
		name  string
		level string
		want  learner.Strictness
	}{
		{name: "cycle from normal", want: learner.StrictnessStrict},
		{name: "cycle wraps", want: learner.StrictnessLight},
		{name: "cycle continues", want: learner.StrictnessNormal},
		{name: "explicit", level: "light", want: learner.StrictnessLight},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.service.SetStrict(ctx, 1, tt.level)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := f.service.SetStrict(ctx, 1, "harsh")
	var validation *apperr.ValidationError
	assert.ErrorAs(t, err, &validation)
}

func TestService_SetDeliveryTime(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.start(t)

	l, err := f.service.SetDeliveryTime(ctx, 1, "07:30", "Asia/Tokyo")
	require.NoError(t, err)
	assert.Equal(t, "07:30", l.DeliveryTime)
	assert.Equal(t, "Asia/Tokyo", l.Timezone)

	l, err = f.service.SetDeliveryTime(ctx, 1, "21:05", "")
	require.NoError(t, err)
	assert.Equal(t, "Asia/Tokyo", l.Timezone)

	for _, input := range []struct{ hhmm, tz string }{{"25:00", ""}, {"7:30", ""}, {"08:00", "Mars/Olympus"}} {
		_, err := f.service.SetDeliveryTime(ctx, 1, input.hhmm, input.tz)
		var validation *apperr.ValidationError
		assert.ErrorAs(t, err, &validation, "%+v", input)
	}
}

func TestService_GetLastReply(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.start(t)

	_, err := f.service.GetLastReply(ctx, 1)
	assert.True(t, apperr.IsNotFound(err))

	f.insertTurn(t, "駅はあそこです", "file:///audio/reply.mp3", tutorNow)
	reply, err := f.service.GetLastReply(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, &LastReply{Text: "駅はあそこです", AudioRef: "file:///audio/reply.mp3"}, reply)

	snapshot, err := f.sessions.Get(1)
	require.NoError(t, err)
	_, snapshot, err = f.sessions.BeginTurn(ctx, 1, snapshot.Version)
	require.NoError(t, err)
	_, err = f.sessions.FinishTurn(1, snapshot.TurnID, "まだ保存されていません")
	require.NoError(t, err)

	reply, err = f.service.GetLastReply(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, &LastReply{Text: "まだ保存されていません"}, reply)
}

func TestService_DeleteLearnerData(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.start(t)

	review, err := f.service.GetDueReview(ctx, 1, 1)
	require.NoError(t, err)
	_, err = f.service.Grade(ctx, 1, review[0].ID, true, time.Second)
	require.NoError(t, err)
	f.insertTurn(t, "はい", "file:///audio/a.mp3", tutorNow.Add(-time.Minute))
	f.insertTurn(t, "いいえ", "file:///audio/b.mp3", tutorNow)
	require.NoError(t, f.gateway.WithWrite(ctx, 1, func(ctx context.Context, tx *database.WriteTx) error {
		return f.learners.ReplaceSummary(ctx, tx, learner.Summary{LearnerID: 1, Summary: "Likes trains."}, nil)
	}))

	_, err = f.service.DeleteLearnerData(ctx, 1, "guess")
	var validation *apperr.ValidationError
	require.ErrorAs(t, err, &validation)

	f.audio.EXPECT().Delete(gomock.Any(), "file:///audio/a.mp3").
		DoAndReturn(func(ctx context.Context, _ string) error {
			// objects are removed only after the rows are committed away
			_, err := f.learners.Get(ctx, 1)
			assert.True(t, apperr.IsNotFound(err))
			return nil
		})
	f.audio.EXPECT().Delete(gomock.Any(), "file:///audio/b.mp3").Return(errors.New("permission denied"))

	token := f.service.RequestDeletion(1)
	deletion, err := f.service.DeleteLearnerData(ctx, 1, token)
	require.NoError(t, err)
	assert.True(t, deletion.SessionClosed)
	assert.Equal(t, 1, deletion.AudioObjects)

	_, err = f.learners.Get(ctx, 1)
	assert.True(t, apperr.IsNotFound(err))
	_, err = f.learners.GetSummary(ctx, 1)
	assert.True(t, apperr.IsNotFound(err))
	items, err := f.bank.ListItems(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, items)
	stats, err := f.bank.Stats(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, stats.Reviews)
	_, found, err := f.turns.Last(ctx, 1)
	require.NoError(t, err)
	assert.False(t, found)
	_, err = f.sessions.Get(1)
	assert.ErrorIs(t, err, session.ErrNotFound)

	// the token is single use
	_, err = f.service.DeleteLearnerData(ctx, 1, token)
	assert.ErrorAs(t, err, &validation)

	deletion, err = f.service.DeleteLearnerData(ctx, 1, f.service.RequestDeletion(1))
	require.NoError(t, err)
	assert.Equal(t, &Deletion{}, deletion)
}

func TestService_Purge_DuringBackgroundJobs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.start(t)
	for i := range 3 {
		f.insertTurn(t, "はい", "", tutorNow.Add(time.Duration(i-3)*time.Minute))
	}

	settings := jobs.QueueSettings{DueFloor: 50, LockWait: 50 * time.Millisecond, SummarizeEvery: 3}
	client := mock_inference.NewMockClient(gomock.NewController(t))
	client.EXPECT().GenerateItems(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ inference.CurriculumState) ([]inference.GeneratedItem, error) {
			_, err := f.service.Purge(ctx, 1)
			require.NoError(t, err)
			return []inference.GeneratedItem{{Kind: "vocab", Content: "切符", Difficulty: 1}}, nil
		})
	generator := jobs.NewQuestionGenerator(f.gateway, f.bank, f.learners, curriculum.NewPlanner(&curriculum.Seed{}, f.bank), client, settings)
	require.NoError(t, generator.Run(ctx, 1))

	items, err := f.bank.ListItems(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, items)

	// the learner comes back and a summarization races a second deletion
	f.start(t)
	for i := range 3 {
		f.insertTurn(t, "はい", "", tutorNow.Add(time.Duration(i-3)*time.Minute))
	}
	client.EXPECT().Summarize(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ inference.SummaryRequest) (string, error) {
			_, err := f.service.Purge(ctx, 1)
			require.NoError(t, err)
			return "Likes trains.", nil
		})
	summarizer := jobs.NewSummarizer(f.gateway, f.learners, f.turns, client, settings)
	require.NoError(t, summarizer.Run(ctx, 1))

	_, err = f.learners.GetSummary(ctx, 1)
	assert.True(t, apperr.IsNotFound(err))
	_, err = f.learners.Get(ctx, 1)
	assert.True(t, apperr.IsNotFound(err))
}

func TestConfirmations(t *testing.T) {
	now := tutorNow
	c := NewConfirmations(time.Minute, func() time.Time { return now })

	first := c.Issue(1)
	second := c.Issue(1)
	assert.False(t, c.Redeem(1, first), "reissue replaces the token")
	assert.False(t, c.Redeem(2, second), "tokens are per learner")
	assert.False(t, c.Redeem(1, ""))
	assert.True(t, c.Redeem(1, second))
	assert.False(t, c.Redeem(1, second))

	expiring := c.Issue(1)
	now = now.Add(time.Minute)
	assert.False(t, c.Redeem(1, expiring))
}
