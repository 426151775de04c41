package learner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gidwell/jiro/internal/apperr"
	"github.com/Gidwell/jiro/internal/database"
	"github.com/Gidwell/jiro/internal/testutil"
)

var testNow = time.Date(2026, 4, 10, 9, 30, 0, 0, time.UTC)

func newTestStore(t *testing.T) (*Store, *database.Gateway) {
	t.Helper()
	gateway := testutil.NewSQLiteGateway(t)
	store := NewStore(gateway, Defaults{
		Strictness:   StrictnessNormal,
		DeliveryTime: "08:00",
		Timezone:     "Asia/Tokyo",
		Mode:         ModeFree,
	}, WithClock(testutil.FixedClock(testNow)))
	return store, gateway
}

func TestStore_EnsureExists(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.Get(ctx, 42)
	assert.True(t, apperr.IsNotFound(err))

	created, isNew, err := store.EnsureExists(ctx, 42, "Aiko")
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.Equal(t, StrictnessNormal, created.Strictness)
	assert.Equal(t, "Asia/Tokyo", created.Timezone)
	assert.Equal(t, uint64(1), created.Revision)

	again, isNew, err := store.EnsureExists(ctx, 42, "Aiko")
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, created.ID, again.ID)
	assert.Equal(t, "Aiko", again.DisplayName)
	assert.Equal(t, ModeFree, again.Mode)
	assert.Empty(t, again.ErrorPatterns)
	assert.True(t, again.CreatedAt.Equal(testNow))
	assert.Nil(t, again.StreakDay)

	ids, err := store.ListIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{42}, ids)
}

func TestStore_UpdateSettings(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	l, _, err := store.EnsureExists(ctx, 1, "")
	require.NoError(t, err)

	settings := l.Settings()
	settings.DeliveryTime = "21:15"
	settings.Strictness = StrictnessStrict

	updated, err := store.UpdateSettings(ctx, 1, l.Revision, settings)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), updated.Revision)
	assert.Equal(t, "21:15", updated.DeliveryTime)

	reloaded, err := store.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, updated.Revision, reloaded.Revision)
	assert.Equal(t, StrictnessStrict, reloaded.Strictness)

	// the first revision is now stale
	_, err = store.UpdateSettings(ctx, 1, l.Revision, settings)
	var stale *apperr.StaleSessionError
	require.ErrorAs(t, err, &stale)
	assert.Equal(t, uint64(1), stale.Expected)
	assert.Equal(t, uint64(2), stale.Actual)

	_, err = store.UpdateSettings(ctx, 99, 1, settings)
	assert.True(t, apperr.IsNotFound(err))
}

func TestValidateSettings(t *testing.T) {
	valid := Settings{Strictness: StrictnessLight, DeliveryTime: "07:45", Timezone: "Europe/Berlin", Mode: ModeDrill}

	tests := []struct {
		name      string
		modify    func(s *Settings)
		wantField string
	}{
		{
			name:   "valid settings",
			modify: func(s *Settings) {},
		},
		{
			name:      "unknown strictness",
			modify:    func(s *Settings) { s.Strictness = "harsh" },
			wantField: "strictness",
		},
		{
			name:      "delivery time out of range",
			modify:    func(s *Settings) { s.DeliveryTime = "24:00" },
			wantField: "delivery_time",
		},
		{
			name:      "delivery time without leading zero",
			modify:    func(s *Settings) { s.DeliveryTime = "7:45" },
			wantField: "delivery_time",
		},
		{
			name:      "unknown time zone",
			modify:    func(s *Settings) { s.Timezone = "Mars/Olympus" },
			wantField: "timezone",
		},
		{
			name:      "empty time zone",
			modify:    func(s *Settings) { s.Timezone = "" },
			wantField: "timezone",
		},
		{
			name:      "unknown mode",
			modify:    func(s *Settings) { s.Mode = "quiz" },
			wantField: "mode",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := valid
			tt.modify(&settings)

			err := ValidateSettings(settings)
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			var validation *apperr.ValidationError
			require.ErrorAs(t, err, &validation)
			assert.Equal(t, tt.wantField, validation.Field)
		})
	}
}

func TestStore_UpdateModel(t *testing.T) {
	store, gateway := newTestStore(t)
	ctx := context.Background()
	_, _, err := store.EnsureExists(ctx, 5, "")
	require.NoError(t, err)

	streakDay := time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC)
	err = gateway.WithWrite(ctx, 5, func(ctx context.Context, tx *database.WriteTx) error {
		l, err := store.GetTx(ctx, tx, 5)
		if err != nil {
			return err
		}
		l.StreakCount = 3
		l.StreakDay = &streakDay
		l.CheckpointAt = &testNow
		l.ErrorPatterns = ErrorPatterns{"particle": 2}
		return store.UpdateModel(ctx, tx, l)
	})
	require.NoError(t, err)

	l, err := store.Get(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, 3, l.StreakCount)
	require.NotNil(t, l.StreakDay)
	assert.True(t, streakDay.Equal(*l.StreakDay))
	assert.Equal(t, ErrorPatterns{"particle": 2}, l.ErrorPatterns)
	assert.Equal(t, uint64(2), l.Revision)

	// a model computed from revision 1 must not overwrite revision 2
	err = gateway.WithWrite(ctx, 5, func(ctx context.Context, tx *database.WriteTx) error {
		old := *l
		old.Revision = 1
		return store.UpdateModel(ctx, tx, &old)
	})
	assert.True(t, apperr.IsStale(err))
}

func TestStore_ReplaceSummary(t *testing.T) {
	store, gateway := newTestStore(t)
	ctx := context.Background()

	_, err := store.GetSummary(ctx, 8)
	assert.True(t, apperr.IsNotFound(err))
	_, _, err = store.EnsureExists(ctx, 8, "")
	require.NoError(t, err)

	first := testNow.Add(-time.Hour)
	err = gateway.WithWrite(ctx, 8, func(ctx context.Context, tx *database.WriteTx) error {
		return store.ReplaceSummary(ctx, tx, Summary{LearnerID: 8, Summary: "likes trains", TurnsThrough: &first}, nil)
	})
	require.NoError(t, err)

	got, err := store.GetSummary(ctx, 8)
	require.NoError(t, err)
	assert.Equal(t, "likes trains", got.Summary)

	// a writer that read before the first replacement loses
	err = gateway.WithWrite(ctx, 8, func(ctx context.Context, tx *database.WriteTx) error {
		return store.ReplaceSummary(ctx, tx, Summary{LearnerID: 8, Summary: "stale", TurnsThrough: &testNow}, nil)
	})
	assert.ErrorIs(t, err, ErrSummaryAdvanced)

	err = gateway.WithWrite(ctx, 8, func(ctx context.Context, tx *database.WriteTx) error {
		return store.ReplaceSummary(ctx, tx, Summary{LearnerID: 8, Summary: "likes trains and ramen", TurnsThrough: &testNow}, got.TurnsThrough)
	})
	require.NoError(t, err)

	got, err = store.GetSummary(ctx, 8)
	require.NoError(t, err)
	assert.Equal(t, "likes trains and ramen", got.Summary)
	require.NotNil(t, got.TurnsThrough)
	assert.True(t, testNow.Equal(*got.TurnsThrough))
}

func TestStore_DeleteTx(t *testing.T) {
	store, gateway := newTestStore(t)
	ctx := context.Background()
	_, _, err := store.EnsureExists(ctx, 3, "")
	require.NoError(t, err)

	for range 2 {
		err = gateway.WithWrite(ctx, 3, func(ctx context.Context, tx *database.WriteTx) error {
			return store.DeleteTx(ctx, tx, 3)
		})
		require.NoError(t, err)
	}

	_, err = store.Get(ctx, 3)
	assert.True(t, apperr.IsNotFound(err))
}
