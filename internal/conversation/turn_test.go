package conversation

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gidwell/jiro/internal/database"
	"github.com/Gidwell/jiro/internal/testutil"
)

var start = time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

func seedTurns(t *testing.T, gateway *database.Gateway, repo *Repository, learnerID int64, n int) []Turn {
	t.Helper()
	var turns []Turn
	for i := range n {
		turn := NewTurn(learnerID, "input", "reply", "free", start.Add(time.Duration(i)*time.Minute))
		if i%2 == 0 {
			turn.InputAudioRef = sql.NullString{String: "in/" + turn.ID + ".ogg", Valid: true}
			turn.ReplyAudioRef = sql.NullString{String: "out/" + turn.ID + ".mp3", Valid: true}
		}
		err := gateway.WithWrite(context.Background(), learnerID, func(ctx context.Context, tx *database.WriteTx) error {
			return repo.InsertTx(ctx, tx, turn)
		})
		require.NoError(t, err)
		turns = append(turns, turn)
	}
	return turns
}

func TestRepository_Reads(t *testing.T) {
	gateway := testutil.NewSQLiteGateway(t)
	testutil.SeedLearners(t, gateway, 1, 2)
	repo := NewRepository(gateway)
	ctx := context.Background()
	turns := seedTurns(t, gateway, repo, 1, 5)
	seedTurns(t, gateway, repo, 2, 1)

	recent, err := repo.Recent(ctx, 1, 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, turns[2].ID, recent[0].ID)
	assert.Equal(t, turns[4].ID, recent[2].ID)

	last, ok, err := repo.Last(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, turns[4].ID, last.ID)

	since, err := repo.Since(ctx, 1, &turns[1].CreatedAt, 10)
	require.NoError(t, err)
	require.Len(t, since, 3)
	assert.Equal(t, turns[2].ID, since[0].ID)

	all, err := repo.Since(ctx, 1, nil, 2)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, turns[0].ID, all[0].ID)

	count, err := repo.CountSince(ctx, 1, turns[3].CreatedAt)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	var refs []string
	err = gateway.WithWrite(ctx, 1, func(ctx context.Context, tx *database.WriteTx) error {
		refs, err = repo.AudioRefsTx(ctx, tx, 1)
		return err
	})
	require.NoError(t, err)
	assert.Len(t, refs, 6)
}

func TestRepository_EmptyAndDelete(t *testing.T) {
	gateway := testutil.NewSQLiteGateway(t)
	testutil.SeedLearners(t, gateway, 1, 2)
	repo := NewRepository(gateway)
	ctx := context.Background()

	_, ok, err := repo.Last(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	seedTurns(t, gateway, repo, 1, 2)
	err = gateway.WithWrite(ctx, 1, func(ctx context.Context, tx *database.WriteTx) error {
		return repo.DeleteTx(ctx, tx, 1)
	})
	require.NoError(t, err)

	count, err := repo.CountSince(ctx, 1, start.Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, count)
}
