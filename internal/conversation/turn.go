// Package conversation stores the append-only log of conversation turns.
package conversation

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Gidwell/jiro/internal/database"
)

// Turn is one persisted exchange between a learner and the tutor.
type Turn struct {
	ID            string         `db:"id"`
	LearnerID     int64          `db:"learner_id"`
	Transcript    string         `db:"transcript"`
	Reply         string         `db:"reply"`
	InputAudioRef sql.NullString `db:"input_audio_ref"`
	ReplyAudioRef sql.NullString `db:"reply_audio_ref"`
	Mode          string         `db:"mode"`
	CreatedAt     time.Time      `db:"created_at"`
}

// NewTurn builds a turn with a fresh id.
func NewTurn(learnerID int64, transcript, reply, mode string, createdAt time.Time) Turn {
	return Turn{
		ID:         uuid.NewString(),
		LearnerID:  learnerID,
		Transcript: transcript,
		Reply:      reply,
		Mode:       mode,
		CreatedAt:  createdAt.UTC().Truncate(time.Microsecond),
	}
}

// Repository reads and appends turns.
type Repository struct {
	gateway *database.Gateway
}

// NewRepository creates a new Repository.
func NewRepository(gateway *database.Gateway) *Repository {
	return &Repository{gateway: gateway}
}

// InsertTx appends turn inside tx.
func (r *Repository) InsertTx(ctx context.Context, tx *database.WriteTx, turn Turn) error {
	_, err := tx.Exec(ctx, database.IntentInsertTurn,
		turn.ID, turn.LearnerID, turn.Transcript, turn.Reply,
		turn.InputAudioRef, turn.ReplyAudioRef, turn.Mode, turn.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert turn %s: %w", turn.ID, err)
	}
	return nil
}

// Recent returns up to limit of the newest turns, oldest first.
func (r *Repository) Recent(ctx context.Context, learnerID int64, limit int) ([]Turn, error) {
	turns := []Turn{}
	if limit <= 0 {
		return turns, nil
	}
	if err := r.gateway.Select(ctx, &turns, database.IntentSelectRecentTurns, learnerID, limit); err != nil {
		return nil, fmt.Errorf("load recent turns of learner %d: %w", learnerID, err)
	}
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// Last returns the newest turn and whether there is one.
func (r *Repository) Last(ctx context.Context, learnerID int64) (*Turn, bool, error) {
	turns, err := r.Recent(ctx, learnerID, 1)
	if err != nil {
		return nil, false, err
	}
	if len(turns) == 0 {
		return nil, false, nil
	}
	return &turns[0], true, nil
}

// Since returns up to limit turns created after since, oldest first. A nil
// since reads from the beginning.
func (r *Repository) Since(ctx context.Context, learnerID int64, since *time.Time, limit int) ([]Turn, error) {
	turns := []Turn{}
	if err := r.gateway.Select(ctx, &turns, database.IntentSelectTurnsSince, learnerID, sinceOrEpoch(since), limit); err != nil {
		return nil, fmt.Errorf("load turns of learner %d: %w", learnerID, err)
	}
	return turns, nil
}

// SinceTx is Since inside a write scope.
func (r *Repository) SinceTx(ctx context.Context, tx *database.WriteTx, learnerID int64, since *time.Time, limit int) ([]Turn, error) {
	turns := []Turn{}
	if err := tx.Select(ctx, &turns, database.IntentSelectTurnsSince, learnerID, sinceOrEpoch(since), limit); err != nil {
		return nil, fmt.Errorf("load turns of learner %d: %w", learnerID, err)
	}
	return turns, nil
}

// CountSince counts turns created at or after since.
func (r *Repository) CountSince(ctx context.Context, learnerID int64, since time.Time) (int, error) {
	var count int
	if err := r.gateway.Get(ctx, &count, database.IntentCountTurnsSince, learnerID, since); err != nil {
		return 0, fmt.Errorf("count turns of learner %d: %w", learnerID, err)
	}
	return count, nil
}

type audioRefs struct {
	Input sql.NullString `db:"input_audio_ref"`
	Reply sql.NullString `db:"reply_audio_ref"`
}

// AudioRefsTx lists every stored audio reference of a learner inside tx, so
// the list matches the turns the same scope deletes.
func (r *Repository) AudioRefsTx(ctx context.Context, tx *database.WriteTx, learnerID int64) ([]string, error) {
	var rows []audioRefs
	if err := tx.Select(ctx, &rows, database.IntentSelectAudioRefs, learnerID); err != nil {
		return nil, fmt.Errorf("load audio references of learner %d: %w", learnerID, err)
	}
	return collectRefs(rows), nil
}

func collectRefs(rows []audioRefs) []string {
	var refs []string
	for _, row := range rows {
		if row.Input.Valid && row.Input.String != "" {
			refs = append(refs, row.Input.String)
		}
		if row.Reply.Valid && row.Reply.String != "" {
			refs = append(refs, row.Reply.String)
		}
	}
	return refs
}

// DeleteTx removes every turn of a learner inside tx.
func (r *Repository) DeleteTx(ctx context.Context, tx *database.WriteTx, learnerID int64) error {
	if _, err := tx.Exec(ctx, database.IntentDeleteTurns, learnerID); err != nil {
		return fmt.Errorf("delete turns of learner %d: %w", learnerID, err)
	}
	return nil
}

var epoch = time.Unix(0, 0).UTC()

func sinceOrEpoch(since *time.Time) time.Time {
	if since == nil {
		return epoch
	}
	return *since
}
