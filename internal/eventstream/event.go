// Package eventstream publishes persisted turns to downstream consumers.
package eventstream

import (
	"context"
	"errors"
	"time"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeTurnPersisted is emitted after a conversation turn is committed.
	EventTypeTurnPersisted = "jiro.turn.persisted"
)

// ErrNilTurnEvent indicates a nil turn event payload was provided to a publisher.
var ErrNilTurnEvent = errors.New("nil turn event")

//go:generate mockgen -source=event.go -destination=../mocks/eventstream/mock_publisher.go -package=mock_eventstream

// Publisher publishes turn events to an event stream backend.
type Publisher interface {
	PublishTurn(ctx context.Context, event *TurnPersistedEvent) error
	Close() error
}

// TurnPersistedEvent is a transport neutral payload for a persisted turn.
type TurnPersistedEvent struct {
	SchemaVersion int       `json:"schema_version"`
	EventType     string    `json:"event_type"`
	EventID       string    `json:"event_id"`
	EmittedAt     time.Time `json:"emitted_at"`
	LearnerID     int64     `json:"learner_id"`
	Turn          TurnMeta  `json:"turn"`
}

// TurnMeta describes the turn itself.
type TurnMeta struct {
	ID             string    `json:"id"`
	Mode           string    `json:"mode"`
	Transcript     string    `json:"transcript"`
	Reply          string    `json:"reply"`
	InputAudio     bool      `json:"input_audio"`
	ReplyAudio     bool      `json:"reply_audio"`
	StartedAt      time.Time `json:"started_at"`
	CompletedAt    time.Time `json:"completed_at"`
	DurationMs     int64     `json:"duration_ms"`
	Assessments    int       `json:"assessments"`
	SessionVersion uint64    `json:"session_version"`
}
