package nop

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Gidwell/jiro/internal/eventstream"
)

func TestPublisher(t *testing.T) {
	p := NewPublisher()
	assert.ErrorIs(t, p.PublishTurn(context.Background(), nil), eventstream.ErrNilTurnEvent)
	assert.NoError(t, p.PublishTurn(context.Background(), &eventstream.TurnPersistedEvent{}))
	assert.NoError(t, p.Close())
}
