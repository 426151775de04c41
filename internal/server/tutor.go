package server

import (
	"context"
	"time"

	"github.com/Gidwell/jiro/internal/learner"
	"github.com/Gidwell/jiro/internal/learning"
	"github.com/Gidwell/jiro/internal/session"
	"github.com/Gidwell/jiro/internal/turn"
	"github.com/Gidwell/jiro/internal/tutor"
)

//go:generate mockgen -source=tutor.go -destination=../mocks/server/mock_tutor.go -package=mock_server

// Tutor is the set of named operations served over RPC.
type Tutor interface {
	StartTalk(ctx context.Context, learnerID int64, displayName string) (*tutor.Welcome, error)
	Talk(ctx context.Context, req turn.Request) (*turn.Result, error)
	SetMode(ctx context.Context, learnerID int64, mode string, version uint64) (session.Snapshot, error)
	GetPlan(ctx context.Context, learnerID int64) (*learning.Plan, error)
	GetDueReview(ctx context.Context, learnerID int64, limit int) ([]learning.Item, error)
	Grade(ctx context.Context, learnerID int64, itemID string, correct bool, latency time.Duration) (*learning.Item, error)
	GetStats(ctx context.Context, learnerID int64) (*tutor.Stats, error)
	SetStrict(ctx context.Context, learnerID int64, level string) (learner.Strictness, error)
	SetDeliveryTime(ctx context.Context, learnerID int64, hhmm, timezone string) (*learner.Learner, error)
	GetLastReply(ctx context.Context, learnerID int64) (*tutor.LastReply, error)
	RequestDeletion(learnerID int64) string
	DeleteLearnerData(ctx context.Context, learnerID int64, token string) (*tutor.Deletion, error)
}
