// Package server provides Connect RPC handlers for the tutor service.
package server

import (
	"context"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"time"

	"connectrpc.com/connect"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslations "github.com/go-playground/validator/v10/translations/en"
	"golang.org/x/time/rate"

	"github.com/Gidwell/jiro/internal/learning"
	"github.com/Gidwell/jiro/internal/turn"
	"github.com/Gidwell/jiro/internal/voice"
)

// TutorServiceName is the fully qualified name of the service.
const TutorServiceName = "jiro.v1.TutorService"

const (
	StartTalkProcedure         = "/" + TutorServiceName + "/StartTalk"
	TalkProcedure              = "/" + TutorServiceName + "/Talk"
	SetModeProcedure           = "/" + TutorServiceName + "/SetMode"
	GetPlanProcedure           = "/" + TutorServiceName + "/GetPlan"
	GetDueReviewProcedure      = "/" + TutorServiceName + "/GetDueReview"
	GradeItemProcedure         = "/" + TutorServiceName + "/GradeItem"
	GetStatsProcedure          = "/" + TutorServiceName + "/GetStats"
	SetStrictProcedure         = "/" + TutorServiceName + "/SetStrict"
	SetDeliveryTimeProcedure   = "/" + TutorServiceName + "/SetDeliveryTime"
	GetLastReplyProcedure      = "/" + TutorServiceName + "/GetLastReply"
	RequestDeletionProcedure   = "/" + TutorServiceName + "/RequestDeletion"
	DeleteLearnerDataProcedure = "/" + TutorServiceName + "/DeleteLearnerData"
)

// TutorHandler implements the tutor service.
type TutorHandler struct {
	tutor    Tutor
	validate *validator.Validate
	trans    ut.Translator
	limiter  *learnerLimiter
}

// NewTutorHandler creates a handler. turnsPerMinute limits Talk calls per
// learner; zero disables the limit.
func NewTutorHandler(tutor Tutor, turnsPerMinute int) (*TutorHandler, error) {
	validate := validator.New()
	enLocale := en.New()
	trans, _ := ut.New(enLocale, enLocale).GetTranslator("en")
	if err := enTranslations.RegisterDefaultTranslations(validate, trans); err != nil {
		return nil, fmt.Errorf("failed to register default translations: %w", err)
	}
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &TutorHandler{
		tutor:    tutor,
		validate: validate,
		trans:    trans,
		limiter:  newLearnerLimiter(turnsPerMinute),
	}, nil
}

// NewTutorServiceHandler builds the HTTP handler of every procedure. It
// returns the path to mount it on.
func NewTutorServiceHandler(h *TutorHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)
	handlers := map[string]http.Handler{
		StartTalkProcedure:         connect.NewUnaryHandler(StartTalkProcedure, h.StartTalk, opts...),
		TalkProcedure:              connect.NewUnaryHandler(TalkProcedure, h.Talk, opts...),
		SetModeProcedure:           connect.NewUnaryHandler(SetModeProcedure, h.SetMode, opts...),
		GetPlanProcedure:           connect.NewUnaryHandler(GetPlanProcedure, h.GetPlan, opts...),
		GetDueReviewProcedure:      connect.NewUnaryHandler(GetDueReviewProcedure, h.GetDueReview, opts...),
		GradeItemProcedure:         connect.NewUnaryHandler(GradeItemProcedure, h.GradeItem, opts...),
		GetStatsProcedure:          connect.NewUnaryHandler(GetStatsProcedure, h.GetStats, opts...),
		SetStrictProcedure:         connect.NewUnaryHandler(SetStrictProcedure, h.SetStrict, opts...),
		SetDeliveryTimeProcedure:   connect.NewUnaryHandler(SetDeliveryTimeProcedure, h.SetDeliveryTime, opts...),
		GetLastReplyProcedure:      connect.NewUnaryHandler(GetLastReplyProcedure, h.GetLastReply, opts...),
		RequestDeletionProcedure:   connect.NewUnaryHandler(RequestDeletionProcedure, h.RequestDeletion, opts...),
		DeleteLearnerDataProcedure: connect.NewUnaryHandler(DeleteLearnerDataProcedure, h.DeleteLearnerData, opts...),
	}
	return "/" + TutorServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler, ok := handlers[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		handler.ServeHTTP(w, r)
	})
}

func (h *TutorHandler) check(msg any) *connect.Error {
	if err := h.validate.Struct(msg); err != nil {
		return h.invalidRequest(err)
	}
	return nil
}

func (h *TutorHandler) StartTalk(
	ctx context.Context,
	req *connect.Request[StartTalkRequest],
) (*connect.Response[StartTalkResponse], error) {
	if err := h.check(req.Msg); err != nil {
		return nil, err
	}
	welcome, err := h.tutor.StartTalk(ctx, req.Msg.LearnerID, req.Msg.DisplayName)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&StartTalkResponse{
		SessionVersion: welcome.Session.Version,
		Mode:           welcome.Session.Mode,
		NewLearner:     welcome.New,
		Returning:      welcome.Returned,
		Streak:         welcome.Streak,
		DueCount:       welcome.DueCount,
	}), nil
}

// Talk runs one turn. Either audio or a transcript is required.
func (h *TutorHandler) Talk(
	ctx context.Context,
	req *connect.Request[TalkRequest],
) (*connect.Response[TalkResponse], error) {
	if err := h.check(req.Msg); err != nil {
		return nil, err
	}
	if !h.limiter.Allow(req.Msg.LearnerID) {
		return nil, connect.NewError(connect.CodeResourceExhausted, fmt.Errorf("learner %d is sending turns too quickly", req.Msg.LearnerID))
	}

	turnReq := turn.Request{
		LearnerID:   req.Msg.LearnerID,
		DisplayName: req.Msg.DisplayName,
		Version:     req.Msg.SessionVersion,
		Transcript:  strings.TrimSpace(req.Msg.Transcript),
	}
	if len(req.Msg.Audio) > 0 {
		turnReq.Audio = &voice.Audio{
			Data:     req.Msg.Audio,
			MIMEType: req.Msg.AudioMIMEType,
			Duration: time.Duration(req.Msg.AudioDurationMs) * time.Millisecond,
		}
	}

	result, err := h.tutor.Talk(ctx, turnReq)
	if err != nil {
		return nil, toConnectError(err)
	}

	corrections := make([]Correction, 0, len(result.Reply.Issues))
	for _, issue := range result.Reply.Issues {
		corrections = append(corrections, Correction{
			Type:        issue.Type,
			Original:    issue.Original,
			Corrected:   issue.Corrected,
			Explanation: issue.Explanation,
		})
	}
	return connect.NewResponse(&TalkResponse{
		TurnID:         result.TurnID,
		Transcript:     result.Transcript,
		Reply:          result.Reply.Text,
		FollowUp:       result.Reply.FollowUp,
		Corrections:    corrections,
		ReplyAudio:     result.ReplyAudio,
		ReplyAudioRef:  result.ReplyAudioRef,
		SessionVersion: result.Session.Version,
		Graded:         result.Graded,
	}), nil
}

func (h *TutorHandler) SetMode(
	ctx context.Context,
	req *connect.Request[SetModeRequest],
) (*connect.Response[SetModeResponse], error) {
	if err := h.check(req.Msg); err != nil {
		return nil, err
	}
	snapshot, err := h.tutor.SetMode(ctx, req.Msg.LearnerID, req.Msg.Mode, req.Msg.SessionVersion)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&SetModeResponse{
		Mode:           snapshot.Mode,
		SessionVersion: snapshot.Version,
	}), nil
}

func (h *TutorHandler) GetPlan(
	ctx context.Context,
	req *connect.Request[LearnerRequest],
) (*connect.Response[GetPlanResponse], error) {
	if err := h.check(req.Msg); err != nil {
		return nil, err
	}
	plan, err := h.tutor.GetPlan(ctx, req.Msg.LearnerID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&GetPlanResponse{
		Due:      toItems(plan.Due),
		DueCount: plan.DueCount,
		Upcoming: toItems(plan.Upcoming),
		Mastered: plan.Mastered,
		Total:    plan.Total,
	}), nil
}

func (h *TutorHandler) GetDueReview(
	ctx context.Context,
	req *connect.Request[GetDueReviewRequest],
) (*connect.Response[GetDueReviewResponse], error) {
	if err := h.check(req.Msg); err != nil {
		return nil, err
	}
	items, err := h.tutor.GetDueReview(ctx, req.Msg.LearnerID, req.Msg.Limit)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&GetDueReviewResponse{Items: toItems(items)}), nil
}

func (h *TutorHandler) GradeItem(
	ctx context.Context,
	req *connect.Request[GradeItemRequest],
) (*connect.Response[GradeItemResponse], error) {
	if err := h.check(req.Msg); err != nil {
		return nil, err
	}
	latency := time.Duration(req.Msg.LatencyMs) * time.Millisecond
	item, err := h.tutor.Grade(ctx, req.Msg.LearnerID, req.Msg.ItemID, req.Msg.Correct, latency)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&GradeItemResponse{Item: toItem(*item)}), nil
}

func (h *TutorHandler) GetStats(
	ctx context.Context,
	req *connect.Request[LearnerRequest],
) (*connect.Response[GetStatsResponse], error) {
	if err := h.check(req.Msg); err != nil {
		return nil, err
	}
	stats, err := h.tutor.GetStats(ctx, req.Msg.LearnerID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&GetStatsResponse{
		Reviews:    stats.Reviews,
		Correct:    stats.Correct,
		Accuracy:   stats.Accuracy(),
		ActiveDays: stats.ActiveDays,
		Mastered:   stats.Mastered,
		Total:      stats.Total,
		DueCount:   stats.DueCount,
		Streak:     stats.Streak,
		TurnsToday: stats.TurnsToday,
		Strictness: string(stats.Strictness),
		Mode:       string(stats.Mode),
	}), nil
}

func (h *TutorHandler) SetStrict(
	ctx context.Context,
	req *connect.Request[SetStrictRequest],
) (*connect.Response[SetStrictResponse], error) {
	if err := h.check(req.Msg); err != nil {
		return nil, err
	}
	level, err := h.tutor.SetStrict(ctx, req.Msg.LearnerID, req.Msg.Level)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&SetStrictResponse{Level: string(level)}), nil
}

func (h *TutorHandler) SetDeliveryTime(
	ctx context.Context,
	req *connect.Request[SetDeliveryTimeRequest],
) (*connect.Response[SetDeliveryTimeResponse], error) {
	if err := h.check(req.Msg); err != nil {
		return nil, err
	}
	l, err := h.tutor.SetDeliveryTime(ctx, req.Msg.LearnerID, req.Msg.DeliveryTime, req.Msg.Timezone)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&SetDeliveryTimeResponse{
		DeliveryTime: l.DeliveryTime,
		Timezone:     l.Timezone,
	}), nil
}

func (h *TutorHandler) GetLastReply(
	ctx context.Context,
	req *connect.Request[LearnerRequest],
) (*connect.Response[GetLastReplyResponse], error) {
	if err := h.check(req.Msg); err != nil {
		return nil, err
	}
	reply, err := h.tutor.GetLastReply(ctx, req.Msg.LearnerID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&GetLastReplyResponse{
		Reply:         reply.Text,
		ReplyAudioRef: reply.AudioRef,
	}), nil
}

// RequestDeletion is the first step of DeleteLearnerData.
func (h *TutorHandler) RequestDeletion(
	_ context.Context,
	req *connect.Request[LearnerRequest],
) (*connect.Response[RequestDeletionResponse], error) {
	if err := h.check(req.Msg); err != nil {
		return nil, err
	}
	return connect.NewResponse(&RequestDeletionResponse{
		ConfirmationToken: h.tutor.RequestDeletion(req.Msg.LearnerID),
	}), nil
}

func (h *TutorHandler) DeleteLearnerData(
	ctx context.Context,
	req *connect.Request[DeleteLearnerDataRequest],
) (*connect.Response[DeleteLearnerDataResponse], error) {
	if err := h.check(req.Msg); err != nil {
		return nil, err
	}
	deletion, err := h.tutor.DeleteLearnerData(ctx, req.Msg.LearnerID, req.Msg.ConfirmationToken)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&DeleteLearnerDataResponse{
		SessionClosed: deletion.SessionClosed,
		AudioObjects:  deletion.AudioObjects,
	}), nil
}

func toItems(items []learning.Item) []Item {
	converted := make([]Item, 0, len(items))
	for _, item := range items {
		converted = append(converted, toItem(item))
	}
	return converted
}

func toItem(item learning.Item) Item {
	return Item{
		ID:           item.ID,
		Kind:         string(item.Kind),
		Content:      item.Content,
		Difficulty:   item.Difficulty,
		IntervalDays: item.IntervalDays,
		NextDueAt:    item.NextDueAt,
		LastReviewed: item.LastReviewedAt,
	}
}

// learnerLimiter is a token bucket per learner. A bucket idle for a whole
// refill window is full again and indistinguishable from a new one, so such
// buckets are pruned once the map grows.
type learnerLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	refill   time.Duration
	pruneAt  int
	now      func() time.Time
	limiters map[int64]*limiterEntry
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const minLimiterPrune = 1024

func newLearnerLimiter(perMinute int) *learnerLimiter {
	if perMinute <= 0 {
		return &learnerLimiter{limit: rate.Inf}
	}
	return &learnerLimiter{
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    perMinute,
		refill:   time.Minute,
		pruneAt:  minLimiterPrune,
		now:      time.Now,
		limiters: make(map[int64]*limiterEntry),
	}
}

func (l *learnerLimiter) Allow(learnerID int64) bool {
	if l.limit == rate.Inf {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	entry, ok := l.limiters[learnerID]
	if !ok {
		if len(l.limiters) >= l.pruneAt {
			l.prune(now)
		}
		entry = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[learnerID] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

func (l *learnerLimiter) prune(now time.Time) {
	for id, entry := range l.limiters {
		if now.Sub(entry.lastSeen) >= l.refill {
			delete(l.limiters, id)
		}
	}
	l.pruneAt = max(minLimiterPrune, 2*len(l.limiters))
}
