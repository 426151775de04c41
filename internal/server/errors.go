package server

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"connectrpc.com/connect"
	"github.com/go-playground/validator/v10"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/protobuf/proto"

	"github.com/Gidwell/jiro/internal/apperr"
	"github.com/Gidwell/jiro/internal/session"
)

const errorDomain = "jiro"

// toConnectError maps the core error taxonomy to RPC codes.
func toConnectError(err error) *connect.Error {
	var (
		connectErr *connect.Error
		validation *apperr.ValidationError
		busy       *apperr.SessionBusyError
		stale      *apperr.StaleSessionError
		notFound   *apperr.NotFoundError
		limit      *apperr.LimitExceededError
		integrity  *apperr.DataIntegrityError
		dialect    *apperr.DialectError
	)
	switch {
	case errors.As(err, &connectErr):
		return connectErr
	case errors.As(err, &validation):
		return withDetail(connect.NewError(connect.CodeInvalidArgument, err), &errdetails.BadRequest{
			FieldViolations: []*errdetails.BadRequest_FieldViolation{{
				Field:       validation.Field,
				Description: validation.Reason,
			}},
		})
	case errors.As(err, &busy):
		return withDetail(connect.NewError(connect.CodeUnavailable, err), &errdetails.ErrorInfo{
			Reason:   "SESSION_BUSY",
			Domain:   errorDomain,
			Metadata: map[string]string{"state": busy.State},
		})
	case errors.As(err, &stale):
		return connect.NewError(connect.CodeAborted, err)
	case errors.As(err, &notFound), errors.Is(err, session.ErrNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.As(err, &limit):
		return withDetail(connect.NewError(connect.CodeResourceExhausted, err), &errdetails.QuotaFailure{
			Violations: []*errdetails.QuotaFailure_Violation{{
				Subject:     "daily_turns",
				Description: err.Error(),
			}},
		})
	case errors.As(err, &integrity), errors.As(err, &dialect):
		slog.Default().Error("internal failure", "error", err)
		return connect.NewError(connect.CodeInternal, err)
	case errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeCanceled, err)
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	}
	if stage, ok := apperr.StageOf(err); ok {
		return withDetail(connect.NewError(connect.CodeUnavailable, err), &errdetails.ErrorInfo{
			Reason:   "EXTERNAL_STAGE_FAILED",
			Domain:   errorDomain,
			Metadata: map[string]string{"stage": string(stage)},
		})
	}
	slog.Default().Error("unclassified failure", "error", err)
	return connect.NewError(connect.CodeInternal, err)
}

func withDetail(connectErr *connect.Error, detail proto.Message) *connect.Error {
	if d, err := connect.NewErrorDetail(detail); err == nil {
		connectErr.AddDetail(d)
	}
	return connectErr
}

// invalidRequest converts struct validation failures into a BadRequest.
func (h *TutorHandler) invalidRequest(err error) *connect.Error {
	connectErr := connect.NewError(connect.CodeInvalidArgument, err)
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return connectErr
	}
	violations := make([]*errdetails.BadRequest_FieldViolation, 0, len(fieldErrs))
	messages := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		message := fe.Translate(h.trans)
		violations = append(violations, &errdetails.BadRequest_FieldViolation{
			Field:       fe.Field(),
			Description: message,
		})
		messages = append(messages, message)
	}
	connectErr = connect.NewError(connect.CodeInvalidArgument, errors.New(strings.Join(messages, "; ")))
	return withDetail(connectErr, &errdetails.BadRequest{FieldViolations: violations})
}
