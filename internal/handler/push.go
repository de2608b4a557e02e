package handler

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/goevery/chatrelay/internal/auth"
	"github.com/goevery/chatrelay/internal/broadcaster"
	"github.com/goevery/chatrelay/internal/ierr"
)

type PushRequest struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

type PushHandlerInterface interface {
	Handle(ctx context.Context, req PushRequest) (EventResponse, error)
}

// PushHandler lets a trusted backend fan an event out to a room. There is no
// origin connection, so every member receives it.
type PushHandler struct {
	validator  *Validator
	dispatcher Dispatcher
}

func NewPushHandler(validator *Validator, dispatcher Dispatcher) *PushHandler {
	return &PushHandler{
		validator,
		dispatcher,
	}
}

func (h *PushHandler) Handle(ctx context.Context, req PushRequest) (EventResponse, error) {
	authentication, ok := auth.AuthenticationFromContext(ctx)
	if !ok {
		return EventResponse{}, ierr.New(ierr.ErrorCodeUnauthenticated, errors.New("user not authenticated"))
	}

	if !authentication.IsPublisher() {
		return EventResponse{},
			ierr.New(ierr.ErrorCodePermissionDenied, errors.New("user not authorized to push events"))
	}

	kind, err := broadcaster.ParseKind(req.Kind)
	if err != nil {
		return EventResponse{}, err
	}

	if !kind.IsFanout() {
		return EventResponse{},
			ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("only fanout events can be pushed"))
	}

	var params *json.RawMessage
	if len(req.Payload) > 0 {
		params = &req.Payload
	}

	event, err := decodeEvent(h.validator, kind, params)
	if err != nil {
		return EventResponse{}, err
	}

	if !authentication.IsAuthorized(event.RoomId) {
		return EventResponse{},
			ierr.New(ierr.ErrorCodePermissionDenied, errors.New("user not authorized to push to this room"))
	}

	outcome, err := h.dispatcher.Dispatch(ctx, event)
	if err != nil {
		return EventResponse{}, err
	}

	return EventResponse{
		RoomId:    outcome.RoomId,
		MessageId: outcome.MessageId,
		Delivered: outcome.Delivered(),
		Failed:    outcome.Failed(),
	}, nil
}
