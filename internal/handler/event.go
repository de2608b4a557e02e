package handler

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/goevery/chatrelay/internal/broadcaster"
	"github.com/goevery/chatrelay/internal/ierr"
)

type EventResponse struct {
	RoomId    string `json:"roomId"`
	MessageId string `json:"messageId,omitempty"`
	Delivered int    `json:"delivered"`
	Failed    int    `json:"failed"`
}

type EventHandlerInterface interface {
	Handle(ctx context.Context, kind broadcaster.Kind, params *json.RawMessage) (EventResponse, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, event broadcaster.Event) (broadcaster.Outcome, error)
}

type EventHandler struct {
	validator  *Validator
	dispatcher Dispatcher
}

func NewEventHandler(validator *Validator, dispatcher Dispatcher) *EventHandler {
	return &EventHandler{
		validator,
		dispatcher,
	}
}

func (h *EventHandler) Handle(ctx context.Context, kind broadcaster.Kind, params *json.RawMessage) (EventResponse, error) {
	connection, ok := broadcaster.ConnectionFromContext(ctx)
	if !ok {
		return EventResponse{}, errors.New("connection not found in context")
	}

	event, err := decodeEvent(h.validator, kind, params)
	if err != nil {
		return EventResponse{}, err
	}

	event.Origin = connection.Id()

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

// decodeEvent validates params against the kind's payload shape. The params bytes
// become the event payload as they are.
func decodeEvent(validator *Validator, kind broadcaster.Kind, params *json.RawMessage) (broadcaster.Event, error) {
	if params == nil {
		return broadcaster.Event{}, ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("missing params"))
	}

	payload := kind.NewPayload()
	if err := json.Unmarshal(*params, payload); err != nil {
		return broadcaster.Event{}, ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("invalid params: "+err.Error()))
	}

	if err := validator.Struct(payload); err != nil {
		return broadcaster.Event{}, err
	}

	return broadcaster.Event{
		Kind:    kind,
		RoomId:  payload.TargetRoom(),
		Payload: *params,
	}, nil
}
