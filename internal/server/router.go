package server

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/goevery/chatrelay/internal/broadcaster"
	"github.com/goevery/chatrelay/internal/handler"
	"github.com/goevery/chatrelay/internal/ierr"
	"github.com/goevery/chatrelay/internal/rpc"
	"go.uber.org/zap"
)

type Router struct {
	logger *zap.Logger

	heartbeatHandler handler.HeartbeatHandlerInterface
	eventHandler     handler.EventHandlerInterface
}

func NewRouter(
	logger *zap.Logger,
	heartbeatHandler handler.HeartbeatHandlerInterface,
	eventHandler handler.EventHandlerInterface,
) *Router {
	return &Router{
		logger,
		heartbeatHandler,
		eventHandler,
	}
}

// RouteRequest handles a request and returns the frame to send back, if any.
// Errors are always reported; results only when the request carries an id.
func (r *Router) RouteRequest(ctx context.Context, request rpc.Request) *rpc.Response {
	response, err := r.Handle(ctx, request)
	if err != nil {
		response := request.ReplyWithError(r.mapError(err))

		return &response
	}

	if !request.ReplyExpected() {
		return nil
	}

	if response == nil {
		r.logger.Error("handler did not return a response but one was expected", zap.String("method", request.Method))

		response := request.ReplyWithError(
			ierr.New(ierr.ErrorCodeInternal, errors.New("internal error")),
		)

		return &response
	}

	rawJson, err := json.Marshal(response)
	if err != nil {
		response := request.ReplyWithError(r.mapError(err))

		return &response
	}

	payload := json.RawMessage(rawJson)
	reply := request.Reply(&payload)

	return &reply
}

func (r *Router) Handle(ctx context.Context, request rpc.Request) (any, error) {
	if request.Method == "heartbeat" {
		return r.heartbeatHandler.Handle(ctx), nil
	}

	kind, err := broadcaster.ParseKind(request.Method)
	if err != nil {
		return nil, ierr.New(ierr.ErrorCodeNotFound, errors.New("method not found: "+request.Method))
	}

	return r.eventHandler.Handle(ctx, kind, request.Params)
}

func (r *Router) mapError(err error) ierr.Error {
	var handlerErr ierr.Error
	if errors.As(err, &handlerErr) {
		return handlerErr
	}

	r.logger.Error("error in rpc handler", zap.Error(err))

	return ierr.New(ierr.ErrorCodeInternal, errors.New("internal error"))
}
