package handler

import (
	"context"
	"time"

	"github.com/goevery/chatrelay/internal/broadcaster"
	"go.uber.org/zap"
)

type HeartbeatResponse struct {
	Timestamp time.Time `json:"timestamp"`
}

type HeartbeatHandlerInterface interface {
	Handle(ctx context.Context) HeartbeatResponse
}

type IdentityLookup interface {
	UserIdOf(connectionId string) (string, bool)
}

type HeartbeatHandler struct {
	logger     *zap.Logger
	identities IdentityLookup
	presence   broadcaster.Presence
}

func NewHeartbeatHandler(
	logger *zap.Logger,
	identities IdentityLookup,
	presence broadcaster.Presence,
) *HeartbeatHandler {
	return &HeartbeatHandler{
		logger,
		identities,
		presence,
	}
}

// Handle keeps the online marker of an identified connection from expiring.
func (h *HeartbeatHandler) Handle(ctx context.Context) HeartbeatResponse {
	connection, ok := broadcaster.ConnectionFromContext(ctx)
	if ok && h.presence != nil {
		if userId, identified := h.identities.UserIdOf(connection.Id()); identified {
			err := h.presence.SetOnline(ctx, userId)
			if err != nil {
				h.logger.Warn("failed to refresh presence",
					zap.String("userId", userId),
					zap.Error(err))
			}
		}
	}

	return HeartbeatResponse{
		Timestamp: time.Now(),
	}
}
