package broadcaster

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// Lifecycle drives a connection through connected, identified, closing and closed.
type Lifecycle struct {
	logger   *zap.Logger
	registry *ConnectionRegistry
	rooms    *RoomIndex
	presence Presence

	closing sync.Map
}

func NewLifecycle(
	logger *zap.Logger,
	registry *ConnectionRegistry,
	rooms *RoomIndex,
	presence Presence,
) *Lifecycle {
	return &Lifecycle{
		logger:   logger,
		registry: registry,
		rooms:    rooms,
		presence: presence,
	}
}

func (l *Lifecycle) Open(conn Conn) error {
	err := l.registry.Register(conn)
	if err != nil {
		return err
	}

	l.logger.Debug("connection opened",
		zap.String("connectionId", conn.Id()))

	return nil
}

// Close purges the connection from every room it joined. Closing an already
// closed connection is a no-op, so the offline side effect fires at most once.
func (l *Lifecycle) Close(ctx context.Context, connectionId string) error {
	l.closing.Store(connectionId, struct{}{})
	defer l.closing.Delete(connectionId)

	detached, err := l.registry.Unregister(connectionId)
	if errors.Is(err, ErrConnectionNotFound) {
		l.logger.Debug("connection already closed",
			zap.String("connectionId", connectionId))

		return nil
	}
	if err != nil {
		return err
	}

	for _, roomId := range detached.Rooms {
		l.rooms.Leave(roomId, connectionId)
	}

	if detached.UserId != "" && l.presence != nil {
		err = l.presence.SetOffline(context.WithoutCancel(ctx), detached.UserId)
		if err != nil {
			l.logger.Error("failed to mark user offline",
				zap.String("userId", detached.UserId),
				zap.Error(err))
		}
	}

	l.logger.Debug("connection closed",
		zap.String("connectionId", connectionId),
		zap.String("userId", detached.UserId),
		zap.Strings("rooms", detached.Rooms))

	return nil
}

func (l *Lifecycle) State(connectionId string) State {
	if _, ok := l.closing.Load(connectionId); ok {
		return StateClosing
	}

	return l.registry.State(connectionId)
}
