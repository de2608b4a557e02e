package broadcaster

import (
	"errors"
	"fmt"

	"github.com/goevery/chatrelay/internal/ierr"
)

var (
	ErrConnectionNotFound  = errors.New("connection not found")
	ErrDuplicateConnection = errors.New("connection already registered")
	ErrRoomNotFound        = errors.New("room not found")
	ErrDeliveryFailed      = errors.New("delivery failed")
	ErrUnknownEventKind    = errors.New("unknown event kind")
	ErrIdentityConflict    = errors.New("connection already identified as another user")
)

func connectionNotFound(connectionId string) error {
	return ierr.New(ierr.ErrorCodeNotFound, fmt.Errorf("%w: %s", ErrConnectionNotFound, connectionId))
}

func duplicateConnection(connectionId string) error {
	return ierr.New(ierr.ErrorCodeAlreadyExists, fmt.Errorf("%w: %s", ErrDuplicateConnection, connectionId))
}

func RoomNotFound(roomId string) error {
	return ierr.New(ierr.ErrorCodeNotFound, fmt.Errorf("%w: %s", ErrRoomNotFound, roomId))
}

func deliveryFailed(connectionId string, cause error) error {
	return ierr.New(ierr.ErrorCodeInternal, fmt.Errorf("%w to %s: %w", ErrDeliveryFailed, connectionId, cause))
}
