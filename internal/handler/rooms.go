package handler

import (
	"context"
	"errors"

	"github.com/goevery/chatrelay/internal/auth"
	"github.com/goevery/chatrelay/internal/ierr"
)

type RoomResponse struct {
	RoomId  string   `json:"roomId"`
	Members []string `json:"members"`
}

type MemberLookup interface {
	Members(roomId string) ([]string, error)
}

type RoomHandler struct {
	validator *Validator
	rooms     MemberLookup
}

func NewRoomHandler(validator *Validator, rooms MemberLookup) *RoomHandler {
	return &RoomHandler{
		validator,
		rooms,
	}
}

func (h *RoomHandler) Handle(ctx context.Context, roomId string) (RoomResponse, error) {
	authentication, ok := auth.AuthenticationFromContext(ctx)
	if !ok {
		return RoomResponse{}, ierr.New(ierr.ErrorCodeUnauthenticated, errors.New("user not authenticated"))
	}

	if !authentication.IsReader() || !authentication.IsAuthorized(roomId) {
		return RoomResponse{},
			ierr.New(ierr.ErrorCodePermissionDenied, errors.New("user not authorized to inspect this room"))
	}

	err := h.validator.RoomId(roomId)
	if err != nil {
		return RoomResponse{}, err
	}

	members, err := h.rooms.Members(roomId)
	if err != nil {
		return RoomResponse{}, err
	}

	return RoomResponse{
		RoomId:  roomId,
		Members: members,
	}, nil
}
