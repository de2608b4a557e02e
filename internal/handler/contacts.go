package handler

import (
	"context"
	"errors"

	"github.com/goevery/chatrelay/internal/auth"
	"github.com/goevery/chatrelay/internal/ierr"
)

type ContactPresence struct {
	UserId string `json:"userId"`
	Online bool   `json:"online"`
}

type ContactsResponse struct {
	UserId   string            `json:"userId"`
	Contacts []ContactPresence `json:"contacts"`
}

type ContactDirectory interface {
	Contacts(ctx context.Context, userId string) ([]string, error)
}

type PresenceLookup interface {
	Lookup(ctx context.Context, userIds []string) (map[string]bool, error)
}

type ContactsHandler struct {
	validator *Validator
	directory ContactDirectory
	presence  PresenceLookup
}

func NewContactsHandler(
	validator *Validator,
	directory ContactDirectory,
	presence PresenceLookup,
) *ContactsHandler {
	return &ContactsHandler{
		validator,
		directory,
		presence,
	}
}

func (h *ContactsHandler) Handle(ctx context.Context, userId string) (ContactsResponse, error) {
	authentication, ok := auth.AuthenticationFromContext(ctx)
	if !ok {
		return ContactsResponse{}, ierr.New(ierr.ErrorCodeUnauthenticated, errors.New("user not authenticated"))
	}

	if !authentication.IsReader() {
		return ContactsResponse{},
			ierr.New(ierr.ErrorCodePermissionDenied, errors.New("read scope required"))
	}

	err := h.validator.RoomId(userId)
	if err != nil {
		return ContactsResponse{}, err
	}

	contactIds, err := h.directory.Contacts(ctx, userId)
	if err != nil {
		return ContactsResponse{}, err
	}

	online, err := h.presence.Lookup(ctx, contactIds)
	if err != nil {
		return ContactsResponse{}, err
	}

	contacts := make([]ContactPresence, len(contactIds))
	for i, contactId := range contactIds {
		contacts[i] = ContactPresence{
			UserId: contactId,
			Online: online[contactId],
		}
	}

	return ContactsResponse{
		UserId:   userId,
		Contacts: contacts,
	}, nil
}
