package handler

import (
	"context"
	"errors"
	"testing"

	"github.com/goevery/chatrelay/internal/auth"
	"github.com/goevery/chatrelay/internal/broadcaster"
	"github.com/goevery/chatrelay/internal/ierr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var errUserMissing = ierr.New(ierr.ErrorCodeNotFound, errors.New("user not found"))

func TestHeartbeatHandler(t *testing.T) {
	t.Run("refreshes identified connections", func(t *testing.T) {
		presence := &mockPresence{}
		presence.On("SetOnline", "u1").Return(nil).Once()

		handler := NewHeartbeatHandler(zap.NewNop(), identities{"conn-a": "u1"}, presence)
		ctx := broadcaster.WithConnection(context.Background(), stubConn{"conn-a"})

		response := handler.Handle(ctx)

		assert.False(t, response.Timestamp.IsZero())
		presence.AssertExpectations(t)
	})

	t.Run("anonymous connections only get a timestamp", func(t *testing.T) {
		presence := &mockPresence{}

		handler := NewHeartbeatHandler(zap.NewNop(), identities{}, presence)
		ctx := broadcaster.WithConnection(context.Background(), stubConn{"conn-a"})

		response := handler.Handle(ctx)

		assert.False(t, response.Timestamp.IsZero())
		presence.AssertNotCalled(t, "SetOnline", "u1")
	})

	t.Run("presence failure does not fail the heartbeat", func(t *testing.T) {
		presence := &mockPresence{}
		presence.On("SetOnline", "u1").Return(errors.New("redis down"))

		handler := NewHeartbeatHandler(zap.NewNop(), identities{"conn-a": "u1"}, presence)
		ctx := broadcaster.WithConnection(context.Background(), stubConn{"conn-a"})

		response := handler.Handle(ctx)

		assert.False(t, response.Timestamp.IsZero())
	})
}

func TestContactsHandler(t *testing.T) {
	reader := &auth.Authentication{Subject: "dashboard", Scope: []string{"read"}}
	directory := contactDirectory{"u1": {"u2", "u3"}}

	t.Run("reports contact presence in directory order", func(t *testing.T) {
		presence := &mockPresence{}
		presence.On("Lookup", []string{"u2", "u3"}).Return(map[string]bool{"u3": true}, nil)

		handler := NewContactsHandler(NewValidator(), directory, presence)
		ctx := auth.WithAuthentication(context.Background(), reader)

		response, err := handler.Handle(ctx, "u1")

		require.NoError(t, err)
		assert.Equal(t, ContactsResponse{
			UserId: "u1",
			Contacts: []ContactPresence{
				{UserId: "u2", Online: false},
				{UserId: "u3", Online: true},
			},
		}, response)
	})

	t.Run("unknown user", func(t *testing.T) {
		handler := NewContactsHandler(NewValidator(), directory, &mockPresence{})
		ctx := auth.WithAuthentication(context.Background(), reader)

		_, err := handler.Handle(ctx, "u9")

		assert.Equal(t, ierr.ErrorCodeNotFound, ierr.CodeOf(err))
	})

	t.Run("publish scope cannot read", func(t *testing.T) {
		handler := NewContactsHandler(NewValidator(), directory, &mockPresence{})
		ctx := auth.WithAuthentication(context.Background(), &auth.Authentication{Subject: "backend", Scope: []string{"publish"}})

		_, err := handler.Handle(ctx, "u1")

		assert.Equal(t, ierr.ErrorCodePermissionDenied, ierr.CodeOf(err))
	})

	t.Run("presence failure", func(t *testing.T) {
		presence := &mockPresence{}
		presence.On("Lookup", []string{"u2", "u3"}).Return(map[string]bool(nil), errors.New("redis down"))

		handler := NewContactsHandler(NewValidator(), directory, presence)
		ctx := auth.WithAuthentication(context.Background(), reader)

		_, err := handler.Handle(ctx, "u1")

		assert.Error(t, err)
	})
}

func TestRoomHandler(t *testing.T) {
	rooms := broadcaster.NewRoomIndex()
	rooms.Join("chat1", "conn-a")
	router := broadcaster.NewRouter(zap.NewNop(), broadcaster.NewConnectionRegistry(rooms), rooms, nil)
	handler := NewRoomHandler(NewValidator(), router)

	t.Run("lists members", func(t *testing.T) {
		ctx := auth.WithAuthentication(context.Background(), &auth.Authentication{Subject: "ops", IsAdmin: true})

		response, err := handler.Handle(ctx, "chat1")

		require.NoError(t, err)
		assert.Equal(t, []string{"conn-a"}, response.Members)
	})

	t.Run("empty room", func(t *testing.T) {
		ctx := auth.WithAuthentication(context.Background(), &auth.Authentication{Subject: "ops", IsAdmin: true})

		_, err := handler.Handle(ctx, "chat2")

		assert.ErrorIs(t, err, broadcaster.ErrRoomNotFound)
	})

	t.Run("reader limited to other rooms", func(t *testing.T) {
		ctx := auth.WithAuthentication(context.Background(), &auth.Authentication{
			Subject:         "dashboard",
			Scope:           []string{"read"},
			AuthorizedRooms: []string{"chat2"},
		})

		_, err := handler.Handle(ctx, "chat1")

		assert.Equal(t, ierr.ErrorCodePermissionDenied, ierr.CodeOf(err))
	})
}
