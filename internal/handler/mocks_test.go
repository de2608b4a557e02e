package handler

import (
	"context"

	"github.com/goevery/chatrelay/internal/broadcaster"
	"github.com/stretchr/testify/mock"
)

type mockDispatcher struct {
	mock.Mock
}

func (m *mockDispatcher) Dispatch(ctx context.Context, event broadcaster.Event) (broadcaster.Outcome, error) {
	args := m.Called(event)

	return args.Get(0).(broadcaster.Outcome), args.Error(1)
}

type mockPresence struct {
	mock.Mock
}

func (m *mockPresence) SetOnline(ctx context.Context, userId string) error {
	return m.Called(userId).Error(0)
}

func (m *mockPresence) SetOffline(ctx context.Context, userId string) error {
	return m.Called(userId).Error(0)
}

func (m *mockPresence) IsOnline(ctx context.Context, userId string) (bool, error) {
	args := m.Called(userId)

	return args.Bool(0), args.Error(1)
}

func (m *mockPresence) Lookup(ctx context.Context, userIds []string) (map[string]bool, error) {
	args := m.Called(userIds)

	return args.Get(0).(map[string]bool), args.Error(1)
}

type stubConn struct {
	id string
}

func (c stubConn) Id() string {
	return c.id
}

func (c stubConn) Send(ctx context.Context, message broadcaster.Message) error {
	return nil
}

type identities map[string]string

func (i identities) UserIdOf(connectionId string) (string, bool) {
	userId, ok := i[connectionId]

	return userId, ok
}

type contactDirectory map[string][]string

func (d contactDirectory) Contacts(ctx context.Context, userId string) ([]string, error) {
	contacts, ok := d[userId]
	if !ok {
		return nil, errUserMissing
	}

	return contacts, nil
}
