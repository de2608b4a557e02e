package broadcaster

import (
	"context"
	"errors"
	"sync"

	"github.com/stretchr/testify/mock"
)

type fakeConn struct {
	id   string
	fail bool

	mu       sync.Mutex
	messages []Message
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (c *fakeConn) Id() string {
	return c.id
}

func (c *fakeConn) Send(ctx context.Context, message Message) error {
	if c.fail {
		return errors.New("transport half-closed")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.messages = append(c.messages, message)

	return nil
}

func (c *fakeConn) Received() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]Message(nil), c.messages...)
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

type mockRelay struct {
	mock.Mock
}

func (m *mockRelay) Publish(ctx context.Context, event Event) error {
	return m.Called(event).Error(0)
}
