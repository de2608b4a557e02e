package broadcaster

import (
	"context"
)

// Conn is the transport side of a live connection.
type Conn interface {
	Id() string

	// Send hands the message to the transport. It must not block on the network.
	Send(ctx context.Context, message Message) error
}

type contextKey string

const connectionKey contextKey = "connection"

func WithConnection(ctx context.Context, conn Conn) context.Context {
	return context.WithValue(ctx, connectionKey, conn)
}

func ConnectionFromContext(ctx context.Context) (Conn, bool) {
	conn, ok := ctx.Value(connectionKey).(Conn)

	return conn, ok
}
