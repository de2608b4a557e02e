package cluster

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/goevery/chatrelay/internal/broadcaster"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const nodeHeader = "Chatrelay-Node"

// relayedEvent carries the payload as bytes so it crosses nodes unchanged.
type relayedEvent struct {
	Kind    broadcaster.Kind `json:"kind"`
	RoomId  string           `json:"roomId"`
	Payload []byte           `json:"payload"`
}

type Dispatcher interface {
	Dispatch(ctx context.Context, event broadcaster.Event) (broadcaster.Outcome, error)
}

// NATSRelay shares fanout events between gateway nodes over a single subject.
type NATSRelay struct {
	logger  *zap.Logger
	conn    *nats.Conn
	subject string
	nodeId  string

	subscription *nats.Subscription
}

func NewNATSRelay(logger *zap.Logger, conn *nats.Conn, subject string, nodeId string) *NATSRelay {
	return &NATSRelay{
		logger:  logger.With(zap.String("nodeId", nodeId)),
		conn:    conn,
		subject: subject,
		nodeId:  nodeId,
	}
}

func (r *NATSRelay) Publish(ctx context.Context, event broadcaster.Event) error {
	msg, err := r.encode(event)
	if err != nil {
		return err
	}

	return r.conn.PublishMsg(msg)
}

func (r *NATSRelay) encode(event broadcaster.Event) (*nats.Msg, error) {
	data, err := json.Marshal(relayedEvent{
		Kind:    event.Kind,
		RoomId:  event.RoomId,
		Payload: event.Payload,
	})
	if err != nil {
		return nil, err
	}

	msg := nats.NewMsg(r.subject)
	msg.Data = data
	msg.Header.Set(nodeHeader, r.nodeId)

	return msg, nil
}

// Subscribe delivers events published by other nodes to local room members.
func (r *NATSRelay) Subscribe(ctx context.Context, dispatcher Dispatcher) error {
	if r.subscription != nil {
		return errors.New("relay already subscribed")
	}

	subscription, err := r.conn.Subscribe(r.subject, func(msg *nats.Msg) {
		r.handle(ctx, dispatcher, msg)
	})
	if err != nil {
		return err
	}

	r.subscription = subscription

	return nil
}

func (r *NATSRelay) handle(ctx context.Context, dispatcher Dispatcher, msg *nats.Msg) {
	event, ok := r.decode(msg)
	if !ok {
		return
	}

	_, err := dispatcher.Dispatch(ctx, event)
	if err != nil {
		r.logger.Error("failed to dispatch relayed event",
			zap.String("roomId", event.RoomId),
			zap.Error(err))
	}
}

// decode returns false for the node's own publications and for malformed messages.
func (r *NATSRelay) decode(msg *nats.Msg) (broadcaster.Event, bool) {
	if msg.Header.Get(nodeHeader) == r.nodeId {
		return broadcaster.Event{}, false
	}

	var relayed relayedEvent
	err := json.Unmarshal(msg.Data, &relayed)
	if err != nil {
		r.logger.Warn("discarding malformed relayed event", zap.Error(err))

		return broadcaster.Event{}, false
	}

	event := broadcaster.Event{
		Kind:    relayed.Kind,
		RoomId:  relayed.RoomId,
		Payload: relayed.Payload,
		Relayed: true,
	}

	if !event.Kind.IsFanout() {
		r.logger.Warn("discarding relayed event of unexpected kind",
			zap.String("event", string(event.Kind)))

		return broadcaster.Event{}, false
	}

	return event, true
}

func (r *NATSRelay) Close() error {
	if r.subscription != nil {
		err := r.subscription.Drain()
		if err != nil {
			return err
		}
	}

	return r.conn.Drain()
}
