package broadcaster

import (
	"context"
	"errors"
	"hash/maphash"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goevery/chatrelay/internal/ierr"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const roomLockStripes = 64

type Presence interface {
	SetOnline(ctx context.Context, userId string) error
	SetOffline(ctx context.Context, userId string) error
	IsOnline(ctx context.Context, userId string) (bool, error)
}

// Relay forwards locally dispatched fanout events to other nodes.
type Relay interface {
	Publish(ctx context.Context, event Event) error
}

type Delivery struct {
	ConnectionId string
	Err          error
}

type Outcome struct {
	Kind       Kind       `json:"kind"`
	RoomId     string     `json:"roomId"`
	MessageId  string     `json:"messageId,omitempty"`
	Deliveries []Delivery `json:"-"`
}

func (o Outcome) Delivered() int {
	return lo.CountBy(o.Deliveries, func(d Delivery) bool { return d.Err == nil })
}

func (o Outcome) Failed() int {
	return len(o.Deliveries) - o.Delivered()
}

type Stats struct {
	Connections int    `json:"connections"`
	Rooms       int    `json:"rooms"`
	Delivered   uint64 `json:"delivered"`
	Failed      uint64 `json:"failed"`
}

type RouterOption func(*Router)

func WithRelay(relay Relay) RouterOption {
	return func(r *Router) {
		r.relay = relay
	}
}

func WithFanoutConcurrency(limit int) RouterOption {
	return func(r *Router) {
		if limit > 0 {
			r.fanoutConcurrency = limit
		}
	}
}

type Router struct {
	logger   *zap.Logger
	registry *ConnectionRegistry
	rooms    *RoomIndex
	presence Presence
	relay    Relay

	fanoutConcurrency int

	seed      maphash.Seed
	roomLocks [roomLockStripes]sync.Mutex

	delivered atomic.Uint64
	failed    atomic.Uint64
}

func NewRouter(
	logger *zap.Logger,
	registry *ConnectionRegistry,
	rooms *RoomIndex,
	presence Presence,
	opts ...RouterOption,
) *Router {
	r := &Router{
		logger:            logger,
		registry:          registry,
		rooms:             rooms,
		presence:          presence,
		fanoutConcurrency: 32,
		seed:              maphash.MakeSeed(),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

func (r *Router) Dispatch(ctx context.Context, event Event) (Outcome, error) {
	if !event.Kind.IsMembership() && !event.Kind.IsFanout() {
		return Outcome{}, ierr.New(ierr.ErrorCodeInvalidArgument, ErrUnknownEventKind)
	}

	if event.RoomId == "" {
		return Outcome{}, ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("missing room"))
	}

	outcome := Outcome{
		Kind:   event.Kind,
		RoomId: event.RoomId,
	}

	switch event.Kind {
	case KindChatJoin:
		return outcome, r.registry.JoinRoom(event.Origin, event.RoomId)
	case KindChatLeave:
		return outcome, r.registry.LeaveRoom(event.Origin, event.RoomId)
	case KindUserJoin:
		return outcome, r.identify(ctx, event.Origin, event.RoomId)
	}

	outcome = r.fanout(ctx, event)

	if r.relay != nil && !event.Relayed {
		err := r.relay.Publish(ctx, event)
		if err != nil {
			r.logger.Error("failed to relay event",
				zap.String("roomId", event.RoomId),
				zap.String("event", string(event.Kind)),
				zap.Error(err))
		}
	}

	return outcome, nil
}

// identify attaches the user to the connection and joins its personal room.
func (r *Router) identify(ctx context.Context, connectionId string, userId string) error {
	err := r.registry.AttachUser(connectionId, userId)
	if err != nil {
		return err
	}

	err = r.registry.JoinRoom(connectionId, userId)
	if err != nil {
		return err
	}

	if r.presence == nil {
		return nil
	}

	err = r.presence.SetOnline(ctx, userId)
	if err != nil {
		r.logger.Error("failed to mark user online",
			zap.String("userId", userId),
			zap.Error(err))
	}

	return nil
}

func (r *Router) fanout(ctx context.Context, event Event) Outcome {
	// a disconnect of the origin must not cut delivery short
	ctx = context.WithoutCancel(ctx)

	lock := r.roomLock(event.RoomId)
	lock.Lock()
	defer lock.Unlock()

	memberIds := lo.Without(r.rooms.Members(event.RoomId), event.Origin)

	message := Message{
		Id:         gonanoid.Must(),
		CreateTime: time.Now(),
		RoomId:     event.RoomId,
		Event:      event.Kind.OutboundEvent(),
		Payload:    event.Payload,
	}

	deliveries := make([]Delivery, len(memberIds))

	var group errgroup.Group
	group.SetLimit(r.fanoutConcurrency)

	for i, connectionId := range memberIds {
		group.Go(func() error {
			deliveries[i] = r.deliver(ctx, connectionId, message)

			return nil
		})
	}

	_ = group.Wait()

	return Outcome{
		Kind:       event.Kind,
		RoomId:     event.RoomId,
		MessageId:  message.Id,
		Deliveries: deliveries,
	}
}

func (r *Router) deliver(ctx context.Context, connectionId string, message Message) Delivery {
	var err error

	conn, ok := r.registry.Lookup(connectionId)
	if ok {
		err = conn.Send(ctx, message)
	} else {
		err = ErrConnectionNotFound
	}

	if err != nil {
		r.failed.Add(1)
		r.logger.Warn("failed to deliver message",
			zap.String("connectionId", connectionId),
			zap.String("roomId", message.RoomId),
			zap.String("event", message.Event),
			zap.Error(err))

		return Delivery{ConnectionId: connectionId, Err: deliveryFailed(connectionId, err)}
	}

	r.delivered.Add(1)

	return Delivery{ConnectionId: connectionId}
}

func (r *Router) roomLock(roomId string) *sync.Mutex {
	return &r.roomLocks[maphash.String(r.seed, roomId)%roomLockStripes]
}

// Members returns the live members of a room, or RoomNotFound when it has none.
func (r *Router) Members(roomId string) ([]string, error) {
	members := r.rooms.Members(roomId)
	if len(members) == 0 {
		return nil, RoomNotFound(roomId)
	}

	return members, nil
}

// Reconcile rebuilds the room index from the connection registry.
func (r *Router) Reconcile() {
	r.registry.Reindex()

	r.logger.Info("room index reconciled",
		zap.Int("rooms", r.rooms.Count()))
}

func (r *Router) Stats() Stats {
	return Stats{
		Connections: r.registry.Count(),
		Rooms:       r.rooms.Count(),
		Delivered:   r.delivered.Load(),
		Failed:      r.failed.Load(),
	}
}
