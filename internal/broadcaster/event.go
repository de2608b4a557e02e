package broadcaster

import (
	"encoding/json"
	"fmt"

	"github.com/goevery/chatrelay/internal/ierr"
)

type Kind string

const (
	KindChatJoin    Kind = "chat:join"
	KindChatLeave   Kind = "chat:leave"
	KindMessageSend Kind = "message:send"
	KindMessageRead Kind = "message:read"
	KindTypingStart Kind = "typing:start"
	KindTypingStop  Kind = "typing:stop"
	KindUserJoin    Kind = "user:join"
	KindUserStatus  Kind = "user:status"
)

var kinds = []Kind{
	KindChatJoin,
	KindChatLeave,
	KindMessageSend,
	KindMessageRead,
	KindTypingStart,
	KindTypingStop,
	KindUserJoin,
	KindUserStatus,
}

func ParseKind(name string) (Kind, error) {
	for _, kind := range kinds {
		if string(kind) == name {
			return kind, nil
		}
	}

	return "", ierr.New(ierr.ErrorCodeInvalidArgument, fmt.Errorf("%w: %q", ErrUnknownEventKind, name))
}

// IsMembership reports whether the kind mutates room membership.
func (k Kind) IsMembership() bool {
	switch k {
	case KindChatJoin, KindChatLeave, KindUserJoin:
		return true
	default:
		return false
	}
}

func (k Kind) IsFanout() bool {
	switch k {
	case KindMessageSend, KindMessageRead, KindTypingStart, KindTypingStop, KindUserStatus:
		return true
	default:
		return false
	}
}

// OutboundEvent is the method name receivers see for this kind.
func (k Kind) OutboundEvent() string {
	if k == KindMessageSend {
		return "message:receive"
	}

	return string(k)
}

// NewPayload returns the typed payload shape for the kind, ready to be decoded into.
func (k Kind) NewPayload() Payload {
	switch k {
	case KindUserJoin:
		return &UserPayload{}
	case KindUserStatus:
		return &UserStatusPayload{}
	default:
		return &ChatPayload{}
	}
}

// Payload is the part of an event body the router looks at. Everything else is
// forwarded untouched.
type Payload interface {
	TargetRoom() string
}

type ChatPayload struct {
	ChatId string `json:"chatId" validate:"required,roomid"`
}

func (p *ChatPayload) TargetRoom() string { return p.ChatId }

type UserPayload struct {
	UserId string `json:"userId" validate:"required,roomid"`
}

func (p *UserPayload) TargetRoom() string { return p.UserId }

type UserStatusPayload struct {
	UserId string `json:"userId" validate:"required,roomid"`
	Status string `json:"status,omitempty" validate:"omitempty,oneof=online offline away busy"`
}

func (p *UserStatusPayload) TargetRoom() string { return p.UserId }

type Event struct {
	Kind    Kind            `json:"kind"`
	RoomId  string          `json:"roomId"`
	Payload json.RawMessage `json:"payload"`

	// Origin is the sending connection. Empty for server-side and relayed events.
	Origin string `json:"-"`

	// Relayed marks events that arrived from another node.
	Relayed bool `json:"-"`
}
