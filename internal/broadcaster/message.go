package broadcaster

import (
	"encoding/json"
	"time"
)

// Message is the outbound unit of a fanout. Payload holds the inbound bytes verbatim.
type Message struct {
	Id         string          `json:"id"`
	CreateTime time.Time       `json:"createTime"`
	RoomId     string          `json:"roomId"`
	Event      string          `json:"event"`
	Payload    json.RawMessage `json:"payload"`
}
