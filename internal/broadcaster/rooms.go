package broadcaster

import (
	"slices"
	"sync"

	"github.com/samber/lo"
)

// RoomIndex maps a room to the connections joined to it. Empty rooms are pruned.
type RoomIndex struct {
	mu sync.RWMutex

	members map[string]map[string]struct{}
}

func NewRoomIndex() *RoomIndex {
	return &RoomIndex{
		members: make(map[string]map[string]struct{}),
	}
}

func (i *RoomIndex) Join(roomId string, connectionId string) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if _, ok := i.members[roomId]; !ok {
		i.members[roomId] = make(map[string]struct{})
	}

	i.members[roomId][connectionId] = struct{}{}
}

func (i *RoomIndex) Leave(roomId string, connectionId string) {
	i.mu.Lock()
	defer i.mu.Unlock()

	roomMembers, ok := i.members[roomId]
	if !ok {
		return
	}

	delete(roomMembers, connectionId)
	if len(roomMembers) == 0 {
		delete(i.members, roomId)
	}
}

// Members returns a sorted snapshot of the room's connections.
func (i *RoomIndex) Members(roomId string) []string {
	i.mu.RLock()
	defer i.mu.RUnlock()

	connectionIds := lo.Keys(i.members[roomId])
	slices.Sort(connectionIds)

	return connectionIds
}

func (i *RoomIndex) Size(roomId string) int {
	i.mu.RLock()
	defer i.mu.RUnlock()

	return len(i.members[roomId])
}

func (i *RoomIndex) Count() int {
	i.mu.RLock()
	defer i.mu.RUnlock()

	return len(i.members)
}

func (i *RoomIndex) Rebuild(memberships map[string][]string) {
	members := make(map[string]map[string]struct{}, len(memberships))
	for roomId, connectionIds := range memberships {
		if len(connectionIds) == 0 {
			continue
		}

		members[roomId] = lo.SliceToMap(connectionIds, func(connectionId string) (string, struct{}) {
			return connectionId, struct{}{}
		})
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	i.members = members
}
