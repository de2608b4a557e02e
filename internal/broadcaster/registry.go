package broadcaster

import (
	"maps"
	"slices"
	"sync"

	"github.com/goevery/chatrelay/internal/ierr"
)

type State int

const (
	StateConnected State = iota
	StateIdentified
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateIdentified:
		return "identified"
	case StateClosing:
		return "closing"
	default:
		return "closed"
	}
}

// Detached is what remains of a connection after Unregister.
type Detached struct {
	ConnectionId string
	UserId       string
	Rooms        []string
}

type registration struct {
	conn   Conn
	userId string
	rooms  map[string]struct{}
}

// ConnectionRegistry is the source of truth for connection membership. When it
// carries a RoomIndex, joins and leaves are propagated to it while the registry
// lock is held, so the lock order is always registry then index.
type ConnectionRegistry struct {
	mu sync.RWMutex

	index       *RoomIndex
	connections map[string]*registration
}

func NewConnectionRegistry(index *RoomIndex) *ConnectionRegistry {
	return &ConnectionRegistry{
		index:       index,
		connections: make(map[string]*registration),
	}
}

func (r *ConnectionRegistry) Register(conn Conn) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.connections[conn.Id()]; ok {
		return duplicateConnection(conn.Id())
	}

	r.connections[conn.Id()] = &registration{
		conn:  conn,
		rooms: make(map[string]struct{}),
	}

	return nil
}

func (r *ConnectionRegistry) AttachUser(connectionId string, userId string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.connections[connectionId]
	if !ok {
		return connectionNotFound(connectionId)
	}

	if reg.userId != "" && reg.userId != userId {
		return ierr.New(ierr.ErrorCodeFailedPrecondition, ErrIdentityConflict)
	}

	reg.userId = userId

	return nil
}

func (r *ConnectionRegistry) JoinRoom(connectionId string, roomId string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.connections[connectionId]
	if !ok {
		return connectionNotFound(connectionId)
	}

	reg.rooms[roomId] = struct{}{}

	if r.index != nil {
		r.index.Join(roomId, connectionId)
	}

	return nil
}

func (r *ConnectionRegistry) LeaveRoom(connectionId string, roomId string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.connections[connectionId]
	if !ok {
		return connectionNotFound(connectionId)
	}

	delete(reg.rooms, roomId)

	if r.index != nil {
		r.index.Leave(roomId, connectionId)
	}

	return nil
}

// Unregister removes the connection and returns the rooms it was in, sorted.
// Purging those rooms from the index is left to the caller.
func (r *ConnectionRegistry) Unregister(connectionId string) (Detached, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.connections[connectionId]
	if !ok {
		return Detached{}, connectionNotFound(connectionId)
	}

	delete(r.connections, connectionId)

	return Detached{
		ConnectionId: connectionId,
		UserId:       reg.userId,
		Rooms:        slices.Sorted(maps.Keys(reg.rooms)),
	}, nil
}

func (r *ConnectionRegistry) UserIdOf(connectionId string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.connections[connectionId]
	if !ok || reg.userId == "" {
		return "", false
	}

	return reg.userId, true
}

func (r *ConnectionRegistry) Lookup(connectionId string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.connections[connectionId]
	if !ok {
		return nil, false
	}

	return reg.conn, true
}

func (r *ConnectionRegistry) Rooms(connectionId string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.connections[connectionId]
	if !ok {
		return nil, connectionNotFound(connectionId)
	}

	return slices.Sorted(maps.Keys(reg.rooms)), nil
}

func (r *ConnectionRegistry) State(connectionId string) State {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.connections[connectionId]
	switch {
	case !ok:
		return StateClosed
	case reg.userId != "":
		return StateIdentified
	default:
		return StateConnected
	}
}

func (r *ConnectionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.connections)
}

// Reindex rebuilds the room index from the registry's memberships.
func (r *ConnectionRegistry) Reindex() {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.index == nil {
		return
	}

	memberships := make(map[string][]string)
	for connectionId, reg := range r.connections {
		for roomId := range reg.rooms {
			memberships[roomId] = append(memberships[roomId], connectionId)
		}
	}

	r.index.Rebuild(memberships)
}
