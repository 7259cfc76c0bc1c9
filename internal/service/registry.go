package service

import (
	"slices"
	"sync"

	"github.com/immxrtalbeast/studyroom/internal/domain"
)

type registryEntry struct {
	conn domain.Connection
	sink Sink
}

// ConnectionRegistry maps live connections to their room and identity.
// A connection id is in at most one room's presence set at a time.
type ConnectionRegistry struct {
	mu    sync.RWMutex
	conns map[string]*registryEntry
	rooms map[string]map[string]struct{}
}

func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{
		conns: make(map[string]*registryEntry),
		rooms: make(map[string]map[string]struct{}),
	}
}

// Register adds an empty connection record. Registering a known id replaces its sink.
func (r *ConnectionRegistry) Register(connID string, sink Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.conns[connID]; ok {
		e.sink = sink
		return
	}
	r.conns[connID] = &registryEntry{conn: domain.NewConnection(connID), sink: sink}
}

// Attach associates the connection with a room and identity and returns the
// previous value. Unknown ids report false and change nothing.
func (r *ConnectionRegistry) Attach(connID, roomID, userID, username string) (domain.Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.conns[connID]
	if !ok {
		return domain.Connection{}, false
	}

	prev := e.conn
	r.removePresence(prev.RoomID, connID)

	set, ok := r.rooms[roomID]
	if !ok {
		set = make(map[string]struct{})
		r.rooms[roomID] = set
	}
	set[connID] = struct{}{}
	e.conn = prev.WithRoom(roomID, userID, username)

	return prev, true
}

// Detach clears the room association but keeps the record. It returns the
// connection as it was before detaching.
func (r *ConnectionRegistry) Detach(connID string) (domain.Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.conns[connID]
	if !ok {
		return domain.Connection{}, false
	}

	prev := e.conn
	r.removePresence(prev.RoomID, connID)
	e.conn = prev.Detached()

	return prev, true
}

// Unregister removes the record, detaching it first if needed.
func (r *ConnectionRegistry) Unregister(connID string) (domain.Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.conns[connID]
	if !ok {
		return domain.Connection{}, false
	}

	r.removePresence(e.conn.RoomID, connID)
	delete(r.conns, connID)

	return e.conn, true
}

// PeersOf returns the room's presence set minus excluding, sorted for stable output.
func (r *ConnectionRegistry) PeersOf(roomID, excluding string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.rooms[roomID]
	peers := make([]string, 0, len(set))
	for id := range set {
		if id == excluding {
			continue
		}
		peers = append(peers, id)
	}
	slices.Sort(peers)
	return peers
}

func (r *ConnectionRegistry) Lookup(connID string) (domain.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.conns[connID]
	if !ok {
		return domain.Connection{}, false
	}
	return e.conn, true
}

// Deliver hands the event to the connection's sink. It reports false for unknown
// connections and for sinks that refused the event.
func (r *ConnectionRegistry) Deliver(connID string, event domain.Event) bool {
	r.mu.RLock()
	e, ok := r.conns[connID]
	var sink Sink
	if ok {
		sink = e.sink
	}
	r.mu.RUnlock()

	if sink == nil {
		return false
	}
	return sink.Send(event)
}

func (r *ConnectionRegistry) RoomSize(roomID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[roomID])
}

func (r *ConnectionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// sinks snapshots every registered sink.
func (r *ConnectionRegistry) sinks() []Sink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Sink, 0, len(r.conns))
	for _, e := range r.conns {
		if e.sink != nil {
			out = append(out, e.sink)
		}
	}
	return out
}

func (r *ConnectionRegistry) removePresence(roomID, connID string) {
	if roomID == "" {
		return
	}
	set, ok := r.rooms[roomID]
	if !ok {
		return
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(r.rooms, roomID)
	}
}
