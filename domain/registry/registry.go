// Package registry tracks which player and room each live connection occupies.
package registry

import (
	"slices"
	"sync"
)

// Binding associates a connection with a player in a room.
type Binding struct {
	ConnID string
	Player string
	RoomID string
}

// Registry maps connection ids to bindings and keeps a reverse index of the
// connections bound to each room.
type Registry struct {
	mu     sync.RWMutex
	byConn map[string]Binding
	byRoom map[string]map[string]struct{}
}

func New() *Registry {
	return &Registry{
		byConn: make(map[string]Binding),
		byRoom: make(map[string]map[string]struct{}),
	}
}

// Bind replaces any previous binding of connID.
func (r *Registry) Bind(connID, player, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.unbindLocked(connID)
	r.byConn[connID] = Binding{ConnID: connID, Player: player, RoomID: roomID}
	conns, ok := r.byRoom[roomID]
	if !ok {
		conns = make(map[string]struct{})
		r.byRoom[roomID] = conns
	}
	conns[connID] = struct{}{}
}

func (r *Registry) Lookup(connID string) (Binding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.byConn[connID]
	return b, ok
}

// Unbind removes the binding of connID and returns it.
func (r *Registry) Unbind(connID string) (Binding, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.unbindLocked(connID)
}

func (r *Registry) unbindLocked(connID string) (Binding, bool) {
	b, ok := r.byConn[connID]
	if !ok {
		return Binding{}, false
	}
	delete(r.byConn, connID)
	if conns, ok := r.byRoom[b.RoomID]; ok {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(r.byRoom, b.RoomID)
		}
	}
	return b, true
}

// Connections returns the ids of the connections bound to roomID, sorted.
func (r *Registry) Connections(roomID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := r.byRoom[roomID]
	out := make([]string, 0, len(conns))
	for id := range conns {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Count returns the number of connections bound to roomID.
func (r *Registry) Count(roomID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byRoom[roomID])
}

// Len returns the number of bound connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn)
}
