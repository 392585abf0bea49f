// Package presence tracks which users are in which task room and which live
// connections belong to which user. The registry is the sole owner of its
// maps; callers interact only through its methods.
package presence

import (
	"sort"
	"sync"
)

type Registry struct {
	mu        sync.Mutex
	rooms     map[string]map[string]struct{} // taskID -> set of userIDs
	userConns map[string]map[string]struct{} // userID -> set of connIDs
	connUser  map[string]string              // connID -> userID
}

func NewRegistry() *Registry {
	return &Registry{
		rooms:     make(map[string]map[string]struct{}),
		userConns: make(map[string]map[string]struct{}),
		connUser:  make(map[string]string),
	}
}

// Connect registers a live connection for a user. A user may hold several
// simultaneous connections.
func (r *Registry) Connect(userID, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.userConns[userID] == nil {
		r.userConns[userID] = make(map[string]struct{})
	}
	r.userConns[userID][connID] = struct{}{}
	r.connUser[connID] = userID
}

// Join adds the user to the task's room, creating it if absent, and registers
// the connection. Returns the room membership snapshot after the join.
func (r *Registry) Join(taskID, userID, connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rooms[taskID] == nil {
		r.rooms[taskID] = make(map[string]struct{})
	}
	r.rooms[taskID][userID] = struct{}{}
	if connID != "" {
		if r.userConns[userID] == nil {
			r.userConns[userID] = make(map[string]struct{})
		}
		r.userConns[userID][connID] = struct{}{}
		r.connUser[connID] = userID
	}
	return membersLocked(r.rooms[taskID])
}

// Leave removes the user from the room and deregisters the connection. The
// room entry is deleted the moment its membership becomes empty. Unknown
// rooms are a no-op.
func (r *Registry) Leave(taskID, userID, connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	room := r.rooms[taskID]
	if room == nil {
		return nil
	}
	delete(room, userID)
	if len(room) == 0 {
		delete(r.rooms, taskID)
		room = nil
	}
	if connID != "" {
		r.dropConnLocked(connID)
	}
	return membersLocked(room)
}

// Disconnect handles a transport-level drop without an explicit leave: the
// connection is removed from the user's set, but room membership is left
// intact. Returns the owning user and whether they have no connections left.
func (r *Registry) Disconnect(connID string) (userID string, offline bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	userID, ok := r.connUser[connID]
	if !ok {
		return "", false
	}
	r.dropConnLocked(connID)
	_, stillOnline := r.userConns[userID]
	return userID, !stillOnline
}

// RoomMembers returns the current membership snapshot of a room.
func (r *Registry) RoomMembers(taskID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return membersLocked(r.rooms[taskID])
}

// RoomConnections returns every live connection of every member of the room.
func (r *Registry) RoomConnections(taskID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var conns []string
	for userID := range r.rooms[taskID] {
		for connID := range r.userConns[userID] {
			conns = append(conns, connID)
		}
	}
	sort.Strings(conns)
	return conns
}

// UserConnections returns the live connections of one user.
func (r *Registry) UserConnections(userID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var conns []string
	for connID := range r.userConns[userID] {
		conns = append(conns, connID)
	}
	sort.Strings(conns)
	return conns
}

// Online reports whether the user holds at least one live connection.
func (r *Registry) Online(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.userConns[userID]) > 0
}

func (r *Registry) dropConnLocked(connID string) {
	userID, ok := r.connUser[connID]
	if !ok {
		return
	}
	delete(r.connUser, connID)
	conns := r.userConns[userID]
	if conns != nil {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(r.userConns, userID)
		}
	}
}

// membersLocked copies the member set into a sorted slice so callers never
// see the registry's internal map.
func membersLocked(room map[string]struct{}) []string {
	if len(room) == 0 {
		return []string{}
	}
	members := make([]string, 0, len(room))
	for userID := range room {
		members = append(members, userID)
	}
	sort.Strings(members)
	return members
}
