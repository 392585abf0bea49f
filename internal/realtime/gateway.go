// Package realtime bridges the presence registry to an in-process message
// hub: join/leave/disconnect bookkeeping plus room-scoped emits.
package realtime

import (
	"log"

	"taskline/internal/presence"
)

// Gateway owns the join/leave/disconnect lifecycle for task rooms and emits
// membership-changed notifications to the room after each transition.
type Gateway struct {
	Presence *presence.Registry
	Hub      *Hub
	Logger   *log.Logger
}

func NewGateway(reg *presence.Registry, hub *Hub) *Gateway {
	return &Gateway{Presence: reg, Hub: hub}
}

func (g *Gateway) logf(format string, args ...any) {
	if g.Logger != nil {
		g.Logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

// Connect registers a live connection for a user.
func (g *Gateway) Connect(userID, connID string) {
	g.Presence.Connect(userID, connID)
}

// JoinTask adds the user to the task room and notifies current members. The
// emitted active_users reflects the membership after the join.
func (g *Gateway) JoinTask(taskID, userID, connID string) []string {
	members := g.Presence.Join(taskID, userID, connID)
	g.EmitToRoom(taskID, "userJoined", map[string]any{
		"taskId":       taskID,
		"userId":       userID,
		"active_users": members,
	})
	return members
}

// LeaveTask removes the user from the room and notifies remaining members.
func (g *Gateway) LeaveTask(taskID, userID, connID string) []string {
	members := g.Presence.Leave(taskID, userID, connID)
	g.EmitToRoom(taskID, "userLeft", map[string]any{
		"taskId":       taskID,
		"userId":       userID,
		"active_users": members,
	})
	return members
}

// Disconnect drops the connection without touching room membership; an
// explicit leave is the only thing that removes a user from a room.
func (g *Gateway) Disconnect(connID string) {
	g.Hub.Detach(connID)
	if userID, offline := g.Presence.Disconnect(connID); offline && userID != "" {
		g.logf("realtime: user %s fully offline", userID)
	}
}

// EmitToRoom delivers the event to every live connection of every current
// room member. Membership is read once at emit time.
func (g *Gateway) EmitToRoom(taskID, event string, data map[string]any) {
	for _, connID := range g.Presence.RoomConnections(taskID) {
		g.Hub.EmitToConn(connID, event, data)
	}
}

// Notify pushes an in-app notification to every live connection of the user.
func (g *Gateway) Notify(userID, message string) {
	g.EmitToUser(userID, "notification", map[string]any{"message": message})
}

// EmitToUser delivers the event to every live connection of one user.
func (g *Gateway) EmitToUser(userID, event string, data map[string]any) {
	for _, connID := range g.Presence.UserConnections(userID) {
		g.Hub.EmitToConn(connID, event, data)
	}
}
