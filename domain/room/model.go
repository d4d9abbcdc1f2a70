package room

import (
	"slices"

	"chaincraft/domain/session"
)

// Outbound event names.
const (
	EventGameState       = "game_state"
	EventPlayerJoined    = "player_joined"
	EventPlayerLeft      = "player_left"
	EventActionBroadcast = "action_broadcast"
	EventChatBroadcast   = "chat_broadcast"
	EventPlayerFinished  = "player_finished"
	EventError           = "error"
)

// Scope selects the recipients of a Broadcast.
type Scope int

const (
	// ScopeRoom targets every connection bound to RoomID.
	ScopeRoom Scope = iota
	// ScopeConnection targets ConnID only.
	ScopeConnection
)

// Broadcast is an instruction for the gateway to deliver Payload.
type Broadcast struct {
	Scope   Scope
	RoomID  string
	ConnID  string
	Event   string
	Payload any
}

// Dispatcher delivers broadcast instructions. The coordinator calls Dispatch
// while holding the room's lock, so implementations must not block on I/O
// and must not call back into the coordinator.
type Dispatcher interface {
	Dispatch(b Broadcast)
}

type DispatcherFunc func(Broadcast)

func (f DispatcherFunc) Dispatch(b Broadcast) { f(b) }

type GameStatePayload struct {
	RoomID  string        `json:"roomId"`
	State   session.State `json:"state"`
	Members []string      `json:"members"`
	Name    string        `json:"name"`
}

type MembershipPayload struct {
	RoomID      string   `json:"roomId"`
	Player      string   `json:"player"`
	MemberCount int      `json:"memberCount"`
	Members     []string `json:"members"`
}

type ActionPayload struct {
	RoomID    string         `json:"roomId"`
	Player    string         `json:"player"`
	Action    ActionEnvelope `json:"action"`
	NewState  session.State  `json:"newState"`
	Timestamp int64          `json:"timestamp"`
}

type ChatPayload struct {
	RoomID    string `json:"roomId"`
	Player    string `json:"player"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

type FinishedPayload struct {
	RoomID    string `json:"roomId"`
	Player    string `json:"player"`
	Score     any    `json:"score"`
	Timestamp int64  `json:"timestamp"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

func toRoom(roomID, event string, payload any) Broadcast {
	return Broadcast{Scope: ScopeRoom, RoomID: roomID, Event: event, Payload: payload}
}

func toConn(connID, roomID, event string, payload any) Broadcast {
	return Broadcast{Scope: ScopeConnection, ConnID: connID, RoomID: roomID, Event: event, Payload: payload}
}

func membership(event string, s session.Session, player string) Broadcast {
	members := slices.Clone(s.Members)
	return toRoom(s.ID, event, MembershipPayload{
		RoomID:      s.ID,
		Player:      player,
		MemberCount: len(members),
		Members:     members,
	})
}

// ChatBroadcast builds the room-wide relay of a chat message.
func ChatBroadcast(roomID, player, message string, timestamp int64) Broadcast {
	return toRoom(roomID, EventChatBroadcast, ChatPayload{
		RoomID:    roomID,
		Player:    player,
		Message:   message,
		Timestamp: timestamp,
	})
}

// ErrorReply builds an error event for a single connection.
func ErrorReply(connID, message string) Broadcast {
	return toConn(connID, "", EventError, ErrorPayload{Message: message})
}
