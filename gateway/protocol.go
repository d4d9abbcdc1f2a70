package gateway

import (
	"encoding/json"
	"fmt"

	"chaincraft/domain/room"
)

// Inbound event names.
const (
	EventJoin     = "join"
	EventLeave    = "leave"
	EventAction   = "action"
	EventChat     = "chat"
	EventGameOver = "game_over"
)

// aliases accepts the event names used by older clients.
var aliases = map[string]string{
	"join_game":    EventJoin,
	"leave_game":   EventLeave,
	"game_action":  EventAction,
	"chat_message": EventChat,
}

func canonical(name string) string {
	if c, ok := aliases[name]; ok {
		return c
	}
	return name
}

// Frame is the JSON envelope of every websocket message.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// target names the room an event is about. gameId is the older spelling.
type target struct {
	RoomID string `json:"roomId"`
	GameID string `json:"gameId"`
}

func (t target) room() string {
	if t.RoomID != "" {
		return t.RoomID
	}
	return t.GameID
}

type joinData struct {
	target
	Player        string `json:"player"`
	WalletAddress string `json:"walletAddress"`
}

func (d joinData) player() string {
	if d.Player != "" {
		return d.Player
	}
	return d.WalletAddress
}

type leaveData struct {
	target
}

type actionData struct {
	target
	Action room.ActionEnvelope `json:"action"`
}

type chatData struct {
	target
	Message string `json:"message"`
}

type gameOverData struct {
	target
	Score any `json:"score"`
}

func decodeFrame(msg []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(msg, &f); err != nil {
		return Frame{}, &room.ValidationError{Field: "frame", Reason: "is not valid JSON"}
	}
	if f.Event == "" {
		return Frame{}, &room.ValidationError{Field: "event", Reason: "is required"}
	}
	return f, nil
}

func decodeData(f Frame, v any) error {
	if len(f.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(f.Data, v); err != nil {
		return &room.ValidationError{Field: "data", Reason: fmt.Sprintf("is malformed for %s", f.Event)}
	}
	return nil
}

func encodeFrame(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", event, err)
	}
	return json.Marshal(Frame{Event: event, Data: data})
}
