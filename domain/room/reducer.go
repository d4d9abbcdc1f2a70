package room

import (
	"maps"
	"slices"
	"time"

	"chaincraft/domain/session"
)

// Action type tags understood by the reducer.
const (
	TagMove        = "MOVE"
	TagSetTurn     = "SET_TURN"
	TagUpdateScore = "UPDATE_SCORE"
	TagCustom      = "CUSTOM"
)

// ActionEnvelope is the wire form of an action: a type tag and a schema-free payload.
type ActionEnvelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Action is a decoded action. The set of implementations is closed.
type Action interface {
	Tag() string
	apply(st session.State, player string, ts int64)
}

// Move appends {player, ...Fields, timestamp} to the "moves" sequence.
type Move struct {
	Fields map[string]any
}

// SetTurn overwrites "currentTurn".
type SetTurn struct {
	Player any
}

// UpdateScore sets scores[player].
type UpdateScore struct {
	Score any
}

// Custom shallow-merges Fields into the state.
type Custom struct {
	Fields map[string]any
}

// Generic is any other tag; it is appended to the "actions" sequence.
type Generic struct {
	Type    string
	Payload any
}

func (Move) Tag() string        { return TagMove }
func (SetTurn) Tag() string     { return TagSetTurn }
func (UpdateScore) Tag() string { return TagUpdateScore }
func (Custom) Tag() string      { return TagCustom }
func (g Generic) Tag() string   { return g.Type }

// Parse decodes the envelope into its Action variant.
func (e ActionEnvelope) Parse() (Action, error) {
	if e.Type == "" {
		return nil, required("action.type")
	}
	fields, _ := e.Payload.(map[string]any)

	switch e.Type {
	case TagMove:
		return Move{Fields: fields}, nil
	case TagSetTurn:
		return SetTurn{Player: fields["player"]}, nil
	case TagUpdateScore:
		return UpdateScore{Score: fields["score"]}, nil
	case TagCustom:
		return Custom{Fields: fields}, nil
	default:
		return Generic{Type: e.Type, Payload: e.Payload}, nil
	}
}

// Reduce returns the state that results from player applying a at time now.
// current is never modified.
func Reduce(current session.State, a Action, player string, now time.Time) session.State {
	next := session.CloneState(current)
	a.apply(next, player, now.UnixMilli())
	return next
}

func (m Move) apply(st session.State, player string, ts int64) {
	entry := map[string]any{"player": player}
	maps.Copy(entry, m.Fields)
	entry["timestamp"] = ts
	st["moves"] = appendTo(st["moves"], entry)
}

func (s SetTurn) apply(st session.State, _ string, _ int64) {
	st["currentTurn"] = s.Player
}

func (u UpdateScore) apply(st session.State, player string, _ int64) {
	scores := map[string]any{}
	if prev, ok := st["scores"].(map[string]any); ok {
		scores = maps.Clone(prev)
	}
	scores[player] = u.Score
	st["scores"] = scores
}

func (c Custom) apply(st session.State, _ string, _ int64) {
	maps.Copy(st, c.Fields)
}

func (g Generic) apply(st session.State, player string, ts int64) {
	entry := map[string]any{
		"player":    player,
		"type":      g.Type,
		"payload":   g.Payload,
		"timestamp": ts,
	}
	st["actions"] = appendTo(st["actions"], entry)
}

// appendTo copies seq before appending so earlier states keep their slice.
// A non-sequence value is replaced.
func appendTo(seq any, entry map[string]any) []any {
	prev, _ := seq.([]any)
	out := make([]any, 0, len(prev)+1)
	out = append(out, slices.Clone(prev)...)
	return append(out, entry)
}
