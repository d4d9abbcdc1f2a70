package session

import (
	"maps"
	"slices"
	"time"
)

const (
	DefaultName  = "Untitled Game"
	DefaultGenre = "misc"
)

// State is the opaque game-state value shared by every member of a room.
// Values stored in a Session are treated as immutable: writers replace the
// whole State through Update instead of mutating it in place.
type State map[string]any

// Deployment records the mint metadata of a session.
type Deployment struct {
	Deployed    bool
	TokenID     *int64
	ContractRef string
	TxHash      string
}

// ChatTurn is one message of the design conversation that produced a session.
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Session is a game room.
type Session struct {
	ID           string
	Name         string
	Genre        string
	Description  string
	Creator      string
	Members      []string
	MaxPlayers   int
	GameState    State
	Rules        []string
	WinCondition string
	Artifact     string
	History      []ChatTurn
	Active       bool
	CreatedAt    time.Time
	LastActivity time.Time
	Deployment   Deployment
}

// HasMember reports whether player is in the member list.
func (s Session) HasMember(player string) bool {
	return slices.Contains(s.Members, player)
}

func (s Session) clone() Session {
	out := s
	out.Members = slices.Clone(s.Members)
	out.Rules = slices.Clone(s.Rules)
	out.History = slices.Clone(s.History)
	if s.Deployment.TokenID != nil {
		id := *s.Deployment.TokenID
		out.Deployment.TokenID = &id
	}
	return out
}

// Fields are the optional attributes supplied at creation time.
type Fields struct {
	Name         string
	Genre        string
	Description  string
	GameState    State
	Rules        []string
	WinCondition string
	Artifact     string
	History      []ChatTurn
}

// Patch is a shallow update. Nil fields are left untouched.
type Patch struct {
	Name         *string
	Genre        *string
	Description  *string
	MaxPlayers   *int
	Members      []string
	GameState    State
	Rules        []string
	WinCondition *string
	Artifact     *string
	History      []ChatTurn
	Active       *bool
	Deployment   *Deployment
}

func (p Patch) apply(s *Session) {
	if p.Name != nil {
		s.Name = *p.Name
	}
	if p.Genre != nil {
		s.Genre = *p.Genre
	}
	if p.Description != nil {
		s.Description = *p.Description
	}
	if p.MaxPlayers != nil {
		s.MaxPlayers = *p.MaxPlayers
	}
	if p.Members != nil {
		s.Members = slices.Clone(p.Members)
	}
	if p.GameState != nil {
		s.GameState = p.GameState
	}
	if p.Rules != nil {
		s.Rules = slices.Clone(p.Rules)
	}
	if p.WinCondition != nil {
		s.WinCondition = *p.WinCondition
	}
	if p.Artifact != nil {
		s.Artifact = *p.Artifact
	}
	if p.History != nil {
		s.History = slices.Clone(p.History)
	}
	if p.Active != nil {
		s.Active = *p.Active
	}
	if p.Deployment != nil {
		s.Deployment = *p.Deployment
	}
}

// CloneState returns a shallow copy of st, never nil.
func CloneState(st State) State {
	if st == nil {
		return State{}
	}
	return maps.Clone(st)
}
