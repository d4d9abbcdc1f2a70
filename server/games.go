package server

import (
	"context"
	"fmt"

	"connectrpc.com/connect"

	"chaincraft/domain/session"
)

type gameSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Genre       string `json:"genre"`
	Description string `json:"description"`
	Creator     string `json:"creator"`
	Players     int    `json:"players"`
	MaxPlayers  int    `json:"maxPlayers"`
	IsDeployed  bool   `json:"isDeployed"`
	ContractRef string `json:"contractRef,omitempty"`
	TokenID     *int64 `json:"tokenId,omitempty"`
	CreatedAt   int64  `json:"createdAt"`
}

type gameDetail struct {
	gameSummary
	Members      []string      `json:"members"`
	Rules        []string      `json:"rules"`
	WinCondition string        `json:"winCondition,omitempty"`
	Artifact     string        `json:"artifact,omitempty"`
	History      []chatTurn    `json:"history"`
	GameState    session.State `json:"gameState"`
	TxHash       string        `json:"txHash,omitempty"`
	IsActive     bool          `json:"isActive"`
	LastActivity int64         `json:"lastActivity"`
}

func summarize(s session.Session) gameSummary {
	return gameSummary{
		ID:          s.ID,
		Name:        s.Name,
		Genre:       s.Genre,
		Description: s.Description,
		Creator:     s.Creator,
		Players:     len(s.Members),
		MaxPlayers:  s.MaxPlayers,
		IsDeployed:  s.Deployment.Deployed,
		ContractRef: s.Deployment.ContractRef,
		TokenID:     s.Deployment.TokenID,
		CreatedAt:   s.CreatedAt.UnixMilli(),
	}
}

func detail(s session.Session) gameDetail {
	return gameDetail{
		gameSummary:  summarize(s),
		Members:      orEmpty(s.Members),
		Rules:        orEmpty(s.Rules),
		WinCondition: s.WinCondition,
		Artifact:     s.Artifact,
		History:      chatTurns(s.History),
		GameState:    session.CloneState(s.GameState),
		TxHash:       s.Deployment.TxHash,
		IsActive:     s.Active,
		LastActivity: s.LastActivity.UnixMilli(),
	}
}

type chatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func chatTurns(list []session.ChatTurn) []chatTurn {
	out := make([]chatTurn, 0, len(list))
	for _, t := range list {
		out = append(out, chatTurn{Role: t.Role, Content: t.Content})
	}
	return out
}

func summaries(list []session.Session) []gameSummary {
	out := make([]gameSummary, 0, len(list))
	for _, s := range list {
		out = append(out, summarize(s))
	}
	return out
}

func orEmpty(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func (s *Server) ListGames(ctx context.Context, req *request) (*response, error) {
	return respond(map[string]any{"games": summaries(s.Store.ListActive())})
}

func (s *Server) GetGame(ctx context.Context, req *request) (*response, error) {
	var in struct {
		ID string `json:"id"`
	}
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	if in.ID == "" {
		return nil, required("id")
	}
	g, ok := s.Store.Get(in.ID)
	if !ok {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("game %q: %w", in.ID, session.ErrNotFound))
	}
	return respond(detail(g))
}

func (s *Server) ListGamesByCreator(ctx context.Context, req *request) (*response, error) {
	var in struct {
		Creator string `json:"creator"`
	}
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	if in.Creator == "" {
		return nil, required("creator")
	}
	return respond(map[string]any{"games": summaries(s.Store.ListByCreator(in.Creator))})
}
