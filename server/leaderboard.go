package server

import (
	"context"
	"errors"

	"connectrpc.com/connect"

	"chaincraft/domain/session"
)

const defaultTopLimit = 50

var errNoOnChainScores = errors.New("on-chain leaderboard is not available: the ledger only simulates mints")

type scoreEntry struct {
	Player    string  `json:"player"`
	RoomID    string  `json:"roomId"`
	Score     float64 `json:"score"`
	GameName  string  `json:"gameName"`
	Timestamp int64   `json:"timestamp"`
}

func scoreEntries(list []session.Entry) []scoreEntry {
	out := make([]scoreEntry, 0, len(list))
	for _, e := range list {
		out = append(out, scoreEntry{
			Player:    e.Player,
			RoomID:    e.RoomID,
			Score:     e.Score,
			GameName:  e.DisplayName,
			Timestamp: e.Timestamp.UnixMilli(),
		})
	}
	return out
}

func (s *Server) TopScores(ctx context.Context, req *request) (*response, error) {
	var in struct {
		Limit int `json:"limit"`
	}
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	if in.Limit <= 0 {
		in.Limit = defaultTopLimit
	}
	return respond(map[string]any{"entries": scoreEntries(s.Leaderboard.Top(in.Limit))})
}

func (s *Server) PlayerScore(ctx context.Context, req *request) (*response, error) {
	var in struct {
		Player string `json:"player"`
	}
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	if in.Player == "" {
		return nil, required("player")
	}
	ps := s.Leaderboard.ForPlayer(in.Player)
	return respond(map[string]any{
		"player":      in.Player,
		"totalScore":  ps.TotalScore,
		"gamesPlayed": ps.GamesPlayed,
		"entries":     scoreEntries(ps.Entries),
	})
}

func (s *Server) SubmitScore(ctx context.Context, req *request) (*response, error) {
	var in struct {
		Player   string   `json:"player"`
		RoomID   string   `json:"roomId"`
		Score    *float64 `json:"score"`
		GameName string   `json:"gameName"`
	}
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	switch {
	case in.Player == "":
		return nil, required("player")
	case in.RoomID == "":
		return nil, required("roomId")
	case in.Score == nil:
		return nil, required("score")
	}
	if in.GameName == "" {
		in.GameName = "Unknown"
	}
	s.Leaderboard.Record(in.Player, in.RoomID, *in.Score, in.GameName)
	s.logger.Debug("score submitted", "player", in.Player, "room", in.RoomID, "score", *in.Score)
	return respond(map[string]any{"success": true})
}

// OnChainScores would read scores recorded by the leaderboard contract.
// Nothing is written on chain, so it always answers Unavailable.
func (s *Server) OnChainScores(ctx context.Context, req *request) (*response, error) {
	return nil, connect.NewError(connect.CodeUnavailable, errNoOnChainScores)
}
