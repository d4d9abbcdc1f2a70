package server

import (
	"cmp"
	"context"
	"errors"
	"slices"

	"github.com/google/uuid"

	"chaincraft/design"
	"chaincraft/domain/session"
)

const anonymousCreator = "anonymous"

type chatReply struct {
	Message     string           `json:"message"`
	Phase       design.Phase     `json:"phase"`
	Design      *design.Document `json:"design,omitempty"`
	Artifact    string           `json:"artifact,omitempty"`
	ReadyToMint bool             `json:"readyToMint"`
}

// Chat forwards one user turn to the generator and records any design or
// artifact it produces on the session.
func (s *Server) Chat(ctx context.Context, req *request) (*response, error) {
	var in struct {
		Message   string           `json:"message"`
		SessionID string           `json:"sessionId"`
		Creator   string           `json:"creator"`
		Wallet    string           `json:"walletAddress"`
		History   []design.Message `json:"history"`
	}
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	if in.Message == "" {
		return nil, required("message")
	}

	history := append(slices.Clone(in.History), design.Message{Role: "user", Content: in.Message})
	reply, err := s.Generator.Generate(ctx, history)
	if err != nil {
		s.logger.Warn("design generation failed", "session", in.SessionID, "error", err)
		return nil, rpcError(err)
	}

	id := in.SessionID
	if id == "" {
		id = uuid.NewString()
	}
	creator := cmp.Or(in.Creator, in.Wallet, anonymousCreator)

	if reply.Design != nil {
		if err := s.saveDesign(id, creator, *reply.Design, turns(history)); err != nil {
			return nil, rpcError(err)
		}
	}
	if reply.Artifact != "" {
		if _, ok := s.Store.Update(id, session.Patch{Artifact: &reply.Artifact}); !ok {
			s.logger.Debug("artifact for unknown session dropped", "session", id)
		}
	}

	return respond(map[string]any{
		"sessionId": id,
		"response": chatReply{
			Message:     reply.Message,
			Phase:       reply.Phase,
			Design:      reply.Design,
			Artifact:    reply.Artifact,
			ReadyToMint: reply.ReadyToMint,
		},
	})
}

// saveDesign creates the session for a new design or refreshes the design
// fields and conversation of an existing one.
func (s *Server) saveDesign(id, creator string, doc design.Document, history []session.ChatTurn) error {
	maxPlayers := doc.MaxPlayers
	if maxPlayers <= 0 {
		maxPlayers = s.cfg.DesignMaxPlayers
	}
	_, err := s.Store.Create(id, creator, maxPlayers, session.Fields{
		Name:         doc.Name,
		Genre:        doc.Genre,
		Description:  doc.Description,
		Rules:        doc.Rules,
		WinCondition: doc.WinCondition,
		History:      history,
	})
	if !errors.Is(err, session.ErrAlreadyExists) {
		return err
	}

	s.Store.Update(id, session.Patch{
		Name:         nonEmpty(doc.Name),
		Genre:        nonEmpty(doc.Genre),
		Description:  nonEmpty(doc.Description),
		Rules:        doc.Rules,
		WinCondition: nonEmpty(doc.WinCondition),
		History:      history,
	})
	return nil
}

// GenerateCode asks the generator for the playable HTML of a design and,
// when sessionId names a session, stores it as that session's artifact.
func (s *Server) GenerateCode(ctx context.Context, req *request) (*response, error) {
	var in struct {
		Design     *design.Document `json:"design"`
		GameDesign *design.Document `json:"gameDesign"`
		SessionID  string           `json:"sessionId"`
	}
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	doc := cmp.Or(in.Design, in.GameDesign)
	if doc == nil {
		return nil, required("design")
	}

	code, err := s.Generator.GenerateCode(ctx, *doc)
	if err != nil {
		s.logger.Warn("code generation failed", "session", in.SessionID, "error", err)
		return nil, rpcError(err)
	}
	if in.SessionID != "" {
		if _, ok := s.Store.Update(in.SessionID, session.Patch{Artifact: &code}); !ok {
			s.logger.Debug("artifact for unknown session dropped", "session", in.SessionID)
		}
	}
	return respond(map[string]any{"code": code})
}

func turns(history []design.Message) []session.ChatTurn {
	out := make([]session.ChatTurn, 0, len(history))
	for _, m := range history {
		out = append(out, session.ChatTurn{Role: m.Role, Content: m.Content})
	}
	return out
}

func nonEmpty(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
