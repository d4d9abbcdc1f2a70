package server

import (
	"context"
	"errors"
	"fmt"

	"connectrpc.com/connect"

	"chaincraft/design"
	"chaincraft/domain/session"
	"chaincraft/ledger"
)

var (
	errNoArtifact     = errors.New("game has no generated artifact")
	errMintInProgress = errors.New("mint already in progress")
)

func (s *Server) beginMint(id string) bool {
	s.mintMu.Lock()
	defer s.mintMu.Unlock()
	if _, busy := s.minting[id]; busy {
		return false
	}
	s.minting[id] = struct{}{}
	return true
}

func (s *Server) endMint(id string) {
	s.mintMu.Lock()
	delete(s.minting, id)
	s.mintMu.Unlock()
}

// Mint publishes a session's game as an NFT. The ledger call runs outside
// every room lock; at most one mint per session is in flight.
func (s *Server) Mint(ctx context.Context, req *request) (*response, error) {
	var in struct {
		SessionID string `json:"sessionId"`
		Creator   string `json:"creator"`
	}
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	switch {
	case in.SessionID == "":
		return nil, required("sessionId")
	case in.Creator == "":
		return nil, required("creator")
	}

	if !s.beginMint(in.SessionID) {
		return nil, connect.NewError(connect.CodeFailedPrecondition, errMintInProgress)
	}
	defer s.endMint(in.SessionID)

	g, ok := s.Store.Get(in.SessionID)
	if !ok {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("session %q: %w", in.SessionID, session.ErrNotFound))
	}
	if g.Deployment.Deployed {
		return respond(map[string]any{
			"alreadyDeployed": true,
			"tokenId":         g.Deployment.TokenID,
			"contractRef":     g.Deployment.ContractRef,
		})
	}
	if g.Artifact == "" {
		return nil, connect.NewError(connect.CodeFailedPrecondition, errNoArtifact)
	}

	meta := design.NewMetadata(design.Document{
		Name:         g.Name,
		Genre:        g.Genre,
		Description:  g.Description,
		Rules:        g.Rules,
		MaxPlayers:   g.MaxPlayers,
		WinCondition: g.WinCondition,
	}, g.ID, in.Creator, s.now())
	uri, err := meta.TokenURI()
	if err != nil {
		return nil, rpcError(err)
	}

	receipt, err := s.Minter.Mint(ctx, ledger.MintRequest{
		GameID:   g.ID,
		Creator:  in.Creator,
		TokenURI: uri,
	})
	if err != nil {
		s.logger.Error("mint failed", "session", g.ID, "error", err)
		return nil, rpcError(err)
	}

	tokenID := receipt.TokenID
	if _, ok := s.Store.Update(g.ID, session.Patch{Deployment: &session.Deployment{
		Deployed:    true,
		TokenID:     &tokenID,
		ContractRef: receipt.ContractRef,
		TxHash:      receipt.TxHash,
	}}); !ok {
		s.logger.Warn("minted session disappeared before recording", "session", g.ID, "tx", receipt.TxHash)
	}
	s.logger.Info("game minted",
		"session", g.ID,
		"token", receipt.TokenID,
		"tx", receipt.TxHash,
		"simulated", receipt.Simulated,
	)

	return respond(map[string]any{
		"success":         true,
		"txHash":          receipt.TxHash,
		"tokenId":         receipt.TokenID,
		"contractAddress": receipt.ContractRef,
		"explorerUrl":     receipt.ExplorerURL,
		"simulated":       receipt.Simulated,
		"metadata":        meta,
	})
}

func (s *Server) Contracts(ctx context.Context, req *request) (*response, error) {
	return respond(s.Minter.Contracts())
}
