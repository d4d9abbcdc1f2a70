package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"chaincraft/design"
	"chaincraft/domain/session"
	"chaincraft/ledger"
)

const (
	ListGamesProcedure          = "/chaincraft.v1.GameService/ListGames"
	GetGameProcedure            = "/chaincraft.v1.GameService/GetGame"
	ListGamesByCreatorProcedure = "/chaincraft.v1.GameService/ListGamesByCreator"

	TopScoresProcedure   = "/chaincraft.v1.LeaderboardService/Top"
	PlayerScoreProcedure = "/chaincraft.v1.LeaderboardService/PlayerScore"
	SubmitScoreProcedure = "/chaincraft.v1.LeaderboardService/Submit"
	OnChainProcedure     = "/chaincraft.v1.LeaderboardService/OnChain"

	ChatProcedure         = "/chaincraft.v1.DesignService/Chat"
	GetSessionProcedure   = "/chaincraft.v1.DesignService/GetSession"
	GenerateCodeProcedure = "/chaincraft.v1.DesignService/GenerateCode"

	MintProcedure      = "/chaincraft.v1.DeployService/Mint"
	ContractsProcedure = "/chaincraft.v1.DeployService/Contracts"
)

type (
	request  = connect.Request[structpb.Struct]
	response = connect.Response[structpb.Struct]
	unary    func(context.Context, *request) (*response, error)
)

type procedure struct {
	path string
	fn   unary
}

func (s *Server) procedures() []procedure {
	return []procedure{
		{ListGamesProcedure, s.ListGames},
		{GetGameProcedure, s.GetGame},
		{ListGamesByCreatorProcedure, s.ListGamesByCreator},
		{TopScoresProcedure, s.TopScores},
		{PlayerScoreProcedure, s.PlayerScore},
		{SubmitScoreProcedure, s.SubmitScore},
		{OnChainProcedure, s.OnChainScores},
		{ChatProcedure, s.Chat},
		{GetSessionProcedure, s.GetGame},
		{GenerateCodeProcedure, s.GenerateCode},
		{MintProcedure, s.Mint},
		{ContractsProcedure, s.Contracts},
	}
}

// decode copies the request struct into v through its JSON form.
func decode(req *request, v any) error {
	if req.Msg == nil {
		return nil
	}
	raw, err := protojson.Marshal(req.Msg)
	if err != nil {
		return connect.NewError(connect.CodeInvalidArgument, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return connect.NewError(connect.CodeInvalidArgument, err)
	}
	return nil
}

func respond(v any) (*response, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	msg, err := structpb.NewStruct(m)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(msg), nil
}

func required(field string) error {
	return connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("%s is required", field))
}

func rpcError(err error) error {
	var code connect.Code
	switch {
	case errors.Is(err, session.ErrNotFound):
		code = connect.CodeNotFound
	case errors.Is(err, session.ErrAlreadyExists):
		code = connect.CodeAlreadyExists
	case errors.Is(err, session.ErrInvalid), errors.Is(err, ledger.ErrInvalidRequest):
		code = connect.CodeInvalidArgument
	case errors.Is(err, design.ErrUnavailable):
		code = connect.CodeUnavailable
	case errors.Is(err, context.Canceled):
		code = connect.CodeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		code = connect.CodeDeadlineExceeded
	default:
		code = connect.CodeInternal
	}
	return connect.NewError(code, err)
}
