// Package design talks to the conversational model that co-authors a game
// design and its playable HTML artifact.
package design

import (
	"context"
	"errors"
)

type Phase string

const (
	PhaseGathering  Phase = "GATHERING"
	PhaseDesigning  Phase = "DESIGNING"
	PhaseGenerating Phase = "GENERATING"
	PhaseDeploying  Phase = "DEPLOYING"
)

var ErrUnavailable = errors.New("design generator unavailable")

// Message is one turn of the design conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Document is the game design produced once enough requirements are gathered.
type Document struct {
	Name         string   `json:"name"`
	Genre        string   `json:"genre"`
	Description  string   `json:"description"`
	Rules        []string `json:"rules,omitempty"`
	MaxPlayers   int      `json:"maxPlayers,omitempty"`
	WinCondition string   `json:"winCondition,omitempty"`
}

// Reply is the model's answer to a conversation.
type Reply struct {
	Message     string    `json:"message"`
	Phase       Phase     `json:"phase"`
	Design      *Document `json:"gameDesign,omitempty"`
	Artifact    string    `json:"gameCode,omitempty"`
	ReadyToMint bool      `json:"readyToMint"`
}

// Generator turns a message history into the next reply and a finished
// design into its playable HTML.
type Generator interface {
	Generate(ctx context.Context, history []Message) (Reply, error)
	GenerateCode(ctx context.Context, doc Document) (string, error)
}
