package design

import (
	"encoding/base64"
	"encoding/json"
	"time"
)

const ChainID = 10143

type Attribute struct {
	TraitType string `json:"trait_type"`
	Value     any    `json:"value"`
}

// Metadata is the NFT metadata document of a minted game.
type Metadata struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Image       string         `json:"image"`
	ExternalURL string         `json:"external_url"`
	Attributes  []Attribute    `json:"attributes"`
	Properties  map[string]any `json:"properties"`
}

func NewMetadata(doc Document, gameID, creator string, now time.Time) Metadata {
	winCondition := doc.WinCondition
	if winCondition == "" {
		winCondition = "Highest score wins"
	}
	rules := doc.Rules
	if rules == nil {
		rules = []string{}
	}
	return Metadata{
		Name:        "ChainCraft: " + doc.Name,
		Description: doc.Description,
		Image:       "https://api.chaincraft.gg/og/" + gameID,
		ExternalURL: "https://chaincraft.gg/play/" + gameID,
		Attributes: []Attribute{
			{TraitType: "Genre", Value: doc.Genre},
			{TraitType: "Max Players", Value: doc.MaxPlayers},
			{TraitType: "Creator", Value: creator},
			{TraitType: "Platform", Value: "Monad"},
			{TraitType: "Created", Value: now.UTC().Format(time.RFC3339)},
		},
		Properties: map[string]any{
			"game_id":       gameID,
			"rules":         rules,
			"win_condition": winCondition,
			"blockchain":    "Monad",
			"chain_id":      ChainID,
		},
	}
}

// TokenURI embeds the metadata as a base64 JSON data URI.
func (m Metadata) TokenURI() (string, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return "data:application/json;base64," + base64.StdEncoding.EncodeToString(raw), nil
}
