package design

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const systemPrompt = `You are ChainCraft AI, a creative game design assistant that helps users create blockchain games on Monad.

Your role:
1. Guide users through designing a complete game concept through friendly conversation
2. Ask about: game genre, theme, story, rules, win conditions, number of players, difficulty
3. After gathering enough info, generate a complete game design document
4. Then generate the playable game code (HTML5/JavaScript)
5. Keep responses concise and engaging

When generating game code, output a complete, self-contained HTML5 game that:
- Works in a browser iframe
- Has a clear start screen, gameplay, and end screen
- Shows the player's score
- Fires window.parent.postMessage({ type: 'GAME_OVER', score: N }, '*') when the game ends
- Uses a purple/teal color scheme (#7C3AED, #06B6D4)

Game design phases:
- GATHERING: ask questions, gather requirements
- DESIGNING: summarize the game design, ask for approval
- GENERATING: generate complete HTML game code
- DEPLOYING: confirm the game is ready to deploy as an NFT

Always reply with valid JSON in this format:
{
  "message": "Your response to the user",
  "phase": "GATHERING|DESIGNING|GENERATING|DEPLOYING",
  "gameDesign": {
    "name": "Game Name",
    "genre": "puzzle|rpg|strategy|arcade|trivia|adventure",
    "description": "Short description",
    "rules": ["rule1", "rule2"],
    "maxPlayers": 1,
    "winCondition": "How to win"
  },
  "gameCode": "complete HTML, only in the GENERATING phase",
  "readyToMint": false
}`

const codePrompt = `Create a complete, self-contained HTML5 game based on this design:
Name: %s
Genre: %s
Description: %s
Rules: %s
Win Condition: %s
Max Players: %d

Requirements:
- Single HTML file with embedded CSS and JavaScript
- Visually appealing with canvas or DOM graphics
- Purple/teal Monad-themed color scheme (#7C3AED, #06B6D4)
- Clear start, play, and game-over states
- Score tracking displayed prominently
- Fires: window.parent.postMessage({ type: 'GAME_OVER', score: NUMBER }, '*') on game end
- Responsive, works in a 800x600 iframe
- Include blockchain/Monad-themed UI elements
- Smooth animations and good game feel

Output ONLY the raw HTML code, no markdown fences.`

type OpenAIConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration

	CodeTemperature float32
	CodeMaxTokens   int
}

// OpenAIClient is a Generator backed by an OpenAI-compatible chat completions API.
type OpenAIClient struct {
	cfg    OpenAIConfig
	client *openai.Client
}

func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.Model == "" {
		cfg.Model = openai.GPT4o
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.8
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 4000
	}
	if cfg.CodeTemperature == 0 {
		cfg.CodeTemperature = 0.7
	}
	if cfg.CodeMaxTokens == 0 {
		cfg.CodeMaxTokens = 6000
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Minute
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	oc.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	return &OpenAIClient{
		cfg:    cfg,
		client: openai.NewClientWithConfig(oc),
	}
}

func (c *OpenAIClient) Generate(ctx context.Context, history []Message) (Reply, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: systemPrompt})
	for _, m := range history {
		messages = append(messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	content, err := c.complete(ctx, openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return Reply{}, err
	}
	return ParseReply(content), nil
}

// GenerateCode asks for the playable HTML of doc. The answer is returned as is.
func (c *OpenAIClient) GenerateCode(ctx context.Context, doc Document) (string, error) {
	prompt := fmt.Sprintf(codePrompt, doc.Name, doc.Genre, doc.Description,
		strings.Join(doc.Rules, ", "), doc.WinCondition, doc.MaxPlayers)

	return c.complete(ctx, openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: prompt}},
		Temperature: c.cfg.CodeTemperature,
		MaxTokens:   c.cfg.CodeMaxTokens,
	})
}

func (c *OpenAIClient) complete(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	if c.cfg.APIKey == "" {
		return "", ErrUnavailable
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		var (
			apiErr *openai.APIError
			reqErr *openai.RequestError
		)
		switch {
		case errors.As(err, &apiErr):
			return "", fmt.Errorf("%w: status %d: %s", ErrUnavailable, apiErr.HTTPStatusCode, apiErr.Message)
		case errors.As(err, &reqErr):
			return "", fmt.Errorf("%w: status %d: %v", ErrUnavailable, reqErr.HTTPStatusCode, reqErr.Err)
		default:
			return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty completion", ErrUnavailable)
	}
	return resp.Choices[0].Message.Content, nil
}

// ParseReply decodes the model's JSON answer. Anything that is not a JSON
// reply is returned as a plain message in the gathering phase.
func ParseReply(content string) Reply {
	var r Reply
	if err := json.Unmarshal([]byte(content), &r); err != nil || r.Message == "" && r.Phase == "" {
		return Reply{Message: content, Phase: PhaseGathering}
	}
	if r.Phase == "" {
		r.Phase = PhaseGathering
	}
	return r
}
