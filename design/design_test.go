package design

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReply(t *testing.T) {
	t.Run("json reply", func(t *testing.T) {
		r := ParseReply(`{"message":"Here it is","phase":"DESIGNING","gameDesign":{"name":"Orbit","genre":"arcade","maxPlayers":2}}`)
		assert.Equal(t, "Here it is", r.Message)
		assert.Equal(t, PhaseDesigning, r.Phase)
		require.NotNil(t, r.Design)
		assert.Equal(t, "Orbit", r.Design.Name)
		assert.Equal(t, 2, r.Design.MaxPlayers)
	})

	t.Run("plain text falls back to gathering", func(t *testing.T) {
		r := ParseReply("What genre do you like?")
		assert.Equal(t, "What genre do you like?", r.Message)
		assert.Equal(t, PhaseGathering, r.Phase)
		assert.Nil(t, r.Design)
	})
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`

	Temperature    float64           `json:"temperature"`
	MaxTokens      int               `json:"max_tokens"`
	ResponseFormat map[string]string `json:"response_format"`
}

// completionServer answers every chat completion with content and records
// the last request.
func completionServer(t *testing.T, content string, got *chatRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(got))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"choices": []any{map[string]any{"index": 0, "message": map[string]any{"role": "assistant", "content": content}}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIClientGenerate(t *testing.T) {
	var got chatRequest
	content, _ := json.Marshal(Reply{Message: "Ready", Phase: PhaseGenerating, Artifact: "<html></html>"})
	srv := completionServer(t, string(content), &got)

	c := NewOpenAIClient(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/"})
	reply, err := c.Generate(context.Background(), []Message{{Role: "user", Content: "make a puzzle"}})
	require.NoError(t, err)

	assert.Equal(t, PhaseGenerating, reply.Phase)
	assert.Equal(t, "<html></html>", reply.Artifact)

	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "make a puzzle", got.Messages[1].Content)
	assert.Equal(t, "gpt-4o", got.Model)
	assert.Equal(t, 4000, got.MaxTokens)
	assert.Equal(t, "json_object", got.ResponseFormat["type"])
}

func TestOpenAIClientGenerateCode(t *testing.T) {
	var got chatRequest
	srv := completionServer(t, "<html><body>orbit</body></html>", &got)

	c := NewOpenAIClient(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL})
	code, err := c.GenerateCode(context.Background(), Document{
		Name:         "Orbit",
		Genre:        "arcade",
		Description:  "Dodge the asteroids",
		Rules:        []string{"tap to thrust", "avoid rocks"},
		WinCondition: "Survive 60s",
		MaxPlayers:   2,
	})
	require.NoError(t, err)
	assert.Equal(t, "<html><body>orbit</body></html>", code)

	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
	prompt := got.Messages[0].Content
	assert.Contains(t, prompt, "Name: Orbit")
	assert.Contains(t, prompt, "Rules: tap to thrust, avoid rocks")
	assert.Contains(t, prompt, "Max Players: 2")
	assert.Contains(t, prompt, "no markdown fences")
	assert.InDelta(t, 0.7, got.Temperature, 0.001)
	assert.Equal(t, 6000, got.MaxTokens)
	assert.Nil(t, got.ResponseFormat)
}

func TestOpenAIClientErrors(t *testing.T) {
	_, err := NewOpenAIClient(OpenAIConfig{}).Generate(context.Background(), nil)
	assert.ErrorIs(t, err, ErrUnavailable)
	_, err = NewOpenAIClient(OpenAIConfig{}).GenerateCode(context.Background(), Document{Name: "x"})
	assert.ErrorIs(t, err, ErrUnavailable)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err = NewOpenAIClient(OpenAIConfig{APIKey: "k", BaseURL: srv.URL}).Generate(context.Background(), nil)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "429")
}

func TestMetadata(t *testing.T) {
	now := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	m := NewMetadata(Document{Name: "Orbit", Genre: "arcade", Description: "Dodge", MaxPlayers: 2}, "g1", "0xabc", now)

	assert.Equal(t, "ChainCraft: Orbit", m.Name)
	assert.Equal(t, "https://chaincraft.gg/play/g1", m.ExternalURL)
	assert.Equal(t, "Highest score wins", m.Properties["win_condition"])
	assert.Equal(t, ChainID, m.Properties["chain_id"])
	assert.Contains(t, m.Attributes, Attribute{TraitType: "Created", Value: "2026-02-03T04:05:06Z"})

	uri, err := m.TokenURI()
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(uri, "data:application/json;base64,"))

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(uri, "data:application/json;base64,"))
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "ChainCraft: Orbit", decoded["name"])
}
