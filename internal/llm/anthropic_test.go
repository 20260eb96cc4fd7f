package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnthropicClient_Complete(t *testing.T) {
	var got struct {
		Model     string `json:"model"`
		MaxTokens int    `json:"max_tokens"`
		Messages  []struct {
			Role    string `json:"role"`
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_01",
			"type": "message",
			"role": "assistant",
			"model": "claude-3-5-haiku-20241022",
			"content": [{"type": "text", "text": "Summit Equipment "}, {"type": "text", "text": "looks strongest."}],
			"stop_reason": "end_turn",
			"stop_sequence": null,
			"usage": {"input_tokens": 52, "output_tokens": 9}
		}`))
	}))
	defer srv.Close()

	c, err := NewAnthropicClient("test-key", option.WithBaseURL(srv.URL+"/"))
	require.NoError(t, err)

	resp, err := c.Complete(context.Background(), &CompletionRequest{
		Messages: []ChatMessage{{Role: "user", Content: "draft"}},
	})
	require.NoError(t, err)

	assert.Equal(t, DefaultAnthropicModel, got.Model)
	assert.Equal(t, defaultMaxTokens, got.MaxTokens)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
	require.Len(t, got.Messages[0].Content, 1)
	assert.Equal(t, "draft", got.Messages[0].Content[0].Text)

	assert.Equal(t, "Summit Equipment looks strongest.", resp.Content)
	assert.Equal(t, 52, resp.TokensIn)
	assert.Equal(t, 9, resp.TokensOut)
	assert.Equal(t, "end_turn", resp.StopReason)
}

func TestAnthropicClient_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`))
	}))
	defer srv.Close()

	c, err := NewAnthropicClient("bad-key", option.WithBaseURL(srv.URL+"/"))
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), &CompletionRequest{
		Messages: []ChatMessage{{Role: "user", Content: "draft"}},
	})
	assert.Error(t, err)
}
