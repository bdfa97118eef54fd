package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentcore/core"
)

const toolCallResponse = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1,
  "model": "gpt-4o-mini",
  "choices": [{
    "index": 0,
    "finish_reason": "tool_calls",
    "message": {
      "role": "assistant",
      "content": "",
      "tool_calls": [{
        "id": "call_1",
        "type": "function",
        "function": {"name": "echo", "arguments": "{\"text\":\"hi\"}"}
      }]
    }
  }],
  "usage": {"prompt_tokens": 5, "completion_tokens": 7, "total_tokens": 12}
}`

func TestCompletionToolCalls(t *testing.T) {
	var body map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, &body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, toolCallResponse)
	}))
	defer srv.Close()

	m := NewModel(func(o *Options) {
		o.APIKey = "test"
		o.BaseURL = srv.URL
	})

	strict := true
	out, err := m.Completion(context.Background(), core.CompletionRequest{
		System: "be brief",
		ChatHistory: []core.Message{
			{Role: core.RoleAssistant, ToolCalls: []core.ToolCall{{ID: "c0", Name: "echo", Args: "{}"}}},
			{Role: core.RoleTool, ToolCallID: "c0", Content: "ok"},
		},
		Prompt:             "say hi",
		Tools:              []core.FunctionDefinition{{Name: "echo", Parameters: core.EmptyParameters(), Strict: &strict}},
		ToolChoiceRequired: true,
		MaxTokens:          64,
	})
	require.NoError(t, err)

	require.Len(t, out.ToolCalls, 1)
	assert.Equal(t, core.ToolCall{ID: "call_1", Name: "echo", Args: `{"text":"hi"}`}, out.ToolCalls[0])
	assert.Equal(t, core.Usage{InputTokens: 5, OutputTokens: 7}, out.Usage)
	require.Len(t, out.FullHistory, 4)
	assert.Equal(t, core.RoleAssistant, out.FullHistory[3].Role)

	assert.Equal(t, "required", body["tool_choice"])
	assert.EqualValues(t, 64, body["max_completion_tokens"])

	msgs, ok := body["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 4)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "tool", msgs[2].(map[string]any)["role"])
	assert.Equal(t, "user", msgs[3].(map[string]any)["role"])
}

func TestCompletionAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"message":"bad","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	m := NewModel(func(o *Options) {
		o.APIKey = "test"
		o.BaseURL = srv.URL
	})

	_, err := m.Completion(context.Background(), core.CompletionRequest{Prompt: "x"})
	assert.Error(t, err)
}

func TestInfo(t *testing.T) {
	m := NewModel(func(o *Options) { o.APIKey = "k"; o.Model = "gpt-test" })
	assert.Equal(t, "gpt-test", m.Info().Name)
	assert.Equal(t, "openai", m.Info().Provider)
}
