package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *OpenAIClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOpenAI("test-key", srv.URL+"/v1", "https://example.org", "chat-cache")
}

func TestOpenAIComplete(t *testing.T) {
	var got map[string]any
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "https://example.org", r.Header.Get("HTTP-Referer"))
		assert.Equal(t, "chat-cache", r.Header.Get("X-Title"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "gpt-4-1106-preview",
			"system_fingerprint": "fp_abc",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "Paris"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 1, "total_tokens": 13}
		}`)
	})

	resp, err := client.Complete(context.Background(),
		[]Message{System("S"), User("capital of France?")},
		Params{Model: "gpt-4-1106-preview", MaxTokens: 128})
	require.NoError(t, err)

	assert.Equal(t, "chatcmpl-1", resp.ID)
	assert.Equal(t, "gpt-4-1106-preview", resp.Model)
	assert.Equal(t, "fp_abc", resp.Fingerprint)
	assert.Equal(t, RoleAssistant, resp.Role)
	assert.Equal(t, "Paris", resp.Content)
	assert.Equal(t, int64(1700000000), resp.Created.Unix())
	assert.Equal(t, Usage{PromptTokens: 12, CompletionTokens: 1, TotalTokens: 13}, resp.Usage)
	assert.Equal(t, Assistant("Paris"), resp.Message())

	assert.Equal(t, "gpt-4-1106-preview", got["model"])
	assert.EqualValues(t, 128, got["max_tokens"])
	msgs, ok := got["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
}

func TestOpenAICompleteStream(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, true, req["stream"])

		w.Header().Set("Content-Type", "text/event-stream")
		chunks := []string{
			`{"id":"chatcmpl-2","object":"chat.completion.chunk","created":1700000001,"model":"m","system_fingerprint":"fp_s","choices":[{"index":0,"delta":{"role":"assistant","content":"Hel"}}]}`,
			`{"id":"chatcmpl-2","object":"chat.completion.chunk","created":1700000001,"model":"m","choices":[{"index":0,"delta":{"content":"lo"}}]}`,
			`{"id":"chatcmpl-2","object":"chat.completion.chunk","created":1700000001,"model":"m","choices":[],"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`,
		}
		for _, c := range chunks {
			_, _ = fmt.Fprintf(w, "data: %s\n\n", c)
		}
		_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	})

	resp, err := client.Complete(context.Background(), []Message{User("hi")}, Params{Model: "m", Stream: true})
	require.NoError(t, err)
	assert.Equal(t, "chatcmpl-2", resp.ID)
	assert.Equal(t, "Hello", resp.Content)
	assert.Equal(t, RoleAssistant, resp.Role)
	assert.Equal(t, "fp_s", resp.Fingerprint)
	assert.Equal(t, 5, resp.Usage.TotalTokens)
}

func TestOpenAICompleteErrors(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = fmt.Fprint(w, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
	})

	_, err := client.Complete(context.Background(), []Message{User("hi")}, Params{Model: "m"})
	require.Error(t, err)

	_, err = client.Complete(context.Background(), []Message{User("hi")}, Params{})
	require.Error(t, err)
}

func TestOpenAICompleteNoChoices(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, `{"id":"x","object":"chat.completion","created":1,"model":"m","choices":[]}`)
	})
	_, err := client.Complete(context.Background(), []Message{User("hi")}, Params{Model: "m"})
	require.Error(t, err)
}

func TestResponseMessageDefaultsRole(t *testing.T) {
	assert.Equal(t, Assistant("x"), Response{Content: "x"}.Message())
}

func TestFactoryRejectsUnknownProvider(t *testing.T) {
	f := &Factory{OpenaiAPIKey: "k"}
	c, err := f.CreateClient(" OpenAI ")
	require.NoError(t, err)
	assert.IsType(t, &OpenAIClient{}, c)

	_, err = f.CreateClient("anthropic")
	require.Error(t, err)
}
