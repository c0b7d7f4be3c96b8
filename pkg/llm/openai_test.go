package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paideia-labs/paideia/pkg/config"
	"github.com/paideia-labs/paideia/pkg/fault"
)

func openAITestConfig(host string) config.LLMConfig {
	cfg := config.LLMConfig{
		Provider:   config.LLMProviderOpenAI,
		Model:      "gpt-4o",
		APIKey:     "test-key",
		Host:       host,
		MaxRetries: 1,
	}
	cfg.SetDefaults()
	return cfg
}

func TestOpenAIProvider_Complete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req openAIRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.False(t, req.Stream)

		json.NewEncoder(w).Encode(openAIResponse{
			Choices: []openAIChoice{{Message: openAIMessage{Role: "assistant", Content: "answer"}}},
			Usage:   openAIUsage{PromptTokens: 12, CompletionTokens: 4},
		})
	}))
	defer server.Close()

	provider, err := NewOpenAIProvider(openAITestConfig(server.URL))
	require.NoError(t, err)

	result, err := provider.Complete(context.Background(), Request{
		System: "be brief", User: "question", Model: "gpt-4o", Temperature: 0.7, MaxTokens: 100,
	})
	require.NoError(t, err)
	assert.Equal(t, "answer", result.Text)
	assert.Equal(t, 12, result.InputTokens)
	assert.Equal(t, 4, result.OutputTokens)
}

func TestOpenAIProvider_JSONModeSetsResponseFormat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openAIRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotNil(t, req.ResponseFormat)
		assert.Equal(t, "json_object", req.ResponseFormat.Type)

		json.NewEncoder(w).Encode(openAIResponse{
			Choices: []openAIChoice{{Message: openAIMessage{Content: `{"ok": true}`}}},
		})
	}))
	defer server.Close()

	provider, err := NewOpenAIProvider(openAITestConfig(server.URL))
	require.NoError(t, err)

	_, err = provider.Complete(context.Background(), Request{User: "q", Model: "gpt-4o", JSONMode: true})
	require.NoError(t, err)
}

func TestOpenAIProvider_BadRequestFault(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": {"message": "bad prompt"}}`))
	}))
	defer server.Close()

	provider, err := NewOpenAIProvider(openAITestConfig(server.URL))
	require.NoError(t, err)

	_, err = provider.Complete(context.Background(), Request{User: "q", Model: "gpt-4o"})
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.KindRequest))
}

func TestOpenAIProvider_ServerErrorIsUpstream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := openAITestConfig(server.URL)
	provider, err := NewOpenAIProvider(cfg)
	require.NoError(t, err)

	_, err = provider.Complete(context.Background(), Request{User: "q", Model: "gpt-4o"})
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.KindUpstream))
	assert.True(t, fault.Retryable(err))
}

func TestOpenAIProvider_CompleteStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"hel\"}}]}\n\n"))
		w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n"))
		w.Write([]byte("data: {\"choices\":[],\"usage\":{\"completion_tokens\":2}}\n\n"))
		w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer server.Close()

	provider, err := NewOpenAIProvider(openAITestConfig(server.URL))
	require.NoError(t, err)

	ch, err := provider.CompleteStream(context.Background(), Request{User: "q", Model: "gpt-4o"})
	require.NoError(t, err)

	text := ""
	tokens := 0
	for chunk := range ch {
		switch chunk.Type {
		case ChunkTypeText:
			text += chunk.Text
		case ChunkTypeDone:
			tokens = chunk.Tokens
		case ChunkTypeError:
			t.Fatalf("unexpected stream error: %v", chunk.Err)
		}
	}
	assert.Equal(t, "hello", text)
	assert.Equal(t, 2, tokens)
}

func TestOllamaProvider_CompleteStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		w.Write([]byte(`{"message":{"role":"assistant","content":"hi "},"done":false}` + "\n"))
		w.Write([]byte(`{"message":{"role":"assistant","content":"there"},"done":false}` + "\n"))
		w.Write([]byte(`{"message":{"role":"assistant","content":""},"done":true,"eval_count":9}` + "\n"))
	}))
	defer server.Close()

	cfg := config.LLMConfig{Provider: config.LLMProviderOllama, Model: "llama3.2", Host: server.URL, MaxRetries: 1}
	provider, err := NewOllamaProvider(cfg)
	require.NoError(t, err)

	ch, err := provider.CompleteStream(context.Background(), Request{User: "q", Model: "llama3.2"})
	require.NoError(t, err)

	text := ""
	tokens := 0
	for chunk := range ch {
		switch chunk.Type {
		case ChunkTypeText:
			text += chunk.Text
		case ChunkTypeDone:
			tokens = chunk.Tokens
		case ChunkTypeError:
			t.Fatalf("unexpected stream error: %v", chunk.Err)
		}
	}
	assert.Equal(t, "hi there", text)
	assert.Equal(t, 9, tokens)
}

func TestNewProvider_UnknownType(t *testing.T) {
	_, err := NewProvider(config.LLMConfig{Provider: "mystery"})
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.KindRequest))
}
