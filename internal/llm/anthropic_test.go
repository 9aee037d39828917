package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newAnthropicTestServer returns a server that responds with the given
// handler and a provider pointed at it.
func newAnthropicTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *AnthropicProvider) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	provider := NewAnthropicProvider(AnthropicConfig{
		APIKey:  "sk-ant-test",
		Model:   "claude-sonnet-4-20250514",
		BaseURL: server.URL,
	}, 0.2, 0, 2)
	provider.retryDelay = 0
	return server, provider
}

func anthropicSuccessBody(answer string, followUps []string) []byte {
	inner, _ := json.Marshal(llmResponse{Answer: answer, FollowUps: followUps})
	body, _ := json.Marshal(messagesResponse{
		ID:    "msg_01",
		Type:  "message",
		Role:  "assistant",
		Model: "claude-sonnet-4-20250514",
		Content: []contentBlock{
			{Type: "text", Text: string(inner)},
		},
		StopReason: "end_turn",
		Usage:      anthropicUsage{InputTokens: 1200, OutputTokens: 300},
	})
	return body
}

func TestAnthropicSynthesize(t *testing.T) {
	t.Run("successful synthesis", func(t *testing.T) {
		var gotReq messagesRequest
		_, provider := newAnthropicTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/messages", r.URL.Path)
			assert.Equal(t, "sk-ant-test", r.Header.Get("x-api-key"))
			assert.Equal(t, anthropicAPIVersion, r.Header.Get("anthropic-version"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

			w.Header().Set("Content-Type", "application/json")
			w.Write(anthropicSuccessBody("Metformin reduces risk [1].", []string{"What about elderly patients?"}))
		})

		result, err := provider.Synthesize(context.Background(), SynthesisRequest{
			Question: "Does metformin reduce cardiovascular risk?",
			Evidence: "[1] Metformin study",
		})
		require.NoError(t, err)

		assert.Equal(t, "Metformin reduces risk [1].", result.Answer)
		assert.Equal(t, []string{"What about elderly patients?"}, result.FollowUps)
		assert.Equal(t, "claude-sonnet-4-20250514", result.Model)
		assert.Equal(t, 1200, result.InputTokens)
		assert.Equal(t, 300, result.OutputTokens)

		// The prompt carries the evidence and the question.
		require.Len(t, gotReq.Messages, 1)
		assert.Contains(t, gotReq.Messages[0].Content, "[1] Metformin study")
		assert.Contains(t, gotReq.System, "valid JSON")
	})

	t.Run("retries transient errors", func(t *testing.T) {
		var calls atomic.Int32
		_, provider := newAnthropicTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.Write(anthropicSuccessBody("Answer [1].", nil))
		})

		result, err := provider.Synthesize(context.Background(), SynthesisRequest{Question: "q", Evidence: "[1] e"})
		require.NoError(t, err)
		assert.Equal(t, "Answer [1].", result.Answer)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("does not retry client errors", func(t *testing.T) {
		var calls atomic.Int32
		_, provider := newAnthropicTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"max_tokens required"}}`))
		})

		_, err := provider.Synthesize(context.Background(), SynthesisRequest{Question: "q"})
		require.Error(t, err)
		assert.Equal(t, int32(1), calls.Load())

		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, "anthropic", apiErr.Provider)
		assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
		assert.Equal(t, "invalid_request_error", apiErr.Type)
		assert.Equal(t, "max_tokens required", apiErr.Message)
	})

	t.Run("exhausts retries", func(t *testing.T) {
		var calls atomic.Int32
		_, provider := newAnthropicTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusTooManyRequests)
		})

		_, err := provider.Synthesize(context.Background(), SynthesisRequest{Question: "q"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "retries exhausted")
		// Initial attempt plus maxRetries.
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("rejects response without text blocks", func(t *testing.T) {
		_, provider := newAnthropicTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			body, _ := json.Marshal(messagesResponse{Content: []contentBlock{{Type: "tool_use"}}})
			w.Write(body)
		})

		_, err := provider.Synthesize(context.Background(), SynthesisRequest{Question: "q"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no text content")
	})

	t.Run("rejects non-JSON answer text", func(t *testing.T) {
		_, provider := newAnthropicTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			body, _ := json.Marshal(messagesResponse{Content: []contentBlock{{Type: "text", Text: "plain prose answer"}}})
			w.Write(body)
		})

		_, err := provider.Synthesize(context.Background(), SynthesisRequest{Question: "q"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parse LLM response")
	})

	t.Run("rejects empty answer", func(t *testing.T) {
		_, provider := newAnthropicTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write(anthropicSuccessBody("", nil))
		})

		_, err := provider.Synthesize(context.Background(), SynthesisRequest{Question: "q"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no answer")
	})
}

func TestNewAnthropicProviderDefaults(t *testing.T) {
	provider := NewAnthropicProvider(AnthropicConfig{APIKey: "k", Model: "m"}, 0.2, 0, -1)

	assert.Equal(t, defaultAnthropicBaseURL, provider.baseURL)
	assert.Equal(t, 0, provider.maxRetries)
	assert.NotNil(t, provider.httpClient)
}
