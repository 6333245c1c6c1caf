package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openAIServer(t *testing.T, status int, body string, seen *map[string]interface{}) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		if seen != nil {
			var req map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			*seen = req
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

const completionBody = `{"id":"cmpl-1","object":"chat.completion","created":1,"model":"mistral-medium-latest",
"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"def add(a, b):\n    return a + b"}}],
"usage":{"prompt_tokens":12,"completion_tokens":7,"total_tokens":19}}`

func TestOpenAIProviderCall(t *testing.T) {
	var seen map[string]interface{}
	srv := openAIServer(t, http.StatusOK, completionBody, &seen)

	p := NewOpenAIProvider("mistral", ProviderOptions{APIKey: "test-key", BaseURL: srv.URL + "/v1"})
	assert.Equal(t, "mistral", p.Provider())

	resp, err := p.Call(context.Background(), LLMRequest{
		Model:        "mistral-medium-latest",
		SystemPrompt: "you write code",
		Temperature:  0.2,
		Messages: []ChatMessage{
			{Role: ChatRoleUser, Content: "add two numbers"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "def add(a, b):\n    return a + b", resp.Content)
	assert.Equal(t, 12, resp.Usage.InputTokens)
	assert.Equal(t, 7, resp.Usage.OutputTokens)

	assert.Equal(t, "mistral-medium-latest", seen["model"])
	assert.InDelta(t, 0.2, seen["temperature"], 1e-9)
	msgs, ok := seen["messages"].([]interface{})
	require.True(t, ok)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]interface{})["role"])
	assert.Equal(t, "user", msgs[1].(map[string]interface{})["role"])
}

func TestOpenAIProviderErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		kind   string
	}{
		{"should classify 429 as rate limit", http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`, KindRateLimit},
		{"should classify 503 as transport", http.StatusServiceUnavailable, `{"error":{"message":"overloaded"}}`, KindTransport},
		{"should classify 400 as protocol", http.StatusBadRequest, `{"error":{"message":"bad model"}}`, KindProtocol},
		{"should classify empty choices as protocol", http.StatusOK, `{"id":"x","object":"chat.completion","created":1,"model":"m","choices":[]}`, KindProtocol},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := openAIServer(t, tt.status, tt.body, nil)
			p := NewOpenAIProvider("openai", ProviderOptions{APIKey: "test-key", BaseURL: srv.URL + "/v1/"})

			_, err := p.Call(context.Background(), LLMRequest{Model: "m", Messages: []ChatMessage{{Role: ChatRoleUser, Content: "hi"}}})
			require.Error(t, err)

			var me *ModelError
			require.True(t, errors.As(err, &me))
			assert.Equal(t, tt.kind, me.Kind)
			assert.Equal(t, tt.kind, me.ErrorKind())
			assert.Equal(t, "openai", me.Provider)
		})
	}
}

func TestOpenAIProviderTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	p := NewOpenAIProvider("mistral", ProviderOptions{APIKey: "test-key", BaseURL: url})
	_, err := p.Call(context.Background(), LLMRequest{Model: "m", Messages: []ChatMessage{{Role: ChatRoleUser, Content: "hi"}}})
	require.Error(t, err)

	var me *ModelError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, KindTransport, me.Kind)
	assert.True(t, IsRetryableError(err))
}

func TestAnthropicProviderCall(t *testing.T) {
	var seen map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&seen))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude-test",
"content":[{"type":"text","text":"- handle empty input"}],"stop_reason":"end_turn","stop_sequence":null,
"usage":{"input_tokens":4,"output_tokens":3}}`))
	}))
	defer srv.Close()

	p := NewAnthropicProvider(ProviderOptions{APIKey: "test-key", BaseURL: srv.URL})
	resp, err := p.Call(context.Background(), LLMRequest{
		Model:        "claude-test",
		SystemPrompt: "you review code",
		Messages: []ChatMessage{
			{Role: ChatRoleUser, Content: "task"},
			{Role: ChatRoleAssistant, Content: "earlier"},
			{Role: ChatRoleUser, Content: "[coder]\ncode"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "- handle empty input", resp.Content)
	assert.Equal(t, 4, resp.Usage.InputTokens)

	assert.Equal(t, float64(defaultAnthropicMaxTokens), seen["max_tokens"])
	msgs, ok := seen["messages"].([]interface{})
	require.True(t, ok)
	assert.Len(t, msgs, 3)
	assert.NotNil(t, seen["system"])
}

func TestAnthropicProviderRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`))
	}))
	defer srv.Close()

	p := NewAnthropicProvider(ProviderOptions{APIKey: "test-key", BaseURL: srv.URL})
	_, err := p.Call(context.Background(), LLMRequest{Model: "claude-test", Messages: []ChatMessage{{Role: ChatRoleUser, Content: "hi"}}})

	var me *ModelError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, KindRateLimit, me.Kind)
	assert.Equal(t, http.StatusTooManyRequests, me.StatusCode)
}

func TestProviderFactory(t *testing.T) {
	f := &ProviderFactory{}

	t.Run("should default mistral base url", func(t *testing.T) {
		p, err := f.NewProvider(AuthProfile{ID: "m", Provider: "mistral", APIKey: "k"})
		require.NoError(t, err)
		assert.Equal(t, "mistral", p.Provider())
	})

	t.Run("should build openai and anthropic providers", func(t *testing.T) {
		p, err := f.NewProvider(AuthProfile{ID: "o", Provider: "OpenAI", APIKey: "k"})
		require.NoError(t, err)
		assert.Equal(t, "openai", p.Provider())

		p, err = f.NewProvider(AuthProfile{ID: "a", Provider: "anthropic", APIKey: "k"})
		require.NoError(t, err)
		assert.Equal(t, "anthropic", p.Provider())
	})

	t.Run("should reject unknown providers and missing keys", func(t *testing.T) {
		_, err := f.NewProvider(AuthProfile{ID: "g", Provider: "gemini", APIKey: "k"})
		assert.Error(t, err)
		_, err = f.NewProvider(AuthProfile{ID: "m", Provider: "mistral"})
		assert.Error(t, err)
	})
}

func TestClassify(t *testing.T) {
	assert.Nil(t, Classify("p", nil))

	err := Classify("p", context.DeadlineExceeded)
	assert.Equal(t, KindTransport, err.(*ModelError).Kind)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	err = Classify("p", errors.New("weird"))
	assert.Equal(t, KindProtocol, err.(*ModelError).Kind)
	assert.False(t, IsRetryableError(err))

	already := &ModelError{Kind: KindRateLimit, Provider: "x", Err: errors.New("busy")}
	assert.Same(t, already, Classify("p", already))
	assert.Equal(t, "x rate_limit error: busy", already.Error())
}
