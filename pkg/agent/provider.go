package agent

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// LLMProvider is an interface for LLM API providers
type LLMProvider interface {
	// Call makes an LLM API call
	Call(ctx context.Context, request LLMRequest) (*LLMResponse, error)

	// Provider returns the provider name
	Provider() string
}

// LLMRequest contains the request parameters for LLM call
type LLMRequest struct {
	Model        string
	Messages     []ChatMessage
	Temperature  float64
	MaxTokens    int
	SystemPrompt string
}

// LLMResponse contains the response from LLM
type LLMResponse struct {
	Content string
	Usage   *TokenUsage
}

// ProviderCreator creates LLM providers from auth profiles.
type ProviderCreator interface {
	NewProvider(profile AuthProfile) (LLMProvider, error)
}

// ProviderFactory creates LLM providers
type ProviderFactory struct {
	HTTPClient *http.Client
	MaxRetries int // SDK-level retries per call
}

// NewProvider creates a new LLM provider based on auth profile
func (f *ProviderFactory) NewProvider(profile AuthProfile) (LLMProvider, error) {
	if profile.APIKey == "" {
		return nil, fmt.Errorf("profile %s has no api key", profile.ID)
	}

	opts := ProviderOptions{
		APIKey:     profile.APIKey,
		BaseURL:    profile.BaseURL,
		MaxRetries: f.MaxRetries,
		HTTPClient: f.HTTPClient,
	}

	switch strings.ToLower(profile.Provider) {
	case "mistral":
		if opts.BaseURL == "" {
			opts.BaseURL = DefaultMistralBaseURL
		}
		return NewOpenAIProvider("mistral", opts), nil
	case "openai":
		return NewOpenAIProvider("openai", opts), nil
	case "anthropic":
		return NewAnthropicProvider(opts), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", profile.Provider)
	}
}

// ProviderOptions holds the client settings shared by all providers
type ProviderOptions struct {
	APIKey     string
	BaseURL    string
	MaxRetries int
	HTTPClient *http.Client
}

func normalizeBaseURL(u string) string {
	if u == "" || strings.HasSuffix(u, "/") {
		return u
	}
	return u + "/"
}
