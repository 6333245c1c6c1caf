package agent

// Chat roles understood by every provider
const (
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
)

// DefaultMistralBaseURL is used by the mistral provider when a profile has no base URL
const DefaultMistralBaseURL = "https://api.mistral.ai/v1/"

// ChatMessage is one provider-neutral conversation message
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TokenUsage tracks token consumption
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// AuthProfile represents credentials for one provider endpoint
type AuthProfile struct {
	ID            string `json:"id" mapstructure:"id"`
	Provider      string `json:"provider" mapstructure:"provider"` // "mistral", "openai", "anthropic"
	APIKey        string `json:"api_key" mapstructure:"api_key"`
	BaseURL       string `json:"base_url,omitempty" mapstructure:"base_url"`
	Priority      int    `json:"priority" mapstructure:"priority"`
	CooldownUntil *int64 `json:"cooldown_until,omitempty" mapstructure:"-"`
	FailureCount  int    `json:"failure_count" mapstructure:"-"`
}

// ModelConfig configures completion requests
type ModelConfig struct {
	Model       string  `json:"model" mapstructure:"name"`
	Temperature float64 `json:"temperature,omitempty" mapstructure:"temperature"`
	MaxTokens   int     `json:"max_tokens,omitempty" mapstructure:"max_tokens"`
	MaxRetries  int     `json:"max_retries,omitempty" mapstructure:"max_retries"`
}

// DefaultModelConfig returns the default model configuration
func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		Model:       "mistral-medium-latest",
		Temperature: 0.2,
		MaxTokens:   4096,
		MaxRetries:  2,
	}
}

// EstimateTokens provides a rough token count estimation
func EstimateTokens(messages []ChatMessage) int {
	totalChars := 0
	for _, msg := range messages {
		totalChars += len(msg.Content)
	}
	// Rough estimation: 1 token ≈ 4 characters
	return (totalChars + 3) / 4
}
