package config

import (
	"fmt"
	"strings"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAPIKey validates an API key format
func (v *Validator) ValidateAPIKey(key string, provider string) error {
	if key == "" {
		return fmt.Errorf("%s API key cannot be empty", provider)
	}
	if strings.TrimSpace(key) != key {
		return fmt.Errorf("%s API key has surrounding whitespace", provider)
	}

	switch provider {
	case "anthropic":
		if !strings.HasPrefix(key, "sk-ant-") {
			return fmt.Errorf("invalid Anthropic API key format (should start with sk-ant-)")
		}
	case "openai":
		if !strings.HasPrefix(key, "sk-") {
			return fmt.Errorf("invalid OpenAI API key format (should start with sk-)")
		}
	}

	return nil
}

// ValidateModel validates a model name
func (v *Validator) ValidateModel(model string) error {
	if model == "" {
		return fmt.Errorf("model name cannot be empty")
	}
	if strings.ContainsAny(model, " \t\n") {
		return fmt.Errorf("invalid model name %q", model)
	}
	return nil
}

// ValidateTemperature validates temperature value
func (v *Validator) ValidateTemperature(temp float64) error {
	if temp < 0 || temp > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %.2f", temp)
	}
	return nil
}

// ValidateMaxTokens validates max tokens value
func (v *Validator) ValidateMaxTokens(tokens int) error {
	if tokens < 1 {
		return fmt.Errorf("max tokens must be at least 1, got %d", tokens)
	}
	if tokens > 200000 {
		return fmt.Errorf("max tokens cannot exceed 200000, got %d", tokens)
	}
	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"trace", "debug", "info", "warn", "error", "fatal", "panic"}
	for _, valid := range validLevels {
		if strings.ToLower(level) == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateCodeLanguage validates the fence language used for code blocks
func (v *Validator) ValidateCodeLanguage(lang string) error {
	if lang == "" {
		return nil
	}
	if strings.ContainsAny(lang, " \t\n`") {
		return fmt.Errorf("invalid code language %q", lang)
	}
	return nil
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	for i, profile := range cfg.Model.Profiles {
		if profile.Provider != "" {
			if err := v.ValidateAPIKey(profile.APIKey, profile.Provider); err != nil {
				errors = append(errors, fmt.Errorf("model profile %d (%s): %w", i, profile.ID, err))
			}
		}
	}

	if err := v.ValidateModel(cfg.Model.Name); err != nil {
		errors = append(errors, err)
	}
	if err := v.ValidateTemperature(cfg.Model.Temperature); err != nil {
		errors = append(errors, err)
	}
	if cfg.Model.MaxTokens != 0 {
		if err := v.ValidateMaxTokens(cfg.Model.MaxTokens); err != nil {
			errors = append(errors, err)
		}
	}
	if cfg.Model.MaxRetries < 0 {
		errors = append(errors, fmt.Errorf("model.max_retries must be >= 0"))
	}

	if cfg.Pipeline.ErrorContext < 0 {
		errors = append(errors, fmt.Errorf("pipeline.error_context must be >= 0"))
	}
	if cfg.Pipeline.SelectorCacheSize < 0 {
		errors = append(errors, fmt.Errorf("pipeline.selector_cache_size must be >= 0"))
	}
	if strings.TrimSpace(cfg.Pipeline.TerminateMarker) != cfg.Pipeline.TerminateMarker {
		errors = append(errors, fmt.Errorf("pipeline.terminate_marker has surrounding whitespace"))
	}

	for i, role := range cfg.Roles {
		if strings.TrimSpace(role.Instructions) == "" {
			errors = append(errors, fmt.Errorf("role %d (%s): instructions are required", i, role.Name))
		}
	}

	if cfg.Transcript.AppendixSize < 0 {
		errors = append(errors, fmt.Errorf("transcript.appendix_size must be >= 0"))
	}
	if cfg.Transcript.SnippetChars < 1 {
		errors = append(errors, fmt.Errorf("transcript.snippet_chars must be >= 1"))
	}
	if err := v.ValidateCodeLanguage(cfg.Transcript.CodeLanguage); err != nil {
		errors = append(errors, err)
	}

	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}

	return errors
}
