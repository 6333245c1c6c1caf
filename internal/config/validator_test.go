package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateAPIKey(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateAPIKey("sk-ant-xyz", "anthropic"))
	assert.Error(t, v.ValidateAPIKey("sk-xyz", "anthropic"))
	assert.NoError(t, v.ValidateAPIKey("sk-xyz", "openai"))
	assert.Error(t, v.ValidateAPIKey("xyz", "openai"))
	assert.NoError(t, v.ValidateAPIKey("anything", "mistral"))
	assert.Error(t, v.ValidateAPIKey("", "mistral"))
	assert.Error(t, v.ValidateAPIKey(" key ", "mistral"))
}

func TestValidateRanges(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateTemperature(0))
	assert.NoError(t, v.ValidateTemperature(2))
	assert.Error(t, v.ValidateTemperature(2.5))
	assert.Error(t, v.ValidateMaxTokens(0))
	assert.Error(t, v.ValidateMaxTokens(300000))
	assert.NoError(t, v.ValidateLogLevel("DEBUG"))
	assert.Error(t, v.ValidateLogLevel("loud"))
	assert.NoError(t, v.ValidateModel("mistral-medium-latest"))
	assert.Error(t, v.ValidateModel("mistral medium"))
	assert.NoError(t, v.ValidateCodeLanguage(""))
	assert.Error(t, v.ValidateCodeLanguage("py thon"))
}

func TestValidateConfig(t *testing.T) {
	v := NewValidator()

	t.Run("should report nothing for the defaults", func(t *testing.T) {
		assert.Empty(t, v.ValidateConfig(validConfig()))
	})

	t.Run("should collect every problem", func(t *testing.T) {
		cfg := validConfig()
		cfg.Model.Temperature = 3
		cfg.Transcript.SnippetChars = 0
		cfg.Logging.Level = "loud"
		cfg.Roles[0].Instructions = " "
		cfg.Model.Profiles = append(cfg.Model.Profiles, ProfileConfig{ID: "oa", Provider: "openai", APIKey: "bad"})

		errs := v.ValidateConfig(cfg)
		assert.Len(t, errs, 5)
	})
}
