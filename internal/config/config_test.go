package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Model.Profiles = []ProfileConfig{{ID: "mistral", Provider: "mistral", APIKey: "mk-123456789"}}
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "mistral-medium-latest", cfg.Model.Name)
	assert.Equal(t, 0.2, cfg.Model.Temperature)
	assert.Equal(t, ModeRoundRobin, cfg.Pipeline.Mode)
	assert.Equal(t, "TERMINATE", cfg.Pipeline.TerminateMarker)
	assert.Equal(t, 20, cfg.Pipeline.MaxMessages)
	assert.Equal(t, 600, cfg.Pipeline.TimeoutSeconds)
	assert.True(t, cfg.Pipeline.StopOnLastRole)
	assert.Equal(t, "task_md", cfg.Storage.DataDir)
	assert.Equal(t, 8, cfg.Transcript.AppendixSize)
	assert.Equal(t, 200, cfg.Transcript.SnippetChars)
	assert.Equal(t, "python", cfg.Transcript.CodeLanguage)

	require.Len(t, cfg.Roles, 3)
	assert.Equal(t, "coder", cfg.Roles[0].Name)
	assert.Equal(t, "reviewer", cfg.Roles[1].Name)
	assert.Equal(t, "advice", cfg.Roles[1].Output)
	assert.Equal(t, "integrator", cfg.Roles[2].Name)
	assert.Contains(t, cfg.Roles[2].Instructions, "TERMINATE")
}

func TestConfigValidate(t *testing.T) {
	t.Run("should accept a valid config", func(t *testing.T) {
		assert.NoError(t, validConfig().Validate())
	})

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing credentials", func(c *Config) { c.Model.Profiles = nil }, "MISTRAL_API_KEY"},
		{"profile without key", func(c *Config) { c.Model.Profiles[0].APIKey = "" }, "api_key is required"},
		{"unknown provider", func(c *Config) { c.Model.Profiles[0].Provider = "gemini" }, "invalid provider"},
		{"unknown mode", func(c *Config) { c.Pipeline.Mode = "swarm" }, "invalid pipeline mode"},
		{"no message cap", func(c *Config) { c.Pipeline.MaxMessages = 0 }, "max_messages"},
		{"negative timeout", func(c *Config) { c.Pipeline.TimeoutSeconds = -1 }, "timeouts"},
		{"no roles", func(c *Config) { c.Roles = nil }, "at least one role"},
		{"duplicate role", func(c *Config) { c.Roles[1].Name = "coder" }, "duplicate role"},
		{"bad output", func(c *Config) { c.Roles[0].Output = "poem" }, "invalid output"},
		{"no data dir", func(c *Config) { c.Storage.DataDir = "" }, "data_dir"},
		{"bad console mode", func(c *Config) { c.Console.Mode = "fancy" }, "console mode"},
	}

	for _, tt := range tests {
		t.Run("should reject "+tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestConfigStringMasksKeys(t *testing.T) {
	cfg := validConfig()
	cfg.Model.Profiles[0].APIKey = "sk-abcdefghijklmnop"

	out := cfg.String()
	assert.NotContains(t, out, "sk-abcdefghijklmnop")
	assert.Contains(t, out, "sk-a...mnop")
	assert.Equal(t, "sk-abcdefghijklmnop", cfg.Model.Profiles[0].APIKey)
	assert.True(t, strings.HasPrefix(out, "{"))
}
