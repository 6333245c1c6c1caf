package config

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Team modes
const (
	ModeRoundRobin = "round_robin"
	ModeSelector   = "selector"
)

// Console modes
const (
	ConsoleRich  = "rich"
	ConsolePlain = "plain"
)

// Config represents the main triad configuration
type Config struct {
	// Model backend
	Model ModelConfig `json:"model" mapstructure:"model"`

	// Pipeline behaviour
	Pipeline PipelineConfig `json:"pipeline" mapstructure:"pipeline"`

	// Roles, in pipeline order
	Roles []RoleConfig `json:"roles" mapstructure:"roles"`

	// Optional YAML or JSON file replacing Roles
	RolesFile string `json:"roles_file,omitempty" mapstructure:"roles_file"`

	// Storage for run artifacts
	Storage StorageConfig `json:"storage" mapstructure:"storage"`

	// Task record rendering
	Transcript TranscriptConfig `json:"transcript" mapstructure:"transcript"`

	// Console presentation
	Console ConsoleConfig `json:"console" mapstructure:"console"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Metrics endpoint
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics"`
}

// ModelConfig holds model backend configuration
type ModelConfig struct {
	Name        string          `json:"name" mapstructure:"name"`
	Temperature float64         `json:"temperature" mapstructure:"temperature"`
	MaxTokens   int             `json:"max_tokens" mapstructure:"max_tokens"`
	MaxRetries  int             `json:"max_retries" mapstructure:"max_retries"`
	Profiles    []ProfileConfig `json:"profiles" mapstructure:"profiles"`
}

// ProfileConfig is one set of provider credentials. Lower priority is tried first.
type ProfileConfig struct {
	ID       string `json:"id" mapstructure:"id"`
	Provider string `json:"provider" mapstructure:"provider"` // mistral, openai, anthropic
	APIKey   string `json:"api_key" mapstructure:"api_key"`
	BaseURL  string `json:"base_url,omitempty" mapstructure:"base_url"`
	Priority int    `json:"priority" mapstructure:"priority"`
}

// PipelineConfig holds run controller and termination settings
type PipelineConfig struct {
	Mode                     string `json:"mode" mapstructure:"mode"`
	TerminateMarker          string `json:"terminate_marker" mapstructure:"terminate_marker"`
	MaxMessages              int    `json:"max_messages" mapstructure:"max_messages"`
	TimeoutSeconds           int    `json:"timeout_seconds" mapstructure:"timeout_seconds"`
	StopOnLastRole           bool   `json:"stop_on_last_role" mapstructure:"stop_on_last_role"`
	InvocationTimeoutSeconds int    `json:"invocation_timeout_seconds" mapstructure:"invocation_timeout_seconds"`
	ErrorContext             int    `json:"error_context" mapstructure:"error_context"`
	CheckpointEachTurn       bool   `json:"checkpoint_each_turn" mapstructure:"checkpoint_each_turn"`
	SelectorCacheSize        int    `json:"selector_cache_size" mapstructure:"selector_cache_size"`
}

// RoleConfig defines one pipeline role
type RoleConfig struct {
	Name           string `json:"name" yaml:"name" mapstructure:"name"`
	Caption        string `json:"caption,omitempty" yaml:"caption,omitempty" mapstructure:"caption"`
	Responsibility string `json:"responsibility" yaml:"responsibility" mapstructure:"responsibility"`
	Instructions   string `json:"instructions" yaml:"instructions" mapstructure:"instructions"`
	Output         string `json:"output,omitempty" yaml:"output,omitempty" mapstructure:"output"` // code, advice
}

// StorageConfig holds artifact locations
type StorageConfig struct {
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// TranscriptConfig holds task record settings
type TranscriptConfig struct {
	AppendixSize int    `json:"appendix_size" mapstructure:"appendix_size"`
	SnippetChars int    `json:"snippet_chars" mapstructure:"snippet_chars"`
	CodeLanguage string `json:"code_language" mapstructure:"code_language"`
}

// ConsoleConfig holds console presentation settings
type ConsoleConfig struct {
	Mode  string `json:"mode" mapstructure:"mode"` // rich, plain
	Color bool   `json:"color" mapstructure:"color"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// MetricsConfig holds the Prometheus endpoint
type MetricsConfig struct {
	Addr string `json:"addr" mapstructure:"addr"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Model: ModelConfig{
			Name:        "mistral-medium-latest",
			Temperature: 0.2,
			MaxTokens:   4096,
			MaxRetries:  2,
			Profiles:    []ProfileConfig{},
		},
		Pipeline: PipelineConfig{
			Mode:                     ModeRoundRobin,
			TerminateMarker:          "TERMINATE",
			MaxMessages:              20,
			TimeoutSeconds:           600,
			StopOnLastRole:           true,
			InvocationTimeoutSeconds: 180,
			ErrorContext:             5,
			SelectorCacheSize:        128,
		},
		Roles: DefaultRoles(),
		Storage: StorageConfig{
			DataDir: "task_md",
		},
		Transcript: TranscriptConfig{
			AppendixSize: 8,
			SnippetChars: 200,
			CodeLanguage: "python",
		},
		Console: ConsoleConfig{
			Mode:  ConsoleRich,
			Color: true,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Redaction: true,
		},
	}
}

// DefaultRoles returns the coder, reviewer and integrator roles
func DefaultRoles() []RoleConfig {
	return []RoleConfig{
		{
			Name:    "coder",
			Caption: "Coder (initial implementation)",
			Responsibility: "Writes the first complete, runnable implementation of the user's request. " +
				"Prefers simple and robust solutions and resolves ambiguities quickly. " +
				"Starts work whenever a new development task arrives.",
			Instructions: "You are a senior developer (coder).\n" +
				"Task: write complete, runnable code that satisfies the user's request.\n" +
				"Requirements:\n" +
				"- Prefer simple, robust implementations with no external dependencies unless the request needs them.\n" +
				"- If the request is ambiguous, make at most two reasonable assumptions and continue.\n" +
				"- Output only the final code in a single complete code block, without explanations.\n" +
				"- Do not write anything outside the code block.",
			Output: "code",
		},
		{
			Name:    "reviewer",
			Caption: "Reviewer (improvement suggestions)",
			Responsibility: "Reviews the coder's code for performance, security, readability, robustness, " +
				"edge cases and test coverage. Starts only after the coder has produced code.",
			Instructions: "You are a code review expert (reviewer).\n" +
				"Task: give concrete, actionable improvement suggestions for the coder's code " +
				"(performance, readability, robustness, security, edge cases, tests).\n" +
				"Requirements:\n" +
				"- Output only a list of suggestions. Do not paste or rewrite the full code.\n" +
				"- Point out obvious defects and give a direction for fixing them.\n" +
				"- Use an ordered or unordered list and keep each item short.\n" +
				"- Output nothing but the list.",
			Output: "advice",
		},
		{
			Name:    "integrator",
			Caption: "Integrator (final code)",
			Responsibility: "Merges the coder's code with the reviewer's suggestions into optimized, " +
				"production-quality final code. Starts only after the review and ends the run with TERMINATE.",
			Instructions: "You are the integration and optimization expert (integrator).\n" +
				"Task: produce the optimized final code from the coder's first version and the reviewer's suggestions.\n" +
				"Requirements:\n" +
				"- Output only the complete, runnable final code in a single complete code block.\n" +
				"- Adopt the reviewer's reasonable suggestions, fix defects and add needed comments, types and error handling.\n" +
				"- If the request needs a small adjustment to run, make it and explain it briefly in a code comment.\n" +
				"- After the code block, add one final line of text: TERMINATE\n" +
				"- Apart from that TERMINATE line, output no other text.",
			Output: "code",
		},
	}
}

// String returns a JSON representation of the config with secrets masked
func (c *Config) String() string {
	cp := *c
	cp.Model.Profiles = make([]ProfileConfig, len(c.Model.Profiles))
	for i, p := range c.Model.Profiles {
		p.APIKey = maskKey(p.APIKey)
		cp.Model.Profiles[i] = p
	}
	data, _ := json.MarshalIndent(cp, "", "  ")
	return string(data)
}

func maskKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + "..." + key[len(key)-4:]
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if len(c.Model.Profiles) == 0 {
		return fmt.Errorf("no model credentials configured: set MISTRAL_API_KEY or add a model profile")
	}
	for i, profile := range c.Model.Profiles {
		if profile.ID == "" {
			return fmt.Errorf("model profile %d: ID is required", i)
		}
		if profile.APIKey == "" {
			return fmt.Errorf("model profile %s: api_key is required", profile.ID)
		}
		switch profile.Provider {
		case "mistral", "openai", "anthropic":
		default:
			return fmt.Errorf("model profile %s: invalid provider %q (must be: mistral, openai, anthropic)", profile.ID, profile.Provider)
		}
	}
	if c.Model.Name == "" {
		return fmt.Errorf("model name is required")
	}

	if c.Pipeline.Mode != ModeRoundRobin && c.Pipeline.Mode != ModeSelector {
		return fmt.Errorf("invalid pipeline mode %q (must be: %s, %s)", c.Pipeline.Mode, ModeRoundRobin, ModeSelector)
	}
	if c.Pipeline.MaxMessages <= 0 {
		return fmt.Errorf("pipeline max_messages must be positive")
	}
	if c.Pipeline.TimeoutSeconds < 0 || c.Pipeline.InvocationTimeoutSeconds < 0 {
		return fmt.Errorf("pipeline timeouts must be >= 0")
	}

	if len(c.Roles) == 0 {
		return fmt.Errorf("at least one role must be configured")
	}
	seen := make(map[string]bool, len(c.Roles))
	for i, role := range c.Roles {
		if strings.TrimSpace(role.Name) == "" {
			return fmt.Errorf("role %d: name is required", i)
		}
		if seen[role.Name] {
			return fmt.Errorf("duplicate role: %s", role.Name)
		}
		seen[role.Name] = true
		if role.Output != "" && role.Output != "code" && role.Output != "advice" {
			return fmt.Errorf("role %s: invalid output %q (must be: code, advice)", role.Name, role.Output)
		}
	}

	if c.Storage.DataDir == "" {
		return fmt.Errorf("storage data_dir is required")
	}
	if c.Console.Mode != ConsoleRich && c.Console.Mode != ConsolePlain {
		return fmt.Errorf("invalid console mode %q", c.Console.Mode)
	}

	return nil
}
