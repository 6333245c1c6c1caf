package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. TRIAD_PIPELINE_MODE
const EnvPrefix = "TRIAD"

// Environment keys read as overrides. Nested keys use underscores.
var envKeys = []string{
	"model.name",
	"model.temperature",
	"model.max_tokens",
	"model.max_retries",
	"pipeline.mode",
	"pipeline.terminate_marker",
	"pipeline.max_messages",
	"pipeline.timeout_seconds",
	"pipeline.invocation_timeout_seconds",
	"roles_file",
	"storage.data_dir",
	"console.mode",
	"logging.level",
	"logging.file",
	"metrics.addr",
}

// Loader handles configuration loading
type Loader struct {
	configPath string
	getenv     func(string) string
}

// NewLoader creates a new config loader
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
		getenv:     os.Getenv,
	}
}

// Load reads the config file when present, applies environment overrides,
// falls back to MISTRAL_API_KEY / MISTRAL_BASE_URL for credentials and
// resolves the roles file.
func (l *Loader) Load() (*Config, error) {
	configPath := l.GetConfigPath()

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	} else if l.configPath != "" {
		return nil, fmt.Errorf("config file not found: %s", l.configPath)
	}

	cfg := DefaultConfig()
	if v.IsSet("roles") {
		// configured roles replace the defaults instead of merging into them
		cfg.Roles = nil
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	l.applyCredentialFallback(cfg)

	if cfg.RolesFile != "" {
		roles, err := LoadRolesFile(cfg.RolesFile)
		if err != nil {
			return nil, err
		}
		cfg.Roles = roles
	}
	if len(cfg.Roles) == 0 {
		cfg.Roles = DefaultRoles()
	}

	if cfg.Logging.File == "" && cfg.Storage.DataDir != "" {
		cfg.Logging.File = filepath.Join(cfg.Storage.DataDir, "triad.log")
	}

	return cfg, nil
}

// Defaults returns the default configuration with credentials taken from
// the environment, without reading any file
func (l *Loader) Defaults() *Config {
	cfg := DefaultConfig()
	l.applyCredentialFallback(cfg)
	return cfg
}

func (l *Loader) firstEnv(names ...string) string {
	for _, name := range names {
		if val := l.getenv(name); val != "" {
			return val
		}
	}
	return ""
}

// applyCredentialFallback adds a mistral profile from the environment when
// none is configured, and fills blank mistral profiles.
func (l *Loader) applyCredentialFallback(cfg *Config) {
	key := l.firstEnv(EnvPrefix+"_API_KEY", "MISTRAL_API_KEY")
	baseURL := l.firstEnv(EnvPrefix+"_BASE_URL", "MISTRAL_BASE_URL")

	if len(cfg.Model.Profiles) == 0 {
		if key == "" {
			return
		}
		cfg.Model.Profiles = []ProfileConfig{{
			ID:       "mistral-env",
			Provider: "mistral",
			APIKey:   key,
			BaseURL:  baseURL,
		}}
		return
	}

	for i := range cfg.Model.Profiles {
		p := &cfg.Model.Profiles[i]
		if p.Provider != "mistral" {
			continue
		}
		if p.APIKey == "" {
			p.APIKey = key
		}
		if p.BaseURL == "" {
			p.BaseURL = baseURL
		}
	}
}

// Save writes the configuration to file
func (l *Loader) Save(cfg *Config) error {
	configPath := l.GetConfigPath()
	if configPath == "" {
		return fmt.Errorf("no config path")
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)

	// go through the json tags so every format gets the same key names
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	var settings map[string]interface{}
	if err := json.Unmarshal(data, &settings); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	for key, val := range settings {
		v.Set(key, val)
	}

	if err := v.WriteConfig(); err != nil {
		if os.IsNotExist(err) {
			if err := v.SafeWriteConfig(); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}
		} else {
			return fmt.Errorf("failed to write config file: %w", err)
		}
	}

	return nil
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	if l.configPath != "" {
		return l.configPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".triad", "triad.yaml")
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	return NewLoader(configPath).Load()
}

type rolesFile struct {
	Roles []RoleConfig `json:"roles" yaml:"roles"`
}

// LoadRolesFile loads role definitions from a JSON or YAML file
func LoadRolesFile(path string) ([]RoleConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read roles file: %w", err)
	}

	var rf rolesFile
	switch ext := filepath.Ext(path); ext {
	case ".json":
		if err := json.Unmarshal(data, &rf); err != nil {
			return nil, fmt.Errorf("failed to parse JSON roles file: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &rf); err != nil {
			return nil, fmt.Errorf("failed to parse YAML roles file: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported roles file format: %s (supported: .json, .yaml, .yml)", ext)
	}

	if len(rf.Roles) == 0 {
		return nil, fmt.Errorf("roles file %s defines no roles", path)
	}
	return rf.Roles, nil
}
