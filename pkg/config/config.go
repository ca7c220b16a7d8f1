package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	DefaultCommand      = "创建文件"
	DefaultConfigDir    = "~/.dotfuzz"
	defaultConfigFile   = "config.json"
	defaultTargetBinary = "../build/synapse"
)

// FlexibleStringSlice is a []string that also accepts a single JSON string,
// so target.args can be written as "--flag" or ["--flag", "x"].
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}

	var single string
	if err := json.Unmarshal(data, &single); err != nil {
		return err
	}
	*f = strings.Fields(single)
	return nil
}

type Config struct {
	Target    TargetConfig    `json:"target"`
	Fuzz      FuzzConfig      `json:"fuzz"`
	Generator GeneratorConfig `json:"generator"`
	Providers ProvidersConfig `json:"providers"`
	Log       LogConfig       `json:"log"`
	mu        sync.RWMutex
}

type TargetConfig struct {
	Path                string              `json:"path" env:"DOTFUZZ_TARGET_PATH"`
	Args                FlexibleStringSlice `json:"args" env:"DOTFUZZ_TARGET_ARGS" envSeparator:" "`
	ReadyTimeoutSeconds int                 `json:"ready_timeout_seconds" env:"DOTFUZZ_TARGET_READY_TIMEOUT_SECONDS"`
	ReadTimeoutSeconds  int                 `json:"read_timeout_seconds" env:"DOTFUZZ_TARGET_READ_TIMEOUT_SECONDS"`
}

type FuzzConfig struct {
	IntervalSeconds    int    `json:"interval_seconds" env:"DOTFUZZ_FUZZ_INTERVAL_SECONDS"` // 300 for unattended runs
	ResyncEvery        int    `json:"resync_every" env:"DOTFUZZ_FUZZ_RESYNC_EVERY"`
	MaxRepliesPerRound int    `json:"max_replies_per_round" env:"DOTFUZZ_FUZZ_MAX_REPLIES_PER_ROUND"`
	DefaultCommand     string `json:"default_command" env:"DOTFUZZ_FUZZ_DEFAULT_COMMAND"`
	Seed               int64  `json:"seed" env:"DOTFUZZ_FUZZ_SEED"`
	PersonasFile       string `json:"personas_file" env:"DOTFUZZ_FUZZ_PERSONAS_FILE"`
}

type GeneratorConfig struct {
	Provider            string  `json:"provider" env:"DOTFUZZ_GENERATOR_PROVIDER"`
	Model               string  `json:"model" env:"DOTFUZZ_GENERATOR_MODEL"`
	MaxTokens           int     `json:"max_tokens" env:"DOTFUZZ_GENERATOR_MAX_TOKENS"`
	Temperature         float64 `json:"temperature" env:"DOTFUZZ_GENERATOR_TEMPERATURE"`
	TimeoutSeconds      int     `json:"timeout_seconds" env:"DOTFUZZ_GENERATOR_TIMEOUT_SECONDS"`
	ProbeTimeoutSeconds int     `json:"probe_timeout_seconds" env:"DOTFUZZ_GENERATOR_PROBE_TIMEOUT_SECONDS"`
}

type ProvidersConfig struct {
	OpenRouter OpenRouterConfig `json:"openrouter"`
	OpenAI     OpenAIConfig     `json:"openai"`
	Compatible CompatibleConfig `json:"compatible"`
}

type OpenRouterConfig struct {
	APIKey  string `json:"api_key" env:"DOTFUZZ_PROVIDERS_OPENROUTER_API_KEY"`
	APIBase string `json:"api_base" env:"DOTFUZZ_PROVIDERS_OPENROUTER_API_BASE"`
	Proxy   string `json:"proxy,omitempty" env:"DOTFUZZ_PROVIDERS_OPENROUTER_PROXY"`
}

type OpenAIConfig struct {
	APIKey         string `json:"api_key" env:"DOTFUZZ_PROVIDERS_OPENAI_API_KEY"`
	OAuthTokenFile string `json:"oauth_token_file,omitempty" env:"DOTFUZZ_PROVIDERS_OPENAI_OAUTH_TOKEN_FILE"`
	APIBase        string `json:"api_base" env:"DOTFUZZ_PROVIDERS_OPENAI_API_BASE"`
	Organization   string `json:"organization,omitempty" env:"DOTFUZZ_PROVIDERS_OPENAI_ORGANIZATION"`
	Project        string `json:"project,omitempty" env:"DOTFUZZ_PROVIDERS_OPENAI_PROJECT"`
	Proxy          string `json:"proxy,omitempty" env:"DOTFUZZ_PROVIDERS_OPENAI_PROXY"`
}

// CompatibleConfig targets any OpenAI-compatible chat completions endpoint
// (self-hosted gateways, regional resellers). api_base is mandatory.
type CompatibleConfig struct {
	APIKey  string `json:"api_key" env:"DOTFUZZ_PROVIDERS_COMPATIBLE_API_KEY"`
	APIBase string `json:"api_base" env:"DOTFUZZ_PROVIDERS_COMPATIBLE_API_BASE"`
	Proxy   string `json:"proxy,omitempty" env:"DOTFUZZ_PROVIDERS_COMPATIBLE_PROXY"`
}

type LogConfig struct {
	Level  string `json:"level" env:"DOTFUZZ_LOG_LEVEL"`
	Format string `json:"format" env:"DOTFUZZ_LOG_FORMAT"` // console or json
}

// DefaultConfig is the configuration used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		Target: TargetConfig{
			Path:                defaultTargetBinary,
			Args:                FlexibleStringSlice{},
			ReadyTimeoutSeconds: 60,
			ReadTimeoutSeconds:  60,
		},
		Fuzz: FuzzConfig{
			IntervalSeconds:    10,
			ResyncEvery:        10,
			MaxRepliesPerRound: 50,
			DefaultCommand:     DefaultCommand,
		},
		Generator: GeneratorConfig{
			Provider:            "openrouter",
			Model:               "x-ai/grok-4.1-fast",
			MaxTokens:           128,
			Temperature:         0.9,
			TimeoutSeconds:      15,
			ProbeTimeoutSeconds: 10,
		},
		Providers: ProvidersConfig{},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadConfig reads path (a missing file yields the defaults) and then applies
// DOTFUZZ_* environment overrides.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(expandHome(path))
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("apply environment overrides: %w", err)
	}

	return cfg, nil
}

// SaveConfig writes cfg as indented JSON, owner-readable only since it may
// hold API keys.
func SaveConfig(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	path = expandHome(path)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// Validate reports settings the fuzzer cannot run with.
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if strings.TrimSpace(c.Target.Path) == "" {
		return fmt.Errorf("target.path is required")
	}
	if c.Target.ReadyTimeoutSeconds <= 0 {
		return fmt.Errorf("target.ready_timeout_seconds must be positive")
	}
	if c.Target.ReadTimeoutSeconds <= 0 {
		return fmt.Errorf("target.read_timeout_seconds must be positive")
	}
	if c.Fuzz.IntervalSeconds < 0 {
		return fmt.Errorf("fuzz.interval_seconds must not be negative")
	}
	if c.Fuzz.ResyncEvery < 0 {
		return fmt.Errorf("fuzz.resync_every must not be negative (0 disables resync)")
	}
	if c.Generator.TimeoutSeconds <= 0 || c.Generator.ProbeTimeoutSeconds <= 0 {
		return fmt.Errorf("generator timeouts must be positive")
	}
	return nil
}

func (c *Config) TargetPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return expandHome(c.Target.Path)
}

func (c *Config) PersonasPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return expandHome(c.Fuzz.PersonasFile)
}

func (c *Config) Interval() time.Duration {
	return time.Duration(c.Fuzz.IntervalSeconds) * time.Second
}

func (c *Config) ReadyTimeout() time.Duration {
	return time.Duration(c.Target.ReadyTimeoutSeconds) * time.Second
}

func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.Target.ReadTimeoutSeconds) * time.Second
}

func (c *Config) GenerationTimeout() time.Duration {
	return time.Duration(c.Generator.TimeoutSeconds) * time.Second
}

func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.Generator.ProbeTimeoutSeconds) * time.Second
}

// DefaultConfigPath resolves the config file, honoring DOTFUZZ_CONFIG.
func DefaultConfigPath() string {
	if p := strings.TrimSpace(os.Getenv("DOTFUZZ_CONFIG")); p != "" {
		return expandHome(p)
	}
	return filepath.Join(expandHome(DefaultConfigDir), defaultConfigFile)
}

func expandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}
