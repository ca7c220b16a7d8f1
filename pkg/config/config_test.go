package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

// TestDefaultConfig_Target verifies the target defaults
func TestDefaultConfig_Target(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Target.Path == "" {
		t.Error("Target path should not be empty")
	}
	if cfg.ReadTimeout() != 60*time.Second {
		t.Errorf("ReadTimeout = %s, want 60s", cfg.ReadTimeout())
	}
	if cfg.ReadyTimeout() != 60*time.Second {
		t.Errorf("ReadyTimeout = %s, want 60s", cfg.ReadyTimeout())
	}
}

// TestDefaultConfig_Fuzz verifies pacing and resync defaults
func TestDefaultConfig_Fuzz(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Fuzz.ResyncEvery != 10 {
		t.Errorf("ResyncEvery = %d, want 10", cfg.Fuzz.ResyncEvery)
	}
	if cfg.Interval() != 10*time.Second {
		t.Errorf("Interval = %s, want 10s", cfg.Interval())
	}
	if cfg.Fuzz.DefaultCommand != DefaultCommand {
		t.Errorf("DefaultCommand = %q, want %q", cfg.Fuzz.DefaultCommand, DefaultCommand)
	}
}

// TestDefaultConfig_Generator verifies generation timeouts
func TestDefaultConfig_Generator(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.GenerationTimeout() != 15*time.Second {
		t.Errorf("GenerationTimeout = %s, want 15s", cfg.GenerationTimeout())
	}
	if cfg.ProbeTimeout() != 10*time.Second {
		t.Errorf("ProbeTimeout = %s, want 10s", cfg.ProbeTimeout())
	}
	if cfg.Generator.Model == "" {
		t.Error("Model should not be empty")
	}
}

// TestDefaultConfig_Providers verifies provider credentials are empty by default
func TestDefaultConfig_Providers(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Providers.OpenRouter.APIKey != "" {
		t.Error("OpenRouter API key should be empty by default")
	}
	if cfg.Providers.OpenAI.APIKey != "" {
		t.Error("OpenAI API key should be empty by default")
	}
	if cfg.Providers.Compatible.APIBase != "" {
		t.Error("Compatible API base should be empty by default")
	}
}

func TestSaveConfig_FilePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file permission bits are not enforced on Windows")
	}

	path := filepath.Join(t.TempDir(), "config.json")

	cfg := DefaultConfig()
	if err := SaveConfig(path, cfg); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("config file has permission %04o, want 0600", perm)
	}
}

func TestLoadConfig_FileValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{
		"target": {"path": "/opt/synapse", "args": "--quiet --lang zh"},
		"fuzz": {"interval_seconds": 300, "seed": 42},
		"generator": {"provider": "compatible", "model": "grok-4-1-fast-non-reasoning"},
		"providers": {"compatible": {"api_key": "k", "api_base": "https://api.example.test/v1"}}
	}`
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.TargetPath() != "/opt/synapse" {
		t.Fatalf("expected target path from file, got %q", cfg.TargetPath())
	}
	if len(cfg.Target.Args) != 3 || cfg.Target.Args[0] != "--quiet" {
		t.Fatalf("expected args split from string, got %v", cfg.Target.Args)
	}
	if cfg.Interval() != 300*time.Second {
		t.Fatalf("expected interval 300s, got %s", cfg.Interval())
	}
	if cfg.Fuzz.Seed != 42 {
		t.Fatalf("expected seed 42, got %d", cfg.Fuzz.Seed)
	}
	// Unset fields keep their defaults.
	if cfg.Fuzz.ResyncEvery != 10 {
		t.Fatalf("expected default resync, got %d", cfg.Fuzz.ResyncEvery)
	}
	if cfg.Providers.Compatible.APIBase != "https://api.example.test/v1" {
		t.Fatalf("unexpected compatible api base %q", cfg.Providers.Compatible.APIBase)
	}
}

func TestLoadConfig_EnvOverridesWithoutFile(t *testing.T) {
	t.Setenv("DOTFUZZ_GENERATOR_MODEL", "env/model")
	t.Setenv("DOTFUZZ_FUZZ_INTERVAL_SECONDS", "1")
	path := filepath.Join(t.TempDir(), "missing-config.json")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if got := cfg.Generator.Model; got != "env/model" {
		t.Fatalf("expected env override model, got %q", got)
	}
	if got := cfg.Interval(); got != time.Second {
		t.Fatalf("expected env override interval, got %s", got)
	}
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"target":{"path":"/from/file"}}`), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("DOTFUZZ_TARGET_PATH", "/from/env")
	t.Setenv("DOTFUZZ_PROVIDERS_OPENAI_API_KEY", "sk-openai")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if got := cfg.TargetPath(); got != "/from/env" {
		t.Fatalf("expected env to win over file, got %q", got)
	}
	if got := cfg.Providers.OpenAI.APIKey; got != "sk-openai" {
		t.Fatalf("expected openai api key from env, got %q", got)
	}
}

func TestLoadConfig_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"target":`), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected parse error for truncated config")
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}

	cfg.Target.Path = " "
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty target path")
	}

	cfg = DefaultConfig()
	cfg.Target.ReadTimeoutSeconds = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for zero read timeout")
	}

	cfg = DefaultConfig()
	cfg.Fuzz.ResyncEvery = -1
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for negative resync interval")
	}
}
