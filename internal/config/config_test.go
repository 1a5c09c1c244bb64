package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if len(cfg.Defaults.Roster) != 2 {
		t.Errorf("default roster = %v", cfg.Defaults.Roster)
	}
	if cfg.Defaults.MaxTurns != 10 {
		t.Errorf("default max turns = %d", cfg.Defaults.MaxTurns)
	}
	for _, name := range []string{"anthropic", "openai", "gemini", "mock"} {
		if _, ok := cfg.Backends[name]; !ok {
			t.Errorf("default config missing backend %q", name)
		}
	}
	if cfg.Backends["mock"].Enabled {
		t.Error("mock backend should be disabled by default")
	}
}

func TestLoadFromMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Defaults.MaxTurns != 10 {
		t.Errorf("max turns = %d, want default 10", cfg.Defaults.MaxTurns)
	}
}

func TestLoadFromMergesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
defaults:
  roster: [gemini, anthropic]
  max_turns: 4

backends:
  gemini:
    model: gemini-2.0-pro
    timeout: 2m
    enabled: true
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Defaults.MaxTurns != 4 {
		t.Errorf("max turns = %d, want 4", cfg.Defaults.MaxTurns)
	}
	if got := cfg.Defaults.Roster; len(got) != 2 || got[0] != "gemini" {
		t.Errorf("roster = %v", got)
	}
	gem, ok := cfg.GetBackend("gemini")
	if !ok {
		t.Fatal("gemini backend missing")
	}
	if gem.Model != "gemini-2.0-pro" || gem.Timeout != 2*time.Minute {
		t.Errorf("gemini config = %+v", gem)
	}
	// Backends absent from the file keep their defaults.
	if _, ok := cfg.GetBackend("anthropic"); !ok {
		t.Error("anthropic default not merged in")
	}
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	cfg := Default()
	cfg.Defaults.MaxTurns = 7
	if err := cfg.SaveTo(path); err != nil {
		t.Fatalf("SaveTo: %v", err)
	}

	loaded, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if loaded.Defaults.MaxTurns != 7 {
		t.Errorf("max turns = %d, want 7", loaded.Defaults.MaxTurns)
	}
}

func TestCreateRegistry(t *testing.T) {
	cfg := Default()
	mock := cfg.Backends["mock"]
	mock.Enabled = true
	cfg.Backends["mock"] = mock

	registry, err := cfg.CreateRegistry()
	if err != nil {
		t.Fatalf("CreateRegistry: %v", err)
	}
	for _, name := range []string{"anthropic", "openai", "gemini", "mock"} {
		if _, err := registry.Resolve(name); err != nil {
			t.Errorf("backend %q not registered: %v", name, err)
		}
	}
}

func TestCreateRegistryRejectsUnknownBackend(t *testing.T) {
	cfg := Default()
	cfg.Backends["quantum"] = BackendConfig{Enabled: true}
	if _, err := cfg.CreateRegistry(); err == nil {
		t.Fatal("expected an error for an unknown backend name")
	}
}

func TestCreateRegistrySkipsDisabled(t *testing.T) {
	cfg := Default()
	oai := cfg.Backends["openai"]
	oai.Enabled = false
	cfg.Backends["openai"] = oai

	registry, err := cfg.CreateRegistry()
	if err != nil {
		t.Fatalf("CreateRegistry: %v", err)
	}
	if _, err := registry.Resolve("openai"); err == nil {
		t.Error("disabled backend should not be registered")
	}
}

func TestLoadEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := `
# comment
SERVER_PORT=9000
DEFAULT_ROSTER=gemini, openai
QUOTED="hello world"
INLINE=value # trailing comment
BROKEN LINE
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	env, err := LoadEnv(path)
	if err != nil {
		t.Fatalf("LoadEnv: %v", err)
	}
	if env["SERVER_PORT"] != "9000" {
		t.Errorf("SERVER_PORT = %q", env["SERVER_PORT"])
	}
	if env["QUOTED"] != "hello world" {
		t.Errorf("QUOTED = %q", env["QUOTED"])
	}
	if env["INLINE"] != "value" {
		t.Errorf("INLINE = %q", env["INLINE"])
	}
	if _, ok := env["BROKEN LINE"]; ok {
		t.Error("malformed line should be skipped")
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := Default()
	ApplyEnvOverrides(cfg, map[string]string{
		"SERVER_PORT":             "9090",
		"DEFAULT_ROSTER":          "gemini,anthropic",
		"DEFAULT_MAX_TURNS":       "6",
		"BACKEND_OPENAI_ENABLED":  "false",
		"BACKEND_TIMEOUT":         "90",
	})

	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if got := cfg.Defaults.Roster; len(got) != 2 || got[0] != "gemini" || got[1] != "anthropic" {
		t.Errorf("roster = %v", got)
	}
	if cfg.Defaults.MaxTurns != 6 {
		t.Errorf("max turns = %d", cfg.Defaults.MaxTurns)
	}
	if cfg.Backends["openai"].Enabled {
		t.Error("openai should be disabled via env")
	}
	if cfg.Backends["anthropic"].Timeout != 90*time.Second {
		t.Errorf("timeout = %v", cfg.Backends["anthropic"].Timeout)
	}
}
