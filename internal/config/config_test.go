package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	yaml := []byte(`
server:
  copilot_port: 18801
context:
  ttl: 30m
  max_turns: 6
ollama:
  url: http://ollama.internal:11434
  default_model: mistral
mcp:
  servers_base_url: http://tools.internal:8010
  timeout: 10s
`)
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, yaml, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.CopilotPort != 18801 {
		t.Errorf("Expected copilot port 18801, got %d", cfg.Server.CopilotPort)
	}
	if cfg.Server.GatewayPort != 8002 {
		t.Errorf("Expected default gateway port to survive, got %d", cfg.Server.GatewayPort)
	}
	if got := cfg.Context.GetTTL(); got != 30*time.Minute {
		t.Errorf("Expected ttl 30m, got %s", got)
	}
	if cfg.Context.MaxTurns != 6 {
		t.Errorf("Expected max_turns 6, got %d", cfg.Context.MaxTurns)
	}
	if cfg.Ollama.DefaultModel != "mistral" {
		t.Errorf("Expected model mistral, got %s", cfg.Ollama.DefaultModel)
	}
	if got := cfg.MCP.GetTimeout(); got != 10*time.Second {
		t.Errorf("Expected mcp timeout 10s, got %s", got)
	}
	if got := cfg.MCP.GetLongTimeout(); got != 60*time.Second {
		t.Errorf("Expected long timeout default 60s, got %s", got)
	}
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Redis.URL != "redis://localhost:6379/2" {
		t.Errorf("unexpected redis url %s", cfg.Redis.URL)
	}
	if cfg.Context.MaxTurns != 10 || cfg.Context.PromptTurns != 3 {
		t.Errorf("unexpected context bounds %+v", cfg.Context)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://cache:6379/4")
	t.Setenv("CONTEXT_TTL", "120")
	t.Setenv("OLLAMA_URL", "http://gpu:11434")
	t.Setenv("GATEWAY_PORT", "9002")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Redis.URL != "redis://cache:6379/4" {
		t.Errorf("redis override ignored: %s", cfg.Redis.URL)
	}
	if got := cfg.Context.GetTTL(); got != 2*time.Minute {
		t.Errorf("Expected ttl 2m, got %s", got)
	}
	if cfg.Ollama.URL != "http://gpu:11434" {
		t.Errorf("ollama override ignored: %s", cfg.Ollama.URL)
	}
	if cfg.Server.GatewayPort != 9002 {
		t.Errorf("port override ignored: %d", cfg.Server.GatewayPort)
	}
	if len(cfg.CORS.AllowedOrigins) != 2 || cfg.CORS.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("origins override ignored: %v", cfg.CORS.AllowedOrigins)
	}
}

func TestEnvOverrideInvalidTTL(t *testing.T) {
	t.Setenv("CONTEXT_TTL", "an hour")
	if _, err := Load(""); err == nil {
		t.Error("Expected error for non-numeric CONTEXT_TTL")
	}
}

func TestValidateInvalidPort(t *testing.T) {
	cfg := Default()
	cfg.Server.BackendPort = -1
	if err := cfg.Validate(); err == nil {
		t.Error("Expected validation error for invalid port")
	}
}

func TestValidateBadURLAndBounds(t *testing.T) {
	cfg := Default()
	cfg.MCP.ServersBaseURL = "ftp://tools"
	cfg.Context.PromptTurns = 20
	if err := cfg.Validate(); err == nil {
		t.Error("Expected validation errors")
	}
}

func TestGetTimeoutFallsBackOnGarbage(t *testing.T) {
	o := OllamaConfig{Timeout: "soon"}
	if got := o.GetTimeout(); got != 30*time.Second {
		t.Errorf("Expected 30s fallback, got %s", got)
	}
}
