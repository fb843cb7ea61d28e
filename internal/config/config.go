package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the BiteBase services
type Config struct {
	Environment string          `yaml:"environment"`
	Server      ServerConfig    `yaml:"server"`
	Redis       RedisConfig     `yaml:"redis"`
	Context     ContextConfig   `yaml:"context"`
	Ollama      OllamaConfig    `yaml:"ollama"`
	Marketing   MarketingConfig `yaml:"marketing"`
	MCP         MCPConfig       `yaml:"mcp"`
	History     HistoryConfig   `yaml:"history"`
	Events      EventsConfig    `yaml:"events"`
	CORS        CORSConfig      `yaml:"cors"`
	Logging     LoggingConfig   `yaml:"logging"`
}

// ServerConfig defines listen settings for each service
type ServerConfig struct {
	Host        string `yaml:"host"`
	CopilotPort int    `yaml:"copilot_port"`
	GatewayPort int    `yaml:"gateway_port"`
	BackendPort int    `yaml:"backend_port"`
}

// RedisConfig defines the Redis connection
type RedisConfig struct {
	URL     string `yaml:"url"`
	Timeout string `yaml:"timeout"`
}

// GetTimeout returns the per-operation store timeout
func (r *RedisConfig) GetTimeout() time.Duration {
	return parseDuration(r.Timeout, 2*time.Second)
}

// ContextConfig defines conversation cache bounds
type ContextConfig struct {
	TTL         string `yaml:"ttl"`
	MaxTurns    int    `yaml:"max_turns"`
	PromptTurns int    `yaml:"prompt_turns"`
}

// GetTTL returns the sliding expiry applied on every write
func (c *ContextConfig) GetTTL() time.Duration {
	return parseDuration(c.TTL, time.Hour)
}

// OllamaConfig defines Ollama connection settings
type OllamaConfig struct {
	URL          string `yaml:"url"`
	DefaultModel string `yaml:"default_model"`
	Timeout      string `yaml:"timeout"`
}

// GetTimeout returns the timeout as a time.Duration
func (o *OllamaConfig) GetTimeout() time.Duration {
	return parseDuration(o.Timeout, 30*time.Second)
}

// MarketingConfig defines the marketing research service
type MarketingConfig struct {
	URL     string `yaml:"url"`
	Timeout string `yaml:"timeout"`
}

// GetTimeout returns the timeout for research operations
func (m *MarketingConfig) GetTimeout() time.Duration {
	return parseDuration(m.Timeout, 60*time.Second)
}

// MCPConfig defines the tool servers behind the dispatch router
type MCPConfig struct {
	ServersBaseURL string `yaml:"servers_base_url"`
	Timeout        string `yaml:"timeout"`
	LongTimeout    string `yaml:"long_timeout"`
	HealthSchedule string `yaml:"health_schedule"`
	HealthTimeout  string `yaml:"health_timeout"`
}

// GetTimeout returns the default tool call timeout
func (m *MCPConfig) GetTimeout() time.Duration {
	return parseDuration(m.Timeout, 30*time.Second)
}

// GetLongTimeout returns the timeout for report and research tools
func (m *MCPConfig) GetLongTimeout() time.Duration {
	return parseDuration(m.LongTimeout, 60*time.Second)
}

// GetHealthTimeout returns the per-server health check timeout
func (m *MCPConfig) GetHealthTimeout() time.Duration {
	return parseDuration(m.HealthTimeout, 5*time.Second)
}

// HistoryConfig defines user backend chat history retention
type HistoryConfig struct {
	MessageTTL  string `yaml:"message_ttl"`
	FeedbackTTL string `yaml:"feedback_ttl"`
	MaxMessages int    `yaml:"max_messages"`
}

// GetMessageTTL returns how long a single history message is kept
func (h *HistoryConfig) GetMessageTTL() time.Duration {
	return parseDuration(h.MessageTTL, 7*24*time.Hour)
}

// GetFeedbackTTL returns how long feedback is kept
func (h *HistoryConfig) GetFeedbackTTL() time.Duration {
	return parseDuration(h.FeedbackTTL, 30*24*time.Hour)
}

// EventsConfig defines the turn event stream
type EventsConfig struct {
	Stream         string `yaml:"stream"`
	Group          string `yaml:"group"`
	Consumer       string `yaml:"consumer"`
	ReplaySchedule string `yaml:"replay_schedule"`
}

// CORSConfig lists browser origins allowed to call the services
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// LoggingConfig defines logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is present
func Default() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host:        "0.0.0.0",
			CopilotPort: 8001,
			GatewayPort: 8002,
			BackendPort: 8000,
		},
		Redis: RedisConfig{
			URL:     "redis://localhost:6379/2",
			Timeout: "2s",
		},
		Context: ContextConfig{
			TTL:         "1h",
			MaxTurns:    10,
			PromptTurns: 3,
		},
		Ollama: OllamaConfig{
			URL:          "http://localhost:11434",
			DefaultModel: "llama2",
			Timeout:      "30s",
		},
		Marketing: MarketingConfig{
			URL:     "http://localhost:5001",
			Timeout: "60s",
		},
		MCP: MCPConfig{
			ServersBaseURL: "http://localhost:8010",
			Timeout:        "30s",
			LongTimeout:    "60s",
			HealthSchedule: "@every 1m",
			HealthTimeout:  "5s",
		},
		History: HistoryConfig{
			MessageTTL:  "168h",
			FeedbackTTL: "720h",
			MaxMessages: 100,
		},
		Events: EventsConfig{
			Stream:         "bitebase:chat:turns",
			Group:          "chat-history",
			Consumer:       "backend",
			ReplaySchedule: "@every 5m",
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{
				"http://localhost:3000",
				"http://localhost:3001",
				"http://localhost:3002",
				"http://localhost:3003",
				"http://localhost:3004",
				"https://bitebase.com",
				"https://staff.bitebase.com",
				"https://tools.bitebase.com",
				"https://workflows.bitebase.com",
				"https://tasks.bitebase.com",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from a YAML file layered over Default, then applies
// environment variable overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the config
func (c *Config) applyEnvOverrides() error {
	if env := os.Getenv("ENVIRONMENT"); env != "" {
		c.Environment = env
	}
	if u := os.Getenv("REDIS_URL"); u != "" {
		c.Redis.URL = u
	}
	if ttl := os.Getenv("CONTEXT_TTL"); ttl != "" {
		secs, err := strconv.Atoi(ttl)
		if err != nil {
			return fmt.Errorf("invalid CONTEXT_TTL %q: %w", ttl, err)
		}
		c.Context.TTL = (time.Duration(secs) * time.Second).String()
	}
	if u := os.Getenv("OLLAMA_URL"); u != "" {
		c.Ollama.URL = u
	}
	if m := os.Getenv("OLLAMA_MODEL"); m != "" {
		c.Ollama.DefaultModel = m
	}
	if u := os.Getenv("MARKETING_RESEARCH_URL"); u != "" {
		c.Marketing.URL = u
	}
	if u := os.Getenv("MCP_SERVERS_BASE_URL"); u != "" {
		c.MCP.ServersBaseURL = u
	}
	for name, dst := range map[string]*int{
		"COPILOT_PORT": &c.Server.CopilotPort,
		"GATEWAY_PORT": &c.Server.GatewayPort,
		"BACKEND_PORT": &c.Server.BackendPort,
	} {
		if v := os.Getenv(name); v != "" {
			port, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid %s %q: %w", name, v, err)
			}
			*dst = port
		}
	}
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		c.Logging.Level = lvl
	}
	if f := os.Getenv("LOG_FORMAT"); f != "" {
		c.Logging.Format = f
	}
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		c.CORS.AllowedOrigins = splitList(origins)
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errs []error
	for name, port := range map[string]int{
		"copilot": c.Server.CopilotPort,
		"gateway": c.Server.GatewayPort,
		"backend": c.Server.BackendPort,
	} {
		if port <= 0 || port > 65535 {
			errs = append(errs, fmt.Errorf("invalid %s port: %d", name, port))
		}
	}
	if c.Redis.URL == "" {
		errs = append(errs, errors.New("redis URL is required"))
	}
	for name, raw := range map[string]string{
		"ollama":    c.Ollama.URL,
		"marketing": c.Marketing.URL,
		"mcp":       c.MCP.ServersBaseURL,
	} {
		if err := validateURL(raw); err != nil {
			errs = append(errs, fmt.Errorf("%s URL: %w", name, err))
		}
	}
	if c.Context.MaxTurns <= 0 {
		errs = append(errs, fmt.Errorf("context max_turns must be positive, got %d", c.Context.MaxTurns))
	}
	if c.Context.PromptTurns < 0 || c.Context.PromptTurns > c.Context.MaxTurns {
		errs = append(errs, fmt.Errorf("context prompt_turns must be between 0 and max_turns, got %d", c.Context.PromptTurns))
	}
	if c.History.MaxMessages <= 0 {
		errs = append(errs, fmt.Errorf("history max_messages must be positive, got %d", c.History.MaxMessages))
	}
	return errors.Join(errs...)
}

func validateURL(raw string) error {
	if raw == "" {
		return errors.New("is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	return nil
}

func parseDuration(raw string, def time.Duration) time.Duration {
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
