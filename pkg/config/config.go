package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for ekaya-accounts.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3480"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"`

	Log       LogConfig       `yaml:"log"`
	Database  DatabaseConfig  `yaml:"database"`
	LLM       LLMConfig       `yaml:"llm"`
	Providers ProvidersConfig `yaml:"providers"`
	Interview InterviewConfig `yaml:"interview"`
	Plans     PlansConfig     `yaml:"plans"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"` // "json" or "console"
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"ekaya"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"ekaya_accounts"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// LLMConfig selects and configures the generation backend.
type LLMConfig struct {
	// Provider is "openai" (any OpenAI-compatible endpoint) or "anthropic".
	Provider    string        `yaml:"provider" env:"LLM_PROVIDER" env-default:"openai"`
	Endpoint    string        `yaml:"endpoint" env:"LLM_ENDPOINT" env-default:"https://api.openai.com/v1"`
	Model       string        `yaml:"model" env:"LLM_MODEL" env-default:"gpt-4o"`
	SearchModel string        `yaml:"search_model" env:"LLM_SEARCH_MODEL" env-default:"gpt-4o-search-preview"`
	APIKey      string        `yaml:"-" env:"LLM_API_KEY"` // Secret - not in YAML
	Temperature float64       `yaml:"temperature" env:"LLM_TEMPERATURE" env-default:"0.2"`
	MaxTokens   int           `yaml:"max_tokens" env:"LLM_MAX_TOKENS" env-default:"4000"`
	Timeout     time.Duration `yaml:"timeout" env:"LLM_TIMEOUT" env-default:"120s"`

	// Consecutive failures before the circuit opens, and how long it stays open.
	BreakerThreshold  int           `yaml:"breaker_threshold" env:"LLM_BREAKER_THRESHOLD" env-default:"5"`
	BreakerResetAfter time.Duration `yaml:"breaker_reset_after" env:"LLM_BREAKER_RESET_AFTER" env-default:"30s"`
}

// ProvidersConfig configures the external fact providers tried by the fallback router.
// A gateway is enabled only when its endpoint is set.
type ProvidersConfig struct {
	SearchEnabled        bool          `yaml:"search_enabled" env:"PROVIDERS_SEARCH_ENABLED" env-default:"true"`
	PlainFallbackEnabled bool          `yaml:"plain_fallback_enabled" env:"PROVIDERS_PLAIN_FALLBACK_ENABLED" env-default:"true"`
	ToolGatewayEndpoint  string        `yaml:"tool_gateway_endpoint" env:"TOOL_GATEWAY_ENDPOINT" env-default:""`
	ToolGatewayAPIKey    string        `yaml:"-" env:"TOOL_GATEWAY_API_KEY"`
	AgentGatewayEndpoint string        `yaml:"agent_gateway_endpoint" env:"AGENT_GATEWAY_ENDPOINT" env-default:""`
	AgentGatewayAPIKey   string        `yaml:"-" env:"AGENT_GATEWAY_API_KEY"`
	AttemptTimeout       time.Duration `yaml:"attempt_timeout" env:"PROVIDERS_ATTEMPT_TIMEOUT" env-default:"12s"`
}

// InterviewConfig bounds the history consulted by the relevance engine.
type InterviewConfig struct {
	HistoryLimit int `yaml:"history_limit" env:"INTERVIEW_HISTORY_LIMIT" env-default:"20"`
	RelevantTopK int `yaml:"relevant_top_k" env:"INTERVIEW_RELEVANT_TOP_K" env-default:"5"`
}

// PlansConfig holds plan retention and listing defaults.
type PlansConfig struct {
	KeepLatest    int `yaml:"keep_latest" env:"PLANS_KEEP_LATEST" env-default:"3"`
	PreviewLength int `yaml:"preview_length" env:"PLANS_PREVIEW_LENGTH" env-default:"500"`
}

const configFile = "config.yaml"

// Load reads configuration from config.yaml with environment variable overrides.
// A missing config.yaml is not an error; defaults and environment apply.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat(configFile); err == nil {
		if err := cleanenv.ReadConfig(configFile, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", configFile, err)
		}
	} else if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.LLM.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("llm.provider must be \"openai\" or \"anthropic\", got %q", c.LLM.Provider)
	}
	if c.Providers.AttemptTimeout <= 0 {
		return fmt.Errorf("providers.attempt_timeout must be positive")
	}
	if c.Plans.KeepLatest < 0 {
		return fmt.Errorf("plans.keep_latest must not be negative")
	}
	return nil
}

// ConnectionString returns a PostgreSQL keyword/value connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// URL returns the connection string in URL form, as golang-migrate expects.
func (c *DatabaseConfig) URL() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return c.BindAddr + ":" + c.Port
}
