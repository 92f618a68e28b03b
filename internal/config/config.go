// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// RaiseCondition controls how the agent surfaces a failed step.
type RaiseCondition string

const (
	// RaiseImmediately turns every step failure into a returned error.
	RaiseImmediately RaiseCondition = "immediately"
	// RaiseRetry tolerates failures up to the consecutive-failure ceiling.
	RaiseRetry RaiseCondition = "retry"
	// RaiseNever converts even top-level errors into a failed response.
	RaiseNever RaiseCondition = "never"
)

// HistoryStrategy selects how much of the trajectory is replayed into the
// reasoning context on each step.
type HistoryStrategy string

const (
	HistoryFullConversation HistoryStrategy = "full_conversation"
	HistoryShortObs         HistoryStrategy = "short_observations"
	HistoryShortObsRawData  HistoryStrategy = "short_observations_with_raw_data"
	HistoryShortObsData     HistoryStrategy = "short_observations_with_short_data"
	HistoryCompressed       HistoryStrategy = "compressed"
)

// Config holds the entire application configuration.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Network NetworkConfig `mapstructure:"network" yaml:"network"`
	Agent   AgentConfig   `mapstructure:"agent" yaml:"agent"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// BrowserConfig holds settings for the browsing session.
type BrowserConfig struct {
	UserAgent      string `mapstructure:"user_agent" yaml:"user_agent"`
	ViewportWidth  int    `mapstructure:"viewport_width" yaml:"viewport_width"`
	ViewportHeight int    `mapstructure:"viewport_height" yaml:"viewport_height"`
	// MaxPageBytes caps how much of a response body is read and parsed.
	MaxPageBytes int64 `mapstructure:"max_page_bytes" yaml:"max_page_bytes"`
}

// NetworkConfig tunes the network behavior of the browsing session.
type NetworkConfig struct {
	Timeout           time.Duration     `mapstructure:"timeout" yaml:"timeout"`
	NavigationTimeout time.Duration     `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	Headers           map[string]string `mapstructure:"headers" yaml:"headers"`
}

// LLMProvider defines the supported reasoning-engine providers.
type LLMProvider string

const (
	ProviderGemini LLMProvider = "gemini"
)

// LLMConfig defines the connection settings for the reasoning engine.
type LLMConfig struct {
	Provider        LLMProvider   `mapstructure:"provider" yaml:"provider"`
	Model           string        `mapstructure:"model" yaml:"model"`
	APIKey          string        `mapstructure:"api_key" yaml:"-"`
	Endpoint        string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout      time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature     float64       `mapstructure:"temperature" yaml:"temperature"`
	MaxOutputTokens int           `mapstructure:"max_output_tokens" yaml:"max_output_tokens"`
	// RequestsPerMinute is the client-side rate limit; zero disables it.
	RequestsPerMinute float64 `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
}

// AgentConfig is the immutable configuration snapshot for one agent run.
// Created once per run and never mutated; derived configs are copies.
type AgentConfig struct {
	ReasoningModel         string          `mapstructure:"reasoning_model" yaml:"reasoning_model"`
	MaxSteps               int             `mapstructure:"max_steps" yaml:"max_steps"`
	MaxActionsPerStep      int             `mapstructure:"max_actions_per_step" yaml:"max_actions_per_step"`
	MaxHistoryTokens       int             `mapstructure:"max_history_tokens" yaml:"max_history_tokens"`
	MaxErrorLength         int             `mapstructure:"max_error_length" yaml:"max_error_length"`
	MaxConsecutiveFailures int             `mapstructure:"max_consecutive_failures" yaml:"max_consecutive_failures"`
	RaiseCondition         RaiseCondition  `mapstructure:"raise_condition" yaml:"raise_condition"`
	HistoryStrategy        HistoryStrategy `mapstructure:"history_strategy" yaml:"history_strategy"`
	IncludeScreenshot      bool            `mapstructure:"include_screenshot" yaml:"include_screenshot"`
	LLM                    LLMConfig       `mapstructure:"llm" yaml:"llm"`
}

// WithRaiseCondition returns a copy of the config with the raise condition
// replaced. Copy-on-change keeps the original snapshot intact.
func (a AgentConfig) WithRaiseCondition(rc RaiseCondition) AgentConfig {
	a.RaiseCondition = rc
	return a
}

// WithScreenshots returns a copy of the config with screenshot capture
// enabled.
func (a AgentConfig) WithScreenshots() AgentConfig {
	a.IncludeScreenshot = true
	return a
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Cannot happen with the defaults below.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "wayfarer-cli")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.user_agent", "wayfarer-cli/0.1")
	v.SetDefault("browser.viewport_width", 1280)
	v.SetDefault("browser.viewport_height", 1080)
	v.SetDefault("browser.max_page_bytes", 4*1024*1024)

	// -- Network --
	v.SetDefault("network.timeout", "30s")
	v.SetDefault("network.navigation_timeout", "60s")

	// -- Agent --
	v.SetDefault("agent.reasoning_model", "gemini-2.5-pro")
	v.SetDefault("agent.max_steps", 20)
	v.SetDefault("agent.max_actions_per_step", 1)
	v.SetDefault("agent.max_history_tokens", 16000)
	v.SetDefault("agent.max_error_length", 500)
	v.SetDefault("agent.max_consecutive_failures", 3)
	v.SetDefault("agent.raise_condition", string(RaiseRetry))
	v.SetDefault("agent.history_strategy", string(HistoryShortObsData))
	v.SetDefault("agent.include_screenshot", false)
	v.SetDefault("agent.llm.provider", string(ProviderGemini))
	v.SetDefault("agent.llm.model", "gemini-2.5-pro")
	v.SetDefault("agent.llm.api_timeout", "60s")
	v.SetDefault("agent.llm.temperature", 0.2)
	v.SetDefault("agent.llm.max_output_tokens", 4096)
	v.SetDefault("agent.llm.requests_per_minute", 30.0)
}

// NewConfigFromViper creates a configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	// Bind environment variables for sensitive data.
	_ = v.BindEnv("agent.llm.api_key", "WAYFARER_LLM_API_KEY")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.Agent.Validate(); err != nil {
		return fmt.Errorf("agent configuration invalid: %w", err)
	}
	if c.Network.Timeout <= 0 {
		return fmt.Errorf("network.timeout must be a positive duration")
	}
	if c.Browser.MaxPageBytes <= 0 {
		return fmt.Errorf("browser.max_page_bytes must be positive")
	}
	return nil
}

// Validate checks the agent settings.
func (a *AgentConfig) Validate() error {
	if a.MaxSteps <= 0 {
		return fmt.Errorf("max_steps must be greater than 0")
	}
	if a.MaxActionsPerStep <= 0 {
		return fmt.Errorf("max_actions_per_step must be greater than 0")
	}
	if a.MaxConsecutiveFailures <= 0 {
		return fmt.Errorf("max_consecutive_failures must be greater than 0")
	}
	if a.MaxHistoryTokens <= 0 {
		return fmt.Errorf("max_history_tokens must be greater than 0")
	}
	switch a.RaiseCondition {
	case RaiseImmediately, RaiseRetry, RaiseNever:
	default:
		return fmt.Errorf("unknown raise_condition: %q", a.RaiseCondition)
	}
	switch a.HistoryStrategy {
	case HistoryFullConversation, HistoryShortObs, HistoryShortObsRawData,
		HistoryShortObsData, HistoryCompressed:
	default:
		return fmt.Errorf("unknown history_strategy: %q", a.HistoryStrategy)
	}
	return nil
}
