package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Blackboard backend names accepted by Config.Blackboard.Backend.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config represents the top-level baton.yml configuration.
type Config struct {
	LLM        LLMConfig        `yaml:"llm"`
	Blackboard BlackboardConfig `yaml:"blackboard"`
	Conductor  ConductorConfig  `yaml:"conductor"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// LLMConfig selects the models and credentials for completions.
type LLMConfig struct {
	Model          string   `yaml:"model"`           // Specialist agent model (default: claude-sonnet-4-6)
	ConductorModel string   `yaml:"conductor_model"` // Routing model (default: claude-haiku-4-5)
	APIKey         string   `yaml:"api_key,omitempty"`
	BaseURL        string   `yaml:"base_url,omitempty"` // Override the API endpoint, e.g. for a proxy
	Temperature    *float64 `yaml:"temperature,omitempty"`
	MaxTokens      *int     `yaml:"max_tokens,omitempty"`
}

// BlackboardConfig selects where task state is persisted.
type BlackboardConfig struct {
	Backend   string `yaml:"backend"` // "memory" or "redis"
	RedisURL  string `yaml:"redis_url,omitempty"`
	Namespace string `yaml:"namespace,omitempty"` // Redis key namespace (default: baton)
}

// ConductorConfig tunes the scheduling loop.
type ConductorConfig struct {
	MaxSteps               *int `yaml:"max_steps,omitempty"`                // Loop budget (default: 50)
	ConsensusMaxIterations *int `yaml:"consensus_max_iterations,omitempty"` // Rejections before forced approval (default: 3)
}

// LoggingConfig tunes the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty"`  // debug, info, warn, or error
	Format string `yaml:"format,omitempty"` // text or json
}

// Default returns a configuration with every default applied, for running
// without a baton.yml.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.LLM.Model == "" {
		c.LLM.Model = "claude-sonnet-4-6"
	}
	if c.LLM.ConductorModel == "" {
		c.LLM.ConductorModel = "claude-haiku-4-5"
	}
	if c.LLM.Temperature == nil {
		temperature := 0.3
		c.LLM.Temperature = &temperature
	}
	if c.LLM.MaxTokens == nil {
		maxTokens := 4096
		c.LLM.MaxTokens = &maxTokens
	}
	if c.Blackboard.Backend == "" {
		c.Blackboard.Backend = BackendMemory
	}
	if c.Blackboard.RedisURL == "" {
		c.Blackboard.RedisURL = "redis://localhost:6379/0"
	}
	if c.Blackboard.Namespace == "" {
		c.Blackboard.Namespace = "baton"
	}
	if c.Conductor.MaxSteps == nil {
		maxSteps := 50
		c.Conductor.MaxSteps = &maxSteps
	}
	if c.Conductor.ConsensusMaxIterations == nil {
		iterations := 3
		c.Conductor.ConsensusMaxIterations = &iterations
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate applies defaults for anything unset, then performs strict
// validation on the configuration.
func (c *Config) Validate() error {
	c.applyDefaults()

	if c.Blackboard.Backend != BackendMemory && c.Blackboard.Backend != BackendRedis {
		return fmt.Errorf("invalid blackboard backend: %s (must be 'memory' or 'redis')", c.Blackboard.Backend)
	}

	if *c.LLM.Temperature < 0 || *c.LLM.Temperature > 1 {
		return fmt.Errorf("llm.temperature must be between 0 and 1, got %g", *c.LLM.Temperature)
	}
	if *c.LLM.MaxTokens < 1 {
		return fmt.Errorf("llm.max_tokens must be >= 1, got %d", *c.LLM.MaxTokens)
	}

	if *c.Conductor.MaxSteps < 1 {
		return fmt.Errorf("conductor.max_steps must be >= 1, got %d", *c.Conductor.MaxSteps)
	}
	if *c.Conductor.ConsensusMaxIterations < 1 {
		return fmt.Errorf("conductor.consensus_max_iterations must be >= 1, got %d", *c.Conductor.ConsensusMaxIterations)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging level: %s (must be 'debug', 'info', 'warn', or 'error')", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid logging format: %s (must be 'text' or 'json')", c.Logging.Format)
	}

	return nil
}

// applyEnv overlays environment variables onto the configuration.
// Environment always wins over file values.
func (c *Config) applyEnv() error {
	if v := os.Getenv("BATON_LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("BATON_CONDUCTOR_MODEL"); v != "" {
		c.LLM.ConductorModel = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("ANTHROPIC_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv("BATON_BACKEND"); v != "" {
		c.Blackboard.Backend = v
	}
	if v := os.Getenv("BATON_REDIS_URL"); v != "" {
		c.Blackboard.RedisURL = v
	}
	if v := os.Getenv("BATON_MAX_STEPS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid BATON_MAX_STEPS: %q", v)
		}
		c.Conductor.MaxSteps = &n
	}
	if v := os.Getenv("BATON_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	return nil
}

// Load reads and validates baton.yml from the specified path, overlaying
// environment variables before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := config.applyEnv(); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// LoadOrDefault loads the configuration file when it exists and falls back
// to defaults (still honoring environment overrides) when it does not.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		config := Default()
		if err := config.applyEnv(); err != nil {
			return nil, err
		}
		if err := config.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		return config, nil
	}
	return Load(path)
}
