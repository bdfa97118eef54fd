// Package config loads and validates agentcore configuration.
//
// Values are resolved in this order, later sources winning:
//
//  1. built-in defaults
//  2. the YAML file (./config.yaml unless AGENTCORE_CONFIG or an explicit path is given)
//  3. environment variables, including those loaded from a .env file
//
// Load finishes with Validate.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/agentcore/core"
	"github.com/hupe1980/agentcore/logging"
)

// DefaultPath is the configuration file used when no path is given.
const DefaultPath = "config.yaml"

// Config holds all application configuration.
type Config struct {
	Engine    EngineConfig    `yaml:"engine"`
	Log       LogConfig       `yaml:"log"`
	Server    ServerConfig    `yaml:"server"`
	LLM       LLMConfig       `yaml:"llm"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Sentry    SentryConfig    `yaml:"sentry"`
	Keys      KeysConfig      `yaml:"keys"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// EngineConfig configures the engine identity and limits.
type EngineConfig struct {
	Name string `yaml:"name"`
	// ID is the engine principal in text form. Empty means anonymous.
	ID                       string `yaml:"id"`
	DefaultAgent             string `yaml:"default_agent"`
	MaxModelCalls            int    `yaml:"max_model_calls"`
	MaxConcurrentInvocations int    `yaml:"max_concurrent_invocations"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"` // json or text
	AddSource bool   `yaml:"add_source"`
}

// ServerConfig configures the HTTP and MCP boundary.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`

	// RateLimit is the sustained requests per second per caller. Zero
	// disables rate limiting.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`

	MCP  bool       `yaml:"mcp"`
	Auth AuthConfig `yaml:"auth"`
}

// AuthConfig configures control plane tokens.
type AuthConfig struct {
	PrivateKeyPath string        `yaml:"private_key_path"`
	PublicKeyPath  string        `yaml:"public_key_path"`
	Expiration     time.Duration `yaml:"expiration"`
}

// LLMConfig selects the model backend.
type LLMConfig struct {
	// Provider is one of openai, anthropic or none.
	Provider    string   `yaml:"provider"`
	Model       string   `yaml:"model"`
	APIKey      string   `yaml:"api_key"`
	BaseURL     string   `yaml:"base_url"`
	MaxTokens   int64    `yaml:"max_tokens"`
	Temperature *float64 `yaml:"temperature"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Endpoint    string `yaml:"endpoint"`
	Insecure    bool   `yaml:"insecure"`
	ServiceName string `yaml:"service_name"`
}

// SentryConfig configures error reporting.
type SentryConfig struct {
	DSN              string  `yaml:"dsn"`
	Environment      string  `yaml:"environment"`
	TracesSampleRate float64 `yaml:"traces_sample_rate"`
}

// KeysConfig configures the local key client.
type KeysConfig struct {
	// Seed is the hex encoded root seed. Empty leaves the key client
	// unconfigured.
	Seed string `yaml:"seed"`
}

// SchedulerConfig configures the periodic agent run.
type SchedulerConfig struct {
	// Enabled sets the initial state; the scheduler can be toggled at runtime
	// with the start_scheduler and stop_scheduler proposals.
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	Agent    string        `yaml:"agent"`
	Prompt   string        `yaml:"prompt"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Engine: EngineConfig{
			Name: "AgentCore Engine",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Server: ServerConfig{
			Addr:            ":8042",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    5 * time.Minute,
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    1 << 20,
			RateLimit:       10,
			RateBurst:       20,
			MCP:             true,
			Auth: AuthConfig{
				Expiration: time.Hour,
			},
		},
		LLM: LLMConfig{
			Provider:  "none",
			MaxTokens: 4096,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "agentcore",
		},
		Sentry: SentryConfig{
			Environment: "development",
		},
		Scheduler: SchedulerConfig{
			Interval: time.Hour,
		},
	}
}

// Load reads configuration from path (or the default location), the
// environment and an optional .env file, then validates it. A missing file
// is an error only when the path was given explicitly.
func Load(path string) (Config, error) {
	// A .env file is optional; production won't have one.
	_ = godotenv.Load()

	explicit := path != ""
	if !explicit {
		if path = os.Getenv("AGENTCORE_CONFIG"); path != "" {
			explicit = true
		} else {
			path = DefaultPath
		}
	}

	cfg := Default()

	if err := loadFile(path, &cfg); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return Config{}, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Parse decodes YAML on top of the defaults and validates the result. The
// environment is not consulted.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from flags or environment
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	return nil
}

func (c *Config) applyEnv() {
	c.Engine.Name = envStr("AGENTCORE_ENGINE_NAME", c.Engine.Name)
	c.Engine.ID = envStr("AGENTCORE_ENGINE_ID", c.Engine.ID)
	c.Engine.DefaultAgent = envStr("AGENTCORE_DEFAULT_AGENT", c.Engine.DefaultAgent)
	c.Engine.MaxModelCalls = envInt("AGENTCORE_MAX_MODEL_CALLS", c.Engine.MaxModelCalls)
	c.Engine.MaxConcurrentInvocations = envInt("AGENTCORE_MAX_CONCURRENT_INVOCATIONS", c.Engine.MaxConcurrentInvocations)

	c.Log.Level = envStr("AGENTCORE_LOG_LEVEL", c.Log.Level)
	c.Log.Format = envStr("AGENTCORE_LOG_FORMAT", c.Log.Format)

	c.Server.Addr = envStr("AGENTCORE_SERVER_ADDR", c.Server.Addr)
	c.Server.ReadTimeout = envDuration("AGENTCORE_SERVER_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = envDuration("AGENTCORE_SERVER_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.RateLimit = envFloat("AGENTCORE_SERVER_RATE_LIMIT", c.Server.RateLimit)
	c.Server.RateBurst = envInt("AGENTCORE_SERVER_RATE_BURST", c.Server.RateBurst)
	c.Server.MCP = envBool("AGENTCORE_SERVER_MCP", c.Server.MCP)
	c.Server.Auth.PrivateKeyPath = envStr("AGENTCORE_JWT_PRIVATE_KEY", c.Server.Auth.PrivateKeyPath)
	c.Server.Auth.PublicKeyPath = envStr("AGENTCORE_JWT_PUBLIC_KEY", c.Server.Auth.PublicKeyPath)
	c.Server.Auth.Expiration = envDuration("AGENTCORE_JWT_EXPIRATION", c.Server.Auth.Expiration)

	c.LLM.Provider = envStr("AGENTCORE_LLM_PROVIDER", c.LLM.Provider)
	c.LLM.Model = envStr("AGENTCORE_LLM_MODEL", c.LLM.Model)
	c.LLM.BaseURL = envStr("AGENTCORE_LLM_BASE_URL", c.LLM.BaseURL)
	if c.LLM.APIKey == "" {
		switch c.LLM.Provider {
		case "openai":
			c.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		case "anthropic":
			c.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	}

	c.Telemetry.Endpoint = envStr("OTEL_EXPORTER_OTLP_ENDPOINT", c.Telemetry.Endpoint)
	c.Telemetry.ServiceName = envStr("OTEL_SERVICE_NAME", c.Telemetry.ServiceName)

	c.Sentry.DSN = envStr("SENTRY_DSN", c.Sentry.DSN)
	c.Sentry.Environment = envStr("SENTRY_ENVIRONMENT", c.Sentry.Environment)

	c.Keys.Seed = envStr("AGENTCORE_KEYS_SEED", c.Keys.Seed)

	c.Scheduler.Enabled = envBool("AGENTCORE_SCHEDULER_ENABLED", c.Scheduler.Enabled)
	c.Scheduler.Interval = envDuration("AGENTCORE_SCHEDULER_INTERVAL", c.Scheduler.Interval)
	c.Scheduler.Prompt = envStr("AGENTCORE_SCHEDULER_PROMPT", c.Scheduler.Prompt)
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	var errs []error

	if c.Engine.Name == "" {
		errs = append(errs, errors.New("engine.name is required"))
	}
	if c.Engine.ID != "" {
		if _, err := core.ParsePrincipal(c.Engine.ID); err != nil {
			errs = append(errs, fmt.Errorf("engine.id: %w", err))
		}
	}
	if c.Engine.MaxModelCalls < 0 || c.Engine.MaxConcurrentInvocations < 0 {
		errs = append(errs, errors.New("engine limits must not be negative"))
	}

	if _, err := logging.ParseLogLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		errs = append(errs, fmt.Errorf("log.format must be json or text, got %q", c.Log.Format))
	}

	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Server.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("server.max_body_bytes must be positive"))
	}
	if c.Server.RateLimit < 0 || (c.Server.RateLimit > 0 && c.Server.RateBurst <= 0) {
		errs = append(errs, errors.New("server.rate_limit must not be negative and needs a positive rate_burst"))
	}

	switch c.LLM.Provider {
	case "none", "":
	case "openai", "anthropic":
		if c.LLM.APIKey == "" {
			errs = append(errs, fmt.Errorf("llm.api_key is required for provider %s", c.LLM.Provider))
		}
	default:
		errs = append(errs, fmt.Errorf("llm.provider %q is not supported", c.LLM.Provider))
	}

	if c.Sentry.TracesSampleRate < 0 || c.Sentry.TracesSampleRate > 1 {
		errs = append(errs, errors.New("sentry.traces_sample_rate must be within [0, 1]"))
	}

	if c.Keys.Seed != "" {
		if _, err := c.Keys.SeedBytes(); err != nil {
			errs = append(errs, err)
		}
	}

	if c.Scheduler.Enabled || c.Scheduler.Prompt != "" {
		if c.Scheduler.Interval <= 0 {
			errs = append(errs, errors.New("scheduler.interval must be positive"))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}

	return nil
}

// SeedBytes decodes the hex seed.
func (k KeysConfig) SeedBytes() ([]byte, error) {
	seed, err := hex.DecodeString(strings.TrimSpace(k.Seed))
	if err != nil {
		return nil, fmt.Errorf("keys.seed: %w", err)
	}
	if len(seed) < 32 {
		return nil, errors.New("keys.seed must be at least 32 bytes")
	}
	return seed, nil
}

// LogLevel returns the parsed log level.
func (l LogConfig) LogLevel() logging.LogLevel {
	lvl, _ := logging.ParseLogLevel(l.Level)
	return lvl
}

// EnginePrincipal returns the configured engine identity.
func (e EngineConfig) EnginePrincipal() core.Principal {
	if e.ID == "" {
		return core.AnonymousPrincipal
	}
	p, err := core.ParsePrincipal(e.ID)
	if err != nil {
		return core.AnonymousPrincipal
	}
	return p
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func envFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
