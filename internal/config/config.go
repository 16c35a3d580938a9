// Package config provides configuration for the agents service.
//
// Settings are resolved once at startup: built-in defaults, then an optional
// YAML file, then environment variables. Secrets are only read from the
// environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// EnvGogoMode is the environment variable name for mode selection.
	EnvGogoMode = "GOGO_MODE"
	// ModeMock forces the mock LLM provider.
	ModeMock = "MOCK"
)

// Environment variables holding secrets or required recipients.
const (
	EnvAnthropicKey  = "ANTHROPIC_API_KEY"
	EnvOpenAIKey     = "OPENAI_API_KEY"
	EnvNotionKey     = "NOTION_API_KEY"
	EnvResendKey     = "RESEND_API_KEY"
	EnvLeadNotify    = "LEAD_NOTIFY_EMAIL"
	EnvSupabaseURL   = "SUPABASE_URL"
	EnvSupabaseKey   = "SUPABASE_SERVICE_ROLE_KEY"
	EnvDatabaseURL   = "DATABASE_URL"
	EnvConfigFile    = "CONFIG_FILE"
	defaultSQLiteDSN = "file:agents.db?cache=shared&mode=rwc"
)

var trackedEnv = []string{
	EnvAnthropicKey, EnvOpenAIKey, EnvNotionKey, EnvResendKey,
	EnvLeadNotify, EnvSupabaseURL, EnvSupabaseKey, EnvDatabaseURL,
}

// Config holds the service configuration.
type Config struct {
	// Server settings
	HTTPPort         int      `yaml:"http_port"`
	AgentTimeoutMS   int      `yaml:"agent_timeout_ms"`
	CORSAllowOrigins []string `yaml:"cors_allow_origins"`

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Lead scoring rules; empty uses the built-in policy.
	PolicyFile string `yaml:"policy_file"`

	Store     StoreConfig     `yaml:"store"`
	LLM       LLMConfig       `yaml:"llm"`
	Knowledge KnowledgeConfig `yaml:"knowledge"`
	Email     EmailConfig     `yaml:"email"`

	present map[string]bool
}

// StoreConfig selects the execution log backend.
type StoreConfig struct {
	Backend   string `yaml:"backend"`
	Driver    string `yaml:"driver"`
	DSN       string `yaml:"-"`
	BoltPath  string `yaml:"bolt_path"`
	RESTURL   string `yaml:"rest_url"`
	RESTKey   string `yaml:"-"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

// LLMConfig configures the completion provider.
type LLMConfig struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
	TimeoutMS   int     `yaml:"timeout_ms"`
	APIKey      string  `yaml:"-"`
}

// KnowledgeConfig configures the Notion client.
type KnowledgeConfig struct {
	BaseURL     string `yaml:"base_url"`
	ResultLimit int    `yaml:"result_limit"`
	TimeoutMS   int    `yaml:"timeout_ms"`
	APIKey      string `yaml:"-"`
}

// EmailConfig configures lead notifications.
type EmailConfig struct {
	BaseURL   string `yaml:"base_url"`
	From      string `yaml:"from"`
	NotifyTo  string `yaml:"-"`
	TimeoutMS int    `yaml:"timeout_ms"`
	APIKey    string `yaml:"-"`
}

// LoadDotEnv loads .env files into the process environment. Missing files are
// skipped and existing variables are never overwritten.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env.local", ".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
	}
	return nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		HTTPPort:       8080,
		AgentTimeoutMS: 60000,
		LogLevel:       "info",
		LogFormat:      "text",
		Store: StoreConfig{
			Backend:   "sql",
			Driver:    "sqlite3",
			DSN:       defaultSQLiteDSN,
			BoltPath:  "agents.bolt",
			TimeoutMS: 10000,
		},
		LLM: LLMConfig{
			Provider:    "anthropic",
			MaxTokens:   1024,
			Temperature: 0.7,
			TimeoutMS:   30000,
		},
		Knowledge: KnowledgeConfig{
			ResultLimit: 3,
			TimeoutMS:   15000,
		},
		Email: EmailConfig{
			From:      "Iris <leads@example.com>",
			TimeoutMS: 10000,
		},
		present: map[string]bool{},
	}
}

// Load resolves the configuration. path names an optional YAML file; when
// empty, CONFIG_FILE is consulted.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvConfigFile)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.HTTPPort = getEnvInt("HTTP_PORT", c.HTTPPort)
	c.AgentTimeoutMS = getEnvInt("AGENT_TIMEOUT_MS", c.AgentTimeoutMS)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)
	c.PolicyFile = getEnv("LEAD_POLICY_FILE", c.PolicyFile)
	if origins := getEnv("CORS_ALLOW_ORIGINS", ""); origins != "" {
		c.CORSAllowOrigins = splitList(origins)
	}

	c.Store.Backend = getEnv("STORE_BACKEND", c.Store.Backend)
	c.Store.Driver = getEnv("DATABASE_DRIVER", c.Store.Driver)
	c.Store.DSN = getEnv(EnvDatabaseURL, c.Store.DSN)
	c.Store.BoltPath = getEnv("BOLT_PATH", c.Store.BoltPath)
	c.Store.RESTURL = getEnv(EnvSupabaseURL, c.Store.RESTURL)
	c.Store.RESTKey = getEnv(EnvSupabaseKey, c.Store.RESTKey)
	c.Store.TimeoutMS = getEnvInt("STORE_TIMEOUT_MS", c.Store.TimeoutMS)

	c.LLM.Provider = strings.ToLower(getEnv("LLM_PROVIDER", c.LLM.Provider))
	c.LLM.Model = getEnv("LLM_MODEL", c.LLM.Model)
	c.LLM.BaseURL = getEnv("LLM_BASE_URL", c.LLM.BaseURL)
	c.LLM.MaxTokens = getEnvInt("LLM_MAX_TOKENS", c.LLM.MaxTokens)
	c.LLM.Temperature = getEnvFloat("LLM_TEMPERATURE", c.LLM.Temperature)
	c.LLM.TimeoutMS = getEnvInt("LLM_TIMEOUT_MS", c.LLM.TimeoutMS)
	if os.Getenv(EnvGogoMode) == ModeMock {
		c.LLM.Provider = "mock"
	}
	if env := c.LLMKeyEnv(); env != "" {
		c.LLM.APIKey = os.Getenv(env)
	}

	c.Knowledge.BaseURL = getEnv("NOTION_BASE_URL", c.Knowledge.BaseURL)
	c.Knowledge.ResultLimit = getEnvInt("NOTION_RESULT_LIMIT", c.Knowledge.ResultLimit)
	c.Knowledge.TimeoutMS = getEnvInt("KNOWLEDGE_TIMEOUT_MS", c.Knowledge.TimeoutMS)
	c.Knowledge.APIKey = os.Getenv(EnvNotionKey)

	c.Email.BaseURL = getEnv("RESEND_BASE_URL", c.Email.BaseURL)
	c.Email.From = getEnv("LEAD_FROM_EMAIL", c.Email.From)
	c.Email.TimeoutMS = getEnvInt("EMAIL_TIMEOUT_MS", c.Email.TimeoutMS)
	c.Email.NotifyTo = os.Getenv(EnvLeadNotify)
	c.Email.APIKey = os.Getenv(EnvResendKey)

	c.present = make(map[string]bool, len(trackedEnv))
	for _, name := range trackedEnv {
		c.present[name] = os.Getenv(name) != ""
	}
}

// Validate checks settings that would fail later at startup.
func (c *Config) Validate() error {
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid http port: %d", c.HTTPPort)
	}
	if c.AgentTimeoutMS < 0 {
		return fmt.Errorf("invalid agent timeout: %dms", c.AgentTimeoutMS)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("invalid llm temperature: %g", c.LLM.Temperature)
	}
	switch c.LLM.Provider {
	case "anthropic", "openai", "mock":
	default:
		return fmt.Errorf("unsupported llm provider: %s", c.LLM.Provider)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unsupported log format: %s", c.LogFormat)
	}
	return nil
}

// Present reports whether a tracked environment variable was set at load time.
func (c *Config) Present(name string) bool {
	return c.present[name]
}

// LLMKeyEnv names the API key variable of the configured provider, or "" for mock.
func (c *Config) LLMKeyEnv() string {
	switch c.LLM.Provider {
	case "anthropic":
		return EnvAnthropicKey
	case "openai":
		return EnvOpenAIKey
	}
	return ""
}

// NovaEnv lists the variables the content agent needs.
func (c *Config) NovaEnv() []string {
	if key := c.LLMKeyEnv(); key != "" {
		return []string{key, EnvNotionKey}
	}
	return []string{EnvNotionKey}
}

// IrisEnv lists the variables the intake agent needs.
func (c *Config) IrisEnv() []string {
	return []string{EnvResendKey, EnvLeadNotify}
}

// AgentTimeout returns the per-invocation deadline.
func (c *Config) AgentTimeout() time.Duration {
	return Millis(c.AgentTimeoutMS)
}

// Millis converts a millisecond setting.
func Millis(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
