package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

const envPrefix = "WELLNESS"

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Storage     StorageConfig             `json:"storage"`
	Databases   map[string]DatabaseConfig `json:"databases"`
	Redis       RedisConfig               `json:"redis"`
	RateLimit   RateLimitConfig           `json:"rate_limit"`
	Limits      LimitsConfig              `json:"limits"`
	CORS        CORSConfig                `json:"cors"`
	// Providers are tried in slice order.
	Providers []ProviderConfig `json:"providers"`

	Env EnvConfig `json:"-"`
}

type BasicConfig struct {
	ServerAddress          string `json:"server_address"`
	DevMode                bool   `json:"dev_mode"`
	ProviderTimeoutSeconds int    `json:"provider_timeout_seconds"`
	// ProviderQPS caps outbound provider calls process-wide; 0 disables the cap.
	ProviderQPS         float64 `json:"provider_qps"`
	SessionIdleMinutes  int     `json:"session_idle_minutes"`
	WorkerIdleSeconds   int     `json:"worker_idle_seconds"`
	SweepIntervalSecond int     `json:"sweep_interval_seconds"`
}

type StorageConfig struct {
	// Driver is one of sqlite3, mysql, redis, memory.
	Driver string `json:"driver"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type RateLimitConfig struct {
	MaxRequests   int `json:"max_requests"`
	WindowSeconds int `json:"window_seconds"`
}

type LimitsConfig struct {
	MaxMessagesPerConversation int `json:"max_messages_per_conversation"`
	MaxContextMessages         int `json:"max_context_messages"`
	MaxConversations           int `json:"max_conversations"`
}

type CORSConfig struct {
	AllowedOrigins []string `json:"allowed_origins"`
}

type ProviderConfig struct {
	Name string `json:"name"`
	// Kind selects the adapter: openai, claude, gemini or ollama.
	Kind      string `json:"kind"`
	BaseURL   string `json:"base_url"`
	Model     string `json:"model"`
	APIKey    string `json:"api_key"`
	APIKeyEnv string `json:"api_key_env"`
	MaxTokens int    `json:"max_tokens"`
}

// EnvConfig holds values that only come from the environment (prefix WELLNESS_).
type EnvConfig struct {
	PrimaryAPIKey   string `envconfig:"PRIMARY_API_KEY"`
	SecondaryAPIKey string `envconfig:"SECONDARY_API_KEY"`
	ProfileSecret   string `envconfig:"PROFILE_SECRET"`
	ServerAddress   string `envconfig:"SERVER_ADDRESS"`
	StorageDriver   string `envconfig:"STORAGE_DRIVER"`
	DevMode         bool   `envconfig:"DEV_MODE"`
}

// Default returns a configuration usable without any config file.
func Default() *Config {
	cfg := &Config{
		Databases: map[string]DatabaseConfig{
			"sqlite3": {DSN: "data/wellness.db"},
		},
		Providers: []ProviderConfig{
			{Name: "openai", Kind: "openai", Model: "gpt-4o-mini"},
			{Name: "gemini", Kind: "gemini", Model: "gemini-2.0-flash"},
		},
	}
	cfg.applyDefaults()
	return cfg
}

// Load reads configuration from the provided path (defaults to config.json) and applies
// environment overrides. A missing default config file is not an error.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	cfg := Default()
	file, err := os.Open(absPath)
	switch {
	case err == nil:
		defer file.Close()
		cfg = &Config{}
		if err := json.NewDecoder(file).Decode(cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}

	if err := envconfig.Process(envPrefix, &cfg.Env); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}
	cfg.applyEnv()
	cfg.applyDefaults()

	if sqliteCfg, ok := cfg.Databases["sqlite3"]; ok && sqliteCfg.DSN != "" && sqliteCfg.DSN != ":memory:" && !filepath.IsAbs(sqliteCfg.DSN) {
		sqliteCfg.DSN = filepath.Join(filepath.Dir(absPath), sqliteCfg.DSN)
		cfg.Databases["sqlite3"] = sqliteCfg
	}

	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() {
	if c.Env.ServerAddress != "" {
		c.BasicConfig.ServerAddress = c.Env.ServerAddress
	}
	if c.Env.StorageDriver != "" {
		c.Storage.Driver = c.Env.StorageDriver
	}
	if c.Env.DevMode {
		c.BasicConfig.DevMode = true
	}
}

func (c *Config) applyDefaults() {
	if c.BasicConfig.ServerAddress == "" {
		c.BasicConfig.ServerAddress = ":8090"
	}
	if c.BasicConfig.ProviderTimeoutSeconds <= 0 {
		c.BasicConfig.ProviderTimeoutSeconds = 25
	}
	if c.BasicConfig.SessionIdleMinutes <= 0 {
		c.BasicConfig.SessionIdleMinutes = 30
	}
	if c.BasicConfig.WorkerIdleSeconds <= 0 {
		c.BasicConfig.WorkerIdleSeconds = 60
	}
	if c.BasicConfig.SweepIntervalSecond <= 0 {
		c.BasicConfig.SweepIntervalSecond = 60
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "sqlite3"
	}
	if c.RateLimit.MaxRequests <= 0 {
		c.RateLimit.MaxRequests = 30
	}
	if c.RateLimit.WindowSeconds <= 0 {
		c.RateLimit.WindowSeconds = 60
	}
	if c.Limits.MaxMessagesPerConversation <= 0 {
		c.Limits.MaxMessagesPerConversation = 50
	}
	if c.Limits.MaxContextMessages <= 0 {
		c.Limits.MaxContextMessages = 10
	}
	if c.Limits.MaxConversations <= 0 {
		c.Limits.MaxConversations = 10
	}
	for i := range c.Providers {
		p := &c.Providers[i]
		p.Kind = strings.ToLower(strings.TrimSpace(p.Kind))
		if p.Name == "" {
			p.Name = p.Kind
		}
	}
}

// Validate reports configuration that can never work.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Storage.Driver) {
	case "sqlite", "sqlite3", "mysql":
		if _, ok := c.Databases[normalizeDriver(c.Storage.Driver)]; !ok {
			return fmt.Errorf("database config for %s not found", c.Storage.Driver)
		}
	case "redis", "memory":
	default:
		return fmt.Errorf("unsupported storage driver: %s", c.Storage.Driver)
	}
	if c.Limits.MaxContextMessages > c.Limits.MaxMessagesPerConversation {
		return fmt.Errorf("max_context_messages (%d) exceeds max_messages_per_conversation (%d)",
			c.Limits.MaxContextMessages, c.Limits.MaxMessagesPerConversation)
	}
	seen := make(map[string]struct{}, len(c.Providers))
	for _, p := range c.Providers {
		if p.Kind == "" {
			return fmt.Errorf("provider %q: kind is required", p.Name)
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("provider %q configured twice", p.Name)
		}
		seen[p.Name] = struct{}{}
	}
	return nil
}

// Credential resolves the API key for the provider at position idx. Explicit keys win,
// then the provider's api_key_env, then the primary/secondary environment keys.
func (c *Config) Credential(idx int) string {
	if idx < 0 || idx >= len(c.Providers) {
		return ""
	}
	p := c.Providers[idx]
	if p.APIKey != "" {
		return p.APIKey
	}
	if p.APIKeyEnv != "" {
		return strings.TrimSpace(os.Getenv(p.APIKeyEnv))
	}
	switch idx {
	case 0:
		return c.Env.PrimaryAPIKey
	case 1:
		return c.Env.SecondaryAPIKey
	}
	return ""
}

// StorageDriver returns the normalized storage driver name.
func (c *Config) StorageDriver() string {
	return normalizeDriver(c.Storage.Driver)
}

func normalizeDriver(d string) string {
	d = strings.ToLower(strings.TrimSpace(d))
	if d == "sqlite" {
		return "sqlite3"
	}
	return d
}
