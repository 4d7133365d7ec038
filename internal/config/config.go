package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata" // timezone names resolve on minimal images

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration for the Alcance assistant.
// It is loaded from ~/.alcance/config.yaml and can be overridden by environment variables.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	LLM       LLMConfig       `mapstructure:"llm" yaml:"llm"`
	Routing   RoutingConfig   `mapstructure:"routing" yaml:"routing"`
	Assistant AssistantConfig `mapstructure:"assistant" yaml:"assistant"`
	Usage     UsageConfig     `mapstructure:"usage" yaml:"usage"`
	Data      DataConfig      `mapstructure:"data" yaml:"data"`
	Google    GoogleConfig    `mapstructure:"google" yaml:"google"`
	Auth      AuthConfig      `mapstructure:"auth" yaml:"auth"`
	Stripe    StripeConfig    `mapstructure:"stripe" yaml:"stripe"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" yaml:"scheduler"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	// AllowedOrigins are accepted on the websocket upgrade. Empty allows same-origin only.
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

// LLMConfig contains the chat-completion providers keyed by backend name.
type LLMConfig struct {
	Providers map[string]ProviderConfig `mapstructure:"providers" yaml:"providers"`
}

// ProviderConfig contains settings for one OpenAI-compatible endpoint.
type ProviderConfig struct {
	Endpoint string        `mapstructure:"endpoint" yaml:"endpoint"`
	APIKey   string        `mapstructure:"api_key" yaml:"api_key"`
	Model    string        `mapstructure:"model" yaml:"model"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// TargetConfig names a backend and model.
type TargetConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend"`
	Model   string `mapstructure:"model" yaml:"model"`
}

// RoutingConfig configures the routing policy.
type RoutingConfig struct {
	Economy  TargetConfig `mapstructure:"economy" yaml:"economy"`
	Premium  TargetConfig `mapstructure:"premium" yaml:"premium"`
	Keywords []string     `mapstructure:"keywords" yaml:"keywords"`
}

// AssistantConfig configures command processing.
type AssistantConfig struct {
	// Variant selects create_task ("tasks") or create_note ("notes").
	Variant         string        `mapstructure:"variant" yaml:"variant"`
	ProviderTimeout time.Duration `mapstructure:"provider_timeout" yaml:"provider_timeout"`
	ToolTimeout     time.Duration `mapstructure:"tool_timeout" yaml:"tool_timeout"`
	// UnknownTools is "drop" (log and skip) or "surface" (add a visible fragment).
	UnknownTools    string `mapstructure:"unknown_tools" yaml:"unknown_tools"`
	Timezone        string `mapstructure:"timezone" yaml:"timezone"`
	AppointmentHour int    `mapstructure:"appointment_hour" yaml:"appointment_hour"`
}

// UsageConfig configures the daily command limiter.
type UsageConfig struct {
	// Backend is "sqlite" or "redis".
	Backend  string      `mapstructure:"backend" yaml:"backend"`
	Redis    RedisConfig `mapstructure:"redis" yaml:"redis"`
	EcoDaily int         `mapstructure:"eco_daily" yaml:"eco_daily"`
	// ProDaily of 0 means unlimited.
	ProDaily int  `mapstructure:"pro_daily" yaml:"pro_daily"`
	FailOpen bool `mapstructure:"fail_open" yaml:"fail_open"`
}

// RedisConfig holds configuration for the Redis connection.
type RedisConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db"`
}

// DataConfig locates the SQLite store.
type DataConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// GoogleConfig holds the OAuth client used for sign-in and Workspace access.
type GoogleConfig struct {
	ClientID     string `mapstructure:"client_id" yaml:"client_id"`
	ClientSecret string `mapstructure:"client_secret" yaml:"client_secret"`
	RedirectURL  string `mapstructure:"redirect_url" yaml:"redirect_url"`
}

// AuthConfig configures sessions and token storage.
type AuthConfig struct {
	SessionSecret string        `mapstructure:"session_secret" yaml:"session_secret"`
	SessionTTL    time.Duration `mapstructure:"session_ttl" yaml:"session_ttl"`
	// TokenKey is a 32-byte hex key sealing stored OAuth tokens.
	TokenKey string `mapstructure:"token_key" yaml:"token_key"`
}

// StripeConfig configures checkout and webhooks.
type StripeConfig struct {
	SecretKey           string `mapstructure:"secret_key" yaml:"secret_key"`
	WebhookSecret       string `mapstructure:"webhook_secret" yaml:"webhook_secret"`
	PriceIDPro          string `mapstructure:"price_id_pro" yaml:"price_id_pro"`
	PriceIDEco          string `mapstructure:"price_id_eco" yaml:"price_id_eco"`
	AppURL              string `mapstructure:"app_url" yaml:"app_url"`
	ReferralRewardCents int64  `mapstructure:"referral_reward_cents" yaml:"referral_reward_cents"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	File  string `mapstructure:"file" yaml:"file"`
	Color bool   `mapstructure:"color" yaml:"color"`
}

// SchedulerConfig configures maintenance jobs.
type SchedulerConfig struct {
	PruneSpec     string `mapstructure:"prune_spec" yaml:"prune_spec"`
	RetentionDays int    `mapstructure:"retention_days" yaml:"retention_days"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	alcanceDir := filepath.Join(homeDir, ".alcance")

	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		LLM: LLMConfig{
			Providers: map[string]ProviderConfig{
				"deepseek": {
					Endpoint: "https://api.deepseek.com",
					Model:    "deepseek-chat",
					Timeout:  30 * time.Second,
				},
				"openai": {
					Endpoint: "https://api.openai.com/v1",
					Model:    "gpt-4o-mini",
					Timeout:  30 * time.Second,
				},
			},
		},
		Routing: RoutingConfig{
			Economy: TargetConfig{Backend: "deepseek", Model: "deepseek-chat"},
			Premium: TargetConfig{Backend: "openai", Model: "gpt-4o-mini"},
			Keywords: []string{
				"crear", "nueva", "nuevo", "agendar", "cita", "reunión",
				"tarea", "recordatorio", "email", "correo", "plantilla",
			},
		},
		Assistant: AssistantConfig{
			Variant:         "tasks",
			ProviderTimeout: 30 * time.Second,
			ToolTimeout:     10 * time.Second,
			UnknownTools:    "drop",
			Timezone:        "Europe/Madrid",
			AppointmentHour: 10,
		},
		Usage: UsageConfig{
			Backend:  "sqlite",
			Redis:    RedisConfig{Addr: "localhost:6379"},
			EcoDaily: 50,
			ProDaily: 0,
			FailOpen: true,
		},
		Data: DataConfig{
			Dir: alcanceDir,
		},
		Google: GoogleConfig{
			RedirectURL: "http://localhost:8080/api/auth/google/callback",
		},
		Auth: AuthConfig{
			SessionTTL: 30 * 24 * time.Hour,
		},
		Stripe: StripeConfig{
			AppURL:              "http://localhost:3000",
			ReferralRewardCents: 100,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  filepath.Join(alcanceDir, "logs", "alcance.log"),
			Color: true,
		},
		Scheduler: SchedulerConfig{
			PruneSpec:     "@daily",
			RetentionDays: 7,
		},
	}
}

// DefaultPath returns ~/.alcance/config.yaml.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".alcance", "config.yaml"), nil
}

// Load reads configuration from the default location and merges it with
// environment variables. If no config file exists, one is created with
// default values.
func Load() (*Config, error) {
	path, err := DefaultPath()
	if err != nil {
		return nil, err
	}
	return LoadFromPath(path)
}

// LoadFromPath reads configuration from a specific file path and merges with
// environment variables. If the file doesn't exist, it creates one with default values.
func LoadFromPath(path string) (*Config, error) {
	path = expandPath(path)

	configDir := filepath.Dir(path)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := writeConfigFile(path, Default()); err != nil {
			return nil, fmt.Errorf("failed to write default config: %w", err)
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := setDefaults(v, Default()); err != nil {
		return nil, err
	}

	// Example: ALCANCE_LLM_PROVIDERS_OPENAI_API_KEY
	v.SetEnvPrefix("ALCANCE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Data.Dir = expandPath(cfg.Data.Dir)
	cfg.Logging.File = expandPath(cfg.Logging.File)
	cfg.applyEnvFallbacks()

	return &cfg, nil
}

// applyEnvFallbacks fills empty secrets from the well-known variables the
// hosted deployment sets.
func (c *Config) applyEnvFallbacks() {
	fallback := func(dst *string, env string) {
		if *dst == "" {
			*dst = os.Getenv(env)
		}
	}

	if c.LLM.Providers == nil {
		c.LLM.Providers = make(map[string]ProviderConfig)
	}
	for name, env := range map[string]string{
		"openai":   "OPENAI_API_KEY",
		"deepseek": "DEEPSEEK_API_KEY",
	} {
		p := c.LLM.Providers[name]
		fallback(&p.APIKey, env)
		if p.APIKey != "" || p.Endpoint != "" || p.Model != "" {
			c.LLM.Providers[name] = p
		}
	}

	fallback(&c.Stripe.SecretKey, "STRIPE_SECRET_KEY")
	fallback(&c.Stripe.WebhookSecret, "STRIPE_WEBHOOK_SECRET")
	fallback(&c.Stripe.PriceIDPro, "STRIPE_PRICE_ID_PRO")
	fallback(&c.Stripe.PriceIDEco, "STRIPE_PRICE_ID_ECO")
	fallback(&c.Google.ClientID, "GOOGLE_CLIENT_ID")
	fallback(&c.Google.ClientSecret, "GOOGLE_CLIENT_SECRET")
	fallback(&c.Auth.SessionSecret, "SESSION_SECRET")
	if url := os.Getenv("APP_URL"); url != "" {
		c.Stripe.AppURL = url
	}
}

// setDefaults registers every value of d with v, so keys missing from the
// file keep their defaults and can still be bound from the environment.
func setDefaults(v *viper.Viper, d *Config) error {
	data, err := yaml.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to marshal defaults: %w", err)
	}
	var tree map[string]interface{}
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return fmt.Errorf("failed to decode defaults: %w", err)
	}
	registerDefaults(v, "", tree)
	return nil
}

func registerDefaults(v *viper.Viper, prefix string, tree map[string]interface{}) {
	for key, val := range tree {
		if prefix != "" {
			key = prefix + "." + key
		}
		if sub, ok := val.(map[string]interface{}); ok && len(sub) > 0 {
			registerDefaults(v, key, sub)
			continue
		}
		v.SetDefault(key, val)
	}
}

// Save writes the current configuration to the default config file location.
func (c *Config) Save() error {
	path, err := DefaultPath()
	if err != nil {
		return err
	}
	return c.SaveToPath(path)
}

// SaveToPath writes the current configuration to a specific file path.
func (c *Config) SaveToPath(path string) error {
	path = expandPath(path)

	configDir := filepath.Dir(path)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return writeConfigFile(path, c)
}

// EnsureDirectories creates the data and log directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Data.Dir}
	if c.Logging.File != "" {
		dirs = append(dirs, filepath.Dir(c.Logging.File))
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// Location returns the configured timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	if c.Assistant.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Assistant.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Validate checks the configuration for common errors and inconsistencies.
func (c *Config) Validate() error {
	for _, t := range []struct {
		name   string
		target TargetConfig
	}{
		{"routing.economy", c.Routing.Economy},
		{"routing.premium", c.Routing.Premium},
	} {
		if t.target.Backend == "" {
			return fmt.Errorf("%s.backend cannot be empty", t.name)
		}
		if _, ok := c.LLM.Providers[t.target.Backend]; !ok {
			return fmt.Errorf("%s backend '%s' not found in llm.providers", t.name, t.target.Backend)
		}
	}

	switch c.Assistant.Variant {
	case "tasks", "notes":
	default:
		return fmt.Errorf("invalid assistant.variant '%s', must be 'tasks' or 'notes'", c.Assistant.Variant)
	}

	switch c.Assistant.UnknownTools {
	case "drop", "surface":
	default:
		return fmt.Errorf("invalid assistant.unknown_tools '%s', must be 'drop' or 'surface'", c.Assistant.UnknownTools)
	}

	if c.Assistant.AppointmentHour < 0 || c.Assistant.AppointmentHour > 23 {
		return fmt.Errorf("assistant.appointment_hour must be between 0 and 23")
	}

	if c.Assistant.Timezone != "" {
		if _, err := time.LoadLocation(c.Assistant.Timezone); err != nil {
			return fmt.Errorf("invalid assistant.timezone '%s': %w", c.Assistant.Timezone, err)
		}
	}

	switch c.Usage.Backend {
	case "sqlite":
	case "redis":
		if c.Usage.Redis.Addr == "" {
			return fmt.Errorf("usage.redis.addr cannot be empty when usage.backend is redis")
		}
	default:
		return fmt.Errorf("invalid usage.backend '%s', must be 'sqlite' or 'redis'", c.Usage.Backend)
	}

	if c.Usage.EcoDaily < 0 || c.Usage.ProDaily < 0 {
		return fmt.Errorf("usage daily limits cannot be negative")
	}

	if c.Scheduler.RetentionDays < 1 {
		return fmt.Errorf("scheduler.retention_days must be at least 1")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level '%s', must be one of: debug, info, warn, error", c.Logging.Level)
	}

	return nil
}

// Redacted returns a copy with secrets masked, for display.
func (c *Config) Redacted() *Config {
	out := *c
	out.LLM.Providers = make(map[string]ProviderConfig, len(c.LLM.Providers))
	for name, p := range c.LLM.Providers {
		p.APIKey = mask(p.APIKey)
		out.LLM.Providers[name] = p
	}
	out.Usage.Redis.Password = mask(c.Usage.Redis.Password)
	out.Google.ClientSecret = mask(c.Google.ClientSecret)
	out.Auth.SessionSecret = mask(c.Auth.SessionSecret)
	out.Auth.TokenKey = mask(c.Auth.TokenKey)
	out.Stripe.SecretKey = mask(c.Stripe.SecretKey)
	out.Stripe.WebhookSecret = mask(c.Stripe.WebhookSecret)
	return &out
}

// Marshal renders the config as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

// writeConfigFile writes a Config struct to a YAML file.
func writeConfigFile(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// expandPath expands ~ to the user's home directory in a path string.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[1:])
	}
	return path
}
