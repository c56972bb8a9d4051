// File: internal/config/config.go
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev  bool
	Role string // api | worker | all
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type HTTPConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	RateLimitPerMin int           `yaml:"rate_limit_per_min"` // per org, 0 disables
}

type AdminConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type DatabaseConfig struct {
	URL           string `yaml:"url"`
	MaxConns      int32  `yaml:"max_conns"`
	AutoMigrate   bool   `yaml:"auto_migrate"`
	SeedPlans     bool   `yaml:"seed_plans"`
	MigrationsDir string `yaml:"migrations_dir"` // empty uses the embedded set
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"` // plan cache TTL
}

type SecurityConfig struct {
	EncryptionKey string `yaml:"encryption_key"` // 32 bytes, AES-256 for webhook secrets
}

// LaneConfig configures one work-queue lane.
type LaneConfig struct {
	Concurrency    int           `yaml:"concurrency"`
	MaxAttempts    int           `yaml:"max_attempts"`
	BackoffBase    time.Duration `yaml:"backoff_base"`
	BackoffMax     time.Duration `yaml:"backoff_max"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	Lease          time.Duration `yaml:"lease"`
	HandlerTimeout time.Duration `yaml:"handler_timeout"` // must stay below lease
	RatePerSec     float64       `yaml:"rate_per_sec"`    // 0 disables
	RateBurst      int           `yaml:"rate_burst"`
}

type QueueConfig struct {
	Prefix              string        `yaml:"prefix"`
	MaintenanceInterval time.Duration `yaml:"maintenance_interval"`
	AIJobs              LaneConfig    `yaml:"ai_jobs"`
	Webhooks            LaneConfig    `yaml:"webhooks"`
}

type WebhookConfig struct {
	Timeout         time.Duration `yaml:"timeout"`
	UserAgent       string        `yaml:"user_agent"`
	MaxResponseBody int64         `yaml:"max_response_body"`
}

type AIConfig struct {
	Provider        string        `yaml:"provider"` // mock | noop | openai | gemini | multi
	OpenAIKey       string        `yaml:"openai_key"`
	OpenAIBaseURL   string        `yaml:"openai_base_url"`
	GeminiKey       string        `yaml:"gemini_key"`
	DefaultModel    string        `yaml:"default_model"`
	GeminiModel     string        `yaml:"gemini_model"`
	ConcurrentLimit int           `yaml:"concurrent_limit"` // max concurrent provider calls
	MaxInputTokens  int           `yaml:"max_input_tokens"`
	MockDelayScale  float64       `yaml:"mock_delay_scale"` // multiplies mock handler delays
	CallTimeout     time.Duration `yaml:"call_timeout"`
}

type Config struct {
	Log      LogConfig      `yaml:"log"`
	HTTP     HTTPConfig     `yaml:"http"`
	Admin    AdminConfig    `yaml:"admin"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Security SecurityConfig `yaml:"security"`
	Queue    QueueConfig    `yaml:"queue"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	AI       AIConfig       `yaml:"ai"`

	Runtime RuntimeConfig `yaml:"-"`
}

// Flags are the command-line switches shared by the binaries.
type Flags struct {
	ConfigPath string
	EnvFile    string
	Dev        bool
	Role       string
}

func ParseFlags() Flags {
	var f Flags
	flag.StringVar(&f.ConfigPath, "config", "config.yaml", "path to config yaml")
	flag.StringVar(&f.EnvFile, "env", ".env", "optional dotenv file loaded before the config")
	flag.BoolVar(&f.Dev, "dev", false, "development mode")
	flag.StringVar(&f.Role, "role", "all", "process role: api | worker | all")
	flag.Parse()
	return f
}

// LoadConfig reads the YAML file at path, expanding ${VAR} references from the
// environment (after loading envFile when it exists), applies defaults and validates.
func LoadConfig(f Flags) (*Config, error) {
	if f.EnvFile != "" {
		if err := godotenv.Load(f.EnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load env file: %w", err)
		}
	}
	b, err := os.ReadFile(f.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(b)
	if err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = f.Dev
	cfg.Runtime.Role = f.Role
	if cfg.Runtime.Role == "" {
		cfg.Runtime.Role = "all"
	}
	switch cfg.Runtime.Role {
	case "api", "worker", "all":
	default:
		return nil, fmt.Errorf("unknown role %q", cfg.Runtime.Role)
	}
	return cfg, nil
}

// Parse decodes raw YAML, applies defaults and validates.
func Parse(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.HTTP.Port <= 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.HTTP.ReadTimeout <= 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout <= 0 {
		cfg.HTTP.WriteTimeout = 30 * time.Second
	}
	if cfg.HTTP.RequestTimeout <= 0 {
		cfg.HTTP.RequestTimeout = 20 * time.Second
	}
	if cfg.Admin.TokenTTL <= 0 {
		cfg.Admin.TokenTTL = 12 * time.Hour
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 20
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)

	if cfg.Queue.Prefix == "" {
		cfg.Queue.Prefix = "lk:q"
	}
	if cfg.Queue.MaintenanceInterval <= 0 {
		cfg.Queue.MaintenanceInterval = 15 * time.Second
	}
	laneDefaults(&cfg.Queue.AIJobs, 5, 3, 2*time.Second, time.Hour, 10*time.Minute)
	laneDefaults(&cfg.Queue.Webhooks, 10, 5, time.Second, 5*time.Minute, 2*time.Minute)

	if cfg.Webhook.Timeout <= 0 {
		cfg.Webhook.Timeout = 30 * time.Second
	}
	if cfg.Webhook.UserAgent == "" {
		cfg.Webhook.UserAgent = "LaunchKit-Webhook/1.0"
	}
	if cfg.Webhook.MaxResponseBody <= 0 {
		cfg.Webhook.MaxResponseBody = 64 << 10
	}

	if cfg.AI.Provider == "" {
		cfg.AI.Provider = "mock"
	}
	if cfg.AI.ConcurrentLimit <= 0 {
		cfg.AI.ConcurrentLimit = 16
	}
	if cfg.AI.DefaultModel == "" {
		cfg.AI.DefaultModel = "gpt-4o-mini"
	}
	if cfg.AI.GeminiModel == "" {
		cfg.AI.GeminiModel = "gemini-2.0-flash"
	}
	if cfg.AI.MaxInputTokens <= 0 {
		cfg.AI.MaxInputTokens = 16000
	}
	if cfg.AI.MockDelayScale <= 0 {
		cfg.AI.MockDelayScale = 1
	}
	if cfg.AI.CallTimeout <= 0 {
		cfg.AI.CallTimeout = 60 * time.Second
	}
}

func laneDefaults(l *LaneConfig, conc, attempts int, base, max, lease time.Duration) {
	if l.Concurrency <= 0 {
		l.Concurrency = conc
	}
	if l.MaxAttempts <= 0 {
		l.MaxAttempts = attempts
	}
	if l.BackoffBase <= 0 {
		l.BackoffBase = base
	}
	if l.BackoffMax <= 0 {
		l.BackoffMax = max
	}
	if l.PollInterval <= 0 {
		l.PollInterval = 500 * time.Millisecond
	}
	if l.Lease <= 0 {
		l.Lease = lease
	}
	// a handler outliving its lease would run twice
	if l.HandlerTimeout <= 0 {
		l.HandlerTimeout = l.Lease * 4 / 5
	}
	if l.RateBurst <= 0 {
		l.RateBurst = 1
	}
}

// Validate performs minimal validation after defaults.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return errors.New("database.url is required")
	}
	if c.Redis.URL == "" {
		return errors.New("redis.url is required")
	}
	if n := len(c.Security.EncryptionKey); n != 32 {
		return fmt.Errorf("security.encryption_key must be 32 bytes, got %d", n)
	}
	if c.Admin.JWTSecret == "" {
		return errors.New("admin.jwt_secret is required")
	}
	switch c.AI.Provider {
	case "mock", "noop":
	case "openai":
		if c.AI.OpenAIKey == "" {
			return errors.New("ai.openai_key is required for provider openai")
		}
	case "gemini":
		if c.AI.GeminiKey == "" {
			return errors.New("ai.gemini_key is required for provider gemini")
		}
	case "multi":
		if c.AI.OpenAIKey == "" && c.AI.GeminiKey == "" {
			return errors.New("ai.multi needs at least one provider key")
		}
	default:
		return fmt.Errorf("unknown ai.provider %q", c.AI.Provider)
	}
	for name, l := range map[string]LaneConfig{"ai_jobs": c.Queue.AIJobs, "webhooks": c.Queue.Webhooks} {
		if l.BackoffMax < l.BackoffBase {
			return fmt.Errorf("queue.%s.backoff_max must be >= backoff_base", name)
		}
		if l.HandlerTimeout >= l.Lease {
			return fmt.Errorf("queue.%s.handler_timeout (%s) must be below lease (%s)", name, l.HandlerTimeout, l.Lease)
		}
	}
	return nil
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
