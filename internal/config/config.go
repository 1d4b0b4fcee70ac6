// File: internal/config/config.go
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"notes-ai-jobs/internal/domain/model"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level" env:"LOG_LEVEL"`   // trace|debug|info|warn|error
	Format   string `yaml:"format" env:"LOG_FORMAT"` // json|console
	Sampling bool   `yaml:"sampling"`                // enable sampling in prod
}

type HTTPConfig struct {
	Port            int           `yaml:"port" env:"PORT" validate:"gte=1,lte=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// HeavyPerMinute bounds bursts on the heavy AI routes, per user.
	HeavyPerMinute int `yaml:"heavy_per_minute"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET" validate:"required,min=16"`
}

type DatabaseConfig struct {
	URL     string `yaml:"url" env:"DATABASE_URL" validate:"required"`
	Migrate bool   `yaml:"migrate" env:"DATABASE_MIGRATE"`
}

type RedisConfig struct {
	URL      string `yaml:"url" env:"REDIS_URL" validate:"required"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB"`
}

type QueueConfig struct {
	Backend string `yaml:"backend" env:"QUEUE_BACKEND" validate:"oneof=asynq memory"`
	Name    string `yaml:"name"`
	// Retention keeps finished asynq tasks inspectable for this long.
	Retention time.Duration `yaml:"retention"`
	// RetainTerminal caps how many finished jobs the in-memory queue remembers.
	RetainTerminal int `yaml:"retain_terminal"`
}

type JobsConfig struct {
	Concurrency    int           `yaml:"concurrency" env:"WORKER_CONCURRENCY" validate:"gte=1"`
	Attempts       int           `yaml:"attempts" validate:"gte=1"`
	BackoffBase    time.Duration `yaml:"backoff_base"`
	BackoffMax     time.Duration `yaml:"backoff_max"`
	HandlerTimeout time.Duration `yaml:"handler_timeout"`
	InflightTTL    time.Duration `yaml:"inflight_ttl"`
	// Unfinished rows older than ReconcileAfter are checked against the queue
	// every ReconcileInterval.
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`
	ReconcileAfter    time.Duration `yaml:"reconcile_after"`
	// CacheTTL is keyed by job type name.
	CacheTTL map[string]time.Duration `yaml:"cache_ttl"`
}

type BudgetConfig struct {
	DailyHeavyLimit int `yaml:"daily_heavy_limit" env:"DAILY_HEAVY_LIMIT" validate:"gte=1"`
}

type AIConfig struct {
	Provider        string        `yaml:"provider" env:"AI_PROVIDER" validate:"oneof=openai gemini noop"`
	OpenAIKey       string        `yaml:"openai_key" env:"OPENAI_API_KEY"`
	OpenAIBaseURL   string        `yaml:"openai_base_url" env:"OPENAI_BASE_URL"`
	GeminiKey       string        `yaml:"gemini_key" env:"GEMINI_API_KEY"`
	DefaultModel    string        `yaml:"default_model" env:"AI_MODEL"`
	ConcurrentLimit int           `yaml:"concurrent_limit"` // max concurrent AI calls
	ContextTokens   int           `yaml:"context_tokens"`   // note context budget per prompt
	CallTimeout     time.Duration `yaml:"call_timeout"`
}

type Config struct {
	Log      LogConfig      `yaml:"log"`
	HTTP     HTTPConfig     `yaml:"http"`
	Auth     AuthConfig     `yaml:"auth"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Queue    QueueConfig    `yaml:"queue"`
	Jobs     JobsConfig     `yaml:"jobs"`
	Budget   BudgetConfig   `yaml:"budget"`
	AI       AIConfig       `yaml:"ai"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads flags, then delegates to Load.
func LoadConfig() (*Config, error) {
	var configPath string
	var dev bool
	flag.StringVar(&configPath, "config", "config.yaml", "path to config yaml")
	flag.BoolVar(&dev, "dev", false, "development mode")
	flag.Parse()

	return Load(configPath, dev)
}

// Load builds the config from an optional YAML file, .env and the process
// environment, in that order of increasing precedence.
func Load(path string, dev bool) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		case errors.Is(err, os.ErrNotExist):
			// env-only deployment
		default:
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("env overrides: %w", err)
	}

	applyDefaults(&cfg)
	cfg.Runtime.Dev = dev

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
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}
	cfg.HTTP.ReadTimeout = orDefault(cfg.HTTP.ReadTimeout, 15*time.Second)
	cfg.HTTP.WriteTimeout = orDefault(cfg.HTTP.WriteTimeout, 30*time.Second)
	cfg.HTTP.ShutdownTimeout = orDefault(cfg.HTTP.ShutdownTimeout, 10*time.Second)
	if cfg.HTTP.HeavyPerMinute <= 0 {
		cfg.HTTP.HeavyPerMinute = 5
	}

	if cfg.Queue.Backend == "" {
		cfg.Queue.Backend = "asynq"
	}
	if cfg.Queue.Name == "" {
		cfg.Queue.Name = "ai-jobs"
	}
	cfg.Queue.Retention = orDefault(cfg.Queue.Retention, time.Hour)
	if cfg.Queue.RetainTerminal <= 0 {
		cfg.Queue.RetainTerminal = 50
	}

	if cfg.Jobs.Concurrency <= 0 {
		cfg.Jobs.Concurrency = 4
	}
	if cfg.Jobs.Attempts <= 0 {
		cfg.Jobs.Attempts = 3
	}
	cfg.Jobs.BackoffBase = orDefault(cfg.Jobs.BackoffBase, 30*time.Second)
	cfg.Jobs.BackoffMax = orDefault(cfg.Jobs.BackoffMax, 5*time.Minute)
	cfg.Jobs.HandlerTimeout = orDefault(cfg.Jobs.HandlerTimeout, 2*time.Minute)
	cfg.Jobs.InflightTTL = orDefault(cfg.Jobs.InflightTTL, 15*time.Minute)
	cfg.Jobs.ReconcileInterval = orDefault(cfg.Jobs.ReconcileInterval, time.Minute)
	cfg.Jobs.ReconcileAfter = orDefault(cfg.Jobs.ReconcileAfter, 10*time.Minute)
	if cfg.Jobs.CacheTTL == nil {
		cfg.Jobs.CacheTTL = map[string]time.Duration{}
	}
	for t, d := range DefaultCacheTTL() {
		if cfg.Jobs.CacheTTL[string(t)] <= 0 {
			cfg.Jobs.CacheTTL[string(t)] = d
		}
	}

	if cfg.Budget.DailyHeavyLimit <= 0 {
		cfg.Budget.DailyHeavyLimit = 10
	}

	if cfg.AI.Provider == "" {
		cfg.AI.Provider = "openai"
	}
	if cfg.AI.DefaultModel == "" {
		if cfg.AI.Provider == "gemini" {
			cfg.AI.DefaultModel = "gemini-2.0-flash"
		} else {
			cfg.AI.DefaultModel = "gpt-4o-mini"
		}
	}
	if cfg.AI.ConcurrentLimit <= 0 {
		cfg.AI.ConcurrentLimit = 4
	}
	if cfg.AI.ContextTokens <= 0 {
		cfg.AI.ContextTokens = 12000
	}
	cfg.AI.CallTimeout = orDefault(cfg.AI.CallTimeout, 90*time.Second)
}

// DefaultCacheTTL returns how long each view stays fresh. Graph builds are the
// most expensive and change the least, so they live longest.
func DefaultCacheTTL() map[model.JobType]time.Duration {
	return map[model.JobType]time.Duration{
		model.JobTypeDigest:          6 * time.Hour,
		model.JobTypeGraph:           12 * time.Hour,
		model.JobTypeRecommendations: 6 * time.Hour,
		model.JobTypeContradictions:  6 * time.Hour,
	}
}

// TTLFor resolves the cache TTL for a job type.
func (c JobsConfig) TTLFor(t model.JobType) time.Duration {
	if d, ok := c.CacheTTL[string(t)]; ok && d > 0 {
		return d
	}
	return DefaultCacheTTL()[t]
}

var validate = validator.New()

// Validate checks struct tags plus the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	switch c.AI.Provider {
	case "openai":
		if c.AI.OpenAIKey == "" {
			return errors.New("ai.openai_key is required for provider openai")
		}
	case "gemini":
		if c.AI.GeminiKey == "" {
			return errors.New("ai.gemini_key is required for provider gemini")
		}
	}
	if c.Jobs.BackoffMax < c.Jobs.BackoffBase {
		return errors.New("jobs.backoff_max must not be below jobs.backoff_base")
	}
	return nil
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
