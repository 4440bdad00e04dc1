// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // postgres|sqlite
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type QueueConfig struct {
	Name        string        `yaml:"name"`
	Group       string        `yaml:"group"`
	Consumer    string        `yaml:"consumer"`
	Block       time.Duration `yaml:"block"`
	MaxAttempts int64         `yaml:"max_attempts"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
	DeadLetter  string        `yaml:"dead_letter"`
}

type WorkerConfig struct {
	Concurrency   int           `yaml:"concurrency"`
	ShutdownGrace time.Duration `yaml:"shutdown_grace"`
	LockTTL       time.Duration `yaml:"lock_ttl"`
	StaleAfter    time.Duration `yaml:"stale_after"`   // processing longer than this is failed by the reaper
	ReapInterval  time.Duration `yaml:"reap_interval"` // 0 uses the default; negative disables the reaper
}

type RunPodConfig struct {
	APIKey        string        `yaml:"api_key"`
	EndpointID    string        `yaml:"endpoint_id"`
	BaseURL       string        `yaml:"base_url"`
	SubmitTimeout time.Duration `yaml:"submit_timeout"`
	PollTimeout   time.Duration `yaml:"poll_timeout"`
	PollInterval  time.Duration `yaml:"poll_interval"`
}

type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

type GeminiConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

type InferenceConfig struct {
	Provider        string `yaml:"provider"` // runpod|openai|gemini|echo
	MaxTokens       int    `yaml:"max_tokens"`
	SystemPrompt    string `yaml:"system_prompt"`
	ConcurrentLimit int    `yaml:"concurrent_limit"` // max concurrent upstream streams, 0 = unlimited
	Buffer          int    `yaml:"buffer"`           // hand-off queue size per stream
	TokenizerModel  string `yaml:"tokenizer_model"`

	RunPod RunPodConfig `yaml:"runpod"`
	OpenAI OpenAIConfig `yaml:"openai"`
	Gemini GeminiConfig `yaml:"gemini"`
}

type AdminConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Port      int           `yaml:"port"`
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type Config struct {
	Log       LogConfig       `yaml:"log"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Queue     QueueConfig     `yaml:"queue"`
	Worker    WorkerConfig    `yaml:"worker"`
	Inference InferenceConfig `yaml:"inference"`
	Admin     AdminConfig     `yaml:"admin"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the yaml file at path, applies env overrides and defaults,
// and validates the result.
func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(b)
	if err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = dev
	return cfg, nil
}

func Parse(b []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	str := map[string]*string{
		"DATABASE_URL":       &cfg.Database.URL,
		"REDIS_URL":          &cfg.Redis.URL,
		"REDIS_PASSWORD":     &cfg.Redis.Password,
		"QUEUE_NAME":         &cfg.Queue.Name,
		"RUNPOD_API_KEY":     &cfg.Inference.RunPod.APIKey,
		"RUNPOD_ENDPOINT_ID": &cfg.Inference.RunPod.EndpointID,
		"OPENAI_API_KEY":     &cfg.Inference.OpenAI.APIKey,
		"GEMINI_API_KEY":     &cfg.Inference.Gemini.APIKey,
		"ADMIN_JWT_SECRET":   &cfg.Admin.JWTSecret,
	}
	for k, dst := range str {
		if v, ok := os.LookupEnv(k); ok && v != "" {
			*dst = v
		}
	}
	if v := os.Getenv("WORKER_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("WORKER_CONCURRENCY: %w", err)
		}
		cfg.Worker.Concurrency = n
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)

	if cfg.Queue.Name == "" {
		cfg.Queue.Name = "main-queue"
	}
	if cfg.Queue.Group == "" {
		cfg.Queue.Group = "uvian-workers"
	}
	if cfg.Queue.Block <= 0 {
		cfg.Queue.Block = 2 * time.Second
	}
	if cfg.Queue.MaxAttempts <= 0 {
		cfg.Queue.MaxAttempts = 3
	}
	if cfg.Queue.RetryDelay <= 0 {
		cfg.Queue.RetryDelay = 5 * time.Second
	}
	if cfg.Queue.DeadLetter == "" {
		cfg.Queue.DeadLetter = cfg.Queue.Name + ":dead"
	}

	if cfg.Worker.Concurrency <= 0 {
		cfg.Worker.Concurrency = 5
	}
	if cfg.Worker.ShutdownGrace <= 0 {
		cfg.Worker.ShutdownGrace = 30 * time.Second
	}
	if cfg.Worker.LockTTL <= 0 {
		cfg.Worker.LockTTL = 15 * time.Minute
	}
	if cfg.Worker.StaleAfter <= 0 {
		cfg.Worker.StaleAfter = time.Hour
	}
	if cfg.Worker.ReapInterval == 0 {
		cfg.Worker.ReapInterval = time.Minute
	}

	inf := &cfg.Inference
	if inf.Provider == "" {
		inf.Provider = "runpod"
	}
	inf.Provider = strings.ToLower(inf.Provider)
	if inf.MaxTokens <= 0 {
		inf.MaxTokens = 2000
	}
	if inf.Buffer <= 0 {
		inf.Buffer = 64
	}
	if inf.TokenizerModel == "" {
		inf.TokenizerModel = "gpt-4o-mini"
	}
	if inf.RunPod.BaseURL == "" {
		inf.RunPod.BaseURL = "https://api.runpod.ai/v2"
	}
	if inf.RunPod.SubmitTimeout <= 0 {
		inf.RunPod.SubmitTimeout = 120 * time.Second
	}
	if inf.RunPod.PollTimeout <= 0 {
		inf.RunPod.PollTimeout = 60 * time.Second
	}
	if inf.RunPod.PollInterval <= 0 {
		inf.RunPod.PollInterval = 500 * time.Millisecond
	}
	if inf.OpenAI.Model == "" {
		inf.OpenAI.Model = "gpt-4o-mini"
	}
	if inf.Gemini.Model == "" {
		inf.Gemini.Model = "gemini-2.0-flash"
	}

	if cfg.Admin.Port <= 0 {
		cfg.Admin.Port = 8081
	}
	if cfg.Admin.TokenTTL <= 0 {
		cfg.Admin.TokenTTL = 24 * time.Hour
	}
}

// Minimal validation
func (cfg *Config) validate() error {
	switch cfg.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver %q is not supported", cfg.Database.Driver)
	}
	if cfg.Database.URL == "" {
		return errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return errors.New("redis.url is required")
	}
	switch cfg.Inference.Provider {
	case "runpod":
		if cfg.Inference.RunPod.APIKey == "" || cfg.Inference.RunPod.EndpointID == "" {
			return errors.New("inference.runpod.api_key and inference.runpod.endpoint_id are required")
		}
	case "openai":
		if cfg.Inference.OpenAI.APIKey == "" {
			return errors.New("inference.openai.api_key is required")
		}
	case "gemini":
		if cfg.Inference.Gemini.APIKey == "" {
			return errors.New("inference.gemini.api_key is required")
		}
	case "echo":
	default:
		return fmt.Errorf("inference.provider %q is not supported", cfg.Inference.Provider)
	}
	if cfg.Admin.Enabled && cfg.Admin.JWTSecret == "" {
		return errors.New("admin.jwt_secret is required when admin is enabled")
	}
	return nil
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
