package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string `mapstructure:"PORT"`
	Env         string `mapstructure:"ENV"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`

	// RedisURL switches per-key locking from in-process to Redis.
	RedisURL string        `mapstructure:"REDIS_URL"`
	LockTTL  time.Duration `mapstructure:"LOCK_TTL"`

	AuthSigningKey string   `mapstructure:"AUTH_SIGNING_KEY"`
	AuthIssuer     string   `mapstructure:"AUTH_ISSUER"`
	CORSOrigins    []string `mapstructure:"CORS_ORIGINS"`

	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	BodyLimit      string        `mapstructure:"BODY_LIMIT"`
	UploadLimit    string        `mapstructure:"UPLOAD_LIMIT"`

	RendererURL     string        `mapstructure:"RENDERER_URL"`
	RendererAPIKey  string        `mapstructure:"RENDERER_API_KEY"`
	RendererTimeout time.Duration `mapstructure:"RENDERER_TIMEOUT"`

	StorageProvider    string `mapstructure:"STORAGE_PROVIDER"`
	GCSBucket          string `mapstructure:"GCS_BUCKET"`
	GCSCredentialsJSON string `mapstructure:"GCS_CREDENTIALS_JSON"`
	PublicBaseURL      string `mapstructure:"PUBLIC_BASE_URL"`

	NotifyProvider        string        `mapstructure:"NOTIFY_PROVIDER"`
	PubSubProjectID       string        `mapstructure:"PUBSUB_PROJECT_ID"`
	PubSubTopic           string        `mapstructure:"PUBSUB_TOPIC"`
	PubSubCredentialsJSON string        `mapstructure:"PUBSUB_CREDENTIALS_JSON"`
	NotifyTimeout         time.Duration `mapstructure:"NOTIFY_TIMEOUT"`

	LowStockThreshold int    `mapstructure:"LOW_STOCK_THRESHOLD"`
	ExpiryWindowDays  int    `mapstructure:"EXPIRY_WINDOW_DAYS"`
	Currency          string `mapstructure:"CURRENCY"`
}

var keys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"REDIS_URL", "LOCK_TTL",
	"AUTH_SIGNING_KEY", "AUTH_ISSUER", "CORS_ORIGINS",
	"REQUEST_TIMEOUT", "BODY_LIMIT", "UPLOAD_LIMIT",
	"RENDERER_URL", "RENDERER_API_KEY", "RENDERER_TIMEOUT",
	"STORAGE_PROVIDER", "GCS_BUCKET", "GCS_CREDENTIALS_JSON", "PUBLIC_BASE_URL",
	"NOTIFY_PROVIDER", "PUBSUB_PROJECT_ID", "PUBSUB_TOPIC", "PUBSUB_CREDENTIALS_JSON", "NOTIFY_TIMEOUT",
	"LOW_STOCK_THRESHOLD", "EXPIRY_WINDOW_DAYS", "CURRENCY",
}

// Load reads configuration from the environment, falling back to a .env file
// in the working directory.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("LOCK_TTL", "30s")
	v.SetDefault("AUTH_ISSUER", "medimart")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("UPLOAD_LIMIT", "10M")
	v.SetDefault("RENDERER_TIMEOUT", "15s")
	v.SetDefault("STORAGE_PROVIDER", "memory")
	v.SetDefault("PUBLIC_BASE_URL", "http://localhost:8000")
	v.SetDefault("NOTIFY_PROVIDER", "log")
	v.SetDefault("NOTIFY_TIMEOUT", "5s")
	v.SetDefault("LOW_STOCK_THRESHOLD", 10)
	v.SetDefault("EXPIRY_WINDOW_DAYS", 30)
	v.SetDefault("CURRENCY", "MMK")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		cfg.CORSOrigins = strings.Split(cfg.CORSOrigins[0], ",")
	}
	for i := range cfg.CORSOrigins {
		cfg.CORSOrigins[i] = strings.TrimSpace(cfg.CORSOrigins[i])
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	if !c.IsDev() && len(c.AuthSigningKey) < 32 {
		return fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 bytes outside development (ENV=%q)", c.Env)
	}

	switch c.StorageProvider {
	case "memory":
		if c.IsProduction() {
			return fmt.Errorf("STORAGE_PROVIDER=memory is not allowed in production")
		}
	case "gcs":
		if c.GCSBucket == "" {
			return fmt.Errorf("GCS_BUCKET is required when STORAGE_PROVIDER is \"gcs\"")
		}
	default:
		return fmt.Errorf("STORAGE_PROVIDER must be \"memory\" or \"gcs\", got %q", c.StorageProvider)
	}

	switch c.NotifyProvider {
	case "log":
	case "pubsub":
		if c.PubSubProjectID == "" || c.PubSubTopic == "" {
			return fmt.Errorf("PUBSUB_PROJECT_ID and PUBSUB_TOPIC are required when NOTIFY_PROVIDER is \"pubsub\"")
		}
	default:
		return fmt.Errorf("NOTIFY_PROVIDER must be \"log\" or \"pubsub\", got %q", c.NotifyProvider)
	}

	if c.IsProduction() && c.RendererURL == "" {
		return fmt.Errorf("RENDERER_URL is required in production")
	}
	if c.RendererTimeout <= 0 {
		return fmt.Errorf("RENDERER_TIMEOUT must be positive")
	}
	if c.LockTTL <= 0 {
		return fmt.Errorf("LOCK_TTL must be positive")
	}
	if c.LowStockThreshold < 0 {
		return fmt.Errorf("LOW_STOCK_THRESHOLD must not be negative")
	}
	if c.ExpiryWindowDays <= 0 {
		return fmt.Errorf("EXPIRY_WINDOW_DAYS must be positive")
	}
	return nil
}
