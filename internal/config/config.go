package config

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level" env:"LOG_LEVEL,overwrite"`   // trace|debug|info|warn|error
	Format   string `yaml:"format" env:"LOG_FORMAT,overwrite"` // json|console
	Sampling bool   `yaml:"sampling"`                          // enable sampling in prod
}

type HTTPConfig struct {
	Addr           string        `yaml:"addr" env:"HTTP_ADDR,overwrite"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// per client IP limit on public endpoints
	PublicRPS   float64 `yaml:"public_rps"`
	PublicBurst int     `yaml:"public_burst"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url" env:"DATABASE_URL,overwrite"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url" env:"REDIS_URL,overwrite"`
	Password string        `yaml:"password" env:"REDIS_PASSWORD,overwrite"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"` // catalog cache TTL
}

type StripeConfig struct {
	SecretKey     string `yaml:"secret_key" env:"STRIPE_SECRET_KEY,overwrite"`
	WebhookSecret string `yaml:"webhook_secret" env:"STRIPE_WEBHOOK_SECRET,overwrite"`
	Currency      string `yaml:"currency"`
}

type AuthConfig struct {
	JWTSecret  string        `yaml:"jwt_secret" env:"JWT_SECRET,overwrite"`
	Issuer     string        `yaml:"issuer"`
	CookieName string        `yaml:"cookie_name"`
	TokenTTL   time.Duration `yaml:"token_ttl"`
}

type ReconcileConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Schedule  string        `yaml:"schedule" env:"RECONCILE_SCHEDULE,overwrite"`
	Workers   int           `yaml:"workers"`
	BatchSize int           `yaml:"batch_size"`
	LockTTL   time.Duration `yaml:"lock_ttl"`
}

type OTPConfig struct {
	TTL         time.Duration `yaml:"ttl"`
	MaxRequests int           `yaml:"max_requests"`
	Window      time.Duration `yaml:"window"`
}

type WebhookConfig struct {
	ReceiptTTL   time.Duration `yaml:"receipt_ttl"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
}

type Config struct {
	Log       LogConfig       `yaml:"log"`
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Stripe    StripeConfig    `yaml:"stripe"`
	Auth      AuthConfig      `yaml:"auth"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	OTP       OTPConfig       `yaml:"otp"`
	Webhook   WebhookConfig   `yaml:"webhook"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig parses -config and -dev, loads a local .env if present and
// returns the merged configuration.
func LoadConfig() (*Config, error) {
	var configPath string
	var dev bool
	flag.StringVar(&configPath, "config", "config.yaml", "path to config yaml")
	flag.BoolVar(&dev, "dev", false, "development mode")
	flag.Parse()

	_ = godotenv.Load()
	return Load(context.Background(), configPath, dev, envconfig.OsLookuper())
}

// Load reads the yaml file (optional when every required value comes from
// the environment), overlays environment values and applies defaults.
func Load(ctx context.Context, path string, dev bool, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
		// environment only
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: lookuper}); err != nil {
		return nil, fmt.Errorf("env overlay: %w", err)
	}

	applyDefaults(&cfg)
	cfg.Runtime.Dev = dev

	if err := cfg.validate(); err != nil {
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
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	cfg.HTTP.ReadTimeout = orDefault(cfg.HTTP.ReadTimeout, 10*time.Second)
	cfg.HTTP.WriteTimeout = orDefault(cfg.HTTP.WriteTimeout, 30*time.Second)
	cfg.HTTP.RequestTimeout = orDefault(cfg.HTTP.RequestTimeout, 25*time.Second)
	if cfg.HTTP.PublicRPS <= 0 {
		cfg.HTTP.PublicRPS = 5
	}
	if cfg.HTTP.PublicBurst <= 0 {
		cfg.HTTP.PublicBurst = 20
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	cfg.Redis.TTL = orDefault(cfg.Redis.TTL, time.Hour)
	if cfg.Stripe.Currency == "" {
		cfg.Stripe.Currency = "usd"
	}
	if cfg.Auth.CookieName == "" {
		cfg.Auth.CookieName = "token"
	}
	if cfg.Auth.Issuer == "" {
		cfg.Auth.Issuer = "nexus-billing"
	}
	cfg.Auth.TokenTTL = orDefault(cfg.Auth.TokenTTL, 24*time.Hour)
	if cfg.Reconcile.Schedule == "" {
		cfg.Reconcile.Schedule = "@every 10m"
	}
	if cfg.Reconcile.Workers <= 0 {
		cfg.Reconcile.Workers = 4
	}
	if cfg.Reconcile.BatchSize <= 0 {
		cfg.Reconcile.BatchSize = 500
	}
	cfg.Reconcile.LockTTL = orDefault(cfg.Reconcile.LockTTL, 5*time.Minute)
	cfg.OTP.TTL = orDefault(cfg.OTP.TTL, 10*time.Minute)
	if cfg.OTP.MaxRequests <= 0 {
		cfg.OTP.MaxRequests = 5
	}
	cfg.OTP.Window = orDefault(cfg.OTP.Window, 15*time.Minute)
	cfg.Webhook.ReceiptTTL = orDefault(cfg.Webhook.ReceiptTTL, 72*time.Hour)
	if cfg.Webhook.MaxBodyBytes <= 0 {
		cfg.Webhook.MaxBodyBytes = 64 << 10
	}
}

// validate enforces the values the service cannot start without.
// In dev mode the gateway key and webhook secret may be empty.
func (c *Config) validate() error {
	if c.Database.URL == "" {
		return errors.New("database.url is required")
	}
	if c.Redis.URL == "" {
		return errors.New("redis.url is required")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	if !c.Runtime.Dev && c.Stripe.SecretKey == "" {
		return errors.New("stripe.secret_key is required outside dev mode")
	}
	if !c.Runtime.Dev && c.Stripe.WebhookSecret == "" {
		return errors.New("stripe.webhook_secret is required outside dev mode")
	}
	return nil
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
