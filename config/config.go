/*
Package config loads server settings from defaults, an optional YAML file,
a .env file, and FINTRACK_* environment variables, in increasing priority.

KEYS (env form in brackets):
  http.addr                 [FINTRACK_HTTP_ADDR]                 listen address
  http.allowed_origins      [FINTRACK_HTTP_ALLOWED_ORIGINS]      CORS origins, comma separated
  database.path             [FINTRACK_DATABASE_PATH]             SQLite file
  auth.jwt_secret           [FINTRACK_AUTH_JWT_SECRET]           HS256 key (required by serve)
  auth.token_ttl            [FINTRACK_AUTH_TOKEN_TTL]            e.g. 168h
  auth.bcrypt_cost          [FINTRACK_AUTH_BCRYPT_COST]
  invoice.ownership_policy  [FINTRACK_INVOICE_OWNERSHIP_POLICY]  strict | lenient
  invoice.relink_policy     [FINTRACK_INVOICE_RELINK_POLICY]     forbid | allow
  cache.size / cache.ttl    [FINTRACK_CACHE_SIZE / _TTL]         in-process owner cache
  cache.redis_url           [FINTRACK_CACHE_REDIS_URL]           use Redis instead
  amqp.url                  [FINTRACK_AMQP_URL]                  enable invoice events
  amqp.exchange/amqp.queue  [FINTRACK_AMQP_EXCHANGE / _QUEUE]
  log.level / log.format    [FINTRACK_LOG_LEVEL / _FORMAT]       debug..error / text | json
*/
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/warp/fintrack/auth"
	"github.com/warp/fintrack/cache"
	"github.com/warp/fintrack/ledger"
)

const EnvPrefix = "FINTRACK"

type Config struct {
	HTTP     HTTPConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Invoice  InvoiceConfig
	Cache    CacheConfig
	AMQP     AMQPConfig
	Log      LogConfig
}

type HTTPConfig struct {
	Addr           string
	AllowedOrigins []string
}

type DatabaseConfig struct {
	Path string
}

type AuthConfig struct {
	JWTSecret  string
	TokenTTL   time.Duration
	BcryptCost int
}

type InvoiceConfig struct {
	Ownership ledger.OwnershipPolicy
	Relink    ledger.RelinkPolicy
}

type CacheConfig struct {
	Size     int
	TTL      time.Duration
	RedisURL string
}

type AMQPConfig struct {
	URL      string
	Exchange string
	Queue    string
}

type LogConfig struct {
	Level  string
	Format string
}

// SetDefaults registers every key's default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.allowed_origins", []string{"http://localhost:5173", "http://localhost:3000"})
	v.SetDefault("database.path", "./data/fintrack.db")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", auth.DefaultTokenTTL)
	v.SetDefault("auth.bcrypt_cost", 10)
	v.SetDefault("invoice.ownership_policy", string(ledger.OwnershipStrict))
	v.SetDefault("invoice.relink_policy", string(ledger.RelinkForbid))
	v.SetDefault("cache.size", cache.DefaultSize)
	v.SetDefault("cache.ttl", cache.DefaultTTL)
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("amqp.url", "")
	v.SetDefault("amqp.exchange", "fintrack")
	v.SetDefault("amqp.queue", "invoice_events")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// NewViper returns a viper instance with defaults, environment binding, and
// configFile (if non-empty, otherwise ./fintrack.yaml if present) loaded.
// A .env file in the working directory is loaded into the environment first.
func NewViper(configFile string) (*viper.Viper, error) {
	_ = godotenv.Load()

	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("fintrack")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	return v, nil
}

// Load reads a Config out of v and validates it.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		HTTP: HTTPConfig{
			Addr:           v.GetString("http.addr"),
			AllowedOrigins: splitList(v.GetStringSlice("http.allowed_origins")),
		},
		Database: DatabaseConfig{
			Path: v.GetString("database.path"),
		},
		Auth: AuthConfig{
			JWTSecret:  v.GetString("auth.jwt_secret"),
			TokenTTL:   v.GetDuration("auth.token_ttl"),
			BcryptCost: v.GetInt("auth.bcrypt_cost"),
		},
		Invoice: InvoiceConfig{
			Ownership: ledger.OwnershipPolicy(strings.ToLower(v.GetString("invoice.ownership_policy"))),
			Relink:    ledger.RelinkPolicy(strings.ToLower(v.GetString("invoice.relink_policy"))),
		},
		Cache: CacheConfig{
			Size:     v.GetInt("cache.size"),
			TTL:      v.GetDuration("cache.ttl"),
			RedisURL: v.GetString("cache.redis_url"),
		},
		AMQP: AMQPConfig{
			URL:      v.GetString("amqp.url"),
			Exchange: v.GetString("amqp.exchange"),
			Queue:    v.GetString("amqp.queue"),
		},
		Log: LogConfig{
			Level:  strings.ToLower(v.GetString("log.level")),
			Format: strings.ToLower(v.GetString("log.format")),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate validates the configuration and returns every problem at once.
func (c *Config) Validate() error {
	var problems []string

	if c.HTTP.Addr == "" {
		problems = append(problems, "http.addr cannot be empty")
	}

	if c.Database.Path == "" {
		problems = append(problems, "database.path cannot be empty")
	} else if c.Database.Path != ":memory:" {
		dir := filepath.Dir(c.Database.Path)
		if dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				problems = append(problems, fmt.Sprintf("cannot create database directory '%s': %v", dir, err))
			}
		}
	}

	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
		problems = append(problems, "auth.jwt_secret must be at least 32 bytes")
	}
	if c.Auth.TokenTTL <= 0 {
		problems = append(problems, fmt.Sprintf("invalid auth.token_ttl %v: must be positive", c.Auth.TokenTTL))
	}
	if !auth.ValidCost(c.Auth.BcryptCost) {
		problems = append(problems, fmt.Sprintf("invalid auth.bcrypt_cost %d: must be between 4 and 31", c.Auth.BcryptCost))
	}

	if !c.Invoice.Ownership.Valid() {
		problems = append(problems, fmt.Sprintf("invalid invoice.ownership_policy '%s': must be strict or lenient", c.Invoice.Ownership))
	}
	if !c.Invoice.Relink.Valid() {
		problems = append(problems, fmt.Sprintf("invalid invoice.relink_policy '%s': must be forbid or allow", c.Invoice.Relink))
	}

	if c.Cache.Size < 1 {
		problems = append(problems, fmt.Sprintf("invalid cache.size %d: must be at least 1", c.Cache.Size))
	}
	if c.Cache.TTL <= 0 {
		problems = append(problems, fmt.Sprintf("invalid cache.ttl %v: must be positive", c.Cache.TTL))
	}
	if c.Cache.RedisURL != "" {
		if u, err := url.Parse(c.Cache.RedisURL); err != nil {
			problems = append(problems, fmt.Sprintf("invalid cache.redis_url: %v", err))
		} else if u.Scheme != "redis" && u.Scheme != "rediss" {
			problems = append(problems, fmt.Sprintf("invalid cache.redis_url scheme '%s': must be 'redis' or 'rediss'", u.Scheme))
		}
	}

	if c.AMQP.URL != "" {
		if u, err := url.Parse(c.AMQP.URL); err != nil {
			problems = append(problems, fmt.Sprintf("invalid amqp.url: %v", err))
		} else if u.Scheme != "amqp" && u.Scheme != "amqps" {
			problems = append(problems, fmt.Sprintf("invalid amqp.url scheme '%s': must be 'amqp' or 'amqps'", u.Scheme))
		}
		if c.AMQP.Exchange == "" {
			problems = append(problems, "amqp.exchange cannot be empty when amqp.url is set")
		}
		if c.AMQP.Queue == "" {
			problems = append(problems, "amqp.queue cannot be empty when amqp.url is set")
		}
	}

	if _, err := parseLevel(c.Log.Level); err != nil {
		problems = append(problems, err.Error())
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		problems = append(problems, fmt.Sprintf("invalid log.format '%s': must be text or json", c.Log.Format))
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(problems, "\n- "))
	}
	return nil
}

// NewLogger builds the slog logger described by c, writing to w.
func (c LogConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch c.Format {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		return nil, fmt.Errorf("invalid log format: %s", c.Format)
	}
	return slog.New(handler), nil
}

func parseLevel(level string) (slog.Level, error) {
	switch level {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("invalid log level: %s", level)
}

// splitList accepts both YAML lists and comma-separated env values.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
