// Package config loads the server configuration from the environment.
package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/redis/go-redis/v9"

	mongostore "github.com/satriahrh/panoguide/adapters/mongo"
	"github.com/satriahrh/panoguide/internal/logging"
)

// Environment represents the deployment environment of the service.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Testing     Environment = "testing"
	Production  Environment = "production"
)

// IsProduction reports whether the environment corresponds to production.
func (e Environment) IsProduction() bool {
	return e == Production
}

// ParseEnvironment normalises v into one of the known environments. Unknown
// values fall back to Development.
func ParseEnvironment(v string) Environment {
	switch Environment(v) {
	case Production, Staging, Testing:
		return Environment(v)
	default:
		return Development
	}
}

// Config is the complete server configuration.
type Config struct {
	Environment Environment `default:"development"`
	Port        string      `default:"8080"`

	JWTSecret string        `envconfig:"JWT_SECRET" required:"true"`
	TokenTTL  time.Duration `envconfig:"TOKEN_TTL" default:"24h"`

	Gemini GeminiConfig
	Guide  GuideConfig
	Redis  RedisConfig
	Mongo  mongostore.Config
	Log    logging.Config
}

// GeminiConfig holds the agent and geocoding model settings.
type GeminiConfig struct {
	APIKey       string `split_words:"true" required:"true"`
	LiveModel    string `split_words:"true"`
	LiveURL      string `split_words:"true"`
	Voice        string `default:"Puck"`
	EnableSearch bool   `split_words:"true"`
	GeocodeModel string `split_words:"true" default:"gemini-2.0-flash"`
}

// GuideConfig tunes the conversation and how the viewer is driven.
type GuideConfig struct {
	ContextInterval time.Duration `split_words:"true" default:"5s"`
	ViewerTimeout   time.Duration `split_words:"true" default:"2s"`
	RotateDuration  time.Duration `split_words:"true" default:"800ms"`
	StepTolerance   float64       `split_words:"true" default:"60"`
	SearchRadius    float64       `split_words:"true" default:"50"`
	CleanupInterval time.Duration `split_words:"true" default:"5m"`
}

// RedisConfig configures the geocode cache. An empty URL disables it.
type RedisConfig struct {
	URL          string        `split_words:"true"`
	ReadTimeout  int           `split_words:"true" default:"3"`
	WriteTimeout int           `split_words:"true" default:"3"`
	DialTimeout  int           `split_words:"true" default:"5"`
	CacheTTL     time.Duration `split_words:"true" default:"24h"`
}

// Enabled reports whether a Redis URL is configured.
func (r *RedisConfig) Enabled() bool {
	return r.URL != ""
}

// New connects to Redis and pings it.
func (r *RedisConfig) New(ctx context.Context) (*redis.Client, error) {
	opts, err := redis.ParseURL(r.URL)
	if err != nil {
		return nil, err
	}

	opts.ReadTimeout = time.Duration(r.ReadTimeout) * time.Second
	opts.WriteTimeout = time.Duration(r.WriteTimeout) * time.Second
	opts.DialTimeout = time.Duration(r.DialTimeout) * time.Second

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

// Load reads the given dotenv files, when present, and then the environment.
// With no files it reads .env.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process environment config: %w", err)
	}
	cfg.Environment = ParseEnvironment(string(cfg.Environment))

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.TokenTTL <= 0 {
		return errors.New("TOKEN_TTL must be positive")
	}
	if c.Guide.ContextInterval <= 0 {
		return errors.New("GUIDE_CONTEXT_INTERVAL must be positive")
	}
	if c.Guide.StepTolerance <= 0 || c.Guide.StepTolerance > 180 {
		return fmt.Errorf("GUIDE_STEP_TOLERANCE must be in (0, 180], got %v", c.Guide.StepTolerance)
	}
	if c.Guide.SearchRadius <= 0 {
		return errors.New("GUIDE_SEARCH_RADIUS must be positive")
	}
	return nil
}
