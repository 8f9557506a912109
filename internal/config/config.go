// Package config loads application settings from the environment.
//
// Variables are bound with envconfig struct tags. Nested groups are prefixed
// by their group tag (STORAGE_DRIVER, OTEL_ENABLED, ...); where a field
// carries its own tag, the unprefixed name is also accepted, so GEMINI_API_KEY
// and AWS_REGION work as-is.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// CORSConfig lists browser origins allowed to call the API; empty allows all.
type CORSConfig struct {
	AllowedOrigins []string `split_words:"true"`
}

// SecurityConfig controls HSTS.
type SecurityConfig struct {
	EnableHSTS bool          `envconfig:"ENABLE_HSTS"`
	HSTSMaxAge time.Duration `envconfig:"HSTS_MAX_AGE" default:"4320h"`
}

// OTELConfig configures trace export.
type OTELConfig struct {
	Enabled     bool
	Endpoint    string  `envconfig:"EXPORTER_OTLP_ENDPOINT" default:"localhost:4317"`
	Insecure    bool    `envconfig:"EXPORTER_OTLP_INSECURE" default:"true"`
	ServiceName string  `split_words:"true" default:"socialcart"`
	SampleRatio float64 `envconfig:"TRACES_SAMPLER_ARG" default:"1"`
}

// StorageConfig selects the shared key-value store backend.
type StorageConfig struct {
	Driver string `default:"sqlite"` // sqlite|badger
	// BadgerPath is the badger directory; empty keeps badger in memory.
	BadgerPath string `envconfig:"BADGER_PATH"`
}

// CatalogConfig points at an optional YAML catalog overriding the embedded seed.
type CatalogConfig struct {
	Path  string
	Watch bool `default:"true"`
}

// ContextConfig tunes execution contexts (one per connected client).
type ContextConfig struct {
	IdleTTL     time.Duration `split_words:"true" default:"30m"`
	EventBuffer int           `split_words:"true" default:"64"`
}

// AIConfig configures the generative model collaborator. An empty APIKey
// disables AI flows.
type AIConfig struct {
	APIKey      string        `envconfig:"GEMINI_API_KEY"`
	TextModel   string        `split_words:"true" default:"gemini-2.0-flash"`
	ImageModel  string        `split_words:"true" default:"gemini-2.0-flash-preview-image-generation"`
	SpeechModel string        `split_words:"true" default:"gemini-2.5-flash-preview-tts"`
	Voice       string        `default:"Algenib"`
	Timeout     time.Duration `default:"30s"`
}

// BlobConfig configures where generated product images are stored. An empty
// Bucket returns images inline.
type BlobConfig struct {
	Bucket string
	Prefix string `default:"generated"`
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`
}

// Config holds all configuration values for the application.
type Config struct {
	Port              string        `envconfig:"PORT" default:"8080"`
	ReadTimeout       time.Duration `envconfig:"READ_TIMEOUT" default:"15s"`
	ReadHeaderTimeout time.Duration `envconfig:"READ_HEADER_TIMEOUT" default:"10s"`
	WriteTimeout      time.Duration `envconfig:"WRITE_TIMEOUT" default:"20s"`
	IdleTimeout       time.Duration `envconfig:"IDLE_TIMEOUT" default:"60s"`
	MaxHeaderBytes    int           `envconfig:"MAX_HEADER_BYTES" default:"1048576"`
	GinMode           string        `envconfig:"GIN_MODE" default:"release"` // debug|release|test

	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`
	LogPretty      bool   `envconfig:"LOG_PRETTY"`
	SwaggerEnabled bool   `envconfig:"SWAGGER_ENABLED"`
	APIBasePath    string `envconfig:"API_BASE_PATH" default:"/api/v1"`

	DBPath   string         `envconfig:"DB_PATH" default:"socialcart.db"`
	Storage  StorageConfig  `envconfig:"STORAGE"`
	Catalog  CatalogConfig  `envconfig:"CATALOG"`
	Contexts ContextConfig  `envconfig:"CONTEXT"`
	AI       AIConfig       `envconfig:"AI"`
	Blob     BlobConfig     `envconfig:"S3"`
	CORS     CORSConfig     `envconfig:"CORS"`
	Security SecurityConfig `envconfig:"SECURITY"`
	OTEL     OTELConfig     `envconfig:"OTEL"`

	RateRPS   float64 `envconfig:"RATE_RPS" default:"5"`
	RateBurst int     `envconfig:"RATE_BURST" default:"10"`

	// IdempotencyTTL is how long a checkout Idempotency-Key replays.
	IdempotencyTTL time.Duration `envconfig:"IDEMPOTENCY_TTL" default:"24h"`
}

// Load reads the environment, applies defaults, normalizes and validates.
// All validation problems are reported together.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.GinMode = strings.ToLower(c.GinMode)
	switch c.GinMode {
	case "debug", "release", "test":
	default:
		c.GinMode = "release"
	}
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if c.LogLevel == "warning" {
		c.LogLevel = "warn"
	}
	c.APIBasePath = normalizeBasePath(c.APIBasePath)
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	c.Blob.Prefix = strings.Trim(c.Blob.Prefix, "/")
	c.CORS.AllowedOrigins = compact(c.CORS.AllowedOrigins)
}

func (c Config) validate() error {
	var errs []error
	check := func(ok bool, msg string) {
		if !ok {
			errs = append(errs, errors.New(msg))
		}
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		errs = append(errs, fmt.Errorf("LOG_LEVEL %q must be one of: debug, info, warn, error, fatal, panic", c.LogLevel))
	}
	switch c.Storage.Driver {
	case "sqlite", "badger":
	default:
		errs = append(errs, fmt.Errorf("STORAGE_DRIVER %q must be one of: sqlite, badger", c.Storage.Driver))
	}
	check(strings.TrimSpace(c.Port) != "", "PORT must not be empty")
	check(c.ReadTimeout > 0 && c.ReadHeaderTimeout > 0 && c.WriteTimeout > 0 && c.IdleTimeout > 0,
		"timeouts must be positive durations")
	check(c.MaxHeaderBytes > 0, "MAX_HEADER_BYTES must be > 0")
	check(strings.TrimSpace(c.DBPath) != "", "DB_PATH must not be empty")
	check(c.Contexts.IdleTTL > 0, "CONTEXT_IDLE_TTL must be > 0")
	check(c.Contexts.EventBuffer >= 1, "CONTEXT_EVENT_BUFFER must be >= 1")
	check(c.AI.Timeout > 0, "AI_TIMEOUT must be > 0")
	check(c.RateRPS >= 0, "RATE_RPS must be >= 0")
	check(c.RateBurst >= 1, "RATE_BURST must be >= 1")
	check(c.Security.HSTSMaxAge >= 0, "HSTS_MAX_AGE must be >= 0")
	check(c.IdempotencyTTL > 0, "IDEMPOTENCY_TTL must be > 0")
	check(c.OTEL.SampleRatio >= 0 && c.OTEL.SampleRatio <= 1, "OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	return errors.Join(errs...)
}

// compact trims entries and drops empty ones.
func compact(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// normalizeBasePath ensures a leading '/' and strips trailing ones (except root).
func normalizeBasePath(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	return "/" + p
}
