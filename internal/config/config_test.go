package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"PORT", "READ_TIMEOUT", "READ_HEADER_TIMEOUT", "WRITE_TIMEOUT", "IDLE_TIMEOUT",
	"MAX_HEADER_BYTES", "GIN_MODE", "LOG_LEVEL", "LOG_PRETTY", "SWAGGER_ENABLED",
	"API_BASE_PATH", "DB_PATH",
	"STORAGE_DRIVER", "STORAGE_BADGER_PATH", "BADGER_PATH",
	"CATALOG_PATH", "CATALOG_WATCH",
	"CONTEXT_IDLE_TTL", "CONTEXT_EVENT_BUFFER",
	"AI_GEMINI_API_KEY", "GEMINI_API_KEY", "AI_TEXT_MODEL", "AI_IMAGE_MODEL",
	"AI_SPEECH_MODEL", "AI_VOICE", "AI_TIMEOUT",
	"S3_BUCKET", "S3_PREFIX", "S3_AWS_REGION", "AWS_REGION",
	"CORS_ALLOWED_ORIGINS",
	"SECURITY_ENABLE_HSTS", "ENABLE_HSTS", "SECURITY_HSTS_MAX_AGE", "HSTS_MAX_AGE",
	"OTEL_ENABLED", "OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_INSECURE",
	"OTEL_SERVICE_NAME", "OTEL_TRACES_SAMPLER_ARG",
	"RATE_RPS", "RATE_BURST", "IDEMPOTENCY_TTL",
}

// cleanEnv unsets every variable Load reads; t.Setenv restores them afterwards.
func cleanEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestLoad_Defaults(t *testing.T) {
	cleanEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 15*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 1<<20, cfg.MaxHeaderBytes)
	assert.Equal(t, "release", cfg.GinMode)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "/api/v1", cfg.APIBasePath)
	assert.Equal(t, "socialcart.db", cfg.DBPath)
	assert.Equal(t, StorageConfig{Driver: "sqlite"}, cfg.Storage)
	assert.Equal(t, CatalogConfig{Watch: true}, cfg.Catalog)
	assert.Equal(t, ContextConfig{IdleTTL: 30 * time.Minute, EventBuffer: 64}, cfg.Contexts)
	assert.Empty(t, cfg.AI.APIKey)
	assert.Equal(t, "Algenib", cfg.AI.Voice)
	assert.Equal(t, BlobConfig{Prefix: "generated", Region: "us-east-1"}, cfg.Blob)
	assert.Nil(t, cfg.CORS.AllowedOrigins)
	assert.Equal(t, SecurityConfig{HSTSMaxAge: 180 * 24 * time.Hour}, cfg.Security)
	assert.Equal(t, OTELConfig{
		Endpoint:    "localhost:4317",
		Insecure:    true,
		ServiceName: "socialcart",
		SampleRatio: 1,
	}, cfg.OTEL)
	assert.Equal(t, 5.0, cfg.RateRPS)
	assert.Equal(t, 10, cfg.RateBurst)
	assert.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
}

func TestLoad_OverridesAndNormalization(t *testing.T) {
	cleanEnv(t)
	for k, v := range map[string]string{
		"PORT":                        "8088",
		"READ_TIMEOUT":                "2s",
		"GIN_MODE":                    "weird",
		"LOG_LEVEL":                   "WARNING",
		"LOG_PRETTY":                  "true",
		"SWAGGER_ENABLED":             "1",
		"API_BASE_PATH":               "api/v2/",
		"STORAGE_DRIVER":              "BADGER",
		"STORAGE_BADGER_PATH":         "/tmp/kv",
		"CATALOG_PATH":                "catalog.yaml",
		"CATALOG_WATCH":               "false",
		"CONTEXT_IDLE_TTL":            "5m",
		"CONTEXT_EVENT_BUFFER":        "8",
		"AI_GEMINI_API_KEY":           "k",
		"AI_TIMEOUT":                  "3s",
		"S3_BUCKET":                   "images",
		"S3_PREFIX":                   "/gen/",
		"CORS_ALLOWED_ORIGINS":        " https://a.com , , http://b ",
		"SECURITY_ENABLE_HSTS":        "TRUE",
		"SECURITY_HSTS_MAX_AGE":       "24h",
		"OTEL_ENABLED":                "1",
		"OTEL_EXPORTER_OTLP_ENDPOINT": "otel:4317",
		"OTEL_EXPORTER_OTLP_INSECURE": "0",
		"OTEL_SERVICE_NAME":           "svc",
		"OTEL_TRACES_SAMPLER_ARG":     "0.75",
		"RATE_RPS":                    "2.5",
		"RATE_BURST":                  "4",
		"IDEMPOTENCY_TTL":             "48h",
	} {
		t.Setenv(k, v)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8088", cfg.Port)
	assert.Equal(t, 2*time.Second, cfg.ReadTimeout)
	assert.Equal(t, "release", cfg.GinMode)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.True(t, cfg.LogPretty)
	assert.True(t, cfg.SwaggerEnabled)
	assert.Equal(t, "/api/v2", cfg.APIBasePath)
	assert.Equal(t, StorageConfig{Driver: "badger", BadgerPath: "/tmp/kv"}, cfg.Storage)
	assert.Equal(t, CatalogConfig{Path: "catalog.yaml"}, cfg.Catalog)
	assert.Equal(t, ContextConfig{IdleTTL: 5 * time.Minute, EventBuffer: 8}, cfg.Contexts)
	assert.Equal(t, "k", cfg.AI.APIKey)
	assert.Equal(t, 3*time.Second, cfg.AI.Timeout)
	assert.Equal(t, "images", cfg.Blob.Bucket)
	assert.Equal(t, "gen", cfg.Blob.Prefix)
	assert.Equal(t, []string{"https://a.com", "http://b"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, SecurityConfig{EnableHSTS: true, HSTSMaxAge: 24 * time.Hour}, cfg.Security)
	assert.Equal(t, OTELConfig{
		Enabled:     true,
		Endpoint:    "otel:4317",
		ServiceName: "svc",
		SampleRatio: 0.75,
	}, cfg.OTEL)
	assert.Equal(t, 2.5, cfg.RateRPS)
	assert.Equal(t, 4, cfg.RateBurst)
	assert.Equal(t, 48*time.Hour, cfg.IdempotencyTTL)
}

func TestLoad_UnprefixedAliases(t *testing.T) {
	cleanEnv(t)
	t.Setenv("GEMINI_API_KEY", "from-sdk-env")
	t.Setenv("AWS_REGION", "eu-west-1")
	t.Setenv("BADGER_PATH", "/data/kv")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-sdk-env", cfg.AI.APIKey)
	assert.Equal(t, "eu-west-1", cfg.Blob.Region)
	assert.Equal(t, "/data/kv", cfg.Storage.BadgerPath)
}

func TestLoad_ParseErrors(t *testing.T) {
	for k, v := range map[string]string{
		"RATE_RPS":         "x",
		"RATE_BURST":       "nope",
		"READ_TIMEOUT":     "soon",
		"LOG_PRETTY":       "yes please",
		"CONTEXT_IDLE_TTL": "forever",
	} {
		t.Run(k, func(t *testing.T) {
			cleanEnv(t)
			t.Setenv(k, v)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), k)
		})
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	cases := map[string]struct {
		env  map[string]string
		want string
	}{
		"log level":     {map[string]string{"LOG_LEVEL": "verbose"}, "LOG_LEVEL"},
		"driver":        {map[string]string{"STORAGE_DRIVER": "redis"}, "STORAGE_DRIVER"},
		"port":          {map[string]string{"PORT": " "}, "PORT must not be empty"},
		"timeout":       {map[string]string{"WRITE_TIMEOUT": "0s"}, "timeouts must be positive"},
		"header bytes":  {map[string]string{"MAX_HEADER_BYTES": "0"}, "MAX_HEADER_BYTES"},
		"db path":       {map[string]string{"DB_PATH": " "}, "DB_PATH"},
		"idle ttl":      {map[string]string{"CONTEXT_IDLE_TTL": "0s"}, "CONTEXT_IDLE_TTL"},
		"event buffer":  {map[string]string{"CONTEXT_EVENT_BUFFER": "0"}, "CONTEXT_EVENT_BUFFER"},
		"ai timeout":    {map[string]string{"AI_TIMEOUT": "-1s"}, "AI_TIMEOUT"},
		"rps":           {map[string]string{"RATE_RPS": "-1"}, "RATE_RPS"},
		"burst":         {map[string]string{"RATE_BURST": "0"}, "RATE_BURST"},
		"hsts":          {map[string]string{"SECURITY_HSTS_MAX_AGE": "-1h"}, "HSTS_MAX_AGE"},
		"idempotency":   {map[string]string{"IDEMPOTENCY_TTL": "0s"}, "IDEMPOTENCY_TTL"},
		"sample ratio":  {map[string]string{"OTEL_TRACES_SAMPLER_ARG": "1.5"}, "OTEL_TRACES_SAMPLER_ARG"},
		"sample ratio0": {map[string]string{"OTEL_TRACES_SAMPLER_ARG": "-0.1"}, "OTEL_TRACES_SAMPLER_ARG"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			cleanEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoad_ReportsAllProblems(t *testing.T) {
	cleanEnv(t)
	t.Setenv("RATE_BURST", "0")
	t.Setenv("IDEMPOTENCY_TTL", "0s")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RATE_BURST")
	assert.Contains(t, err.Error(), "IDEMPOTENCY_TTL")
}

func TestNormalizeBasePath(t *testing.T) {
	for in, want := range map[string]string{
		"":          "/",
		"/":         "/",
		"api":       "/api",
		" /api/v1/": "/api/v1",
		"api//":     "/api",
	} {
		assert.Equal(t, want, normalizeBasePath(in), "input %q", in)
	}
}
