package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	cfg := fromViper(v)

	assert.Equal(t, RateLimitMemory, cfg.RateLimit.Backend)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, 5*time.Second, cfg.Mutations.Timeout)
	assert.Equal(t, 50, cfg.Audit.DefaultLimit)
	assert.Equal(t, "campus_ops_changes", cfg.Realtime.Channel)
	assert.Equal(t, TraceExporterNone, cfg.Tracing.Exporter)
	assert.Equal(t, 1.0, cfg.Tracing.SampleRatio)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
}

func TestOverridesAndFallbacks(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("RATE_LIMIT_BACKEND", " Redis ")
	v.Set("MUTATION_TIMEOUT", "not-a-duration")
	v.Set("REALTIME_SNAPSHOT_LIMIT", -4)
	v.Set("ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	cfg := fromViper(v)

	assert.Equal(t, RateLimitRedis, cfg.RateLimit.Backend)
	assert.Equal(t, 5*time.Second, cfg.Mutations.Timeout)
	assert.Equal(t, 100, cfg.Realtime.SnapshotLimit)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)

	v.Set("TRACE_EXPORTER", " OTLP ")
	v.Set("TRACE_SAMPLE_RATIO", 3)
	cfg = fromViper(v)
	assert.Equal(t, TraceExporterOTLP, cfg.Tracing.Exporter)
	assert.Equal(t, 1.0, cfg.Tracing.SampleRatio)

	v.Set("RATE_LIMIT_BACKEND", "etcd")
	assert.Equal(t, RateLimitMemory, fromViper(v).RateLimit.Backend)
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", Name: "ops", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=ops sslmode=disable", d.DSN())
}
