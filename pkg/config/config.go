package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Rate limiter backends.
const (
	RateLimitMemory = "memory"
	RateLimitRedis  = "redis"
)

const (
	TraceExporterNone   = "none"
	TraceExporterStdout = "stdout"
	TraceExporterOTLP   = "otlp"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	CORS        CORSConfig
	Log         LogConfig
	RateLimit   RateLimitConfig
	Mutations   MutationsConfig
	Realtime    RealtimeConfig
	SideEffects SideEffectsConfig
	Audit       AuditConfig
	Tracing     TracingConfig
	Swagger     SwaggerConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

// DSN renders the lib/pq connection string. The change feed listener dials
// with the same string as the pool.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Issuer     string
	Expiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// RateLimitConfig bounds writes per caller per action class.
type RateLimitConfig struct {
	Backend     string
	TaskWrite   int
	TaskComment int
	ExamWrite   int
	Window      time.Duration
}

// MutationsConfig bounds how long a single boundary call may take.
type MutationsConfig struct {
	Timeout time.Duration
}

// RealtimeConfig controls the LISTEN/NOTIFY change feed and snapshot size.
type RealtimeConfig struct {
	Enabled       bool
	Channel       string
	SnapshotLimit int
}

// SideEffectsConfig sizes the detached job queue.
type SideEffectsConfig struct {
	Workers int
	Retries int
}

type AuditConfig struct {
	DefaultLimit int
}

// TracingConfig selects the OpenTelemetry span exporter.
type TracingConfig struct {
	Exporter    string
	Endpoint    string
	Insecure    bool
	SampleRatio float64
}

type SwaggerConfig struct {
	Enabled bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Issuer:     v.GetString("JWT_ISSUER"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	backend := strings.ToLower(strings.TrimSpace(v.GetString("RATE_LIMIT_BACKEND")))
	if backend != RateLimitRedis {
		backend = RateLimitMemory
	}
	cfg.RateLimit = RateLimitConfig{
		Backend:     backend,
		TaskWrite:   v.GetInt("RATE_LIMIT_TASK_WRITE"),
		TaskComment: v.GetInt("RATE_LIMIT_TASK_COMMENT"),
		ExamWrite:   v.GetInt("RATE_LIMIT_EXAM_WRITE"),
		Window:      parseDuration(v.GetString("RATE_LIMIT_WINDOW"), time.Minute),
	}

	cfg.Mutations = MutationsConfig{
		Timeout: parseDuration(v.GetString("MUTATION_TIMEOUT"), 5*time.Second),
	}

	cfg.Realtime = RealtimeConfig{
		Enabled:       v.GetBool("REALTIME_ENABLED"),
		Channel:       v.GetString("REALTIME_CHANNEL"),
		SnapshotLimit: positive(v.GetInt("REALTIME_SNAPSHOT_LIMIT"), 100),
	}

	cfg.SideEffects = SideEffectsConfig{
		Workers: positive(v.GetInt("SIDE_EFFECT_WORKERS"), 1),
		Retries: v.GetInt("SIDE_EFFECT_RETRIES"),
	}

	cfg.Audit = AuditConfig{DefaultLimit: positive(v.GetInt("AUDIT_DEFAULT_LIMIT"), 50)}

	exporter := strings.ToLower(strings.TrimSpace(v.GetString("TRACE_EXPORTER")))
	if exporter == "" {
		exporter = TraceExporterNone
	}
	ratio := v.GetFloat64("TRACE_SAMPLE_RATIO")
	if ratio <= 0 || ratio > 1 {
		ratio = 1
	}
	cfg.Tracing = TracingConfig{
		Exporter:    exporter,
		Endpoint:    v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
		Insecure:    v.GetBool("OTEL_EXPORTER_OTLP_INSECURE"),
		SampleRatio: ratio,
	}

	cfg.Swagger = SwaggerConfig{Enabled: v.GetBool("ENABLE_SWAGGER")}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "campus_ops")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "campus-ops")
	v.SetDefault("JWT_EXPIRATION", "24h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("RATE_LIMIT_BACKEND", RateLimitMemory)
	v.SetDefault("RATE_LIMIT_TASK_WRITE", 30)
	v.SetDefault("RATE_LIMIT_TASK_COMMENT", 60)
	v.SetDefault("RATE_LIMIT_EXAM_WRITE", 20)
	v.SetDefault("RATE_LIMIT_WINDOW", "1m")

	v.SetDefault("MUTATION_TIMEOUT", "5s")

	v.SetDefault("REALTIME_ENABLED", true)
	v.SetDefault("REALTIME_CHANNEL", "campus_ops_changes")
	v.SetDefault("REALTIME_SNAPSHOT_LIMIT", 100)

	v.SetDefault("SIDE_EFFECT_WORKERS", 2)
	v.SetDefault("SIDE_EFFECT_RETRIES", 3)

	v.SetDefault("AUDIT_DEFAULT_LIMIT", 50)
	v.SetDefault("TRACE_EXPORTER", TraceExporterNone)
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", true)
	v.SetDefault("TRACE_SAMPLE_RATIO", 1.0)

	v.SetDefault("ENABLE_SWAGGER", true)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}

	return d
}

func positive(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
