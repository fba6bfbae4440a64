package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	HTTPAddr string

	LogLevel  string
	LogFormat string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	SeedDemo bool

	Warmup WarmupConfig
	Stream StreamConfig
}

// WarmupConfig controls the background snapshot warm-up loop.
type WarmupConfig struct {
	Enabled   bool
	Interval  time.Duration
	BatchSize int
	Staleness time.Duration
}

// StreamConfig controls websocket delivery defaults.
type StreamConfig struct {
	DefaultInterval time.Duration
	MinInterval     time.Duration
	MaxInterval     time.Duration
	WriteTimeout    time.Duration
}

// Load reads configuration from the environment, with an optional .env file
// for local development.
func Load() Config {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("APP_SERVICE", "pulse")
	v.SetDefault("APP_VERSION", "0.1.0")
	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("DATABASE_TYPE", "postgres")
	v.SetDefault("DATABASE_HOST", "localhost")
	v.SetDefault("DATABASE_PORT", "5432")
	v.SetDefault("DATABASE_NAME", "pulse")
	v.SetDefault("DATABASE_USER", "postgres")
	v.SetDefault("DATABASE_PASSWORD", "")
	v.SetDefault("DATABASE_SSLMODE", "disable")
	v.SetDefault("DATABASE_MAX_IDLE_CONN", 10)
	v.SetDefault("DATABASE_MAX_OPEN_CONN", 50)
	v.SetDefault("DATABASE_CONN_MAX_LIFETIME", 3600)

	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("SEED_DEMO", false)

	v.SetDefault("WARMUP_ENABLED", true)
	v.SetDefault("WARMUP_INTERVAL", "15m")
	v.SetDefault("WARMUP_BATCH_SIZE", 25)
	v.SetDefault("WARMUP_STALENESS", "1h")

	v.SetDefault("STREAM_DEFAULT_INTERVAL", "30s")
	v.SetDefault("STREAM_MIN_INTERVAL", "10s")
	v.SetDefault("STREAM_MAX_INTERVAL", "300s")
	v.SetDefault("STREAM_WRITE_TIMEOUT", "10s")

	return Config{
		AppName:     v.GetString("APP_SERVICE"),
		AppVersion:  v.GetString("APP_VERSION"),
		Environment: v.GetString("ENVIRONMENT"),

		HTTPAddr: v.GetString("HTTP_ADDR"),

		LogLevel:  v.GetString("LOG_LEVEL"),
		LogFormat: v.GetString("LOG_FORMAT"),

		DBType:            v.GetString("DATABASE_TYPE"),
		DBHost:            v.GetString("DATABASE_HOST"),
		DBPort:            v.GetString("DATABASE_PORT"),
		DBName:            v.GetString("DATABASE_NAME"),
		DBUser:            v.GetString("DATABASE_USER"),
		DBPassword:        v.GetString("DATABASE_PASSWORD"),
		DBSSLMode:         v.GetString("DATABASE_SSLMODE"),
		DBMaxIdleConn:     v.GetInt("DATABASE_MAX_IDLE_CONN"),
		DBMaxOpenConn:     v.GetInt("DATABASE_MAX_OPEN_CONN"),
		DBConnMaxLifetime: v.GetInt("DATABASE_CONN_MAX_LIFETIME"),

		RedisAddr:     v.GetString("REDIS_ADDR"),
		RedisPassword: v.GetString("REDIS_PASSWORD"),
		RedisDB:       v.GetInt("REDIS_DB"),

		SeedDemo: v.GetBool("SEED_DEMO"),

		Warmup: WarmupConfig{
			Enabled:   v.GetBool("WARMUP_ENABLED"),
			Interval:  v.GetDuration("WARMUP_INTERVAL"),
			BatchSize: v.GetInt("WARMUP_BATCH_SIZE"),
			Staleness: v.GetDuration("WARMUP_STALENESS"),
		},
		Stream: StreamConfig{
			DefaultInterval: v.GetDuration("STREAM_DEFAULT_INTERVAL"),
			MinInterval:     v.GetDuration("STREAM_MIN_INTERVAL"),
			MaxInterval:     v.GetDuration("STREAM_MAX_INTERVAL"),
			WriteTimeout:    v.GetDuration("STREAM_WRITE_TIMEOUT"),
		},
	}
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}
