package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the session gateway.
type Config struct {
	App      AppConfig
	API      APIConfig
	Store    StoreConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Watcher  WatcherConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	LoginPath             string
	RequestTimeoutSeconds int
}

// APIConfig points at the storefront backend.
type APIConfig struct {
	BaseURL               string
	RequestTimeoutSeconds int
	VerifyOnStartup       bool
}

// StoreConfig selects and tunes the token store backend.
type StoreConfig struct {
	Driver     string
	Namespace  string
	FilePath   string
	FileKey    string
	TTLSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// WatcherConfig configures the background expiry watcher.
type WatcherConfig struct {
	IntervalSeconds int
}

// Store drivers understood by persistence.Open.
const (
	StoreDriverMemory   = "memory"
	StoreDriverFile     = "file"
	StoreDriverRedis    = "redis"
	StoreDriverPostgres = "postgres"
)

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	driver := strings.ToLower(getEnv("STORE_DRIVER", StoreDriverFile))
	switch driver {
	case StoreDriverMemory, StoreDriverFile, StoreDriverRedis, StoreDriverPostgres:
	default:
		return nil, fmt.Errorf("invalid STORE_DRIVER: %q", driver)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "storefront-session"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "127.0.0.1"),
			Port:                  getEnv("APP_PORT", "8081"),
			Version:               getEnv("APP_VERSION", "dev"),
			LoginPath:             getEnv("APP_LOGIN_PATH", "/login"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		API: APIConfig{
			BaseURL:               strings.TrimRight(getEnv("API_BASE_URL", "http://localhost:5000"), "/"),
			RequestTimeoutSeconds: getEnvAsInt("API_REQUEST_TIMEOUT_SECONDS", 10),
			VerifyOnStartup:       getEnvAsBool("API_VERIFY_ON_STARTUP", true),
		},
		Store: StoreConfig{
			Driver:     driver,
			Namespace:  getEnv("STORE_NAMESPACE", "default"),
			FilePath:   getEnv("STORE_FILE_PATH", defaultStorePath()),
			FileKey:    os.Getenv("STORE_FILE_KEY"),
			TTLSeconds: getEnvAsInt("STORE_TTL_SECONDS", 0),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 4)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 1)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Watcher: WatcherConfig{
			IntervalSeconds: getEnvAsInt("WATCHER_INTERVAL_SECONDS", 30),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// RequestTimeout bounds every call to the backend. Zero falls back to 10s so
// that a hung backend can never leave the session in a loading state.
func (a APIConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// TTL returns the optional expiry applied to stored entries.
func (s StoreConfig) TTL() time.Duration {
	if s.TTLSeconds <= 0 {
		return 0
	}
	return time.Duration(s.TTLSeconds) * time.Second
}

// Interval returns the watcher tick, or zero when disabled.
func (w WatcherConfig) Interval() time.Duration {
	if w.IntervalSeconds <= 0 {
		return 0
	}
	return time.Duration(w.IntervalSeconds) * time.Second
}

func defaultStorePath() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		return "emporia-session.json"
	}
	return dir + string(os.PathSeparator) + "emporia" + string(os.PathSeparator) + "session.json"
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
