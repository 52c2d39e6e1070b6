package config

import (
	"net/url"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	App        AppConfig
	Database   DatabaseConfig
	Calculator CalculatorConfig
	Catalog    CatalogConfig
	Log        LogConfig
}

// AppConfig holds application configuration
type AppConfig struct {
	Env  string
	Port string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	PoolMax         int
	PoolMinConns    int
	PoolMaxConnLife time.Duration
}

// CalculatorConfig holds formula engine configuration
type CalculatorConfig struct {
	Timeout         time.Duration
	Workers         int
	BatchWorkers    int
	DefinitionsDir  string
	StrictVariables bool
}

// CatalogConfig holds catalog data source configuration
type CatalogConfig struct {
	CacheTTL      time.Duration
	CacheBackend  string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	DefaultLimit  int
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string
	Format string
}

// Load loads configuration from environment variables
func Load() *Config {
	return &Config{
		App: AppConfig{
			Env:  getEnv("APP_ENV", "development"),
			Port: getEnv("APP_PORT", "8080"),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			Name:            getEnv("DB_NAME", "doorcalc"),
			PoolMax:         getEnvInt("DB_POOL_MAX", 20),
			PoolMinConns:    getEnvInt("DB_POOL_MIN", 2),
			PoolMaxConnLife: time.Duration(getEnvInt("DB_POOL_MAX_CONN_LIFE_MINUTES", 30)) * time.Minute,
		},
		Calculator: CalculatorConfig{
			Timeout:         getEnvDuration("CALC_TIMEOUT", 5*time.Second),
			Workers:         getEnvInt("CALC_WORKERS", 1),
			BatchWorkers:    getEnvInt("CALC_BATCH_WORKERS", 8),
			DefinitionsDir:  getEnv("CALC_DEFINITIONS_DIR", "definitions"),
			StrictVariables: getEnvBool("CALC_STRICT_VARIABLES", false),
		},
		Catalog: CatalogConfig{
			CacheTTL:      getEnvDuration("CATALOG_CACHE_TTL", 5*time.Minute),
			CacheBackend:  getEnv("CATALOG_CACHE_BACKEND", "memory"),
			RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       getEnvInt("REDIS_DB", 0),
			DefaultLimit:  getEnvInt("CATALOG_DEFAULT_LIMIT", 100),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     c.Host + ":" + c.Port,
		Path:     "/" + c.Name,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("750ms", "5m") or plain seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
