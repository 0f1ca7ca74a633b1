package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Env      string
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	PriceAPI PriceAPIConfig
	Prewarm  PrewarmConfig
	Archive  ArchiveConfig
	Log      LogConfig
	OTEL     OTELConfig
}

// ServerConfig holds the status server configuration
type ServerConfig struct {
	Host string
	Port int
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// PriceAPIConfig configures the upstream flight price provider.
type PriceAPIConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration

	// Breaker settings for the upstream circuit breaker.
	BreakerMaxFailures uint32
	BreakerOpenTimeout time.Duration
}

// PrewarmConfig holds the tunables of the pre-warm job.
type PrewarmConfig struct {
	LookbackDays        int
	TopRoutes           int
	MaxDatesPerRoute    int
	BatchSize           int
	BatchDelay          time.Duration
	DefaultTTLSeconds   int
	FetchTimeout        time.Duration
	Concurrency         int
	MaxBatchFailureRate float64
	MinBatchSamples     int
	ErrorLimit          int
	Currency            string
	Schedule            string
	RunOnStart          bool
	LockTTL             time.Duration
}

// ArchiveConfig points at the S3 bucket run reports are archived to. Archiving
// is off when Bucket is empty.
type ArchiveConfig struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// Enabled reports whether a bucket is configured.
func (c *ArchiveConfig) Enabled() bool {
	return c.Bucket != ""
}

// LogConfig enables a rotated JSON log file next to stdout.
type LogConfig struct {
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// OTELConfig holds OpenTelemetry configuration
type OTELConfig struct {
	ServiceName    string
	ServiceVersion string
	Endpoint       string
	Enabled        bool
}

// LoadEnvFile reads a .env file from the working directory into the
// environment when present. Variables already set are kept.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// Load loads configuration from environment variables. A .env file in the
// working directory is read first when present.
func Load() (*Config, error) {
	LoadEnvFile()

	cfg := &Config{
		Env: getEnv("ENV", "production"),
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnvAsInt("SERVER_PORT", 8090),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "fly2any"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		PriceAPI: PriceAPIConfig{
			BaseURL:            getEnv("PRICE_API_URL", "http://localhost:3000/api/flights"),
			APIKey:             getEnv("PRICE_API_KEY", ""),
			Timeout:            getEnvAsDuration("PRICE_API_TIMEOUT", 10*time.Second),
			BreakerMaxFailures: uint32(getEnvAsInt("PRICE_API_BREAKER_MAX_FAILURES", 10)),
			BreakerOpenTimeout: getEnvAsDuration("PRICE_API_BREAKER_OPEN_TIMEOUT", 30*time.Second),
		},
		Prewarm: PrewarmConfig{
			LookbackDays:        getEnvAsInt("PREWARM_LOOKBACK_DAYS", 30),
			TopRoutes:           getEnvAsInt("PREWARM_TOP_ROUTES", 100),
			MaxDatesPerRoute:    getEnvAsInt("PREWARM_MAX_DATES_PER_ROUTE", 4),
			BatchSize:           getEnvAsInt("PREWARM_BATCH_SIZE", 20),
			BatchDelay:          getEnvAsDuration("PREWARM_BATCH_DELAY", 100*time.Millisecond),
			DefaultTTLSeconds:   getEnvAsInt("PREWARM_DEFAULT_TTL_SECONDS", 900),
			FetchTimeout:        getEnvAsDuration("PREWARM_FETCH_TIMEOUT", 10*time.Second),
			Concurrency:         getEnvAsInt("PREWARM_CONCURRENCY", 1),
			MaxBatchFailureRate: getEnvAsFloat("PREWARM_MAX_BATCH_FAILURE_RATE", 0.5),
			MinBatchSamples:     getEnvAsInt("PREWARM_MIN_BATCH_SAMPLES", 5),
			ErrorLimit:          getEnvAsInt("PREWARM_ERROR_LIMIT", 10),
			Currency:            strings.ToUpper(getEnv("PREWARM_CURRENCY", "USD")),
			Schedule:            getEnv("PREWARM_SCHEDULE", "0 */30 * * * *"),
			RunOnStart:          getEnvAsBool("PREWARM_RUN_ON_START", false),
			LockTTL:             getEnvAsDuration("PREWARM_LOCK_TTL", 30*time.Minute),
		},
		Archive: ArchiveConfig{
			Bucket:          getEnv("REPORT_ARCHIVE_BUCKET", ""),
			Prefix:          getEnv("REPORT_ARCHIVE_PREFIX", "prewarm/reports"),
			Region:          getEnv("AWS_REGION", "us-east-1"),
			Endpoint:        getEnv("REPORT_ARCHIVE_ENDPOINT", ""),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		},
		Log: LogConfig{
			File:       getEnv("LOG_FILE", ""),
			MaxSizeMB:  getEnvAsInt("LOG_MAX_SIZE_MB", 100),
			MaxBackups: getEnvAsInt("LOG_MAX_BACKUPS", 5),
			MaxAgeDays: getEnvAsInt("LOG_MAX_AGE_DAYS", 14),
			Compress:   getEnvAsBool("LOG_COMPRESS", true),
		},
		OTEL: OTELConfig{
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "fly2any-prewarm"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "1.0.0"),
			Endpoint:       getEnv("OTEL_ENDPOINT", ""),
			Enabled:        getEnvAsBool("OTEL_ENABLED", false),
		},
	}

	if err := cfg.Prewarm.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the job cannot run with.
func (c *PrewarmConfig) Validate() error {
	switch {
	case c.LookbackDays <= 0:
		return fmt.Errorf("PREWARM_LOOKBACK_DAYS must be positive, got %d", c.LookbackDays)
	case c.TopRoutes <= 0:
		return fmt.Errorf("PREWARM_TOP_ROUTES must be positive, got %d", c.TopRoutes)
	case c.MaxDatesPerRoute <= 0:
		return fmt.Errorf("PREWARM_MAX_DATES_PER_ROUTE must be positive, got %d", c.MaxDatesPerRoute)
	case c.BatchSize <= 0:
		return fmt.Errorf("PREWARM_BATCH_SIZE must be positive, got %d", c.BatchSize)
	case c.BatchDelay < 0:
		return fmt.Errorf("PREWARM_BATCH_DELAY must not be negative, got %s", c.BatchDelay)
	case c.DefaultTTLSeconds <= 0:
		return fmt.Errorf("PREWARM_DEFAULT_TTL_SECONDS must be positive, got %d", c.DefaultTTLSeconds)
	case c.Concurrency <= 0:
		return fmt.Errorf("PREWARM_CONCURRENCY must be positive, got %d", c.Concurrency)
	case c.MaxBatchFailureRate > 1:
		return fmt.Errorf("PREWARM_MAX_BATCH_FAILURE_RATE must be at most 1, got %v", c.MaxBatchFailureRate)
	case len(c.Currency) != 3:
		return fmt.Errorf("PREWARM_CURRENCY must be a 3-letter code, got %q", c.Currency)
	}
	return nil
}

// DatabaseDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisAddr returns the Redis address
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ServerAddr returns the listen address of the status server
func (c *ServerConfig) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("250ms") or a bare integer of milliseconds.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}
