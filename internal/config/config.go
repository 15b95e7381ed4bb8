package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// DateOrder selects how ambiguous numeric dates (both components <= 12) in a
// viewing-history export are interpreted.
type DateOrder string

const (
	DateOrderMDY DateOrder = "mdy"
	DateOrderDMY DateOrder = "dmy"
)

// DuplicatePolicy controls what happens when a user re-uploads a file whose
// content fingerprint was already imported successfully.
type DuplicatePolicy string

const (
	DuplicateReject DuplicatePolicy = "reject"
	DuplicateWarn   DuplicatePolicy = "warn"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Import   ImportConfig
	Rate     RateConfig
	Log      LogConfig
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host         string
	Port         string
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

// ImportConfig holds ingestion pipeline settings
type ImportConfig struct {
	MaxFileSize       int64 // upload ceiling in bytes
	MaxRows           int   // data rows per file, excluding header
	MaxCellLength     int   // characters per cell before truncation
	MaxStoredErrors   int   // row errors returned on a status query
	ProgressFlushRows int   // ledger persistence cadence in rows
	DateOrder         DateOrder
	DuplicatePolicy   DuplicatePolicy
	UploadDir         string
}

// RateConfig holds per-user rate limit settings
type RateConfig struct {
	UploadsPerHour  int
	ManualPerMinute int
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string
	Format string // "json" or "pretty"
}

// Load reads configuration from environment variables. A .env file in the
// working directory is picked up first so local development does not need a
// shell wrapper.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			ReadTimeout:     getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getDurationEnv("SERVER_WRITE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getDurationEnv("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", "postgres"),
			Name:         getEnv("DB_NAME", "mediatrack"),
			SSLMode:      getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns: getIntEnv("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getIntEnv("DB_MAX_IDLE_CONNS", 5),
			MaxLifetime:  getDurationEnv("DB_MAX_LIFETIME", 5*time.Minute),
		},
		Import: ImportConfig{
			MaxFileSize:       getInt64Env("MAX_FILE_SIZE", 10*1024*1024), // 10 MiB
			MaxRows:           getIntEnv("MAX_CSV_ROWS", 10000),
			MaxCellLength:     getIntEnv("MAX_CELL_LENGTH", 500),
			MaxStoredErrors:   getIntEnv("MAX_STORED_ERRORS", 100),
			ProgressFlushRows: getIntEnv("PROGRESS_FLUSH_ROWS", 10),
			DateOrder:         DateOrder(getEnv("DATE_ORDER", string(DateOrderMDY))),
			DuplicatePolicy:   DuplicatePolicy(getEnv("DUPLICATE_POLICY", string(DuplicateReject))),
			UploadDir:         getEnv("UPLOAD_DIR", "./data/uploads"),
		},
		Rate: RateConfig{
			UploadsPerHour:  getIntEnv("UPLOAD_RATE_PER_HOUR", 5),
			ManualPerMinute: getIntEnv("MANUAL_RATE_PER_MINUTE", 30),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return fmt.Errorf("DB_HOST is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("DB_NAME is required")
	}
	switch c.Import.DateOrder {
	case DateOrderMDY, DateOrderDMY:
	default:
		return fmt.Errorf("DATE_ORDER must be %q or %q", DateOrderMDY, DateOrderDMY)
	}
	switch c.Import.DuplicatePolicy {
	case DuplicateReject, DuplicateWarn:
	default:
		return fmt.Errorf("DUPLICATE_POLICY must be %q or %q", DuplicateReject, DuplicateWarn)
	}
	if c.Import.MaxFileSize <= 0 {
		return fmt.Errorf("MAX_FILE_SIZE must be positive")
	}
	if c.Import.ProgressFlushRows <= 0 {
		return fmt.Errorf("PROGRESS_FLUSH_ROWS must be positive")
	}
	// Zero would divide-by-zero in the token bucket refill interval
	if c.Rate.UploadsPerHour <= 0 {
		return fmt.Errorf("UPLOAD_RATE_PER_HOUR must be positive")
	}
	if c.Rate.ManualPerMinute <= 0 {
		return fmt.Errorf("MANUAL_RATE_PER_MINUTE must be positive")
	}
	return nil
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getInt64Env(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
