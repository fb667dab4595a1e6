package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	Admin      AdminConfig
	ClickHouse ClickHouseConfig
	AWS        AWSConfig
	Ingest     IngestConfig
	Optimizer  OptimizerConfig
	Retention  RetentionConfig
	Scanner    ScannerConfig
	Location   *time.Location
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all (e.g. http://localhost:3000,http://localhost:3001)
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is (e.g. postgres://localhost:5432/adengine?sslmode=disable)
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT signing and validation settings.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// AdminConfig is the account seeded on first start.
type AdminConfig struct {
	Email    string
	Password string
}

// ClickHouseConfig is the raw session store. Empty Addr keeps sessions in memory.
type ClickHouseConfig struct {
	Addr          string
	Database      string
	Username      string
	Password      string
	RetentionDays int
}

// Enabled reports whether ClickHouse is configured.
func (c ClickHouseConfig) Enabled() bool { return c.Addr != "" }

// AWSConfig holds AWS credentials and the cold-archive bucket.
type AWSConfig struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	ArchiveBucket        string
	ArchivePrefix        string
	PresignExpireMinutes int
}

// Enabled reports whether the cold archive is configured.
func (c AWSConfig) Enabled() bool { return c.ArchiveBucket != "" }

// IngestConfig tunes the telemetry ingestor.
type IngestConfig struct {
	RateWindow time.Duration
	StaleAfter time.Duration
	ArchiveCap int
	ArchiveTTL time.Duration
	SinkBuffer int
	SinkBatch  int
	SinkFlush  time.Duration
}

// OptimizerConfig tunes the daily job.
type OptimizerConfig struct {
	MinSessions int
	MaxChanges  int
	Timeout     time.Duration
	LogCap      int
}

// RetentionConfig bounds stored history.
type RetentionConfig struct {
	StatsDays    int
	SnapshotDays int
}

// ScannerConfig tunes placement.
type ScannerConfig struct {
	MinParagraphs int
	ParagraphPx   int
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	loc, err := time.LoadLocation(getEnv("TIMEZONE", "UTC"))
	if err != nil {
		return nil, fmt.Errorf("TIMEZONE: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:3001"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "adengine"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: getEnvInt("DB_MAX_CONNS", 0),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 24),
		},
		Admin: AdminConfig{
			Email:    getEnv("ADMIN_EMAIL", ""),
			Password: getEnv("ADMIN_PASSWORD", ""),
		},
		ClickHouse: ClickHouseConfig{
			Addr:          getEnv("CLICKHOUSE_ADDR", ""),
			Database:      getEnv("CLICKHOUSE_DB", "default"),
			Username:      getEnv("CLICKHOUSE_USERNAME", "default"),
			Password:      getEnv("CLICKHOUSE_PASSWORD", ""),
			RetentionDays: getEnvInt("CLICKHOUSE_RETENTION_DAYS", 14),
		},
		AWS: AWSConfig{
			Region:               getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
			ArchiveBucket:        getEnv("AWS_S3_ARCHIVE_BUCKET", ""),
			ArchivePrefix:        getEnv("AWS_S3_ARCHIVE_PREFIX", ""),
			PresignExpireMinutes: getEnvInt("AWS_PRESIGN_EXPIRE_MINUTES", 15),
		},
		Ingest: IngestConfig{
			RateWindow: getEnvDuration("INGEST_RATE_WINDOW", 5*time.Second),
			StaleAfter: getEnvDuration("INGEST_STALE_AFTER", 60*time.Second),
			ArchiveCap: getEnvInt("INGEST_ARCHIVE_CAP", 300),
			ArchiveTTL: getEnvDuration("INGEST_ARCHIVE_TTL", 2*time.Hour),
			SinkBuffer: getEnvInt("SESSION_SINK_BUFFER", 10000),
			SinkBatch:  getEnvInt("SESSION_SINK_BATCH", 500),
			SinkFlush:  getEnvDuration("SESSION_SINK_FLUSH", 5*time.Second),
		},
		Optimizer: OptimizerConfig{
			MinSessions: getEnvInt("OPTIMIZER_MIN_SESSIONS", 20),
			MaxChanges:  getEnvInt("OPTIMIZER_MAX_CHANGES", 3),
			Timeout:     getEnvDuration("OPTIMIZER_TIMEOUT", 2*time.Minute),
			LogCap:      getEnvInt("OPTIMIZER_LOG_CAP", 90),
		},
		Retention: RetentionConfig{
			StatsDays:    getEnvInt("STATS_RETENTION_DAYS", 90),
			SnapshotDays: getEnvInt("SNAPSHOT_RETENTION_DAYS", 30),
		},
		Scanner: ScannerConfig{
			MinParagraphs: getEnvInt("SCANNER_MIN_PARAGRAPHS", 3),
			ParagraphPx:   getEnvInt("SCANNER_PARAGRAPH_PX", 300),
		},
		Location: loc,
	}
	return cfg, nil
}

// CORSOrigins returns the allowed origins as a list.
func (c ServerConfig) CORSOrigins() []string {
	return splitTrim(c.CORSAllowedOrigins, ",")
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// getEnvDuration accepts Go durations ("90s") or bare seconds ("90").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

func splitTrim(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, v := range strings.Split(s, sep) {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
