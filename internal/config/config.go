package config

import (
	"os"
	"strconv"
)

// DatabaseConfig holds PostgreSQL database connection settings.
type DatabaseConfig struct {
	Host               string
	Port               string
	User               string
	Password           string
	Name               string
	SSLMode            string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeSec int
}

// MinIOConfig holds object storage settings for invoice documents.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// RedisConfig holds settings for the per-invoice lock and alert dedup store.
// An empty Addr disables redis; locking then falls back to the database row
// lock and the sweeper alerts every tick.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// ExtractionConfig points at the external OCR/extraction service.
type ExtractionConfig struct {
	Endpoint   string
	TimeoutSec int
}

// ReconcileConfig tunes the three-way match.
type ReconcileConfig struct {
	TolerancePct     float64
	LookupTimeoutSec int
}

// SweeperConfig tunes the staleness reminder job.
type SweeperConfig struct {
	IntervalMin     int
	StaleAfterHours int
	DedupTTLHours   int
}

// NotifyConfig holds the per-recipient webhook endpoints.
type NotifyConfig struct {
	ApproverURL string
	VendorURL   string
	FinanceURL  string
	TimeoutSec  int
}

// AppConfig is the centralized configuration struct for the application.
// It is populated from environment variables. Sensitive values are not hardcoded.
type AppConfig struct {
	AppHost    string
	Port       string
	Database   DatabaseConfig
	MinIO      MinIOConfig
	Redis      RedisConfig
	Extraction ExtractionConfig
	Reconcile  ReconcileConfig
	Sweeper    SweeperConfig
	Notify     NotifyConfig
}

// Load reads configuration from environment variables.
// A .env file can be auto-loaded by importing: _ "github.com/joho/godotenv/autoload"
// This function does not require a .env file; real environment variables take precedence.
func Load() *AppConfig {
	return &AppConfig{
		AppHost: getEnv("APP_HOST", "localhost:8080"),
		Port:    getEnv("PORT", "8080"), // default only for non-sensitive value
		Database: DatabaseConfig{
			Host:               getEnv("DB_HOST", ""),
			Port:               getEnv("DB_PORT", "5432"),
			User:               getEnv("DB_USER", ""),
			Password:           getEnv("DB_PASSWORD", ""),
			Name:               getEnv("DB_NAME", ""),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetimeSec: getEnvInt("DB_CONN_MAX_LIFETIME_SEC", 300),
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", "invoices"),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Extraction: ExtractionConfig{
			Endpoint:   getEnv("EXTRACTION_ENDPOINT", ""),
			TimeoutSec: getEnvInt("EXTRACTION_TIMEOUT_SEC", 30),
		},
		Reconcile: ReconcileConfig{
			TolerancePct:     getEnvFloat("RECONCILE_TOLERANCE_PCT", 0.05),
			LookupTimeoutSec: getEnvInt("RECONCILE_LOOKUP_TIMEOUT_SEC", 5),
		},
		Sweeper: SweeperConfig{
			IntervalMin:     getEnvInt("SWEEPER_INTERVAL_MIN", 60),
			StaleAfterHours: getEnvInt("SWEEPER_STALE_AFTER_HOURS", 48),
			DedupTTLHours:   getEnvInt("SWEEPER_DEDUP_TTL_HOURS", 24),
		},
		Notify: NotifyConfig{
			ApproverURL: getEnv("NOTIFY_APPROVER_URL", ""),
			VendorURL:   getEnv("NOTIFY_VENDOR_URL", ""),
			FinanceURL:  getEnv("NOTIFY_FINANCE_URL", ""),
			TimeoutSec:  getEnvInt("NOTIFY_TIMEOUT_SEC", 10),
		},
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return def
}
