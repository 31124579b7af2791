package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	DatabaseURL           string
	HTTPPort              string
	RecordsURL            string
	RecordsRetryMax       int
	RecordsRetryBaseDelay time.Duration
	IdentityCacheTTL      time.Duration
	OracleMaxAge          time.Duration
	AdminAPIKey           string
	KeeperAPIKey          string
	AuthorityID           string
	KeeperID              string
	SettlementPoolID      string
	SettlementInterval    time.Duration
	NAVInterval           time.Duration
	ExpiryInterval        time.Duration
	SnapshotInterval      time.Duration
	RateMode              string
	GoogleSheetsID        string
	GoogleCredentialsJSON string
}

// LoadDotEnv loads variables from the given .env files without overriding variables that are
// already set. Missing files are ignored.
func LoadDotEnv(files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("failed to load env file", "file", f, "error", err)
		}
	}
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	return Config{
		DatabaseURL:           envOrDefaultWarn("DATABASE_URL", ""),
		HTTPPort:              envOrDefault("HTTP_PORT", "8080"),
		RecordsURL:            envOrDefaultWarn("RECORDS_URL", ""),
		RecordsRetryMax:       envOrDefaultInt("RECORDS_RETRY_MAX", 5),
		RecordsRetryBaseDelay: envOrDefaultDuration("RECORDS_RETRY_BASE_DELAY", 2*time.Second),
		IdentityCacheTTL:      envOrDefaultDuration("IDENTITY_CACHE_TTL", time.Minute),
		OracleMaxAge:          envOrDefaultDuration("ORACLE_MAX_AGE", 300*time.Second),
		AdminAPIKey:           os.Getenv("ADMIN_API_KEY"),
		KeeperAPIKey:          os.Getenv("KEEPER_API_KEY"),
		AuthorityID:           os.Getenv("AUTHORITY_ID"),
		KeeperID:              os.Getenv("KEEPER_ID"),
		SettlementPoolID:      os.Getenv("SETTLEMENT_POOL_ID"),
		SettlementInterval:    envOrDefaultDuration("SETTLEMENT_INTERVAL", 10*time.Second),
		NAVInterval:           envOrDefaultDuration("NAV_INTERVAL", time.Minute),
		ExpiryInterval:        envOrDefaultDuration("EXPIRY_INTERVAL", 5*time.Minute),
		SnapshotInterval:      envOrDefaultDuration("SNAPSHOT_INTERVAL", 24*time.Hour),
		RateMode:              envOrDefault("RATE_MODE", "latest"),
		GoogleSheetsID:        os.Getenv("GOOGLE_SHEETS_ID"),
		GoogleCredentialsJSON: os.Getenv("GOOGLE_CREDENTIALS_JSON"),
	}
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultWarn(key, defaultVal string) string {
	v := envOrDefault(key, defaultVal)
	if v == "" {
		slog.Warn("env var not set", "key", key)
	}
	return v
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			slog.Warn("invalid integer env var, using default", "key", key, "value", v, "default", defaultVal)
			return defaultVal
		}
		return n
	}
	return defaultVal
}

func envOrDefaultDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			slog.Warn("invalid duration env var, using default", "key", key, "value", v, "default", defaultVal)
			return defaultVal
		}
		return d
	}
	return defaultVal
}
