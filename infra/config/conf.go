package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// AppConfig represents the application configuration
type AppConfig struct {
	Port           string
	DatabaseURL    string
	ProviderDBPath string
	APIKey         string

	OpenSearchURL  string
	OpenSearchUser string
	OpenSearchPass string
	EnableLogging  bool
	LoggingLevel   string

	ProviderTimeout    time.Duration
	LockTTL            time.Duration
	StatusCacheTTL     time.Duration
	SplitMasterTTL     time.Duration
	ReconcileInterval  time.Duration
	ReconcileStuckAge  time.Duration
	ReconcileExpireAge time.Duration
}

// Load builds the application configuration from the environment.
func Load() *AppConfig {
	return &AppConfig{
		Port:           GetEnv("APP_PORT", "9999"),
		DatabaseURL:    GetEnv("DATABASE_URL", "postgres://localhost:5432/paycore?sslmode=disable"),
		ProviderDBPath: GetEnv("PROVIDER_DB_PATH", "data/providers.db"),
		APIKey:         GetEnv("API_KEY", ""),

		OpenSearchURL:  GetEnv("OPENSEARCH_URL", "http://localhost:9200"),
		OpenSearchUser: GetEnv("OPENSEARCH_USER", ""),
		OpenSearchPass: GetEnv("OPENSEARCH_PASSWORD", ""),
		EnableLogging:  GetBoolEnv("ENABLE_OPENSEARCH_LOGGING", false),
		LoggingLevel:   GetEnv("LOGGING_LEVEL", "info"),

		ProviderTimeout:    GetDurationEnv("PROVIDER_TIMEOUT", 30*time.Second),
		LockTTL:            GetDurationEnv("PAYMENT_LOCK_TTL", 30*time.Second),
		StatusCacheTTL:     GetDurationEnv("STATUS_CACHE_TTL", 5*time.Minute),
		SplitMasterTTL:     GetDurationEnv("SPLIT_MASTER_TTL", 7*24*time.Hour),
		ReconcileInterval:  GetDurationEnv("RECONCILE_INTERVAL", 5*time.Minute),
		ReconcileStuckAge:  GetDurationEnv("RECONCILE_STUCK_AGE", 30*time.Minute),
		ReconcileExpireAge: GetDurationEnv("RECONCILE_EXPIRE_AGE", 2*time.Hour),
	}
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetBoolEnv returns the boolean value of an environment variable or a default value
func GetBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetIntEnv returns the integer value of an environment variable or a default value
func GetIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetDurationEnv returns the duration value of an environment variable or a default value
func GetDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// ProviderConfigFromEnv collects PAYCORE_<PROVIDER>_* environment
// variables into an adapter config map. Snake-case suffixes become
// camelCase keys, so PAYCORE_WEBPAY_COMMERCE_CODE maps to
// commerceCode.
func ProviderConfigFromEnv(providerName string) map[string]string {
	prefix := "PAYCORE_" + strings.ToUpper(providerName) + "_"

	cfg := make(map[string]string)
	for _, entry := range os.Environ() {
		name, value, ok := strings.Cut(entry, "=")
		if !ok || !strings.HasPrefix(name, prefix) || value == "" {
			continue
		}
		cfg[camelKey(strings.TrimPrefix(name, prefix))] = value
	}
	return cfg
}

func camelKey(snake string) string {
	parts := strings.Split(strings.ToLower(snake), "_")
	for i := 1; i < len(parts); i++ {
		if parts[i] == "" {
			continue
		}
		parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
	}
	return strings.Join(parts, "")
}
