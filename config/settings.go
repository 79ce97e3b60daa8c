package config

import (
	"os"
	"strings"
	"time"
)

// boolFromEnv accepts 1/true/yes/y.
func boolFromEnv(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

func stringFromEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// StoreDriver selects the metric store backend: "mysql" (default) or "memory".
//
// Set via env:
// - STORE_DRIVER=memory
func StoreDriver() string {
	return strings.ToLower(stringFromEnv("STORE_DRIVER", "mysql"))
}

// SkipMigrations disables AutoMigrate on startup, for databases whose
// schema is managed elsewhere (including legacy-only deployments).
func SkipMigrations() bool {
	return boolFromEnv("SKIP_MIGRATIONS")
}

// MetricAliasesFile is the optional YAML alias table. Empty means built-in defaults.
func MetricAliasesFile() string {
	return stringFromEnv("METRIC_ALIASES_FILE", "")
}

// ChangesTopic is the Pub/Sub topic change events are mirrored to. Empty disables it.
func ChangesTopic() string {
	return stringFromEnv("CHANGES_TOPIC", "")
}

// IngestTopic is the Pub/Sub topic for asynchronous uploads. Empty disables async ingestion.
func IngestTopic() string {
	return stringFromEnv("INGEST_TOPIC", "")
}

func GCSBucket() string {
	return stringFromEnv("GCS_BUCKET", "")
}

func IngestBatchSize(def int) int {
	if n := intFromEnv("INGEST_BATCH_SIZE", def); n > 0 {
		return n
	}
	return def
}

func IngestBatchDelay(def time.Duration) time.Duration {
	ms := intFromEnv("INGEST_BATCH_DELAY_MS", -1)
	if ms < 0 {
		return def
	}
	return time.Duration(ms) * time.Millisecond
}

func IngestMaxErrors(def int) int {
	if n := intFromEnv("INGEST_MAX_ERRORS", def); n > 0 {
		return n
	}
	return def
}

func TeamflectAPIKey() string {
	return stringFromEnv("TEAMFLECT_API_KEY", "")
}

func TeamflectBaseURL() string {
	return stringFromEnv("TEAMFLECT_BASE_URL", "https://api.teamflect.com/api/v1")
}

func TeamflectRatePerMinute() int {
	return intFromEnv("TEAMFLECT_RATE_LIMIT_PER_MIN", 60)
}

func Port() string {
	return stringFromEnv("PORT", "8080")
}

// CORSAllowedOrigins is a comma separated list. Empty allows all origins.
func CORSAllowedOrigins() []string {
	raw := os.Getenv("CORS_ALLOWED_ORIGINS")
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func IsProduction() bool {
	return strings.EqualFold(os.Getenv("GO_ENV"), "production")
}
