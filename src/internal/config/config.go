package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverPostgres  = "postgres"
	DriverFirestore = "firestore"
	DriverMemory    = "memory"
)

type Config struct {
	Port     string
	LogLevel string

	StoreDriver   string
	DatabaseURL   string
	MigrationsDir string

	FirebaseProjectID       string
	FirebaseCredentialsJSON string
	AuthDevMode             bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	CacheTTL             time.Duration
	CacheRefreshInterval time.Duration

	JWTKey             []byte
	JWTExp             time.Duration
	SessionSweepPeriod time.Duration

	GitHubAPIURL string

	BlobEndpoint        string
	BlobAccessKeyID     string
	BlobAccessKeySecret string
	BlobBucket          string
	BlobPublicURL       string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	return &Config{
		Port:     getEnv("PORT", "8080"),
		LogLevel: strings.ToLower(getEnv("LOG_LEVEL", "info")),

		StoreDriver:   strings.ToLower(getEnv("STORE_DRIVER", DriverPostgres)),
		DatabaseURL:   getEnv("DATABASE_URL", "postgres://pguser:pgpass@db:5432/codeclash?sslmode=disable"),
		MigrationsDir: getEnv("MIGRATIONS_DIR", "./migrations"),

		FirebaseProjectID:       getEnv("FIREBASE_PROJECT_ID", ""),
		FirebaseCredentialsJSON: getEnv("FIREBASE_CREDENTIALS_JSON", ""),
		AuthDevMode:             getEnvAsBool("AUTH_DEV_MODE", false),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		CacheTTL:             time.Duration(getEnvAsInt("CACHE_TTL_SECONDS", 300)) * time.Second,
		CacheRefreshInterval: time.Duration(getEnvAsInt("CACHE_REFRESH_SECONDS", 60)) * time.Second,

		JWTKey:             []byte(getEnv("JWT_SECRET", "defaultsecret")),
		JWTExp:             time.Duration(getEnvAsInt("JWT_EXPIRATION_HOURS", 72)) * time.Hour,
		SessionSweepPeriod: time.Duration(getEnvAsInt("SESSION_SWEEP_SECONDS", 300)) * time.Second,

		GitHubAPIURL: strings.TrimRight(getEnv("GITHUB_API_URL", "https://api.github.com"), "/"),

		BlobEndpoint:        getEnv("BLOB_ENDPOINT", ""),
		BlobAccessKeyID:     getEnv("BLOB_ACCESS_KEY_ID", ""),
		BlobAccessKeySecret: getEnv("BLOB_ACCESS_KEY_SECRET", ""),
		BlobBucket:          getEnv("BLOB_BUCKET", ""),
		BlobPublicURL:       strings.TrimRight(getEnv("BLOB_PUBLIC_URL", ""), "/"),
	}
}

// BlobEnabled reports whether object storage credentials are configured.
func (c *Config) BlobEnabled() bool {
	return c.BlobEndpoint != "" && c.BlobBucket != ""
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return fallback
}
