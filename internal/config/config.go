package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const PROD_STRING = "prod"

// Storage backends selectable through RESERVATION_STORE and LISTING_STORE.
const (
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
	StoreMemory   = "memory"
)

// Config holds all application configuration loaded from environment.
type Config struct {
	Env               string
	IsProduction      bool
	ProdOrigins       string
	HTTPAddr          string
	DBDSN             string
	ReservationStore  string
	ListingStore      string
	MongoURI          string
	MongoDB           string
	RedisURL          string
	ListingCacheTTL   time.Duration
	JWTSecret         string
	JWTAccessTokenTTL time.Duration
	BcryptCost        int
	StripeSecretKey   string
	PaymentTimeout    time.Duration
	SweepSchedule     string
	PendingTTL        time.Duration
}

// Load loads configuration from .env (optional) and environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}

	cfg := &Config{}

	// Application environment (default: dev)
	cfg.Env = getEnv("APP_ENV", "dev")
	cfg.IsProduction = cfg.Env == PROD_STRING

	// Production origin (default: empty)
	cfg.ProdOrigins = getEnv("PROD_ORIGINS", "")

	// HTTP listen address (default: :8080)
	cfg.HTTPAddr = getEnv("HTTP_ADDR", ":8080")

	cfg.ReservationStore = getEnv("RESERVATION_STORE", StorePostgres)
	if cfg.ReservationStore != StorePostgres && cfg.ReservationStore != StoreMemory {
		return nil, fmt.Errorf("invalid RESERVATION_STORE %q", cfg.ReservationStore)
	}

	cfg.ListingStore = getEnv("LISTING_STORE", StorePostgres)
	switch cfg.ListingStore {
	case StorePostgres, StoreMongo, StoreMemory:
	default:
		return nil, fmt.Errorf("invalid LISTING_STORE %q", cfg.ListingStore)
	}

	// Database DSN is required, users always live in Postgres
	cfg.DBDSN = os.Getenv("DB_DSN")
	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("DB_DSN is required")
	}

	cfg.MongoURI = os.Getenv("MONGO_URI")
	cfg.MongoDB = getEnv("MONGO_DB", "listings")
	if cfg.ListingStore == StoreMongo && cfg.MongoURI == "" {
		return nil, fmt.Errorf("MONGO_URI is required when LISTING_STORE=mongo")
	}

	// Optional Redis cache in front of the listing store
	cfg.RedisURL = os.Getenv("REDIS_URL")

	if cfg.IsProduction && (cfg.ReservationStore == StoreMemory || cfg.ListingStore == StoreMemory) {
		return nil, fmt.Errorf("memory stores are not allowed in production")
	}

	// JWT secret is required for signing tokens
	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	var err error

	// JWT access token TTL, parse as time.Duration (e.g. "15m", "1h").
	cfg.JWTAccessTokenTTL, err = getEnvAsDuration("JWT_ACCESS_TOKEN_TTL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_ACCESS_TOKEN_TTL: %w", err)
	}

	// Bcrypt cost for password hashing (default: 12)
	cfg.BcryptCost, err = getEnvAsInt("BCRYPT_COST", 12)
	if err != nil {
		return nil, fmt.Errorf("invalid BCRYPT_COST: %w", err)
	}

	// Stripe secret key is required to confirm and refund payments
	cfg.StripeSecretKey = os.Getenv("STRIPE_SECRET_KEY")
	if cfg.StripeSecretKey == "" {
		return nil, fmt.Errorf("STRIPE_SECRET_KEY is required")
	}

	cfg.PaymentTimeout, err = getEnvAsDuration("PAYMENT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid PAYMENT_TIMEOUT: %w", err)
	}
	if cfg.PaymentTimeout <= 0 {
		return nil, fmt.Errorf("PAYMENT_TIMEOUT must be positive")
	}

	cfg.ListingCacheTTL, err = getEnvAsDuration("LISTING_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("invalid LISTING_CACHE_TTL: %w", err)
	}

	// Cron spec for the job that completes finished stays
	cfg.SweepSchedule = getEnv("SWEEP_SCHEDULE", "@every 15m")

	// Unpaid holds older than this are cancelled by the sweeper, 0 keeps them
	cfg.PendingTTL, err = getEnvAsDuration("PENDING_TTL", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid PENDING_TTL: %w", err)
	}
	if cfg.PendingTTL < 0 {
		return nil, fmt.Errorf("PENDING_TTL must not be negative")
	}

	return cfg, nil
}

// getEnv returns the value of the environment variable if set,
// otherwise returns the provided default value.
func getEnv(key, defaultValue string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer.
// It returns the default value if the variable is not set.
// It returns an error if the variable is set but is not a valid integer.
func getEnvAsInt(key string, defaultValue int) (int, error) {
	valStr := getEnv(key, "")
	if valStr == "" {
		return defaultValue, nil
	}

	val, err := strconv.Atoi(valStr)
	if err != nil {
		return 0, fmt.Errorf("env %s value %q is not a valid integer: %w", key, valStr, err)
	}

	return val, nil
}

func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	valStr := getEnv(key, "")
	if valStr == "" {
		return defaultValue, nil
	}

	d, err := time.ParseDuration(valStr)
	if err != nil {
		return 0, fmt.Errorf("env %s value %q is not a valid duration: %w", key, valStr, err)
	}

	return d, nil
}
