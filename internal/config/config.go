package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrMissingCredentials is a fatal configuration failure, not recoverable at runtime.
var ErrMissingCredentials = errors.New("missing required backend credentials")

type Config struct {
	AppEnv   string
	LogLevel string

	HTTPPort           string
	RequestTimeout     time.Duration
	ShutdownTimeout    time.Duration
	MaxRequestBodySize int64

	CommerceBackendURL     string
	CommercePublishableKey string
	PaymentPublishableKey  string
	CustomerEmail          string
	CustomerPassword       string
	BackendTimeout         time.Duration

	RetryAttempts int
	RetryDelay    time.Duration

	RedisAddr     string
	RedisPassword string

	// RefStore is "mongo" or "memory"; memory keeps cart references in
	// process and suits single-instance development.
	RefStore            string
	MongoURI            string
	MongoDBName         string
	MongoMaxPoolSize    uint64
	MongoMinPoolSize    uint64
	MongoConnectTimeout time.Duration

	DBHost         string
	DBPort         int
	DBUser         string
	DBPassword     string
	DBName         string
	MigrationsPath string

	KafkaBrokers  []string
	OrdersTopic   string
	KafkaGroupID  string
	EventsEnabled bool
}

func Load() (*Config, error) {
	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}
	attempts, err := strconv.Atoi(getEnv("RETRY_ATTEMPTS", "3"))
	if err != nil {
		return nil, fmt.Errorf("invalid RETRY_ATTEMPTS: %w", err)
	}
	mongoMaxPool, err := strconv.ParseUint(getEnv("MONGO_MAX_POOL_SIZE", "50"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid MONGO_MAX_POOL_SIZE: %w", err)
	}
	mongoMinPool, err := strconv.ParseUint(getEnv("MONGO_MIN_POOL_SIZE", "5"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid MONGO_MIN_POOL_SIZE: %w", err)
	}

	cfg := &Config{
		AppEnv:   getEnv("APP_ENV", "dev"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		HTTPPort:           getEnv("HTTP_PORT", "8080"),
		RequestTimeout:     getDuration("REQUEST_TIMEOUT", 30*time.Second),
		ShutdownTimeout:    10 * time.Second,
		MaxRequestBodySize: 1 << 20, // 1MB

		CommerceBackendURL:     strings.TrimRight(getEnv("COMMERCE_BACKEND_URL", ""), "/"),
		CommercePublishableKey: getEnv("COMMERCE_PUBLISHABLE_KEY", ""),
		PaymentPublishableKey:  getEnv("PAYMENT_PUBLISHABLE_KEY", ""),
		CustomerEmail:          getEnv("COMMERCE_CUSTOMER_EMAIL", ""),
		CustomerPassword:       getEnv("COMMERCE_CUSTOMER_PASSWORD", ""),
		BackendTimeout:         getDuration("BACKEND_TIMEOUT", 5*time.Second),

		RetryAttempts: attempts,
		RetryDelay:    getDuration("RETRY_DELAY", time.Second),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		RefStore:    getEnv("REF_STORE", "mongo"),
		MongoURI:    getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDBName: getEnv("MONGO_DB_NAME", "storefront"),

		MongoMaxPoolSize:    mongoMaxPool,
		MongoMinPoolSize:    mongoMinPool,
		MongoConnectTimeout: getDuration("MONGO_CONNECT_TIMEOUT", 10*time.Second),

		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         dbPort,
		DBUser:         getEnv("DB_USER", "postgres"),
		DBPassword:     getEnv("DB_PASSWORD", "postgres"),
		DBName:         getEnv("DB_NAME", "storefront"),
		MigrationsPath: getEnv("MIGRATIONS_PATH", "./internal/outbox/migrations"),

		KafkaBrokers:  strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
		OrdersTopic:   getEnv("ORDERS_TOPIC", "storefront-orders"),
		KafkaGroupID:  getEnv("KAFKA_GROUP_ID", "storefront"),
		EventsEnabled: getEnv("EVENTS_ENABLED", "true") == "true",
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the inputs the service cannot run without.
func (c *Config) Validate() error {
	var missing []string
	if c.CommerceBackendURL == "" {
		missing = append(missing, "COMMERCE_BACKEND_URL")
	}
	if c.CommercePublishableKey == "" {
		missing = append(missing, "COMMERCE_PUBLISHABLE_KEY")
	}
	if c.PaymentPublishableKey == "" {
		missing = append(missing, "PAYMENT_PUBLISHABLE_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingCredentials, strings.Join(missing, ", "))
	}
	if c.RefStore != "mongo" && c.RefStore != "memory" {
		return fmt.Errorf("REF_STORE must be mongo or memory, got %q", c.RefStore)
	}
	if c.MongoMinPoolSize > c.MongoMaxPoolSize {
		return fmt.Errorf("MONGO_MIN_POOL_SIZE %d exceeds MONGO_MAX_POOL_SIZE %d", c.MongoMinPoolSize, c.MongoMaxPoolSize)
	}
	if c.RetryAttempts < 1 {
		return fmt.Errorf("RETRY_ATTEMPTS must be at least 1, got %d", c.RetryAttempts)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultValue
	}
	return d
}
