package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	HTTPPort           string
	MongoURI           string
	MongoDBName        string
	MigrationsPath     string
	RedisAddr          string
	RedisPassword      string
	KafkaBrokers       []string
	OrderEventsTopic   string
	StripeSecretKey    string
	StripeAPIURL       string
	StorefrontURL      string
	JWTSecret          string
	Currency           string
	DeliveryCharge     decimal.Decimal
	PendingOrderTTL    time.Duration
	SweepInterval      time.Duration
	OutboxPollInterval time.Duration
	RequestTimeout     time.Duration
	GatewayTimeout     time.Duration
	ShutdownTimeout    time.Duration
	MaxRequestBodySize int64
	LogLevel           string
}

// Load reads the environment, after applying an optional .env file from the working directory.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{
		HTTPPort:           getEnv("HTTP_PORT", "8080"),
		MongoURI:           getEnv("MONGO_URI", "mongodb://localhost:27017/?replicaSet=rs0"),
		MongoDBName:        getEnv("MONGO_DB_NAME", "shop"),
		MigrationsPath:     getEnv("MIGRATIONS_PATH", "internal/repository/migrations"),
		RedisAddr:          getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		KafkaBrokers:       splitList(getEnv("KAFKA_BROKERS", "localhost:9092")),
		OrderEventsTopic:   getEnv("ORDER_EVENTS_TOPIC", "order-events"),
		StripeSecretKey:    getEnv("STRIPE_SECRET_KEY", ""),
		StripeAPIURL:       getEnv("STRIPE_API_URL", ""),
		StorefrontURL:      getEnv("STOREFRONT_URL", ""),
		JWTSecret:          getEnv("JWT_SECRET", ""),
		Currency:           strings.ToLower(getEnv("CURRENCY", "usd")),
		MaxRequestBodySize: 1 << 20, // 1MB
		LogLevel:           getEnv("LOG_LEVEL", "info"),
	}

	var err error
	if cfg.DeliveryCharge, err = decimal.NewFromString(getEnv("DELIVERY_CHARGE", "10")); err != nil {
		return nil, fmt.Errorf("invalid DELIVERY_CHARGE: %w", err)
	}
	if cfg.DeliveryCharge.IsNegative() {
		return nil, errors.New("invalid DELIVERY_CHARGE: must not be negative")
	}

	durations := []struct {
		key   string
		def   string
		field *time.Duration
	}{
		{"PENDING_ORDER_TTL", "1h", &cfg.PendingOrderTTL},
		{"SWEEP_INTERVAL", "5m", &cfg.SweepInterval},
		{"OUTBOX_POLL_INTERVAL", "1s", &cfg.OutboxPollInterval},
		{"REQUEST_TIMEOUT", "30s", &cfg.RequestTimeout},
		{"GATEWAY_TIMEOUT", "10s", &cfg.GatewayTimeout},
		{"SHUTDOWN_TIMEOUT", "10s", &cfg.ShutdownTimeout},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(getEnv(d.key, d.def))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.key, err)
		}
		if v <= 0 {
			return nil, fmt.Errorf("invalid %s: must be positive", d.key)
		}
		*d.field = v
	}

	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
