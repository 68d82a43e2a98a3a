package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const minSecretLength = 32

type Config struct {
	// Server configuration
	Port        string
	Environment string

	// Storage
	DBPath string

	// Credential configuration
	CredentialSecret string
	CredentialMaxAge time.Duration

	// Payment gateway configuration
	PaymentGatewayURL    string
	PaymentPartnerID     string
	PaymentClientID      string
	PaymentClientKey     string
	PaymentHMACKey       string
	PaymentTimeout       time.Duration
	PaymentMaxRetries    int
	PaymentNotifyChannel string
	PaymentStaticApprove bool

	// Redis configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// Verification
	VerifyRateLimit int

	// PubNub configuration
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string
	PubNubUserID       string

	// AMQP configuration
	AMQPURL      string
	AMQPExchange string

	// Monitoring
	EnableMetrics     bool
	MetricsPort       string
	InventoryInterval time.Duration
}

// LoadConfig reads an optional .env file and then the process environment.
func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	return &Config{
		// Server
		Port:        getEnv("PORT", "8090"),
		Environment: getEnv("ENVIRONMENT", "development"),

		// Storage
		DBPath: getEnv("DB_PATH", "ticket_gate.db"),

		// Credentials
		CredentialSecret: getEnv("CREDENTIAL_SECRET", ""),
		CredentialMaxAge: getEnvAsDuration("CREDENTIAL_MAX_AGE", "8760h"),

		// Payment
		PaymentGatewayURL:    getEnv("PAYMENT_GATEWAY_URL", ""),
		PaymentPartnerID:     getEnv("PAYMENT_PARTNER_ID", ""),
		PaymentClientID:      getEnv("PAYMENT_CLIENT_ID", ""),
		PaymentClientKey:     getEnv("PAYMENT_CLIENT_KEY", ""),
		PaymentHMACKey:       getEnv("PAYMENT_HMAC_KEY", ""),
		PaymentTimeout:       getEnvAsDuration("PAYMENT_TIMEOUT", "10s"),
		PaymentMaxRetries:    getEnvAsInt("PAYMENT_MAX_RETRIES", 3),
		PaymentNotifyChannel: getEnv("PAYMENT_NOTIFY_CHANNEL", "payment-notifications"),
		PaymentStaticApprove: getEnvAsBool("PAYMENT_STATIC_APPROVE", false),

		// Redis
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		VerifyRateLimit: getEnvAsInt("VERIFY_RATE_LIMIT", 120),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),
		PubNubUserID:       getEnv("PUBNUB_USER_ID", "ticket-gate"),

		// AMQP
		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "tickets"),

		// Monitoring
		EnableMetrics:     getEnvAsBool("ENABLE_METRICS", true),
		MetricsPort:       getEnv("METRICS_PORT", "9090"),
		InventoryInterval: getEnvAsDuration("INVENTORY_INTERVAL", "30s"),
	}
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	if c.IsProduction() && len(c.CredentialSecret) < minSecretLength {
		return fmt.Errorf("CREDENTIAL_SECRET must be at least %d bytes in production", minSecretLength)
	}
	if c.CredentialSecret == "" && !c.IsProduction() {
		slog.Warn("CREDENTIAL_SECRET is empty, using an insecure development secret")
		c.CredentialSecret = "development-only-credential-secret"
	}
	if c.IsProduction() && c.PaymentGatewayURL == "" {
		return errors.New("PAYMENT_GATEWAY_URL is required in production")
	}
	if c.IsProduction() && c.PaymentStaticApprove {
		return errors.New("PAYMENT_STATIC_APPROVE is not allowed in production")
	}
	if c.PaymentGatewayURL == "" && !c.PaymentStaticApprove {
		return errors.New("no payment oracle: set PAYMENT_GATEWAY_URL, or PAYMENT_STATIC_APPROVE=true for local testing")
	}
	if c.CredentialMaxAge < 0 {
		return errors.New("CREDENTIAL_MAX_AGE must not be negative")
	}
	if c.PaymentMaxRetries < 1 {
		c.PaymentMaxRetries = 1
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	// If parsing fails, try to parse default value
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
