package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Mpesa    MpesaConfig
	Security SecurityConfig
	Store    StoreConfig
	Pending  PendingConfig
	Kafka    KafkaConfig
	LogLevel string
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port string
	Host string
}

// MpesaConfig holds Daraja API configuration
type MpesaConfig struct {
	BaseURL         string
	ShortCode       string
	Passkey         string
	ConsumerKey     string
	ConsumerSecret  string
	CallbackURL     string
	AccountRef      string
	TransactionDesc string
	RequestTimeout  time.Duration
	RetryCount      int
	RetryDelay      time.Duration
	TokenTTLDefault time.Duration
}

// SecurityConfig holds security configuration
type SecurityConfig struct {
	APIKey string
}

// StoreConfig holds transaction store configuration.
// An empty DBPath selects the in-memory store.
type StoreConfig struct {
	DBPath string
}

// PendingConfig controls expiry of transactions whose callback never arrives.
// A zero TTL disables the sweeper.
type PendingConfig struct {
	TTL           time.Duration
	SweepInterval time.Duration
}

// KafkaConfig holds payment event publishing configuration.
// Empty Brokers disables publishing.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	config := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
			Host: getEnv("HOST", "0.0.0.0"),
		},
		Mpesa: MpesaConfig{
			BaseURL:         getEnv("MPESA_BASE_URL", "https://sandbox.safaricom.co.ke"),
			ShortCode:       getEnv("MPESA_SHORT_CODE", ""),
			Passkey:         getEnv("MPESA_PASSKEY", ""),
			ConsumerKey:     getEnv("MPESA_CONSUMER_KEY", ""),
			ConsumerSecret:  getEnv("MPESA_CONSUMER_SECRET", ""),
			CallbackURL:     getEnv("MPESA_CALLBACK_URL", ""),
			AccountRef:      getEnv("MPESA_ACCOUNT_REFERENCE", "KukuHub"),
			TransactionDesc: getEnv("MPESA_TRANSACTION_DESC", "Payment for products"),
			RequestTimeout:  parseDuration(getEnv("MPESA_REQUEST_TIMEOUT", "30s"), 30*time.Second),
			RetryCount:      parseInt(getEnv("MPESA_RETRY_COUNT", "3"), 3),
			RetryDelay:      parseDuration(getEnv("MPESA_RETRY_DELAY", "1s"), time.Second),
			TokenTTLDefault: parseDuration(getEnv("MPESA_TOKEN_TTL_DEFAULT", "50m"), 50*time.Minute),
		},
		Security: SecurityConfig{
			APIKey: getEnv("API_KEY", ""),
		},
		Store: StoreConfig{
			DBPath: getEnv("STORE_DB_PATH", ""),
		},
		Pending: PendingConfig{
			TTL:           parseDuration(getEnv("PENDING_TTL", "0"), 0),
			SweepInterval: parseDuration(getEnv("PENDING_SWEEP_INTERVAL", "1m"), time.Minute),
		},
		Kafka: KafkaConfig{
			Brokers: parseStringList(getEnv("KAFKA_BROKERS", "")),
			Topic:   getEnv("KAFKA_TOPIC", "payment_results"),
		},
		LogLevel: getEnv("LOG_LEVEL", "INFO"),
	}

	// Validate required fields
	if config.Mpesa.ShortCode == "" {
		return nil, fmt.Errorf("MPESA_SHORT_CODE is required")
	}
	if config.Mpesa.Passkey == "" {
		return nil, fmt.Errorf("MPESA_PASSKEY is required")
	}
	if config.Mpesa.ConsumerKey == "" || config.Mpesa.ConsumerSecret == "" {
		return nil, fmt.Errorf("MPESA_CONSUMER_KEY and MPESA_CONSUMER_SECRET are required")
	}
	if config.Mpesa.CallbackURL == "" {
		return nil, fmt.Errorf("MPESA_CALLBACK_URL is required")
	}

	return config, nil
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// parseInt parses string to int with default value
func parseInt(value string, defaultValue int) int {
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intValue
}

// parseDuration parses string to time.Duration with default value
func parseDuration(value string, defaultValue time.Duration) time.Duration {
	if value == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return duration
}

// parseStringList parses comma-separated string to slice
func parseStringList(value string) []string {
	if value == "" {
		return []string{}
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
