package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Sources  SourcesConfig
	Retry    RetryConfig
	Index    IndexConfig
	Export   ExportConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string
	Host string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds the cache connection settings
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// KafkaConfig holds Kafka configuration
type KafkaConfig struct {
	Enabled      bool
	Brokers      []string
	Topic        string
	RequestTopic string
	GroupID      string
}

// SourcesConfig holds external data provider settings
type SourcesConfig struct {
	AlphaVantageAPIKey  string
	AlphaVantageBaseURL string
	YahooBaseURL        string
	Timeout             time.Duration
}

// RetryConfig holds retry tuning for provider calls
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	BackoffFactor float64
	Jitter        bool
}

// IndexConfig holds the tracked universe and index sizing defaults
type IndexConfig struct {
	Symbols     []string
	TopNDefault int
}

// ExportConfig holds file export settings
type ExportConfig struct {
	Dir string
}

// Load reads configuration from environment variables. A .env file in the
// working directory is loaded first when present.
func Load() *Config {
	godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "stockindex"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Enabled:      getEnvAsBool("KAFKA_ENABLED", false),
			Brokers:      getEnvAsSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			Topic:        getEnv("KAFKA_TOPIC", "index-events"),
			RequestTopic: getEnv("KAFKA_REQUEST_TOPIC", "ingest-requests"),
			GroupID:      getEnv("KAFKA_GROUP_ID", "stock-index-service"),
		},
		Sources: SourcesConfig{
			AlphaVantageAPIKey:  getEnv("ALPHA_VANTAGE_API_KEY", ""),
			AlphaVantageBaseURL: getEnv("ALPHA_VANTAGE_BASE_URL", "https://www.alphavantage.co/query"),
			YahooBaseURL:        getEnv("YAHOO_BASE_URL", "https://query1.finance.yahoo.com"),
			Timeout:             getEnvAsDuration("SOURCE_TIMEOUT", 10*time.Second),
		},
		Retry: RetryConfig{
			MaxAttempts:   getEnvAsInt("RETRY_MAX_ATTEMPTS", 3),
			InitialDelay:  getEnvAsDuration("RETRY_INITIAL_DELAY", time.Second),
			BackoffFactor: getEnvAsFloat("RETRY_BACKOFF_FACTOR", 2.0),
			Jitter:        getEnvAsBool("RETRY_JITTER", true),
		},
		Index: IndexConfig{
			Symbols:     ParseSymbols(getEnv("SYMBOLS", "")),
			TopNDefault: getEnvAsInt("TOP_N_DEFAULT", 100),
		},
		Export: ExportConfig{
			Dir: getEnv("EXPORT_DIR", "exports"),
		},
	}
}

// ConnectionString returns the PostgreSQL connection string
func (d *DatabaseConfig) ConnectionString() string {
	return "postgres://" + d.User + ":" + d.Password + "@" + d.Host + ":" + d.Port + "/" + d.DBName + "?sslmode=" + d.SSLMode
}

// ParseSymbols splits a comma-separated symbol list, trimming whitespace
// and upper-casing each entry. Empty entries are dropped.
func ParseSymbols(s string) []string {
	var symbols []string
	for _, part := range strings.Split(s, ",") {
		part = strings.ToUpper(strings.TrimSpace(part))
		if part != "" {
			symbols = append(symbols, part)
		}
	}
	return symbols
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var parts []string
		for _, part := range strings.Split(value, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				parts = append(parts, part)
			}
		}
		if len(parts) > 0 {
			return parts
		}
	}
	return defaultValue
}
