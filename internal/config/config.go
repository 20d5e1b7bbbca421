package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration resolved once at startup.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	HTTPAddr string

	LogLevel  string
	LogFormat string

	OTLPEnabled  bool
	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Gateway credentials are resolved here, once per deployment, and handed
	// to adapter construction. Business logic never re-reads them.
	Moneroo     GatewayConfig
	MoneyFusion GatewayConfig

	NotificationURL string

	BaseURL string
}

// GatewayConfig carries one payment provider's credentials.
type GatewayConfig struct {
	BaseURL       string
	APIKey        string
	WebhookSecret string
}

// Load reads configuration from environment variables and an optional .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "sokoline"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),

		HTTPAddr: getenv("HTTP_ADDR", ":8080"),

		LogLevel:  getenv("LOG_LEVEL", "info"),
		LogFormat: getenv("LOG_FORMAT", "json"),

		OTLPEnabled:  getenvBool("OTEL_ENABLED", false),
		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "sokoline"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", int(time.Hour/time.Second)),

		RedisAddr:     getenv("REDIS_ADDR", ""),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       getenvInt("REDIS_DB", 0),

		Moneroo: GatewayConfig{
			BaseURL:       getenv("MONEROO_BASE_URL", "https://api.moneroo.io"),
			APIKey:        strings.TrimSpace(getenv("MONEROO_API_KEY", "")),
			WebhookSecret: strings.TrimSpace(getenv("MONEROO_WEBHOOK_SECRET", "")),
		},
		MoneyFusion: GatewayConfig{
			BaseURL:       getenv("MONEYFUSION_BASE_URL", "https://www.pay.moneyfusion.net"),
			APIKey:        strings.TrimSpace(getenv("MONEYFUSION_API_KEY", "")),
			WebhookSecret: strings.TrimSpace(getenv("MONEYFUSION_WEBHOOK_SECRET", "")),
		},

		NotificationURL: strings.TrimSpace(getenv("NOTIFICATION_URL", "")),

		BaseURL: getenv("BASE_URL", "http://localhost:8080"),
	}
}

func getenv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getenvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		log.Printf("config: invalid bool for %s: %q", key, value)
		return fallback
	}
	return parsed
}

func getenvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		log.Printf("config: invalid int for %s: %q", key, value)
		return fallback
	}
	return parsed
}
