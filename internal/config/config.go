package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewFeePolicyHolder),
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint string
	Telemetry    TelemetryConfig

	// Currency is the single billing currency of the deployment.
	Currency string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBPath            string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
	DBAutoMigrate     bool

	Redis     RedisConfig
	RateLimit RateLimitConfig
	Gateway   GatewayConfig

	SchedulerInterval time.Duration
	FeePolicyPath     string

	Bootstrap BootstrapConfig
}

// BootstrapConfig seeds a first school and API key on startup. Empty
// values skip the corresponding step.
type BootstrapConfig struct {
	SchoolName     string
	SchoolCurrency string
	APIKey         string
}

// TelemetryConfig controls logging verbosity and OTLP export.
type TelemetryConfig struct {
	LogLevel      string
	LogFormat     string
	OtelEnabled   bool
	OtelProtocol  string
	SamplingRatio float64
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type RateLimitConfig struct {
	Enabled bool
	// Rate is tokens per second, Burst the bucket size. Applied per school and client IP.
	Rate  float64
	Burst int
}

type GatewayConfig struct {
	DefaultProvider string
	Razorpay        RazorpayConfig
	Midtrans        MidtransConfig
}

type RazorpayConfig struct {
	KeyID         string
	KeySecret     string
	WebhookSecret string
	BaseURL       string
}

func (c RazorpayConfig) Enabled() bool {
	return c.KeyID != "" && c.KeySecret != ""
}

type MidtransConfig struct {
	ServerKey  string
	ClientKey  string
	Production bool
}

func (c MidtransConfig) Enabled() bool {
	return c.ServerKey != ""
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:           getenv("APP_SERVICE", "shiksha"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint:      getenv("OTEL_EXPORTER_OTLP_ENDPOINT", getenv("OTLP_ENDPOINT", "localhost:4317")),
		Telemetry: TelemetryConfig{
			LogLevel:      strings.ToLower(getenv("LOG_LEVEL", "info")),
			LogFormat:     strings.ToLower(getenv("LOG_FORMAT", "json")),
			OtelEnabled:   getenvBool("OTEL_ENABLED", true),
			OtelProtocol:  strings.ToLower(getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")),
			SamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		},
		Currency:          strings.ToUpper(getenv("BILLING_CURRENCY", "INR")),
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "shiksha"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBPath:            getenv("DATABASE_PATH", "shiksha.db"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		DBAutoMigrate:     getenvBool("DATABASE_AUTO_MIGRATE", true),
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getenvInt("REDIS_DB", 0),
		},
		RateLimit: RateLimitConfig{
			Enabled: getenvBool("RATE_LIMIT_ENABLED", true),
			Rate:    getenvFloat("RATE_LIMIT_CHECKOUT_RATE", 1),
			Burst:   getenvInt("RATE_LIMIT_CHECKOUT_BURST", 5),
		},
		Gateway: GatewayConfig{
			DefaultProvider: strings.ToLower(getenv("GATEWAY_DEFAULT_PROVIDER", "razorpay")),
			Razorpay: RazorpayConfig{
				KeyID:         strings.TrimSpace(getenv("RAZORPAY_KEY_ID", "")),
				KeySecret:     strings.TrimSpace(getenv("RAZORPAY_KEY_SECRET", "")),
				WebhookSecret: strings.TrimSpace(getenv("RAZORPAY_WEBHOOK_SECRET", "")),
				BaseURL:       getenv("RAZORPAY_BASE_URL", "https://api.razorpay.com"),
			},
			Midtrans: MidtransConfig{
				ServerKey:  strings.TrimSpace(getenv("MIDTRANS_SERVER_KEY", "")),
				ClientKey:  strings.TrimSpace(getenv("MIDTRANS_CLIENT_KEY", "")),
				Production: getenvBool("MIDTRANS_PRODUCTION", false),
			},
		},
		SchedulerInterval: getenvDuration("SCHEDULER_INTERVAL", time.Minute),
		FeePolicyPath:     strings.TrimSpace(getenv("FEE_POLICY_PATH", "")),
		Bootstrap: BootstrapConfig{
			SchoolName:     strings.TrimSpace(getenv("BOOTSTRAP_SCHOOL_NAME", "")),
			SchoolCurrency: strings.ToUpper(getenv("BOOTSTRAP_SCHOOL_CURRENCY", "INR")),
			APIKey:         strings.TrimSpace(getenv("BOOTSTRAP_API_KEY", "")),
		},
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
