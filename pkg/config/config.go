package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultJWTSecret is only fit for local development
const DefaultJWTSecret = "replace-with-secure-secret"

// Config holds application configuration from environment variables
type Config struct {
	// Application
	AppPort   string
	LogLevel  string
	StoreName string

	// Database
	DBDriver   string // mysql | sqlite3
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPath     string // sqlite3 only

	// Identity
	SessionCookieName string
	SessionMaxAge     time.Duration
	SecureCookies     bool
	JWTSecret         string

	// Email
	SMTPHost        string
	SMTPPort        int
	SMTPUser        string
	SMTPPassword    string
	SMTPFrom        string
	EmailTimeout    time.Duration
	TrackingURLBase string

	// Notifications
	NotifyTimeout time.Duration
	NotifyDelay   time.Duration

	// Rate limiting for checkout and coupon endpoints, 0 disables
	RateLimitRPS   int
	RateLimitBurst int

	// OpenTelemetry. OTEL_RESOURCE_ATTRIBUTES is read by the SDK itself.
	MetricsEnabled            bool
	MetricsExportInterval     time.Duration
	OTELExporterOTLPEndpoint  string
	OTELExporterOTLPHeaders   string // For SigNoz Cloud: signoz-ingestion-key=<key>
	OTELExporterOTLPInsecure  bool   // true for http://, false for https://
	OTELServiceName           string
	OTELServiceVersion        string
	OTELDeploymentEnvironment string

	// Warnings lists values that were present but unusable and fell back to
	// their defaults. Nothing is logged here since no logger exists yet.
	Warnings []string
}

// loader reads typed values from the environment, remembering bad ones
type loader struct {
	warnings []string
}

func (l *loader) warnf(format string, args ...any) {
	l.warnings = append(l.warnings, fmt.Sprintf(format, args...))
}

// LoadConfig loads configuration from .env file and environment variables with defaults
func LoadConfig() *Config {
	l := &loader{}

	// .env is optional; only complain when it exists but can't be parsed
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			l.warnf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		AppPort:   l.str("APP_PORT", "8080"),
		LogLevel:  l.str("LOG_LEVEL", "info"),
		StoreName: l.str("STORE_NAME", "Storefront"),

		DBDriver:   l.str("DB_DRIVER", "mysql"),
		DBHost:     l.str("DB_HOST", "localhost"),
		DBPort:     l.str("DB_PORT", "3306"),
		DBUser:     l.str("DB_USER", "root"),
		DBPassword: l.str("DB_PASSWORD", "password"),
		DBName:     l.str("DB_NAME", "storefront"),
		DBPath:     l.str("DB_PATH", "storefront.db"),

		SessionCookieName: l.str("SESSION_COOKIE_NAME", "sid"),
		SessionMaxAge:     l.duration("SESSION_MAX_AGE", 24*time.Hour),
		SecureCookies:     l.boolean("SECURE_COOKIES", false),
		JWTSecret:         l.str("JWT_SECRET", DefaultJWTSecret),

		SMTPHost:        l.str("SMTP_HOST", ""),
		SMTPPort:        l.integer("SMTP_PORT", 587),
		SMTPUser:        l.str("SMTP_USER", ""),
		SMTPPassword:    l.str("SMTP_PASSWORD", ""),
		SMTPFrom:        l.str("SMTP_FROM", "orders@storefront.local"),
		EmailTimeout:    l.duration("EMAIL_TIMEOUT", 10*time.Second),
		TrackingURLBase: l.str("TRACKING_URL_BASE", "http://demo-logistics.com/track/"),

		NotifyTimeout: l.duration("NOTIFY_TIMEOUT", 2*time.Second),
		NotifyDelay:   l.duration("NOTIFY_DELAY", 0),

		RateLimitRPS:   l.integer("RATE_LIMIT_RPS", 5),
		RateLimitBurst: l.integer("RATE_LIMIT_BURST", 10),

		MetricsEnabled:            l.boolean("METRICS_ENABLED", true),
		MetricsExportInterval:     l.duration("METRICS_EXPORT_INTERVAL", 10*time.Second),
		OTELExporterOTLPEndpoint:  l.str("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
		OTELExporterOTLPHeaders:   l.str("OTEL_EXPORTER_OTLP_HEADERS", ""),
		OTELExporterOTLPInsecure:  l.boolean("OTEL_EXPORTER_OTLP_INSECURE", true),
		OTELServiceName:           l.str("OTEL_SERVICE_NAME", "storefront-go-app"),
		OTELServiceVersion:        l.str("OTEL_SERVICE_VERSION", "1.0.0"),
		OTELDeploymentEnvironment: l.str("OTEL_DEPLOYMENT_ENVIRONMENT", "development"),
	}

	if cfg.JWTSecret == DefaultJWTSecret {
		l.warnf("JWT_SECRET is not set, bearer tokens are signed with the development secret")
	}
	cfg.Warnings = l.warnings
	return cfg
}

// GetDSN returns the DSN for the configured driver
func (c *Config) GetDSN() string {
	if c.DBDriver == "sqlite3" {
		return "file:" + c.DBPath + "?_foreign_keys=on&_busy_timeout=5000"
	}
	return c.DBUser + ":" + c.DBPassword + "@tcp(" + net.JoinHostPort(c.DBHost, c.DBPort) + ")/" + c.DBName +
		"?parseTime=true&charset=utf8mb4&loc=UTC"
}

// ListenAddr is the address the HTTP server binds
func (c *Config) ListenAddr() string {
	return ":" + strings.TrimPrefix(c.AppPort, ":")
}

func (l *loader) str(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func (l *loader) boolean(key string, defaultValue bool) bool {
	value := strings.ToLower(os.Getenv(key))
	switch value {
	case "":
		return defaultValue
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	l.warnf("%s=%q is not a boolean, using %t", key, value, defaultValue)
	return defaultValue
}

func (l *loader) integer(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
		l.warnf("%s=%q is not an integer, using %d", key, value, defaultValue)
	}
	return defaultValue
}

// duration accepts Go durations ("1500ms") or a bare number of milliseconds
func (l *loader) duration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	l.warnf("%s=%q is not a duration, using %s", key, value, defaultValue)
	return defaultValue
}
