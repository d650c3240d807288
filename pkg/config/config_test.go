package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("DB_DRIVER", "")
	t.Setenv("NOTIFY_DELAY", "")

	cfg := LoadConfig()

	assert.Equal(t, "8080", cfg.AppPort)
	assert.Equal(t, "mysql", cfg.DBDriver)
	assert.Equal(t, "sid", cfg.SessionCookieName)
	assert.Equal(t, time.Duration(0), cfg.NotifyDelay)
	assert.Equal(t, 10*time.Second, cfg.EmailTimeout)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite3")
	t.Setenv("DB_PATH", "/tmp/shop.db")
	t.Setenv("NOTIFY_DELAY", "1500")
	t.Setenv("EMAIL_TIMEOUT", "3s")
	t.Setenv("RATE_LIMIT_RPS", "0")
	t.Setenv("METRICS_ENABLED", "no")

	cfg := LoadConfig()

	assert.Equal(t, "file:/tmp/shop.db?_foreign_keys=on&_busy_timeout=5000", cfg.GetDSN())
	assert.Equal(t, 1500*time.Millisecond, cfg.NotifyDelay)
	assert.Equal(t, 3*time.Second, cfg.EmailTimeout)
	assert.Equal(t, 0, cfg.RateLimitRPS)
	assert.False(t, cfg.MetricsEnabled)
}

func TestGetDSN_MySQL(t *testing.T) {
	cfg := &Config{DBDriver: "mysql", DBUser: "u", DBPassword: "p", DBHost: "db", DBPort: "3306", DBName: "shop"}
	assert.Equal(t, "u:p@tcp(db:3306)/shop?parseTime=true&charset=utf8mb4&loc=UTC", cfg.GetDSN())
}

func TestListenAddr(t *testing.T) {
	assert.Equal(t, ":9000", (&Config{AppPort: "9000"}).ListenAddr())
	assert.Equal(t, ":9000", (&Config{AppPort: ":9000"}).ListenAddr())
}

func TestLoadConfig_Warnings(t *testing.T) {
	t.Setenv("SMTP_PORT", "smtp")
	t.Setenv("NOTIFY_TIMEOUT", "soon")
	t.Setenv("METRICS_ENABLED", "maybe")
	t.Setenv("JWT_SECRET", "")

	cfg := LoadConfig()

	assert.Equal(t, 587, cfg.SMTPPort)
	assert.Equal(t, 2*time.Second, cfg.NotifyTimeout)
	assert.True(t, cfg.MetricsEnabled)
	assert.Len(t, cfg.Warnings, 4)
	assert.Contains(t, cfg.Warnings[0], "SMTP_PORT")
	assert.Contains(t, cfg.Warnings[3], "JWT_SECRET")
}
