// config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds process-level settings read from the environment (.env first).
type Config struct {
	DatabaseURL  string
	Port         string
	GatewayToken string
	LogMode      string

	Timezone            *time.Location
	TransparentWeekdays string

	LevelBaseXP   float64
	LevelExponent float64
	LevelMax      int

	XPConfigPath string

	RedisAddr    string
	RedisChannel string

	ActivityServiceURL   string
	ActivityServiceToken string

	RecalcCron         string
	AuditExportEnabled bool
	R2AccountID        string
	R2AccessKeyID      string
	R2AccessKeySecret  string
	R2Bucket           string

	AllowedOrigins string
}

// Load reads .env (if present) and then the process environment.
// The returned bool reports whether a .env file was found.
func Load() (*Config, bool, error) {
	envLoaded := godotenv.Load() == nil

	loc, err := time.LoadLocation(getEnvOrDefault("APP_TIMEZONE", "UTC"))
	if err != nil {
		return nil, envLoaded, fmt.Errorf("invalid APP_TIMEZONE: %w", err)
	}

	base, err := getFloat("LEVEL_BASE_XP", 100)
	if err != nil {
		return nil, envLoaded, err
	}
	exp, err := getFloat("LEVEL_EXPONENT", 1.5)
	if err != nil {
		return nil, envLoaded, err
	}
	maxLevel, err := getInt("LEVEL_MAX", 100)
	if err != nil {
		return nil, envLoaded, err
	}

	cfg := &Config{
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		Port:         getEnvOrDefault("PORT", "5200"),
		GatewayToken: os.Getenv("GATEWAY_SERVICE_TOKEN"),
		LogMode:      getEnvOrDefault("LOG_MODE", "development"),

		Timezone:            loc,
		TransparentWeekdays: getEnvOrDefault("STREAK_TRANSPARENT_WEEKDAYS", "saturday,sunday"),

		LevelBaseXP:   base,
		LevelExponent: exp,
		LevelMax:      maxLevel,

		XPConfigPath: os.Getenv("XP_CONFIG_PATH"),

		RedisAddr:    os.Getenv("REDIS_ADDR"),
		RedisChannel: getEnvOrDefault("REDIS_CHANNEL", "xp-events"),

		ActivityServiceURL:   os.Getenv("ACTIVITY_SERVICE_URL"),
		ActivityServiceToken: os.Getenv("ACTIVITY_SERVICE_TOKEN"),

		RecalcCron:         getEnvOrDefault("RECALC_CRON", "0 3 * * *"),
		AuditExportEnabled: strings.EqualFold(os.Getenv("AUDIT_EXPORT_ENABLED"), "true"),
		R2AccountID:        os.Getenv("CLOUDFLARE_ACCOUNT_ID"),
		R2AccessKeyID:      os.Getenv("R2_ACCESS_KEY_ID"),
		R2AccessKeySecret:  os.Getenv("R2_ACCESS_KEY_SECRET"),
		R2Bucket:           os.Getenv("R2_BUCKET_NAME"),

		AllowedOrigins: getEnvOrDefault("ALLOWED_ORIGINS", "http://localhost:3000"),
	}
	return cfg, envLoaded, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getFloat(key string, def float64) (float64, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getInt(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}
