package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv         string
	Port           string
	AllowedOrigins []string

	DatabaseURL string
	RedisURL    string
	JWTSecret   string

	FeedLimit int

	AlertAutoDismiss  time.Duration
	PermissionTimeout time.Duration
	SoundDefault      string
	SoundHigh         string
	SoundUrgent       string
	SoundVolume       float64

	SweepInterval    time.Duration
	ViewSyncInterval time.Duration
}

func Load() (*Config, error) {
	// Don't fail if .env doesn't exist (might be prod env vars)
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:         getEnv("APP_ENV", "development"),
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),
		JWTSecret:   getEnv("JWT_SECRET", "12345"),

		SoundDefault: getEnv("SOUND_DEFAULT", "/sounds/notification.mp3"),
		SoundHigh:    getEnv("SOUND_HIGH", "/sounds/notification-high.mp3"),
		SoundUrgent:  getEnv("SOUND_URGENT", "/sounds/notification-urgent.mp3"),
	}

	var err error
	cfg.FeedLimit, err = strconv.Atoi(getEnv("FEED_LIMIT", "50"))
	if err != nil || cfg.FeedLimit <= 0 {
		return nil, fmt.Errorf("invalid FEED_LIMIT: must be a positive integer")
	}
	cfg.SoundVolume, err = strconv.ParseFloat(getEnv("SOUND_VOLUME", "0.5"), 64)
	if err != nil || cfg.SoundVolume < 0 || cfg.SoundVolume > 1 {
		return nil, fmt.Errorf("invalid SOUND_VOLUME: must be between 0 and 1")
	}

	// Parsing durations
	cfg.AlertAutoDismiss, err = parseDuration(getEnv("ALERT_AUTO_DISMISS", "5s"))
	if err != nil {
		return nil, fmt.Errorf("invalid ALERT_AUTO_DISMISS: %w", err)
	}
	cfg.PermissionTimeout, err = parseDuration(getEnv("PERMISSION_TIMEOUT", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid PERMISSION_TIMEOUT: %w", err)
	}
	cfg.SweepInterval, err = parseDuration(getEnv("SWEEP_INTERVAL", "0s"))
	if err != nil {
		return nil, fmt.Errorf("invalid SWEEP_INTERVAL: %w", err)
	}
	cfg.ViewSyncInterval, err = parseDuration(getEnv("VIEW_SYNC_INTERVAL", "1m"))
	if err != nil {
		return nil, fmt.Errorf("invalid VIEW_SYNC_INTERVAL: %w", err)
	}

	return cfg, nil
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func parseDuration(s string) (time.Duration, error) {
	return time.ParseDuration(s)
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
