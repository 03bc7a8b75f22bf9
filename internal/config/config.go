// Package config loads runtime settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port          string
	AllowedOrigin string

	DatabaseURL string
	RedisAddr   string
	RedisPass   string
	RedisDB     int
	AMQPURL     string

	AuthSecret     string
	AccessTokenTTL time.Duration

	ReportCacheTTL time.Duration
	Timezone       string
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:          getenv("PORT", "8080"),
		AllowedOrigin: os.Getenv("ALLOWED_ORIGIN"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPass:     os.Getenv("REDIS_PASSWORD"),
		AMQPURL:       os.Getenv("AMQP_URL"),
		AuthSecret:    os.Getenv("AUTH_SECRET"),
		Timezone:      getenv("TIMEZONE", "UTC"),
	}

	redisDB, err := getenvInt("REDIS_DB", 0)
	if err != nil {
		return nil, err
	}
	cfg.RedisDB = redisDB

	ttlMinutes, err := getenvInt("ACCESS_TOKEN_TTL_MINUTES", 60)
	if err != nil {
		return nil, err
	}
	cfg.AccessTokenTTL = time.Duration(ttlMinutes) * time.Minute

	cacheSeconds, err := getenvInt("REPORT_CACHE_TTL_SECONDS", 30)
	if err != nil {
		return nil, err
	}
	cfg.ReportCacheTTL = time.Duration(cacheSeconds) * time.Second

	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", cfg.Timezone, err)
	}

	return cfg, nil
}

func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getenv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getenvInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return value, nil
}
