// Package config loads the demo server and limiter settings from the
// environment, optionally seeded by a .env file.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"

	"github.com/aryangodara/profile_rate_limiter"
)

const (
	StoreSliding = "sliding"
	StoreFixed   = "fixed"
	StoreMemory  = "memory"
)

type Config struct {
	Server      ServerConfig
	Storage     StorageConfig
	RateLimiter RateLimiterConfig
	LogLevel    slog.Level
}

type ServerConfig struct {
	Port string
}

type StorageConfig struct {
	Type  string
	Redis RedisConfig
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type RateLimiterConfig struct {
	Prefix       string
	StoreTimeout time.Duration
	// Profiles is the built-in table with RATE_LIMIT_PROFILES applied on top.
	Profiles []profile_rate_limiter.Profile
}

// Load reads .env when present and then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	storageConfig, err := buildStorageConfig()
	if err != nil {
		return Config{}, err
	}

	rateLimiterConfig, err := buildRateLimiterConfig()
	if err != nil {
		return Config{}, err
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(getEnv("LOG_LEVEL", "info"))); err != nil {
		return Config{}, errors.Wrap(err, "invalid LOG_LEVEL")
	}

	return Config{
		Server:      ServerConfig{Port: getEnv("SERVER_PORT", "8080")},
		Storage:     storageConfig,
		RateLimiter: rateLimiterConfig,
		LogLevel:    level,
	}, nil
}

func buildStorageConfig() (StorageConfig, error) {
	storeType := strings.ToLower(getEnv("STORE_TYPE", StoreSliding))
	switch storeType {
	case StoreSliding, StoreFixed, StoreMemory:
	default:
		return StorageConfig{}, errors.Errorf("unsupported STORE_TYPE: %s", storeType)
	}

	db, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return StorageConfig{}, errors.Wrap(err, "invalid REDIS_DB")
	}

	return StorageConfig{
		Type: storeType,
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       db,
		},
	}, nil
}

func buildRateLimiterConfig() (RateLimiterConfig, error) {
	timeoutMs, err := strconv.Atoi(getEnv("RATE_LIMIT_STORE_TIMEOUT_MS", "50"))
	if err != nil {
		return RateLimiterConfig{}, errors.Wrap(err, "invalid RATE_LIMIT_STORE_TIMEOUT_MS")
	}
	if timeoutMs <= 0 {
		return RateLimiterConfig{}, errors.Errorf("RATE_LIMIT_STORE_TIMEOUT_MS must be positive, got %d", timeoutMs)
	}

	overrides, err := ParseProfiles(os.Getenv("RATE_LIMIT_PROFILES"))
	if err != nil {
		return RateLimiterConfig{}, err
	}

	return RateLimiterConfig{
		Prefix:       getEnv("RATE_LIMIT_PREFIX", "rl:"),
		StoreTimeout: time.Duration(timeoutMs) * time.Millisecond,
		Profiles:     profile_rate_limiter.MergeProfiles(profile_rate_limiter.DefaultProfiles(), overrides...),
	}, nil
}

// ParseProfiles parses NAME:MAX_REQUESTS:WINDOW_MS entries separated by commas.
func ParseProfiles(raw string) ([]profile_rate_limiter.Profile, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	var profiles []profile_rate_limiter.Profile
	for _, item := range strings.Split(raw, ",") {
		parts := strings.Split(strings.TrimSpace(item), ":")
		if len(parts) != 3 {
			return nil, errors.Errorf("profile override must follow NAME:MAX_REQUESTS:WINDOW_MS: %s", item)
		}

		name := strings.TrimSpace(parts[0])
		maxRequests, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid max requests for profile %s", name)
		}
		windowMs, err := strconv.ParseInt(strings.TrimSpace(parts[2]), 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid window for profile %s", name)
		}

		p := profile_rate_limiter.Profile{
			Name:        name,
			MaxRequests: maxRequests,
			Window:      time.Duration(windowMs) * time.Millisecond,
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}

	return profiles, nil
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}
