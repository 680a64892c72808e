// Package config loads server configuration from the environment.
//
// A .env file is honored when present (godotenv); real environment
// variables win. Every value has a development default so a bare
// `go run ./cmd/server` works.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	Port              int
	DBPath            string
	JWTSecret         string
	TokenTTL          time.Duration
	PushSendTimeout   time.Duration
	SchedulerInterval time.Duration
}

// Load reads the configuration. Missing .env is not an error.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logrus.WithError(err).Warn("could not read .env file")
	}

	return &Config{
		Port:              getEnvAsInt("PORT", 8080),
		DBPath:            getEnv("DB_PATH", "leave.db"),
		JWTSecret:         getEnv("JWT_SECRET", "dev-secret-change-me"),
		TokenTTL:          getEnvAsDuration("TOKEN_TTL", 24*time.Hour),
		PushSendTimeout:   getEnvAsDuration("PUSH_SEND_TIMEOUT", 5*time.Second),
		SchedulerInterval: getEnvAsDuration("SCHEDULER_INTERVAL", time.Hour),
	}
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if val, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return val
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return val
	}
	return defaultVal
}
