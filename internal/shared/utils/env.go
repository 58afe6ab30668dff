package utils

import (
	"os"
	"strconv"
	"time"
)

// GetEnv returns the value of key or fallback when unset or empty.
func GetEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func GetEnvInt(key string, fallback int) int {
	value, err := strconv.Atoi(GetEnv(key, ""))
	if err != nil {
		return fallback
	}
	return value
}

func GetEnvFloat(key string, fallback float64) float64 {
	value, err := strconv.ParseFloat(GetEnv(key, ""), 64)
	if err != nil {
		return fallback
	}
	return value
}

func GetEnvBool(key string, fallback bool) bool {
	value, err := strconv.ParseBool(GetEnv(key, ""))
	if err != nil {
		return fallback
	}
	return value
}

// GetEnvSeconds reads an integer number of seconds.
func GetEnvSeconds(key string, fallback int) time.Duration {
	return time.Duration(GetEnvInt(key, fallback)) * time.Second
}
