// Package config loads server configuration from a .env file and the
// process environment. Every setting has a working default so a bare
// `codepush serve` comes up without any configuration.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the runtime settings for the update server.
type Config struct {
	Port       string
	StorageDir string

	// RedisAddr selects the cache backend: empty means the in-process
	// memory backend, anything else is a Redis host:port.
	RedisAddr string

	CacheTTL          time.Duration
	CacheTimeout      time.Duration
	MaxPackagesToDiff int
}

// Load reads .env (when present) and the environment.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		Port:              getenv("PORT", "3000"),
		StorageDir:        getenv("STORAGE_DIR", "./data"),
		RedisAddr:         getenv("REDIS_ADDR", ""),
		CacheTTL:          time.Hour,
		CacheTimeout:      500 * time.Millisecond,
		MaxPackagesToDiff: 5,
	}

	if n, ok := getenvInt("CACHE_TTL_SECONDS"); ok {
		cfg.CacheTTL = time.Duration(n) * time.Second
	}
	if n, ok := getenvInt("CACHE_TIMEOUT_MS"); ok {
		cfg.CacheTimeout = time.Duration(n) * time.Millisecond
	}
	if n, ok := getenvInt("MAX_PACKAGES_TO_DIFF"); ok {
		cfg.MaxPackagesToDiff = n
	}

	return cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
