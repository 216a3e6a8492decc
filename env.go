package soletic

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// HeliusAPIKeyEnv defines the environment variable name containing the Solana RPC API key.
	HeliusAPIKeyEnv = "HELIUS_API_KEY"

	// CacheDirEnv overrides the directory holding the persisted deployment cache.
	// Relative values are resolved against the user's home directory.
	CacheDirEnv = "SOLETIC_CACHE_DIR"

	// ConfigPathEnv overrides the location of the CLI settings file.
	ConfigPathEnv = "SOLETIC_CONFIG_PATH"

	cacheMaxEntriesEnv = "SOLETIC_CACHE_MAX_ENTRIES"
	rpcTimeoutEnv      = "SOLETIC_RPC_TIMEOUT"
	rpcRateEnv         = "SOLETIC_RPC_RATE"
)

func loadIntEnv(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	num, err := strconv.Atoi(value)
	if err != nil || num < 0 {
		return fallback
	}
	return num
}

func loadDurationEnv(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	dur, err := time.ParseDuration(value)
	if err != nil || dur < 0 {
		return fallback
	}
	return dur
}
