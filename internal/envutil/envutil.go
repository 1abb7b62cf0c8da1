package envutil

import "os"

// Get retrieves an environment variable with automatic DRAWSYNC_ prefix fallback.
// It checks for the environment variable in this order:
// 1. Exact key as provided
// 2. Key with DRAWSYNC_ prefix
// 3. Returns fallback if neither exists
//
// This supports both container-style (DRAWSYNC_ prefixed) and local dev
// (unprefixed) configurations.
func Get(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}

	if len(key) < 9 || key[:9] != "DRAWSYNC_" {
		if value, exists := os.LookupEnv("DRAWSYNC_" + key); exists {
			return value
		}
	}

	return fallback
}
