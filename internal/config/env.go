// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"os"
	"strconv"
	"strings"
)

// Environment variable names consumed by the service.
const (
	EnvAPIPort        = "BPB_WEB_API_PORT"
	EnvAPIHost        = "BPB_WEB_API_HOST"
	EnvJobConcurrency = "BPB_WEB_JOB_CONCURRENCY"
	EnvConfigPath     = "BPB_CONFIG_PATH"
	EnvWitAiKeys      = "WIT_AI_API_KEYS"
)

// applyEnv overlays environment variables on top of file values.
// Precedence: ENV > File > Defaults.
func applyEnv(cfg *RunConfig) {
	if v := ParseString(EnvAPIHost, ""); v != "" {
		cfg.APIHost = v
	}
	if v := ParseInt(EnvAPIPort, 0); v > 0 {
		cfg.APIPort = v
	}
	if v := ParseInt(EnvJobConcurrency, 0); v > 0 {
		cfg.JobConcurrency = v
	}
	if len(cfg.WitAiApiKeys) == 0 {
		cfg.WitAiApiKeys = WitAiKeysFromEnv()
	}
}

// WitAiKeysFromEnv reads the space-separated key list fallback.
func WitAiKeysFromEnv() []string {
	raw, ok := os.LookupEnv(EnvWitAiKeys)
	if !ok {
		return nil
	}
	return strings.Fields(raw)
}

// ConfigPathFromEnv returns the config path override, if set.
func ConfigPathFromEnv() string {
	return strings.TrimSpace(os.Getenv(EnvConfigPath))
}

// ParseString reads a string from an environment variable or returns the default.
func ParseString(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

// ParseInt reads an integer from an environment variable or returns the default.
func ParseInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// ParseBool reads a boolean from an environment variable or returns the default.
func ParseBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return defaultValue
}
