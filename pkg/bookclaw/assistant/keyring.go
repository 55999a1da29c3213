// Package assistant – keyring.go resolves the LLM API key using the
// operating system's native keyring (Linux: Secret Service, macOS:
// Keychain, Windows: Credential Manager).
//
// Priority for resolving the key:
//  1. Environment variable (BOOKCLAW_API_KEY, then OPENAI_API_KEY)
//  2. OS keyring
//  3. config.yaml value (least secure — plaintext on disk)
package assistant

import (
	"log/slog"
	"os"

	"github.com/zalando/go-keyring"
)

const (
	// keyringService is the service name used in the OS keyring.
	keyringService = "bookclaw"

	// keyringAPIKey is the key name for the LLM API key.
	keyringAPIKey = "api_key"
)

// StoreKeyring saves a secret to the OS keyring.
func StoreKeyring(key, value string) error {
	return keyring.Set(keyringService, key, value)
}

// GetKeyring retrieves a secret from the OS keyring.
// Returns empty string if not found.
func GetKeyring(key string) string {
	val, err := keyring.Get(keyringService, key)
	if err != nil {
		return ""
	}
	return val
}

// DeleteKeyring removes a secret from the OS keyring.
func DeleteKeyring(key string) error {
	return keyring.Delete(keyringService, key)
}

// ResolveAPIKey resolves the API key using the priority chain
// env var → keyring → config value, updating the config in place.
func ResolveAPIKey(cfg *Config, logger *slog.Logger) {
	for _, envVar := range []string{"BOOKCLAW_API_KEY", "OPENAI_API_KEY"} {
		if key := os.Getenv(envVar); key != "" {
			cfg.AI.APIKey = key
			logger.Debug("API key resolved from environment", "var", envVar)
			return
		}
	}

	if key := GetKeyring(keyringAPIKey); key != "" {
		cfg.AI.APIKey = key
		logger.Debug("API key resolved from OS keyring")
		return
	}

	if cfg.AI.APIKey != "" {
		logger.Warn("API key loaded from config file; consider the keyring or an env var")
	}
}
