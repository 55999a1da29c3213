// Package assistant – loader.go handles loading configuration from YAML
// files with credentials supplied via environment variables and .env files.
package assistant

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// envVarPattern matches environment variable patterns in config values:
//   - ${VAR_NAME}          - simple variable
//   - ${VAR_NAME:-default} - default value if not set
//   - $VAR_NAME            - bare variable
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}|\$([A-Z_][A-Z0-9_]*)`)

// LoadConfigFromFile reads and parses a YAML configuration file.
// .env files are loaded first and ${VAR} references are expanded
// before parsing.
func LoadConfigFromFile(path string) (*Config, error) {
	loadEnvFiles(filepath.Dir(path))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg, err := ParseConfig([]byte(expandEnvVars(string(data))))
	if err != nil {
		return nil, err
	}

	resolveRelativePaths(cfg, path)
	return cfg, nil
}

// ParseConfig parses YAML bytes into a Config.
// Starts with defaults and overlays values from the YAML.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	if cfg.AI.MaxLoops <= 0 {
		cfg.AI.MaxLoops = 5
	}
	if cfg.Memory.Limit <= 0 {
		cfg.Memory.Limit = 20
	}
	for id, svc := range cfg.Services {
		if svc.Currency == "" {
			svc.Currency = "LKR"
			cfg.Services[id] = svc
		}
	}

	return cfg, nil
}

// FindConfigFile looks for a config file in the usual locations and
// returns the first match, or "" when none exists.
func FindConfigFile() string {
	candidates := []string{
		"config.yaml",
		"config.yml",
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates,
			filepath.Join(home, ".config", "bookclaw", "config.yaml"),
			filepath.Join(home, ".bookclaw", "config.yaml"),
		)
	}
	for _, p := range candidates {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}

// loadEnvFiles loads .env files from the config directory and the
// working directory. godotenv.Load does NOT overwrite existing env vars.
func loadEnvFiles(configDir string) {
	candidates := []string{
		filepath.Join(configDir, ".env"),
		".env",
	}
	for _, f := range candidates {
		_ = godotenv.Load(f)
	}
}

// expandEnvVars replaces ${VAR} / ${VAR:-default} / $VAR references with
// values from the environment.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)

		name := groups[1]
		if name == "" {
			name = groups[3] // bare $VAR form
		}

		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return groups[2] // default (may be empty)
	})
}

// resolveRelativePaths makes file paths relative to the config file
// location instead of the working directory.
func resolveRelativePaths(cfg *Config, configPath string) {
	base := filepath.Dir(configPath)

	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}

	cfg.Calendar.CredentialsPath = resolve(cfg.Calendar.CredentialsPath)
	cfg.Memory.Path = resolve(cfg.Memory.Path)
	cfg.WhatsApp.SessionDir = resolve(cfg.WhatsApp.SessionDir)
}
