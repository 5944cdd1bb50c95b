package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Config is the root process configuration for Shallot and Vidalia.
// Runtime settings that admins edit at will (platform tokens, SIEM
// credentials) live in the settings store, not here.
type Config struct {
	General  GeneralConfig  `json:"general"`
	Database DatabaseConfig `json:"database"`
	Web      WebConfig      `json:"web"`
	Auth     AuthConfig     `json:"auth"`
	Metrics  MetricsConfig  `json:"metrics"`
	Vidalia  VidaliaConfig  `json:"vidalia"`
}

type GeneralConfig struct {
	DataDir  string `json:"dataDir"`
	LogLevel string `json:"logLevel"` // debug | info | warn | error
	LogFile  string `json:"logFile,omitempty"`
}

type DatabaseConfig struct {
	// Path is the SQLite database file, used unless URL is set.
	Path string `json:"path"`
	// URL is a PostgreSQL DSN; when set it takes precedence over Path.
	// Typically "${DATABASE_URL}" expanded from the environment.
	URL string `json:"url,omitempty"`
}

// WebConfig configures the administrative API server.
type WebConfig struct {
	Enabled     bool     `json:"enabled"`
	Host        string   `json:"host"`
	Port        int      `json:"port"`
	CORSOrigins []string `json:"corsOrigins"`
}

// AuthConfig holds the web-auth and encryption-at-rest secrets.
type AuthConfig struct {
	JWTSecret       string `json:"jwtSecret"`
	TokenTTLMinutes int    `json:"tokenTtlMinutes"`
	// EncryptionKey seals setting values before they reach the store.
	EncryptionKey string `json:"encryptionKey"`
}

type MetricsConfig struct {
	Enabled  bool   `json:"enabled"`
	Endpoint string `json:"endpoint"`
}

// VidaliaConfig configures the analyst front-end, which talks to the
// SIEM directly and does not use the settings store.
type VidaliaConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	APIURL       string `json:"apiUrl"`
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
	VerifySSL    bool   `json:"verifySSL"`
	AlertsLimit  int    `json:"alertsLimit"`
	CacheTTL     int    `json:"cacheTtlSeconds"` // user-name cache TTL
}

// DefaultConfigDir returns the default config directory (~/.shallot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".shallot"
	}
	return filepath.Join(home, ".shallot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func Load(path string) (*Config, error) {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("cannot resolve home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.General.DataDir = ExpandPath(cfg.General.DataDir)
	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.Database.Path = ExpandPath(cfg.Database.Path)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is
// unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // keep original if no env var and no default
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.General.LogLevel {
	case "", "debug", "info", "warn", "error":
		// valid
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}

	if cfg.Web.Port < 0 || cfg.Web.Port > 65535 {
		errs = append(errs, "web.port must be between 0 and 65535")
	}
	if cfg.Vidalia.Port < 0 || cfg.Vidalia.Port > 65535 {
		errs = append(errs, "vidalia.port must be between 0 and 65535")
	}

	if cfg.Auth.TokenTTLMinutes < 1 {
		errs = append(errs, "auth.tokenTtlMinutes must be >= 1")
	}
	if cfg.Web.Enabled && cfg.Auth.JWTSecret == "" {
		errs = append(errs, "auth.jwtSecret is required when the web API is enabled")
	}

	if cfg.Database.URL != "" &&
		!strings.HasPrefix(cfg.Database.URL, "postgres://") &&
		!strings.HasPrefix(cfg.Database.URL, "postgresql://") {
		errs = append(errs, "database.url must be a postgres:// DSN")
	}

	if cfg.Vidalia.AlertsLimit < 1 {
		errs = append(errs, "vidalia.alertsLimit must be >= 1")
	}
	if cfg.Vidalia.CacheTTL < 1 {
		errs = append(errs, "vidalia.cacheTtlSeconds must be >= 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
