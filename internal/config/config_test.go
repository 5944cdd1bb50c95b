package config

import (
	"os"
	"path/filepath"
	"testing"
)

// --- Validate ---

func TestValidate_ValidConfig(t *testing.T) {
	cfg := Defaults()
	if err := Validate(cfg); err != nil {
		t.Fatalf("expected valid config, got: %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := Defaults()
	cfg.General.LogLevel = "verbose"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for unknown log level")
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := Defaults()
	cfg.Web.Port = -1
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for negative port")
	}

	cfg.Web.Port = 70000
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for port > 65535")
	}
}

func TestValidate_TokenTTL(t *testing.T) {
	cfg := Defaults()
	cfg.Auth.TokenTTLMinutes = 0
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for tokenTtlMinutes=0")
	}
}

func TestValidate_JWTSecretRequiredForWeb(t *testing.T) {
	cfg := Defaults()
	cfg.Web.Enabled = true
	cfg.Auth.JWTSecret = ""
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for empty jwtSecret with web enabled")
	}

	cfg.Web.Enabled = false
	if err := Validate(cfg); err != nil {
		t.Fatalf("empty jwtSecret with web disabled should be valid: %v", err)
	}
}

func TestValidate_DatabaseURL(t *testing.T) {
	cfg := Defaults()
	cfg.Database.URL = "mysql://nope"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for non-postgres DSN")
	}

	cfg.Database.URL = "postgres://shallot:pw@localhost/shallot"
	if err := Validate(cfg); err != nil {
		t.Fatalf("postgres DSN should be valid: %v", err)
	}
}

func TestValidate_VidaliaLimits(t *testing.T) {
	cfg := Defaults()
	cfg.Vidalia.AlertsLimit = 0
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for alertsLimit=0")
	}

	cfg = Defaults()
	cfg.Vidalia.CacheTTL = 0
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for cacheTtlSeconds=0")
	}
}

// --- Load / Save ---

func TestLoadSave_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	original := Defaults()
	original.Web.Port = 8123

	if err := Save(path, original); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if loaded.Web.Port != 8123 {
		t.Fatalf("expected port 8123, got %d", loaded.Web.Port)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.json")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	os.WriteFile(path, []byte("{not json}"), 0o644)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestLoad_ValidatesConfig(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "config.json")
	content := `{
		"auth": {
			"tokenTtlMinutes": 0
		}
	}`
	if err := os.WriteFile(cfgFile, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(cfgFile)
	if err == nil {
		t.Fatal("expected validation error for tokenTtlMinutes=0")
	}
}

// --- Accessor ---

func TestGetByPath_ValidPaths(t *testing.T) {
	cfg := Defaults()

	val, err := GetByPath(cfg, "general.logLevel")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if val != "info" {
		t.Fatalf("expected 'info', got %v", val)
	}
}

func TestGetByPath_InvalidPath(t *testing.T) {
	cfg := Defaults()
	_, err := GetByPath(cfg, "nonexistent.path")
	if err == nil {
		t.Fatal("expected error for nonexistent path")
	}
}

func TestSetByPath_ValidPath(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "general.logLevel", "debug"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if cfg.General.LogLevel != "debug" {
		t.Fatalf("expected 'debug', got %q", cfg.General.LogLevel)
	}
}

func TestSetByPath_BoolConversion(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "metrics.enabled", "false"); err != nil {
		t.Fatalf("set bool: %v", err)
	}
	if cfg.Metrics.Enabled {
		t.Fatal("expected metrics.enabled=false")
	}
}

func TestSetByPath_IntConversion(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "web.port", "9001"); err != nil {
		t.Fatalf("set int: %v", err)
	}
	if cfg.Web.Port != 9001 {
		t.Fatalf("expected 9001, got %d", cfg.Web.Port)
	}
}

// --- Sanitize ---

func TestSanitize_MasksSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Auth.JWTSecret = "super-secret-jwt-signing-key"
	cfg.Vidalia.ClientSecret = "so-client-secret-0123456789"

	sanitized := Sanitize(cfg)

	if sanitized.Auth.JWTSecret == cfg.Auth.JWTSecret {
		t.Fatal("jwt secret should be masked")
	}
	if sanitized.Vidalia.ClientSecret == cfg.Vidalia.ClientSecret {
		t.Fatal("client secret should be masked")
	}
	// Original untouched
	if cfg.Auth.JWTSecret != "super-secret-jwt-signing-key" {
		t.Fatal("original config should not be modified")
	}
}

func TestSanitize_ShortSecret(t *testing.T) {
	cfg := Defaults()
	cfg.Auth.JWTSecret = "short"
	sanitized := Sanitize(cfg)
	if sanitized.Auth.JWTSecret != "***" {
		t.Fatalf("short secret should be '***', got %q", sanitized.Auth.JWTSecret)
	}
}

// --- ListPaths ---

func TestListPaths_ReturnsAllLeaves(t *testing.T) {
	cfg := Defaults()
	paths := ListPaths(cfg)
	if len(paths) == 0 {
		t.Fatal("expected non-empty paths")
	}

	for _, expected := range []string{"general.dataDir", "general.logLevel", "web.enabled"} {
		if _, ok := paths[expected]; !ok {
			t.Errorf("missing expected path: %s", expected)
		}
	}
}

// --- ExpandEnvVars ---

func TestExpandEnvVars_SimpleSubstitution(t *testing.T) {
	t.Setenv("TEST_CLIENT_SECRET", "abc123")
	result := ExpandEnvVars(`{"clientSecret": "${TEST_CLIENT_SECRET}"}`)
	expected := `{"clientSecret": "abc123"}`
	if result != expected {
		t.Fatalf("expected %q, got %q", expected, result)
	}
}

func TestExpandEnvVars_DefaultValue(t *testing.T) {
	os.Unsetenv("NONEXISTENT_VAR_12345")
	result := ExpandEnvVars(`{"port": "${NONEXISTENT_VAR_12345:-8080}"}`)
	expected := `{"port": "8080"}`
	if result != expected {
		t.Fatalf("expected %q, got %q", expected, result)
	}
}

func TestExpandEnvVars_SetVarOverridesDefault(t *testing.T) {
	t.Setenv("MY_PORT", "9090")
	result := ExpandEnvVars(`{"port": "${MY_PORT:-8080}"}`)
	expected := `{"port": "9090"}`
	if result != expected {
		t.Fatalf("expected %q, got %q", expected, result)
	}
}

func TestExpandEnvVars_MultipleVars(t *testing.T) {
	t.Setenv("HOST", "localhost")
	t.Setenv("PORT", "3000")
	result := ExpandEnvVars(`"${HOST}:${PORT}"`)
	expected := `"localhost:3000"`
	if result != expected {
		t.Fatalf("expected %q, got %q", expected, result)
	}
}

func TestExpandEnvVars_UnsetVarNoDefault_KeepsOriginal(t *testing.T) {
	os.Unsetenv("TOTALLY_UNSET_VAR_XYZ")
	result := ExpandEnvVars(`"${TOTALLY_UNSET_VAR_XYZ}"`)
	expected := `"${TOTALLY_UNSET_VAR_XYZ}"`
	if result != expected {
		t.Fatalf("expected %q, got %q", expected, result)
	}
}

func TestExpandEnvVars_EmptyVarUsesDefault(t *testing.T) {
	t.Setenv("EMPTY_VAR", "")
	result := ExpandEnvVars(`"${EMPTY_VAR:-fallback}"`)
	expected := `"fallback"`
	if result != expected {
		t.Fatalf("expected %q, got %q", expected, result)
	}
}

func TestExpandEnvVars_DollarSignWithoutBraces(t *testing.T) {
	input := `"$HOME is not substituted"`
	result := ExpandEnvVars(input)
	if result != input {
		t.Fatalf("expected no change for bare $VAR, got %q", result)
	}
}

func TestLoad_WithEnvVarSubstitution(t *testing.T) {
	t.Setenv("TEST_SHALLOT_DATA", "/tmp/test-shallot")

	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "config.json")
	content := `{
		"general": {
			"dataDir": "${TEST_SHALLOT_DATA}",
			"logLevel": "info"
		}
	}`
	if err := os.WriteFile(cfgFile, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(cfgFile)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.General.DataDir != "/tmp/test-shallot" {
		t.Fatalf("expected dataDir '/tmp/test-shallot', got %q", cfg.General.DataDir)
	}
}

// --- Defaults ---

func TestDefaults_ReturnsValidConfig(t *testing.T) {
	cfg := Defaults()
	if cfg == nil {
		t.Fatal("defaults returned nil")
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("defaults should be valid: %v", err)
	}
	if cfg.Auth.TokenTTLMinutes != 30 {
		t.Fatalf("default token TTL should be 30, got %d", cfg.Auth.TokenTTLMinutes)
	}
	if cfg.Vidalia.CacheTTL != 300 {
		t.Fatalf("default cache TTL should be 300, got %d", cfg.Vidalia.CacheTTL)
	}
}
