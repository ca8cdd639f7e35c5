package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("AUTH_JWT_SECRET", "s3cret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":8000" {
		t.Fatalf("BindAddr = %q, want :8000", cfg.BindAddr)
	}
	if cfg.MemoryWindowSize != 20 {
		t.Fatalf("MemoryWindowSize = %d, want 20", cfg.MemoryWindowSize)
	}
	if cfg.MemoryContextMessages != 10 || cfg.MemoryContextMaxChars != 200 {
		t.Fatalf("context = %d/%d, want 10/200", cfg.MemoryContextMessages, cfg.MemoryContextMaxChars)
	}
	if cfg.LLMTimeout != 30*time.Second {
		t.Fatalf("LLMTimeout = %v, want 30s", cfg.LLMTimeout)
	}
	if cfg.LLMTemperature != 0.1 {
		t.Fatalf("LLMTemperature = %v, want 0.1", cfg.LLMTemperature)
	}
	if cfg.StoreBackend != "auto" || cfg.LLMProvider != "auto" {
		t.Fatalf("backend/provider = %q/%q, want auto/auto", cfg.StoreBackend, cfg.LLMProvider)
	}
	if len(cfg.CORSAllowedOrigins) != 1 || cfg.CORSAllowedOrigins[0] != "*" {
		t.Fatalf("CORSAllowedOrigins = %v, want [*]", cfg.CORSAllowedOrigins)
	}
	if cfg.DynamoTable != "user_conversations" {
		t.Fatalf("DynamoTable = %q, want user_conversations", cfg.DynamoTable)
	}
}

func TestLoadFallsBackToPostgresURI(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("AUTH_JWT_SECRET", "s3cret")
	t.Setenv("POSTGRES_URI", "postgres://u:p@localhost:5432/audit")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DatabaseURL != "postgres://u:p@localhost:5432/audit" {
		t.Fatalf("DatabaseURL = %q, want POSTGRES_URI value", cfg.DatabaseURL)
	}

	t.Setenv("DATABASE_URL", "postgres://other/db")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DatabaseURL != "postgres://other/db" {
		t.Fatalf("DatabaseURL = %q, want DATABASE_URL to win", cfg.DatabaseURL)
	}
}

func TestLoadParsesListsAndCase(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("AUTH_MODE", "Header")
	t.Setenv("STORE_BACKEND", " SQLite ")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AuthMode != "header" || cfg.StoreBackend != "sqlite" {
		t.Fatalf("mode/backend = %q/%q, want header/sqlite", cfg.AuthMode, cfg.StoreBackend)
	}
	want := []string{"https://a.example", "https://b.example"}
	if strings.Join(cfg.CORSAllowedOrigins, "|") != strings.Join(want, "|") {
		t.Fatalf("CORSAllowedOrigins = %v, want %v", cfg.CORSAllowedOrigins, want)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]map[string]string{
		"jwt without secret": {},
		"zero window":        {"AUTH_JWT_SECRET": "x", "MEMORY_WINDOW_SIZE": "0"},
		"zero context":       {"AUTH_JWT_SECRET": "x", "MEMORY_CONTEXT_MESSAGES": "0"},
		"unknown backend":    {"AUTH_JWT_SECRET": "x", "STORE_BACKEND": "mongo"},
		"unknown provider":   {"AUTH_JWT_SECRET": "x", "LLM_PROVIDER": "bard"},
		"negative timeout":   {"AUTH_JWT_SECRET": "x", "LLM_TIMEOUT": "-1s"},
		"bad duration":       {"AUTH_JWT_SECRET": "x", "LLM_TIMEOUT": "soon"},
		"hot temperature":    {"AUTH_JWT_SECRET": "x", "LLM_TEMPERATURE": "3"},
	}
	for name, vars := range cases {
		t.Run(name, func(t *testing.T) {
			setCoreEnvEmpty(t)
			for k, v := range vars {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatalf("Load() error = nil, want error")
			}
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	setCoreEnvEmpty(t)
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("AUTH_MODE=header\nMEMORY_WINDOW_SIZE=7\n"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv() error = %v", err)
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MemoryWindowSize != 7 {
		t.Fatalf("MemoryWindowSize = %d, want 7", cfg.MemoryWindowSize)
	}

	if err := LoadDotEnv(filepath.Join(dir, "missing.env")); err == nil {
		t.Fatalf("LoadDotEnv() error = nil for missing file")
	}
}

// setCoreEnvEmpty unsets every variable Load reads and restores them after the test.
func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_LOG_LEVEL",
		"APP_LOG_FORMAT",
		"APP_ALLOW_ANY_ORIGIN",
		"CORS_ALLOWED_ORIGINS",
		"PERF_WINDOW_SIZE",
		"WS_COALESCE_MIN_CHARS",
		"AUTH_MODE",
		"AUTH_JWT_SECRET",
		"AUTH_JWT_ISSUER",
		"AUTH_USER_HEADER",
		"STORE_BACKEND",
		"DATABASE_URL",
		"POSTGRES_URI",
		"DB_MAX_CONNS",
		"DB_MIN_CONNS",
		"DB_CONNECT_ATTEMPTS",
		"MIGRATE_ON_START",
		"SQLITE_PATH",
		"DYNAMODB_TABLE",
		"DYNAMODB_ENDPOINT",
		"AWS_REGION",
		"SESSION_INACTIVITY_TIMEOUT",
		"MEMORY_WINDOW_SIZE",
		"MEMORY_CONTEXT_MESSAGES",
		"MEMORY_CONTEXT_MAX_CHARS",
		"PROGRESS_SCAN_LIMIT",
		"SESSIONS_SCAN_LIMIT",
		"MEMORY_CACHE_ENABLED",
		"MEMORY_CACHE_MAX_COST",
		"LLM_PROVIDER",
		"LLM_MODEL",
		"LLM_TIMEOUT",
		"LLM_TEMPERATURE",
		"LLM_MAX_TOKENS",
		"OPENAI_API_KEY",
		"OPENAI_BASE_URL",
		"ANTHROPIC_API_KEY",
		"ANTHROPIC_BASE_URL",
		"LLM_HTTP_URL",
		"LLM_HTTP_API_KEY",
		"LLM_HTTP_STREAM_STRICT",
	}
	for _, key := range keys {
		t.Setenv(key, "")
		_ = os.Unsetenv(key)
	}
}
