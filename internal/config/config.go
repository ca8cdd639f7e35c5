package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config contains all runtime settings for the auditor service.
type Config struct {
	// Server
	BindAddr           string        `env:"APP_BIND_ADDR" envDefault:":8000"`
	ShutdownTimeout    time.Duration `env:"APP_SHUTDOWN_TIMEOUT" envDefault:"15s"`
	MetricsNamespace   string        `env:"APP_METRICS_NAMESPACE" envDefault:"isoauditor"`
	LogLevel           string        `env:"APP_LOG_LEVEL" envDefault:"info"`
	LogFormat          string        `env:"APP_LOG_FORMAT" envDefault:"json"`
	AllowAnyOrigin     bool          `env:"APP_ALLOW_ANY_ORIGIN" envDefault:"false"`
	CORSAllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	PerfWindowSize     int           `env:"PERF_WINDOW_SIZE" envDefault:"512"`
	WSCoalesceMinChars int           `env:"WS_COALESCE_MIN_CHARS" envDefault:"24"`

	// Auth
	AuthMode       string `env:"AUTH_MODE" envDefault:"jwt"`
	AuthJWTSecret  string `env:"AUTH_JWT_SECRET"`
	AuthJWTIssuer  string `env:"AUTH_JWT_ISSUER"`
	AuthUserHeader string `env:"AUTH_USER_HEADER" envDefault:"X-User-ID"`

	// Storage
	StoreBackend      string `env:"STORE_BACKEND" envDefault:"auto"`
	DatabaseURL       string `env:"DATABASE_URL"`
	PostgresURI       string `env:"POSTGRES_URI"`
	DBMaxConns        int32  `env:"DB_MAX_CONNS" envDefault:"20"`
	DBMinConns        int32  `env:"DB_MIN_CONNS" envDefault:"2"`
	DBConnectAttempts int    `env:"DB_CONNECT_ATTEMPTS" envDefault:"5"`
	MigrateOnStart    bool   `env:"MIGRATE_ON_START" envDefault:"true"`
	SQLitePath        string `env:"SQLITE_PATH"`
	DynamoTable       string `env:"DYNAMODB_TABLE" envDefault:"user_conversations"`
	DynamoEndpoint    string `env:"DYNAMODB_ENDPOINT"`
	AWSRegion         string `env:"AWS_REGION" envDefault:"us-east-1"`

	// Memory
	SessionInactivityTimeout time.Duration `env:"SESSION_INACTIVITY_TIMEOUT" envDefault:"30m"`
	MemoryWindowSize         int           `env:"MEMORY_WINDOW_SIZE" envDefault:"20"`
	MemoryContextMessages    int           `env:"MEMORY_CONTEXT_MESSAGES" envDefault:"10"`
	MemoryContextMaxChars    int           `env:"MEMORY_CONTEXT_MAX_CHARS" envDefault:"200"`
	ProgressScanLimit        int           `env:"PROGRESS_SCAN_LIMIT" envDefault:"100"`
	SessionsScanLimit        int           `env:"SESSIONS_SCAN_LIMIT" envDefault:"100"`
	MemoryCacheEnabled       bool          `env:"MEMORY_CACHE_ENABLED" envDefault:"false"`
	MemoryCacheMaxCost       int64         `env:"MEMORY_CACHE_MAX_COST" envDefault:"10000"`

	// Language model
	LLMProvider         string        `env:"LLM_PROVIDER" envDefault:"auto"`
	LLMModel            string        `env:"LLM_MODEL"`
	LLMTimeout          time.Duration `env:"LLM_TIMEOUT" envDefault:"30s"`
	LLMTemperature      float64       `env:"LLM_TEMPERATURE" envDefault:"0.1"`
	LLMMaxTokens        int           `env:"LLM_MAX_TOKENS" envDefault:"2048"`
	OpenAIAPIKey        string        `env:"OPENAI_API_KEY"`
	OpenAIBaseURL       string        `env:"OPENAI_BASE_URL"`
	AnthropicAPIKey     string        `env:"ANTHROPIC_API_KEY"`
	AnthropicBaseURL    string        `env:"ANTHROPIC_BASE_URL"`
	LLMHTTPURL          string        `env:"LLM_HTTP_URL"`
	LLMHTTPAPIKey       string        `env:"LLM_HTTP_API_KEY"`
	LLMHTTPStreamStrict bool          `env:"LLM_HTTP_STREAM_STRICT" envDefault:"false"`
}

// LoadDotEnv reads .env files into the process environment when present.
// Variables already set win over file values.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	var missing int
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			missing++
		}
	}
	if missing == len(paths) {
		return errors.New("no .env file found")
	}
	return nil
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.DatabaseURL = strings.TrimSpace(c.DatabaseURL)
	if c.DatabaseURL == "" {
		c.DatabaseURL = strings.TrimSpace(c.PostgresURI)
	}
	c.StoreBackend = strings.ToLower(strings.TrimSpace(c.StoreBackend))
	c.LLMProvider = strings.ToLower(strings.TrimSpace(c.LLMProvider))
	c.AuthMode = strings.ToLower(strings.TrimSpace(c.AuthMode))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))

	origins := c.CORSAllowedOrigins[:0]
	for _, o := range c.CORSAllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	c.CORSAllowedOrigins = origins
}

// Validate rejects settings the service cannot start with.
func (c Config) Validate() error {
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("APP_SHUTDOWN_TIMEOUT must be positive")
	}
	if c.LLMTimeout <= 0 {
		return fmt.Errorf("LLM_TIMEOUT must be positive")
	}
	if c.SessionInactivityTimeout < 5*time.Second {
		return fmt.Errorf("SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if c.MemoryWindowSize < 1 {
		return fmt.Errorf("MEMORY_WINDOW_SIZE must be at least 1")
	}
	if c.MemoryContextMessages < 1 {
		return fmt.Errorf("MEMORY_CONTEXT_MESSAGES must be at least 1")
	}
	if c.MemoryContextMaxChars < 1 {
		return fmt.Errorf("MEMORY_CONTEXT_MAX_CHARS must be positive")
	}
	if c.ProgressScanLimit < 1 || c.SessionsScanLimit < 1 {
		return fmt.Errorf("PROGRESS_SCAN_LIMIT and SESSIONS_SCAN_LIMIT must be positive")
	}
	if c.DBMaxConns < 1 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS must be within [0, DB_MAX_CONNS]")
	}
	if c.LLMTemperature < 0 || c.LLMTemperature > 2 {
		return fmt.Errorf("LLM_TEMPERATURE must be within [0, 2]")
	}
	if c.LLMMaxTokens < 1 {
		return fmt.Errorf("LLM_MAX_TOKENS must be positive")
	}
	if err := oneOf("STORE_BACKEND", c.StoreBackend, "auto", "postgres", "sqlite", "dynamodb", "memory"); err != nil {
		return err
	}
	if err := oneOf("LLM_PROVIDER", c.LLMProvider, "auto", "openai", "anthropic", "http", "mock"); err != nil {
		return err
	}
	if err := oneOf("AUTH_MODE", c.AuthMode, "jwt", "header"); err != nil {
		return err
	}
	if err := oneOf("APP_LOG_FORMAT", c.LogFormat, "json", "text"); err != nil {
		return err
	}
	if err := oneOf("APP_LOG_LEVEL", c.LogLevel, "debug", "info", "warn", "error"); err != nil {
		return err
	}
	if c.AuthMode == "jwt" && strings.TrimSpace(c.AuthJWTSecret) == "" {
		return fmt.Errorf("AUTH_JWT_SECRET is required when AUTH_MODE=jwt")
	}
	return nil
}

func oneOf(key, v string, allowed ...string) error {
	for _, a := range allowed {
		if v == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %s, got %q", key, strings.Join(allowed, "|"), v)
}
