// Package llm wraps the language-model providers behind a single completion call.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Request is one system prompt plus one user message. Prior turns travel inside the system prompt.
type Request struct {
	SystemPrompt string
	UserMessage  string
}

// Response is the final text after all deltas.
type Response struct {
	Text string
}

// DeltaHandler receives streamed text fragments. Returning an error aborts the call.
type DeltaHandler func(delta string) error

// Completer produces one completion. onDelta may be nil.
type Completer interface {
	Complete(ctx context.Context, req Request, onDelta DeltaHandler) (Response, error)
	Name() string
}

// Config controls provider construction.
type Config struct {
	Provider    string // auto|openai|anthropic|http|mock
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration

	OpenAIAPIKey  string
	OpenAIBaseURL string

	AnthropicAPIKey  string
	AnthropicBaseURL string

	HTTPURL          string
	HTTPToken        string
	HTTPStreamStrict bool
}

const (
	DefaultOpenAIModel    = "gpt-4"
	DefaultAnthropicModel = "claude-sonnet-4-5"
	DefaultTemperature    = 0.1
	DefaultMaxTokens      = 2048
	DefaultTimeout        = 30 * time.Second
)

// NewCompleter builds the configured provider wrapped with the upstream timeout.
func NewCompleter(cfg Config) (Completer, error) {
	inner, err := newProvider(cfg)
	if err != nil {
		return nil, err
	}
	return WithTimeout(inner, cfg.Timeout), nil
}

func newProvider(cfg Config) (Completer, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if mode == "" {
		mode = "auto"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}

	switch mode {
	case "auto":
		return newAutoProvider(cfg), nil
	case "openai":
		if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
			return nil, errors.New("OPENAI_API_KEY is required for the openai provider")
		}
		return NewOpenAI(cfg), nil
	case "anthropic":
		if strings.TrimSpace(cfg.AnthropicAPIKey) == "" {
			return nil, errors.New("ANTHROPIC_API_KEY is required for the anthropic provider")
		}
		return NewAnthropic(cfg), nil
	case "http":
		if strings.TrimSpace(cfg.HTTPURL) == "" {
			return nil, errors.New("LLM_HTTP_URL is required for the http provider")
		}
		return NewHTTP(cfg), nil
	case "mock":
		return NewMock(), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}

func newAutoProvider(cfg Config) Completer {
	switch {
	case strings.TrimSpace(cfg.OpenAIAPIKey) != "":
		return NewOpenAI(cfg)
	case strings.TrimSpace(cfg.AnthropicAPIKey) != "":
		return NewAnthropic(cfg)
	case strings.TrimSpace(cfg.HTTPURL) != "":
		return NewHTTP(cfg)
	default:
		return NewMock()
	}
}
