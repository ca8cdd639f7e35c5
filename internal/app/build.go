// Package app assembles the service from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/ent0n29/isoauditor/internal/auditor"
	"github.com/ent0n29/isoauditor/internal/auth"
	"github.com/ent0n29/isoauditor/internal/config"
	"github.com/ent0n29/isoauditor/internal/conversation"
	"github.com/ent0n29/isoauditor/internal/httpapi"
	"github.com/ent0n29/isoauditor/internal/knowledge"
	"github.com/ent0n29/isoauditor/internal/llm"
	"github.com/ent0n29/isoauditor/internal/memory"
	"github.com/ent0n29/isoauditor/internal/observability"
	"github.com/ent0n29/isoauditor/internal/session"
)

type BuildResult struct {
	Config    config.Config
	API       *httpapi.Server
	Auditor   *auditor.Service
	Store     memory.Store
	Tracker   *session.Tracker
	Metrics   *observability.Metrics
	Stages    *observability.StageWindow
	Knowledge *knowledge.Base

	// Cleanup should be called on shutdown to release external resources.
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	kb, err := knowledge.Default()
	if err != nil {
		return nil, fmt.Errorf("knowledge base init failed: %w", err)
	}

	authn, err := auth.New(auth.Config{
		Mode:       cfg.AuthMode,
		JWTSecret:  cfg.AuthJWTSecret,
		JWTIssuer:  cfg.AuthJWTIssuer,
		UserHeader: cfg.AuthUserHeader,
	})
	if err != nil {
		return nil, fmt.Errorf("auth init failed: %w", err)
	}

	completer, err := llm.NewCompleter(LLMConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("llm init failed: %w", err)
	}

	store, err := memory.NewStore(ctx, StoreOptions(cfg))
	if err != nil {
		return nil, fmt.Errorf("memory store init failed: %w", err)
	}

	tracker := session.NewTracker(cfg.SessionInactivityTimeout)
	tracker.SetExpireHook(func(userID, sessionID string) {
		slog.Debug("session idle", "user_id", userID, "session_id", sessionID)
	})
	metrics := observability.NewMetrics(cfg.MetricsNamespace, tracker.ActiveCount)
	stages := observability.NewStageWindow(cfg.PerfWindowSize)

	mgr := conversation.NewManager(store, conversation.Options{
		ProgressScanLimit: cfg.ProgressScanLimit,
		SessionsScanLimit: cfg.SessionsScanLimit,
	})
	svc := auditor.NewService(mgr, completer, kb, tracker, metrics, stages, auditor.Options{
		WindowSize:      cfg.MemoryWindowSize,
		ContextMessages: cfg.MemoryContextMessages,
		ContextMaxChars: cfg.MemoryContextMaxChars,
	})

	api := httpapi.New(httpapi.Options{
		AllowAnyOrigin:     cfg.AllowAnyOrigin,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		CoalesceMinChars:   cfg.WSCoalesceMinChars,
	}, svc, store, authn, tracker, metrics, stages)

	slog.Info("auditor assembled",
		"store_backend", store.Backend(),
		"llm_provider", completer.Name(),
		"auth_mode", authn.Mode(),
		"window_size", cfg.MemoryWindowSize,
		"controls", kb.ControlCount(),
	)

	cleanup := func() error {
		return closeAll(namedCloser{"memory store", store})
	}

	return &BuildResult{
		Config:    cfg,
		API:       api,
		Auditor:   svc,
		Store:     store,
		Tracker:   tracker,
		Metrics:   metrics,
		Stages:    stages,
		Knowledge: kb,
		Cleanup:   cleanup,
	}, nil
}

type namedCloser struct {
	name string
	io.Closer
}

// closeAll closes every resource and joins the failures so callers can match each cause.
func closeAll(closers ...namedCloser) error {
	var errs []error
	for _, c := range closers {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	return errors.Join(errs...)
}

// StoreOptions maps configuration onto the turn log factory.
func StoreOptions(cfg config.Config) memory.Options {
	return memory.Options{
		Backend:        cfg.StoreBackend,
		DatabaseURL:    cfg.DatabaseURL,
		MigrateOnStart: cfg.MigrateOnStart,
		Postgres: memory.PostgresOptions{
			MaxConns: cfg.DBMaxConns,
			MinConns: cfg.DBMinConns,
		},
		SQLitePath: cfg.SQLitePath,
		Dynamo: memory.DynamoOptions{
			Table:    cfg.DynamoTable,
			Region:   cfg.AWSRegion,
			Endpoint: cfg.DynamoEndpoint,
		},
		CacheEnabled:    cfg.MemoryCacheEnabled,
		CacheMaxCost:    cfg.MemoryCacheMaxCost,
		ConnectAttempts: cfg.DBConnectAttempts,
	}
}

// LLMConfig maps configuration onto the completer factory.
func LLMConfig(cfg config.Config) llm.Config {
	return llm.Config{
		Provider:         cfg.LLMProvider,
		Model:            cfg.LLMModel,
		Temperature:      cfg.LLMTemperature,
		MaxTokens:        cfg.LLMMaxTokens,
		Timeout:          cfg.LLMTimeout,
		OpenAIAPIKey:     cfg.OpenAIAPIKey,
		OpenAIBaseURL:    cfg.OpenAIBaseURL,
		AnthropicAPIKey:  cfg.AnthropicAPIKey,
		AnthropicBaseURL: cfg.AnthropicBaseURL,
		HTTPURL:          cfg.LLMHTTPURL,
		HTTPToken:        cfg.LLMHTTPAPIKey,
		HTTPStreamStrict: cfg.LLMHTTPStreamStrict,
	}
}
