package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ent0n29/isoauditor/internal/reliability"
)

// Options selects and configures the turn log backend.
type Options struct {
	Backend        string // auto|postgres|sqlite|dynamodb|memory
	DatabaseURL    string
	MigrateOnStart bool
	Postgres       PostgresOptions
	SQLitePath     string
	Dynamo         DynamoOptions
	CacheEnabled   bool
	CacheMaxCost   int64

	// ConnectAttempts bounds startup retries while the database comes up.
	ConnectAttempts int
}

// NewStore creates the configured backend. "auto" picks postgres when a database url is
// set and falls back to the in-memory log otherwise.
func NewStore(ctx context.Context, opts Options) (Store, error) {
	backend := strings.ToLower(strings.TrimSpace(opts.Backend))
	if backend == "" || backend == "auto" {
		backend = "memory"
		if strings.TrimSpace(opts.DatabaseURL) != "" {
			backend = "postgres"
		}
	}

	var (
		store Store
		err   error
	)
	switch backend {
	case "postgres":
		if strings.TrimSpace(opts.DatabaseURL) == "" {
			return nil, fmt.Errorf("postgres backend requires DATABASE_URL")
		}
		store, err = connectPostgres(ctx, opts)
		if err == nil && opts.MigrateOnStart {
			if err = RunMigrations(opts.DatabaseURL); err != nil {
				_ = store.Close()
			}
		}
	case "sqlite":
		path := strings.TrimSpace(opts.SQLitePath)
		if path == "" {
			return nil, fmt.Errorf("sqlite backend requires SQLITE_PATH")
		}
		store, err = OpenSQLite(ctx, path)
	case "dynamodb":
		store, err = NewDynamoStore(ctx, opts.Dynamo)
	case "memory":
		slog.Warn("using in-memory turn log; conversations are lost on restart")
		store = NewInMemoryStore()
	default:
		return nil, fmt.Errorf("unsupported store backend %q", opts.Backend)
	}
	if err != nil {
		return nil, err
	}

	if opts.CacheEnabled {
		cached, err := NewCachedStore(store, opts.CacheMaxCost)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		return cached, nil
	}
	return store, nil
}

func connectPostgres(ctx context.Context, opts Options) (Store, error) {
	attempts := opts.ConnectAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			wait := reliability.ExponentialBackoff(attempt-1, 250*time.Millisecond, 5*time.Second)
			slog.Warn("postgres not ready, retrying", "attempt", attempt+1, "wait", wait, "err", lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}
		store, err := NewPostgresStore(ctx, opts.DatabaseURL, opts.Postgres)
		if err == nil {
			return store, nil
		}
		lastErr = err
	}
	return nil, lastErr
}
