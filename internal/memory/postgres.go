package memory

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const turnColumns = `id, user_id, session_id, query, response, created_at`

// PostgresOptions tunes the connection pool.
type PostgresOptions struct {
	MaxConns int32
	MinConns int32
}

// PostgresStore persists the turn log in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string, opts PostgresOptions) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 && opts.MinConns <= cfg.MaxConns {
		cfg.MinConns = opts.MinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) AppendTurn(ctx context.Context, turn Turn) (Turn, error) {
	turn = prepare(turn)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO user_conversations (`+turnColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		turn.ID,
		turn.UserID,
		turn.SessionID,
		turn.Query,
		turn.Response,
		turn.CreatedAt,
	)
	if err != nil {
		return Turn{}, fmt.Errorf("insert turn: %w", err)
	}
	return turn, nil
}

func (s *PostgresStore) SessionTurns(ctx context.Context, userID, sessionID string) ([]Turn, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+turnColumns+` FROM user_conversations
		 WHERE user_id=$1 AND session_id=$2
		 ORDER BY created_at ASC, id ASC`,
		userID, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query session turns: %w", err)
	}
	return scanTurns(rows, 0)
}

func (s *PostgresStore) RecentSessionTurns(ctx context.Context, userID, sessionID string, limit int) ([]Turn, error) {
	if limit <= 0 {
		return s.SessionTurns(ctx, userID, sessionID)
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+turnColumns+` FROM user_conversations
		 WHERE user_id=$1 AND session_id=$2
		 ORDER BY created_at DESC, id DESC LIMIT $3`,
		userID, sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent session turns: %w", err)
	}
	items, err := scanTurns(rows, limit)
	if err != nil {
		return nil, err
	}
	reverse(items)
	return items, nil
}

func (s *PostgresStore) RecentUserTurns(ctx context.Context, userID string, limit int) ([]Turn, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+turnColumns+` FROM user_conversations
		 WHERE user_id=$1
		 ORDER BY created_at DESC, id DESC LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent user turns: %w", err)
	}
	return scanTurns(rows, limit)
}

func (s *PostgresStore) DeleteSession(ctx context.Context, userID, sessionID string) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`DELETE FROM user_conversations WHERE user_id=$1 AND session_id=$2`,
		userID, sessionID,
	)
	if err != nil {
		return 0, fmt.Errorf("delete session turns: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit delete: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Backend() string { return "postgres" }

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanTurns(rows pgx.Rows, capacity int) ([]Turn, error) {
	defer rows.Close()
	items := make([]Turn, 0, capacity)
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.ID, &t.UserID, &t.SessionID, &t.Query, &t.Response, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn row: %w", err)
		}
		t.CreatedAt = t.CreatedAt.UTC()
		items = append(items, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turn rows: %w", err)
	}
	return items, nil
}
