package memory

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS user_conversations (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	session_id TEXT NOT NULL,
	query TEXT NOT NULL,
	response TEXT NOT NULL,
	created_at_us INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_user_conversations_session
	ON user_conversations (user_id, session_id, created_at_us, id);
CREATE INDEX IF NOT EXISTS idx_user_conversations_user_created
	ON user_conversations (user_id, created_at_us, id);
`

// SQLiteStore keeps the turn log in an embedded SQLite database.
type SQLiteStore struct {
	conn *sql.DB
	path string
}

// OpenSQLite opens or creates a database file. The special path ":memory:" keeps
// everything in process memory.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection: an in-memory database is private to its connection and
	// SQLite serializes writers anyway.
	conn.SetMaxOpenConns(1)

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := conn.ExecContext(ctx, sqliteSchema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}
	return &SQLiteStore{conn: conn, path: path}, nil
}

func (s *SQLiteStore) AppendTurn(ctx context.Context, turn Turn) (Turn, error) {
	turn = prepare(turn)
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO user_conversations (id, user_id, session_id, query, response, created_at_us)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		turn.ID, turn.UserID, turn.SessionID, turn.Query, turn.Response, turn.CreatedAt.UnixMicro(),
	)
	if err != nil {
		return Turn{}, fmt.Errorf("insert turn: %w", err)
	}
	return turn, nil
}

func (s *SQLiteStore) SessionTurns(ctx context.Context, userID, sessionID string) ([]Turn, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, user_id, session_id, query, response, created_at_us FROM user_conversations
		 WHERE user_id = ? AND session_id = ?
		 ORDER BY created_at_us ASC, id ASC`,
		userID, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query session turns: %w", err)
	}
	return scanSQLiteTurns(rows)
}

func (s *SQLiteStore) RecentSessionTurns(ctx context.Context, userID, sessionID string, limit int) ([]Turn, error) {
	if limit <= 0 {
		return s.SessionTurns(ctx, userID, sessionID)
	}
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, user_id, session_id, query, response, created_at_us FROM user_conversations
		 WHERE user_id = ? AND session_id = ?
		 ORDER BY created_at_us DESC, id DESC LIMIT ?`,
		userID, sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent session turns: %w", err)
	}
	items, err := scanSQLiteTurns(rows)
	if err != nil {
		return nil, err
	}
	reverse(items)
	return items, nil
}

func (s *SQLiteStore) RecentUserTurns(ctx context.Context, userID string, limit int) ([]Turn, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, user_id, session_id, query, response, created_at_us FROM user_conversations
		 WHERE user_id = ?
		 ORDER BY created_at_us DESC, id DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent user turns: %w", err)
	}
	return scanSQLiteTurns(rows)
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, userID, sessionID string) (int64, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM user_conversations WHERE user_id = ? AND session_id = ?`,
		userID, sessionID,
	)
	if err != nil {
		return 0, fmt.Errorf("delete session turns: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit delete: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

func (s *SQLiteStore) Backend() string { return "sqlite" }

func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}

func scanSQLiteTurns(rows *sql.Rows) ([]Turn, error) {
	defer rows.Close()
	var items []Turn
	for rows.Next() {
		var (
			t  Turn
			us int64
		)
		if err := rows.Scan(&t.ID, &t.UserID, &t.SessionID, &t.Query, &t.Response, &us); err != nil {
			return nil, fmt.Errorf("scan turn row: %w", err)
		}
		t.CreatedAt = time.UnixMicro(us).UTC()
		items = append(items, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turn rows: %w", err)
	}
	return items, nil
}
