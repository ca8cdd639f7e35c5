package memory

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Turn stores one query/response exchange. Turns are immutable once written.
type Turn struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	SessionID string    `json:"session_id"`
	Query     string    `json:"query"`
	Response  string    `json:"response"`
	CreatedAt time.Time `json:"timestamp"`
}

// Store is the append-only turn log.
type Store interface {
	AppendTurn(ctx context.Context, turn Turn) (Turn, error)
	// SessionTurns returns every turn of the session, oldest first.
	SessionTurns(ctx context.Context, userID, sessionID string) ([]Turn, error)
	// RecentSessionTurns returns the limit most recent turns of the session, oldest first.
	RecentSessionTurns(ctx context.Context, userID, sessionID string, limit int) ([]Turn, error)
	// RecentUserTurns returns the limit most recent turns of the user across sessions, newest first.
	RecentUserTurns(ctx context.Context, userID string, limit int) ([]Turn, error)
	DeleteSession(ctx context.Context, userID, sessionID string) (int64, error)
	Ping(ctx context.Context) error
	Backend() string
	Close() error
}

// prepare fills server-assigned fields.
func prepare(turn Turn) Turn {
	if turn.ID == "" {
		turn.ID = newTurnID()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = now()
	}
	return turn
}

// Timestamps are kept at microsecond precision so every backend round-trips them unchanged.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func newTurnID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// before reports whether a sorts ahead of b in the turn log.
func before(a, b Turn) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID < b.ID
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

func reverse(turns []Turn) {
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
}
