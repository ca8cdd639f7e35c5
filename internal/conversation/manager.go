// Package conversation rebuilds bounded conversation windows from the turn log
// and derives keyword summaries from it. Nothing is kept between calls.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ent0n29/isoauditor/internal/memory"
	"github.com/ent0n29/isoauditor/internal/session"
	"github.com/ent0n29/isoauditor/internal/topics"
)

const (
	DefaultWindowSize   = 20
	DefaultProgressScan = 100
	DefaultSessionsScan = 100
)

type Options struct {
	ProgressScanLimit int
	SessionsScanLimit int
}

// Manager is the session memory manager. It is safe for concurrent use as long as the store is.
type Manager struct {
	store        memory.Store
	progressScan int
	sessionsScan int
}

func NewManager(store memory.Store, opts Options) *Manager {
	if opts.ProgressScanLimit <= 0 {
		opts.ProgressScanLimit = DefaultProgressScan
	}
	if opts.SessionsScanLimit <= 0 {
		opts.SessionsScanLimit = DefaultSessionsScan
	}
	return &Manager{
		store:        store,
		progressScan: opts.ProgressScanLimit,
		sessionsScan: opts.SessionsScanLimit,
	}
}

// BuildWindow returns at most k of the most recent exchanges of the session, oldest first.
func (m *Manager) BuildWindow(ctx context.Context, userID, sessionID string, k int) (Window, error) {
	if k < 1 {
		return Window{}, fmt.Errorf("%w: window size must be at least 1, got %d", ErrValidation, k)
	}
	if err := validateKeys(userID, sessionID); err != nil {
		return Window{}, err
	}
	turns, err := m.store.RecentSessionTurns(ctx, userID, sessionID, k)
	if err != nil {
		return Window{}, storageErr("read window", err)
	}
	if len(turns) == 0 {
		return Window{}, ErrNotFound
	}
	w := Window{SessionID: sessionID, Pairs: make([]Pair, 0, len(turns))}
	for _, t := range turns {
		w.Pairs = append(w.Pairs, Pair{Query: t.Query, Response: t.Response, Timestamp: t.CreatedAt})
	}
	return w, nil
}

// AppendExchange records one completed exchange with a server-assigned timestamp.
func (m *Manager) AppendExchange(ctx context.Context, userID, sessionID, query, response string) (memory.Turn, error) {
	if err := validateKeys(userID, sessionID); err != nil {
		return memory.Turn{}, err
	}
	if strings.TrimSpace(query) == "" {
		return memory.Turn{}, fmt.Errorf("%w: query is required", ErrValidation)
	}
	saved, err := m.store.AppendTurn(ctx, memory.Turn{
		UserID:    userID,
		SessionID: sessionID,
		Query:     query,
		Response:  response,
	})
	if err != nil {
		return memory.Turn{}, storageErr("append turn", err)
	}
	return saved, nil
}

// Summarize scans every turn of the session. An unknown session yields a zero summary.
func (m *Manager) Summarize(ctx context.Context, userID, sessionID string) (topics.Summary, error) {
	if err := validateKeys(userID, sessionID); err != nil {
		return topics.Summary{}, err
	}
	turns, err := m.store.SessionTurns(ctx, userID, sessionID)
	if err != nil {
		return topics.Summary{}, storageErr("read session", err)
	}
	return topics.Summarize(turns), nil
}

// LearningProgress scans the user's most recent turns across all sessions.
func (m *Manager) LearningProgress(ctx context.Context, userID string) (topics.Progress, error) {
	if strings.TrimSpace(userID) == "" {
		return topics.Progress{}, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	turns, err := m.store.RecentUserTurns(ctx, userID, m.progressScan)
	if err != nil {
		return topics.Progress{}, storageErr("read user turns", err)
	}
	return topics.AssessProgress(turns), nil
}

// DeleteSession removes every turn of the session in one transaction.
// It reports true on success, including when the session was already empty.
func (m *Manager) DeleteSession(ctx context.Context, userID, sessionID string) (bool, error) {
	if err := validateKeys(userID, sessionID); err != nil {
		return false, err
	}
	if _, err := m.store.DeleteSession(ctx, userID, sessionID); err != nil {
		return false, storageErr("delete session", err)
	}
	return true, nil
}

// History is the full transcript of a session.
type History struct {
	SessionID      string    `json:"session_id"`
	Messages       []Message `json:"conversation_history"`
	CreatedAt      time.Time `json:"created_at"`
	TotalExchanges int       `json:"total_exchanges"`
}

func (m *Manager) History(ctx context.Context, userID, sessionID string) (History, error) {
	if err := validateKeys(userID, sessionID); err != nil {
		return History{}, err
	}
	turns, err := m.store.SessionTurns(ctx, userID, sessionID)
	if err != nil {
		return History{}, storageErr("read session", err)
	}
	if len(turns) == 0 {
		return History{}, ErrNotFound
	}
	pairs := make([]Pair, 0, len(turns))
	for _, t := range turns {
		pairs = append(pairs, Pair{Query: t.Query, Response: t.Response, Timestamp: t.CreatedAt})
	}
	return History{
		SessionID:      sessionID,
		Messages:       expand(pairs),
		CreatedAt:      turns[0].CreatedAt,
		TotalExchanges: len(turns),
	}, nil
}

// ListSessions groups the user's most recent turns by session.
func (m *Manager) ListSessions(ctx context.Context, userID string) ([]session.Info, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	turns, err := m.store.RecentUserTurns(ctx, userID, m.sessionsScan)
	if err != nil {
		return nil, storageErr("read user turns", err)
	}
	return session.Group(turns), nil
}

func validateKeys(userID, sessionID string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if err := session.Validate(sessionID); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

func storageErr(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}
