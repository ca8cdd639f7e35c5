package memory

import (
	"context"
	"sort"
	"sync"
)

// InMemoryStore is a simple in-process turn log for local/dev use.
type InMemoryStore struct {
	mu    sync.RWMutex
	turns map[string][]Turn
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{turns: make(map[string][]Turn)}
}

func (s *InMemoryStore) AppendTurn(_ context.Context, turn Turn) (Turn, error) {
	turn = prepare(turn)
	s.mu.Lock()
	defer s.mu.Unlock()
	arr := append(s.turns[turn.UserID], turn)
	// Keep the log sorted even when callers supply their own timestamps.
	sort.SliceStable(arr, func(i, j int) bool { return before(arr[i], arr[j]) })
	s.turns[turn.UserID] = arr
	return turn, nil
}

func (s *InMemoryStore) SessionTurns(_ context.Context, userID, sessionID string) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Turn
	for _, t := range s.turns[userID] {
		if t.SessionID == sessionID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *InMemoryStore) RecentSessionTurns(ctx context.Context, userID, sessionID string, limit int) ([]Turn, error) {
	all, err := s.SessionTurns(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

func (s *InMemoryStore) RecentUserTurns(_ context.Context, userID string, limit int) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	arr := s.turns[userID]
	if len(arr) == 0 {
		return nil, nil
	}
	if limit <= 0 || limit > len(arr) {
		limit = len(arr)
	}
	out := make([]Turn, 0, limit)
	for i := len(arr) - 1; i >= len(arr)-limit; i-- {
		out = append(out, arr[i])
	}
	return out, nil
}

func (s *InMemoryStore) DeleteSession(_ context.Context, userID, sessionID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	arr := s.turns[userID]
	kept := arr[:0]
	var deleted int64
	for _, t := range arr {
		if t.SessionID == sessionID {
			deleted++
			continue
		}
		kept = append(kept, t)
	}
	if len(kept) == 0 {
		delete(s.turns, userID)
	} else {
		s.turns[userID] = kept
	}
	return deleted, nil
}

func (s *InMemoryStore) Ping(context.Context) error { return nil }

func (s *InMemoryStore) Backend() string { return "memory" }

func (s *InMemoryStore) Close() error { return nil }
