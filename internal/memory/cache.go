package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/dgraph-io/ristretto"
)

// CachedStore keeps recently read session turn lists in a ristretto cache.
// Every append or delete on a session evicts the entry and bumps the generation of
// reads still in flight for it; such a read never writes its result back.
type CachedStore struct {
	Store

	cache *ristretto.Cache

	mu sync.Mutex
	// inflight holds one entry per key with a backing-store read under way.
	inflight map[string]*pendingRead
}

type pendingRead struct {
	generation uint64
	readers    int
}

func NewCachedStore(inner Store, maxCost int64) (*CachedStore, error) {
	if maxCost <= 0 {
		maxCost = 10_000
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxCost * 10,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create window cache: %w", err)
	}
	return &CachedStore{
		Store:    inner,
		cache:    cache,
		inflight: make(map[string]*pendingRead),
	}, nil
}

func (s *CachedStore) AppendTurn(ctx context.Context, turn Turn) (Turn, error) {
	saved, err := s.Store.AppendTurn(ctx, turn)
	// Invalidate even on error: the write may have landed.
	s.invalidate(cacheKey(turn.UserID, turn.SessionID))
	return saved, err
}

func (s *CachedStore) SessionTurns(ctx context.Context, userID, sessionID string) ([]Turn, error) {
	key := cacheKey(userID, sessionID)
	if v, ok := s.cache.Get(key); ok {
		return cloneTurns(v.([]Turn)), nil
	}

	pending, gen := s.beginRead(key)
	turns, err := s.Store.SessionTurns(ctx, userID, sessionID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil && pending.generation == gen {
		s.cache.Set(key, cloneTurns(turns), int64(len(turns))+1)
	}
	pending.readers--
	if pending.readers == 0 {
		delete(s.inflight, key)
	}
	if err != nil {
		return nil, err
	}
	return turns, nil
}

func (s *CachedStore) RecentSessionTurns(ctx context.Context, userID, sessionID string, limit int) ([]Turn, error) {
	all, err := s.SessionTurns(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

func (s *CachedStore) DeleteSession(ctx context.Context, userID, sessionID string) (int64, error) {
	n, err := s.Store.DeleteSession(ctx, userID, sessionID)
	s.invalidate(cacheKey(userID, sessionID))
	return n, err
}

func (s *CachedStore) Backend() string { return s.Store.Backend() + "+cache" }

func (s *CachedStore) Close() error {
	s.cache.Close()
	return s.Store.Close()
}

func (s *CachedStore) beginRead(key string) (*pendingRead, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.inflight[key]
	if !ok {
		p = &pendingRead{}
		s.inflight[key] = p
	}
	p.readers++
	return p, p.generation
}

func (s *CachedStore) invalidate(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.inflight[key]; ok {
		p.generation++
	}
	s.cache.Del(key)
}

func cacheKey(userID, sessionID string) string {
	return userID + "\x00" + sessionID
}

func cloneTurns(in []Turn) []Turn {
	if in == nil {
		return nil
	}
	out := make([]Turn, len(in))
	copy(out, in)
	return out
}
