package session

import (
	"context"
	"sync"
	"time"
)

// Tracker counts sessions that saw a query recently. It holds timestamps only,
// never conversation content, and entries are keyed by user and session.
type Tracker struct {
	mu                sync.RWMutex
	lastSeen          map[trackerKey]time.Time
	inactivityTimeout time.Duration
	onExpire          func(userID, sessionID string)
}

type trackerKey struct {
	userID    string
	sessionID string
}

func NewTracker(inactivityTimeout time.Duration) *Tracker {
	if inactivityTimeout <= 0 {
		inactivityTimeout = 30 * time.Minute
	}
	return &Tracker{
		lastSeen:          make(map[trackerKey]time.Time),
		inactivityTimeout: inactivityTimeout,
	}
}

func (t *Tracker) SetExpireHook(hook func(userID, sessionID string)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onExpire = hook
}

func (t *Tracker) Touch(userID, sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastSeen[trackerKey{userID, sessionID}] = time.Now().UTC()
}

func (t *Tracker) Forget(userID, sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.lastSeen, trackerKey{userID, sessionID})
}

func (t *Tracker) ActiveCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.lastSeen)
}

func (t *Tracker) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.expireInactive()
			}
		}
	}()
}

func (t *Tracker) expireInactive() {
	now := time.Now().UTC()
	var expired []trackerKey

	t.mu.Lock()
	for k, seen := range t.lastSeen {
		if now.Sub(seen) < t.inactivityTimeout {
			continue
		}
		delete(t.lastSeen, k)
		expired = append(expired, k)
	}
	hook := t.onExpire
	t.mu.Unlock()

	if hook != nil {
		for _, k := range expired {
			hook(k.userID, k.sessionID)
		}
	}
}
