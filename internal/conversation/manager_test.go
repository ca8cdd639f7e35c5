package conversation

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/ent0n29/isoauditor/internal/memory"
	"github.com/ent0n29/isoauditor/internal/topics"
)

type failingStore struct {
	memory.Store
	err error
}

func (f failingStore) AppendTurn(context.Context, memory.Turn) (memory.Turn, error) {
	return memory.Turn{}, f.err
}

func (f failingStore) RecentSessionTurns(context.Context, string, string, int) ([]memory.Turn, error) {
	return nil, f.err
}

func (f failingStore) DeleteSession(context.Context, string, string) (int64, error) {
	return 0, f.err
}

func newTestManager() *Manager {
	return NewManager(memory.NewInMemoryStore(), Options{})
}

func appendN(t *testing.T, m *Manager, userID, sessionID string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if _, err := m.AppendExchange(context.Background(), userID, sessionID, fmt.Sprintf("q%d", i), fmt.Sprintf("r%d", i)); err != nil {
			t.Fatalf("AppendExchange() error = %v", err)
		}
	}
}

func TestBuildWindowKeepsMostRecentK(t *testing.T) {
	m := newTestManager()
	appendN(t, m, "u1", "s1", 7)

	w, err := m.BuildWindow(context.Background(), "u1", "s1", 3)
	if err != nil {
		t.Fatalf("BuildWindow() error = %v", err)
	}
	if w.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", w.Len())
	}
	for i, want := range []string{"q4", "q5", "q6"} {
		if w.Pairs[i].Query != want {
			t.Fatalf("Pairs[%d].Query = %q, want %q", i, w.Pairs[i].Query, want)
		}
	}
	for i := 1; i < w.Len(); i++ {
		if w.Pairs[i].Timestamp.Before(w.Pairs[i-1].Timestamp) {
			t.Fatalf("pairs not in ascending time order")
		}
	}
}

func TestBuildWindowReturnsAllWhenShort(t *testing.T) {
	m := newTestManager()
	appendN(t, m, "u1", "s1", 2)

	w, err := m.BuildWindow(context.Background(), "u1", "s1", DefaultWindowSize)
	if err != nil {
		t.Fatalf("BuildWindow() error = %v", err)
	}
	if w.Len() != 2 || w.Pairs[0].Query != "q0" || w.Pairs[1].Query != "q1" {
		t.Fatalf("BuildWindow() = %+v", w.Pairs)
	}
}

func TestBuildWindowNotFound(t *testing.T) {
	m := newTestManager()
	if _, err := m.BuildWindow(context.Background(), "u1", "missing", 5); !errors.Is(err, ErrNotFound) {
		t.Fatalf("BuildWindow() error = %v, want ErrNotFound", err)
	}
}

func TestBuildWindowRejectsBadInput(t *testing.T) {
	m := newTestManager()
	if _, err := m.BuildWindow(context.Background(), "u1", "s1", 0); !errors.Is(err, ErrValidation) {
		t.Fatalf("k=0 error = %v, want ErrValidation", err)
	}
	if _, err := m.BuildWindow(context.Background(), "", "s1", 1); !errors.Is(err, ErrValidation) {
		t.Fatalf("empty user error = %v, want ErrValidation", err)
	}
	if _, err := m.BuildWindow(context.Background(), "u1", "", 1); !errors.Is(err, ErrValidation) {
		t.Fatalf("empty session error = %v, want ErrValidation", err)
	}
}

func TestAppendShiftsFullWindow(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	appendN(t, m, "u1", "s1", 3)

	before, err := m.BuildWindow(ctx, "u1", "s1", 3)
	if err != nil {
		t.Fatalf("BuildWindow() error = %v", err)
	}
	if _, err := m.AppendExchange(ctx, "u1", "s1", "next", "answer"); err != nil {
		t.Fatalf("AppendExchange() error = %v", err)
	}
	after, err := m.BuildWindow(ctx, "u1", "s1", 3)
	if err != nil {
		t.Fatalf("BuildWindow() error = %v", err)
	}
	if !reflect.DeepEqual(after.Pairs[:2], before.Pairs[1:]) {
		t.Fatalf("window did not shift: before=%v after=%v", before.Pairs, after.Pairs)
	}
	if after.Pairs[2].Query != "next" {
		t.Fatalf("newest pair = %q, want next", after.Pairs[2].Query)
	}
}

func TestRoundTripSinglePair(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	if _, err := m.AppendExchange(ctx, "u1", "s1", "What is ISO 27001?", "An ISMS standard."); err != nil {
		t.Fatalf("AppendExchange() error = %v", err)
	}
	w, err := m.BuildWindow(ctx, "u1", "s1", 1)
	if err != nil {
		t.Fatalf("BuildWindow() error = %v", err)
	}
	msgs := w.Messages()
	if len(msgs) != 2 {
		t.Fatalf("len(Messages()) = %d, want 2", len(msgs))
	}
	if msgs[0].Role != RoleUser || msgs[0].Content != "What is ISO 27001?" {
		t.Fatalf("msgs[0] = %+v", msgs[0])
	}
	if msgs[1].Role != RoleAssistant || msgs[1].Content != "An ISMS standard." {
		t.Fatalf("msgs[1] = %+v", msgs[1])
	}
}

func TestWindowTail(t *testing.T) {
	w := Window{Pairs: []Pair{{Query: "a", Response: "b"}, {Query: "c", Response: "d"}}}
	tail := w.Tail(3)
	if len(tail) != 3 || tail[0].Content != "b" || tail[2].Content != "d" {
		t.Fatalf("Tail(3) = %+v", tail)
	}
	if got := w.Tail(10); len(got) != 4 {
		t.Fatalf("Tail(10) len = %d, want 4", len(got))
	}
}

func TestAppendExchangeStorageError(t *testing.T) {
	m := NewManager(failingStore{Store: memory.NewInMemoryStore(), err: errors.New("disk full")}, Options{})
	_, err := m.AppendExchange(context.Background(), "u1", "s1", "q", "r")
	if !errors.Is(err, ErrStorage) {
		t.Fatalf("AppendExchange() error = %v, want ErrStorage", err)
	}
}

func TestAppendExchangeRequiresQuery(t *testing.T) {
	m := newTestManager()
	if _, err := m.AppendExchange(context.Background(), "u1", "s1", "  ", "r"); !errors.Is(err, ErrValidation) {
		t.Fatalf("AppendExchange() error = %v, want ErrValidation", err)
	}
}

func TestBuildWindowStorageError(t *testing.T) {
	m := NewManager(failingStore{Store: memory.NewInMemoryStore(), err: errors.New("conn reset")}, Options{})
	if _, err := m.BuildWindow(context.Background(), "u1", "s1", 5); !errors.Is(err, ErrStorage) {
		t.Fatalf("BuildWindow() error = %v, want ErrStorage", err)
	}
}

func TestDeleteSessionScope(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	appendN(t, m, "u1", "s1", 3)
	appendN(t, m, "u1", "s2", 2)

	ok, err := m.DeleteSession(ctx, "u1", "s1")
	if err != nil || !ok {
		t.Fatalf("DeleteSession() = %v, %v; want true, nil", ok, err)
	}
	if _, err := m.BuildWindow(ctx, "u1", "s1", 5); !errors.Is(err, ErrNotFound) {
		t.Fatalf("BuildWindow() after delete error = %v, want ErrNotFound", err)
	}
	w, err := m.BuildWindow(ctx, "u1", "s2", 5)
	if err != nil || w.Len() != 2 {
		t.Fatalf("other session window = %d pairs, err %v; want 2", w.Len(), err)
	}
}

func TestDeleteSessionStorageError(t *testing.T) {
	m := NewManager(failingStore{Store: memory.NewInMemoryStore(), err: errors.New("tx aborted")}, Options{})
	ok, err := m.DeleteSession(context.Background(), "u1", "s1")
	if ok || !errors.Is(err, ErrStorage) {
		t.Fatalf("DeleteSession() = %v, %v; want false, ErrStorage", ok, err)
	}
}

func TestSummarizeIdempotent(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	if _, err := m.AppendExchange(ctx, "u1", "s1", "How do I run a risk assessment?", "Start with asset inventory."); err != nil {
		t.Fatalf("AppendExchange() error = %v", err)
	}
	if _, err := m.AppendExchange(ctx, "u1", "s1", "Which control applies?", "A.5.15 access control."); err != nil {
		t.Fatalf("AppendExchange() error = %v", err)
	}

	a, err := m.Summarize(ctx, "u1", "s1")
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	b, err := m.Summarize(ctx, "u1", "s1")
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("Summarize() not idempotent")
	}
	if a.TotalExchanges != 2 {
		t.Fatalf("TotalExchanges = %d, want 2", a.TotalExchanges)
	}
	if a.ComplianceFocus == nil || *a.ComplianceFocus != topics.ControlImplementation {
		t.Fatalf("ComplianceFocus = %v, want %q", a.ComplianceFocus, topics.ControlImplementation)
	}
}

func TestLearningProgressScenario(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	if _, err := m.AppendExchange(ctx, "u1", "s1", "Explain risk assessment", "It identifies risks."); err != nil {
		t.Fatalf("AppendExchange() error = %v", err)
	}
	if _, err := m.AppendExchange(ctx, "u1", "s2", "Who signs the policy?", "Top management."); err != nil {
		t.Fatalf("AppendExchange() error = %v", err)
	}

	got, err := m.LearningProgress(ctx, "u1")
	if err != nil {
		t.Fatalf("LearningProgress() error = %v", err)
	}
	if got.LearningLevel != topics.LevelBeginner {
		t.Fatalf("LearningLevel = %q, want Beginner", got.LearningLevel)
	}
	want := []string{topics.RiskAssessment, topics.PolicyDevelopment}
	if !reflect.DeepEqual(got.TopicsCovered, want) {
		t.Fatalf("TopicsCovered = %v, want %v", got.TopicsCovered, want)
	}
	for _, s := range got.SuggestedNextSteps {
		if s == topics.RiskAssessment || s == topics.PolicyDevelopment {
			t.Fatalf("SuggestedNextSteps contains covered topic %q", s)
		}
	}
}

func TestLearningProgressScanLimit(t *testing.T) {
	m := NewManager(memory.NewInMemoryStore(), Options{ProgressScanLimit: 2})
	appendN(t, m, "u1", "s1", 5)
	got, err := m.LearningProgress(context.Background(), "u1")
	if err != nil {
		t.Fatalf("LearningProgress() error = %v", err)
	}
	if got.TotalConversations != 2 {
		t.Fatalf("TotalConversations = %d, want 2", got.TotalConversations)
	}
}

func TestHistory(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	appendN(t, m, "u1", "s1", 2)

	h, err := m.History(ctx, "u1", "s1")
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if h.TotalExchanges != 2 || len(h.Messages) != 4 {
		t.Fatalf("History() = %d exchanges, %d messages; want 2, 4", h.TotalExchanges, len(h.Messages))
	}
	if h.Messages[2].Role != RoleUser || h.Messages[2].Content != "q1" {
		t.Fatalf("Messages[2] = %+v", h.Messages[2])
	}
	if !h.CreatedAt.Equal(h.Messages[0].Timestamp) {
		t.Fatalf("CreatedAt = %v, want first turn time", h.CreatedAt)
	}

	if _, err := m.History(ctx, "u2", "s1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("History() for other user error = %v, want ErrNotFound", err)
	}
}

func TestListSessions(t *testing.T) {
	m := newTestManager()
	appendN(t, m, "u1", "s1", 2)
	appendN(t, m, "u1", "s2", 1)
	appendN(t, m, "u2", "s3", 1)

	got, err := m.ListSessions(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ListSessions() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].SessionID != "s2" || got[1].SessionID != "s1" || got[1].MessageCount != 2 {
		t.Fatalf("ListSessions() = %+v", got)
	}
}
