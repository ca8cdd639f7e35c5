// Package auditor runs one question through the memory window and the language model.
package auditor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ent0n29/isoauditor/internal/conversation"
	"github.com/ent0n29/isoauditor/internal/knowledge"
	"github.com/ent0n29/isoauditor/internal/llm"
	"github.com/ent0n29/isoauditor/internal/observability"
	"github.com/ent0n29/isoauditor/internal/policy"
	"github.com/ent0n29/isoauditor/internal/session"
)

const (
	DefaultContextMessages = 10
	DefaultContextMaxChars = 200
)

type Options struct {
	WindowSize      int
	ContextMessages int
	ContextMaxChars int
}

// Query is one inbound question. An empty SessionID starts a new session.
type Query struct {
	SessionID string
	Text      string
}

// Result is the answer plus the session window as it stands after the exchange was recorded.
type Result struct {
	Response   string                 `json:"response"`
	Query      string                 `json:"query"`
	SessionID  string                 `json:"session_id"`
	History    []conversation.Message `json:"conversation_history"`
	NewSession bool                   `json:"-"`
}

type Service struct {
	memory    *conversation.Manager
	completer llm.Completer
	kb        *knowledge.Base
	tracker   *session.Tracker
	metrics   *observability.Metrics
	stages    *observability.StageWindow
	opts      Options
}

// NewService wires the query cycle. tracker, metrics and stages may be nil.
func NewService(
	memory *conversation.Manager,
	completer llm.Completer,
	kb *knowledge.Base,
	tracker *session.Tracker,
	metrics *observability.Metrics,
	stages *observability.StageWindow,
	opts Options,
) *Service {
	if opts.WindowSize <= 0 {
		opts.WindowSize = conversation.DefaultWindowSize
	}
	if opts.ContextMessages <= 0 {
		opts.ContextMessages = DefaultContextMessages
	}
	if opts.ContextMaxChars <= 0 {
		opts.ContextMaxChars = DefaultContextMaxChars
	}
	return &Service{
		memory:    memory,
		completer: completer,
		kb:        kb,
		tracker:   tracker,
		metrics:   metrics,
		stages:    stages,
		opts:      opts,
	}
}

func (s *Service) Memory() *conversation.Manager { return s.memory }

func (s *Service) Provider() string { return s.completer.Name() }

func (s *Service) Knowledge() *knowledge.Base { return s.kb }

// Ask answers q for userID. Nothing is recorded unless the model returns a completion.
func (s *Service) Ask(ctx context.Context, userID string, q Query, onDelta llm.DeltaHandler) (Result, error) {
	start := time.Now()
	res, err := s.ask(ctx, userID, q, onDelta)
	s.stages.ObserveDuration(observability.StageQueryTotal, time.Since(start))
	s.countOutcome(err)
	return res, err
}

func (s *Service) ask(ctx context.Context, userID string, q Query, onDelta llm.DeltaHandler) (Result, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return Result{}, fmt.Errorf("%w: query text is required", conversation.ErrValidation)
	}
	sessionID, minted, err := session.Normalize(q.SessionID)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", conversation.ErrValidation, err)
	}
	log := slog.With("user_id", userID, "session_id", sessionID)

	stageStart := time.Now()
	window, err := s.memory.BuildWindow(ctx, userID, sessionID, s.opts.WindowSize)
	switch {
	case errors.Is(err, conversation.ErrNotFound):
		window = conversation.Window{SessionID: sessionID}
		s.stages.ObserveIndicator("window_empty")
	case err != nil:
		s.storageFailed("read_window")
		return Result{}, err
	}
	s.stages.ObserveDuration(observability.StageWindowBuild, time.Since(stageStart))
	if s.metrics != nil {
		s.metrics.WindowTurns.Observe(float64(window.Len()))
	}

	var focus *string
	if window.Len() > 0 {
		stageStart = time.Now()
		summary, err := s.memory.Summarize(ctx, userID, sessionID)
		if err != nil {
			s.storageFailed("summarize")
			return Result{}, err
		}
		focus = summary.ComplianceFocus
		s.stages.ObserveDuration(observability.StageSummarize, time.Since(stageStart))
	}

	stageStart = time.Now()
	prompt := BuildSystemPrompt(PromptInput{
		Knowledge:       s.kb.Render(),
		Context:         window.Tail(s.opts.ContextMessages),
		ComplianceFocus: focus,
		MaxChars:        s.opts.ContextMaxChars,
	})
	s.stages.ObserveDuration(observability.StagePromptBuild, time.Since(stageStart))

	log.Debug("calling language model",
		"provider", s.completer.Name(),
		"window_turns", window.Len(),
		"query_preview", policy.LogPreview(text, 80),
	)

	modelStart := time.Now()
	firstDelta := true
	var handler llm.DeltaHandler
	if onDelta != nil {
		handler = func(delta string) error {
			if firstDelta {
				firstDelta = false
				s.stages.ObserveDuration(observability.StageFirstDelta, time.Since(modelStart))
			}
			return onDelta(delta)
		}
	}
	resp, err := s.completer.Complete(ctx, llm.Request{SystemPrompt: prompt, UserMessage: text}, handler)
	modelElapsed := time.Since(modelStart)
	s.stages.ObserveDuration(observability.StageModelCall, modelElapsed)
	if s.metrics != nil {
		s.metrics.ObserveUpstreamLatency(s.completer.Name(), modelElapsed)
	}
	if err != nil {
		log.Warn("language model call failed", "provider", s.completer.Name(), "elapsed", modelElapsed, "err", err)
		return Result{}, err
	}

	stageStart = time.Now()
	saved, err := s.memory.AppendExchange(ctx, userID, sessionID, text, resp.Text)
	if err != nil {
		s.storageFailed("append")
		log.Error("failed to record exchange", "err", err)
		return Result{}, err
	}
	s.stages.ObserveDuration(observability.StagePersist, time.Since(stageStart))
	if s.tracker != nil {
		s.tracker.Touch(userID, sessionID)
	}

	stageStart = time.Now()
	after, err := s.memory.BuildWindow(ctx, userID, sessionID, s.opts.WindowSize)
	if err != nil {
		// The exchange is recorded; answer from the window read before the call.
		log.Warn("failed to reload window after append", "err", err)
		s.storageFailed("reload_window")
		s.stages.ObserveIndicator("window_reload_failed")
		after = appendPair(window, conversation.Pair{Query: saved.Query, Response: saved.Response, Timestamp: saved.CreatedAt}, s.opts.WindowSize)
	} else {
		s.stages.ObserveDuration(observability.StageWindowReload, time.Since(stageStart))
	}

	return Result{
		Response:   resp.Text,
		Query:      text,
		SessionID:  sessionID,
		History:    after.Messages(),
		NewSession: minted,
	}, nil
}

func appendPair(w conversation.Window, p conversation.Pair, k int) conversation.Window {
	pairs := append(append([]conversation.Pair(nil), w.Pairs...), p)
	if len(pairs) > k {
		pairs = pairs[len(pairs)-k:]
	}
	return conversation.Window{SessionID: w.SessionID, Pairs: pairs}
}

func (s *Service) storageFailed(op string) {
	if s.metrics != nil {
		s.metrics.StorageErrors.WithLabelValues(op).Inc()
	}
}

func (s *Service) countOutcome(err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.Queries.WithLabelValues(Outcome(err)).Inc()
}

// Outcome names the error class of a query cycle for metrics and logs.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, conversation.ErrValidation):
		return "invalid"
	case errors.Is(err, llm.ErrUpstreamTimeout):
		return "upstream_timeout"
	case errors.Is(err, llm.ErrUpstream):
		return "upstream_error"
	case errors.Is(err, conversation.ErrStorage):
		return "storage_error"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}
