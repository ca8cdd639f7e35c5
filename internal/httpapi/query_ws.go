package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/isoauditor/internal/auditor"
	"github.com/ent0n29/isoauditor/internal/auth"
	"github.com/ent0n29/isoauditor/internal/conversation"
	"github.com/ent0n29/isoauditor/internal/llm"
	"github.com/ent0n29/isoauditor/internal/protocol"
	"github.com/ent0n29/isoauditor/internal/session"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsIdleTimeout  = 120 * time.Second
	wsReadLimit    = 1 << 20
)

// handleQueryWS streams answers for one authenticated user. A connection runs at most
// one query at a time; client_control cancel aborts it without recording the exchange.
func (s *Server) handleQueryWS(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if s.metrics != nil {
		s.metrics.ActiveWSConns.Inc()
		defer s.metrics.ActiveWSConns.Dec()
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	outbound := make(chan any, 256)
	send := func(msg any) bool {
		select {
		case <-ctx.Done():
			return false
		case outbound <- msg:
			return true
		}
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-outbound:
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				if err := conn.WriteJSON(msg); err != nil {
					cancel()
					return
				}
				if t, ok := messageTypeOf(msg); ok {
					s.countWS("outbound", t)
				}
			}
		}
	}()

	var (
		mu          sync.Mutex
		queryCancel context.CancelFunc
		queries     sync.WaitGroup
	)

	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsIdleTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsIdleTimeout))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsIdleTimeout))
		if msgType != websocket.TextMessage {
			continue
		}

		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			send(protocol.ErrorEvent{
				Type:   protocol.TypeErrorEvent,
				Code:   "invalid_client_message",
				Source: "gateway",
				Detail: err.Error(),
			})
			continue
		}
		if t, ok := messageTypeOf(parsed); ok {
			s.countWS("inbound", t)
		}

		switch m := parsed.(type) {
		case protocol.ClientControl:
			switch m.Action {
			case protocol.ActionPing:
				send(protocol.SystemEvent{Type: protocol.TypeSystemEvent, Code: "pong"})
			case protocol.ActionCancel:
				mu.Lock()
				if queryCancel != nil {
					queryCancel()
				}
				mu.Unlock()
			}
		case protocol.ClientQuery:
			mu.Lock()
			if queryCancel != nil {
				mu.Unlock()
				send(protocol.ErrorEvent{
					Type:      protocol.TypeErrorEvent,
					RequestID: m.RequestID,
					SessionID: m.SessionID,
					Code:      "query_in_progress",
					Source:    "gateway",
					Retryable: true,
					Detail:    "wait for the current answer or cancel it first",
				})
				continue
			}
			qctx, qcancel := context.WithCancel(ctx)
			queryCancel = qcancel
			mu.Unlock()

			queries.Add(1)
			go func(m protocol.ClientQuery) {
				defer queries.Done()
				final := s.streamQuery(qctx, userID, m, send)
				// Free the slot before the final message so the client may ask again on receipt.
				mu.Lock()
				queryCancel = nil
				mu.Unlock()
				qcancel()
				send(final)
			}(m)
		}
	}

	cancel()
	queries.Wait()
	<-writerDone
}

// streamQuery sends the acceptance and the answer deltas, and returns the final message.
func (s *Server) streamQuery(ctx context.Context, userID string, m protocol.ClientQuery, send func(any) bool) any {
	sessionID, _, err := session.Normalize(m.SessionID)
	if err != nil {
		return protocol.ErrorEvent{
			Type:      protocol.TypeErrorEvent,
			RequestID: m.RequestID,
			SessionID: m.SessionID,
			Code:      "invalid_request",
			Source:    "gateway",
			Detail:    err.Error(),
		}
	}
	send(protocol.QueryAccepted{Type: protocol.TypeQueryAccepted, RequestID: m.RequestID, SessionID: sessionID})

	delta := func(text string) bool {
		return send(protocol.AnswerDelta{
			Type:      protocol.TypeAnswerDelta,
			RequestID: m.RequestID,
			SessionID: sessionID,
			TextDelta: text,
		})
	}
	coalescer := llm.NewCoalescer(s.opts.CoalesceMinChars)
	res, err := s.auditor.Ask(ctx, userID, auditor.Query{SessionID: sessionID, Text: m.Query}, func(d string) error {
		for _, seg := range coalescer.Consume(d) {
			if !delta(seg) {
				return context.Cause(ctx)
			}
		}
		return nil
	})
	if err != nil {
		f := classify(err)
		if errors.Is(err, context.Canceled) {
			slog.Debug("websocket query canceled", "user_id", userID, "session_id", sessionID)
		}
		return protocol.ErrorEvent{
			Type:      protocol.TypeErrorEvent,
			RequestID: m.RequestID,
			SessionID: sessionID,
			Code:      f.code,
			Source:    "auditor",
			Retryable: f.retryable,
			Detail:    f.message,
		}
	}
	for _, seg := range coalescer.Finalize() {
		delta(seg)
	}
	return protocol.AnswerComplete{
		Type:                protocol.TypeAnswerComplete,
		RequestID:           m.RequestID,
		SessionID:           res.SessionID,
		Query:               res.Query,
		Response:            res.Response,
		ConversationHistory: historyEntries(res.History),
	}
}

func historyEntries(msgs []conversation.Message) []protocol.HistoryEntry {
	out := make([]protocol.HistoryEntry, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, protocol.HistoryEntry{Role: m.Role, Content: m.Content, Timestamp: m.Timestamp})
	}
	return out
}

func (s *Server) countWS(direction string, t protocol.MessageType) {
	if s.metrics != nil {
		s.metrics.WSMessages.WithLabelValues(direction, string(t)).Inc()
	}
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.ClientQuery:
		return m.Type, true
	case protocol.ClientControl:
		return m.Type, true
	case protocol.QueryAccepted:
		return m.Type, true
	case protocol.AnswerDelta:
		return m.Type, true
	case protocol.AnswerComplete:
		return m.Type, true
	case protocol.SystemEvent:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
